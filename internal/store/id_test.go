package store

import (
	"testing"

	"github.com/google/uuid"
)

func TestGenerateID(t *testing.T) {
	t.Run("valid prefix", func(t *testing.T) {
		id, err := GenerateID("bl", nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(id) != 9 { // "bl-" + 6 chars
			t.Fatalf("expected length 9, got %d: %s", len(id), id)
		}
		if id[:3] != "bl-" {
			t.Fatalf("expected prefix bl-, got %s", id[:3])
		}
	})

	t.Run("empty prefix", func(t *testing.T) {
		_, err := GenerateID("", nil)
		if err == nil {
			t.Fatal("expected error for empty prefix")
		}
	})

	t.Run("retries on collision", func(t *testing.T) {
		calls := 0
		exists := func(id string) (bool, error) {
			calls++
			return calls < 3, nil
		}
		id, err := GenerateID("bl", exists)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if id == "" {
			t.Fatal("expected non-empty id")
		}
		if calls != 3 {
			t.Fatalf("expected 3 calls, got %d", calls)
		}
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		exists := func(id string) (bool, error) {
			return true, nil
		}
		_, err := GenerateID("bl", exists)
		if err == nil {
			t.Fatal("expected error after max attempts")
		}
	})
}

func TestNewAttachmentIDIsUUIDv7(t *testing.T) {
	first, err := NewAttachmentID()
	if err != nil {
		t.Fatalf("new attachment id: %v", err)
	}
	parsed, err := uuid.Parse(first)
	if err != nil {
		t.Fatalf("parse uuid: %v", err)
	}
	if parsed.Version() != 7 {
		t.Fatalf("expected version 7, got %d", parsed.Version())
	}

	second, err := NewAttachmentID()
	if err != nil {
		t.Fatalf("new attachment id: %v", err)
	}
	if first == second {
		t.Fatal("expected distinct ids")
	}
}
