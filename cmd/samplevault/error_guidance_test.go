package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"samplevault/internal/service"
)

func TestFormatCLIError_ServiceErrors(t *testing.T) {
	err := fmt.Errorf("attach: %w", &service.Error{
		Kind: service.KindChecksumDuplicate,
		Path: []string{"attachment", "bl-1"},
		Err:  errors.New(service.MsgChecksumDuplicate),
	})
	lines := formatCLIError(err)
	if lines[0] != "error 2101 [attachment.bl-1]: checksum matches existing file" {
		t.Fatalf("unexpected first line %q", lines[0])
	}
	if !containsLine(lines, "hint: list the target's attachments with: samplevault list <type> <id>") {
		t.Fatalf("expected duplicate guidance, got %v", lines)
	}

	lines = formatCLIError(&service.Error{Kind: service.KindProtectedOrigin, Err: errors.New("a-1")})
	if lines[0] != "error 3002: "+service.MsgProtectedOrigin {
		t.Fatalf("unexpected first line %q", lines[0])
	}
	if !containsLine(lines, "hint: attachments produced by workflow runs need --privileged to be changed.") {
		t.Fatalf("expected privileged guidance, got %v", lines)
	}
}

func TestFormatCLIError_BatchFailure(t *testing.T) {
	lines := formatCLIError(&batchFailedError{op: "attach", failed: 1, total: 3})
	if len(lines) != 1 || lines[0] != "attach: 1 of 3 items failed" {
		t.Fatalf("unexpected lines %v", lines)
	}
}

func TestFormatCLIError_NetworkGuidance(t *testing.T) {
	err := &net.DNSError{Err: "connection refused", Name: "redis", IsTemporary: true}
	lines := formatCLIError(err)
	if !containsLine(lines, "hint: check database_url, blobs.s3.endpoint and locking.redis_addr.") {
		t.Fatalf("expected connectivity guidance, got %v", lines)
	}
}

func TestFormatCLIError_TimeoutGuidance(t *testing.T) {
	lines := formatCLIError(fmt.Errorf("lock: %w", context.DeadlineExceeded))
	if !containsLine(lines, "hint: operation timed out; check database, blob store and redis reachability.") {
		t.Fatalf("expected timeout guidance, got %v", lines)
	}
}

func TestFormatCLIError_Nil(t *testing.T) {
	if lines := formatCLIError(nil); lines != nil {
		t.Fatalf("expected nil, got %v", lines)
	}
}

func containsLine(lines []string, want string) bool {
	for _, line := range lines {
		if line == want {
			return true
		}
	}
	return false
}
