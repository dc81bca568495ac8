package format

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// Output names accepted by New.
const (
	JSON = "json"
	YAML = "yaml"
)

// Formatter writes one command result.
type Formatter interface {
	Write(w io.Writer, payload any) error
}

// New returns the formatter for name.
func New(name string) (Formatter, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", JSON:
		return JSONFormatter{}, nil
	case YAML:
		return YAMLFormatter{}, nil
	default:
		return nil, fmt.Errorf("unknown output format %q (use json or yaml)", name)
	}
}

// JSONFormatter writes one JSON document per line. Filenames keep &, < and >
// unescaped.
type JSONFormatter struct {
	Indent bool
}

// Write encodes payload to w.
func (f JSONFormatter) Write(w io.Writer, payload any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if f.Indent {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(payload)
}

// YAMLFormatter writes one YAML document. The payload goes through its JSON
// encoding first so json tags and the attachment metadata marshaler decide
// the keys, exactly as for JSONFormatter.
type YAMLFormatter struct{}

// Write encodes payload to w.
func (YAMLFormatter) Write(w io.Writer, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return err
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(plainNumbers(doc)); err != nil {
		return err
	}
	return enc.Close()
}

// plainNumbers swaps json.Number for int64 or float64 so byte sizes stay
// exact and render unquoted.
func plainNumbers(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			t[k] = plainNumbers(child)
		}
		return t
	case []any:
		for i, child := range t {
			t[i] = plainNumbers(child)
		}
		return t
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	default:
		return v
	}
}
