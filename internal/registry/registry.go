// Package registry loads the graph-break registry: a JSON object mapping each
// GBID to a list of records describing that graph break.
package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Placeholders substituted for absent record fields.
const (
	PlaceholderGbType      = "*No Gb_type provided.*"
	PlaceholderContext     = "*No context provided.*"
	PlaceholderExplanation = "*No explanation provided.*"
)

// Record is one registry record. Nil fields were absent (or null) in the JSON.
type Record struct {
	GbTypeValue      *string   `json:"Gb_type,omitempty"`
	ContextValue     *string   `json:"Context,omitempty"`
	ExplanationValue *string   `json:"Explanation,omitempty"`
	HintsValue       *[]string `json:"Hints,omitempty"`

	AdditionalInfoValue *[]string `json:"Additional_Info,omitempty"`
}

// GbType returns the Gb_type field or its placeholder.
func (r Record) GbType() string {
	return valueOr(r.GbTypeValue, PlaceholderGbType)
}

// ContextText returns the Context field or its placeholder.
func (r Record) ContextText() string {
	return valueOr(r.ContextValue, PlaceholderContext)
}

// ExplanationText returns the Explanation field or its placeholder.
func (r Record) ExplanationText() string {
	return valueOr(r.ExplanationValue, PlaceholderExplanation)
}

// HintList returns the hints, or nil when absent.
func (r Record) HintList() []string {
	if r.HintsValue == nil {
		return nil
	}
	return *r.HintsValue
}

// AdditionalInfo returns the registry's own Additional_Info notes, or nil
// when absent. These are separate from the hand-written page content.
func (r Record) AdditionalInfo() []string {
	if r.AdditionalInfoValue == nil {
		return nil
	}
	return *r.AdditionalInfoValue
}

// MissingContent reports whether any core field resolves to its placeholder
// or the record has no hints. A field whose literal value equals the
// placeholder counts as missing too.
func (r Record) MissingContent() bool {
	return r.GbType() == PlaceholderGbType ||
		r.ContextText() == PlaceholderContext ||
		r.ExplanationText() == PlaceholderExplanation ||
		len(r.HintList()) == 0
}

func valueOr(v *string, placeholder string) string {
	if v == nil {
		return placeholder
	}
	return *v
}

// Entry is a GBID with its records. Only the first record is rendered.
// Raw is the entry's value as it appeared in the source document, when
// parsed; it carries fields Record does not model.
type Entry struct {
	ID      string
	Records []Record
	Raw     json.RawMessage
}

// First returns the first record, or a zero Record when there are none.
func (e Entry) First() Record {
	if len(e.Records) == 0 {
		return Record{}
	}
	return e.Records[0]
}

// Registry holds entries in the order they appear in the source document.
type Registry struct {
	entries []Entry
	index   map[string]int
}

// New builds a Registry from entries, keeping their order. A repeated ID
// replaces the earlier records in place.
func New(entries ...Entry) *Registry {
	r := &Registry{index: make(map[string]int, len(entries))}
	for _, e := range entries {
		r.add(e)
	}
	return r
}

func (r *Registry) add(e Entry) {
	if i, ok := r.index[e.ID]; ok {
		r.entries[i] = e
		return
	}
	r.index[e.ID] = len(r.entries)
	r.entries = append(r.entries, e)
}

// Len returns the number of GBIDs.
func (r *Registry) Len() int {
	return len(r.entries)
}

// Entries returns the entries in document order. The slice must not be modified.
func (r *Registry) Entries() []Entry {
	return r.entries
}

// Get looks up an entry by exact GBID.
func (r *Registry) Get(id string) (Entry, bool) {
	i, ok := r.index[id]
	if !ok {
		return Entry{}, false
	}
	return r.entries[i], true
}

// MarshalJSON encodes the registry back into its source shape, preserving
// order. Parsed entries are emitted as their source values, unknown fields
// and nulls included.
func (r *Registry) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range r.entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(e.ID)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		if len(e.Raw) > 0 {
			if err := json.Compact(&buf, e.Raw); err != nil {
				return nil, fmt.Errorf("entry %q: %w", e.ID, err)
			}
			continue
		}
		records := e.Records
		if records == nil {
			records = []Record{}
		}
		val, err := json.Marshal(records)
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Parse decodes a registry document. Key order is preserved so that output
// is stable across runs.
func Parse(data []byte) (*Registry, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("%w: registry must be a JSON object", ErrDecode)
	}

	reg := New()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrDecode, err)
		}
		id, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("%w: unexpected token %v", ErrDecode, tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("%w: entry %q: %w", ErrDecode, id, err)
		}
		var records []Record
		if err := json.Unmarshal(raw, &records); err != nil {
			return nil, fmt.Errorf("%w: entry %q: %w", ErrDecode, id, err)
		}
		reg.add(Entry{ID: id, Records: records, Raw: raw})
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after registry object", ErrDecode)
	}
	return reg, nil
}
