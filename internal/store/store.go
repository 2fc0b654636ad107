// Package store provides the generic document store the exam session reads
// and writes through. Documents are JSON objects addressed by collection and id.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotFound is returned by Get when the document does not exist.
var ErrNotFound = errors.New("document not found")

// DocumentStore is the port every driver implements.
type DocumentStore interface {
	// Get decodes the document into dst or returns ErrNotFound.
	Get(ctx context.Context, collection, id string, dst any) error
	// Set writes data as the document body. With Merge, top-level fields of
	// data overwrite the stored ones and all other stored fields are kept.
	Set(ctx context.Context, collection, id string, data any, opts SetOptions) error
	// Delete removes the document. Deleting a missing document succeeds.
	Delete(ctx context.Context, collection, id string) error
	// Query returns every document in collection matching all filters.
	Query(ctx context.Context, collection string, filters ...Filter) ([]Document, error)
}

// SetOptions controls Set.
type SetOptions struct {
	Merge bool
}

// Merge is shorthand for SetOptions{Merge: true}.
var Merge = SetOptions{Merge: true}

// Filter is an equality match on a top-level field.
type Filter struct {
	Field string
	Value any
}

// Where builds a Filter.
func Where(field string, value any) Filter {
	return Filter{Field: field, Value: value}
}

// Document is a raw query hit.
type Document struct {
	Collection string
	ID         string
	Data       json.RawMessage
}

// Decode unmarshals the document body into dst.
func (d Document) Decode(dst any) error {
	if err := json.Unmarshal(d.Data, dst); err != nil {
		return fmt.Errorf("decode %s/%s: %w", d.Collection, d.ID, err)
	}
	return nil
}

// fields is a document body split into its top-level members.
type fields map[string]json.RawMessage

func toFields(data any) (fields, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}
	var f fields
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("document must be a JSON object: %w", err)
	}
	if f == nil {
		f = fields{}
	}
	return f, nil
}

func (f fields) merge(update fields) fields {
	out := make(fields, len(f)+len(update))
	for k, v := range f {
		out[k] = v
	}
	for k, v := range update {
		out[k] = v
	}
	return out
}

func (f fields) matches(filters []Filter) (bool, error) {
	for _, flt := range filters {
		want, err := json.Marshal(flt.Value)
		if err != nil {
			return false, fmt.Errorf("marshal filter %s: %w", flt.Field, err)
		}
		got, ok := f[flt.Field]
		if !ok || !jsonEqual(got, want) {
			return false, nil
		}
	}
	return true, nil
}

func jsonEqual(a, b []byte) bool {
	var ca, cb bytes.Buffer
	if json.Compact(&ca, a) != nil || json.Compact(&cb, b) != nil {
		return bytes.Equal(a, b)
	}
	return bytes.Equal(ca.Bytes(), cb.Bytes())
}
