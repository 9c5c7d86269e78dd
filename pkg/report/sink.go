// Package report persists verdict documents. Every document is addressed by
// a campaign id and a category and is stored as validacion_<category>.json
// under the campaign's directory or key prefix.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path"
)

// Categories written by the pipeline.
const (
	CategorySegments = "segmentos"
	CategoryStages   = "etapas"
	CategoryDates    = "fechas"
)

var ErrNotFound = errors.New("report: document not found")

// Sink stores one document per (campaign, category).
type Sink interface {
	Put(ctx context.Context, campaignID, category string, value any) error
}

// FileName is the document name for a category.
func FileName(category string) string {
	return "validacion_" + category + ".json"
}

// ObjectKey is the object store key for a document.
func ObjectKey(prefix, campaignID, category string) string {
	return path.Join(prefix, campaignID, FileName(category))
}

// Encode renders value as indented JSON without HTML escaping, so accented
// text and markup survive verbatim.
func Encode(value any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(value); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MultiSink writes to every sink in order. All sinks are attempted; the
// first error is returned.
type MultiSink []Sink

func (m MultiSink) Put(ctx context.Context, campaignID, category string, value any) error {
	var first error
	for _, s := range m {
		if err := s.Put(ctx, campaignID, category, value); err != nil && first == nil {
			first = err
		}
	}
	return first
}
