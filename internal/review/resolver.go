// resolver.go: attribute lookup on the documents behind annotations
package review

import (
	"context"
	"encoding/json"

	"github.com/clinreview/clinreview/internal/datastore"
)

// AttributeResolver resolves a named categorical attribute on the document
// an annotation classified. Implementations report ok=false when the field
// cannot be resolved; the stratification engine then uses the literal
// "unknown" so one bad record never aborts a whole stratification run.
type AttributeResolver interface {
	Resolve(ctx context.Context, documentRef, field string) (value string, ok bool)
}

// DatastoreResolver resolves attributes from the documents table, where
// attributes are stored as a flat JSON object of string values.
type DatastoreResolver struct {
	DS datastore.Interface
}

// Resolve implements AttributeResolver.
func (r *DatastoreResolver) Resolve(ctx context.Context, documentRef, field string) (string, bool) {
	doc, err := r.DS.GetDocumentByRef(ctx, documentRef)
	if err != nil {
		return "", false
	}
	var attributes map[string]string
	if err := json.Unmarshal([]byte(doc.Attributes), &attributes); err != nil {
		return "", false
	}
	value, ok := attributes[field]
	if !ok || value == "" {
		return "", false
	}
	return value, true
}

// MapResolver resolves attributes from an in-memory map keyed by document
// reference. Used in tests and for ad-hoc CLI runs.
type MapResolver map[string]map[string]string

// Resolve implements AttributeResolver.
func (r MapResolver) Resolve(_ context.Context, documentRef, field string) (string, bool) {
	attributes, ok := r[documentRef]
	if !ok {
		return "", false
	}
	value, ok := attributes[field]
	if !ok || value == "" {
		return "", false
	}
	return value, true
}
