// stratify.go: partitions annotation populations into labeled strata
package review

import (
	"context"
	"sort"
	"strings"

	"github.com/clinreview/clinreview/internal/datastore"
)

// ConfidenceKey is the synthetic stratification key for confidence banding.
const ConfidenceKey = "confidence"

// UnknownValue is substituted when an attribute cannot be resolved.
const UnknownValue = "unknown"

// Strata maps stratum labels to the annotation IDs in each stratum. Empty
// strata are never present.
type Strata map[string][]uint

// SortedLabels returns the stratum labels in lexical order, giving the
// sampling engine a stable iteration order.
func (s Strata) SortedLabels() []string {
	labels := make([]string, 0, len(s))
	for label := range s {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}

// Total returns the population size across all strata.
func (s Strata) Total() int {
	total := 0
	for _, members := range s {
		total += len(members)
	}
	return total
}

// Stratifier partitions annotations into strata by one or more keys. Each
// key is either a named categorical attribute on the annotation's parent
// document, resolved through the AttributeResolver, or the synthetic key
// "confidence".
//
// Confidence banding is asymmetric on purpose: single-key confidence
// stratification uses four bands while the composite path uses three
// coarser bands. The asymmetry is inherited from the system this service
// audits alongside; reconciling it would silently change which strata
// existing tasks sample from.
type Stratifier struct {
	Resolver AttributeResolver
}

// Stratify partitions the annotations by the given keys. A single
// "confidence" key takes the four-band path, anything else goes through the
// composite path. At least one key is required; with zero keys every
// annotation lands in a single unlabeled stratum.
func (st *Stratifier) Stratify(ctx context.Context, annotations []datastore.Annotation, keys []string) Strata {
	switch {
	case len(keys) == 0:
		strata := make(Strata, 1)
		for i := range annotations {
			strata[""] = append(strata[""], annotations[i].ID)
		}
		if len(annotations) == 0 {
			return Strata{}
		}
		return strata
	case len(keys) == 1 && keys[0] == ConfidenceKey:
		return st.stratifyByConfidence(annotations)
	default:
		return st.stratifyComposite(ctx, annotations, keys)
	}
}

// stratifyByConfidence buckets annotations into the four fixed confidence
// bands [0,0.5) [0.5,0.7) [0.7,0.9) [0.9,1.0]. A missing confidence score
// counts as zero.
func (st *Stratifier) stratifyByConfidence(annotations []datastore.Annotation) Strata {
	strata := make(Strata, 4)
	for i := range annotations {
		band := confidenceBand(annotationConfidence(&annotations[i]))
		label := ConfidenceKey + ":" + band
		strata[label] = append(strata[label], annotations[i].ID)
	}
	return strata
}

// stratifyComposite builds per-key "field:value" tokens joined by "|".
// Unresolvable attributes become "unknown"; confidence uses the coarser
// three-band grouping here.
func (st *Stratifier) stratifyComposite(ctx context.Context, annotations []datastore.Annotation, keys []string) Strata {
	strata := make(Strata)
	for i := range annotations {
		tokens := make([]string, 0, len(keys))
		for _, key := range keys {
			tokens = append(tokens, key+":"+st.keyValue(ctx, &annotations[i], key))
		}
		label := strings.Join(tokens, "|")
		strata[label] = append(strata[label], annotations[i].ID)
	}
	return strata
}

func (st *Stratifier) keyValue(ctx context.Context, annotation *datastore.Annotation, key string) string {
	if key == ConfidenceKey {
		return confidenceGroup(annotationConfidence(annotation))
	}
	if st.Resolver == nil {
		return UnknownValue
	}
	value, ok := st.Resolver.Resolve(ctx, annotation.DocumentRef, key)
	if !ok {
		return UnknownValue
	}
	return value
}

func annotationConfidence(annotation *datastore.Annotation) float64 {
	if annotation.Confidence == nil {
		return 0
	}
	return *annotation.Confidence
}

// confidenceBand returns the four-band label used by single-key confidence
// stratification.
func confidenceBand(confidence float64) string {
	switch {
	case confidence < 0.5:
		return "0.0-0.5"
	case confidence < 0.7:
		return "0.5-0.7"
	case confidence < 0.9:
		return "0.7-0.9"
	default:
		return "0.9-1.0"
	}
}

// confidenceGroup returns the three-band grouping used within composite
// stratification.
func confidenceGroup(confidence float64) string {
	switch {
	case confidence < 0.5:
		return "low"
	case confidence < 0.8:
		return "medium"
	default:
		return "high"
	}
}
