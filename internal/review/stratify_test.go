// stratify_test.go: stratification engine behavior
package review

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/clinreview/clinreview/internal/datastore"
)

func annotationsWithConfidence(confidences ...float64) []datastore.Annotation {
	annotations := make([]datastore.Annotation, len(confidences))
	for i, c := range confidences {
		conf := c
		annotations[i] = datastore.Annotation{
			ID:          uint(i + 1),
			DocumentRef: "doc",
			Confidence:  &conf,
		}
	}
	return annotations
}

func TestStratifySingleConfidenceKeyUsesFourBands(t *testing.T) {
	st := &Stratifier{}
	annotations := annotationsWithConfidence(0.1, 0.49, 0.5, 0.69, 0.7, 0.89, 0.9, 1.0)

	strata := st.Stratify(context.Background(), annotations, []string{ConfidenceKey})

	assert.ElementsMatch(t, []uint{1, 2}, strata["confidence:0.0-0.5"])
	assert.ElementsMatch(t, []uint{3, 4}, strata["confidence:0.5-0.7"])
	assert.ElementsMatch(t, []uint{5, 6}, strata["confidence:0.7-0.9"])
	assert.ElementsMatch(t, []uint{7, 8}, strata["confidence:0.9-1.0"])
	assert.Len(t, strata, 4)
}

func TestStratifySingleConfidenceDropsEmptyBands(t *testing.T) {
	st := &Stratifier{}
	annotations := annotationsWithConfidence(0.95, 0.92)

	strata := st.Stratify(context.Background(), annotations, []string{ConfidenceKey})

	assert.Len(t, strata, 1)
	assert.Contains(t, strata, "confidence:0.9-1.0")
}

func TestStratifyMissingConfidenceCountsAsZero(t *testing.T) {
	st := &Stratifier{}
	annotations := []datastore.Annotation{{ID: 1, DocumentRef: "doc"}}

	strata := st.Stratify(context.Background(), annotations, []string{ConfidenceKey})

	assert.ElementsMatch(t, []uint{1}, strata["confidence:0.0-0.5"])
}

func TestStratifyCompositeJoinsTokensWithPipe(t *testing.T) {
	resolver := MapResolver{
		"doc-1": {"modality": "xray", "site": "north"},
		"doc-2": {"modality": "ct", "site": "north"},
	}
	st := &Stratifier{Resolver: resolver}

	annotations := []datastore.Annotation{
		{ID: 1, DocumentRef: "doc-1"},
		{ID: 2, DocumentRef: "doc-2"},
		{ID: 3, DocumentRef: "doc-1"},
	}

	strata := st.Stratify(context.Background(), annotations, []string{"modality", "site"})

	assert.ElementsMatch(t, []uint{1, 3}, strata["modality:xray|site:north"])
	assert.ElementsMatch(t, []uint{2}, strata["modality:ct|site:north"])
	assert.Len(t, strata, 2)
}

func TestStratifyUnresolvableAttributeFallsBackToUnknown(t *testing.T) {
	resolver := MapResolver{
		"doc-1": {"modality": "xray"},
	}
	st := &Stratifier{Resolver: resolver}

	annotations := []datastore.Annotation{
		{ID: 1, DocumentRef: "doc-1"},
		{ID: 2, DocumentRef: "doc-missing"}, // no document at all
	}

	strata := st.Stratify(context.Background(), annotations, []string{"modality"})

	assert.ElementsMatch(t, []uint{1}, strata["modality:xray"])
	assert.ElementsMatch(t, []uint{2}, strata["modality:unknown"])
}

func TestStratifyCompositeConfidenceUsesThreeBands(t *testing.T) {
	resolver := MapResolver{"doc": {"modality": "xray"}}
	st := &Stratifier{Resolver: resolver}

	annotations := annotationsWithConfidence(0.2, 0.6, 0.79, 0.8, 0.99)

	strata := st.Stratify(context.Background(), annotations, []string{"modality", ConfidenceKey})

	assert.ElementsMatch(t, []uint{1}, strata["modality:xray|confidence:low"])
	assert.ElementsMatch(t, []uint{2, 3}, strata["modality:xray|confidence:medium"])
	assert.ElementsMatch(t, []uint{4, 5}, strata["modality:xray|confidence:high"])
}

func TestStratifyNoKeysSingleStratum(t *testing.T) {
	st := &Stratifier{}
	annotations := annotationsWithConfidence(0.5, 0.9)

	strata := st.Stratify(context.Background(), annotations, nil)

	assert.Len(t, strata, 1)
	assert.ElementsMatch(t, []uint{1, 2}, strata[""])

	assert.Empty(t, st.Stratify(context.Background(), nil, nil))
}

func TestStrataSortedLabelsAndTotal(t *testing.T) {
	strata := Strata{
		"b": {3, 4},
		"a": {1, 2},
		"c": {5},
	}

	assert.Equal(t, []string{"a", "b", "c"}, strata.SortedLabels())
	assert.Equal(t, 5, strata.Total())
}
