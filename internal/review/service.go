// Package review implements the audit workflow over AI classifications:
// stratified sampling of a completed batch, single or double-blind review,
// consensus with arbitration, and derived accuracy metrics.
package review

import (
	"github.com/clinreview/clinreview/internal/conf"
	"github.com/clinreview/clinreview/internal/datastore"
	"github.com/clinreview/clinreview/internal/observability/metrics"
)

// Service drives the review workflow. It is stateless between calls; all
// state lives in the persisted entities and every mutating operation runs
// in a single datastore transaction.
type Service struct {
	ds       datastore.Interface
	config   *conf.ReviewConfig
	sampler  *Sampler
	resolver AttributeResolver
	metrics  *metrics.ReviewMetrics // optional, nil disables instrumentation
}

// NewService creates a review service. The resolver may be nil when no
// stratified tasks use document attributes; metrics may be nil.
func NewService(ds datastore.Interface, reviewConf *conf.ReviewConfig, resolver AttributeResolver, m *metrics.ReviewMetrics) *Service {
	if resolver == nil {
		resolver = &DatastoreResolver{DS: ds}
	}
	return &Service{
		ds:       ds,
		config:   reviewConf,
		sampler:  NewSampler(),
		resolver: resolver,
		metrics:  m,
	}
}

// SetSampler replaces the random source, used by tests that need
// deterministic draws.
func (s *Service) SetSampler(sampler *Sampler) {
	s.sampler = sampler
}
