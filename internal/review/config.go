// config.go: per-task sampling configuration
package review

import (
	"encoding/json"

	"github.com/clinreview/clinreview/internal/conf"
	"github.com/clinreview/clinreview/internal/errors"
)

// Sampling strategies.
const (
	StrategyRandom             = "random"
	StrategyStratified         = "stratified"
	StrategyConfidenceWeighted = "confidence_weighted"
)

// SamplingConfig is stored on the task as JSON and selects the sampling
// policy for sample generation.
type SamplingConfig struct {
	Strategy string `json:"strategy"`
	// Keys selects the stratification keys for the stratified strategy:
	// document attribute names or the synthetic "confidence" key.
	Keys []string `json:"keys,omitempty"`
	// ConfidenceThreshold splits low from high confidence for the
	// confidence_weighted strategy. Zero means the configured default.
	ConfidenceThreshold float64 `json:"confidence_threshold,omitempty"`
	// LowConfidenceWeight oversamples the low confidence group. Zero means
	// the configured default.
	LowConfidenceWeight float64 `json:"low_confidence_weight,omitempty"`
}

// ApplyDefaults fills unset values from the service configuration.
func (c *SamplingConfig) ApplyDefaults(reviewConf *conf.ReviewConfig) {
	if c.Strategy == "" {
		c.Strategy = reviewConf.DefaultStrategy
	}
	if c.Strategy == "" {
		c.Strategy = StrategyRandom
	}
	if c.ConfidenceThreshold == 0 {
		c.ConfidenceThreshold = reviewConf.ConfidenceThreshold
	}
	if c.ConfidenceThreshold == 0 {
		c.ConfidenceThreshold = 0.7
	}
	if c.LowConfidenceWeight == 0 {
		c.LowConfidenceWeight = reviewConf.LowConfidenceWeight
	}
	if c.LowConfidenceWeight == 0 {
		c.LowConfidenceWeight = 2.0
	}
}

// Validate checks the configuration before it is persisted on a task.
func (c *SamplingConfig) Validate() error {
	switch c.Strategy {
	case StrategyRandom, StrategyConfidenceWeighted:
	case StrategyStratified:
		if len(c.Keys) == 0 {
			return errors.Newf("stratified sampling requires at least one stratification key").
				Component("review").
				Category(errors.CategoryValidation).
				Build()
		}
	default:
		return errors.Newf("unknown sampling strategy %q", c.Strategy).
			Component("review").
			Category(errors.CategoryValidation).
			Context("strategy", c.Strategy).
			Build()
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return errors.Newf("confidence threshold %.2f outside [0,1]", c.ConfidenceThreshold).
			Component("review").
			Category(errors.CategoryValidation).
			Build()
	}
	return nil
}

// Marshal serializes the configuration for storage on the task row.
func (c *SamplingConfig) Marshal() (string, error) {
	out, err := json.Marshal(c)
	if err != nil {
		return "", errors.New(err).
			Component("review").
			Category(errors.CategoryValidation).
			Build()
	}
	return string(out), nil
}

// ParseSamplingConfig deserializes a task's stored sampling configuration.
func ParseSamplingConfig(raw string) (*SamplingConfig, error) {
	cfg := &SamplingConfig{}
	if raw == "" {
		return cfg, nil
	}
	if err := json.Unmarshal([]byte(raw), cfg); err != nil {
		return nil, errors.New(err).
			Component("review").
			Category(errors.CategoryValidation).
			Context("sampling_config", raw).
			Build()
	}
	return cfg, nil
}
