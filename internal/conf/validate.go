// conf/validate.go settings validation
package conf

import (
	"github.com/clinreview/clinreview/internal/errors"
)

// ValidateSettings checks the loaded settings for inconsistencies that
// would fail later in confusing ways.
func ValidateSettings(settings *Settings) error {
	if settings.Output.SQLite.Enabled && settings.Output.MySQL.Enabled {
		return errors.Newf("only one database output may be enabled, both sqlite and mysql are set").
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if !settings.Output.SQLite.Enabled && !settings.Output.MySQL.Enabled {
		return errors.Newf("no database output enabled, enable output.sqlite or output.mysql").
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if settings.Output.SQLite.Enabled && settings.Output.SQLite.Path == "" {
		return errors.Newf("output.sqlite.path must not be empty").
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}

	r := &settings.Review
	switch r.DefaultStrategy {
	case "", "random", "stratified", "confidence_weighted":
	default:
		return errors.Newf("unknown review.defaultstrategy %q", r.DefaultStrategy).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("strategy", r.DefaultStrategy).
			Build()
	}
	if r.ConfidenceThreshold < 0 || r.ConfidenceThreshold > 1 {
		return errors.Newf("review.confidencethreshold %.2f outside [0,1]", r.ConfidenceThreshold).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if r.LowConfidenceWeight <= 0 {
		return errors.Newf("review.lowconfidenceweight must be positive, got %.2f", r.LowConfidenceWeight).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if r.FPThreshold < 0 || r.FPThreshold > 1 {
		return errors.Newf("review.fpthreshold %.2f outside [0,1]", r.FPThreshold).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}

	return nil
}
