package tube

// LearnParams controls candidate generation and model selection.
type LearnParams struct {
	// RetryNumber is the maximum number of random-subspace trials per target.
	RetryNumber int `json:"retry_number"`
	// KeepBestNumber is the retained population size per target, and also the
	// consecutive-miss count that triggers early stopping.
	KeepBestNumber int `json:"keep_best_number"`
	// SamplesPercent is the fraction of each unit's rows drawn (with
	// replacement) for the training sample, and again for validation.
	SamplesPercent float64 `json:"samples_percent"`
	// MaxFeatures caps the size of each trial's random feature subset.
	MaxFeatures int `json:"max_features"`
}

// TubeParams controls envelope calibration.
type TubeParams struct {
	// TubeThreshold is the target tail fraction of residuals kept outside the
	// calibrated envelope on each side.
	TubeThreshold float64 `json:"tube_threshold"`
}

// Params is the full configuration consumed by one Fit call. Passing it
// explicitly keeps retraining with different parameters side-effect-free.
type Params struct {
	Learn LearnParams `json:"learn"`
	Tube  TubeParams  `json:"tube"`
}

// DefaultParams returns the historical default configuration.
func DefaultParams() Params {
	return Params{
		Learn: LearnParams{
			RetryNumber:    10,
			KeepBestNumber: 5,
			SamplesPercent: 0.01,
			MaxFeatures:    5,
		},
		Tube: TubeParams{
			TubeThreshold: 0.01,
		},
	}
}
