package change

import (
	"math"

	"github.com/forest-guardian/greenwatch/internal/greenness"
	"github.com/forest-guardian/greenwatch/internal/properties"
)

// Thresholds drives the flag policy.
type Thresholds struct {
	// DeforestationPercentDrop is the minimum vegetation fraction drop, in percent.
	DeforestationPercentDrop float64
	// PoisoningDelta is the minimum absolute mean greenness drop.
	PoisoningDelta float64
	// MinPixelArea gates the deforestation flag on the current sample size.
	MinPixelArea int
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		DeforestationPercentDrop: 10.0,
		PoisoningDelta:           0.10,
		MinPixelArea:             500,
	}
}

// ThresholdsFromEnv reads the thresholds from the environment, falling back to the defaults.
func ThresholdsFromEnv() Thresholds {
	return Thresholds{
		DeforestationPercentDrop: properties.DeforestationPercentDropThreshold(),
		PoisoningDelta:           properties.PoisoningDropDelta(),
		MinPixelArea:             properties.MinPixelArea(),
	}
}

type Result struct {
	PercentDrop       float64            `json:"deforestation_percent_drop"`
	GreennessDrop     float64            `json:"poisoning_greenness_drop"`
	DeforestationFlag bool               `json:"deforestation_flag"`
	PoisoningFlag     bool               `json:"poisoning_flag"`
	BaselineFraction  float64            `json:"baseline_vegetation_fraction"`
	BaselineGreenness float64            `json:"baseline_mean_greenness"`
	Current           greenness.Metric   `json:"current_metrics"`
	Historical        []greenness.Metric `json:"historical_metrics"`
}

type Detector struct {
	Thresholds Thresholds
}

func NewDetector(thresholds Thresholds) Detector {
	return Detector{Thresholds: thresholds}
}

// Detect compares the current metric against the historical baseline. An empty history yields a
// zero baseline; callers should always provide at least one historical metric.
func (d Detector) Detect(current greenness.Metric, historical []greenness.Metric) Result {
	baselineFraction, baselineGreenness := baseline(historical)

	percentDrop := math.Max(0, (baselineFraction-current.VegetationFraction)/(baselineFraction+greenness.Epsilon)*100)
	greennessDrop := baselineGreenness - current.MeanGreenness

	return Result{
		PercentDrop:       percentDrop,
		GreennessDrop:     greennessDrop,
		DeforestationFlag: percentDrop >= d.Thresholds.DeforestationPercentDrop && current.TotalPixels >= d.Thresholds.MinPixelArea,
		PoisoningFlag:     greennessDrop >= d.Thresholds.PoisoningDelta,
		BaselineFraction:  baselineFraction,
		BaselineGreenness: baselineGreenness,
		Current:           current,
		Historical:        historical,
	}
}

func baseline(historical []greenness.Metric) (float64, float64) {
	if len(historical) == 0 {
		return 0, 0
	}
	var fraction, mean float64
	for _, m := range historical {
		fraction += m.VegetationFraction
		mean += m.MeanGreenness
	}
	n := float64(len(historical))
	return fraction / n, mean / n
}
