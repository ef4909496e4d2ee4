// Package fraud aggregates the six risk layers into a single verdict. The
// layer signals themselves are collected by external collaborators; only the
// threshold and aggregation logic lives here, so it stays deterministic and
// testable without any external service.
package fraud

import (
	"math"

	"github.com/mlindqvist/feedback-platform/session-engine/internal/models"
)

// Layer names, in aggregation order. The order fixes which layer gets
// reported when several breach their ceiling at once.
const (
	LayerVoiceAuthenticity  = "voice_authenticity"
	LayerDeviceFingerprint  = "device_fingerprint"
	LayerGeographicPattern  = "geographic_pattern"
	LayerContentDuplication = "content_duplication"
	LayerTemporalPattern    = "temporal_pattern"
	LayerContextAlignment   = "context_alignment"
)

var layerOrder = [6]string{
	LayerVoiceAuthenticity,
	LayerDeviceFingerprint,
	LayerGeographicPattern,
	LayerContentDuplication,
	LayerTemporalPattern,
	LayerContextAlignment,
}

// Config holds the aggregation thresholds. Both comparisons are strict:
// a layer above 85 rejects outright; weighted mean above 70 rejects; mean
// in (40,70] flags.
type Config struct {
	HardCeiling   float64
	LayerCeilings map[string]float64 // per-layer overrides of HardCeiling
	RejectMean    float64
	FlagMean      float64
	Weights       [6]float64
}

func DefaultConfig() Config {
	return Config{
		HardCeiling: 85,
		RejectMean:  70,
		FlagMean:    40,
		Weights:     [6]float64{1, 1, 1, 1, 1, 1},
	}
}

type Assessor struct {
	cfg Config
}

func NewAssessor(cfg Config) *Assessor {
	return &Assessor{cfg: cfg}
}

// Assess aggregates a signal snapshot into a verdict. Pure and deterministic
// for fixed inputs.
func (a *Assessor) Assess(signals *models.RiskSignals) *models.RiskAssessment {
	scores := [6]float64{
		clamp(signals.VoiceAuthenticity),
		clamp(signals.DeviceFingerprint),
		clamp(signals.GeographicPattern),
		clamp(signals.ContentDuplication),
		clamp(signals.TemporalPattern),
		clamp(signals.ContextAlignment),
	}

	assessment := &models.RiskAssessment{
		Layers: models.RiskSignals{
			VoiceAuthenticity:  scores[0],
			DeviceFingerprint:  scores[1],
			GeographicPattern:  scores[2],
			ContentDuplication: scores[3],
			TemporalPattern:    scores[4],
			ContextAlignment:   scores[5],
		},
		WeightedMean: a.weightedMean(scores),
	}

	for i, name := range layerOrder {
		if scores[i] > a.ceiling(name) {
			assessment.Verdict = models.VerdictReject
			assessment.TriggeredLayer = name
			return assessment
		}
	}

	switch {
	case assessment.WeightedMean > a.cfg.RejectMean:
		assessment.Verdict = models.VerdictReject
	case assessment.WeightedMean > a.cfg.FlagMean:
		assessment.Verdict = models.VerdictFlag
	default:
		assessment.Verdict = models.VerdictAccept
	}
	return assessment
}

func (a *Assessor) ceiling(layer string) float64 {
	if c, ok := a.cfg.LayerCeilings[layer]; ok {
		return c
	}
	return a.cfg.HardCeiling
}

func (a *Assessor) weightedMean(scores [6]float64) float64 {
	var sum, weightSum float64
	for i, s := range scores {
		sum += s * a.cfg.Weights[i]
		weightSum += a.cfg.Weights[i]
	}
	if weightSum == 0 {
		return 0
	}
	return math.Round(sum/weightSum*100) / 100
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
