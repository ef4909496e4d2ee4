package models

type FraudVerdict string

const (
	VerdictAccept FraudVerdict = "accept"
	VerdictFlag   FraudVerdict = "flag"
	VerdictReject FraudVerdict = "reject"
)

// RiskSignals are the externally collected inputs to the fraud layers, one
// suspicion score in [0,100] per layer (higher is more suspicious).
type RiskSignals struct {
	VoiceAuthenticity  float64 `json:"voice_authenticity"`
	DeviceFingerprint  float64 `json:"device_fingerprint"`
	GeographicPattern  float64 `json:"geographic_pattern"`
	ContentDuplication float64 `json:"content_duplication"`
	TemporalPattern    float64 `json:"temporal_pattern"`
	ContextAlignment   float64 `json:"context_alignment"`
}

// RiskAssessment is the aggregated fraud result stored on the session.
type RiskAssessment struct {
	Layers       RiskSignals  `json:"layers"`
	WeightedMean float64      `json:"weighted_mean"`
	Verdict      FraudVerdict `json:"verdict"`

	// TriggeredLayer names the layer that breached its hard ceiling, when
	// that is what forced the reject.
	TriggeredLayer string `json:"triggered_layer,omitempty"`
}
