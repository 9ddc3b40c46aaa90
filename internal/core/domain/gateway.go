package domain

type GatewayAction string

const (
	ActionPass  GatewayAction = "pass"
	ActionBlock GatewayAction = "block"
)

const (
	ReasonEmptyQuery                = "Empty query"
	ReasonIrrelevantQuery           = "Irrelevant query"
	ReasonClassificationUnavailable = "Classification unavailable"
	ReasonLowConfidence             = "Low confidence"
	ReasonCleanSimplified           = "Clean + simplified"
	ReasonClean                     = "Clean"
)

// GatewayDecision is produced once per query and never mutated.
type GatewayDecision struct {
	Action      GatewayAction `json:"action"`
	CleanedText string        `json:"cleaned_text"`
	Reason      string        `json:"reason"`
}

func (d GatewayDecision) Blocked() bool {
	return d.Action != ActionPass
}

type LabelScore struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

type GatewayPolicy struct {
	Labels        []string `json:"labels" yaml:"labels"`
	BlockLabels   []string `json:"block_labels" yaml:"block_labels"`
	MinConfidence float64  `json:"min_confidence" yaml:"min_confidence"`
}

func DefaultGatewayPolicy() GatewayPolicy {
	return GatewayPolicy{
		Labels:        []string{"car query", "irrelevant", "other"},
		BlockLabels:   []string{"irrelevant"},
		MinConfidence: 0,
	}
}
