package report

import "fmt"

// MergeConfig controls automatic integration of reviewed changes.
type MergeConfig struct {
	// Threshold is the share of the maximum points required to merge.
	Threshold float64 `yaml:"threshold"`
	Squash    bool    `yaml:"squash"`
	// MessageTemplate is formatted with the submission id.
	MessageTemplate string `yaml:"messageTemplate"`
}

// DefaultMergeConfig merges only fully solved submissions.
func DefaultMergeConfig() MergeConfig {
	return MergeConfig{Threshold: 1.0, Squash: true, MessageTemplate: "Reviewed submission #%d"}
}

// DecisionInput is what the merge decision depends on.
type DecisionInput struct {
	Earned int
	Max    int
	// Ratio is the lateness score ratio of the assignment. Zero means on time.
	Ratio     float64
	Force     bool
	Merged    bool
	Mergeable bool
}

// Decision is the outcome of the merge policy.
type Decision struct {
	Merge  bool
	Reason string
}

// Policy decides whether a reviewed change is merged.
type Policy struct {
	cfg MergeConfig
}

func NewPolicy(cfg MergeConfig) *Policy {
	def := DefaultMergeConfig()
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.MessageTemplate == "" {
		cfg.MessageTemplate = def.MessageTemplate
	}
	return &Policy{cfg: cfg}
}

func (p *Policy) Squash() bool { return p.cfg.Squash }

// Message is the commit message used when merging submission id.
func (p *Policy) Message(id int64) string {
	return fmt.Sprintf(p.cfg.MessageTemplate, id)
}

// Threshold is the merge threshold scaled by the lateness ratio.
func (p *Policy) Threshold(ratio float64) float64 {
	if ratio <= 0 || ratio > 1 {
		ratio = 1
	}
	return p.cfg.Threshold * ratio
}

// Meets reports whether earned reaches the lateness-adjusted threshold.
func (p *Policy) Meets(earned, max int, ratio float64) bool {
	return float64(earned) >= float64(max)*p.Threshold(ratio)
}

// Decide applies the policy. A forced merge still requires a change that
// is open.
func (p *Policy) Decide(in DecisionInput) Decision {
	switch {
	case in.Merged:
		return Decision{Reason: "The change is already merged."}
	case in.Force:
		return Decision{Merge: true, Reason: "Merge was requested by a reviewer."}
	case !p.Meets(in.Earned, in.Max, in.Ratio):
		return Decision{Reason: fmt.Sprintf(
			"At least %s of the points are needed for a merge. Please fix the problems above and push again.",
			percent(p.Threshold(in.Ratio)))}
	case !in.Mergeable:
		return Decision{Reason: "The change conflicts with the course repository. Please rebase it and push again."}
	default:
		return Decision{Merge: true, Reason: "All checks are satisfied, merging."}
	}
}

// Refused replaces a merge decision the host did not carry out.
func Refused(d Decision) Decision {
	if !d.Merge {
		return d
	}
	return Decision{Reason: "The change could not be merged automatically. A teacher will look at it."}
}

func percent(f float64) string {
	return fmt.Sprintf("%.4g%%", f*100)
}
