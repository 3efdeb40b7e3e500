// Package policy turns a risk analysis into an actionable decision. The
// engine is pure: no I/O, no clock, no randomness. Same analysis in, same
// decision out.
package policy

import (
	"fmt"
	"strings"

	"github.com/devchilll/scope/internal/iam"
	"github.com/devchilll/scope/internal/risk"
)

// Action is what the pipeline should do with a request.
type Action string

const (
	ActionApprove  Action = "approve"
	ActionReject   Action = "reject"
	ActionRewrite  Action = "rewrite"
	ActionEscalate Action = "escalate"
)

// Decision is the engine's verdict for one analysed request.
type Decision struct {
	Action    Action            `json:"action"`
	Params    map[string]string `json:"params,omitempty"`
	Reasoning string            `json:"reasoning"`
}

// Thresholds are the tunable decision boundaries. They arrive from config;
// decision sites never carry literals.
type Thresholds struct {
	ConfidenceFloor float64 `yaml:"confidence_floor"`
	RejectFloor     float64 `yaml:"reject_floor"`
	ApproveCeiling  float64 `yaml:"approve_ceiling"`
	RewriteLow      float64 `yaml:"rewrite_low"`
}

// DefaultThresholds returns the shipped decision boundaries.
func DefaultThresholds() Thresholds {
	return Thresholds{
		ConfidenceFloor: 0.7,
		RejectFloor:     0.3,
		ApproveCeiling:  0.8,
		RewriteLow:      0.6,
	}
}

// Validate rejects threshold sets that cannot order the decision bands.
func (t Thresholds) Validate() error {
	for name, v := range map[string]float64{
		"confidence_floor": t.ConfidenceFloor,
		"reject_floor":     t.RejectFloor,
		"approve_ceiling":  t.ApproveCeiling,
		"rewrite_low":      t.RewriteLow,
	} {
		if v != v || v < 0 || v > 1 {
			return fmt.Errorf("threshold %s out of range: %v", name, v)
		}
	}
	if t.RejectFloor >= t.RewriteLow {
		return fmt.Errorf("reject_floor %.2f must be below rewrite_low %.2f", t.RejectFloor, t.RewriteLow)
	}
	if t.RewriteLow >= t.ApproveCeiling {
		return fmt.Errorf("rewrite_low %.2f must be below approve_ceiling %.2f", t.RewriteLow, t.ApproveCeiling)
	}
	return nil
}

// Engine applies thresholds to analyses.
type Engine struct {
	thresholds Thresholds
}

// NewEngine builds an engine. Invalid thresholds are replaced by the
// defaults; the error tells the caller that happened.
func NewEngine(t Thresholds) (*Engine, error) {
	if err := t.Validate(); err != nil {
		return &Engine{thresholds: DefaultThresholds()}, fmt.Errorf("thresholds rejected, using defaults: %w", err)
	}
	return &Engine{thresholds: t}, nil
}

// Thresholds returns the engine's active boundaries.
func (e *Engine) Thresholds() Thresholds {
	return e.thresholds
}

// Decide maps an analysis to a decision. Rules apply in priority order and
// the first match wins:
//
//  1. malformed analysis: escalate (fail closed)
//  2. confidence below floor: escalate
//  3. safety below reject floor: reject
//  4. both scores at or above the approve ceiling: approve
//  5. safety in the rewrite band with phrasing-only concerns: rewrite
//  6. anything else: escalate
//
// The original text is needed so the rewrite branch can produce the
// softened utterance it promises.
func (e *Engine) Decide(a risk.Analysis, principal iam.Principal, text string) Decision {
	t := e.thresholds

	if !a.Valid() {
		return Decision{
			Action: ActionEscalate,
			Reasoning: fmt.Sprintf(
				"internal error: analysis scores outside [0,1] (safety=%v compliance=%v confidence=%v), escalating for human review",
				a.SafetyScore, a.ComplianceScore, a.Confidence),
		}
	}

	if a.Confidence < t.ConfidenceFloor {
		return Decision{
			Action: ActionEscalate,
			Reasoning: fmt.Sprintf("scorer confidence %.2f below %.2f, routing to human review: %s",
				a.Confidence, t.ConfidenceFloor, a.Analysis),
		}
	}

	if a.SafetyScore < t.RejectFloor {
		return Decision{
			Action: ActionReject,
			Reasoning: fmt.Sprintf("safety score %.2f below %.2f: %s",
				a.SafetyScore, t.RejectFloor, a.Analysis),
		}
	}

	if a.SafetyScore >= t.ApproveCeiling && a.ComplianceScore >= t.ApproveCeiling {
		return Decision{
			Action: ActionApprove,
			Reasoning: fmt.Sprintf("safety %.2f and compliance %.2f at or above %.2f",
				a.SafetyScore, a.ComplianceScore, t.ApproveCeiling),
		}
	}

	if a.SafetyScore >= t.RewriteLow && a.SafetyScore < t.ApproveCeiling && phrasingOnly(a) {
		return Decision{
			Action: ActionRewrite,
			Params: map[string]string{"rewritten_text": softenText(text)},
			Reasoning: fmt.Sprintf("safety %.2f in rewrite band with phrasing-level concerns only: %s",
				a.SafetyScore, strings.Join(a.RiskFactors, ", ")),
		}
	}

	return Decision{
		Action: ActionEscalate,
		Reasoning: fmt.Sprintf("scores outside automatic bands (safety=%.2f compliance=%.2f), routing to human review: %s",
			a.SafetyScore, a.ComplianceScore, a.Analysis),
	}
}

// phrasingOnly reports whether every risk factor is a phrasing concern and
// no rules were violated. A single structural factor disqualifies rewrite.
func phrasingOnly(a risk.Analysis) bool {
	if len(a.ViolatedRules) > 0 || len(a.RiskFactors) == 0 {
		return false
	}
	for _, f := range a.RiskFactors {
		if !strings.HasPrefix(f, "phrasing/") {
			return false
		}
	}
	return true
}

// softenText strips the pressure and secrecy phrasing that pulled the
// utterance into the rewrite band, leaving the underlying request intact.
var softenReplacements = []string{
	"urgent", "",
	"immediately", "",
	"right now", "",
	"don't tell anyone", "",
	"don't tell", "",
	"do not tell", "",
	"between us", "",
	"as an exception", "",
	"just this once", "",
}

func softenText(text string) string {
	r := strings.NewReplacer(softenReplacements...)
	out := strings.Join(strings.Fields(r.Replace(text)), " ")
	if out == "" {
		// Degenerate input that was nothing but pressure phrasing still
		// needs a non-empty rewrite for the pipeline to act on.
		out = "Please clarify your request."
	}
	return out
}
