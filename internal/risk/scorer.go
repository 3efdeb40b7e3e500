// Package risk scores user utterances before the agent acts on them.
// Scorers are pluggable; the pipeline treats them as oracles and degrades
// to an unsafe verdict when they fail.
package risk

import (
	"context"
	"errors"

	"github.com/devchilll/scope/internal/iam"
)

// ErrScorerUnavailable indicates the scoring backend could not produce an
// analysis at all (timeout, transport failure, malformed response).
var ErrScorerUnavailable = errors.New("risk scorer unavailable")

// Analysis is the normalized risk verdict for one utterance.
// All scores live in [0, 1]; higher is safer/more compliant/more certain.
type Analysis struct {
	SafetyScore     float64  `json:"safety_score"`
	ComplianceScore float64  `json:"compliance_score"`
	Confidence      float64  `json:"confidence"`
	ViolatedRules   []string `json:"violated_rules,omitempty"`
	RiskFactors     []string `json:"risk_factors,omitempty"`
	Analysis        string   `json:"analysis"`
}

// Scorer produces an Analysis for text on behalf of a principal. The
// principal is part of the contract: the same text may score differently
// for different roles, and implementations must never share results across
// principals.
type Scorer interface {
	Score(ctx context.Context, text string, principal iam.Principal) (Analysis, error)
}

// Unsafe returns the degraded all-zeros analysis substituted when scoring
// fails. Zero confidence guarantees downstream policy escalates rather than
// approves.
func Unsafe(reason string) Analysis {
	return Analysis{
		SafetyScore:     0,
		ComplianceScore: 0,
		Confidence:      0,
		RiskFactors:     []string{"scorer_failure"},
		Analysis:        reason,
	}
}

// Valid reports whether every score is a real number inside [0, 1].
func (a Analysis) Valid() bool {
	for _, v := range []float64{a.SafetyScore, a.ComplianceScore, a.Confidence} {
		if v != v || v < 0 || v > 1 {
			return false
		}
	}
	return true
}
