package risk

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/garagon/aguara"

	"github.com/devchilll/scope/internal/iam"
	"github.com/devchilll/scope/rules"
)

// HeuristicScorer scores utterances with the Aguara rule engine plus a small
// set of banking-specific patterns. It is the in-process fallback when no
// remote oracle is configured; it never claims more confidence than a rule
// scan can justify.
type HeuristicScorer struct {
	opts   []aguara.Option
	logger *slog.Logger
}

// NewHeuristicScorer builds a scorer over Aguara's built-in rules plus the
// embedded banking rules. If customRulesDir is non-empty, YAML rules from
// that directory are loaded too.
func NewHeuristicScorer(customRulesDir string, logger *slog.Logger) *HeuristicScorer {
	s := &HeuristicScorer{logger: logger}

	if dir, err := rules.ExtractDir(); err != nil {
		logger.Warn("embedded banking rules unavailable", "error", err)
	} else {
		s.opts = append(s.opts, aguara.WithCustomRules(dir))
	}

	if customRulesDir != "" {
		s.opts = append(s.opts, aguara.WithCustomRules(customRulesDir))
	}
	return s
}

// Phrasing-level patterns that make a request sound like an override attempt
// without a structural injection behind it. These lower safety into the
// rewrite band rather than the reject band.
var phrasingPatterns = []struct {
	substr string
	factor string
}{
	{"urgent", "phrasing/pressure_language"},
	{"immediately", "phrasing/pressure_language"},
	{"right now", "phrasing/pressure_language"},
	{"don't tell", "phrasing/secrecy_request"},
	{"do not tell", "phrasing/secrecy_request"},
	{"between us", "phrasing/secrecy_request"},
	{"as an exception", "phrasing/exception_request"},
	{"just this once", "phrasing/exception_request"},
}

// Compliance-sensitive patterns: bulk data access and privileged-surface
// probing score against the compliance axis.
var compliancePatterns = []struct {
	substr string
	rule   string
}{
	{"all customer", "bulk_customer_data"},
	{"every customer", "bulk_customer_data"},
	{"all accounts in the system", "bulk_customer_data"},
	{"social security", "pii_probe"},
	{"card number", "pii_probe"},
	{"bypass", "control_bypass"},
	{"disable the", "control_bypass"},
}

// Score runs the rule scan and folds findings into an Analysis. Aguara
// failures are reported as ErrScorerUnavailable so the caller degrades to
// the unsafe verdict.
func (s *HeuristicScorer) Score(ctx context.Context, text string, principal iam.Principal) (Analysis, error) {
	result, err := aguara.ScanContent(ctx, text, "message.md", s.opts...)
	if err != nil {
		return Analysis{}, fmt.Errorf("%w: aguara scan: %v", ErrScorerUnavailable, err)
	}

	a := Analysis{
		SafetyScore:     0.95,
		ComplianceScore: 0.95,
		Confidence:      0.9,
	}

	for _, f := range result.Findings {
		switch {
		case f.Severity >= aguara.SeverityCritical:
			a.SafetyScore -= 0.45
			a.ViolatedRules = append(a.ViolatedRules, f.RuleID)
			a.RiskFactors = append(a.RiskFactors, "injection/"+f.RuleID)
		case f.Severity >= aguara.SeverityHigh:
			a.SafetyScore -= 0.3
			a.ViolatedRules = append(a.ViolatedRules, f.RuleID)
			a.RiskFactors = append(a.RiskFactors, "injection/"+f.RuleID)
		case f.Severity >= aguara.SeverityMedium:
			a.SafetyScore -= 0.15
			a.RiskFactors = append(a.RiskFactors, "phrasing/"+f.RuleID)
		default:
			a.SafetyScore -= 0.05
			a.RiskFactors = append(a.RiskFactors, "phrasing/"+f.RuleID)
		}
	}

	lower := strings.ToLower(text)
	for _, p := range phrasingPatterns {
		if strings.Contains(lower, p.substr) {
			a.SafetyScore -= 0.12
			a.RiskFactors = append(a.RiskFactors, p.factor)
		}
	}
	for _, p := range compliancePatterns {
		if strings.Contains(lower, p.substr) {
			a.ComplianceScore -= 0.35
			a.ViolatedRules = append(a.ViolatedRules, p.rule)
			a.RiskFactors = append(a.RiskFactors, "compliance/"+p.rule)
		}
	}

	// Staff and above legitimately reference other customers; bulk-data
	// phrasing alone should not sink their compliance score below the
	// escalation band. The escalation still happens, a reviewer decides.
	if principal.Role == iam.RoleStaff || principal.Role == iam.RoleAdmin || principal.Role == iam.RoleSystem {
		if a.ComplianceScore < 0.4 {
			a.ComplianceScore = 0.4
		}
	}

	a.SafetyScore = clamp01(a.SafetyScore)
	a.ComplianceScore = clamp01(a.ComplianceScore)

	switch {
	case len(a.ViolatedRules) > 0:
		a.Analysis = fmt.Sprintf("rule scan matched %d finding(s): %s",
			len(result.Findings), strings.Join(a.ViolatedRules, ", "))
	case len(a.RiskFactors) > 0:
		a.Analysis = "no rule violations, phrasing concerns only"
	default:
		a.Analysis = "no findings"
	}

	s.logger.Debug("heuristic score",
		"principal", principal.ID,
		"role", principal.Role,
		"safety", a.SafetyScore,
		"compliance", a.ComplianceScore,
		"findings", len(result.Findings))

	return a, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
