// Package pipeline runs one user utterance through scoring, policy, and
// the action the decision demands, auditing every stage. One request is one
// synchronous pass; concurrency safety comes from the stores underneath.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/devchilll/scope/internal/audit"
	"github.com/devchilll/scope/internal/escalation"
	"github.com/devchilll/scope/internal/iam"
	"github.com/devchilll/scope/internal/metrics"
	"github.com/devchilll/scope/internal/policy"
	"github.com/devchilll/scope/internal/risk"
	"github.com/devchilll/scope/internal/telemetry"
)

// Result is what one pass through the pipeline produced.
type Result struct {
	Action        policy.Action `json:"action"`
	Reasoning     string        `json:"reasoning"`
	Analysis      risk.Analysis `json:"analysis"`
	ProcessedText string        `json:"processed_text,omitempty"`
	TicketID      string        `json:"ticket_id,omitempty"`
	Reply         string        `json:"reply"`
}

// Pipeline wires the scorer, engine, ledger, and trail into the request
// path. All collaborators are injected; the pipeline owns none of them.
type Pipeline struct {
	scorer       risk.Scorer
	engine       *policy.Engine
	ledger       *escalation.Store
	trail        *audit.Store
	metrics      *metrics.Metrics
	logger       *slog.Logger
	scoreTimeout time.Duration
	tracer       trace.Tracer
}

// New builds a pipeline. scoreTimeout <= 0 defaults to 10 seconds.
func New(scorer risk.Scorer, engine *policy.Engine, ledger *escalation.Store,
	trail *audit.Store, m *metrics.Metrics, logger *slog.Logger, scoreTimeout time.Duration) *Pipeline {
	if scoreTimeout <= 0 {
		scoreTimeout = 10 * time.Second
	}
	return &Pipeline{
		scorer:       scorer,
		engine:       engine,
		ledger:       ledger,
		trail:        trail,
		metrics:      m,
		logger:       logger,
		scoreTimeout: scoreTimeout,
		tracer:       telemetry.Tracer("scope/pipeline"),
	}
}

// Handle governs one utterance for one principal.
func (p *Pipeline) Handle(ctx context.Context, principal iam.Principal, text string) Result {
	ctx, span := p.tracer.Start(ctx, "pipeline.handle",
		trace.WithAttributes(
			attribute.String("principal.id", principal.ID),
			attribute.String("principal.role", string(principal.Role)),
		))
	defer span.End()

	p.trail.Record(audit.Event{
		EventType: audit.EventUserQuery,
		UserID:    principal.ID,
		Action:    "query",
		Success:   true,
		Details:   map[string]string{"length": fmt.Sprint(len(text))},
	})

	// 1. Score, bounded by the scorer timeout. Failure or timeout degrades
	//    to the unsafe verdict; it never skips the check.
	analysis := p.score(ctx, principal, text)

	// 2. Decide. The engine is pure; everything observable about the
	//    decision happens here in the caller.
	decision := p.engine.Decide(analysis, principal, text)
	span.SetAttributes(attribute.String("decision.action", string(decision.Action)))
	p.metrics.Decision(string(decision.Action))

	p.trail.Record(audit.Event{
		EventType: audit.EventDecision,
		UserID:    principal.ID,
		Action:    string(decision.Action),
		Success:   true,
		Details: map[string]string{
			"safety":     fmt.Sprintf("%.2f", analysis.SafetyScore),
			"compliance": fmt.Sprintf("%.2f", analysis.ComplianceScore),
			"confidence": fmt.Sprintf("%.2f", analysis.Confidence),
			"reasoning":  decision.Reasoning,
		},
	})

	// 3. Act on the decision.
	result := Result{
		Action:    decision.Action,
		Reasoning: decision.Reasoning,
		Analysis:  analysis,
	}

	switch decision.Action {
	case policy.ActionApprove:
		result.ProcessedText = text
		result.Reply = "Your request has been approved."

	case policy.ActionRewrite:
		result.ProcessedText = decision.Params["rewritten_text"]
		result.Reply = fmt.Sprintf("I've adjusted your request before processing it: %q", result.ProcessedText)

	case policy.ActionReject:
		result.Reply = "I can't help with that request."
		p.trail.Record(audit.Event{
			EventType: audit.EventSafetyBlock,
			UserID:    principal.ID,
			Action:    "reject",
			Success:   true,
			Details:   map[string]string{"reasoning": decision.Reasoning},
		})

	case policy.ActionEscalate:
		result.TicketID, result.Reply = p.escalate(principal, text, decision, analysis)
	}

	p.logger.Info("request governed",
		"principal", principal.ID,
		"role", principal.Role,
		"action", decision.Action,
		"ticket", result.TicketID)

	return result
}

func (p *Pipeline) score(ctx context.Context, principal iam.Principal, text string) risk.Analysis {
	ctx, span := p.tracer.Start(ctx, "pipeline.score")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, p.scoreTimeout)
	defer cancel()

	analysis, err := p.scorer.Score(ctx, text, principal)
	if err != nil {
		p.metrics.ScorerFailure()
		p.logger.Warn("scorer failed, degrading to unsafe", "principal", principal.ID, "error", err)
		return risk.Unsafe(fmt.Sprintf("risk scoring unavailable: %v", err))
	}
	return analysis
}

// escalate writes the ticket and builds the user reply. A ledger failure
// surfaces as a contact-support message; the conversation never crashes on
// a full queue.
func (p *Pipeline) escalate(principal iam.Principal, text string, decision policy.Decision, analysis risk.Analysis) (string, string) {
	ticketID, err := p.ledger.Create(escalation.Draft{
		UserID:         principal.ID,
		InputText:      text,
		AgentReasoning: decision.Reasoning,
		Confidence:     analysis.Confidence,
	})
	if err != nil {
		p.logger.Error("escalation write failed", "principal", principal.ID, "error", err)
		p.trail.Record(audit.Event{
			EventType: audit.EventEscalationCreated,
			UserID:    principal.ID,
			Action:    "escalate",
			Success:   false,
			Error:     err.Error(),
		})
		return "", "I couldn't record your request for review right now. Please contact support."
	}

	p.trail.Record(audit.Event{
		EventType: audit.EventEscalationCreated,
		UserID:    principal.ID,
		Action:    "escalate",
		Success:   true,
		Details:   map[string]string{"ticket": ticketID},
	})
	return ticketID, fmt.Sprintf(
		"Your request has been sent for human review. Reference ticket %s.", ticketID)
}
