// Package executor performs one due step of one assignment: it resolves the
// lead, applies the step's tag through the gateway and advances the assignment.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/followup/pkg/eventbus"
	"github.com/dukex/followup/pkg/events"
	"github.com/dukex/followup/pkg/gateway"
	"github.com/dukex/followup/pkg/leads"
	"github.com/dukex/followup/pkg/models"
	"github.com/dukex/followup/pkg/otelhelper"
	"github.com/dukex/followup/pkg/persistence"
	"github.com/dukex/followup/pkg/tracker"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const DefaultGatewayTimeout = 10 * time.Second

// Outcome classifies what Execute did with an assignment.
type Outcome string

const (
	OutcomeExecuted         Outcome = "executed"
	OutcomeCompleted        Outcome = "completed"
	OutcomeSkippedInactive  Outcome = "skipped_inactive"
	OutcomeNotActive        Outcome = "not_active"
	OutcomeConcurrentUpdate Outcome = "concurrent_update"
	OutcomeLeadNotFound     Outcome = "lead_not_found"
	OutcomeLeadLookupFailed Outcome = "lead_lookup_failed"
	OutcomeGatewayFailed    Outcome = "gateway_failed"
)

// Failed reports whether the outcome left the step unexecuted because of an error.
func (o Outcome) Failed() bool {
	return o == OutcomeLeadNotFound || o == OutcomeLeadLookupFailed || o == OutcomeGatewayFailed
}

// Result describes one Execute call.
type Result struct {
	AssignmentID string
	Outcome      Outcome
	// Step is the step that fired or was attempted.
	Step *models.SequenceStep
	// Assignment is the row after the call.
	Assignment *models.SequenceAssignment
	// Err is the per-assignment failure, if any.
	Err error
}

type Config struct {
	GatewayTimeout time.Duration
	// MaxAttempts removes an assignment after that many consecutive failures; 0 retries forever.
	MaxAttempts int
}

type Executor struct {
	persistence persistence.Persistence
	tracker     *tracker.Tracker
	directory   leads.Directory
	gateway     gateway.Gateway
	publisher   eventbus.EventPublisher
	clock       clockwork.Clock
	tracer      trace.Tracer
	logger      *slog.Logger
	config      Config
}

// New creates an executor. publisher may be nil when no event bus is configured.
func New(
	p persistence.Persistence,
	t *tracker.Tracker,
	directory leads.Directory,
	gw gateway.Gateway,
	publisher eventbus.EventPublisher,
	clock clockwork.Clock,
	logger *slog.Logger,
	config Config,
) *Executor {
	if config.GatewayTimeout <= 0 {
		config.GatewayTimeout = DefaultGatewayTimeout
	}

	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &Executor{
		persistence: p,
		tracker:     t,
		directory:   directory,
		gateway:     gw,
		publisher:   publisher,
		clock:       clock,
		tracer:      otelhelper.Tracer("followup.executor"),
		logger:      logger.With("module", "executor"),
		config:      config,
	}
}

// Execute processes the assignment's next step. The returned error is only
// set for storage failures; step-level failures are reported in Result.Err
// and leave the assignment due for the next scan.
func (e *Executor) Execute(ctx context.Context, assignment *models.SequenceAssignment) (*Result, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "executor.execute", otelhelper.AssignmentAttributes(assignment)...)
	defer span.End()

	result, err := e.execute(ctx, assignment)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	span.SetAttributes(attribute.String(otelhelper.OutcomeKey, string(result.Outcome)))

	if result.Step != nil {
		span.SetAttributes(otelhelper.StepAttributes(result.Step)...)
	}

	if result.Err != nil {
		otelhelper.SetError(span, result.Err)
	}

	return result, nil
}

func (e *Executor) execute(ctx context.Context, assignment *models.SequenceAssignment) (*Result, error) {
	result := &Result{AssignmentID: assignment.ID, Assignment: assignment}

	if !assignment.IsActive() {
		result.Outcome = OutcomeNotActive

		return result, nil
	}

	sequence, err := e.persistence.SequenceRepository().GetByID(ctx, assignment.SequenceID)
	if err != nil && !persistence.IsSequenceNotFound(err) {
		return nil, fmt.Errorf("failed to load sequence %s: %w", assignment.SequenceID, err)
	}

	var step *models.SequenceStep

	if sequence != nil {
		if !sequence.Active {
			e.logger.DebugContext(ctx, "sequence inactive, leaving assignment due",
				"assignment_id", assignment.ID,
				"sequence_id", sequence.ID,
			)

			result.Outcome = OutcomeSkippedInactive

			return result, nil
		}

		step = models.StepAfter(sequence.Steps, assignment.CurrentStepOrder)
	}

	if step == nil {
		return e.advance(ctx, assignment, result)
	}

	result.Step = step

	lead, err := e.directory.GetLead(ctx, assignment.LeadID)
	if err != nil {
		result.Outcome = OutcomeLeadLookupFailed
		if leads.IsLeadNotFound(err) {
			result.Outcome = OutcomeLeadNotFound
		}

		return e.fail(ctx, assignment, result, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, e.config.GatewayTimeout)
	defer cancel()

	err = e.gateway.ApplyTag(callCtx, gateway.TagRequest{
		Lead:         lead,
		Tag:          step.TriggerTag,
		Subject:      step.Subject,
		SequenceID:   assignment.SequenceID,
		AssignmentID: assignment.ID,
		StepOrder:    step.Order,
	})
	if err != nil {
		result.Outcome = OutcomeGatewayFailed

		return e.fail(ctx, assignment, result, newGatewayError(assignment.ID, step.TriggerTag, err))
	}

	return e.advance(ctx, assignment, result)
}

func (e *Executor) advance(ctx context.Context, assignment *models.SequenceAssignment, result *Result) (*Result, error) {
	advanced, err := e.tracker.AdvanceFrom(ctx, assignment, e.clock.Now())
	if err != nil {
		return nil, err
	}

	result.Assignment = advanced.Assignment

	if !advanced.Advanced {
		if result.Step != nil {
			e.logger.WarnContext(ctx, "assignment moved concurrently after tag was applied",
				"assignment_id", assignment.ID,
				"tag", result.Step.TriggerTag,
			)
		}

		result.Outcome = OutcomeConcurrentUpdate

		return result, nil
	}

	result.Outcome = OutcomeExecuted
	if advanced.Completed {
		result.Outcome = OutcomeCompleted
	}

	if advanced.Step != nil {
		result.Step = advanced.Step
		e.publishStepExecuted(ctx, advanced)
	}

	if advanced.Completed {
		e.publish(ctx, advanced.Assignment.ID, events.AssignmentCompleted{
			BaseEvent:     e.baseEvent(events.AssignmentCompletedEvent, advanced.Assignment),
			StepsExecuted: advanced.Assignment.CurrentStepOrder,
			CompletedAt:   *advanced.Assignment.CompletedAt,
		})
	}

	return result, nil
}

func (e *Executor) fail(ctx context.Context, assignment *models.SequenceAssignment, result *Result, cause error) (*Result, error) {
	result.Err = cause

	e.logger.WarnContext(ctx, "step execution failed",
		"assignment_id", assignment.ID,
		"lead_id", assignment.LeadID,
		"step_order", result.Step.Order,
		"outcome", result.Outcome,
		"error", cause,
	)

	if ctx.Err() != nil && errors.Is(cause, ctx.Err()) {
		e.logger.InfoContext(context.WithoutCancel(ctx), "step interrupted by shutdown, failure not recorded",
			"assignment_id", assignment.ID,
			"step_order", result.Step.Order,
		)

		return result, nil
	}

	failure, err := e.tracker.RecordFailure(ctx, assignment, cause, e.config.MaxAttempts)
	if err != nil {
		return nil, fmt.Errorf("failed to record failure: %w", errors.Join(err, cause))
	}

	updated := failure.Assignment
	result.Assignment = updated

	if !failure.Recorded {
		return result, nil
	}

	var gatewayErr *GatewayError

	e.publish(ctx, assignment.ID, events.StepFailed{
		BaseEvent:      e.baseEvent(events.StepFailedEvent, updated),
		StepID:         result.Step.ID,
		StepOrder:      result.Step.Order,
		TriggerTag:     result.Step.TriggerTag,
		Error:          cause.Error(),
		Permanent:      errors.As(cause, &gatewayErr) && gatewayErr.Permanent,
		FailedAttempts: updated.FailedAttempts,
	})

	if updated.Status == models.AssignmentStatusRemoved && updated.RemovalReason == models.RemovalReasonMaxAttemptsReached {
		e.publish(ctx, assignment.ID, events.AssignmentRemoved{
			BaseEvent: e.baseEvent(events.AssignmentRemovedEvent, updated),
			Reason:    updated.RemovalReason,
		})
	}

	return result, nil
}

func (e *Executor) publishStepExecuted(ctx context.Context, advanced *tracker.AdvanceResult) {
	a := advanced.Assignment

	e.publish(ctx, a.ID, events.StepExecuted{
		BaseEvent:  e.baseEvent(events.StepExecutedEvent, a),
		StepID:     advanced.Step.ID,
		StepOrder:  advanced.Step.Order,
		TriggerTag: advanced.Step.TriggerTag,
		ExecutedAt: *a.LastStepExecutedAt,
		NextDueAt:  a.NextStepDueAt,
	})
}

func (e *Executor) baseEvent(eventType events.EventType, a *models.SequenceAssignment) events.BaseEvent {
	base := events.NewBaseEvent(eventType, a.SequenceID, a.ID, a.LeadID)
	base.Timestamp = e.clock.Now().UTC()

	return base
}

func (e *Executor) publish(ctx context.Context, key string, event eventbus.Event) {
	if e.publisher == nil {
		return
	}

	err := e.publisher.Publish(ctx, key, event)
	if err != nil {
		e.logger.ErrorContext(ctx, "failed to publish event", "event_type", event.GetType(), "error", err)
	}
}
