package otelhelper

import (
	"github.com/dukex/followup/pkg/models"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SetError marks span as failed and records err with the optional attributes.
func SetError(span trace.Span, err error, attrs ...attribute.KeyValue) {
	span.RecordError(err, trace.WithAttributes(attrs...))
	span.SetStatus(codes.Error, err.Error())
}

// AssignmentAttributes identifies an assignment on a span.
func AssignmentAttributes(assignment *models.SequenceAssignment) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AssignmentIDKey, assignment.ID),
		attribute.String(SequenceIDKey, assignment.SequenceID),
		attribute.String(LeadIDKey, assignment.LeadID),
		attribute.Int(CurrentStepOrderKey, assignment.CurrentStepOrder),
	}
}

// StepAttributes identifies the step an execution fired.
func StepAttributes(step *models.SequenceStep) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(StepIDKey, step.ID),
		attribute.Int(StepOrderKey, step.Order),
		attribute.String(TriggerTagKey, step.TriggerTag),
	}
}
