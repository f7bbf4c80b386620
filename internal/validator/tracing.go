// Tracing instrumentation for the validator.
package validator

import (
	"context"

	"github.com/vinayprograms/agentkit/telemetry"
	"github.com/vinayprograms/planval/internal/plan"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// startPlanSpan starts a span for one plan's validation.
func (v *Validator) startPlanSpan(ctx context.Context, taskName, planName, runID string) (context.Context, trace.Span) {
	tracer := telemetry.GetTracer()
	ctx, span := tracer.StartSpan(ctx, "plan.validate")
	span.SetAttributes(
		attribute.String("plan.task", taskName),
		attribute.String("plan.name", planName),
		attribute.String("plan.run", runID),
	)
	return ctx, span
}

// endPlanSpan ends the plan span with the verdict.
func (v *Validator) endPlanSpan(span trace.Span, res *Result) {
	span.SetAttributes(
		attribute.String("plan.status", string(res.Status)),
		attribute.Int("plan.happenings", res.Happenings),
		attribute.Int("plan.conditions", len(res.Conditions)),
		attribute.Int("plan.violations", len(res.Violations)),
	)
	if res.HasValue {
		span.SetAttributes(attribute.Float64("plan.value", res.Value))
	}
	if res.Err != nil {
		span.RecordError(res.Err)
	}
	span.End()
}

// startHappeningSpan starts a span for one happening.
func (v *Validator) startHappeningSpan(ctx context.Context, h *plan.Happening) (context.Context, trace.Span) {
	tracer := telemetry.GetTracer()
	ctx, span := tracer.StartSpan(ctx, "happening")
	span.SetAttributes(
		attribute.Float64("happening.time", h.Time()),
		attribute.Int("happening.events", len(h.Events())),
	)
	if tracer.Debug() {
		names := make([]string, 0, len(h.Events()))
		for _, e := range h.Events() {
			names = append(names, e.String())
		}
		span.SetAttributes(attribute.StringSlice("happening.actions", names))
	}
	return ctx, span
}

// endHappeningSpan ends the happening span.
func (v *Validator) endHappeningSpan(span trace.Span, ok bool, err error) {
	span.SetAttributes(attribute.Bool("happening.ok", ok))
	if err != nil {
		span.RecordError(err)
	}
	span.End()
}
