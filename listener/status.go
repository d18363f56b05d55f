package listener

import (
	"fmt"

	"github.com/acarl005/stripansi"
	"github.com/ethereum-optimism/infra/op-recorder/engine"
	"github.com/ethereum-optimism/infra/op-recorder/metrics"
	"github.com/ethereum-optimism/infra/op-recorder/types"
	"github.com/pkg/errors"
)

// StatusClassifier maps the error a failed test raised onto a report status.
// Returning false means the error could not be classified.
type StatusClassifier func(err error) (types.Status, bool)

// DefaultClassifier reports assertion-style failures as failed and everything else
// as broken.
func DefaultClassifier(err error) (types.Status, bool) {
	if err == nil {
		return "", false
	}
	if engine.IsAssertionFailure(err) {
		return types.StatusFailed, true
	}
	return types.StatusBroken, true
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

// failureStatus classifies err, degrading to broken when the classifier gives up
// or panics.
func (l *Listener) failureStatus(err error) (status types.Status) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Warn("Status classifier panicked, reporting broken", "panic", r)
			metrics.RecordError("classifier_panic")
			status = types.StatusBroken
		}
	}()
	status, ok := l.classifier(err)
	if !ok || !status.IsValid() {
		return types.StatusBroken
	}
	return status
}

// statusDetails extracts message and trace from err; nil when there is no error.
func statusDetails(err error) (details *types.StatusDetails) {
	if err == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			details = &types.StatusDetails{Message: fmt.Sprintf("%T", err)}
		}
	}()

	message := stripansi.Strip(err.Error())
	trace := message
	var st stackTracer
	if errors.As(err, &st) {
		trace = stripansi.Strip(fmt.Sprintf("%+v", st))
	}
	return &types.StatusDetails{Message: message, Trace: trace}
}

// setStatus records the terminal status, keeping the flaky/muted markers set at start.
func setStatus(status types.Status, details *types.StatusDetails) func(*types.TestResult) {
	return func(r *types.TestResult) {
		r.Status = status
		if details == nil {
			return
		}
		if r.StatusDetails == nil {
			r.StatusDetails = &types.StatusDetails{}
		}
		r.StatusDetails.Message = details.Message
		r.StatusDetails.Trace = details.Trace
	}
}
