package listener

import (
	"errors"
	"fmt"
)

// ErrInvalidEvent is returned for callbacks missing the entity they describe.
var ErrInvalidEvent = errors.New("invalid engine event")

// PairingError reports a fixture exit that has no matching enter on its worker.
// It means the recorder's own bookkeeping is corrupt and is never recovered.
type PairingError struct {
	Fixture string // qualified name of the fixture method
	Missing string // what could not be found
}

func (e *PairingError) Error() string {
	return fmt.Sprintf("could not find %s for fixture %s", e.Missing, e.Fixture)
}

// IsPairingError checks if the error is or wraps a PairingError
func IsPairingError(err error) bool {
	var pairingErr *PairingError
	return err != nil && errors.As(err, &pairingErr)
}

func invalidEvent(event, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidEvent, event, reason)
}
