package eventbus

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	// ErrIndexDesync indicates a slot's stored index no longer matches its
	// position. It is only raised (as a panic) when Settings.Debug is set.
	ErrIndexDesync = errors.New("subscriber index desync")

	// ErrSubscriberFault matches any *SubscriberFault via errors.Is.
	ErrSubscriberFault = errors.New("subscriber fault")

	// ErrAwaiterNotArmed indicates Wait was called before Arm.
	ErrAwaiterNotArmed = errors.New("awaiter not armed")

	// ErrAwaiterCancelled indicates the awaiter was cancelled or its
	// registration was dropped by a reset before an event arrived.
	ErrAwaiterCancelled = errors.New("awaiter cancelled")

	// ErrInvalidFaultPolicy indicates an unknown fault policy name.
	ErrInvalidFaultPolicy = errors.New("invalid fault policy")
)

// SubscriberFault captures a panic raised by a subscriber during dispatch.
// It includes the stack trace for debugging.
type SubscriberFault struct {
	// Bus is the bus that was dispatching, empty for context registries.
	Bus string
	// Subscriber is the display name of the subscriber that panicked.
	Subscriber string
	// EventType is the Go type name of the event being delivered.
	EventType string
	// Value is the value passed to panic().
	Value any
	// Stack is the stack trace at the point of the panic.
	Stack string
}

// Error implements the error interface.
func (f *SubscriberFault) Error() string {
	if f.Bus != "" {
		return fmt.Sprintf("subscriber %s on bus %s panicked handling %s: %v", f.Subscriber, f.Bus, f.EventType, f.Value)
	}
	return fmt.Sprintf("subscriber %s panicked handling %s: %v", f.Subscriber, f.EventType, f.Value)
}

// Unwrap returns the panic value when it is an error.
func (f *SubscriberFault) Unwrap() error {
	if err, ok := f.Value.(error); ok {
		return err
	}
	return nil
}

// Is reports whether target is ErrSubscriberFault.
func (f *SubscriberFault) Is(target error) bool {
	return target == ErrSubscriberFault
}
