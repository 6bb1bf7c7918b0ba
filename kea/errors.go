package kea

import "fmt"

// TransportError is a network or HTTP level failure reaching the control
// agent.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("failed to communicate with kea control agent: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError is a response that does not match the expected result
// envelope shape.
type ProtocolError struct {
	Reason string
	Body   []byte
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("malformed control agent response: %s", e.Reason)
}

// CommandError is a domain failure reported by the backend for a command it
// does implement. Text carries the backend's message verbatim.
type CommandError struct {
	Command string
	Code    int
	Text    string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("kea command %s failed: %s", e.Command, e.Text)
}

// CapabilityError means no tier of a tiered operation succeeded. Backend
// names the configured lease storage backend, best effort.
type CapabilityError struct {
	Capability string
	Backend    string
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf(
		"kea commands for %s are not available (lease backend %q); enable the %s hook library in the kea configuration",
		e.Capability, e.Backend, e.Capability)
}

// ConflictError is a conflict policy rejection. Existing carries the
// reservation that blocked the request so a caller can offer a forced
// overwrite without another round trip.
type ConflictError struct {
	Reason   string
	Existing *Reservation
}

func (e *ConflictError) Error() string { return e.Reason }

// NotFoundError is a delete that targeted a nonexistent record.
type NotFoundError struct {
	Resource string
	Key      string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.Key)
}
