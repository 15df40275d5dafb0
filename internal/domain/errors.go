package domain

import "fmt"

// ParseError reports a message that could not be decoded into an Envelope.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse envelope: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// MalformedEnvelopeError reports an envelope whose events cannot be located
// or shaped. EventIndex is -1 when the fault is not tied to one event.
type MalformedEnvelopeError struct {
	Reason     string
	EventIndex int
}

func (e *MalformedEnvelopeError) Error() string {
	if e.EventIndex < 0 {
		return "malformed envelope: " + e.Reason
	}
	return fmt.Sprintf("malformed envelope: event %d: %s", e.EventIndex, e.Reason)
}

// RecordFailure is one failed insert within a batch.
type RecordFailure struct {
	Index int
	Err   error
}

// PartialWriteError reports that at least one record of a batch failed to
// persist. Records that were written are not rolled back.
type PartialWriteError struct {
	Total    int
	Failures []RecordFailure
}

func (e *PartialWriteError) Error() string {
	if len(e.Failures) == 0 {
		return fmt.Sprintf("write batch: 0 of %d records failed", e.Total)
	}
	return fmt.Sprintf("write batch: %d of %d records failed, first (event %d): %v",
		len(e.Failures), e.Total, e.Failures[0].Index, e.Failures[0].Err)
}

func (e *PartialWriteError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f.Err
	}
	return errs
}

// Persisted returns how many records of the batch were written.
func (e *PartialWriteError) Persisted() int {
	return e.Total - len(e.Failures)
}

// ForwardError reports a failed forward: a transport error or a response
// status other than 200/201.
type ForwardError struct {
	StatusCode int
	Err        error
}

func (e *ForwardError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("forward batch: %v", e.Err)
	}
	return fmt.Sprintf("forward batch: unexpected status %d", e.StatusCode)
}

func (e *ForwardError) Unwrap() error { return e.Err }
