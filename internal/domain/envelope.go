package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ParseEnvelope turns a host-supplied message into an Envelope. Text and
// byte messages are decoded as one JSON document; structured values are
// re-encoded first. Text that is not JSON is a *ParseError; a JSON document
// whose members have the wrong shape is a *MalformedEnvelopeError.
func ParseEnvelope(message any) (*Envelope, error) {
	switch m := message.(type) {
	case *Envelope:
		if m == nil {
			return nil, &ParseError{Err: errors.New("nil envelope")}
		}
		return m, nil
	case Envelope:
		return &m, nil
	case string:
		return decodeEnvelope([]byte(m))
	case []byte:
		return decodeEnvelope(m)
	case json.RawMessage:
		return decodeEnvelope(m)
	case nil:
		return nil, &ParseError{Err: errors.New("empty message")}
	default:
		data, err := json.Marshal(m)
		if err != nil {
			return nil, &ParseError{Err: fmt.Errorf("encode structured message: %w", err)}
		}
		return decodeEnvelope(data)
	}
}

func decodeEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, &MalformedEnvelopeError{Reason: typeErr.Error(), EventIndex: -1}
		}
		return nil, &ParseError{Err: err}
	}
	return &env, nil
}

// ResolveEvents returns the envelope's event sequence from whichever shape it
// uses. Top-level events win when both are present. An empty sequence is
// valid; a missing one is a *MalformedEnvelopeError.
func (e *Envelope) ResolveEvents() ([]Event, error) {
	if e.Events != nil {
		return e.Events, nil
	}
	if e.Msg != nil && e.Msg.Events != nil {
		return e.Msg.Events, nil
	}
	return nil, &MalformedEnvelopeError{Reason: "no events at envelope.events or envelope.msg.events", EventIndex: -1}
}

// Validate checks that the events can be shaped into records: every event
// must carry a context.
func (e *Envelope) Validate() ([]Event, error) {
	events, err := e.ResolveEvents()
	if err != nil {
		return nil, err
	}
	for i, ev := range events {
		if ev.Context == nil {
			return nil, &MalformedEnvelopeError{Reason: "event has no context", EventIndex: i}
		}
	}
	return events, nil
}

// WithEvents returns a copy of the envelope whose event sequence is replaced
// by events, in the same shape the envelope arrived in.
func (e *Envelope) WithEvents(events []Event) *Envelope {
	out := *e
	if e.Events == nil && e.Msg != nil && e.Msg.Events != nil {
		msg := *e.Msg
		msg.Events = events
		out.Msg = &msg
		return &out
	}
	out.Events = events
	return &out
}

// Clone returns a deep copy of the envelope.
func (e *Envelope) Clone() *Envelope {
	out := *e
	out.Params = cloneRaw(e.Params)
	out.ETS = cloneRaw(e.ETS)
	out.SyncTS = cloneRaw(e.SyncTS)
	out.Events = cloneEvents(e.Events)
	out.Extra = cloneExtra(e.Extra)
	if e.Msg != nil {
		out.Msg = &EnvelopeMsg{
			Events: cloneEvents(e.Msg.Events),
			Extra:  cloneExtra(e.Msg.Extra),
		}
	}
	return &out
}

// Clone returns a deep copy of the event.
func (e Event) Clone() Event {
	out := e
	out.Extra = cloneExtra(e.Extra)
	if e.EData != nil {
		out.EData = &EventData{Type: cloneRaw(e.EData.Type), Extra: cloneExtra(e.EData.Extra)}
	}
	if e.Context != nil {
		c := *e.Context
		c.Channel = cloneRaw(c.Channel)
		c.UID = cloneRaw(c.UID)
		c.Extra = cloneExtra(c.Extra)
		if c.CData != nil {
			c.CData = make([]ContextData, len(e.Context.CData))
			for i, cd := range e.Context.CData {
				c.CData[i] = ContextData{Type: cloneRaw(cd.Type), ID: cloneRaw(cd.ID), Extra: cloneExtra(cd.Extra)}
			}
		}
		if c.PData != nil {
			c.PData = &ProducerData{PID: cloneRaw(c.PData.PID), Extra: cloneExtra(c.PData.Extra)}
		}
		out.Context = &c
	}
	return out
}

func cloneEvents(events []Event) []Event {
	if events == nil {
		return nil
	}
	out := make([]Event, len(events))
	for i, ev := range events {
		out[i] = ev.Clone()
	}
	return out
}

func cloneExtra(m map[string]json.RawMessage) map[string]json.RawMessage {
	if m == nil {
		return nil
	}
	out := make(map[string]json.RawMessage, len(m))
	for k, v := range m {
		out[k] = cloneRaw(v)
	}
	return out
}

func cloneRaw(r json.RawMessage) json.RawMessage {
	if r == nil {
		return nil
	}
	return append(json.RawMessage(nil), r...)
}
