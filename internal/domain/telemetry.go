package domain

import "encoding/json"

// Envelope is one incoming telemetry submission. Events live either at the
// top level or one level down under "msg"; see ResolveEvents.
type Envelope struct {
	ID     string          `json:"id,omitempty"`
	Ver    string          `json:"ver,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	ETS    json.RawMessage `json:"ets,omitempty"`
	MID    string          `json:"mid,omitempty"`
	SyncTS json.RawMessage `json:"syncts,omitempty"`
	Events []Event         `json:"events,omitempty"`
	Msg    *EnvelopeMsg    `json:"msg,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// EnvelopeMsg is the nested "msg" object of the second envelope shape.
type EnvelopeMsg struct {
	Events []Event `json:"events,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// Event is one telemetry occurrence. Fields the sink does not interpret are
// kept in Extra so the event can be stored and forwarded whole.
type Event struct {
	EID     string        `json:"eid,omitempty"`
	EData   *EventData    `json:"edata,omitempty"`
	Context *EventContext `json:"context,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// EventData is the event payload. Only its type tag is interpreted.
type EventData struct {
	Type json.RawMessage `json:"type,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// EventContext describes who produced an event and where. Channel and UID
// hold whatever JSON value arrived; they are copied, never validated.
type EventContext struct {
	Channel json.RawMessage `json:"channel,omitempty"`
	UID     json.RawMessage `json:"uid,omitempty"`
	CData   []ContextData   `json:"cdata,omitempty"`
	PData   *ProducerData   `json:"pdata,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// ProducerData identifies the producing application.
type ProducerData struct {
	PID json.RawMessage `json:"pid,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// ContextData is one typed correlation element of an event context.
type ContextData struct {
	Type json.RawMessage `json:"type,omitempty"`
	ID   json.RawMessage `json:"id,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// StorageRecord is the persisted unit: one event plus the envelope metadata
// it arrived with. Channel and PID are nil when the event carries none.
type StorageRecord struct {
	APIID   string          `json:"api_id,omitempty"`
	Ver     string          `json:"ver,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	ETS     json.RawMessage `json:"ets,omitempty"`
	Events  Event           `json:"events"`
	Channel json.RawMessage `json:"channel,omitempty"`
	PID     json.RawMessage `json:"pid,omitempty"`
	MID     string          `json:"mid,omitempty"`
	SyncTS  json.RawMessage `json:"syncts,omitempty"`
}

// EDataType returns edata.type when it is a JSON string, or "" otherwise.
func (e Event) EDataType() string {
	if e.EData == nil {
		return ""
	}
	s, _ := StringValue(e.EData.Type)
	return s
}

// TypeName returns the element type when it is a JSON string, or "" otherwise.
func (c ContextData) TypeName() string {
	s, _ := StringValue(c.Type)
	return s
}

// StringValue returns the string held by raw. ok is false when raw is
// absent or not a JSON string.
func StringValue(raw json.RawMessage) (s string, ok bool) {
	if len(raw) == 0 || raw[0] != '"' {
		return "", false
	}
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// String encodes s as a JSON string value.
func String(s string) json.RawMessage {
	raw, _ := json.Marshal(s)
	return raw
}
