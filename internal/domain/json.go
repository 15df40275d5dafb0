package domain

import "encoding/json"

var (
	envelopeKeys     = keySet("id", "ver", "params", "ets", "mid", "syncts", "events", "msg")
	envelopeMsgKeys  = keySet("events")
	eventKeys        = keySet("eid", "edata", "context")
	eventDataKeys    = keySet("type")
	eventContextKeys = keySet("channel", "uid", "cdata", "pdata")
	producerDataKeys = keySet("pid")
	contextDataKeys  = keySet("type", "id")
)

func keySet(keys ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return set
}

// unknownMembers returns the members of the JSON object in data whose keys
// are not in known. It returns nil when there are none.
func unknownMembers(data []byte, known map[string]struct{}) (map[string]json.RawMessage, error) {
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	var extra map[string]json.RawMessage
	for k, v := range all {
		if _, ok := known[k]; ok {
			continue
		}
		if extra == nil {
			extra = make(map[string]json.RawMessage)
		}
		extra[k] = v
	}
	return extra, nil
}

// marshalObject encodes v as a JSON object and merges extra into it. Keys in
// emptyArrays are written as [] when v omitted them. Output keys are sorted.
func marshalObject(v any, extra map[string]json.RawMessage, emptyArrays ...string) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, err
	}
	for k, raw := range extra {
		if _, ok := obj[k]; !ok {
			obj[k] = raw
		}
	}
	for _, k := range emptyArrays {
		if _, ok := obj[k]; !ok {
			obj[k] = json.RawMessage("[]")
		}
	}
	return json.Marshal(obj)
}

func (e *Envelope) UnmarshalJSON(data []byte) error {
	type plain Envelope
	if err := json.Unmarshal(data, (*plain)(e)); err != nil {
		return err
	}
	extra, err := unknownMembers(data, envelopeKeys)
	e.Extra = extra
	return err
}

func (e Envelope) MarshalJSON() ([]byte, error) {
	type plain Envelope
	var empty []string
	if e.Events != nil && len(e.Events) == 0 {
		empty = append(empty, "events")
	}
	return marshalObject(plain(e), e.Extra, empty...)
}

func (m *EnvelopeMsg) UnmarshalJSON(data []byte) error {
	type plain EnvelopeMsg
	if err := json.Unmarshal(data, (*plain)(m)); err != nil {
		return err
	}
	extra, err := unknownMembers(data, envelopeMsgKeys)
	m.Extra = extra
	return err
}

func (m EnvelopeMsg) MarshalJSON() ([]byte, error) {
	type plain EnvelopeMsg
	var empty []string
	if m.Events != nil && len(m.Events) == 0 {
		empty = append(empty, "events")
	}
	return marshalObject(plain(m), m.Extra, empty...)
}

func (e *Event) UnmarshalJSON(data []byte) error {
	type plain Event
	if err := json.Unmarshal(data, (*plain)(e)); err != nil {
		return err
	}
	extra, err := unknownMembers(data, eventKeys)
	e.Extra = extra
	return err
}

func (e Event) MarshalJSON() ([]byte, error) {
	type plain Event
	return marshalObject(plain(e), e.Extra)
}

func (d *EventData) UnmarshalJSON(data []byte) error {
	type plain EventData
	if err := json.Unmarshal(data, (*plain)(d)); err != nil {
		return err
	}
	extra, err := unknownMembers(data, eventDataKeys)
	d.Extra = extra
	return err
}

func (d EventData) MarshalJSON() ([]byte, error) {
	type plain EventData
	return marshalObject(plain(d), d.Extra)
}

func (c *EventContext) UnmarshalJSON(data []byte) error {
	type plain EventContext
	if err := json.Unmarshal(data, (*plain)(c)); err != nil {
		return err
	}
	extra, err := unknownMembers(data, eventContextKeys)
	c.Extra = extra
	return err
}

func (c EventContext) MarshalJSON() ([]byte, error) {
	type plain EventContext
	var empty []string
	if c.CData != nil && len(c.CData) == 0 {
		empty = append(empty, "cdata")
	}
	return marshalObject(plain(c), c.Extra, empty...)
}

func (p *ProducerData) UnmarshalJSON(data []byte) error {
	type plain ProducerData
	if err := json.Unmarshal(data, (*plain)(p)); err != nil {
		return err
	}
	extra, err := unknownMembers(data, producerDataKeys)
	p.Extra = extra
	return err
}

func (p ProducerData) MarshalJSON() ([]byte, error) {
	type plain ProducerData
	return marshalObject(plain(p), p.Extra)
}

func (c *ContextData) UnmarshalJSON(data []byte) error {
	type plain ContextData
	if err := json.Unmarshal(data, (*plain)(c)); err != nil {
		return err
	}
	extra, err := unknownMembers(data, contextDataKeys)
	c.Extra = extra
	return err
}

func (c ContextData) MarshalJSON() ([]byte, error) {
	type plain ContextData
	return marshalObject(plain(c), c.Extra)
}
