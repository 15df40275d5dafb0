package pii

import (
	"encoding/json"
	"log/slog"

	"github.com/V4T54L/telemetry-sink/internal/domain"
)

// AnonymousPlaceholder replaces user and buddy identifiers in forwarded data.
const AnonymousPlaceholder = "anonymous"

var anonymousID = json.RawMessage(`"` + AnonymousPlaceholder + `"`)

// Rules configures what the Anonymizer removes and masks.
type Rules struct {
	// DroppedEvents maps an eid to the edata types whose events are removed.
	DroppedEvents map[string][]string
	// DroppedCDataTypes lists cdata element types that are removed.
	DroppedCDataTypes []string
	// MaskedCDataTypes lists cdata element types whose id is replaced.
	MaskedCDataTypes []string
}

// DefaultRules drops login calls and school identifiers and masks buddy users.
func DefaultRules() Rules {
	return Rules{
		DroppedEvents:     map[string][]string{"LOG": {"api_login_call"}},
		DroppedCDataTypes: []string{"school_name", "class_studying_id", "udise_code"},
		MaskedCDataTypes:  []string{"Buddy User"},
	}
}

// Anonymizer produces redacted copies of envelopes for external forwarding.
type Anonymizer struct {
	droppedEvents map[string]map[string]struct{}
	droppedCData  map[string]struct{} // Use a map for O(1) lookups
	maskedCData   map[string]struct{}
	logger        *slog.Logger
}

// NewAnonymizer creates a new Anonymizer from rules.
func NewAnonymizer(rules Rules, logger *slog.Logger) *Anonymizer {
	dropped := make(map[string]map[string]struct{}, len(rules.DroppedEvents))
	for eid, types := range rules.DroppedEvents {
		dropped[eid] = toSet(types)
	}
	return &Anonymizer{
		droppedEvents: dropped,
		droppedCData:  toSet(rules.DroppedCDataTypes),
		maskedCData:   toSet(rules.MaskedCDataTypes),
		logger:        logger.With("component", "anonymizer"),
	}
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

// Anonymize returns a deep copy of env with login events removed, user ids
// replaced, school identifiers stripped from cdata and buddy ids masked.
// All other envelope fields pass through. env is not modified. Applying
// Anonymize to its own output returns an equal envelope.
func (a *Anonymizer) Anonymize(env *domain.Envelope) *domain.Envelope {
	out := env.Clone()
	events, err := out.ResolveEvents()
	if err != nil {
		return out
	}

	kept := make([]domain.Event, 0, len(events))
	for _, ev := range events {
		if a.isDropped(ev) {
			continue
		}
		a.anonymizeContext(ev.Context)
		kept = append(kept, ev)
	}

	if dropped := len(events) - len(kept); dropped > 0 {
		a.logger.Debug("dropped events from anonymized payload", "dropped", dropped, "mid", env.MID)
	}
	return out.WithEvents(kept)
}

func (a *Anonymizer) isDropped(ev domain.Event) bool {
	types, ok := a.droppedEvents[ev.EID]
	if !ok {
		return false
	}
	_, ok = types[ev.EDataType()]
	return ok
}

// anonymizeContext mutates ctx in place; it must be a copy.
func (a *Anonymizer) anonymizeContext(ctx *domain.EventContext) {
	if ctx == nil {
		return
	}
	ctx.UID = append(json.RawMessage(nil), anonymousID...)

	if ctx.CData == nil {
		return
	}
	cdata := ctx.CData[:0]
	for _, cd := range ctx.CData {
		if _, drop := a.droppedCData[cd.TypeName()]; drop {
			continue
		}
		if _, mask := a.maskedCData[cd.TypeName()]; mask {
			cd.ID = append(json.RawMessage(nil), anonymousID...)
		}
		cdata = append(cdata, cd)
	}
	ctx.CData = cdata
}
