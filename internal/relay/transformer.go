package relay

import (
	"bytes"
	"strings"
	"unicode/utf8"
)

// Transformer turns raw status payloads into envelopes.
//
// Apart from sampling its clock, Transform has no side effects and cannot
// fail: anything that is not usable JSON is forwarded as text.
type Transformer struct {
	clock       *Clock
	wrapScalars bool
}

// TransformerOption configures a Transformer.
type TransformerOption func(*Transformer)

// WithClock sets the timestamp source.
func WithClock(c *Clock) TransformerOption {
	return func(t *Transformer) { t.clock = c }
}

// WithWrapScalars makes non-array data travel as a one-element array.
// Falsy payloads such as 0, false or null are wrapped like any other value.
func WithWrapScalars(wrap bool) TransformerOption {
	return func(t *Transformer) { t.wrapScalars = wrap }
}

// NewTransformer creates a Transformer using the system clock unless
// WithClock is given.
func NewTransformer(opts ...TransformerOption) *Transformer {
	t := &Transformer{}
	for _, opt := range opts {
		opt(t)
	}
	if t.clock == nil {
		t.clock = NewClock(nil)
	}
	return t
}

// Transform builds the envelope for one payload from deviceID.
//
// It reports skip=true, and returns no envelope, when the payload is empty
// or whitespace after decoding, or is a JSON object with no keys. The
// timestamp is sampled only for envelopes that are built.
func (t *Transformer) Transform(payload []byte, deviceID string) (env *Envelope, skip bool) {
	text := decodeText(payload)
	if text == "" {
		return nil, true
	}

	var data Data
	parsed, err := ParseJSON([]byte(text))
	switch {
	case err != nil:
		raw := String(text)
		data.Raw = &raw
	case parsed.Kind() == KindObject:
		if len(parsed.Members()) == 0 {
			return nil, true
		}
		data.Pairs = pairsFromMembers(parsed.Members())
	default:
		data.Raw = &parsed
	}

	if t.wrapScalars && data.Raw != nil && data.Raw.Kind() != KindArray {
		wrapped := Array(*data.Raw)
		data.Raw = &wrapped
	}

	return &Envelope{
		Data:      data,
		SN:        SerialNumber(deviceID),
		Type:      EnvelopeType,
		Timestamp: t.clock.Millis(),
		deviceID:  deviceID,
	}, false
}

// decodeText returns the payload as trimmed UTF-8 text. Invalid byte
// sequences become U+FFFD.
func decodeText(payload []byte) string {
	trimmed := bytes.TrimSpace(payload)
	if utf8.Valid(trimmed) {
		return string(trimmed)
	}
	return strings.TrimSpace(strings.ToValidUTF8(string(trimmed), "\uFFFD"))
}

// pairsFromMembers converts object members to pairs in source order.
// A repeated key keeps its first position and takes its last value.
func pairsFromMembers(members []Member) []NameValuePair {
	pairs := make([]NameValuePair, 0, len(members))
	index := make(map[string]int, len(members))
	for _, m := range members {
		if i, seen := index[m.Name]; seen {
			pairs[i].Value = m.Value
			continue
		}
		index[m.Name] = len(pairs)
		pairs = append(pairs, NameValuePair{Name: m.Name, Value: m.Value})
	}
	return pairs
}
