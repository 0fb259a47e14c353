package relay

import (
	"fmt"

	"github.com/goccy/go-json"
)

// EnvelopeType is the constant Type field of every envelope.
const EnvelopeType = "park"

// NameValuePair is one entry of the data array built from a JSON object payload.
type NameValuePair struct {
	Name  string `json:"name"`
	Value Value  `json:"value"`
}

// Data is the envelope payload: either the pairs built from a JSON object,
// or the raw payload value carried through unchanged.
type Data struct {
	Pairs []NameValuePair
	Raw   *Value
}

// IsPairs reports whether the data came from a JSON object payload.
func (d Data) IsPairs() bool {
	return d.Raw == nil
}

// MarshalJSON encodes pairs as an array of {"name","value"} objects and raw
// values as themselves.
func (d Data) MarshalJSON() ([]byte, error) {
	if d.Raw != nil {
		return d.Raw.MarshalJSON()
	}
	pairs := d.Pairs
	if pairs == nil {
		pairs = []NameValuePair{}
	}
	return json.MarshalWithOption(pairs, json.DisableHTMLEscape())
}

// Envelope is the message published to the forward topic.
type Envelope struct {
	Data      Data   `json:"data"`
	SN        string `json:"SN"`
	Type      string `json:"Type"`
	Timestamp int64  `json:"flexem_timestamp"`

	deviceID string
}

// DeviceID returns the id of the device the envelope was built for.
func (e *Envelope) DeviceID() string {
	return e.deviceID
}

// Marshal encodes the envelope as UTF-8 JSON without HTML escaping.
func (e *Envelope) Marshal() ([]byte, error) {
	b, err := json.MarshalWithOption(e, json.DisableHTMLEscape())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncodeFailed, err)
	}
	return b, nil
}
