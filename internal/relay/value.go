package relay

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// Kind identifies the JSON type held by a Value.
type Kind uint8

// JSON value kinds.
const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

// String returns the JSON type name.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Value is an arbitrary JSON value.
//
// Numbers keep their source literal, so 1 stays 1 and 0.07997 stays 0.07997
// when re-encoded. Object members keep source order.
type Value struct {
	kind    Kind
	boolean bool
	text    string // number literal or string contents
	items   []Value
	members []Member
}

// Member is one key/value entry of a JSON object.
type Member struct {
	Name  string
	Value Value
}

// Null returns the JSON null value.
func Null() Value { return Value{kind: KindNull} }

// Bool returns a JSON boolean.
func Bool(b bool) Value { return Value{kind: KindBool, boolean: b} }

// Number returns a JSON number from its literal text. The literal is checked
// when the value is marshalled; use ParseJSON for untrusted input.
func Number(literal string) Value { return Value{kind: KindNumber, text: literal} }

// String returns a JSON string.
func String(s string) Value { return Value{kind: KindString, text: s} }

// Array returns a JSON array.
func Array(items ...Value) Value { return Value{kind: KindArray, items: items} }

// Object returns a JSON object with members in the given order.
func Object(members ...Member) Value { return Value{kind: KindObject, members: members} }

// Kind returns the JSON type of v.
func (v Value) Kind() Kind { return v.kind }

// BoolValue returns the boolean held by a KindBool value.
func (v Value) BoolValue() bool { return v.boolean }

// Literal returns the source literal of a KindNumber value.
func (v Value) Literal() string {
	if v.kind != KindNumber {
		return ""
	}
	return v.text
}

// Str returns the contents of a KindString value.
func (v Value) Str() string {
	if v.kind != KindString {
		return ""
	}
	return v.text
}

// Items returns the elements of a KindArray value.
func (v Value) Items() []Value { return v.items }

// Members returns the members of a KindObject value in source order.
func (v Value) Members() []Member { return v.members }

// Equal reports whether two values are structurally identical, including
// number literals and member order.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.boolean == o.boolean
	case KindNumber, KindString:
		return v.text == o.text
	case KindArray:
		if len(v.items) != len(o.items) {
			return false
		}
		for i := range v.items {
			if !v.items[i].Equal(o.items[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(v.members) != len(o.members) {
			return false
		}
		for i := range v.members {
			if v.members[i].Name != o.members[i].Name || !v.members[i].Value.Equal(o.members[i].Value) {
				return false
			}
		}
		return true
	}
	return false
}

// MarshalJSON encodes v without HTML escaping.
func (v Value) MarshalJSON() ([]byte, error) {
	return v.appendJSON(nil)
}

func (v Value) appendJSON(buf []byte) ([]byte, error) {
	switch v.kind {
	case KindNull:
		return append(buf, "null"...), nil
	case KindBool:
		return strconv.AppendBool(buf, v.boolean), nil
	case KindNumber:
		if !isNumberLiteral(v.text) {
			return nil, fmt.Errorf("relay: %q is not a JSON number", v.text)
		}
		return append(buf, v.text...), nil
	case KindString:
		return appendString(buf, v.text)
	case KindArray:
		buf = append(buf, '[')
		for i, item := range v.items {
			if i > 0 {
				buf = append(buf, ',')
			}
			var err error
			if buf, err = item.appendJSON(buf); err != nil {
				return nil, err
			}
		}
		return append(buf, ']'), nil
	case KindObject:
		buf = append(buf, '{')
		for i, m := range v.members {
			if i > 0 {
				buf = append(buf, ',')
			}
			var err error
			if buf, err = appendString(buf, m.Name); err != nil {
				return nil, err
			}
			buf = append(buf, ':')
			if buf, err = m.Value.appendJSON(buf); err != nil {
				return nil, err
			}
		}
		return append(buf, '}'), nil
	}
	return nil, fmt.Errorf("relay: unknown value kind %d", v.kind)
}

func appendString(buf []byte, s string) ([]byte, error) {
	b, err := json.MarshalWithOption(s, json.DisableHTMLEscape())
	if err != nil {
		return nil, err
	}
	return append(buf, b...), nil
}

// ParseJSON parses data as exactly one JSON document.
//
// Object members are returned in source order. Repeated keys are kept as
// they appear; callers decide how to collapse them.
func ParseJSON(data []byte) (Value, error) {
	if !json.Valid(data) {
		return Value{}, ErrInvalidJSON
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	v, err := parseValue(dec)
	if err != nil {
		return Value{}, fmt.Errorf("%w: %w", ErrInvalidJSON, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return Value{}, fmt.Errorf("%w: trailing data", ErrInvalidJSON)
	}
	return v, nil
}

func parseValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}
	return parseToken(dec, tok)
}

func parseToken(dec *json.Decoder, tok json.Token) (Value, error) {
	switch t := tok.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case json.Number:
		// The decoder accepts literals such as 01 and 1. that are not JSON.
		if !isNumberLiteral(string(t)) {
			return Value{}, fmt.Errorf("malformed number %q", string(t))
		}
		// The decoder may hand back a view into its read buffer.
		return Number(strings.Clone(string(t))), nil
	case float64:
		return Number(strconv.FormatFloat(t, 'g', -1, 64)), nil
	case string:
		return String(t), nil
	case json.Delim:
		switch t {
		case '[':
			return parseArray(dec)
		case '{':
			return parseObject(dec)
		}
		return Value{}, fmt.Errorf("unexpected delimiter %q", rune(t))
	}
	return Value{}, fmt.Errorf("unexpected token %T", tok)
}

func parseArray(dec *json.Decoder) (Value, error) {
	items := []Value{}
	for {
		tok, err := dec.Token()
		if err != nil {
			return Value{}, err
		}
		if d, ok := tok.(json.Delim); ok && d == ']' {
			return Array(items...), nil
		}
		item, err := parseToken(dec, tok)
		if err != nil {
			return Value{}, err
		}
		items = append(items, item)
	}
}

func parseObject(dec *json.Decoder) (Value, error) {
	members := []Member{}
	for {
		tok, err := dec.Token()
		if err != nil {
			return Value{}, err
		}
		if d, ok := tok.(json.Delim); ok && d == '}' {
			return Object(members...), nil
		}
		name, ok := tok.(string)
		if !ok {
			return Value{}, fmt.Errorf("object key is %T, want string", tok)
		}
		val, err := parseValue(dec)
		if err != nil {
			return Value{}, err
		}
		members = append(members, Member{Name: name, Value: val})
	}
}

// isNumberLiteral reports whether s matches the JSON number grammar
// -?(0|[1-9][0-9]*)(\.[0-9]+)?([eE][+-]?[0-9]+)?
func isNumberLiteral(s string) bool {
	i := 0
	if i < len(s) && s[i] == '-' {
		i++
	}
	switch {
	case i < len(s) && s[i] == '0':
		i++
	case i < len(s) && s[i] >= '1' && s[i] <= '9':
		i = skipDigits(s, i)
	default:
		return false
	}
	if i < len(s) && s[i] == '.' {
		j := skipDigits(s, i+1)
		if j == i+1 {
			return false
		}
		i = j
	}
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		i++
		if i < len(s) && (s[i] == '+' || s[i] == '-') {
			i++
		}
		j := skipDigits(s, i)
		if j == i {
			return false
		}
		i = j
	}
	return i == len(s)
}

func skipDigits(s string, i int) int {
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	return i
}
