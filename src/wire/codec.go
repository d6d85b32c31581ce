package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// -----------------------------------------------------------------------------

// Msg is one decoded inbound message: a JSON array with the action verb at
// index 0. Numbers are kept as json.Number so integer and float kinds stay
// distinguishable.
type Msg []interface{}

// -----------------------------------------------------------------------------

// Parse decodes one raw message. Inputs that are not a JSON array fail with
// ErrNotArray; malformed JSON fails with the decoder's error.
var ErrNotArray = fmt.Errorf("not a json array")

func Parse(raw []byte) (Msg, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	arr, ok := v.([]interface{})
	if !ok {
		return nil, ErrNotArray
	}
	return Msg(arr), nil
}

// -----------------------------------------------------------------------------

// At returns the element at index i, or (nil, false) past the end.
func (m Msg) At(i int) (interface{}, bool) {
	if i < 0 || i >= len(m) {
		return nil, false
	}
	return m[i], true
}

// Len returns the element count.
func (m Msg) Len() int { return len(m) }

// -----------------------------------------------------------------------------
// Strict typed getters. Each fails when the element is missing or not of the
// expected concrete kind; the error text surfaces to the client inside an
// error/json frame.
// -----------------------------------------------------------------------------

// TypeError marks a wrong-kind failure from a typed getter. The dispatcher
// maps these onto the error/json reply and everything else onto the
// fallthrough handler reply.
type TypeError struct {
	msg string
}

func (e *TypeError) Error() string { return e.msg }

// IsTypeError reports whether err originated in a typed getter.
func IsTypeError(err error) bool {
	var te *TypeError
	return errors.As(err, &te)
}

func kindError(v interface{}, expect string) error {
	return &TypeError{msg: fmt.Sprintf("wrong json value: %v, expect %s", Render(v), expect)}
}

// KindError builds the same wrong-kind failure for callers doing their own
// element checks.
func KindError(v interface{}, expect string) error {
	return kindError(v, expect)
}

// GetString returns the string at index i.
func (m Msg) GetString(i int) (string, error) {
	v, ok := m.At(i)
	if !ok {
		return "", kindError(nil, "string")
	}
	s, ok := v.(string)
	if !ok {
		return "", kindError(v, "string")
	}
	return s, nil
}

// -----------------------------------------------------------------------------

// GetInt returns the integer at index i. Numbers written with a fraction or
// an exponent are rejected.
func (m Msg) GetInt(i int) (int64, error) {
	v, ok := m.At(i)
	if !ok {
		return 0, kindError(nil, "int")
	}
	return IntValue(v)
}

// -----------------------------------------------------------------------------

// GetFloat returns the float at index i. Integer-written numbers are
// rejected; use GetNum to accept both.
func (m Msg) GetFloat(i int) (float64, error) {
	v, ok := m.At(i)
	if !ok {
		return 0, kindError(nil, "float")
	}
	n, ok := v.(json.Number)
	if !ok || !IsFloatNumber(n) {
		return 0, kindError(v, "float")
	}
	return n.Float64()
}

// -----------------------------------------------------------------------------

// GetBool returns the boolean at index i.
func (m Msg) GetBool(i int) (bool, error) {
	v, ok := m.At(i)
	if !ok {
		return false, kindError(nil, "bool")
	}
	b, ok := v.(bool)
	if !ok {
		return false, kindError(v, "bool")
	}
	return b, nil
}

// -----------------------------------------------------------------------------

// GetNum returns the number at index i whether it was written as an integer
// or as a float.
func (m Msg) GetNum(i int) (float64, error) {
	v, ok := m.At(i)
	if !ok {
		return 0, kindError(nil, "number")
	}
	return NumValue(v)
}

// -----------------------------------------------------------------------------
// Kind helpers shared with the parameter domain.
// -----------------------------------------------------------------------------

// IsFloatNumber reports whether the literal was written in float form.
func IsFloatNumber(n json.Number) bool {
	s := n.String()
	return strings.ContainsAny(s, ".eE")
}

// IsIntNumber reports whether the literal was written in integer form.
func IsIntNumber(v interface{}) bool {
	n, ok := v.(json.Number)
	return ok && !IsFloatNumber(n)
}

// IsString reports whether the value is a JSON string.
func IsString(v interface{}) bool {
	_, ok := v.(string)
	return ok
}

// IntValue extracts an integer-written number.
func IntValue(v interface{}) (int64, error) {
	n, ok := v.(json.Number)
	if !ok || IsFloatNumber(n) {
		return 0, kindError(v, "int")
	}
	return n.Int64()
}

// NumValue extracts any number as float64.
func NumValue(v interface{}) (float64, error) {
	n, ok := v.(json.Number)
	if !ok {
		return 0, kindError(v, "number")
	}
	return n.Float64()
}

// StringValue extracts a JSON string.
func StringValue(v interface{}) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", kindError(v, "string")
	}
	return s, nil
}

// BoolValue extracts a JSON boolean.
func BoolValue(v interface{}) (bool, error) {
	b, ok := v.(bool)
	if !ok {
		return false, kindError(v, "bool")
	}
	return b, nil
}

// Render formats a decoded value the way it looked on the wire, for error
// texts and logs.
func Render(v interface{}) string {
	if v == nil {
		return "null"
	}
	if n, ok := v.(json.Number); ok {
		return n.String()
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

// -----------------------------------------------------------------------------
// Outbound encoding.
// -----------------------------------------------------------------------------

// Frame marshals one outbound JSON-array message. The element types are
// produced by the gateway itself, so a marshal failure is a programming
// error and yields an empty frame plus the error for the caller to log.
func Frame(elems ...interface{}) ([]byte, error) {
	return json.Marshal(elems)
}

// ErrorFrame builds the standard 4-element failure reply.
func ErrorFrame(context, field, text string) []byte {
	b, _ := json.Marshal([]interface{}{"error", context, field, text})
	return b
}

// Heartbeat is echoed verbatim for the "h" message.
var Heartbeat = []byte("h")
