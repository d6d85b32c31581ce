package algo

import (
	"encoding/json"
	"fmt"

	"trade-gateway/src/models"
	"trade-gateway/src/refdata"
	"trade-gateway/src/wire"
)

// -----------------------------------------------------------------------------
// Algorithm parameters arrive as a JSON object. Each value is a scalar
// (preserving the numeric kind it was written with), a security tuple or a
// vector of scalars. The parsed form is a ParamMap whose values hold exactly
// one of: bool, int64, float64, string, *SecurityTuple, []interface{}.
// -----------------------------------------------------------------------------

// SecurityTuple binds an instrument, an account, a direction and a quantity.
type SecurityTuple struct {
	Src        string
	Security   *models.MSecurity
	SubAccount *models.MSubAccount
	Side       models.OrderSide
	Qty        float64
}

// ParamMap is an immutable parsed parameter set.
type ParamMap map[string]interface{}

// -----------------------------------------------------------------------------

// ParseParams parses every entry of a decoded JSON object. Reference lookups
// resolve against the given managers.
func ParseParams(obj map[string]interface{}, securities *refdata.SecurityManager,
	accounts *refdata.AccountManager) (ParamMap, error) {

	m := make(ParamMap, len(obj))
	for key, v := range obj {
		pv, err := parseValue(v, securities, accounts)
		if err != nil {
			return nil, err
		}
		m[key] = pv
	}
	return m, nil
}

// -----------------------------------------------------------------------------

func parseValue(v interface{}, securities *refdata.SecurityManager,
	accounts *refdata.AccountManager) (interface{}, error) {

	if arr, ok := v.([]interface{}); ok {
		vec := make([]interface{}, 0, len(arr))
		for _, item := range arr {
			s, err := parseScalar(item, securities, accounts)
			if err != nil {
				return nil, err
			}
			vec = append(vec, s)
		}
		return vec, nil
	}
	return parseScalar(v, securities, accounts)
}

// -----------------------------------------------------------------------------

func parseScalar(v interface{}, securities *refdata.SecurityManager,
	accounts *refdata.AccountManager) (interface{}, error) {

	switch tv := v.(type) {
	case json.Number:
		if wire.IsFloatNumber(tv) {
			return tv.Float64()
		}
		return tv.Int64()
	case bool:
		return tv, nil
	case string:
		return tv, nil
	case map[string]interface{}:
		return parseTuple(tv, securities, accounts)
	}
	return nil, nil
}

// -----------------------------------------------------------------------------

// parseTuple reads the security-tuple keys. Unknown keys are ignored; key
// errors are checked in fixed key order so multi-error inputs fail
// deterministically, then the presence checks run.
func parseTuple(obj map[string]interface{}, securities *refdata.SecurityManager,
	accounts *refdata.AccountManager) (*SecurityTuple, error) {

	t := &SecurityTuple{}

	if v, ok := obj["acc"]; ok {
		switch {
		case wire.IsIntNumber(v):
			id, err := wire.IntValue(v)
			if err != nil {
				return nil, err
			}
			t.SubAccount = accounts.GetSubAccount(id)
			if t.SubAccount == nil {
				return nil, fmt.Errorf("Unknown account id: %d", id)
			}
		case wire.IsString(v):
			name, _ := wire.StringValue(v)
			t.SubAccount = accounts.GetSubAccountByName(name)
			if t.SubAccount == nil {
				return nil, fmt.Errorf("Unknown account: %s", name)
			}
		}
	}

	if v, ok := obj["qty"]; ok {
		qty, err := wire.NumValue(v)
		if err != nil {
			return nil, err
		}
		t.Qty = qty
	}

	if v, ok := obj["sec"]; ok {
		id, err := wire.IntValue(v)
		if err != nil {
			return nil, err
		}
		t.Security = securities.Get(id)
		if t.Security == nil {
			return nil, fmt.Errorf("Unknown security id: %d", id)
		}
	}

	if v, ok := obj["side"]; ok {
		str, err := wire.StringValue(v)
		if err != nil {
			return nil, err
		}
		side, ok := models.ParseOrderSide(str)
		if !ok {
			return nil, fmt.Errorf("Unknown order side: %s", str)
		}
		t.Side = side
	}

	if v, ok := obj["src"]; ok {
		str, err := wire.StringValue(v)
		if err != nil {
			return nil, err
		}
		t.Src = str
	}

	if t.Qty <= 0 {
		return nil, fmt.Errorf("Empty quantity")
	}
	if t.Side == models.SideUnknown {
		return nil, fmt.Errorf("Empty side")
	}
	if t.Security == nil {
		return nil, fmt.Errorf("Empty security")
	}
	if t.SubAccount == nil {
		return nil, fmt.Errorf("Empty account")
	}
	return t, nil
}

// -----------------------------------------------------------------------------
// Typed accessors used by the built-in strategies. Each returns the zero
// value plus false when the key is missing or of another kind.
// -----------------------------------------------------------------------------

// Num returns a numeric parameter whether it parsed as int64 or float64.
func (m ParamMap) Num(key string) (float64, bool) {
	switch v := m[key].(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// Bool returns a boolean parameter.
func (m ParamMap) Bool(key string) (bool, bool) {
	v, ok := m[key].(bool)
	return v, ok
}

// Str returns a string parameter.
func (m ParamMap) Str(key string) (string, bool) {
	v, ok := m[key].(string)
	return v, ok
}

// Tuple returns a security-tuple parameter.
func (m ParamMap) Tuple(key string) (*SecurityTuple, bool) {
	v, ok := m[key].(*SecurityTuple)
	return v, ok
}

// Tuples returns every security tuple in the map; the ownership check at the
// dispatcher walks these.
func (m ParamMap) Tuples() []*SecurityTuple {
	var out []*SecurityTuple
	for _, v := range m {
		if t, ok := v.(*SecurityTuple); ok {
			out = append(out, t)
		}
	}
	return out
}

// -----------------------------------------------------------------------------
// Wire encoding of parameter values for the algo_def catalog frames. The tag
// and value are appended in place, so one definition stays a flat array.
// -----------------------------------------------------------------------------

// JsonifyScalar appends the wire tag plus value for one scalar; a security
// tuple contributes only its tag. Returns false for non-scalar values.
func JsonifyScalar(v interface{}, j []interface{}) ([]interface{}, bool) {
	switch tv := v.(type) {
	case bool:
		return append(j, "bool", tv), true
	case int64:
		return append(j, "int", tv), true
	case int:
		return append(j, "int", tv), true
	case float64:
		return append(j, "float", tv), true
	case string:
		return append(j, "string", tv), true
	case *SecurityTuple:
		return append(j, "security"), true
	case SecurityTuple:
		return append(j, "security"), true
	}
	return j, false
}

// Jsonify appends the wire form of any parameter value.
func Jsonify(v interface{}, j []interface{}) []interface{} {
	if out, ok := JsonifyScalar(v, j); ok {
		return out
	}
	if vec, ok := v.([]interface{}); ok {
		elems := make([]interface{}, 0, len(vec))
		for _, item := range vec {
			if one, ok := JsonifyScalar(item, nil); ok {
				elems = append(elems, one)
			}
		}
		return append(j, "vector", elems)
	}
	return j
}
