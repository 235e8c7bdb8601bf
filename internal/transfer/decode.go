package transfer

import (
	"encoding/json"
	"math"
)

// object is a decoded JSON object. Numbers decode as float64.
type object map[string]any

func decodeObject(data []byte) (object, *ValidationError) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, invalid("", "not valid JSON")
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, invalid("", "not a JSON object")
	}
	return obj, nil
}

func (o object) str(key string) (string, bool) {
	s, ok := o[key].(string)
	return s, ok
}

// number returns a finite numeric field.
func (o object) number(key string) (float64, bool) {
	f, ok := o[key].(float64)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func (o object) boolean(key string) (bool, bool) {
	b, ok := o[key].(bool)
	return b, ok
}

func (o object) obj(key string) (object, bool) {
	m, ok := o[key].(map[string]any)
	return m, ok
}

func (o object) array(key string) ([]any, bool) {
	a, ok := o[key].([]any)
	return a, ok
}
