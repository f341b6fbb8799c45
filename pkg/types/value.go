package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// Kind discriminates the JSON variants a Value can hold.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

// Value is a tagged JSON variant used for provider-specific payloads
// (payment session data, metadata maps) instead of a pervasive any type.
type Value struct {
	kind Kind
	b    bool
	num  float64
	str  string
	arr  []Value
	obj  map[string]Value
}

func Null() Value                     { return Value{kind: KindNull} }
func Bool(v bool) Value               { return Value{kind: KindBool, b: v} }
func Number(v float64) Value          { return Value{kind: KindNumber, num: v} }
func String(v string) Value           { return Value{kind: KindString, str: v} }
func Array(items ...Value) Value      { return Value{kind: KindArray, arr: items} }
func Object(m map[string]Value) Value { return Value{kind: KindObject, obj: m} }

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNull() bool { return v.kind == KindNull }

// Bool returns the boolean payload and whether the value holds one.
func (v Value) Bool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

func (v Value) Number() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	return v.num, true
}

func (v Value) String() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.str, true
}

func (v Value) Array() ([]Value, bool) {
	if v.kind != KindArray {
		return nil, false
	}
	return v.arr, true
}

func (v Value) Object() (map[string]Value, bool) {
	if v.kind != KindObject {
		return nil, false
	}
	return v.obj, true
}

// Field looks up a key on an object value.
func (v Value) Field(name string) (Value, bool) {
	if v.kind != KindObject {
		return Value{}, false
	}
	child, ok := v.obj[name]
	return child, ok
}

// StringField is the typed accessor used at call sites that need a single
// well-known string field, e.g. a payment client secret.
func (v Value) StringField(name string) (string, bool) {
	child, ok := v.Field(name)
	if !ok {
		return "", false
	}
	return child.String()
}

func (v Value) BoolField(name string) (bool, bool) {
	child, ok := v.Field(name)
	if !ok {
		return false, false
	}
	return child.Bool()
}

func (v Value) NumberField(name string) (float64, bool) {
	child, ok := v.Field(name)
	if !ok {
		return 0, false
	}
	return child.Number()
}

func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	parsed, err := fromAny(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindBool:
		return json.Marshal(v.b)
	case KindNumber:
		return json.Marshal(v.num)
	case KindString:
		return json.Marshal(v.str)
	case KindArray:
		if v.arr == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.arr)
	case KindObject:
		if v.obj == nil {
			return []byte("{}"), nil
		}
		return json.Marshal(v.obj)
	default:
		return nil, fmt.Errorf("types: unknown value kind %d", v.kind)
	}
}

// Keys returns the sorted key set of an object value.
func (v Value) Keys() []string {
	if v.kind != KindObject {
		return nil
	}
	keys := make([]string, 0, len(v.obj))
	for k := range v.obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func fromAny(raw any) (Value, error) {
	switch typed := raw.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(typed), nil
	case json.Number:
		f, err := strconv.ParseFloat(typed.String(), 64)
		if err != nil {
			return Value{}, fmt.Errorf("types: parsing number %q: %w", typed.String(), err)
		}
		return Number(f), nil
	case string:
		return String(typed), nil
	case []any:
		items := make([]Value, 0, len(typed))
		for _, entry := range typed {
			item, err := fromAny(entry)
			if err != nil {
				return Value{}, err
			}
			items = append(items, item)
		}
		return Array(items...), nil
	case map[string]any:
		obj := make(map[string]Value, len(typed))
		for k, entry := range typed {
			item, err := fromAny(entry)
			if err != nil {
				return Value{}, err
			}
			obj[k] = item
		}
		return Object(obj), nil
	default:
		return Value{}, fmt.Errorf("types: unsupported json value %T", raw)
	}
}
