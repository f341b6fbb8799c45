package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// FlexInt decodes an integer that backends variously encode as a native
// number or a numeric string. The coercion is confined to leaf fields;
// identity fields never use it.
type FlexInt int64

func (f *FlexInt) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*f = 0
		return nil
	}

	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		parsed, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return fmt.Errorf("types: %q is not an integer: %w", s, err)
		}
		*f = FlexInt(parsed)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(trimmed, &n); err != nil {
		return fmt.Errorf("types: invalid integer payload %s", trimmed)
	}
	parsed, err := n.Int64()
	if err != nil {
		// Whole-valued floats slip through some serializers.
		fval, ferr := n.Float64()
		if ferr != nil || fval != float64(int64(fval)) {
			return fmt.Errorf("types: %s is not an integer", n.String())
		}
		parsed = int64(fval)
	}
	*f = FlexInt(parsed)
	return nil
}

func (f FlexInt) MarshalJSON() ([]byte, error) {
	return json.Marshal(int64(f))
}

func (f FlexInt) Int() int { return int(f) }

// FlexBool decodes a boolean that backends variously encode as a native
// bool, a "true"/"false"/"1"/"0" string, or an integer flag.
type FlexBool bool

func (f *FlexBool) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*f = false
		return nil
	}

	switch trimmed[0] {
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(trimmed, &b); err != nil {
			return err
		}
		*f = FlexBool(b)
		return nil
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "true", "1":
			*f = true
		case "false", "0", "":
			*f = false
		default:
			return fmt.Errorf("types: %q is not a boolean", s)
		}
		return nil
	default:
		var n json.Number
		if err := json.Unmarshal(trimmed, &n); err != nil {
			return fmt.Errorf("types: invalid boolean payload %s", trimmed)
		}
		parsed, err := n.Int64()
		if err != nil {
			return fmt.Errorf("types: %s is not a boolean", n.String())
		}
		*f = parsed != 0
		return nil
	}
}

func (f FlexBool) MarshalJSON() ([]byte, error) {
	return json.Marshal(bool(f))
}

func (f FlexBool) Bool() bool { return bool(f) }
