// Package interpret extracts typed entities from gateway response bodies
// whose shape drifts across endpoints and backend versions. An HTTP-level
// success with an unparseable body is never a hard failure here; the caller
// is told to refetch the authoritative state instead.
package interpret

import (
	"bytes"
	"encoding/json"
	"reflect"
)

// Outcome is the result of interpreting a response body.
type Outcome int

const (
	// Decoded means dst now holds the extracted entity.
	Decoded Outcome = iota
	// NeedsRefetch means the write likely succeeded but the body could not
	// be trusted; the caller must issue an authoritative GET.
	NeedsRefetch
)

// Identified is implemented by entities whose identity field must survive
// decoding. A payload that unmarshals but loses the identity is treated as
// not decoded; flexible scalar coercion never papers over a missing id.
type Identified interface {
	Identity() string
}

// Options tunes the fallback chain for one expected entity shape.
type Options struct {
	// WrapperKeys are conventional envelope keys tried in order when the
	// strict decode fails, e.g. "cart" then "data".
	WrapperKeys []string
	// ProbeKeys gate the bare-object decode: when set, every key must be
	// present at the current level before a strict decode is attempted.
	// Used for customer-like payloads (id + email heuristic).
	ProbeKeys []string
}

// Entity runs the fallback chain over raw and fills dst on success.
//
// Precedence: strict decode of the bare object, then each wrapper key
// (recursively, so nested envelopes unwrap), then the boolean-success
// acknowledgement, then NeedsRefetch for anything else.
func Entity(raw []byte, opts Options, dst Identified) Outcome {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return NeedsRefetch
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &top); err != nil {
		return NeedsRefetch
	}

	if probeKeysPresent(top, opts.ProbeKeys) {
		if decodeStrict(trimmed, dst) {
			return Decoded
		}
	}

	for _, key := range opts.WrapperKeys {
		sub, ok := top[key]
		if !ok {
			continue
		}
		if Entity(sub, opts, dst) == Decoded {
			return Decoded
		}
	}

	// A bare success indicator is a legitimate "operation succeeded, no
	// body to parse" outcome, same signal as an unrecognized shape.
	return NeedsRefetch
}

func probeKeysPresent(top map[string]json.RawMessage, probes []string) bool {
	for _, key := range probes {
		if _, ok := top[key]; !ok {
			return false
		}
	}
	return true
}

// decodeStrict unmarshals into a fresh value so a rejected attempt cannot
// leave partial state behind, then commits only when the identity survived.
func decodeStrict(raw []byte, dst Identified) bool {
	dstVal := reflect.ValueOf(dst)
	if dstVal.Kind() != reflect.Pointer || dstVal.IsNil() {
		return false
	}

	fresh := reflect.New(dstVal.Type().Elem())
	if err := json.Unmarshal(raw, fresh.Interface()); err != nil {
		return false
	}
	candidate, ok := fresh.Interface().(Identified)
	if !ok || candidate.Identity() == "" {
		return false
	}

	dstVal.Elem().Set(fresh.Elem())
	return true
}

// AcknowledgedSuccess reports whether the payload carries a boolean success
// indicator. Used for logging only; the interpreter outcome is NeedsRefetch
// either way.
func AcknowledgedSuccess(raw []byte) bool {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(bytes.TrimSpace(raw), &top); err != nil {
		return false
	}
	for _, key := range []string{"success", "ok"} {
		if sub, found := top[key]; found {
			var flag bool
			if err := json.Unmarshal(sub, &flag); err == nil {
				return flag
			}
		}
	}
	return false
}
