package handler

import (
	"fmt"
	"math"
	"strconv"
)

// invalidArgError marks a request whose arguments failed validation. The
// router reports it with the invalid-params code instead of the internal
// one; the message crosses the wire as written.
type invalidArgError struct {
	msg string
}

func (e *invalidArgError) Error() string { return e.msg }

// Invalidf builds an argument-validation error. Facade implementations
// use it for precondition failures such as a missing capture or a
// nonexistent directory.
func Invalidf(format string, args ...any) error {
	return &invalidArgError{msg: fmt.Sprintf(format, args...)}
}

func stringArg(params map[string]any, key string) (string, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return "", Invalidf("%s is required", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", Invalidf("%s must be a string", key)
	}
	return s, nil
}

func optString(params map[string]any, key string) (string, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", Invalidf("%s must be a string", key)
	}
	return s, nil
}

func intArg(params map[string]any, key string) (int, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return 0, Invalidf("%s is required", key)
	}
	n, ok := asInt(v)
	if !ok {
		return 0, Invalidf("%s must be an integer", key)
	}
	return n, nil
}

func optInt(params map[string]any, key string, def int) (int, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return def, nil
	}
	n, ok := asInt(v)
	if !ok {
		return 0, Invalidf("%s must be an integer", key)
	}
	return n, nil
}

func optIntPtr(params map[string]any, key string) (*int, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return nil, nil
	}
	n, ok := asInt(v)
	if !ok {
		return nil, Invalidf("%s must be an integer", key)
	}
	return &n, nil
}

func optBool(params map[string]any, key string, def bool) (bool, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return def, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, Invalidf("%s must be a boolean", key)
	}
	return b, nil
}

func optStrings(params map[string]any, key string) ([]string, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return nil, nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil, Invalidf("%s must be a list of strings", key)
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, Invalidf("%s must be a list of strings", key)
		}
		out = append(out, s)
	}
	return out, nil
}

func optInts(params map[string]any, key string) ([]int, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return nil, nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil, Invalidf("%s must be a list of integers", key)
	}
	out := make([]int, 0, len(items))
	for _, item := range items {
		n, ok := asInt(item)
		if !ok {
			return nil, Invalidf("%s must be a list of integers", key)
		}
		out = append(out, n)
	}
	return out, nil
}

// asInt accepts the forms an integer takes after a JSON decode: float64
// from the decoder, native ints from in-process callers, and decimal
// strings from loosely typed peers.
func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		if math.Trunc(n) != n {
			return 0, false
		}
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	case string:
		parsed, err := strconv.Atoi(n)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}
