package plugins

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Options holds the raw options of one plugin entry as decoded from the
// project configuration
type Options map[string]interface{}

// Has reports whether key is set
func (o Options) Has(key string) bool {
	_, ok := o[key]
	return ok
}

// Bool returns a boolean option or def when unset
func (o Options) Bool(key string, def bool) (bool, error) {
	v, ok := o[key]
	if !ok || v == nil {
		return def, nil
	}
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(b))
		if err != nil {
			return def, fmt.Errorf("option %q must be a boolean", key)
		}
		return parsed, nil
	}
	if n, ok := asInt(v); ok {
		return n != 0, nil
	}
	return def, fmt.Errorf("option %q must be a boolean", key)
}

// Int returns an integer option or def when unset. Numeric strings are
// accepted.
func (o Options) Int(key string, def int) (int, error) {
	v, ok := o[key]
	if !ok || v == nil {
		return def, nil
	}
	if n, ok := asInt(v); ok {
		return n, nil
	}
	if s, ok := v.(string); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return n, nil
		}
	}
	return def, fmt.Errorf("option %q must be an integer", key)
}

// Float returns a numeric option or def when unset
func (o Options) Float(key string, def float64) (float64, error) {
	v, ok := o[key]
	if !ok || v == nil {
		return def, nil
	}
	switch f := v.(type) {
	case float64:
		return f, nil
	case float32:
		return float64(f), nil
	case string:
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(f), 64); err == nil {
			return parsed, nil
		}
	}
	if n, ok := asInt(v); ok {
		return float64(n), nil
	}
	return def, fmt.Errorf("option %q must be a number", key)
}

// String returns a scalar option as a string or def when unset
func (o Options) String(key string, def string) (string, error) {
	v, ok := o[key]
	if !ok || v == nil {
		return def, nil
	}
	s, ok := scalarString(v)
	if !ok {
		return def, fmt.Errorf("option %q must be a string", key)
	}
	return s, nil
}

// Strings returns an option given either as a single scalar or as a
// sequence of scalars
func (o Options) Strings(key string) ([]string, error) {
	v, ok := o[key]
	if !ok || v == nil {
		return nil, nil
	}
	if s, ok := scalarString(v); ok {
		return []string{s}, nil
	}
	list, err := o.StringList(key)
	if err != nil {
		return nil, fmt.Errorf("option %q must be a string or a list of strings", key)
	}
	return list, nil
}

// StringList returns an option that must be a sequence of scalars
func (o Options) StringList(key string) ([]string, error) {
	v, ok := o[key]
	if !ok || v == nil {
		return nil, nil
	}

	var items []interface{}
	switch l := v.(type) {
	case []interface{}:
		items = l
	case []string:
		return append([]string(nil), l...), nil
	default:
		return nil, fmt.Errorf("option %q must be a list", key)
	}

	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := scalarString(item)
		if !ok {
			return nil, fmt.Errorf("option %q must be a list of strings", key)
		}
		out = append(out, s)
	}
	return out, nil
}

func scalarString(v interface{}) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case bool:
		return strconv.FormatBool(s), true
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), true
	}
	if n, ok := asInt(v); ok {
		return strconv.Itoa(n), true
	}
	return "", false
}

func asInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int8:
		return int(n), true
	case int16:
		return int(n), true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case uint:
		return int(n), true
	case uint8:
		return int(n), true
	case uint16:
		return int(n), true
	case uint32:
		return int(n), true
	case uint64:
		return int(n), true
	case float64:
		if n == math.Trunc(n) {
			return int(n), true
		}
	}
	return 0, false
}
