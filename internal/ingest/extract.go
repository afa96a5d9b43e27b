package ingest

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Payload values come from encoding/json into map[string]any, so numbers are
// float64 and objects are map[string]any.

// maxEpochMillis bounds representable instants to +/-100,000,000 days.
const maxEpochMillis = 8.64e15

// truthy reports whether a decoded JSON value counts as present: non-empty
// strings, non-zero numbers, true, objects and arrays.
func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case string:
		return val != ""
	case float64:
		return val != 0 && !math.IsNaN(val)
	case bool:
		return val
	default:
		return true
	}
}

// asString renders a scalar id-like value as a string. Objects and arrays are not ids.
func asString(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(val), true
	default:
		return "", false
	}
}

// firstString returns the first key of obj holding a truthy scalar.
func firstString(obj map[string]any, keys ...string) (string, bool) {
	for _, key := range keys {
		v := obj[key]
		if !truthy(v) {
			continue
		}
		if s, ok := asString(v); ok {
			return s, true
		}
	}
	return "", false
}

func object(obj map[string]any, key string) map[string]any {
	if obj == nil {
		return nil
	}
	m, _ := obj[key].(map[string]any)
	return m
}

func array(obj map[string]any, key string) []any {
	if obj == nil {
		return nil
	}
	a, _ := obj[key].([]any)
	return a
}

// parseUnixSeconds converts a seconds value, numeric or a numeric string, to
// an instant. Missing, blank, zero and unparseable values resolve to nil.
func parseUnixSeconds(v any) *time.Time {
	if !truthy(v) {
		return nil
	}
	n, ok := toNumber(v)
	if !ok {
		return nil
	}
	return millisToTime(n * 1000)
}

// parseEpochMillis is parseUnixSeconds for millisecond values.
func parseEpochMillis(v any) *time.Time {
	if !truthy(v) {
		return nil
	}
	n, ok := toNumber(v)
	if !ok {
		return nil
	}
	return millisToTime(n)
}

func toNumber(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, !math.IsNaN(val)
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return 0, false
		}
		n, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(n) {
			return 0, false
		}
		return n, true
	case bool:
		if val {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

func millisToTime(ms float64) *time.Time {
	if math.IsInf(ms, 0) || math.Abs(ms) > maxEpochMillis {
		return nil
	}
	t := time.UnixMilli(int64(ms)).UTC()
	return &t
}
