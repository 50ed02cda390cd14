// Package valueconv converts and compares the scalar cell values carried by tabular documents:
// nil, bool, int64, float64, string and time.Time.
package valueconv

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// DateLayouts are tried in order when a string is parsed as a datetime.
var DateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"02-Jan-2006",
	"060102",
}

// IsNull reports whether v is a missing value. NaN counts as missing.
func IsNull(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return true
	case float64:
		return math.IsNaN(t)
	case float32:
		return math.IsNaN(float64(t))
	}
	return false
}

// Normalize folds the numeric types produced by decoders into int64 / float64.
// json.Number becomes int64 when it has no fractional part.
func Normalize(v interface{}) interface{} {
	switch t := v.(type) {
	case int:
		return int64(t)
	case int8:
		return int64(t)
	case int16:
		return int64(t)
	case int32:
		return int64(t)
	case uint:
		return int64(t)
	case uint8:
		return int64(t)
	case uint16:
		return int64(t)
	case uint32:
		return int64(t)
	case uint64:
		return int64(t)
	case float32:
		return float64(t)
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	}
	return v
}

// ParseInt reports whether v is an integer or a string holding one.
func ParseInt(v interface{}) (int64, bool) {
	switch t := Normalize(v).(type) {
	case int64:
		return t, true
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		return i, err == nil
	}
	return 0, false
}

// ParseFloat reports whether v is numeric or a string holding a number.
func ParseFloat(v interface{}) (float64, bool) {
	switch t := Normalize(v).(type) {
	case int64:
		return float64(t), true
	case float64:
		return t, !math.IsNaN(t)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}

// ParseBool accepts bools and the strings "true"/"false" in any case.
func ParseBool(v interface{}) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true":
			return true, true
		case "false":
			return false, true
		}
	}
	return false, false
}

// ParseTime accepts time.Time and strings in one of DateLayouts.
func ParseTime(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return time.Time{}, false
		}
		for _, layout := range DateLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed, true
			}
		}
	}
	return time.Time{}, false
}

// IsNumeric reports whether v is already an int64 or float64 (strings do not count).
func IsNumeric(v interface{}) bool {
	switch Normalize(v).(type) {
	case int64, float64:
		return true
	}
	return false
}

// ToInt coerces v to int64. Whole floats and bools are accepted.
func ToInt(v interface{}) (int64, error) {
	switch t := Normalize(v).(type) {
	case int64:
		return t, nil
	case float64:
		if t == math.Trunc(t) && !math.IsInf(t, 0) {
			return int64(t), nil
		}
		return 0, fmt.Errorf("float %v has a fractional part", t)
	case bool:
		if t {
			return 1, nil
		}
		return 0, nil
	case string:
		if i, ok := ParseInt(t); ok {
			return i, nil
		}
		if f, ok := ParseFloat(t); ok && f == math.Trunc(f) {
			return int64(f), nil
		}
	}
	return 0, fmt.Errorf("cannot convert %v (%T) to int", v, v)
}

// ToFloat coerces v to float64.
func ToFloat(v interface{}) (float64, error) {
	if b, ok := v.(bool); ok {
		if b {
			return 1, nil
		}
		return 0, nil
	}
	if f, ok := ParseFloat(v); ok {
		return f, nil
	}
	return 0, fmt.Errorf("cannot convert %v (%T) to float", v, v)
}

// ToTime coerces v to time.Time. Integers are read as unix seconds.
func ToTime(v interface{}) (time.Time, error) {
	if t, ok := ParseTime(v); ok {
		return t, nil
	}
	if i, ok := Normalize(v).(int64); ok {
		return time.Unix(i, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("cannot convert %v (%T) to datetime", v, v)
}

// Format renders v as text. nil renders as "".
func Format(v interface{}) string {
	switch t := Normalize(v).(type) {
	case nil:
		return ""
	case string:
		return t
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case time.Time:
		return t.Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// Key renders v with a type tag so that 1 and "1" do not collide when used as a map key.
func Key(v interface{}) string {
	n := Normalize(v)
	if IsNull(n) {
		return "\x00null"
	}
	return fmt.Sprintf("%T:%s", n, Format(n))
}

// Equal compares numerically when both sides are numeric and textually otherwise.
func Equal(a, b interface{}) bool {
	if IsNull(a) || IsNull(b) {
		return IsNull(a) && IsNull(b)
	}
	if fa, ok := ParseFloat(a); ok && IsNumeric(a) {
		if fb, ok := ParseFloat(b); ok {
			return fa == fb
		}
	}
	if ba, ok := a.(bool); ok {
		if bb, ok := ParseBool(b); ok {
			return ba == bb
		}
	}
	return Format(a) == Format(b)
}

// Compare orders a and b: numerically when both parse as numbers, chronologically when both
// parse as datetimes, textually otherwise. ok is false when either side is null.
func Compare(a, b interface{}) (cmp int, ok bool) {
	if IsNull(a) || IsNull(b) {
		return 0, false
	}
	if fa, okA := ParseFloat(a); okA {
		if fb, okB := ParseFloat(b); okB {
			return compareOrdered(fa, fb), true
		}
	}
	if ta, okA := ParseTime(a); okA {
		if tb, okB := ParseTime(b); okB {
			return ta.Compare(tb), true
		}
	}
	return strings.Compare(Format(a), Format(b)), true
}

func compareOrdered(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
