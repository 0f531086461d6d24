package schema

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// TimeLayout is the wall-clock format of transmitted dates.
const TimeLayout = "2006-01-02T15:04:05"

// StoredTimeLayout keeps fractional seconds for stores that hold dates as text.
const StoredTimeLayout = "2006-01-02T15:04:05.999999999"

var timeLayouts = []string{
	time.RFC3339Nano,
	TimeLayout,
	StoredTimeLayout,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTime accepts ISO-8601 dates with or without a time or offset. Values
// carrying an offset are converted to UTC; values without one are taken as is.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		return t.UTC(), nil
	}
	return time.Time{}, errors.Errorf("unrecognized date %q", s)
}

// Zero is the value a required field takes when the client omits it.
func (k Kind) Zero() any {
	switch k {
	case String:
		return ""
	case Int:
		return int64(0)
	case Float:
		return float64(0)
	case Bool:
		return false
	case Time:
		return time.Time{}
	case JSON:
		return json.RawMessage("null")
	default:
		return nil
	}
}

// Normalize converts a driver or literal value to the canonical Go type of
// the kind: string, int64, float64, bool, time.Time or json.RawMessage.
func (k Kind) Normalize(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch k {
	case String:
		switch x := v.(type) {
		case string:
			return x, nil
		case []byte:
			return string(x), nil
		case int64:
			return strconv.FormatInt(x, 10), nil
		case int:
			return strconv.Itoa(x), nil
		}
	case Int:
		switch x := v.(type) {
		case int64:
			return x, nil
		case int:
			return int64(x), nil
		case int32:
			return int64(x), nil
		case float64:
			return int64(x), nil
		case string:
			return strconv.ParseInt(x, 10, 64)
		case []byte:
			return strconv.ParseInt(string(x), 10, 64)
		}
	case Float:
		switch x := v.(type) {
		case float64:
			return x, nil
		case float32:
			return float64(x), nil
		case int64:
			return float64(x), nil
		case int:
			return float64(x), nil
		case string:
			return strconv.ParseFloat(x, 64)
		case []byte:
			return strconv.ParseFloat(string(x), 64)
		}
	case Bool:
		switch x := v.(type) {
		case bool:
			return x, nil
		case int64:
			return x != 0, nil
		case int:
			return x != 0, nil
		case string:
			return strconv.ParseBool(x)
		}
	case Time:
		switch x := v.(type) {
		case time.Time:
			return x, nil
		case string:
			return ParseTime(x)
		case []byte:
			return ParseTime(string(x))
		}
	case JSON:
		switch x := v.(type) {
		case json.RawMessage:
			return x, nil
		case []byte:
			return json.RawMessage(append([]byte(nil), x...)), nil
		case string:
			return json.RawMessage(x), nil
		}
	}
	return nil, errors.Errorf("cannot use %T as %s", v, k)
}
