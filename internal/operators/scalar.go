package operators

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// FormatScalar renders a warehouse or configured value in the normalised
// form used for comparison. Numbers compare by value, booleans by truth,
// text by trimmed content.
func FormatScalar(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.FormatInt(int64(x), 10)
	case int8:
		return strconv.FormatInt(int64(x), 10)
	case int16:
		return strconv.FormatInt(int64(x), 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case uint:
		return strconv.FormatUint(uint64(x), 10)
	case uint8:
		return strconv.FormatUint(uint64(x), 10)
	case uint16:
		return strconv.FormatUint(uint64(x), 10)
	case uint32:
		return strconv.FormatUint(uint64(x), 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case float32:
		return formatFloat(float64(x))
	case float64:
		return formatFloat(x)
	case []byte:
		return formatText(string(x))
	case string:
		return formatText(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case fmt.Stringer:
		return formatText(x.String())
	default:
		return formatText(fmt.Sprint(x))
	}
}

// ScalarsEqual compares two values on their normalised form
func ScalarsEqual(a, b any) bool {
	return FormatScalar(a) == FormatScalar(b)
}

func formatFloat(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func formatText(s string) string {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "true", "t":
		return "true"
	case "false", "f":
		return "false"
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
		return formatFloat(f)
	}
	return s
}
