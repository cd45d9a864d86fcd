package optiq

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

// maxParamTail bounds the serialized parameter portion of a key. Longer tails
// are replaced with an xxhash digest so keys stay short enough for map use
// while the endpoint prefix remains readable for pattern invalidation.
const maxParamTail = 256

// BuildKey canonicalizes an endpoint and its parameters into a cache and
// de-duplication key. Parameter names are sorted lexicographically and joined
// as name=value pairs, so two logically identical requests produce the same
// key regardless of insertion order. Nil values are omitted.
//
// Only primitive parameter values are accepted (strings, booleans, integers,
// floats, time.Duration); anything else fails with a Validation error before
// any network activity.
func BuildKey(endpoint string, params map[string]any) (string, error) {
	if len(params) == 0 {
		return endpoint, nil
	}

	names := make([]string, 0, len(params))
	for name := range params {
		if params[name] == nil {
			continue
		}
		names = append(names, name)
	}
	if len(names) == 0 {
		return endpoint, nil
	}
	sort.Strings(names)

	var b strings.Builder
	for i, name := range names {
		value, err := formatParamValue(params[name])
		if err != nil {
			return "", &RequestError{
				Type:      ErrorTypeValidation,
				Message:   fmt.Sprintf("parameter %q: %v", name, err),
				Endpoint:  endpoint,
				Timestamp: time.Now(),
			}
		}
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(value)
	}

	tail := b.String()
	if len(tail) > maxParamTail {
		tail = fmt.Sprintf("x:%016x", xxhash.Sum64String(tail))
	}

	return endpoint + "?" + tail, nil
}

// formatParamValue renders a primitive parameter value deterministically.
func formatParamValue(v any) (string, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case bool:
		return strconv.FormatBool(val), nil
	case int:
		return strconv.Itoa(val), nil
	case int8:
		return strconv.FormatInt(int64(val), 10), nil
	case int16:
		return strconv.FormatInt(int64(val), 10), nil
	case int32:
		return strconv.FormatInt(int64(val), 10), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case uint:
		return strconv.FormatUint(uint64(val), 10), nil
	case uint8:
		return strconv.FormatUint(uint64(val), 10), nil
	case uint16:
		return strconv.FormatUint(uint64(val), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(val), 10), nil
	case uint64:
		return strconv.FormatUint(val, 10), nil
	case float32:
		return strconv.FormatFloat(float64(val), 'g', -1, 32), nil
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64), nil
	case time.Duration:
		return val.String(), nil
	default:
		return "", fmt.Errorf("unsupported value type %T", v)
	}
}
