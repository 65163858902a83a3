// Package webhook delivers event notifications to registered HTTP
// endpoints. Deliveries run concurrently and in isolation: one slow or
// failing endpoint never blocks the others or the caller.
package webhook

import (
	"fmt"
	"time"
)

// Payload is the JSON body posted to every endpoint.
type Payload struct {
	EventType string         `json:"event_type"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

// sanitizeData deep-copies event data into plain JSON-friendly values.
// Times become RFC 3339 strings and anything encoding/json cannot
// represent falls back to its string form, so one odd value cannot make
// the whole payload unmarshalable.
func sanitizeData(data map[string]any) map[string]any {
	if data == nil {
		return nil
	}
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = sanitizeValue(v)
	}
	return out
}

func sanitizeValue(v any) any {
	switch val := v.(type) {
	case nil, bool, string,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return val
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	case *time.Time:
		if val == nil {
			return nil
		}
		return val.UTC().Format(time.RFC3339)
	case *string:
		if val == nil {
			return nil
		}
		return *val
	case map[string]any:
		return sanitizeData(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = sanitizeValue(item)
		}
		return out
	case []string:
		return val
	case fmt.Stringer:
		return val.String()
	case error:
		return val.Error()
	default:
		return fmt.Sprintf("%v", val)
	}
}
