package backend

import (
	"fmt"

	"github.com/dunglas/httpsfv"
)

// IdempotencyHeader is the request header naming the logical operation
// a request belongs to. Its value is an RFC 8941 sf-string.
const IdempotencyHeader = "Idempotency-Key"

// ReplayedHeader marks a response served from a previous attempt.
// Its value is the sf-boolean ?1.
const ReplayedHeader = "Idempotent-Replayed"

// FormatIdempotencyKey encodes key as a structured-field string.
func FormatIdempotencyKey(key string) (string, error) {
	return httpsfv.Marshal(httpsfv.NewItem(key))
}

// ParseIdempotencyKey decodes an Idempotency-Key header value.
// A bare token is accepted as well as the quoted sf-string form so
// simple clients can send the raw key.
func ParseIdempotencyKey(values []string) (string, error) {
	if len(values) == 0 {
		return "", nil
	}
	item, err := httpsfv.UnmarshalItem(values)
	if err != nil {
		return "", fmt.Errorf("invalid %s: %w", IdempotencyHeader, err)
	}
	switch v := item.Value.(type) {
	case string:
		if v == "" {
			return "", fmt.Errorf("invalid %s: empty key", IdempotencyHeader)
		}
		return v, nil
	case httpsfv.Token:
		return string(v), nil
	default:
		return "", fmt.Errorf("invalid %s: must be a string", IdempotencyHeader)
	}
}

// FormatReplayed returns the header value marking a replayed response.
func FormatReplayed() string {
	v, _ := httpsfv.Marshal(httpsfv.NewItem(true))
	return v
}

// IsReplayed reports whether a response header set carries
// Idempotent-Replayed: ?1.
func IsReplayed(values []string) bool {
	if len(values) == 0 {
		return false
	}
	item, err := httpsfv.UnmarshalItem(values)
	if err != nil {
		return false
	}
	b, ok := item.Value.(bool)
	return ok && b
}
