package driven

import (
	"errors"
	"fmt"
	"unicode/utf16"
)

var (
	// ErrNetwork is returned by adapters when an upstream cannot be reached.
	ErrNetwork = errors.New("network error")

	// ErrNotFound is returned when an upstream answers with a not-ok status.
	// It wraps ErrNetwork so callers can treat both the same way.
	ErrNotFound = fmt.Errorf("%w: upstream returned not-ok status", ErrNetwork)

	// ErrQuotaExceeded is returned by a CacheStore when a write would exceed its capacity.
	ErrQuotaExceeded = errors.New("storage quota exceeded")
)

// RecordSize returns the storage footprint of a key/value pair counted as
// UTF-16 bytes, which is how browser-style key/value stores account for quota.
func RecordSize(key string, value []byte) int64 {
	return utf16Len(key) + utf16Len(string(value))
}

func utf16Len(s string) int64 {
	var n int64
	for _, r := range s {
		n += int64(utf16.RuneLen(r))
	}
	return 2 * n
}
