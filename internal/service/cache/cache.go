package cache

import "time"

// BytesCache is the minimal byte-blob cache the preview endpoints keep their
// serialized quotes in. Quotes go stale with the curve exponent, so every
// entry carries a short TTL.
type BytesCache interface {
	GetBytes(key string) (b []byte, ok bool, err error)
	SetBytes(key string, value []byte, ttl time.Duration) error
}
