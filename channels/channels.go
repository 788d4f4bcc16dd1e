// Package channels maps logical destination names (e.g. "good", "b2b") to chat
// channel identifiers. The mapping is built once from configuration at process
// start and is immutable afterwards; resolution is a pure lookup with no network
// calls.
package channels

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnknownDestination is returned when a destination key is not in the
// configured set. Callers must reject the request rather than fall back to a
// default channel.
var ErrUnknownDestination = errors.New("unknown destination")

// Resolver resolves destination keys to chat ids.
type Resolver struct {
	byKey map[string]int64
	keys  []string
}

// NewResolver copies the given mapping. Keys are normalized to lower case.
func NewResolver(m map[string]int64) *Resolver {
	byKey := make(map[string]int64, len(m))
	keys := make([]string, 0, len(m))
	for k, id := range m {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		if _, dup := byKey[k]; !dup {
			keys = append(keys, k)
		}
		byKey[k] = id
	}
	sort.Strings(keys)
	return &Resolver{byKey: byKey, keys: keys}
}

// Resolve returns the chat id for a destination key (case-insensitive).
func (r *Resolver) Resolve(key string) (int64, error) {
	id, ok := r.byKey[strings.ToLower(strings.TrimSpace(key))]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownDestination, key)
	}
	return id, nil
}

// Keys returns the closed destination set in sorted order.
func (r *Resolver) Keys() []string {
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}
