package connection

import (
	"encoding/json"
	"sort"
)

// CursorMap maps account external ids to that account's pagination cursor.
// A nil value means the provider signalled "no further state" for that
// account; a missing key means the account has not been synced yet.
//
// Iteration order over Keys() is sorted so cross-run behavior (and test
// expectations about request order) are deterministic.
type CursorMap map[string]*string

// Keys returns the account external ids in sorted order.
func (m CursorMap) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get returns the cursor for an account and whether an entry exists.
func (m CursorMap) Get(accountExternalID string) (*string, bool) {
	cursor, ok := m[accountExternalID]
	return cursor, ok
}

// Set records the cursor for an account. Entries are only ever added or
// replaced, never removed, so the map grows monotonically across runs.
func (m CursorMap) Set(accountExternalID string, cursor *string) {
	m[accountExternalID] = cursor
}

// Clone returns a shallow copy safe for independent mutation.
func (m CursorMap) Clone() CursorMap {
	if m == nil {
		return nil
	}
	out := make(CursorMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// MarshalJSON serializes with sorted keys so the stored representation is
// stable byte-for-byte across runs.
func (m CursorMap) MarshalJSON() ([]byte, error) {
	buf := []byte{'{'}
	for i, k := range m.Keys() {
		if i > 0 {
			buf = append(buf, ',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(m[k])
		if err != nil {
			return nil, err
		}
		buf = append(buf, key...)
		buf = append(buf, ':')
		buf = append(buf, val...)
	}
	return append(buf, '}'), nil
}
