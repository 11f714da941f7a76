package genesisdb

import "strings"

// ID is an opaque event id token assigned by the store on commit.
//
// IDs are:
//   - Opaque: Do not parse or interpret id structure
//   - Totally ordered: Compare ids to determine commit order
//   - Monotonic: Later commits receive greater ids
//   - Unique: Each committed event has exactly one id
type ID string

// String returns the id as a string.
func (id ID) String() string {
	return string(id)
}

// IsZero returns true if the id is unset.
func (id ID) IsZero() bool {
	return id == ""
}

// Compare returns -1, 0, or 1 depending on whether id is ordered
// before, equal to, or after other.
func (id ID) Compare(other ID) int {
	return strings.Compare(string(id), string(other))
}

// Less returns true if id is ordered before other.
func (id ID) Less(other ID) bool {
	return id.Compare(other) < 0
}
