// Package lease defines the per-key exclusive lease guarding deployment mutations.
package lease

import "context"

// Mode selects what happens when the key is already held.
type Mode int

const (
	// Block waits for the holder to release, or for ctx to end.
	Block Mode = iota
	// Reject fails immediately with domain.ErrConflict.
	Reject
)

// ParseMode maps "block"/"reject" to a Mode. Unknown values block.
func ParseMode(s string) Mode {
	if s == "reject" {
		return Reject
	}
	return Block
}

// Leaser grants exclusive leases by key.
type Leaser interface {
	// Acquire obtains the lease for key. The returned release must be called
	// exactly once.
	Acquire(ctx context.Context, key string, mode Mode) (release func(), err error)
}
