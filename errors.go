package recast

import "errors"

var (
	ErrClosed          = errors.New("recast: replica is closed")
	ErrStoreUnknown    = errors.New("recast: store unknown")
	ErrStoreExists     = errors.New("recast: store already exists")
	ErrBadDiff         = errors.New("recast: bad diff op")
	ErrDiffKeyMismatch = errors.New("recast: diff key does not match the entry")
	ErrBadHandshake    = errors.New("recast: bad handshake record")
	ErrBadState        = errors.New("recast: bad persisted state record")
	ErrHoseUnknown     = errors.New("recast: hose unknown")
)
