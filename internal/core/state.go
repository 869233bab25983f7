package core

// AccessState is the singleton persisted record backing the PIN guard.
// Timestamps are unix milliseconds; zero means unset. PinHash is a bcrypt
// hash, never the plaintext PIN; empty means no lock configured.
type AccessState struct {
	PinHash      string
	LastActiveAt int64
	LockoutUntil int64
}

// PinSet reports whether a PIN has been configured.
func (s AccessState) PinSet() bool {
	return s.PinHash != ""
}
