package password

import "errors"

// ErrInvalidHash is returned when a stored hash cannot be parsed.
var ErrInvalidHash = errors.New("invalid password hash")

// ErrPasswordTooLong is returned by hashers with an input ceiling (bcrypt: 72 bytes).
var ErrPasswordTooLong = errors.New("password too long")

// Hasher hashes and verifies passwords. Implementations must be safe for
// concurrent use.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) (bool, error)
	NeedsUpgrade(encodedHash string) (bool, error)
}

// Equalizer burns one verification against a fixed hash so unknown identifiers
// take as long as wrong passwords.
type Equalizer struct {
	hasher Hasher
	dummy  string
}

// NewEqualizer precomputes the dummy hash with h.
func NewEqualizer(h Hasher) (*Equalizer, error) {
	dummy, err := h.Hash("goIdentity-timing-equalizer")
	if err != nil {
		return nil, err
	}
	return &Equalizer{hasher: h, dummy: dummy}, nil
}

// Burn verifies password against the dummy hash and discards the result.
func (e *Equalizer) Burn(password string) {
	if e == nil || e.hasher == nil {
		return
	}
	_, _ = e.hasher.Verify(password, e.dummy)
}
