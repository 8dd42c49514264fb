package pgpme

import "time"

// Trust is the coarse usability classification derived from a key's
// status flags. The first matching flag wins, in the order revoked,
// expired, disabled, invalid.
type Trust int

const (
	TrustValid Trust = iota
	TrustRevoked
	TrustExpired
	TrustDisabled
	TrustInvalid
)

func (t Trust) String() string {
	switch t {
	case TrustRevoked:
		return "revoked"
	case TrustExpired:
		return "expired"
	case TrustDisabled:
		return "disabled"
	case TrustInvalid:
		return "invalid"
	default:
		return "valid"
	}
}

// Capability is a bitmask of what a key or subkey can be used for.
type Capability uint

const (
	CapEncrypt Capability = 1 << iota
	CapSign
	CapCertify
	CapAuthenticate
)

func deriveTrust(revoked, expired, disabled, invalid bool) Trust {
	switch {
	case revoked:
		return TrustRevoked
	case expired:
		return TrustExpired
	case disabled:
		return TrustDisabled
	case invalid:
		return TrustInvalid
	default:
		return TrustValid
	}
}

func deriveCapability(encrypt, sign, certify, authenticate bool) Capability {
	var c Capability
	if encrypt {
		c |= CapEncrypt
	}
	if sign {
		c |= CapSign
	}
	if certify {
		c |= CapCertify
	}
	if authenticate {
		c |= CapAuthenticate
	}
	return c
}

// Key is a read-only snapshot of one keyring entry at listing time.
// Keys are constructed by engines; callers must treat every field as
// immutable.
type Key struct {
	// KeyListMode is the mode the key was fetched under.
	KeyListMode KeyListMode
	Protocol    Protocol
	OwnerTrust  Validity

	IssuerSerial string
	IssuerName   string
	ChainID      string

	Revoked  bool
	Expired  bool
	Disabled bool
	Invalid  bool

	CanEncrypt      bool
	CanSign         bool
	CanCertify      bool
	CanAuthenticate bool

	// Secret reports whether the secret part is available.
	Secret bool

	// SubKeys is ordered; the first entry is the primary key.
	SubKeys []SubKey
	UserIDs []UserID
}

// PrimarySubKey returns the first subkey, or nil for a malformed key.
func (k *Key) PrimarySubKey() *SubKey {
	if len(k.SubKeys) == 0 {
		return nil
	}
	return &k.SubKeys[0]
}

// Fingerprint returns the primary subkey fingerprint.
func (k *Key) Fingerprint() string {
	if sk := k.PrimarySubKey(); sk != nil {
		return sk.Fingerprint
	}
	return ""
}

// KeyID returns the primary subkey id.
func (k *Key) KeyID() string {
	if sk := k.PrimarySubKey(); sk != nil {
		return sk.KeyID
	}
	return ""
}

// PrimaryUserID returns the first user id, or nil if the key has none.
func (k *Key) PrimaryUserID() *UserID {
	if len(k.UserIDs) == 0 {
		return nil
	}
	return &k.UserIDs[0]
}

func (k *Key) Trust() Trust {
	return deriveTrust(k.Revoked, k.Expired, k.Disabled, k.Invalid)
}

func (k *Key) Capabilities() Capability {
	return deriveCapability(k.CanEncrypt, k.CanSign, k.CanCertify, k.CanAuthenticate)
}

// SubKey is one cryptographic subkey of a Key.
type SubKey struct {
	PubKeyAlgo  PubKeyAlgo
	Length      int // bit length
	KeyID       string
	Fingerprint string
	Created     time.Time
	Expires     time.Time // zero means never

	Revoked  bool
	Expired  bool
	Disabled bool
	Invalid  bool

	CanEncrypt      bool
	CanSign         bool
	CanCertify      bool
	CanAuthenticate bool

	Secret bool
}

func (s *SubKey) Trust() Trust {
	return deriveTrust(s.Revoked, s.Expired, s.Disabled, s.Invalid)
}

func (s *SubKey) Capabilities() Capability {
	return deriveCapability(s.CanEncrypt, s.CanSign, s.CanCertify, s.CanAuthenticate)
}

// UserID is one identity bound to a Key.
type UserID struct {
	Validity Validity
	// UID is the raw user id string, e.g. "Alice (work) <alice@example.org>".
	UID     string
	Name    string
	Comment string
	Email   string
	// Signatures holds the certifications over this user id. Populated
	// only when the key was listed with KeyListModeSigs.
	Signatures []KeySig

	Revoked bool
	Invalid bool
}

// KeySig is one certification over a UserID.
type KeySig struct {
	PubKeyAlgo PubKeyAlgo
	KeyID      string
	Created    time.Time
	Expires    time.Time // zero means never

	Revoked    bool
	Expired    bool
	Invalid    bool
	Exportable bool
}
