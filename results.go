package pgpme

import (
	"fmt"
	"time"
)

// Result records are populated by the operation layer after an engine
// call and are immutable from then on. Callers never construct them.

// Notation is one name/value annotation attached to a signature.
type Notation struct {
	Name          string
	Value         string
	Critical      bool
	HumanReadable bool
}

// Signature is the outcome of checking one signature during verify.
type Signature struct {
	Summary     SigSum
	Fingerprint string
	// Status says whether the signature checked out; map it to an error
	// with Err.
	Status    Status
	Notations []Notation
	Created   time.Time
	Expires   time.Time // zero means never

	WrongKeyUsage bool
	Validity      Validity
	PubKeyAlgo    PubKeyAlgo
	HashAlgo      HashAlgo
}

// Err maps the signature status through the error taxonomy: nil for a
// good signature, a typed error otherwise.
func (s *Signature) Err() error { return s.Status.Err() }

// Valid reports a fully valid signature per the summary bits.
func (s *Signature) Valid() bool { return s.Summary&SigSumValid != 0 }

func (s *Signature) String() string {
	switch s.Status.Code {
	case ErrNoError:
		switch {
		case s.Summary&SigSumSigExpired != 0:
			return fmt.Sprintf("%s: Expired signature", s.Fingerprint)
		case s.Summary&SigSumKeyExpired != 0:
			return fmt.Sprintf("%s: Signature made by expired key", s.Fingerprint)
		case s.Summary&SigSumKeyRevoked != 0:
			return fmt.Sprintf("%s: Signature made by revoked key", s.Fingerprint)
		default:
			return fmt.Sprintf("%s: Good signature", s.Fingerprint)
		}
	case ErrBadSignature:
		return fmt.Sprintf("%s: Bad signature", s.Fingerprint)
	case ErrNoPublicKey:
		return fmt.Sprintf("%s: No public key", s.Fingerprint)
	default:
		return fmt.Sprintf("%s: %s", s.Fingerprint, strerror(s.Status.Code))
	}
}

// VerifyResult is the ordered outcome of one verify (or decrypt-verify)
// operation.
type VerifyResult struct {
	FileName   string
	Signatures []Signature
}

// NewSignature describes one signature produced by a sign operation.
type NewSignature struct {
	Type        SigMode
	PubKeyAlgo  PubKeyAlgo
	HashAlgo    HashAlgo
	SigClass    uint
	Created     time.Time
	Fingerprint string
}

// InvalidKey is a key an operation rejected, with the engine's reason.
type InvalidKey struct {
	Fingerprint string
	Reason      Status
}

func (ik InvalidKey) Err() error { return ik.Reason.Err() }

// SignResult is the outcome of one sign operation.
type SignResult struct {
	InvalidSigners []InvalidKey
	Signatures     []NewSignature
}

// EncryptResult carries failure detail of one encrypt operation.
type EncryptResult struct {
	InvalidRecipients []InvalidKey
}

// DecryptResult carries failure detail of one decrypt operation.
type DecryptResult struct {
	UnsupportedAlgorithm string
	WrongKeyUsage        bool
	FileName             string
}

// ImportFlags describes what an import changed for one key.
type ImportFlags uint

const (
	ImportNew ImportFlags = 1 << iota
	ImportUID
	ImportSig
	ImportSubKey
	ImportSecret
)

// ImportStatus is the per-key outcome of an import.
type ImportStatus struct {
	Fingerprint string
	Result      Status
	Status      ImportFlags
}

// ImportResult aggregates the counters of one import operation.
type ImportResult struct {
	Considered      int
	NoUserID        int
	Imported        int
	ImportedRSA     int
	Unchanged       int
	NewUserIDs      int
	NewSubKeys      int
	NewSignatures   int
	NewRevocations  int
	SecretRead      int
	SecretImported  int
	SecretUnchanged int
	NotImported     int
	Imports         []ImportStatus
}
