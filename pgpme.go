// Package pgpme provides a high-level facade over an OpenPGP/CMS
// cryptographic engine. A Context is a configured session through which
// all operations (encrypt, decrypt, sign, verify, key management) are
// invoked; Data unifies byte sources and sinks behind one read/write/seek
// contract; engine backends are pluggable per protocol.
//
// The package does not implement cryptographic algorithms itself. The
// engine is an external collaborator: the default OpenPGP backend lives in
// pgpme/engine/openpgp and registers itself on import:
//
//	import _ "pgpme/engine/openpgp"
package pgpme

// Protocol selects the cryptographic engine backend.
type Protocol int

const (
	ProtocolOpenPGP Protocol = iota
	ProtocolCMS
)

func (p Protocol) String() string {
	switch p {
	case ProtocolOpenPGP:
		return "OpenPGP"
	case ProtocolCMS:
		return "CMS"
	default:
		return "unknown"
	}
}

// SigMode selects the signature form produced by Sign.
type SigMode int

const (
	SigModeNormal SigMode = iota
	SigModeDetach
	SigModeClear
)

func (m SigMode) String() string {
	switch m {
	case SigModeNormal:
		return "normal"
	case SigModeDetach:
		return "detached"
	case SigModeClear:
		return "cleartext"
	default:
		return "unknown"
	}
}

// EncryptFlag is a bitmask of options for Encrypt and EncryptSign.
type EncryptFlag uint

const (
	EncryptAlwaysTrust EncryptFlag = 1 << iota
	EncryptNoEncryptTo
	EncryptNoCompress
)

// KeyListMode is a bitmask controlling which keys a listing returns and
// how much detail each Key snapshot carries.
type KeyListMode uint

const (
	KeyListModeLocal  KeyListMode = 1
	KeyListModeExtern KeyListMode = 2
	// KeyListModeSigs includes per-UserID certification signatures in
	// listed keys.
	KeyListModeSigs     KeyListMode = 4
	KeyListModeValidate KeyListMode = 256
)

// Validity is the engine's computed trust in a key or user ID.
type Validity int

const (
	ValidityUnknown Validity = iota
	ValidityUndefined
	ValidityNever
	ValidityMarginal
	ValidityFull
	ValidityUltimate
)

func (v Validity) String() string {
	switch v {
	case ValidityUndefined:
		return "undefined"
	case ValidityNever:
		return "never"
	case ValidityMarginal:
		return "marginal"
	case ValidityFull:
		return "full"
	case ValidityUltimate:
		return "ultimate"
	default:
		return "unknown"
	}
}

// PubKeyAlgo identifies a public key algorithm. Values follow the OpenPGP
// registry where one exists.
type PubKeyAlgo int

const (
	PubKeyRSA            PubKeyAlgo = 1
	PubKeyRSAEncryptOnly PubKeyAlgo = 2
	PubKeyRSASignOnly    PubKeyAlgo = 3
	PubKeyElGamal        PubKeyAlgo = 16
	PubKeyDSA            PubKeyAlgo = 17
	PubKeyECDH           PubKeyAlgo = 18
	PubKeyECDSA          PubKeyAlgo = 19
	PubKeyEdDSA          PubKeyAlgo = 22
)

func (a PubKeyAlgo) String() string {
	switch a {
	case PubKeyRSA, PubKeyRSAEncryptOnly, PubKeyRSASignOnly:
		return "RSA"
	case PubKeyElGamal:
		return "ELG-E"
	case PubKeyDSA:
		return "DSA"
	case PubKeyECDH:
		return "ECDH"
	case PubKeyECDSA:
		return "ECDSA"
	case PubKeyEdDSA:
		return "EdDSA"
	default:
		return "unknown"
	}
}

// HashAlgo identifies a hash algorithm. Values follow the OpenPGP registry.
type HashAlgo int

const (
	HashMD5       HashAlgo = 1
	HashSHA1      HashAlgo = 2
	HashRIPEMD160 HashAlgo = 3
	HashSHA256    HashAlgo = 8
	HashSHA384    HashAlgo = 9
	HashSHA512    HashAlgo = 10
	HashSHA224    HashAlgo = 11
)

// SigSum is the summary bitmask of one signature verification.
type SigSum uint

const (
	SigSumValid      SigSum = 0x0001
	SigSumGreen      SigSum = 0x0002
	SigSumRed        SigSum = 0x0004
	SigSumKeyRevoked SigSum = 0x0010
	SigSumKeyExpired SigSum = 0x0020
	SigSumSigExpired SigSum = 0x0040
	SigSumKeyMissing SigSum = 0x0080
	SigSumCRLMissing SigSum = 0x0100
	SigSumCRLTooOld  SigSum = 0x0200
	SigSumBadPolicy  SigSum = 0x0400
	SigSumSysError   SigSum = 0x0800
)
