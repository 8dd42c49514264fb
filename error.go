package pgpme

import (
	"errors"
	"fmt"
)

// ErrSource identifies which layer produced an error.
type ErrSource int

const (
	SourceUnknown ErrSource = iota
	// SourceEngine marks errors produced by the engine backend.
	SourceEngine
	// SourcePGPME marks errors produced by this library before or after
	// the engine call (argument validation, state machine misuse).
	SourcePGPME
	// SourceUser marks errors propagated from caller-supplied callbacks.
	SourceUser
)

func (s ErrSource) String() string {
	switch s {
	case SourceEngine:
		return "engine"
	case SourcePGPME:
		return "pgpme"
	case SourceUser:
		return "user"
	default:
		return "unknown"
	}
}

// ErrCode is the engine error code. The zero value means success.
type ErrCode int

const (
	ErrNoError              ErrCode = 0
	ErrGeneral              ErrCode = 1
	ErrBadSignature         ErrCode = 8
	ErrNoPublicKey          ErrCode = 9
	ErrBadPassphrase        ErrCode = 11
	ErrNoSecretKey          ErrCode = 17
	ErrMissingCertificate   ErrCode = 40
	ErrBadCertificateChain  ErrCode = 43
	ErrUnusablePublicKey    ErrCode = 53
	ErrUnusableSecretKey    ErrCode = 54
	ErrInvalidValue         ErrCode = 55
	ErrNoData               ErrCode = 58
	ErrNotImplemented       ErrCode = 69
	ErrConflict             ErrCode = 70
	ErrUnsupportedAlgorithm ErrCode = 84
	ErrNoPolicyMatch        ErrCode = 88
	ErrAmbiguousName        ErrCode = 90
	ErrCertificateRevoked   ErrCode = 94
	ErrCertificateExpired   ErrCode = 95
	ErrNoCRLKnown           ErrCode = 96
	ErrCanceled             ErrCode = 99
	ErrWrongKeyUsage        ErrCode = 125
	ErrInvalidEngine        ErrCode = 142
	ErrDecryptFailed        ErrCode = 152

	// ErrEOF terminates read loops and keylist iteration. It never
	// escapes the facade; callers of low-level Context methods can test
	// for it with IsEOF.
	ErrEOF ErrCode = 16383
)

// errMessages is the engine string table. Error text always comes from
// here, never from call sites.
var errMessages = map[ErrCode]string{
	ErrNoError:              "Success",
	ErrGeneral:              "General error",
	ErrBadSignature:         "Bad signature",
	ErrNoPublicKey:          "No public key",
	ErrBadPassphrase:        "Bad passphrase",
	ErrNoSecretKey:          "No secret key",
	ErrMissingCertificate:   "Missing certificate",
	ErrBadCertificateChain:  "Bad certificate chain",
	ErrUnusablePublicKey:    "Unusable public key",
	ErrUnusableSecretKey:    "Unusable secret key",
	ErrInvalidValue:         "Invalid value",
	ErrNoData:               "No data",
	ErrNotImplemented:       "Not implemented",
	ErrConflict:             "Conflicting use",
	ErrUnsupportedAlgorithm: "Unsupported algorithm",
	ErrNoPolicyMatch:        "No policy match",
	ErrAmbiguousName:        "Ambiguous name",
	ErrCertificateRevoked:   "Certificate revoked",
	ErrCertificateExpired:   "Certificate expired",
	ErrNoCRLKnown:           "No CRL known",
	ErrCanceled:             "Operation cancelled",
	ErrWrongKeyUsage:        "Wrong key usage",
	ErrInvalidEngine:        "Invalid crypto engine",
	ErrDecryptFailed:        "Decryption failed",
	ErrEOF:                  "End of file",
}

func strerror(c ErrCode) string {
	if msg, ok := errMessages[c]; ok {
		return msg
	}
	return fmt.Sprintf("Unknown error code (%d)", int(c))
}

// Error is the single error type for all engine outcomes. The code says
// why the operation failed, the source says where. There is one Error
// type for every kind; distinguish kinds by Code.
type Error struct {
	code   ErrCode
	source ErrSource
}

func (e *Error) Error() string { return strerror(e.code) }

func (e *Error) Code() ErrCode { return e.code }

func (e *Error) Source() ErrSource { return e.source }

// Status is the raw (source, code) outcome of one engine call. The zero
// value means success.
type Status struct {
	Source ErrSource
	Code   ErrCode
}

// Err maps a status to an error. Success maps to nil; every other code,
// known or not, maps to exactly one *Error. The mapping is total: unknown
// codes yield a generic error carrying the raw code.
func (s Status) Err() error {
	if s.Code == ErrNoError {
		return nil
	}
	return &Error{code: s.Code, source: s.Source}
}

// IsEOF reports whether err is the end-of-stream signal used to terminate
// keylist iteration and engine read loops.
func IsEOF(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.code == ErrEOF
}

// ErrorCode extracts the engine code from err, or ErrNoError if err is
// nil or not an engine error.
func ErrorCode(err error) ErrCode {
	var e *Error
	if errors.As(err, &e) {
		return e.code
	}
	return ErrNoError
}

// callerErr reports library-side misuse (bad arguments, state machine
// violations) using the same taxonomy as engine errors.
func callerErr(code ErrCode) error {
	return &Error{code: code, source: SourcePGPME}
}
