package pgpme

import (
	"fmt"
	"sync"
)

// EngineInfo describes how to reach or configure an engine backend.
type EngineInfo struct {
	// HomeDir is the engine's configuration and keyring directory.
	// Empty selects the backend's default.
	HomeDir string
	// FileName is an optional backend-specific locator.
	FileName string
	Version  string
}

// Engine is one protocol backend. Implementations live outside this
// package and register themselves with RegisterEngine.
type Engine interface {
	Protocol() Protocol
	// NewSession opens one independent session. Sessions are not safe
	// for concurrent use.
	NewSession() (Session, Status)
}

// Session is the engine side of one Context. Every operation returns a
// raw Status which the Context maps through the error taxonomy. Result
// accessors return the record of the most recent matching operation, or
// nil if none ran.
type Session interface {
	SetArmor(yes bool)
	SetTextMode(yes bool)
	SetKeyListMode(mode KeyListMode)
	SetPassphraseCallback(cb PassphraseFunc, hook any)
	SetProgressCallback(cb ProgressFunc, hook any)

	Encrypt(recipients []*Key, flags EncryptFlag, plain, cipher *Data) Status
	EncryptSign(recipients, signers []*Key, flags EncryptFlag, plain, cipher *Data) Status
	EncryptResult() *EncryptResult

	Decrypt(cipher, plain *Data) Status
	DecryptVerify(cipher, plain *Data) Status
	DecryptResult() *DecryptResult

	Sign(signers []*Key, plain, sig *Data, mode SigMode) Status
	SignResult() *SignResult

	Verify(sig, signedText, plain *Data) Status
	VerifyResult() *VerifyResult

	// CheckSigner validates that key can act as a signer in this
	// session. Called once per key added to the signer list.
	CheckSigner(key *Key) Status

	KeyListStart(pattern string, secretOnly bool) Status
	// KeyListNext returns the next key, or a status with code ErrEOF at
	// the end of the listing.
	KeyListNext() (*Key, Status)
	KeyListEnd() Status
	// GetKey looks up one key by fingerprint. A missing key is reported
	// with code ErrEOF, distinct from hard errors.
	GetKey(fingerprint string, secret bool) (*Key, Status)

	Import(data *Data) Status
	ImportResult() *ImportResult
	Export(patterns []string, data *Data) Status
	DeleteKey(key *Key, allowSecret bool) Status
	// GenerateKey creates a key pair from an engine-specific parameter
	// block. Nil sinks store the pair in the keyring instead of
	// returning it.
	GenerateKey(params string, pub, sec *Data) Status

	Release() Status
}

// EngineFactory builds an engine from an EngineInfo.
type EngineFactory func(info EngineInfo) (Engine, error)

var (
	enginesMu sync.RWMutex
	engines   = make(map[Protocol]EngineFactory)
)

// RegisterEngine makes an engine backend available for a protocol.
// Backends call it from an init function, so selecting a backend is an
// import:
//
//	import _ "pgpme/engine/openpgp"
//
// RegisterEngine panics if factory is nil or the protocol is already
// taken.
func RegisterEngine(p Protocol, factory EngineFactory) {
	enginesMu.Lock()
	defer enginesMu.Unlock()
	if factory == nil {
		panic("pgpme: RegisterEngine factory is nil")
	}
	if _, dup := engines[p]; dup {
		panic(fmt.Sprintf("pgpme: RegisterEngine called twice for protocol %s", p))
	}
	engines[p] = factory
}

func newEngine(p Protocol, info EngineInfo) (Engine, error) {
	enginesMu.RLock()
	factory, ok := engines[p]
	enginesMu.RUnlock()
	if !ok {
		return nil, Status{Source: SourcePGPME, Code: ErrInvalidEngine}.Err()
	}
	eng, err := factory(info)
	if err != nil {
		return nil, fmt.Errorf("building %s engine: %w", p, err)
	}
	return eng, nil
}
