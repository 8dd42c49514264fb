// Package enginetest provides a deterministic in-memory engine backend
// for testing the pgpme operation layer. It performs no real
// cryptography: ciphertexts are a tagged header plus the payload, and
// signatures are SHA-256 digests bound to a signer fingerprint. That
// keeps encrypted output clearly different from plaintext and makes
// tampering detectable, while every outcome stays reproducible.
package enginetest

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"

	"pgpme"
)

// KeySpec describes a key to seed into the engine keyring.
type KeySpec struct {
	Name    string
	Comment string
	Email   string
	// Secret gives the key a secret part, protected by Passphrase when
	// non-empty.
	Secret     bool
	Passphrase string

	// NoEncrypt and NoSign strip the respective capability.
	NoEncrypt bool
	NoSign    bool

	Revoked  bool
	Expired  bool
	Disabled bool
	Invalid  bool
}

func (s KeySpec) uid() string {
	var b strings.Builder
	b.WriteString(s.Name)
	if s.Comment != "" {
		b.WriteString(" (")
		b.WriteString(s.Comment)
		b.WriteString(")")
	}
	b.WriteString(" <")
	b.WriteString(s.Email)
	b.WriteString(">")
	return b.String()
}

// keyEntry is one keyring slot: a public snapshot, an optional secret
// snapshot, and the passphrase protecting the secret part.
type keyEntry struct {
	pub        *pgpme.Key
	sec        *pgpme.Key // nil when the key has no secret part
	passphrase string
	spec       KeySpec
	created    time.Time
}

// Engine is the deterministic backend. Safe for concurrent use; its
// sessions are not.
type Engine struct {
	mu   sync.RWMutex
	keys map[string]*keyEntry // fingerprint -> entry
}

var _ pgpme.Engine = (*Engine)(nil)

// New creates an empty engine.
func New() *Engine {
	return &Engine{keys: make(map[string]*keyEntry)}
}

func (e *Engine) Protocol() pgpme.Protocol { return pgpme.ProtocolOpenPGP }

func (e *Engine) NewSession() (pgpme.Session, pgpme.Status) {
	return &session{eng: e, klMode: pgpme.KeyListModeLocal}, pgpme.Status{}
}

// AddKey seeds a key into the keyring and returns its public snapshot.
func (e *Engine) AddKey(spec KeySpec) *pgpme.Key {
	entry := newEntry(spec, time.Now().Truncate(time.Second))
	e.mu.Lock()
	e.keys[entry.pub.Fingerprint()] = entry
	e.mu.Unlock()
	return entry.pub
}

func newEntry(spec KeySpec, created time.Time) *keyEntry {
	fpr := fingerprintFor(spec.uid())
	entry := &keyEntry{
		pub:        buildKey(spec, fpr, created, false),
		passphrase: spec.Passphrase,
		spec:       spec,
		created:    created,
	}
	if spec.Secret {
		entry.sec = buildKey(spec, fpr, created, true)
	}
	return entry
}

// fingerprintFor derives a stable 40-hex-digit fingerprint from a uid.
func fingerprintFor(uid string) string {
	sum := sha256.Sum256([]byte(uid))
	return strings.ToUpper(hex.EncodeToString(sum[:20]))
}

func buildKey(spec KeySpec, fpr string, created time.Time, secret bool) *pgpme.Key {
	sub := pgpme.SubKey{
		PubKeyAlgo:      pgpme.PubKeyRSA,
		Length:          2048,
		KeyID:           fpr[len(fpr)-16:],
		Fingerprint:     fpr,
		Created:         created,
		Revoked:         spec.Revoked,
		Expired:         spec.Expired,
		Disabled:        spec.Disabled,
		Invalid:         spec.Invalid,
		CanEncrypt:      !spec.NoEncrypt,
		CanSign:         !spec.NoSign,
		CanCertify:      true,
		CanAuthenticate: false,
		Secret:          secret,
	}
	uid := pgpme.UserID{
		Validity: pgpme.ValidityFull,
		UID:      spec.uid(),
		Name:     spec.Name,
		Comment:  spec.Comment,
		Email:    spec.Email,
		Revoked:  spec.Revoked,
		Invalid:  spec.Invalid,
	}
	return &pgpme.Key{
		Protocol:        pgpme.ProtocolOpenPGP,
		OwnerTrust:      pgpme.ValidityUltimate,
		Revoked:         spec.Revoked,
		Expired:         spec.Expired,
		Disabled:        spec.Disabled,
		Invalid:         spec.Invalid,
		CanEncrypt:      !spec.NoEncrypt,
		CanSign:         !spec.NoSign,
		CanCertify:      true,
		CanAuthenticate: false,
		Secret:          secret,
		SubKeys:         []pgpme.SubKey{sub},
		UserIDs:         []pgpme.UserID{uid},
	}
}

// lookup finds a keyring entry by exact fingerprint or 16-digit key id.
func (e *Engine) lookup(pattern string) *keyEntry {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if entry, ok := e.keys[pattern]; ok {
		return entry
	}
	for fpr, entry := range e.keys {
		if strings.EqualFold(fpr[len(fpr)-16:], pattern) {
			return entry
		}
	}
	return nil
}

// list snapshots the matching keys ordered by fingerprint.
func (e *Engine) list(pattern string, secretOnly bool) []*keyEntry {
	e.mu.RLock()
	defer e.mu.RUnlock()
	fprs := make([]string, 0, len(e.keys))
	for fpr := range e.keys {
		fprs = append(fprs, fpr)
	}
	sort.Strings(fprs)

	var out []*keyEntry
	for _, fpr := range fprs {
		entry := e.keys[fpr]
		if secretOnly && entry.sec == nil {
			continue
		}
		if pattern != "" && !entry.matches(pattern) {
			continue
		}
		out = append(out, entry)
	}
	return out
}

func (entry *keyEntry) matches(pattern string) bool {
	p := strings.ToLower(pattern)
	if strings.Contains(strings.ToLower(entry.pub.Fingerprint()), p) {
		return true
	}
	for _, uid := range entry.pub.UserIDs {
		if strings.Contains(strings.ToLower(uid.UID), p) {
			return true
		}
	}
	return false
}

// defaultSigner returns the first secret key by fingerprint order, or
// nil if the keyring has none.
func (e *Engine) defaultSigner() *keyEntry {
	entries := e.list("", true)
	if len(entries) == 0 {
		return nil
	}
	return entries[0]
}

func (e *Engine) store(entry *keyEntry) {
	e.mu.Lock()
	e.keys[entry.pub.Fingerprint()] = entry
	e.mu.Unlock()
}

func (e *Engine) remove(fpr string) {
	e.mu.Lock()
	delete(e.keys, fpr)
	e.mu.Unlock()
}
