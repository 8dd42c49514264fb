// Package openpgp is the OpenPGP engine backend, built on gopenpgp. It
// registers itself for pgpme.ProtocolOpenPGP on import:
//
//	import _ "pgpme/engine/openpgp"
//
// The engine keeps its keyring as one armored file per key under
// <home>/keys and reads defaults from <home>/pgpme.toml when present.
package openpgp

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/ProtonMail/gopenpgp/v3/crypto"
	"github.com/google/uuid"

	"pgpme"
	"pgpme/config"
)

func init() {
	pgpme.RegisterEngine(pgpme.ProtocolOpenPGP, func(info pgpme.EngineInfo) (pgpme.Engine, error) {
		return New(info, pgpme.NewNopLogger())
	})
}

// Engine is the gopenpgp-backed OpenPGP engine. Safe for concurrent
// use; its sessions are not.
type Engine struct {
	home   string
	cfg    *config.Config
	pgp    *crypto.PGPHandle
	logger pgpme.Logger

	mu   sync.RWMutex
	keys map[string]*crypto.Key // upper-case fingerprint -> key
}

var _ pgpme.Engine = (*Engine)(nil)

// New builds an engine rooted at info.HomeDir, or the default home
// directory when empty.
func New(info pgpme.EngineInfo, logger pgpme.Logger) (*Engine, error) {
	if logger == nil {
		logger = pgpme.NewNopLogger()
	}
	home := info.HomeDir
	if home == "" {
		var err error
		home, err = defaultHome()
		if err != nil {
			return nil, err
		}
	}

	cfg, err := loadConfig(home)
	if err != nil {
		return nil, err
	}

	keys, err := loadKeyring(filepath.Join(home, "keys"))
	if err != nil {
		return nil, err
	}

	logger.Debug("openpgp engine ready", "home", home, "keys", len(keys))
	return &Engine{
		home:   home,
		cfg:    cfg,
		pgp:    crypto.PGP(),
		logger: logger,
		keys:   keys,
	}, nil
}

func defaultHome() (string, error) {
	dir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(dir, ".pgpme"), nil
}

func loadConfig(home string) (*config.Config, error) {
	path := filepath.Join(home, config.FileName)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return config.Default(home), nil
		}
		return nil, fmt.Errorf("checking config file: %w", err)
	}
	return config.ReadFromFile(path)
}

func (e *Engine) Protocol() pgpme.Protocol { return pgpme.ProtocolOpenPGP }

func (e *Engine) NewSession() (pgpme.Session, pgpme.Status) {
	s := &session{
		eng:    e,
		id:     uuid.NewString(),
		armor:  e.cfg.Armor,
		klMode: pgpme.KeyListModeLocal,
	}
	e.logger.Debug("session opened", "session", s.id)
	return s, pgpme.Status{}
}

// lookup finds a key by exact fingerprint or 16-digit key id suffix.
func (e *Engine) lookup(pattern string) *crypto.Key {
	p := strings.ToUpper(pattern)
	e.mu.RLock()
	defer e.mu.RUnlock()
	if key, ok := e.keys[p]; ok {
		return key
	}
	for fpr, key := range e.keys {
		if len(p) == 16 && strings.HasSuffix(fpr, p) {
			return key
		}
	}
	return nil
}

// list snapshots the matching keys ordered by fingerprint. The pattern
// is a case-insensitive substring of the fingerprint or any user id.
func (e *Engine) list(pattern string, secretOnly bool) []*crypto.Key {
	e.mu.RLock()
	defer e.mu.RUnlock()
	fprs := make([]string, 0, len(e.keys))
	for fpr := range e.keys {
		fprs = append(fprs, fpr)
	}
	sort.Strings(fprs)

	var out []*crypto.Key
	for _, fpr := range fprs {
		key := e.keys[fpr]
		if secretOnly && !key.IsPrivate() {
			continue
		}
		if pattern != "" && !keyMatches(key, pattern) {
			continue
		}
		out = append(out, key)
	}
	return out
}

func keyMatches(key *crypto.Key, pattern string) bool {
	p := strings.ToLower(pattern)
	if strings.Contains(strings.ToLower(key.GetFingerprint()), p) {
		return true
	}
	for name := range key.GetEntity().Identities {
		if strings.Contains(strings.ToLower(name), p) {
			return true
		}
	}
	return false
}

// defaultSigner returns the first private key by fingerprint order, or
// nil if the keyring has none.
func (e *Engine) defaultSigner() *crypto.Key {
	keys := e.list("", true)
	if len(keys) == 0 {
		return nil
	}
	return keys[0]
}

// store adds or replaces a key, persisting it to the keyring directory.
func (e *Engine) store(key *crypto.Key) error {
	if err := persistKey(filepath.Join(e.home, "keys"), key); err != nil {
		return err
	}
	e.mu.Lock()
	e.keys[strings.ToUpper(key.GetFingerprint())] = key
	e.mu.Unlock()
	return nil
}

func (e *Engine) remove(fingerprint string) error {
	if err := removeKeyFile(filepath.Join(e.home, "keys"), fingerprint); err != nil {
		return err
	}
	e.mu.Lock()
	delete(e.keys, strings.ToUpper(fingerprint))
	e.mu.Unlock()
	return nil
}

// verificationKeys returns every public key as one keyring for
// signature checking.
func (e *Engine) verificationKeys() (*crypto.KeyRing, error) {
	kr, err := crypto.NewKeyRing(nil)
	if err != nil {
		return nil, fmt.Errorf("building verification keyring: %w", err)
	}
	for _, key := range e.list("", false) {
		pub, err := key.ToPublic()
		if err != nil {
			return nil, fmt.Errorf("extracting public key: %w", err)
		}
		if err := kr.AddKey(pub); err != nil {
			return nil, fmt.Errorf("adding verification key: %w", err)
		}
	}
	return kr, nil
}
