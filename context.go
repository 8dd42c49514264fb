package pgpme

// Options configures a new Context. The zero value selects the OpenPGP
// protocol with binary output and local keylisting.
type Options struct {
	Protocol Protocol
	// Armor selects ASCII-armored operation output.
	Armor bool
	// TextMode selects canonical text mode where the engine supports it.
	TextMode    bool
	KeyListMode KeyListMode

	Passphrase     PassphraseFunc
	PassphraseHook any
	Progress       ProgressFunc
	ProgressHook   any

	Logger Logger

	// Engine overrides the registered backend for Protocol. Tests use
	// this to install a deterministic engine.
	Engine     Engine
	EngineInfo EngineInfo
}

// Context is one configured session with the engine. All operations go
// through a Context. A Context is not safe for concurrent use: exactly
// one operation may be in flight at a time, and the keylisting interval
// between KeyListStart and KeyListEnd must not be interleaved with other
// operations on the same Context.
type Context struct {
	session  Session
	protocol Protocol
	armor    bool
	textmode bool
	klMode   KeyListMode
	signers  []*Key
	listing  bool
	released bool
	logger   Logger
}

// New creates a Context per opts. The caller must Release it.
func New(opts Options) (*Context, error) {
	logger := opts.Logger
	if logger == nil {
		logger = NewNopLogger()
	}
	klMode := opts.KeyListMode
	if klMode == 0 {
		klMode = KeyListModeLocal
	}

	eng := opts.Engine
	if eng == nil {
		var err error
		eng, err = newEngine(opts.Protocol, opts.EngineInfo)
		if err != nil {
			return nil, err
		}
	}
	sess, st := eng.NewSession()
	if err := st.Err(); err != nil {
		return nil, err
	}

	c := &Context{
		session:  sess,
		protocol: opts.Protocol,
		logger:   logger,
	}
	c.SetArmor(opts.Armor)
	c.SetTextMode(opts.TextMode)
	c.SetKeyListMode(klMode)
	if opts.Passphrase != nil {
		c.SetPassphraseCallback(opts.Passphrase, opts.PassphraseHook)
	}
	if opts.Progress != nil {
		c.SetProgressCallback(opts.Progress, opts.ProgressHook)
	}
	return c, nil
}

// Release finalizes the engine session. It is idempotent; the session is
// released exactly once. Any operation after Release fails.
func (c *Context) Release() error {
	if c.released {
		return nil
	}
	c.released = true
	return c.session.Release().Err()
}

// ready guards the common preconditions of an operation call.
func (c *Context) ready() error {
	if c.released {
		return callerErr(ErrInvalidValue)
	}
	if c.listing {
		// A keylisting holds engine iterator state; no other operation
		// may interleave with it.
		return callerErr(ErrConflict)
	}
	return nil
}

func (c *Context) Protocol() Protocol { return c.protocol }

func (c *Context) Armor() bool { return c.armor }

func (c *Context) SetArmor(yes bool) {
	c.armor = yes
	c.session.SetArmor(yes)
}

func (c *Context) TextMode() bool { return c.textmode }

func (c *Context) SetTextMode(yes bool) {
	c.textmode = yes
	c.session.SetTextMode(yes)
}

func (c *Context) KeyListMode() KeyListMode { return c.klMode }

func (c *Context) SetKeyListMode(mode KeyListMode) {
	c.klMode = mode
	c.session.SetKeyListMode(mode)
}

// SetPassphraseCallback installs cb with an opaque hook value passed
// through on every invocation. The callback is invoked synchronously
// mid-operation and must not reenter this Context.
func (c *Context) SetPassphraseCallback(cb PassphraseFunc, hook any) {
	c.session.SetPassphraseCallback(cb, hook)
}

// SetProgressCallback installs cb with an opaque hook value. Same
// reentrancy rules as SetPassphraseCallback.
func (c *Context) SetProgressCallback(cb ProgressFunc, hook any) {
	c.session.SetProgressCallback(cb, hook)
}

// AddSigner appends keys to the signer list used by Sign and
// EncryptSign. Each key is checked by the engine individually; on the
// first failure the list is left with the keys added so far.
func (c *Context) AddSigner(keys ...*Key) error {
	if err := c.ready(); err != nil {
		return err
	}
	for _, k := range keys {
		if k == nil {
			return callerErr(ErrInvalidValue)
		}
		if err := c.session.CheckSigner(k).Err(); err != nil {
			return err
		}
		c.signers = append(c.signers, k)
	}
	return nil
}

// ClearSigners empties the signer list.
func (c *Context) ClearSigners() {
	c.signers = nil
}

// Signers returns a copy of the current signer list.
func (c *Context) Signers() []*Key {
	return append([]*Key(nil), c.signers...)
}

// Decrypt decrypts cipher into plain. A nil plain allocates a fresh
// in-memory sink. Returns the sink.
func (c *Context) Decrypt(cipher, plain *Data) (*Data, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	if cipher == nil {
		return nil, callerErr(ErrInvalidValue)
	}
	if plain == nil {
		plain = NewData()
	}
	if err := c.session.Decrypt(cipher, plain).Err(); err != nil {
		return nil, err
	}
	c.logger.Debug("decrypt complete", "protocol", c.protocol)
	return plain, nil
}

// DecryptVerify decrypts cipher into plain and verifies any embedded
// signatures in the same pass. The verification outcome is available
// from VerifyResult afterwards.
func (c *Context) DecryptVerify(cipher, plain *Data) (*Data, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	if cipher == nil {
		return nil, callerErr(ErrInvalidValue)
	}
	if plain == nil {
		plain = NewData()
	}
	if err := c.session.DecryptVerify(cipher, plain).Err(); err != nil {
		return nil, err
	}
	c.logger.Debug("decrypt-verify complete", "protocol", c.protocol)
	return plain, nil
}

// DecryptResult returns the failure detail of the most recent decrypt.
func (c *Context) DecryptResult() *DecryptResult { return c.session.DecryptResult() }

// Verify checks sig. With signedText non-nil the signature is detached
// over that text and plain must be nil (engine semantics; not enforced
// here). Otherwise the signature is inline or cleartext and the
// recovered content is written to plain, allocating a sink when nil.
// Per-signature outcomes are available from VerifyResult.
func (c *Context) Verify(sig, signedText, plain *Data) (*Data, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	if sig == nil {
		return nil, callerErr(ErrInvalidValue)
	}
	if signedText == nil && plain == nil {
		plain = NewData()
	}
	if err := c.session.Verify(sig, signedText, plain).Err(); err != nil {
		return nil, err
	}
	c.logger.Debug("verify complete", "detached", signedText != nil)
	return plain, nil
}

// VerifyResult returns the signatures of the most recent verify or
// decrypt-verify, or nil if none ran.
func (c *Context) VerifyResult() *VerifyResult { return c.session.VerifyResult() }

// Sign signs plain with the signer list into sig, allocating a sink when
// nil. With an empty signer list the engine uses its default secret key.
func (c *Context) Sign(plain, sig *Data, mode SigMode) (*Data, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	if plain == nil {
		return nil, callerErr(ErrInvalidValue)
	}
	if sig == nil {
		sig = NewData()
	}
	if err := c.session.Sign(c.signers, plain, sig, mode).Err(); err != nil {
		return nil, err
	}
	c.logger.Debug("sign complete", "mode", mode, "signers", len(c.signers))
	return sig, nil
}

// SignResult returns the record of the most recent sign.
func (c *Context) SignResult() *SignResult { return c.session.SignResult() }

// Encrypt encrypts plain for recipients into cipher, allocating a sink
// when nil. Nil or empty recipients selects symmetric encryption with a
// passphrase from the passphrase callback.
func (c *Context) Encrypt(recipients []*Key, plain, cipher *Data, flags EncryptFlag) (*Data, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	if plain == nil {
		return nil, callerErr(ErrInvalidValue)
	}
	if cipher == nil {
		cipher = NewData()
	}
	if err := c.session.Encrypt(recipients, flags, plain, cipher).Err(); err != nil {
		return nil, err
	}
	c.logger.Debug("encrypt complete", "recipients", len(recipients), "armor", c.armor)
	return cipher, nil
}

// EncryptSign encrypts and signs in one operation, using the signer
// list like Sign does.
func (c *Context) EncryptSign(recipients []*Key, plain, cipher *Data, flags EncryptFlag) (*Data, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	if plain == nil {
		return nil, callerErr(ErrInvalidValue)
	}
	if cipher == nil {
		cipher = NewData()
	}
	if err := c.session.EncryptSign(recipients, c.signers, flags, plain, cipher).Err(); err != nil {
		return nil, err
	}
	c.logger.Debug("encrypt-sign complete", "recipients", len(recipients), "signers", len(c.signers))
	return cipher, nil
}

// EncryptResult returns the failure detail of the most recent encrypt.
func (c *Context) EncryptResult() *EncryptResult { return c.session.EncryptResult() }

// KeyListStart begins a keylisting. Starting while one is already active
// is a caller error (code ErrConflict). Pattern syntax is up to the
// engine; the empty pattern matches everything.
func (c *Context) KeyListStart(pattern string, secretOnly bool) error {
	if c.released {
		return callerErr(ErrInvalidValue)
	}
	if c.listing {
		return callerErr(ErrConflict)
	}
	if err := c.session.KeyListStart(pattern, secretOnly).Err(); err != nil {
		return err
	}
	c.listing = true
	return nil
}

// KeyListNext returns the next key of the active listing. At the end it
// returns an error recognized by IsEOF; the caller must still call
// KeyListEnd.
func (c *Context) KeyListNext() (*Key, error) {
	if c.released {
		return nil, callerErr(ErrInvalidValue)
	}
	if !c.listing {
		return nil, callerErr(ErrConflict)
	}
	key, st := c.session.KeyListNext()
	if err := st.Err(); err != nil {
		return nil, err
	}
	return key, nil
}

// KeyListEnd releases the engine-side iterator. Calling it with no
// active listing is a caller error, not a no-op.
func (c *Context) KeyListEnd() error {
	if c.released {
		return callerErr(ErrInvalidValue)
	}
	if !c.listing {
		return callerErr(ErrConflict)
	}
	c.listing = false
	return c.session.KeyListEnd().Err()
}

// EachKey lists keys matching pattern, calling fn for each. End of
// listing is normal termination, not an error. KeyListEnd runs exactly
// once on every exit path, including a consumer error or panic.
func (c *Context) EachKey(pattern string, secretOnly bool, fn func(*Key) error) (err error) {
	if err := c.KeyListStart(pattern, secretOnly); err != nil {
		return err
	}
	defer func() {
		endErr := c.KeyListEnd()
		if err == nil && endErr != nil {
			err = endErr
		}
	}()
	for {
		key, nextErr := c.KeyListNext()
		if IsEOF(nextErr) {
			return nil
		}
		if nextErr != nil {
			return nextErr
		}
		if err := fn(key); err != nil {
			return err
		}
	}
}

// GetKey looks up a single key by fingerprint. A missing key returns
// (nil, nil); hard errors are returned as errors.
func (c *Context) GetKey(fingerprint string, secret bool) (*Key, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	if fingerprint == "" {
		return nil, callerErr(ErrInvalidValue)
	}
	key, st := c.session.GetKey(fingerprint, secret)
	if st.Code == ErrEOF {
		return nil, nil
	}
	if err := st.Err(); err != nil {
		return nil, err
	}
	return key, nil
}

// Import imports the keys in data into the engine keyring. The outcome
// is available from ImportResult.
func (c *Context) Import(data *Data) error {
	if err := c.ready(); err != nil {
		return err
	}
	if data == nil {
		return callerErr(ErrInvalidValue)
	}
	if err := c.session.Import(data).Err(); err != nil {
		return err
	}
	if res := c.session.ImportResult(); res != nil {
		c.logger.Debug("import complete", "considered", res.Considered, "imported", res.Imported)
	}
	return nil
}

// ImportResult returns the record of the most recent import.
func (c *Context) ImportResult() *ImportResult { return c.session.ImportResult() }

// Export writes the public keys matching patterns into data, allocating
// a sink when nil. Nil patterns exports the whole keyring.
func (c *Context) Export(patterns []string, data *Data) (*Data, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	if data == nil {
		data = NewData()
	}
	if err := c.session.Export(patterns, data).Err(); err != nil {
		return nil, err
	}
	return data, nil
}

// DeleteKey removes key from the engine keyring. Deleting a key with a
// secret part requires allowSecret.
func (c *Context) DeleteKey(key *Key, allowSecret bool) error {
	if err := c.ready(); err != nil {
		return err
	}
	if key == nil {
		return callerErr(ErrInvalidValue)
	}
	return c.session.DeleteKey(key, allowSecret).Err()
}

// GenerateKey creates a key pair from an engine-specific parameter
// block, passed through opaquely. With nil sinks the pair is stored in
// the engine keyring; otherwise the public and secret parts are written
// to pub and sec.
func (c *Context) GenerateKey(params string, pub, sec *Data) error {
	if err := c.ready(); err != nil {
		return err
	}
	if params == "" {
		return callerErr(ErrInvalidValue)
	}
	if err := c.session.GenerateKey(params, pub, sec).Err(); err != nil {
		return err
	}
	c.logger.Debug("generate-key complete")
	return nil
}
