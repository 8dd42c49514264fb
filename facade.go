package pgpme

import "io"

// KeyRef names a key for the one-shot functions: either an explicit Key
// or a pattern resolved through keylisting. The two constructors are the
// only ways to make one.
type KeyRef struct {
	key     *Key
	pattern string
}

// ByKey references an already-fetched key.
func ByKey(k *Key) KeyRef { return KeyRef{key: k} }

// ByName references keys by listing pattern (fingerprint, key id, or
// user id substring). A name may resolve to zero or more keys.
func ByName(pattern string) KeyRef { return KeyRef{pattern: pattern} }

// resolve expands the reference into concrete keys via ctx.
func (r KeyRef) resolve(ctx *Context, secretOnly bool) ([]*Key, error) {
	if r.key != nil {
		return []*Key{r.key}, nil
	}
	if r.pattern == "" {
		return nil, callerErr(ErrInvalidValue)
	}
	var keys []*Key
	err := ctx.EachKey(r.pattern, secretOnly, func(k *Key) error {
		keys = append(keys, k)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func resolveAll(ctx *Context, refs []KeyRef, secretOnly bool) ([]*Key, error) {
	var keys []*Key
	for _, r := range refs {
		ks, err := r.resolve(ctx, secretOnly)
		if err != nil {
			return nil, err
		}
		keys = append(keys, ks...)
	}
	return keys, nil
}

// EncryptOptions configures the one-shot Encrypt.
type EncryptOptions struct {
	Options
	// Sign also signs the plaintext, with Signers or the engine default
	// key.
	Sign    bool
	Signers []KeyRef
	Flags   EncryptFlag
	// Output receives the ciphertext; nil allocates a fresh buffer.
	Output *Data
}

// DecryptOptions configures the one-shot Decrypt and DecryptVerify.
type DecryptOptions struct {
	Options
	Output *Data
}

// SignOptions configures the one-shot Sign.
type SignOptions struct {
	Options
	Signers []KeyRef
	Mode    SigMode
	Output  *Data
}

// VerifyOptions configures the one-shot Verify.
type VerifyOptions struct {
	Options
	// SignedText makes the verification detached over this content.
	SignedText *Data
	// Output receives the recovered content of an inline or cleartext
	// signature; ignored for detached verification.
	Output *Data
}

// rewound seeks an output sink back to the start so the caller can read
// what the operation produced. Write-only callback sinks cannot seek;
// they are returned as-is.
func rewound(d *Data) *Data {
	_, _ = d.Seek(0, io.SeekStart)
	return d
}

// Encrypt encrypts plain for the given recipients with a throwaway
// Context. Nil or empty recipients selects symmetric encryption. The
// returned Data is rewound and ready to read.
func Encrypt(recipients []KeyRef, plain *Data, opts *EncryptOptions) (*Data, error) {
	if opts == nil {
		opts = &EncryptOptions{}
	}
	if plain == nil {
		return nil, callerErr(ErrInvalidValue)
	}
	ctx, err := New(opts.Options)
	if err != nil {
		return nil, err
	}
	defer func() { _ = ctx.Release() }()

	keys, err := resolveAll(ctx, recipients, false)
	if err != nil {
		return nil, err
	}
	if len(recipients) > 0 && len(keys) == 0 {
		return nil, callerErr(ErrNoPublicKey)
	}

	out := opts.Output
	if out == nil {
		out = NewData()
	}
	if opts.Sign {
		signers, err := resolveAll(ctx, opts.Signers, true)
		if err != nil {
			return nil, err
		}
		if err := ctx.AddSigner(signers...); err != nil {
			return nil, err
		}
		if _, err := ctx.EncryptSign(keys, plain, out, opts.Flags); err != nil {
			return nil, err
		}
	} else {
		if _, err := ctx.Encrypt(keys, plain, out, opts.Flags); err != nil {
			return nil, err
		}
	}
	return rewound(out), nil
}

// Decrypt decrypts cipher with a throwaway Context. The returned Data is
// rewound and ready to read.
func Decrypt(cipher *Data, opts *DecryptOptions) (*Data, error) {
	if opts == nil {
		opts = &DecryptOptions{}
	}
	if cipher == nil {
		return nil, callerErr(ErrInvalidValue)
	}
	ctx, err := New(opts.Options)
	if err != nil {
		return nil, err
	}
	defer func() { _ = ctx.Release() }()

	out := opts.Output
	if out == nil {
		out = NewData()
	}
	if _, err := ctx.Decrypt(cipher, out); err != nil {
		return nil, err
	}
	return rewound(out), nil
}

// DecryptVerify decrypts cipher and verifies embedded signatures in the
// same pass. The returned VerifyResult is nil when the engine produced
// no verification outcome at all; a non-nil result with an empty
// Signatures slice means verification ran and found none. The two states
// are deliberately distinct.
func DecryptVerify(cipher *Data, opts *DecryptOptions) (*Data, *VerifyResult, error) {
	if opts == nil {
		opts = &DecryptOptions{}
	}
	if cipher == nil {
		return nil, nil, callerErr(ErrInvalidValue)
	}
	ctx, err := New(opts.Options)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = ctx.Release() }()

	out := opts.Output
	if out == nil {
		out = NewData()
	}
	if _, err := ctx.DecryptVerify(cipher, out); err != nil {
		return nil, nil, err
	}
	return rewound(out), ctx.VerifyResult(), nil
}

// Sign signs plain with a throwaway Context. Signers are resolved
// against secret keys; with none given the engine uses its default key.
// The returned Data is rewound and ready to read.
func Sign(plain *Data, opts *SignOptions) (*Data, error) {
	if opts == nil {
		opts = &SignOptions{}
	}
	if plain == nil {
		return nil, callerErr(ErrInvalidValue)
	}
	ctx, err := New(opts.Options)
	if err != nil {
		return nil, err
	}
	defer func() { _ = ctx.Release() }()

	signers, err := resolveAll(ctx, opts.Signers, true)
	if err != nil {
		return nil, err
	}
	if len(opts.Signers) > 0 && len(signers) == 0 {
		return nil, callerErr(ErrNoSecretKey)
	}
	// A single name that matches several secret keys is ambiguous: the
	// caller asked for one signer, not a set.
	if len(opts.Signers) == 1 && len(signers) > 1 {
		return nil, callerErr(ErrAmbiguousName)
	}
	if err := ctx.AddSigner(signers...); err != nil {
		return nil, err
	}

	out := opts.Output
	if out == nil {
		out = NewData()
	}
	if _, err := ctx.Sign(plain, out, opts.Mode); err != nil {
		return nil, err
	}
	return rewound(out), nil
}

// Verify checks sig with a throwaway Context. With opts.SignedText set
// the signature is detached and the returned Data is nil; otherwise the
// recovered content is returned rewound. The VerifyResult carries the
// per-signature outcomes.
func Verify(sig *Data, opts *VerifyOptions) (*Data, *VerifyResult, error) {
	if opts == nil {
		opts = &VerifyOptions{}
	}
	if sig == nil {
		return nil, nil, callerErr(ErrInvalidValue)
	}
	ctx, err := New(opts.Options)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = ctx.Release() }()

	var plain *Data
	if opts.SignedText == nil {
		plain = opts.Output
		if plain == nil {
			plain = NewData()
		}
	}
	if _, err := ctx.Verify(sig, opts.SignedText, plain); err != nil {
		return nil, nil, err
	}
	if plain != nil {
		plain = rewound(plain)
	}
	return plain, ctx.VerifyResult(), nil
}

// EachKey lists keys matching pattern with a throwaway Context, calling
// fn for each. The empty pattern matches everything; secretOnly lists
// only keys with a secret part.
func EachKey(pattern string, secretOnly bool, opts *Options, fn func(*Key) error) error {
	var o Options
	if opts != nil {
		o = *opts
	}
	ctx, err := New(o)
	if err != nil {
		return err
	}
	defer func() { _ = ctx.Release() }()
	return ctx.EachKey(pattern, secretOnly, fn)
}

// ListKeys collects the keys matching pattern.
func ListKeys(pattern string, secretOnly bool, opts *Options) ([]*Key, error) {
	var keys []*Key
	err := EachKey(pattern, secretOnly, opts, func(k *Key) error {
		keys = append(keys, k)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// FindKeys is ListKeys under its traditional name.
func FindKeys(pattern string, secretOnly bool, opts *Options) ([]*Key, error) {
	return ListKeys(pattern, secretOnly, opts)
}

// GetKey looks up one key by fingerprint with a throwaway Context,
// returning (nil, nil) when absent.
func GetKey(fingerprint string, secret bool, opts *Options) (*Key, error) {
	var o Options
	if opts != nil {
		o = *opts
	}
	ctx, err := New(o)
	if err != nil {
		return nil, err
	}
	defer func() { _ = ctx.Release() }()
	return ctx.GetKey(fingerprint, secret)
}
