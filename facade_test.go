package pgpme_test

import (
	"bytes"
	"testing"

	"pgpme"
	"pgpme/enginetest"
)

// seededEngine builds a deterministic engine with one secret and one
// public key.
func seededEngine(t *testing.T) (*enginetest.Engine, *pgpme.Key) {
	t.Helper()
	eng := enginetest.New()
	alice := eng.AddKey(aliceSecret())
	eng.AddKey(bobPublic())
	return eng, alice
}

func TestFacadeEncryptDecrypt(t *testing.T) {
	t.Parallel()

	eng, alice := seededEngine(t)
	opts := pgpme.Options{Engine: eng, Armor: true}

	cipher, err := pgpme.Encrypt(
		[]pgpme.KeyRef{pgpme.ByKey(alice)},
		pgpme.NewDataString("facade payload"),
		&pgpme.EncryptOptions{Options: opts},
	)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	// The returned sink is rewound and ready to read.
	raw, err := cipher.ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(raw, []byte("-----BEGIN PGP MESSAGE-----")) {
		t.Errorf("ciphertext not armored: %q", raw[:min(len(raw), 40)])
	}

	plain, err := pgpme.Decrypt(pgpme.NewDataBytes(raw, true), &pgpme.DecryptOptions{Options: opts})
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	got, err := plain.ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "facade payload" {
		t.Errorf("decrypted %q", got)
	}
}

func TestFacadeEncryptByName(t *testing.T) {
	t.Parallel()

	eng, _ := seededEngine(t)
	opts := pgpme.Options{Engine: eng}

	cipher, err := pgpme.Encrypt(
		[]pgpme.KeyRef{pgpme.ByName("alice@example.com")},
		pgpme.NewDataString("to alice"),
		&pgpme.EncryptOptions{Options: opts},
	)
	if err != nil {
		t.Fatalf("Encrypt by name: %v", err)
	}
	raw, _ := cipher.ReadAll()
	if len(raw) == 0 {
		t.Fatal("no ciphertext")
	}

	// A name resolving to no key at all is an error, distinct from the
	// symmetric (empty recipients) case.
	_, err = pgpme.Encrypt(
		[]pgpme.KeyRef{pgpme.ByName("nobody@example.com")},
		pgpme.NewDataString("x"),
		&pgpme.EncryptOptions{Options: opts},
	)
	if pgpme.ErrorCode(err) != pgpme.ErrNoPublicKey {
		t.Errorf("Encrypt to unresolvable name = %v, want ErrNoPublicKey", err)
	}

	// An empty reference is invalid.
	_, err = pgpme.Encrypt(
		[]pgpme.KeyRef{{}},
		pgpme.NewDataString("x"),
		&pgpme.EncryptOptions{Options: opts},
	)
	if pgpme.ErrorCode(err) != pgpme.ErrInvalidValue {
		t.Errorf("Encrypt with zero KeyRef = %v, want ErrInvalidValue", err)
	}
}

func TestFacadeEncryptSignAndDecryptVerify(t *testing.T) {
	t.Parallel()

	eng, alice := seededEngine(t)
	opts := pgpme.Options{Engine: eng}

	cipher, err := pgpme.Encrypt(
		[]pgpme.KeyRef{pgpme.ByKey(alice)},
		pgpme.NewDataString("sealed"),
		&pgpme.EncryptOptions{
			Options: opts,
			Sign:    true,
			Signers: []pgpme.KeyRef{pgpme.ByName("alice@example.com")},
		},
	)
	if err != nil {
		t.Fatalf("Encrypt with Sign: %v", err)
	}
	raw, _ := cipher.ReadAll()

	plain, res, err := pgpme.DecryptVerify(pgpme.NewDataBytes(raw, true), &pgpme.DecryptOptions{Options: opts})
	if err != nil {
		t.Fatalf("DecryptVerify: %v", err)
	}
	got, _ := plain.ReadAll()
	if string(got) != "sealed" {
		t.Errorf("decrypted %q", got)
	}
	if res == nil || len(res.Signatures) != 1 || !res.Signatures[0].Valid() {
		t.Fatalf("VerifyResult = %+v, want one valid signature", res)
	}
	if res.Signatures[0].Fingerprint != alice.Fingerprint() {
		t.Errorf("signer = %q, want %q", res.Signatures[0].Fingerprint, alice.Fingerprint())
	}
}

func TestFacadeDecryptVerifyUnsigned(t *testing.T) {
	t.Parallel()

	eng, alice := seededEngine(t)
	opts := pgpme.Options{Engine: eng}

	cipher, err := pgpme.Encrypt([]pgpme.KeyRef{pgpme.ByKey(alice)}, pgpme.NewDataString("plain"), &pgpme.EncryptOptions{Options: opts})
	if err != nil {
		t.Fatal(err)
	}
	raw, _ := cipher.ReadAll()

	_, res, err := pgpme.DecryptVerify(pgpme.NewDataBytes(raw, true), &pgpme.DecryptOptions{Options: opts})
	if err != nil {
		t.Fatalf("DecryptVerify: %v", err)
	}
	if res == nil {
		t.Fatal("VerifyResult = nil for an unsigned message; want empty result")
	}
	if res.Signatures == nil || len(res.Signatures) != 0 {
		t.Errorf("Signatures = %v, want empty non-nil slice", res.Signatures)
	}
}

func TestFacadeSignAndVerifyDetached(t *testing.T) {
	t.Parallel()

	eng, _ := seededEngine(t)
	opts := pgpme.Options{Engine: eng, Armor: true}

	sig, err := pgpme.Sign(pgpme.NewDataString("document"), &pgpme.SignOptions{
		Options: opts,
		Signers: []pgpme.KeyRef{pgpme.ByName("alice@example.com")},
		Mode:    pgpme.SigModeDetach,
	})
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	sigRaw, _ := sig.ReadAll()

	plain, res, err := pgpme.Verify(pgpme.NewDataBytes(sigRaw, true), &pgpme.VerifyOptions{
		Options:    opts,
		SignedText: pgpme.NewDataString("document"),
	})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if plain != nil {
		t.Error("detached verification returned recovered content")
	}
	if res == nil || len(res.Signatures) != 1 || !res.Signatures[0].Valid() {
		t.Fatalf("VerifyResult = %+v, want one valid signature", res)
	}

	// Signing with a name that matches no secret key fails.
	_, err = pgpme.Sign(pgpme.NewDataString("x"), &pgpme.SignOptions{
		Options: opts,
		Signers: []pgpme.KeyRef{pgpme.ByName("bob@example.com")},
	})
	if pgpme.ErrorCode(err) != pgpme.ErrNoSecretKey {
		t.Errorf("Sign with unresolvable signer = %v, want ErrNoSecretKey", err)
	}
}

func TestFacadeVerifyInline(t *testing.T) {
	t.Parallel()

	eng, _ := seededEngine(t)
	opts := pgpme.Options{Engine: eng}

	sig, err := pgpme.Sign(pgpme.NewDataString("inline body"), &pgpme.SignOptions{Options: opts})
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	raw, _ := sig.ReadAll()

	plain, res, err := pgpme.Verify(pgpme.NewDataBytes(raw, true), &pgpme.VerifyOptions{Options: opts})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if plain == nil {
		t.Fatal("inline verification returned no content")
	}
	got, _ := plain.ReadAll()
	if string(got) != "inline body" {
		t.Errorf("recovered %q", got)
	}
	if res == nil || len(res.Signatures) != 1 || !res.Signatures[0].Valid() {
		t.Fatalf("VerifyResult = %+v", res)
	}
}

func TestFacadeSignAmbiguousSigner(t *testing.T) {
	t.Parallel()

	eng := enginetest.New()
	eng.AddKey(enginetest.KeySpec{Name: "One", Email: "one@example.com", Secret: true})
	eng.AddKey(enginetest.KeySpec{Name: "Two", Email: "two@example.com", Secret: true})

	_, err := pgpme.Sign(pgpme.NewDataString("text"), &pgpme.SignOptions{
		Options: pgpme.Options{Engine: eng},
		Signers: []pgpme.KeyRef{pgpme.ByName("example.com")},
	})
	if pgpme.ErrorCode(err) != pgpme.ErrAmbiguousName {
		t.Fatalf("Sign with one name matching two keys = %v, want ambiguous name", err)
	}

	// Two explicit refs are a deliberate multi-signer request.
	out, err := pgpme.Sign(pgpme.NewDataString("text"), &pgpme.SignOptions{
		Options: pgpme.Options{Engine: eng},
		Signers: []pgpme.KeyRef{pgpme.ByName("one@example.com"), pgpme.ByName("two@example.com")},
	})
	if err != nil || out == nil {
		t.Fatalf("Sign with two signers = (%v, %v)", out, err)
	}
}

func TestFacadeListKeys(t *testing.T) {
	t.Parallel()

	eng, alice := seededEngine(t)
	opts := &pgpme.Options{Engine: eng}

	keys, err := pgpme.ListKeys("", false, opts)
	if err != nil {
		t.Fatalf("ListKeys: %v", err)
	}
	if len(keys) != 2 {
		t.Errorf("ListKeys returned %d keys, want 2", len(keys))
	}

	secret, err := pgpme.ListKeys("", true, opts)
	if err != nil {
		t.Fatalf("ListKeys(secret): %v", err)
	}
	if len(secret) != 1 || secret[0].Fingerprint() != alice.Fingerprint() {
		t.Errorf("secret ListKeys = %v", secret)
	}

	found, err := pgpme.FindKeys(alice.Fingerprint(), false, opts)
	if err != nil || len(found) != 1 {
		t.Errorf("FindKeys = (%v, %v), want one key", found, err)
	}

	key, err := pgpme.GetKey(alice.Fingerprint(), false, opts)
	if err != nil || key == nil {
		t.Fatalf("GetKey = (%v, %v)", key, err)
	}
	missing, err := pgpme.GetKey("0000000000000000000000000000000000000000", false, opts)
	if err != nil || missing != nil {
		t.Errorf("GetKey of missing = (%v, %v), want (nil, nil)", missing, err)
	}

	var count int
	if err := pgpme.EachKey("example.com", false, opts, func(*pgpme.Key) error {
		count++
		return nil
	}); err != nil {
		t.Fatalf("EachKey: %v", err)
	}
	if count != 2 {
		t.Errorf("EachKey visited %d keys, want 2", count)
	}
}

func TestFacadeSymmetric(t *testing.T) {
	t.Parallel()

	eng := enginetest.New()
	opts := pgpme.Options{Engine: eng, Passphrase: pgpme.FixedPassphrase("pw")}

	cipher, err := pgpme.Encrypt(nil, pgpme.NewDataString("secret note"), &pgpme.EncryptOptions{Options: opts})
	if err != nil {
		t.Fatalf("symmetric Encrypt: %v", err)
	}
	raw, _ := cipher.ReadAll()

	plain, err := pgpme.Decrypt(pgpme.NewDataBytes(raw, true), &pgpme.DecryptOptions{Options: opts})
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	got, _ := plain.ReadAll()
	if string(got) != "secret note" {
		t.Errorf("decrypted %q", got)
	}
}

func TestFacadeNilInputs(t *testing.T) {
	t.Parallel()

	eng := enginetest.New()
	opts := pgpme.Options{Engine: eng}

	if _, err := pgpme.Encrypt(nil, nil, &pgpme.EncryptOptions{Options: opts}); pgpme.ErrorCode(err) != pgpme.ErrInvalidValue {
		t.Errorf("Encrypt(nil plain) = %v, want ErrInvalidValue", err)
	}
	if _, err := pgpme.Decrypt(nil, &pgpme.DecryptOptions{Options: opts}); pgpme.ErrorCode(err) != pgpme.ErrInvalidValue {
		t.Errorf("Decrypt(nil cipher) = %v, want ErrInvalidValue", err)
	}
	if _, err := pgpme.Sign(nil, &pgpme.SignOptions{Options: opts}); pgpme.ErrorCode(err) != pgpme.ErrInvalidValue {
		t.Errorf("Sign(nil plain) = %v, want ErrInvalidValue", err)
	}
	if _, _, err := pgpme.Verify(nil, &pgpme.VerifyOptions{Options: opts}); pgpme.ErrorCode(err) != pgpme.ErrInvalidValue {
		t.Errorf("Verify(nil sig) = %v, want ErrInvalidValue", err)
	}
}

func TestFacadeOutputSink(t *testing.T) {
	t.Parallel()

	eng, alice := seededEngine(t)
	opts := pgpme.Options{Engine: eng}

	sink := pgpme.NewData()
	out, err := pgpme.Encrypt(
		[]pgpme.KeyRef{pgpme.ByKey(alice)},
		pgpme.NewDataString("into the sink"),
		&pgpme.EncryptOptions{Options: opts, Output: sink},
	)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if out != sink {
		t.Error("Encrypt did not return the provided sink")
	}
	raw, _ := out.ReadAll()
	if len(raw) == 0 {
		t.Error("provided sink left empty")
	}
}
