package openpgp

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/ProtonMail/gopenpgp/v3/constants"
	"github.com/ProtonMail/gopenpgp/v3/crypto"

	"pgpme"
)

// session is one engine session. Not safe for concurrent use, matching
// the Session contract.
type session struct {
	eng      *Engine
	id       string
	armor    bool
	textmode bool
	klMode   pgpme.KeyListMode

	passCB   pgpme.PassphraseFunc
	passHook any
	progCB   pgpme.ProgressFunc
	progHook any

	listing bool
	iter    []*crypto.Key
	iterIdx int

	encryptRes *pgpme.EncryptResult
	decryptRes *pgpme.DecryptResult
	verifyRes  *pgpme.VerifyResult
	signRes    *pgpme.SignResult
	importRes  *pgpme.ImportResult

	released bool
}

var _ pgpme.Session = (*session)(nil)

func ok() pgpme.Status { return pgpme.Status{} }

func fail(code pgpme.ErrCode) pgpme.Status {
	return pgpme.Status{Source: pgpme.SourceEngine, Code: code}
}

func (s *session) SetArmor(yes bool)                     { s.armor = yes }
func (s *session) SetTextMode(yes bool)                  { s.textmode = yes }
func (s *session) SetKeyListMode(mode pgpme.KeyListMode) { s.klMode = mode }

func (s *session) SetPassphraseCallback(cb pgpme.PassphraseFunc, hook any) {
	s.passCB, s.passHook = cb, hook
}

func (s *session) SetProgressCallback(cb pgpme.ProgressFunc, hook any) {
	s.progCB, s.progHook = cb, hook
}

func (s *session) Release() pgpme.Status {
	s.eng.logger.Debug("session released", "session", s.id)
	s.released = true
	s.iter = nil
	s.listing = false
	return ok()
}

func (s *session) guard() pgpme.Status {
	if s.released {
		return fail(pgpme.ErrInvalidValue)
	}
	return ok()
}

func (s *session) progress(what string, current, total int) {
	if s.progCB != nil {
		s.progCB(s.progHook, what, 0, current, total)
	}
}

func (s *session) askPassphrase(uidHint string) (string, pgpme.Status) {
	if s.passCB == nil {
		return "", fail(pgpme.ErrBadPassphrase)
	}
	pw, err := s.passCB(s.passHook, uidHint, false)
	if err != nil {
		return "", fail(pgpme.ErrCanceled)
	}
	return pw, ok()
}

// unlockKey returns a usable copy of key, running the passphrase
// callback for locked keys with up to three attempts.
func (s *session) unlockKey(key *crypto.Key) (*crypto.Key, pgpme.Status) {
	locked, err := key.IsLocked()
	if err != nil {
		return nil, fail(pgpme.ErrGeneral)
	}
	if !locked {
		return key, ok()
	}
	if s.passCB == nil {
		return nil, fail(pgpme.ErrBadPassphrase)
	}
	uid := ""
	if u := snapshotKey(key, s.klMode).PrimaryUserID(); u != nil {
		uid = u.UID
	}
	prevWasBad := false
	for attempt := 0; attempt < 3; attempt++ {
		pw, err := s.passCB(s.passHook, uid, prevWasBad)
		if err != nil {
			return nil, fail(pgpme.ErrCanceled)
		}
		unlocked, err := key.Unlock([]byte(pw))
		if err == nil {
			return unlocked, ok()
		}
		prevWasBad = true
	}
	return nil, fail(pgpme.ErrBadPassphrase)
}

func readInput(d *pgpme.Data) ([]byte, pgpme.Status) {
	b, err := d.ReadAll()
	if err != nil {
		return nil, fail(pgpme.ErrGeneral)
	}
	return b, ok()
}

func writeOutput(d *pgpme.Data, b []byte) pgpme.Status {
	for len(b) > 0 {
		n, err := d.Write(b)
		if err != nil {
			return fail(pgpme.ErrGeneral)
		}
		b = b[n:]
	}
	return ok()
}

// resolveSigners maps the signer list onto private keyring entries,
// unlocking each, with the default secret key for an empty list.
func (s *session) resolveSigners(signers []*pgpme.Key, res *pgpme.SignResult) (*crypto.KeyRing, []*crypto.Key, pgpme.Status) {
	var keys []*crypto.Key
	if len(signers) == 0 {
		key := s.eng.defaultSigner()
		if key == nil {
			return nil, nil, fail(pgpme.ErrNoSecretKey)
		}
		keys = []*crypto.Key{key}
	} else {
		for _, k := range signers {
			key := s.eng.lookup(k.Fingerprint())
			if key == nil || !key.IsPrivate() {
				res.InvalidSigners = append(res.InvalidSigners, pgpme.InvalidKey{
					Fingerprint: k.Fingerprint(),
					Reason:      fail(pgpme.ErrNoSecretKey),
				})
				return nil, nil, fail(pgpme.ErrNoSecretKey)
			}
			if snapshotKey(key, s.klMode).Trust() != pgpme.TrustValid {
				res.InvalidSigners = append(res.InvalidSigners, pgpme.InvalidKey{
					Fingerprint: k.Fingerprint(),
					Reason:      fail(pgpme.ErrUnusableSecretKey),
				})
				return nil, nil, fail(pgpme.ErrUnusableSecretKey)
			}
			keys = append(keys, key)
		}
	}

	kr, err := crypto.NewKeyRing(nil)
	if err != nil {
		return nil, nil, fail(pgpme.ErrGeneral)
	}
	for _, key := range keys {
		unlocked, st := s.unlockKey(key)
		if st.Code != pgpme.ErrNoError {
			return nil, nil, st
		}
		if err := kr.AddKey(unlocked); err != nil {
			return nil, nil, fail(pgpme.ErrGeneral)
		}
	}
	return kr, keys, ok()
}

func (s *session) CheckSigner(key *pgpme.Key) pgpme.Status {
	if st := s.guard(); st.Code != pgpme.ErrNoError {
		return st
	}
	stored := s.eng.lookup(key.Fingerprint())
	if stored == nil || !stored.IsPrivate() {
		return fail(pgpme.ErrNoSecretKey)
	}
	if snapshotKey(stored, s.klMode).Trust() != pgpme.TrustValid {
		return fail(pgpme.ErrUnusableSecretKey)
	}
	return ok()
}

func (s *session) Encrypt(recipients []*pgpme.Key, flags pgpme.EncryptFlag, plain, cipher *pgpme.Data) pgpme.Status {
	return s.encrypt(recipients, nil, flags, plain, cipher, false)
}

func (s *session) EncryptSign(recipients, signers []*pgpme.Key, flags pgpme.EncryptFlag, plain, cipher *pgpme.Data) pgpme.Status {
	return s.encrypt(recipients, signers, flags, plain, cipher, true)
}

func (s *session) encrypt(recipients, signers []*pgpme.Key, flags pgpme.EncryptFlag, plain, cipher *pgpme.Data, sign bool) pgpme.Status {
	if st := s.guard(); st.Code != pgpme.ErrNoError {
		return st
	}
	body, st := readInput(plain)
	if st.Code != pgpme.ErrNoError {
		return st
	}

	res := &pgpme.EncryptResult{}
	s.encryptRes = res

	builder := s.eng.pgp.Encryption()
	if len(recipients) == 0 {
		pw, st := s.askPassphrase("")
		if st.Code != pgpme.ErrNoError {
			return st
		}
		builder = builder.Password([]byte(pw))
	} else {
		kr, err := crypto.NewKeyRing(nil)
		if err != nil {
			return fail(pgpme.ErrGeneral)
		}
		for _, r := range recipients {
			key := s.eng.lookup(r.Fingerprint())
			var snap *pgpme.Key
			if key != nil {
				snap = snapshotKey(key, s.klMode)
			}
			usable := snap != nil && snap.CanEncrypt &&
				(snap.Trust() == pgpme.TrustValid || flags&pgpme.EncryptAlwaysTrust != 0)
			if !usable {
				res.InvalidRecipients = append(res.InvalidRecipients, pgpme.InvalidKey{
					Fingerprint: r.Fingerprint(),
					Reason:      fail(pgpme.ErrUnusablePublicKey),
				})
				continue
			}
			pub, err := key.ToPublic()
			if err != nil {
				return fail(pgpme.ErrGeneral)
			}
			if err := kr.AddKey(pub); err != nil {
				return fail(pgpme.ErrGeneral)
			}
		}
		if len(res.InvalidRecipients) > 0 {
			return fail(pgpme.ErrUnusablePublicKey)
		}
		builder = builder.Recipients(kr)
	}
	if flags&pgpme.EncryptNoCompress == 0 {
		builder = builder.Compress()
	}
	if s.textmode {
		builder = builder.Utf8()
	}

	var signerKeys []*crypto.Key
	if sign {
		signRes := &pgpme.SignResult{}
		s.signRes = signRes
		skr, keys, st := s.resolveSigners(signers, signRes)
		if st.Code != pgpme.ErrNoError {
			return st
		}
		builder = builder.SigningKeys(skr)
		signerKeys = keys
	}

	// The handle borrows the engine's stored keys; clearing its private
	// params would zeroize them in place and break later operations.
	handle, err := builder.New()
	if err != nil {
		return fail(pgpme.ErrGeneral)
	}

	msg, err := handle.Encrypt(body)
	if err != nil {
		s.eng.logger.Error("encrypt failed", "session", s.id, "error", err)
		return fail(pgpme.ErrGeneral)
	}

	var out []byte
	if s.armor {
		armored, err := msg.Armor()
		if err != nil {
			return fail(pgpme.ErrGeneral)
		}
		out = []byte(armored)
	} else {
		out = msg.Bytes()
	}

	if sign {
		s.signRes.Signatures = newSignatures(signerKeys, pgpme.SigModeNormal, s.klMode)
	}
	s.eng.logger.Debug("encrypted", "session", s.id, "recipients", len(recipients), "signed", sign)
	return writeOutput(cipher, out)
}

func (s *session) EncryptResult() *pgpme.EncryptResult { return s.encryptRes }

func newSignatures(keys []*crypto.Key, mode pgpme.SigMode, klMode pgpme.KeyListMode) []pgpme.NewSignature {
	now := time.Now().Truncate(time.Second)
	sigs := make([]pgpme.NewSignature, 0, len(keys))
	for _, key := range keys {
		snap := snapshotKey(key, klMode)
		algo := pgpme.PubKeyRSA
		if sk := snap.PrimarySubKey(); sk != nil {
			algo = sk.PubKeyAlgo
		}
		sigs = append(sigs, pgpme.NewSignature{
			Type:        mode,
			PubKeyAlgo:  algo,
			HashAlgo:    pgpme.HashSHA256,
			Created:     now,
			Fingerprint: snap.Fingerprint(),
		})
	}
	return sigs
}

func (s *session) Decrypt(cipher, plain *pgpme.Data) pgpme.Status {
	return s.decrypt(cipher, plain, false)
}

func (s *session) DecryptVerify(cipher, plain *pgpme.Data) pgpme.Status {
	return s.decrypt(cipher, plain, true)
}

func (s *session) decrypt(cipher, plain *pgpme.Data, withVerify bool) pgpme.Status {
	if st := s.guard(); st.Code != pgpme.ErrNoError {
		return st
	}
	raw, st := readInput(cipher)
	if st.Code != pgpme.ErrNoError {
		return st
	}

	try := func(kr *crypto.KeyRing, password []byte) (*crypto.VerifiedDataResult, error) {
		builder := s.eng.pgp.Decryption()
		if kr != nil && kr.CountEntities() > 0 {
			builder = builder.DecryptionKeys(kr)
		}
		if password != nil {
			builder = builder.Password(password)
		}
		if withVerify {
			vkr, err := s.eng.verificationKeys()
			if err != nil {
				return nil, err
			}
			builder = builder.VerificationKeys(vkr)
		}
		// The handle borrows the engine's stored keys; no ClearPrivateParams.
		handle, err := builder.New()
		if err != nil {
			return nil, err
		}
		return handle.Decrypt(raw, crypto.Auto)
	}

	// First pass with the keys already usable, then unlock locked keys,
	// then fall back to a symmetric passphrase.
	kr, err := crypto.NewKeyRing(nil)
	if err != nil {
		return fail(pgpme.ErrGeneral)
	}
	var locked []*crypto.Key
	for _, key := range s.eng.list("", true) {
		isLocked, err := key.IsLocked()
		if err != nil {
			return fail(pgpme.ErrGeneral)
		}
		if isLocked {
			locked = append(locked, key)
			continue
		}
		if err := kr.AddKey(key); err != nil {
			return fail(pgpme.ErrGeneral)
		}
	}

	result, err := try(kr, nil)
	if err != nil && len(locked) > 0 && s.passCB != nil {
		for _, key := range locked {
			unlocked, st := s.unlockKey(key)
			if st.Code != pgpme.ErrNoError {
				return st
			}
			if err := kr.AddKey(unlocked); err != nil {
				return fail(pgpme.ErrGeneral)
			}
		}
		result, err = try(kr, nil)
	}
	if err != nil && s.passCB != nil {
		pw, st := s.askPassphrase("")
		if st.Code != pgpme.ErrNoError {
			return st
		}
		result, err = try(nil, []byte(pw))
	}
	if err != nil {
		s.eng.logger.Error("decrypt failed", "session", s.id, "error", err)
		return fail(pgpme.ErrDecryptFailed)
	}

	s.decryptRes = &pgpme.DecryptResult{}
	if withVerify {
		s.verifyRes = s.verifyResultFrom(result.Signatures)
	}
	s.eng.logger.Debug("decrypted", "session", s.id, "verified", withVerify)
	return writeOutput(plain, result.Bytes())
}

func (s *session) DecryptResult() *pgpme.DecryptResult { return s.decryptRes }

func (s *session) Sign(signers []*pgpme.Key, plain, sig *pgpme.Data, mode pgpme.SigMode) pgpme.Status {
	if st := s.guard(); st.Code != pgpme.ErrNoError {
		return st
	}
	body, st := readInput(plain)
	if st.Code != pgpme.ErrNoError {
		return st
	}

	res := &pgpme.SignResult{}
	s.signRes = res
	skr, keys, st := s.resolveSigners(signers, res)
	if st.Code != pgpme.ErrNoError {
		return st
	}

	builder := s.eng.pgp.Sign().SigningKeys(skr)
	if mode == pgpme.SigModeDetach {
		builder = builder.Detached()
	}
	if s.textmode {
		builder = builder.Utf8()
	}
	// The handle borrows the engine's stored keys; no ClearPrivateParams.
	handle, err := builder.New()
	if err != nil {
		return fail(pgpme.ErrGeneral)
	}

	var out []byte
	if mode == pgpme.SigModeClear {
		out, err = handle.SignCleartext(body)
	} else {
		encoding := crypto.Bytes
		if s.armor {
			encoding = crypto.Armor
		}
		out, err = handle.Sign(body, encoding)
	}
	if err != nil {
		s.eng.logger.Error("sign failed", "session", s.id, "error", err)
		return fail(pgpme.ErrGeneral)
	}

	res.Signatures = newSignatures(keys, mode, s.klMode)
	s.eng.logger.Debug("signed", "session", s.id, "mode", mode.String())
	return writeOutput(sig, out)
}

func (s *session) SignResult() *pgpme.SignResult { return s.signRes }

func (s *session) Verify(sig, signedText, plain *pgpme.Data) pgpme.Status {
	if st := s.guard(); st.Code != pgpme.ErrNoError {
		return st
	}
	raw, st := readInput(sig)
	if st.Code != pgpme.ErrNoError {
		return st
	}

	vkr, err := s.eng.verificationKeys()
	if err != nil {
		return fail(pgpme.ErrGeneral)
	}
	verifier, err := s.eng.pgp.Verify().VerificationKeys(vkr).New()
	if err != nil {
		return fail(pgpme.ErrGeneral)
	}

	switch {
	case signedText != nil:
		text, st := readInput(signedText)
		if st.Code != pgpme.ErrNoError {
			return st
		}
		result, err := verifier.VerifyDetached(text, raw, crypto.Auto)
		if err != nil {
			return fail(pgpme.ErrNoData)
		}
		s.verifyRes = s.verifyResultFrom(result.Signatures)

	case bytes.HasPrefix(bytes.TrimSpace(raw), []byte("-----BEGIN PGP SIGNED MESSAGE-----")):
		result, err := verifier.VerifyCleartext(raw)
		if err != nil {
			return fail(pgpme.ErrNoData)
		}
		if plain != nil {
			if st := writeOutput(plain, result.Cleartext()); st.Code != pgpme.ErrNoError {
				return st
			}
		}
		s.verifyRes = s.verifyResultFrom(result.Signatures)

	default:
		result, err := verifier.VerifyInline(raw, crypto.Auto)
		if err != nil {
			return fail(pgpme.ErrNoData)
		}
		if plain != nil {
			if st := writeOutput(plain, result.Bytes()); st.Code != pgpme.ErrNoError {
				return st
			}
		}
		s.verifyRes = s.verifyResultFrom(result.Signatures)
	}
	return ok()
}

func (s *session) VerifyResult() *pgpme.VerifyResult { return s.verifyRes }

// verifyResultFrom translates gopenpgp per-signature outcomes into
// Signature records. The result is never nil.
func (s *session) verifyResultFrom(verified []*crypto.VerifiedSignature) *pgpme.VerifyResult {
	res := &pgpme.VerifyResult{Signatures: []pgpme.Signature{}}
	now := time.Now()
	for _, vs := range verified {
		sig := pgpme.Signature{}
		if vs.Signature != nil {
			sig.Created = vs.Signature.CreationTime
			sig.PubKeyAlgo = pgpme.PubKeyAlgo(vs.Signature.PubKeyAlgo)
			if h, known := hashAlgoIDs[vs.Signature.Hash]; known {
				sig.HashAlgo = h
			}
			if len(vs.Signature.IssuerFingerprint) > 0 {
				sig.Fingerprint = fingerprintString(vs.Signature.IssuerFingerprint)
			} else if vs.Signature.IssuerKeyId != nil {
				sig.Fingerprint = fmt.Sprintf("%016X", *vs.Signature.IssuerKeyId)
			}
			if vs.Signature.SigLifetimeSecs != nil && *vs.Signature.SigLifetimeSecs > 0 {
				sig.Expires = vs.Signature.CreationTime.Add(time.Duration(*vs.Signature.SigLifetimeSecs) * time.Second)
			}
			for _, n := range vs.Signature.Notations {
				sig.Notations = append(sig.Notations, pgpme.Notation{
					Name:          n.Name,
					Value:         string(n.Value),
					Critical:      n.IsCritical,
					HumanReadable: n.IsHumanReadable,
				})
			}
		}

		if vs.SignatureError == nil {
			sig.Summary = pgpme.SigSumValid | pgpme.SigSumGreen
			sig.Validity = pgpme.ValidityFull
			if !sig.Expires.IsZero() && now.After(sig.Expires) {
				sig.Summary |= pgpme.SigSumSigExpired
			}
			if key := s.eng.lookup(sig.Fingerprint); key != nil {
				snap := snapshotKey(key, s.klMode)
				if snap.Revoked {
					sig.Summary |= pgpme.SigSumKeyRevoked
				}
				if snap.Expired {
					sig.Summary |= pgpme.SigSumKeyExpired
				}
			}
		} else {
			switch vs.SignatureError.Status {
			case constants.SIGNATURE_NO_VERIFIER:
				sig.Status = fail(pgpme.ErrNoPublicKey)
				sig.Summary = pgpme.SigSumKeyMissing | pgpme.SigSumRed
			case constants.SIGNATURE_FAILED:
				sig.Status = fail(pgpme.ErrBadSignature)
				sig.Summary = pgpme.SigSumRed
				sig.Validity = pgpme.ValidityNever
			default:
				sig.Status = fail(pgpme.ErrBadSignature)
				sig.Summary = pgpme.SigSumRed
			}
		}
		res.Signatures = append(res.Signatures, sig)
	}
	return res
}

func (s *session) KeyListStart(pattern string, secretOnly bool) pgpme.Status {
	if st := s.guard(); st.Code != pgpme.ErrNoError {
		return st
	}
	if s.listing {
		return fail(pgpme.ErrConflict)
	}
	s.iter = s.eng.list(pattern, secretOnly)
	s.iterIdx = 0
	s.listing = true
	return ok()
}

func (s *session) KeyListNext() (*pgpme.Key, pgpme.Status) {
	if !s.listing {
		return nil, fail(pgpme.ErrConflict)
	}
	if s.iterIdx >= len(s.iter) {
		return nil, fail(pgpme.ErrEOF)
	}
	key := s.iter[s.iterIdx]
	s.iterIdx++
	return snapshotKey(key, s.klMode), ok()
}

func (s *session) KeyListEnd() pgpme.Status {
	if !s.listing {
		return fail(pgpme.ErrConflict)
	}
	s.listing = false
	s.iter = nil
	return ok()
}

func (s *session) GetKey(fingerprint string, secret bool) (*pgpme.Key, pgpme.Status) {
	if st := s.guard(); st.Code != pgpme.ErrNoError {
		return nil, st
	}
	key := s.eng.lookup(fingerprint)
	if key == nil {
		return nil, fail(pgpme.ErrEOF)
	}
	if secret && !key.IsPrivate() {
		return nil, fail(pgpme.ErrEOF)
	}
	return snapshotKey(key, s.klMode), ok()
}

// splitArmoredKeys cuts concatenated armored key blocks apart.
func splitArmoredKeys(raw []byte) []string {
	var blocks []string
	text := string(raw)
	for {
		begin := strings.Index(text, "-----BEGIN PGP")
		if begin < 0 {
			break
		}
		text = text[begin:]
		end := strings.Index(text, "-----END PGP")
		if end < 0 {
			break
		}
		eol := strings.Index(text[end:], "-----\n")
		var block string
		if eol < 0 {
			block = text
			text = ""
		} else {
			block = text[:end+eol+len("-----\n")]
			text = text[end+eol+len("-----\n"):]
		}
		blocks = append(blocks, block)
	}
	return blocks
}

func (s *session) Import(data *pgpme.Data) pgpme.Status {
	if st := s.guard(); st.Code != pgpme.ErrNoError {
		return st
	}
	raw, st := readInput(data)
	if st.Code != pgpme.ErrNoError {
		return st
	}

	var incoming []*crypto.Key
	for _, block := range splitArmoredKeys(raw) {
		key, err := crypto.NewKeyFromArmored(block)
		if err != nil {
			return fail(pgpme.ErrNoData)
		}
		incoming = append(incoming, key)
	}
	if len(incoming) == 0 {
		key, err := crypto.NewKey(raw)
		if err != nil {
			return fail(pgpme.ErrNoData)
		}
		incoming = append(incoming, key)
	}

	res := &pgpme.ImportResult{Considered: len(incoming)}
	for _, key := range incoming {
		fpr := strings.ToUpper(key.GetFingerprint())
		status := pgpme.ImportStatus{Fingerprint: fpr}
		existing := s.eng.lookup(fpr)
		if key.IsPrivate() {
			res.SecretRead++
		}
		switch {
		case existing == nil:
			res.Imported++
			status.Status |= pgpme.ImportNew
			if key.IsPrivate() {
				res.SecretImported++
				status.Status |= pgpme.ImportSecret
			}
			if err := s.eng.store(key); err != nil {
				return fail(pgpme.ErrGeneral)
			}
		case key.IsPrivate() && !existing.IsPrivate():
			res.SecretImported++
			status.Status |= pgpme.ImportSecret
			if err := s.eng.store(key); err != nil {
				return fail(pgpme.ErrGeneral)
			}
		default:
			res.Unchanged++
			if key.IsPrivate() {
				res.SecretUnchanged++
			}
		}
		res.Imports = append(res.Imports, status)
	}
	s.importRes = res
	s.eng.logger.Info("imported keys", "session", s.id, "considered", res.Considered, "imported", res.Imported)
	return ok()
}

func (s *session) ImportResult() *pgpme.ImportResult { return s.importRes }

func (s *session) Export(patterns []string, data *pgpme.Data) pgpme.Status {
	if st := s.guard(); st.Code != pgpme.ErrNoError {
		return st
	}
	var keys []*crypto.Key
	if len(patterns) == 0 {
		keys = s.eng.list("", false)
	} else {
		seen := make(map[string]bool)
		for _, p := range patterns {
			for _, key := range s.eng.list(p, false) {
				fpr := strings.ToUpper(key.GetFingerprint())
				if !seen[fpr] {
					seen[fpr] = true
					keys = append(keys, key)
				}
			}
		}
	}
	for _, key := range keys {
		armored, err := key.GetArmoredPublicKey()
		if err != nil {
			return fail(pgpme.ErrGeneral)
		}
		if st := writeOutput(data, []byte(armored+"\n")); st.Code != pgpme.ErrNoError {
			return st
		}
	}
	return ok()
}

func (s *session) DeleteKey(key *pgpme.Key, allowSecret bool) pgpme.Status {
	if st := s.guard(); st.Code != pgpme.ErrNoError {
		return st
	}
	stored := s.eng.lookup(key.Fingerprint())
	if stored == nil {
		return fail(pgpme.ErrNoPublicKey)
	}
	if stored.IsPrivate() && !allowSecret {
		return fail(pgpme.ErrConflict)
	}
	if err := s.eng.remove(key.Fingerprint()); err != nil {
		return fail(pgpme.ErrGeneral)
	}
	s.eng.logger.Info("deleted key", "session", s.id, "fingerprint", key.Fingerprint())
	return ok()
}
