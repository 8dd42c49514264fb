package enginetest

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"strings"
	"time"

	"pgpme"
)

// session is one engine session. Not safe for concurrent use, matching
// the Session contract.
type session struct {
	eng      *Engine
	armor    bool
	textmode bool
	klMode   pgpme.KeyListMode

	passCB   pgpme.PassphraseFunc
	passHook any
	progCB   pgpme.ProgressFunc
	progHook any

	listing    bool
	iter       []*keyEntry
	iterSecret bool
	iterIdx    int

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

func (s *session) SetArmor(yes bool)                    { s.armor = yes }
func (s *session) SetTextMode(yes bool)                 { s.textmode = yes }
func (s *session) SetKeyListMode(mode pgpme.KeyListMode) { s.klMode = mode }

func (s *session) SetPassphraseCallback(cb pgpme.PassphraseFunc, hook any) {
	s.passCB, s.passHook = cb, hook
}

func (s *session) SetProgressCallback(cb pgpme.ProgressFunc, hook any) {
	s.progCB, s.progHook = cb, hook
}

func (s *session) Release() pgpme.Status {
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

// askPassphrase runs the passphrase callback until accept is satisfied,
// up to three attempts. A nil accept takes the first answer.
func (s *session) askPassphrase(uidHint string, accept func(string) bool) (string, pgpme.Status) {
	if s.passCB == nil {
		return "", fail(pgpme.ErrBadPassphrase)
	}
	prevWasBad := false
	for attempt := 0; attempt < 3; attempt++ {
		pw, err := s.passCB(s.passHook, uidHint, prevWasBad)
		if err != nil {
			return "", fail(pgpme.ErrCanceled)
		}
		if accept == nil || accept(pw) {
			return pw, ok()
		}
		prevWasBad = true
	}
	return "", fail(pgpme.ErrBadPassphrase)
}

// unlock obtains the passphrase protecting entry's secret part, if any.
func (s *session) unlock(entry *keyEntry) pgpme.Status {
	if entry.passphrase == "" {
		return ok()
	}
	uid := ""
	if u := entry.pub.PrimaryUserID(); u != nil {
		uid = u.UID
	}
	_, st := s.askPassphrase(uid, func(pw string) bool { return pw == entry.passphrase })
	return st
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

// resolveSigners maps the signer list onto keyring entries with secret
// parts, falling back to the default secret key for an empty list.
// Rejected signers are recorded in res.
func (s *session) resolveSigners(signers []*pgpme.Key, res *pgpme.SignResult) ([]*keyEntry, pgpme.Status) {
	if len(signers) == 0 {
		entry := s.eng.defaultSigner()
		if entry == nil {
			return nil, fail(pgpme.ErrNoSecretKey)
		}
		signers = []*pgpme.Key{entry.sec}
	}
	entries := make([]*keyEntry, 0, len(signers))
	for _, k := range signers {
		entry := s.eng.lookup(k.Fingerprint())
		if entry == nil || entry.sec == nil {
			res.InvalidSigners = append(res.InvalidSigners, pgpme.InvalidKey{
				Fingerprint: k.Fingerprint(),
				Reason:      fail(pgpme.ErrNoSecretKey),
			})
			return nil, fail(pgpme.ErrNoSecretKey)
		}
		if entry.pub.Trust() != pgpme.TrustValid {
			res.InvalidSigners = append(res.InvalidSigners, pgpme.InvalidKey{
				Fingerprint: k.Fingerprint(),
				Reason:      fail(pgpme.ErrUnusableSecretKey),
			})
			return nil, fail(pgpme.ErrUnusableSecretKey)
		}
		entries = append(entries, entry)
	}
	return entries, ok()
}

func (s *session) CheckSigner(key *pgpme.Key) pgpme.Status {
	if st := s.guard(); st.Code != pgpme.ErrNoError {
		return st
	}
	entry := s.eng.lookup(key.Fingerprint())
	if entry == nil || entry.sec == nil {
		return fail(pgpme.ErrNoSecretKey)
	}
	if entry.pub.Trust() != pgpme.TrustValid {
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

func (s *session) encrypt(recipients, signers []*pgpme.Key, _ pgpme.EncryptFlag, plain, cipher *pgpme.Data, sign bool) pgpme.Status {
	if st := s.guard(); st.Code != pgpme.ErrNoError {
		return st
	}
	body, st := readInput(plain)
	if st.Code != pgpme.ErrNoError {
		return st
	}

	res := &pgpme.EncryptResult{}
	s.encryptRes = res

	msg := &message{body: body}
	if len(recipients) == 0 {
		// Symmetric: bind the ciphertext to the passphrase digest.
		pw, st := s.askPassphrase("", nil)
		if st.Code != pgpme.ErrNoError {
			return st
		}
		msg.symmetric = true
		msg.passDigest = sha256.Sum256([]byte(pw))
	} else {
		for _, r := range recipients {
			if !r.CanEncrypt || r.Trust() != pgpme.TrustValid {
				res.InvalidRecipients = append(res.InvalidRecipients, pgpme.InvalidKey{
					Fingerprint: r.Fingerprint(),
					Reason:      fail(pgpme.ErrUnusablePublicKey),
				})
				continue
			}
			msg.recipients = append(msg.recipients, r.Fingerprint())
		}
		if len(res.InvalidRecipients) > 0 {
			return fail(pgpme.ErrUnusablePublicKey)
		}
	}

	if sign {
		signRes := &pgpme.SignResult{}
		s.signRes = signRes
		entries, st := s.resolveSigners(signers, signRes)
		if st.Code != pgpme.ErrNoError {
			return st
		}
		now := time.Now().Truncate(time.Second)
		var fprs []string
		for _, entry := range entries {
			if st := s.unlock(entry); st.Code != pgpme.ErrNoError {
				return st
			}
			fprs = append(fprs, entry.pub.Fingerprint())
		}
		msg.sigs = makeSigEntries(body, fprs, now)
		for _, fpr := range fprs {
			signRes.Signatures = append(signRes.Signatures, pgpme.NewSignature{
				Type:        pgpme.SigModeNormal,
				PubKeyAlgo:  pgpme.PubKeyRSA,
				HashAlgo:    pgpme.HashSHA256,
				Created:     now,
				Fingerprint: fpr,
			})
		}
	}

	out := msg.encode()
	if s.armor {
		out = armorWrap("PGP MESSAGE", out)
	}
	return writeOutput(cipher, out)
}

func (s *session) EncryptResult() *pgpme.EncryptResult { return s.encryptRes }

func (s *session) Decrypt(cipher, plain *pgpme.Data) pgpme.Status {
	_, st := s.decrypt(cipher, plain)
	return st
}

func (s *session) DecryptVerify(cipher, plain *pgpme.Data) pgpme.Status {
	msg, st := s.decrypt(cipher, plain)
	if st.Code != pgpme.ErrNoError {
		return st
	}
	// Verification ran: a message with no embedded signatures yields a
	// non-nil result with zero signatures, distinct from "no result".
	s.verifyRes = &pgpme.VerifyResult{
		Signatures: s.checkSignatures(msg.sigs, msg.body),
	}
	return ok()
}

func (s *session) decrypt(cipher, plain *pgpme.Data) (*message, pgpme.Status) {
	if st := s.guard(); st.Code != pgpme.ErrNoError {
		return nil, st
	}
	raw, st := readInput(cipher)
	if st.Code != pgpme.ErrNoError {
		return nil, st
	}
	raw, _ = dearmor(raw)
	msg, err := parseMessage(raw)
	if err != nil {
		return nil, fail(pgpme.ErrNoData)
	}

	s.decryptRes = &pgpme.DecryptResult{}
	if msg.symmetric {
		_, st := s.askPassphrase("", func(pw string) bool {
			digest := sha256.Sum256([]byte(pw))
			return digest == msg.passDigest
		})
		if st.Code != pgpme.ErrNoError {
			return nil, st
		}
	} else {
		var holder *keyEntry
		for _, fpr := range msg.recipients {
			if entry := s.eng.lookup(fpr); entry != nil && entry.sec != nil {
				holder = entry
				break
			}
		}
		if holder == nil {
			return nil, fail(pgpme.ErrDecryptFailed)
		}
		if st := s.unlock(holder); st.Code != pgpme.ErrNoError {
			return nil, st
		}
	}
	if st := writeOutput(plain, msg.body); st.Code != pgpme.ErrNoError {
		return nil, st
	}
	return msg, ok()
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
	entries, st := s.resolveSigners(signers, res)
	if st.Code != pgpme.ErrNoError {
		return st
	}

	now := time.Now().Truncate(time.Second)
	var fprs []string
	for _, entry := range entries {
		if st := s.unlock(entry); st.Code != pgpme.ErrNoError {
			return st
		}
		fprs = append(fprs, entry.pub.Fingerprint())
	}
	sigEntries := makeSigEntries(body, fprs, now)

	var out []byte
	switch mode {
	case pgpme.SigModeDetach:
		out = encodeDetached(byte(mode), sigEntries)
		if s.armor {
			out = armorWrap("PGP SIGNATURE", out)
		}
	case pgpme.SigModeClear:
		out = encodeCleartext(body, sigEntries)
	default:
		msg := &message{sigs: sigEntries, body: body}
		out = msg.encode()
		if s.armor {
			out = armorWrap("PGP MESSAGE", out)
		}
	}

	for _, fpr := range fprs {
		res.Signatures = append(res.Signatures, pgpme.NewSignature{
			Type:        mode,
			PubKeyAlgo:  pgpme.PubKeyRSA,
			HashAlgo:    pgpme.HashSHA256,
			Created:     now,
			Fingerprint: fpr,
		})
	}
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

	if signedText != nil {
		// Detached: the signature covers the supplied text.
		text, st := readInput(signedText)
		if st.Code != pgpme.ErrNoError {
			return st
		}
		block, _ := dearmor(raw)
		_, entries, err := parseDetached(block)
		if err != nil {
			return fail(pgpme.ErrNoData)
		}
		s.verifyRes = &pgpme.VerifyResult{Signatures: s.checkSignatures(entries, text)}
		return ok()
	}

	if bytes.HasPrefix(bytes.TrimSpace(raw), []byte(clearHeader[:len(clearHeader)-1])) {
		body, entries, err := parseCleartext(raw)
		if err != nil {
			return fail(pgpme.ErrNoData)
		}
		if plain != nil {
			if st := writeOutput(plain, body); st.Code != pgpme.ErrNoError {
				return st
			}
		}
		s.verifyRes = &pgpme.VerifyResult{Signatures: s.checkSignatures(entries, body)}
		return ok()
	}

	block, _ := dearmor(raw)
	msg, err := parseMessage(block)
	if err != nil || msg.symmetric || len(msg.recipients) > 0 {
		// Not an inline-signed message.
		return fail(pgpme.ErrNoData)
	}
	if plain != nil {
		if st := writeOutput(plain, msg.body); st.Code != pgpme.ErrNoError {
			return st
		}
	}
	s.verifyRes = &pgpme.VerifyResult{Signatures: s.checkSignatures(msg.sigs, msg.body)}
	return ok()
}

func (s *session) VerifyResult() *pgpme.VerifyResult { return s.verifyRes }

// checkSignatures evaluates each signature entry against body and
// produces one Signature record per entry. The operation itself still
// succeeds; bad outcomes live in the record status.
func (s *session) checkSignatures(entries []sigEntry, body []byte) []pgpme.Signature {
	sigs := make([]pgpme.Signature, 0, len(entries))
	for _, e := range entries {
		sig := pgpme.Signature{
			Fingerprint: e.fpr,
			Created:     e.created,
			PubKeyAlgo:  pgpme.PubKeyRSA,
			HashAlgo:    pgpme.HashSHA256,
		}
		entry := s.eng.lookup(e.fpr)
		switch {
		case entry == nil:
			sig.Status = fail(pgpme.ErrNoPublicKey)
			sig.Summary = pgpme.SigSumKeyMissing | pgpme.SigSumRed
			sig.Validity = pgpme.ValidityUnknown
		case signDigest(body, e.fpr) != e.digest:
			sig.Status = fail(pgpme.ErrBadSignature)
			sig.Summary = pgpme.SigSumRed
			sig.Validity = pgpme.ValidityNever
		default:
			sig.Summary = pgpme.SigSumValid | pgpme.SigSumGreen
			sig.Validity = pgpme.ValidityFull
			if entry.pub.Revoked {
				sig.Summary |= pgpme.SigSumKeyRevoked
			}
			if entry.pub.Expired {
				sig.Summary |= pgpme.SigSumKeyExpired
			}
		}
		sigs = append(sigs, sig)
	}
	return sigs
}

func (s *session) KeyListStart(pattern string, secretOnly bool) pgpme.Status {
	if st := s.guard(); st.Code != pgpme.ErrNoError {
		return st
	}
	if s.listing {
		return fail(pgpme.ErrConflict)
	}
	s.iter = s.eng.list(pattern, secretOnly)
	s.iterSecret = secretOnly
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
	entry := s.iter[s.iterIdx]
	s.iterIdx++
	return s.snapshot(entry, s.iterSecret), ok()
}

func (s *session) KeyListEnd() pgpme.Status {
	if !s.listing {
		return fail(pgpme.ErrConflict)
	}
	s.listing = false
	s.iter = nil
	return ok()
}

// snapshot stamps the session keylist mode onto a copy of the stored key.
func (s *session) snapshot(entry *keyEntry, secret bool) *pgpme.Key {
	src := entry.pub
	if secret && entry.sec != nil {
		src = entry.sec
	}
	k := *src
	k.KeyListMode = s.klMode
	return &k
}

func (s *session) GetKey(fingerprint string, secret bool) (*pgpme.Key, pgpme.Status) {
	if st := s.guard(); st.Code != pgpme.ErrNoError {
		return nil, st
	}
	entry := s.eng.lookup(fingerprint)
	if entry == nil {
		return nil, fail(pgpme.ErrEOF)
	}
	if secret && entry.sec == nil {
		return nil, fail(pgpme.ErrEOF)
	}
	return s.snapshot(entry, secret), ok()
}

func (s *session) Import(data *pgpme.Data) pgpme.Status {
	if st := s.guard(); st.Code != pgpme.ErrNoError {
		return st
	}
	raw, st := readInput(data)
	if st.Code != pgpme.ErrNoError {
		return st
	}
	records, err := parseKeyBlocks(raw)
	if err != nil || len(records) == 0 {
		return fail(pgpme.ErrNoData)
	}

	res := &pgpme.ImportResult{Considered: len(records)}
	for _, rec := range records {
		status := pgpme.ImportStatus{Fingerprint: rec.Fingerprint}
		existing := s.eng.lookup(rec.Fingerprint)
		incoming := rec.entry()
		if rec.Secret {
			res.SecretRead++
		}
		switch {
		case existing == nil:
			res.Imported++
			status.Status |= pgpme.ImportNew
			if rec.Secret {
				res.SecretImported++
				status.Status |= pgpme.ImportSecret
			}
			s.eng.store(incoming)
		case rec.Secret && existing.sec == nil:
			// Secret part for a known public key.
			res.SecretImported++
			status.Status |= pgpme.ImportSecret
			s.eng.store(incoming)
		default:
			res.Unchanged++
			if rec.Secret {
				res.SecretUnchanged++
			}
		}
		res.Imports = append(res.Imports, status)
	}
	s.importRes = res
	return ok()
}

func (s *session) ImportResult() *pgpme.ImportResult { return s.importRes }

func (s *session) Export(patterns []string, data *pgpme.Data) pgpme.Status {
	if st := s.guard(); st.Code != pgpme.ErrNoError {
		return st
	}
	var entries []*keyEntry
	if len(patterns) == 0 {
		entries = s.eng.list("", false)
	} else {
		seen := make(map[string]bool)
		for _, p := range patterns {
			for _, entry := range s.eng.list(p, false) {
				fpr := entry.pub.Fingerprint()
				if !seen[fpr] {
					seen[fpr] = true
					entries = append(entries, entry)
				}
			}
		}
	}
	for _, entry := range entries {
		block, err := encodeKeyBlock(entry, false)
		if err != nil {
			return fail(pgpme.ErrGeneral)
		}
		if st := writeOutput(data, block); st.Code != pgpme.ErrNoError {
			return st
		}
	}
	return ok()
}

func (s *session) DeleteKey(key *pgpme.Key, allowSecret bool) pgpme.Status {
	if st := s.guard(); st.Code != pgpme.ErrNoError {
		return st
	}
	entry := s.eng.lookup(key.Fingerprint())
	if entry == nil {
		return fail(pgpme.ErrNoPublicKey)
	}
	if entry.sec != nil && !allowSecret {
		return fail(pgpme.ErrConflict)
	}
	s.eng.remove(entry.pub.Fingerprint())
	return ok()
}

func (s *session) GenerateKey(params string, pub, sec *pgpme.Data) pgpme.Status {
	if st := s.guard(); st.Code != pgpme.ErrNoError {
		return st
	}
	fields, err := parseParamBlock(params)
	if err != nil {
		return fail(pgpme.ErrInvalidValue)
	}
	name, email := fields["Name-Real"], fields["Name-Email"]
	if name == "" || email == "" {
		return fail(pgpme.ErrInvalidValue)
	}

	for i := 1; i <= 3; i++ {
		s.progress("primegen", i, 3)
	}

	entry := newEntry(KeySpec{
		Name:       name,
		Comment:    fields["Name-Comment"],
		Email:      email,
		Secret:     true,
		Passphrase: fields["Passphrase"],
	}, time.Now().Truncate(time.Second))

	if pub == nil && sec == nil {
		s.eng.store(entry)
		return ok()
	}
	if pub != nil {
		block, err := encodeKeyBlock(entry, false)
		if err != nil {
			return fail(pgpme.ErrGeneral)
		}
		if st := writeOutput(pub, block); st.Code != pgpme.ErrNoError {
			return st
		}
	}
	if sec != nil {
		block, err := encodeKeyBlock(entry, true)
		if err != nil {
			return fail(pgpme.ErrGeneral)
		}
		if st := writeOutput(sec, block); st.Code != pgpme.ErrNoError {
			return st
		}
	}
	return ok()
}

// parseParamBlock reads a GnuPG-style key parameter block: Key: Value
// lines between <GnupgKeyParms format="internal"> and </GnupgKeyParms>
// tags. The tags themselves are optional.
func parseParamBlock(params string) (map[string]string, error) {
	fields := make(map[string]string)
	for _, line := range strings.Split(params, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "<") || strings.HasPrefix(line, "%") {
			continue
		}
		key, value, found := strings.Cut(line, ":")
		if !found {
			return nil, fmt.Errorf("malformed parameter line %q", line)
		}
		fields[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return fields, nil
}
