package enginetest

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// The deterministic wire format. A message is a magic tag, a flags byte,
// the recipient or passphrase-digest section, an optional signature
// section, and the payload.
var (
	msgMagic = []byte("PMETST01")
	sigMagic = []byte("PMETSIG1")
)

const (
	flagSymmetric byte = 1 << iota
	flagSigned
)

const (
	fprLen      = 40
	digestLen   = sha256.Size
	sigEntryLen = fprLen + 8 + digestLen
)

// sigEntry is one signature: signer fingerprint, creation time, and the
// digest binding signer to payload.
type sigEntry struct {
	fpr     string
	created time.Time
	digest  [digestLen]byte
}

func signDigest(body []byte, fpr string) [digestLen]byte {
	h := sha256.New()
	h.Write(body)
	h.Write([]byte(fpr))
	var out [digestLen]byte
	copy(out[:], h.Sum(nil))
	return out
}

func makeSigEntries(body []byte, fprs []string, now time.Time) []sigEntry {
	entries := make([]sigEntry, 0, len(fprs))
	for _, fpr := range fprs {
		entries = append(entries, sigEntry{
			fpr:     fpr,
			created: now,
			digest:  signDigest(body, fpr),
		})
	}
	return entries
}

func appendSigEntries(buf []byte, entries []sigEntry) []byte {
	buf = append(buf, byte(len(entries)))
	for _, e := range entries {
		buf = append(buf, []byte(e.fpr)...)
		buf = binary.BigEndian.AppendUint64(buf, uint64(e.created.Unix()))
		buf = append(buf, e.digest[:]...)
	}
	return buf
}

func parseSigEntries(b []byte) ([]sigEntry, []byte, error) {
	if len(b) < 1 {
		return nil, nil, fmt.Errorf("truncated signature section")
	}
	n := int(b[0])
	b = b[1:]
	if len(b) < n*sigEntryLen {
		return nil, nil, fmt.Errorf("truncated signature entries")
	}
	entries := make([]sigEntry, 0, n)
	for i := 0; i < n; i++ {
		raw := b[i*sigEntryLen : (i+1)*sigEntryLen]
		e := sigEntry{
			fpr:     string(raw[:fprLen]),
			created: time.Unix(int64(binary.BigEndian.Uint64(raw[fprLen:fprLen+8])), 0),
		}
		copy(e.digest[:], raw[fprLen+8:])
		entries = append(entries, e)
	}
	return entries, b[n*sigEntryLen:], nil
}

// message is one parsed wire message.
type message struct {
	symmetric  bool
	passDigest [digestLen]byte
	recipients []string
	sigs       []sigEntry
	body       []byte
}

func (m *message) encode() []byte {
	buf := append([]byte(nil), msgMagic...)
	var flags byte
	if m.symmetric {
		flags |= flagSymmetric
	}
	if len(m.sigs) > 0 {
		flags |= flagSigned
	}
	buf = append(buf, flags)
	if m.symmetric {
		buf = append(buf, m.passDigest[:]...)
	} else {
		buf = append(buf, byte(len(m.recipients)))
		for _, fpr := range m.recipients {
			buf = append(buf, []byte(fpr)...)
		}
	}
	if len(m.sigs) > 0 {
		buf = appendSigEntries(buf, m.sigs)
	}
	return append(buf, m.body...)
}

func parseMessage(b []byte) (*message, error) {
	if !bytes.HasPrefix(b, msgMagic) {
		return nil, fmt.Errorf("not a test engine message")
	}
	b = b[len(msgMagic):]
	if len(b) < 1 {
		return nil, fmt.Errorf("truncated message header")
	}
	flags := b[0]
	b = b[1:]

	m := &message{symmetric: flags&flagSymmetric != 0}
	if m.symmetric {
		if len(b) < digestLen {
			return nil, fmt.Errorf("truncated passphrase digest")
		}
		copy(m.passDigest[:], b[:digestLen])
		b = b[digestLen:]
	} else {
		if len(b) < 1 {
			return nil, fmt.Errorf("truncated recipient count")
		}
		n := int(b[0])
		b = b[1:]
		if len(b) < n*fprLen {
			return nil, fmt.Errorf("truncated recipient list")
		}
		for i := 0; i < n; i++ {
			m.recipients = append(m.recipients, string(b[i*fprLen:(i+1)*fprLen]))
		}
		b = b[n*fprLen:]
	}
	if flags&flagSigned != 0 {
		var err error
		m.sigs, b, err = parseSigEntries(b)
		if err != nil {
			return nil, err
		}
	}
	m.body = b
	return m, nil
}

// detached signature block: magic, mode byte, entries.
func encodeDetached(mode byte, entries []sigEntry) []byte {
	buf := append([]byte(nil), sigMagic...)
	buf = append(buf, mode)
	return appendSigEntries(buf, entries)
}

func parseDetached(b []byte) (byte, []sigEntry, error) {
	if !bytes.HasPrefix(b, sigMagic) {
		return 0, nil, fmt.Errorf("not a test engine signature")
	}
	b = b[len(sigMagic):]
	if len(b) < 1 {
		return 0, nil, fmt.Errorf("truncated signature header")
	}
	mode := b[0]
	entries, _, err := parseSigEntries(b[1:])
	return mode, entries, err
}

// Armoring: base64 between PGP-style banners, 64 columns.

func armorWrap(kind string, b []byte) []byte {
	enc := base64.StdEncoding.EncodeToString(b)
	var out bytes.Buffer
	fmt.Fprintf(&out, "-----BEGIN %s-----\n\n", kind)
	for len(enc) > 64 {
		out.WriteString(enc[:64])
		out.WriteByte('\n')
		enc = enc[64:]
	}
	out.WriteString(enc)
	out.WriteByte('\n')
	fmt.Fprintf(&out, "-----END %s-----\n", kind)
	return out.Bytes()
}

// dearmor decodes an armored block of any kind. Returns the input
// unchanged when it is not armored.
func dearmor(b []byte) ([]byte, bool) {
	trimmed := bytes.TrimSpace(b)
	if !bytes.HasPrefix(trimmed, []byte("-----BEGIN ")) {
		return b, false
	}
	lines := bytes.Split(trimmed, []byte("\n"))
	var payload bytes.Buffer
	for _, line := range lines {
		line = bytes.TrimSpace(line)
		if len(line) == 0 || bytes.HasPrefix(line, []byte("-----")) {
			continue
		}
		payload.Write(line)
	}
	raw, err := base64.StdEncoding.DecodeString(payload.String())
	if err != nil {
		return b, false
	}
	return raw, true
}

// Cleartext signing format.

const (
	clearHeader    = "-----BEGIN PGP SIGNED MESSAGE-----\n\n"
	clearSigBegin  = "-----BEGIN PGP SIGNATURE-----\n"
	clearSigFooter = "-----END PGP SIGNATURE-----\n"
)

func encodeCleartext(body []byte, entries []sigEntry) []byte {
	var out bytes.Buffer
	out.WriteString(clearHeader)
	out.Write(body)
	// Always one separator newline, even after a body ending in '\n';
	// parseCleartext strips exactly one.
	out.WriteByte('\n')
	out.WriteString(clearSigBegin)
	out.WriteString(base64.StdEncoding.EncodeToString(encodeDetached(byte(2), entries)))
	out.WriteByte('\n')
	out.WriteString(clearSigFooter)
	return out.Bytes()
}

func parseCleartext(b []byte) (body []byte, entries []sigEntry, err error) {
	s := string(b)
	rest, ok := strings.CutPrefix(s, clearHeader)
	if !ok {
		return nil, nil, fmt.Errorf("not a cleartext signature")
	}
	idx := bytes.Index([]byte(rest), []byte(clearSigBegin))
	if idx < 0 {
		return nil, nil, fmt.Errorf("cleartext signature block missing")
	}
	body = []byte(rest[:idx])
	// Drop the newline appended after the body during signing.
	if len(body) > 0 && body[len(body)-1] == '\n' {
		body = body[:len(body)-1]
	}
	sigPart := rest[idx+len(clearSigBegin):]
	if end := bytes.Index([]byte(sigPart), []byte(clearSigFooter)); end >= 0 {
		sigPart = sigPart[:end]
	}
	raw, err := base64.StdEncoding.DecodeString(string(bytes.TrimSpace([]byte(sigPart))))
	if err != nil {
		return nil, nil, fmt.Errorf("decoding cleartext signature: %w", err)
	}
	_, entries, err = parseDetached(raw)
	return body, entries, err
}

// Key transport format: one armored JSON record per key.

const (
	pubKeyBlockKind = "PGPME TEST PUBLIC KEY BLOCK"
	secKeyBlockKind = "PGPME TEST SECRET KEY BLOCK"
)

// keyRecord is the serialized form of a keyring entry.
type keyRecord struct {
	Fingerprint string    `json:"fingerprint"`
	Name        string    `json:"name"`
	Comment     string    `json:"comment,omitempty"`
	Email       string    `json:"email"`
	Secret      bool      `json:"secret,omitempty"`
	Passphrase  string    `json:"passphrase,omitempty"`
	NoEncrypt   bool      `json:"no_encrypt,omitempty"`
	NoSign      bool      `json:"no_sign,omitempty"`
	Revoked     bool      `json:"revoked,omitempty"`
	Expired     bool      `json:"expired,omitempty"`
	Created     time.Time `json:"created"`
}

func recordFromEntry(entry *keyEntry, withSecret bool) keyRecord {
	rec := keyRecord{
		Fingerprint: entry.pub.Fingerprint(),
		Name:        entry.spec.Name,
		Comment:     entry.spec.Comment,
		Email:       entry.spec.Email,
		NoEncrypt:   entry.spec.NoEncrypt,
		NoSign:      entry.spec.NoSign,
		Revoked:     entry.spec.Revoked,
		Expired:     entry.spec.Expired,
		Created:     entry.created,
	}
	if withSecret && entry.sec != nil {
		rec.Secret = true
		rec.Passphrase = entry.passphrase
	}
	return rec
}

func (rec keyRecord) entry() *keyEntry {
	spec := KeySpec{
		Name:       rec.Name,
		Comment:    rec.Comment,
		Email:      rec.Email,
		Secret:     rec.Secret,
		Passphrase: rec.Passphrase,
		NoEncrypt:  rec.NoEncrypt,
		NoSign:     rec.NoSign,
		Revoked:    rec.Revoked,
		Expired:    rec.Expired,
	}
	return newEntry(spec, rec.Created)
}

func encodeKeyBlock(entry *keyEntry, withSecret bool) ([]byte, error) {
	rec := recordFromEntry(entry, withSecret)
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encoding key record: %w", err)
	}
	kind := pubKeyBlockKind
	if rec.Secret {
		kind = secKeyBlockKind
	}
	return armorWrap(kind, raw), nil
}

// parseKeyBlocks extracts every key record from b.
func parseKeyBlocks(b []byte) ([]keyRecord, error) {
	var records []keyRecord
	for {
		begin := bytes.Index(b, []byte("-----BEGIN PGPME TEST"))
		if begin < 0 {
			break
		}
		b = b[begin:]
		end := bytes.Index(b, []byte("-----END"))
		if end < 0 {
			return nil, fmt.Errorf("unterminated key block")
		}
		eol := bytes.IndexByte(b[end:], '\n')
		var block []byte
		if eol < 0 {
			block = b
			b = nil
		} else {
			block = b[:end+eol+1]
			b = b[end+eol+1:]
		}
		raw, ok := dearmor(block)
		if !ok {
			return nil, fmt.Errorf("malformed key block armor")
		}
		var rec keyRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("decoding key record: %w", err)
		}
		records = append(records, rec)
	}
	return records, nil
}
