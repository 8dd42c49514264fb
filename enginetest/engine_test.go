package enginetest

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"pgpme"
)

func TestFingerprintFor(t *testing.T) {
	t.Parallel()

	a := fingerprintFor("Alice <alice@example.com>")
	b := fingerprintFor("Alice <alice@example.com>")
	c := fingerprintFor("Bob <bob@example.com>")

	if a != b {
		t.Errorf("fingerprint not stable: %q vs %q", a, b)
	}
	if a == c {
		t.Errorf("distinct uids share fingerprint %q", a)
	}
	if len(a) != fprLen {
		t.Errorf("fingerprint length = %d, want %d", len(a), fprLen)
	}
	if a != strings.ToUpper(a) {
		t.Errorf("fingerprint not upper case: %q", a)
	}
}

func TestAddKeyAndLookup(t *testing.T) {
	t.Parallel()

	eng := New()
	key := eng.AddKey(KeySpec{Name: "Alice", Email: "alice@example.com", Secret: true})

	if entry := eng.lookup(key.Fingerprint()); entry == nil {
		t.Fatal("lookup by fingerprint failed")
	}
	keyID := key.Fingerprint()[fprLen-16:]
	if entry := eng.lookup(strings.ToLower(keyID)); entry == nil {
		t.Fatal("lookup by lower-case key id failed")
	}
	if entry := eng.lookup("0000000000000000"); entry != nil {
		t.Fatal("lookup of unknown key id succeeded")
	}
}

func TestListFiltering(t *testing.T) {
	t.Parallel()

	eng := New()
	eng.AddKey(KeySpec{Name: "Alice", Email: "alice@example.com", Secret: true})
	eng.AddKey(KeySpec{Name: "Bob", Email: "bob@example.com"})
	eng.AddKey(KeySpec{Name: "Carol", Email: "carol@example.com", Secret: true})

	tests := []struct {
		name       string
		pattern    string
		secretOnly bool
		want       int
	}{
		{"all", "", false, 3},
		{"secret only", "", true, 2},
		{"uid substring", "bob@", false, 1},
		{"uid substring case insensitive", "ALICE", false, 1},
		{"no match", "nobody", false, 0},
		{"secret filters pattern match", "bob@", true, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := eng.list(tt.pattern, tt.secretOnly)
			if len(got) != tt.want {
				t.Errorf("list(%q, %v) returned %d entries, want %d", tt.pattern, tt.secretOnly, len(got), tt.want)
			}
		})
	}
}

func TestListOrderedByFingerprint(t *testing.T) {
	t.Parallel()

	eng := New()
	eng.AddKey(KeySpec{Name: "Alice", Email: "alice@example.com"})
	eng.AddKey(KeySpec{Name: "Bob", Email: "bob@example.com"})
	eng.AddKey(KeySpec{Name: "Carol", Email: "carol@example.com"})

	entries := eng.list("", false)
	for i := 1; i < len(entries); i++ {
		if entries[i-1].pub.Fingerprint() > entries[i].pub.Fingerprint() {
			t.Fatalf("list not ordered: %q before %q",
				entries[i-1].pub.Fingerprint(), entries[i].pub.Fingerprint())
		}
	}
}

func TestMessageRoundTrip(t *testing.T) {
	t.Parallel()

	now := time.Unix(1700000000, 0)
	fpr := fingerprintFor("Alice <alice@example.com>")
	in := &message{
		recipients: []string{fpr},
		sigs:       makeSigEntries([]byte("payload"), []string{fpr}, now),
		body:       []byte("payload"),
	}

	out, err := parseMessage(in.encode())
	if err != nil {
		t.Fatalf("parseMessage: %v", err)
	}
	if out.symmetric {
		t.Error("round trip flipped symmetric flag")
	}
	if len(out.recipients) != 1 || out.recipients[0] != fpr {
		t.Errorf("recipients = %v, want [%s]", out.recipients, fpr)
	}
	if len(out.sigs) != 1 || out.sigs[0].fpr != fpr || !out.sigs[0].created.Equal(now) {
		t.Errorf("signature entry mangled: %+v", out.sigs)
	}
	if !bytes.Equal(out.body, in.body) {
		t.Errorf("body = %q, want %q", out.body, in.body)
	}

	if _, err := parseMessage([]byte("not a message")); err == nil {
		t.Error("parseMessage accepted garbage")
	}
}

func TestArmor(t *testing.T) {
	t.Parallel()

	payload := bytes.Repeat([]byte("pgpme"), 40)
	armored := armorWrap("PGP MESSAGE", payload)
	if !bytes.HasPrefix(armored, []byte("-----BEGIN PGP MESSAGE-----")) {
		t.Fatalf("missing armor banner: %q", armored[:40])
	}

	raw, ok := dearmor(armored)
	if !ok {
		t.Fatal("dearmor did not recognize armored input")
	}
	if !bytes.Equal(raw, payload) {
		t.Error("armor round trip lost data")
	}

	plain := []byte("binary \x00 payload")
	same, ok := dearmor(plain)
	if ok {
		t.Error("dearmor claimed non-armored input was armored")
	}
	if !bytes.Equal(same, plain) {
		t.Error("dearmor altered non-armored input")
	}
}

func TestCleartextRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body []byte
	}{
		{"no trailing newline", []byte("the text being signed")},
		{"trailing newline", []byte("line one\n")},
		{"blank lines inside", []byte("one\n\ntwo\n")},
		{"empty body", []byte("")},
	}
	fpr := fingerprintFor("Alice <alice@example.com>")
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			entries := makeSigEntries(tc.body, []string{fpr}, time.Unix(1700000000, 0))
			gotBody, gotEntries, err := parseCleartext(encodeCleartext(tc.body, entries))
			if err != nil {
				t.Fatalf("parseCleartext: %v", err)
			}
			if !bytes.Equal(gotBody, tc.body) {
				t.Errorf("body = %q, want %q", gotBody, tc.body)
			}
			if len(gotEntries) != 1 || gotEntries[0].digest != entries[0].digest {
				t.Errorf("signature entries mangled: %+v", gotEntries)
			}
		})
	}
}

func TestKeyBlockRoundTrip(t *testing.T) {
	t.Parallel()

	eng := New()
	eng.AddKey(KeySpec{Name: "Alice", Email: "alice@example.com", Secret: true, Passphrase: "pw"})
	entry := eng.list("", false)[0]

	pub, err := encodeKeyBlock(entry, false)
	if err != nil {
		t.Fatalf("encodeKeyBlock public: %v", err)
	}
	sec, err := encodeKeyBlock(entry, true)
	if err != nil {
		t.Fatalf("encodeKeyBlock secret: %v", err)
	}

	records, err := parseKeyBlocks(append(pub, sec...))
	if err != nil {
		t.Fatalf("parseKeyBlocks: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("parsed %d records, want 2", len(records))
	}
	if records[0].Secret {
		t.Error("public block carries secret flag")
	}
	if !records[1].Secret || records[1].Passphrase != "pw" {
		t.Errorf("secret block lost secret material: %+v", records[1])
	}
	if records[0].Fingerprint != entry.pub.Fingerprint() {
		t.Errorf("fingerprint = %q, want %q", records[0].Fingerprint, entry.pub.Fingerprint())
	}
}

func TestParseParamBlock(t *testing.T) {
	t.Parallel()

	fields, err := parseParamBlock(`<GnupgKeyParms format="internal">
Key-Type: RSA
Key-Length: 2048
Name-Real: Alice
Name-Email: alice@example.com
Passphrase: secret
</GnupgKeyParms>`)
	if err != nil {
		t.Fatalf("parseParamBlock: %v", err)
	}
	want := map[string]string{
		"Key-Type":   "RSA",
		"Key-Length": "2048",
		"Name-Real":  "Alice",
		"Name-Email": "alice@example.com",
		"Passphrase": "secret",
	}
	for k, v := range want {
		if fields[k] != v {
			t.Errorf("fields[%q] = %q, want %q", k, fields[k], v)
		}
	}

	if _, err := parseParamBlock("no colon here"); err == nil {
		t.Error("parseParamBlock accepted a malformed line")
	}
}

func TestSessionPassphraseRetries(t *testing.T) {
	t.Parallel()

	eng := New()
	key := eng.AddKey(KeySpec{Name: "Alice", Email: "alice@example.com", Secret: true, Passphrase: "right"})

	raw, st := eng.NewSession()
	if st.Code != pgpme.ErrNoError {
		t.Fatalf("NewSession: %v", st)
	}
	s := raw.(*session)

	calls := 0
	s.SetPassphraseCallback(func(hook any, uidHint string, prevWasBad bool) (string, error) {
		calls++
		if calls == 1 && prevWasBad {
			t.Error("first attempt flagged as retry")
		}
		if calls > 1 && !prevWasBad {
			t.Error("retry not flagged")
		}
		return "wrong", nil
	}, nil)

	entry := eng.lookup(key.Fingerprint())
	if st := s.unlock(entry); st.Code != pgpme.ErrBadPassphrase {
		t.Fatalf("unlock with wrong passphrase: code = %v, want ErrBadPassphrase", st.Code)
	}
	if calls != 3 {
		t.Errorf("callback invoked %d times, want 3", calls)
	}
}
