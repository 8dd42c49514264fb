package openpgp

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ProtonMail/gopenpgp/v3/constants"
	"github.com/ProtonMail/gopenpgp/v3/crypto"
	"github.com/ProtonMail/gopenpgp/v3/profile"

	"pgpme"
)

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
	if comment := fields["Name-Comment"]; comment != "" {
		name = fmt.Sprintf("%s (%s)", name, comment)
	}

	keyType := strings.ToLower(fields["Key-Type"])
	if keyType == "" || keyType == "default" {
		keyType = s.eng.cfg.KeyGen.KeyType
	}
	bits := s.eng.cfg.KeyGen.Bits
	if raw := fields["Key-Length"]; raw != "" {
		bits, err = strconv.Atoi(raw)
		if err != nil {
			return fail(pgpme.ErrInvalidValue)
		}
	}

	// RSA requests go through the RFC 4880 profile; anything else uses
	// the handle's default (ECC) profile. Bit size maps to the profile's
	// security level.
	handle := s.eng.pgp
	if keyType == "rsa" {
		handle = crypto.PGPWithProfile(profile.RFC4880())
	}
	gen := handle.KeyGeneration().AddUserId(name, email).New()

	s.progress("primegen", 0, 1)
	var key *crypto.Key
	if bits >= 4096 {
		key, err = gen.GenerateKeyWithSecurity(constants.HighSecurity)
	} else {
		key, err = gen.GenerateKey()
	}
	if err != nil {
		s.eng.logger.Error("key generation failed", "session", s.id, "error", err)
		return fail(pgpme.ErrGeneral)
	}
	s.progress("primegen", 1, 1)

	if passphrase := fields["Passphrase"]; passphrase != "" {
		key, err = s.eng.pgp.LockKey(key, []byte(passphrase))
		if err != nil {
			return fail(pgpme.ErrGeneral)
		}
	}

	if pub == nil && sec == nil {
		if err := s.eng.store(key); err != nil {
			return fail(pgpme.ErrGeneral)
		}
		s.eng.logger.Info("generated key", "session", s.id, "fingerprint", strings.ToUpper(key.GetFingerprint()))
		return ok()
	}
	if pub != nil {
		armored, err := key.GetArmoredPublicKey()
		if err != nil {
			return fail(pgpme.ErrGeneral)
		}
		if st := writeOutput(pub, []byte(armored)); st.Code != pgpme.ErrNoError {
			return st
		}
	}
	if sec != nil {
		armored, err := key.Armor()
		if err != nil {
			return fail(pgpme.ErrGeneral)
		}
		if st := writeOutput(sec, []byte(armored)); st.Code != pgpme.ErrNoError {
			return st
		}
	}
	return ok()
}
