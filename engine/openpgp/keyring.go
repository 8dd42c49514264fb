package openpgp

import (
	stdcrypto "crypto"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	openpgp "github.com/ProtonMail/go-crypto/openpgp/v2"
	"github.com/ProtonMail/go-crypto/openpgp/packet"
	"github.com/ProtonMail/gopenpgp/v3/crypto"

	"pgpme"
)

// keyFileExt is the extension of keyring files under <home>/keys.
const keyFileExt = ".asc"

// hashAlgoIDs maps Go hash identifiers to OpenPGP registry values.
var hashAlgoIDs = map[stdcrypto.Hash]pgpme.HashAlgo{
	stdcrypto.MD5:       pgpme.HashMD5,
	stdcrypto.SHA1:      pgpme.HashSHA1,
	stdcrypto.RIPEMD160: pgpme.HashRIPEMD160,
	stdcrypto.SHA256:    pgpme.HashSHA256,
	stdcrypto.SHA384:    pgpme.HashSHA384,
	stdcrypto.SHA512:    pgpme.HashSHA512,
	stdcrypto.SHA224:    pgpme.HashSHA224,
}

func fingerprintString(fpr []byte) string {
	return strings.ToUpper(hex.EncodeToString(fpr))
}

// snapshotKey converts a keyring entry into the read-only Key form. mode
// controls how much detail is filled in, matching the session keylist
// mode at fetch time.
func snapshotKey(k *crypto.Key, mode pgpme.KeyListMode) *pgpme.Key {
	entity := k.GetEntity()
	now := time.Now().Unix()

	key := &pgpme.Key{
		KeyListMode: mode,
		Protocol:    pgpme.ProtocolOpenPGP,
		Revoked:     k.IsRevoked(now),
		Expired:     k.IsExpired(now),
		Secret:      k.IsPrivate(),
		CanEncrypt:  k.CanEncrypt(now),
		CanSign:     k.CanVerify(now),
	}
	if k.IsPrivate() {
		key.OwnerTrust = pgpme.ValidityUltimate
	}

	key.SubKeys = append(key.SubKeys, subKeyFrom(entity.PrimaryKey, k.IsPrivate(), key.Revoked))
	for i := range entity.Subkeys {
		sub := &entity.Subkeys[i]
		sk := subKeyFrom(sub.PublicKey, sub.PrivateKey != nil, len(sub.Revocations) > 0)
		key.SubKeys = append(key.SubKeys, sk)
	}

	// The key as a whole can do what any live subkey can do.
	for _, sk := range key.SubKeys {
		if sk.Trust() != pgpme.TrustValid {
			continue
		}
		key.CanEncrypt = key.CanEncrypt || sk.CanEncrypt
		key.CanSign = key.CanSign || sk.CanSign
		key.CanCertify = key.CanCertify || sk.CanCertify
		key.CanAuthenticate = key.CanAuthenticate || sk.CanAuthenticate
	}

	key.UserIDs = userIDsFrom(entity, k.IsPrivate(), mode)
	return key
}

// subKeyFrom fills one SubKey record from a raw public key packet. The
// capability bits derive from the algorithm; usability at the key level
// is what gopenpgp reports for the key as a whole.
func subKeyFrom(pk *packet.PublicKey, secret, revoked bool) pgpme.SubKey {
	bits, _ := pk.BitLength()
	algo := pk.PubKeyAlgo
	return pgpme.SubKey{
		PubKeyAlgo:  pgpme.PubKeyAlgo(algo),
		Length:      int(bits),
		KeyID:       pk.KeyIdString(),
		Fingerprint: fingerprintString(pk.Fingerprint),
		Created:     pk.CreationTime,
		Revoked:     revoked,
		CanEncrypt:  algo.CanEncrypt(),
		CanSign:     algo.CanSign(),
		CanCertify:  algo.CanSign(),
		Secret:      secret,
	}
}

// userIDsFrom lists the entity's identities in name order and fills
// certification signatures only under KeyListModeSigs.
func userIDsFrom(entity *openpgp.Entity, secret bool, mode pgpme.KeyListMode) []pgpme.UserID {
	names := make([]string, 0, len(entity.Identities))
	for name := range entity.Identities {
		names = append(names, name)
	}
	sort.Strings(names)

	validity := pgpme.ValidityUnknown
	if secret {
		validity = pgpme.ValidityUltimate
	}

	now := time.Now()
	uids := make([]pgpme.UserID, 0, len(names))
	for _, name := range names {
		ident := entity.Identities[name]
		if ident == nil || ident.UserId == nil {
			continue
		}
		uid := pgpme.UserID{
			Validity: validity,
			UID:      ident.UserId.Id,
			Name:     ident.UserId.Name,
			Comment:  ident.UserId.Comment,
			Email:    ident.UserId.Email,
			Revoked:  len(ident.Revocations) > 0,
		}
		if mode&pgpme.KeyListModeSigs != 0 {
			for _, cert := range ident.OtherCertifications {
				if cert.Packet != nil {
					uid.Signatures = append(uid.Signatures, keySigFrom(cert.Packet, now))
				}
			}
		}
		uids = append(uids, uid)
	}
	return uids
}

func keySigFrom(sig *packet.Signature, now time.Time) pgpme.KeySig {
	ks := pgpme.KeySig{
		PubKeyAlgo: pgpme.PubKeyAlgo(sig.PubKeyAlgo),
		Created:    sig.CreationTime,
		// go-crypto rejects non-exportable certifications at parse time,
		// so any signature that reaches this point is exportable.
		Exportable: true,
	}
	if sig.IssuerKeyId != nil {
		ks.KeyID = fmt.Sprintf("%016X", *sig.IssuerKeyId)
	}
	if sig.SigLifetimeSecs != nil && *sig.SigLifetimeSecs > 0 {
		ks.Expires = sig.CreationTime.Add(time.Duration(*sig.SigLifetimeSecs) * time.Second)
		ks.Expired = now.After(ks.Expires)
	}
	return ks
}

// loadKeyring reads every armored key file under dir. A missing
// directory is an empty keyring.
func loadKeyring(dir string) (map[string]*crypto.Key, error) {
	keys := make(map[string]*crypto.Key)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return keys, nil
		}
		return nil, fmt.Errorf("reading keyring directory %s: %w", dir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), keyFileExt) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading key file %s: %w", path, err)
		}
		key, err := crypto.NewKeyFromArmored(string(raw))
		if err != nil {
			return nil, fmt.Errorf("parsing key file %s: %w", path, err)
		}
		keys[strings.ToUpper(key.GetFingerprint())] = key
	}
	return keys, nil
}

// persistKey writes one key to its keyring file, secret material
// included when the key is private.
func persistKey(dir string, key *crypto.Key) error {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating keyring directory: %w", err)
	}
	var armored string
	var err error
	if key.IsPrivate() {
		armored, err = key.Armor()
	} else {
		armored, err = key.GetArmoredPublicKey()
	}
	if err != nil {
		return fmt.Errorf("armoring key %s: %w", key.GetFingerprint(), err)
	}
	path := filepath.Join(dir, strings.ToUpper(key.GetFingerprint())+keyFileExt)
	mode := fs.FileMode(0644)
	if key.IsPrivate() {
		mode = 0600
	}
	if err := os.WriteFile(path, []byte(armored), mode); err != nil {
		return fmt.Errorf("writing key file %s: %w", path, err)
	}
	return nil
}

func removeKeyFile(dir, fingerprint string) error {
	path := filepath.Join(dir, strings.ToUpper(fingerprint)+keyFileExt)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing key file %s: %w", path, err)
	}
	return nil
}
