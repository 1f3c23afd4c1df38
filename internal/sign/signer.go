// Package sign produces the GPG signatures of repository metadata:
// the cleartext-signed InRelease and the detached Release.gpg.
package sign

import (
	"bytes"
	"crypto"
	"os"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/ProtonMail/go-crypto/openpgp/clearsign"
	"github.com/ProtonMail/go-crypto/openpgp/packet"
	"github.com/cockroachdb/errors"
)

// Signer signs repository metadata with a GPG private key.
type Signer struct {
	entity *openpgp.Entity
}

// New loads a GPG private key from keyPath and unlocks it with the
// passphrase. Armored and binary keyrings are both accepted.
func New(keyPath, passphrase string) (*Signer, error) {
	if keyPath == "" {
		return nil, errors.New("sign: key path is empty")
	}

	keyFile, err := os.Open(keyPath) // #nosec G304 - key path comes from validated configuration
	if err != nil {
		return nil, errors.Wrap(err, "sign: opening key file")
	}
	defer func() {
		_ = keyFile.Close()
	}()

	entityList, err := openpgp.ReadArmoredKeyRing(keyFile)
	if err != nil {
		if _, serr := keyFile.Seek(0, 0); serr != nil {
			return nil, serr
		}
		entityList, err = openpgp.ReadKeyRing(keyFile)
		if err != nil {
			return nil, errors.Wrap(err, "sign: reading keyring: "+keyPath)
		}
	}
	if len(entityList) == 0 {
		return nil, errors.New("sign: no keys found in " + keyPath)
	}

	entity := entityList[0]
	if err := unlock(entity, passphrase); err != nil {
		return nil, err
	}

	return &Signer{entity: entity}, nil
}

// NewFromEntity wraps an already-unlocked entity. Used by tests.
func NewFromEntity(entity *openpgp.Entity) *Signer {
	return &Signer{entity: entity}
}

func unlock(entity *openpgp.Entity, passphrase string) error {
	if passphrase == "" {
		return nil
	}

	if entity.PrivateKey != nil && entity.PrivateKey.Encrypted {
		if err := entity.PrivateKey.Decrypt([]byte(passphrase)); err != nil {
			return errors.Wrap(err, "sign: decrypting private key")
		}
	}
	for _, subkey := range entity.Subkeys {
		if subkey.PrivateKey != nil && subkey.PrivateKey.Encrypted {
			if err := subkey.PrivateKey.Decrypt([]byte(passphrase)); err != nil {
				return errors.Wrap(err, "sign: decrypting subkey")
			}
		}
	}
	return nil
}

// Cleartext creates a cleartext signature over data, the format APT
// expects in InRelease.
func (s *Signer) Cleartext(data []byte) ([]byte, error) {
	if s.entity.PrivateKey == nil {
		return nil, errors.New("sign: entity has no private key")
	}

	var buf bytes.Buffer
	plaintext, err := clearsign.Encode(&buf, s.entity.PrivateKey, &packet.Config{
		DefaultHash: crypto.SHA512,
	})
	if err != nil {
		return nil, errors.Wrap(err, "sign: cleartext signature")
	}
	if _, err := plaintext.Write(data); err != nil {
		_ = plaintext.Close()
		return nil, errors.Wrap(err, "sign: cleartext signature")
	}
	if err := plaintext.Close(); err != nil {
		return nil, errors.Wrap(err, "sign: cleartext signature")
	}

	return buf.Bytes(), nil
}

// Detached creates an armored detached signature over data, the format
// APT expects in Release.gpg.
func (s *Signer) Detached(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	err := openpgp.ArmoredDetachSign(&buf, s.entity, bytes.NewReader(data), &packet.Config{
		DefaultHash: crypto.SHA512,
	})
	if err != nil {
		return nil, errors.Wrap(err, "sign: detached signature")
	}
	return buf.Bytes(), nil
}

// PublicKey returns the signing key's public part in armored format.
// The armored key is published next to the repository so clients can
// pin it, and it is what the mirror uses to verify remote metadata.
func (s *Signer) PublicKey() ([]byte, error) {
	var buf bytes.Buffer

	w, err := armor.Encode(&buf, openpgp.PublicKeyType, nil)
	if err != nil {
		return nil, err
	}
	if err := s.entity.Serialize(w); err != nil {
		_ = w.Close()
		return nil, errors.Wrap(err, "sign: serializing public key")
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
