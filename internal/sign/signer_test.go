package sign

import (
	"bytes"
	"strings"
	"testing"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/clearsign"
)

func newTestSigner(t *testing.T) *Signer {
	t.Helper()

	entity, err := openpgp.NewEntity("aptpub test", "", "test@example.com", nil)
	if err != nil {
		t.Fatal(err)
	}
	return NewFromEntity(entity)
}

func TestCleartext(t *testing.T) {
	t.Parallel()

	signer := newTestSigner(t)
	body := []byte("Origin: aptpub\nCodename: bionic\n")

	signed, err := signer.Cleartext(body)
	if err != nil {
		t.Fatal(err)
	}

	text := string(signed)
	if !strings.HasPrefix(text, "-----BEGIN PGP SIGNED MESSAGE-----\n") {
		t.Errorf("missing cleartext header:\n%s", text)
	}
	if !strings.Contains(text, "Origin: aptpub") {
		t.Error("signed message does not include the body")
	}
	if !strings.Contains(text, "-----BEGIN PGP SIGNATURE-----") {
		t.Error("signed message does not include a signature block")
	}
}

func TestCleartextVerifies(t *testing.T) {
	t.Parallel()

	signer := newTestSigner(t)
	body := []byte("Origin: aptpub\nCodename: bionic\n")

	signed, err := signer.Cleartext(body)
	if err != nil {
		t.Fatal(err)
	}

	block, _ := clearsign.Decode(signed)
	if block == nil {
		t.Fatal("output is not a cleartext-signed message")
	}
	if !bytes.Contains(block.Plaintext, []byte("Codename: bionic")) {
		t.Error("decoded plaintext does not include the body")
	}

	keyring := openpgp.EntityList{signer.entity}
	_, err = openpgp.CheckDetachedSignature(keyring, bytes.NewReader(block.Bytes), block.ArmoredSignature.Body, nil)
	if err != nil {
		t.Errorf("cleartext signature does not verify: %v", err)
	}
}

func TestDetachedVerifies(t *testing.T) {
	t.Parallel()

	signer := newTestSigner(t)
	body := []byte("Origin: aptpub\nCodename: bionic\n")

	sig, err := signer.Detached(body)
	if err != nil {
		t.Fatal(err)
	}

	keyring := openpgp.EntityList{signer.entity}
	_, err = openpgp.CheckArmoredDetachedSignature(keyring, bytes.NewReader(body), bytes.NewReader(sig), nil)
	if err != nil {
		t.Errorf("detached signature does not verify: %v", err)
	}

	// A tampered body must not verify.
	_, err = openpgp.CheckArmoredDetachedSignature(keyring, strings.NewReader("tampered"), bytes.NewReader(sig), nil)
	if err == nil {
		t.Error("tampered body verified")
	}
}

func TestPublicKeyArmored(t *testing.T) {
	t.Parallel()

	signer := newTestSigner(t)
	pub, err := signer.PublicKey()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(pub), "-----BEGIN PGP PUBLIC KEY BLOCK-----") {
		t.Errorf("unexpected armor header:\n%s", pub)
	}
}

func TestNewMissingKey(t *testing.T) {
	t.Parallel()

	if _, err := New("", "passphrase"); err == nil {
		t.Error("New should fail with an empty key path")
	}
	if _, err := New("/nonexistent/key.asc", "passphrase"); err == nil {
		t.Error("New should fail when the key file does not exist")
	}
}
