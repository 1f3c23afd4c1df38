package deb

import (
	"crypto/md5"  // #nosec G501 - MD5 required for APT repository compatibility
	"crypto/sha1" // #nosec G505 - SHA1 required for APT repository compatibility
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"io"
	"os"
)

// Checksums holds all checksum values for a file.
// APT repositories publish every digest, so all fields are always set.
type Checksums struct {
	MD5    string
	SHA1   string
	SHA256 string
	SHA512 string
	Size   int64
}

// ChecksumFile calculates all checksums for a file in a single pass.
func ChecksumFile(path string) (*Checksums, error) {
	f, err := os.Open(path) // #nosec G304 - path comes from the configured package directory
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = f.Close()
	}()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	md5Hash := md5.New()   // #nosec G401 - MD5 required for APT repository compatibility
	sha1Hash := sha1.New() // #nosec G401 - SHA1 required for APT repository compatibility
	sha256Hash := sha256.New()
	sha512Hash := sha512.New()

	mw := io.MultiWriter(md5Hash, sha1Hash, sha256Hash, sha512Hash)
	if _, err := io.Copy(mw, f); err != nil {
		return nil, err
	}

	return &Checksums{
		MD5:    hex.EncodeToString(md5Hash.Sum(nil)),
		SHA1:   hex.EncodeToString(sha1Hash.Sum(nil)),
		SHA256: hex.EncodeToString(sha256Hash.Sum(nil)),
		SHA512: hex.EncodeToString(sha512Hash.Sum(nil)),
		Size:   info.Size(),
	}, nil
}

// ChecksumBytes calculates all checksums for an in-memory byte slice.
func ChecksumBytes(data []byte) *Checksums {
	md5sum := md5.Sum(data)   // #nosec G401 - MD5 required for APT repository compatibility
	sha1sum := sha1.Sum(data) // #nosec G401 - SHA1 required for APT repository compatibility
	sha256sum := sha256.Sum256(data)
	sha512sum := sha512.Sum512(data)

	return &Checksums{
		MD5:    hex.EncodeToString(md5sum[:]),
		SHA1:   hex.EncodeToString(sha1sum[:]),
		SHA256: hex.EncodeToString(sha256sum[:]),
		SHA512: hex.EncodeToString(sha512sum[:]),
		Size:   int64(len(data)),
	}
}
