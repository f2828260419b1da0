package modinfo

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
)

type HashType string

const (
	MD5    HashType = "md5"
	SHA1   HashType = "sha1"
	SHA256 HashType = "sha256"
	SHA512 HashType = "sha512"
)

func (t HashType) New() (hash.Hash, error) {
	switch t {
	case MD5:
		return md5.New(), nil
	case SHA1:
		return sha1.New(), nil
	case SHA256:
		return sha256.New(), nil
	case SHA512:
		return sha512.New(), nil
	}
	return nil, fmt.Errorf("unknown hash type %q", string(t))
}

func (t HashType) MarshalText() ([]byte, error) { return []byte(t), nil }

func (t *HashType) UnmarshalText(b []byte) error {
	v := HashType(b)
	if _, err := v.New(); err != nil {
		return err
	}
	*t = v
	return nil
}

// Hash is a hex digest of a file.
type Hash struct {
	Type  HashType `codec:"type,required"`
	Value string   `codec:"value,required"`
}

func (h Hash) String() string { return string(h.Type) + " " + h.Value }

func (h Hash) Sum(r io.Reader) (string, error) {
	hh, err := h.Type.New()
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(hh, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(hh.Sum(nil)), nil
}

func (h Hash) Check(data []byte) bool {
	hh, err := h.Type.New()
	if err != nil {
		return false
	}
	hh.Write(data)
	return hex.EncodeToString(hh.Sum(nil)) == h.Value
}

// CheckFile reports whether the file at path exists and matches h.
func (h Hash) CheckFile(path string) (bool, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer f.Close()
	sum, err := h.Sum(f)
	if err != nil {
		return false, fmt.Errorf("hashing %s: %w", path, err)
	}
	return sum == h.Value, nil
}
