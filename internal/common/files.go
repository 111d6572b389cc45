package common

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"
	"os"
)

// Hasher accumulates a SHA-256 digest, typically via io.TeeReader while an
// upload is being spooled to disk.
type Hasher struct {
	h hash.Hash
}

func NewHasher() *Hasher {
	return &Hasher{h: sha256.New()}
}

func (h *Hasher) Write(p []byte) (int, error) {
	return h.h.Write(p)
}

func (h *Hasher) Sum() string {
	return hex.EncodeToString(h.h.Sum(nil))
}

// Spooled describes a stream copied to a temporary file.
type Spooled struct {
	Path   string
	SHA256 string
	Size   int64
}

// Spool copies src into a new file created in dir from pattern (as for
// os.CreateTemp), hashing it on the way. The file is removed on failure.
func Spool(dir, pattern string, src io.Reader) (Spooled, error) {
	dest, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return Spooled{}, err
	}
	h := NewHasher()
	n, err := io.Copy(dest, io.TeeReader(src, h))
	if cerr := dest.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dest.Name())
		return Spooled{}, err
	}
	return Spooled{Path: dest.Name(), SHA256: h.Sum(), Size: n}, nil
}

// Sha256OfFile returns the hex digest and size of the file at path.
func Sha256OfFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()
	h := NewHasher()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return h.Sum(), n, nil
}
