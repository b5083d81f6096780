package fsview

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
)

// DigestHintReader is a pluggable fast path for obtaining a file's content
// digest without reading its bytes, e.g. from a filesystem extended
// attribute populated by a prior build or a content-addressed store. A
// DigestHintReader that doesn't support a given path returns ok == false
// and the caller falls back to reading the file.
type DigestHintReader interface {
	DigestHint(path string) (digest Digest, ok bool)
}

// noHintReader is the default DigestHintReader: it never has a hint, so
// every digest is computed by reading the file. Most filesystems in test
// and CI environments carry no such extended attribute, so this is the
// common case rather than a degraded one.
type noHintReader struct{}

func (noHintReader) DigestHint(string) (Digest, bool) { return Digest{}, false }

// DigestPolicy computes and caches content digests for regular files,
// trying a DigestHintReader's fast path before falling back to reading and
// hashing the file.
type DigestPolicy struct {
	Hint DigestHintReader
}

// NewDigestPolicy creates a DigestPolicy. A nil hint reader disables the
// fast path.
func NewDigestPolicy(hint DigestHintReader) *DigestPolicy {
	if hint == nil {
		hint = noHintReader{}
	}
	return &DigestPolicy{Hint: hint}
}

// Digest computes the content digest of the regular file at path.
func (p *DigestPolicy) Digest(path string) (Digest, error) {
	if d, ok := p.Hint.DigestHint(path); ok {
		return d, nil
	}
	return digestFile(path)
}

func digestFile(path string) (Digest, error) {
	f, err := os.Open(path)
	if err != nil {
		return Digest{}, err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return Digest{}, err
	}

	return Digest{Algorithm: "sha256", Hex: hex.EncodeToString(h.Sum(nil))}, nil
}

// proxyDigest builds the type-discriminated fingerprint substituted for
// directories and symlinks, which have no single notion of content.
func proxyDigest(v FileValue) Digest {
	h := sha256.New()
	h.Write([]byte(v.Kind))
	h.Write([]byte(v.SymlinkTarget))
	var buf [8]byte
	putUint64(buf[:], v.InodeProxy)
	h.Write(buf[:])
	return Digest{Algorithm: "proxy", Hex: hex.EncodeToString(h.Sum(nil))}
}

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * uint(i)))
	}
}
