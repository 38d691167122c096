package utils

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"sort"
	"strings"

	"github.com/spf13/afero"
	"golang.org/x/crypto/sha3"
)

// ChunkSize is the read size used when streaming files through a digest
const ChunkSize = 64 * 1024

var hashes = map[string]func() hash.Hash{
	"md5":      md5.New,
	"sha1":     sha1.New,
	"sha224":   sha256.New224,
	"sha256":   sha256.New,
	"sha384":   sha512.New384,
	"sha512":   sha512.New,
	"sha3_224": func() hash.Hash { return sha3.New224() },
	"sha3_256": func() hash.Hash { return sha3.New256() },
	"sha3_384": func() hash.Hash { return sha3.New384() },
	"sha3_512": func() hash.Hash { return sha3.New512() },
}

// NewHash returns a digest for the named algorithm. Names are matched
// case-insensitively and "-" is accepted in place of "_".
func NewHash(algorithm string) (hash.Hash, error) {
	name := strings.ReplaceAll(strings.ToLower(algorithm), "-", "_")
	ctor, ok := hashes[name]
	if !ok {
		return nil, fmt.Errorf("unsupported checksum algorithm %q", algorithm)
	}
	return ctor(), nil
}

// SupportedAlgorithms lists the accepted algorithm names
func SupportedAlgorithms() []string {
	names := make([]string, 0, len(hashes))
	for name := range hashes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SplitChecksum splits "algorithm:hexdigest"
func SplitChecksum(checksum string) (algorithm, digest string, err error) {
	algorithm, digest, ok := strings.Cut(checksum, ":")
	if !ok || algorithm == "" || digest == "" {
		return "", "", fmt.Errorf("malformed checksum %q, expected algorithm:hexdigest", checksum)
	}
	return algorithm, digest, nil
}

// FileChecksum streams path through the named digest and returns the
// hex encoded sum.
func FileChecksum(fs afero.Fs, path, algorithm string) (string, error) {
	h, err := NewHash(algorithm)
	if err != nil {
		return "", err
	}

	f, err := fs.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	buf := make([]byte, ChunkSize)
	for {
		n, err := f.Read(buf)
		h.Write(buf[:n])
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// CalculateChecksum calculates a specific checksum for data
func CalculateChecksum(data []byte, hashType string) (string, error) {
	h, err := NewHash(hashType)
	if err != nil {
		return "", err
	}
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil)), nil
}
