package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// SHA256Hex returns the lowercase hex SHA-256 of data.
func SHA256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// SHA256Reader hashes a stream and reports the number of bytes read.
func SHA256Reader(r io.Reader) (string, int64, error) {
	h := sha256.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return "", n, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// CanonicalSHA256 hashes the canonical JSON form of v and returns both the
// digest and the canonical bytes.
func CanonicalSHA256(v any) (string, []byte, error) {
	canonical, err := Canonicalize(v)
	if err != nil {
		return "", nil, err
	}
	return SHA256Hex(canonical), canonical, nil
}

// CanonicalDocumentSHA256 canonicalizes a raw JSON object. Arrays and
// scalars are rejected: structured entries are always objects.
func CanonicalDocumentSHA256(raw json.RawMessage) (string, []byte, error) {
	canonical, err := CanonicalizeJSON(raw)
	if err != nil {
		return "", nil, err
	}
	if len(canonical) == 0 || canonical[0] != '{' {
		return "", nil, errors.New("document must be a JSON object")
	}
	return SHA256Hex(canonical), canonical, nil
}

// IsSHA256Hex reports whether s is exactly 64 lowercase hex characters.
func IsSHA256Hex(s string) bool {
	if len(s) != sha256.Size*2 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// CombineDigests folds an ordered list of digests into one by hashing
// their canonical JSON array. A single digest is returned unchanged.
func CombineDigests(digests []string) (string, error) {
	switch len(digests) {
	case 0:
		return "", errors.New("no digests to combine")
	case 1:
		return digests[0], nil
	}
	items := make([]any, len(digests))
	for i, d := range digests {
		if !IsSHA256Hex(d) {
			return "", fmt.Errorf("digest %d is not sha256 hex", i)
		}
		items[i] = d
	}
	sum, _, err := CanonicalSHA256(items)
	return sum, err
}
