// Package apikeys provides API key issuance, authentication and scope authorization middleware.
//
// This file contains key material generation and the one-way digest.
package apikeys

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"hash"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"golang.org/x/crypto/sha3"
)

// KeyMaterial is the output of one generation. Plaintext must be handed to the
// caller once and then dropped.
type KeyMaterial struct {
	Plaintext string
	Prefix    string
	Hash      string
}

// Digester computes the deterministic digest stored for lookup.
// With a secret it computes an HMAC, so a leaked table cannot be checked
// against guesses without the installation secret.
type Digester struct {
	algorithm string
	newHash   func() hash.Hash
	secret    []byte
}

// NewDigester returns a digester for the named algorithm (sha256 or sha3-256).
// An empty algorithm selects sha256. An empty secret disables HMAC.
func NewDigester(algorithm string, secret []byte) (*Digester, error) {
	algorithm = strings.ToLower(strings.TrimSpace(algorithm))
	if algorithm == "" {
		algorithm = DEFAULT_HASH_ALGORITHM
	}

	var newHash func() hash.Hash
	switch algorithm {
	case HASH_ALGORITHM_SHA256:
		newHash = sha256.New
	case HASH_ALGORITHM_SHA3_256:
		newHash = sha3.New256
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedHash, algorithm)
	}

	d := &Digester{algorithm: algorithm, newHash: newHash}
	if len(secret) > 0 {
		d.secret = make([]byte, len(secret))
		copy(d.secret, secret)
	}
	return d, nil
}

// DefaultDigester is plain SHA-256.
func DefaultDigester() *Digester {
	return &Digester{algorithm: HASH_ALGORITHM_SHA256, newHash: sha256.New}
}

// Algorithm returns the configured algorithm name.
func (d *Digester) Algorithm() string {
	return d.algorithm
}

// Keyed reports whether an installation secret is mixed in.
func (d *Digester) Keyed() bool {
	return len(d.secret) > 0
}

// Digest returns the lowercase hex digest of plaintext. Any byte sequence is accepted.
func (d *Digester) Digest(plaintext string) string {
	var h hash.Hash
	if d.Keyed() {
		h = hmac.New(d.newHash, d.secret)
	} else {
		h = d.newHash()
	}
	h.Write([]byte(plaintext))
	return hex.EncodeToString(h.Sum(nil))
}

// Matches reports whether plaintext digests to expected, in constant time.
func (d *Digester) Matches(plaintext, expected string) bool {
	actual := d.Digest(plaintext)
	return subtle.ConstantTimeCompare([]byte(actual), []byte(expected)) == 1
}

// Generator produces fresh key material. It performs no I/O.
type Generator struct {
	digester *Digester
}

// NewGenerator returns a generator hashing with digester (SHA-256 when nil).
func NewGenerator(digester *Digester) *Generator {
	if digester == nil {
		digester = DefaultDigester()
	}
	return &Generator{digester: digester}
}

// Digester returns the digester shared with authentication.
func (g *Generator) Digester() *Digester {
	return g.digester
}

// Generate returns a new plaintext, its display prefix and its digest.
// The plaintext is 64 characters from a 64 symbol alphabet read from
// crypto/rand, 384 bits in total.
func (g *Generator) Generate() (*KeyMaterial, error) {
	plaintext, err := gonanoid.New(KEY_PLAINTEXT_LENGTH)
	if err != nil {
		return nil, wrapInternal(ErrFailedToGenerateKey, OPERATION_CREATE_APIKEY, err)
	}

	return &KeyMaterial{
		Plaintext: plaintext,
		Prefix:    plaintext[:KEY_PREFIX_LENGTH],
		Hash:      g.digester.Digest(plaintext),
	}, nil
}

// generateKeyID returns a new opaque record identifier.
func generateKeyID() (string, error) {
	id, err := gonanoid.New(KEY_ID_LENGTH)
	if err != nil {
		return "", err
	}
	return KEY_ID_PREFIX + id, nil
}
