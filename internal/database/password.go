package database

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Operator passwords are stored as Argon2id in the PHC string format:
//
//	$argon2id$v=19$m=65536,t=3,p=4$<salt>$<key>
//
// The cost parameters ride along in the string, so they can be raised
// later without invalidating existing accounts.
const (
	passIterations = 3
	passMemoryKiB  = 64 * 1024
	passLanes      = 4
	passKeyLen     = 32
	passSaltLen    = 16
)

// HashPassword derives a storable Argon2id hash for a login password.
func HashPassword(password string) (string, error) {
	salt := make([]byte, passSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("reading salt: %w", err)
	}
	key := argon2.IDKey([]byte(password), salt, passIterations, passMemoryKiB, passLanes, passKeyLen)

	var b strings.Builder
	fmt.Fprintf(&b, "$argon2id$v=%d$m=%d,t=%d,p=%d$",
		argon2.Version, passMemoryKiB, passIterations, passLanes)
	b.WriteString(base64.RawStdEncoding.EncodeToString(salt))
	b.WriteByte('$')
	b.WriteString(base64.RawStdEncoding.EncodeToString(key))
	return b.String(), nil
}

// CheckPassword reports whether password matches the stored hash. The
// comparison uses the cost parameters carried in the hash itself; a hash
// that cannot be parsed is an error, not a mismatch.
func CheckPassword(password, stored string) (bool, error) {
	h, err := parseStoredHash(stored)
	if err != nil {
		return false, err
	}
	key := argon2.IDKey([]byte(password), h.salt, h.iterations, h.memoryKiB, h.lanes, uint32(len(h.key)))
	return subtle.ConstantTimeCompare(h.key, key) == 1, nil
}

type storedHash struct {
	memoryKiB  uint32
	iterations uint32
	lanes      uint8
	salt       []byte
	key        []byte
}

func parseStoredHash(stored string) (*storedHash, error) {
	parts := strings.Split(stored, "$")
	if len(parts) != 6 || parts[0] != "" {
		return nil, errors.New("malformed password hash")
	}
	if parts[1] != "argon2id" {
		return nil, fmt.Errorf("unsupported hash algorithm %q", parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return nil, fmt.Errorf("parsing hash version: %w", err)
	}
	if version != argon2.Version {
		return nil, fmt.Errorf("unsupported argon2 version %d", version)
	}

	h := &storedHash{}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &h.memoryKiB, &h.iterations, &h.lanes); err != nil {
		return nil, fmt.Errorf("parsing hash parameters: %w", err)
	}

	var err error
	if h.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return nil, fmt.Errorf("decoding salt: %w", err)
	}
	if h.key, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return nil, fmt.Errorf("decoding key: %w", err)
	}
	return h, nil
}
