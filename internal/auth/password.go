package auth

// PASSWORD HASHING
//
// WHY ARGON2ID?
// argon2id is memory-hard: every guess costs the attacker tens of megabytes
// of RAM as well as CPU time, which blunts GPU and ASIC cracking far more than
// an iteration count alone.
//
// Digest format (self-describing, so verification needs nothing else):
//
//	$argon2id$v=19$m=65536,t=3,p=2$<base64 salt>$<base64 key>
//	 ^         ^    ^
//	 |         |    memory (KiB), iterations, parallelism
//	 |         argon2 version
//	 algorithm
//
// Digests starting with "$2" are bcrypt and still verify, so accounts seeded
// by older tooling keep working.

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// MaxPasswordLength bounds the secret we are willing to hash.
const MaxPasswordLength = 255

// argonParams is the argon2id cost configuration embedded in every digest.
type argonParams struct {
	memory  uint32 // KiB
	time    uint32
	threads uint8
	saltLen uint32
	keyLen  uint32
}

// defaultParams takes roughly 50–100ms on a modern server core.
var defaultParams = argonParams{
	memory:  64 * 1024,
	time:    3,
	threads: 2,
	saltLen: 16,
	keyLen:  32,
}

// Ceilings on the cost read back from a stored digest. A digest asking for
// more is treated as corrupt instead of being computed.
const (
	maxArgonMemory  = 1 << 20 // KiB
	maxArgonTime    = 10
	maxArgonThreads = 16
	maxArgonKeyLen  = 128
)

// PasswordService provides argon2id hashing and verification.
//
// It's a struct (not free functions) so that the cost can be injected
// in tests, where a tiny memory setting keeps each hash under a millisecond.
type PasswordService struct {
	params argonParams
}

// NewPasswordService creates a PasswordService with production parameters.
func NewPasswordService() *PasswordService {
	return &PasswordService{params: defaultParams}
}

// NewPasswordServiceForTest creates a PasswordService with minimal argon2
// cost. Use it in tests in other packages.
//
// Do NOT use in production: these parameters are far too weak.
func NewPasswordServiceForTest() *PasswordService {
	return &PasswordService{params: argonParams{
		memory:  64,
		time:    1,
		threads: 1,
		saltLen: 16,
		keyLen:  32,
	}}
}

// Hash derives a salted argon2id digest from the plaintext password.
func (p *PasswordService) Hash(plaintext string) (string, error) {
	if len(plaintext) > MaxPasswordLength {
		return "", fmt.Errorf("auth: password must be %d bytes or fewer", MaxPasswordLength)
	}

	salt := make([]byte, p.params.saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("auth: generating salt: %w", err)
	}

	key := argon2.IDKey([]byte(plaintext), salt,
		p.params.time, p.params.memory, p.params.threads, p.params.keyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		p.params.memory, p.params.time, p.params.threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether plaintext matches the stored digest.
//
// It returns false, never an error or a panic, for a wrong password, an
// empty digest (accounts created through an external identity provider),
// a malformed digest, a digest whose cost exceeds the ceilings above or an
// unknown algorithm. The comparison is constant-time.
func (p *PasswordService) Verify(digest, plaintext string) bool {
	switch {
	case digest == "":
		return false
	case strings.HasPrefix(digest, "$argon2id$"):
		return verifyArgon2id(digest, plaintext)
	case strings.HasPrefix(digest, "$2"):
		return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext)) == nil
	default:
		return false
	}
}

func verifyArgon2id(digest, plaintext string) bool {
	parts := strings.Split(digest, "$")
	if len(parts) != 6 {
		return false
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return false
	}

	var params argonParams
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d",
		&params.memory, &params.time, &params.threads); err != nil {
		return false
	}
	if params.memory == 0 || params.time == 0 || params.threads == 0 {
		return false
	}
	if params.memory > maxArgonMemory || params.time > maxArgonTime || params.threads > maxArgonThreads {
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) == 0 {
		return false
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(want) == 0 || len(want) > maxArgonKeyLen {
		return false
	}

	got := argon2.IDKey([]byte(plaintext), salt,
		params.time, params.memory, params.threads, uint32(len(want)))

	return subtle.ConstantTimeCompare(got, want) == 1
}
