// Package password derives and verifies peppered argon2id password hashes.
package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
)

// Errors
var (
	ErrEmptyPassword = errors.New("password cannot be empty")
	ErrInvalidHash   = errors.New("invalid password hash")
	ErrInvalidParams = errors.New("invalid argon2id parameters")
)

// Params are the argon2id cost parameters
type Params struct {
	Memory  uint32 `mapstructure:"memory"`  // KiB
	Time    uint32 `mapstructure:"time"`    // iterations
	Threads uint8  `mapstructure:"threads"` // lanes
	SaltLen uint32 `mapstructure:"salt_len"`
	KeyLen  uint32 `mapstructure:"key_len"`
}

// DefaultParams returns 64 MiB, 4 iterations, 3 lanes
func DefaultParams() Params {
	return Params{
		Memory:  64 * 1024,
		Time:    4,
		Threads: 3,
		SaltLen: 16,
		KeyLen:  32,
	}
}

// Validate checks the parameters are usable by argon2id
func (p Params) Validate() error {
	switch {
	case p.Time < 1:
		return fmt.Errorf("%w: time must be at least 1", ErrInvalidParams)
	case p.Threads < 1:
		return fmt.Errorf("%w: threads must be at least 1", ErrInvalidParams)
	case p.Memory < 8*uint32(p.Threads):
		return fmt.Errorf("%w: memory must be at least 8*threads KiB", ErrInvalidParams)
	case p.SaltLen < 8:
		return fmt.Errorf("%w: salt length must be at least 8 bytes", ErrInvalidParams)
	case p.KeyLen < 16:
		return fmt.Errorf("%w: key length must be at least 16 bytes", ErrInvalidParams)
	}
	return nil
}

// Hasher hashes passwords with a process-wide pepper appended before
// derivation. The pepper is never part of the encoded output.
type Hasher struct {
	params Params
	pepper []byte
}

// NewHasher creates a Hasher. pepper may be empty only in development.
func NewHasher(pepper string, params Params) (*Hasher, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Hasher{
		params: params,
		pepper: []byte(pepper),
	}, nil
}

// Params returns the parameters new hashes are produced with
func (h *Hasher) Params() Params {
	return h.params
}

// LogValue implements slog.LogValuer without exposing the pepper
func (h *Hasher) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Uint64("memory_kib", uint64(h.params.Memory)),
		slog.Uint64("time", uint64(h.params.Time)),
		slog.Uint64("threads", uint64(h.params.Threads)),
		slog.Bool("peppered", len(h.pepper) > 0),
	)
}

// Hash produces a PHC-formatted argon2id hash:
// $argon2id$v=19$m=65536,t=4,p=3$<salt>$<key>
func (h *Hasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	salt := make([]byte, h.params.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code("PASSWORD_SALT_FAILED").
			With("requested_bytes", h.params.SaltLen).
			Wrap(err)
	}

	key := argon2.IDKey(h.peppered(password), salt, h.params.Time, h.params.Memory, h.params.Threads, h.params.KeyLen)

	return encode(h.params, salt, key), nil
}

// DummyHash returns a well-formed hash with the current parameters and an
// all-zero salt and key. Verifying against it costs the same as a real hash
// and never succeeds in practice.
func (h *Hasher) DummyHash() string {
	return encode(h.params, make([]byte, h.params.SaltLen), make([]byte, h.params.KeyLen))
}

func encode(p Params, salt, key []byte) string {
	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		p.Memory,
		p.Time,
		p.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	)
}

// Verify reports whether password matches encoded. The parameters embedded
// in encoded are used, so hashes survive cost changes.
// Returns (false, nil) on mismatch and an error only for malformed hashes.
func (h *Hasher) Verify(password, encoded string) (bool, error) {
	d, err := decode(encoded)
	if err != nil {
		return false, err
	}

	key := argon2.IDKey(h.peppered(password), d.salt, d.params.Time, d.params.Memory, d.params.Threads, d.params.KeyLen)

	return subtle.ConstantTimeCompare(key, d.key) == 1, nil
}

// NeedsRehash reports whether encoded was produced with different parameters
// than the hasher's current ones, or cannot be parsed at all.
func (h *Hasher) NeedsRehash(encoded string) bool {
	d, err := decode(encoded)
	if err != nil {
		return true
	}
	return d.params != h.params
}

func (h *Hasher) peppered(password string) []byte {
	b := make([]byte, 0, len(password)+len(h.pepper))
	b = append(b, password...)
	return append(b, h.pepper...)
}

type decoded struct {
	params Params
	salt   []byte
	key    []byte
}

func decode(encoded string) (*decoded, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" {
		return nil, invalidHash("expected 6 segments")
	}
	if parts[1] != "argon2id" {
		return nil, invalidHash("unsupported algorithm " + parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return nil, invalidHash("bad version segment")
	}
	if version != argon2.Version {
		return nil, invalidHash(fmt.Sprintf("unsupported version %d", version))
	}

	var memory, time, threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return nil, invalidHash("bad parameter segment")
	}
	if time == 0 {
		return nil, invalidHash("time must be at least 1")
	}
	if threads == 0 || threads > 255 {
		return nil, invalidHash(fmt.Sprintf("threads %d out of range", threads))
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, invalidHash("bad salt encoding")
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return nil, invalidHash("bad key encoding")
	}
	if len(key) == 0 || len(key) > 1024 {
		return nil, invalidHash(fmt.Sprintf("key length %d out of range", len(key)))
	}

	return &decoded{
		params: Params{
			Memory:  memory,
			Time:    time,
			Threads: uint8(threads),
			SaltLen: uint32(len(salt)),
			KeyLen:  uint32(len(key)),
		},
		salt: salt,
		key:  key,
	}, nil
}

func invalidHash(reason string) error {
	return oops.Code("PASSWORD_INVALID_HASH").
		With("reason", reason).
		Wrap(ErrInvalidHash)
}
