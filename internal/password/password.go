// password реализует хэширование паролей алгоритмом Argon2id.
//
// Формат дайджеста:
//
//	$argon2id$v=19$m=<mem>,t=<iter>,p=<par>$<salt_b64>$<key_b64>
//
// Соль генерируется на каждый вызов Hash; параметры стоимости фиксируются
// при создании Hasher и не зависят от пользовательского ввода. Verify
// никогда не паникует: на битый или чужой дайджест возвращает false.
package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// argon2.Version == 0x13 (19).
const argon2Version = 19

// ErrInvalidHash — дайджест не распознан или не поддерживается.
var ErrInvalidHash = errors.New("invalid password hash")

// Params задаёт стоимость Argon2id. MemoryKiB — в KiB, как требует argon2.IDKey.
type Params struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultParams — базовые параметры для интерактивного логина.
func DefaultParams() Params {
	return Params{
		MemoryKiB:   64 * 1024, // 64 MiB
		Iterations:  3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// Hasher хэширует и проверяет пароли с неизменяемыми параметрами стоимости.
// Экземпляр безопасен для конкурентного использования.
type Hasher struct {
	params Params
}

// New создаёт Hasher; нулевые поля параметров заменяются значениями по умолчанию.
func New(p Params) *Hasher {
	def := DefaultParams()
	if p.MemoryKiB == 0 {
		p.MemoryKiB = def.MemoryKiB
	}
	if p.Iterations == 0 {
		p.Iterations = def.Iterations
	}
	if p.Parallelism == 0 {
		p.Parallelism = def.Parallelism
	}
	if p.SaltLength == 0 {
		p.SaltLength = def.SaltLength
	}
	if p.KeyLength == 0 {
		p.KeyLength = def.KeyLength
	}

	return &Hasher{params: p}
}

// Hash хэширует пароль со свежей случайной солью.
func (h *Hasher) Hash(password string) (string, error) {
	const op = "password.Hash"

	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	key := argon2.IDKey(
		[]byte(password),
		salt,
		h.params.Iterations,
		h.params.MemoryKiB,
		h.params.Parallelism,
		h.params.KeyLength,
	)

	b64 := base64.RawStdEncoding
	enc := fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2Version,
		h.params.MemoryKiB,
		h.params.Iterations,
		h.params.Parallelism,
		b64.EncodeToString(salt),
		b64.EncodeToString(key),
	)

	return enc, nil
}

// Verify сравнивает пароль с дайджестом. Возвращает false на несовпадение
// и на любой некорректный/неподдерживаемый дайджест.
func (h *Hasher) Verify(encoded, password string) bool {
	params, salt, expected, err := decode(encoded)
	if err != nil {
		return false
	}

	// Защита от чужих дайджестов с запредельной стоимостью.
	if !withinBounds(params, h.params) {
		return false
	}

	key := argon2.IDKey(
		[]byte(password),
		salt,
		params.Iterations,
		params.MemoryKiB,
		params.Parallelism,
		uint32(len(expected)),
	)

	return subtle.ConstantTimeCompare(key, expected) == 1
}

// withinBounds отклоняет параметры, значительно превышающие сконфигурированные.
func withinBounds(got, limits Params) bool {
	if got.MemoryKiB > limits.MemoryKiB*2 {
		return false
	}
	if got.Iterations > limits.Iterations*2 {
		return false
	}
	if got.Parallelism > limits.Parallelism*2 {
		return false
	}
	if got.SaltLength < 8 || got.SaltLength > 64 {
		return false
	}
	if got.KeyLength < 16 || got.KeyLength > 128 {
		return false
	}

	return true
}

// decode разбирает дайджест на параметры, соль и ожидаемый ключ.
func decode(encoded string) (Params, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return Params{}, nil, nil, ErrInvalidHash
	}

	if parts[2] != fmt.Sprintf("v=%d", argon2Version) {
		return Params{}, nil, nil, ErrInvalidHash
	}

	var mem, it, par uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &mem, &it, &par); err != nil {
		return Params{}, nil, nil, ErrInvalidHash
	}
	if mem == 0 || it == 0 || par == 0 || par > 255 {
		return Params{}, nil, nil, ErrInvalidHash
	}

	b64 := base64.RawStdEncoding
	salt, err := b64.DecodeString(parts[4])
	if err != nil {
		return Params{}, nil, nil, ErrInvalidHash
	}
	key, err := b64.DecodeString(parts[5])
	if err != nil {
		return Params{}, nil, nil, ErrInvalidHash
	}

	params := Params{
		MemoryKiB:   mem,
		Iterations:  it,
		Parallelism: uint8(par),
		SaltLength:  uint32(len(salt)),
		KeyLength:   uint32(len(key)),
	}

	return params, salt, key, nil
}
