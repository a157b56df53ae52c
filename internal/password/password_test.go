package password

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// fastParams — облегчённая стоимость для тестов.
func fastParams() Params {
	return Params{
		MemoryKiB:   8 * 1024,
		Iterations:  1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func TestHashVerify_RoundTrip(t *testing.T) {
	t.Parallel()

	h := New(fastParams())

	enc, err := h.Hash("S3cret-password!")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(enc, "$argon2id$v=19$"))

	require.True(t, h.Verify(enc, "S3cret-password!"))
	require.False(t, h.Verify(enc, "s3cret-password!"))
	require.False(t, h.Verify(enc, ""))
}

func TestHash_SaltedPerCall(t *testing.T) {
	t.Parallel()

	h := New(fastParams())

	first, err := h.Hash("same-password")
	require.NoError(t, err)
	second, err := h.Hash("same-password")
	require.NoError(t, err)

	// Свежая соль на каждый вызов: одинаковые пароли дают разные дайджесты.
	require.NotEqual(t, first, second)
	require.True(t, h.Verify(first, "same-password"))
	require.True(t, h.Verify(second, "same-password"))
}

func TestVerify_MalformedDigest(t *testing.T) {
	t.Parallel()

	h := New(fastParams())

	cases := []struct {
		name string
		enc  string
	}{
		{"empty", ""},
		{"not a digest", "hunter2"},
		{"bcrypt digest", "$2a$10$N9qo8uLOickgx2ZMRZoMye"},
		{"wrong algorithm", "$argon2i$v=19$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$AAAA"},
		{"wrong version", "$argon2id$v=16$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$AAAA"},
		{"garbage params", "$argon2id$v=19$m=x,t=y,p=z$c2FsdHNhbHRzYWx0c2FsdA$AAAA"},
		{"zero params", "$argon2id$v=19$m=0,t=0,p=0$c2FsdHNhbHRzYWx0c2FsdA$AAAA"},
		{"bad salt base64", "$argon2id$v=19$m=8192,t=1,p=1$!!!$AAAA"},
		{"truncated", "$argon2id$v=19$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.False(t, h.Verify(tc.enc, "whatever"))
		})
	}
}

func TestVerify_RejectsExcessiveCost(t *testing.T) {
	t.Parallel()

	// Дайджест, созданный с сильно большей стоимостью, чем сконфигурировано,
	// отклоняется без вычисления: защита от DoS через подсунутый дайджест.
	expensive := New(Params{
		MemoryKiB:   64 * 1024,
		Iterations:  8,
		Parallelism: 4,
	})
	enc, err := expensive.Hash("pw")
	require.NoError(t, err)

	cheap := New(fastParams())
	require.False(t, cheap.Verify(enc, "pw"))
}

func TestNew_ZeroFieldsGetDefaults(t *testing.T) {
	t.Parallel()

	h := New(Params{})
	require.Equal(t, DefaultParams(), h.params)
}
