package password

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/newsletter/internal/model"
)

// testConfig はテスト用の軽量パラメータ。
func testConfig() Config {
	return Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func newTestHasher(t *testing.T) *Hasher {
	t.Helper()
	h, err := NewHasher(testConfig())
	require.NoError(t, err)
	return h
}

func TestHasher_HashAndVerify(t *testing.T) {
	h := newTestHasher(t)

	passwords := []string{
		"Passw0rd",
		"CorrectHorse9BatteryStaple",
		"Ab1" + strings.Repeat("x", 125),
		"日本語Pass1word",
	}

	for _, pw := range passwords {
		digest, err := h.Hash(pw)
		require.NoError(t, err, "Hash(%q)", pw)
		assert.True(t, strings.HasPrefix(digest, "$argon2id$v=19$m=8192,t=1,p=1$"), "digest = %s", digest)

		ok, err := h.Verify(pw, digest)
		require.NoError(t, err)
		assert.True(t, ok, "Verify(%q) should succeed", pw)

		ok, err = h.Verify(pw+"x", digest)
		require.NoError(t, err)
		assert.False(t, ok, "Verify with wrong password should fail")
	}
}

func TestHasher_SaltIsRandom(t *testing.T) {
	h := newTestHasher(t)

	a, err := h.Hash("Passw0rd!")
	require.NoError(t, err)
	b, err := h.Hash("Passw0rd!")
	require.NoError(t, err)

	assert.NotEqual(t, a, b, "same password should produce different digests")
}

func TestHasher_PolicyViolations(t *testing.T) {
	h := newTestHasher(t)

	tests := []struct {
		name     string
		password string
	}{
		{name: "7文字", password: "Pass12a"},
		{name: "129文字", password: "Ab1" + strings.Repeat("x", 126)},
		{name: "数字なし", password: "Password"},
		{name: "小文字なし", password: "PASSWORD1"},
		{name: "大文字なし", password: "password1"},
		{name: "空文字列", password: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			digest, err := h.Hash(tt.password)
			assert.Empty(t, digest)

			var vErr *model.ValidationError
			require.True(t, errors.As(err, &vErr), "error = %v, want *model.ValidationError", err)
			assert.Equal(t, model.ReasonWeakPassword, vErr.Reason)
			assert.Equal(t, "password", vErr.Field)
		})
	}
}

func TestHasher_PolicyBoundaries(t *testing.T) {
	assert.NoError(t, CheckPolicy("Passw0rd"))
	assert.NoError(t, CheckPolicy("Ab1"+strings.Repeat("x", 125)))
}

func TestHasher_VerifyMalformedHash(t *testing.T) {
	h := newTestHasher(t)

	valid, err := h.Hash("Passw0rd")
	require.NoError(t, err)
	parts := strings.Split(valid, "$")

	tests := []struct {
		name   string
		digest string
	}{
		{name: "空文字列", digest: ""},
		{name: "区切り不足", digest: "$argon2id$v=19$m=8192,t=1,p=1$abc"},
		{name: "別アルゴリズム", digest: "$2a$10$abcdefghijklmnopqrstuuvwxyzABCDEFGHIJKLMNOPQRSTUVWXY"},
		{name: "バージョン不一致", digest: "$argon2id$v=16$" + parts[3] + "$" + parts[4] + "$" + parts[5]},
		{name: "パラメータ不正", digest: "$argon2id$v=19$m=x,t=1,p=1$" + parts[4] + "$" + parts[5]},
		{name: "メモリ過大", digest: "$argon2id$v=19$m=99999999,t=1,p=1$" + parts[4] + "$" + parts[5]},
		{name: "ソルト不正", digest: "$argon2id$v=19$" + parts[3] + "$!!!$" + parts[5]},
		{name: "ハッシュ不正", digest: "$argon2id$v=19$" + parts[3] + "$" + parts[4] + "$!!!"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := h.Verify("Passw0rd", tt.digest)
			assert.False(t, ok)
			assert.ErrorIs(t, err, ErrMalformedHash)
		})
	}
}

func TestHasher_VerifyUsesDigestParameters(t *testing.T) {
	weak := newTestHasher(t)
	digest, err := weak.Hash("Passw0rd")
	require.NoError(t, err)

	strongCfg := testConfig()
	strongCfg.Time = 2
	strong, err := NewHasher(strongCfg)
	require.NoError(t, err)

	ok, err := strong.Verify("Passw0rd", digest)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, strong.NeedsRehash(digest))
	assert.False(t, weak.NeedsRehash(digest))
}

func TestNewHasher_RejectsWeakConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Memory = 1024
	_, err := NewHasher(cfg)
	assert.Error(t, err)

	cfg = testConfig()
	cfg.SaltLength = 8
	_, err = NewHasher(cfg)
	assert.Error(t, err)
}
