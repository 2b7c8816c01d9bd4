package secret

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) string {
	t.Helper()
	return base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef"))
}

func TestSealOpenRoundTrip(t *testing.T) {
	s, err := NewSealer(testKey(t))
	require.NoError(t, err)

	sealed, err := s.Seal("000123456789")
	require.NoError(t, err)
	assert.NotEqual(t, "000123456789", sealed)

	opened, err := s.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "000123456789", opened)
}

func TestSealIsNonDeterministic(t *testing.T) {
	s, err := NewSealer(testKey(t))
	require.NoError(t, err)

	a, err := s.Seal("000123456789")
	require.NoError(t, err)
	b, err := s.Seal("000123456789")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestNewSealerRejectsBadKeys(t *testing.T) {
	_, err := NewSealer("not base64!")
	assert.ErrorIs(t, err, ErrInvalidKey)

	short := base64.StdEncoding.EncodeToString([]byte("too short"))
	_, err = NewSealer(short)
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestOpenRejectsTamperedCiphertext(t *testing.T) {
	s, err := NewSealer(testKey(t))
	require.NoError(t, err)

	sealed, err := s.Seal("000123456789")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(sealed)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xff
	_, err = s.Open(base64.StdEncoding.EncodeToString(raw))
	assert.ErrorIs(t, err, ErrInvalidCiphertext)

	_, err = s.Open("@@@")
	assert.ErrorIs(t, err, ErrInvalidCiphertext)

	other, err := NewSealer(base64.StdEncoding.EncodeToString([]byte("fedcba9876543210fedcba9876543210")))
	require.NoError(t, err)
	_, err = other.Open(sealed)
	assert.ErrorIs(t, err, ErrInvalidCiphertext)
}
