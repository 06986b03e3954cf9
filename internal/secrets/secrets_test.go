package secrets

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAESGCMRoundTrip(t *testing.T) {
	enc, err := NewAESGCM([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)

	plaintext := []byte(`{"qr_text":"35200112345678901234567890123456789012345678"}`)
	sealed, err := enc.Encrypt(plaintext)
	require.NoError(t, err)
	assert.NotContains(t, sealed, "35200112345678")

	opened, err := enc.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, plaintext, opened)
}

func TestAESGCMNonceUniqueness(t *testing.T) {
	enc, err := NewAESGCM([]byte("0123456789abcdef"))
	require.NoError(t, err)

	first, err := enc.Encrypt([]byte("same input"))
	require.NoError(t, err)
	second, err := enc.Encrypt([]byte("same input"))
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestAESGCMRejectsTamperedCiphertext(t *testing.T) {
	enc, err := NewAESGCM([]byte("0123456789abcdef"))
	require.NoError(t, err)

	sealed, err := enc.Encrypt([]byte("payload"))
	require.NoError(t, err)

	tampered := strings.ToLower(sealed)
	if tampered == sealed {
		tampered = strings.ToUpper(sealed)
	}
	_, err = enc.Decrypt(tampered)
	require.Error(t, err)

	_, err = enc.Decrypt("AAAA")
	require.Error(t, err)

	_, err = enc.Decrypt("not base64!!!")
	require.Error(t, err)
}

func TestAESGCMRejectsBadKeyLength(t *testing.T) {
	_, err := NewAESGCM([]byte("short"))
	require.Error(t, err)
}

func TestNoopPassthrough(t *testing.T) {
	var enc Encryptor = Noop{}
	sealed, err := enc.Encrypt([]byte("visible"))
	require.NoError(t, err)
	assert.Equal(t, "visible", sealed)

	opened, err := enc.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, []byte("visible"), opened)
}
