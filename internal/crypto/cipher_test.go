package crypto

import (
	"testing"

	"github.com/kash/onboarding-service/internal/domain"
	"github.com/kash/onboarding-service/internal/errs"
	"github.com/stretchr/testify/require"
)

func TestCipher_RoundTrip(t *testing.T) {
	c, err := NewCipher("master-key", "prime_trust")
	require.NoError(t, err)

	for _, plain := range []string{"acc_123", "6f1c2d3e-aaaa-bbbb-cccc-000000000000", "üñíçødé"} {
		enc, err := c.Encrypt(plain)
		require.NoError(t, err)
		require.NotEqual(t, plain, enc)

		dec, err := c.Decrypt(enc)
		require.NoError(t, err)
		require.Equal(t, plain, dec)
	}
}

func TestCipher_NonceIsRandom(t *testing.T) {
	c, err := NewCipher("master-key", "wyre")
	require.NoError(t, err)

	a, err := c.Encrypt("same")
	require.NoError(t, err)
	b, err := c.Encrypt("same")
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestCipher_WrongKeyFails(t *testing.T) {
	good, err := NewCipher("master-key", "baanx")
	require.NoError(t, err)
	otherKey, err := NewCipher("another-key", "baanx")
	require.NoError(t, err)
	otherDomain, err := NewCipher("master-key", "wyre")
	require.NoError(t, err)

	enc, err := good.Encrypt("external-id")
	require.NoError(t, err)

	_, err = otherKey.Decrypt(enc)
	require.ErrorIs(t, err, errs.ErrDecrypt)

	_, err = otherDomain.Decrypt(enc)
	require.ErrorIs(t, err, errs.ErrDecrypt)
}

func TestCipher_MalformedInput(t *testing.T) {
	c, err := NewCipher("master-key", "solaris")
	require.NoError(t, err)

	_, err = c.Decrypt("%%%not-base64%%%")
	require.ErrorIs(t, err, errs.ErrDecrypt)

	_, err = c.Decrypt("c2hvcnQ=")
	require.ErrorIs(t, err, errs.ErrDecrypt)
}

func TestCipher_EmptyStringPassesThrough(t *testing.T) {
	c, err := NewCipher("master-key", "solaris")
	require.NoError(t, err)

	enc, err := c.Encrypt("")
	require.NoError(t, err)
	require.Empty(t, enc)

	dec, err := c.Decrypt("")
	require.NoError(t, err)
	require.Empty(t, dec)
}

func TestNewCipher_RequiresKey(t *testing.T) {
	_, err := NewCipher("", "baanx")
	require.Error(t, err)
}

func TestKeyring(t *testing.T) {
	k, err := NewKeyring(map[domain.Provider]string{
		domain.ProviderPrimeTrust:         "pt-key",
		domain.ProviderPrimeTrustBusiness: "pt-key",
	})
	require.NoError(t, err)

	personal, err := k.For(domain.ProviderPrimeTrust)
	require.NoError(t, err)
	business, err := k.For(domain.ProviderPrimeTrustBusiness)
	require.NoError(t, err)

	enc, err := personal.Encrypt("acc")
	require.NoError(t, err)
	_, err = business.Decrypt(enc)
	require.ErrorIs(t, err, errs.ErrDecrypt)

	_, err = k.For(domain.ProviderBaanx)
	require.Error(t, err)
}
