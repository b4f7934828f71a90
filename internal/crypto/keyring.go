package crypto

import (
	"fmt"

	"github.com/kash/onboarding-service/internal/domain"
)

// BalancesDomain is the key domain for balance snapshot blobs.
const BalancesDomain = "balances"

// Keyring holds one Cipher per provider.
type Keyring struct {
	ciphers map[domain.Provider]*Cipher
}

// NewKeyring derives a cipher for every provider that has a master key.
// Both Prime Trust providers share the Prime Trust master key but use distinct domains.
func NewKeyring(masterKeys map[domain.Provider]string) (*Keyring, error) {
	k := &Keyring{ciphers: make(map[domain.Provider]*Cipher, len(masterKeys))}
	for provider, key := range masterKeys {
		c, err := NewCipher(key, string(provider))
		if err != nil {
			return nil, fmt.Errorf("keyring %s: %w", provider, err)
		}
		k.ciphers[provider] = c
	}
	return k, nil
}

// For returns the cipher for provider.
func (k *Keyring) For(provider domain.Provider) (*Cipher, error) {
	c, ok := k.ciphers[provider]
	if !ok {
		return nil, fmt.Errorf("no encryption key configured for provider %s", provider)
	}
	return c, nil
}
