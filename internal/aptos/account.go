package aptos

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"
)

const (
	ed25519Scheme    = 0x00
	aip80Ed25519Pref = "ed25519-priv-"
)

// Account is the operator identity: an ed25519 key and the address it signs
// for.
type Account struct {
	key     ed25519.PrivateKey
	address AccountAddress
}

// NewAccountFromHex loads a 32 byte ed25519 seed given as hex, optionally
// 0x prefixed or in the AIP-80 "ed25519-priv-0x..." form. The address is
// derived from the public key.
func NewAccountFromHex(privateKey string) (*Account, error) {
	raw := strings.TrimSpace(privateKey)
	raw = strings.TrimPrefix(raw, aip80Ed25519Pref)
	raw = strings.TrimPrefix(raw, "0x")

	seed, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("decode private key: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("private key must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}

	key := ed25519.NewKeyFromSeed(seed)
	return &Account{key: key, address: AuthenticationKey(key.Public().(ed25519.PublicKey))}, nil
}

// WithAddress overrides the derived address, for accounts whose
// authentication key has been rotated.
func (a *Account) WithAddress(addr AccountAddress) *Account {
	return &Account{key: a.key, address: addr}
}

func (a *Account) Address() AccountAddress {
	return a.address
}

func (a *Account) PublicKey() ed25519.PublicKey {
	return a.key.Public().(ed25519.PublicKey)
}

func (a *Account) Sign(message []byte) []byte {
	return ed25519.Sign(a.key, message)
}

// AuthenticationKey is sha3-256(public key || scheme).
func AuthenticationKey(pub ed25519.PublicKey) AccountAddress {
	h := sha3.New256()
	h.Write(pub)
	h.Write([]byte{ed25519Scheme})

	var addr AccountAddress
	copy(addr[:], h.Sum(nil))
	return addr
}
