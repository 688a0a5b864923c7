// Package aptos is a small client for the Aptos node REST API: view calls,
// ledger and account lookups, and signed entry function submission.
package aptos

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/equinox-racing/racebot/internal/aptos/bcs"
)

const AddressLength = 32

type AccountAddress [AddressLength]byte

// ParseAddress accepts long and short hex forms, with or without 0x.
func ParseAddress(s string) (AccountAddress, error) {
	var addr AccountAddress

	raw := strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if raw == "" {
		return addr, fmt.Errorf("parse address %q: empty", s)
	}
	if len(raw) > AddressLength*2 {
		return addr, fmt.Errorf("parse address %q: too long", s)
	}
	if len(raw)%2 == 1 {
		raw = "0" + raw
	}

	b, err := hex.DecodeString(raw)
	if err != nil {
		return addr, fmt.Errorf("parse address %q: %w", s, err)
	}

	copy(addr[AddressLength-len(b):], b)
	return addr, nil
}

func (a AccountAddress) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

func (a AccountAddress) MarshalBCS(s *bcs.Serializer) {
	s.FixedBytes(a[:])
}
