package aptos

import (
	"fmt"
	"strings"

	"github.com/equinox-racing/racebot/internal/aptos/bcs"
	"golang.org/x/crypto/sha3"
)

const (
	payloadEntryFunctionVariant = 2
	authenticatorEd25519Variant = 0
	rawTransactionSalt          = "APTOS::RawTransaction"
)

type ModuleID struct {
	Address AccountAddress
	Name    string
}

func (m ModuleID) String() string {
	return m.Address.String() + "::" + m.Name
}

func (m ModuleID) MarshalBCS(s *bcs.Serializer) {
	s.Struct(m.Address)
	s.Str(m.Name)
}

// FunctionID names a Move function: address::module::function.
type FunctionID struct {
	Module ModuleID
	Name   string
}

func (f FunctionID) String() string {
	return f.Module.String() + "::" + f.Name
}

func ParseFunctionID(s string) (FunctionID, error) {
	parts := strings.Split(s, "::")
	if len(parts) != 3 || parts[1] == "" || parts[2] == "" {
		return FunctionID{}, fmt.Errorf("parse function id %q: want address::module::function", s)
	}

	addr, err := ParseAddress(parts[0])
	if err != nil {
		return FunctionID{}, fmt.Errorf("parse function id %q: %w", s, err)
	}

	return FunctionID{Module: ModuleID{Address: addr, Name: parts[1]}, Name: parts[2]}, nil
}

// EntryFunction is a payload without type arguments; every argument is
// already BCS encoded.
type EntryFunction struct {
	Function FunctionID
	Args     [][]byte
}

func (e EntryFunction) MarshalBCS(s *bcs.Serializer) {
	s.Uleb128(payloadEntryFunctionVariant)
	s.Struct(e.Function.Module)
	s.Str(e.Function.Name)
	// type arguments
	s.Uleb128(0)
	s.Uleb128(uint32(len(e.Args)))
	for _, arg := range e.Args {
		s.Bytes(arg)
	}
}

type RawTransaction struct {
	Sender                  AccountAddress
	SequenceNumber          uint64
	Payload                 EntryFunction
	MaxGasAmount            uint64
	GasUnitPrice            uint64
	ExpirationTimestampSecs uint64
	ChainID                 uint8
}

func (t RawTransaction) MarshalBCS(s *bcs.Serializer) {
	s.Struct(t.Sender)
	s.U64(t.SequenceNumber)
	s.Struct(t.Payload)
	s.U64(t.MaxGasAmount)
	s.U64(t.GasUnitPrice)
	s.U64(t.ExpirationTimestampSecs)
	s.U8(t.ChainID)
}

// SigningMessage is sha3-256 of the domain salt followed by the raw
// transaction bytes.
func (t RawTransaction) SigningMessage() []byte {
	prefix := sha3.Sum256([]byte(rawTransactionSalt))
	raw := bcs.Serialize(t)

	msg := make([]byte, 0, len(prefix)+len(raw))
	msg = append(msg, prefix[:]...)
	return append(msg, raw...)
}

// Sign produces the submission ready transaction for the account.
func (t RawTransaction) Sign(account *Account) SignedTransaction {
	return SignedTransaction{
		Raw:       t,
		PublicKey: account.PublicKey(),
		Signature: account.Sign(t.SigningMessage()),
	}
}

type SignedTransaction struct {
	Raw       RawTransaction
	PublicKey []byte
	Signature []byte
}

func (t SignedTransaction) MarshalBCS(s *bcs.Serializer) {
	s.Struct(t.Raw)
	s.Uleb128(authenticatorEd25519Variant)
	s.Bytes(t.PublicKey)
	s.Bytes(t.Signature)
}
