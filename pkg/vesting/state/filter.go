package state

import (
	"bytes"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// Memcmp matches when account data at Offset starts with Bytes.
type Memcmp struct {
	Offset uint64
	Bytes  []byte
}

// Matches reports whether data holds Bytes at Offset. Short data never matches.
func (m Memcmp) Matches(data []byte) bool {
	end := m.Offset + uint64(len(m.Bytes))
	return uint64(len(data)) >= end && bytes.Equal(data[m.Offset:end], m.Bytes)
}

// AccountFilter is a set of memcmp predicates ANDed together.
// It narrows a scan server side; a match says nothing about the account's type.
type AccountFilter []Memcmp

// TagAndOwner builds the two predicate filter for layout: tag at TagOffset and owner at OwnerOffset.
func TagAndOwner(layout Layout, tag Tag, owner solana.PublicKey) (AccountFilter, error) {
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	tagBytes, err := layout.EncodeTag(tag)
	if err != nil {
		return nil, err
	}
	return AccountFilter{
		{Offset: layout.TagOffset, Bytes: tagBytes},
		{Offset: layout.OwnerOffset, Bytes: owner.Bytes()},
	}, nil
}

func (f AccountFilter) ToRPC() []rpc.RPCFilter {
	out := make([]rpc.RPCFilter, 0, len(f))
	for _, m := range f {
		out = append(out, rpc.RPCFilter{
			Memcmp: &rpc.RPCFilterMemcmp{
				Offset: m.Offset,
				Bytes:  solana.Base58(m.Bytes),
			},
		})
	}
	return out
}

// Matches evaluates the filter locally, the way a ledger node does for getProgramAccounts.
func (f AccountFilter) Matches(data []byte) bool {
	for _, m := range f {
		if !m.Matches(data) {
			return false
		}
	}
	return true
}
