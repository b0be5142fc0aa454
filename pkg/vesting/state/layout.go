package state

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"
)

// Tag identifies the logical type of a program owned account.
type Tag uint64

const (
	TagUninitialized Tag = iota
	TagVestingContract
	TagExampleStateBorsh
	// TagVestingSchedule marks the vesting schedule records discovered by owner.
	TagVestingSchedule
)

func (t Tag) String() string {
	switch t {
	case TagUninitialized:
		return "Uninitialized"
	case TagVestingContract:
		return "VestingContract"
	case TagExampleStateBorsh:
		return "ExampleStateBorsh"
	case TagVestingSchedule:
		return "VestingSchedule"
	default:
		return fmt.Sprintf("Tag(%d)", uint64(t))
	}
}

// Layout is the offset table shared by writers and queriers of program accounts.
// Both sides must agree on it; a mismatch yields silently empty scans.
type Layout struct {
	Version     uint8
	TagOffset   uint64
	TagSize     uint64
	OwnerOffset uint64
}

var (
	// LayoutV1: 1 byte tag at 0, owner at [1, 33).
	LayoutV1 = Layout{Version: 1, TagOffset: 0, TagSize: 1, OwnerOffset: 1}
	// ProgramLayout matches the deployed program: u64 LE tag at 0, borsh state from 8,
	// whose first field is the owner.
	ProgramLayout = Layout{Version: 2, TagOffset: 0, TagSize: 8, OwnerOffset: 8}
)

// Validate rejects unsupported tag widths and overlapping regions.
func (l Layout) Validate() error {
	switch l.TagSize {
	case 1, 2, 4, 8:
	default:
		return errors.Errorf("layout v%d: unsupported tag size %d", l.Version, l.TagSize)
	}
	tagEnd := l.TagOffset + l.TagSize
	ownerEnd := l.OwnerOffset + solana.PublicKeyLength
	if l.TagOffset < ownerEnd && l.OwnerOffset < tagEnd {
		return errors.Errorf("layout v%d: tag [%d,%d) overlaps owner [%d,%d)", l.Version, l.TagOffset, tagEnd, l.OwnerOffset, ownerEnd)
	}
	return nil
}

// MinSize is the smallest account data length that holds both tag and owner.
func (l Layout) MinSize() uint64 {
	tagEnd := l.TagOffset + l.TagSize
	ownerEnd := l.OwnerOffset + solana.PublicKeyLength
	if tagEnd > ownerEnd {
		return tagEnd
	}
	return ownerEnd
}

// EncodeTag returns the little endian tag bytes as stored on chain.
func (l Layout) EncodeTag(t Tag) ([]byte, error) {
	var out bytes.Buffer
	if err := bin.NewBinEncoder(&out).Encode(uint64(t)); err != nil {
		return nil, errors.Wrapf(err, "layout v%d: failed to encode tag", l.Version)
	}
	buf := out.Bytes()
	for _, b := range buf[l.TagSize:] {
		if b != 0 {
			return nil, errors.Errorf("layout v%d: tag %d does not fit in %d bytes", l.Version, t, l.TagSize)
		}
	}
	return buf[:l.TagSize], nil
}

func (l Layout) Tag(data []byte) (Tag, error) {
	if uint64(len(data)) < l.TagOffset+l.TagSize {
		return 0, errors.Errorf("layout v%d: account data too short for tag: %d bytes", l.Version, len(data))
	}
	buf := make([]byte, 8)
	copy(buf, data[l.TagOffset:l.TagOffset+l.TagSize])
	var v uint64
	if err := bin.NewBinDecoder(buf).Decode(&v); err != nil {
		return 0, errors.Wrapf(err, "layout v%d: failed to decode tag", l.Version)
	}
	return Tag(v), nil
}

func (l Layout) Owner(data []byte) (solana.PublicKey, error) {
	if uint64(len(data)) < l.OwnerOffset+solana.PublicKeyLength {
		return solana.PublicKey{}, errors.Errorf("layout v%d: account data too short for owner: %d bytes", l.Version, len(data))
	}
	return solana.PublicKeyFromBytes(data[l.OwnerOffset : l.OwnerOffset+solana.PublicKeyLength]), nil
}

// Put writes the tag and owner header into data.
func (l Layout) Put(data []byte, t Tag, owner solana.PublicKey) error {
	if uint64(len(data)) < l.MinSize() {
		return errors.Errorf("layout v%d: need %d bytes, have %d", l.Version, l.MinSize(), len(data))
	}
	tag, err := l.EncodeTag(t)
	if err != nil {
		return err
	}
	copy(data[l.TagOffset:], tag)
	copy(data[l.OwnerOffset:], owner[:])
	return nil
}
