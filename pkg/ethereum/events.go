package ethereum

import (
	"errors"
	"fmt"
	"math/big"

	geth "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/apmfree78/snipper-sub000/pkg/token"
)

const slot = 32

var (
	// PairCreatedTopic is emitted by Uniswap V2 style factories.
	PairCreatedTopic = crypto.Keccak256Hash([]byte("PairCreated(address,address,address,uint256)"))
	// PoolCreatedTopic is emitted by Uniswap V3 style factories.
	PoolCreatedTopic = crypto.Keccak256Hash([]byte("PoolCreated(address,address,uint24,int24,address)"))
)

var (
	// ErrMalformedData is returned when a log's data is shorter than its fixed-width encoding.
	ErrMalformedData = errors.New("malformed event data")
	// ErrUnexpectedTopics is returned when the topics do not match the event signature.
	ErrUnexpectedTopics = errors.New("unexpected event topics")
)

// PairCreatedEvent is a decoded V2 PairCreated log.
type PairCreatedEvent struct {
	Token0      common.Address
	Token1      common.Address
	Pair        common.Address
	PairIndex   *big.Int
	BlockNumber uint64
	TxHash      common.Hash
}

// PoolCreatedEvent is a decoded V3 PoolCreated log.
type PoolCreatedEvent struct {
	Token0      common.Address
	Token1      common.Address
	Fee         uint32
	TickSpacing int32
	Pool        common.Address
	BlockNumber uint64
	TxHash      common.Hash
}

// PoolEvent is the venue-neutral view of either creation event.
type PoolEvent struct {
	Venue       token.Venue
	Token0      common.Address
	Token1      common.Address
	Pool        common.Address
	Fee         uint32
	TickSpacing int32
	BlockNumber uint64
	TxHash      common.Hash
}

// DecodePairCreated decodes a V2 PairCreated log.
// Topics: signature, token0, token1. Data: pair address, pair index.
func DecodePairCreated(log types.Log) (PairCreatedEvent, error) {
	if len(log.Topics) != 3 || log.Topics[0] != PairCreatedTopic {
		return PairCreatedEvent{}, fmt.Errorf("%w: PairCreated needs 3 topics, got %d", ErrUnexpectedTopics, len(log.Topics))
	}
	if len(log.Data) < 2*slot {
		return PairCreatedEvent{}, fmt.Errorf("%w: PairCreated data is %d bytes, want %d", ErrMalformedData, len(log.Data), 2*slot)
	}
	return PairCreatedEvent{
		Token0:      common.BytesToAddress(log.Topics[1].Bytes()),
		Token1:      common.BytesToAddress(log.Topics[2].Bytes()),
		Pair:        common.BytesToAddress(log.Data[12:slot]),
		PairIndex:   new(big.Int).SetBytes(log.Data[slot : 2*slot]),
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash,
	}, nil
}

// DecodePoolCreated decodes a V3 PoolCreated log.
// Topics: signature, token0, token1, fee. Data: tick spacing, pool address.
func DecodePoolCreated(log types.Log) (PoolCreatedEvent, error) {
	if len(log.Topics) != 4 || log.Topics[0] != PoolCreatedTopic {
		return PoolCreatedEvent{}, fmt.Errorf("%w: PoolCreated needs 4 topics, got %d", ErrUnexpectedTopics, len(log.Topics))
	}
	if len(log.Data) < 2*slot {
		return PoolCreatedEvent{}, fmt.Errorf("%w: PoolCreated data is %d bytes, want %d", ErrMalformedData, len(log.Data), 2*slot)
	}
	feeTopic := log.Topics[3].Bytes()
	return PoolCreatedEvent{
		Token0:      common.BytesToAddress(log.Topics[1].Bytes()),
		Token1:      common.BytesToAddress(log.Topics[2].Bytes()),
		Fee:         uint32(feeTopic[29])<<16 | uint32(feeTopic[30])<<8 | uint32(feeTopic[31]),
		TickSpacing: int24(log.Data[slot-3 : slot]),
		Pool:        common.BytesToAddress(log.Data[slot+12 : 2*slot]),
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash,
	}, nil
}

// CreationQuery filters the pool creation events of venue emitted by factory.
func CreationQuery(venue token.Venue, factory common.Address) geth.FilterQuery {
	topic := PairCreatedTopic
	if venue == token.VenueUniswapV3 {
		topic = PoolCreatedTopic
	}
	return geth.FilterQuery{
		Addresses: []common.Address{factory},
		Topics:    [][]common.Hash{{topic}},
	}
}

// int24 sign-extends a big-endian 24-bit value.
func int24(b []byte) int32 {
	v := int32(b[0])<<16 | int32(b[1])<<8 | int32(b[2])
	if v&0x800000 != 0 {
		v -= 1 << 24
	}
	return v
}

// Decode dispatches on the signature topic.
func Decode(log types.Log) (PoolEvent, error) {
	if len(log.Topics) == 0 {
		return PoolEvent{}, fmt.Errorf("%w: log has no topics", ErrUnexpectedTopics)
	}
	switch log.Topics[0] {
	case PairCreatedTopic:
		ev, err := DecodePairCreated(log)
		if err != nil {
			return PoolEvent{}, err
		}
		return PoolEvent{
			Venue:       token.VenueUniswapV2,
			Token0:      ev.Token0,
			Token1:      ev.Token1,
			Pool:        ev.Pair,
			BlockNumber: ev.BlockNumber,
			TxHash:      ev.TxHash,
		}, nil
	case PoolCreatedTopic:
		ev, err := DecodePoolCreated(log)
		if err != nil {
			return PoolEvent{}, err
		}
		return PoolEvent{
			Venue:       token.VenueUniswapV3,
			Token0:      ev.Token0,
			Token1:      ev.Token1,
			Pool:        ev.Pool,
			Fee:         ev.Fee,
			TickSpacing: ev.TickSpacing,
			BlockNumber: ev.BlockNumber,
			TxHash:      ev.TxHash,
		}, nil
	default:
		return PoolEvent{}, fmt.Errorf("%w: unknown signature %s", ErrUnexpectedTopics, log.Topics[0].Hex())
	}
}

// NewToken returns the side of the pool that is not the base asset and
// whether it is token0. ok is false unless exactly one side is base.
func (e PoolEvent) NewToken(base common.Address) (addr common.Address, isToken0 bool, ok bool) {
	switch {
	case e.Token0 == base && e.Token1 != base:
		return e.Token1, false, true
	case e.Token1 == base && e.Token0 != base:
		return e.Token0, true, true
	default:
		return common.Address{}, false, false
	}
}
