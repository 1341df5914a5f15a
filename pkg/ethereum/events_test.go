package ethereum

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/apmfree78/snipper-sub000/pkg/token"
)

var (
	weth   = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	newTok = common.HexToAddress("0x1111111111111111111111111111111111111111")
	pool   = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func word(b []byte) []byte {
	return common.LeftPadBytes(b, 32)
}

func pairLog(data []byte) types.Log {
	return types.Log{
		Topics: []common.Hash{
			PairCreatedTopic,
			common.BytesToHash(newTok.Bytes()),
			common.BytesToHash(weth.Bytes()),
		},
		Data:        data,
		BlockNumber: 42,
	}
}

func poolLog(fee uint32, tickSpacing []byte) types.Log {
	data := append(word(tickSpacing), word(pool.Bytes())...)
	return types.Log{
		Topics: []common.Hash{
			PoolCreatedTopic,
			common.BytesToHash(weth.Bytes()),
			common.BytesToHash(newTok.Bytes()),
			common.BigToHash(big.NewInt(int64(fee))),
		},
		Data: data,
	}
}

func TestTopicsMatchKnownSignatures(t *testing.T) {
	if PairCreatedTopic.Hex() != "0x0d3648bd0f6ba80134a33ba9275ac585d9d315f0ad8355cddefde31afa28d0e9" {
		t.Fatalf("unexpected PairCreated topic %s", PairCreatedTopic.Hex())
	}
	if PoolCreatedTopic.Hex() != "0x783cca1c0412dd0d695e784568c96da2e9c22ff989357a2e8b1d9b2b4e6b7118" {
		t.Fatalf("unexpected PoolCreated topic %s", PoolCreatedTopic.Hex())
	}
}

func TestDecodePairCreated(t *testing.T) {
	data := append(word(pool.Bytes()), word(big.NewInt(7).Bytes())...)
	ev, err := DecodePairCreated(pairLog(data))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Token0 != newTok || ev.Token1 != weth || ev.Pair != pool {
		t.Fatalf("unexpected addresses: %+v", ev)
	}
	if ev.PairIndex.Int64() != 7 || ev.BlockNumber != 42 {
		t.Fatalf("unexpected index/block: %+v", ev)
	}
}

func TestDecodePairCreated_ShortData(t *testing.T) {
	_, err := DecodePairCreated(pairLog(word(pool.Bytes())))
	if !errors.Is(err, ErrMalformedData) {
		t.Fatalf("expected ErrMalformedData, got %v", err)
	}
}

func TestDecodePairCreated_WrongTopics(t *testing.T) {
	l := pairLog(make([]byte, 64))
	l.Topics = l.Topics[:2]
	if _, err := DecodePairCreated(l); !errors.Is(err, ErrUnexpectedTopics) {
		t.Fatalf("expected ErrUnexpectedTopics, got %v", err)
	}
}

func TestDecodePoolCreated_PositiveTickSpacing(t *testing.T) {
	ev, err := DecodePoolCreated(poolLog(3000, []byte{0x00, 0x00, 0x3c}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Fee != 3000 || ev.TickSpacing != 60 || ev.Pool != pool {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if ev.Token0 != weth || ev.Token1 != newTok {
		t.Fatalf("unexpected tokens: %+v", ev)
	}
}

func TestDecodePoolCreated_NegativeTickSpacing(t *testing.T) {
	// 0xffffc4 is -60 as int24; only the low 24 bits are read
	ev, err := DecodePoolCreated(poolLog(500, []byte{0xff, 0xff, 0xc4}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.TickSpacing != -60 {
		t.Fatalf("expected -60, got %d", ev.TickSpacing)
	}

	ev, err = DecodePoolCreated(poolLog(500, []byte{0x80, 0x00, 0x00}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.TickSpacing != -(1 << 23) {
		t.Fatalf("expected min int24, got %d", ev.TickSpacing)
	}
}

func TestDecodePoolCreated_ShortData(t *testing.T) {
	l := poolLog(3000, []byte{0x3c})
	l.Data = l.Data[:63]
	if _, err := DecodePoolCreated(l); !errors.Is(err, ErrMalformedData) {
		t.Fatalf("expected ErrMalformedData, got %v", err)
	}
}

func TestDecode_Dispatch(t *testing.T) {
	data := append(word(pool.Bytes()), word(big.NewInt(1).Bytes())...)
	ev, err := Decode(pairLog(data))
	if err != nil || ev.Venue != token.VenueUniswapV2 || ev.Pool != pool {
		t.Fatalf("unexpected v2 dispatch: %+v %v", ev, err)
	}

	ev, err = Decode(poolLog(10000, []byte{0x00, 0x00, 0xc8}))
	if err != nil || ev.Venue != token.VenueUniswapV3 || ev.Fee != 10000 || ev.TickSpacing != 200 {
		t.Fatalf("unexpected v3 dispatch: %+v %v", ev, err)
	}

	if _, err := Decode(types.Log{Topics: []common.Hash{common.HexToHash("0x01")}}); !errors.Is(err, ErrUnexpectedTopics) {
		t.Fatalf("expected ErrUnexpectedTopics, got %v", err)
	}
	if _, err := Decode(types.Log{}); !errors.Is(err, ErrUnexpectedTopics) {
		t.Fatalf("expected ErrUnexpectedTopics, got %v", err)
	}
}

func TestPoolEvent_NewToken(t *testing.T) {
	ev := PoolEvent{Token0: newTok, Token1: weth}
	addr, isToken0, ok := ev.NewToken(weth)
	if !ok || addr != newTok || !isToken0 {
		t.Fatalf("unexpected result: %s %v %v", addr.Hex(), isToken0, ok)
	}

	ev = PoolEvent{Token0: weth, Token1: newTok}
	addr, isToken0, ok = ev.NewToken(weth)
	if !ok || addr != newTok || isToken0 {
		t.Fatalf("unexpected result: %s %v %v", addr.Hex(), isToken0, ok)
	}

	ev = PoolEvent{Token0: newTok, Token1: pool}
	if _, _, ok := ev.NewToken(weth); ok {
		t.Fatal("pool without base asset must be ignored")
	}
}

func TestCreationQuery(t *testing.T) {
	factory := common.HexToAddress("0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f")

	q := CreationQuery(token.VenueUniswapV2, factory)
	if len(q.Addresses) != 1 || q.Addresses[0] != factory {
		t.Fatalf("unexpected addresses: %v", q.Addresses)
	}
	if len(q.Topics) != 1 || q.Topics[0][0] != PairCreatedTopic {
		t.Fatalf("expected PairCreated topic, got %v", q.Topics)
	}

	q = CreationQuery(token.VenueUniswapV3, factory)
	if q.Topics[0][0] != PoolCreatedTopic {
		t.Fatalf("expected PoolCreated topic, got %v", q.Topics)
	}
}
