package market

import (
	"context"
	"encoding/hex"
	"math/big"
	"testing"
	"time"

	geth "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apmfree78/snipper-sub000/pkg/ethereum/contracts"
	"github.com/apmfree78/snipper-sub000/pkg/token"
)

var (
	wethAddr   = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	routerAddr = common.HexToAddress("0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D")
	quoterAddr = common.HexToAddress("0x61fFE014bA17989E743c5F6cB21bF9697530B21e")
	tokenAddr  = common.HexToAddress("0x1111111111111111111111111111111111111111")
	poolAddr   = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

type selectorCaller struct {
	responses map[string][]byte
	calls     []geth.CallMsg
}

func (c *selectorCaller) CallContract(_ context.Context, msg geth.CallMsg, _ *big.Int) ([]byte, error) {
	c.calls = append(c.calls, msg)
	return c.responses[hex.EncodeToString(msg.Data[:4])], nil
}

func methodID(m []byte) string {
	return hex.EncodeToString(m)
}

func testToken(venue token.Venue, isToken0 bool) *token.Token {
	tok := token.New(tokenAddr, poolAddr, venue, time.Unix(0, 0))
	tok.IsToken0 = isToken0
	tok.Fee = 3000
	return tok
}

func reservesCaller(t *testing.T, r0, r1 *big.Int) *selectorCaller {
	t.Helper()
	out, err := contracts.PairV2ABI.Methods["getReserves"].Outputs.Pack(r0, r1, uint32(1))
	require.NoError(t, err)
	return &selectorCaller{responses: map[string][]byte{
		methodID(contracts.PairV2ABI.Methods["getReserves"].ID): out,
	}}
}

func TestUniswapV2_OrientsReservesByTokenSide(t *testing.T) {
	// token is token0: reserve0 is the token, reserve1 is WETH
	caller := reservesCaller(t, big.NewInt(1_000_000), big.NewInt(5_000))
	v := NewUniswapV2(caller, routerAddr, wethAddr)
	tok := testToken(token.VenueUniswapV2, true)

	liq, err := v.Liquidity(context.Background(), tok)
	require.NoError(t, err)
	assert.Equal(t, int64(5_000), liq.Int64())

	out, err := v.QuoteBuy(context.Background(), tok, big.NewInt(100))
	require.NoError(t, err)
	want, _ := QuoteAmountOut(big.NewInt(100), big.NewInt(5_000), big.NewInt(1_000_000))
	assert.Equal(t, want, out)

	ethOut, err := v.QuoteSell(context.Background(), tok, big.NewInt(10_000))
	require.NoError(t, err)
	want, _ = QuoteAmountOut(big.NewInt(10_000), big.NewInt(1_000_000), big.NewInt(5_000))
	assert.Equal(t, want, ethOut)
	assert.Equal(t, poolAddr, *caller.calls[0].To)

	tok.IsToken0 = false
	liq, err = v.Liquidity(context.Background(), tok)
	require.NoError(t, err)
	assert.Equal(t, int64(1_000_000), liq.Int64())
}

func TestUniswapV2_BuildCalls(t *testing.T) {
	v := NewUniswapV2(&selectorCaller{}, routerAddr, wethAddr)
	tok := testToken(token.VenueUniswapV2, true)
	recipient := common.HexToAddress("0x09")

	buy, err := v.BuildBuy(tok, big.NewInt(7), big.NewInt(1), recipient, big.NewInt(100))
	require.NoError(t, err)
	assert.Equal(t, routerAddr, buy.To)
	assert.Equal(t, int64(7), buy.Value.Int64())

	method, err := contracts.RouterV2ABI.MethodById(buy.Data[:4])
	require.NoError(t, err)
	args, err := method.Inputs.Unpack(buy.Data[4:])
	require.NoError(t, err)
	assert.Equal(t, []common.Address{wethAddr, tokenAddr}, args[1])
	assert.Equal(t, recipient, args[2])

	sell, err := v.BuildSell(tok, big.NewInt(50), big.NewInt(2), recipient, big.NewInt(100))
	require.NoError(t, err)
	assert.Equal(t, int64(0), sell.Value.Int64())
	method, err = contracts.RouterV2ABI.MethodById(sell.Data[:4])
	require.NoError(t, err)
	args, err = method.Inputs.Unpack(sell.Data[4:])
	require.NoError(t, err)
	assert.Equal(t, int64(50), args[0].(*big.Int).Int64())
	assert.Equal(t, []common.Address{tokenAddr, wethAddr}, args[2])
}

func TestUniswapV3_QuoteAndLiquidity(t *testing.T) {
	quote, err := contracts.QuoterV2ABI.Methods["quoteExactInputSingle"].Outputs.Pack(big.NewInt(42), big.NewInt(1), uint32(0), big.NewInt(0))
	require.NoError(t, err)
	balance, err := contracts.ERC20ABI.Methods["balanceOf"].Outputs.Pack(big.NewInt(9_000))
	require.NoError(t, err)

	caller := &selectorCaller{responses: map[string][]byte{
		methodID(contracts.QuoterV2ABI.Methods["quoteExactInputSingle"].ID): quote,
		methodID(contracts.ERC20ABI.Methods["balanceOf"].ID):                balance,
	}}
	v := NewUniswapV3(caller, routerAddr, quoterAddr, wethAddr)
	tok := testToken(token.VenueUniswapV3, false)

	out, err := v.QuoteBuy(context.Background(), tok, big.NewInt(10))
	require.NoError(t, err)
	assert.Equal(t, int64(42), out.Int64())
	assert.Equal(t, quoterAddr, *caller.calls[0].To)

	_, err = v.QuoteSell(context.Background(), tok, big.NewInt(0))
	assert.ErrorIs(t, err, ErrInsufficientInput)

	liq, err := v.Liquidity(context.Background(), tok)
	require.NoError(t, err)
	assert.Equal(t, int64(9_000), liq.Int64())
	assert.Equal(t, wethAddr, *caller.calls[len(caller.calls)-1].To)
}

func TestUniswapV3_SellUnwraps(t *testing.T) {
	v := NewUniswapV3(&selectorCaller{}, routerAddr, quoterAddr, wethAddr)
	tok := testToken(token.VenueUniswapV3, false)
	recipient := common.HexToAddress("0x09")

	sell, err := v.BuildSell(tok, big.NewInt(50), big.NewInt(2), recipient, big.NewInt(100))
	require.NoError(t, err)

	method, err := contracts.SwapRouter02ABI.MethodById(sell.Data[:4])
	require.NoError(t, err)
	assert.Equal(t, "multicall", method.RawName)
	args, err := method.Inputs.Unpack(sell.Data[4:])
	require.NoError(t, err)
	calls := args[1].([][]byte)
	require.Len(t, calls, 2)

	unwrap, err := contracts.SwapRouter02ABI.MethodById(calls[1][:4])
	require.NoError(t, err)
	assert.Equal(t, "unwrapWETH9", unwrap.RawName)
}

func TestNewVenue(t *testing.T) {
	v, err := NewVenue(token.VenueUniswapV3, &selectorCaller{}, Addresses{})
	require.NoError(t, err)
	assert.Equal(t, token.VenueUniswapV3, v.Name())

	_, err = NewVenue("sushiswap", &selectorCaller{}, Addresses{})
	assert.Error(t, err)
}
