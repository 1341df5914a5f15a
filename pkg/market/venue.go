package market

import (
	"context"
	"fmt"
	"math/big"

	geth "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/apmfree78/snipper-sub000/pkg/ethereum/contracts"
	"github.com/apmfree78/snipper-sub000/pkg/token"
)

// Call is an unsigned contract invocation.
type Call struct {
	To    common.Address
	Data  []byte
	Value *big.Int
}

// Venue prices and builds swaps between the base asset and a token.
type Venue interface {
	Name() token.Venue
	// Spender is the contract that must be approved before selling.
	Spender() common.Address
	QuoteBuy(ctx context.Context, tok *token.Token, ethIn *big.Int) (*big.Int, error)
	QuoteSell(ctx context.Context, tok *token.Token, amountIn *big.Int) (*big.Int, error)
	BuildBuy(tok *token.Token, ethIn, minOut *big.Int, recipient common.Address, deadline *big.Int) (Call, error)
	BuildSell(tok *token.Token, amountIn, minOut *big.Int, recipient common.Address, deadline *big.Int) (Call, error)
	// Liquidity returns the base-asset amount held by the token's pool.
	Liquidity(ctx context.Context, tok *token.Token) (*big.Int, error)
}

// Addresses are the venue contracts of one chain.
type Addresses struct {
	WETH     common.Address
	V2Router common.Address
	V3Router common.Address
	V3Quoter common.Address
}

// NewVenue returns the implementation named by venue.
func NewVenue(venue token.Venue, caller geth.ContractCaller, addrs Addresses) (Venue, error) {
	switch venue {
	case token.VenueUniswapV2:
		return NewUniswapV2(caller, addrs.V2Router, addrs.WETH), nil
	case token.VenueUniswapV3:
		return NewUniswapV3(caller, addrs.V3Router, addrs.V3Quoter, addrs.WETH), nil
	default:
		return nil, fmt.Errorf("unsupported venue %q", venue)
	}
}

// UniswapV2 trades against constant-product pairs through the V2 router.
type UniswapV2 struct {
	caller geth.ContractCaller
	router common.Address
	weth   common.Address
}

// NewUniswapV2 creates a V2 venue
func NewUniswapV2(caller geth.ContractCaller, router, weth common.Address) *UniswapV2 {
	return &UniswapV2{caller: caller, router: router, weth: weth}
}

func (v *UniswapV2) Name() token.Venue       { return token.VenueUniswapV2 }
func (v *UniswapV2) Spender() common.Address { return v.router }

// reserves returns (base, token) reserves of the pair.
func (v *UniswapV2) reserves(ctx context.Context, tok *token.Token) (*big.Int, *big.Int, error) {
	r0, r1, err := contracts.GetReserves(ctx, v.caller, tok.Pool())
	if err != nil {
		return nil, nil, err
	}
	if tok.IsToken0 {
		return r1, r0, nil
	}
	return r0, r1, nil
}

func (v *UniswapV2) QuoteBuy(ctx context.Context, tok *token.Token, ethIn *big.Int) (*big.Int, error) {
	base, tokens, err := v.reserves(ctx, tok)
	if err != nil {
		return nil, err
	}
	return QuoteAmountOut(ethIn, base, tokens)
}

func (v *UniswapV2) QuoteSell(ctx context.Context, tok *token.Token, amountIn *big.Int) (*big.Int, error) {
	base, tokens, err := v.reserves(ctx, tok)
	if err != nil {
		return nil, err
	}
	return QuoteAmountOut(amountIn, tokens, base)
}

func (v *UniswapV2) BuildBuy(tok *token.Token, ethIn, minOut *big.Int, recipient common.Address, deadline *big.Int) (Call, error) {
	data, err := contracts.PackSwapExactETHForTokens(minOut, []common.Address{v.weth, tok.CommonAddress()}, recipient, deadline)
	if err != nil {
		return Call{}, err
	}
	return Call{To: v.router, Data: data, Value: new(big.Int).Set(ethIn)}, nil
}

func (v *UniswapV2) BuildSell(tok *token.Token, amountIn, minOut *big.Int, recipient common.Address, deadline *big.Int) (Call, error) {
	data, err := contracts.PackSwapExactTokensForETH(amountIn, minOut, []common.Address{tok.CommonAddress(), v.weth}, recipient, deadline)
	if err != nil {
		return Call{}, err
	}
	return Call{To: v.router, Data: data, Value: new(big.Int)}, nil
}

func (v *UniswapV2) Liquidity(ctx context.Context, tok *token.Token) (*big.Int, error) {
	base, _, err := v.reserves(ctx, tok)
	return base, err
}

// UniswapV3 trades single concentrated-liquidity pools through SwapRouter02.
type UniswapV3 struct {
	caller geth.ContractCaller
	router common.Address
	quoter common.Address
	weth   common.Address
}

// NewUniswapV3 creates a V3 venue
func NewUniswapV3(caller geth.ContractCaller, router, quoter, weth common.Address) *UniswapV3 {
	return &UniswapV3{caller: caller, router: router, quoter: quoter, weth: weth}
}

func (v *UniswapV3) Name() token.Venue       { return token.VenueUniswapV3 }
func (v *UniswapV3) Spender() common.Address { return v.router }

func (v *UniswapV3) quote(ctx context.Context, in, out common.Address, fee uint32, amountIn *big.Int) (*big.Int, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, ErrInsufficientInput
	}
	return contracts.QuoteExactInputSingle(ctx, v.caller, v.quoter, contracts.QuoteExactInputSingleParams{
		TokenIn:           in,
		TokenOut:          out,
		AmountIn:          amountIn,
		Fee:               new(big.Int).SetUint64(uint64(fee)),
		SqrtPriceLimitX96: new(big.Int),
	})
}

func (v *UniswapV3) QuoteBuy(ctx context.Context, tok *token.Token, ethIn *big.Int) (*big.Int, error) {
	return v.quote(ctx, v.weth, tok.CommonAddress(), tok.Fee, ethIn)
}

func (v *UniswapV3) QuoteSell(ctx context.Context, tok *token.Token, amountIn *big.Int) (*big.Int, error) {
	return v.quote(ctx, tok.CommonAddress(), v.weth, tok.Fee, amountIn)
}

// BuildBuy pays with ETH; the router wraps msg.value itself.
func (v *UniswapV3) BuildBuy(tok *token.Token, ethIn, minOut *big.Int, recipient common.Address, deadline *big.Int) (Call, error) {
	swap, err := contracts.PackExactInputSingle(contracts.ExactInputSingleParams{
		TokenIn:           v.weth,
		TokenOut:          tok.CommonAddress(),
		Fee:               new(big.Int).SetUint64(uint64(tok.Fee)),
		Recipient:         recipient,
		AmountIn:          ethIn,
		AmountOutMinimum:  minOut,
		SqrtPriceLimitX96: new(big.Int),
	})
	if err != nil {
		return Call{}, err
	}
	data, err := contracts.PackMulticall(deadline, [][]byte{swap})
	if err != nil {
		return Call{}, err
	}
	return Call{To: v.router, Data: data, Value: new(big.Int).Set(ethIn)}, nil
}

// BuildSell swaps into WETH held by the router and unwraps it to recipient.
func (v *UniswapV3) BuildSell(tok *token.Token, amountIn, minOut *big.Int, recipient common.Address, deadline *big.Int) (Call, error) {
	swap, err := contracts.PackExactInputSingle(contracts.ExactInputSingleParams{
		TokenIn:           tok.CommonAddress(),
		TokenOut:          v.weth,
		Fee:               new(big.Int).SetUint64(uint64(tok.Fee)),
		Recipient:         contracts.RouterAddressThis,
		AmountIn:          amountIn,
		AmountOutMinimum:  minOut,
		SqrtPriceLimitX96: new(big.Int),
	})
	if err != nil {
		return Call{}, err
	}
	unwrap, err := contracts.PackUnwrapWETH9(minOut, recipient)
	if err != nil {
		return Call{}, err
	}
	data, err := contracts.PackMulticall(deadline, [][]byte{swap, unwrap})
	if err != nil {
		return Call{}, err
	}
	return Call{To: v.router, Data: data, Value: new(big.Int)}, nil
}

// Liquidity is the pool's WETH balance.
func (v *UniswapV3) Liquidity(ctx context.Context, tok *token.Token) (*big.Int, error) {
	return contracts.BalanceOf(ctx, v.caller, v.weth, tok.Pool())
}
