package contracts

import (
	"context"
	"math/big"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

// SwapRouter02 treats this recipient as "keep the output inside the router".
var RouterAddressThis = common.HexToAddress("0x0000000000000000000000000000000000000002")

// ExactInputSingleParams mirrors ISwapRouter02.ExactInputSingleParams.
type ExactInputSingleParams struct {
	TokenIn           common.Address
	TokenOut          common.Address
	Fee               *big.Int
	Recipient         common.Address
	AmountIn          *big.Int
	AmountOutMinimum  *big.Int
	SqrtPriceLimitX96 *big.Int
}

// QuoteExactInputSingleParams mirrors IQuoterV2.QuoteExactInputSingleParams.
type QuoteExactInputSingleParams struct {
	TokenIn           common.Address
	TokenOut          common.Address
	AmountIn          *big.Int
	Fee               *big.Int
	SqrtPriceLimitX96 *big.Int
}

// GetReserves returns reserve0 and reserve1 of a V2 pair.
func GetReserves(ctx context.Context, caller ethereum.ContractCaller, pair common.Address) (*big.Int, *big.Int, error) {
	res, err := call(ctx, caller, PairV2ABI, pair, "getReserves")
	if err != nil {
		return nil, nil, err
	}
	return res[0].(*big.Int), res[1].(*big.Int), nil
}

// Token0 returns the lower-sorted token of a pair or pool.
func Token0(ctx context.Context, caller ethereum.ContractCaller, pair common.Address) (common.Address, error) {
	res, err := call(ctx, caller, PairV2ABI, pair, "token0")
	if err != nil {
		return common.Address{}, err
	}
	return res[0].(common.Address), nil
}

// GetAmountsOut asks a V2 router for the chained quote over path.
func GetAmountsOut(ctx context.Context, caller ethereum.ContractCaller, router common.Address, amountIn *big.Int, path []common.Address) ([]*big.Int, error) {
	res, err := call(ctx, caller, RouterV2ABI, router, "getAmountsOut", amountIn, path)
	if err != nil {
		return nil, err
	}
	return res[0].([]*big.Int), nil
}

// QuoteExactInputSingle simulates a single-pool V3 swap through QuoterV2.
func QuoteExactInputSingle(ctx context.Context, caller ethereum.ContractCaller, quoter common.Address, params QuoteExactInputSingleParams) (*big.Int, error) {
	res, err := call(ctx, caller, QuoterV2ABI, quoter, "quoteExactInputSingle", params)
	if err != nil {
		return nil, err
	}
	return res[0].(*big.Int), nil
}

// PackSwapExactETHForTokens encodes a fee-on-transfer tolerant V2 buy.
func PackSwapExactETHForTokens(amountOutMin *big.Int, path []common.Address, to common.Address, deadline *big.Int) ([]byte, error) {
	return RouterV2ABI.Pack("swapExactETHForTokensSupportingFeeOnTransferTokens", amountOutMin, path, to, deadline)
}

// PackSwapExactTokensForETH encodes a fee-on-transfer tolerant V2 sell.
func PackSwapExactTokensForETH(amountIn, amountOutMin *big.Int, path []common.Address, to common.Address, deadline *big.Int) ([]byte, error) {
	return RouterV2ABI.Pack("swapExactTokensForETHSupportingFeeOnTransferTokens", amountIn, amountOutMin, path, to, deadline)
}

// PackExactInputSingle encodes a V3 single-pool swap.
func PackExactInputSingle(params ExactInputSingleParams) ([]byte, error) {
	return SwapRouter02ABI.Pack("exactInputSingle", params)
}

// PackUnwrapWETH9 encodes unwrapping the router's WETH balance to recipient.
func PackUnwrapWETH9(amountMinimum *big.Int, recipient common.Address) ([]byte, error) {
	return SwapRouter02ABI.Pack("unwrapWETH9", amountMinimum, recipient)
}

// PackMulticall encodes a deadline-guarded SwapRouter02 multicall.
func PackMulticall(deadline *big.Int, calls [][]byte) ([]byte, error) {
	return SwapRouter02ABI.Pack("multicall", deadline, calls)
}
