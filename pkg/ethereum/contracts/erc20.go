package contracts

import (
	"context"
	"fmt"
	"math/big"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

// Metadata is the descriptive part of an ERC-20.
type Metadata struct {
	Name     string
	Symbol   string
	Decimals uint8
}

// BalanceOf returns the token balance of owner.
func BalanceOf(ctx context.Context, caller ethereum.ContractCaller, token, owner common.Address) (*big.Int, error) {
	res, err := call(ctx, caller, ERC20ABI, token, "balanceOf", owner)
	if err != nil {
		return nil, err
	}
	return res[0].(*big.Int), nil
}

// TotalSupply returns the total supply of token or LP token.
func TotalSupply(ctx context.Context, caller ethereum.ContractCaller, token common.Address) (*big.Int, error) {
	res, err := call(ctx, caller, ERC20ABI, token, "totalSupply")
	if err != nil {
		return nil, err
	}
	return res[0].(*big.Int), nil
}

// Allowance returns how much spender may move on behalf of owner.
func Allowance(ctx context.Context, caller ethereum.ContractCaller, token, owner, spender common.Address) (*big.Int, error) {
	res, err := call(ctx, caller, ERC20ABI, token, "allowance", owner, spender)
	if err != nil {
		return nil, err
	}
	return res[0].(*big.Int), nil
}

// TokenMetadata reads name, symbol and decimals.
func TokenMetadata(ctx context.Context, caller ethereum.ContractCaller, token common.Address) (Metadata, error) {
	var md Metadata

	name, err := call(ctx, caller, ERC20ABI, token, "name")
	if err != nil {
		return md, err
	}
	symbol, err := call(ctx, caller, ERC20ABI, token, "symbol")
	if err != nil {
		return md, err
	}
	decimals, err := call(ctx, caller, ERC20ABI, token, "decimals")
	if err != nil {
		return md, err
	}

	var ok bool
	if md.Name, ok = name[0].(string); !ok {
		return md, fmt.Errorf("unexpected name type %T", name[0])
	}
	if md.Symbol, ok = symbol[0].(string); !ok {
		return md, fmt.Errorf("unexpected symbol type %T", symbol[0])
	}
	if md.Decimals, ok = decimals[0].(uint8); !ok {
		return md, fmt.Errorf("unexpected decimals type %T", decimals[0])
	}
	return md, nil
}

// PackApprove encodes approve(spender, amount).
func PackApprove(spender common.Address, amount *big.Int) ([]byte, error) {
	return ERC20ABI.Pack("approve", spender, amount)
}
