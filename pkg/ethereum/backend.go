package ethereum

import (
	"context"
	"math/big"

	geth "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// TxBackend is an account that can read chain state and submit transactions.
// The live Wallet and the simulation fork both implement it, so the trade
// executor runs unchanged against either.
type TxBackend interface {
	geth.ContractCaller
	Address() common.Address
	ChainID() *big.Int
	BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error)
	NativeBalance(ctx context.Context, addr common.Address) (*big.Int, error)
	LatestHeader(ctx context.Context) (*types.Header, error)
	PendingNonce(ctx context.Context) (uint64, error)
	SignTx(tx *types.Transaction) (*types.Transaction, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	WaitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}
