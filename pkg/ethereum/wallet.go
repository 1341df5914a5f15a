package ethereum

import (
	"context"
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Wallet is the live TxBackend: the gateway plus a signing key.
type Wallet struct {
	*Client
	key     *ecdsa.PrivateKey
	address common.Address
	signer  types.Signer
}

var _ TxBackend = (*Wallet)(nil)

// NewWallet binds key to the gateway's chain.
func NewWallet(client *Client, key *ecdsa.PrivateKey) *Wallet {
	return &Wallet{
		Client:  client,
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		signer:  types.LatestSignerForChainID(client.ChainID()),
	}
}

// Address returns the trading account.
func (w *Wallet) Address() common.Address {
	return w.address
}

// PendingNonce returns the next nonce of the trading account.
func (w *Wallet) PendingNonce(ctx context.Context) (uint64, error) {
	return w.TransactionCount(ctx, w.address)
}

// SignTx signs tx for the wallet's chain.
func (w *Wallet) SignTx(tx *types.Transaction) (*types.Transaction, error) {
	signed, err := types.SignTx(tx, w.signer, w.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	return signed, nil
}
