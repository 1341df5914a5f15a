package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	geth "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/apmfree78/snipper-sub000/internal/metrics"
	"github.com/apmfree78/snipper-sub000/pkg/config"
	"github.com/apmfree78/snipper-sub000/pkg/ethereum/contracts"
)

// ErrReceiptTimeout is returned when a transaction is not mined within the receipt timeout.
var ErrReceiptTimeout = errors.New("timed out waiting for receipt")

// RPC is the subset of ethclient.Client the gateway depends on.
type RPC interface {
	geth.ContractCaller
	geth.LogFilterer
	ChainID(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (geth.Subscription, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	Close()
}

// Client is the chain gateway: reads, log and header streams, and raw transaction submission.
type Client struct {
	config  *config.EthereumConfig
	rpc     RPC
	ws      RPC
	chainID *big.Int
	logger  *zap.Logger
}

// NewClient dials the HTTP endpoint and, when configured, the websocket endpoint.
func NewClient(ctx context.Context, cfg *config.EthereumConfig, logger *zap.Logger) (*Client, error) {
	rpcClient, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Ethereum RPC: %w", err)
	}

	var ws RPC
	if cfg.WSURL != "" {
		wsClient, err := ethclient.DialContext(ctx, cfg.WSURL)
		if err != nil {
			logger.Warn("Failed to connect to Ethereum WebSocket, falling back to polling", zap.Error(err))
		} else {
			ws = wsClient
		}
	}

	chainID, err := rpcClient.ChainID(ctx)
	if err != nil {
		rpcClient.Close()
		return nil, fmt.Errorf("failed to fetch chain id: %w", err)
	}
	if cfg.ChainID != 0 && chainID.Int64() != cfg.ChainID {
		logger.Warn("RPC chain id differs from configured chain",
			zap.Int64("configured", cfg.ChainID),
			zap.String("rpc", chainID.String()))
	}

	logger.Info("Connected to Ethereum",
		zap.String("chain", cfg.Chain),
		zap.String("chain_id", chainID.String()),
		zap.Bool("websocket", ws != nil))

	return NewClientWithRPC(cfg, rpcClient, ws, chainID, logger), nil
}

// NewClientWithRPC builds a gateway over already connected clients. ws may be nil.
func NewClientWithRPC(cfg *config.EthereumConfig, rpc RPC, ws RPC, chainID *big.Int, logger *zap.Logger) *Client {
	return &Client{
		config:  cfg,
		rpc:     rpc,
		ws:      ws,
		chainID: new(big.Int).Set(chainID),
		logger:  logger,
	}
}

// Close closes the Ethereum clients
func (c *Client) Close() {
	if c.rpc != nil {
		c.rpc.Close()
	}
	if c.ws != nil {
		c.ws.Close()
	}
}

// ChainID returns the connected chain id.
func (c *Client) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

// CallContract executes a read-only call.
func (c *Client) CallContract(ctx context.Context, msg geth.CallMsg, block *big.Int) ([]byte, error) {
	return c.rpc.CallContract(ctx, msg, block)
}

// LatestHeader returns the head block header.
func (c *Client) LatestHeader(ctx context.Context) (*types.Header, error) {
	header, err := c.rpc.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest block: %w", err)
	}
	return header, nil
}

// GetReserves returns reserve0 and reserve1 of a V2 pair.
func (c *Client) GetReserves(ctx context.Context, pair common.Address) (*big.Int, *big.Int, error) {
	return contracts.GetReserves(ctx, c.rpc, pair)
}

// TotalSupply returns the token supply.
func (c *Client) TotalSupply(ctx context.Context, token common.Address) (*big.Int, error) {
	return contracts.TotalSupply(ctx, c.rpc, token)
}

// BalanceOf returns owner's token balance.
func (c *Client) BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	return contracts.BalanceOf(ctx, c.rpc, token, owner)
}

// NativeBalance returns the ETH balance of addr.
func (c *Client) NativeBalance(ctx context.Context, addr common.Address) (*big.Int, error) {
	return c.rpc.BalanceAt(ctx, addr, nil)
}

// TokenMetadata returns name, symbol and decimals.
func (c *Client) TokenMetadata(ctx context.Context, token common.Address) (contracts.Metadata, error) {
	return contracts.TokenMetadata(ctx, c.rpc, token)
}

// TransactionCount returns the pending nonce of addr.
func (c *Client) TransactionCount(ctx context.Context, addr common.Address) (uint64, error) {
	return c.rpc.PendingNonceAt(ctx, addr)
}

// SendTransaction broadcasts a signed transaction.
func (c *Client) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	return c.rpc.SendTransaction(ctx, tx)
}

// WaitReceipt polls until the transaction is mined or the receipt timeout passes.
func (c *Client) WaitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	return WaitReceipt(ctx, c.rpc, hash, c.config.ReceiptPollInterval, c.config.ReceiptTimeout)
}

// ReceiptReader fetches receipts.
type ReceiptReader interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// WaitReceipt polls r every interval until the receipt for hash exists.
// A zero timeout waits until ctx is done.
func WaitReceipt(ctx context.Context, r ReceiptReader, hash common.Hash, interval, timeout time.Duration) (*types.Receipt, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if interval <= 0 {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		receipt, err := r.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, geth.NotFound) && ctx.Err() == nil {
			return nil, fmt.Errorf("failed to fetch receipt %s: %w", hash.Hex(), err)
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: %s", ErrReceiptTimeout, hash.Hex())
			}
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// SubscribeNewBlocks streams new headers. It uses the websocket subscription
// when available and falls back to polling if it is missing or drops.
func (c *Client) SubscribeNewBlocks(ctx context.Context) (<-chan *types.Header, <-chan error) {
	out := make(chan *types.Header)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		var last uint64
		if c.ws != nil {
			var err error
			last, err = c.streamHeaders(ctx, out)
			if ctx.Err() != nil {
				return
			}
			c.logger.Warn("Header subscription ended, falling back to polling", zap.Error(err))
		}
		c.pollHeaders(ctx, last, out)
	}()

	return out, errCh
}

func (c *Client) streamHeaders(ctx context.Context, out chan<- *types.Header) (uint64, error) {
	headers := make(chan *types.Header)
	sub, err := c.ws.SubscribeNewHead(ctx, headers)
	if err != nil {
		return 0, err
	}
	defer sub.Unsubscribe()

	var last uint64
	for {
		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case err := <-sub.Err():
			return last, err
		case h := <-headers:
			last = h.Number.Uint64()
			select {
			case out <- h:
			case <-ctx.Done():
				return last, ctx.Err()
			}
		}
	}
}

func (c *Client) pollHeaders(ctx context.Context, last uint64, out chan<- *types.Header) {
	ticker := time.NewTicker(c.config.PollingInterval)
	defer ticker.Stop()

	for {
		header, err := c.LatestHeader(ctx)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return
			}
			c.logger.Warn("Failed to poll latest header", zap.Error(err))
			metrics.ErrorsTotal.WithLabelValues("gateway", "poll_header").Inc()
		case header.Number.Uint64() > last:
			last = header.Number.Uint64()
			select {
			case out <- header:
			case <-ctx.Done():
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// SubscribeLogs streams logs matching query from the current head onwards.
// FromBlock and ToBlock of query are managed by the gateway.
func (c *Client) SubscribeLogs(ctx context.Context, query geth.FilterQuery) (<-chan types.Log, <-chan error) {
	out := make(chan types.Log)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		var last uint64
		if c.ws != nil {
			var err error
			last, err = c.streamLogs(ctx, query, out)
			if ctx.Err() != nil {
				return
			}
			c.logger.Warn("Log subscription ended, falling back to polling", zap.Error(err))
		}
		if last == 0 {
			header, err := c.LatestHeader(ctx)
			if err != nil {
				errCh <- err
				return
			}
			last = header.Number.Uint64()
		}
		c.pollLogs(ctx, query, last, out)
	}()

	return out, errCh
}

func (c *Client) streamLogs(ctx context.Context, query geth.FilterQuery, out chan<- types.Log) (uint64, error) {
	logs := make(chan types.Log)
	sub, err := c.ws.SubscribeFilterLogs(ctx, query, logs)
	if err != nil {
		return 0, err
	}
	defer sub.Unsubscribe()

	var last uint64
	for {
		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case err := <-sub.Err():
			return last, err
		case l := <-logs:
			last = l.BlockNumber
			select {
			case out <- l:
			case <-ctx.Done():
				return last, ctx.Err()
			}
		}
	}
}

// pollLogs queries (last, head] on every tick.
func (c *Client) pollLogs(ctx context.Context, query geth.FilterQuery, last uint64, out chan<- types.Log) {
	c.logger.Info("Polling for logs", zap.Uint64("from_block", last+1))

	ticker := time.NewTicker(c.config.PollingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		header, err := c.LatestHeader(ctx)
		if err != nil {
			c.logger.Warn("Failed to get latest block", zap.Error(err))
			continue
		}
		head := header.Number.Uint64()
		if head <= last {
			continue
		}

		q := query
		q.FromBlock = new(big.Int).SetUint64(last + 1)
		q.ToBlock = new(big.Int).SetUint64(head)
		logs, err := c.rpc.FilterLogs(ctx, q)
		if err != nil {
			c.logger.Warn("Failed to filter logs", zap.Error(err),
				zap.Uint64("from_block", last+1), zap.Uint64("to_block", head))
			metrics.ErrorsTotal.WithLabelValues("gateway", "filter_logs").Inc()
			continue
		}

		for _, l := range logs {
			select {
			case out <- l:
			case <-ctx.Done():
				return
			}
		}
		last = head
	}
}
