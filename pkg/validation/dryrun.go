package validation

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/apmfree78/snipper-sub000/pkg/ethereum"
	"github.com/apmfree78/snipper-sub000/pkg/executor"
	"github.com/apmfree78/snipper-sub000/pkg/market"
	"github.com/apmfree78/snipper-sub000/pkg/simulation"
	"github.com/apmfree78/snipper-sub000/pkg/token"
)

// Sandbox is an isolated chain on which the candidate account can trade.
type Sandbox interface {
	ethereum.TxBackend
	Fund(ctx context.Context, addr common.Address, amount *big.Int) error
	Close() error
}

// SpawnFunc creates a fresh sandbox with account impersonated.
type SpawnFunc func(ctx context.Context, account common.Address) (Sandbox, error)

// FromEnvironment spawns sandboxes from a simulation environment.
func FromEnvironment(env simulation.Spawner) SpawnFunc {
	return func(ctx context.Context, account common.Address) (Sandbox, error) {
		fork, err := env.Spawn(ctx, account)
		if err != nil {
			return nil, err
		}
		return fork, nil
	}
}

// VenueFunc builds the venue for tok on top of a sandbox.
type VenueFunc func(sandbox Sandbox, tok token.Token) (market.Venue, error)

// VenuesAt returns a VenueFunc for the given contract addresses.
func VenuesAt(addrs market.Addresses) VenueFunc {
	return func(sandbox Sandbox, tok token.Token) (market.Venue, error) {
		return market.NewVenue(tok.Venue, sandbox, addrs)
	}
}

// ForkDryRun buys and sells on a fresh fork for every run.
type ForkDryRun struct {
	spawn    SpawnFunc
	venues   VenueFunc
	gas      *executor.GasStrategy
	account  common.Address
	funding  *big.Int
	buy      *big.Int
	slippage market.Slippage
	gasLimit uint64
	deadline time.Duration
	logger   *zap.Logger
}

var _ DryRunner = (*ForkDryRun)(nil)

// ForkDryRunOptions configure a ForkDryRun.
type ForkDryRunOptions struct {
	Account        common.Address
	Funding        *big.Int
	BuyAmount      *big.Int
	Slippage       market.Slippage
	GasLimit       uint64
	DeadlineWindow time.Duration
}

// NewForkDryRun creates a dry runner
func NewForkDryRun(spawn SpawnFunc, venues VenueFunc, gas *executor.GasStrategy, opts ForkDryRunOptions, logger *zap.Logger) *ForkDryRun {
	return &ForkDryRun{
		spawn:    spawn,
		venues:   venues,
		gas:      gas,
		account:  opts.Account,
		funding:  opts.Funding,
		buy:      opts.BuyAmount,
		slippage: opts.Slippage,
		gasLimit: opts.GasLimit,
		deadline: opts.DeadlineWindow,
		logger:   logger,
	}
}

// DryRun funds the account, buys tok, sells the full balance and checks that
// nothing is left behind. Trade failures are verdicts; only faults that stop
// the run from being meaningful are errors.
func (d *ForkDryRun) DryRun(ctx context.Context, tok token.Token) (Verdict, error) {
	sandbox, err := d.spawn(ctx, d.account)
	if err != nil {
		return "", fmt.Errorf("spawn fork: %w", err)
	}
	defer func() {
		if err := sandbox.Close(); err != nil {
			d.logger.Warn("Failed to close fork", zap.Error(err))
		}
	}()

	if err := sandbox.Fund(ctx, d.account, d.funding); err != nil {
		return "", err
	}

	venue, err := d.venues(sandbox, tok)
	if err != nil {
		return "", err
	}
	exec := executor.New(sandbox, venue, d.gas, executor.NewNonceManager(), executor.Options{
		Slippage:       d.slippage,
		GasLimit:       d.gasLimit,
		DeadlineWindow: d.deadline,
	}, d.logger)

	bought, err := exec.Buy(ctx, tok, d.buy)
	if err != nil {
		if executor.KindOf(err) == executor.KindSubmission {
			return "", err
		}
		d.logger.Info("Dry-run buy failed",
			zap.String("token", tok.Label()),
			zap.String("address", tok.Address),
			zap.Error(err))
		return CannotBuy, nil
	}
	if !bought.Succeeded() {
		return CannotBuy, nil
	}

	_, err = exec.Sell(ctx, tok, nil)
	if err != nil {
		if executor.KindOf(err) == executor.KindSubmission {
			return "", err
		}
		d.logger.Info("Dry-run sell failed",
			zap.String("token", tok.Label()),
			zap.String("address", tok.Address),
			zap.Error(err))
		return CannotSell, nil
	}

	residual, err := sandbox.BalanceOf(ctx, tok.CommonAddress(), d.account)
	if err != nil {
		return "", err
	}
	if residual.Sign() > 0 {
		d.logger.Info("Dry-run sell left a residual balance",
			zap.String("token", tok.Label()),
			zap.String("address", tok.Address),
			zap.String("residual", residual.String()))
		return CannotSell, nil
	}
	return Legit, nil
}
