// Package validation decides whether a detected token is safe to trade.
//
// Each call to Advance runs the single check that belongs to the token's
// current state and moves it one step along the lifecycle, removes it, or
// leaves it for the next sweep. Verdicts are outcomes; only transport and
// API faults come back as errors.
package validation

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/apmfree78/snipper-sub000/internal/metrics"
	"github.com/apmfree78/snipper-sub000/pkg/config"
	"github.com/apmfree78/snipper-sub000/pkg/market"
	"github.com/apmfree78/snipper-sub000/pkg/registry"
	"github.com/apmfree78/snipper-sub000/pkg/reputation"
	"github.com/apmfree78/snipper-sub000/pkg/token"
)

// Verdict is the result of a dry run.
type Verdict string

const (
	Legit      Verdict = "legit"
	CannotBuy  Verdict = "cannot_buy"
	CannotSell Verdict = "cannot_sell"
)

// Check names the step an Outcome came from.
type Check string

const (
	CheckLiquidity Check = "liquidity"
	CheckHoneypot  Check = "honeypot"
	CheckLock      Check = "lock"
	CheckDryRun    Check = "dry_run"
)

// Outcome describes what one Advance call decided.
type Outcome struct {
	Address string
	Label   string
	Check   Check
	From    token.State
	To      token.State
	Verdict Verdict
	Reason  string
}

// Advanced reports whether the token changed state.
func (o Outcome) Advanced() bool {
	return o.From != o.To
}

// LiquiditySource reports the base-asset liquidity of a token's pool.
type LiquiditySource interface {
	Liquidity(ctx context.Context, tok *token.Token) (*big.Int, error)
}

// SupplyReader reads LP token balances.
type SupplyReader interface {
	TotalSupply(ctx context.Context, token common.Address) (*big.Int, error)
	BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error)
}

// SourceFetcher returns verified contract source, empty when unverified.
type SourceFetcher interface {
	SourceCode(ctx context.Context, address common.Address) (string, error)
}

// Reviewer assesses contract source.
type Reviewer interface {
	Review(ctx context.Context, source string) (reputation.Assessment, error)
}

// HolderSource lists the largest holders of a token.
type HolderSource interface {
	TopHolders(ctx context.Context, token common.Address) ([]reputation.Holder, error)
}

// DryRunner simulates a buy followed by a full sell.
type DryRunner interface {
	DryRun(ctx context.Context, tok token.Token) (Verdict, error)
}

// Deps are the collaborators of a Pipeline. Sources, Reviewer and Holders
// are optional; a missing Reviewer or Holders skips that signal.
type Deps struct {
	Registry  *registry.Registry
	Liquidity LiquiditySource
	Supply    SupplyReader
	Sources   SourceFetcher
	Reviewer  Reviewer
	Holders   HolderSource
	DryRun    DryRunner
}

// Pipeline runs the validation checks.
type Pipeline struct {
	cfg        config.ValidationConfig
	thresholds market.Thresholds
	lockSet    map[string]struct{}
	deps       Deps
	logger     *zap.Logger
}

// NewPipeline creates a pipeline
func NewPipeline(cfg config.ValidationConfig, thresholds market.Thresholds, deps Deps, logger *zap.Logger) (*Pipeline, error) {
	if deps.Registry == nil || deps.Liquidity == nil || deps.Supply == nil || deps.DryRun == nil {
		return nil, fmt.Errorf("validation pipeline requires registry, liquidity, supply and dry run collaborators")
	}
	if err := thresholds.Validate(); err != nil {
		return nil, err
	}

	lockSet := make(map[string]struct{}, len(cfg.LockAddresses))
	for _, a := range cfg.LockAddresses {
		lockSet[token.NormalizeAddress(a)] = struct{}{}
	}
	return &Pipeline{
		cfg:        cfg,
		thresholds: thresholds,
		lockSet:    lockSet,
		deps:       deps,
		logger:     logger,
	}, nil
}

// Pending reports whether s is handled by the pipeline.
func Pending(s token.State) bool {
	switch s {
	case token.Detected, token.CheckingHoneypot, token.CheckingLock, token.Validating:
		return true
	}
	return false
}

// Advance runs the check for the token's current state.
func (p *Pipeline) Advance(ctx context.Context, tok token.Token) (Outcome, error) {
	switch tok.State {
	case token.Detected:
		return p.checkLiquidity(ctx, tok)
	case token.CheckingHoneypot:
		return p.checkHoneypot(ctx, tok)
	case token.CheckingLock:
		return p.checkLock(ctx, tok)
	case token.Validating:
		return p.dryRun(ctx, tok)
	default:
		return Outcome{}, fmt.Errorf("token %s in state %s is not pending validation", tok.Address, tok.State)
	}
}

func (p *Pipeline) outcome(tok token.Token, check Check) Outcome {
	return Outcome{Address: tok.Address, Label: tok.Label(), Check: check, From: tok.State, To: tok.State}
}

func (p *Pipeline) advance(o Outcome, to token.State) (Outcome, error) {
	if err := p.deps.Registry.Transition(o.Address, to); err != nil {
		return o, err
	}
	o.To = to
	return o, nil
}

// remove moves the token to Removed, recording why.
func (p *Pipeline) remove(o Outcome, reason string) (Outcome, error) {
	p.deps.Registry.Mutate(o.Address, func(t *token.Token) {
		t.RemovalReason = reason
		if o.Verdict != "" {
			t.Verdict = string(o.Verdict)
		}
	})
	o.Reason = reason
	p.logger.Info("Token removed",
		zap.String("token", o.Label),
		zap.String("address", o.Address),
		zap.String("check", string(o.Check)),
		zap.String("reason", reason))
	return p.advance(o, token.Removed)
}

func (p *Pipeline) checkLiquidity(ctx context.Context, tok token.Token) (Outcome, error) {
	o := p.outcome(tok, CheckLiquidity)

	raw, err := p.deps.Liquidity.Liquidity(ctx, &tok)
	if err != nil {
		return o, fmt.Errorf("liquidity of %s: %w", tok.Address, err)
	}
	liq := p.thresholds.Classify(raw)
	tradable := liq.Tradable()
	p.deps.Registry.Mutate(tok.Address, func(t *token.Token) {
		t.Liquidity = liq
		t.IsTradable = tradable
	})

	if !tradable {
		o.Reason = "liquidity " + liq.Tier().String()
		p.logger.Debug("Token parked on liquidity",
			zap.String("token", o.Label),
			zap.String("address", o.Address),
			zap.Stringer("tier", liq.Tier()),
			zap.String("liquidity_eth", market.FormatEther(raw)))
		return o, nil
	}

	p.logger.Info("Token is tradable",
		zap.String("token", o.Label),
		zap.String("address", o.Address),
		zap.Stringer("tier", liq.Tier()),
		zap.String("liquidity_eth", market.FormatEther(raw)))
	return p.advance(o, token.CheckingHoneypot)
}

// spend increments counter on the stored token and reports whether the call
// fits in budget.
func (p *Pipeline) spend(address string, counter func(*token.Token) *token.Counter, budget int) bool {
	allowed := false
	p.deps.Registry.Mutate(address, func(t *token.Token) {
		c := counter(t)
		if int(*c) < budget {
			c.Inc()
			allowed = true
		}
	})
	return allowed
}

func (p *Pipeline) checkHoneypot(ctx context.Context, tok token.Token) (Outcome, error) {
	o := p.outcome(tok, CheckHoneypot)

	if p.deps.Reviewer == nil {
		p.logger.Debug("No code reviewer configured, skipping honeypot signal",
			zap.String("token", o.Label),
			zap.String("address", o.Address))
		return p.advance(o, token.CheckingLock)
	}

	if !p.spend(tok.Address, func(t *token.Token) *token.Counter { return &t.HoneypotChecks }, p.cfg.MaxHoneypotChecks) {
		o.Reason = "honeypot check budget exhausted"
		p.logger.Warn("Honeypot signal unknown, holding token",
			zap.String("token", o.Label),
			zap.String("address", o.Address),
			zap.Int("budget", p.cfg.MaxHoneypotChecks))
		return o, nil
	}

	source := tok.SourceCode
	if source == "" && p.deps.Sources != nil {
		var err error
		source, err = p.deps.Sources.SourceCode(ctx, tok.CommonAddress())
		if err != nil {
			return o, fmt.Errorf("source code of %s: %w", tok.Address, err)
		}
		if source != "" {
			p.deps.Registry.Mutate(tok.Address, func(t *token.Token) { t.SourceCode = source })
		}
	}
	if source == "" {
		o.Reason = "source not verified"
		p.logger.Debug("Source not verified yet",
			zap.String("token", o.Label),
			zap.String("address", o.Address))
		return o, nil
	}

	assessment, err := p.deps.Reviewer.Review(ctx, source)
	if err != nil {
		return o, fmt.Errorf("code review of %s: %w", tok.Address, err)
	}
	if assessment.PossibleScam {
		return p.remove(o, "honeypot: "+assessment.Reason)
	}

	p.logger.Info("Token passed honeypot check",
		zap.String("token", o.Label),
		zap.String("address", o.Address))
	return p.advance(o, token.CheckingLock)
}

func (p *Pipeline) checkLock(ctx context.Context, tok token.Token) (Outcome, error) {
	o := p.outcome(tok, CheckLock)

	if tok.Venue == token.VenueUniswapV2 {
		locked, err := p.lockedPercent(ctx, tok.Pool())
		if err != nil {
			return o, fmt.Errorf("lp lock of %s: %w", tok.Address, err)
		}
		if locked < p.cfg.LockThresholdPercent {
			o.Reason = fmt.Sprintf("liquidity %.2f%% locked, need %.2f%%", locked, p.cfg.LockThresholdPercent)
			p.logger.Info("Liquidity not locked",
				zap.String("token", o.Label),
				zap.String("address", o.Address),
				zap.Float64("locked_percent", locked))
			return o, nil
		}
		p.logger.Info("Liquidity is locked",
			zap.String("token", o.Label),
			zap.String("address", o.Address),
			zap.Float64("locked_percent", locked))
	} else {
		p.logger.Debug("Pool liquidity is held in positions, lock check does not apply",
			zap.String("token", o.Label),
			zap.String("address", o.Address),
			zap.String("venue", string(tok.Venue)))
	}

	if p.deps.Holders != nil {
		blocked, reason, err := p.holderConcentration(ctx, tok)
		if err != nil {
			return o, err
		}
		if blocked {
			o.Reason = reason
			return o, nil
		}
	}

	return p.advance(o, token.Validating)
}

// lockedPercent is the share of LP supply held by lock or burn addresses.
func (p *Pipeline) lockedPercent(ctx context.Context, pool common.Address) (float64, error) {
	supply, err := p.deps.Supply.TotalSupply(ctx, pool)
	if err != nil {
		return 0, err
	}
	if supply.Sign() == 0 {
		return 0, nil
	}

	locked := new(big.Int)
	for addr := range p.lockSet {
		bal, err := p.deps.Supply.BalanceOf(ctx, pool, common.HexToAddress(addr))
		if err != nil {
			return 0, err
		}
		locked.Add(locked, bal)
	}

	pct, _ := new(big.Float).Quo(
		new(big.Float).Mul(new(big.Float).SetInt(locked), big.NewFloat(100)),
		new(big.Float).SetInt(supply),
	).Float64()
	return pct, nil
}

// holderConcentration reports whether the token must wait, either because a
// single wallet outside the pool and lock addresses holds more than the
// configured share of supply or because the holder budget is spent.
func (p *Pipeline) holderConcentration(ctx context.Context, tok token.Token) (bool, string, error) {
	if !p.spend(tok.Address, func(t *token.Token) *token.Counter { return &t.HolderChecks }, p.cfg.MaxHolderChecks) {
		p.logger.Warn("Holder check budget exhausted, holding token",
			zap.String("token", tok.Label()),
			zap.String("address", tok.Address))
		return true, "holder check budget exhausted", nil
	}

	holders, err := p.deps.Holders.TopHolders(ctx, tok.CommonAddress())
	if err != nil {
		return false, "", fmt.Errorf("holders of %s: %w", tok.Address, err)
	}
	for _, h := range holders {
		addr := strings.ToLower(h.Address)
		if addr == tok.PoolAddress {
			continue
		}
		if _, ok := p.lockSet[addr]; ok {
			continue
		}
		if h.Percent > p.cfg.MaxHolderPercent {
			p.logger.Info("Holder concentration too high",
				zap.String("token", tok.Label()),
				zap.String("address", tok.Address),
				zap.String("holder", addr),
				zap.Float64("percent", h.Percent))
			return true, fmt.Sprintf("holder %s owns %.2f%%", addr, h.Percent), nil
		}
	}
	return false, "", nil
}

func (p *Pipeline) dryRun(ctx context.Context, tok token.Token) (Outcome, error) {
	o := p.outcome(tok, CheckDryRun)

	verdict, err := p.deps.DryRun.DryRun(ctx, tok)
	if err != nil {
		return o, fmt.Errorf("dry run of %s: %w", tok.Address, err)
	}
	o.Verdict = verdict
	metrics.ValidationVerdicts.WithLabelValues(string(verdict)).Inc()

	if verdict != Legit {
		return p.remove(o, string(verdict))
	}

	p.deps.Registry.Mutate(tok.Address, func(t *token.Token) { t.Verdict = string(verdict) })
	p.logger.Info("Token validated",
		zap.String("token", o.Label),
		zap.String("address", o.Address),
		zap.String("verdict", string(verdict)))
	return p.advance(o, token.Validated)
}
