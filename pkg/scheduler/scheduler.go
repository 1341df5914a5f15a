// Package scheduler drives tokens through their lifecycle: it detects new
// pools, and on every block sweeps the registry dispatching one task per
// eligible token (validate, buy, sell or settle).
package scheduler

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/apmfree78/snipper-sub000/pkg/config"
	"github.com/apmfree78/snipper-sub000/pkg/executor"
	"github.com/apmfree78/snipper-sub000/pkg/market"
	"github.com/apmfree78/snipper-sub000/pkg/notify"
	"github.com/apmfree78/snipper-sub000/pkg/registry"
	"github.com/apmfree78/snipper-sub000/pkg/token"
	"github.com/apmfree78/snipper-sub000/pkg/tradestore"
	"github.com/apmfree78/snipper-sub000/pkg/validation"
)

// Action is the kind of task dispatched for a token.
type Action string

const (
	ActionValidate Action = "validate"
	ActionBuy      Action = "buy"
	ActionSell     Action = "sell"
	ActionSettle   Action = "settle"
)

// Outcome is the result of one task.
type Outcome struct {
	Address string
	Label   string
	Action  Action
	From    token.State
	To      token.State
	// Idle is set when the task found nothing to do.
	Idle bool
	Err  error
}

// Failed reports whether the task returned an error.
func (o Outcome) Failed() bool {
	return o.Err != nil
}

// Validator advances a token through one validation step.
type Validator interface {
	Advance(ctx context.Context, tok token.Token) (validation.Outcome, error)
}

// Quoter prices a sell of a token position in the base asset.
type Quoter interface {
	QuoteSell(ctx context.Context, tok *token.Token, amountIn *big.Int) (*big.Int, error)
}

// Ledger persists trades and positions.
type Ledger interface {
	RecordTrade(ctx context.Context, trade *tradestore.Trade) error
	UpsertPosition(ctx context.Context, pos *tradestore.Position) error
}

// Deps are the collaborators of a Scheduler. Ledger and Publisher are optional.
type Deps struct {
	Registry  *registry.Registry
	Validator Validator
	Trader    executor.Trader
	Quoter    Quoter
	Ledger    Ledger
	Publisher notify.Publisher
}

// Options are the trading policy of a Scheduler.
type Options struct {
	TradingEnabled  bool
	PurchaseAmount  *big.Int
	MaxSellAttempts int
	TaskTimeout     time.Duration
	TimeBuckets     []token.Bucket
	VolumeBuckets   []token.Bucket
}

// OptionsFromConfig derives Options from the loaded configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	opts := Options{
		TradingEnabled:  cfg.Trading.Enabled,
		PurchaseAmount:  cfg.Trading.PurchaseAmountWei(),
		MaxSellAttempts: cfg.Trading.MaxSellAttempts,
		TaskTimeout:     cfg.Scheduler.TaskTimeout,
	}
	for _, b := range cfg.Trading.SellSchedule.TimeBuckets {
		opts.TimeBuckets = append(opts.TimeBuckets, token.Bucket{After: b.After, Percent: b.Percent})
	}
	for _, b := range cfg.Trading.SellSchedule.VolumeBuckets {
		opts.VolumeBuckets = append(opts.VolumeBuckets, token.Bucket{ValueMultiple: b.ValueMultiple, Percent: b.Percent})
	}
	return opts
}

// Scheduler dispatches lifecycle tasks.
type Scheduler struct {
	deps   Deps
	opts   Options
	logger *zap.Logger
}

// New creates a scheduler
func New(deps Deps, opts Options, logger *zap.Logger) (*Scheduler, error) {
	if deps.Registry == nil || deps.Validator == nil || deps.Trader == nil || deps.Quoter == nil {
		return nil, fmt.Errorf("scheduler requires registry, validator, trader and quoter")
	}
	if opts.TradingEnabled && (opts.PurchaseAmount == nil || opts.PurchaseAmount.Sign() <= 0) {
		return nil, fmt.Errorf("purchase amount must be positive")
	}
	if opts.MaxSellAttempts <= 0 {
		opts.MaxSellAttempts = 1
	}
	if len(opts.TimeBuckets) == 0 && len(opts.VolumeBuckets) == 0 {
		return nil, fmt.Errorf("at least one sell bucket is required")
	}
	if deps.Publisher == nil {
		deps.Publisher = notify.Nop{}
	}
	return &Scheduler{deps: deps, opts: opts, logger: logger}, nil
}

// Sweep dispatches the next task of every eligible token and returns a
// channel carrying each task's outcome. The channel is closed once every
// dispatched task has finished. A token with a task still in flight from a
// previous sweep is skipped.
func (s *Scheduler) Sweep(ctx context.Context, now time.Time) <-chan Outcome {
	tokens := s.deps.Registry.All()
	out := make(chan Outcome, len(tokens))

	var wg sync.WaitGroup
	for _, tok := range tokens {
		action, ok := s.nextAction(tok, now)
		if !ok {
			continue
		}
		if !s.deps.Registry.TryAcquire(tok.Address) {
			continue
		}

		wg.Add(1)
		go func(tok token.Token, action Action) {
			defer wg.Done()
			defer s.deps.Registry.Release(tok.Address)
			out <- s.run(ctx, tok, action, now)
		}(tok, action)
	}

	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}

// nextAction picks the task for tok, if any is due.
func (s *Scheduler) nextAction(tok token.Token, now time.Time) (Action, bool) {
	switch {
	case validation.Pending(tok.State):
		return ActionValidate, true
	case tok.State == token.Validated:
		return ActionBuy, s.opts.TradingEnabled
	case tok.State == token.Bought || tok.State == token.Selling:
		return ActionSell, s.sellPossible(tok, now)
	case tok.State.Terminal():
		return ActionSettle, true
	default:
		return "", false
	}
}

func (s *Scheduler) run(ctx context.Context, tok token.Token, action Action, now time.Time) (o Outcome) {
	if s.opts.TaskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.TaskTimeout)
		defer cancel()
	}

	o = Outcome{Address: tok.Address, Label: tok.Label(), Action: action, From: tok.State, To: tok.State}
	defer func() {
		if r := recover(); r != nil {
			o.Err = fmt.Errorf("task panicked: %v", r)
		}
	}()

	switch action {
	case ActionValidate:
		return s.validate(ctx, tok, o)
	case ActionBuy:
		return s.buy(ctx, tok, o, now)
	case ActionSell:
		return s.sell(ctx, tok, o, now)
	case ActionSettle:
		return s.settle(ctx, tok, o, now)
	}
	return o
}

func (s *Scheduler) validate(ctx context.Context, tok token.Token, o Outcome) Outcome {
	res, err := s.deps.Validator.Advance(ctx, tok)
	o.To = res.To
	if err != nil {
		o.To = tok.State
		o.Err = err
		return o
	}
	if !res.Advanced() {
		o.Idle = true
		return o
	}
	if res.To == token.Validated {
		if cur, ok := s.deps.Registry.Get(tok.Address); ok {
			publish(ctx, s.deps.Publisher, s.logger, notify.KindValidated, cur, string(res.Verdict), time.Now())
		}
	}
	return o
}

// buy spends the purchase amount. A failed buy is final: the token is removed.
func (s *Scheduler) buy(ctx context.Context, tok token.Token, o Outcome, now time.Time) Outcome {
	addr := tok.Address
	s.deps.Registry.Mutate(addr, func(t *token.Token) { t.PurchaseAttempts.Inc() })
	if err := s.deps.Registry.Transition(addr, token.Buying); err != nil {
		o.Err = err
		return o
	}
	o.To = token.Buying

	current, ok := s.deps.Registry.Get(addr)
	if !ok {
		o.Err = fmt.Errorf("%w: %s", registry.ErrNotFound, addr)
		return o
	}

	trade, err := s.deps.Trader.Buy(ctx, current, s.opts.PurchaseAmount)
	s.recordTrade(ctx, current, trade, err)

	if err != nil || !trade.Succeeded() {
		s.deps.Registry.Mutate(addr, func(t *token.Token) {
			if trade != nil {
				t.AddGasCost(trade.GasCost)
			}
			t.RemovalReason = "failed buy"
		})
		if terr := s.deps.Registry.Transition(addr, token.Removed); terr != nil {
			o.Err = terr
			return o
		}
		o.To = token.Removed
		if err == nil {
			err = fmt.Errorf("buy of %s delivered no tokens", addr)
		}
		o.Err = err
		s.logger.Warn("Token removed after failed buy",
			zap.String("token", current.Label()),
			zap.String("address", addr),
			zap.Error(err))
		s.finalize(ctx, addr, now)
		return o
	}

	boughtAt := trade.At
	if boughtAt.IsZero() {
		boughtAt = now
	}
	s.deps.Registry.Mutate(addr, func(t *token.Token) {
		t.AmountBought = new(big.Int).Set(trade.Amount)
		t.EthSpent = new(big.Int).Set(trade.EthAmount)
		t.TimeOfPurchase = boughtAt
		t.AddGasCost(trade.GasCost)
		t.TimeBuckets = freshBuckets(s.opts.TimeBuckets)
		t.VolumeBuckets = freshBuckets(s.opts.VolumeBuckets)
	})
	if err := s.deps.Registry.Transition(addr, token.Bought); err != nil {
		o.Err = err
		return o
	}
	o.To = token.Bought

	bought, _ := s.deps.Registry.Get(addr)
	s.logger.Info("Token bought",
		zap.String("token", bought.Label()),
		zap.String("address", addr),
		zap.String("amount", market.FormatUnits(bought.AmountBought, bought.Decimals)),
		zap.String("eth_spent", market.FormatEther(bought.EthSpent)))
	publish(ctx, s.deps.Publisher, s.logger, notify.KindBought, bought, market.FormatEther(bought.EthSpent), now)
	s.savePosition(ctx, bought, now)
	return o
}

type claim struct {
	kind    token.BucketKind
	idx     int
	percent float64
}

// unsold is the part of the position no bucket has sold yet.
func unsold(tok token.Token) *big.Int {
	if tok.AmountBought == nil {
		return new(big.Int)
	}
	return new(big.Int).Sub(tok.AmountBought, tok.TotalSold())
}

// soldOut reports whether a position in Selling has nothing left to sell.
func soldOut(tok token.Token) bool {
	return tok.State == token.Selling && unsold(tok).Sign() <= 0
}

// sellPossible reports whether a sell task has work: a time bucket whose
// delay has elapsed, any unfilled volume bucket, or a sold out position
// still waiting to be closed.
func (s *Scheduler) sellPossible(tok token.Token, now time.Time) bool {
	if soldOut(tok) {
		return true
	}
	for _, b := range tok.TimeBuckets {
		if !b.Filled && !now.Before(tok.TimeOfPurchase.Add(b.After)) {
			return true
		}
	}
	for _, b := range tok.VolumeBuckets {
		if !b.Filled {
			return true
		}
	}
	return false
}

// dueBuckets lists the unfilled buckets whose trigger has been reached.
// Volume buckets need a quote of the remaining position.
func (s *Scheduler) dueBuckets(ctx context.Context, tok token.Token, now time.Time) ([]claim, error) {
	var due []claim
	for i, b := range tok.TimeBuckets {
		if !b.Filled && !now.Before(tok.TimeOfPurchase.Add(b.After)) {
			due = append(due, claim{kind: token.TimeBucket, idx: i, percent: b.Percent})
		}
	}

	var value *big.Int
	for i, b := range tok.VolumeBuckets {
		if b.Filled {
			continue
		}
		if value == nil {
			remaining := unsold(tok)
			if remaining.Sign() <= 0 {
				break
			}
			v, err := s.deps.Quoter.QuoteSell(ctx, &tok, remaining)
			if err != nil {
				return due, fmt.Errorf("quote position value: %w", err)
			}
			value = v
		}
		if value.Cmp(market.MultipleOf(tok.EthSpent, b.ValueMultiple)) >= 0 {
			due = append(due, claim{kind: token.VolumeBucket, idx: i, percent: b.Percent})
		}
	}
	return due, nil
}

// sell claims the due buckets and sells their share of the position. The
// claim that fills the last bucket sells the whole remaining balance.
// A failed sell releases the claims and is retried on the next sweep with
// an escalated fee tier until the attempt budget is spent.
func (s *Scheduler) sell(ctx context.Context, tok token.Token, o Outcome, now time.Time) Outcome {
	addr := tok.Address
	if soldOut(tok) {
		return s.closeSale(ctx, addr, o, now)
	}

	due, err := s.dueBuckets(ctx, tok, now)
	if err != nil && len(due) == 0 {
		o.Err = err
		return o
	}

	var claimed []claim
	var percent float64
	for _, c := range due {
		if s.deps.Registry.ClaimBucket(addr, c.kind, c.idx) {
			claimed = append(claimed, c)
			percent += c.percent
		}
	}
	if len(claimed) == 0 {
		o.Idle = true
		return o
	}

	if tok.State == token.Bought {
		if err := s.deps.Registry.Transition(addr, token.Selling); err != nil {
			s.unclaim(addr, claimed)
			o.Err = err
			return o
		}
		o.To = token.Selling
	}

	current, ok := s.deps.Registry.Get(addr)
	if !ok {
		o.Err = fmt.Errorf("%w: %s", registry.ErrNotFound, addr)
		return o
	}
	// a claim that covers the rest of the position sells the full balance
	final := current.AllBucketsFilled() || percent >= 100
	var amount *big.Int
	if !final {
		amount = market.PercentOf(current.AmountBought, percent)
		if amount.Cmp(unsold(current)) >= 0 {
			final, amount = true, nil
		}
	}

	trade, err := s.deps.Trader.Sell(ctx, current, amount)
	s.recordTrade(ctx, current, trade, err)

	if err != nil || !trade.Succeeded() {
		if err == nil {
			err = fmt.Errorf("sell of %s moved no tokens", addr)
		}
		return s.sellFailed(ctx, current, claimed, trade, err, o, now)
	}

	s.deps.Registry.Mutate(addr, func(t *token.Token) {
		if t.EthReceivedAtSale == nil {
			t.EthReceivedAtSale = new(big.Int)
		}
		t.EthReceivedAtSale.Add(t.EthReceivedAtSale, trade.EthAmount)
		t.AddGasCost(trade.GasCost)
		apportion(t, claimed, percent, trade.Amount)
	})

	s.logger.Info("Token sold",
		zap.String("token", current.Label()),
		zap.String("address", addr),
		zap.String("amount", market.FormatUnits(trade.Amount, current.Decimals)),
		zap.String("eth_received", market.FormatEther(trade.EthAmount)),
		zap.Bool("final", final))

	sold, ok := s.deps.Registry.Get(addr)
	if !final && ok && unsold(sold).Sign() > 0 {
		s.savePosition(ctx, sold, now)
		return o
	}
	return s.closeSale(ctx, addr, o, now)
}

// closeSale moves a fully sold position to Sold and settles it.
func (s *Scheduler) closeSale(ctx context.Context, addr string, o Outcome, now time.Time) Outcome {
	if err := s.deps.Registry.Transition(addr, token.Sold); err != nil {
		o.Err = err
		return o
	}
	o.To = token.Sold
	s.finalize(ctx, addr, now)
	return o
}

func (s *Scheduler) sellFailed(ctx context.Context, tok token.Token, claimed []claim, trade *executor.Trade, err error, o Outcome, now time.Time) Outcome {
	addr := tok.Address
	var attempts token.Counter
	s.deps.Registry.Mutate(addr, func(t *token.Token) {
		if trade != nil {
			t.AddGasCost(trade.GasCost)
		}
		t.SellAttempts.Inc()
		attempts = t.SellAttempts
	})
	s.unclaim(addr, claimed)
	o.Err = err

	if int(attempts) < s.opts.MaxSellAttempts {
		s.logger.Warn("Sell failed, will retry",
			zap.String("token", tok.Label()),
			zap.String("address", addr),
			zap.Uint8("attempts", uint8(attempts)),
			zap.Error(err))
		return o
	}

	s.deps.Registry.Mutate(addr, func(t *token.Token) { t.RemovalReason = "failed sell" })
	if terr := s.deps.Registry.Transition(addr, token.Removed); terr != nil {
		o.Err = terr
		return o
	}
	o.To = token.Removed
	s.logger.Error("Token removed after failed sells",
		zap.String("token", tok.Label()),
		zap.String("address", addr),
		zap.Uint8("attempts", uint8(attempts)),
		zap.Error(err))
	s.finalize(ctx, addr, now)
	return o
}

func (s *Scheduler) unclaim(addr string, claimed []claim) {
	s.deps.Registry.Mutate(addr, func(t *token.Token) {
		for _, c := range claimed {
			buckets := t.Buckets(c.kind)
			if c.idx < len(buckets) {
				buckets[c.idx].Filled = false
			}
		}
	})
}

// apportion records sold across the claimed buckets by their percent share;
// the last claimed bucket takes the rounding remainder.
func apportion(t *token.Token, claimed []claim, percent float64, sold *big.Int) {
	rest := new(big.Int).Set(sold)
	for i, c := range claimed {
		buckets := t.Buckets(c.kind)
		if c.idx >= len(buckets) {
			continue
		}
		share := rest
		if i < len(claimed)-1 && percent > 0 {
			share = market.PercentOf(sold, c.percent*100/percent)
			rest = new(big.Int).Sub(rest, share)
		}
		buckets[c.idx].Sold = new(big.Int).Set(share)
		buckets[c.idx].Filled = true
	}
}

// settle handles tokens already in a terminal state: the position is
// written to the ledger and the token leaves the registry. A ledger error
// keeps the token for the next sweep.
func (s *Scheduler) settle(ctx context.Context, tok token.Token, o Outcome, now time.Time) Outcome {
	if err := s.finalize(ctx, tok.Address, now); err != nil {
		o.Err = err
	}
	return o
}

func (s *Scheduler) finalize(ctx context.Context, addr string, now time.Time) error {
	tok, ok := s.deps.Registry.Get(addr)
	if !ok {
		return nil
	}
	if traded(tok) {
		if err := s.savePosition(ctx, tok, now); err != nil {
			return err
		}
	}

	kind := notify.KindRemoved
	detail := tok.RemovalReason
	if tok.State == token.Sold {
		kind = notify.KindSold
		detail = market.FormatEther(tok.ProfitLoss())
		s.logger.Info("Position closed",
			zap.String("token", tok.Label()),
			zap.String("address", addr),
			zap.String("eth_spent", market.FormatEther(tok.EthSpent)),
			zap.String("eth_received", market.FormatEther(tok.EthReceivedAtSale)),
			zap.String("gas", market.FormatEther(tok.TxGasCost)),
			zap.String("pnl", detail))
	}
	publish(ctx, s.deps.Publisher, s.logger, kind, tok, detail, now)
	s.deps.Registry.Remove(addr)
	return nil
}

func (s *Scheduler) recordTrade(ctx context.Context, tok token.Token, trade *executor.Trade, err error) {
	if s.deps.Ledger == nil {
		return
	}
	if lerr := s.deps.Ledger.RecordTrade(ctx, tradestore.NewTrade(tok, trade, err)); lerr != nil {
		s.logger.Error("Failed to record trade",
			zap.String("address", tok.Address),
			zap.Error(lerr))
	}
}

func (s *Scheduler) savePosition(ctx context.Context, tok token.Token, now time.Time) error {
	if s.deps.Ledger == nil {
		return nil
	}
	if err := s.deps.Ledger.UpsertPosition(ctx, tradestore.NewPosition(tok, now)); err != nil {
		s.logger.Error("Failed to save position",
			zap.String("address", tok.Address),
			zap.Error(err))
		return fmt.Errorf("save position: %w", err)
	}
	return nil
}

func traded(tok token.Token) bool {
	return tok.PurchaseAttempts > 0 || (tok.EthSpent != nil && tok.EthSpent.Sign() > 0)
}

func freshBuckets(tmpl []token.Bucket) []token.Bucket {
	if len(tmpl) == 0 {
		return nil
	}
	out := make([]token.Bucket, len(tmpl))
	for i, b := range tmpl {
		out[i] = token.Bucket{After: b.After, ValueMultiple: b.ValueMultiple, Percent: b.Percent, Sold: new(big.Int)}
	}
	return out
}
