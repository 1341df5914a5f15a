// Package sniper implements app.Runner for the sniper process.
package sniper

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"github.com/apmfree78/snipper-sub000/internal/metrics"
	apphttp "github.com/apmfree78/snipper-sub000/pkg/app/http"
	"github.com/apmfree78/snipper-sub000/pkg/config"
	"github.com/apmfree78/snipper-sub000/pkg/ethereum"
	"github.com/apmfree78/snipper-sub000/pkg/executor"
	"github.com/apmfree78/snipper-sub000/pkg/market"
	"github.com/apmfree78/snipper-sub000/pkg/notify"
	"github.com/apmfree78/snipper-sub000/pkg/pgutil"
	"github.com/apmfree78/snipper-sub000/pkg/registry"
	"github.com/apmfree78/snipper-sub000/pkg/relay"
	"github.com/apmfree78/snipper-sub000/pkg/reputation"
	"github.com/apmfree78/snipper-sub000/pkg/scheduler"
	"github.com/apmfree78/snipper-sub000/pkg/simulation"
	"github.com/apmfree78/snipper-sub000/pkg/token"
	"github.com/apmfree78/snipper-sub000/pkg/tradestore"
	"github.com/apmfree78/snipper-sub000/pkg/validation"
	"github.com/apmfree78/snipper-sub000/pkg/wallet"
)

// Server holds configuration for the sniper process.
type Server struct {
	cfg *config.Config
}

// NewServer initializes a new sniper Server.
func NewServer(cfg *config.Config) *Server {
	return &Server{cfg: cfg}
}

// Run starts detection, the lifecycle engine and the operational HTTP server.
// It blocks until an OS shutdown signal is received or a fatal server error occurs.
func (s *Server) Run() error {
	if s.cfg == nil {
		return fmt.Errorf("nil config")
	}
	cfg := s.cfg

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := config.NewLogger(cfg.Logging,
		zap.String("chain", cfg.Ethereum.Chain),
		zap.String("mode", cfg.Trading.Mode))
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	venueName := token.Venue(cfg.Trading.Venue)
	logger.Info("Starting token sniper",
		zap.String("venue", string(venueName)),
		zap.Bool("trading_enabled", cfg.Trading.Enabled))

	chain, err := ethereum.NewClient(ctx, &cfg.Ethereum, logger)
	if err != nil {
		return fmt.Errorf("initialize ethereum client: %w", err)
	}
	defer chain.Close()

	db, store, err := s.openLedger(ctx, logger)
	if err != nil {
		return err
	}
	if db != nil {
		defer func() { _ = db.Close() }()
	}

	publisher, err := s.openPublisher(ctx, logger)
	if err != nil {
		return err
	}
	defer func() { _ = publisher.Close() }()

	reg := registry.New(logger, registry.WithTransitionHook(transitionLogger(logger)))

	gas, err := executor.NewGasStrategy(cfg.Trading.Gas)
	if err != nil {
		return fmt.Errorf("gas strategy: %w", err)
	}
	venue, err := market.NewVenue(venueName, chain, cfg.Ethereum.VenueAddresses())
	if err != nil {
		return fmt.Errorf("trading venue: %w", err)
	}

	trader, account, closeTrader, err := s.newTrader(chain, venue, gas, logger)
	if err != nil {
		return err
	}
	defer closeTrader()

	var sources *reputation.Etherscan
	if key := cfg.Reputation.Etherscan.APIKey; key != "" {
		sources = reputation.NewEtherscan(cfg.Reputation.Etherscan.URL, key, chain.ChainID().Int64(), cfg.Reputation.Etherscan.Timeout)
	}

	pipeline, err := s.newPipeline(reg, chain, venue, gas, account, sources, logger)
	if err != nil {
		return err
	}

	deps := scheduler.Deps{
		Registry:  reg,
		Validator: pipeline,
		Trader:    trader,
		Quoter:    venue,
		Publisher: publisher,
	}
	if store != nil {
		deps.Ledger = store
	}
	sched, err := scheduler.New(deps, scheduler.OptionsFromConfig(cfg), logger)
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}

	var fetcher scheduler.SourceFetcher
	if sources != nil {
		fetcher = sources
	}
	detector := scheduler.NewDetector(reg, cfg.Ethereum.WETHAddress(), venueName, chain, fetcher, publisher, logger)

	factory := cfg.Ethereum.V2FactoryAddress()
	if venueName == token.VenueUniswapV3 {
		factory = cfg.Ethereum.V3FactoryAddress()
	}
	engine := scheduler.NewEngine(cfg.Scheduler, chain, ethereum.CreationQuery(venueName, factory), detector, sched, reg, logger)
	if err := engine.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler engine: %w", err)
	}
	defer engine.Stop()

	var ledger tradestore.Store
	if store != nil {
		ledger = store
	}
	router := newRouter(cfg, reg, ledger, engine, logger)

	return apphttp.ServeAndWait(ctx, apphttp.NewServer(&cfg.Server, router), logger, cfg.Server.ShutdownTimeout)
}

func (s *Server) openLedger(ctx context.Context, logger *zap.Logger) (*bun.DB, tradestore.Store, error) {
	if !s.cfg.Database.Enabled {
		logger.Info("Trade ledger disabled")
		return nil, nil, nil
	}
	db, err := pgutil.ConnectDB(ctx, &s.cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("connect trade ledger: %w", err)
	}
	logger.Info("Trade ledger connection established",
		zap.String("host", s.cfg.Database.Host),
		zap.String("database", s.cfg.Database.Database))
	return db, tradestore.NewStore(db), nil
}

func (s *Server) openPublisher(ctx context.Context, logger *zap.Logger) (notify.Publisher, error) {
	if !s.cfg.Redis.Enabled {
		return notify.Nop{}, nil
	}
	pub, err := notify.NewRedis(ctx, s.cfg.Redis, logger)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	logger.Info("Publishing decision events",
		zap.String("addr", s.cfg.Redis.Addr),
		zap.String("channel", s.cfg.Redis.Channel))
	return pub, nil
}

// newTrader returns the trader for the configured mode and the account dry
// runs impersonate. Production trades from the wallet, optionally through
// the private relay; simulation fills at quoted prices.
func (s *Server) newTrader(chain *ethereum.Client, venue market.Venue, gas *executor.GasStrategy, logger *zap.Logger) (executor.Trader, common.Address, func(), error) {
	cfg := s.cfg
	noop := func() {}

	if cfg.Trading.IsSimulation() {
		account := common.HexToAddress(cfg.Wallet.CandidateAddress)
		if key, err := wallet.Load(cfg.Wallet); err == nil {
			account = crypto.PubkeyToAddress(key.PublicKey)
		}
		paper := executor.NewPaperTrader(venue, chain, gas, cfg.Trading.GasLimit, logger)
		logger.Info("Paper trading", zap.String("account", account.Hex()))
		return executor.NewLog(paper, logger), account, noop, nil
	}

	key, err := wallet.Load(cfg.Wallet)
	if err != nil {
		return nil, common.Address{}, noop, fmt.Errorf("load wallet: %w", err)
	}

	opts := executor.Options{
		Slippage:       cfg.Trading.SlippagePolicy(),
		GasLimit:       cfg.Trading.GasLimit,
		DeadlineWindow: cfg.Trading.DeadlineWindow,
	}
	closeRelay := noop
	if cfg.Trading.Relay.Enabled {
		fb, err := dialRelay(cfg.Trading.Relay, logger)
		if err != nil {
			return nil, common.Address{}, noop, err
		}
		closeRelay = func() { _ = fb.Close() }
		opts.Relay = &executor.RelayOptions{
			Bundler:      fb,
			TipPercent:   cfg.Trading.Relay.TipPercent,
			TargetBlocks: cfg.Trading.Relay.TargetBlocks,
		}
	}

	live := executor.New(ethereum.NewWallet(chain, key), venue, gas, executor.NewNonceManager(), opts, logger)
	logger.Info("Live trading",
		zap.String("account", live.AccountAddress().Hex()),
		zap.Bool("relay", opts.Relay != nil))
	return executor.NewLog(live, logger), live.AccountAddress(), closeRelay, nil
}

// dialRelay connects to the bundle relay. Without a configured signing key
// an ephemeral searcher identity is generated.
func dialRelay(cfg config.RelayConfig, logger *zap.Logger) (*relay.Flashbots, error) {
	var (
		key *ecdsa.PrivateKey
		err error
	)
	if cfg.SigningKey != "" {
		key, err = wallet.ParsePrivateKey(cfg.SigningKey)
	} else {
		key, err = crypto.GenerateKey()
	}
	if err != nil {
		return nil, fmt.Errorf("relay signing key: %w", err)
	}
	fb, err := relay.Dial(cfg.URL, key, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("Private relay enabled",
		zap.String("url", cfg.URL),
		zap.String("searcher", crypto.PubkeyToAddress(key.PublicKey).Hex()))
	return fb, nil
}

func (s *Server) newPipeline(
	reg *registry.Registry,
	chain *ethereum.Client,
	venue market.Venue,
	gas *executor.GasStrategy,
	account common.Address,
	sources *reputation.Etherscan,
	logger *zap.Logger,
) (*validation.Pipeline, error) {
	cfg := s.cfg

	thresholds, err := cfg.Liquidity.Thresholds()
	if err != nil {
		return nil, err
	}

	env := simulation.NewEnvironment(cfg.Simulation, logger)
	dryRun := validation.NewForkDryRun(
		validation.FromEnvironment(env),
		validation.VenuesAt(cfg.Ethereum.VenueAddresses()),
		gas,
		validation.ForkDryRunOptions{
			Account:        account,
			Funding:        cfg.Validation.SimulationFundingWei(),
			BuyAmount:      cfg.Validation.SimulationBuyAmountWei(),
			Slippage:       cfg.Validation.SimulationSlippagePolicy(),
			GasLimit:       cfg.Trading.GasLimit,
			DeadlineWindow: cfg.Trading.DeadlineWindow,
		},
		logger,
	)

	deps := validation.Deps{
		Registry:  reg,
		Liquidity: venue,
		Supply:    chain,
		DryRun:    dryRun,
	}
	if sources != nil {
		deps.Sources = sources
	}
	if llm := cfg.Reputation.LLM; llm.APIKey != "" {
		deps.Reviewer = reputation.NewCodeReviewer(llm.URL, llm.APIKey, llm.Model, llm.Timeout)
	} else {
		logger.Warn("No code reviewer configured, honeypot review is skipped")
	}
	if m := cfg.Reputation.Moralis; m.APIKey != "" {
		deps.Holders = reputation.NewMoralis(m.URL, m.APIKey, cfg.Ethereum.MoralisChain(), m.Timeout)
	} else {
		logger.Warn("No holder API configured, holder concentration is skipped")
	}

	pipeline, err := validation.NewPipeline(cfg.Validation, thresholds, deps, logger)
	if err != nil {
		return nil, fmt.Errorf("create validation pipeline: %w", err)
	}
	return pipeline, nil
}

// transitionLogger counts every lifecycle transition and logs it as a decision.
func transitionLogger(logger *zap.Logger) registry.TransitionHook {
	return func(t token.Token, from, to token.State) {
		metrics.StateTransitions.WithLabelValues(from.String(), to.String()).Inc()
		fields := []zap.Field{
			zap.String("token", t.Label()),
			zap.String("address", t.Address),
			zap.Stringer("from", from),
			zap.Stringer("to", to),
		}
		if to == token.Removed && t.RemovalReason != "" {
			fields = append(fields, zap.String("reason", t.RemovalReason))
		}
		logger.Info("Token state changed", fields...)
	}
}
