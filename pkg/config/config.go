package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math/big"
	"reflect"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/apmfree78/snipper-sub000/pkg/market"
)

const envPrefix = "SNIPER"

// Run modes
const (
	ModeProduction = "production"
	ModeSimulation = "simulation"
)

// Config represents the application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Ethereum   EthereumConfig   `mapstructure:"ethereum"`
	Wallet     WalletConfig     `mapstructure:"wallet"`
	Trading    TradingConfig    `mapstructure:"trading"`
	Liquidity  LiquidityConfig  `mapstructure:"liquidity"`
	Validation ValidationConfig `mapstructure:"validation"`
	Simulation SimulationConfig `mapstructure:"simulation"`
	Reputation ReputationConfig `mapstructure:"reputation"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host            string        `mapstructure:"host" default:"0.0.0.0"`
	Port            int           `mapstructure:"port" default:"8080" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" default:"15s"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" default:"15s"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout" default:"60s"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" default:"30s"`
}

// DatabaseConfig contains trade ledger connection settings
type DatabaseConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host" default:"localhost"`
	Port     int    `mapstructure:"port" default:"5432"`
	User     string `mapstructure:"user" default:"sniper"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database" default:"sniper"`
	SSLMode  string `mapstructure:"ssl_mode" default:"disable"`
	// MaxOpenConns bounds the ledger pool; settlement writes are serialized per token.
	MaxOpenConns int `mapstructure:"max_open_conns" default:"4" validate:"min=1"`
}

// EthereumConfig contains chain connection settings and venue contract addresses.
// Empty addresses are filled from the chain preset.
type EthereumConfig struct {
	RPCURL              string        `mapstructure:"rpc_url" validate:"required"`
	WSURL               string        `mapstructure:"ws_url"`
	Chain               string        `mapstructure:"chain" default:"mainnet" validate:"oneof=mainnet sepolia base"`
	ChainID             int64         `mapstructure:"chain_id"`
	WETH                string        `mapstructure:"weth"`
	V2Factory           string        `mapstructure:"v2_factory"`
	V2Router            string        `mapstructure:"v2_router"`
	V3Factory           string        `mapstructure:"v3_factory"`
	V3Router            string        `mapstructure:"v3_router"`
	V3Quoter            string        `mapstructure:"v3_quoter"`
	PollingInterval     time.Duration `mapstructure:"polling_interval" default:"12s"`
	ReceiptPollInterval time.Duration `mapstructure:"receipt_poll_interval" default:"2s"`
	ReceiptTimeout      time.Duration `mapstructure:"receipt_timeout" default:"3m"`
	RequestTimeout      time.Duration `mapstructure:"request_timeout" default:"15s"`
}

// WalletConfig holds the trading key, either plain hex or AES-GCM encrypted.
type WalletConfig struct {
	PrivateKey          string `mapstructure:"private_key"`
	EncryptedPrivateKey string `mapstructure:"encrypted_private_key"`
	Passphrase          string `mapstructure:"passphrase"`
	// Address used to impersonate the buyer during dry runs when no key is configured.
	CandidateAddress string `mapstructure:"candidate_address" default:"0x00000000000000000000000000000000000c0ffe"`
}

// TradingConfig contains buy/sell policy
type TradingConfig struct {
	Enabled         bool               `mapstructure:"enabled" default:"true"`
	Mode            string             `mapstructure:"mode" default:"simulation" validate:"oneof=production simulation"`
	Venue           string             `mapstructure:"venue" default:"uniswap_v2" validate:"oneof=uniswap_v2 uniswap_v3"`
	PurchaseAmount  string             `mapstructure:"purchase_amount" default:"0.01" validate:"required"`
	HoldDuration    time.Duration      `mapstructure:"hold_duration" default:"5m" validate:"gt=0"`
	Slippage        string             `mapstructure:"slippage" default:"2%"`
	GasLimit        uint64             `mapstructure:"gas_limit" default:"400000" validate:"gt=21000"`
	DeadlineWindow  time.Duration      `mapstructure:"deadline_window" default:"2m"`
	MaxSellAttempts int                `mapstructure:"max_sell_attempts" default:"3" validate:"min=1,max=255"`
	SellSchedule    SellScheduleConfig `mapstructure:"sell_schedule"`
	Gas             GasConfig          `mapstructure:"gas"`
	Relay           RelayConfig        `mapstructure:"relay"`
}

// SellScheduleConfig stages exits. With no time buckets a single bucket
// selling whatever the volume buckets leave at hold_duration is used.
type SellScheduleConfig struct {
	TimeBuckets   []TimeBucketConfig   `mapstructure:"time_buckets" validate:"dive"`
	VolumeBuckets []VolumeBucketConfig `mapstructure:"volume_buckets" validate:"dive"`
}

// percentSlack absorbs float error in bucket sums like 33.3+33.3+33.4.
const percentSlack = 1e-9

func (s SellScheduleConfig) volumePercent() float64 {
	var total float64
	for _, b := range s.VolumeBuckets {
		total += b.Percent
	}
	return total
}

// TotalPercent sums every time and volume bucket.
func (s SellScheduleConfig) TotalPercent() float64 {
	total := s.volumePercent()
	for _, b := range s.TimeBuckets {
		total += b.Percent
	}
	return total
}

// TimeBucketConfig sells Percent of the bought amount After the purchase.
type TimeBucketConfig struct {
	After   time.Duration `mapstructure:"after" validate:"gt=0"`
	Percent float64       `mapstructure:"percent" validate:"gt=0,lte=100"`
}

// VolumeBucketConfig sells Percent once the position is worth ValueMultiple times its cost.
type VolumeBucketConfig struct {
	ValueMultiple float64 `mapstructure:"value_multiple" validate:"gt=1"`
	Percent       float64 `mapstructure:"percent" validate:"gt=0,lte=100"`
}

// GasConfig tunes the EIP-1559 fee strategy
type GasConfig struct {
	BufferPercent     float64 `mapstructure:"buffer_percent" default:"12.5" validate:"gte=0"`
	JitterPercent     float64 `mapstructure:"jitter_percent" default:"5" validate:"gte=0"`
	StandardTipGwei   string  `mapstructure:"standard_tip_gwei" default:"1"`
	ElevatedTipGwei   string  `mapstructure:"elevated_tip_gwei" default:"3"`
	AggressiveTipGwei string  `mapstructure:"aggressive_tip_gwei" default:"10"`
	MaxFeeGwei        string  `mapstructure:"max_fee_gwei" default:"300"`
}

// RelayConfig contains private bundle relay settings
type RelayConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	URL          string  `mapstructure:"url" default:"https://relay.flashbots.net"`
	SigningKey   string  `mapstructure:"signing_key"`
	TipPercent   float64 `mapstructure:"tip_percent" default:"10" validate:"gte=0,lte=100"`
	TargetBlocks int     `mapstructure:"target_blocks" default:"3" validate:"min=1"`
}

// LiquidityConfig holds tier lower bounds in ETH
type LiquidityConfig struct {
	VeryLow string `mapstructure:"very_low" default:"0.5"`
	Low     string `mapstructure:"low" default:"2"`
	Medium  string `mapstructure:"medium" default:"5"`
	High    string `mapstructure:"high" default:"20"`
}

// ValidationConfig contains scam detection policy
type ValidationConfig struct {
	LockThresholdPercent float64  `mapstructure:"lock_threshold_percent" default:"90" validate:"gte=0,lte=100"`
	LockAddresses        []string `mapstructure:"lock_addresses"`
	MaxHoneypotChecks    int      `mapstructure:"max_honeypot_checks" default:"3" validate:"min=1,max=255"`
	MaxHolderChecks      int      `mapstructure:"max_holder_checks" default:"5" validate:"min=1,max=255"`
	MaxHolderPercent     float64  `mapstructure:"max_holder_percent" default:"50" validate:"gte=0,lte=100"`
	SimulationBuyAmount  string   `mapstructure:"simulation_buy_amount" default:"0.01"`
	SimulationSlippage   string   `mapstructure:"simulation_slippage" default:"10%"`
	SimulationFunding    string   `mapstructure:"simulation_funding" default:"100"`
}

// SimulationConfig controls the ephemeral fork used for dry runs
type SimulationConfig struct {
	AnvilPath      string        `mapstructure:"anvil_path" default:"anvil"`
	ForkURL        string        `mapstructure:"fork_url"`
	SharedRPCURL   string        `mapstructure:"shared_rpc_url"`
	StartupTimeout time.Duration `mapstructure:"startup_timeout" default:"20s"`
	BasePort       int           `mapstructure:"base_port" default:"18545"`
}

// APIConfig describes one third-party HTTP API
type APIConfig struct {
	URL     string        `mapstructure:"url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout" default:"10s"`
}

// LLMConfig describes the code review endpoint
type LLMConfig struct {
	APIConfig `mapstructure:",squash"`
	Model     string `mapstructure:"model" default:"gpt-4o-mini"`
}

// ReputationConfig groups the reputation APIs
type ReputationConfig struct {
	Etherscan APIConfig `mapstructure:"etherscan"`
	Moralis   APIConfig `mapstructure:"moralis"`
	LLM       LLMConfig `mapstructure:"llm"`
}

// SchedulerConfig tunes the lifecycle sweep
type SchedulerConfig struct {
	MaxFailureRate float64       `mapstructure:"max_failure_rate" default:"0.5" validate:"gte=0,lte=1"`
	TaskTimeout    time.Duration `mapstructure:"task_timeout" default:"2m"`
	// Backoff between resubscriptions of a failed chain stream, doubling up to the max.
	ResubscribeDelay    time.Duration `mapstructure:"resubscribe_delay" default:"1s" validate:"gt=0"`
	MaxResubscribeDelay time.Duration `mapstructure:"max_resubscribe_delay" default:"30s" validate:"gtefield=ResubscribeDelay"`
}

// RedisConfig contains decision event publishing settings
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr" default:"localhost:6379"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Channel  string `mapstructure:"channel" default:"sniper:events"`
}

// MonitoringConfig contains monitoring and metrics settings
type MonitoringConfig struct {
	Enabled bool `mapstructure:"enabled" default:"true"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `mapstructure:"level" default:"info"`
	Format     string `mapstructure:"format" default:"json" validate:"oneof=json console"`
	OutputPath string `mapstructure:"output_path" default:"stdout"`
}

// Load loads configuration from defaults, the YAML file at configPath
// (optional), a .env file and SNIPER_* environment variables.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvs(v, reflect.TypeOf(Config{}), "")

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := applyChainPreset(&cfg.Ethereum); err != nil {
		return nil, err
	}
	applyPolicyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// bindEnvs registers every leaf key so AutomaticEnv can override keys that
// are absent from the file.
func bindEnvs(v *viper.Viper, t reflect.Type, prefix string) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := strings.Split(f.Tag.Get("mapstructure"), ",")
		name := tag[0]
		squash := len(tag) > 1 && tag[1] == "squash"

		key := name
		if prefix != "" && name != "" {
			key = prefix + "." + name
		} else if name == "" {
			key = prefix
		}

		if f.Type.Kind() == reflect.Struct && f.Type != reflect.TypeOf(time.Duration(0)) {
			if squash {
				bindEnvs(v, f.Type, prefix)
			} else {
				bindEnvs(v, f.Type, key)
			}
			continue
		}
		if key != "" {
			_ = v.BindEnv(key)
		}
	}
}

func applyPolicyDefaults(cfg *Config) {
	if len(cfg.Validation.LockAddresses) == 0 {
		cfg.Validation.LockAddresses = DefaultLockAddresses()
	}
	for i, addr := range cfg.Validation.LockAddresses {
		cfg.Validation.LockAddresses[i] = strings.ToLower(strings.TrimSpace(addr))
	}
	fill := func(dst *string, v string) {
		if *dst == "" {
			*dst = v
		}
	}
	fill(&cfg.Reputation.Etherscan.URL, "https://api.etherscan.io/v2/api")
	fill(&cfg.Reputation.Moralis.URL, "https://deep-index.moralis.io/api/v2.2")
	fill(&cfg.Reputation.LLM.URL, "https://api.openai.com/v1")
	if cfg.Simulation.ForkURL == "" {
		cfg.Simulation.ForkURL = cfg.Ethereum.RPCURL
	}
	if len(cfg.Trading.SellSchedule.TimeBuckets) == 0 {
		rest := 100 - cfg.Trading.SellSchedule.volumePercent()
		cfg.Trading.SellSchedule.TimeBuckets = []TimeBucketConfig{{After: cfg.Trading.HoldDuration, Percent: rest}}
	}
}

// DefaultLockAddresses are burn addresses and well-known LP lockers.
func DefaultLockAddresses() []string {
	return []string{
		"0x000000000000000000000000000000000000dead",
		"0x0000000000000000000000000000000000000000",
		"0x663a5c229c09b049e36dcc11a9b0d4a8eb9db214", // unicrypt v2
		"0xe2fe530c047f2d85298b07d9333c05737f1435fb", // team finance
		"0x71b5759d73262fbb223956913ecf4ecc51057641", // pinklock
	}
}

var structValidator = validator.New()

func validate(cfg *Config) error {
	if err := structValidator.Struct(cfg); err != nil {
		return err
	}

	if cfg.Trading.Mode == ModeProduction && cfg.Wallet.PrivateKey == "" && cfg.Wallet.EncryptedPrivateKey == "" {
		return fmt.Errorf("wallet.private_key or wallet.encrypted_private_key is required in production mode")
	}
	if cfg.Wallet.EncryptedPrivateKey != "" && cfg.Wallet.Passphrase == "" {
		return fmt.Errorf("wallet.passphrase is required with wallet.encrypted_private_key")
	}
	if cfg.Trading.Relay.Enabled && cfg.Trading.Mode == ModeProduction && cfg.Trading.Relay.URL == "" {
		return fmt.Errorf("trading.relay.url is required when the relay is enabled")
	}
	if cfg.Database.Enabled && cfg.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if total := cfg.Trading.SellSchedule.TotalPercent(); total > 100+percentSlack {
		return fmt.Errorf("trading.sell_schedule: bucket percents sum to %g, at most 100 allowed", total)
	}

	for name, amount := range map[string]string{
		"trading.purchase_amount":          cfg.Trading.PurchaseAmount,
		"validation.simulation_buy_amount": cfg.Validation.SimulationBuyAmount,
		"validation.simulation_funding":    cfg.Validation.SimulationFunding,
	} {
		wei, err := market.ParseEther(amount)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if wei.Sign() <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}

	if _, err := market.ParseSlippage(cfg.Trading.Slippage); err != nil {
		return fmt.Errorf("trading.slippage: %w", err)
	}
	if _, err := market.ParseSlippage(cfg.Validation.SimulationSlippage); err != nil {
		return fmt.Errorf("validation.simulation_slippage: %w", err)
	}
	if _, err := cfg.Liquidity.Thresholds(); err != nil {
		return err
	}
	if _, err := cfg.Trading.Gas.Tips(); err != nil {
		return err
	}
	return nil
}

// PurchaseAmountWei returns the configured buy size in wei.
func (c *TradingConfig) PurchaseAmountWei() *big.Int {
	wei, _ := market.ParseEther(c.PurchaseAmount)
	return wei
}

// SlippagePolicy returns the parsed trading slippage.
func (c *TradingConfig) SlippagePolicy() market.Slippage {
	s, _ := market.ParseSlippage(c.Slippage)
	return s
}

// IsSimulation reports whether trades are dry-run equivalents.
func (c *TradingConfig) IsSimulation() bool {
	return c.Mode == ModeSimulation
}

// SimulationBuyAmountWei returns the dry-run buy size in wei.
func (c *ValidationConfig) SimulationBuyAmountWei() *big.Int {
	wei, _ := market.ParseEther(c.SimulationBuyAmount)
	return wei
}

// SimulationFundingWei returns the synthetic balance given to the dry-run account.
func (c *ValidationConfig) SimulationFundingWei() *big.Int {
	wei, _ := market.ParseEther(c.SimulationFunding)
	return wei
}

// SimulationSlippagePolicy returns the slippage used on the fork.
func (c *ValidationConfig) SimulationSlippagePolicy() market.Slippage {
	s, _ := market.ParseSlippage(c.SimulationSlippage)
	return s
}

// Thresholds converts the ETH bounds into market thresholds.
func (c *LiquidityConfig) Thresholds() (market.Thresholds, error) {
	var t market.Thresholds
	var err error
	if t.VeryLow, err = market.ParseEther(c.VeryLow); err != nil {
		return t, fmt.Errorf("liquidity.very_low: %w", err)
	}
	if t.Low, err = market.ParseEther(c.Low); err != nil {
		return t, fmt.Errorf("liquidity.low: %w", err)
	}
	if t.Medium, err = market.ParseEther(c.Medium); err != nil {
		return t, fmt.Errorf("liquidity.medium: %w", err)
	}
	if t.High, err = market.ParseEther(c.High); err != nil {
		return t, fmt.Errorf("liquidity.high: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, err
	}
	return t, nil
}

// FeeTips holds the per-tier priority fees and the fee cap in wei.
type FeeTips struct {
	Standard   *big.Int
	Elevated   *big.Int
	Aggressive *big.Int
	MaxFee     *big.Int
}

// Tips converts the gwei settings into wei.
func (c *GasConfig) Tips() (FeeTips, error) {
	var tips FeeTips
	fields := []struct {
		name string
		raw  string
		dst  **big.Int
	}{
		{"standard_tip_gwei", c.StandardTipGwei, &tips.Standard},
		{"elevated_tip_gwei", c.ElevatedTipGwei, &tips.Elevated},
		{"aggressive_tip_gwei", c.AggressiveTipGwei, &tips.Aggressive},
		{"max_fee_gwei", c.MaxFeeGwei, &tips.MaxFee},
	}
	for _, f := range fields {
		v, err := market.ParseUnits(f.raw, 9)
		if err != nil {
			return tips, fmt.Errorf("trading.gas.%s: %w", f.name, err)
		}
		*f.dst = v
	}
	return tips, nil
}
