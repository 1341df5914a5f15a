package config

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/apmfree78/snipper-sub000/pkg/market"
)

// ChainPreset holds the canonical Uniswap deployment for a network.
type ChainPreset struct {
	ChainID   int64
	WETH      string
	V2Factory string
	V2Router  string
	V3Factory string
	V3Router  string
	V3Quoter  string
	// chain name used by the holder API
	Moralis string
}

var chainPresets = map[string]ChainPreset{
	"mainnet": {
		ChainID:   1,
		WETH:      "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2",
		V2Factory: "0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f",
		V2Router:  "0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D",
		V3Factory: "0x1F98431c8aD98523631AE4a59f267346ea31F984",
		V3Router:  "0x68b3465833fb72A70ecDF485E0e4C7bD8665Fc45",
		V3Quoter:  "0x61fFE014bA17989E743c5F6cB21bF9697530B21e",
		Moralis:   "eth",
	},
	"sepolia": {
		ChainID:   11155111,
		WETH:      "0xfFf9976782d46CC05630D1f6eBAb18b2324d6B14",
		V2Factory: "0xF62c03E08ada871A0bEb309762E260a7a6a880E6",
		V2Router:  "0xeE567Fe1712Faf6149d80dA1E6934E354124CfE3",
		V3Factory: "0x0227628f3F023bb0B980b67D528571c95c6DaC1c",
		V3Router:  "0x3bFA4769FB09eefC5a80d6E87c3B9C650f7Ae48E",
		V3Quoter:  "0xEd1f6473345F45b75F8179591dd5bA1888cf2FB3",
		Moralis:   "sepolia",
	},
	"base": {
		ChainID:   8453,
		WETH:      "0x4200000000000000000000000000000000000006",
		V2Factory: "0x8909Dc15e40173Ff4699343b6eB8132c65e18eC6",
		V2Router:  "0x4752ba5DBc23f44D87826276BF6Fd6b1C372aD24",
		V3Factory: "0x33128a8fC17869897dcE68Ed026d694621f6FDfD",
		V3Router:  "0x2626664c2603336E57B271c5C0b26F421741e481",
		V3Quoter:  "0x3d4e44Eb1374240CE5F1B871ab261CD16335B76a",
		Moralis:   "base",
	},
}

// Preset returns the deployment for a named chain.
func Preset(chain string) (ChainPreset, bool) {
	p, ok := chainPresets[chain]
	return p, ok
}

// applyChainPreset fills unset addresses from the named chain and checks the result.
func applyChainPreset(cfg *EthereumConfig) error {
	p, ok := chainPresets[cfg.Chain]
	if !ok {
		return fmt.Errorf("unknown chain %q", cfg.Chain)
	}
	if cfg.ChainID == 0 {
		cfg.ChainID = p.ChainID
	}
	fill := func(dst *string, v string) {
		if *dst == "" {
			*dst = v
		}
	}
	fill(&cfg.WETH, p.WETH)
	fill(&cfg.V2Factory, p.V2Factory)
	fill(&cfg.V2Router, p.V2Router)
	fill(&cfg.V3Factory, p.V3Factory)
	fill(&cfg.V3Router, p.V3Router)
	fill(&cfg.V3Quoter, p.V3Quoter)

	for name, addr := range map[string]string{
		"weth":       cfg.WETH,
		"v2_factory": cfg.V2Factory,
		"v2_router":  cfg.V2Router,
		"v3_factory": cfg.V3Factory,
		"v3_router":  cfg.V3Router,
		"v3_quoter":  cfg.V3Quoter,
	} {
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("ethereum.%s: invalid address %q", name, addr)
		}
	}
	return nil
}

// Address helpers used when wiring contracts.
func (c *EthereumConfig) WETHAddress() common.Address      { return common.HexToAddress(c.WETH) }
func (c *EthereumConfig) V2FactoryAddress() common.Address { return common.HexToAddress(c.V2Factory) }
func (c *EthereumConfig) V2RouterAddress() common.Address  { return common.HexToAddress(c.V2Router) }
func (c *EthereumConfig) V3FactoryAddress() common.Address { return common.HexToAddress(c.V3Factory) }
func (c *EthereumConfig) V3RouterAddress() common.Address  { return common.HexToAddress(c.V3Router) }
func (c *EthereumConfig) V3QuoterAddress() common.Address  { return common.HexToAddress(c.V3Quoter) }

// MoralisChain returns the holder API chain name for the configured chain.
func (c *EthereumConfig) MoralisChain() string {
	return chainPresets[c.Chain].Moralis
}

// VenueAddresses returns the router and quoter addresses used to trade.
func (c *EthereumConfig) VenueAddresses() market.Addresses {
	return market.Addresses{
		WETH:     c.WETHAddress(),
		V2Router: c.V2RouterAddress(),
		V3Router: c.V3RouterAddress(),
		V3Quoter: c.V3QuoterAddress(),
	}
}
