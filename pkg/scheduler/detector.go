package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/apmfree78/snipper-sub000/internal/metrics"
	"github.com/apmfree78/snipper-sub000/pkg/ethereum"
	"github.com/apmfree78/snipper-sub000/pkg/ethereum/contracts"
	"github.com/apmfree78/snipper-sub000/pkg/notify"
	"github.com/apmfree78/snipper-sub000/pkg/registry"
	"github.com/apmfree78/snipper-sub000/pkg/token"
)

// MetadataReader reads ERC-20 name, symbol and decimals.
type MetadataReader interface {
	TokenMetadata(ctx context.Context, token common.Address) (contracts.Metadata, error)
}

// SourceFetcher returns verified contract source, empty when unverified.
type SourceFetcher interface {
	SourceCode(ctx context.Context, address common.Address) (string, error)
}

// Detector turns pool creation logs into registry entries.
type Detector struct {
	registry  *registry.Registry
	base      common.Address
	venue     token.Venue
	metadata  MetadataReader
	sources   SourceFetcher
	publisher notify.Publisher
	now       func() time.Time
	logger    *zap.Logger
}

// NewDetector creates a detector for pools of venue paired with base.
// sources may be nil, in which case source code is left for validation to fetch.
func NewDetector(
	reg *registry.Registry,
	base common.Address,
	venue token.Venue,
	metadata MetadataReader,
	sources SourceFetcher,
	publisher notify.Publisher,
	logger *zap.Logger,
) *Detector {
	if publisher == nil {
		publisher = notify.Nop{}
	}
	return &Detector{
		registry:  reg,
		base:      base,
		venue:     venue,
		metadata:  metadata,
		sources:   sources,
		publisher: publisher,
		now:       time.Now,
		logger:    logger,
	}
}

// Handle processes one log. Undecodable logs are counted and returned as
// errors; logs that do not name a new token paired with base are ignored.
func (d *Detector) Handle(ctx context.Context, log types.Log) error {
	ev, err := ethereum.Decode(log)
	if err != nil {
		metrics.DecodeErrors.WithLabelValues(decodeReason(err)).Inc()
		return fmt.Errorf("decode log %s/%d: %w", log.TxHash.Hex(), log.Index, err)
	}
	if ev.Venue != d.venue {
		return nil
	}

	addr, isToken0, ok := ev.NewToken(d.base)
	if !ok {
		d.logger.Debug("Pool not paired with base asset",
			zap.String("pool", ev.Pool.Hex()),
			zap.String("token0", ev.Token0.Hex()),
			zap.String("token1", ev.Token1.Hex()))
		return nil
	}
	if _, tracked := d.registry.Get(addr.Hex()); tracked {
		return nil
	}

	md, err := d.metadata.TokenMetadata(ctx, addr)
	if err != nil {
		return fmt.Errorf("read metadata of %s: %w", addr.Hex(), err)
	}

	var source string
	if d.sources != nil {
		source, err = d.sources.SourceCode(ctx, addr)
		if err != nil {
			return fmt.Errorf("fetch source of %s: %w", addr.Hex(), err)
		}
	}

	tok := token.New(addr, ev.Pool, ev.Venue, d.now())
	tok.Name = md.Name
	tok.Symbol = md.Symbol
	tok.Decimals = md.Decimals
	tok.IsToken0 = isToken0
	tok.Fee = ev.Fee
	tok.TickSpacing = ev.TickSpacing
	tok.SourceCode = source

	stored := d.registry.InsertOrGet(tok)
	if stored.State != token.Detected || !stored.DetectedAt.Equal(tok.DetectedAt) {
		return nil
	}

	metrics.TokensDetected.WithLabelValues(string(ev.Venue)).Inc()
	d.logger.Info("Token detected",
		zap.String("token", stored.Label()),
		zap.String("address", stored.Address),
		zap.String("pool", stored.PoolAddress),
		zap.String("venue", string(stored.Venue)),
		zap.Uint64("block", ev.BlockNumber),
		zap.Bool("verified_source", source != ""))
	publish(ctx, d.publisher, d.logger, notify.KindDetected, stored, "", d.now())
	return nil
}

func decodeReason(err error) string {
	switch {
	case errors.Is(err, ethereum.ErrMalformedData):
		return "malformed_data"
	case errors.Is(err, ethereum.ErrUnexpectedTopics):
		return "unexpected_topics"
	default:
		return "other"
	}
}

func publish(ctx context.Context, p notify.Publisher, logger *zap.Logger, kind notify.Kind, tok token.Token, detail string, at time.Time) {
	err := p.Publish(ctx, notify.Event{
		Kind:   kind,
		Token:  tok.Address,
		Name:   tok.Name,
		Symbol: tok.Symbol,
		State:  tok.State.String(),
		Detail: detail,
		At:     at.UTC(),
	})
	if err != nil {
		logger.Warn("Failed to publish event",
			zap.String("kind", string(kind)),
			zap.String("address", tok.Address),
			zap.Error(err))
	}
}
