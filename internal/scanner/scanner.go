package scanner

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"auctionscan/internal/chain"
	"auctionscan/internal/metrics"
	"auctionscan/internal/model"
	"auctionscan/internal/pipeline"
	"auctionscan/internal/store"
)

// LogSource is the chain surface the scanner reads from. chain.Client
// implements it; tests substitute a fake.
type LogSource interface {
	GetChainID(ctx context.Context) (*big.Int, error)
	LatestBlockNumber(ctx context.Context) (uint64, error)
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error)
}

// AuctionRefresher rebuilds one auction's full materialized view. The
// reconstructor implements it; the scanner calls it once per scan so auction
// metadata decoded with default decimals gets refined from on-chain reads.
type AuctionRefresher interface {
	Materialize(ctx context.Context, chainID uint64, address string) (*model.AuctionSnapshot, error)
}

// Config holds runtime settings for a scan.
type Config struct {
	FromBlock         uint64
	ToBlock           uint64
	Addresses         []common.Address
	Topic0            []common.Hash
	BatchSize         uint64
	MinChunk          uint64
	CheckpointPath    string
	CheckpointEnabled bool
	MaxRetries        int
	RetryBackoff      time.Duration
}

// Summary is the result of one scan.
type Summary struct {
	BlocksScanned uint64           `json:"blocks_scanned"`
	RangesSplit   int              `json:"ranges_split"`
	Logs          pipeline.Summary `json:"logs"`
}

// Scanner pulls historical logs over a block range and feeds them through the
// shared pipeline. Ranges a provider rejects as too large are sub-divided and
// re-queued in place, so logs are still processed in ascending block order.
type Scanner struct {
	cfg        Config
	source     LogSource
	pipe       *pipeline.Pipeline
	store      store.Store
	refresher  AuctionRefresher
	logger     *zap.Logger
	checkpoint *CheckpointStore
}

// New builds a Scanner with its dependencies. refresher may be nil; auctions
// then get a block-derived status refresh only.
func New(cfg Config, source LogSource, pipe *pipeline.Pipeline, st store.Store, refresher AuctionRefresher, logger *zap.Logger) *Scanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scanner{
		cfg:        cfg,
		source:     source,
		pipe:       pipe,
		store:      st,
		refresher:  refresher,
		logger:     logger,
		checkpoint: NewCheckpointStore(cfg.CheckpointPath, cfg.CheckpointEnabled),
	}
}

// Run executes the scan loop.
func (s *Scanner) Run(ctx context.Context) (Summary, error) {
	var summary Summary

	if s.source == nil {
		return summary, fmt.Errorf("log source is nil")
	}
	if s.pipe == nil {
		return summary, fmt.Errorf("pipeline is nil")
	}
	if s.cfg.BatchSize == 0 {
		return summary, fmt.Errorf("batch size must be greater than zero")
	}
	if len(s.cfg.Addresses) == 0 {
		return summary, fmt.Errorf("at least one address is required")
	}

	chainID, err := s.source.GetChainID(ctx)
	if err != nil {
		return summary, fmt.Errorf("get chain id: %w", err)
	}
	if !chainID.IsUint64() {
		return summary, fmt.Errorf("chain id does not fit in uint64: %s", chainID)
	}
	chainIDValue := chainID.Uint64()

	from := s.cfg.FromBlock
	to := s.cfg.ToBlock
	if to == 0 {
		latest, err := s.source.LatestBlockNumber(ctx)
		if err != nil {
			return summary, fmt.Errorf("get latest block: %w", err)
		}
		to = latest
	}

	if s.checkpoint != nil {
		cp, ok, err := s.checkpoint.Load()
		if err != nil {
			return summary, err
		}
		if ok && cp.LastProcessedBlock >= from {
			from = cp.LastProcessedBlock + 1
			s.logger.Info("resume from checkpoint", zap.Uint64("last_processed", cp.LastProcessedBlock), zap.Uint64("from", from))
		}
	}

	if from > to {
		s.logger.Info("nothing to scan", zap.Uint64("from", from), zap.Uint64("to", to))
		return summary, nil
	}

	queue, err := SplitRange(from, to, s.cfg.BatchSize)
	if err != nil {
		return summary, err
	}

	for len(queue) > 0 {
		select {
		case <-ctx.Done():
			return summary, ctx.Err()
		default:
		}

		blockRange := queue[0]
		queue = queue[1:]

		logs, err := s.fetchLogs(ctx, blockRange)
		if err != nil {
			suggested, tooLarge := chain.IsRangeTooLarge(err)
			if !tooLarge {
				return summary, fmt.Errorf("filter logs [%d, %d]: %w", blockRange.From, blockRange.To, err)
			}

			sub, splitErr := subdivide(blockRange, suggested, s.cfg.MinChunk)
			if splitErr != nil {
				return summary, fmt.Errorf("%v: %w", splitErr, err)
			}
			queue = append(sub, queue...)
			summary.RangesSplit++
			metrics.RangeSplitsTotal.Inc()
			s.logger.Info("range subdivided",
				zap.Uint64("from", blockRange.From),
				zap.Uint64("to", blockRange.To),
				zap.Uint64("suggested", suggested),
				zap.Int("pieces", len(sub)),
			)
			continue
		}

		for _, log := range logs {
			raw, err := s.buildRawLog(ctx, chainIDValue, log)
			if err != nil {
				return summary, err
			}
			res, err := s.pipe.ProcessLog(ctx, raw, model.SourcePull)
			if err != nil {
				return summary, fmt.Errorf("process log %s/%d: %w", log.TxHash.Hex(), log.Index, err)
			}
			summary.Logs.Add(res)
		}

		if s.checkpoint != nil {
			if err := s.checkpoint.Save(blockRange.To); err != nil {
				return summary, err
			}
		}

		summary.BlocksScanned += blockRange.Size()
		metrics.BlocksScanned.Add(float64(blockRange.Size()))
		s.logger.Info("range complete",
			zap.Uint64("from", blockRange.From),
			zap.Uint64("to", blockRange.To),
			zap.Int("logs", len(logs)),
		)
	}

	if err := s.refreshStatuses(ctx, chainIDValue, to); err != nil {
		return summary, err
	}
	return summary, nil
}

// refreshStatuses runs the post-scan refresh: a full reconstruction per
// auction when a refresher is wired, otherwise advancing block-derived
// statuses to the scan head. Event-driven transitions (graduation) are never
// overwritten backwards either way.
func (s *Scanner) refreshStatuses(ctx context.Context, chainID, head uint64) error {
	if s.store == nil {
		return nil
	}
	auctions, err := s.store.ListAuctions(ctx, chainID)
	if err != nil {
		return fmt.Errorf("list auctions: %w", err)
	}
	for i := range auctions {
		auction := auctions[i]

		if s.refresher != nil && auction.CreatedLogID != 0 {
			if _, err := s.refresher.Materialize(ctx, chainID, auction.Address); err != nil {
				s.logger.Warn("auction refresh failed",
					zap.String("auction", auction.Address),
					zap.Error(err),
				)
			} else {
				continue
			}
		}

		next := model.StatusForBlock(auction.Status, head, auction.StartBlock, auction.EndBlock, auction.ClaimBlock)
		if next == auction.Status {
			continue
		}
		auction.Status = next
		if err := s.store.UpsertAuction(ctx, &auction); err != nil {
			return fmt.Errorf("refresh auction %s: %w", auction.Address, err)
		}
		s.logger.Info("auction status advanced",
			zap.String("auction", auction.Address),
			zap.String("status", string(next)),
			zap.Uint64("head", head),
		)
	}
	return nil
}

func (s *Scanner) fetchLogs(ctx context.Context, blockRange BlockRange) ([]types.Log, error) {
	permanent := func(err error) bool {
		_, tooLarge := chain.IsRangeTooLarge(err)
		return tooLarge
	}

	var logs []types.Log
	err := withRetry(ctx, s.cfg.MaxRetries, s.cfg.RetryBackoff, permanent, func(ctx context.Context) error {
		var err error
		logs, err = s.source.FilterLogs(ctx, blockRange.From, blockRange.To, s.cfg.Addresses, s.cfg.Topic0)
		if err != nil && !permanent(err) {
			s.logger.Warn("filter logs failed", zap.Error(err), zap.Uint64("from", blockRange.From), zap.Uint64("to", blockRange.To))
		}
		return err
	})
	return logs, err
}

func (s *Scanner) buildRawLog(ctx context.Context, chainID uint64, log types.Log) (model.RawLog, error) {
	var ts uint64
	err := withRetry(ctx, s.cfg.MaxRetries, s.cfg.RetryBackoff, nil, func(ctx context.Context) error {
		var err error
		ts, err = s.source.BlockTimestamp(ctx, log.BlockNumber)
		if err != nil {
			s.logger.Warn("block timestamp fetch failed", zap.Error(err), zap.Uint64("block_number", log.BlockNumber))
		}
		return err
	})
	if err != nil {
		return model.RawLog{}, fmt.Errorf("block timestamp %d: %w", log.BlockNumber, err)
	}

	topics := make([]string, 0, len(log.Topics))
	for _, topic := range log.Topics {
		topics = append(topics, topic.Hex())
	}
	return model.RawLog{
		ChainID:     chainID,
		BlockNumber: log.BlockNumber,
		BlockHash:   log.BlockHash.Hex(),
		TxHash:      log.TxHash.Hex(),
		TxIndex:     uint64(log.TxIndex),
		LogIndex:    uint64(log.Index),
		Address:     log.Address.Hex(),
		Topics:      topics,
		Data:        hexutil.Encode(log.Data),
		Removed:     log.Removed,
		Timestamp:   ts,
	}, nil
}
