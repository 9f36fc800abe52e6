package reconstruct

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"auctionscan/internal/chain"
	"auctionscan/internal/decode"
	"auctionscan/internal/metrics"
	"auctionscan/internal/model"
	"auctionscan/internal/numeric"
	"auctionscan/internal/registry"
	"auctionscan/internal/store"
	"auctionscan/internal/tokenmeta"
)

const priceFractionalBits = 96

// ChainReader is the chain surface reconstruction needs: the creation
// receipt, the scan head, and eth_call for ERC-20 reads.
type ChainReader interface {
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	LatestBlockNumber(ctx context.Context) (uint64, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Reconstructor rebuilds an auction's materialized view from its creation
// transaction: re-decodes the on-chain configuration, refines token and
// currency decimals from ERC-20 reads, and recomputes the money fields the
// event handlers had to derive with default decimals.
type Reconstructor struct {
	store  store.Store
	chain  ChainReader
	meta   tokenmeta.Provider
	logger *zap.Logger
	tokens *chain.TokenInfoCache
}

// New builds a Reconstructor. meta may be nil; metadata is then skipped.
func New(st store.Store, reader ChainReader, meta tokenmeta.Provider, logger *zap.Logger) *Reconstructor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconstructor{
		store:  st,
		chain:  reader,
		meta:   meta,
		logger: logger,
		tokens: chain.NewTokenInfoCache(),
	}
}

// Snapshot rebuilds the auction without persisting anything.
func (r *Reconstructor) Snapshot(ctx context.Context, chainID uint64, address string) (*model.AuctionSnapshot, error) {
	auction, err := r.store.GetAuction(ctx, chainID, address)
	if err != nil {
		return nil, fmt.Errorf("load auction: %w", err)
	}
	if auction == nil {
		return nil, fmt.Errorf("auction %s is not ingested on chain %d", address, chainID)
	}
	if auction.CreatedLogID == 0 {
		return nil, fmt.Errorf("auction %s has no recorded creation log", address)
	}

	created, err := r.store.GetLogByID(ctx, auction.CreatedLogID)
	if err != nil {
		return nil, fmt.Errorf("load creation log: %w", err)
	}
	if created == nil {
		return nil, fmt.Errorf("creation log %d is missing", auction.CreatedLogID)
	}

	receipt, err := r.chain.TransactionReceipt(ctx, common.HexToHash(created.LogKey.TxHash))
	if err != nil {
		return nil, fmt.Errorf("creation receipt %s: %w", created.LogKey.TxHash, err)
	}

	cfg, err := configFromReceipt(receipt, address)
	if err != nil {
		return nil, err
	}

	tokenInfo := r.tokenInfo(ctx, cfg.Token)
	currencyInfo := r.tokenInfo(ctx, cfg.Currency)

	refined := *auction
	refined.TokenAddress = cfg.Token.Hex()
	refined.TokenName = tokenInfo.Name
	refined.TokenSymbol = tokenInfo.Symbol
	refined.TokenDecimals = tokenInfo.Decimals
	refined.Currency = cfg.Currency.Hex()
	refined.CurrencyDecimal = currencyInfo.Decimals
	refined.FloorPrice = numeric.FixedPointToDecimal(cfg.FloorPrice, priceFractionalBits, tokenInfo.Decimals-currencyInfo.Decimals)
	refined.TargetRaise = numeric.RawAmountToDecimal(cfg.TargetRaise, currencyInfo.Decimals)
	refined.TotalSupply = numeric.RawAmountToDecimal(cfg.TotalSupply, tokenInfo.Decimals)
	refined.StartBlock = cfg.StartBlock
	refined.EndBlock = cfg.EndBlock
	refined.ClaimBlock = cfg.ClaimBlock

	pool := numeric.ApplyBps(cfg.TotalSupply, uint32(cfg.PoolShareBps))
	creator := numeric.ApplyBps(cfg.TotalSupply, uint32(cfg.CreatorShareBps))
	var supply model.SupplyBreakdown
	if cfg.TotalSupply != nil {
		held := new(big.Int).Sub(cfg.TotalSupply, pool)
		held.Sub(held, creator)
		supply = model.SupplyBreakdown{
			Auction: numeric.RawAmountToDecimal(held, tokenInfo.Decimals),
			Pool:    numeric.RawAmountToDecimal(pool, tokenInfo.Decimals),
			Creator: numeric.RawAmountToDecimal(creator, tokenInfo.Decimals),
		}
		refined.AuctionSupply = supply.Auction
		refined.PoolSupply = supply.Pool
		refined.CreatorSupply = supply.Creator
	}

	if head, err := r.chain.LatestBlockNumber(ctx); err == nil {
		refined.Status = model.StatusForBlock(refined.Status, head, refined.StartBlock, refined.EndBlock, refined.ClaimBlock)
	} else {
		r.logger.Warn("latest block unavailable, keeping stored status", zap.Error(err))
	}

	snapshot := &model.AuctionSnapshot{
		Auction:     refined,
		Supply:      supply,
		CreationTx:  created.LogKey.TxHash,
		CreationLog: created.LogKey,
	}

	if r.meta != nil {
		meta, err := r.meta.Fetch(ctx, chainID, refined.TokenAddress)
		if err != nil {
			r.logger.Warn("token metadata unavailable",
				zap.String("token", refined.TokenAddress),
				zap.Error(err),
			)
		} else {
			snapshot.Meta = meta
		}
	}

	return snapshot, nil
}

// Materialize rebuilds the auction and persists the refined view.
func (r *Reconstructor) Materialize(ctx context.Context, chainID uint64, address string) (*model.AuctionSnapshot, error) {
	snapshot, err := r.Snapshot(ctx, chainID, address)
	if err != nil {
		return nil, err
	}
	auction := snapshot.Auction
	if err := r.store.UpsertAuction(ctx, &auction); err != nil {
		return nil, fmt.Errorf("upsert auction: %w", err)
	}
	metrics.AuctionsReconstructed.Inc()
	r.logger.Info("auction reconstructed",
		zap.String("auction", auction.Address),
		zap.String("status", string(auction.Status)),
		zap.String("creation_tx", snapshot.CreationTx),
	)
	return snapshot, nil
}

// tokenInfo reads ERC-20 metadata with a per-process cache. Failures fall
// back to 18 decimals, the same default the event handlers use.
func (r *Reconstructor) tokenInfo(ctx context.Context, token common.Address) chain.TokenInfo {
	if info, ok := r.tokens.Get(token); ok {
		return info
	}
	info, err := chain.FetchTokenInfo(ctx, r.chain, token)
	if err != nil {
		r.logger.Warn("erc20 metadata read failed", zap.String("token", token.Hex()), zap.Error(err))
	}
	r.tokens.Set(token, info)
	return info
}

// configFromReceipt finds the creation event for the auction in its receipt
// and re-decodes the configuration payload from the raw log data.
func configFromReceipt(receipt *types.Receipt, auctionAddress string) (*decode.AuctionConfig, error) {
	topicHash, err := registry.TopicHashFor(registry.EventAuctionCreated)
	if err != nil {
		return nil, err
	}
	want := common.BytesToHash(common.HexToAddress(auctionAddress).Bytes())

	for _, log := range receipt.Logs {
		if log == nil || len(log.Topics) < 2 {
			continue
		}
		if !strings.EqualFold(log.Topics[0].Hex(), topicHash) {
			continue
		}
		if log.Topics[1] != want {
			continue
		}

		parsed, err := registry.AuctionABI()
		if err != nil {
			return nil, err
		}
		values := make(map[string]interface{})
		event := parsed.Events[registry.EventAuctionCreated]
		if err := event.Inputs.NonIndexed().UnpackIntoMap(values, log.Data); err != nil {
			return nil, fmt.Errorf("unpack creation data: %w", err)
		}
		configBytes, ok := values["config"].([]byte)
		if !ok {
			return nil, fmt.Errorf("creation event has no config payload")
		}
		cfg, _, err := decode.DecodeAuctionConfig(configBytes)
		if err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
		return cfg, nil
	}
	return nil, fmt.Errorf("no creation event for %s in receipt", auctionAddress)
}
