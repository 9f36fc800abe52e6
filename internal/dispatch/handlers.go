package dispatch

import (
	"context"
	"math/big"

	"auctionscan/internal/decode"
	"auctionscan/internal/model"
	"auctionscan/internal/numeric"
	"auctionscan/internal/registry"
)

// Prices are Q96 fixed point on chain. Token and currency decimals default
// to 18 at creation time; the reconstructor refines them from on-chain reads.
const (
	priceFractionalBits = 96
	defaultDecimals     = 18
)

func priceShift(tokenDecimals, currencyDecimals int32) int32 {
	return tokenDecimals - currencyDecimals
}

func handleAuctionCreated(ctx context.Context, d *Dispatcher, log *model.ProcessedLog) error {
	event := registry.EventAuctionCreated

	auctionAddr, err := addressParam(event, log.Params, "auction")
	if err != nil {
		return err
	}
	configBytes, err := bytesParam(event, log.Params, "config")
	if err != nil {
		return err
	}

	cfg, tier, err := decode.DecodeAuctionConfig(configBytes)
	if err != nil {
		return model.NewLogError(model.ErrDecode, event, "%v", err)
	}
	// Creation is the strict path: a schedule that does not sum to 100% is a
	// validation error here, even though the decode tiers themselves tolerate
	// any totals. Positional-tier results are partial by construction and are
	// exempt.
	if tier != decode.TierPositional {
		if err := numeric.ValidateSaleSteps(cfg.Steps); err != nil {
			return model.NewLogError(model.ErrValidation, event, "%v", err)
		}
	}

	auction := &model.Auction{
		ChainID:         log.LogKey.ChainID,
		Address:         auctionAddr.Hex(),
		Status:          model.AuctionCreated,
		TokenAddress:    cfg.Token.Hex(),
		TokenDecimals:   defaultDecimals,
		Currency:        cfg.Currency.Hex(),
		CurrencyDecimal: defaultDecimals,
		FloorPrice:      numeric.FixedPointToDecimal(cfg.FloorPrice, priceFractionalBits, priceShift(defaultDecimals, defaultDecimals)),
		TargetRaise:     numeric.RawAmountToDecimal(cfg.TargetRaise, defaultDecimals),
		TotalSupply:     numeric.RawAmountToDecimal(cfg.TotalSupply, defaultDecimals),
		StartBlock:      cfg.StartBlock,
		EndBlock:        cfg.EndBlock,
		ClaimBlock:      cfg.ClaimBlock,
		CreatedLogID:    log.ID,
	}

	pool := numeric.ApplyBps(cfg.TotalSupply, uint32(cfg.PoolShareBps))
	creator := numeric.ApplyBps(cfg.TotalSupply, uint32(cfg.CreatorShareBps))
	if cfg.TotalSupply != nil {
		held := new(big.Int).Sub(cfg.TotalSupply, pool)
		held.Sub(held, creator)
		auction.AuctionSupply = numeric.RawAmountToDecimal(held, defaultDecimals)
		auction.PoolSupply = numeric.RawAmountToDecimal(pool, defaultDecimals)
		auction.CreatorSupply = numeric.RawAmountToDecimal(creator, defaultDecimals)
	}

	if err := d.store.UpsertAuction(ctx, auction); err != nil {
		return model.NewLogError(model.ErrStore, event, "upsert auction: %v", err)
	}
	return nil
}

func handleAuctionFunded(ctx context.Context, d *Dispatcher, log *model.ProcessedLog) error {
	event := registry.EventAuctionFunded

	auction, err := requireAuction(ctx, d, event, log)
	if err != nil {
		return err
	}
	auction.Status = model.AuctionPlanned
	if err := d.store.UpsertAuction(ctx, auction); err != nil {
		return model.NewLogError(model.ErrStore, event, "upsert auction: %v", err)
	}
	return nil
}

func handleBidSubmitted(ctx context.Context, d *Dispatcher, log *model.ProcessedLog) error {
	event := registry.EventBidSubmitted

	auction, err := requireAuction(ctx, d, event, log)
	if err != nil {
		return err
	}
	bidID, err := uint64Param(event, log.Params, "bidId")
	if err != nil {
		return err
	}
	bidder, err := addressParam(event, log.Params, "bidder")
	if err != nil {
		return err
	}
	maxPriceRaw, err := bigIntParam(event, log.Params, "maxPrice")
	if err != nil {
		return err
	}
	amountRaw, err := bigIntParam(event, log.Params, "amount")
	if err != nil {
		return err
	}

	shift := priceShift(auction.TokenDecimals, auction.CurrencyDecimal)
	bid := &model.Bid{
		ChainID:        log.LogKey.ChainID,
		AuctionAddress: auction.Address,
		BidID:          bidID,
		Bidder:         bidder.Hex(),
		Status:         model.BidOpen,
		MaxPrice:       numeric.FixedPointToDecimal(maxPriceRaw, priceFractionalBits, shift),
		Amount:         numeric.RawAmountToDecimal(amountRaw, auction.TokenDecimals),
		SubmittedBlock: log.LogKey.BlockNumber,
	}
	if err := d.store.UpsertBid(ctx, bid); err != nil {
		return model.NewLogError(model.ErrStore, event, "upsert bid: %v", err)
	}
	return nil
}

func handleBidExited(ctx context.Context, d *Dispatcher, log *model.ProcessedLog) error {
	event := registry.EventBidExited

	bid, err := requireBid(ctx, d, event, log)
	if err != nil {
		return err
	}
	bid.Status = model.BidCancelled
	if err := d.store.UpsertBid(ctx, bid); err != nil {
		return model.NewLogError(model.ErrStore, event, "upsert bid: %v", err)
	}
	return nil
}

func handleTokensClaimed(ctx context.Context, d *Dispatcher, log *model.ProcessedLog) error {
	event := registry.EventTokensClaimed

	auction, err := requireAuction(ctx, d, event, log)
	if err != nil {
		return err
	}
	bid, err := requireBid(ctx, d, event, log)
	if err != nil {
		return err
	}
	filledRaw, err := bigIntParam(event, log.Params, "filledAmount")
	if err != nil {
		return err
	}

	bid.Status = model.BidClaimed
	bid.FilledAmount = numeric.RawAmountToDecimal(filledRaw, auction.TokenDecimals)
	if err := d.store.UpsertBid(ctx, bid); err != nil {
		return model.NewLogError(model.ErrStore, event, "upsert bid: %v", err)
	}
	return nil
}

func handleClearingPriceUpdated(ctx context.Context, d *Dispatcher, log *model.ProcessedLog) error {
	event := registry.EventClearingPriceUpdated

	auction, err := requireAuction(ctx, d, event, log)
	if err != nil {
		return err
	}
	priceRaw, err := bigIntParam(event, log.Params, "price")
	if err != nil {
		return err
	}
	raisedRaw, err := bigIntParam(event, log.Params, "raised")
	if err != nil {
		return err
	}

	shift := priceShift(auction.TokenDecimals, auction.CurrencyDecimal)
	price := numeric.FixedPointToDecimal(priceRaw, priceFractionalBits, shift)
	raised := numeric.RawAmountToDecimal(raisedRaw, auction.CurrencyDecimal)

	if err := d.store.AppendClearingPrice(ctx, model.ClearingPrice{
		ChainID:        log.LogKey.ChainID,
		AuctionAddress: auction.Address,
		BlockNumber:    log.LogKey.BlockNumber,
		LogIndex:       log.LogKey.LogIndex,
		Price:          price,
		RaisedAmount:   raised,
	}); err != nil {
		return model.NewLogError(model.ErrStore, event, "append clearing price: %v", err)
	}

	auction.ClearingPrice = price
	auction.RaisedAmount = raised
	if err := d.store.UpsertAuction(ctx, auction); err != nil {
		return model.NewLogError(model.ErrStore, event, "upsert auction: %v", err)
	}
	return nil
}

func handleAuctionGraduated(ctx context.Context, d *Dispatcher, log *model.ProcessedLog) error {
	event := registry.EventAuctionGraduated

	auction, err := requireAuction(ctx, d, event, log)
	if err != nil {
		return err
	}
	raisedRaw, err := bigIntParam(event, log.Params, "raised")
	if err != nil {
		return err
	}

	auction.Status = model.AuctionGraduated
	auction.RaisedAmount = numeric.RawAmountToDecimal(raisedRaw, auction.CurrencyDecimal)
	if err := d.store.UpsertAuction(ctx, auction); err != nil {
		return model.NewLogError(model.ErrStore, event, "upsert auction: %v", err)
	}
	return nil
}

func requireAuction(ctx context.Context, d *Dispatcher, event string, log *model.ProcessedLog) (*model.Auction, error) {
	addr, err := addressParam(event, log.Params, "auction")
	if err != nil {
		return nil, err
	}
	auction, err := d.store.GetAuction(ctx, log.LogKey.ChainID, addr.Hex())
	if err != nil {
		return nil, model.NewLogError(model.ErrStore, event, "load auction: %v", err)
	}
	if auction == nil {
		return nil, model.NotFound(event, "auction %s not yet ingested", addr.Hex())
	}
	return auction, nil
}

func requireBid(ctx context.Context, d *Dispatcher, event string, log *model.ProcessedLog) (*model.Bid, error) {
	addr, err := addressParam(event, log.Params, "auction")
	if err != nil {
		return nil, err
	}
	bidID, err := uint64Param(event, log.Params, "bidId")
	if err != nil {
		return nil, err
	}
	bid, err := d.store.GetBid(ctx, log.LogKey.ChainID, addr.Hex(), bidID)
	if err != nil {
		return nil, model.NewLogError(model.ErrStore, event, "load bid: %v", err)
	}
	if bid == nil {
		return nil, model.NotFound(event, "bid %d on auction %s not yet ingested", bidID, addr.Hex())
	}
	return bid, nil
}
