package dispatch

import (
	"context"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"auctionscan/internal/decode"
	"auctionscan/internal/model"
	"auctionscan/internal/numeric"
	"auctionscan/internal/registry"
	"auctionscan/internal/store"
)

var (
	testAuction = common.HexToAddress("0xAAA0000000000000000000000000000000000001")
	testToken   = common.HexToAddress("0x1000000000000000000000000000000000000001")
	testCcy     = common.HexToAddress("0x2000000000000000000000000000000000000002")
	testBidder  = common.HexToAddress("0xBBB0000000000000000000000000000000000002")
)

func recordedLog(t *testing.T, mem *store.Memory, event string, block, index uint64, params map[string]string) *model.ProcessedLog {
	t.Helper()
	log := &model.ProcessedLog{
		LogKey: model.LogKey{
			ChainID:     8453,
			BlockNumber: block,
			TxHash:      "0x" + strings.Repeat("aa", 31) + common.Bytes2Hex([]byte{byte(index)}),
			LogIndex:    index,
		},
		Address:   testAuction.Hex(),
		EventName: event,
		Params:    params,
		Source:    model.SourcePull,
	}
	if _, err := mem.RecordLog(context.Background(), log); err != nil {
		t.Fatalf("record log: %v", err)
	}
	return log
}

func creationParams(t *testing.T) map[string]string {
	t.Helper()
	floor, _ := new(big.Int).SetString("39614081257132168796771975168", 10) // 0.5 in Q96
	target, _ := new(big.Int).SetString("500000000000000000000", 10)
	supply, _ := new(big.Int).SetString("1000000000000000000000000", 10)
	cfg := decode.AuctionConfig{
		Token:           testToken,
		Currency:        testCcy,
		FloorPrice:      floor,
		TargetRaise:     target,
		TotalSupply:     supply,
		PoolShareBps:    2_000,
		CreatorShareBps: 500,
		StartBlock:      100,
		EndBlock:        200,
		ClaimBlock:      300,
		Steps: []numeric.SaleStep{
			{Rate: 50_000, BlockSpan: 100},
			{Rate: 100_000, BlockSpan: 50},
		},
	}
	data, err := decode.EncodeAuctionConfig(cfg, true)
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	return map[string]string{
		"auction":  testAuction.Hex(),
		"token":    testToken.Hex(),
		"creator":  testBidder.Hex(),
		"currency": testCcy.Hex(),
		"config":   hexutil.Encode(data),
	}
}

func TestHandleAuctionCreated(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	d := New(mem, nil)

	log := recordedLog(t, mem, registry.EventAuctionCreated, 10, 0, creationParams(t))
	res := d.Dispatch(ctx, log, false)
	if res.Status != StatusApplied {
		t.Fatalf("dispatch = %+v", res)
	}

	auction, err := mem.GetAuction(ctx, 8453, testAuction.Hex())
	if err != nil || auction == nil {
		t.Fatalf("auction not materialized: %v", err)
	}
	if auction.Status != model.AuctionCreated {
		t.Fatalf("status = %s", auction.Status)
	}
	if auction.FloorPrice != "0.5" {
		t.Fatalf("floor price = %s, want 0.5", auction.FloorPrice)
	}
	if auction.TotalSupply != "1000000" {
		t.Fatalf("total supply = %s", auction.TotalSupply)
	}
	if auction.PoolSupply != "200000" || auction.CreatorSupply != "50000" || auction.AuctionSupply != "750000" {
		t.Fatalf("supply breakdown = %s/%s/%s", auction.AuctionSupply, auction.PoolSupply, auction.CreatorSupply)
	}
	if auction.StartBlock != 100 || auction.EndBlock != 200 || auction.ClaimBlock != 300 {
		t.Fatalf("block boundaries = %d/%d/%d", auction.StartBlock, auction.EndBlock, auction.ClaimBlock)
	}
	if auction.CreatedLogID != log.ID {
		t.Fatalf("created log ref = %d, want %d", auction.CreatedLogID, log.ID)
	}
}

func TestCreationValidatesStepTotal(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	d := New(mem, nil)

	params := creationParams(t)
	short := decode.AuctionConfig{
		Token:       testToken,
		Currency:    testCcy,
		FloorPrice:  big.NewInt(1),
		TargetRaise: big.NewInt(1),
		TotalSupply: big.NewInt(1),
		StartBlock:  1,
		EndBlock:    2,
		Steps:       []numeric.SaleStep{{Rate: 50_000, BlockSpan: 10}},
	}
	data, err := decode.EncodeAuctionConfig(short, true)
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	params["config"] = hexutil.Encode(data)

	log := recordedLog(t, mem, registry.EventAuctionCreated, 10, 0, params)
	res := d.Dispatch(ctx, log, false)
	if res.Status != StatusFailed || res.Kind != model.ErrValidation {
		t.Fatalf("dispatch = %+v, want validation failure", res)
	}
}

func TestBidBeforeCreationIsNotFound(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	d := New(mem, nil)

	bidLog := recordedLog(t, mem, registry.EventBidSubmitted, 11, 1, map[string]string{
		"auction":  testAuction.Hex(),
		"bidId":    "1",
		"bidder":   testBidder.Hex(),
		"maxPrice": "79228162514264337593543950336",
		"amount":   "1000000000000000000",
	})

	res := d.Dispatch(ctx, bidLog, false)
	if res.Status != StatusFailed || res.Kind != model.ErrEntityNotFound {
		t.Fatalf("dispatch = %+v, want entity_not_found", res)
	}

	stored, ok := mem.GetLog(bidLog.LogKey)
	if !ok || !stored.IsError {
		t.Fatalf("log not marked error: %+v", stored)
	}
	errs, _ := mem.LogErrors(ctx, bidLog.ID)
	if len(errs) != 1 || errs[0].Kind != model.ErrEntityNotFound {
		t.Fatalf("error rows = %+v", errs)
	}
}

func TestBidRetryAfterCreationSucceeds(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	d := New(mem, nil)

	// Causal-order violation first: the bid arrives before its auction.
	bidLog := recordedLog(t, mem, registry.EventBidSubmitted, 11, 1, map[string]string{
		"auction":  testAuction.Hex(),
		"bidId":    "7",
		"bidder":   testBidder.Hex(),
		"maxPrice": "79228162514264337593543950336", // 2^96 == 1.0
		"amount":   "2000000000000000000",
	})
	if res := d.Dispatch(ctx, bidLog, false); res.Status != StatusFailed {
		t.Fatalf("expected failure, got %+v", res)
	}

	creation := recordedLog(t, mem, registry.EventAuctionCreated, 10, 0, creationParams(t))
	if res := d.Dispatch(ctx, creation, false); res.Status != StatusApplied {
		t.Fatalf("creation dispatch failed: %+v", res)
	}

	// Redelivery claims the failed log and the handler runs exactly once more.
	replay := *bidLog
	rec, err := mem.RecordLog(ctx, &replay)
	if err != nil {
		t.Fatalf("record log: %v", err)
	}
	if rec.Status != store.StatusRetry {
		t.Fatalf("record status = %s, want retry", rec.Status)
	}
	if res := d.Dispatch(ctx, &replay, rec.IsRetry()); res.Status != StatusApplied {
		t.Fatalf("retry dispatch = %+v", res)
	}

	bid, err := mem.GetBid(ctx, 8453, testAuction.Hex(), 7)
	if err != nil || bid == nil {
		t.Fatalf("bid not materialized: %v", err)
	}
	if bid.Status != model.BidOpen {
		t.Fatalf("bid status = %s", bid.Status)
	}
	// Q96 price of 2^96 with 18/18 decimals stores as exactly "1".
	if bid.MaxPrice != "1" {
		t.Fatalf("max price = %s, want 1", bid.MaxPrice)
	}
	if bid.Amount != "2" {
		t.Fatalf("amount = %s, want 2", bid.Amount)
	}

	errs, _ := mem.LogErrors(ctx, replay.ID)
	if len(errs) != 0 {
		t.Fatalf("error rows should be cleared after successful retry: %+v", errs)
	}
	stored, _ := mem.GetLog(replay.LogKey)
	if stored.IsError {
		t.Fatalf("log still marked error after retry")
	}
}

func TestBidLifecycle(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	d := New(mem, nil)

	creation := recordedLog(t, mem, registry.EventAuctionCreated, 10, 0, creationParams(t))
	if res := d.Dispatch(ctx, creation, false); res.Status != StatusApplied {
		t.Fatalf("creation: %+v", res)
	}

	funded := recordedLog(t, mem, registry.EventAuctionFunded, 12, 0, map[string]string{
		"auction": testAuction.Hex(),
		"amount":  "750000000000000000000000",
	})
	if res := d.Dispatch(ctx, funded, false); res.Status != StatusApplied {
		t.Fatalf("funded: %+v", res)
	}
	auction, _ := mem.GetAuction(ctx, 8453, testAuction.Hex())
	if auction.Status != model.AuctionPlanned {
		t.Fatalf("status after funding = %s", auction.Status)
	}

	bid := recordedLog(t, mem, registry.EventBidSubmitted, 110, 0, map[string]string{
		"auction":  testAuction.Hex(),
		"bidId":    "1",
		"bidder":   testBidder.Hex(),
		"maxPrice": "118842243771396506390315925504", // 1.5 in Q96
		"amount":   "1000000000000000000",
	})
	if res := d.Dispatch(ctx, bid, false); res.Status != StatusApplied {
		t.Fatalf("bid: %+v", res)
	}

	claimed := recordedLog(t, mem, registry.EventTokensClaimed, 310, 0, map[string]string{
		"auction":      testAuction.Hex(),
		"bidId":        "1",
		"claimer":      testBidder.Hex(),
		"filledAmount": "500000000000000000",
	})
	if res := d.Dispatch(ctx, claimed, false); res.Status != StatusApplied {
		t.Fatalf("claimed: %+v", res)
	}

	got, _ := mem.GetBid(ctx, 8453, testAuction.Hex(), 1)
	if got.Status != model.BidClaimed {
		t.Fatalf("bid status = %s", got.Status)
	}
	if got.FilledAmount != "0.5" {
		t.Fatalf("filled amount = %s", got.FilledAmount)
	}
	if got.MaxPrice != "1.5" {
		t.Fatalf("max price = %s", got.MaxPrice)
	}
}

func TestBidExit(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	d := New(mem, nil)

	creation := recordedLog(t, mem, registry.EventAuctionCreated, 10, 0, creationParams(t))
	d.Dispatch(ctx, creation, false)
	bid := recordedLog(t, mem, registry.EventBidSubmitted, 110, 0, map[string]string{
		"auction":  testAuction.Hex(),
		"bidId":    "3",
		"bidder":   testBidder.Hex(),
		"maxPrice": "79228162514264337593543950336",
		"amount":   "1000000000000000000",
	})
	d.Dispatch(ctx, bid, false)

	exit := recordedLog(t, mem, registry.EventBidExited, 120, 0, map[string]string{
		"auction": testAuction.Hex(),
		"bidId":   "3",
		"refund":  "1000000000000000000",
	})
	if res := d.Dispatch(ctx, exit, false); res.Status != StatusApplied {
		t.Fatalf("exit: %+v", res)
	}
	got, _ := mem.GetBid(ctx, 8453, testAuction.Hex(), 3)
	if got.Status != model.BidCancelled {
		t.Fatalf("bid status = %s", got.Status)
	}
}

func TestClearingPriceUpdateAppendsHistory(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	d := New(mem, nil)

	creation := recordedLog(t, mem, registry.EventAuctionCreated, 10, 0, creationParams(t))
	d.Dispatch(ctx, creation, false)

	for i, price := range []string{
		"39614081257132168796771975168", // 0.5
		"79228162514264337593543950336", // 1.0
	} {
		update := recordedLog(t, mem, registry.EventClearingPriceUpdated, 120+uint64(i), uint64(i), map[string]string{
			"auction": testAuction.Hex(),
			"price":   price,
			"raised":  "100000000000000000000",
		})
		if res := d.Dispatch(ctx, update, false); res.Status != StatusApplied {
			t.Fatalf("update %d: %+v", i, res)
		}
	}

	history := mem.ClearingPrices(8453, testAuction.Hex())
	if len(history) != 2 {
		t.Fatalf("history rows = %d, want 2", len(history))
	}
	if history[0].Price != "0.5" || history[1].Price != "1" {
		t.Fatalf("history prices = %s, %s", history[0].Price, history[1].Price)
	}

	auction, _ := mem.GetAuction(ctx, 8453, testAuction.Hex())
	if auction.ClearingPrice != "1" {
		t.Fatalf("live clearing price = %s", auction.ClearingPrice)
	}
	if auction.RaisedAmount != "100" {
		t.Fatalf("raised = %s", auction.RaisedAmount)
	}
}

func TestGraduation(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	d := New(mem, nil)

	creation := recordedLog(t, mem, registry.EventAuctionCreated, 10, 0, creationParams(t))
	d.Dispatch(ctx, creation, false)

	grad := recordedLog(t, mem, registry.EventAuctionGraduated, 190, 0, map[string]string{
		"auction": testAuction.Hex(),
		"raised":  "500000000000000000000",
	})
	if res := d.Dispatch(ctx, grad, false); res.Status != StatusApplied {
		t.Fatalf("graduation: %+v", res)
	}
	auction, _ := mem.GetAuction(ctx, 8453, testAuction.Hex())
	if auction.Status != model.AuctionGraduated {
		t.Fatalf("status = %s", auction.Status)
	}
	if auction.RaisedAmount != "500" {
		t.Fatalf("raised = %s", auction.RaisedAmount)
	}
}

func TestUnknownEventIgnored(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	d := New(mem, nil)

	log := recordedLog(t, mem, registry.EventUnknown, 10, 0, nil)
	res := d.Dispatch(ctx, log, false)
	if res.Status != StatusIgnored {
		t.Fatalf("dispatch = %+v, want ignored", res)
	}
}

func TestMissingRequiredParameter(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	d := New(mem, nil)

	creation := recordedLog(t, mem, registry.EventAuctionCreated, 10, 0, creationParams(t))
	d.Dispatch(ctx, creation, false)

	bad := recordedLog(t, mem, registry.EventBidSubmitted, 110, 0, map[string]string{
		"auction": testAuction.Hex(),
		"bidId":   "9",
		// bidder and amounts missing
	})
	res := d.Dispatch(ctx, bad, false)
	if res.Status != StatusFailed || res.Kind != model.ErrMissingParams {
		t.Fatalf("dispatch = %+v, want missing_params", res)
	}
	if !strings.Contains(res.Err, "BidSubmitted") {
		t.Fatalf("error should name the event: %s", res.Err)
	}
}
