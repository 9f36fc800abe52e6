package pipeline

import (
	"context"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"auctionscan/internal/decode"
	"auctionscan/internal/dispatch"
	"auctionscan/internal/model"
	"auctionscan/internal/numeric"
	"auctionscan/internal/registry"
	"auctionscan/internal/store"
)

var (
	testAuction = common.HexToAddress("0xAAA0000000000000000000000000000000000001")
	testToken   = common.HexToAddress("0x1000000000000000000000000000000000000001")
	testCcy     = common.HexToAddress("0x2000000000000000000000000000000000000002")
	testCreator = common.HexToAddress("0xBBB0000000000000000000000000000000000002")
)

func newTestPipeline(t *testing.T) (*Pipeline, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	reg := registry.New(mem, nil)
	decoder := decode.NewDecoder(reg, nil)
	dispatcher := dispatch.New(mem, nil)
	return New(decoder, mem, dispatcher, nil), mem
}

func txHash(n byte) string {
	return "0x" + strings.Repeat("cc", 31) + common.Bytes2Hex([]byte{n})
}

// rawEventLog packs a built-in event into wire form: indexed values become
// topics after topic0, the rest are ABI-packed into data.
func rawEventLog(t *testing.T, event string, block, index uint64, tx string, indexed []common.Hash, data []interface{}) model.RawLog {
	t.Helper()
	parsed, err := registry.AuctionABI()
	if err != nil {
		t.Fatalf("auction abi: %v", err)
	}
	ev, ok := parsed.Events[event]
	if !ok {
		t.Fatalf("unknown event %s", event)
	}

	packed, err := ev.Inputs.NonIndexed().Pack(data...)
	if err != nil {
		t.Fatalf("pack %s data: %v", event, err)
	}

	topics := []string{strings.ToLower(ev.ID.Hex())}
	for _, h := range indexed {
		topics = append(topics, h.Hex())
	}
	return model.RawLog{
		ChainID:     8453,
		BlockNumber: block,
		BlockHash:   "0x" + strings.Repeat("11", 32),
		TxHash:      tx,
		LogIndex:    index,
		Address:     testAuction.Hex(),
		Topics:      topics,
		Data:        hexutil.Encode(packed),
	}
}

func createdRawLog(t *testing.T, block, index uint64, tx string) model.RawLog {
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
	configBytes, err := decode.EncodeAuctionConfig(cfg, true)
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	return rawEventLog(t, registry.EventAuctionCreated, block, index, tx,
		[]common.Hash{
			common.BytesToHash(testAuction.Bytes()),
			common.BytesToHash(testToken.Bytes()),
			common.BytesToHash(testCreator.Bytes()),
		},
		[]interface{}{testCcy, configBytes},
	)
}

func fundedRawLog(t *testing.T, block, index uint64, tx string) model.RawLog {
	t.Helper()
	return rawEventLog(t, registry.EventAuctionFunded, block, index, tx,
		[]common.Hash{common.BytesToHash(testAuction.Bytes())},
		[]interface{}{big.NewInt(1_000_000)},
	)
}

func TestProcessLogAppliesCreation(t *testing.T) {
	ctx := context.Background()
	p, mem := newTestPipeline(t)

	res, err := p.ProcessLog(ctx, createdRawLog(t, 10, 0, txHash(1)), model.SourcePull)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.Status != LogApplied || res.Event != registry.EventAuctionCreated {
		t.Fatalf("result = %+v", res)
	}

	auction, err := mem.GetAuction(ctx, 8453, testAuction.Hex())
	if err != nil || auction == nil {
		t.Fatalf("auction not materialized: %v", err)
	}
	if auction.FloorPrice != "0.5" {
		t.Fatalf("floor price = %s", auction.FloorPrice)
	}
}

func TestRedeliveryIsSkipped(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestPipeline(t)

	raw := createdRawLog(t, 10, 0, txHash(1))
	if res, _ := p.ProcessLog(ctx, raw, model.SourcePush); res.Status != LogApplied {
		t.Fatalf("first delivery = %+v", res)
	}
	res, err := p.ProcessLog(ctx, raw, model.SourcePull)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.Status != LogSkipped {
		t.Fatalf("re-delivery = %+v, want skipped", res)
	}
}

func TestOutOfOrderDeliveryRecovers(t *testing.T) {
	ctx := context.Background()
	p, mem := newTestPipeline(t)

	funded := fundedRawLog(t, 20, 0, txHash(2))
	res, err := p.ProcessLog(ctx, funded, model.SourcePush)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.Status != LogFailed || res.Kind != model.ErrEntityNotFound {
		t.Fatalf("funded before created = %+v", res)
	}

	if res, _ := p.ProcessLog(ctx, createdRawLog(t, 10, 0, txHash(1)), model.SourcePull); res.Status != LogApplied {
		t.Fatalf("creation = %+v", res)
	}

	res, err = p.ProcessLog(ctx, funded, model.SourcePull)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.Status != LogApplied {
		t.Fatalf("retry = %+v", res)
	}

	auction, _ := mem.GetAuction(ctx, 8453, testAuction.Hex())
	if auction == nil || auction.Status != model.AuctionPlanned {
		t.Fatalf("auction = %+v", auction)
	}

	stored, _ := mem.GetLog(model.LogKey{ChainID: 8453, BlockNumber: 20, TxHash: txHash(2), LogIndex: 0})
	if stored == nil || stored.IsError {
		t.Fatalf("retried log still flagged: %+v", stored)
	}
	errs, _ := mem.LogErrors(ctx, stored.ID)
	if len(errs) != 0 {
		t.Fatalf("error rows not cleared: %+v", errs)
	}
}

func TestMissingTxHashNeverRecorded(t *testing.T) {
	ctx := context.Background()
	p, mem := newTestPipeline(t)

	raw := fundedRawLog(t, 20, 0, "")
	res, err := p.ProcessLog(ctx, raw, model.SourcePush)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.Status != LogFailed || res.Kind != model.ErrMissingTxHash {
		t.Fatalf("result = %+v", res)
	}
	if _, ok := mem.GetLog(model.LogKey{ChainID: 8453, BlockNumber: 20, LogIndex: 0}); ok {
		t.Fatal("keyless log was recorded")
	}
}

func TestLogWithoutTopicsRecordedAsError(t *testing.T) {
	ctx := context.Background()
	p, mem := newTestPipeline(t)

	raw := model.RawLog{
		ChainID:     8453,
		BlockNumber: 30,
		TxHash:      txHash(3),
		LogIndex:    2,
		Address:     testAuction.Hex(),
		Data:        "0x",
	}
	res, err := p.ProcessLog(ctx, raw, model.SourcePull)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.Status != LogFailed || res.Kind != model.ErrMissingTopic {
		t.Fatalf("result = %+v", res)
	}

	stored, ok := mem.GetLog(model.LogKey{ChainID: 8453, BlockNumber: 30, TxHash: txHash(3), LogIndex: 2})
	if !ok || !stored.IsError {
		t.Fatalf("malformed log not recorded as error: %+v", stored)
	}
	errs, _ := mem.LogErrors(ctx, stored.ID)
	if len(errs) != 1 || errs[0].Kind != model.ErrMissingTopic {
		t.Fatalf("error rows = %+v", errs)
	}
}

func TestUnknownTopicRecordedAndIgnored(t *testing.T) {
	ctx := context.Background()
	p, mem := newTestPipeline(t)

	raw := model.RawLog{
		ChainID:     8453,
		BlockNumber: 40,
		TxHash:      txHash(4),
		LogIndex:    0,
		Address:     testAuction.Hex(),
		Topics:      []string{"0x" + strings.Repeat("dd", 32)},
		Data:        "0x",
	}
	res, err := p.ProcessLog(ctx, raw, model.SourcePull)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.Status != LogIgnored {
		t.Fatalf("result = %+v", res)
	}

	stored, ok := mem.GetLog(model.LogKey{ChainID: 8453, BlockNumber: 40, TxHash: txHash(4), LogIndex: 0})
	if !ok || stored.EventName != registry.EventUnknown || stored.IsError {
		t.Fatalf("unknown log = %+v", stored)
	}
}

func TestProcessBatchTallies(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestPipeline(t)

	logs := []model.RawLog{
		createdRawLog(t, 10, 0, txHash(1)),
		createdRawLog(t, 10, 0, txHash(1)), // duplicate
		fundedRawLog(t, 20, 0, txHash(2)),
	}
	summary, err := p.ProcessBatch(ctx, logs, model.SourcePull)
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	want := Summary{Applied: 2, Skipped: 1}
	if summary != want {
		t.Fatalf("summary = %+v, want %+v", summary, want)
	}
	if summary.Total() != len(logs) {
		t.Fatalf("total = %d", summary.Total())
	}
}

func TestBatchOrderIsDeliveryOrder(t *testing.T) {
	ctx := context.Background()
	p, mem := newTestPipeline(t)

	logs := make([]model.RawLog, 0, 3)
	logs = append(logs, createdRawLog(t, 10, 0, txHash(1)))
	for i := uint64(0); i < 2; i++ {
		logs = append(logs, fundedRawLog(t, 20+i, i, txHash(byte(10+i))))
	}
	summary, err := p.ProcessBatch(ctx, logs, model.SourcePush)
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if summary.Applied != 3 || summary.Failed != 0 {
		t.Fatalf("summary = %+v", summary)
	}

	auction, _ := mem.GetAuction(ctx, 8453, testAuction.Hex())
	if auction == nil || auction.Status != model.AuctionPlanned {
		t.Fatalf("auction = %+v", auction)
	}
}
