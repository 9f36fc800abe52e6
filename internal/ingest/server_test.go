package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"auctionscan/internal/decode"
	"auctionscan/internal/dispatch"
	"auctionscan/internal/model"
	"auctionscan/internal/numeric"
	"auctionscan/internal/pipeline"
	"auctionscan/internal/registry"
	"auctionscan/internal/store"
)

var (
	testAuction = common.HexToAddress("0xAAA0000000000000000000000000000000000001")
	testToken   = common.HexToAddress("0x1000000000000000000000000000000000000001")
	testCcy     = common.HexToAddress("0x2000000000000000000000000000000000000002")
	testCreator = common.HexToAddress("0xBBB0000000000000000000000000000000000002")
)

func newTestServer(t *testing.T) (*Server, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	reg := registry.New(mem, nil)
	pipe := pipeline.New(decode.NewDecoder(reg, nil), mem, dispatch.New(mem, nil), nil)
	return NewServer(pipe, nil), mem
}

func creationRawLog(t *testing.T) model.RawLog {
	t.Helper()
	parsed, err := registry.AuctionABI()
	if err != nil {
		t.Fatalf("auction abi: %v", err)
	}
	event := parsed.Events[registry.EventAuctionCreated]

	floor, _ := new(big.Int).SetString("39614081257132168796771975168", 10) // 0.5 in Q96
	cfg := decode.AuctionConfig{
		Token:           testToken,
		Currency:        testCcy,
		FloorPrice:      floor,
		TargetRaise:     big.NewInt(1e18),
		TotalSupply:     new(big.Int).Mul(big.NewInt(1_000_000), big.NewInt(1e18)),
		PoolShareBps:    2_000,
		CreatorShareBps: 500,
		StartBlock:      100,
		EndBlock:        200,
		ClaimBlock:      300,
		Steps:           []numeric.SaleStep{{Rate: 100_000, BlockSpan: 100}},
	}
	configBytes, err := decode.EncodeAuctionConfig(cfg, true)
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	data, err := event.Inputs.NonIndexed().Pack(testCcy, configBytes)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	return model.RawLog{
		BlockNumber: 50,
		TxHash:      "0x" + strings.Repeat("ab", 32),
		LogIndex:    0,
		Address:     testAuction.Hex(),
		Topics: []string{
			event.ID.Hex(),
			common.BytesToHash(testAuction.Bytes()).Hex(),
			common.BytesToHash(testToken.Bytes()).Hex(),
			common.BytesToHash(testCreator.Bytes()).Hex(),
		},
		Data: hexutil.Encode(data),
	}
}

func postLogs(t *testing.T, srv *Server, payload Payload) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/v1/logs", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	var resp Response
	if rec.Code == http.StatusOK {
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("unmarshal response: %v", err)
		}
	}
	return rec, resp
}

func TestWebhookAppliesBatch(t *testing.T) {
	srv, mem := newTestServer(t)

	rec, resp := postLogs(t, srv, Payload{ChainID: 8453, Logs: []model.RawLog{creationRawLog(t)}})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if resp.Received != 1 || resp.Applied != 1 {
		t.Fatalf("response = %+v", resp)
	}

	auction, err := mem.GetAuction(context.Background(), 8453, testAuction.Hex())
	if err != nil || auction == nil {
		t.Fatalf("auction not materialized: %v", err)
	}
}

func TestWebhookRedeliveryIsSkippedNotFailed(t *testing.T) {
	srv, _ := newTestServer(t)

	payload := Payload{ChainID: 8453, Logs: []model.RawLog{creationRawLog(t)}}
	if rec, _ := postLogs(t, srv, payload); rec.Code != http.StatusOK {
		t.Fatalf("first delivery: %d", rec.Code)
	}
	rec, resp := postLogs(t, srv, payload)
	if rec.Code != http.StatusOK {
		t.Fatalf("re-delivery status = %d", rec.Code)
	}
	if resp.Skipped != 1 || resp.Failed != 0 {
		t.Fatalf("response = %+v", resp)
	}
}

func TestWebhookBadLogStillSucceedsTransport(t *testing.T) {
	srv, _ := newTestServer(t)

	bad := model.RawLog{
		BlockNumber: 60,
		TxHash:      "0x" + strings.Repeat("cd", 32),
		Address:     testAuction.Hex(),
		Data:        "0x",
	}
	rec, resp := postLogs(t, srv, Payload{ChainID: 8453, Logs: []model.RawLog{bad}})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if resp.Failed != 1 {
		t.Fatalf("response = %+v", resp)
	}
}

func TestWebhookRejectsMalformedJSON(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/logs", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestWebhookRejectsGet(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/logs", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}
