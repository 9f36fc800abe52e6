package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"auctionscan/internal/model"
)

// Memory is an in-memory Store used by tests and dry runs. Claim semantics
// match the Postgres implementation: the whole RecordLog decision runs under
// one lock, so concurrent callers observe the same at-most-one-claim rule.
type Memory struct {
	mu     sync.Mutex
	nextID int64

	logs      map[model.LogKey]*model.ProcessedLog
	logErrors map[int64][]model.ProcessedLogError
	auctions  map[string]*model.Auction
	bids      map[string]*model.Bid
	prices    []model.ClearingPrice
	topics    []model.EventTopic
}

// NewMemory builds an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		logs:      make(map[model.LogKey]*model.ProcessedLog),
		logErrors: make(map[int64][]model.ProcessedLogError),
		auctions:  make(map[string]*model.Auction),
		bids:      make(map[string]*model.Bid),
	}
}

func auctionKey(chainID uint64, address string) string {
	return fmt.Sprintf("%d:%s", chainID, strings.ToLower(address))
}

func bidKey(chainID uint64, auctionAddress string, bidID uint64) string {
	return fmt.Sprintf("%d:%s:%d", chainID, strings.ToLower(auctionAddress), bidID)
}

func normalizeLogKey(key model.LogKey) model.LogKey {
	key.TxHash = strings.ToLower(key.TxHash)
	return key
}

// SeedTopics replaces the topic rows served to the registry.
func (m *Memory) SeedTopics(topics []model.EventTopic) {
	m.mu.Lock()
	m.topics = topics
	m.mu.Unlock()
}

func (m *Memory) RecordLog(ctx context.Context, log *model.ProcessedLog) (RecordResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := normalizeLogKey(log.LogKey)
	existing, ok := m.logs[key]
	if !ok {
		m.nextID++
		stored := *log
		stored.ID = m.nextID
		stored.LogKey = key
		stored.IsError = false
		stored.ProcessedAt = time.Now().UTC()
		m.logs[key] = &stored
		log.ID = stored.ID
		return RecordResult{ID: stored.ID, Status: StatusInserted}, nil
	}

	if existing.IsError {
		existing.IsError = false
		existing.TopicHash = log.TopicHash
		existing.EventName = log.EventName
		existing.Params = log.Params
		existing.Source = log.Source
		existing.ProcessedAt = time.Now().UTC()
		log.ID = existing.ID
		return RecordResult{ID: existing.ID, Status: StatusRetry}, nil
	}

	log.ID = existing.ID
	return RecordResult{ID: existing.ID, Status: StatusSkipped}, nil
}

func (m *Memory) MarkLogError(ctx context.Context, logID int64, kind model.ErrorKind, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, log := range m.logs {
		if log.ID == logID {
			log.IsError = true
			m.nextID++
			m.logErrors[logID] = append(m.logErrors[logID], model.ProcessedLogError{
				ID:         m.nextID,
				LogID:      logID,
				Kind:       kind,
				Message:    message,
				OccurredAt: time.Now().UTC(),
			})
			return nil
		}
	}
	return fmt.Errorf("log %d not found", logID)
}

func (m *Memory) ClearLogErrors(ctx context.Context, logID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.logErrors, logID)
	return nil
}

func (m *Memory) LogErrors(ctx context.Context, logID int64) ([]model.ProcessedLogError, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.ProcessedLogError, len(m.logErrors[logID]))
	copy(out, m.logErrors[logID])
	return out, nil
}

// GetLog returns the stored record for a key, for tests and repair tooling.
func (m *Memory) GetLog(key model.LogKey) (*model.ProcessedLog, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	log, ok := m.logs[normalizeLogKey(key)]
	if !ok {
		return nil, false
	}
	copied := *log
	return &copied, true
}

func (m *Memory) GetLogByID(ctx context.Context, id int64) (*model.ProcessedLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, log := range m.logs {
		if log.ID == id {
			copied := *log
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *Memory) GetAuction(ctx context.Context, chainID uint64, address string) (*model.Auction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	auction, ok := m.auctions[auctionKey(chainID, address)]
	if !ok {
		return nil, nil
	}
	copied := *auction
	return &copied, nil
}

func (m *Memory) ListAuctions(ctx context.Context, chainID uint64) ([]model.Auction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Auction, 0)
	for _, auction := range m.auctions {
		if auction.ChainID == chainID {
			out = append(out, *auction)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Address) < strings.ToLower(out[j].Address)
	})
	return out, nil
}

func (m *Memory) UpsertAuction(ctx context.Context, auction *model.Auction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *auction
	copied.UpdatedAt = time.Now().UTC()
	m.auctions[auctionKey(auction.ChainID, auction.Address)] = &copied
	return nil
}

func (m *Memory) GetBid(ctx context.Context, chainID uint64, auctionAddress string, bidID uint64) (*model.Bid, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bid, ok := m.bids[bidKey(chainID, auctionAddress, bidID)]
	if !ok {
		return nil, nil
	}
	copied := *bid
	return &copied, nil
}

func (m *Memory) UpsertBid(ctx context.Context, bid *model.Bid) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *bid
	copied.UpdatedAt = time.Now().UTC()
	m.bids[bidKey(bid.ChainID, bid.AuctionAddress, bid.BidID)] = &copied
	return nil
}

func (m *Memory) AppendClearingPrice(ctx context.Context, row model.ClearingPrice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row.RecordedAt = time.Now().UTC()
	m.prices = append(m.prices, row)
	return nil
}

// ClearingPrices returns the history rows for one auction in append order.
func (m *Memory) ClearingPrices(chainID uint64, auctionAddress string) []model.ClearingPrice {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.ClearingPrice, 0)
	for _, row := range m.prices {
		if row.ChainID == chainID && strings.EqualFold(row.AuctionAddress, auctionAddress) {
			out = append(out, row)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].BlockNumber != out[j].BlockNumber {
			return out[i].BlockNumber < out[j].BlockNumber
		}
		return out[i].LogIndex < out[j].LogIndex
	})
	return out
}

func (m *Memory) LoadEventTopics(ctx context.Context) ([]model.EventTopic, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.EventTopic, len(m.topics))
	copy(out, m.topics)
	return out, nil
}

var _ Store = (*Memory)(nil)
