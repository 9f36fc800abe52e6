package store

import (
	"context"

	"auctionscan/internal/model"
)

// RecordStatus is the outcome of a RecordLog call.
type RecordStatus string

const (
	// StatusInserted means the log was seen for the first time.
	StatusInserted RecordStatus = "inserted"
	// StatusRetry means a previously failed log was atomically claimed for
	// reprocessing. At most one concurrent caller wins this claim.
	StatusRetry RecordStatus = "retry"
	// StatusSkipped means the log was already processed successfully;
	// re-delivery is a no-op.
	StatusSkipped RecordStatus = "skipped"
)

// RecordResult carries the stored log id and how the call resolved.
type RecordResult struct {
	ID     int64
	Status RecordStatus
}

// IsRetry reports whether this call claimed a failed log.
func (r RecordResult) IsRetry() bool { return r.Status == StatusRetry }

// Store is the persistence boundary for the ingestion pipeline. The unique
// constraint over the log key plus the conditional retry claim in RecordLog
// is the only cross-process synchronization the pipeline relies on.
type Store interface {
	// RecordLog inserts the log if its key is unseen, claims it when a prior
	// attempt failed, and reports skipped otherwise. On a claim the decode
	// fields (topic, event name, params, source) are refreshed from the
	// given record.
	RecordLog(ctx context.Context, log *model.ProcessedLog) (RecordResult, error)

	// GetLogByID returns nil when no log has the given id.
	GetLogByID(ctx context.Context, id int64) (*model.ProcessedLog, error)

	// MarkLogError flags the log as failed and appends a classified error row.
	MarkLogError(ctx context.Context, logID int64, kind model.ErrorKind, message string) error
	// ClearLogErrors deletes prior error rows after a retry succeeds.
	ClearLogErrors(ctx context.Context, logID int64) error
	// LogErrors lists recorded failures for a log, newest last.
	LogErrors(ctx context.Context, logID int64) ([]model.ProcessedLogError, error)

	// GetAuction returns nil when the auction is unknown.
	GetAuction(ctx context.Context, chainID uint64, address string) (*model.Auction, error)
	// ListAuctions returns every auction on a chain, address order.
	ListAuctions(ctx context.Context, chainID uint64) ([]model.Auction, error)
	UpsertAuction(ctx context.Context, auction *model.Auction) error

	// GetBid returns nil when the bid is unknown.
	GetBid(ctx context.Context, chainID uint64, auctionAddress string, bidID uint64) (*model.Bid, error)
	UpsertBid(ctx context.Context, bid *model.Bid) error

	// AppendClearingPrice appends one price history row; history is never
	// mutated or deleted.
	AppendClearingPrice(ctx context.Context, row model.ClearingPrice) error

	// LoadEventTopics reads the seeded topic descriptors for the registry.
	LoadEventTopics(ctx context.Context) ([]model.EventTopic, error)
}
