package dispatch

import (
	"context"

	"go.uber.org/zap"

	"auctionscan/internal/model"
	"auctionscan/internal/registry"
	"auctionscan/internal/store"
)

// Status is how one dispatched log resolved.
type Status string

const (
	// StatusApplied means the handler mutated domain state.
	StatusApplied Status = "applied"
	// StatusIgnored means the event has no handler (unknown topic); the log
	// is recorded but has no domain effect.
	StatusIgnored Status = "ignored"
	// StatusFailed means the handler reported a classified error; the log is
	// marked for later retry or investigation.
	StatusFailed Status = "failed"
)

// Result is the structured outcome of dispatching one log. Failures are a
// normal branch here, never a panic or propagated exception: the caller keeps
// processing the rest of its batch.
type Result struct {
	Status Status
	Event  string
	Kind   model.ErrorKind
	Err    string
}

type handlerFunc func(ctx context.Context, d *Dispatcher, log *model.ProcessedLog) error

// Dispatcher routes decoded events to per-event handlers that apply domain
// state transitions.
type Dispatcher struct {
	store    store.Store
	logger   *zap.Logger
	handlers map[string]handlerFunc
}

// New builds a dispatcher with the full routing table.
func New(st store.Store, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		store:  st,
		logger: logger,
		handlers: map[string]handlerFunc{
			registry.EventAuctionCreated:       handleAuctionCreated,
			registry.EventAuctionFunded:        handleAuctionFunded,
			registry.EventBidSubmitted:         handleBidSubmitted,
			registry.EventBidExited:            handleBidExited,
			registry.EventTokensClaimed:        handleTokensClaimed,
			registry.EventClearingPriceUpdated: handleClearingPriceUpdated,
			registry.EventAuctionGraduated:     handleAuctionGraduated,
		},
	}
}

// Dispatch routes one recorded log to its handler. isRetry marks a log that
// was claimed from a failed state: on success its prior error rows are
// deleted. Handler failures are persisted (is_error flag plus an error row)
// and returned as a structured result.
func (d *Dispatcher) Dispatch(ctx context.Context, log *model.ProcessedLog, isRetry bool) Result {
	handler, ok := d.handlers[log.EventName]
	if !ok {
		if isRetry {
			if err := d.store.ClearLogErrors(ctx, log.ID); err != nil {
				d.logger.Warn("clear log errors", zap.Int64("log_id", log.ID), zap.Error(err))
			}
		}
		return Result{Status: StatusIgnored, Event: log.EventName}
	}

	if err := handler(ctx, d, log); err != nil {
		kind := model.ClassifyError(err, model.ErrStore)
		if markErr := d.store.MarkLogError(ctx, log.ID, kind, err.Error()); markErr != nil {
			d.logger.Error("mark log error",
				zap.Int64("log_id", log.ID),
				zap.String("event", log.EventName),
				zap.Error(markErr),
			)
		}
		d.logger.Warn("event handler failed",
			zap.Int64("log_id", log.ID),
			zap.String("event", log.EventName),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
		return Result{Status: StatusFailed, Event: log.EventName, Kind: kind, Err: err.Error()}
	}

	if isRetry {
		if err := d.store.ClearLogErrors(ctx, log.ID); err != nil {
			d.logger.Warn("clear log errors", zap.Int64("log_id", log.ID), zap.Error(err))
		}
	}
	return Result{Status: StatusApplied, Event: log.EventName}
}
