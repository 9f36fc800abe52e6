package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"auctionscan/internal/decode"
	"auctionscan/internal/dispatch"
	"auctionscan/internal/metrics"
	"auctionscan/internal/model"
	"auctionscan/internal/registry"
	"auctionscan/internal/store"
)

// LogStatus is how one log moved through the pipeline.
type LogStatus string

const (
	// LogApplied means the log was recorded and its handler mutated state.
	LogApplied LogStatus = "applied"
	// LogIgnored means the log was recorded but no handler wanted it.
	LogIgnored LogStatus = "ignored"
	// LogSkipped means the log key was already processed successfully.
	LogSkipped LogStatus = "skipped"
	// LogFailed means decoding or handling failed; the failure is persisted
	// against the log row where one exists.
	LogFailed LogStatus = "failed"
)

// LogResult is the per-log pipeline outcome.
type LogResult struct {
	Status LogStatus
	Event  string
	Kind   model.ErrorKind
	Err    string
}

// Summary tallies results over a batch.
type Summary struct {
	Applied int `json:"applied"`
	Ignored int `json:"ignored"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Add folds one result into the tally.
func (s *Summary) Add(res LogResult) {
	switch res.Status {
	case LogApplied:
		s.Applied++
	case LogIgnored:
		s.Ignored++
	case LogSkipped:
		s.Skipped++
	case LogFailed:
		s.Failed++
	}
}

// Total is the number of logs the summary covers.
func (s Summary) Total() int {
	return s.Applied + s.Ignored + s.Skipped + s.Failed
}

// Pipeline is the shared per-log processing path: decode against the topic
// registry, record idempotently, then dispatch to the domain handlers. Both
// the webhook and the range scanner feed it; a log re-delivered by either
// path lands on the same stored row.
type Pipeline struct {
	decoder    *decode.Decoder
	store      store.Store
	dispatcher *dispatch.Dispatcher
	logger     *zap.Logger
}

func New(decoder *decode.Decoder, st store.Store, dispatcher *dispatch.Dispatcher, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		decoder:    decoder,
		store:      st,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// ProcessLog runs one raw log through decode, record, and dispatch. Failures
// come back as a structured result, never an error: a batch keeps going past
// a bad log. The returned error is reserved for storage being unreachable.
func (p *Pipeline) ProcessLog(ctx context.Context, raw model.RawLog, source model.IngestSource) (LogResult, error) {
	if raw.TxHash == "" {
		// Without a transaction hash there is no log key to record against.
		res := LogResult{
			Status: LogFailed,
			Kind:   model.ErrMissingTxHash,
			Err:    "log has no transaction hash",
		}
		p.observe(source, res)
		p.logger.Warn("dropped log without tx hash",
			zap.Uint64("chain_id", raw.ChainID),
			zap.Uint64("block", raw.BlockNumber),
			zap.String("address", raw.Address),
		)
		return res, nil
	}

	decoded, decodeErr := p.decoder.Decode(ctx, raw)

	rec := &model.ProcessedLog{
		LogKey: model.LogKey{
			ChainID:     raw.ChainID,
			BlockNumber: raw.BlockNumber,
			TxHash:      raw.TxHash,
			LogIndex:    raw.LogIndex,
		},
		Address:     raw.Address,
		TopicHash:   decoded.TopicHash,
		EventName:   decoded.EventName,
		Params:      decoded.Params,
		Source:      source,
		ProcessedAt: time.Now().UTC(),
	}
	if decodeErr != nil {
		rec.TopicHash = raw.Topic0()
		rec.EventName = eventNameFor(decodeErr)
	}

	recorded, err := p.store.RecordLog(ctx, rec)
	if err != nil {
		return LogResult{}, err
	}

	if recorded.Status == store.StatusSkipped {
		res := LogResult{Status: LogSkipped, Event: rec.EventName}
		p.observe(source, res)
		return res, nil
	}

	if decodeErr != nil {
		kind := model.ClassifyError(decodeErr, model.ErrDecode)
		if markErr := p.store.MarkLogError(ctx, recorded.ID, kind, decodeErr.Error()); markErr != nil {
			p.logger.Error("mark log error", zap.Int64("log_id", recorded.ID), zap.Error(markErr))
		}
		res := LogResult{Status: LogFailed, Event: rec.EventName, Kind: kind, Err: decodeErr.Error()}
		p.observe(source, res)
		return res, nil
	}

	dispatched := p.dispatcher.Dispatch(ctx, rec, recorded.IsRetry())
	res := LogResult{
		Status: statusFor(dispatched.Status),
		Event:  dispatched.Event,
		Kind:   dispatched.Kind,
		Err:    dispatched.Err,
	}
	p.observe(source, res)
	return res, nil
}

// ProcessBatch runs logs in delivery order and tallies the outcomes.
func (p *Pipeline) ProcessBatch(ctx context.Context, logs []model.RawLog, source model.IngestSource) (Summary, error) {
	var summary Summary
	for _, raw := range logs {
		res, err := p.ProcessLog(ctx, raw, source)
		if err != nil {
			return summary, err
		}
		summary.Add(res)
	}
	return summary, nil
}

func (p *Pipeline) observe(source model.IngestSource, res LogResult) {
	metrics.LogsTotal.WithLabelValues(string(source), string(res.Status)).Inc()
	if res.Status == LogFailed && res.Kind != "" {
		metrics.LogErrorsTotal.WithLabelValues(string(res.Kind)).Inc()
	}
}

func statusFor(status dispatch.Status) LogStatus {
	switch status {
	case dispatch.StatusApplied:
		return LogApplied
	case dispatch.StatusIgnored:
		return LogIgnored
	default:
		return LogFailed
	}
}

func eventNameFor(err error) string {
	if le, ok := err.(*model.LogError); ok && le.Event != "" {
		return le.Event
	}
	return registry.EventUnknown
}
