package registry

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"auctionscan/internal/model"
)

// TopicSource loads event topic descriptors from the store's seed table.
type TopicSource interface {
	LoadEventTopics(ctx context.Context) ([]model.EventTopic, error)
}

// Registry is a process-lifetime read-through cache mapping topic0 hashes to
// decoding schemas. It is explicitly constructed and injected rather than a
// package singleton so tests can invalidate and reload it.
type Registry struct {
	source TopicSource
	logger *zap.Logger

	mu      sync.RWMutex
	byTopic map[string]model.EventTopic
	loaded  bool
}

// New builds a registry over the given source. A nil source serves only the
// built-in descriptors.
func New(source TopicSource, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{source: source, logger: logger}
}

// Lookup resolves a topic0 hash to its descriptor, loading the cache on
// first use. Absence is not an error.
func (r *Registry) Lookup(ctx context.Context, topicHash string) (model.EventTopic, bool, error) {
	key := normalizeTopic(topicHash)
	if key == "" {
		return model.EventTopic{}, false, nil
	}

	r.mu.RLock()
	if r.loaded {
		topic, ok := r.byTopic[key]
		r.mu.RUnlock()
		return topic, ok, nil
	}
	r.mu.RUnlock()

	if err := r.Reload(ctx); err != nil {
		return model.EventTopic{}, false, err
	}

	r.mu.RLock()
	topic, ok := r.byTopic[key]
	r.mu.RUnlock()
	return topic, ok, nil
}

// Reload replaces the cache with built-in descriptors merged with seed rows
// from the source. Seed rows win on conflict so operators can extend or
// override schemas without a redeploy.
func (r *Registry) Reload(ctx context.Context) error {
	builtin, err := BuiltinTopics()
	if err != nil {
		return fmt.Errorf("builtin topics: %w", err)
	}

	byTopic := make(map[string]model.EventTopic, len(builtin))
	for _, topic := range builtin {
		byTopic[normalizeTopic(topic.TopicHash)] = topic
	}

	if r.source != nil {
		seeded, err := r.source.LoadEventTopics(ctx)
		if err != nil {
			return fmt.Errorf("load event topics: %w", err)
		}
		for _, topic := range seeded {
			key := normalizeTopic(topic.TopicHash)
			if key == "" {
				continue
			}
			byTopic[key] = topic
		}
		r.logger.Debug("event topics loaded", zap.Int("builtin", len(builtin)), zap.Int("seeded", len(seeded)))
	}

	r.mu.Lock()
	r.byTopic = byTopic
	r.loaded = true
	r.mu.Unlock()
	return nil
}

// Invalidate drops the cache; the next Lookup reloads it.
func (r *Registry) Invalidate() {
	r.mu.Lock()
	r.byTopic = nil
	r.loaded = false
	r.mu.Unlock()
}

// BuiltinTopics derives descriptors for the canonical auction platform
// events from the embedded ABI.
func BuiltinTopics() ([]model.EventTopic, error) {
	parsed, err := AuctionABI()
	if err != nil {
		return nil, err
	}

	names := []string{
		EventAuctionCreated,
		EventAuctionFunded,
		EventBidSubmitted,
		EventBidExited,
		EventTokensClaimed,
		EventClearingPriceUpdated,
		EventAuctionGraduated,
	}

	topics := make([]model.EventTopic, 0, len(names))
	for _, name := range names {
		event, ok := parsed.Events[name]
		if !ok {
			return nil, fmt.Errorf("event %s missing from auction abi", name)
		}
		params := make([]model.ParamSpec, 0, len(event.Inputs))
		for _, input := range event.Inputs {
			params = append(params, model.ParamSpec{
				Name:    input.Name,
				Type:    input.Type.String(),
				Indexed: input.Indexed,
			})
		}
		topics = append(topics, model.EventTopic{
			TopicHash:  strings.ToLower(event.ID.Hex()),
			Name:       name,
			Signatures: []string{event.Sig},
			Params:     params,
		})
	}
	return topics, nil
}

// TopicHashFor returns the canonical topic0 hash for a built-in event name.
func TopicHashFor(name string) (string, error) {
	parsed, err := AuctionABI()
	if err != nil {
		return "", err
	}
	event, ok := parsed.Events[name]
	if !ok {
		return "", fmt.Errorf("unknown event: %s", name)
	}
	return strings.ToLower(event.ID.Hex()), nil
}

func normalizeTopic(topic string) string {
	return strings.ToLower(strings.TrimSpace(topic))
}
