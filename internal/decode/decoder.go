package decode

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"

	"auctionscan/internal/model"
	"auctionscan/internal/registry"
)

// DecodedLog is the result of decoding one raw log against the topic
// registry. Unknown topics decode to EventName "Unknown" with nil Params.
type DecodedLog struct {
	EventName string
	TopicHash string
	Params    map[string]string
}

// Decoder decodes raw logs using the injected topic registry.
type Decoder struct {
	registry *registry.Registry
	logger   *zap.Logger
}

// NewDecoder builds a decoder over the registry.
func NewDecoder(reg *registry.Registry, logger *zap.Logger) *Decoder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Decoder{registry: reg, logger: logger}
}

// Decode resolves the log's topic0 and unpacks indexed and data-encoded
// parameters into a named map. A missing descriptor is not an error: the log
// comes back as Unknown. Malformed payloads return a classified decode error.
func (d *Decoder) Decode(ctx context.Context, log model.RawLog) (DecodedLog, error) {
	topic0 := log.Topic0()
	if topic0 == "" {
		return DecodedLog{}, model.NewLogError(model.ErrMissingTopic, "", "log has no topics")
	}

	topic, ok, err := d.registry.Lookup(ctx, topic0)
	if err != nil {
		return DecodedLog{}, fmt.Errorf("registry lookup: %w", err)
	}
	if !ok {
		return DecodedLog{EventName: registry.EventUnknown, TopicHash: strings.ToLower(topic0)}, nil
	}

	params, err := decodeParams(topic, log)
	if err != nil {
		return DecodedLog{}, model.NewLogError(model.ErrDecode, topic.Name, "%v", err)
	}

	return DecodedLog{
		EventName: topic.Name,
		TopicHash: topic.TopicHash,
		Params:    params,
	}, nil
}

func decodeParams(topic model.EventTopic, log model.RawLog) (map[string]string, error) {
	indexedArgs, dataArgs, err := schemaArguments(topic)
	if err != nil {
		return nil, err
	}

	if len(log.Topics) != len(indexedArgs)+1 {
		return nil, fmt.Errorf("expected %d topics, got %d", len(indexedArgs)+1, len(log.Topics))
	}

	values := make(map[string]interface{}, len(topic.Params))

	if len(indexedArgs) > 0 {
		hashes, err := parseTopicHashes(log.Topics[1:])
		if err != nil {
			return nil, err
		}
		if err := abi.ParseTopicsIntoMap(values, indexedArgs, hashes); err != nil {
			return nil, fmt.Errorf("parse indexed topics: %w", err)
		}
	}

	if len(dataArgs) > 0 {
		data, err := hexutil.Decode(log.Data)
		if err != nil {
			return nil, fmt.Errorf("invalid data: %w", err)
		}
		if err := dataArgs.UnpackIntoMap(values, data); err != nil {
			return nil, fmt.Errorf("unpack data: %w", err)
		}
	}

	params := make(map[string]string, len(values))
	for name, value := range values {
		params[name] = stringifyValue(value)
	}
	return params, nil
}

func schemaArguments(topic model.EventTopic) (abi.Arguments, abi.Arguments, error) {
	var indexed, data abi.Arguments
	for _, p := range topic.Params {
		typ, err := abi.NewType(p.Type, "", nil)
		if err != nil {
			return nil, nil, fmt.Errorf("param %s: bad type %q: %w", p.Name, p.Type, err)
		}
		arg := abi.Argument{Name: p.Name, Type: typ, Indexed: p.Indexed}
		if p.Indexed {
			indexed = append(indexed, arg)
		} else {
			data = append(data, arg)
		}
	}
	return indexed, data, nil
}

func parseTopicHashes(topics []string) ([]common.Hash, error) {
	out := make([]common.Hash, 0, len(topics))
	for _, topic := range topics {
		data, err := hexutil.Decode(topic)
		if err != nil {
			return nil, fmt.Errorf("invalid topic: %w", err)
		}
		if len(data) > 32 {
			return nil, fmt.Errorf("topic length %d", len(data))
		}
		out = append(out, common.BytesToHash(data))
	}
	return out, nil
}

// stringifyValue renders a decoded ABI value for the parameter map.
// Addresses keep their checksummed hex form, integers are base-10, byte
// blobs are 0x-hex.
func stringifyValue(value interface{}) string {
	switch v := value.(type) {
	case common.Address:
		return v.Hex()
	case common.Hash:
		return v.Hex()
	case *big.Int:
		return v.String()
	case []byte:
		return hexutil.Encode(v)
	case [32]byte:
		return hexutil.Encode(v[:])
	case bool:
		return strconv.FormatBool(v)
	case string:
		return v
	case uint8:
		return strconv.FormatUint(uint64(v), 10)
	case uint16:
		return strconv.FormatUint(uint64(v), 10)
	case uint32:
		return strconv.FormatUint(uint64(v), 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	case int8, int16, int32, int64:
		return fmt.Sprintf("%d", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
