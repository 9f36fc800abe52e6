package decode

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"auctionscan/internal/numeric"
)

// AuctionConfig is the decoded auction creation payload.
type AuctionConfig struct {
	Token           common.Address
	Currency        common.Address
	FloorPrice      *big.Int // Q96 fixed point
	TargetRaise     *big.Int
	TotalSupply     *big.Int
	PoolShareBps    uint16
	CreatorShareBps uint16
	StartBlock      uint64
	EndBlock        uint64
	ClaimBlock      uint64
	Steps           []numeric.SaleStep
}

// Config decode tiers, attempted in order. The first tier whose result is
// structurally consistent wins.
const (
	TierTuple      = "tuple"
	TierFlat       = "flat"
	TierPositional = "positional"
)

type configStrategy struct {
	name   string
	decode func(data []byte) (*AuctionConfig, error)
}

var configStrategies = []configStrategy{
	{TierTuple, decodeTupleConfig},
	{TierFlat, decodeFlatConfig},
	{TierPositional, decodePositionalConfig},
}

// DecodeAuctionConfig runs the tiered decoder over a creation payload and
// returns the config plus the name of the tier that produced it. The
// positional tier is best-effort and never fails on malformed input; the
// overall decode fails only when every tier comes back empty.
func DecodeAuctionConfig(data []byte) (*AuctionConfig, string, error) {
	var lastErr error
	for _, strategy := range configStrategies {
		cfg, err := strategy.decode(data)
		if err != nil {
			lastErr = err
			continue
		}
		if cfg == nil {
			continue
		}
		return cfg, strategy.name, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("empty config payload")
	}
	return nil, "", fmt.Errorf("decode auction config: %w", lastErr)
}

type rawConfig struct {
	Token           common.Address
	Currency        common.Address
	FloorPrice      *big.Int
	TargetRaise     *big.Int
	TotalSupply     *big.Int
	PoolShareBps    uint16
	CreatorShareBps uint16
	StartBlock      uint64
	EndBlock        uint64
	ClaimBlock      uint64
	Steps           []byte
}

var configComponents = []abi.ArgumentMarshaling{
	{Name: "token", Type: "address"},
	{Name: "currency", Type: "address"},
	{Name: "floorPrice", Type: "uint256"},
	{Name: "targetRaise", Type: "uint256"},
	{Name: "totalSupply", Type: "uint256"},
	{Name: "poolShareBps", Type: "uint16"},
	{Name: "creatorShareBps", Type: "uint16"},
	{Name: "startBlock", Type: "uint64"},
	{Name: "endBlock", Type: "uint64"},
	{Name: "claimBlock", Type: "uint64"},
	{Name: "steps", Type: "bytes"},
}

func tupleArguments() (abi.Arguments, error) {
	typ, err := abi.NewType("tuple", "", configComponents)
	if err != nil {
		return nil, err
	}
	return abi.Arguments{{Name: "config", Type: typ}}, nil
}

func flatArguments() (abi.Arguments, error) {
	args := make(abi.Arguments, 0, len(configComponents))
	for _, c := range configComponents {
		typ, err := abi.NewType(c.Type, "", nil)
		if err != nil {
			return nil, err
		}
		args = append(args, abi.Argument{Name: c.Name, Type: typ})
	}
	return args, nil
}

// decodeTupleConfig handles the canonical tuple-wrapped encoding.
func decodeTupleConfig(data []byte) (*AuctionConfig, error) {
	args, err := tupleArguments()
	if err != nil {
		return nil, err
	}
	values, err := args.Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("tuple unpack: %w", err)
	}
	raw := *abi.ConvertType(values[0], new(rawConfig)).(*rawConfig)
	return fromRawConfig(raw)
}

// decodeFlatConfig handles the legacy encoding without the outer tuple
// wrapper.
func decodeFlatConfig(data []byte) (*AuctionConfig, error) {
	args, err := flatArguments()
	if err != nil {
		return nil, err
	}
	values, err := args.Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("flat unpack: %w", err)
	}
	if len(values) != len(configComponents) {
		return nil, fmt.Errorf("flat unpack yielded %d values", len(values))
	}

	raw := rawConfig{}
	ok := true
	assertAddr := func(v interface{}) common.Address {
		a, castOK := v.(common.Address)
		ok = ok && castOK
		return a
	}
	assertBig := func(v interface{}) *big.Int {
		b, castOK := v.(*big.Int)
		ok = ok && castOK
		return b
	}
	assertU16 := func(v interface{}) uint16 {
		u, castOK := v.(uint16)
		ok = ok && castOK
		return u
	}
	assertU64 := func(v interface{}) uint64 {
		u, castOK := v.(uint64)
		ok = ok && castOK
		return u
	}

	raw.Token = assertAddr(values[0])
	raw.Currency = assertAddr(values[1])
	raw.FloorPrice = assertBig(values[2])
	raw.TargetRaise = assertBig(values[3])
	raw.TotalSupply = assertBig(values[4])
	raw.PoolShareBps = assertU16(values[5])
	raw.CreatorShareBps = assertU16(values[6])
	raw.StartBlock = assertU64(values[7])
	raw.EndBlock = assertU64(values[8])
	raw.ClaimBlock = assertU64(values[9])
	raw.Steps, _ = values[10].([]byte)
	if !ok {
		return nil, fmt.Errorf("flat unpack yielded unexpected value types")
	}
	return fromRawConfig(raw)
}

// decodePositionalConfig is the last-resort tier: fixed 32-byte slots read
// positionally, with whatever trails slot 10 treated as the packed step
// schedule. It never fails; too-short input yields a nil config.
func decodePositionalConfig(data []byte) (*AuctionConfig, error) {
	if len(data) < 64 {
		return nil, nil
	}

	slot := func(i int) []byte {
		start := i * 32
		if start+32 > len(data) {
			return nil
		}
		return data[start : start+32]
	}
	word := func(i int) *big.Int {
		b := slot(i)
		if b == nil {
			return nil
		}
		return new(big.Int).SetBytes(b)
	}
	u64 := func(i int) uint64 {
		v := word(i)
		if v == nil || !v.IsUint64() {
			return 0
		}
		return v.Uint64()
	}

	cfg := &AuctionConfig{
		Token:    common.BytesToAddress(slot(0)),
		Currency: common.BytesToAddress(slot(1)),
	}
	cfg.FloorPrice = word(2)
	cfg.TargetRaise = word(3)
	cfg.TotalSupply = word(4)
	if v := u64(5); v <= 10_000 {
		cfg.PoolShareBps = uint16(v)
	}
	if v := u64(6); v <= 10_000 {
		cfg.CreatorShareBps = uint16(v)
	}
	cfg.StartBlock = u64(7)
	cfg.EndBlock = u64(8)
	cfg.ClaimBlock = u64(9)
	if len(data) > 320 {
		cfg.Steps = numeric.DecodeSaleSteps(data[320:])
	}
	return cfg, nil
}

// fromRawConfig converts an unpacked config, rejecting structurally
// inconsistent results so an ABI parse that merely "succeeded" on the wrong
// layout does not win its tier.
func fromRawConfig(raw rawConfig) (*AuctionConfig, error) {
	if raw.Token == (common.Address{}) {
		return nil, fmt.Errorf("zero token address")
	}
	if raw.PoolShareBps > 10_000 || raw.CreatorShareBps > 10_000 ||
		uint32(raw.PoolShareBps)+uint32(raw.CreatorShareBps) > 10_000 {
		return nil, fmt.Errorf("distribution shares exceed 100%%: pool=%d creator=%d", raw.PoolShareBps, raw.CreatorShareBps)
	}
	if raw.EndBlock < raw.StartBlock || (raw.ClaimBlock > 0 && raw.ClaimBlock < raw.EndBlock) {
		return nil, fmt.Errorf("inconsistent block boundaries: start=%d end=%d claim=%d", raw.StartBlock, raw.EndBlock, raw.ClaimBlock)
	}

	return &AuctionConfig{
		Token:           raw.Token,
		Currency:        raw.Currency,
		FloorPrice:      raw.FloorPrice,
		TargetRaise:     raw.TargetRaise,
		TotalSupply:     raw.TotalSupply,
		PoolShareBps:    raw.PoolShareBps,
		CreatorShareBps: raw.CreatorShareBps,
		StartBlock:      raw.StartBlock,
		EndBlock:        raw.EndBlock,
		ClaimBlock:      raw.ClaimBlock,
		Steps:           numeric.DecodeSaleSteps(raw.Steps),
	}, nil
}

// EncodeAuctionConfig packs a config in either the canonical tuple layout or
// the legacy flat layout. Used by tests and repair tooling.
func EncodeAuctionConfig(cfg AuctionConfig, wrapped bool) ([]byte, error) {
	raw := rawConfig{
		Token:           cfg.Token,
		Currency:        cfg.Currency,
		FloorPrice:      orZero(cfg.FloorPrice),
		TargetRaise:     orZero(cfg.TargetRaise),
		TotalSupply:     orZero(cfg.TotalSupply),
		PoolShareBps:    cfg.PoolShareBps,
		CreatorShareBps: cfg.CreatorShareBps,
		StartBlock:      cfg.StartBlock,
		EndBlock:        cfg.EndBlock,
		ClaimBlock:      cfg.ClaimBlock,
		Steps:           numeric.EncodeSaleSteps(cfg.Steps),
	}

	if wrapped {
		args, err := tupleArguments()
		if err != nil {
			return nil, err
		}
		return args.Pack(raw)
	}

	args, err := flatArguments()
	if err != nil {
		return nil, err
	}
	return args.Pack(
		raw.Token, raw.Currency, raw.FloorPrice, raw.TargetRaise, raw.TotalSupply,
		raw.PoolShareBps, raw.CreatorShareBps, raw.StartBlock, raw.EndBlock, raw.ClaimBlock,
		raw.Steps,
	)
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
