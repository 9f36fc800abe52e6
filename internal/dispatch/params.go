package dispatch

import (
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"auctionscan/internal/model"
)

// Param extraction helpers. Absence is a structured missing-params error
// naming the event and parameter; a present-but-malformed value is a decode
// error.

func stringParam(event string, params map[string]string, name string) (string, error) {
	value, ok := params[name]
	if !ok || value == "" {
		return "", model.MissingParam(event, name)
	}
	return value, nil
}

func addressParam(event string, params map[string]string, name string) (common.Address, error) {
	value, err := stringParam(event, params, name)
	if err != nil {
		return common.Address{}, err
	}
	if !common.IsHexAddress(value) {
		return common.Address{}, model.NewLogError(model.ErrDecode, event, "parameter %q is not an address: %s", name, value)
	}
	return common.HexToAddress(value), nil
}

func bigIntParam(event string, params map[string]string, name string) (*big.Int, error) {
	value, err := stringParam(event, params, name)
	if err != nil {
		return nil, err
	}
	parsed, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, model.NewLogError(model.ErrDecode, event, "parameter %q is not an integer: %s", name, value)
	}
	return parsed, nil
}

func uint64Param(event string, params map[string]string, name string) (uint64, error) {
	value, err := stringParam(event, params, name)
	if err != nil {
		return 0, err
	}
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, model.NewLogError(model.ErrDecode, event, "parameter %q is not a uint64: %s", name, value)
	}
	return parsed, nil
}

func bytesParam(event string, params map[string]string, name string) ([]byte, error) {
	value, err := stringParam(event, params, name)
	if err != nil {
		return nil, err
	}
	data, err := hexutil.Decode(value)
	if err != nil {
		return nil, model.NewLogError(model.ErrDecode, event, "parameter %q is not hex bytes: %v", name, err)
	}
	return data, nil
}
