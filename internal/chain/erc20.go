package chain

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const erc20ABIStringJSON = `[
  {"inputs": [], "name": "decimals", "outputs": [{"type": "uint8"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "symbol", "outputs": [{"type": "string"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "name", "outputs": [{"type": "string"}], "stateMutability": "view", "type": "function"}
]`

const erc20ABIBytes32JSON = `[
  {"inputs": [], "name": "decimals", "outputs": [{"type": "uint8"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "symbol", "outputs": [{"type": "bytes32"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "name", "outputs": [{"type": "bytes32"}], "stateMutability": "view", "type": "function"}
]`

var (
	erc20ABIString      abi.ABI
	erc20ABIStringOnce  sync.Once
	erc20ABIStringErr   error
	erc20ABIBytes32     abi.ABI
	erc20ABIBytes32Once sync.Once
	erc20ABIBytes32Err  error
)

func erc20ABIStringInstance() (abi.ABI, error) {
	erc20ABIStringOnce.Do(func() {
		erc20ABIString, erc20ABIStringErr = abi.JSON(strings.NewReader(erc20ABIStringJSON))
	})
	return erc20ABIString, erc20ABIStringErr
}

func erc20ABIBytes32Instance() (abi.ABI, error) {
	erc20ABIBytes32Once.Do(func() {
		erc20ABIBytes32, erc20ABIBytes32Err = abi.JSON(strings.NewReader(erc20ABIBytes32JSON))
	})
	return erc20ABIBytes32, erc20ABIBytes32Err
}

// TokenInfo is on-chain ERC-20 metadata.
type TokenInfo struct {
	Address  string
	Name     string
	Symbol   string
	Decimals int32
}

// TokenInfoCache caches token info by address for the process lifetime.
type TokenInfoCache struct {
	mu   sync.RWMutex
	data map[common.Address]TokenInfo
}

func NewTokenInfoCache() *TokenInfoCache {
	return &TokenInfoCache{data: make(map[common.Address]TokenInfo)}
}

func (c *TokenInfoCache) Get(address common.Address) (TokenInfo, bool) {
	c.mu.RLock()
	info, ok := c.data[address]
	c.mu.RUnlock()
	return info, ok
}

func (c *TokenInfoCache) Set(address common.Address, info TokenInfo) {
	c.mu.Lock()
	c.data[address] = info
	c.mu.Unlock()
}

// ContractCaller is the eth_call surface FetchTokenInfo needs.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// FetchTokenInfo reads name/symbol/decimals for a token, trying the string
// ABI first and falling back to the bytes32 variant used by older tokens.
func FetchTokenInfo(ctx context.Context, caller ContractCaller, token common.Address) (TokenInfo, error) {
	stringABI, err := erc20ABIStringInstance()
	if err != nil {
		return TokenInfo{}, fmt.Errorf("parse erc20 abi: %w", err)
	}

	info := TokenInfo{Address: token.Hex(), Decimals: 18}

	if values, err := callMethod(ctx, caller, token, stringABI, "decimals"); err == nil && len(values) == 1 {
		switch v := values[0].(type) {
		case uint8:
			info.Decimals = int32(v)
		case *big.Int:
			info.Decimals = int32(v.Int64())
		}
	}

	name, nameErr := callStringMethod(ctx, caller, token, "name")
	symbol, symbolErr := callStringMethod(ctx, caller, token, "symbol")
	if nameErr != nil && symbolErr != nil {
		return info, fmt.Errorf("token %s metadata: %v", token.Hex(), nameErr)
	}
	info.Name = name
	info.Symbol = symbol
	return info, nil
}

func callStringMethod(ctx context.Context, caller ContractCaller, token common.Address, method string) (string, error) {
	stringABI, err := erc20ABIStringInstance()
	if err != nil {
		return "", err
	}
	if values, err := callMethod(ctx, caller, token, stringABI, method); err == nil && len(values) == 1 {
		if s, ok := values[0].(string); ok {
			return strings.TrimSpace(s), nil
		}
	}

	bytes32ABI, err := erc20ABIBytes32Instance()
	if err != nil {
		return "", err
	}
	values, err := callMethod(ctx, caller, token, bytes32ABI, method)
	if err != nil {
		return "", err
	}
	if len(values) == 1 {
		if b, ok := values[0].([32]byte); ok {
			return string(bytes.TrimRight(b[:], "\x00")), nil
		}
	}
	return "", fmt.Errorf("%s: unexpected return shape", method)
}

func callMethod(ctx context.Context, caller ContractCaller, to common.Address, contractABI abi.ABI, method string) ([]interface{}, error) {
	data, err := contractABI.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &to, Data: data}
	resp, err := caller.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := contractABI.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return values, nil
}
