package registry

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Event names routed by the dispatcher.
const (
	EventAuctionCreated       = "AuctionCreated"
	EventAuctionFunded        = "AuctionFunded"
	EventBidSubmitted         = "BidSubmitted"
	EventBidExited            = "BidExited"
	EventTokensClaimed        = "TokensClaimed"
	EventClearingPriceUpdated = "ClearingPriceUpdated"
	EventAuctionGraduated     = "AuctionGraduated"

	// EventUnknown marks logs whose topic0 has no descriptor. They are
	// recorded but have no domain effect.
	EventUnknown = "Unknown"
)

const auctionABIJSON = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "auction", "type": "address"},
      {"indexed": true, "internalType": "address", "name": "token", "type": "address"},
      {"indexed": true, "internalType": "address", "name": "creator", "type": "address"},
      {"indexed": false, "internalType": "address", "name": "currency", "type": "address"},
      {"indexed": false, "internalType": "bytes", "name": "config", "type": "bytes"}
    ],
    "name": "AuctionCreated",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "auction", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "amount", "type": "uint256"}
    ],
    "name": "AuctionFunded",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "auction", "type": "address"},
      {"indexed": true, "internalType": "uint64", "name": "bidId", "type": "uint64"},
      {"indexed": true, "internalType": "address", "name": "bidder", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "maxPrice", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "amount", "type": "uint256"}
    ],
    "name": "BidSubmitted",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "auction", "type": "address"},
      {"indexed": true, "internalType": "uint64", "name": "bidId", "type": "uint64"},
      {"indexed": false, "internalType": "uint256", "name": "refund", "type": "uint256"}
    ],
    "name": "BidExited",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "auction", "type": "address"},
      {"indexed": true, "internalType": "uint64", "name": "bidId", "type": "uint64"},
      {"indexed": true, "internalType": "address", "name": "claimer", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "filledAmount", "type": "uint256"}
    ],
    "name": "TokensClaimed",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "auction", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "price", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "raised", "type": "uint256"}
    ],
    "name": "ClearingPriceUpdated",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "auction", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "raised", "type": "uint256"}
    ],
    "name": "AuctionGraduated",
    "type": "event"
  }
]`

var (
	auctionABI     abi.ABI
	auctionABIOnce sync.Once
	auctionABIErr  error
)

// AuctionABI returns the parsed auction platform ABI.
func AuctionABI() (abi.ABI, error) {
	auctionABIOnce.Do(func() {
		auctionABI, auctionABIErr = abi.JSON(strings.NewReader(auctionABIJSON))
	})
	return auctionABI, auctionABIErr
}
