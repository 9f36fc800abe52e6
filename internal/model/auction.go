package model

import "time"

// AuctionStatus is the auction lifecycle state machine:
// created -> planned -> active -> {ended|graduated} -> claimable.
// The store always applies the latest known status rather than enforcing
// forward-only transitions, because re-scans revisit already-advanced state.
type AuctionStatus string

const (
	AuctionCreated   AuctionStatus = "created"
	AuctionPlanned   AuctionStatus = "planned"
	AuctionActive    AuctionStatus = "active"
	AuctionEnded     AuctionStatus = "ended"
	AuctionGraduated AuctionStatus = "graduated"
	AuctionClaimable AuctionStatus = "claimable"
)

// StatusForBlock derives the scan-time status from block boundaries. It never
// downgrades a graduated auction.
func StatusForBlock(current AuctionStatus, block, startBlock, endBlock, claimBlock uint64) AuctionStatus {
	if current == AuctionGraduated {
		if claimBlock > 0 && block >= claimBlock {
			return AuctionClaimable
		}
		return AuctionGraduated
	}
	switch {
	case claimBlock > 0 && block >= claimBlock:
		return AuctionClaimable
	case endBlock > 0 && block >= endBlock:
		return AuctionEnded
	case startBlock > 0 && block >= startBlock:
		return AuctionActive
	default:
		return AuctionPlanned
	}
}

// Auction is the materialized view of one auction contract, keyed by
// (ChainID, Address). Money fields are exact decimal strings.
type Auction struct {
	ChainID         uint64        `json:"chain_id"`
	Address         string        `json:"address"`
	Status          AuctionStatus `json:"status"`
	TokenAddress    string        `json:"token_address"`
	TokenName       string        `json:"token_name,omitempty"`
	TokenSymbol     string        `json:"token_symbol,omitempty"`
	TokenDecimals   int32         `json:"token_decimals"`
	Currency        string        `json:"currency"`
	CurrencyDecimal int32         `json:"currency_decimals"`
	FloorPrice      string        `json:"floor_price"`
	ClearingPrice   string        `json:"clearing_price,omitempty"`
	TargetRaise     string        `json:"target_raise"`
	RaisedAmount    string        `json:"raised_amount,omitempty"`
	TotalSupply     string        `json:"total_supply"`
	AuctionSupply   string        `json:"auction_supply,omitempty"`
	PoolSupply      string        `json:"pool_supply,omitempty"`
	CreatorSupply   string        `json:"creator_supply,omitempty"`
	StartBlock      uint64        `json:"start_block"`
	EndBlock        uint64        `json:"end_block"`
	ClaimBlock      uint64        `json:"claim_block"`
	CreatedLogID    int64         `json:"created_log_id,omitempty"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// ClearingPrice is one append-only price history row.
type ClearingPrice struct {
	ChainID        uint64    `json:"chain_id"`
	AuctionAddress string    `json:"auction_address"`
	BlockNumber    uint64    `json:"block_number"`
	LogIndex       uint64    `json:"log_index"`
	Price          string    `json:"price"`
	RaisedAmount   string    `json:"raised_amount"`
	RecordedAt     time.Time `json:"recorded_at"`
}
