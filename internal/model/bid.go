package model

import "time"

// BidStatus is the bid lifecycle state.
type BidStatus string

const (
	BidOpen            BidStatus = "open"
	BidFilled          BidStatus = "filled"
	BidPartiallyFilled BidStatus = "partially_filled"
	BidCancelled       BidStatus = "cancelled"
	BidClaimed         BidStatus = "claimed"
)

// Bid is one bid on an auction, keyed by (ChainID, AuctionAddress, BidID).
// Amount and price fields are exact decimal strings derived through the
// numeric codec, never floats.
type Bid struct {
	ChainID        uint64    `json:"chain_id"`
	AuctionAddress string    `json:"auction_address"`
	BidID          uint64    `json:"bid_id"`
	Bidder         string    `json:"bidder"`
	Status         BidStatus `json:"status"`
	MaxPrice       string    `json:"max_price"`
	Amount         string    `json:"amount"`
	FilledAmount   string    `json:"filled_amount,omitempty"`
	SubmittedBlock uint64    `json:"submitted_block"`
	UpdatedAt      time.Time `json:"updated_at"`
}
