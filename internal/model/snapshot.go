package model

// TokenMeta is best-effort token enrichment from an external metadata
// provider. Absence never fails ingestion.
type TokenMeta struct {
	Name        string            `json:"name,omitempty"`
	Description string            `json:"description,omitempty"`
	Links       map[string]string `json:"links,omitempty"`
}

// SupplyBreakdown splits an auction's total token supply by destination,
// derived from the distribution ratios in the auction configuration.
type SupplyBreakdown struct {
	Auction string `json:"auction"`
	Pool    string `json:"pool"`
	Creator string `json:"creator"`
}

// AuctionSnapshot is the immutable result of reconstructing an auction from
// its creation transaction and on-chain reads. Callers decide whether to
// upsert it.
type AuctionSnapshot struct {
	Auction     Auction         `json:"auction"`
	Supply      SupplyBreakdown `json:"supply"`
	Meta        *TokenMeta      `json:"meta,omitempty"`
	CreationTx  string          `json:"creation_tx"`
	CreationLog LogKey          `json:"creation_log"`
}
