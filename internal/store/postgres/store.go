package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"auctionscan/internal/model"
	"auctionscan/internal/store"
)

// Store provides Postgres persistence for the ingestion pipeline. Schema and
// migrations are managed out of band; the uniqueness constraints on
// (chain_id, block_number, tx_hash, log_index) and
// (chain_id, auction_address, bid_id) are assumed present.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// RecordLog implements the insert-or-claim protocol. The conditional update
// with is_error=true in its WHERE clause is what guarantees at most one
// concurrent claimer per failed log.
func (s *Store) RecordLog(ctx context.Context, log *model.ProcessedLog) (store.RecordResult, error) {
	params, err := log.ParamsJSON()
	if err != nil {
		return store.RecordResult{}, fmt.Errorf("marshal params: %w", err)
	}

	var id int64
	err = s.pool.QueryRow(ctx, `
		INSERT INTO processed_logs (
			chain_id, block_number, tx_hash, log_index,
			address, topic_hash, event_name, params, is_error, source, processed_at
		) VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, false, $9, now())
		ON CONFLICT (chain_id, block_number, tx_hash, log_index) DO NOTHING
		RETURNING id
	`,
		int64(log.LogKey.ChainID),
		int64(log.LogKey.BlockNumber),
		log.LogKey.TxHash,
		int64(log.LogKey.LogIndex),
		log.Address,
		log.TopicHash,
		log.EventName,
		params,
		string(log.Source),
	).Scan(&id)
	if err == nil {
		log.ID = id
		return store.RecordResult{ID: id, Status: store.StatusInserted}, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return store.RecordResult{}, fmt.Errorf("insert log: %w", err)
	}

	err = s.pool.QueryRow(ctx, `
		UPDATE processed_logs
		SET is_error = false,
			topic_hash = NULLIF($5, ''),
			event_name = $6,
			params = $7,
			source = $8,
			processed_at = now()
		WHERE chain_id = $1 AND block_number = $2 AND tx_hash = $3 AND log_index = $4
		  AND is_error = true
		RETURNING id
	`,
		int64(log.LogKey.ChainID),
		int64(log.LogKey.BlockNumber),
		log.LogKey.TxHash,
		int64(log.LogKey.LogIndex),
		log.TopicHash,
		log.EventName,
		params,
		string(log.Source),
	).Scan(&id)
	if err == nil {
		log.ID = id
		return store.RecordResult{ID: id, Status: store.StatusRetry}, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return store.RecordResult{}, fmt.Errorf("claim log: %w", err)
	}

	// Exists and is not in error state: already processed.
	err = s.pool.QueryRow(ctx, `
		SELECT id FROM processed_logs
		WHERE chain_id = $1 AND block_number = $2 AND tx_hash = $3 AND log_index = $4
	`,
		int64(log.LogKey.ChainID),
		int64(log.LogKey.BlockNumber),
		log.LogKey.TxHash,
		int64(log.LogKey.LogIndex),
	).Scan(&id)
	if err != nil {
		return store.RecordResult{}, fmt.Errorf("lookup log: %w", err)
	}
	log.ID = id
	return store.RecordResult{ID: id, Status: store.StatusSkipped}, nil
}

func (s *Store) MarkLogError(ctx context.Context, logID int64, kind model.ErrorKind, message string) error {
	batch := &pgx.Batch{}
	batch.Queue(`UPDATE processed_logs SET is_error = true WHERE id = $1`, logID)
	batch.Queue(`
		INSERT INTO processed_log_errors (log_id, kind, message, occurred_at)
		VALUES ($1, $2, $3, now())
	`, logID, string(kind), message)

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for i := 0; i < 2; i++ {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("mark log error: %w", err)
		}
	}
	return nil
}

func (s *Store) ClearLogErrors(ctx context.Context, logID int64) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM processed_log_errors WHERE log_id = $1`, logID)
	return err
}

func (s *Store) LogErrors(ctx context.Context, logID int64) ([]model.ProcessedLogError, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, log_id, kind, message, COALESCE(stack, ''), occurred_at
		FROM processed_log_errors
		WHERE log_id = $1
		ORDER BY id
	`, logID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.ProcessedLogError, 0)
	for rows.Next() {
		var rec model.ProcessedLogError
		var kind string
		if err := rows.Scan(&rec.ID, &rec.LogID, &kind, &rec.Message, &rec.Stack, &rec.OccurredAt); err != nil {
			return nil, err
		}
		rec.Kind = model.ErrorKind(kind)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) GetLogByID(ctx context.Context, id int64) (*model.ProcessedLog, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, chain_id, block_number, tx_hash, log_index,
			address, COALESCE(topic_hash, ''), event_name, params, is_error, source, processed_at
		FROM processed_logs
		WHERE id = $1
	`, id)

	var rec model.ProcessedLog
	var params []byte
	var source string
	err := row.Scan(
		&rec.ID, &rec.LogKey.ChainID, &rec.LogKey.BlockNumber, &rec.LogKey.TxHash, &rec.LogKey.LogIndex,
		&rec.Address, &rec.TopicHash, &rec.EventName, &params, &rec.IsError, &source, &rec.ProcessedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rec.Source = model.IngestSource(source)
	if len(params) > 0 {
		if err := json.Unmarshal(params, &rec.Params); err != nil {
			return nil, fmt.Errorf("log %d params: %w", id, err)
		}
	}
	return &rec, nil
}

func (s *Store) GetAuction(ctx context.Context, chainID uint64, address string) (*model.Auction, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT chain_id, address, status, token_address,
			COALESCE(token_name, ''), COALESCE(token_symbol, ''), token_decimals,
			currency, currency_decimals,
			floor_price, COALESCE(clearing_price, ''), target_raise, COALESCE(raised_amount, ''),
			total_supply, COALESCE(auction_supply, ''), COALESCE(pool_supply, ''), COALESCE(creator_supply, ''),
			start_block, end_block, claim_block, COALESCE(created_log_id, 0), updated_at
		FROM auctions
		WHERE chain_id = $1 AND lower(address) = lower($2)
	`, int64(chainID), address)

	var a model.Auction
	var status string
	err := row.Scan(
		&a.ChainID, &a.Address, &status, &a.TokenAddress,
		&a.TokenName, &a.TokenSymbol, &a.TokenDecimals,
		&a.Currency, &a.CurrencyDecimal,
		&a.FloorPrice, &a.ClearingPrice, &a.TargetRaise, &a.RaisedAmount,
		&a.TotalSupply, &a.AuctionSupply, &a.PoolSupply, &a.CreatorSupply,
		&a.StartBlock, &a.EndBlock, &a.ClaimBlock, &a.CreatedLogID, &a.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	a.Status = model.AuctionStatus(status)
	return &a, nil
}

func (s *Store) ListAuctions(ctx context.Context, chainID uint64) ([]model.Auction, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT chain_id, address, status, token_address,
			COALESCE(token_name, ''), COALESCE(token_symbol, ''), token_decimals,
			currency, currency_decimals,
			floor_price, COALESCE(clearing_price, ''), target_raise, COALESCE(raised_amount, ''),
			total_supply, COALESCE(auction_supply, ''), COALESCE(pool_supply, ''), COALESCE(creator_supply, ''),
			start_block, end_block, claim_block, COALESCE(created_log_id, 0), updated_at
		FROM auctions
		WHERE chain_id = $1
		ORDER BY lower(address)
	`, int64(chainID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.Auction, 0)
	for rows.Next() {
		var a model.Auction
		var status string
		if err := rows.Scan(
			&a.ChainID, &a.Address, &status, &a.TokenAddress,
			&a.TokenName, &a.TokenSymbol, &a.TokenDecimals,
			&a.Currency, &a.CurrencyDecimal,
			&a.FloorPrice, &a.ClearingPrice, &a.TargetRaise, &a.RaisedAmount,
			&a.TotalSupply, &a.AuctionSupply, &a.PoolSupply, &a.CreatorSupply,
			&a.StartBlock, &a.EndBlock, &a.ClaimBlock, &a.CreatedLogID, &a.UpdatedAt,
		); err != nil {
			return nil, err
		}
		a.Status = model.AuctionStatus(status)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) UpsertAuction(ctx context.Context, a *model.Auction) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO auctions (
			chain_id, address, status, token_address, token_name, token_symbol, token_decimals,
			currency, currency_decimals, floor_price, clearing_price, target_raise, raised_amount,
			total_supply, auction_supply, pool_supply, creator_supply,
			start_block, end_block, claim_block, created_log_id, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,NULLIF($11,''),$12,NULLIF($13,''),$14,
			NULLIF($15,''),NULLIF($16,''),NULLIF($17,''),$18,$19,$20,NULLIF($21,0),now(),now())
		ON CONFLICT (chain_id, address)
		DO UPDATE SET
			status = EXCLUDED.status,
			token_address = EXCLUDED.token_address,
			token_name = COALESCE(NULLIF(EXCLUDED.token_name, ''), auctions.token_name),
			token_symbol = COALESCE(NULLIF(EXCLUDED.token_symbol, ''), auctions.token_symbol),
			token_decimals = EXCLUDED.token_decimals,
			currency = EXCLUDED.currency,
			currency_decimals = EXCLUDED.currency_decimals,
			floor_price = EXCLUDED.floor_price,
			clearing_price = COALESCE(EXCLUDED.clearing_price, auctions.clearing_price),
			target_raise = EXCLUDED.target_raise,
			raised_amount = COALESCE(EXCLUDED.raised_amount, auctions.raised_amount),
			total_supply = EXCLUDED.total_supply,
			auction_supply = COALESCE(EXCLUDED.auction_supply, auctions.auction_supply),
			pool_supply = COALESCE(EXCLUDED.pool_supply, auctions.pool_supply),
			creator_supply = COALESCE(EXCLUDED.creator_supply, auctions.creator_supply),
			start_block = EXCLUDED.start_block,
			end_block = EXCLUDED.end_block,
			claim_block = EXCLUDED.claim_block,
			created_log_id = COALESCE(auctions.created_log_id, EXCLUDED.created_log_id),
			updated_at = now()
	`,
		int64(a.ChainID), a.Address, string(a.Status), a.TokenAddress, a.TokenName, a.TokenSymbol, a.TokenDecimals,
		a.Currency, a.CurrencyDecimal, a.FloorPrice, a.ClearingPrice, a.TargetRaise, a.RaisedAmount,
		a.TotalSupply, a.AuctionSupply, a.PoolSupply, a.CreatorSupply,
		int64(a.StartBlock), int64(a.EndBlock), int64(a.ClaimBlock), a.CreatedLogID,
	)
	return err
}

func (s *Store) GetBid(ctx context.Context, chainID uint64, auctionAddress string, bidID uint64) (*model.Bid, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT chain_id, auction_address, bid_id, bidder, status,
			max_price, amount, COALESCE(filled_amount, ''), submitted_block, updated_at
		FROM bids
		WHERE chain_id = $1 AND lower(auction_address) = lower($2) AND bid_id = $3
	`, int64(chainID), auctionAddress, int64(bidID))

	var b model.Bid
	var status string
	err := row.Scan(
		&b.ChainID, &b.AuctionAddress, &b.BidID, &b.Bidder, &status,
		&b.MaxPrice, &b.Amount, &b.FilledAmount, &b.SubmittedBlock, &b.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	b.Status = model.BidStatus(status)
	return &b, nil
}

func (s *Store) UpsertBid(ctx context.Context, b *model.Bid) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO bids (
			chain_id, auction_address, bid_id, bidder, status,
			max_price, amount, filled_amount, submitted_block, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,NULLIF($8,''),$9,now(),now())
		ON CONFLICT (chain_id, auction_address, bid_id)
		DO UPDATE SET
			bidder = EXCLUDED.bidder,
			status = EXCLUDED.status,
			max_price = EXCLUDED.max_price,
			amount = EXCLUDED.amount,
			filled_amount = COALESCE(EXCLUDED.filled_amount, bids.filled_amount),
			submitted_block = EXCLUDED.submitted_block,
			updated_at = now()
	`,
		int64(b.ChainID), b.AuctionAddress, int64(b.BidID), b.Bidder, string(b.Status),
		b.MaxPrice, b.Amount, b.FilledAmount, int64(b.SubmittedBlock),
	)
	return err
}

func (s *Store) AppendClearingPrice(ctx context.Context, row model.ClearingPrice) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO clearing_prices (
			chain_id, auction_address, block_number, log_index, price, raised_amount, recorded_at
		) VALUES ($1,$2,$3,$4,$5,$6,now())
		ON CONFLICT (chain_id, auction_address, block_number, log_index) DO NOTHING
	`,
		int64(row.ChainID), row.AuctionAddress, int64(row.BlockNumber), int64(row.LogIndex),
		row.Price, row.RaisedAmount,
	)
	return err
}

func (s *Store) LoadEventTopics(ctx context.Context) ([]model.EventTopic, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT topic_hash, name, signatures, params FROM event_topics
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.EventTopic, 0)
	for rows.Next() {
		var topic model.EventTopic
		var signatures, params []byte
		if err := rows.Scan(&topic.TopicHash, &topic.Name, &signatures, &params); err != nil {
			return nil, err
		}
		if len(signatures) > 0 {
			if err := json.Unmarshal(signatures, &topic.Signatures); err != nil {
				return nil, fmt.Errorf("topic %s signatures: %w", topic.TopicHash, err)
			}
		}
		if len(params) > 0 {
			if err := json.Unmarshal(params, &topic.Params); err != nil {
				return nil, fmt.Errorf("topic %s params: %w", topic.TopicHash, err)
			}
		}
		out = append(out, topic)
	}
	return out, rows.Err()
}

var _ store.Store = (*Store)(nil)
