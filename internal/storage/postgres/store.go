package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/ParthMishra20/pokedex/internal/storage"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const (
	configKeyFeeBasisPoints = "fee_basis_points"
	configKeyTreasury       = "treasury"
)

// Store persists marketplace state in Postgres. Every write is an upsert so
// the ledger can blindly write through; ApplySale runs inside a single
// transaction to keep sales atomic on disk.
type Store struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

func NewStore(dsn string, logger *zap.SugaredLogger) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// NewStoreWithDB wraps an existing connection, used by tests.
func NewStoreWithDB(db *sql.DB, logger *zap.SugaredLogger) *Store {
	return &Store{db: db, logger: logger}
}

func (s *Store) SaveAsset(ctx context.Context, rec storage.AssetRecord) error {
	query := `
		INSERT INTO assets (id, owner, source_id, name, rarity_tier, shiny, delegate, minted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			owner = EXCLUDED.owner,
			delegate = EXCLUDED.delegate
	`
	_, err := s.db.ExecContext(ctx, query,
		rec.ID, rec.Owner, rec.SourceID, rec.Name, rec.RarityTier, rec.Shiny, rec.Delegate, rec.MintedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save asset: %w", err)
	}
	return nil
}

func (s *Store) SaveItem(ctx context.Context, rec storage.ItemRecord) error {
	if _, err := s.db.ExecContext(ctx, upsertItemQuery, itemArgs(rec)...); err != nil {
		return fmt.Errorf("failed to save market item: %w", err)
	}
	return nil
}

const upsertItemQuery = `
	INSERT INTO market_items (item_id, asset_id, seller, owner, price, sold, listed_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (item_id) DO UPDATE SET
		owner = EXCLUDED.owner,
		sold = EXCLUDED.sold
`

func itemArgs(rec storage.ItemRecord) []any {
	return []any{rec.ItemID, rec.AssetID, rec.Seller, rec.Owner, rec.Price.String(), rec.Sold, rec.ListedAt}
}

func (s *Store) DeleteItem(ctx context.Context, itemID uint64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM market_items WHERE item_id = $1`, itemID)
	if err != nil {
		return fmt.Errorf("failed to delete market item: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ApplySale finalizes the item, moves asset ownership, and credits the
// seller and treasury in one transaction.
func (s *Store) ApplySale(ctx context.Context, upd storage.SaleUpdate) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, upsertItemQuery, itemArgs(upd.Item)...); err != nil {
		return fmt.Errorf("failed to finalize item: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE assets SET owner = $2, delegate = '' WHERE id = $1`,
		upd.Asset.ID, upd.Asset.Owner,
	); err != nil {
		return fmt.Errorf("failed to move asset ownership: %w", err)
	}
	if _, err := tx.ExecContext(ctx, upsertProceedsQuery, upd.Seller, upd.Proceeds.String()); err != nil {
		return fmt.Errorf("failed to credit seller proceeds: %w", err)
	}
	if _, err := tx.ExecContext(ctx, upsertConfigQuery, configKeyTreasury, upd.Treasury.String()); err != nil {
		return fmt.Errorf("failed to credit treasury: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit sale: %w", err)
	}
	s.logger.Debugw("Sale persisted", "item_id", upd.Item.ItemID, "asset_id", upd.Asset.ID)
	return nil
}

const upsertConfigQuery = `
	INSERT INTO marketplace_config (key, value)
	VALUES ($1, $2)
	ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
`

const upsertProceedsQuery = `
	INSERT INTO proceeds (identity, amount)
	VALUES ($1, $2)
	ON CONFLICT (identity) DO UPDATE SET amount = EXCLUDED.amount
`

func (s *Store) SaveFeeBasisPoints(ctx context.Context, bps uint32) error {
	if _, err := s.db.ExecContext(ctx, upsertConfigQuery, configKeyFeeBasisPoints, strconv.FormatUint(uint64(bps), 10)); err != nil {
		return fmt.Errorf("failed to save fee config: %w", err)
	}
	return nil
}

func (s *Store) SaveTreasury(ctx context.Context, amount decimal.Decimal) error {
	if _, err := s.db.ExecContext(ctx, upsertConfigQuery, configKeyTreasury, amount.String()); err != nil {
		return fmt.Errorf("failed to save treasury: %w", err)
	}
	return nil
}

func (s *Store) SaveProceeds(ctx context.Context, identity string, amount decimal.Decimal) error {
	if _, err := s.db.ExecContext(ctx, upsertProceedsQuery, identity, amount.String()); err != nil {
		return fmt.Errorf("failed to save proceeds: %w", err)
	}
	return nil
}

func (s *Store) SaveCounter(ctx context.Context, name string, value uint64) error {
	query := `
		INSERT INTO counters (name, value)
		VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value
	`
	if _, err := s.db.ExecContext(ctx, query, name, value); err != nil {
		return fmt.Errorf("failed to save counter: %w", err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context) (*storage.Snapshot, error) {
	snap := &storage.Snapshot{
		Treasury: decimal.Zero,
		Proceeds: make(map[string]decimal.Decimal),
		Counters: make(map[string]uint64),
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner, source_id, name, rarity_tier, shiny, delegate, minted_at FROM assets ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to load assets: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var rec storage.AssetRecord
		if err := rows.Scan(&rec.ID, &rec.Owner, &rec.SourceID, &rec.Name, &rec.RarityTier, &rec.Shiny, &rec.Delegate, &rec.MintedAt); err != nil {
			return nil, fmt.Errorf("failed to scan asset: %w", err)
		}
		snap.Assets = append(snap.Assets, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("asset iteration error: %w", err)
	}

	itemRows, err := s.db.QueryContext(ctx,
		`SELECT item_id, asset_id, seller, owner, price, sold, listed_at FROM market_items ORDER BY item_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to load market items: %w", err)
	}
	defer itemRows.Close()
	for itemRows.Next() {
		var rec storage.ItemRecord
		var price string
		if err := itemRows.Scan(&rec.ItemID, &rec.AssetID, &rec.Seller, &rec.Owner, &price, &rec.Sold, &rec.ListedAt); err != nil {
			return nil, fmt.Errorf("failed to scan market item: %w", err)
		}
		if rec.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("invalid stored price %q: %w", price, err)
		}
		snap.Items = append(snap.Items, rec)
	}
	if err := itemRows.Err(); err != nil {
		return nil, fmt.Errorf("market item iteration error: %w", err)
	}

	balRows, err := s.db.QueryContext(ctx, `SELECT identity, amount FROM proceeds`)
	if err != nil {
		return nil, fmt.Errorf("failed to load proceeds: %w", err)
	}
	defer balRows.Close()
	for balRows.Next() {
		var identity, amount string
		if err := balRows.Scan(&identity, &amount); err != nil {
			return nil, fmt.Errorf("failed to scan proceeds: %w", err)
		}
		d, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("invalid stored proceeds %q: %w", amount, err)
		}
		snap.Proceeds[identity] = d
	}
	if err := balRows.Err(); err != nil {
		return nil, fmt.Errorf("proceeds iteration error: %w", err)
	}

	ctrRows, err := s.db.QueryContext(ctx, `SELECT name, value FROM counters`)
	if err != nil {
		return nil, fmt.Errorf("failed to load counters: %w", err)
	}
	defer ctrRows.Close()
	for ctrRows.Next() {
		var name string
		var value uint64
		if err := ctrRows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("failed to scan counter: %w", err)
		}
		snap.Counters[name] = value
	}
	if err := ctrRows.Err(); err != nil {
		return nil, fmt.Errorf("counter iteration error: %w", err)
	}

	cfgRows, err := s.db.QueryContext(ctx, `SELECT key, value FROM marketplace_config`)
	if err != nil {
		return nil, fmt.Errorf("failed to load marketplace config: %w", err)
	}
	defer cfgRows.Close()
	for cfgRows.Next() {
		var key, value string
		if err := cfgRows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan marketplace config: %w", err)
		}
		switch key {
		case configKeyFeeBasisPoints:
			bps, err := strconv.ParseUint(value, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("invalid stored fee config %q: %w", value, err)
			}
			snap.FeeBasisPoints = uint32(bps)
			snap.FeeSet = true
		case configKeyTreasury:
			if snap.Treasury, err = decimal.NewFromString(value); err != nil {
				return nil, fmt.Errorf("invalid stored treasury %q: %w", value, err)
			}
		}
	}
	if err := cfgRows.Err(); err != nil {
		return nil, fmt.Errorf("marketplace config iteration error: %w", err)
	}

	return snap, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}
