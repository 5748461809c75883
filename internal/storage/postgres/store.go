package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"voucherPools/internal/model"
)

// ErrPoolNotFound is returned when no metadata row exists for a pool.
var ErrPoolNotFound = errors.New("pool metadata not found")

// Store persists pool metadata and tag associations in Postgres.
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

// InsertPool writes the pool row and its tags in one transaction.
func (s *Store) InsertPool(ctx context.Context, meta model.PoolMetadata) error {
	if meta.Address == (common.Address{}) {
		return fmt.Errorf("%w: pool metadata without address", model.ErrInvalidAddress)
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO pools (
				pool_address, name, symbol, description, banner_url, owner_address, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		`,
			addressKey(meta.Address),
			meta.Name,
			meta.Symbol,
			meta.Description,
			nullable(meta.BannerURL),
			addressKey(meta.Owner),
		); err != nil {
			return fmt.Errorf("insert pool: %w", err)
		}
		return addTags(ctx, tx, meta.Address, meta.Tags)
	})
}

// UpdatePool rewrites the descriptive fields of an existing pool.
func (s *Store) UpdatePool(ctx context.Context, meta model.PoolMetadata) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE pools
		SET name = $2, symbol = $3, description = $4, banner_url = $5, updated_at = now()
		WHERE pool_address = $1
	`,
		addressKey(meta.Address),
		meta.Name,
		meta.Symbol,
		meta.Description,
		nullable(meta.BannerURL),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrPoolNotFound, meta.Address.Hex())
	}
	return nil
}

// AddTags associates tags with a pool; existing associations are kept.
func (s *Store) AddTags(ctx context.Context, pool common.Address, tags []string) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return addTags(ctx, tx, pool, tags)
	})
}

// RemoveTags drops tag associations from a pool.
func (s *Store) RemoveTags(ctx context.Context, pool common.Address, tags []string) error {
	tags = model.NormalizeTags(tags)
	if len(tags) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx, `
		DELETE FROM pool_tags WHERE pool_address = $1 AND tag = ANY($2)
	`, addressKey(pool), tags)
	return err
}

// DeletePool removes the metadata row; tags cascade. On-chain state is untouched.
func (s *Store) DeletePool(ctx context.Context, pool common.Address) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM pools WHERE pool_address = $1`, addressKey(pool))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrPoolNotFound, pool.Hex())
	}
	return nil
}

// GetPool loads metadata and tags for a pool.
func (s *Store) GetPool(ctx context.Context, pool common.Address) (model.PoolMetadata, error) {
	var (
		meta   model.PoolMetadata
		owner  string
		banner *string
	)
	row := s.pool.QueryRow(ctx, `
		SELECT name, symbol, description, banner_url, owner_address
		FROM pools WHERE pool_address = $1
	`, addressKey(pool))
	if err := row.Scan(&meta.Name, &meta.Symbol, &meta.Description, &banner, &owner); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.PoolMetadata{}, fmt.Errorf("%w: %s", ErrPoolNotFound, pool.Hex())
		}
		return model.PoolMetadata{}, err
	}
	meta.Address = pool
	meta.Owner = common.HexToAddress(owner)
	if banner != nil {
		meta.BannerURL = *banner
	}

	rows, err := s.pool.Query(ctx, `SELECT tag FROM pool_tags WHERE pool_address = $1 ORDER BY tag`, addressKey(pool))
	if err != nil {
		return model.PoolMetadata{}, err
	}
	tags, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return model.PoolMetadata{}, err
	}
	meta.Tags = tags
	return meta, nil
}

func addTags(ctx context.Context, tx pgx.Tx, pool common.Address, tags []string) error {
	tags = model.NormalizeTags(tags)
	if len(tags) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, tag := range tags {
		batch.Queue(`
			INSERT INTO pool_tags (pool_address, tag, created_at)
			VALUES ($1, $2, now())
			ON CONFLICT (pool_address, tag) DO NOTHING
		`, addressKey(pool), tag)
	}

	br := tx.SendBatch(ctx, batch)
	defer br.Close()

	for range tags {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("insert tag: %w", err)
		}
	}
	return nil
}

// addressKey is the stored form of an address: lowercase hex.
func addressKey(address common.Address) string {
	return strings.ToLower(address.Hex())
}

func nullable(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
