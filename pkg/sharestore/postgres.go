package sharestore

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/TaceoLabs/oprf-service/pkg/keygen"
	"github.com/TaceoLabs/oprf-service/pkg/math/curve"
	"github.com/TaceoLabs/oprf-service/pkg/types"
)

// identifierRe guards the configurable schema name against injection.
var identifierRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// migrations create the two relations of the persisted state layout. The
// CHECK constraints enforce the tombstone invariant on shares and the
// singleton shape of evm_address; the trigger refreshes updated_at. One
// statement per entry: pgx's extended protocol rejects multi-statement
// strings.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS evm_address (
		id      boolean PRIMARY KEY DEFAULT TRUE,
		address text    NOT NULL,
		CHECK (id)
	)`,
	`CREATE TABLE IF NOT EXISTS shares (
		id         bytea PRIMARY KEY,
		share      bytea,
		epoch      bigint      NOT NULL,
		public_key bytea       NOT NULL,
		deleted    boolean     NOT NULL DEFAULT FALSE,
		created_at timestamptz NOT NULL DEFAULT now(),
		updated_at timestamptz NOT NULL DEFAULT now(),
		CHECK ((deleted = FALSE AND share IS NOT NULL) OR (deleted = TRUE AND share IS NULL))
	)`,
	`CREATE OR REPLACE FUNCTION refresh_updated_at() RETURNS trigger AS $$
	BEGIN
		NEW.updated_at = now();
		RETURN NEW;
	END;
	$$ LANGUAGE plpgsql`,
	`DROP TRIGGER IF EXISTS shares_refresh_updated_at ON shares`,
	`CREATE TRIGGER shares_refresh_updated_at
		BEFORE UPDATE ON shares
		FOR EACH ROW EXECUTE FUNCTION refresh_updated_at()`,
}

// PostgresStore is the production Store on a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore connects the pool, pins the search path to the schema
// and runs the migration.
func NewPostgresStore(ctx context.Context, connString, schema string) (*PostgresStore, error) {
	if !identifierRe.MatchString(schema) {
		return nil, fmt.Errorf("sharestore: invalid schema name %q", schema)
	}
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("sharestore: parsing connection string: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		if _, err := conn.Exec(ctx, fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %q`, schema)); err != nil {
			return err
		}
		_, err := conn.Exec(ctx, fmt.Sprintf(`SET search_path TO %q`, schema))
		return err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("sharestore: building pool: %w", err)
	}
	for _, stmt := range migrations {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			pool.Close()
			return nil, fmt.Errorf("sharestore: running migration: %w", err)
		}
	}
	return &PostgresStore{pool: pool}, nil
}

// UpsertShare implements Store. The stale-epoch guard runs inside the
// statement: a conflicting row with a strictly greater epoch matches no
// row, which surfaces as ErrStaleWrite.
func (s *PostgresStore) UpsertShare(ctx context.Context, id types.OprfKeyID, share keygen.Share, epoch types.ShareEpoch, publicKey curve.Point) error {
	pk, err := publicKey.MarshalBinary()
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO shares (id, share, epoch, public_key)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			share      = EXCLUDED.share,
			epoch      = EXCLUDED.epoch,
			public_key = EXCLUDED.public_key,
			deleted    = FALSE
		WHERE shares.deleted = TRUE OR shares.epoch <= EXCLUDED.epoch
	`, id[:], share.Bytes(), int64(epoch), pk)
	if err != nil {
		return fmt.Errorf("sharestore: storing share: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleWrite
	}
	return nil
}

// LoadShare implements Store.
func (s *PostgresStore) LoadShare(ctx context.Context, id types.OprfKeyID) (Record, error) {
	var (
		shareBytes []byte
		epoch      int64
		pkBytes    []byte
		deleted    bool
		rec        Record
	)
	err := s.pool.QueryRow(ctx, `
		SELECT share, epoch, public_key, deleted, created_at, updated_at
		FROM shares
		WHERE id = $1
	`, id[:]).Scan(&shareBytes, &epoch, &pkBytes, &deleted, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("sharestore: loading share: %w", err)
	}
	if deleted {
		return Record{}, ErrTombstone
	}
	share, err := keygen.ShareFromBytes(shareBytes)
	if err != nil {
		return Record{}, fmt.Errorf("sharestore: stored share is corrupt: %w", err)
	}
	var pk curve.Point
	if err := pk.UnmarshalBinary(pkBytes); err != nil {
		return Record{}, fmt.Errorf("sharestore: stored public key is corrupt: %w", err)
	}
	rec.Share = share
	rec.Epoch = types.ShareEpoch(epoch)
	rec.PublicKey = pk
	return rec, nil
}

// SoftDelete implements Store.
func (s *PostgresStore) SoftDelete(ctx context.Context, id types.OprfKeyID) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE shares SET deleted = TRUE, share = NULL WHERE id = $1
	`, id[:])
	if err != nil {
		return fmt.Errorf("sharestore: deleting share: %w", err)
	}
	return nil
}

// StoreAddress implements Store.
func (s *PostgresStore) StoreAddress(ctx context.Context, addr common.Address) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO evm_address (id, address)
		VALUES (TRUE, $1)
		ON CONFLICT (id) DO UPDATE SET address = EXCLUDED.address
	`, addr.Hex())
	if err != nil {
		return fmt.Errorf("sharestore: storing address: %w", err)
	}
	return nil
}

// LoadAddress implements Store.
func (s *PostgresStore) LoadAddress(ctx context.Context) (common.Address, error) {
	var hex string
	err := s.pool.QueryRow(ctx, `SELECT address FROM evm_address WHERE id = TRUE`).Scan(&hex)
	if errors.Is(err, pgx.ErrNoRows) {
		return common.Address{}, ErrNoAddress
	}
	if err != nil {
		return common.Address{}, fmt.Errorf("sharestore: loading address: %w", err)
	}
	if !common.IsHexAddress(hex) {
		return common.Address{}, fmt.Errorf("sharestore: stored address %q is not an EVM address", hex)
	}
	return common.HexToAddress(hex), nil
}

// Close implements Store.
func (s *PostgresStore) Close(context.Context) error {
	s.pool.Close()
	return nil
}
