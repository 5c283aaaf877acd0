package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Nachoram/plataforma-inmobiliaria-sub005/model"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS contracts (
  id TEXT PRIMARY KEY,
  title TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL,
  content JSONB NOT NULL DEFAULT '[]'::jsonb,
  parties JSONB NOT NULL DEFAULT '{}'::jsonb,
  property_ref TEXT NOT NULL DEFAULT '',
  application_ref TEXT NOT NULL DEFAULT '',
  approved_at TIMESTAMPTZ,
  sent_to_signature_at TIMESTAMPTZ,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_contracts_status ON contracts(status);
CREATE TABLE IF NOT EXISTS signature_records (
  id TEXT PRIMARY KEY,
  contract_id TEXT NOT NULL REFERENCES contracts(id) ON DELETE CASCADE,
  signer_type TEXT NOT NULL,
  signer_name TEXT NOT NULL DEFAULT '',
  signer_email TEXT NOT NULL DEFAULT '',
  external_request_id TEXT NOT NULL DEFAULT '',
  signature_url TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL,
  signed_at TIMESTAMPTZ,
  expires_at TIMESTAMPTZ,
  last_error TEXT NOT NULL DEFAULT '',
  attempts INTEGER NOT NULL DEFAULT 0,
  last_checked_at TIMESTAMPTZ,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL,
  UNIQUE (contract_id, signer_type)
);
CREATE INDEX IF NOT EXISTS idx_signature_records_external ON signature_records(external_request_id);
`

// PostgresStore persists contracts in Postgres through a pgx pool.
type PostgresStore struct {
	DB *pgxpool.Pool
}

// ConnectPostgres opens a pool and ensures the schema exists.
func ConnectPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 1
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &PostgresStore{DB: pool}, nil
}

func (s *PostgresStore) Close() error {
	s.DB.Close()
	return nil
}

func (s *PostgresStore) CreateContract(ctx context.Context, c *model.Contract) error {
	content, parties, err := encodeContent(c)
	if err != nil {
		return err
	}
	_, err = s.DB.Exec(ctx, `
INSERT INTO contracts(id,title,status,content,parties,property_ref,application_ref,approved_at,sent_to_signature_at,created_at,updated_at)
VALUES($1,$2,$3,$4::jsonb,$5::jsonb,$6,$7,$8,$9,$10,$11)
`, c.ID, c.Title, string(c.Status), content, parties, c.PropertyRef, c.ApplicationRef,
		c.ApprovedAt, c.SentToSignatureAt, c.CreatedAt.UTC(), c.UpdatedAt.UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrContractExists
		}
		return fmt.Errorf("insert contract: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetContract(ctx context.Context, id string) (*model.Contract, error) {
	row := s.DB.QueryRow(ctx, `
SELECT id,title,status,content::text,parties::text,property_ref,application_ref,approved_at,sent_to_signature_at,created_at,updated_at
FROM contracts
WHERE id=$1
`, id)
	c, err := scanPostgresContract(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrContractNotFound
		}
		return nil, err
	}
	return c, nil
}

func (s *PostgresStore) ListContracts(ctx context.Context, statuses ...model.ContractStatus) ([]*model.Contract, error) {
	filter := make([]string, len(statuses))
	for i, st := range statuses {
		filter[i] = string(st)
	}
	rows, err := s.DB.Query(ctx, `
SELECT id,title,status,content::text,parties::text,property_ref,application_ref,approved_at,sent_to_signature_at,created_at,updated_at
FROM contracts
WHERE cardinality($1::text[]) = 0 OR status = ANY($1::text[])
ORDER BY created_at
`, filter)
	if err != nil {
		return nil, fmt.Errorf("list contracts: %w", err)
	}
	defer rows.Close()

	var result []*model.Contract
	for rows.Next() {
		c, err := scanPostgresContract(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func (s *PostgresStore) UpdateContractStatus(ctx context.Context, change model.StatusChange) error {
	var parties *string
	if change.Parties != nil {
		encoded, err := json.Marshal(change.Parties)
		if err != nil {
			return fmt.Errorf("encode parties: %w", err)
		}
		p := string(encoded)
		parties = &p
	}
	tag, err := s.DB.Exec(ctx, `
UPDATE contracts
SET status=$1,
    approved_at=COALESCE($2, approved_at),
    sent_to_signature_at=COALESCE($3, sent_to_signature_at),
    parties=COALESCE($7::jsonb, parties),
    updated_at=$4
WHERE id=$5 AND status=$6
`, string(change.To), change.ApprovedAt, change.SentToSignatureAt, change.At.UTC(), change.ContractID, string(change.From), parties)
	if err != nil {
		return fmt.Errorf("update contract status: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := s.DB.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM contracts WHERE id=$1)`, change.ContractID).Scan(&exists); err != nil {
		return fmt.Errorf("update contract status: %w", err)
	}
	if !exists {
		return ErrContractNotFound
	}
	return ErrStatusConflict
}

func (s *PostgresStore) InsertSignature(ctx context.Context, rec *model.SignatureRecord) error {
	_, err := s.DB.Exec(ctx, `
INSERT INTO signature_records(
  id,contract_id,signer_type,signer_name,signer_email,external_request_id,signature_url,status,
  signed_at,expires_at,last_error,attempts,last_checked_at,created_at,updated_at
)
VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
`, rec.ID, rec.ContractID, string(rec.SignerType), rec.SignerName, rec.SignerEmail, rec.ExternalRequestID,
		rec.SignatureURL, string(rec.Status), rec.SignedAt, rec.ExpiresAt, rec.LastError, rec.Attempts,
		rec.LastCheckedAt, rec.CreatedAt.UTC(), rec.UpdatedAt.UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505":
				return ErrSignatureExists
			case "23503":
				return ErrContractNotFound
			}
		}
		return fmt.Errorf("insert signature: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateSignature(ctx context.Context, rec *model.SignatureRecord, from model.SignatureStatus) error {
	tag, err := s.DB.Exec(ctx, `
UPDATE signature_records
SET signer_name=$1, signer_email=$2, external_request_id=$3, signature_url=$4, status=$5,
    signed_at=$6, expires_at=$7, last_error=$8, attempts=$9, last_checked_at=$10, updated_at=$11
WHERE contract_id=$12 AND signer_type=$13 AND status=$14
`, rec.SignerName, rec.SignerEmail, rec.ExternalRequestID, rec.SignatureURL, string(rec.Status),
		rec.SignedAt, rec.ExpiresAt, rec.LastError, rec.Attempts, rec.LastCheckedAt, rec.UpdatedAt.UTC(),
		rec.ContractID, string(rec.SignerType), string(from))
	if err != nil {
		return fmt.Errorf("update signature: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	err = s.DB.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM signature_records WHERE contract_id=$1 AND signer_type=$2)`,
		rec.ContractID, string(rec.SignerType)).Scan(&exists)
	if err != nil {
		return fmt.Errorf("update signature: %w", err)
	}
	if !exists {
		return ErrSignatureNotFound
	}
	return ErrSignatureConflict
}

func (s *PostgresStore) DeleteSignature(ctx context.Context, contractID string, role model.SignerRole) error {
	tag, err := s.DB.Exec(ctx, `DELETE FROM signature_records WHERE contract_id=$1 AND signer_type=$2`, contractID, string(role))
	if err != nil {
		return fmt.Errorf("delete signature: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSignatureNotFound
	}
	return nil
}

const postgresSignatureSelect = `
SELECT id,contract_id,signer_type,signer_name,signer_email,external_request_id,signature_url,status,
       signed_at,expires_at,last_error,attempts,last_checked_at,created_at,updated_at
FROM signature_records
`

func (s *PostgresStore) GetSignature(ctx context.Context, contractID string, role model.SignerRole) (*model.SignatureRecord, error) {
	row := s.DB.QueryRow(ctx, postgresSignatureSelect+`WHERE contract_id=$1 AND signer_type=$2`, contractID, string(role))
	rec, err := scanPostgresSignature(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSignatureNotFound
		}
		return nil, err
	}
	return rec, nil
}

func (s *PostgresStore) ListSignatures(ctx context.Context, contractID string) ([]*model.SignatureRecord, error) {
	rows, err := s.DB.Query(ctx, postgresSignatureSelect+`WHERE contract_id=$1`, contractID)
	if err != nil {
		return nil, fmt.Errorf("list signatures: %w", err)
	}
	defer rows.Close()

	var result []*model.SignatureRecord
	for rows.Next() {
		rec, err := scanPostgresSignature(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sortByRole(result)
	return result, nil
}

func (s *PostgresStore) FindSignatureByExternalID(ctx context.Context, externalID string) (*model.SignatureRecord, error) {
	if externalID == "" {
		return nil, ErrSignatureNotFound
	}
	row := s.DB.QueryRow(ctx, postgresSignatureSelect+`WHERE external_request_id=$1`, externalID)
	rec, err := scanPostgresSignature(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSignatureNotFound
		}
		return nil, err
	}
	return rec, nil
}

func scanPostgresContract(row pgx.Row) (*model.Contract, error) {
	var (
		c                        model.Contract
		status, content, parties string
	)
	err := row.Scan(&c.ID, &c.Title, &status, &content, &parties, &c.PropertyRef, &c.ApplicationRef,
		&c.ApprovedAt, &c.SentToSignatureAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if c.Status, err = model.ParseContractStatus(status); err != nil {
		return nil, err
	}
	if err := decodeContent(&c, []byte(content), []byte(parties)); err != nil {
		return nil, err
	}
	return &c, nil
}

func scanPostgresSignature(row pgx.Row) (*model.SignatureRecord, error) {
	var (
		rec          model.SignatureRecord
		role, status string
	)
	err := row.Scan(&rec.ID, &rec.ContractID, &role, &rec.SignerName, &rec.SignerEmail, &rec.ExternalRequestID,
		&rec.SignatureURL, &status, &rec.SignedAt, &rec.ExpiresAt, &rec.LastError, &rec.Attempts,
		&rec.LastCheckedAt, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if rec.SignerType, err = model.ParseSignerRole(role); err != nil {
		return nil, err
	}
	if rec.Status, err = model.ParseSignatureStatus(status); err != nil {
		return nil, err
	}
	return &rec, nil
}
