package service

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/Nachoram/plataforma-inmobiliaria-sub005/model"
)

//go:embed schema.sql
var sqliteSchema string

// Schema version tracking:
// 1 - contracts and signature_records
const sqliteSchemaVersion = 1

// SQLiteStore persists contracts in a single SQLite file.
// WAL mode with a single connection serializes writers, so the conditional
// status update is the only concurrency control needed.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite creates or opens the database at path and applies the schema.
// Safe to call repeatedly on the same file.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", sqliteSchemaVersion)); err != nil {
		db.Close()
		return nil, fmt.Errorf("set user_version: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

const contractColumns = `id, title, status, content, parties, property_ref, application_ref,
	approved_at, sent_to_signature_at, created_at, updated_at`

func (s *SQLiteStore) CreateContract(ctx context.Context, c *model.Contract) error {
	content, parties, err := encodeContent(c)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO contracts (`+contractColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Title, string(c.Status), content, parties, c.PropertyRef, c.ApplicationRef,
		formatNullTime(c.ApprovedAt), formatNullTime(c.SentToSignatureAt),
		formatTime(c.CreatedAt), formatTime(c.UpdatedAt))
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {
			return ErrContractExists
		}
		return fmt.Errorf("insert contract: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetContract(ctx context.Context, id string) (*model.Contract, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+contractColumns+` FROM contracts WHERE id = ?`, id)
	c, err := scanSQLiteContract(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrContractNotFound
	}
	return c, err
}

func (s *SQLiteStore) ListContracts(ctx context.Context, statuses ...model.ContractStatus) ([]*model.Contract, error) {
	query := `SELECT ` + contractColumns + ` FROM contracts`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, st := range statuses {
			placeholders[i] = "?"
			args = append(args, string(st))
		}
		query += ` WHERE status IN (` + strings.Join(placeholders, ", ") + `)`
	}
	query += ` ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list contracts: %w", err)
	}
	defer rows.Close()

	var result []*model.Contract
	for rows.Next() {
		c, err := scanSQLiteContract(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func (s *SQLiteStore) UpdateContractStatus(ctx context.Context, change model.StatusChange) error {
	var parties sql.NullString
	if change.Parties != nil {
		encoded, err := json.Marshal(change.Parties)
		if err != nil {
			return fmt.Errorf("encode parties: %w", err)
		}
		parties = sql.NullString{String: string(encoded), Valid: true}
	}
	res, err := s.db.ExecContext(ctx, `UPDATE contracts SET
			status = ?,
			approved_at = COALESCE(?, approved_at),
			sent_to_signature_at = COALESCE(?, sent_to_signature_at),
			parties = COALESCE(?, parties),
			updated_at = ?
		WHERE id = ? AND status = ?`,
		string(change.To), formatNullTime(change.ApprovedAt), formatNullTime(change.SentToSignatureAt),
		parties, formatTime(change.At), change.ContractID, string(change.From))
	if err != nil {
		return fmt.Errorf("update contract status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update contract status: %w", err)
	}
	if n == 1 {
		return nil
	}

	var exists int
	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM contracts WHERE id = ?`, change.ContractID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("update contract status: %w", err)
	}
	if exists == 0 {
		return ErrContractNotFound
	}
	return ErrStatusConflict
}

const signatureColumns = `id, contract_id, signer_type, signer_name, signer_email, external_request_id,
	signature_url, status, signed_at, expires_at, last_error, attempts, last_checked_at, created_at, updated_at`

func (s *SQLiteStore) InsertSignature(ctx context.Context, rec *model.SignatureRecord) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO signature_records (`+signatureColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.ContractID, string(rec.SignerType), rec.SignerName, rec.SignerEmail, rec.ExternalRequestID,
		rec.SignatureURL, string(rec.Status), formatNullTime(rec.SignedAt), formatNullTime(rec.ExpiresAt),
		rec.LastError, rec.Attempts, formatNullTime(rec.LastCheckedAt), formatTime(rec.CreatedAt), formatTime(rec.UpdatedAt))
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) {
			switch sqliteErr.ExtendedCode {
			case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
				return ErrSignatureExists
			case sqlite3.ErrConstraintForeignKey:
				return ErrContractNotFound
			}
		}
		return fmt.Errorf("insert signature: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpdateSignature(ctx context.Context, rec *model.SignatureRecord, from model.SignatureStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE signature_records SET
			signer_name = ?, signer_email = ?, external_request_id = ?, signature_url = ?, status = ?,
			signed_at = ?, expires_at = ?, last_error = ?, attempts = ?, last_checked_at = ?, updated_at = ?
		WHERE contract_id = ? AND signer_type = ? AND status = ?`,
		rec.SignerName, rec.SignerEmail, rec.ExternalRequestID, rec.SignatureURL, string(rec.Status),
		formatNullTime(rec.SignedAt), formatNullTime(rec.ExpiresAt), rec.LastError, rec.Attempts,
		formatNullTime(rec.LastCheckedAt), formatTime(rec.UpdatedAt),
		rec.ContractID, string(rec.SignerType), string(from))
	if err != nil {
		return fmt.Errorf("update signature: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update signature: %w", err)
	}
	if n == 1 {
		return nil
	}

	var exists int
	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM signature_records WHERE contract_id = ? AND signer_type = ?`,
		rec.ContractID, string(rec.SignerType)).Scan(&exists)
	if err != nil {
		return fmt.Errorf("update signature: %w", err)
	}
	if exists == 0 {
		return ErrSignatureNotFound
	}
	return ErrSignatureConflict
}

func (s *SQLiteStore) DeleteSignature(ctx context.Context, contractID string, role model.SignerRole) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM signature_records WHERE contract_id = ? AND signer_type = ?`,
		contractID, string(role))
	if err != nil {
		return fmt.Errorf("delete signature: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete signature: %w", err)
	}
	if n == 0 {
		return ErrSignatureNotFound
	}
	return nil
}

func (s *SQLiteStore) GetSignature(ctx context.Context, contractID string, role model.SignerRole) (*model.SignatureRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+signatureColumns+` FROM signature_records
		WHERE contract_id = ? AND signer_type = ?`, contractID, string(role))
	rec, err := scanSQLiteSignature(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSignatureNotFound
	}
	return rec, err
}

func (s *SQLiteStore) ListSignatures(ctx context.Context, contractID string) ([]*model.SignatureRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+signatureColumns+` FROM signature_records
		WHERE contract_id = ?`, contractID)
	if err != nil {
		return nil, fmt.Errorf("list signatures: %w", err)
	}
	defer rows.Close()

	var result []*model.SignatureRecord
	for rows.Next() {
		rec, err := scanSQLiteSignature(rows)
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

func (s *SQLiteStore) FindSignatureByExternalID(ctx context.Context, externalID string) (*model.SignatureRecord, error) {
	if externalID == "" {
		return nil, ErrSignatureNotFound
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+signatureColumns+` FROM signature_records
		WHERE external_request_id = ?`, externalID)
	rec, err := scanSQLiteSignature(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSignatureNotFound
	}
	return rec, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteContract(row rowScanner) (*model.Contract, error) {
	var (
		c                        model.Contract
		status, content, parties string
		approvedAt, sentAt       sql.NullString
		createdAt, updatedAt     string
	)
	err := row.Scan(&c.ID, &c.Title, &status, &content, &parties, &c.PropertyRef, &c.ApplicationRef,
		&approvedAt, &sentAt, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	if c.Status, err = model.ParseContractStatus(status); err != nil {
		return nil, err
	}
	if err := decodeContent(&c, []byte(content), []byte(parties)); err != nil {
		return nil, err
	}
	if c.ApprovedAt, err = parseNullTime(approvedAt); err != nil {
		return nil, err
	}
	if c.SentToSignatureAt, err = parseNullTime(sentAt); err != nil {
		return nil, err
	}
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if c.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func scanSQLiteSignature(row rowScanner) (*model.SignatureRecord, error) {
	var (
		rec                            model.SignatureRecord
		role, status                   string
		signedAt, expiresAt, checkedAt sql.NullString
		createdAt, updatedAt           string
	)
	err := row.Scan(&rec.ID, &rec.ContractID, &role, &rec.SignerName, &rec.SignerEmail, &rec.ExternalRequestID,
		&rec.SignatureURL, &status, &signedAt, &expiresAt, &rec.LastError, &rec.Attempts, &checkedAt,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	if rec.SignerType, err = model.ParseSignerRole(role); err != nil {
		return nil, err
	}
	if rec.Status, err = model.ParseSignatureStatus(status); err != nil {
		return nil, err
	}
	if rec.SignedAt, err = parseNullTime(signedAt); err != nil {
		return nil, err
	}
	if rec.ExpiresAt, err = parseNullTime(expiresAt); err != nil {
		return nil, err
	}
	if rec.LastCheckedAt, err = parseNullTime(checkedAt); err != nil {
		return nil, err
	}
	if rec.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if rec.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &rec, nil
}

func encodeContent(c *model.Contract) (content, parties string, err error) {
	sections := c.Content
	if sections == nil {
		sections = []model.Section{}
	}
	contentJSON, err := json.Marshal(sections)
	if err != nil {
		return "", "", fmt.Errorf("encode content: %w", err)
	}
	partiesJSON, err := json.Marshal(c.Parties)
	if err != nil {
		return "", "", fmt.Errorf("encode parties: %w", err)
	}
	return string(contentJSON), string(partiesJSON), nil
}

func decodeContent(c *model.Contract, content, parties []byte) error {
	if err := json.Unmarshal(content, &c.Content); err != nil {
		return fmt.Errorf("decode content: %w", err)
	}
	if err := json.Unmarshal(parties, &c.Parties); err != nil {
		return fmt.Errorf("decode parties: %w", err)
	}
	return nil
}

// sqliteTimeLayout is fixed width so text ordering matches time ordering.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func formatNullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(sqliteTimeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
