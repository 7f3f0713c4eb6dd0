package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	gomysql "github.com/go-sql-driver/mysql"

	"github.com/relaychat/authcore"
)

// Schema for the accounts table:
//
//	CREATE TABLE accounts (
//	    id             VARCHAR(36)  NOT NULL PRIMARY KEY,
//	    email          VARCHAR(255) NOT NULL UNIQUE,
//	    display_name   VARCHAR(255) NOT NULL DEFAULT '',
//	    password_hash  TEXT,
//	    totp_secret    VARBINARY(64),
//	    backup_codes   TEXT,
//	    totp_enabled   TINYINT(1)   NOT NULL DEFAULT 0,
//	    provider       VARCHAR(32)  NOT NULL DEFAULT '',
//	    provider_id    VARCHAR(191) NOT NULL DEFAULT '',
//	    email_verified TINYINT(1)   NOT NULL DEFAULT 0,
//	    role           VARCHAR(32)  NOT NULL DEFAULT 'user',
//	    avatar_url     TEXT,
//	    created_at     DATETIME     NOT NULL,
//	    KEY idx_provider (provider, provider_id)
//	);
//
// created_at is scanned into time.Time, which the driver only does with
// parseTime=true on the DSN; Open enforces it. A *sql.DB handed to
// NewStore directly must have been opened the same way.

// Store implements authcore.AccountStore over MySQL.
type Store struct{ DB *sql.DB }

func NewStore(db *sql.DB) *Store { return &Store{DB: db} }

// Open connects with sane pool settings and verifies the connection.
// The DSN is normalized to parseTime=true and UTC regardless of what
// the caller passed, since the scans below depend on it.
func Open(dsn string) (*sql.DB, error) {
	dsn, err := normalizeDSN(dsn)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return db, nil
}

func normalizeDSN(dsn string) (string, error) {
	cfg, err := gomysql.ParseDSN(dsn)
	if err != nil {
		return "", err
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	return cfg.FormatDSN(), nil
}

const accountColumns = "id,email,display_name,password_hash,totp_secret,backup_codes,totp_enabled,provider,provider_id,email_verified,role,avatar_url,created_at"

func (s *Store) scanAccount(row *sql.Row) (*authcore.Account, error) {
	var a authcore.Account
	var passwordHash, backupCodes, avatarURL sql.NullString
	var totpSecret []byte

	err := row.Scan(&a.ID, &a.Email, &a.DisplayName, &passwordHash, &totpSecret,
		&backupCodes, &a.TOTPEnabled, &a.Provider, &a.ProviderID,
		&a.EmailVerified, &a.Role, &avatarURL, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, authcore.ErrAccountNotFound
		}
		return nil, err
	}

	a.PasswordHash = passwordHash.String
	a.TOTPSecret = totpSecret
	a.AvatarURL = avatarURL.String
	if backupCodes.String != "" {
		if err := json.Unmarshal([]byte(backupCodes.String), &a.BackupCodeHashes); err != nil {
			return nil, err
		}
	}
	return &a, nil
}

func (s *Store) GetByID(ctx context.Context, id string) (*authcore.Account, error) {
	return s.scanAccount(s.DB.QueryRowContext(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE id=? LIMIT 1", id))
}

func (s *Store) GetByEmail(ctx context.Context, email string) (*authcore.Account, error) {
	return s.scanAccount(s.DB.QueryRowContext(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE email=? LIMIT 1", email))
}

func (s *Store) GetByProvider(ctx context.Context, provider, providerID string) (*authcore.Account, error) {
	return s.scanAccount(s.DB.QueryRowContext(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE provider=? AND provider_id=? LIMIT 1",
		provider, providerID))
}

func (s *Store) Create(ctx context.Context, account *authcore.Account) error {
	backupCodes, err := json.Marshal(account.BackupCodeHashes)
	if err != nil {
		return err
	}
	_, err = s.DB.ExecContext(ctx,
		"INSERT INTO accounts ("+accountColumns+") VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)",
		account.ID, account.Email, account.DisplayName, account.PasswordHash,
		account.TOTPSecret, string(backupCodes), account.TOTPEnabled,
		account.Provider, account.ProviderID, account.EmailVerified,
		account.Role, account.AvatarURL, account.CreatedAt)
	if err != nil {
		// MySQL error 1062 is a duplicate key, here the unique email.
		var mysqlErr *gomysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return authcore.ErrAccountExists
		}
		return err
	}
	return nil
}

func (s *Store) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	return s.exec(ctx, "UPDATE accounts SET password_hash=? WHERE id=?", hash, id)
}

func (s *Store) UpdateProfile(ctx context.Context, id, displayName, avatarURL string) error {
	return s.exec(ctx, "UPDATE accounts SET display_name=?, avatar_url=? WHERE id=?",
		displayName, avatarURL, id)
}

func (s *Store) LinkProvider(ctx context.Context, id, provider, providerID string) error {
	return s.exec(ctx, "UPDATE accounts SET provider=?, provider_id=? WHERE id=?",
		provider, providerID, id)
}

func (s *Store) MarkEmailVerified(ctx context.Context, id string) error {
	return s.exec(ctx, "UPDATE accounts SET email_verified=1 WHERE id=?", id)
}

// EnableTOTP commits secret, backup codes, and the enabled flag in a
// single statement so the row is never half-enabled.
func (s *Store) EnableTOTP(ctx context.Context, id string, secret []byte, backupHashes []string) error {
	backupCodes, err := json.Marshal(backupHashes)
	if err != nil {
		return err
	}
	return s.exec(ctx,
		"UPDATE accounts SET totp_secret=?, backup_codes=?, totp_enabled=1 WHERE id=?",
		secret, string(backupCodes), id)
}

func (s *Store) DisableTOTP(ctx context.Context, id string) error {
	return s.exec(ctx,
		"UPDATE accounts SET totp_secret=NULL, backup_codes=NULL, totp_enabled=0 WHERE id=?", id)
}

func (s *Store) ReplaceBackupCodes(ctx context.Context, id string, backupHashes []string) error {
	backupCodes, err := json.Marshal(backupHashes)
	if err != nil {
		return err
	}
	return s.exec(ctx, "UPDATE accounts SET backup_codes=? WHERE id=?", string(backupCodes), id)
}

// exec ignores RowsAffected: MySQL reports zero both for a missing row
// and for an update that changed nothing, so it cannot distinguish the
// two. Callers look accounts up before updating them.
func (s *Store) exec(ctx context.Context, query string, args ...any) error {
	_, err := s.DB.ExecContext(ctx, query, args...)
	return err
}
