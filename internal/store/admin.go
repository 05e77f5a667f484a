package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"

	"happysd/internal/domain"
)

// Administrative operations used by the userctl tool. These run out-of-band
// from the API and worker but still honor the write-lock discipline.

// CreateUser registers a new account. Existing usernames are rejected; key
// rotation goes through UpdateUserKey instead.
func (s *SQLite) CreateUser(ctx context.Context, username, apikey string) error {
	var existing string
	err := s.db.QueryRowContext(ctx,
		"SELECT username FROM users WHERE username = ?", username).Scan(&existing)
	if err == nil {
		return fmt.Errorf("user %q already exists, use update-key", username)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: lookup user: %v", domain.ErrStorage, err)
	}

	release, err := s.lock.Acquire()
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	defer release()

	if _, err := s.db.ExecContext(ctx,
		"INSERT INTO users (username, apikey) VALUES (?, ?)", username, apikey); err != nil {
		return fmt.Errorf("%w: create user: %v", domain.ErrStorage, err)
	}
	return nil
}

// UpdateUserKey rotates the account's access key and rewrites the owner key
// on all of the account's job rows so history stays reachable.
func (s *SQLite) UpdateUserKey(ctx context.Context, username, apikey string) error {
	var oldKey string
	err := s.db.QueryRowContext(ctx,
		"SELECT apikey FROM users WHERE username = ?", username).Scan(&oldKey)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("user %q does not exist, create it first", username)
	}
	if err != nil {
		return fmt.Errorf("%w: lookup user: %v", domain.ErrStorage, err)
	}

	release, err := s.lock.Acquire()
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	defer release()

	if _, err := s.db.ExecContext(ctx,
		"UPDATE history SET apikey = ? WHERE apikey = ?", apikey, oldKey); err != nil {
		return fmt.Errorf("%w: rewrite job owner keys: %v", domain.ErrStorage, err)
	}
	if _, err := s.db.ExecContext(ctx,
		"UPDATE users SET apikey = ? WHERE username = ?", apikey, username); err != nil {
		return fmt.Errorf("%w: update user key: %v", domain.ErrStorage, err)
	}
	return nil
}

// UpdateQuota sets the pending-job quota for the account owning the key.
func (s *SQLite) UpdateQuota(ctx context.Context, apikey string, quota int) error {
	var username string
	err := s.db.QueryRowContext(ctx,
		"SELECT username FROM users WHERE apikey = ?", apikey).Scan(&username)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("no account with key %q", apikey)
	}
	if err != nil {
		return fmt.Errorf("%w: lookup user: %v", domain.ErrStorage, err)
	}

	release, err := s.lock.Acquire()
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	defer release()

	if _, err := s.db.ExecContext(ctx,
		"UPDATE users SET quota = ? WHERE apikey = ?", quota, apikey); err != nil {
		return fmt.Errorf("%w: update quota: %v", domain.ErrStorage, err)
	}
	return nil
}

// DeleteUser removes the account. Job history rows are kept.
func (s *SQLite) DeleteUser(ctx context.Context, username string) (bool, error) {
	release, err := s.lock.Acquire()
	if err != nil {
		return false, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	defer release()

	res, err := s.db.ExecContext(ctx, "DELETE FROM users WHERE username = ?", username)
	if err != nil {
		return false, fmt.Errorf("%w: delete user: %v", domain.ErrStorage, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: delete user: %v", domain.ErrStorage, err)
	}
	return affected > 0, nil
}

// ListUsers returns every provisioned account.
func (s *SQLite) ListUsers(ctx context.Context) ([]domain.Account, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT username, apikey, quota FROM users ORDER BY username")
	if err != nil {
		return nil, fmt.Errorf("%w: list users: %v", domain.ErrStorage, err)
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		var a domain.Account
		if err := rows.Scan(&a.Username, &a.APIKey, &a.Quota); err != nil {
			return nil, fmt.Errorf("%w: scan user: %v", domain.ErrStorage, err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// identPattern guards the identifiers interpolated into ALTER TABLE, which
// cannot be bound as placeholders.
var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func checkIdents(idents ...string) error {
	for _, id := range idents {
		if !identPattern.MatchString(id) {
			return fmt.Errorf("invalid identifier %q", id)
		}
	}
	return nil
}

// AddColumn and DropColumn support out-of-band schema evolution on the job
// table without hand-editing the database file.
func (s *SQLite) AddColumn(ctx context.Context, table, column, dataType string) error {
	if err := checkIdents(table, column, dataType); err != nil {
		return err
	}
	release, err := s.lock.Acquire()
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	defer release()

	_, err = s.db.ExecContext(ctx,
		fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, dataType))
	if err != nil {
		return fmt.Errorf("%w: add column: %v", domain.ErrStorage, err)
	}
	return nil
}

func (s *SQLite) DropColumn(ctx context.Context, table, column string) error {
	if err := checkIdents(table, column); err != nil {
		return err
	}
	release, err := s.lock.Acquire()
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	defer release()

	_, err = s.db.ExecContext(ctx,
		fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", table, column))
	if err != nil {
		return fmt.Errorf("%w: drop column: %v", domain.ErrStorage, err)
	}
	return nil
}
