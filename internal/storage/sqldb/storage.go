// Package sqldb implements the account store on SQLite, PostgreSQL or MySQL
// through bun.
package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"github.com/mcoot/credauth/internal/dependencies/clock"
	"github.com/mcoot/credauth/internal/model"
	"github.com/mcoot/credauth/internal/storage"
)

// userRow maps the users table
type userRow struct {
	bun.BaseModel `bun:"table:users"`

	ID           string    `bun:"id,pk"`
	Name         string    `bun:"name,notnull"`
	Nickname     string    `bun:"nickname,notnull"`
	Identifier   string    `bun:"cpf,notnull"`
	Email        string    `bun:"email,notnull"`
	PasswordHash string    `bun:"password,notnull"`
	Status       string    `bun:"status,notnull"`
	CreatedAt    time.Time `bun:"created_at,notnull"`
}

func (r *userRow) account() *model.Account {
	return &model.Account{
		ID:           model.AccountID(r.ID),
		Name:         r.Name,
		Nickname:     r.Nickname,
		Identifier:   r.Identifier,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		Status:       model.AccountStatus(r.Status),
		CreatedAt:    r.CreatedAt.UTC(),
	}
}

// Storage is a SQL implementation of storage.AccountStore
type Storage struct {
	db    *bun.DB
	clock clock.Clock
}

// New creates a Storage over an open bun database
func New(db *bun.DB, clk clock.Clock) *Storage {
	return &Storage{db: db, clock: clk}
}

// Ensure Storage implements the interface
var _ storage.AccountStore = (*Storage)(nil)

// Close closes the underlying database
func (s *Storage) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable
func (s *Storage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Storage) FindByEmail(ctx context.Context, email string) (*model.Account, error) {
	return s.findOne(ctx, "email = ?", email)
}

func (s *Storage) GetByID(ctx context.Context, id model.AccountID) (*model.Account, error) {
	return s.findOne(ctx, "id = ?", string(id))
}

func (s *Storage) findOne(ctx context.Context, where string, arg any) (*model.Account, error) {
	var row userRow
	err := s.db.NewSelect().Model(&row).Where(where, arg).Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrAccountNotFound
		}
		return nil, err
	}
	return row.account(), nil
}

func (s *Storage) ExistsByEmailOrIdentifier(ctx context.Context, email, identifier string) (bool, error) {
	return s.db.NewSelect().
		Model((*userRow)(nil)).
		Where("email = ?", email).
		WhereOr("cpf = ?", identifier).
		Exists(ctx)
}

// Insert relies on the unique constraints, so a concurrent registration
// that passed the existence check still fails with ErrDuplicateAccount
func (s *Storage) Insert(ctx context.Context, reg model.CleanRegistration, passwordHash string) (model.AccountID, error) {
	account := storage.NewAccount(reg, passwordHash, s.clock.Now())
	row := &userRow{
		ID:           string(account.ID),
		Name:         account.Name,
		Nickname:     account.Nickname,
		Identifier:   account.Identifier,
		Email:        account.Email,
		PasswordHash: account.PasswordHash,
		Status:       string(account.Status),
		CreatedAt:    account.CreatedAt,
	}

	if _, err := s.db.NewInsert().Model(row).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return "", model.ErrDuplicateAccount
		}
		return "", err
	}
	return account.ID, nil
}

func (s *Storage) UpdatePasswordHash(ctx context.Context, id model.AccountID, passwordHash string) error {
	return s.updateColumn(ctx, id, "password", passwordHash)
}

func (s *Storage) SetStatus(ctx context.Context, id model.AccountID, status model.AccountStatus) error {
	if !status.Valid() {
		return model.ErrInvalidStatus
	}
	return s.updateColumn(ctx, id, "status", string(status))
}

func (s *Storage) updateColumn(ctx context.Context, id model.AccountID, column string, value any) error {
	res, err := s.db.NewUpdate().
		Model((*userRow)(nil)).
		Set("? = ?", bun.Ident(column), value).
		Where("id = ?", string(id)).
		Exec(ctx)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return model.ErrAccountNotFound
	}
	return nil
}
