package repo

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"

	"github.com/lavrd/tiktok-dl-tg/internal/types"
)

const (
	driver = "sqlite3"

	ModeMemory = "memory"
	ModeRWC    = "rwc"

	// UnknownUsername is stored for users without telegram username.
	UnknownUsername = "Unknown"
)

//go:embed migrations/*.sql
var migrations embed.FS

type UsersRepository interface {
	// AddOrUpdate creates user or refreshes username and last activity of existing one.
	AddOrUpdate(ctx context.Context, userID int64, username string) (*types.User, error)
	Get(ctx context.Context, userID int64) (*types.User, error)
	Count(ctx context.Context) (int64, error)
}

func OpenDBAndMigrate(filePath, mode string) (*sqlx.DB, error) {
	dsn := fmt.Sprintf(
		"file:%s?cache=shared&mode=%s&_foreign_keys=1",
		filePath, mode,
	)
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	// Do database structure migration.
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open migrations source: %w", err)
	}
	drv, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create new driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, driver, drv)
	if err != nil {
		return nil, fmt.Errorf("failed to create new migration manager: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return nil, fmt.Errorf("failed to do database structure migration: %w", err)
	}
	return sqlx.NewDb(db, driver), nil
}

func New(db *sqlx.DB) UsersRepository {
	return &usersRepository{db}
}

//nolint:govet // for better reading and keep as it in .sql files
type user struct {
	UserID   int64  `db:"user_id"`
	Username string `db:"username"`
	// When user pressed start first time.
	FirstSeen time.Time `db:"first_seen"`
	// Last start command from the user.
	LastActive time.Time `db:"last_active"`
}

func (u *user) ToTypes() *types.User {
	return &types.User{
		UserID:     u.UserID,
		Username:   u.Username,
		FirstSeen:  u.FirstSeen,
		LastActive: u.LastActive,
	}
}

type usersRepository struct {
	db *sqlx.DB
}

func (r *usersRepository) AddOrUpdate(ctx context.Context, userID int64, username string) (*types.User, error) {
	if username == "" {
		username = UnknownUsername
	}
	user := &user{}
	if err := r.db.GetContext(ctx, user, `
		insert into users (user_id, username) values ($1, $2)
		on conflict (user_id) do update set username = excluded.username, last_active = current_timestamp
		returning *
	`,
		userID, username,
	); err != nil {
		return nil, fmt.Errorf("failed to get: %w", err)
	}
	return user.ToTypes(), nil
}

func (r *usersRepository) Get(ctx context.Context, userID int64) (*types.User, error) {
	user := &user{}
	if err := r.db.GetContext(ctx, user, "select * from users where user_id = $1", userID); err != nil {
		return nil, fmt.Errorf("failed to get: %w", err)
	}
	return user.ToTypes(), nil
}

func (r *usersRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.GetContext(ctx, &count, "select count(*) from users"); err != nil {
		return 0, fmt.Errorf("failed to get: %w", err)
	}
	return count, nil
}
