package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"edupersona/internal/data/entity"
	"edupersona/pkg/database"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// SessionRepository persists personas. All presence writes go through
// conditional statements so concurrent writers never move the last_seen_at
// watermark backwards.
type SessionRepository interface {
	CreateWithinCapacity(ctx context.Context, session *entity.Session) error
	FindByPublicID(ctx context.Context, publicID string) (*entity.Session, error)
	ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*entity.Session, error)
	CountActiveByAccount(ctx context.Context, accountID uuid.UUID) (int, error)
	Deactivate(ctx context.Context, publicID string) (bool, error)
	TouchLastSeen(ctx context.Context, publicID string, at time.Time, online bool) (bool, error)
	RecordLogin(ctx context.Context, publicID string, at time.Time) (bool, error)
	RecordLogout(ctx context.Context, publicID string, at time.Time) (bool, error)
	ExpireStale(ctx context.Context, cutoff time.Time) ([]string, error)
}

type sessionRepository struct {
	db  database.PgxIface
	log *zap.Logger
}

func NewSessionRepository(db database.PgxIface, log *zap.Logger) SessionRepository {
	return &sessionRepository{
		db:  db,
		log: log.With(zap.String("repository", "session")),
	}
}

const sessionColumns = `
	id, public_id, account_id, display_name, persona_type, password_hash,
	is_active, is_online, last_login_at, last_seen_at, created_at, updated_at
`

func scanSession(row pgx.Row) (*entity.Session, error) {
	var s entity.Session
	err := row.Scan(
		&s.ID,
		&s.PublicID,
		&s.AccountID,
		&s.DisplayName,
		&s.PersonaType,
		&s.PasswordHash,
		&s.IsActive,
		&s.IsOnline,
		&s.LastLoginAt,
		&s.LastSeenAt,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// CreateWithinCapacity inserts a persona while holding the account row lock,
// so two concurrent creations cannot both squeeze under max_sessions.
func (r *sessionRepository) CreateWithinCapacity(ctx context.Context, session *entity.Session) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin create session: %w", err)
	}

	var maxSessions int
	err = tx.QueryRow(ctx,
		`SELECT max_sessions FROM accounts WHERE id = $1 FOR UPDATE`,
		session.AccountID,
	).Scan(&maxSessions)
	if errors.Is(err, pgx.ErrNoRows) {
		_ = tx.Rollback(ctx)
		return ErrAccountNotFound
	}
	if err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("lock account %s: %w", session.AccountID, err)
	}

	var active int
	err = tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM sessions WHERE account_id = $1 AND is_active`,
		session.AccountID,
	).Scan(&active)
	if err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("count active sessions: %w", err)
	}
	if active >= maxSessions {
		_ = tx.Rollback(ctx)
		return ErrCapacityReached
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO sessions (id, public_id, account_id, display_name, persona_type,
		                      password_hash, is_active, is_online, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE, FALSE, $7, $7)
	`,
		session.ID,
		session.PublicID,
		session.AccountID,
		session.DisplayName,
		session.PersonaType,
		session.PasswordHash,
		session.CreatedAt,
	)
	if err != nil {
		_ = tx.Rollback(ctx)
		if isUniqueViolation(err) {
			return ErrDuplicatePublicID
		}
		r.log.Error("Failed to create session",
			zap.Error(err),
			zap.String("public_id", session.PublicID),
		)
		return fmt.Errorf("create session %s: %w", session.PublicID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit create session: %w", err)
	}

	return nil
}

func (r *sessionRepository) FindByPublicID(ctx context.Context, publicID string) (*entity.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE public_id = $1`

	session, err := scanSession(r.db.QueryRow(ctx, query, publicID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.log.Error("Failed to find session",
			zap.Error(err),
			zap.String("public_id", publicID),
		)
		return nil, fmt.Errorf("find session %s: %w", publicID, err)
	}

	return session, nil
}

func (r *sessionRepository) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*entity.Session, error) {
	query := `SELECT ` + sessionColumns + `
		FROM sessions
		WHERE account_id = $1
		ORDER BY persona_type DESC, created_at ASC
	`

	rows, err := r.db.Query(ctx, query, accountID)
	if err != nil {
		r.log.Error("Failed to list sessions",
			zap.Error(err),
			zap.String("account_id", accountID.String()),
		)
		return nil, fmt.Errorf("list sessions for account %s: %w", accountID, err)
	}
	defer rows.Close()

	var sessions []*entity.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		sessions = append(sessions, session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session rows: %w", err)
	}

	return sessions, nil
}

func (r *sessionRepository) CountActiveByAccount(ctx context.Context, accountID uuid.UUID) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM sessions WHERE account_id = $1 AND is_active`,
		accountID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count active sessions for account %s: %w", accountID, err)
	}
	return count, nil
}

// Deactivate soft-deletes the persona. Repeating it is harmless; the
// returned bool is false only when no such persona exists.
func (r *sessionRepository) Deactivate(ctx context.Context, publicID string) (bool, error) {
	query := `
		UPDATE sessions
		SET is_active = FALSE, is_online = FALSE, updated_at = NOW()
		WHERE public_id = $1
	`

	result, err := r.db.Exec(ctx, query, publicID)
	if err != nil {
		r.log.Error("Failed to deactivate session",
			zap.Error(err),
			zap.String("public_id", publicID),
		)
		return false, fmt.Errorf("deactivate session %s: %w", publicID, err)
	}

	return result.RowsAffected() > 0, nil
}

// TouchLastSeen moves the watermark to at and sets the presence flag, but only
// when at is strictly newer than the stored watermark. Online writes also
// require the persona to be active. The returned bool reports whether the
// row changed.
func (r *sessionRepository) TouchLastSeen(ctx context.Context, publicID string, at time.Time, online bool) (bool, error) {
	query := `
		UPDATE sessions
		SET last_seen_at = $2, is_online = $3, updated_at = NOW()
		WHERE public_id = $1
		  AND (last_seen_at IS NULL OR last_seen_at < $2)
		  AND (is_active OR NOT $3)
	`

	result, err := r.db.Exec(ctx, query, publicID, at, online)
	if err != nil {
		return false, fmt.Errorf("touch last seen %s: %w", publicID, err)
	}

	return result.RowsAffected() == 1, nil
}

// RecordLogin marks an active persona online and stamps last_login_at. The
// watermark only ever moves forward.
func (r *sessionRepository) RecordLogin(ctx context.Context, publicID string, at time.Time) (bool, error) {
	query := `
		UPDATE sessions
		SET last_login_at = $2,
		    last_seen_at = GREATEST(last_seen_at, $2),
		    is_online = TRUE,
		    updated_at = NOW()
		WHERE public_id = $1 AND is_active
	`

	result, err := r.db.Exec(ctx, query, publicID, at)
	if err != nil {
		return false, fmt.Errorf("record login %s: %w", publicID, err)
	}

	return result.RowsAffected() == 1, nil
}

// RecordLogout marks the persona offline whatever its watermark. A heartbeat
// stamped slightly ahead of the server clock must not keep a logged out
// persona online, so the watermark is kept when it is already newer than at.
// The bool is false when the persona was already offline with a newer
// watermark, or does not exist.
func (r *sessionRepository) RecordLogout(ctx context.Context, publicID string, at time.Time) (bool, error) {
	query := `
		UPDATE sessions
		SET last_seen_at = GREATEST(last_seen_at, $2),
		    is_online = FALSE,
		    updated_at = NOW()
		WHERE public_id = $1
		  AND (is_online OR last_seen_at IS NULL OR last_seen_at < $2)
	`

	result, err := r.db.Exec(ctx, query, publicID, at)
	if err != nil {
		return false, fmt.Errorf("record logout %s: %w", publicID, err)
	}

	return result.RowsAffected() == 1, nil
}

// ExpireStale flips every online persona whose watermark is older than cutoff
// to offline and returns their public ids. Rows renewed concurrently no
// longer match the predicate, so running it twice is harmless.
func (r *sessionRepository) ExpireStale(ctx context.Context, cutoff time.Time) ([]string, error) {
	query := `
		UPDATE sessions
		SET is_online = FALSE, updated_at = NOW()
		WHERE is_online AND last_seen_at < $1
		RETURNING public_id
	`

	rows, err := r.db.Query(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("expire stale sessions: %w", err)
	}
	defer rows.Close()

	var expired []string
	for rows.Next() {
		var publicID string
		if err := rows.Scan(&publicID); err != nil {
			return nil, fmt.Errorf("scan expired session: %w", err)
		}
		expired = append(expired, publicID)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expired sessions: %w", err)
	}

	return expired, nil
}
