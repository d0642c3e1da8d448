package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/ballotbuddies/internal/model"
)

// PostgresLoginTokenRepo はPostgreSQLを使用したログイントークンリポジトリ。
type PostgresLoginTokenRepo struct {
	db *sql.DB
}

// NewPostgresLoginTokenRepo はPostgresLoginTokenRepoを生成する。
func NewPostgresLoginTokenRepo(db *sql.DB) *PostgresLoginTokenRepo {
	return &PostgresLoginTokenRepo{db: db}
}

// Create はトークンを作成する。
func (r *PostgresLoginTokenRepo) Create(ctx context.Context, token *model.LoginToken) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO login_tokens (token_hash, user_id, next_path, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		token.TokenHash, token.UserID, token.NextPath, token.ExpiresAt, token.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create login token: %w", err)
	}
	return nil
}

// Consume は未使用かつ有効期限内のトークンを使用済みにして返す。
// UPDATE ... RETURNING で判定と更新を1文で行うため、同じリンクの二重使用は成立しない。
func (r *PostgresLoginTokenRepo) Consume(ctx context.Context, tokenHash string) (*model.LoginToken, error) {
	token := &model.LoginToken{}
	var usedAt sql.NullTime
	err := r.db.QueryRowContext(ctx,
		`UPDATE login_tokens
		 SET used_at = now()
		 WHERE token_hash = $1 AND used_at IS NULL AND expires_at > now()
		 RETURNING token_hash, user_id, next_path, expires_at, used_at, created_at`,
		tokenHash,
	).Scan(&token.TokenHash, &token.UserID, &token.NextPath, &token.ExpiresAt, &usedAt, &token.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to consume login token: %w", err)
	}

	if usedAt.Valid {
		t := usedAt.Time
		token.UsedAt = &t
	}
	return token, nil
}

// compile-time interface check
var _ LoginTokenRepository = (*PostgresLoginTokenRepo)(nil)
