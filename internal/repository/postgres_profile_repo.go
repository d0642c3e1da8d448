package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/hitoshi/ballotbuddies/internal/model"
)

// PostgresProfileRepo はPostgreSQLを使用したプロフィールリポジトリ。
// stalenessは秒単位のBIGINT列（staleness_seconds）として保存する。
type PostgresProfileRepo struct {
	db   *sql.DB
	psql sq.StatementBuilderType
}

// NewPostgresProfileRepo はPostgresProfileRepoを生成する。
func NewPostgresProfileRepo(db *sql.DB) *PostgresProfileRepo {
	return &PostgresProfileRepo{
		db:   db,
		psql: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

var profileColumns = []string{
	"id", "voter_id", "always_alert", "never_alert", "last_alerted", "last_viewed",
	"staleness_seconds", "will_alert", "created_at", "updated_at",
}

func scanProfile(row interface{ Scan(...any) error }) (*model.Profile, error) {
	p := &model.Profile{}
	var stalenessSeconds int64
	err := row.Scan(
		&p.ID, &p.VoterID, &p.AlwaysAlert, &p.NeverAlert, &p.LastAlerted, &p.LastViewed,
		&stalenessSeconds, &p.WillAlert, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Staleness = time.Duration(stalenessSeconds) * time.Second
	return p, nil
}

func (r *PostgresProfileRepo) findOne(ctx context.Context, pred sq.Eq) (*model.Profile, error) {
	query, args, err := r.psql.Select(profileColumns...).From("profiles").Where(pred).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build profile query: %w", err)
	}

	p, err := scanProfile(r.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find profile: %w", err)
	}
	return p, nil
}

// FindByVoterID は有権者IDでプロフィールを取得する。見つからない場合はnilを返す。
func (r *PostgresProfileRepo) FindByVoterID(ctx context.Context, voterID string) (*model.Profile, error) {
	return r.findOne(ctx, sq.Eq{"voter_id": voterID})
}

// Update は通知設定と派生値（staleness、will_alert）を更新する。
func (r *PostgresProfileRepo) Update(ctx context.Context, p *model.Profile) error {
	query, args, err := r.psql.Update("profiles").
		SetMap(map[string]any{
			"always_alert":      p.AlwaysAlert,
			"never_alert":       p.NeverAlert,
			"last_alerted":      p.LastAlerted,
			"last_viewed":       p.LastViewed,
			"staleness_seconds": int64(p.Staleness / time.Second),
			"will_alert":        p.WillAlert,
			"updated_at":        p.UpdatedAt,
		}).
		Where(sq.Eq{"id": p.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build profile update: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	return nil
}

// ListByStaleness はstalenessの昇順（更新の新しい順）でプロフィールを返す。
func (r *PostgresProfileRepo) ListByStaleness(ctx context.Context) ([]*model.Profile, error) {
	query, args, err := r.psql.Select(profileColumns...).
		From("profiles").
		OrderBy("staleness_seconds ASC", "created_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build profile list query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	defer rows.Close()

	var profiles []*model.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate profiles: %w", err)
	}
	return profiles, nil
}

// compile-time interface check
var _ ProfileRepository = (*PostgresProfileRepo)(nil)
