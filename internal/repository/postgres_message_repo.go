package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/ballotbuddies/internal/model"
)

// PostgresMessageRepo はPostgreSQLを使用した通知メッセージリポジトリ。
// プロフィールごとの下書きは部分ユニークインデックスで1件に制限される。
type PostgresMessageRepo struct {
	db *sql.DB
}

// NewPostgresMessageRepo はPostgresMessageRepoを生成する。
func NewPostgresMessageRepo(db *sql.DB) *PostgresMessageRepo {
	return &PostgresMessageRepo{db: db}
}

const messageColumns = `id, profile_id, activity, state, sent_at, created_at, updated_at`

func scanMessage(row interface{ Scan(...any) error }) (*model.Message, error) {
	m := &model.Message{}
	var (
		activity []byte
		state    string
		sentAt   sql.NullTime
	)
	if err := row.Scan(&m.ID, &m.ProfileID, &activity, &state, &sentAt, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}

	m.Activity = map[string]string{}
	if len(activity) > 0 {
		if err := json.Unmarshal(activity, &m.Activity); err != nil {
			return nil, fmt.Errorf("failed to decode message activity: %w", err)
		}
	}
	m.State = model.MessageState(state)
	if sentAt.Valid {
		t := sentAt.Time
		m.SentAt = &t
	}
	return m, nil
}

// FindDraft はプロフィールの下書きを取得する。見つからない場合はnilを返す。
func (r *PostgresMessageRepo) FindDraft(ctx context.Context, profileID string) (*model.Message, error) {
	m, err := scanMessage(r.db.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE profile_id = $1 AND state = 'draft'`,
		profileID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find draft message: %w", err)
	}
	return m, nil
}

// CreateDraft は下書きを作成する。
// 同時に作成された場合は部分ユニークインデックスで衝突し、既存の下書きを返す。
func (r *PostgresMessageRepo) CreateDraft(ctx context.Context, profileID string) (*model.Message, bool, error) {
	now := time.Now()
	m, err := scanMessage(r.db.QueryRowContext(ctx,
		`INSERT INTO messages (id, profile_id, activity, state, created_at, updated_at)
		 VALUES ($1, $2, '{}'::jsonb, 'draft', $3, $3)
		 ON CONFLICT (profile_id) WHERE state = 'draft' DO NOTHING
		 RETURNING `+messageColumns,
		uuid.New().String(), profileID, now,
	))
	if err == nil {
		return m, true, nil
	}
	if err != sql.ErrNoRows {
		return nil, false, fmt.Errorf("failed to create draft message: %w", err)
	}

	existing, err := r.FindDraft(ctx, profileID)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, fmt.Errorf("draft message disappeared for profile: %s", profileID)
	}
	return existing, false, nil
}

// Update は活動内容と状態を更新する。
func (r *PostgresMessageRepo) Update(ctx context.Context, m *model.Message) error {
	activity := m.Activity
	if activity == nil {
		activity = map[string]string{}
	}
	data, err := json.Marshal(activity)
	if err != nil {
		return fmt.Errorf("failed to encode message activity: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`UPDATE messages SET activity = $2, state = $3, sent_at = $4, updated_at = $5 WHERE id = $1`,
		m.ID, data, string(m.State), m.SentAt, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update message: %w", err)
	}
	return nil
}

// RemoveActivity は全ての下書きから指定した有権者の活動を取り除き、更新件数を返す。
func (r *PostgresMessageRepo) RemoveActivity(ctx context.Context, voterID string) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE messages SET activity = activity - $1::text, updated_at = now()
		 WHERE state = 'draft' AND activity ? $1::text`,
		voterID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to remove activity: %w", err)
	}
	return result.RowsAffected()
}

// compile-time interface check
var _ MessageRepository = (*PostgresMessageRepo)(nil)
