package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/ballotbuddies/internal/model"
)

// PostgresVoterRepo はPostgreSQLを使用した有権者リポジトリ。
// 友人・近隣・除外の各リレーションは中間テーブルで管理する。
type PostgresVoterRepo struct {
	db *sql.DB
}

// NewPostgresVoterRepo はPostgresVoterRepoを生成する。
func NewPostgresVoterRepo(db *sql.DB) *PostgresVoterRepo {
	return &PostgresVoterRepo{db: db}
}

const voterSelect = `
	SELECT v.id, v.user_id, v.slug, v.birth_date, v.zip_code, v.status, v.updated, v.referrer_id,
	       v.created_at, v.updated_at,
	       u.id, u.email, u.first_name, u.last_name, u.created_at, u.updated_at
	FROM voters v
	JOIN users u ON u.id = v.user_id`

func scanVoter(row interface{ Scan(...any) error }) (*model.Voter, error) {
	v := &model.Voter{User: &model.User{}}
	var (
		birthDate  sql.NullTime
		status     []byte
		updated    sql.NullTime
		referrerID sql.NullString
	)
	err := row.Scan(
		&v.ID, &v.UserID, &v.Slug, &birthDate, &v.ZipCode, &status, &updated, &referrerID,
		&v.CreatedAt, &v.UpdatedAt,
		&v.User.ID, &v.User.Email, &v.User.FirstName, &v.User.LastName, &v.User.CreatedAt, &v.User.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if birthDate.Valid {
		d := birthDate.Time
		v.BirthDate = &d
	}
	if len(status) > 0 {
		v.Status = json.RawMessage(status)
	}
	if updated.Valid {
		u := updated.Time
		v.Updated = &u
	}
	if referrerID.Valid {
		id := referrerID.String
		v.ReferrerID = &id
	}
	return v, nil
}

func (r *PostgresVoterRepo) findOne(ctx context.Context, where string, arg any) (*model.Voter, error) {
	v, err := scanVoter(r.db.QueryRowContext(ctx, voterSelect+` WHERE `+where, arg))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (r *PostgresVoterRepo) queryVoters(ctx context.Context, query string, args ...any) ([]*model.Voter, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var voters []*model.Voter
	for rows.Next() {
		v, err := scanVoter(rows)
		if err != nil {
			return nil, err
		}
		voters = append(voters, v)
	}
	return voters, rows.Err()
}

// FindByID は指定IDの有権者をユーザー情報付きで取得する。見つからない場合はnilを返す。
func (r *PostgresVoterRepo) FindByID(ctx context.Context, id string) (*model.Voter, error) {
	v, err := r.findOne(ctx, `v.id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find voter by ID: %w", err)
	}
	return v, nil
}

// FindByUserID はユーザーIDで有権者を取得する。見つからない場合はnilを返す。
func (r *PostgresVoterRepo) FindByUserID(ctx context.Context, userID string) (*model.Voter, error) {
	v, err := r.findOne(ctx, `v.user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find voter by user ID: %w", err)
	}
	return v, nil
}

// FindBySlug は招待スラッグで有権者を取得する。見つからない場合はnilを返す。
// 同姓同名・同一郵便番号でスラッグが衝突した場合は最も古い有権者を返す。
func (r *PostgresVoterRepo) FindBySlug(ctx context.Context, slug string) (*model.Voter, error) {
	v, err := r.findOne(ctx, `v.slug = $1 ORDER BY v.created_at LIMIT 1`, slug)
	if err != nil {
		return nil, fmt.Errorf("failed to find voter by slug: %w", err)
	}
	return v, nil
}

// CreateWithProfile は有権者とプロフィールを同一トランザクションで作成する。
func (r *PostgresVoterRepo) CreateWithProfile(ctx context.Context, voter *model.Voter, profile *model.Profile) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO voters (id, user_id, slug, birth_date, zip_code, status, updated, referrer_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		voter.ID, voter.UserID, voter.Slug, nullDate(voter.BirthDate), voter.ZipCode,
		nullJSON(voter.Status), voter.Updated, voter.ReferrerID, voter.CreatedAt, voter.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert voter: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO profiles (id, voter_id, always_alert, never_alert, last_alerted, last_viewed,
		                       staleness_seconds, will_alert, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		profile.ID, profile.VoterID, profile.AlwaysAlert, profile.NeverAlert, profile.LastAlerted, profile.LastViewed,
		int64(profile.Staleness/time.Second), profile.WillAlert, profile.CreatedAt, profile.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert profile: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Update は有権者の本人情報・ステータス・招待元を更新する。
func (r *PostgresVoterRepo) Update(ctx context.Context, voter *model.Voter) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE voters
		 SET slug = $2, birth_date = $3, zip_code = $4, status = $5, updated = $6, referrer_id = $7, updated_at = $8
		 WHERE id = $1`,
		voter.ID, voter.Slug, nullDate(voter.BirthDate), voter.ZipCode,
		nullJSON(voter.Status), voter.Updated, voter.ReferrerID, voter.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update voter: %w", err)
	}
	return nil
}

// List は全有権者をユーザー情報付きで作成順に返す。
func (r *PostgresVoterRepo) List(ctx context.Context) ([]*model.Voter, error) {
	voters, err := r.queryVoters(ctx, voterSelect+` ORDER BY v.created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list voters: %w", err)
	}
	return voters, nil
}

// ListByIDs は指定IDの有権者をユーザー情報付きで返す。
func (r *PostgresVoterRepo) ListByIDs(ctx context.Context, ids []string) ([]*model.Voter, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	voters, err := r.queryVoters(ctx, voterSelect+` WHERE v.id = ANY($1::uuid[]) ORDER BY v.created_at`, pq.StringArray(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to list voters by IDs: %w", err)
	}
	return voters, nil
}

// LoadRelations は友人・近隣・除外リストのIDを取得する。
func (r *PostgresVoterRepo) LoadRelations(ctx context.Context, voterID string) (*Relations, error) {
	var friends, neighbors, strangers pq.StringArray
	err := r.db.QueryRowContext(ctx,
		`SELECT
		   ARRAY(SELECT friend_id::text FROM voter_friends WHERE voter_id = $1 ORDER BY created_at),
		   ARRAY(SELECT neighbor_id::text FROM voter_neighbors WHERE voter_id = $1 ORDER BY created_at),
		   ARRAY(SELECT stranger_id::text FROM voter_strangers WHERE voter_id = $1 ORDER BY created_at)`,
		voterID,
	).Scan(&friends, &neighbors, &strangers)
	if err != nil {
		return nil, fmt.Errorf("failed to load voter relations: %w", err)
	}
	return &Relations{
		Friends:   []string(friends),
		Neighbors: []string(neighbors),
		Strangers: []string(strangers),
	}, nil
}

// AddFriendship は2人の有権者を双方向の友人として登録する。登録済みの場合は何もしない。
func (r *PostgresVoterRepo) AddFriendship(ctx context.Context, voterID, friendID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO voter_friends (voter_id, friend_id)
		 VALUES ($1, $2), ($2, $1)
		 ON CONFLICT DO NOTHING`,
		voterID, friendID,
	)
	if err != nil {
		return fmt.Errorf("failed to add friendship: %w", err)
	}
	return nil
}

// RemoveFriend は一方向の友人関係を削除する。
func (r *PostgresVoterRepo) RemoveFriend(ctx context.Context, voterID, friendID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM voter_friends WHERE voter_id = $1 AND friend_id = $2`,
		voterID, friendID,
	)
	if err != nil {
		return fmt.Errorf("failed to remove friend: %w", err)
	}
	return nil
}

// AddNeighbors は近隣リストに複数の有権者を追加し、新たに追加された件数を返す。
func (r *PostgresVoterRepo) AddNeighbors(ctx context.Context, voterID string, neighborIDs []string) (int, error) {
	if len(neighborIDs) == 0 {
		return 0, nil
	}
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO voter_neighbors (voter_id, neighbor_id)
		 SELECT $1, unnest($2::uuid[])
		 ON CONFLICT DO NOTHING`,
		voterID, pq.StringArray(neighborIDs),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to add neighbors: %w", err)
	}
	added, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(added), nil
}

// AddStranger は近隣リストから除外し、除外リストに追加する。
func (r *PostgresVoterRepo) AddStranger(ctx context.Context, voterID, strangerID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM voter_neighbors WHERE voter_id = $1 AND neighbor_id = $2`,
		voterID, strangerID,
	); err != nil {
		return fmt.Errorf("failed to remove neighbor: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO voter_strangers (voter_id, stranger_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		voterID, strangerID,
	); err != nil {
		return fmt.Errorf("failed to add stranger: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// nullDate は生年月日をDATE列向けの値に変換する。
func nullDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format("2006-01-02")
}

// nullJSON は未取得のステータスをNULLとして保存する。
func nullJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

// compile-time interface check
var _ VoterRepository = (*PostgresVoterRepo)(nil)
