// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/ballotbuddies/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレス（小文字化済み）でユーザーを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーを作成する。
	Create(ctx context.Context, user *model.User) error

	// UpdateName はユーザーの氏名を更新する。
	UpdateName(ctx context.Context, user *model.User) error

	// DeleteByID は指定IDのユーザーを削除する。
	// 関連するvoters、profiles、messages、sessionsはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// Relations は有権者の友人・近隣・除外リストのIDを保持する。
type Relations struct {
	Friends   []string
	Neighbors []string
	Strangers []string
}

// VoterRepository は有権者と社会グラフの永続化インターフェース。
type VoterRepository interface {
	// FindByID は指定IDの有権者をユーザー情報付きで取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Voter, error)

	// FindByUserID はユーザーIDで有権者を取得する。見つからない場合はnilを返す。
	FindByUserID(ctx context.Context, userID string) (*model.Voter, error)

	// FindBySlug は招待スラッグで有権者を取得する。見つからない場合はnilを返す。
	FindBySlug(ctx context.Context, slug string) (*model.Voter, error)

	// CreateWithProfile は有権者とプロフィールを同一トランザクションで作成する。
	CreateWithProfile(ctx context.Context, voter *model.Voter, profile *model.Profile) error

	// Update は有権者の本人情報・ステータス・招待元を更新する。
	Update(ctx context.Context, voter *model.Voter) error

	// List は全有権者をユーザー情報付きで作成順に返す。
	List(ctx context.Context) ([]*model.Voter, error)

	// ListByIDs は指定IDの有権者をユーザー情報付きで返す。
	ListByIDs(ctx context.Context, ids []string) ([]*model.Voter, error)

	// LoadRelations は友人・近隣・除外リストのIDを取得する。
	LoadRelations(ctx context.Context, voterID string) (*Relations, error)

	// AddFriendship は2人の有権者を双方向の友人として登録する。登録済みの場合は何もしない。
	AddFriendship(ctx context.Context, voterID, friendID string) error

	// RemoveFriend は一方向の友人関係を削除する。
	RemoveFriend(ctx context.Context, voterID, friendID string) error

	// AddNeighbors は近隣リストに複数の有権者を追加し、新たに追加された件数を返す。
	AddNeighbors(ctx context.Context, voterID string, neighborIDs []string) (int, error)

	// AddStranger は近隣リストから除外し、除外リストに追加する。
	AddStranger(ctx context.Context, voterID, strangerID string) error
}

// ProfileRepository はプロフィール（通知設定）の永続化インターフェース。
type ProfileRepository interface {
	// FindByVoterID は有権者IDでプロフィールを取得する。見つからない場合はnilを返す。
	FindByVoterID(ctx context.Context, voterID string) (*model.Profile, error)

	// Update は通知設定と派生値（staleness、will_alert）を更新する。
	Update(ctx context.Context, profile *model.Profile) error

	// ListByStaleness はstalenessの昇順（更新の新しい順）でプロフィールを返す。
	ListByStaleness(ctx context.Context) ([]*model.Profile, error)
}

// MessageRepository は通知メッセージの永続化インターフェース。
type MessageRepository interface {
	// FindDraft はプロフィールの下書きを取得する。見つからない場合はnilを返す。
	FindDraft(ctx context.Context, profileID string) (*model.Message, error)

	// CreateDraft は下書きを作成する。既に下書きが存在する場合は既存の下書きを返し、created=falseとなる。
	CreateDraft(ctx context.Context, profileID string) (msg *model.Message, created bool, err error)

	// Update は活動内容と状態を更新する。
	Update(ctx context.Context, msg *model.Message) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}

// LoginTokenRepository はログインリンク用トークンの永続化インターフェース。
type LoginTokenRepository interface {
	// Create はトークンを作成する。
	Create(ctx context.Context, token *model.LoginToken) error
	// Consume は未使用かつ有効期限内のトークンを使用済みにして返す。
	// 該当するトークンがない場合はnilを返す。
	Consume(ctx context.Context, tokenHash string) (*model.LoginToken, error)
}
