package model

import (
	"encoding/json"
	"time"
)

// Voter は投票準備の進捗を共有する有権者を表す。
// ユーザーアカウントと1対1で紐付き、ユーザー削除時はCASCADE削除される。
type Voter struct {
	ID     string
	UserID string
	// User は氏名・メールアドレスの参照用。リポジトリがJOINして埋める。
	User *User

	// Slug は氏名と郵便番号から導出される招待リンク用トークン。保存のたびに再計算される。
	Slug string

	BirthDate *time.Time
	ZipCode   string

	// Status は選挙ステータスAPIの最後の成功レスポンス。未取得の場合はnil。
	Status json.RawMessage
	// Updated はステータスを最後に取得した日時。
	Updated *time.Time

	// ReferrerID は招待元の有権者ID。招待元が削除された場合はNULLになる。
	ReferrerID *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Email はユーザーのメールアドレスを返す。
func (v *Voter) Email() string {
	if v.User == nil {
		return ""
	}
	return v.User.Email
}

// FirstName はユーザーの名を返す。
func (v *Voter) FirstName() string {
	if v.User == nil {
		return ""
	}
	return v.User.FirstName
}

// LastName はユーザーの姓を返す。
func (v *Voter) LastName() string {
	if v.User == nil {
		return ""
	}
	return v.User.LastName
}

// DisplayName は表示用の名前を返す。
func (v *Voter) DisplayName() string {
	if v.User == nil {
		return ""
	}
	return v.User.DisplayName()
}

// Complete は選挙ステータスの照会に必要な本人情報（氏名・生年月日・郵便番号）が
// すべて揃っているかを返す。
func (v *Voter) Complete() bool {
	return v.FirstName() != "" &&
		v.LastName() != "" &&
		v.BirthDate != nil &&
		v.ZipCode != ""
}

// StatusID はステータスJSONの不透明な識別子（"id"）を返す。未取得の場合は空文字列。
func (v *Voter) StatusID() string {
	if len(v.Status) == 0 {
		return ""
	}
	var envelope struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(v.Status, &envelope); err != nil {
		return ""
	}
	return envelope.ID
}

// String はログ出力用の表現を返す。
func (v *Voter) String() string {
	return v.DisplayName() + " (" + v.Email() + ")"
}
