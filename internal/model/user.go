// Package model はドメインモデルを定義する。
package model

import (
	"strings"
	"time"
)

// User はサービス利用ユーザー（ログインアカウント）を表す。
type User struct {
	ID        string
	Email     string
	FirstName string
	LastName  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// FullName は姓名を結合した氏名を返す。
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// DisplayName は表示用の名前を返す。氏名が未設定の場合はメールアドレスを返す。
func (u *User) DisplayName() string {
	if name := u.FullName(); name != "" {
		return name
	}
	return u.Email
}

// Session はユーザーのログインセッションを表す。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// LoginToken はメールで送信するログインリンクのトークンを表す。
// トークン本体は保存せず、SHA-256ハッシュのみを保持する。
type LoginToken struct {
	TokenHash string
	UserID    string
	NextPath  string
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}
