package model

import (
	"fmt"
	"sort"
	"time"
)

// Profile は有権者ごとの通知設定と鮮度（staleness）を表す。
// Staleness と WillAlert は保存時に再計算される派生値で、呼び出し元が直接設定しない。
type Profile struct {
	ID      string
	VoterID string

	AlwaysAlert bool
	NeverAlert  bool

	LastAlerted time.Time
	LastViewed  time.Time

	Staleness time.Duration
	WillAlert bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// MessageState は通知メッセージの状態を表す。
type MessageState string

const (
	// MessageStateDraft は友人の活動を蓄積中の下書き。
	MessageStateDraft MessageState = "draft"
	// MessageStateRead は配信せずに既読扱いになったメッセージ。
	MessageStateRead MessageState = "read"
	// MessageStateSent はメールで配信済みのメッセージ。SentAtが設定される。
	MessageStateSent MessageState = "sent"
)

// Message はプロフィール宛ての通知メッセージを表す。
// Activity は友人の有権者IDをキーに、最新の活動内容を保持する。
type Message struct {
	ID        string
	ProfileID string
	Activity  map[string]string
	State     MessageState
	SentAt    *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Sent は下書き以外の状態かを返す。
func (m *Message) Sent() bool {
	return m.State != MessageStateDraft
}

// Len は記録された活動の件数を返す。
func (m *Message) Len() int {
	return len(m.Activity)
}

// Empty は活動が1件も記録されていないかを返す。
func (m *Message) Empty() bool {
	return len(m.Activity) == 0
}

// ActivityLines は活動内容を有権者ID順に並べて返す。
func (m *Message) ActivityLines() []string {
	keys := make([]string, 0, len(m.Activity))
	for k := range m.Activity {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, m.Activity[k])
	}
	return lines
}

// Dismissed は配信されずに閉じられたかを返す。
// 配信済みならfalse、既読ならtrue、下書きならnil。
func (m *Message) Dismissed() *bool {
	var dismissed bool
	switch m.State {
	case MessageStateSent:
		dismissed = false
	case MessageStateRead:
		dismissed = true
	default:
		return nil
	}
	return &dismissed
}

// String はログ出力用の表現を返す。
func (m *Message) String() string {
	state := "Draft"
	if m.Sent() {
		state = "Sent"
	}
	noun := "Activities"
	if m.Len() == 1 {
		noun = "Activity"
	}
	return fmt.Sprintf("%s: %d %s", state, m.Len(), noun)
}
