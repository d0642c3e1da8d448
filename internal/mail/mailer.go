// Package mail はログインリンク・招待・活動ダイジェストのメール送信を提供する。
package mail

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/ballotbuddies/internal/metrics"
)

// DefaultFrom は送信元アドレス。
const DefaultFrom = "no-reply@michiganelections.io"

// メールの種類
const (
	KindLogin  = "login"
	KindInvite = "invite"
	KindDigest = "digest"
)

// testDomains は送信しないテスト用ドメイン。
var testDomains = []string{"example.com", "example.org"}

// Message は送信するメール。HTMLが空の場合はテキストのみ送る。
type Message struct {
	Kind    string
	To      string
	Subject string
	Text    string
	HTML    string
}

// Sender はメールの送信手段。
type Sender interface {
	Send(ctx context.Context, from string, msg Message) error
}

// Mailer はテスト用ドメインを除外してメールを送信する。
type Mailer struct {
	sender  Sender
	from    string
	metrics metrics.MetricsCollector
	logger  *slog.Logger
}

// NewMailer はMailerを生成する。fromが空の場合はDefaultFromを使用する。
func NewMailer(sender Sender, from string, collector metrics.MetricsCollector, logger *slog.Logger) *Mailer {
	if from == "" {
		from = DefaultFrom
	}
	return &Mailer{
		sender:  sender,
		from:    from,
		metrics: collector,
		logger:  logger,
	}
}

// IsTestRecipient はテスト用ドメイン（example.com、example.org、*.test）宛てかを返す。
func IsTestRecipient(email string) bool {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return false
	}
	domain := strings.ToLower(email[at+1:])
	if strings.HasSuffix(domain, ".test") {
		return true
	}
	for _, d := range testDomains {
		if domain == d {
			return true
		}
	}
	return false
}

// Send はメールを送信する。テスト用ドメイン宛ては送信せずに成功として扱う。
func (m *Mailer) Send(ctx context.Context, msg Message) error {
	if IsTestRecipient(msg.To) {
		m.logger.Debug("テスト用ドメインのためメール送信をスキップしました",
			slog.String("kind", msg.Kind),
			slog.String("to", msg.To),
		)
		m.metrics.RecordEmailSkipped(msg.Kind)
		return nil
	}

	if err := m.sender.Send(ctx, m.from, msg); err != nil {
		return fmt.Errorf("failed to send %s email: %w", msg.Kind, err)
	}
	m.metrics.RecordEmailSent(msg.Kind)
	m.logger.Info("メールを送信しました",
		slog.String("kind", msg.Kind),
		slog.String("to", msg.To),
	)
	return nil
}

// LoginMessage はログインリンクのメールを組み立てる。
func LoginMessage(to, url string) Message {
	return Message{
		Kind:    KindLogin,
		To:      to,
		Subject: "Welcome to Ballot Buddies",
		Text:    "Please click this link to log in: " + url,
	}
}

// InviteMessage は友人からの招待メールを組み立てる。
func InviteMessage(to, inviterName, url string) Message {
	return Message{
		Kind:    KindInvite,
		To:      to,
		Subject: inviterName + " invited you to Ballot Buddies",
		Text: inviterName + " wants to help you get ready to vote on Michigan Ballot Buddies.\n\n" +
			"Please click this link to join: " + url,
	}
}

// DigestMessage は友人の活動ダイジェストのメールを組み立てる。
func DigestMessage(to, subject, text, html string) Message {
	return Message{
		Kind:    KindDigest,
		To:      to,
		Subject: subject,
		Text:    text,
		HTML:    html,
	}
}
