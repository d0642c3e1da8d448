// Package message はプロフィール宛ての通知メッセージ（友人の活動ダイジェスト）を管理する。
// 下書きへの活動の蓄積、送信済み・既読への状態遷移、件名と本文の組み立てを提供する。
package message

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/ballotbuddies/internal/model"
	"github.com/hitoshi/ballotbuddies/internal/repository"
	"github.com/hitoshi/ballotbuddies/internal/security"
)

// Service は通知メッセージのサービス層。
type Service struct {
	repo      repository.MessageRepository
	sanitizer security.ContentSanitizerService
	logger    *slog.Logger
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.MessageRepository, sanitizer security.ContentSanitizerService, logger *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		sanitizer: sanitizer,
		logger:    logger,
		now:       time.Now,
	}
}

// GetDraft はプロフィールの下書きを返す。存在しない場合は新規に作成する。
// 何度呼び出しても同じ下書きが返る。
func (s *Service) GetDraft(ctx context.Context, profileID string) (*model.Message, error) {
	msg, err := s.repo.FindDraft(ctx, profileID)
	if err != nil {
		return nil, fmt.Errorf("下書きの取得に失敗しました: %w", err)
	}
	if msg != nil {
		return msg, nil
	}

	msg, created, err := s.repo.CreateDraft(ctx, profileID)
	if err != nil {
		return nil, fmt.Errorf("下書きの作成に失敗しました: %w", err)
	}
	if created {
		s.logger.Debug("Drafted new message",
			slog.String("profile_id", profileID),
			slog.String("message", msg.String()),
		)
	}
	return msg, nil
}

// Add は友人の活動を下書きに記録する。同じ友人の活動は最新のもので上書きされる。
func (s *Service) Add(ctx context.Context, msg *model.Message, voterID, line string, save bool) error {
	if msg.Activity == nil {
		msg.Activity = map[string]string{}
	}
	msg.Activity[voterID] = line
	if !save {
		return nil
	}
	return s.save(ctx, msg)
}

// Clear は下書きの活動をすべて消去する。
func (s *Service) Clear(ctx context.Context, msg *model.Message) error {
	s.logger.Info("Clearing unsent message",
		slog.String("profile_id", msg.ProfileID),
		slog.Int("activity_count", msg.Len()),
	)
	msg.Activity = map[string]string{}
	return s.save(ctx, msg)
}

// MarkSent はメールで配信済みとして記録する。
func (s *Service) MarkSent(ctx context.Context, msg *model.Message, save bool) error {
	now := s.now()
	msg.State = model.MessageStateSent
	msg.SentAt = &now
	if !save {
		return nil
	}
	return s.save(ctx, msg)
}

// MarkRead は配信せずに既読として閉じる。
func (s *Service) MarkRead(ctx context.Context, msg *model.Message, save bool) error {
	msg.State = model.MessageStateRead
	if !save {
		return nil
	}
	return s.save(ctx, msg)
}

func (s *Service) save(ctx context.Context, msg *model.Message) error {
	msg.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, msg); err != nil {
		return fmt.Errorf("メッセージの保存に失敗しました: %w", err)
	}
	return nil
}

// Subject は選挙までの日数に応じた件名を返す。
func Subject(days int) string {
	var inDays string
	switch {
	case days == 1:
		inDays = " Tomorrow"
	case days > 1:
		inDays = fmt.Sprintf(" in %d Days", days)
	}
	return "Your Friends are Preparing to Vote" + inDays
}

// Body は通知メールのHTML本文を組み立てる。
// electionNameが空の場合は選挙に関する一文を省略する。
func (s *Service) Body(msg *model.Message, electionName, electionDateHumanized string) string {
	count := msg.Len()
	friends, have := "friends", "have"
	if count == 1 {
		friends, have = "friend", "has"
	}

	var inElection string
	if electionName != "" {
		inElection = fmt.Sprintf(" in the upcoming <b>%s</b> election on <b>%s</b>",
			s.sanitizer.StripTags(electionName), s.sanitizer.StripTags(electionDateHumanized))
	}

	var items strings.Builder
	for _, line := range msg.ActivityLines() {
		items.WriteString("<li>")
		items.WriteString(s.sanitizer.StripTags(line))
		items.WriteString("</li>")
	}

	body := fmt.Sprintf(
		"Your %d %s on Michigan <b>Ballot Buddies</b> %s been making progress towards casting their vote%s.\n\n"+
			"Here's what they've been up to:\n\n<ul>%s</ul>",
		count, friends, have, inElection, items.String(),
	)
	return s.sanitizer.Sanitize(body)
}
