// Package user はユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/ballotbuddies/internal/model"
	"github.com/hitoshi/ballotbuddies/internal/repository"
)

// VoterFinder はユーザーに紐づく有権者の取得インターフェース。
type VoterFinder interface {
	FindByUserID(ctx context.Context, userID string) (*model.Voter, error)
}

// ActivityRemover は友人の下書きから活動を取り除くインターフェース。
type ActivityRemover interface {
	RemoveActivity(ctx context.Context, voterID string) (int64, error)
}

// Service はユーザー管理のサービス層。
// 退会処理のビジネスロジックを提供する。
type Service struct {
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	voters      VoterFinder
	activity    ActivityRemover
	logger      *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	voters VoterFinder,
	activity ActivityRemover,
	logger *slog.Logger,
) *Service {
	return &Service{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		voters:      voters,
		activity:    activity,
		logger:      logger,
	}
}

// Withdraw はユーザーの退会処理を実行する。
// 削除順序: 友人の下書き中の活動 → sessions → user（+ CASCADE: voters, 友人関係, profiles, messages, login_tokens）
// 招待した有権者のreferrer_idはSET NULLとなる。
func (s *Service) Withdraw(ctx context.Context, userID string) error {
	// ユーザー存在確認
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return model.NewUserNotFoundError()
	}

	s.logger.Info("退会処理を開始します",
		slog.String("user_id", userID),
	)

	// 1. 友人の下書きから自分の活動を削除
	if s.voters != nil && s.activity != nil {
		v, err := s.voters.FindByUserID(ctx, userID)
		if err != nil {
			return fmt.Errorf("有権者の取得に失敗しました: %w", err)
		}
		if v != nil {
			n, err := s.activity.RemoveActivity(ctx, v.ID)
			if err != nil {
				return fmt.Errorf("下書きの活動の削除に失敗しました: %w", err)
			}
			s.logger.Info("下書きから活動を削除しました",
				slog.String("voter_id", v.ID),
				slog.Int64("drafts", n),
			)
		}
	}

	// 2. セッションを削除
	if s.sessionRepo != nil {
		if err := s.sessionRepo.DeleteByUserID(ctx, userID); err != nil {
			return fmt.Errorf("セッションの削除に失敗しました: %w", err)
		}
	}

	// 3. ユーザーを削除（有権者以下はCASCADE削除）
	if err := s.userRepo.DeleteByID(ctx, userID); err != nil {
		return fmt.Errorf("ユーザーの削除に失敗しました: %w", err)
	}

	s.logger.Info("退会処理が完了しました",
		slog.String("user_id", userID),
	)

	return nil
}
