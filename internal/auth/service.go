// Package auth はメールのログインリンクによる認証とセッション管理を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/hitoshi/ballotbuddies/internal/mail"
	"github.com/hitoshi/ballotbuddies/internal/model"
	"github.com/hitoshi/ballotbuddies/internal/repository"
)

// VerifyPath はログインリンクの検証エンドポイント。
const VerifyPath = "/auth/verify"

// VoterRegistrar はメールアドレスから有権者を取得・作成するインターフェース。
type VoterRegistrar interface {
	FromEmail(ctx context.Context, email, referrerSlug string) (*model.Voter, error)
}

// Mailer はメール送信のインターフェース。
type Mailer interface {
	Send(ctx context.Context, msg mail.Message) error
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int           // セッション有効期間（秒）
	LoginTokenTTL time.Duration // ログインリンクの有効期間
	BaseURL       string        // ログインリンクのベースURL
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	tokenRepo   repository.LoginTokenRepository
	voters      VoterRegistrar
	mailer      Mailer
	config      ServiceConfig
	logger      *slog.Logger
	now         func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	tokenRepo repository.LoginTokenRepository,
	voters VoterRegistrar,
	mailer Mailer,
	config ServiceConfig,
	logger *slog.Logger,
) *Service {
	return &Service{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		tokenRepo:   tokenRepo,
		voters:      voters,
		mailer:      mailer,
		config:      config,
		logger:      logger,
		now:         time.Now,
	}
}

// SetVoters は有権者の登録先を設定する。有権者サービスと相互に参照するため生成後に設定する。
func (s *Service) SetVoters(voters VoterRegistrar) {
	s.voters = voters
}

// RequestLogin はメールアドレスの有権者を取得（未登録なら作成）し、ログインリンクを送信する。
// referrerSlugが指定された場合は招待元と友人として登録される。
func (s *Service) RequestLogin(ctx context.Context, email, referrerSlug, next string) error {
	v, err := s.voters.FromEmail(ctx, email, referrerSlug)
	if err != nil {
		return err
	}

	link, err := s.loginURL(ctx, v.UserID, next)
	if err != nil {
		return err
	}
	if err := s.mailer.Send(ctx, mail.LoginMessage(v.Email(), link)); err != nil {
		return fmt.Errorf("failed to send login link: %w", err)
	}

	s.logger.Info("login link requested",
		slog.String("user_id", v.UserID),
		slog.String("voter_id", v.ID),
	)
	return nil
}

// SendInvite は新規作成された招待先ユーザーにログインリンク付きの招待メールを送信する。
func (s *Service) SendInvite(ctx context.Context, invitee *model.User, inviter *model.Voter) error {
	link, err := s.loginURL(ctx, invitee.ID, "/")
	if err != nil {
		return err
	}
	return s.mailer.Send(ctx, mail.InviteMessage(invitee.Email, inviter.DisplayName(), link))
}

// Verify はログインリンクのトークンを消費してセッションを発行する。
// 戻り値の文字列はログイン後の遷移先パス。
func (s *Service) Verify(ctx context.Context, rawToken string) (*model.Session, string, error) {
	if rawToken == "" {
		return nil, "", model.NewInvalidLoginTokenError()
	}

	token, err := s.tokenRepo.Consume(ctx, hashToken(rawToken))
	if err != nil {
		return nil, "", fmt.Errorf("failed to consume login token: %w", err)
	}
	if token == nil {
		return nil, "", model.NewInvalidLoginTokenError()
	}

	session, err := s.createSession(ctx, token.UserID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create session: %w", err)
	}

	s.logger.Info("user logged in", slog.String("user_id", token.UserID))
	return session, SafeNextPath(token.NextPath), nil
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	s.logger.Info("user logged out", slog.String("session_id", sessionID))
	return nil
}

// GetCurrentUser はセッションから現在のユーザーを取得する。
func (s *Service) GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session ID is required")
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, fmt.Errorf("session not found or expired")
	}

	user, err := s.userRepo.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("user not found")
	}

	return user, nil
}

// SafeNextPath はログイン後の遷移先を同一オリジンの絶対パスに限定する。
func SafeNextPath(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.Contains(next, `\`) {
		return "/"
	}
	return next
}

// loginURL はトークンを発行して保存し、ログインリンクのURLを返す。
func (s *Service) loginURL(ctx context.Context, userID, next string) (string, error) {
	raw, err := generateToken()
	if err != nil {
		return "", fmt.Errorf("failed to generate login token: %w", err)
	}

	now := s.now()
	token := &model.LoginToken{
		TokenHash: hashToken(raw),
		UserID:    userID,
		NextPath:  SafeNextPath(next),
		ExpiresAt: now.Add(s.config.LoginTokenTTL),
		CreatedAt: now,
	}
	if err := s.tokenRepo.Create(ctx, token); err != nil {
		return "", fmt.Errorf("failed to save login token: %w", err)
	}

	return strings.TrimRight(s.config.BaseURL, "/") + VerifyPath + "?" + url.Values{"token": {raw}}.Encode(), nil
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, userID string) (*model.Session, error) {
	sessionID, err := generateToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := s.now()
	session := &model.Session{
		ID:        sessionID,
		UserID:    userID,
		ExpiresAt: now.Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: now,
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// generateToken は暗号的に安全なランダム文字列を生成する。
func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
