// Package voter は有権者の登録・招待と友人関係（ソーシャルグラフ）を管理する。
package voter

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/ballotbuddies/internal/elections"
	"github.com/hitoshi/ballotbuddies/internal/model"
	"github.com/hitoshi/ballotbuddies/internal/progress"
	"github.com/hitoshi/ballotbuddies/internal/repository"
)

// StatusLookup は選挙ステータスの照会インターフェース。
type StatusLookup interface {
	Lookup(ctx context.Context, id elections.Identity) (*elections.Result, error)
}

// Alerter は友人の活動を通知の下書きに記録するインターフェース。
type Alerter interface {
	Alert(ctx context.Context, profile *model.Profile, friend *model.Voter) error
}

// Inviter は招待メールの送信インターフェース。
type Inviter interface {
	SendInvite(ctx context.Context, invitee *model.User, inviter *model.Voter) error
}

// Service は有権者のサービス層。
type Service struct {
	users    repository.UserRepository
	voters   repository.VoterRepository
	profiles repository.ProfileRepository
	status   StatusLookup
	alerter  Alerter
	inviter  Inviter
	logger   *slog.Logger
	now      func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	users repository.UserRepository,
	voters repository.VoterRepository,
	profiles repository.ProfileRepository,
	status StatusLookup,
	alerter Alerter,
	inviter Inviter,
	logger *slog.Logger,
) *Service {
	return &Service{
		users:    users,
		voters:   voters,
		profiles: profiles,
		status:   status,
		alerter:  alerter,
		inviter:  inviter,
		logger:   logger,
		now:      time.Now,
	}
}

// NormalizeEmail は前後の空白を除去し小文字に揃える。
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidEmail は表示名を含まない単一のメールアドレスかを返す。
func ValidEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

// Slugify は氏名と郵便番号から招待リンク用のスラッグを生成する。
func Slugify(firstName, lastName, zipCode string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(firstName + lastName + zipCode))
}

// UpdatedHumanized はステータスの最終取得日時を表示用に整形する。
func UpdatedHumanized(updated *time.Time, now time.Time) string {
	if updated == nil {
		return "−"
	}
	delta := now.Sub(*updated)
	switch {
	case delta < 5*time.Second:
		return "Now"
	case delta < 5*time.Minute:
		return "Today"
	default:
		return updated.Format("1/02")
	}
}

// Activity は友人に共有する活動内容の1行を返す。
func Activity(v *model.Voter, now time.Time) string {
	return progress.Activity(v.DisplayName(), progress.Parse(v.Status, now))
}

// Progress は有権者の投票準備の進捗を返す。
func (s *Service) Progress(v *model.Voter) progress.Progress {
	return progress.Parse(v.Status, s.now())
}

// FromEmail はメールアドレスから有権者を取得する。存在しない場合はユーザーと有権者を作成する。
// referrerSlugが既存の有権者を指す場合は双方向の友人として登録し、招待元が未設定なら記録する。
func (s *Service) FromEmail(ctx context.Context, email, referrerSlug string) (*model.Voter, error) {
	email = NormalizeEmail(email)
	if !ValidEmail(email) {
		return nil, model.NewInvalidEmailError(email)
	}

	user, _, err := s.findOrCreateUser(ctx, email)
	if err != nil {
		return nil, err
	}
	v, err := s.FromUser(ctx, user)
	if err != nil {
		return nil, err
	}

	if referrerSlug == "" {
		return v, nil
	}
	other, err := s.voters.FindBySlug(ctx, referrerSlug)
	if err != nil {
		return nil, fmt.Errorf("招待元の取得に失敗しました: %w", err)
	}
	if other == nil || other.ID == v.ID {
		return v, nil
	}

	if err := s.voters.AddFriendship(ctx, v.ID, other.ID); err != nil {
		return nil, fmt.Errorf("友人登録に失敗しました: %w", err)
	}
	if v.ReferrerID == nil {
		referrerID := other.ID
		v.ReferrerID = &referrerID
	}
	if err := s.Save(ctx, v); err != nil {
		return nil, err
	}
	return v, nil
}

// FromUser はユーザーの有権者を取得する。存在しない場合は有権者とプロフィールを作成する。
func (s *Service) FromUser(ctx context.Context, user *model.User) (*model.Voter, error) {
	v, err := s.voters.FindByUserID(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("有権者の取得に失敗しました: %w", err)
	}
	if v != nil {
		return v, nil
	}

	now := s.now()
	v = &model.Voter{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		User:      user,
		CreatedAt: now,
		UpdatedAt: now,
	}
	v.Slug = Slugify(v.FirstName(), v.LastName(), v.ZipCode)
	profile := &model.Profile{
		ID:          uuid.New().String(),
		VoterID:     v.ID,
		LastAlerted: now,
		LastViewed:  now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.voters.CreateWithProfile(ctx, v, profile); err != nil {
		return nil, fmt.Errorf("有権者の作成に失敗しました: %w", err)
	}

	s.logger.Info("Created voter",
		slog.String("voter_id", v.ID),
		slog.String("voter", v.String()),
	)
	return v, nil
}

// ForUserID はユーザーIDから有権者を取得する。
func (s *Service) ForUserID(ctx context.Context, userID string) (*model.Voter, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return s.FromUser(ctx, user)
}

// GetBySlug は招待スラッグから有権者を取得する。
func (s *Service) GetBySlug(ctx context.Context, slug string) (*model.Voter, error) {
	v, err := s.voters.FindBySlug(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("有権者の取得に失敗しました: %w", err)
	}
	if v == nil {
		return nil, model.NewVoterNotFoundError(slug)
	}
	return v, nil
}

// List は全有権者を返す。
func (s *Service) List(ctx context.Context) ([]*model.Voter, error) {
	voters, err := s.voters.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("有権者一覧の取得に失敗しました: %w", err)
	}
	return voters, nil
}

// Invite はメールアドレスごとに友人を招待する。
// 新規作成したユーザーにのみ招待メールを送り、既存のユーザーとは友人登録のみ行う。
// 空欄・重複・自分自身のアドレスは無視する。
func (s *Service) Invite(ctx context.Context, v *model.Voter, emails []string) ([]*model.Voter, error) {
	var targets []string
	seen := map[string]bool{NormalizeEmail(v.Email()): true}
	for _, raw := range emails {
		email := NormalizeEmail(raw)
		if email == "" || seen[email] {
			continue
		}
		if !ValidEmail(email) {
			return nil, model.NewInvalidEmailError(email)
		}
		seen[email] = true
		targets = append(targets, email)
	}

	friends := make([]*model.Voter, 0, len(targets))
	for _, email := range targets {
		user, created, err := s.findOrCreateUser(ctx, email)
		if err != nil {
			return nil, err
		}
		if created && s.inviter != nil {
			if err := s.inviter.SendInvite(ctx, user, v); err != nil {
				return nil, fmt.Errorf("招待メールの送信に失敗しました: %w", err)
			}
		}

		other, err := s.FromUser(ctx, user)
		if err != nil {
			return nil, err
		}
		if err := s.voters.AddFriendship(ctx, v.ID, other.ID); err != nil {
			return nil, fmt.Errorf("友人登録に失敗しました: %w", err)
		}
		if other.ReferrerID == nil {
			referrerID := v.ID
			other.ReferrerID = &referrerID
		}
		if err := s.Save(ctx, other); err != nil {
			return nil, err
		}
		friends = append(friends, other)
	}

	if err := s.Save(ctx, v); err != nil {
		return nil, err
	}
	return friends, nil
}

// UpdateStatus は本人情報で選挙ステータスを照会し、結果を有権者に反映する（保存はしない）。
// 戻り値はステータスの識別子が変わったかと、保留（202）時のAPIメッセージ。
// 本人情報が不足していても照会し、未入力の項目は空で送る（APIは202で不足を知らせる）。
// 照会の失敗はエラーとして返さず (false, "") とする。
func (s *Service) UpdateStatus(ctx context.Context, v *model.Voter) (bool, string) {
	id := elections.Identity{
		FirstName: v.FirstName(),
		LastName:  v.LastName(),
		ZipCode:   v.ZipCode,
	}
	if v.BirthDate != nil {
		id.BirthDate = *v.BirthDate
	}

	previous := v.StatusID()
	result, err := s.status.Lookup(ctx, id)
	if err != nil {
		s.logger.Error("ステータスの更新に失敗しました",
			slog.String("voter_id", v.ID),
			slog.String("error", err.Error()),
		)
		return false, ""
	}

	switch {
	case result.Pending():
		now := s.now()
		v.Updated = &now
		return false, result.Message
	case !result.OK():
		return false, ""
	}

	now := s.now()
	v.Status = result.Body
	v.Updated = &now
	return v.StatusID() != previous, ""
}

// UpdateNeighbors は友人の友人を近隣として追加し、追加した件数を返す。
// 自分自身・友人・既存の近隣・除外済みの有権者は追加しない。
func (s *Service) UpdateNeighbors(ctx context.Context, v *model.Voter) (int, error) {
	rel, err := s.voters.LoadRelations(ctx, v.ID)
	if err != nil {
		return 0, err
	}

	known := map[string]bool{v.ID: true}
	for _, ids := range [][]string{rel.Friends, rel.Neighbors, rel.Strangers} {
		for _, id := range ids {
			known[id] = true
		}
	}

	var candidates []string
	for _, friendID := range rel.Friends {
		friendRel, err := s.voters.LoadRelations(ctx, friendID)
		if err != nil {
			return 0, err
		}
		for _, id := range friendRel.Friends {
			if known[id] {
				continue
			}
			known[id] = true
			candidates = append(candidates, id)
		}
	}

	added, err := s.voters.AddNeighbors(ctx, v.ID, candidates)
	if err != nil {
		return 0, err
	}
	if added > 0 {
		s.logger.Info("近隣を追加しました",
			slog.String("voter_id", v.ID),
			slog.Int("added", added),
		)
	}
	return added, nil
}

// Save はスラッグを再計算して保存し、自分自身への友人リンクを取り除く。
func (s *Service) Save(ctx context.Context, v *model.Voter) error {
	v.Slug = Slugify(v.FirstName(), v.LastName(), v.ZipCode)
	v.UpdatedAt = s.now()
	if err := s.voters.Update(ctx, v); err != nil {
		return fmt.Errorf("有権者の保存に失敗しました: %w", err)
	}
	if err := s.voters.RemoveFriend(ctx, v.ID, v.ID); err != nil {
		return fmt.Errorf("自己リンクの削除に失敗しました: %w", err)
	}
	return nil
}

// Community は友人、続いて近隣の有権者を返す。
func (s *Service) Community(ctx context.Context, v *model.Voter) ([]*model.Voter, error) {
	rel, err := s.voters.LoadRelations(ctx, v.ID)
	if err != nil {
		return nil, err
	}
	friends, err := s.voters.ListByIDs(ctx, rel.Friends)
	if err != nil {
		return nil, err
	}
	neighbors, err := s.voters.ListByIDs(ctx, rel.Neighbors)
	if err != nil {
		return nil, err
	}
	return append(friends, neighbors...), nil
}

// AddStranger は近隣の候補を無視し、以後は近隣に追加しないようにする。
func (s *Service) AddStranger(ctx context.Context, v, other *model.Voter) error {
	if v.ID == other.ID {
		return nil
	}
	if err := s.voters.AddStranger(ctx, v.ID, other.ID); err != nil {
		return err
	}
	s.logger.Info("近隣の候補を除外しました",
		slog.String("voter_id", v.ID),
		slog.String("stranger_id", other.ID),
	)
	return nil
}

// ShareStatus は有権者の活動内容を各友人の通知下書きに記録する。
func (s *Service) ShareStatus(ctx context.Context, v *model.Voter) error {
	rel, err := s.voters.LoadRelations(ctx, v.ID)
	if err != nil {
		return err
	}
	for _, friendID := range rel.Friends {
		profile, err := s.profiles.FindByVoterID(ctx, friendID)
		if err != nil {
			return fmt.Errorf("友人のプロフィール取得に失敗しました: %w", err)
		}
		if profile == nil {
			continue
		}
		if err := s.alerter.Alert(ctx, profile, v); err != nil {
			return fmt.Errorf("活動の共有に失敗しました: %w", err)
		}
	}
	return nil
}

// IdentityInput は本人情報の更新内容。BirthDateは "YYYY-MM-DD" 形式。
type IdentityInput struct {
	FirstName string
	LastName  string
	BirthDate string
	ZipCode   string
}

var zipCodePattern = regexp.MustCompile(`^[0-9]{5}$`)

// UpdateIdentity は氏名・生年月日・郵便番号を更新して保存する。空欄の項目は未設定に戻す。
func (s *Service) UpdateIdentity(ctx context.Context, v *model.Voter, in IdentityInput) error {
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.ZipCode = strings.TrimSpace(in.ZipCode)

	if in.ZipCode != "" && !zipCodePattern.MatchString(in.ZipCode) {
		return model.NewInvalidVoterDataError("ZIP code must be 5 digits")
	}
	var birthDate *time.Time
	if in.BirthDate != "" {
		d, err := time.Parse("2006-01-02", in.BirthDate)
		if err != nil {
			return model.NewInvalidVoterDataError("birth date must be YYYY-MM-DD")
		}
		birthDate = &d
	}

	if v.User == nil {
		return model.NewUserNotFoundError()
	}
	v.User.FirstName = in.FirstName
	v.User.LastName = in.LastName
	v.User.UpdatedAt = s.now()
	if err := s.users.UpdateName(ctx, v.User); err != nil {
		return fmt.Errorf("氏名の更新に失敗しました: %w", err)
	}

	v.BirthDate = birthDate
	v.ZipCode = in.ZipCode
	return s.Save(ctx, v)
}

func (s *Service) findOrCreateUser(ctx context.Context, email string) (*model.User, bool, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, false, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user != nil {
		return user, false, nil
	}

	now := s.now()
	user = &model.User{
		ID:        uuid.New().String(),
		Email:     email,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, false, fmt.Errorf("ユーザーの作成に失敗しました: %w", err)
	}
	s.logger.Info("Created user",
		slog.String("user_id", user.ID),
		slog.String("email", email),
	)
	return user, true, nil
}
