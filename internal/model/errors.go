package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, voter, explore, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidEmail       = "INVALID_EMAIL"
	ErrCodeInvalidLoginToken  = "INVALID_LOGIN_TOKEN"
	ErrCodeInvalidVoterData   = "INVALID_VOTER_DATA"
	ErrCodeVoterNotFound      = "VOTER_NOT_FOUND"
	ErrCodeUserNotFound       = "USER_NOT_FOUND"
	ErrCodeProfileNotFound    = "PROFILE_NOT_FOUND"
	ErrCodeInvalidAlertConfig = "INVALID_ALERT_CONFIG"
	ErrCodeInvalidQuery       = "INVALID_QUERY"
	ErrCodeExploreUnavailable = "EXPLORE_UNAVAILABLE"
	ErrCodeExploreNotFound    = "EXPLORE_NOT_FOUND"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeCSRFValidation     = "CSRF_VALIDATION_FAILED"
	ErrCodeRateLimited        = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal           = "INTERNAL_ERROR"
)

// NewInvalidEmailError は無効なメールアドレスエラーを生成する。
func NewInvalidEmailError(email string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidEmail,
		Message:  fmt.Sprintf("Invalid email address: %q", email),
		Category: "validation",
		Action:   "Enter a valid email address such as name@example.com.",
	}
}

// NewInvalidLoginTokenError はログインリンクが無効・期限切れの場合のエラーを生成する。
func NewInvalidLoginTokenError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidLoginToken,
		Message:  "This login link is invalid or has expired.",
		Category: "auth",
		Action:   "Request a new login link from the sign-in page.",
	}
}

// NewInvalidVoterDataError は本人情報の入力値が不正な場合のエラーを生成する。
func NewInvalidVoterDataError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidVoterData,
		Message:  fmt.Sprintf("Invalid voter information: %s", reason),
		Category: "validation",
		Action:   "Check your name, birth date (YYYY-MM-DD) and 5-digit ZIP code.",
	}
}

// NewVoterNotFoundError は有権者が見つからない場合のエラーを生成する。
func NewVoterNotFoundError(slug string) *APIError {
	return &APIError{
		Code:     ErrCodeVoterNotFound,
		Message:  fmt.Sprintf("Voter not found: %s", slug),
		Category: "voter",
		Action:   "Check the invite link and try again.",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "User not found.",
		Category: "auth",
		Action:   "Please log in again.",
	}
}

// NewProfileNotFoundError はプロフィールが見つからない場合のエラーを生成する。
func NewProfileNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeProfileNotFound,
		Message:  "Profile not found.",
		Category: "voter",
		Action:   "Finish setting up your voter profile first.",
	}
}

// NewInvalidAlertConfigError は通知設定の組み合わせが不正な場合のエラーを生成する。
func NewInvalidAlertConfigError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidAlertConfig,
		Message:  "always_alert and never_alert cannot both be enabled.",
		Category: "validation",
		Action:   "Choose at most one reminder override.",
	}
}

// NewInvalidQueryError は検索パラメータが不正な場合のエラーを生成する。
func NewInvalidQueryError(param string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidQuery,
		Message:  fmt.Sprintf("Invalid query parameter: %s", param),
		Category: "validation",
		Action:   "Use non-negative integers for limit, election_id and district_id.",
	}
}

// NewExploreUnavailableError は外部の選挙APIが利用できない場合のエラーを生成する。
func NewExploreUnavailableError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeExploreUnavailable,
		Message:  fmt.Sprintf("The elections API is unavailable: %s", reason),
		Category: "explore",
		Action:   "Please wait a moment and try again.",
	}
}

// NewExploreNotFoundError は選挙APIに指定IDのリソースが存在しない場合のエラーを生成する。
func NewExploreNotFoundError(resource string, id int) *APIError {
	return &APIError{
		Code:     ErrCodeExploreNotFound,
		Message:  fmt.Sprintf("No %s found with id %d.", resource, id),
		Category: "explore",
		Action:   "Check the id and try again.",
	}
}

// NewUnauthorizedError は未ログイン・セッション切れの場合のエラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "You need to log in to continue.",
		Category: "auth",
		Action:   "Request a login link with your email address.",
	}
}

// NewCSRFValidationError はCSRFトークンの検証に失敗した場合のエラーを生成する。
func NewCSRFValidationError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRFValidation,
		Message:  "CSRF token validation failed.",
		Category: "auth",
		Action:   "Reload the page and try again.",
	}
}

// NewRateLimitedError はレート制限を超えた場合のエラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "Too many requests. Please try again later.",
		Category: "system",
		Action:   "Please wait and retry after the time in the Retry-After header.",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログのみに記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "Something went wrong on our end.",
		Category: "system",
		Action:   "Please wait a moment and try again.",
	}
}
