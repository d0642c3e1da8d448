package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/ballotbuddies/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// StatusForAPIError はエラーコードに対応するHTTPステータスを返す。未知のコードは500。
func StatusForAPIError(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeInvalidEmail,
		model.ErrCodeInvalidVoterData,
		model.ErrCodeInvalidAlertConfig,
		model.ErrCodeInvalidQuery:
		return http.StatusBadRequest
	case model.ErrCodeInvalidLoginToken, model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case model.ErrCodeCSRFValidation:
		return http.StatusForbidden
	case model.ErrCodeVoterNotFound, model.ErrCodeUserNotFound, model.ErrCodeProfileNotFound,
		model.ErrCodeExploreNotFound:
		return http.StatusNotFound
	case model.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case model.ErrCodeExploreUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// WriteAPIError はエラーコードから決まるステータスでエラーを書き込む。
func WriteAPIError(w http.ResponseWriter, apiErr *model.APIError) {
	WriteErrorResponse(w, StatusForAPIError(apiErr), apiErr)
}

// WriteErrorResponse は統一フォーマットでエラーを書き込む。
// 有権者情報を含むレスポンスと同じ経路を通るため、エラーもキャッシュさせない。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// WriteInternalServerError は500を返す。詳細はログにのみ残す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteAPIError(w, model.NewInternalError())
}

// WriteUnauthorized は401を返す。
func WriteUnauthorized(w http.ResponseWriter) {
	WriteAPIError(w, model.NewUnauthorizedError())
}
