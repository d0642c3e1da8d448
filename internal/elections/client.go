// Package elections は選挙ステータスAPI（有権者登録・不在者投票の照会）のクライアントを提供する。
package elections

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	// DefaultEndpoint は選挙ステータスAPIのエンドポイント。
	DefaultEndpoint = "https://michiganelections.io/api/registrations/"
	// defaultTimeout は1リクエストあたりのタイムアウト。
	defaultTimeout = 30 * time.Second
)

// Identity はステータス照会に使う本人情報。BirthDateがゼロ値の場合は空で送る。
type Identity struct {
	FirstName string
	LastName  string
	BirthDate time.Time
	ZipCode   string
}

func (id Identity) birthDate() string {
	if id.BirthDate.IsZero() {
		return ""
	}
	return id.BirthDate.Format("2006-01-02")
}

// Result はステータスAPIの応答。
// 200の場合はBodyにステータスJSONが入り、202の場合はMessageに理由が入る。
type Result struct {
	StatusCode int
	Body       json.RawMessage
	Message    string
}

// OK は照会が成功（200）したかを返す。
func (r *Result) OK() bool {
	return r.StatusCode == http.StatusOK
}

// Pending は照会が受理されたが結果が未確定（202）かを返す。
func (r *Result) Pending() bool {
	return r.StatusCode == http.StatusAccepted
}

// Client は選挙ステータスAPIのクライアント。
type Client struct {
	http     *resty.Client
	logger   *slog.Logger
	endpoint string // テスト用にエンドポイントを差し替え可能
}

// NewClient はClientの新しいインスタンスを生成する。endpointが空の場合はDefaultEndpointを使用する。
func NewClient(httpClient *http.Client, endpoint string, logger *slog.Logger) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	rc := resty.NewWithClient(httpClient).
		SetTimeout(defaultTimeout).
		SetHeader("User-Agent", "BallotBuddies/1.0").
		SetHeader("Accept", "application/json")
	return &Client{
		http:     rc,
		logger:   logger,
		endpoint: endpoint,
	}
}

// Lookup は本人情報で有権者ステータスを照会する。再試行は行わず、失敗時の扱いは呼び出し側が決める。
// 200・202以外のHTTPステータスはエラーではなくResult.StatusCodeで返す。
// 通信エラーやJSONの不正はエラーを返す。
func (c *Client) Lookup(ctx context.Context, id Identity) (*Result, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"first_name": id.FirstName,
			"last_name":  id.LastName,
			"birth_date": id.birthDate(),
			"zip_code":   id.ZipCode,
		}).
		Get(c.endpoint)
	if err != nil {
		c.logger.Error("選挙ステータスAPIの呼び出しに失敗しました",
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("選挙ステータスAPIの呼び出しに失敗しました: %w", err)
	}

	result := &Result{StatusCode: resp.StatusCode()}
	c.logger.Info("選挙ステータスAPIの応答",
		slog.String("method", http.MethodGet),
		slog.String("url", c.endpoint),
		slog.Int("http_status", result.StatusCode),
	)

	switch result.StatusCode {
	case http.StatusOK:
		body := resp.Body()
		if !json.Valid(body) {
			return nil, fmt.Errorf("レスポンスJSONのパースに失敗しました")
		}
		result.Body = json.RawMessage(body)
	case http.StatusAccepted:
		var payload struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(resp.Body(), &payload); err != nil {
			return nil, fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
		}
		result.Message = payload.Message
		c.logger.Warn("選挙ステータスAPIが保留応答を返しました",
			slog.String("message", payload.Message),
		)
	default:
		c.logger.Error("選挙ステータスAPIがエラーステータスを返しました",
			slog.Int("http_status", result.StatusCode),
		)
	}

	return result, nil
}
