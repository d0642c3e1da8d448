// Package explore は選挙・提案・役職を検索する外部APIのプロキシを提供する。
// ページ単位のレスポンスはURLをキーにキャッシュし、クライアント側で部分一致の絞り込みを行う。
package explore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/hitoshi/ballotbuddies/internal/cache"
	"github.com/hitoshi/ballotbuddies/internal/metrics"
)

const (
	// DefaultBaseURL は探索APIのベースURL。
	DefaultBaseURL = "https://michiganelections.io/api"
	// DefaultCacheTTL はページキャッシュの有効期間。
	DefaultCacheTTL = time.Hour
	// DefaultFetchBudget はページングを打ち切るまでの経過時間。
	DefaultFetchBudget = 10 * time.Second

	requestTimeout = 30 * time.Second
	pageLimit      = 1000
)

// LinkValidator はページングリンクの宛先を検証するインターフェース。
type LinkValidator interface {
	ValidateNextLink(baseURL, next string) error
}

// Config は探索クライアントの設定。
type Config struct {
	BaseURL     string
	CacheTTL    time.Duration
	FetchBudget time.Duration
}

// Options は検索対象の選挙・選挙区の絞り込み。0は指定なし。
type Options struct {
	ElectionID int
	DistrictID int
}

// Item は検索結果の1件。APIのJSONをそのまま保持し、絞り込みに使う項目だけを取り出す。
type Item struct {
	Name         string
	Description  string
	ElectionName string
	DistrictName string
	Raw          json.RawMessage
}

// MarshalJSON はAPIから受け取ったJSONをそのまま返す。
func (i Item) MarshalJSON() ([]byte, error) {
	return i.Raw, nil
}

// Match は名前・説明・選挙名・選挙区名の連結に対して大文字小文字を区別せず部分一致するかを返す。
func (i Item) Match(q string) bool {
	text := strings.ToLower(i.Name + i.Description + i.ElectionName + i.DistrictName)
	return strings.Contains(text, strings.ToLower(q))
}

type named struct {
	Name string `json:"name"`
}

func parseItem(raw json.RawMessage) (Item, error) {
	var fields struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Election    *named `json:"election"`
		District    *named `json:"district"`
	}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Item{}, err
	}
	item := Item{
		Name:        fields.Name,
		Description: fields.Description,
		Raw:         raw,
	}
	if fields.Election != nil {
		item.ElectionName = fields.Election.Name
	}
	if fields.District != nil {
		item.DistrictName = fields.District.Name
	}
	return item, nil
}

type page struct {
	Count   int               `json:"count"`
	Next    *string           `json:"next"`
	Results []json.RawMessage `json:"results"`
}

// Client は探索APIのクライアント。
type Client struct {
	http    *resty.Client
	cache   cache.Cache
	links   LinkValidator
	metrics metrics.MetricsCollector
	config  Config
	logger  *slog.Logger
	now     func() time.Time
}

// NewClient はClientの新しいインスタンスを生成する。設定のゼロ値は既定値で補う。
func NewClient(
	httpClient *http.Client,
	c cache.Cache,
	links LinkValidator,
	collector metrics.MetricsCollector,
	cfg Config,
	logger *slog.Logger,
) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.FetchBudget <= 0 {
		cfg.FetchBudget = DefaultFetchBudget
	}

	rc := resty.NewWithClient(httpClient).
		SetTimeout(requestTimeout).
		SetHeader("User-Agent", "BallotBuddies/1.0").
		SetHeader("Accept", "application/json")

	return &Client{
		http:    rc,
		cache:   c,
		links:   links,
		metrics: collector,
		config:  cfg,
		logger:  logger,
		now:     time.Now,
	}
}

// GetElection は選挙の詳細を返す。
func (c *Client) GetElection(ctx context.Context, id int) (json.RawMessage, error) {
	var data json.RawMessage
	if err := c.call(ctx, fmt.Sprintf("%s/elections/%d/", c.config.BaseURL, id), &data); err != nil {
		return nil, err
	}
	return data, nil
}

// GetDistrict は選挙区の詳細を返す。
func (c *Client) GetDistrict(ctx context.Context, id int) (json.RawMessage, error) {
	var data json.RawMessage
	if err := c.call(ctx, fmt.Sprintf("%s/districts/%d/", c.config.BaseURL, id), &data); err != nil {
		return nil, err
	}
	return data, nil
}

// GetProposals は住民投票の提案を検索する。
func (c *Client) GetProposals(ctx context.Context, q string, limit int, opts Options) (int, []Item, error) {
	return c.search(ctx, "proposals", q, limit, opts)
}

// GetPositions は選挙で選ばれる役職を検索する。
func (c *Client) GetPositions(ctx context.Context, q string, limit int, opts Options) (int, []Item, error) {
	return c.search(ctx, "positions", q, limit, opts)
}

// search はnextリンクを辿って結果を集める。
// 一致件数がlimitに達するか、開始からFetchBudgetを超えた時点で打ち切り、集めた分を返す。
// totalはAPIが最後に報告した絞り込み前の件数。
func (c *Client) search(ctx context.Context, resource, q string, limit int, opts Options) (int, []Item, error) {
	url := fmt.Sprintf("%s/%s/?active_election=null", c.config.BaseURL, resource)
	if limit > 0 {
		url += fmt.Sprintf("&limit=%d", pageLimit)
	} else {
		url += "&limit=1"
	}
	if opts.ElectionID != 0 {
		url += fmt.Sprintf("&election_id=%d", opts.ElectionID)
	}
	if opts.DistrictID != 0 {
		url += fmt.Sprintf("&district_id=%d", opts.DistrictID)
	}

	c.logger.Info("探索APIを検索します",
		slog.String("resource", resource),
		slog.Int("limit", limit),
		slog.Int("election_id", opts.ElectionID),
		slog.Int("district_id", opts.DistrictID),
		slog.String("q", q),
	)

	total := 0
	items := []Item{}
	start := c.now()
	for url != "" {
		var p page
		if err := c.call(ctx, url, &p); err != nil {
			return total, items, err
		}
		total = p.Count

		for _, raw := range p.Results {
			item, err := parseItem(raw)
			if err != nil {
				return total, items, fmt.Errorf("failed to decode %s result: %w", resource, err)
			}
			if q == "" || item.Match(q) {
				items = append(items, item)
			}
		}

		if len(items) >= limit {
			c.logger.Info("件数に達したため取得を終了しました", slog.Int("items", len(items)))
			break
		}
		if elapsed := c.now().Sub(start); elapsed > c.config.FetchBudget {
			c.logger.Info("時間切れのため取得を終了しました",
				slog.Duration("elapsed", elapsed),
				slog.Int("items", len(items)),
			)
			break
		}

		url = ""
		if p.Next != nil && *p.Next != "" {
			if err := c.links.ValidateNextLink(c.config.BaseURL, *p.Next); err != nil {
				return total, items, fmt.Errorf("invalid next link: %w", err)
			}
			url = *p.Next
		}
	}

	return total, items, nil
}

// StatusError は外部APIが4xx・5xxを返したことを表す。
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
}

// NotFound は指定したリソースが存在しない応答（429以外の4xx）かを返す。
func (e *StatusError) NotFound() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500 && e.StatusCode != http.StatusTooManyRequests
}

// call はURLのJSONをキャッシュ経由で取得する。キャッシュの障害は取得を妨げない。
func (c *Client) call(ctx context.Context, url string, out any) error {
	body, ok, err := c.cache.Get(ctx, url)
	if err != nil {
		c.logger.Warn("キャッシュの読み込みに失敗しました",
			slog.String("url", url),
			slog.String("error", err.Error()),
		)
	}
	if ok {
		c.metrics.RecordExploreFetch(metrics.SourceCache)
		return json.Unmarshal(body, out)
	}

	c.logger.Info("Fetching", slog.String("url", url))
	start := c.now()
	resp, err := c.http.R().SetContext(ctx).Get(url)
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	c.metrics.RecordExploreFetch(metrics.SourceNetwork)
	c.metrics.RecordHTTPStatus(resp.StatusCode())
	c.metrics.RecordFetchLatency(c.now().Sub(start))

	if resp.IsError() {
		return &StatusError{StatusCode: resp.StatusCode(), URL: url}
	}
	body = resp.Body()
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", url, err)
	}

	if err := c.cache.Set(ctx, url, body, c.config.CacheTTL); err != nil {
		c.logger.Warn("キャッシュの書き込みに失敗しました",
			slog.String("url", url),
			slog.String("error", err.Error()),
		)
	}
	return nil
}
