// Package news はNews API（newsapi.org）からのトップヘッドライン取得を提供する。
package news

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/hitoshi/userhub/internal/metrics"
	"github.com/hitoshi/userhub/internal/model"
	"github.com/hitoshi/userhub/internal/security"
)

const (
	defaultBaseURL  = "https://newsapi.org/v2/top-headlines"
	defaultCountry  = "us"
	defaultPageSize = 10
	defaultCategory = "general"

	// maxResponseSize は読み込むレスポンスボディの上限バイト数。
	maxResponseSize = 1 << 20 // 1MB
)

// Article は表示用に整形されたニュース記事。
// テキスト項目はすべてサニタイズ済み。
type Article struct {
	Title       string
	Description string
	URL         string
	Source      string
	PublishedAt string
}

// ClientConfig はニュースクライアントの設定。
type ClientConfig struct {
	APIKey   string
	BaseURL  string // テスト用にオーバーライド可能
	Country  string
	PageSize int
	Timeout  time.Duration
}

// URLValidator は記事URLの安全性を検証する。
// security.OutboundGuardServiceがこれを満たす。
type URLValidator interface {
	ValidateURL(rawURL string) error
}

// Client はNews APIのクライアント。
type Client struct {
	config       ClientConfig
	httpClient   *http.Client
	sanitizer    security.TextSanitizerService
	urlValidator URLValidator
	metrics      metrics.MetricsCollector
}

// NewClient はClientを生成する。
// httpClientにはsecurity.OutboundGuardServiceが生成するSSRF防止付きクライアントを渡す。
// urlValidatorは上流が返した記事URLをリンクとして表示する前の検証に使う。
func NewClient(config ClientConfig, httpClient *http.Client, sanitizer security.TextSanitizerService, urlValidator URLValidator, collector metrics.MetricsCollector) *Client {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	if config.Country == "" {
		config.Country = defaultCountry
	}
	if config.PageSize <= 0 {
		config.PageSize = defaultPageSize
	}
	if collector == nil {
		collector = metrics.NoopCollector{}
	}
	return &Client{
		config:       config,
		httpClient:   httpClient,
		sanitizer:    sanitizer,
		urlValidator: urlValidator,
		metrics:      collector,
	}
}

// newsAPIResponse はNews APIのトップヘッドラインエンドポイントのレスポンス。
type newsAPIResponse struct {
	Status   string `json:"status"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	Articles []struct {
		Source struct {
			Name string `json:"name"`
		} `json:"source"`
		Title       string `json:"title"`
		Description string `json:"description"`
		URL         string `json:"url"`
		PublishedAt string `json:"publishedAt"`
	} `json:"articles"`
}

// TopHeadlines は指定カテゴリのトップヘッドラインを取得する。
// カテゴリが空の場合はgeneralを使う。APIキーはヘッダーで送り、URLには載せない。
// 上流の失敗はすべてUpstreamError（カテゴリupstream）に丸め、詳細はログにのみ残す。
func (c *Client) TopHeadlines(ctx context.Context, category string) ([]Article, error) {
	if category == "" {
		category = defaultCategory
	}

	params := url.Values{
		"country":  {c.config.Country},
		"category": {category},
		"pageSize": {fmt.Sprintf("%d", c.config.PageSize)},
	}
	reqURL := c.config.BaseURL + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create news request: %w", err)
	}
	req.Header.Set("X-Api-Key", c.config.APIKey)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.RecordNewsFetchLatency(time.Since(start))
	if err != nil {
		c.metrics.RecordNewsFetchFailure("request_error")
		slog.Error("news fetch failed",
			slog.String("category", category),
			slog.String("error", err.Error()),
		)
		return nil, model.NewUpstreamError()
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		c.metrics.RecordNewsFetchFailure("read_error")
		slog.Error("news response read failed", slog.String("error", err.Error()))
		return nil, model.NewUpstreamError()
	}

	if resp.StatusCode != http.StatusOK {
		c.metrics.RecordNewsFetchFailure(fmt.Sprintf("status_%d", resp.StatusCode))
		slog.Error("news fetch returned non-200",
			slog.String("category", category),
			slog.Int("status", resp.StatusCode),
		)
		return nil, model.NewUpstreamError()
	}

	var parsed newsAPIResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		c.metrics.RecordNewsFetchFailure("parse_error")
		slog.Error("news response parse failed", slog.String("error", err.Error()))
		return nil, model.NewUpstreamError()
	}
	if parsed.Status != "ok" {
		c.metrics.RecordNewsFetchFailure("api_error")
		slog.Error("news API returned error status",
			slog.String("code", parsed.Code),
			slog.String("message", parsed.Message),
		)
		return nil, model.NewUpstreamError()
	}

	articles := make([]Article, 0, len(parsed.Articles))
	for _, a := range parsed.Articles {
		// 上流が返すURLはそのままリンクになるため、安全でないものは記事ごと除外する
		if err := c.urlValidator.ValidateURL(a.URL); err != nil {
			c.metrics.RecordNewsFetchFailure("unsafe_article_url")
			slog.Warn("dropping article with unsafe URL",
				slog.String("url", a.URL),
				slog.String("error", err.Error()),
			)
			continue
		}
		articles = append(articles, Article{
			Title:       c.sanitizer.Sanitize(a.Title),
			Description: c.sanitizer.Sanitize(a.Description),
			URL:         a.URL,
			Source:      c.sanitizer.Sanitize(a.Source.Name),
			PublishedAt: a.PublishedAt,
		})
	}

	c.metrics.RecordNewsFetchSuccess()
	return articles, nil
}
