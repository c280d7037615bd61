package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"

	"github.com/opay-dz/opay/internal/logging"
	"github.com/opay-dz/opay/internal/metrics"
)

var logger = logging.NewPackageLogger("scraper")

// maxPage bounds the rendered page read from the scraping API.
const maxPage = 8 << 20

// Client calls the scraping API with JavaScript rendering enabled.
type Client struct {
	apiURL string
	apiKey string
	http   *http.Client
}

func NewClient(apiURL, apiKey string) *Client {
	return &Client{apiURL: apiURL, apiKey: apiKey, http: &http.Client{Timeout: 60 * time.Second}}
}

// Fetch returns the rendered HTML of target.
func (c *Client) Fetch(ctx context.Context, target string) (string, error) {
	if c.apiKey == "" {
		return "", errors.New("scraping API key is not configured")
	}
	q := url.Values{}
	q.Set("api_key", c.apiKey)
	q.Set("url", target)
	q.Set("render", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+"?"+q.Encode(), nil)
	if err != nil {
		return "", errors.Wrap(err, "build scrape request")
	}
	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.ScrapeLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		return "", errors.Wrap(err, "scraping API request")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("scraping API returned %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPage))
	if err != nil {
		return "", errors.Wrap(err, "read scraped page")
	}
	return string(body), nil
}

// Fetcher returns the HTML of a page.
type Fetcher interface {
	Fetch(ctx context.Context, target string) (string, error)
}

// Result is the edge function answer. Error is set alongside the placeholder.
type Result struct {
	Images []string `json:"images"`
	Cached bool     `json:"cached,omitempty"`
	Error  string   `json:"error,omitempty"`
}

// Service validates, caches and extracts. cache may be nil.
type Service struct {
	fetcher Fetcher
	cache   *Cache
	now     func() time.Time
}

func NewService(f Fetcher, cache *Cache) *Service {
	return &Service{fetcher: f, cache: cache, now: time.Now}
}

// Scrape returns the product images of raw. Invalid links fail with
// ErrInvalidURL or ErrNotAllowed; upstream failures yield the placeholder.
func (s *Service) Scrape(ctx context.Context, raw string) (Result, error) {
	u, err := ValidateURL(raw)
	if err != nil {
		return Result{}, err
	}
	key := u.String()
	if s.cache != nil {
		if images, ok := s.cache.Get(key, s.now()); ok {
			return Result{Images: images, Cached: true}, nil
		}
	}

	page, err := s.fetcher.Fetch(ctx, key)
	if err != nil {
		logger.Warn().Err(err).Str("url", key).Msg("scrape failed")
		return Result{Images: []string{Placeholder}, Error: "failed to fetch product page"}, nil
	}
	images := ExtractImages(page)
	if len(images) == 0 {
		return Result{Images: []string{Placeholder}, Error: "no product images found"}, nil
	}
	if s.cache != nil {
		if err := s.cache.Put(key, images, s.now()); err != nil {
			logger.Warn().Err(err).Msg("cache write failed")
		}
	}
	return Result{Images: images}, nil
}
