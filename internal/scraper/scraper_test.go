package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateURL(t *testing.T) {
	tests := []struct {
		raw string
		err error
	}{
		{"https://www.aliexpress.com/item/1005001.html", nil},
		{"https://aliexpress.com/item/1.html", nil},
		{"https://m.aliexpress.us/item/1.html", nil},
		{"https://fr.aliexpress.ru/item/1.html", nil},
		{"https://a.aliexpress.com/_mKQ1xyz", nil},
		{"https://aliexpress.com.evil.io/item/1.html", ErrNotAllowed},
		{"https://notaliexpress.com/item/1.html", ErrNotAllowed},
		{"https://amazon.com/dp/1", ErrNotAllowed},
		{"ftp://aliexpress.com/x", ErrInvalidURL},
		{"not a url", ErrInvalidURL},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			_, err := ValidateURL(tt.raw)
			if tt.err == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestNormalizeImage(t *testing.T) {
	assert.Equal(t, "https://ae01.alicdn.com/kf/Sabc.jpg", NormalizeImage("//ae01.alicdn.com/kf/Sabc.jpg_220x220.jpg"))
	assert.Equal(t, "https://ae01.alicdn.com/kf/Sabc.png", NormalizeImage("https://ae01.alicdn.com/kf/Sabc.png_640x640q90.jpg_.webp"))
	assert.Equal(t, "https://ae01.alicdn.com/kf/Sabc.jpg", NormalizeImage("https://ae01.alicdn.com/kf/Sabc_350x350.jpg"))
	assert.Equal(t, "https://ae01.alicdn.com/kf/S.jpg?a=1&b=2", NormalizeImage("https://ae01.alicdn.com/kf/S.jpg?a=1&amp;b=2"))
	assert.Equal(t, "https://ae01.alicdn.com/kf/S.jpg", NormalizeImage(`https:\/\/ae01.alicdn.com\/kf\/S.jpg`))
}

const productPage = `<html><head>
<meta property="og:image" content="//ae01.alicdn.com/kf/Smain.jpg_220x220.jpg">
</head><body>
<script>window.runParams = {"data":{"imageModule":{"imagePathList":["https://ae01.alicdn.com/kf/Smain.jpg","https://ae01.alicdn.com/kf/S2.jpg","//ae01.alicdn.com/kf/S3.png"]}}};</script>
<img src="//ae01.alicdn.com/kf/S4.webp">
<img src="https://ae01.alicdn.com/kf/S2.jpg_50x50.jpg">
</body></html>`

func TestExtractImages(t *testing.T) {
	got := ExtractImages(productPage)
	assert.Equal(t, []string{
		"https://ae01.alicdn.com/kf/Smain.jpg",
		"https://ae01.alicdn.com/kf/S2.jpg",
		"https://ae01.alicdn.com/kf/S3.png",
		"https://ae01.alicdn.com/kf/S4.webp",
	}, got)
}

func TestExtractImagesCapsAtTen(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 15; i++ {
		b.WriteString(`<img src="//ae01.alicdn.com/kf/S` + string(rune('a'+i)) + `.jpg">`)
	}
	assert.Len(t, ExtractImages(b.String()), MaxImages)
	assert.Empty(t, ExtractImages("<html>nothing here</html>"))
}

func fakeAPI(t *testing.T, body string, status int) (*httptest.Server, *int) {
	t.Helper()
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "true", r.URL.Query().Get("render"))
		assert.Equal(t, "key", r.URL.Query().Get("api_key"))
		assert.Contains(t, r.URL.Query().Get("url"), "aliexpress")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestScrapeCachesResults(t *testing.T) {
	srv, calls := fakeAPI(t, productPage, http.StatusOK)
	cache, err := OpenCache(filepath.Join(t.TempDir(), "cache.db"), time.Hour)
	require.NoError(t, err)
	defer cache.Close()

	svc := NewService(NewClient(srv.URL, "key"), cache)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	ctx := context.Background()

	first, err := svc.Scrape(ctx, "https://www.aliexpress.com/item/1.html")
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.Len(t, first.Images, 4)

	second, err := svc.Scrape(ctx, "https://www.aliexpress.com/item/1.html")
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Images, second.Images)
	assert.Equal(t, 1, *calls)

	now = now.Add(2 * time.Hour)
	third, err := svc.Scrape(ctx, "https://www.aliexpress.com/item/1.html")
	require.NoError(t, err)
	assert.False(t, third.Cached)
	assert.Equal(t, 2, *calls)

	removed, err := cache.Prune(now.Add(2 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}

func TestScrapeFailureReturnsPlaceholder(t *testing.T) {
	srv, _ := fakeAPI(t, "blocked", http.StatusForbidden)
	svc := NewService(NewClient(srv.URL, "key"), nil)

	res, err := svc.Scrape(context.Background(), "https://aliexpress.com/item/2.html")
	require.NoError(t, err)
	assert.Equal(t, []string{Placeholder}, res.Images)
	assert.NotEmpty(t, res.Error)

	srv2, _ := fakeAPI(t, "<html></html>", http.StatusOK)
	res, err = NewService(NewClient(srv2.URL, "key"), nil).Scrape(context.Background(), "https://aliexpress.com/item/2.html")
	require.NoError(t, err)
	assert.Equal(t, []string{Placeholder}, res.Images)
}

func TestHandlerRejectsForeignHosts(t *testing.T) {
	h := NewHandler(NewService(NewClient("http://unused", "key"), nil))
	e := echo.New()
	h.Register(e.Group(""))

	req := httptest.NewRequest(http.MethodPost, "/functions/scrape-aliexpress", strings.NewReader(`{"url":"https://temu.com/x"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	e := echo.New()
	e.Use(CORS([]string{"https://opay.dz"}))
	NewHandler(NewService(NewClient("http://unused", "key"), nil)).Register(e.Group(""))

	req := httptest.NewRequest(http.MethodOptions, "/functions/scrape-aliexpress", nil)
	req.Header.Set(echo.HeaderOrigin, "https://opay.dz")
	req.Header.Set(echo.HeaderAccessControlRequestMethod, http.MethodPost)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://opay.dz", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))

	req = httptest.NewRequest(http.MethodOptions, "/functions/scrape-aliexpress", nil)
	req.Header.Set(echo.HeaderOrigin, "https://evil.example")
	req.Header.Set(echo.HeaderAccessControlRequestMethod, http.MethodPost)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
}
