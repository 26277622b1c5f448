// Package resolver turns user-supplied TikTok links into canonical video ids.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/creatorpay/tracker/internal/models"
)

// ErrNotTikTokURL is returned when the text matches none of the known link dialects.
var ErrNotTikTokURL = errors.New("not a tiktok url")

const (
	// DefaultTimeout bounds short-link resolution, redirects included.
	DefaultTimeout = 10 * time.Second
	// DefaultUserAgent is sent on short-link requests; the short-link host serves bots a consent page.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

var (
	fullPattern     = regexp.MustCompile(`(?i)(?:https?://)?(?:[\w-]+\.)?tiktok\.com/(?:@[\w.-]+/)?video/(\d+)`)
	mobilePattern   = regexp.MustCompile(`(?i)(?:https?://)?(?:[\w-]+\.)?tiktok\.com/[^\s]*?[?&]video_id=(\d+)`)
	vmPattern       = regexp.MustCompile(`(?i)(?:https?://)?(?:vm|vt)\.tiktok\.com/([\w-]+)/?`)
	tPattern        = regexp.MustCompile(`(?i)(?:https?://)?(?:www\.)?tiktok\.com/t/([\w-]+)/?`)
	usernamePattern = regexp.MustCompile(`(?i)tiktok\.com/@([\w.-]+)`)
)

// Resolver extracts canonical video ids, following short links over HTTP when needed.
type Resolver struct {
	client    *http.Client
	timeout   time.Duration
	userAgent string
	logger    *zap.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithHTTPClient sets the HTTP client used for short links.
func WithHTTPClient(client *http.Client) Option {
	return func(r *Resolver) {
		if client != nil {
			r.client = client
		}
	}
}

// WithTimeout sets the short-link resolution timeout.
func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(r *Resolver) {
		if ua != "" {
			r.userAgent = ua
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New creates a Resolver.
func New(opts ...Option) *Resolver {
	r := &Resolver{
		client:    http.DefaultClient,
		timeout:   DefaultTimeout,
		userAgent: DefaultUserAgent,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Parse extracts an id from full and mobile links without any network access.
func Parse(text string) (models.VideoReference, bool) {
	text = strings.TrimSpace(text)
	if m := fullPattern.FindStringSubmatchIndex(text); m != nil {
		return models.VideoReference{
			CanonicalID: text[m[2]:m[3]],
			SourceURL:   withScheme(text[m[0]:m[1]]),
			Resolved:    true,
			Username:    Username(text),
		}, true
	}
	if m := mobilePattern.FindStringSubmatchIndex(text); m != nil {
		end := m[1]
		for end < len(text) && !isSpace(text[end]) {
			end++
		}
		return models.VideoReference{
			CanonicalID: text[m[2]:m[3]],
			SourceURL:   withScheme(text[m[0]:end]),
			Resolved:    true,
			Username:    Username(text),
		}, true
	}
	return models.VideoReference{}, false
}

// Username returns the @handle embedded in a link, if any.
func Username(text string) string {
	if m := usernamePattern.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return ""
}

// Resolve returns the canonical reference for text. Short links are followed;
// when that fails the shortcode becomes the id with Resolved=false.
func (r *Resolver) Resolve(ctx context.Context, text string) (models.VideoReference, error) {
	text = strings.TrimSpace(text)
	if ref, ok := Parse(text); ok {
		return ref, nil
	}
	code, shortURL, ok := matchShort(text)
	if !ok {
		return models.VideoReference{}, ErrNotTikTokURL
	}

	location, err := r.follow(ctx, shortURL)
	if err != nil {
		r.logger.Warn("short link resolution failed", zap.String("url", shortURL), zap.Error(err))
	} else if ref, ok := Parse(location); ok {
		ref.SourceURL = location
		return ref, nil
	} else {
		r.logger.Info("short link resolved to unparseable location", zap.String("url", shortURL), zap.String("location", location))
	}
	return models.VideoReference{
		CanonicalID: models.ShortIDPrefix + code,
		SourceURL:   shortURL,
		Resolved:    false,
	}, nil
}

// follow walks the redirect chain of a short link and returns the first location that
// carries a video id, or the final URL when none does.
func (r *Resolver) follow(ctx context.Context, shortURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	location := shortURL
	client := *r.client
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		location = req.URL.String()
		if _, ok := Parse(location); ok {
			return http.ErrUseLastResponse
		}
		if len(via) >= 10 {
			return errors.New("stopped after 10 redirects")
		}
		return nil
	}

	status, err := r.do(ctx, &client, http.MethodHead, shortURL)
	if err == nil && (status == http.StatusMethodNotAllowed || status == http.StatusForbidden) {
		location = shortURL
		status, err = r.do(ctx, &client, http.MethodGet, shortURL)
	}
	if err != nil {
		return "", err
	}
	if status >= http.StatusBadRequest {
		if _, ok := Parse(location); !ok {
			return "", fmt.Errorf("short link status: %d", status)
		}
	}
	return location, nil
}

func (r *Resolver) do(ctx context.Context, client *http.Client, method, url string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", r.userAgent)
	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request: %w", err)
	}
	_ = resp.Body.Close()
	return resp.StatusCode, nil
}

func matchShort(text string) (code, shortURL string, ok bool) {
	for _, p := range []*regexp.Regexp{vmPattern, tPattern} {
		if m := p.FindStringSubmatchIndex(text); m != nil {
			return text[m[2]:m[3]], withScheme(text[m[0]:m[1]]), true
		}
	}
	return "", "", false
}

func withScheme(u string) string {
	lower := strings.ToLower(u)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return u
	}
	return "https://" + u
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
