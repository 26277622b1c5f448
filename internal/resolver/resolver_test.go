package resolver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fullLink = "https://www.tiktok.com/@creator/video/7123456789"

// rewriteTransport sends every request to the test server while keeping the
// original URL visible to the client and its redirect policy.
type rewriteTransport struct {
	target *url.URL
}

func (t rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.URL.Scheme = t.target.Scheme
	r.URL.Host = t.target.Host
	r.Host = t.target.Host
	return http.DefaultTransport.RoundTrip(r)
}

type failingTransport struct{}

func (failingTransport) RoundTrip(*http.Request) (*http.Response, error) {
	return nil, errors.New("dial tcp: network unreachable")
}

func newTestResolver(t *testing.T, handler http.Handler, opts ...Option) *Resolver {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	target, err := url.Parse(srv.URL)
	require.NoError(t, err)
	client := &http.Client{Transport: rewriteTransport{target: target}}
	return New(append([]Option{WithHTTPClient(client)}, opts...)...)
}

func shortLinkServer() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ZMabc123/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", fullLink+"?is_from_webapp=1")
		w.WriteHeader(http.StatusMovedPermanently)
	})
	mux.HandleFunc("/t/ZTdef456/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", "https://www.tiktok.com/redirect/step")
		w.WriteHeader(http.StatusFound)
	})
	mux.HandleFunc("/redirect/step", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", fullLink)
		w.WriteHeader(http.StatusFound)
	})
	mux.HandleFunc("/ZMlogin/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", "https://www.tiktok.com/login")
		w.WriteHeader(http.StatusFound)
	})
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/ZMgetonly/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if r.Header.Get("User-Agent") != DefaultUserAgent {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Header().Set("Location", fullLink)
		w.WriteHeader(http.StatusFound)
	})
	mux.HandleFunc("/ZMslow/", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	return mux
}

func TestParse_FullLink(t *testing.T) {
	ref, ok := Parse(fullLink)
	require.True(t, ok)
	assert.Equal(t, "7123456789", ref.CanonicalID)
	assert.True(t, ref.Resolved)
	assert.Equal(t, fullLink, ref.SourceURL)
	assert.Equal(t, "creator", ref.Username)
}

func TestParse_FullLinkWithoutScheme(t *testing.T) {
	ref, ok := Parse("tiktok.com/@some.one/video/998877?lang=en")
	require.True(t, ok)
	assert.Equal(t, "998877", ref.CanonicalID)
	assert.Equal(t, "https://tiktok.com/@some.one/video/998877", ref.SourceURL)
	assert.Equal(t, "some.one", ref.Username)
}

func TestParse_MobileLink(t *testing.T) {
	ref, ok := Parse("https://m.tiktok.com/v/share.html?u_code=x1&video_id=7123456789&lang=en")
	require.True(t, ok)
	assert.Equal(t, "7123456789", ref.CanonicalID)
	assert.True(t, ref.Resolved)
	assert.Equal(t, "https://m.tiktok.com/v/share.html?u_code=x1&video_id=7123456789&lang=en", ref.SourceURL)
}

func TestParse_ShortLinkIsNotParsed(t *testing.T) {
	_, ok := Parse("https://vm.tiktok.com/ZMabc123/")
	assert.False(t, ok)
}

func TestResolve_NotTikTok(t *testing.T) {
	r := New(WithHTTPClient(&http.Client{Transport: failingTransport{}}))
	for _, text := range []string{"", "hello there", "https://youtube.com/watch?v=abc", "https://www.tiktok.com/@creator"} {
		_, err := r.Resolve(context.Background(), text)
		assert.ErrorIs(t, err, ErrNotTikTokURL, text)
	}
}

func TestResolve_VMShortLinkFollowsRedirect(t *testing.T) {
	r := newTestResolver(t, shortLinkServer())
	ref, err := r.Resolve(context.Background(), "https://vm.tiktok.com/ZMabc123/")
	require.NoError(t, err)
	assert.Equal(t, "7123456789", ref.CanonicalID)
	assert.True(t, ref.Resolved)
	assert.Equal(t, fullLink+"?is_from_webapp=1", ref.SourceURL)
	assert.Equal(t, "creator", ref.Username)
}

func TestResolve_TShortLinkFollowsChain(t *testing.T) {
	r := newTestResolver(t, shortLinkServer())
	ref, err := r.Resolve(context.Background(), "tiktok.com/t/ZTdef456/")
	require.NoError(t, err)
	assert.Equal(t, "7123456789", ref.CanonicalID)
	assert.True(t, ref.Resolved)
}

func TestResolve_HeadNotAllowedFallsBackToGet(t *testing.T) {
	r := newTestResolver(t, shortLinkServer())
	ref, err := r.Resolve(context.Background(), "https://vm.tiktok.com/ZMgetonly/")
	require.NoError(t, err)
	assert.Equal(t, "7123456789", ref.CanonicalID)
	assert.True(t, ref.Resolved)
}

func TestResolve_UnparseableLocationDegrades(t *testing.T) {
	r := newTestResolver(t, shortLinkServer())
	ref, err := r.Resolve(context.Background(), "https://vm.tiktok.com/ZMlogin/")
	require.NoError(t, err)
	assert.Equal(t, "short_ZMlogin", ref.CanonicalID)
	assert.False(t, ref.Resolved)
	assert.Equal(t, "https://vm.tiktok.com/ZMlogin/", ref.SourceURL)
}

func TestResolve_NetworkFailureDegrades(t *testing.T) {
	r := New(WithHTTPClient(&http.Client{Transport: failingTransport{}}))
	ref, err := r.Resolve(context.Background(), "vm.tiktok.com/ZMdead")
	require.NoError(t, err)
	assert.Equal(t, "short_ZMdead", ref.CanonicalID)
	assert.False(t, ref.Resolved)
	assert.Equal(t, "https://vm.tiktok.com/ZMdead", ref.SourceURL)
}

func TestResolve_TimeoutDegrades(t *testing.T) {
	r := newTestResolver(t, shortLinkServer(), WithTimeout(50*time.Millisecond))
	start := time.Now()
	ref, err := r.Resolve(context.Background(), "https://vm.tiktok.com/ZMslow/")
	require.NoError(t, err)
	assert.Equal(t, "short_ZMslow", ref.CanonicalID)
	assert.False(t, ref.Resolved)
	assert.Less(t, time.Since(start), time.Second)
}

func TestResolve_AllDialectsConverge(t *testing.T) {
	r := newTestResolver(t, shortLinkServer())
	links := []string{
		fullLink,
		"tiktok.com/@creator/video/7123456789",
		"https://m.tiktok.com/v/share.html?video_id=7123456789",
		"https://www.tiktok.com/share/item?foo=1&video_id=7123456789",
		"https://vm.tiktok.com/ZMabc123/",
		"https://www.tiktok.com/t/ZTdef456/",
	}
	for _, link := range links {
		ref, err := r.Resolve(context.Background(), link)
		require.NoError(t, err, link)
		assert.Equal(t, "7123456789", ref.CanonicalID, link)
		assert.True(t, ref.Resolved, link)
	}
}
