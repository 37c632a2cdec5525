package remote

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"rere-player/internal/database"
)

type memTokens struct {
	mu   sync.Mutex
	data map[string]string
}

func (m *memTokens) GetMetadata(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", sql.ErrNoRows
	}
	return v, nil
}

func (m *memTokens) SetMetadata(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

type fakeBaidu struct {
	*httptest.Server
	mu         sync.Mutex
	grants     []string
	lastRange  string
	lastAgent  string
	listErrno  int
	refreshTok string
}

func newFakeBaidu(t *testing.T) *fakeBaidu {
	t.Helper()
	f := &fakeBaidu{refreshTok: "RT1"}
	mux := http.NewServeMux()

	mux.HandleFunc("/oauth/2.0/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if r.Form.Get("client_id") != "id" || r.Form.Get("client_secret") != "secret" {
			http.Error(w, `{"error":"invalid_client"}`, http.StatusUnauthorized)
			return
		}
		grant := r.Form.Get("grant_type")
		f.mu.Lock()
		f.grants = append(f.grants, grant)
		f.mu.Unlock()

		access := "AT-code"
		switch grant {
		case "authorization_code":
			if r.Form.Get("code") != "good" {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusBadRequest)
				_, _ = io.WriteString(w, `{"error":"invalid_grant"}`)
				return
			}
		case "refresh_token":
			access = "AT-refreshed-" + r.Form.Get("refresh_token")
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  access,
			"refresh_token": f.refreshTok,
			"expires_in":    3600,
		})
	})

	mux.HandleFunc("/rest/2.0/xpan/file", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.lastAgent = r.Header.Get("User-Agent")
		errno := f.listErrno
		f.mu.Unlock()
		if errno != 0 {
			_ = json.NewEncoder(w).Encode(map[string]any{"errno": errno, "errmsg": "denied"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"errno": 0,
			"list": []map[string]any{
				{"fs_id": 1, "path": r.URL.Query().Get("dir") + "/a.MP4", "server_filename": "a.MP4", "size": 100, "isdir": 0},
				{"fs_id": 2, "path": "/v/notes.txt", "server_filename": "notes.txt", "size": 5, "isdir": 0},
				{"fs_id": 3, "path": "/v/sub.mp4", "server_filename": "sub.mp4", "size": 0, "isdir": 1},
				{"fs_id": 4, "path": "/v/b.m3u8", "server_filename": "b.m3u8", "size": 7, "isdir": 0},
			},
		})
	})

	mux.HandleFunc("/rest/2.0/xpan/multimedia", func(w http.ResponseWriter, r *http.Request) {
		fsids := r.URL.Query().Get("fsids")
		if fsids == "[404]" {
			_ = json.NewEncoder(w).Encode(map[string]any{"errno": 0, "list": []any{}})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"errno": 0,
			"list": []map[string]any{
				{"fs_id": 1, "filename": "a.mp4", "dlink": f.URL + "/file/download?fid=1"},
			},
		})
	})

	mux.HandleFunc("/file/download", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.lastRange = r.Header.Get("Range")
		f.lastAgent = r.Header.Get("User-Agent")
		f.mu.Unlock()
		if r.URL.Query().Get("access_token") == "" {
			http.Error(w, "no token", http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "video/mp4")
		if r.Header.Get("Range") != "" {
			w.Header().Set("Content-Range", "bytes 0-3/10")
			w.WriteHeader(http.StatusPartialContent)
			_, _ = io.WriteString(w, "0123")
			return
		}
		_, _ = io.WriteString(w, "0123456789")
	})

	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

func newTestClient(f *fakeBaidu, tokens TokenStore) *Client {
	return New(Config{
		ClientID:     "id",
		ClientSecret: "secret",
		RedirectURL:  "http://localhost:8080/api/baidu/auth/callback",
		AuthURL:      f.URL + "/oauth/2.0/authorize",
		TokenURL:     f.URL + "/oauth/2.0/token",
		APIBase:      f.URL,
		HTTPClient:   f.Client(),
	}, tokens)
}

func TestStartLogin(t *testing.T) {
	t.Parallel()

	f := newFakeBaidu(t)
	c := newTestClient(f, nil)

	raw, err := c.StartLogin("xyz")
	if err != nil {
		t.Fatal(err)
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	q := u.Query()
	want := map[string]string{
		"response_type": "code",
		"client_id":     "id",
		"redirect_uri":  "http://localhost:8080/api/baidu/auth/callback",
		"scope":         "basic,netdisk",
		"state":         "xyz",
	}
	for k, v := range want {
		if q.Get(k) != v {
			t.Errorf("Expected %s=%q, got %q", k, v, q.Get(k))
		}
	}

	unconfigured := New(Config{}, nil)
	if _, err := unconfigured.StartLogin("x"); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Expected ErrNotConfigured, got %v", err)
	}
}

func TestExchangeCodeStoresToken(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFakeBaidu(t)
	store := &memTokens{data: map[string]string{}}
	c := newTestClient(f, store)

	if c.LoggedIn(ctx) {
		t.Error("Expected not logged in before exchange")
	}
	if _, err := c.ExchangeCode(ctx, "bad"); err == nil {
		t.Error("Expected an error for a rejected code")
	}

	tok, err := c.ExchangeCode(ctx, "good")
	if err != nil {
		t.Fatalf("ExchangeCode failed: %v", err)
	}
	if tok.AccessToken != "AT-code" || tok.RefreshToken != "RT1" || tok.ExpiresIn <= 0 {
		t.Errorf("Unexpected tokens %+v", tok)
	}
	if !strings.Contains(store.data[database.MetaRemoteToken], "AT-code") {
		t.Error("Token was not persisted")
	}

	// A fresh client picks the token up from the store.
	again := newTestClient(f, store)
	at, err := again.AccessToken(ctx)
	if err != nil || at != "AT-code" {
		t.Errorf("AccessToken = %q, %v", at, err)
	}
}

func TestRefresh(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFakeBaidu(t)
	c := newTestClient(f, &memTokens{data: map[string]string{}})

	if _, err := c.Refresh(ctx, ""); !errors.Is(err, ErrNotLoggedIn) {
		t.Errorf("Expected ErrNotLoggedIn without a stored token, got %v", err)
	}

	tok, err := c.Refresh(ctx, "RT0")
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if tok.AccessToken != "AT-refreshed-RT0" {
		t.Errorf("Unexpected access token %q", tok.AccessToken)
	}
}

func TestLogout(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFakeBaidu(t)
	store := &memTokens{data: map[string]string{}}
	c := newTestClient(f, store)
	if _, err := c.ExchangeCode(ctx, "good"); err != nil {
		t.Fatal(err)
	}
	if err := c.Logout(ctx); err != nil {
		t.Fatal(err)
	}
	if c.LoggedIn(ctx) {
		t.Error("Expected logged out")
	}
	if _, err := c.AccessToken(ctx); !errors.Is(err, ErrNotLoggedIn) {
		t.Errorf("Expected ErrNotLoggedIn, got %v", err)
	}
}

func TestListVideos(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFakeBaidu(t)
	c := newTestClient(f, nil)

	files, err := c.ListVideos(ctx, "/v", "AT")
	if err != nil {
		t.Fatalf("ListVideos failed: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("Expected 2 videos, got %+v", files)
	}
	if files[0].ID != 1 || files[0].Name != "a.MP4" || files[0].Path != "/v/a.MP4" {
		t.Errorf("Unexpected first file %+v", files[0])
	}
	if files[1].Name != "b.m3u8" {
		t.Errorf("Unexpected second file %+v", files[1])
	}
	if f.lastAgent != UserAgent {
		t.Errorf("Expected User-Agent %q, got %q", UserAgent, f.lastAgent)
	}

	f.mu.Lock()
	f.listErrno = -6
	f.mu.Unlock()
	_, err = c.ListVideos(ctx, "/v", "AT")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Errno != -6 {
		t.Errorf("Expected APIError -6, got %v", err)
	}

	if _, err := c.ListVideos(ctx, "/", ""); !errors.Is(err, ErrNotLoggedIn) {
		t.Errorf("Expected ErrNotLoggedIn without any token, got %v", err)
	}
}

func TestStream(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFakeBaidu(t)
	c := newTestClient(f, nil)

	link, err := c.StreamURL(ctx, 1, "AT")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(link, "fid=1&access_token=AT") {
		t.Errorf("Expected token appended to link, got %s", link)
	}

	resp, err := c.Stream(ctx, 1, "AT", "bytes=0-3")
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusPartialContent || string(body) != "0123" {
		t.Errorf("Unexpected response %d %q", resp.StatusCode, body)
	}
	f.mu.Lock()
	gotRange, gotAgent := f.lastRange, f.lastAgent
	f.mu.Unlock()
	if gotRange != "bytes=0-3" || gotAgent != UserAgent {
		t.Errorf("Expected forwarded range and agent, got %q %q", gotRange, gotAgent)
	}

	if _, err := c.Stream(ctx, 404, "AT", ""); !errors.Is(err, ErrNoDownloadLink) {
		t.Errorf("Expected ErrNoDownloadLink, got %v", err)
	}
}
