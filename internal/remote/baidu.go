package remote

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"rere-player/internal/database"
	"rere-player/internal/logging"
	"rere-player/internal/metrics"
)

// Service endpoints.
const (
	DefaultAuthURL  = "https://openapi.baidu.com/oauth/2.0/authorize"
	DefaultTokenURL = "https://openapi.baidu.com/oauth/2.0/token"
	DefaultAPIBase  = "https://pan.baidu.com"

	// UserAgent is required by the download links.
	UserAgent = "pan.baidu.com"
)

var (
	// ErrNotConfigured means no client id/secret were provided.
	ErrNotConfigured = errors.New("cloud storage is not configured")
	// ErrNotLoggedIn means there is no stored token to use.
	ErrNotLoggedIn = errors.New("not logged in to cloud storage")
	// ErrNoDownloadLink means the service returned no link for a file.
	ErrNoDownloadLink = errors.New("no download link for file")
)

// VideoExtensions are the files ListVideos returns.
var VideoExtensions = map[string]bool{
	".mp4":  true,
	".mkv":  true,
	".webm": true,
	".mov":  true,
	".avi":  true,
	".flv":  true,
	".wmv":  true,
	".m4v":  true,
	".m3u8": true,
}

// APIError is a non-zero errno answer.
type APIError struct {
	Op     string
	Errno  int
	Errmsg string
}

func (e *APIError) Error() string {
	if e.Errmsg == "" {
		return fmt.Sprintf("%s: error %d", e.Op, e.Errno)
	}
	return fmt.Sprintf("%s: error %d: %s", e.Op, e.Errno, e.Errmsg)
}

// Config configures a Client. The URL fields default to the public service.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AuthURL      string
	TokenURL     string
	APIBase      string
	HTTPClient   *http.Client
}

// Tokens is the result of a login or refresh.
type Tokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

// File is one entry of a directory listing.
type File struct {
	ID    int64  `json:"fsId"`
	Name  string `json:"name"`
	Size  int64  `json:"size"`
	Path  string `json:"path"`
	IsDir bool   `json:"isDir"`
}

// TokenStore persists the token. *database.Store implements it.
type TokenStore interface {
	GetMetadata(ctx context.Context, key string) (string, error)
	SetMetadata(ctx context.Context, key, value string) error
}

// Client is a Baidu netdisk client.
type Client struct {
	oauth   *oauth2.Config
	apiBase string
	http    *http.Client
	tokens  TokenStore

	mu    sync.Mutex
	token *oauth2.Token
}

// New creates a client. tokens may be nil, in which case logins only
// last for the process.
func New(cfg Config, tokens TokenStore) *Client {
	if cfg.AuthURL == "" {
		cfg.AuthURL = DefaultAuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = DefaultTokenURL
	}
	if cfg.APIBase == "" {
		cfg.APIBase = DefaultAPIBase
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &Client{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{"basic,netdisk"},
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		apiBase: strings.TrimRight(cfg.APIBase, "/"),
		http:    cfg.HTTPClient,
		tokens:  tokens,
	}
}

// Configured reports whether client credentials are set.
func (c *Client) Configured() bool {
	return c.oauth.ClientID != "" && c.oauth.ClientSecret != ""
}

func (c *Client) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.http)
}

func record(op string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.RemoteRequests.WithLabelValues(op, status).Inc()
}

// StartLogin returns the authorization URL the user must visit.
func (c *Client) StartLogin(state string) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}
	return c.oauth.AuthCodeURL(state), nil
}

// ExchangeCode trades an authorization code for tokens and stores them.
func (c *Client) ExchangeCode(ctx context.Context, code string) (Tokens, error) {
	if !c.Configured() {
		return Tokens{}, ErrNotConfigured
	}
	tok, err := c.oauth.Exchange(c.oauthContext(ctx), code)
	record("exchange", err)
	if err != nil {
		return Tokens{}, fmt.Errorf("token exchange failed: %w", err)
	}
	c.setToken(ctx, tok)
	logging.Info("Cloud storage login completed")
	return tokensOf(tok), nil
}

// Refresh obtains a new access token. An empty refreshToken uses the
// stored one.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (Tokens, error) {
	if !c.Configured() {
		return Tokens{}, ErrNotConfigured
	}
	if refreshToken == "" {
		stored, err := c.storedToken(ctx)
		if err != nil {
			return Tokens{}, err
		}
		refreshToken = stored.RefreshToken
	}
	if refreshToken == "" {
		return Tokens{}, ErrNotLoggedIn
	}

	// An expired token forces the source to refresh.
	src := c.oauth.TokenSource(c.oauthContext(ctx), &oauth2.Token{
		RefreshToken: refreshToken,
		Expiry:       time.Unix(1, 0),
	})
	tok, err := src.Token()
	record("refresh", err)
	if err != nil {
		return Tokens{}, fmt.Errorf("token refresh failed: %w", err)
	}
	c.setToken(ctx, tok)
	return tokensOf(tok), nil
}

// Logout forgets the stored token.
func (c *Client) Logout(ctx context.Context) error {
	c.mu.Lock()
	c.token = nil
	c.mu.Unlock()
	if c.tokens == nil {
		return nil
	}
	return c.tokens.SetMetadata(ctx, database.MetaRemoteToken, "")
}

// LoggedIn reports whether a token is available.
func (c *Client) LoggedIn(ctx context.Context) bool {
	_, err := c.storedToken(ctx)
	return err == nil
}

// AccessToken returns a valid access token, refreshing and storing it
// when expired.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	stored, err := c.storedToken(ctx)
	if err != nil {
		return "", err
	}
	if stored.Valid() {
		return stored.AccessToken, nil
	}
	if stored.RefreshToken == "" {
		return "", ErrNotLoggedIn
	}
	tok, err := c.oauth.TokenSource(c.oauthContext(ctx), stored).Token()
	record("refresh", err)
	if err != nil {
		return "", fmt.Errorf("token refresh failed: %w", err)
	}
	c.setToken(ctx, tok)
	return tok.AccessToken, nil
}

func tokensOf(tok *oauth2.Token) Tokens {
	t := Tokens{AccessToken: tok.AccessToken, RefreshToken: tok.RefreshToken}
	if !tok.Expiry.IsZero() {
		t.ExpiresIn = int64(time.Until(tok.Expiry).Seconds())
	}
	return t
}

func (c *Client) setToken(ctx context.Context, tok *oauth2.Token) {
	c.mu.Lock()
	c.token = tok
	c.mu.Unlock()

	if c.tokens == nil {
		return
	}
	data, err := json.Marshal(tok)
	if err == nil {
		err = c.tokens.SetMetadata(ctx, database.MetaRemoteToken, string(data))
	}
	if err != nil {
		logging.Warn("Failed to persist cloud storage token: %v", err)
	}
}

func (c *Client) storedToken(ctx context.Context) (*oauth2.Token, error) {
	c.mu.Lock()
	tok := c.token
	c.mu.Unlock()
	if tok != nil {
		return tok, nil
	}
	if c.tokens == nil {
		return nil, ErrNotLoggedIn
	}

	raw, err := c.tokens.GetMetadata(ctx, database.MetaRemoteToken)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && raw == "") {
		return nil, ErrNotLoggedIn
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load cloud storage token: %w", err)
	}
	tok = new(oauth2.Token)
	if err := json.Unmarshal([]byte(raw), tok); err != nil {
		logging.Warn("Stored cloud storage token is unreadable: %v", err)
		return nil, ErrNotLoggedIn
	}

	c.mu.Lock()
	c.token = tok
	c.mu.Unlock()
	return tok, nil
}

func (c *Client) accessTokenOr(ctx context.Context, accessToken string) (string, error) {
	if accessToken != "" {
		return accessToken, nil
	}
	return c.AccessToken(ctx)
}

func (c *Client) getJSON(ctx context.Context, op, rawURL string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", UserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			logging.Debug("Failed to close %s response: %v", op, cerr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: unexpected status %s", op, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("%s: invalid response: %w", op, err)
	}
	return nil
}

type listResponse struct {
	Errno  int    `json:"errno"`
	Errmsg string `json:"errmsg"`
	List   []struct {
		FsID           int64  `json:"fs_id"`
		Path           string `json:"path"`
		ServerFilename string `json:"server_filename"`
		Size           int64  `json:"size"`
		IsDir          int    `json:"isdir"`
	} `json:"list"`
}

// ListVideos lists the video files directly inside dir.
func (c *Client) ListVideos(ctx context.Context, dir, accessToken string) ([]File, error) {
	token, err := c.accessTokenOr(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	if dir == "" {
		dir = "/"
	}

	q := url.Values{}
	q.Set("method", "list")
	q.Set("access_token", token)
	q.Set("dir", dir)
	q.Set("order", "name")
	q.Set("limit", "1000")

	var resp listResponse
	err = c.getJSON(ctx, "list", c.apiBase+"/rest/2.0/xpan/file?"+q.Encode(), &resp)
	if err == nil && resp.Errno != 0 {
		err = &APIError{Op: "list", Errno: resp.Errno, Errmsg: resp.Errmsg}
	}
	record("list", err)
	if err != nil {
		return nil, err
	}

	files := make([]File, 0, len(resp.List))
	for _, e := range resp.List {
		name := e.ServerFilename
		if name == "" {
			name = path.Base(e.Path)
		}
		if e.IsDir == 1 || !VideoExtensions[strings.ToLower(path.Ext(name))] {
			continue
		}
		files = append(files, File{ID: e.FsID, Name: name, Size: e.Size, Path: e.Path})
	}
	logging.Debug("Listed %d videos in %s", len(files), dir)
	return files, nil
}

type metasResponse struct {
	Errno  int    `json:"errno"`
	Errmsg string `json:"errmsg"`
	List   []struct {
		FsID     int64  `json:"fs_id"`
		Filename string `json:"filename"`
		Dlink    string `json:"dlink"`
	} `json:"list"`
}

// StreamURL resolves the download link of a file, with the access token
// appended.
func (c *Client) StreamURL(ctx context.Context, fsID int64, accessToken string) (string, error) {
	token, err := c.accessTokenOr(ctx, accessToken)
	if err != nil {
		return "", err
	}

	q := url.Values{}
	q.Set("method", "filemetas")
	q.Set("access_token", token)
	q.Set("fsids", "["+strconv.FormatInt(fsID, 10)+"]")
	q.Set("dlink", "1")

	var resp metasResponse
	err = c.getJSON(ctx, "filemetas", c.apiBase+"/rest/2.0/xpan/multimedia?"+q.Encode(), &resp)
	if err == nil && resp.Errno != 0 {
		err = &APIError{Op: "filemetas", Errno: resp.Errno, Errmsg: resp.Errmsg}
	}
	if err == nil && (len(resp.List) == 0 || resp.List[0].Dlink == "") {
		err = fmt.Errorf("%w %d", ErrNoDownloadLink, fsID)
	}
	record("filemetas", err)
	if err != nil {
		return "", err
	}

	link := resp.List[0].Dlink
	if strings.Contains(link, "access_token=") {
		return link, nil
	}
	sep := "?"
	if strings.Contains(link, "?") {
		sep = "&"
	}
	return link + sep + "access_token=" + url.QueryEscape(token), nil
}

// Stream opens the content of a file. rangeHeader is forwarded as is.
// The caller must close the response body.
func (c *Client) Stream(ctx context.Context, fsID int64, accessToken, rangeHeader string) (*http.Response, error) {
	link, err := c.StreamURL(ctx, fsID, accessToken)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Referer", DefaultAPIBase)
	if rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}

	// The relay may run for as long as playback does.
	client := *c.http
	client.Timeout = 0
	resp, err := client.Do(req)
	if err == nil && resp.StatusCode >= http.StatusBadRequest {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		err = fmt.Errorf("stream %d: upstream status %s", fsID, resp.Status)
		resp = nil
	}
	record("stream", err)
	return resp, err
}
