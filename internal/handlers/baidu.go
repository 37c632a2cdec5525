package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"rere-player/internal/logging"
	"rere-player/internal/notify"
	"rere-player/internal/playlist"
	"rere-player/internal/remote"
	"rere-player/internal/streaming"
)

// loginStateTTL bounds how long an authorization round trip may take.
const loginStateTTL = 10 * time.Minute

// remoteVideo is a listed file together with the relay URL to add to the
// playlist.
type remoteVideo struct {
	remote.File
	URL string `json:"url"`
}

func (h *Handlers) remoteClient() (*remote.Client, error) {
	if h.remote == nil || !h.remote.Configured() {
		return nil, remote.ErrNotConfigured
	}
	return h.remote, nil
}

// newLoginState issues a one-time OAuth state value.
func (h *Handlers) newLoginState() string {
	state := uuid.NewString()
	now := time.Now()

	h.stateMu.Lock()
	defer h.stateMu.Unlock()
	for s, issued := range h.loginStates {
		if now.Sub(issued) > loginStateTTL {
			delete(h.loginStates, s)
		}
	}
	h.loginStates[state] = now
	return state
}

// consumeLoginState reports whether state was issued and is still fresh.
func (h *Handlers) consumeLoginState(state string) bool {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()
	issued, ok := h.loginStates[state]
	delete(h.loginStates, state)
	return ok && time.Since(issued) <= loginStateTTL
}

// BaiduStatus reports whether cloud storage is configured and logged in.
func (h *Handlers) BaiduStatus(w http.ResponseWriter, r *http.Request) {
	configured := h.remote != nil && h.remote.Configured()
	writeJSONOK(w, map[string]bool{
		"configured": configured,
		"loggedIn":   configured && h.remote.LoggedIn(r.Context()),
	})
}

// BaiduAuthStart redirects the browser to the authorization page.
func (h *Handlers) BaiduAuthStart(w http.ResponseWriter, r *http.Request) {
	client, err := h.remoteClient()
	if err != nil {
		h.fail(w, err, false)
		return
	}
	authURL, err := client.StartLogin(h.newLoginState())
	if err != nil {
		h.fail(w, err, false)
		return
	}
	if r.URL.Query().Get("redirect") == "false" {
		writeJSONOK(w, map[string]string{"url": authURL})
		return
	}
	http.Redirect(w, r, authURL, http.StatusFound)
}

// BaiduAuthCallback completes the login and returns to the UI.
func (h *Handlers) BaiduAuthCallback(w http.ResponseWriter, r *http.Request) {
	client, err := h.remoteClient()
	if err != nil {
		h.fail(w, err, false)
		return
	}
	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		h.fail(w, fmt.Errorf("%w: authorization refused: %s", errBadRequest, e), false)
		return
	}
	if !h.consumeLoginState(q.Get("state")) {
		h.fail(w, fmt.Errorf("%w: unknown or expired login state", errBadRequest), false)
		return
	}
	code := q.Get("code")
	if code == "" {
		h.fail(w, fmt.Errorf("%w: missing authorization code", errBadRequest), false)
		return
	}

	if _, err := client.ExchangeCode(r.Context(), code); err != nil {
		h.fail(w, err, false)
		return
	}
	h.feed.Notify(notify.KindInfo, "Connected to cloud storage")
	http.Redirect(w, r, "/?baidu=connected", http.StatusFound)
}

// BaiduAuthRefresh refreshes the stored token.
func (h *Handlers) BaiduAuthRefresh(w http.ResponseWriter, r *http.Request) {
	client, err := h.remoteClient()
	if err != nil {
		h.fail(w, err, false)
		return
	}
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, err, false)
		return
	}
	tokens, err := client.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		h.fail(w, err, false)
		return
	}
	writeJSONOK(w, tokens)
}

// BaiduLogout forgets the stored token.
func (h *Handlers) BaiduLogout(w http.ResponseWriter, r *http.Request) {
	client, err := h.remoteClient()
	if err != nil {
		h.fail(w, err, false)
		return
	}
	if err := client.Logout(r.Context()); err != nil {
		h.fail(w, err, false)
		return
	}
	writeJSONStatus(w, "logged_out")
}

// relayURL is the absolute playlist URL for a remote file. It is absolute
// so segment export can read it too.
func relayURL(r *http.Request, f remote.File) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/api/baidu/stream/%d/%s", scheme, r.Host, f.ID, url.PathEscape(f.Name))
}

// BaiduList lists the videos in ?dir= (default "/").
func (h *Handlers) BaiduList(w http.ResponseWriter, r *http.Request) {
	client, err := h.remoteClient()
	if err != nil {
		h.fail(w, err, false)
		return
	}
	dir := r.URL.Query().Get("dir")
	if dir == "" {
		dir = "/"
	}

	files, err := client.ListVideos(r.Context(), dir, "")
	if err != nil {
		h.fail(w, err, false)
		return
	}
	videos := make([]remoteVideo, 0, len(files))
	for _, f := range files {
		videos = append(videos, remoteVideo{File: f, URL: relayURL(r, f)})
	}
	writeJSONOK(w, videos)
}

// BaiduAdd appends listed remote files to the playlist.
func (h *Handlers) BaiduAdd(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Files  []remote.File `json:"files"`
		Select bool          `json:"select"`
	}
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, err, false)
		return
	}
	urls := make([]string, 0, len(req.Files))
	for _, f := range req.Files {
		if !f.IsDir && f.ID > 0 && f.Name != "" {
			urls = append(urls, relayURL(r, f))
		}
	}
	if len(urls) == 0 {
		h.fail(w, fmt.Errorf("%w: no files given", errBadRequest), false)
		return
	}

	added, err := h.session.AddURLs(r.Context(), urls, playlist.AddOptions{Select: req.Select, Origin: "baidu"})
	if err != nil {
		h.fail(w, err, false)
		return
	}
	writeJSONOK(w, addResponse{Added: added, State: h.session.Snapshot()})
}

// BaiduStream relays a remote file with Range support.
func (h *Handlers) BaiduStream(w http.ResponseWriter, r *http.Request) {
	client, err := h.remoteClient()
	if err != nil {
		status, _ := classify(err)
		http.Error(w, err.Error(), status)
		return
	}
	fsID, err := strconv.ParseInt(mux.Vars(r)["fsid"], 10, 64)
	if err != nil || fsID <= 0 {
		http.Error(w, "Invalid file id", http.StatusBadRequest)
		return
	}

	resp, err := client.Stream(r.Context(), fsID, "", r.Header.Get("Range"))
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, remote.ErrNotLoggedIn) {
			status = http.StatusUnauthorized
		}
		logging.Warn("Relay of %d failed: %v", fsID, err)
		http.Error(w, "Remote stream unavailable", status)
		return
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			logging.Debug("Failed to close relay body: %v", cerr)
		}
	}()

	if _, err := streaming.Relay(r.Context(), w, resp, h.relay); err != nil {
		if errors.Is(err, streaming.ErrClientGone) {
			logging.Debug("Client left during relay of %d", fsID)
			return
		}
		logging.Warn("Relay of %d interrupted: %v", fsID, err)
	}
}
