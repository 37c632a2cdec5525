package handlers

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"rere-player/internal/blob"
	"rere-player/internal/capture"
	"rere-player/internal/database"
	"rere-player/internal/logging"
	"rere-player/internal/notify"
	"rere-player/internal/playlist"
	"rere-player/internal/rebind"
	"rere-player/internal/remote"
	"rere-player/internal/startup"
	"rere-player/internal/streaming"
)

// Handlers serves the player control API.
type Handlers struct {
	session   *playlist.Session
	store     *database.Store
	feed      *notify.Feed
	blobs     *blob.Registry
	downloads *capture.Downloader
	remote    *remote.Client
	ffmpeg    *capture.FFmpeg
	relay     streaming.TimeoutWriterConfig
	started   time.Time

	captureEnabled bool

	stateMu     sync.Mutex
	loginStates map[string]time.Time
}

// Deps are the collaborators the handlers serve. Remote and FFmpeg may be
// nil.
type Deps struct {
	Session   *playlist.Session
	Store     *database.Store
	Feed      *notify.Feed
	Blobs     *blob.Registry
	Downloads *capture.Downloader
	Remote    *remote.Client
	FFmpeg    *capture.FFmpeg
}

func New(deps Deps, config *startup.Config) *Handlers {
	return &Handlers{
		session:        deps.Session,
		store:          deps.Store,
		feed:           deps.Feed,
		blobs:          deps.Blobs,
		downloads:      deps.Downloads,
		remote:         deps.Remote,
		ffmpeg:         deps.FFmpeg,
		relay:          streaming.DefaultTimeoutWriterConfig(),
		started:        time.Now(),
		captureEnabled: config.CaptureEnabled,
		loginStates:    make(map[string]time.Time),
	}
}

// errorResponse is the body of every failed request.
type errorResponse struct {
	Message string `json:"message"`
	Kind    string `json:"kind"`
}

// classify maps an operation error to an HTTP status and notification kind.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, rebind.ErrPermissionDenied):
		return http.StatusConflict, notify.KindPermissionDenied
	case errors.Is(err, rebind.ErrRebindRequired):
		return http.StatusConflict, notify.KindRebindRequired
	case errors.Is(err, capture.ErrInvalidRange):
		return http.StatusUnprocessableEntity, notify.KindInvalidRange
	case errors.Is(err, playlist.ErrLoopOrder), errors.Is(err, playlist.ErrLoopStartUnset):
		return http.StatusUnprocessableEntity, notify.KindLoopOrder
	case errors.Is(err, capture.ErrCaptureUnsupported):
		return http.StatusNotImplemented, notify.KindUnsupported
	case errors.Is(err, capture.ErrCancelled):
		return http.StatusConflict, notify.KindInfo
	case errors.Is(err, playlist.ErrInvalidRate), errors.Is(err, playlist.ErrInvalidVolume), errors.Is(err, errBadRequest):
		return http.StatusBadRequest, notify.KindError
	case errors.Is(err, playlist.ErrIndexOutOfRange), errors.Is(err, playlist.ErrItemGone):
		return http.StatusNotFound, notify.KindError
	case errors.Is(err, playlist.ErrNoActiveSource):
		return http.StatusConflict, notify.KindError
	case errors.Is(err, remote.ErrNotConfigured):
		return http.StatusServiceUnavailable, notify.KindError
	case errors.Is(err, remote.ErrNotLoggedIn):
		return http.StatusUnauthorized, notify.KindError
	case errors.Is(err, database.ErrStoreCorrupt):
		return http.StatusInternalServerError, notify.KindStoreCorrupt
	default:
		return http.StatusInternalServerError, notify.KindError
	}
}

// fail writes err as a JSON error. The session already notifies for
// failures of its own operations; everything else is added to the feed
// here.
func (h *Handlers) fail(w http.ResponseWriter, err error, sessionNotified bool) {
	status, kind := classify(err)
	if !sessionNotified {
		h.feed.Notify(kind, err.Error())
	} else if status >= http.StatusInternalServerError {
		logging.Error("Request failed: %v", err)
	}
	writeJSONError(w, err.Error(), kind, status)
}
