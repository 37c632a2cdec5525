package rebind

import (
	"context"
	"errors"
	"fmt"

	"rere-player/internal/database"
	"rere-player/internal/logging"
	"rere-player/internal/metrics"
	"rere-player/internal/session"
)

// Request carries the fields of a playlist item the resolver reads.
type Request struct {
	ItemID         string
	SourceRef      string
	IsLocal        bool
	HasCapability  bool
	OwnerSessionID string
}

// Resolution is a playable source for an item. When Refreshed is set the
// caller must write SourceRef, OwnerSessionID and Meta back to the item.
type Resolution struct {
	SourceRef      string
	Path           string
	Title          string
	Meta           *database.LocalMeta
	OwnerSessionID string
	Refreshed      bool
}

// Resolver decides whether an item's reference is usable, can be silently
// reactivated, or needs the user.
type Resolver struct {
	identity     *session.Identity
	handles      HandleStore
	registry     Registry
	materializer Materializer
}

// NewResolver creates a resolver for the given process session.
func NewResolver(identity *session.Identity, handles HandleStore, registry Registry, materializer Materializer) *Resolver {
	return &Resolver{
		identity:     identity,
		handles:      handles,
		registry:     registry,
		materializer: materializer,
	}
}

// NeedsRebind reports whether a request's reference is from a previous
// session and no capability exists to recover it.
func (r *Resolver) NeedsRebind(req Request) bool {
	return req.IsLocal && !r.identity.Owns(req.OwnerSessionID) && !req.HasCapability
}

// Resolve returns a playable source for req. Remote items and local items
// owned by this session take the fast path. Otherwise the stored
// capability is queried (and, in Interactive mode, requested) before a
// fresh reference is materialized.
func (r *Resolver) Resolve(ctx context.Context, req Request, mode Mode) (Resolution, error) {
	if !req.IsLocal || r.identity.Owns(req.OwnerSessionID) {
		metrics.RebindOutcomes.WithLabelValues(mode.String(), "fast_path").Inc()
		return Resolution{SourceRef: req.SourceRef, OwnerSessionID: req.OwnerSessionID}, nil
	}

	res, err := r.reactivate(ctx, req, mode)
	switch {
	case err == nil:
		metrics.RebindOutcomes.WithLabelValues(mode.String(), "reactivated").Inc()
	case errors.Is(err, ErrPermissionDenied):
		metrics.RebindOutcomes.WithLabelValues(mode.String(), "permission_denied").Inc()
	case errors.Is(err, ErrRebindRequired):
		metrics.RebindOutcomes.WithLabelValues(mode.String(), "rebind_required").Inc()
	default:
		metrics.RebindOutcomes.WithLabelValues(mode.String(), "error").Inc()
	}
	return res, err
}

func (r *Resolver) reactivate(ctx context.Context, req Request, mode Mode) (Resolution, error) {
	if !req.HasCapability {
		return Resolution{}, ErrRebindRequired
	}

	h, err := r.handles.GetHandle(ctx, req.ItemID)
	if err != nil {
		return Resolution{}, fmt.Errorf("failed to load handle for %s: %w", req.ItemID, err)
	}
	if h == nil {
		logging.Warn("Item %s is flagged with a capability but no handle is stored", req.ItemID)
		return Resolution{}, ErrRebindRequired
	}

	c, err := r.registry.Open(h.Kind, h.Data)
	if err != nil {
		logging.Warn("Unusable handle for %s: %v", req.ItemID, err)
		return Resolution{}, ErrRebindRequired
	}

	perm, err := c.QueryPermission(ctx)
	if err != nil {
		return Resolution{}, fmt.Errorf("permission query failed: %w", err)
	}
	if perm != PermissionGranted && mode == Interactive {
		perm, err = c.RequestPermission(ctx)
		if err != nil {
			return Resolution{}, fmt.Errorf("permission request failed: %w", err)
		}
	}

	switch perm {
	case PermissionGranted:
	case PermissionDenied:
		logging.Debug("Permission denied for %s (%s)", req.ItemID, mode)
		return Resolution{}, ErrPermissionDenied
	default:
		logging.Debug("Permission for %s needs a user gesture", req.ItemID)
		return Resolution{}, ErrRebindRequired
	}

	return r.materialize(ctx, c)
}

func (r *Resolver) materialize(ctx context.Context, c Capability) (Resolution, error) {
	f, err := c.GetFile(ctx)
	if err != nil {
		logging.Warn("Granted capability could not produce its file: %v", err)
		return Resolution{}, fmt.Errorf("%w: %v", ErrRebindRequired, err)
	}

	ref, err := r.materializer.Materialize(ctx, f)
	if err != nil {
		return Resolution{}, fmt.Errorf("failed to materialize %s: %w", f.Name, err)
	}

	return Resolution{
		SourceRef:      ref,
		Path:           f.Path,
		Title:          f.Name,
		Meta:           f.Meta(),
		OwnerSessionID: r.identity.ID(),
		Refreshed:      true,
	}, nil
}

// OpenChosen establishes a reference from a file the user just chose.
// Nothing is stored; see StoreCapability.
func (r *Resolver) OpenChosen(ctx context.Context, c Capability) (Resolution, error) {
	return r.materialize(ctx, c)
}

// StoreCapability saves c under itemID and reports whether the write
// succeeded. A failed write is logged and otherwise ignored.
func (r *Resolver) StoreCapability(ctx context.Context, itemID string, c Capability) bool {
	return r.store(ctx, itemID, c)
}

func (r *Resolver) store(ctx context.Context, itemID string, c Capability) bool {
	kind, data, err := r.registry.Encode(c)
	if err == nil {
		err = r.handles.PutHandle(ctx, itemID, database.Handle{Kind: kind, Data: data})
	}
	if err != nil {
		logging.Warn("Could not store capability for %s, item will need manual rebind after restart: %v", itemID, err)
		return false
	}
	return true
}
