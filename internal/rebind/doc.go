// Package rebind re-establishes playable references for local playlist
// items whose previous reference belonged to an earlier process run.
//
// A local item carries a reference valid only within the session that
// issued it. On a later run the Resolver looks up the item's stored
// capability, checks its permission, and materializes a fresh reference;
// when that is impossible it returns ErrRebindRequired (or
// ErrPermissionDenied) so the caller can ask the user to pick the file
// again, then open it with OpenChosen and keep it with StoreCapability.
package rebind
