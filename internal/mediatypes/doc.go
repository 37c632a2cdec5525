// Package mediatypes holds the file-format tables shared by the playlist,
// capture, remote and HTTP layers.
//
// It has no dependencies beyond the standard library so any package can
// import it without creating cycles.
//
//	ext := mediatypes.Ext("clip.MP4?x=1") // ".mp4"
//	mediatypes.KindOf(ext)                // KindVideo
//	mediatypes.MimeType(ext)              // "video/mp4"
package mediatypes
