/*
Package remote talks to the Baidu netdisk open platform.

It covers the parts of the service the player needs: the OAuth2
authorization-code login, token refresh, listing the video files of a
directory and opening a ranged stream of one file. Tokens are persisted in
the metadata table of the durable store so a login survives restarts.

Items from the service enter the playlist as plain remote URLs pointing at
the local relay (/api/baidu/stream/{fsid}); the playlist never sees an
access token.
*/
package remote
