/*
Package streaming relays remote media to the player.

Cloud-storage files are fetched upstream and copied to the player's
response. Relay forwards the status code and the headers a media element
needs for seeking (Content-Range, Accept-Ranges, Content-Length), so a
ranged request from the player becomes a ranged request upstream and a 206
back.

Writes go through a TimeoutWriter, which bounds each write and the idle
time between writes. A player that stops reading therefore releases the
upstream connection instead of holding it open:

	resp, err := client.Stream(ctx, fsID, "", r.Header.Get("Range"))
	if err != nil {
		// map to an HTTP error
	}
	defer resp.Body.Close()

	_, err = streaming.Relay(r.Context(), w, resp, streaming.DefaultTimeoutWriterConfig())
	if err != nil && !errors.Is(err, streaming.ErrClientGone) {
		logging.Warn("relay failed: %v", err)
	}

Every byte written is added to the relay byte counter in the metrics
package.
*/
package streaming
