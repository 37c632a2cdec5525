package metrics

// InitializeMetrics pre-populates the expected label combinations so that
// every series is exported from the first scrape.
func InitializeMetrics() {
	for _, file := range []string{"main", "wal", "shm"} {
		StoreSizeBytes.WithLabelValues(file)
	}

	for _, op := range []string{"load_playlist", "save_playlist", "load_entry", "save_entry",
		"delete_entry", "get_handle", "put_handle", "delete_handle", "get_meta", "set_meta"} {
		StoreQueryTotal.WithLabelValues(op, "success")
		StoreQueryTotal.WithLabelValues(op, "error")
		StoreQueryDuration.WithLabelValues(op)
	}

	for _, domain := range []string{"playlist", "entry"} {
		StoreCorruptRecords.WithLabelValues(domain)
	}

	for _, path := range []string{"structural", "debounced", "teardown"} {
		PersistFlushes.WithLabelValues(path)
	}

	for _, kind := range []string{"remote", "local", "needs_rebind"} {
		PlaylistItems.WithLabelValues(kind)
	}

	for _, mode := range []string{"silent", "interactive"} {
		for _, outcome := range []string{"fast_path", "reactivated", "rebind_required", "permission_denied", "error"} {
			RebindOutcomes.WithLabelValues(mode, outcome)
		}
	}

	for _, op := range []string{"stat", "open"} {
		FilesystemRetryAttempts.WithLabelValues(op)
		FilesystemRetryFailures.WithLabelValues(op)
	}
}
