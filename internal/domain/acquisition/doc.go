// Package acquisition fetches remote bundles to local storage.
//
// A Manager owns one worker goroutine and a bounded FIFO queue, so at most
// one download is in flight and every extra request is either queued or
// rejected with ErrQueueFull. Each request gets exactly one Result. There
// are no retries at this layer; a failed download is terminal for its
// import.
//
//	acq := acquisition.NewManager(client, layout.DownloadsDir(), acquisition.Options{QueueDepth: 4})
//	acq.DownloadFile(ctx, url, importID, func(id, path string, err error) {
//		...
//	})
package acquisition
