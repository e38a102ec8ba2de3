// Package fetcher downloads lead export documents so they can be imported
// from a URL as well as from a local file.
package fetcher

import "context"

// Fetcher downloads a remote document into a local directory.
type Fetcher interface {
	// DownloadToDir fetches url into a new file under dir and returns its
	// path and size.
	DownloadToDir(ctx context.Context, url, dir string) (string, int64, error)
}
