// Package downloader turns download jobs into files on disk.
//
// ResolveCandidates derives the URLs to try for an illustration, Fetcher
// tries them in order and streams the first hit to storage, and WorkerPool
// runs a page's worth of jobs on a fixed set of goroutines.
package downloader
