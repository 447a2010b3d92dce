// Package download implements the file download cache.
//
// Files are keyed by destination name inside the cache root. A present
// entry is always a complete file: downloads land in scratch space first
// and are promoted into the cache with a rename, so an interrupted
// download never leaves a partial file under its final name.
//
// A cached file is never revalidated. Purge it to force a new download.
//
// The transfer itself is delegated to a Fetcher. Two backends exist:
// HTTPFetcher performs the request in process and CommandFetcher shells
// out to curl or wget.
package download
