// Package version tracks which corpus version is active and keeps
// per-version ingestion metadata plus the raw bundle bytes for download.
//
// The active pointer is the single commit point of an ingest: readers
// resolve it once per request, so a version only becomes visible after
// every store has been populated. Two implementations exist: SQLite for
// single-binary deployments and Redis for shared deployments.
package version
