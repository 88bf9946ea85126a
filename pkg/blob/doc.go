// Package blob stores finished model files in object storage and hands out
// time-limited download links.
//
// Three drivers implement Storage:
//
//   - Local writes under a base directory and returns plain URLs (no signing).
//   - S3 targets Amazon S3 or any S3-compatible service and presigns GET requests.
//   - GCS targets Google Cloud Storage and signs URLs with the V4 scheme.
//
// Object paths are slash separated and relative to the storage root. Paths
// containing ".." are rejected with ErrInvalidPath.
package blob
