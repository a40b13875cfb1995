// Package blobstore is the storage abstraction behind run checkpoints and
// audit logs.
//
// A BlobStore holds named, immutable blobs. Names use "/" as separator
// regardless of platform. Implementations must be safe for concurrent use.
//
// # Built-in Implementations
//
//   - LocalStore: a directory on the local file system, read via mmap
//   - MemoryStore: in-process, for tests
//   - s3.Store: Amazon S3 with range reads and multipart uploads
//   - minio.Store: MinIO and other S3-compatible object stores
//
// Writes are atomic: a blob written with Put, or with Create followed by
// Close, is either fully visible or not visible at all.
package blobstore
