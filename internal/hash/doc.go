// Package hash provides the CRC32-Castagnoli checksum used by checkpoint
// snapshots and S3 uploads.
//
// Go's hash/crc32 uses hardware instructions (SSE4.2, ARM CRC) when
// available; the table is computed once at init.
package hash
