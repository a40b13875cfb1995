// Package checkpoint persists intermediate tables and run state between
// pipeline stages, so a failed run can resume where it stopped.
//
// Tables are stored per stage name in a blobstore.BlobStore, either as
// long-format CSV or in the LSG1 binary container:
//
//	magic "LSG1" | version u16 | compression u8 | reserved u8 |
//	crc32c u32 | raw length u32 | stored length u32 | stored payload
//
// The payload is a dictionary-encoded columnar table, optionally
// compressed with LZ4 or ZSTD. The checksum covers the stored bytes.
package checkpoint
