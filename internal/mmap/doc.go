// Package mmap maps checkpoint files read-only into memory so a snapshot can
// be checksummed and decompressed straight from the page cache.
//
// On non-unix platforms the file is read into memory instead.
package mmap
