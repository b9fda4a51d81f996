// Package extraction expands bundle archives.
//
// The archive type is detected from content, not extension: zip (.ipa,
// .tipa), gzip- or zstd-compressed tar, and plain tar are accepted. Each
// import expands into <storage>/scratch/<importID>/ and the bundle is the
// first directory matching Payload/*.app.
//
// Entries that would land outside the scratch directory, absolute paths and
// symlinks pointing out of it are rejected rather than skipped.
//
// Extract never removes its scratch directory on failure. Callers decide
// via Discard, and Sweep collects whatever is left behind.
package extraction
