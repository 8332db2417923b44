// Package ir provides the shared value types for stoats.
//
// This package contains type definitions and pure helpers only. All other
// internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Sources are identified by integer IDs (SourceID), never by pointers,
//     so provenance chains can be rebuilt by rewriting rows
//   - Source variants are a tagged union keyed by SourceKind
//   - Journal values are a tagged union keyed by JournalType
//   - Times are UTC and stored with second resolution
package ir
