// Package types provides shared data structures for the library backend.
//
// Core Types:
//   - CatalogEntry: a registered application bundle
//   - CatalogSummary: listing view of an entry
//   - CatalogStats: catalog statistics
//   - ImportStatus: pollable progress of one import run
//
// Example Usage:
//
//	entry := &types.CatalogEntry{
//	    ID:               importID,
//	    Name:             "Demo",
//	    BundleIdentifier: "com.example.demo",
//	    Version:          "1.0",
//	    VersionNumber:    1,
//	}
package types
