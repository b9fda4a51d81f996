// Package catalog provides persistent storage for registered applications.
//
// Each CatalogEntry is stored as JSON at <storage>/catalog/<id>.json and
// fronted by an in-memory cache. Writes go through a temp file and rename,
// so a reader sees either the previous record or the complete new one.
//
// Example Usage:
//
//	catalog := catalog.NewManager(layout.CatalogDir(), logger)
//	err := catalog.Save(ctx, entry)
//	entry, err := catalog.Load(ctx, id)
//	entries, err := catalog.List(ctx)
package catalog
