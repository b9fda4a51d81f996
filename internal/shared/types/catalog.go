package types

import "time"

// Defaults applied when a bundle does not declare a field
const (
	DefaultAppName          = "Unknown App"
	DefaultBundleIdentifier = "com.unknown.app"
	DefaultVersion          = "1.0"
)

// Provenance labels recorded on catalog entries
const (
	SourceLocalFile = "Imported File"
	SourceURL       = "Imported from URL"
)

// CatalogEntry represents one registered, installable application
type CatalogEntry struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	BundleIdentifier string    `json:"bundle_identifier"`
	Version          string    `json:"version"`
	VersionNumber    int       `json:"version_number"`
	BundlePath       string    `json:"bundle_path"`
	SourceLocation   string    `json:"source_location"`
	Size             int64     `json:"size"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// CatalogSummary contains the listing view of an entry
type CatalogSummary struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	BundleIdentifier string    `json:"bundle_identifier"`
	Version          string    `json:"version"`
	SourceLocation   string    `json:"source_location"`
	CreatedAt        time.Time `json:"created_at"`
}

// ToSummary extracts the listing view from an entry
func (e *CatalogEntry) ToSummary() CatalogSummary {
	return CatalogSummary{
		ID:               e.ID,
		Name:             e.Name,
		BundleIdentifier: e.BundleIdentifier,
		Version:          e.Version,
		SourceLocation:   e.SourceLocation,
		CreatedAt:        e.CreatedAt,
	}
}

// CatalogStats contains catalog statistics
type CatalogStats struct {
	TotalEntries int        `json:"total_entries"`
	TotalBytes   int64      `json:"total_bytes"`
	LastUpdated  *time.Time `json:"last_updated,omitempty"`
}
