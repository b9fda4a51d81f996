package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Storage subdirectories, relative to the library root
const (
	// Inbox receives archives uploaded by the presentation layer
	Inbox = "inbox"

	// Downloads holds archives fetched by the acquisition manager
	Downloads = "downloads"

	// Scratch holds per-import extraction directories
	Scratch = "scratch"

	// Apps holds registered bundles, one directory per catalog entry
	Apps = "apps"

	// Catalog holds one JSON record per catalog entry
	Catalog = "catalog"
)

// Layout resolves the standard directories under a library root
type Layout struct {
	Root string
}

// New returns the layout rooted at root
func New(root string) Layout {
	return Layout{Root: filepath.Clean(root)}
}

func (l Layout) InboxDir() string     { return filepath.Join(l.Root, Inbox) }
func (l Layout) DownloadsDir() string { return filepath.Join(l.Root, Downloads) }
func (l Layout) ScratchDir() string   { return filepath.Join(l.Root, Scratch) }
func (l Layout) AppsDir() string      { return filepath.Join(l.Root, Apps) }
func (l Layout) CatalogDir() string   { return filepath.Join(l.Root, Catalog) }

// StandardDirectories returns all directories that should exist under the root
func (l Layout) StandardDirectories() []string {
	return []string{
		l.InboxDir(),
		l.DownloadsDir(),
		l.ScratchDir(),
		l.AppsDir(),
		l.CatalogDir(),
	}
}

// Ensure creates every standard directory
func (l Layout) Ensure() error {
	for _, dir := range l.StandardDirectories() {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

// Within reports whether path lies strictly inside dir
func Within(dir, path string) bool {
	rel, err := filepath.Rel(filepath.Clean(dir), filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

// ValidateComponent checks that name is safe to use as a single path element
func ValidateComponent(name string) error {
	if name == "" {
		return fmt.Errorf("path component cannot be empty")
	}
	if filepath.IsAbs(name) {
		return fmt.Errorf("path component cannot be an absolute path")
	}
	if filepath.Clean(name) != name || strings.ContainsRune(name, filepath.Separator) || name == ".." {
		return fmt.Errorf("path component contains invalid path elements")
	}
	return nil
}
