package extraction

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/GriffinCanCode/applibrary/internal/shared/paths"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/gabriel-vasile/mimetype"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"
)

// BundlePattern locates the application directory inside an expanded archive.
const BundlePattern = "Payload/*.app"

// DefaultMaxBytes caps the expanded size of one archive.
const DefaultMaxBytes int64 = 16 << 30

var (
	ErrUnsupportedArchive = errors.New("unsupported archive format")
	ErrUnsafePath         = errors.New("archive entry escapes destination")
	ErrNoAppBundle        = errors.New("archive contains no application bundle")
	ErrTooLarge           = errors.New("archive expands beyond size limit")
)

// Extractor expands bundle archives into per-import scratch directories.
type Extractor struct {
	scratchDir string
	maxBytes   int64
	logger     *zap.Logger
}

// NewExtractor creates an extractor writing under scratchDir
func NewExtractor(scratchDir string, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{
		scratchDir: scratchDir,
		maxBytes:   DefaultMaxBytes,
		logger:     logger,
	}
}

// WithMaxBytes overrides the expanded size limit
func (e *Extractor) WithMaxBytes(n int64) *Extractor {
	if n > 0 {
		e.maxBytes = n
	}
	return e
}

// Dir returns the scratch directory for an import
func (e *Extractor) Dir(importID string) string {
	return filepath.Join(e.scratchDir, importID)
}

// Extract expands src into the import's scratch directory and returns the
// path of the application bundle inside it. The scratch directory is left
// in place on failure; see Discard.
func (e *Extractor) Extract(ctx context.Context, importID, src string) (string, error) {
	if err := paths.ValidateComponent(importID); err != nil {
		return "", fmt.Errorf("failed to extract: invalid import ID: %w", err)
	}

	dest := e.Dir(importID)
	if err := os.RemoveAll(dest); err != nil {
		return "", fmt.Errorf("failed to reset scratch directory: %w", err)
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return "", fmt.Errorf("failed to create scratch directory: %w", err)
	}
	root, err := filepath.EvalSymlinks(dest)
	if err != nil {
		return "", fmt.Errorf("failed to resolve scratch directory: %w", err)
	}

	mtype, err := mimetype.DetectFile(src)
	if err != nil {
		return "", fmt.Errorf("failed to read archive: %w", err)
	}

	log := e.logger.With(zap.String("import_id", importID), zap.String("mime", mtype.String()))
	log.Debug("Extracting archive", zap.String("source", src))

	budget := &budget{remaining: e.maxBytes}
	switch kind := classify(mtype); kind {
	case kindZip:
		err = extractZip(ctx, src, root, budget)
	case kindTarGzip, kindTarZstd, kindTar:
		err = extractTarFile(ctx, src, root, kind, budget)
	default:
		err = fmt.Errorf("%w: %s", ErrUnsupportedArchive, mtype.String())
	}
	if err != nil {
		return "", fmt.Errorf("failed to extract archive: %w", err)
	}

	bundle, err := findBundle(dest)
	if err != nil {
		return "", err
	}

	log.Info("Archive extracted",
		zap.String("bundle", filepath.Base(bundle)),
		zap.Int64("bytes", e.maxBytes-budget.remaining))
	return bundle, nil
}

// Discard removes the scratch directory of an import
func (e *Extractor) Discard(importID string) error {
	if err := paths.ValidateComponent(importID); err != nil {
		return err
	}
	if err := os.RemoveAll(e.Dir(importID)); err != nil {
		return fmt.Errorf("failed to discard scratch directory: %w", err)
	}
	return nil
}

type archiveKind int

const (
	kindUnknown archiveKind = iota
	kindZip
	kindTarGzip
	kindTarZstd
	kindTar
)

// classify walks up the MIME hierarchy; .ipa files are plain zips but may
// be reported as a more specific zip-based type.
func classify(mtype *mimetype.MIME) archiveKind {
	for m := mtype; m != nil; m = m.Parent() {
		switch {
		case m.Is("application/zip"):
			return kindZip
		case m.Is("application/gzip"):
			return kindTarGzip
		case m.Is("application/zstd"):
			return kindTarZstd
		case m.Is("application/x-tar"):
			return kindTar
		}
	}
	return kindUnknown
}

func findBundle(dest string) (string, error) {
	matches, err := doublestar.Glob(os.DirFS(dest), BundlePattern)
	if err != nil {
		return "", fmt.Errorf("failed to search for bundle: %w", err)
	}
	sort.Strings(matches)

	for _, match := range matches {
		full := filepath.Join(dest, filepath.FromSlash(match))
		if info, err := os.Stat(full); err == nil && info.IsDir() {
			return full, nil
		}
	}
	return "", ErrNoAppBundle
}

// budget tracks bytes written against the size limit.
type budget struct {
	remaining int64
}

func (b *budget) copy(dst io.Writer, src io.Reader) error {
	n, err := io.CopyN(dst, src, b.remaining+1)
	b.remaining -= n
	if b.remaining < 0 {
		return ErrTooLarge
	}
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// safeJoin resolves name under dest, rejecting absolute paths and traversal.
func safeJoin(dest, name string) (string, error) {
	name = strings.ReplaceAll(name, "\\", "/")
	if strings.HasPrefix(name, "/") {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
	}
	target := filepath.Join(dest, filepath.FromSlash(name))
	if target != filepath.Clean(dest) && !paths.Within(dest, target) {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
	}
	return target, nil
}

// checkLink rejects link targets that leave dest. Parent references are only
// allowed as a leading run so that lexical and on-disk resolution agree.
func checkLink(dest, target, linkname string) error {
	if filepath.IsAbs(linkname) || strings.Contains(linkname, "\\") {
		return fmt.Errorf("%w: link %s -> %s", ErrUnsafePath, target, linkname)
	}
	leading := true
	for _, part := range strings.Split(linkname, "/") {
		if part == ".." {
			if !leading {
				return fmt.Errorf("%w: link %s -> %s", ErrUnsafePath, target, linkname)
			}
			continue
		}
		if part != "" && part != "." {
			leading = false
		}
	}
	resolved := filepath.Join(filepath.Dir(target), filepath.FromSlash(linkname))
	if resolved != filepath.Clean(dest) && !paths.Within(dest, resolved) {
		return fmt.Errorf("%w: link %s -> %s", ErrUnsafePath, target, linkname)
	}
	return nil
}

// resolveDir creates dir and returns its real path. Symlinks already written
// by the archive are followed, and the result must stay inside root.
func resolveDir(root, dir string) (string, error) {
	if err := checkReal(root, nearestExisting(dir)); err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	abs, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return "", err
	}
	if abs != root && !paths.Within(root, abs) {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, dir)
	}
	return abs, nil
}

func nearestExisting(path string) string {
	for {
		if _, err := os.Lstat(path); err == nil {
			return path
		}
		parent := filepath.Dir(path)
		if parent == path {
			return path
		}
		path = parent
	}
}

func checkReal(root, path string) error {
	abs, err := filepath.EvalSymlinks(path)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrUnsafePath, path)
	}
	if abs != root && !paths.Within(root, abs) {
		return fmt.Errorf("%w: %s", ErrUnsafePath, path)
	}
	return nil
}

// resolveLeaf returns the real location for a new entry at target. An
// existing symlink at target is never written through.
func resolveLeaf(root, target string) (string, error) {
	dir, err := resolveDir(root, filepath.Dir(target))
	if err != nil {
		return "", err
	}
	leaf := filepath.Join(dir, filepath.Base(target))
	if info, err := os.Lstat(leaf); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return "", fmt.Errorf("%w: %s is a link", ErrUnsafePath, target)
	}
	return leaf, nil
}

func filePerm(mode fs.FileMode) fs.FileMode {
	return mode.Perm() | 0o600
}

func writeFile(root, target string, r io.Reader, mode fs.FileMode, b *budget) error {
	leaf, err := resolveLeaf(root, target)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(leaf, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, filePerm(mode))
	if err != nil {
		return err
	}
	if err := b.copy(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func extractZip(ctx context.Context, src, dest string, b *budget) error {
	reader, err := zip.OpenReader(src)
	if err != nil {
		return err
	}
	defer reader.Close()

	for _, file := range reader.File {
		if err := ctx.Err(); err != nil {
			return err
		}

		target, err := safeJoin(dest, file.Name)
		if err != nil {
			return err
		}

		mode := file.Mode()
		switch {
		case mode.IsDir():
			if _, err := resolveDir(dest, target); err != nil {
				return err
			}
		case mode&os.ModeSymlink != 0:
			if err := extractZipLink(file, dest, target); err != nil {
				return err
			}
		default:
			rc, err := file.Open()
			if err != nil {
				return err
			}
			err = writeFile(dest, target, rc, mode, b)
			rc.Close()
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func extractZipLink(file *zip.File, dest, target string) error {
	rc, err := file.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	linkname, err := io.ReadAll(io.LimitReader(rc, 4096))
	if err != nil {
		return err
	}
	return writeLink(dest, target, string(linkname))
}

func writeLink(root, target, linkname string) error {
	leaf, err := resolveLeaf(root, target)
	if err != nil {
		return err
	}
	if err := checkLink(root, leaf, linkname); err != nil {
		return err
	}
	return os.Symlink(linkname, leaf)
}

func extractTarFile(ctx context.Context, src, dest string, kind archiveKind, b *budget) error {
	file, err := os.Open(src)
	if err != nil {
		return err
	}
	defer file.Close()

	var r io.Reader = file
	switch kind {
	case kindTarGzip:
		gz, err := gzip.NewReader(file)
		if err != nil {
			return fmt.Errorf("gzip failed: %w", err)
		}
		defer gz.Close()
		r = gz
	case kindTarZstd:
		zr, err := zstd.NewReader(file)
		if err != nil {
			return fmt.Errorf("zstd failed: %w", err)
		}
		defer zr.Close()
		r = zr
	}

	return extractTar(ctx, tar.NewReader(r), dest, b)
}

func extractTar(ctx context.Context, tr *tar.Reader, dest string, b *budget) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		header, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		target, err := safeJoin(dest, header.Name)
		if err != nil {
			return err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if _, err := resolveDir(dest, target); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := writeFile(dest, target, tr, header.FileInfo().Mode(), b); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := writeLink(dest, target, header.Linkname); err != nil {
				return err
			}
		default:
			// Hard links, devices and FIFOs have no place in an app bundle
		}
	}
}
