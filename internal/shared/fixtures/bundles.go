// Package fixtures builds bundle archives for tests.
package fixtures

import (
	"archive/tar"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"howett.net/plist"
)

// App describes the bundle an archive should contain.
type App struct {
	Name             string
	BundleIdentifier string
	Version          string
	// Files are extra bundle-relative files
	Files map[string]string
	// OmitInfo leaves out Info.plist entirely
	OmitInfo bool
}

// SampleApp returns a small well-formed bundle description.
func SampleApp() App {
	return App{
		Name:             "Sample",
		BundleIdentifier: "com.example.sample",
		Version:          "3",
		Files:            map[string]string{"Sample": "#!/bin/true\n"},
	}
}

// InfoPlist renders the app's Info.plist in XML form.
func InfoPlist(tb testing.TB, app App) []byte {
	tb.Helper()

	info := map[string]interface{}{}
	if app.Name != "" {
		info["CFBundleDisplayName"] = app.Name
		info["CFBundleExecutable"] = app.Name
	}
	if app.BundleIdentifier != "" {
		info["CFBundleIdentifier"] = app.BundleIdentifier
	}
	if app.Version != "" {
		info["CFBundleShortVersionString"] = app.Version
	}
	data, err := plist.Marshal(info, plist.XMLFormat)
	if err != nil {
		tb.Fatalf("marshal Info.plist: %v", err)
	}
	return data
}

// entries returns archive paths to contents for app.
func entries(tb testing.TB, app App) map[string][]byte {
	dirName := app.Name
	if dirName == "" {
		dirName = "Unnamed"
	}
	root := "Payload/" + dirName + ".app/"

	out := map[string][]byte{}
	if !app.OmitInfo {
		out[root+"Info.plist"] = InfoPlist(tb, app)
	}
	for name, content := range app.Files {
		out[root+name] = []byte(content)
	}
	return out
}

// WriteIPA writes app as a zip archive at dir/filename and returns its path.
func WriteIPA(tb testing.TB, dir, filename string, app App) string {
	tb.Helper()
	return WriteZip(tb, dir, filename, entries(tb, app))
}

// WriteZip writes raw entries into a zip archive.
func WriteZip(tb testing.TB, dir, filename string, files map[string][]byte) string {
	tb.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			tb.Fatalf("zip create %s: %v", name, err)
		}
		if _, err := w.Write(content); err != nil {
			tb.Fatalf("zip write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		tb.Fatalf("zip close: %v", err)
	}
	return writeOut(tb, dir, filename, buf.Bytes())
}

// Entry is one ordered archive member. When Link is set, Body is the
// symlink target.
type Entry struct {
	Name string
	Body string
	Link bool
}

// WriteZipEntries writes entries into a zip archive in the given order.
func WriteZipEntries(tb testing.TB, dir, filename string, members []Entry) string {
	tb.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, m := range members {
		hdr := &zip.FileHeader{Name: m.Name, Method: zip.Store}
		if m.Link {
			hdr.SetMode(os.ModeSymlink | 0o777)
		} else {
			hdr.SetMode(0o644)
		}
		w, err := zw.CreateHeader(hdr)
		if err != nil {
			tb.Fatalf("zip create %s: %v", m.Name, err)
		}
		if _, err := w.Write([]byte(m.Body)); err != nil {
			tb.Fatalf("zip write %s: %v", m.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		tb.Fatalf("zip close: %v", err)
	}
	return writeOut(tb, dir, filename, buf.Bytes())
}

// Compression selects the tar wrapper used by WriteTar.
type Compression int

const (
	None Compression = iota
	Gzip
	Zstd
)

// WriteTar writes app as a tar archive, optionally compressed.
func WriteTar(tb testing.TB, dir, filename string, app App, compression Compression) string {
	tb.Helper()

	var tarBuf bytes.Buffer
	tw := tar.NewWriter(&tarBuf)
	for name, content := range entries(tb, app) {
		hdr := &tar.Header{Name: name, Mode: 0o644, Size: int64(len(content)), Typeflag: tar.TypeReg}
		if err := tw.WriteHeader(hdr); err != nil {
			tb.Fatalf("tar header: %v", err)
		}
		if _, err := tw.Write(content); err != nil {
			tb.Fatalf("tar write: %v", err)
		}
	}
	if err := tw.Close(); err != nil {
		tb.Fatalf("tar close: %v", err)
	}

	var out bytes.Buffer
	switch compression {
	case Gzip:
		gz := gzip.NewWriter(&out)
		gz.Write(tarBuf.Bytes())
		gz.Close()
	case Zstd:
		zw, err := zstd.NewWriter(&out)
		if err != nil {
			tb.Fatalf("zstd writer: %v", err)
		}
		zw.Write(tarBuf.Bytes())
		zw.Close()
	default:
		out = tarBuf
	}
	return writeOut(tb, dir, filename, out.Bytes())
}

// WriteBundleDir lays out an expanded app directory under dir and returns
// the .app path.
func WriteBundleDir(tb testing.TB, dir string, app App) string {
	tb.Helper()

	for name, content := range entries(tb, app) {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			tb.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, content, 0o644); err != nil {
			tb.Fatalf("write %s: %v", path, err)
		}
	}
	name := app.Name
	if name == "" {
		name = "Unnamed"
	}
	path := filepath.Join(dir, "Payload", name+".app")
	if err := os.MkdirAll(path, 0o755); err != nil {
		tb.Fatalf("mkdir: %v", err)
	}
	return path
}

func writeOut(tb testing.TB, dir, filename string, data []byte) string {
	path := filepath.Join(dir, filename)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		tb.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		tb.Fatalf("write %s: %v", path, err)
	}
	return path
}
