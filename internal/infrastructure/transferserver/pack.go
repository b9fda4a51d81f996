package transferserver

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"sync"

	"github.com/charlievieth/fastwalk"
	"github.com/klauspost/compress/zip"
)

// PayloadDir is the top-level directory of a packed bundle archive
const PayloadDir = "Payload"

type packEntry struct {
	rel  string
	mode os.FileMode
}

// PackBundle writes bundlePath to w as a zip with the bundle stored under
// Payload/<dirName>. Entries are written in lexical order.
func PackBundle(w io.Writer, bundlePath, dirName string) error {
	entries, err := collect(bundlePath)
	if err != nil {
		return err
	}

	zw := zip.NewWriter(w)
	prefix := path.Join(PayloadDir, dirName)

	if _, err := zw.CreateHeader(dirHeader(PayloadDir)); err != nil {
		return fmt.Errorf("failed to write archive: %w", err)
	}
	if _, err := zw.CreateHeader(dirHeader(prefix)); err != nil {
		return fmt.Errorf("failed to write archive: %w", err)
	}

	for _, e := range entries {
		name := path.Join(prefix, e.rel)
		full := filepath.Join(bundlePath, filepath.FromSlash(e.rel))

		switch {
		case e.mode.IsDir():
			_, err = zw.CreateHeader(dirHeader(name))
		case e.mode&os.ModeSymlink != 0:
			err = writeLink(zw, name, full)
		case e.mode.IsRegular():
			err = writeFile(zw, name, full, e.mode)
		default:
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to pack %s: %w", e.rel, err)
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finish archive: %w", err)
	}
	return nil
}

func collect(root string) ([]packEntry, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to read bundle: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("bundle is not a directory: %s", root)
	}

	var (
		mu      sync.Mutex
		entries []packEntry
	)
	conf := fastwalk.Config{Follow: false}
	err = fastwalk.Walk(&conf, root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == root {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		mu.Lock()
		entries = append(entries, packEntry{rel: filepath.ToSlash(rel), mode: d.Type()})
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk bundle: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].rel < entries[j].rel })
	return entries, nil
}

func dirHeader(name string) *zip.FileHeader {
	h := &zip.FileHeader{Name: name + "/", Method: zip.Store}
	h.SetMode(os.ModeDir | 0o755)
	return h
}

func writeFile(zw *zip.Writer, name, full string, mode os.FileMode) error {
	f, err := os.Open(full)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	h, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	h.Name = name
	h.Method = zip.Deflate

	w, err := zw.CreateHeader(h)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, f)
	return err
}

func writeLink(zw *zip.Writer, name, full string) error {
	target, err := os.Readlink(full)
	if err != nil {
		return err
	}
	h := &zip.FileHeader{Name: name, Method: zip.Store}
	h.SetMode(os.ModeSymlink | 0o777)

	w, err := zw.CreateHeader(h)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, target)
	return err
}
