package transferserver

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/GriffinCanCode/applibrary/internal/domain/transfer"
	"github.com/GriffinCanCode/applibrary/internal/shared/fixtures"
	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"howett.net/plist"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func sampleMeta(t *testing.T, mode transfer.Mode) transfer.Metadata {
	t.Helper()
	app := fixtures.SampleApp()
	app.Files["Frameworks/Lib.dylib"] = "lib"
	return transfer.Metadata{
		ID:         app.BundleIdentifier,
		Version:    3,
		Name:       app.Name,
		BundlePath: fixtures.WriteBundleDir(t, t.TempDir(), app),
		Mode:       mode,
	}
}

func get(t *testing.T, rawURL string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(rawURL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func baseOf(h transfer.Handle) string {
	return h.(*instance).base
}

func TestStartShareServesPackage(t *testing.T) {
	srv := New(Options{Host: "127.0.0.1"})
	ctx := context.Background()

	h, err := srv.Start(ctx, sampleMeta(t, transfer.ModeShare))
	require.NoError(t, err)
	defer srv.Shutdown(ctx, h)

	assert.True(t, strings.HasPrefix(h.URL(), "http://127.0.0.1:"))
	assert.True(t, strings.HasSuffix(h.URL(), "/app.ipa"))
	assert.Equal(t, 1, srv.Active())

	resp, body := get(t, h.URL())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), `filename="Sample.ipa"`)

	zr, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	require.NoError(t, err)

	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	assert.Equal(t, []string{
		"Payload/",
		"Payload/Sample.app/",
		"Payload/Sample.app/Frameworks/",
		"Payload/Sample.app/Frameworks/Lib.dylib",
		"Payload/Sample.app/Info.plist",
		"Payload/Sample.app/Sample",
	}, names)
}

func TestStartInstallServesManifest(t *testing.T) {
	srv := New(Options{Host: "127.0.0.1", AdvertiseHost: "127.0.0.1"})
	ctx := context.Background()

	h, err := srv.Start(ctx, sampleMeta(t, transfer.ModeInstall))
	require.NoError(t, err)
	defer srv.Shutdown(ctx, h)

	u, err := url.Parse(h.URL())
	require.NoError(t, err)
	assert.Equal(t, "itms-services", u.Scheme)
	manifestURL := u.Query().Get("url")
	assert.Equal(t, baseOf(h)+"/manifest.plist", manifestURL)

	resp, body := get(t, manifestURL)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var m manifest
	_, err = plist.Unmarshal(body, &m)
	require.NoError(t, err)
	require.Len(t, m.Items, 1)
	assert.Equal(t, "com.example.sample", m.Items[0].Metadata.BundleIdentifier)
	assert.Equal(t, "3", m.Items[0].Metadata.BundleVersion)
	assert.Equal(t, "Sample", m.Items[0].Metadata.Title)
	assert.Equal(t, baseOf(h)+"/app.ipa", m.Items[0].Assets[0].URL)
}

func TestShareManifestNotServed(t *testing.T) {
	srv := New(Options{})
	ctx := context.Background()

	h, err := srv.Start(ctx, sampleMeta(t, transfer.ModeShare))
	require.NoError(t, err)
	defer srv.Shutdown(ctx, h)

	resp, _ := get(t, baseOf(h)+"/manifest.plist")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPINProtectsPackage(t *testing.T) {
	srv := New(Options{})
	ctx := context.Background()

	meta := sampleMeta(t, transfer.ModeShare)
	meta.PIN = "4321"
	h, err := srv.Start(ctx, meta)
	require.NoError(t, err)
	defer srv.Shutdown(ctx, h)

	resp, _ := get(t, h.URL())
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = get(t, h.URL()+"?pin=0000")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = get(t, h.URL()+"?pin=4321")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := get(t, baseOf(h)+"/status")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"pin_required":true`)
	assert.NotContains(t, string(body), "4321")
}

func TestShutdownIsIdempotent(t *testing.T) {
	srv := New(Options{})
	ctx := context.Background()

	h, err := srv.Start(ctx, sampleMeta(t, transfer.ModeShare))
	require.NoError(t, err)

	require.NoError(t, srv.Shutdown(ctx, h))
	require.NoError(t, srv.Shutdown(ctx, h))
	assert.Zero(t, srv.Active())

	_, err = http.Get(h.URL())
	assert.Error(t, err, "listener should be closed")
}

func TestStartRejectsInvalidMetadata(t *testing.T) {
	srv := New(Options{})
	ctx := context.Background()

	_, err := srv.Start(ctx, transfer.Metadata{Mode: transfer.ModeShare})
	assert.ErrorIs(t, err, transfer.ErrEmptyBundlePath)

	_, err = srv.Start(ctx, transfer.Metadata{BundlePath: "/x", Mode: "other"})
	assert.ErrorIs(t, err, transfer.ErrInvalidMode)

	assert.Zero(t, srv.Active())
}

func TestCloseStopsAll(t *testing.T) {
	srv := New(Options{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := srv.Start(ctx, sampleMeta(t, transfer.ModeShare))
		require.NoError(t, err)
	}
	require.Equal(t, 3, srv.Active())
	require.NoError(t, srv.Close(ctx))
	assert.Zero(t, srv.Active())
}

func TestPackBundleKeepsSymlinks(t *testing.T) {
	app := fixtures.SampleApp()
	root := fixtures.WriteBundleDir(t, t.TempDir(), app)
	require.NoError(t, os.Symlink("Sample", filepath.Join(root, "Alias")))

	var buf bytes.Buffer
	require.NoError(t, PackBundle(&buf, root, "Sample.app"))

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)

	var link *zip.File
	for _, f := range zr.File {
		if f.Name == "Payload/Sample.app/Alias" {
			link = f
		}
	}
	require.NotNil(t, link)
	assert.NotZero(t, link.Mode()&os.ModeSymlink)

	rc, err := link.Open()
	require.NoError(t, err)
	target, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Equal(t, "Sample", string(target))
}

func TestPackBundleMissingDirectory(t *testing.T) {
	err := PackBundle(io.Discard, filepath.Join(t.TempDir(), "missing.app"), "missing.app")
	assert.Error(t, err)
}
