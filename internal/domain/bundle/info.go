package bundle

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/GriffinCanCode/applibrary/internal/shared/types"
	"howett.net/plist"
)

// InfoPlist is the metadata file every application bundle carries.
const InfoPlist = "Info.plist"

// ErrNotBundle is returned when a directory has no Info.plist.
var ErrNotBundle = errors.New("not an application bundle")

// Info is the typed subset of Info.plist the library cares about.
// Defaults are applied once by ReadInfo.
type Info struct {
	Name             string
	BundleIdentifier string
	Version          string
	VersionNumber    int
	Executable       string
}

type rawInfo struct {
	DisplayName      string `plist:"CFBundleDisplayName"`
	Name             string `plist:"CFBundleName"`
	BundleIdentifier string `plist:"CFBundleIdentifier"`
	ShortVersion     string `plist:"CFBundleShortVersionString"`
	BuildVersion     string `plist:"CFBundleVersion"`
	Executable       string `plist:"CFBundleExecutable"`
}

// ReadInfo parses appDir/Info.plist. XML and binary plists are both accepted.
func ReadInfo(appDir string) (*Info, error) {
	data, err := os.ReadFile(filepath.Join(appDir, InfoPlist))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotBundle, appDir)
		}
		return nil, fmt.Errorf("failed to read %s: %w", InfoPlist, err)
	}
	return ParseInfo(data)
}

// ParseInfo decodes Info.plist bytes and fills in defaults.
func ParseInfo(data []byte) (*Info, error) {
	var raw rawInfo
	if _, err := plist.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", InfoPlist, err)
	}

	info := &Info{
		Name:             firstNonEmpty(raw.DisplayName, raw.Name, types.DefaultAppName),
		BundleIdentifier: firstNonEmpty(raw.BundleIdentifier, types.DefaultBundleIdentifier),
		Version:          firstNonEmpty(raw.ShortVersion, raw.BuildVersion, types.DefaultVersion),
		Executable:       raw.Executable,
	}
	info.VersionNumber = ParseVersion(info.Version)
	return info, nil
}

// ParseVersion converts a declared version to the integer used by the
// installer handle. Anything that is not a plain integer yields 1.
func ParseVersion(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 1
	}
	return n
}

// DirName returns the directory name used when installing a bundle.
func (i *Info) DirName() string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', 0:
			return '_'
		}
		return r
	}, i.Name)
	name = strings.Trim(name, ". ")
	if name == "" {
		name = types.DefaultAppName
	}
	return name + ".app"
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
