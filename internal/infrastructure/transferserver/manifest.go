package transferserver

import (
	"fmt"
	"strconv"

	"github.com/GriffinCanCode/applibrary/internal/domain/transfer"
	"howett.net/plist"
)

type manifest struct {
	Items []manifestItem `plist:"items"`
}

type manifestItem struct {
	Assets   []manifestAsset  `plist:"assets"`
	Metadata manifestMetadata `plist:"metadata"`
}

type manifestAsset struct {
	Kind string `plist:"kind"`
	URL  string `plist:"url"`
}

type manifestMetadata struct {
	BundleIdentifier string `plist:"bundle-identifier"`
	BundleVersion    string `plist:"bundle-version"`
	Kind             string `plist:"kind"`
	Title            string `plist:"title"`
}

// Manifest renders the over-the-air install manifest pointing at packageURL.
func Manifest(meta transfer.Metadata, packageURL string) ([]byte, error) {
	m := manifest{
		Items: []manifestItem{{
			Assets: []manifestAsset{{Kind: "software-package", URL: packageURL}},
			Metadata: manifestMetadata{
				BundleIdentifier: meta.ID,
				BundleVersion:    strconv.Itoa(meta.Version),
				Kind:             "software",
				Title:            meta.Name,
			},
		}},
	}

	data, err := plist.MarshalIndent(m, plist.XMLFormat, "\t")
	if err != nil {
		return nil, fmt.Errorf("failed to encode manifest: %w", err)
	}
	return data, nil
}
