package catalog

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"

	"github.com/spf13/afero"
)

// ManifestFile is the name of the manifest inside a configuration directory.
const ManifestFile = "versions.xml"

// Manifest names the signature files of a configuration directory.
type Manifest struct {
	XMLName                  xml.Name `xml:"versions"`
	PronomVersion            string   `xml:"pronomVersion"`
	PronomSignature          string   `xml:"pronomSignature"`
	PronomContainerSignature string   `xml:"pronomContainerSignature"`
	FidoExtensionSignature   string   `xml:"fidoExtensionSignature"`
	UpdateScript             string   `xml:"updateScript"`
	UpdateSite               string   `xml:"updateSite"`
}

func DefaultManifest() Manifest {
	return Manifest{
		PronomVersion:            "75",
		PronomSignature:          "formats-v75.xml",
		PronomContainerSignature: "container-signature-20160121.xml",
		FidoExtensionSignature:   "format_extensions.xml",
	}
}

// LoadManifest reads the manifest of dir. A missing manifest, or missing
// entries, fall back to DefaultManifest.
func LoadManifest(fsys afero.Fs, dir string) (*Manifest, error) {
	m := DefaultManifest()

	data, err := afero.ReadFile(fsys, filepath.Join(dir, ManifestFile))
	if errors.Is(err, fs.ErrNotExist) {
		return &m, nil
	}
	if err != nil {
		return nil, err
	}

	var parsed Manifest
	if err := xml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("%s: %w", ManifestFile, err)
	}

	fill := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	fill(&m.PronomVersion, parsed.PronomVersion)
	fill(&m.PronomSignature, parsed.PronomSignature)
	fill(&m.PronomContainerSignature, parsed.PronomContainerSignature)
	fill(&m.FidoExtensionSignature, parsed.FidoExtensionSignature)
	fill(&m.UpdateScript, parsed.UpdateScript)
	fill(&m.UpdateSite, parsed.UpdateSite)
	return &m, nil
}

type ConfigOptions struct {
	// PronomOnly skips the extension overlay.
	PronomOnly bool
	// Extra lists further catalogs overlaid in order.
	Extra  []string
	Logger *slog.Logger
	Cache  *PatternCache
}

// OpenConfigDir loads the catalogs named by the manifest of dir.
func OpenConfigDir(fsys afero.Fs, dir string, opts ConfigOptions) (*Catalog, *Manifest, error) {
	m, err := LoadManifest(fsys, dir)
	if err != nil {
		return nil, nil, err
	}

	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Cache == nil {
		if opts.Cache, err = NewPatternCache(DefaultCacheSize); err != nil {
			return nil, nil, err
		}
	}
	loadOpts := []LoadOption{WithLogger(opts.Logger), WithCache(opts.Cache)}

	c, err := LoadFile(fsys, filepath.Join(dir, m.PronomSignature), loadOpts...)
	if err != nil {
		return nil, nil, err
	}

	var overlays []string
	if !opts.PronomOnly {
		overlays = append(overlays, filepath.Join(dir, m.FidoExtensionSignature))
	}
	overlays = append(overlays, opts.Extra...)

	for _, path := range overlays {
		overlay, err := LoadFile(fsys, path, loadOpts...)
		if err != nil {
			return nil, nil, err
		}

		if c, err = c.Extend(overlay); err != nil {
			return nil, nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	return c, m, nil
}

// ContainerSignaturePath returns the path of the container signature file
// named by m inside dir.
func (m *Manifest) ContainerSignaturePath(dir string) string {
	return filepath.Join(dir, m.PronomContainerSignature)
}
