package forge

import (
	"os"
	"path/filepath"

	"github.com/quasar/pmc/internal/config"
	"github.com/quasar/pmc/internal/fetch"
	"github.com/quasar/pmc/internal/resources"
)

const legacyLibrariesBaseURL = "https://libraries.minecraft.net"

// ResolveLibraries turns p.Libraries into a fetch batch, preferring a
// direct downloads.artifact.url when present and falling back to
// extracting the jar from the installer's own embedded maven/ tree
// (V2, when downloads.artifact.url is empty) or to the library's base
// url plus its Maven path (V1 legacy libraries).
func ResolveLibraries(cctx *config.Context, jar *installerJar, p *Profile) ([]fetch.Entry, error) {
	var entries []fetch.Entry

	for _, lib := range p.Libraries {
		dest := filepath.Join(cctx.Libraries, resources.MavenPath(lib.Name, ""))
		if lib.ArtifactPath != "" {
			dest = filepath.Join(cctx.Libraries, filepath.FromSlash(lib.ArtifactPath))
		}

		if lib.ArtifactURL != "" {
			entries = append(entries, fetch.Entry{URL: lib.ArtifactURL, Dest: dest})
			continue
		}

		embeddedPath := "maven/" + resources.MavenPath(lib.Name, "")
		if lib.ArtifactPath != "" {
			embeddedPath = "maven/" + lib.ArtifactPath
		}
		if data, ok := jar.get(embeddedPath); ok {
			if err := writeEmbeddedLibrary(dest, data); err != nil {
				return nil, err
			}
			continue
		}

		base := lib.URL
		if base == "" {
			base = legacyLibrariesBaseURL
		}
		entries = append(entries, fetch.Entry{URL: base + "/" + resources.MavenPath(lib.Name, ""), Dest: dest})
	}

	return entries, nil
}

func writeEmbeddedLibrary(dest string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return err
	}
	return os.WriteFile(dest, data, 0644)
}
