package forge

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/Jeffail/gabs"

	"github.com/quasar/pmc/internal/config"
	"github.com/quasar/pmc/internal/events"
	"github.com/quasar/pmc/internal/metadata"
	"github.com/quasar/pmc/internal/pmcerr"
)

// installerJar is the parsed installer archive kept in memory for the
// duration of an install — Forge installer jars are a few MB, small
// enough that loading them whole avoids juggling a temp file just to
// read a handful of named entries out of it.
type installerJar struct {
	files map[string][]byte
}

func fetchInstallerJar(ctx context.Context, url string) (*installerJar, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	client := &http.Client{Timeout: 5 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		return nil, pmcerr.Wrap(pmcerr.KindForgeInstallerNotFound, err, "downloading installer jar")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, pmcerr.New(pmcerr.KindForgeInstallerNotFound, fmt.Sprintf("status %d", resp.StatusCode))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, pmcerr.Wrap(pmcerr.KindForgeInstallerNotFound, err, "reading installer jar")
	}
	return parseInstallerJar(data)
}

func parseInstallerJar(data []byte) (*installerJar, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, pmcerr.Wrap(pmcerr.KindForgeInstallerNotFound, err, "installer is not a valid zip")
	}

	jar := &installerJar{files: map[string][]byte{}}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, pmcerr.Wrap(pmcerr.KindForgeInstallerNotFound, err, "reading "+f.Name)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, pmcerr.Wrap(pmcerr.KindForgeInstallerNotFound, err, "reading "+f.Name)
		}
		jar.files[f.Name] = content
	}
	return jar, nil
}

func (j *installerJar) get(name string) ([]byte, bool) {
	b, ok := j.files[name]
	return b, ok
}

// Processor is one declared subprocess step of a V2 install profile.
type Processor struct {
	Jar        string
	Classpath  []string
	Args       []string
	Outputs    map[string]string // output file -> expected SHA-1
	SidesOnly  []string          // "client"/"server"; empty means both
}

// Profile is the installation plan extracted from install_profile.json
// (and, for V2, the separate version.json sitting next to it).
type Profile struct {
	Legacy     bool
	ForgeID    string
	Descriptor *metadata.Descriptor
	Libraries  []profileLibrary
	Processors []Processor
	Data       map[string]dataEntry
	ArtifactID string // the Forge/NeoForge jar's own maven coordinate
}

// profileLibrary is one library entry from either scheme's libraries
// list; Legacy carries the old {url, clientreq, serverreq} shape.
type profileLibrary struct {
	Name        string
	URL         string
	ArtifactURL string
	ArtifactPath string
	ClientReq   bool
	Legacy      bool
}

type dataEntry struct {
	Client string
	Server string
}

// ParseProfile reads install_profile.json (and, for V2, version.json) out
// of jar and classifies the installer as V1 (legacy) or V2 (modern),
// rewriting the resulting descriptor's id to forgeID.
func ParseProfile(jar *installerJar, forgeID, mcVersion string) (*Profile, error) {
	raw, ok := jar.get("install_profile.json")
	if !ok {
		return nil, pmcerr.New(pmcerr.KindInstallProfileNotFound, "install_profile.json")
	}
	root, err := gabs.ParseJSON(raw)
	if err != nil {
		return nil, pmcerr.Wrap(pmcerr.KindInstallProfileIncoherent, err, "parsing install_profile.json")
	}

	if root.ExistsP("versionInfo") {
		return parseLegacyProfile(jar, root, forgeID, mcVersion)
	}
	return parseModernProfile(jar, root, forgeID, mcVersion)
}

func parseLegacyProfile(jar *installerJar, root *gabs.Container, forgeID, mcVersion string) (*Profile, error) {
	versionInfo := root.Path("versionInfo")
	install := root.Path("install")
	if versionInfo == nil || install == nil {
		return nil, pmcerr.New(pmcerr.KindInstallProfileIncoherent, "missing versionInfo/install section")
	}

	desc, err := descriptorFromContainer(versionInfo)
	if err != nil {
		return nil, err
	}
	desc.ID = forgeID
	desc.InheritsFrom = mcVersion

	artifactID := stringAt(install, "path")
	filePath := stringAt(install, "filePath")

	p := &Profile{
		Legacy:     true,
		ForgeID:    forgeID,
		Descriptor: desc,
		ArtifactID: artifactID,
		Data:       map[string]dataEntry{"INSTALLER_JAR": {Client: filePath, Server: filePath}},
	}

	for _, lib := range childrenAt(versionInfo, "libraries") {
		name := stringAt(lib, "name")
		if name == "" {
			continue
		}
		if lib.ExistsP("downloads.artifact.url") {
			p.Libraries = append(p.Libraries, profileLibrary{
				Name:         name,
				ArtifactURL:  stringAt(lib, "downloads.artifact.url"),
				ArtifactPath: stringAt(lib, "downloads.artifact.path"),
			})
			continue
		}
		clientReq := boolAt(lib, "clientreq")
		serverReq := boolAt(lib, "serverreq")
		if !clientReq && !serverReq {
			continue
		}
		p.Libraries = append(p.Libraries, profileLibrary{
			Name:      name,
			URL:       stringAt(lib, "url"),
			ClientReq: clientReq,
			Legacy:    true,
		})
	}

	return p, nil
}

func parseModernProfile(jar *installerJar, root *gabs.Container, forgeID, mcVersion string) (*Profile, error) {
	versionRaw, ok := jar.get("version.json")
	if !ok {
		return nil, pmcerr.New(pmcerr.KindInstallProfileNotFound, "version.json")
	}
	desc, err := metadataUnmarshal(versionRaw)
	if err != nil {
		return nil, pmcerr.Wrap(pmcerr.KindMalformedDescriptor, err, "parsing version.json")
	}
	desc.ID = forgeID
	desc.InheritsFrom = mcVersion

	p := &Profile{
		ForgeID:    forgeID,
		Descriptor: desc,
		ArtifactID: stringAt(root, "path"),
		Data:       map[string]dataEntry{},
	}

	for _, lib := range childrenAt(root, "libraries") {
		name := stringAt(lib, "name")
		if name == "" {
			continue
		}
		p.Libraries = append(p.Libraries, profileLibrary{
			Name:         name,
			ArtifactURL:  stringAt(lib, "downloads.artifact.url"),
			ArtifactPath: stringAt(lib, "downloads.artifact.path"),
		})
	}

	for k, v := range childrenMapAt(root, "data") {
		p.Data[k] = dataEntry{Client: stringAt(v, "client"), Server: stringAt(v, "server")}
	}

	for _, proc := range childrenAt(root, "processors") {
		var sideNames []string
		for _, s := range childrenOf(proc, "sides") {
			if str, ok := s.Data().(string); ok {
				sideNames = append(sideNames, str)
			}
		}

		var classpath []string
		for _, item := range childrenOf(proc, "classpath") {
			if str, ok := item.Data().(string); ok {
				classpath = append(classpath, str)
			}
		}

		var args []string
		for _, item := range childrenOf(proc, "args") {
			if str, ok := item.Data().(string); ok {
				args = append(args, str)
			}
		}

		outputs := map[string]string{}
		for k, v := range childrenMapAt(proc, "outputs") {
			if str, ok := v.Data().(string); ok {
				outputs[k] = str
			}
		}

		p.Processors = append(p.Processors, Processor{
			Jar:       stringAt(proc, "jar"),
			Classpath: classpath,
			Args:      args,
			Outputs:   outputs,
			SidesOnly: sideNames,
		})
	}

	return p, nil
}

// childrenAt/childrenOf/childrenMapAt/stringAt/boolAt guard against a
// missing path: gabs' own Path/Search returns a nil *Container for a
// missing key, and every accessor on a nil *Container panics, so install
// profiles with an absent optional section must go through these instead
// of chaining Path(...).Children() directly.
func childrenAt(c *gabs.Container, path string) []*gabs.Container {
	if c == nil {
		return nil
	}
	return childrenOf(c.Path(path), "")
}

func childrenOf(c *gabs.Container, path string) []*gabs.Container {
	if c == nil {
		return nil
	}
	if path != "" {
		c = c.Path(path)
		if c == nil {
			return nil
		}
	}
	out, _ := c.Children()
	return out
}

func childrenMapAt(c *gabs.Container, path string) map[string]*gabs.Container {
	if c == nil {
		return nil
	}
	sub := c.Path(path)
	if sub == nil {
		return nil
	}
	out, _ := sub.ChildrenMap()
	return out
}

func stringAt(c *gabs.Container, path string) string {
	if c == nil {
		return ""
	}
	return strOrEmpty(c.Path(path))
}

func boolAt(c *gabs.Container, path string) bool {
	if c == nil {
		return false
	}
	sub := c.Path(path)
	if sub == nil {
		return false
	}
	b, _ := sub.Data().(bool)
	return b
}

func strOrEmpty(c *gabs.Container) string {
	if c == nil {
		return ""
	}
	s, _ := c.Data().(string)
	return s
}

// descriptorFromContainer re-marshals a gabs container back to JSON and
// decodes it as a metadata.Descriptor, reusing the same strict decoder
// every other version JSON goes through.
func descriptorFromContainer(c *gabs.Container) (*metadata.Descriptor, error) {
	return metadataUnmarshal(c.Bytes())
}

func metadataUnmarshal(data []byte) (*metadata.Descriptor, error) {
	var desc metadata.Descriptor
	if err := json.Unmarshal(data, &desc); err != nil {
		return nil, err
	}
	return &desc, nil
}

func writeDescriptor(cctx *config.Context, desc *metadata.Descriptor) error {
	dir := cctx.VersionDir(desc.ID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return pmcerr.Wrap(pmcerr.KindMalformedDescriptor, err, "creating version directory")
	}
	data, err := json.MarshalIndent(desc, "", "  ")
	if err != nil {
		return pmcerr.Wrap(pmcerr.KindMalformedDescriptor, err, "marshaling forge descriptor")
	}
	dest := cctx.VersionJSONPath(desc.ID)
	tmp := dest + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return pmcerr.Wrap(pmcerr.KindMalformedDescriptor, err, "writing forge descriptor")
	}
	if err := os.Rename(tmp, dest); err != nil {
		return pmcerr.Wrap(pmcerr.KindMalformedDescriptor, err, "renaming forge descriptor")
	}
	return nil
}

// Install writes the profile's descriptor to disk. Library materialization
// and (for V2) processor execution are separate steps (ResolveLibraries,
// RunProcessors) so each can report its own progress through d rather than
// being folded into one opaque call.
func Install(ctx context.Context, cctx *config.Context, jar *installerJar, p *Profile, d *events.Dispatcher) error {
	if err := writeDescriptor(cctx, p.Descriptor); err != nil {
		return err
	}
	d.Emit(events.Event{Kind: events.KindForgeInstalled, Message: p.ForgeID})
	return nil
}
