// Package fabric implements the Fabric-family installer (spec.md §4.9):
// Fabric, Quilt, LegacyFabric and Babric all expose the same
// loader-version-list/profile-json API shape, parameterized by meta
// server and version-id prefix, so one client serves all four.
package fabric

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/quasar/pmc/internal/config"
	"github.com/quasar/pmc/internal/events"
	"github.com/quasar/pmc/internal/metadata"
	"github.com/quasar/pmc/internal/pmcerr"
)

// Family identifies one of the four Fabric-shaped loader ecosystems.
type Family string

const (
	Fabric       Family = "fabric"
	Quilt        Family = "quilt"
	LegacyFabric Family = "legacyfabric"
	Babric       Family = "babric"
)

// familyConfig carries the per-family meta server and the id prefix used
// when synthesizing a descriptor id.
type familyConfig struct {
	metaURL string
	prefix  string
}

var familyConfigs = map[Family]familyConfig{
	Fabric:       {metaURL: "https://meta.fabricmc.net/v2/versions/loader", prefix: "fabric"},
	Quilt:        {metaURL: "https://meta.quiltmc.org/v3/versions/loader", prefix: "quilt"},
	LegacyFabric: {metaURL: "https://meta.legacyfabric.net/v2/versions/loader", prefix: "legacyfabric"},
	Babric:       {metaURL: "https://meta.glass-launcher.net/v2/versions/loader", prefix: "babric"},
}

// LoaderVersion is one entry of a family's loader version list.
type LoaderVersion struct {
	Version string `json:"version"`
	Stable  bool   `json:"stable"`
}

type loaderListEntry struct {
	Loader LoaderVersion `json:"loader"`
}

// profileLibrary mirrors one entry of the Fabric profile JSON's
// libraries array; only the plain (non-natives) artifact shape is used
// by loader libraries.
type profileLibrary struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// profile is the Fabric meta server's "profile/json" response: a
// ready-to-inherit version descriptor fragment.
type profile struct {
	ID           string           `json:"id"`
	InheritsFrom string           `json:"inheritsFrom"`
	MainClass    string           `json:"mainClass"`
	Libraries    []profileLibrary `json:"libraries"`
	Arguments    *metadata.Arguments `json:"arguments,omitempty"`
}

// Client resolves and installs one Fabric-family loader.
type Client struct {
	http   *http.Client
	family Family
}

// NewClient builds a Client for family.
func NewClient(family Family) *Client {
	return &Client{
		http:   &http.Client{Timeout: 30 * time.Second},
		family: family,
	}
}

// LoaderVersions returns every loader version the meta server publishes
// for gameVersion, newest first (the server's own declared order).
func (c *Client) LoaderVersions(ctx context.Context, gameVersion string) ([]LoaderVersion, error) {
	cfg := familyConfigs[c.family]
	url := fmt.Sprintf("%s/%s", cfg.metaURL, gameVersion)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, pmcerr.Wrap(pmcerr.KindFabricGameNotFound, err, "fetching loader versions for "+gameVersion)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, pmcerr.New(pmcerr.KindFabricGameNotFound, gameVersion)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, pmcerr.New(pmcerr.KindFabricGameNotFound, fmt.Sprintf("%s: status %d", gameVersion, resp.StatusCode))
	}

	var entries []loaderListEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, pmcerr.Wrap(pmcerr.KindFabricGameNotFound, err, "decoding loader version list")
	}

	out := make([]LoaderVersion, len(entries))
	for i, e := range entries {
		out[i] = e.Loader
	}
	return out, nil
}

// ResolveLoaderVersion turns requested ("", "-latest", "-recommended", or
// a literal version) into a concrete version string present in the
// meta server's list.
func (c *Client) ResolveLoaderVersion(ctx context.Context, gameVersion, requested string) (string, error) {
	versions, err := c.LoaderVersions(ctx, gameVersion)
	if err != nil {
		return "", err
	}
	if len(versions) == 0 {
		return "", pmcerr.New(pmcerr.KindFabricLoaderNotFound, gameVersion)
	}

	switch requested {
	case "", "-latest":
		return versions[0].Version, nil
	case "-recommended":
		for _, v := range versions {
			if v.Stable {
				return v.Version, nil
			}
		}
		return versions[0].Version, nil
	}

	for _, v := range versions {
		if v.Version == requested {
			return v.Version, nil
		}
	}
	return "", pmcerr.New(pmcerr.KindFabricLoaderNotFound, requested)
}

// fetchProfile downloads the profile JSON for a resolved game/loader pair.
func (c *Client) fetchProfile(ctx context.Context, gameVersion, loaderVersion string) (*profile, error) {
	cfg := familyConfigs[c.family]
	url := fmt.Sprintf("%s/%s/%s/profile/json", cfg.metaURL, gameVersion, loaderVersion)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, pmcerr.Wrap(pmcerr.KindFabricLoaderNotFound, err, "fetching loader profile")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, pmcerr.New(pmcerr.KindFabricLoaderNotFound, fmt.Sprintf("profile status %d", resp.StatusCode))
	}

	var p profile
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, pmcerr.Wrap(pmcerr.KindMalformedDescriptor, err, "decoding loader profile")
	}
	return &p, nil
}

// Install resolves loaderVersion (possibly an alias), fetches the
// profile, synthesizes a descriptor inheriting from gameVersion, writes
// it to cctx's versions directory, and returns it. The caller (the base
// installer) is responsible for resolving and fetching the descriptor's
// libraries the same way it would for any other version — this function
// only produces the descriptor, since that resolution is identical for
// every loader family and already lives in internal/resources.
func (c *Client) Install(ctx context.Context, cctx *config.Context, gameVersion, loaderVersion string, d *events.Dispatcher) (*metadata.Descriptor, error) {
	resolved, err := c.ResolveLoaderVersion(ctx, gameVersion, loaderVersion)
	if err != nil {
		return nil, err
	}

	cfg := familyConfigs[c.family]
	id := fmt.Sprintf("%s-%s-%s", cfg.prefix, gameVersion, resolved)

	d.Emit(events.Event{Kind: events.KindFabricFetchVersion, Message: id})

	p, err := c.fetchProfile(ctx, gameVersion, resolved)
	if err != nil {
		return nil, err
	}

	libs := make([]metadata.Library, len(p.Libraries))
	for i, l := range p.Libraries {
		libs[i] = metadata.Library{Name: l.Name, URL: l.URL}
	}

	desc := &metadata.Descriptor{
		ID:           id,
		InheritsFrom: gameVersion,
		MainClass:    p.MainClass,
		Libraries:    libs,
		Arguments:    p.Arguments,
	}

	if err := writeDescriptor(cctx, desc); err != nil {
		return nil, err
	}
	return desc, nil
}

func writeDescriptor(cctx *config.Context, desc *metadata.Descriptor) error {
	dir := cctx.VersionDir(desc.ID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return pmcerr.Wrap(pmcerr.KindMalformedDescriptor, err, "creating version directory")
	}
	data, err := json.MarshalIndent(desc, "", "  ")
	if err != nil {
		return pmcerr.Wrap(pmcerr.KindMalformedDescriptor, err, "marshaling synthesized descriptor")
	}
	dest := cctx.VersionJSONPath(desc.ID)
	tmp := dest + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return pmcerr.Wrap(pmcerr.KindMalformedDescriptor, err, "writing synthesized descriptor")
	}
	if err := os.Rename(tmp, dest); err != nil {
		return pmcerr.Wrap(pmcerr.KindMalformedDescriptor, err, "renaming synthesized descriptor")
	}
	return nil
}
