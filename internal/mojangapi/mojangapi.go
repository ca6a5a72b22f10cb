// Package mojangapi resolves Mojang's version manifest and per-version
// details, and materializes version descriptors on disk so
// internal/metadata.LoadChain's NeedVersionFunc hook can resolve the
// Mojang layer of an inheritance chain (spec.md §4.1's "an external
// collaborator ... may populate the file").
package mojangapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/quasar/pmc/internal/config"
	"github.com/quasar/pmc/internal/metadata"
	"github.com/quasar/pmc/internal/pmcerr"
)

// var, not const: tests point this at an httptest server.
var versionManifestURL = "https://piston-meta.mojang.com/mc/game/version_manifest_v2.json"

// VersionManifest is the shape of version_manifest_v2.json.
type VersionManifest struct {
	Latest   LatestVersions    `json:"latest"`
	Versions []ManifestVersion `json:"versions"`
}

// LatestVersions names the current release/snapshot ids, resolving the
// "release"/"snapshot" CLI aliases from spec.md §6.
type LatestVersions struct {
	Release  string `json:"release"`
	Snapshot string `json:"snapshot"`
}

// ManifestVersion is one entry of the manifest's versions list: an id, a
// type, and a URL to that version's own descriptor JSON.
type ManifestVersion struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	URL  string `json:"url"`
}

// Client fetches and caches the Mojang version manifest.
type Client struct {
	http        *http.Client
	manifest    *VersionManifest
	fetchedAt   time.Time
	manifestTTL time.Duration
}

// NewClient builds a Client on a retryablehttp transport (up to 3
// retries), as internal/fetch and internal/javaprovision also use; the
// msa, fabric and forge clients use a plain http.Client instead.
func NewClient() *Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 3
	retryClient.Logger = nil
	return &Client{
		http:        retryClient.StandardClient(),
		manifestTTL: 5 * time.Minute,
	}
}

// Manifest returns the version manifest, refetching only once manifestTTL
// has elapsed since the last fetch.
func (c *Client) Manifest(ctx context.Context) (*VersionManifest, error) {
	if c.manifest != nil && time.Since(c.fetchedAt) < c.manifestTTL {
		return c.manifest, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, versionManifestURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, pmcerr.Wrap(pmcerr.KindVersionNotFound, err, "fetching version manifest")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, pmcerr.New(pmcerr.KindVersionNotFound, fmt.Sprintf("version manifest status %d", resp.StatusCode))
	}

	var manifest VersionManifest
	if err := json.NewDecoder(resp.Body).Decode(&manifest); err != nil {
		return nil, pmcerr.Wrap(pmcerr.KindMalformedDescriptor, err, "decoding version manifest")
	}

	c.manifest = &manifest
	c.fetchedAt = time.Now()
	return &manifest, nil
}

// ResolveAlias turns "release"/"snapshot" into a concrete version id,
// passing any other id through unchanged.
func (c *Client) ResolveAlias(ctx context.Context, id string) (string, error) {
	switch id {
	case "release", "snapshot":
	default:
		return id, nil
	}

	manifest, err := c.Manifest(ctx)
	if err != nil {
		return "", err
	}
	if id == "release" {
		return manifest.Latest.Release, nil
	}
	return manifest.Latest.Snapshot, nil
}

// find locates id's manifest entry.
func (c *Client) find(ctx context.Context, id string) (*ManifestVersion, error) {
	manifest, err := c.Manifest(ctx)
	if err != nil {
		return nil, err
	}
	for i := range manifest.Versions {
		if manifest.Versions[i].ID == id {
			return &manifest.Versions[i], nil
		}
	}
	return nil, pmcerr.WithPayload(pmcerr.KindVersionNotFound, pmcerr.VersionNotFoundPayload{ID: id}, "version not found in manifest: "+id)
}

// fetchDescriptor downloads the raw descriptor JSON for a manifest entry.
func (c *Client) fetchDescriptor(ctx context.Context, mv *ManifestVersion) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mv.URL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, pmcerr.Wrap(pmcerr.KindVersionNotFound, err, "fetching version details: "+mv.ID)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, pmcerr.New(pmcerr.KindVersionNotFound, fmt.Sprintf("version details status %d for %s", resp.StatusCode, mv.ID))
	}

	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, pmcerr.Wrap(pmcerr.KindVersionNotFound, err, "reading version details: "+mv.ID)
	}

	var probe metadata.Descriptor
	if err := json.Unmarshal(buf, &probe); err != nil {
		return nil, pmcerr.Wrap(pmcerr.KindMalformedDescriptor, err, "decoding version details: "+mv.ID)
	}
	return buf, nil
}

// NeedVersion adapts Client into a metadata.NeedVersionFunc: it resolves
// id against the manifest, downloads its descriptor, and writes it to
// disk write-then-rename so a concurrent reader never observes a partial
// file (spec.md §3's descriptor invariant).
func (c *Client) NeedVersion(ctx context.Context, cctx *config.Context) func(id string) (bool, error) {
	return func(id string) (bool, error) {
		mv, err := c.find(ctx, id)
		if err != nil {
			return false, err
		}

		data, err := c.fetchDescriptor(ctx, mv)
		if err != nil {
			return false, err
		}

		if err := writeDescriptorAtomic(cctx.VersionJSONPath(id), data); err != nil {
			return false, pmcerr.Wrap(pmcerr.KindVersionNotFound, err, "writing version descriptor: "+id)
		}
		return true, nil
	}
}

func writeDescriptorAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
