package javaprovision

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"runtime"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/quasar/pmc/internal/fetch"
	"github.com/quasar/pmc/internal/pmcerr"
)

const jvmManifestURL = "https://launchermeta.mojang.com/v1/products/java-runtime/2ec0cc96c44e5a76b9c8b7c39df7210883d12871/all.json"

// mojangPlatform maps a runtime.GOOS/GOARCH pair to the key Mojang's JVM
// manifest indexes components under.
func mojangPlatform() string {
	switch runtime.GOOS {
	case "windows":
		if runtime.GOARCH == "386" {
			return "windows-x86"
		}
		return "windows-x64"
	case "darwin":
		if runtime.GOARCH == "arm64" {
			return "mac-os-arm64"
		}
		return "mac-os"
	default:
		if runtime.GOARCH == "arm64" {
			return "linux-arm64"
		}
		if runtime.GOARCH == "arm" {
			return "linux-arm32"
		}
		return "linux"
	}
}

// manifestEntry is one component's available build, as listed under a
// platform key in the all.json top-level manifest.
type manifestEntry struct {
	Manifest struct {
		SHA1 string `json:"sha1"`
		Size int64  `json:"size"`
		URL  string `json:"url"`
	} `json:"manifest"`
	Version struct {
		Name string `json:"name"`
	} `json:"version"`
}

// componentManifest is the per-component file listing fetched from a
// manifestEntry's Manifest.URL.
type componentManifest struct {
	Files map[string]struct {
		Type       string `json:"type"`
		Executable bool   `json:"executable"`
		Downloads  struct {
			Raw struct {
				SHA1 string `json:"sha1"`
				Size int64  `json:"size"`
				URL  string `json:"url"`
			} `json:"raw"`
		} `json:"downloads"`
	} `json:"files"`
}

// Client fetches Mojang's own JVM distribution manifest. It is a distinct
// collaborator from internal/fetch.Engine because it needs to parse JSON
// responses, not just transfer bytes.
type Client struct {
	http *http.Client
}

// NewClient builds a Client on a retryablehttp transport (up to 3
// retries, 1-10s backoff).
func NewClient() *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.RetryWaitMin = 1 * time.Second
	rc.RetryWaitMax = 10 * time.Second
	rc.Logger = nil
	return &Client{http: rc.StandardClient()}
}

// ResolveComponent fetches the manifest for component on the current
// platform and returns the fetch.Entry list needed to materialize it
// under destDir, plus the resolved build version name. Only entries of
// type "file" are returned; "link" entries are skipped, so no symlinks
// are created for them.
func (c *Client) ResolveComponent(ctx context.Context, component, destDir string) ([]fetch.Entry, string, error) {
	all, err := c.fetchAllManifest(ctx)
	if err != nil {
		return nil, "", pmcerr.Wrap(pmcerr.KindJVMNotFound, err, "fetching jvm manifest")
	}

	platformEntries, ok := all[mojangPlatform()]
	if !ok {
		return nil, "", pmcerr.New(pmcerr.KindJVMNotFound, "no jvm manifest entries for platform "+mojangPlatform())
	}
	builds, ok := platformEntries[component]
	if !ok || len(builds) == 0 {
		return nil, "", pmcerr.New(pmcerr.KindJVMNotFound, "no builds for component "+component)
	}
	build := builds[0]

	comp, err := c.fetchComponentManifest(ctx, build.Manifest.URL)
	if err != nil {
		return nil, "", pmcerr.Wrap(pmcerr.KindJVMNotFound, err, "fetching component manifest for "+component)
	}

	var entries []fetch.Entry
	for name, file := range comp.Files {
		if file.Type != "file" {
			continue
		}
		entries = append(entries, fetch.Entry{
			URL:        file.Downloads.Raw.URL,
			Dest:       filepath.Join(destDir, filepath.FromSlash(name)),
			SHA1:       file.Downloads.Raw.SHA1,
			Size:       file.Downloads.Raw.Size,
			Executable: file.Executable,
		})
	}

	return entries, build.Version.Name, nil
}

func (c *Client) fetchAllManifest(ctx context.Context) (map[string]map[string][]manifestEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, jvmManifestURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var all map[string]map[string][]manifestEntry
	if err := json.NewDecoder(resp.Body).Decode(&all); err != nil {
		return nil, err
	}
	return all, nil
}

func (c *Client) fetchComponentManifest(ctx context.Context, url string) (*componentManifest, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var comp componentManifest
	if err := json.NewDecoder(resp.Body).Decode(&comp); err != nil {
		return nil, err
	}
	return &comp, nil
}
