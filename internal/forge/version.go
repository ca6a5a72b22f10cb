// Package forge implements the Forge-family installer (spec.md §4.9):
// resolving a loader version (possibly aliased), fetching the installer
// jar, and running either the legacy (V1) or modern (V2) installation
// scheme against it.
package forge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/quasar/pmc/internal/pmcerr"
)

// Loader selects which maven-metadata shape to resolve versions from.
type Loader string

const (
	Forge    Loader = "forge"
	NeoForge Loader = "neoforge"
)

// var, not const: tests point these at an httptest server.
var (
	forgePromotionsURL  = "https://files.minecraftforge.net/net/minecraftforge/forge/promotions_slim.json"
	neoForgeVersionsURL = "https://maven.neoforged.net/api/maven/versions/releases/net/neoforged/neoforge"
)

// VersionClient resolves Forge/NeoForge loader version aliases against
// the family's published metadata.
type VersionClient struct {
	http   *http.Client
	loader Loader
}

// NewVersionClient builds a VersionClient for loader.
func NewVersionClient(loader Loader) *VersionClient {
	return &VersionClient{
		http:   &http.Client{Timeout: 30 * time.Second},
		loader: loader,
	}
}

// forgePromotions is the shape of promotions_slim.json: a flat map whose
// keys are "<mcVersion>-latest" / "<mcVersion>-recommended".
type forgePromotions struct {
	Promos map[string]string `json:"promos"`
}

var neoForgeVersionPattern = regexp.MustCompile(`^(\d+)\.(\d+)\.(\d+)(?:-(.+))?$`)

// ResolveVersion turns requested ("", "-latest", "-recommended", or a
// literal loader version) into the concrete loader version string (just
// the loader's own version component, e.g. "47.1.0", not prefixed by the
// Minecraft version).
func (c *VersionClient) ResolveVersion(ctx context.Context, mcVersion, requested string) (string, error) {
	switch c.loader {
	case Forge:
		return c.resolveForge(ctx, mcVersion, requested)
	case NeoForge:
		return c.resolveNeoForge(ctx, mcVersion, requested)
	default:
		return "", pmcerr.New(pmcerr.KindForgeLatestNotFound, "unknown loader family")
	}
}

func (c *VersionClient) resolveForge(ctx context.Context, mcVersion, requested string) (string, error) {
	if requested != "" && requested != "-latest" && requested != "-recommended" {
		return requested, nil
	}

	promos, err := c.fetchForgePromotions(ctx)
	if err != nil {
		return "", err
	}

	key := mcVersion + "-latest"
	if requested == "-recommended" {
		key = mcVersion + "-recommended"
	}
	if v, ok := promos.Promos[key]; ok {
		return v, nil
	}
	// a recommended build isn't always cut; fall back to latest.
	if requested == "-recommended" {
		if v, ok := promos.Promos[mcVersion+"-latest"]; ok {
			return v, nil
		}
	}
	return "", pmcerr.New(pmcerr.KindForgeLatestNotFound, mcVersion)
}

func (c *VersionClient) fetchForgePromotions(ctx context.Context) (*forgePromotions, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, forgePromotionsURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, pmcerr.Wrap(pmcerr.KindForgeMavenMalformed, err, "fetching forge promotions")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, pmcerr.New(pmcerr.KindForgeMavenMalformed, fmt.Sprintf("promotions status %d", resp.StatusCode))
	}
	var promos forgePromotions
	if err := json.NewDecoder(resp.Body).Decode(&promos); err != nil {
		return nil, pmcerr.Wrap(pmcerr.KindForgeMavenMalformed, err, "decoding forge promotions")
	}
	return &promos, nil
}

func (c *VersionClient) resolveNeoForge(ctx context.Context, mcVersion, requested string) (string, error) {
	if requested != "" && requested != "-latest" && requested != "-recommended" {
		return requested, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, neoForgeVersionsURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", pmcerr.Wrap(pmcerr.KindForgeMavenMalformed, err, "fetching neoforge versions")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", pmcerr.New(pmcerr.KindForgeMavenMalformed, fmt.Sprintf("neoforge versions status %d", resp.StatusCode))
	}

	var payload struct {
		Versions []string `json:"versions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", pmcerr.Wrap(pmcerr.KindForgeMavenMalformed, err, "decoding neoforge versions")
	}

	var matching []string
	var stableMatching []string
	for _, v := range payload.Versions {
		m := neoForgeVersionPattern.FindStringSubmatch(v)
		if len(m) < 4 {
			continue
		}
		if inferNeoForgeMCVersion(m[1], m[2]) != mcVersion {
			continue
		}
		matching = append(matching, v)
		stable := len(m) <= 4 || m[4] == "" || !strings.ContainsAny(strings.ToLower(m[4]), "ab")
		if stable {
			stableMatching = append(stableMatching, v)
		}
	}
	if len(matching) == 0 {
		return "", pmcerr.New(pmcerr.KindForgeLatestNotFound, mcVersion)
	}

	// the API returns versions oldest-first; the last match is newest.
	if requested == "-recommended" && len(stableMatching) > 0 {
		return stableMatching[len(stableMatching)-1], nil
	}
	return matching[len(matching)-1], nil
}

func inferNeoForgeMCVersion(major, minor string) string {
	return fmt.Sprintf("1.%s.%s", major, minor)
}

// InstallerURL builds the download URL for the Forge/NeoForge installer
// jar of mcVersion+loaderVersion.
func (c *VersionClient) InstallerURL(mcVersion, loaderVersion string) string {
	if c.loader == NeoForge {
		return fmt.Sprintf("https://maven.neoforged.net/releases/net/neoforged/neoforge/%s/neoforge-%s-installer.jar",
			loaderVersion, loaderVersion)
	}

	// 1.7.10 repeats the mc version as a third segment in both the
	// directory and file name; every later Forge release drops it.
	if mcVersion == "1.7.10" {
		full := fmt.Sprintf("%s-%s-%s", mcVersion, loaderVersion, mcVersion)
		return fmt.Sprintf("https://maven.minecraftforge.net/net/minecraftforge/forge/%s/forge-%s-installer.jar", full, full)
	}
	full := mcVersion + "-" + loaderVersion
	return fmt.Sprintf("https://maven.minecraftforge.net/net/minecraftforge/forge/%s/forge-%s-installer.jar", full, full)
}
