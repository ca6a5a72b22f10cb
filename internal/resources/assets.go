package resources

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/quasar/pmc/internal/config"
	"github.com/quasar/pmc/internal/fetch"
	"github.com/quasar/pmc/internal/metadata"
	"github.com/quasar/pmc/internal/pmcerr"
)

// assetObject is one entry of an asset index's "objects" map.
type assetObject struct {
	Hash string `json:"hash"`
	Size int64  `json:"size"`
}

// assetIndex is the parsed shape of a Mojang asset index JSON.
type assetIndex struct {
	Objects         map[string]assetObject `json:"objects"`
	Virtual         bool                   `json:"virtual"`
	MapToResources  bool                   `json:"map_to_resources"`
}

const assetBaseURL = "https://resources.download.minecraft.net"

// ResolvedAssets is the outcome of resolving an asset index: the fetch
// batch for its content-addressed objects, plus any legacy-layout mirrors
// that must be materialized afterward.
type ResolvedAssets struct {
	Fetch          []fetch.Entry
	Virtual        bool
	MapToResources bool
	ObjectPaths    map[string]string // asset name -> <assets>/objects/xx/hash, used to build mirrors
}

// ResolveAssetIndex downloads (if absent) and parses ref's index file,
// then builds the fetch batch for every object it lists, sharded under
// <assets>/objects/<hash[:2]>/<hash> (spec.md §4.3).
func ResolveAssetIndex(ctx *config.Context, ref *metadata.AssetIndexRef, fetchIndex func(dest string) error) (*ResolvedAssets, error) {
	if ref == nil {
		return nil, pmcerr.New(pmcerr.KindAssetIndexNotFound, "descriptor has no assetIndex")
	}

	indexPath := filepath.Join(ctx.Assets, "indexes", ref.ID+".json")
	if _, err := os.Stat(indexPath); os.IsNotExist(err) {
		if err := fetchIndex(indexPath); err != nil {
			return nil, pmcerr.Wrap(pmcerr.KindAssetIndexNotFound, err, "downloading asset index "+ref.ID)
		}
	}

	data, err := os.ReadFile(indexPath)
	if err != nil {
		return nil, pmcerr.Wrap(pmcerr.KindAssetIndexNotFound, err, "reading asset index "+ref.ID)
	}

	var idx assetIndex
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, pmcerr.Wrap(pmcerr.KindAssetIndexNotFound, err, "parsing asset index "+ref.ID)
	}

	out := &ResolvedAssets{Virtual: idx.Virtual, MapToResources: idx.MapToResources, ObjectPaths: map[string]string{}}
	for name, obj := range idx.Objects {
		if len(obj.Hash) < 2 {
			return nil, pmcerr.New(pmcerr.KindAssetIndexNotFound, fmt.Sprintf("malformed object hash for %q", name))
		}
		prefix := obj.Hash[:2]
		dest := filepath.Join(ctx.Assets, "objects", prefix, obj.Hash)
		out.ObjectPaths[name] = dest
		out.Fetch = append(out.Fetch, fetch.Entry{
			URL:  fmt.Sprintf("%s/%s/%s", assetBaseURL, prefix, obj.Hash),
			Dest: dest,
			SHA1: obj.Hash,
			Size: obj.Size,
		})
	}

	return out, nil
}

// MaterializeLegacyMirrors copies each resolved object into the legacy
// `virtual/legacy` and/or `resources/` layouts that pre-1.7 clients and
// mods expect, when the asset index requests them. An index can set both
// virtual and map_to_resources at once: the virtual mirror is what the
// game actually reads at runtime, but the resources mirror still needs to
// exist for legacy tooling that looks there directly, so both get
// populated.
func (r *ResolvedAssets) MaterializeLegacyMirrors(ctx *config.Context, workDir string) error {
	if !r.Virtual && !r.MapToResources {
		return nil
	}

	var roots []string
	if r.Virtual {
		roots = append(roots, filepath.Join(ctx.Assets, "virtual", "legacy"))
	}
	if r.MapToResources {
		roots = append(roots, filepath.Join(workDir, "resources"))
	}

	for _, root := range roots {
		for name, src := range r.ObjectPaths {
			dest := filepath.Join(root, filepath.FromSlash(name))
			if _, err := os.Stat(dest); err == nil {
				continue
			}
			if err := copyFile(src, dest); err != nil {
				return pmcerr.Wrap(pmcerr.KindAssetIndexNotFound, err, "materializing legacy asset "+name)
			}
		}
	}
	return nil
}

func copyFile(src, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
