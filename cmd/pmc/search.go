package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/quasar/pmc/internal/fabric"
	"github.com/quasar/pmc/internal/forge"
	"github.com/quasar/pmc/internal/mojangapi"
)

// searchResult is one line of search output, shared across kinds so
// machine mode can emit a uniform shape (spec.md §6 doesn't name a search
// event kind, so this is plain stdout/JSON rather than an events.Event).
type searchResult struct {
	ID     string `json:"id"`
	Detail string `json:"detail,omitempty"`
}

func runSearch(args []string) error {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	g := addGlobalFlags(fs)
	var kind string
	fs.StringVar(&kind, "k", "mojang", "kind: mojang, local, forge, fabric, legacyfabric, quilt")
	if err := fs.Parse(args); err != nil {
		return err
	}

	query := ""
	if fs.NArg() > 0 {
		query = fs.Arg(0)
	}

	ctx := context.Background()
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(g.timeout)*time.Second)
		defer cancel()
	}

	var results []searchResult
	var err error
	switch kind {
	case "local":
		results, err = searchLocal(g)
	case "forge", "neoforge":
		results, err = searchLoaderAlias(ctx, kind, query)
	case "fabric", "quilt", "legacyfabric":
		results, err = searchFabricFamily(ctx, kind, query)
	default:
		results, err = searchMojang(ctx, query)
	}
	if err != nil {
		return err
	}

	return printSearchResults(results, g.mode())
}

func searchMojang(ctx context.Context, query string) ([]searchResult, error) {
	client := mojangapi.NewClient()
	manifest, err := client.Manifest(ctx)
	if err != nil {
		return nil, err
	}
	var out []searchResult
	for _, v := range manifest.Versions {
		if query != "" && v.ID != query {
			continue
		}
		out = append(out, searchResult{ID: v.ID, Detail: v.Type})
	}
	return out, nil
}

func searchFabricFamily(ctx context.Context, kind, query string) ([]searchResult, error) {
	if query == "" {
		return nil, fmt.Errorf("search -k %s requires a game version query", kind)
	}
	family := map[string]fabric.Family{
		"fabric":       fabric.Fabric,
		"quilt":        fabric.Quilt,
		"legacyfabric": fabric.LegacyFabric,
	}[kind]

	versions, err := fabric.NewClient(family).LoaderVersions(ctx, query)
	if err != nil {
		return nil, err
	}
	out := make([]searchResult, 0, len(versions))
	for _, v := range versions {
		detail := "unstable"
		if v.Stable {
			detail = "stable"
		}
		out = append(out, searchResult{ID: v.Version, Detail: detail})
	}
	return out, nil
}

// searchLoaderAlias resolves Forge/NeoForge's "-latest"/"-recommended"
// aliases for query, since internal/forge exposes alias resolution but no
// full version-list endpoint (Forge's promotions file and NeoForge's
// flat release list aren't indexed by game version server-side the way
// Fabric's meta server is).
func searchLoaderAlias(ctx context.Context, kind, query string) ([]searchResult, error) {
	if query == "" {
		return nil, fmt.Errorf("search -k %s requires a game version query", kind)
	}
	loader := forge.Forge
	if kind == "neoforge" {
		loader = forge.NeoForge
	}
	vc := forge.NewVersionClient(loader)

	var out []searchResult
	latest, err := vc.ResolveVersion(ctx, query, "-latest")
	if err == nil {
		out = append(out, searchResult{ID: latest, Detail: "latest"})
	}
	recommended, err := vc.ResolveVersion(ctx, query, "-recommended")
	if err == nil && recommended != latest {
		out = append(out, searchResult{ID: recommended, Detail: "recommended"})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no %s build found for %s", kind, query)
	}
	return out, nil
}

func searchLocal(g *globalFlags) ([]searchResult, error) {
	cctx, _, err := g.buildContext()
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(cctx.Versions)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []searchResult
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(cctx.Versions, e.Name(), e.Name()+".json")); err == nil {
			out = append(out, searchResult{ID: e.Name()})
		}
	}
	return out, nil
}

func printSearchResults(results []searchResult, mode outputMode) error {
	if mode == outputMachine {
		enc := json.NewEncoder(os.Stdout)
		for _, r := range results {
			if err := enc.Encode(r); err != nil {
				return err
			}
		}
		return nil
	}
	for _, r := range results {
		if r.Detail != "" {
			fmt.Printf("%s\t%s\n", r.ID, r.Detail)
		} else {
			fmt.Println(r.ID)
		}
	}
	return nil
}
