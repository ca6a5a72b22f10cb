package main

import (
	"context"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/quasar/pmc/internal/assemble"
	"github.com/quasar/pmc/internal/authdb"
	"github.com/quasar/pmc/internal/install"
	"github.com/quasar/pmc/internal/javaprovision"
)

// jvmPolicies maps spec.md §6's jvm-policy tags onto javaprovision.Policy.
var jvmPolicies = map[string]javaprovision.Policy{
	"static":             javaprovision.PolicyStatic,
	"system":             javaprovision.PolicySystem,
	"mojang":             javaprovision.PolicyMojang,
	"system-then-mojang": javaprovision.PolicyComposed,
	"mojang-then-system": javaprovision.PolicyComposedMojangFirst,
}

type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }
func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// parseVersionArg splits spec.md §6's version grammar:
// "[loader-prefix:]<id-or-alias>[:<loader-extra>]".
func parseVersionArg(arg string) (loader install.LoaderKind, id, extra string) {
	knownPrefixes := map[string]install.LoaderKind{
		"standard":     install.Standard,
		"mojang":       install.Mojang,
		"fabric":       install.Fabric,
		"quilt":        install.Quilt,
		"legacyfabric": install.LegacyFabric,
		"babric":       install.Babric,
		"forge":        install.Forge,
		"neoforge":     install.NeoForge,
	}

	parts := strings.Split(arg, ":")
	if kind, ok := knownPrefixes[parts[0]]; ok && len(parts) > 1 {
		loader = kind
		id = parts[1]
		if len(parts) > 2 {
			extra = parts[2]
		}
		return
	}

	loader = install.Standard
	id = parts[0]
	if len(parts) > 1 {
		extra = parts[1]
	}
	return
}

func runStart(args []string) error {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	g := addGlobalFlags(fs)

	var excludeLib, includeBin stringList
	fs.Var(&excludeLib, "exclude-lib", "exclude a library coordinate pattern (repeatable)")
	fs.Var(&includeBin, "include-bin", "extra file linked into the run's native directory (repeatable)")

	strictAssets := fs.Bool("strict-assets", false, "require SHA-1 verification even when present on disk")
	strictLibraries := fs.Bool("strict-libraries", false, "require SHA-1 verification even when present on disk")
	strictJVM := fs.Bool("strict-jvm", false, "require SHA-1 verification even when present on disk")

	username := fs.String("username", "", "offline player name (default: stored session, then OS user)")
	width := fs.Int("width", 0, "window width")
	height := fs.Int("height", 0, "window height")

	jvmPolicy := fs.String("jvm-policy", "system-then-mojang", "static, system, mojang, system-then-mojang, or mojang-then-system")
	javaPath := fs.String("java-path", "", "java executable to use with --jvm-policy=static")

	if err := fs.Parse(args); err != nil {
		return err
	}

	versionArg := "release"
	if fs.NArg() > 0 {
		versionArg = fs.Arg(0)
	}
	loader, id, extra := parseVersionArg(versionArg)

	cctx, cfg, err := g.buildContext()
	if err != nil {
		return err
	}

	ctx := context.Background()
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(g.timeout)*time.Second)
		defer cancel()
	}

	values := assemble.Values{
		AuthPlayerName: *username,
		UserType:       "legacy",
	}
	if values.AuthPlayerName == "" {
		db, _ := authdb.Open(cctx.AuthDBPath())
		if db != nil {
			if s := db.Active(); s != nil {
				values.AuthPlayerName = s.Username
				values.AuthAccessToken = s.AccessToken
				if s.Kind == authdb.KindMSA {
					values.UserType = "msa"
				}
			}
		}
	}
	if *width > 0 && *height > 0 {
		values.Resolution = &assemble.Resolution{Width: *width, Height: *height}
	}

	policy, ok := jvmPolicies[*jvmPolicy]
	if !ok {
		return fmt.Errorf("unknown --jvm-policy %q", *jvmPolicy)
	}

	settings := install.Settings{
		VersionID:       id,
		Loader:          loader,
		LoaderVersion:   extra,
		StrictAssets:    *strictAssets,
		StrictLibraries: *strictLibraries,
		StrictJVM:       *strictJVM,
		JavaPolicy:      javaprovision.Settings{Policy: policy, StaticPath: *javaPath},
		ExcludeLib:      excludeLib,
		IncludeBin:      includeBin,
		LauncherName:    cfg.LauncherName,
		LauncherVersion: cfg.LauncherVersion,
		Values:          values,
	}

	game, err := runInstall(ctx, cctx, settings, g.mode())
	if err != nil {
		return err
	}

	fmt.Printf("installed %s, launching...\n", id)
	return spawnGame(ctx, game)
}
