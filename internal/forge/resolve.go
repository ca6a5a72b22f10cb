package forge

import (
	"context"
	"fmt"

	"github.com/quasar/pmc/internal/config"
	"github.com/quasar/pmc/internal/events"
	"github.com/quasar/pmc/internal/fetch"
	"github.com/quasar/pmc/internal/metadata"
)

func idPrefix(loader Loader) string {
	if loader == NeoForge {
		return "neoforge"
	}
	return "forge"
}

// Resolve runs the full Forge/NeoForge installation end to end: version
// alias resolution, installer jar download, profile parsing, descriptor
// write, library materialization, and (V2 only) processor execution. It
// returns the loader descriptor that a caller loads through metadata.LoadChain
// to get the combined, flattened version.
//
// javaPath is the JVM used to run V2 processors; callers resolve it against
// the underlying Mojang version's javaVersion requirement before calling
// Resolve, since the processors themselves have no javaVersion of their own.
func Resolve(ctx context.Context, cctx *config.Context, loader Loader, mcVersion, requestedLoaderVersion, javaPath string, engine *fetch.Engine, d *events.Dispatcher) (*metadata.Descriptor, error) {
	vc := NewVersionClient(loader)

	loaderVersion, err := vc.ResolveVersion(ctx, mcVersion, requestedLoaderVersion)
	if err != nil {
		return nil, err
	}

	installerURL := vc.InstallerURL(mcVersion, loaderVersion)
	d.Emit(events.Event{Kind: events.KindForgeFetchInstaller, Message: installerURL})

	jar, err := fetchInstallerJar(ctx, installerURL)
	if err != nil {
		return nil, err
	}

	forgeID := fmt.Sprintf("%s-%s-%s", idPrefix(loader), mcVersion, loaderVersion)
	profile, err := ParseProfile(jar, forgeID, mcVersion)
	if err != nil {
		return nil, err
	}

	if err := Install(ctx, cctx, jar, profile, d); err != nil {
		return nil, err
	}

	libEntries, err := ResolveLibraries(cctx, jar, profile)
	if err != nil {
		return nil, err
	}
	if err := engine.Batch(ctx, libEntries, d); err != nil {
		return nil, err
	}

	if !profile.Legacy {
		minecraftJar := cctx.VersionJarPath(mcVersion)
		if err := RunProcessors(ctx, cctx, javaPath, profile, minecraftJar, "client", d); err != nil {
			return nil, err
		}
	}

	return profile.Descriptor, nil
}
