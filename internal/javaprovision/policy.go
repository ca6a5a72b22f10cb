package javaprovision

import (
	"context"
	"os"
	"path/filepath"
	"runtime"

	"github.com/quasar/pmc/internal/config"
	"github.com/quasar/pmc/internal/events"
	"github.com/quasar/pmc/internal/fetch"
	"github.com/quasar/pmc/internal/metadata"
	"github.com/quasar/pmc/internal/pmcerr"
)

// Policy selects how a run's JVM is located (spec.md §4.5).
type Policy string

const (
	// PolicyStatic forces a caller-supplied java executable path.
	PolicyStatic Policy = "static"
	// PolicySystem only ever looks at installations already on the host.
	PolicySystem Policy = "system"
	// PolicyMojang only ever provisions Mojang's own managed JVM.
	PolicyMojang Policy = "mojang"
	// PolicyComposed tries system first, falling back to mojang.
	PolicyComposed Policy = "system-then-mojang"
	// PolicyComposedMojangFirst tries mojang first, falling back to system.
	PolicyComposedMojangFirst Policy = "mojang-then-system"
)

// Settings configures Resolve.
type Settings struct {
	Policy     Policy
	StaticPath string // required when Policy == PolicyStatic
}

// defaultComponent is used when a descriptor carries no javaVersion block,
// matching the pre-1.17 assumption that Java 8 is sufficient.
const defaultComponent = "jre-legacy"

// componentForMajor maps a javaVersion.majorVersion to the Mojang JVM
// manifest component name most versions actually advertise for it.
func componentForMajor(major int) string {
	switch {
	case major <= 8:
		return "jre-legacy"
	case major <= 16:
		return "java-runtime-alpha"
	case major <= 17:
		return "java-runtime-gamma"
	default:
		return "java-runtime-delta"
	}
}

// Resolve provisions a JVM executable path for req under ctx, per
// settings.Policy, emitting jvm_load_start/jvm_load_end and loaded_jvm
// around the work.
func Resolve(ctx context.Context, cctx *config.Context, req *metadata.JavaVersionReq, settings Settings, engine *fetch.Engine, d *events.Dispatcher) (string, error) {
	d.Emitf(events.KindJVMLoadStart, "resolving jvm")
	path, compatible, err := resolve(ctx, cctx, req, settings, engine, d)
	if err != nil {
		return "", err
	}
	d.Emit(events.Event{Kind: events.KindLoadedJVM, Data: events.LoadedJVMData{Path: path, Compatible: compatible}})
	d.Emitf(events.KindJVMLoadEnd, "resolved jvm")
	return path, nil
}

func resolve(ctx context.Context, cctx *config.Context, req *metadata.JavaVersionReq, settings Settings, engine *fetch.Engine, d *events.Dispatcher) (string, bool, error) {
	major := 8
	component := defaultComponent
	if req != nil {
		if req.MajorVersion > 0 {
			major = req.MajorVersion
		}
		if req.Component != "" {
			component = req.Component
		} else {
			component = componentForMajor(major)
		}
	}

	switch settings.Policy {
	case PolicyStatic:
		if settings.StaticPath == "" {
			return "", false, pmcerr.New(pmcerr.KindJVMNotFound, "static jvm policy requires a path")
		}
		if _, err := os.Stat(settings.StaticPath); err != nil {
			return "", false, pmcerr.WithPayload(pmcerr.KindJVMNotFound, pmcerr.JVMNotFoundPayload{MajorVersion: major}, "static jvm path does not exist")
		}
		inst := NewDetector().checkJava(settings.StaticPath)
		compatible := inst != nil && inst.MajorVersion >= major
		return settings.StaticPath, compatible, nil

	case PolicySystem:
		inst := NewDetector().FindBest(major)
		if inst == nil {
			return "", false, pmcerr.WithPayload(pmcerr.KindJVMNotFound, pmcerr.JVMNotFoundPayload{MajorVersion: major}, "no compatible system jvm found")
		}
		return inst.Path, true, nil

	case PolicyMojang:
		path, err := provisionMojang(ctx, cctx, component, engine, d)
		return path, true, err

	case PolicyComposed:
		if inst := NewDetector().FindBest(major); inst != nil {
			return inst.Path, true, nil
		}
		path, err := provisionMojang(ctx, cctx, component, engine, d)
		return path, true, err

	case PolicyComposedMojangFirst:
		path, err := provisionMojang(ctx, cctx, component, engine, d)
		if err == nil {
			return path, true, nil
		}
		if inst := NewDetector().FindBest(major); inst != nil {
			return inst.Path, true, nil
		}
		return "", false, err

	default:
		return "", false, pmcerr.New(pmcerr.KindJVMNotFound, "unknown jvm policy: "+string(settings.Policy))
	}
}

// provisionMojang downloads (if not already present) the named component
// under <jvm>/<component> and returns its java executable path.
func provisionMojang(ctx context.Context, cctx *config.Context, component string, engine *fetch.Engine, d *events.Dispatcher) (string, error) {
	destDir := filepath.Join(cctx.JVM, component)

	binName := "bin/java"
	if runtime.GOOS == "windows" {
		binName = "bin/java.exe"
	}
	exePath := filepath.Join(destDir, filepath.FromSlash(binName))

	if _, err := os.Stat(exePath); err == nil {
		return exePath, nil
	}

	client := NewClient()
	entries, _, err := client.ResolveComponent(ctx, component, destDir)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", pmcerr.New(pmcerr.KindJVMNotFound, "component manifest listed no files: "+component)
	}

	if err := engine.Batch(ctx, entries, d); err != nil {
		return "", pmcerr.Wrap(pmcerr.KindJVMNotFound, err, "downloading jvm component "+component)
	}

	if _, err := os.Stat(exePath); err != nil {
		return "", pmcerr.New(pmcerr.KindJVMNotFound, "java executable missing after provisioning: "+exePath)
	}
	return exePath, nil
}
