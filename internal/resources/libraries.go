// Package resources resolves a flattened version's libraries, platform
// natives, and asset index into fetch.Entry lists, and extracts natives
// into a run's ephemeral bin directory.
package resources

import (
	"path/filepath"
	"strings"

	"github.com/quasar/pmc/internal/config"
	"github.com/quasar/pmc/internal/fetch"
	"github.com/quasar/pmc/internal/metadata"
	"github.com/quasar/pmc/internal/rules"
)

// ResolvedLibraries is the output of resolving a library list against the
// current platform: the classpath entries to fetch/use, and the native
// jars (LWJGL, etc.) that need extracting into the run's bin directory.
type ResolvedLibraries struct {
	Classpath []string       // absolute paths, in library order
	Natives   []NativeEntry
	Fetch     []fetch.Entry
}

// NativeEntry is one platform-native jar to extract before launch.
type NativeEntry struct {
	JarPath string
	Exclude []string // path prefixes excluded from extraction
}

// ResolveLibraries evaluates each library's rules against the given
// evaluator, including caller-provided exclude/include filters (spec.md
// §4.4's exclude_lib/include_bin), and builds the classpath, native list,
// and fetch batch for the allowed set.
func ResolveLibraries(ctx *config.Context, libs []metadata.Library, ev *rules.Evaluator, excludeLib, includeBin func(name string) bool) ResolvedLibraries {
	var out ResolvedLibraries

	for _, lib := range libs {
		if !ev.Allowed(lib.Rules) {
			continue
		}
		if excludeLib != nil && excludeLib(lib.Name) {
			continue
		}

		if lib.Downloads != nil && lib.Downloads.Artifact != nil {
			path := libraryArtifactPath(ctx, lib)
			out.Classpath = append(out.Classpath, path)
			out.Fetch = append(out.Fetch, fetch.Entry{
				URL:  lib.Downloads.Artifact.URL,
				Dest: path,
				SHA1: lib.Downloads.Artifact.SHA1,
				Size: lib.Downloads.Artifact.Size,
			})
		} else if lib.Downloads == nil && lib.Name != "" {
			// Fabric/Quilt/LegacyFabric/Babric and legacy Forge V1 libraries
			// carry only a maven coordinate and a base repository url, no
			// downloads block.
			path := libraryArtifactPath(ctx, lib)
			out.Classpath = append(out.Classpath, path)
			out.Fetch = append(out.Fetch, fetch.Entry{
				URL:  libraryBaseURL(lib) + MavenPath(lib.Name, ""),
				Dest: path,
			})
		}

		if native := nativeClassifier(lib, ev.Platform); native != "" {
			if includeBin != nil && !includeBin(lib.Name) {
				continue
			}
			artifact := libraryClassifierArtifact(lib, native)
			if artifact == nil {
				continue
			}
			path := filepath.Join(ctx.Libraries, artifact.Path)
			out.Fetch = append(out.Fetch, fetch.Entry{
				URL:  artifact.URL,
				Dest: path,
				SHA1: artifact.SHA1,
				Size: artifact.Size,
			})
			var exclude []string
			if lib.Extract != nil {
				exclude = lib.Extract.Exclude
			}
			out.Natives = append(out.Natives, NativeEntry{JarPath: path, Exclude: exclude})
		}
	}

	return out
}

// defaultLibraryRepo is Mojang's own Maven mirror, used when a
// downloads-less library (Fabric family, legacy Forge V1) carries no url
// of its own.
const defaultLibraryRepo = "https://libraries.minecraft.net/"

// libraryBaseURL returns lib's repository base, normalized to end in a
// slash so it can be concatenated directly with a MavenPath.
func libraryBaseURL(lib metadata.Library) string {
	if lib.URL == "" {
		return defaultLibraryRepo
	}
	if strings.HasSuffix(lib.URL, "/") {
		return lib.URL
	}
	return lib.URL + "/"
}

// libraryArtifactPath joins the libraries root with either the artifact's
// own path or, if absent, a path derived from the Maven coordinate.
func libraryArtifactPath(ctx *config.Context, lib metadata.Library) string {
	if lib.Downloads != nil && lib.Downloads.Artifact != nil && lib.Downloads.Artifact.Path != "" {
		return filepath.Join(ctx.Libraries, lib.Downloads.Artifact.Path)
	}
	return filepath.Join(ctx.Libraries, MavenPath(lib.Name, ""))
}

// nativeClassifier returns the natives classifier key (e.g.
// "natives-linux") that applies to platform, substituting ${arch} the way
// Mojang's older manifests do, or "" if the library has none.
func nativeClassifier(lib metadata.Library, platform rules.Platform) string {
	if lib.Natives == nil {
		return ""
	}
	tmpl, ok := lib.Natives[platform.Name]
	if !ok {
		return ""
	}
	arch := "64"
	if platform.Arch == "x86" {
		arch = "32"
	}
	return strings.ReplaceAll(tmpl, "${arch}", arch)
}

func libraryClassifierArtifact(lib metadata.Library, classifier string) *metadata.Artifact {
	if lib.Downloads == nil || lib.Downloads.Classifiers == nil {
		return nil
	}
	return lib.Downloads.Classifiers[classifier]
}

// MavenPath converts a "group:artifact:version[:classifier]" coordinate
// into its repository-relative path, used when a library carries only a
// "name" and a base "url" instead of a full downloads.artifact block
// (legacy Forge/LegacyFabric metadata), and by internal/forge to lay out
// processor classpath entries and installer-jar-embedded libraries.
func MavenPath(coordinate, classifier string) string {
	parts := strings.SplitN(coordinate, ":", 4)
	if len(parts) < 3 {
		return strings.ReplaceAll(coordinate, ":", "/")
	}
	group := strings.ReplaceAll(parts[0], ".", "/")
	artifact, version := parts[1], parts[2]
	ext := "jar"
	if at := strings.Index(version, "@"); at >= 0 {
		ext = version[at+1:]
		version = version[:at]
	}

	file := artifact + "-" + version
	if len(parts) == 4 {
		file += "-" + parts[3]
	} else if classifier != "" {
		file += "-" + classifier
	}
	file += "." + ext

	return strings.Join([]string{group, artifact, version, file}, "/")
}
