package assemble

import (
	"strings"

	"github.com/quasar/pmc/internal/events"
	"github.com/quasar/pmc/internal/metadata"
	"github.com/quasar/pmc/internal/rules"
)

// Fixes toggles the known version-specific argument corrections
// (spec.md §4.8). All default to enabled; callers disable individually
// for reproducing old, unfixed launches.
type Fixes struct {
	DisableLegacyProxy      bool
	DisableLegacyMergeSort  bool
	DisableLegacyResolution bool
	DisableLegacyQuickPlay  bool
	DisableAuthlibSwap      bool
	LWJGLOverride           string // non-empty pins lwjgl's version instead of the descriptor's
}

// Result is the fully assembled launch command, split the way exec.Cmd
// expects: jvm args, main class, then game args.
type Result struct {
	JVMArgs   []string
	MainClass string
	GameArgs  []string
}

// Assemble builds the final argv for flat, gating each fragment through
// ev, substituting placeholders from values, and applying fixes.
func Assemble(flat *metadata.Flattened, ev *rules.Evaluator, values Values, fixes Fixes, d *events.Dispatcher) Result {
	if values.AuthPlayerName == "" {
		values.AuthPlayerName = currentUsername()
	}

	placeholders := placeholderMap(values)

	var jvmArgs []string
	if len(flat.JVMArguments) > 0 {
		jvmArgs = expandFragments(flat.JVMArguments, ev, placeholders)
	} else {
		jvmArgs = []string{"-Djava.library.path=${natives_directory}", "-cp", "${classpath}"}
		jvmArgs = substituteAll(jvmArgs, placeholders)
	}

	var gameArgs []string
	if len(flat.GameArguments) > 0 {
		gameArgs = expandFragments(flat.GameArguments, ev, placeholders)
	} else if flat.MinecraftArguments != "" {
		for _, tok := range strings.Fields(flat.MinecraftArguments) {
			gameArgs = append(gameArgs, substitute(tok, placeholders))
		}
	}

	jvmArgs = applyLoggingArgument(jvmArgs, flat, placeholders)

	gameArgs = applyLegacyQuickPlay(gameArgs, values, fixes, d)
	gameArgs = applyLegacyResolution(gameArgs, values, fixes, d)
	jvmArgs = applyLegacyProxy(jvmArgs, flat, fixes, d)
	jvmArgs = applyLegacyMergeSort(jvmArgs, flat, fixes, d)

	return Result{JVMArgs: jvmArgs, MainClass: flat.MainClass, GameArgs: gameArgs}
}

// ApplyLibraryFixes rewrites libs in light of fixes.DisableAuthlibSwap and
// fixes.LWJGLOverride, before the caller resolves them into a classpath
// (internal/resources.ResolveLibraries) and builds the ${classpath}
// placeholder that Assemble later substitutes. Library-coordinate fixes
// must run before resolution, not after argument assembly, since they
// change which jar gets fetched.
func ApplyLibraryFixes(libs []metadata.Library, fixes Fixes, d *events.Dispatcher) []metadata.Library {
	out := applyAuthlibSwap(libs, fixes, d)
	out = applyLWJGLOverride(out, fixes, d)
	return out
}

func expandFragments(frags []metadata.ArgumentFragment, ev *rules.Evaluator, placeholders map[string]string) []string {
	var out []string
	for _, frag := range frags {
		if !ev.Allowed(frag.Rules) {
			continue
		}
		for _, v := range frag.Values {
			out = append(out, substitute(v, placeholders))
		}
	}
	return out
}

func substituteAll(args []string, placeholders map[string]string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = substitute(a, placeholders)
	}
	return out
}

// applyLoggingArgument appends the logging.client.argument token
// (with ${path} substituted to the downloaded log4j config path) when
// the descriptor declares one and the caller populated LoggingPath.
func applyLoggingArgument(jvmArgs []string, flat *metadata.Flattened, placeholders map[string]string) []string {
	if flat.Logging == nil || flat.Logging.Client == nil || placeholders["path"] == "" {
		return jvmArgs
	}
	return append(jvmArgs, substitute(flat.Logging.Client.Argument, placeholders))
}

// legacyProxyHost/Port point old (pre-1.6) clients' skin/session lookups
// at the community-run mirror that still answers the API endpoints
// Mojang has since decommissioned.
const (
	legacyProxyHost = "betacraft.pl"
	legacyProxyPort = "80"
)

// applyLegacyProxy routes an old version's HTTP(S) traffic through the
// legacy API mirror, for descriptors whose assets id ("legacy" or
// "pre-1.6", see needsLegacyProxy) marks them as predating Mojang's
// session server (spec.md §4.8).
func applyLegacyProxy(jvmArgs []string, flat *metadata.Flattened, fixes Fixes, d *events.Dispatcher) []string {
	if fixes.DisableLegacyProxy || !needsLegacyProxy(flat) {
		return jvmArgs
	}
	for _, a := range jvmArgs {
		if strings.Contains(a, "proxyHost") {
			return jvmArgs
		}
	}
	d.Emit(events.Event{Kind: events.KindFixApplied, Data: events.FixAppliedData{Name: "legacy_proxy"}})
	return append(jvmArgs,
		"-Dhttp.proxyHost="+legacyProxyHost, "-Dhttp.proxyPort="+legacyProxyPort,
		"-Dhttps.proxyHost="+legacyProxyHost, "-Dhttps.proxyPort="+legacyProxyPort,
	)
}

// needsLegacyProxy reports whether flat predates Mojang's modern
// assets/session infrastructure, i.e. it still uses the pre-1.7
// "legacy"/"pre-1.6" asset index rather than a real hash-indexed one.
func needsLegacyProxy(flat *metadata.Flattened) bool {
	return flat.Assets == "legacy" || flat.Assets == "pre-1.6"
}

// isLegacyAlphaBeta reports whether flat is one of Mojang's old_alpha/
// old_beta releases, the only ones applyLegacyMergeSort targets.
func isLegacyAlphaBeta(flat *metadata.Flattened) bool {
	return flat.Type == "old_alpha" || flat.Type == "old_beta"
}

// applyLegacyMergeSort forces -Djava.util.Arrays.useLegacyMergeSort=true
// ahead of the jvm args for alpha/beta versions whose LWJGL/AWT code
// depends on the pre-TimSort merge sort behavior removed in Java 7.
func applyLegacyMergeSort(jvmArgs []string, flat *metadata.Flattened, fixes Fixes, d *events.Dispatcher) []string {
	if fixes.DisableLegacyMergeSort || !isLegacyAlphaBeta(flat) {
		return jvmArgs
	}
	const flag = "-Djava.util.Arrays.useLegacyMergeSort=true"
	for _, a := range jvmArgs {
		if a == flag {
			return jvmArgs
		}
	}
	d.Emit(events.Event{Kind: events.KindFixApplied, Data: events.FixAppliedData{Name: "legacy_merge_sort"}})
	return append([]string{flag}, jvmArgs...)
}

// applyLegacyResolution appends --width/--height for versions whose
// arguments never grew a resolution_width/height placeholder (pre-1.13),
// when the caller requested a custom resolution.
func applyLegacyResolution(gameArgs []string, values Values, fixes Fixes, d *events.Dispatcher) []string {
	if fixes.DisableLegacyResolution || values.Resolution == nil {
		return gameArgs
	}
	for _, a := range gameArgs {
		if a == "--width" || strings.Contains(a, "resolution_width") {
			return gameArgs
		}
	}
	d.Emit(events.Event{Kind: events.KindFixApplied, Data: events.FixAppliedData{Name: "legacy_resolution"}})
	return append(gameArgs,
		"--width", itoa(values.Resolution.Width),
		"--height", itoa(values.Resolution.Height),
	)
}

// applyLegacyQuickPlay rewrites a modern --quickPlaySingleplayer request
// into the legacy --server/--port pair for versions whose argument table
// predates Quick Play (pre-1.20).
func applyLegacyQuickPlay(gameArgs []string, values Values, fixes Fixes, d *events.Dispatcher) []string {
	if fixes.DisableLegacyQuickPlay || values.QuickPlaySingle == "" {
		return gameArgs
	}
	for _, a := range gameArgs {
		if a == "--quickPlaySingleplayer" || a == "--server" {
			return gameArgs
		}
	}
	host, port := splitHostPort(values.QuickPlaySingle)
	d.Emit(events.Event{Kind: events.KindFixApplied, Data: events.FixAppliedData{Name: "legacy_quick_play"}})
	return append(gameArgs, "--server", host, "--port", port)
}

// splitHostPort splits a "host:port" quick-play target, defaulting to
// Minecraft's standard server port when none is given.
func splitHostPort(addr string) (host, port string) {
	if i := strings.LastIndex(addr, ":"); i >= 0 {
		return addr[:i], addr[i+1:]
	}
	return addr, "25565"
}

// applyAuthlibSwap replaces a vulnerable com.mojang:authlib:2.1.28
// dependency (pulled in by old version descriptors) with 2.2.30, the
// version Mojang itself patches legacy launches to.
func applyAuthlibSwap(libs []metadata.Library, fixes Fixes, d *events.Dispatcher) []metadata.Library {
	if fixes.DisableAuthlibSwap {
		return libs
	}
	out := make([]metadata.Library, len(libs))
	swapped := false
	for i, lib := range libs {
		if strings.HasPrefix(lib.Name, "com.mojang:authlib:2.1.28") {
			lib.Name = "com.mojang:authlib:2.2.30"
			lib.Downloads = nil // force re-resolution against the new coordinate
			swapped = true
		}
		out[i] = lib
	}
	if swapped {
		d.Emit(events.Event{Kind: events.KindFixApplied, Data: events.FixAppliedData{Name: "authlib_swap"}})
	}
	return out
}

// applyLWJGLOverride rewrites every org.lwjgl* library coordinate to
// fixes.LWJGLOverride's version, used to pin a working LWJGL on
// platforms (Apple Silicon, some ARM Linux) the original descriptor's
// LWJGL build predates.
func applyLWJGLOverride(libs []metadata.Library, fixes Fixes, d *events.Dispatcher) []metadata.Library {
	if fixes.LWJGLOverride == "" {
		return libs
	}
	out := make([]metadata.Library, len(libs))
	copy(out, libs)
	changed := false
	for i := range out {
		if !strings.HasPrefix(out[i].Name, "org.lwjgl") {
			continue
		}
		parts := strings.SplitN(out[i].Name, ":", 3)
		if len(parts) != 3 {
			continue
		}
		out[i].Name = parts[0] + ":" + parts[1] + ":" + fixes.LWJGLOverride
		out[i].Downloads = nil
		changed = true
	}
	if changed {
		d.Emit(events.Event{Kind: events.KindFixApplied, Data: events.FixAppliedData{Name: "lwjgl_override"}})
	}
	return out
}
