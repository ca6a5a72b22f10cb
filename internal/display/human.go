package display

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"

	"github.com/quasar/pmc/internal/events"
)

// phaseLabels gives a short human label for every event.Kind that marks a
// phase boundary or a noteworthy point, mirrored from the teacher's
// LaunchModel step list (internal/ui/launch.go) but driven off the real
// event stream instead of a hardcoded step slice.
var phaseLabels = map[events.Kind]string{
	events.KindFeatureSelection:    "selecting features",
	events.KindHierarchyLoad:       "loaded version hierarchy",
	events.KindNeedVersion:         "fetching version metadata",
	events.KindClientLoadStart:     "fetching client jar",
	events.KindClientLoadEnd:       "client jar ready",
	events.KindLibrariesLoadStart:  "resolving libraries",
	events.KindLibrariesLoadEnd:    "libraries ready",
	events.KindAssetsLoadStart:     "resolving assets",
	events.KindAssetsLoadEnd:       "assets ready",
	events.KindLoggerLoadStart:     "fetching logging config",
	events.KindLoggerLoadEnd:       "logging config ready",
	events.KindJVMLoadStart:        "resolving java runtime",
	events.KindJVMLoadEnd:          "java runtime ready",
	events.KindLoadedJVM:           "java runtime selected",
	events.KindFixApplied:          "applied fix",
	events.KindFabricFetchVersion:  "fetching loader version",
	events.KindForgeFetchInstaller: "fetching installer",
	events.KindForgeRunProcessor:   "running installer processor",
	events.KindForgeInstalled:      "installer finished",
	events.KindDownloadCancelled:   "download cancelled",
	events.KindWarning:             "warning",
}

// Line renders one event as a single line of human-readable text. color
// selects whether lipgloss styling is applied (human-color mode) or the
// line is plain (human mode).
func Line(e events.Event, color bool) string {
	switch e.Kind {
	case events.KindDownloadProgress:
		data, _ := e.Data.(events.DownloadProgressData)
		text := fmt.Sprintf("downloading %d/%d (%s/%s)",
			data.DoneCount, data.TotalCount,
			humanize.Bytes(uint64(data.DoneBytes)), humanize.Bytes(uint64(data.TotalBytes)))
		if !color {
			return text
		}
		return PhaseStyle.Render(text)

	case events.KindFixApplied:
		name := ""
		if data, ok := e.Data.(events.FixAppliedData); ok {
			name = data.Name
		}
		text := fmt.Sprintf("%s: %s", phaseLabels[e.Kind], name)
		if !color {
			return text
		}
		return WarningStyle.Render(text)

	case events.KindWarning:
		if !color {
			return "warning: " + e.Message
		}
		return WarningStyle.Render("warning: " + e.Message)

	case events.KindForgeRunProcessor:
		data, _ := e.Data.(events.RunProcessorData)
		text := fmt.Sprintf("%s: %s (%s)", phaseLabels[e.Kind], data.Name, data.Task)
		if !color {
			return text
		}
		return PhaseStyle.Render(text)

	default:
		label, ok := phaseLabels[e.Kind]
		if !ok {
			label = string(e.Kind)
		}
		text := label
		if e.Message != "" {
			text = fmt.Sprintf("%s: %s", label, e.Message)
		}
		if !color {
			return text
		}
		return PhaseStyle.Render(text)
	}
}

// RunHuman drains events from ch and writes one line per event to w, in
// either plain (color=false) or lipgloss-styled (color=true) text. It
// returns once ch is closed, so whatever writes ch runs in another
// goroutine (cmd/pmc's runInstall calls RunHuman directly and runs the
// install in a goroutine that closes ch when done).
func RunHuman(w io.Writer, ch <-chan events.Event, color bool) {
	for e := range ch {
		fmt.Fprintln(w, Line(e, color))
	}
}
