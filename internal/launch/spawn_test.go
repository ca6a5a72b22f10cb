package launch

import (
	"context"
	"runtime"
	"testing"

	"github.com/quasar/pmc/internal/install"
)

func TestSpawn_RunsAndCapturesStderr(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("relies on a posix shell")
	}

	game := &install.Game{
		JavaPath:  "/bin/sh",
		WorkDir:   t.TempDir(),
		MainClass: "-c",
		JVMArgs:   nil,
		GameArgs:  []string{"echo Error: boom 1>&2; exit 0"},
	}

	var lines []LogLine
	err := Spawn(context.Background(), game, func(l LogLine) {
		lines = append(lines, l)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(lines) != 1 || lines[0].Stream != "stderr" {
		t.Fatalf("expected one captured stderr line, got %+v", lines)
	}
}

func TestSpawn_NonZeroExitIsError(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("relies on a posix shell")
	}

	game := &install.Game{
		JavaPath:  "/bin/sh",
		WorkDir:   t.TempDir(),
		MainClass: "-c",
		GameArgs:  []string{"exit 1"},
	}

	if err := Spawn(context.Background(), game, nil); err == nil {
		t.Fatal("expected non-zero exit to be reported as an error")
	}
}
