// Package launch spawns the JVM process an install.Game describes and
// streams its output, the last step of spec.md §3's lifecycle ("a Game
// value is created by install and consumed by spawn").
package launch

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/quasar/pmc/internal/install"
)

// LogLine is one line of the spawned process's stdout or stderr.
type LogLine struct {
	Stream string // "stdout" or "stderr"
	Text   string
}

// Spawn runs game's JVM invocation to completion, sending every log line
// to onLog as it arrives (may be nil to discard). It returns once the
// process exits; a non-zero exit is reported as an error, matching the
// teacher's launchGame.
func Spawn(ctx context.Context, game *install.Game, onLog func(LogLine)) error {
	args := make([]string, 0, len(game.JVMArgs)+1+len(game.GameArgs))
	args = append(args, game.JVMArgs...)
	args = append(args, game.MainClass)
	args = append(args, game.GameArgs...)

	cmd := exec.CommandContext(ctx, game.JavaPath, args...)
	cmd.Dir = game.WorkDir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return err
	}

	if err := cmd.Start(); err != nil {
		return err
	}

	done := make(chan struct{}, 2)
	go func() { streamLog(stdout, "stdout", onLog); done <- struct{}{} }()
	go func() { streamLog(stderr, "stderr", onLog); done <- struct{}{} }()
	<-done
	<-done

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("game exited with error: %w", err)
	}
	return nil
}

// streamLog scans r line by line, forwarding important lines (anything on
// stderr, plus error/warning/exception markers on stdout) to onLog —
// carried from the teacher's streamLog filter so routine stdout chatter
// doesn't drown the CLI's own progress output.
func streamLog(r io.Reader, stream string, onLog func(LogLine)) {
	if onLog == nil {
		return
	}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		text := scanner.Text()
		important := stream == "stderr" ||
			strings.Contains(text, "[FATAL]") ||
			strings.Contains(text, "[ERROR]") ||
			strings.Contains(text, "[WARN]") ||
			strings.Contains(text, "Exception") ||
			strings.Contains(text, "Error")
		if important {
			onLog(LogLine{Stream: stream, Text: text})
		}
	}
}
