package forge

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"github.com/quasar/pmc/internal/config"
	"github.com/quasar/pmc/internal/events"
	"github.com/quasar/pmc/internal/pmcerr"
	"github.com/quasar/pmc/internal/resources"
)

var sha1Pattern = regexp.MustCompile(`^[0-9a-fA-F]{40}$`)

// buildDataMap resolves p.Data's client/server pair for side into a flat
// token table, adding the well-known MINECRAFT_JAR/SIDE entries every
// processor invocation implicitly carries.
func buildDataMap(cctx *config.Context, p *Profile, minecraftJar, side string) map[string]string {
	m := map[string]string{
		"SIDE":          side,
		"MINECRAFT_JAR": minecraftJar,
	}
	for k, v := range p.Data {
		val := v.Client
		if side == "server" {
			val = v.Server
		}
		m[k] = resolveLiteral(cctx, val)
	}
	return m
}

// resolveLiteral turns a data-section value into its on-disk form: a
// "['...']"-wrapped maven coordinate becomes a library path, a
// "'literal'" has its quotes stripped, and anything else is returned
// unchanged.
func resolveLiteral(cctx *config.Context, val string) string {
	if strings.HasPrefix(val, "[") && strings.HasSuffix(val, "]") {
		coord := strings.Trim(val, "[]")
		return filepath.Join(cctx.Libraries, resources.MavenPath(coord, ""))
	}
	if strings.HasPrefix(val, "'") && strings.HasSuffix(val, "'") {
		return strings.Trim(val, "'")
	}
	return val
}

// resolveToken resolves one {DATA_KEY}, [maven:coordinate] or literal
// processor argument/output token against data and cctx's libraries root.
func resolveToken(cctx *config.Context, token string, data map[string]string) string {
	if strings.HasPrefix(token, "{") && strings.HasSuffix(token, "}") {
		return data[strings.Trim(token, "{}")]
	}
	if strings.HasPrefix(token, "[") && strings.HasSuffix(token, "]") {
		return filepath.Join(cctx.Libraries, resources.MavenPath(strings.Trim(token, "[]"), ""))
	}
	return token
}

// RunProcessors executes every processor in p.Processors in order, each
// as its own subprocess (jar + classpath, never loaded into this
// process), and verifies any declared outputs by SHA-1 afterward.
func RunProcessors(ctx context.Context, cctx *config.Context, javaPath string, p *Profile, minecraftJar, side string, d *events.Dispatcher) error {
	data := buildDataMap(cctx, p, minecraftJar, side)

	for _, proc := range p.Processors {
		if !appliesToSide(proc, side) {
			continue
		}

		d.Emit(events.Event{Kind: events.KindForgeRunProcessor, Data: events.RunProcessorData{Name: proc.Jar, Task: "run"}})

		if err := runProcessor(ctx, cctx, javaPath, proc, data); err != nil {
			return err
		}

		if err := verifyOutputs(cctx, proc, data); err != nil {
			return err
		}
	}

	return nil
}

func appliesToSide(proc Processor, side string) bool {
	if len(proc.SidesOnly) == 0 {
		return true
	}
	for _, s := range proc.SidesOnly {
		if s == side {
			return true
		}
	}
	return false
}

func runProcessor(ctx context.Context, cctx *config.Context, javaPath string, proc Processor, data map[string]string) error {
	jarPath := filepath.Join(cctx.Libraries, resources.MavenPath(proc.Jar, ""))

	mainClass, err := readMainClass(jarPath)
	if err != nil {
		return pmcerr.Wrap(pmcerr.KindProcessorNotFound, err, proc.Jar)
	}

	classpath := make([]string, 0, len(proc.Classpath)+1)
	for _, coord := range proc.Classpath {
		classpath = append(classpath, filepath.Join(cctx.Libraries, resources.MavenPath(coord, "")))
	}
	classpath = append(classpath, jarPath)

	args := []string{"-classpath", strings.Join(classpath, classpathSeparator()), mainClass}
	for _, a := range proc.Args {
		args = append(args, resolveToken(cctx, a, data))
	}

	cmd := exec.CommandContext(ctx, javaPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		status := 0
		if exitErr, ok := err.(*exec.ExitError); ok {
			status = exitErr.ExitCode()
		}
		return pmcerr.WithPayload(pmcerr.KindProcessorFailed,
			pmcerr.ProcessorFailedPayload{Name: proc.Jar, Status: status, Stdout: stdout.String(), Stderr: stderr.String()},
			"processor exited non-zero")
	}

	return nil
}

func verifyOutputs(cctx *config.Context, proc Processor, data map[string]string) error {
	for pathToken, shaToken := range proc.Outputs {
		path := resolveToken(cctx, pathToken, data)
		expected := resolveToken(cctx, shaToken, data)
		if !sha1Pattern.MatchString(expected) {
			continue
		}

		actual, err := hashFileSHA1(path)
		if err != nil {
			return pmcerr.WithPayload(pmcerr.KindProcessorCorrupted,
				pmcerr.ProcessorCorruptedPayload{Name: proc.Jar, File: path, ExpectedSHA1: expected},
				"declared output missing: "+err.Error())
		}
		if !strings.EqualFold(actual, expected) {
			return pmcerr.WithPayload(pmcerr.KindProcessorCorrupted,
				pmcerr.ProcessorCorruptedPayload{Name: proc.Jar, File: path, ExpectedSHA1: expected},
				"declared output sha1 mismatch")
		}
	}
	return nil
}

func hashFileSHA1(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha1.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// readMainClass pulls Main-Class out of a jar's META-INF/MANIFEST.MF
// without loading any of the jar's actual classes.
func readMainClass(jarPath string) (string, error) {
	jar, err := parseInstallerJarFile(jarPath)
	if err != nil {
		return "", err
	}
	manifest, ok := jar.get("META-INF/MANIFEST.MF")
	if !ok {
		return "", fmt.Errorf("missing META-INF/MANIFEST.MF in %s", jarPath)
	}
	for _, line := range strings.Split(string(manifest), "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.HasPrefix(line, "Main-Class:") {
			return strings.TrimSpace(strings.TrimPrefix(line, "Main-Class:")), nil
		}
	}
	return "", fmt.Errorf("no Main-Class entry in %s", jarPath)
}

func parseInstallerJarFile(path string) (*installerJar, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parseInstallerJar(data)
}

func classpathSeparator() string {
	if runtime.GOOS == "windows" {
		return ";"
	}
	return ":"
}
