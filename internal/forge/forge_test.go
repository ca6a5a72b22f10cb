package forge

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/quasar/pmc/internal/config"
	"github.com/quasar/pmc/internal/events"
	"github.com/quasar/pmc/internal/pmcerr"
	"github.com/quasar/pmc/internal/resources"
)

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func restoreForgeURLs() {
	forgePromotionsURL = "https://files.minecraftforge.net/net/minecraftforge/forge/promotions_slim.json"
	neoForgeVersionsURL = "https://maven.neoforged.net/api/maven/versions/releases/net/neoforged/neoforge"
}

func TestResolveForge_LatestAndRecommended(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"promos":{"1.20.1-latest":"47.2.0","1.20.1-recommended":"47.1.0"}}`))
	}))
	defer srv.Close()
	forgePromotionsURL = srv.URL
	defer restoreForgeURLs()

	c := NewVersionClient(Forge)
	c.http = srv.Client()

	v, err := c.ResolveVersion(context.Background(), "1.20.1", "-latest")
	if err != nil {
		t.Fatal(err)
	}
	if v != "47.2.0" {
		t.Fatalf("expected 47.2.0, got %s", v)
	}

	v, err = c.ResolveVersion(context.Background(), "1.20.1", "-recommended")
	if err != nil {
		t.Fatal(err)
	}
	if v != "47.1.0" {
		t.Fatalf("expected 47.1.0, got %s", v)
	}
}

func TestResolveForge_RecommendedFallsBackToLatest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"promos":{"1.20.1-latest":"47.2.0"}}`))
	}))
	defer srv.Close()
	forgePromotionsURL = srv.URL
	defer restoreForgeURLs()

	c := NewVersionClient(Forge)
	c.http = srv.Client()

	v, err := c.ResolveVersion(context.Background(), "1.20.1", "-recommended")
	if err != nil {
		t.Fatal(err)
	}
	if v != "47.2.0" {
		t.Fatalf("expected fallback to 47.2.0, got %s", v)
	}
}

func TestResolveForge_Literal(t *testing.T) {
	c := NewVersionClient(Forge)
	v, err := c.ResolveVersion(context.Background(), "1.20.1", "47.0.35")
	if err != nil {
		t.Fatal(err)
	}
	if v != "47.0.35" {
		t.Fatalf("expected literal passthrough, got %s", v)
	}
}

func TestResolveForge_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"promos":{}}`))
	}))
	defer srv.Close()
	forgePromotionsURL = srv.URL
	defer restoreForgeURLs()

	c := NewVersionClient(Forge)
	c.http = srv.Client()

	_, err := c.ResolveVersion(context.Background(), "1.20.1", "-latest")
	if !pmcerr.Is(err, pmcerr.KindForgeLatestNotFound) {
		t.Fatalf("expected forge_latest_version_not_found, got %v", err)
	}
}

func TestResolveNeoForge_LatestAndRecommended(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"versions":["20.4.80-beta","20.4.190","20.4.191","20.6.0"]}`))
	}))
	defer srv.Close()
	neoForgeVersionsURL = srv.URL
	defer restoreForgeURLs()

	c := NewVersionClient(NeoForge)
	c.http = srv.Client()

	v, err := c.ResolveVersion(context.Background(), "1.20.4", "-latest")
	if err != nil {
		t.Fatal(err)
	}
	if v != "20.4.191" {
		t.Fatalf("expected newest 1.20.4 match 20.4.191, got %s", v)
	}

	v, err = c.ResolveVersion(context.Background(), "1.20.4", "-recommended")
	if err != nil {
		t.Fatal(err)
	}
	if v != "20.4.191" {
		t.Fatalf("expected stable newest 20.4.191 excluding beta, got %s", v)
	}
}

func TestResolveNeoForge_NoMatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"versions":["21.0.0"]}`))
	}))
	defer srv.Close()
	neoForgeVersionsURL = srv.URL
	defer restoreForgeURLs()

	c := NewVersionClient(NeoForge)
	c.http = srv.Client()

	_, err := c.ResolveVersion(context.Background(), "1.20.4", "-latest")
	if !pmcerr.Is(err, pmcerr.KindForgeLatestNotFound) {
		t.Fatalf("expected forge_latest_version_not_found, got %v", err)
	}
}

func TestInstallerURL_LegacyTripleVersion(t *testing.T) {
	c := NewVersionClient(Forge)
	url := c.InstallerURL("1.7.10", "10.13.4.1614")
	want := "https://maven.minecraftforge.net/net/minecraftforge/forge/1.7.10-10.13.4.1614-1.7.10/forge-1.7.10-10.13.4.1614-1.7.10-installer.jar"
	if url != want {
		t.Fatalf("got %s, want %s", url, want)
	}
}

func TestInstallerURL_Modern(t *testing.T) {
	c := NewVersionClient(Forge)
	url := c.InstallerURL("1.20.1", "47.1.0")
	want := "https://maven.minecraftforge.net/net/minecraftforge/forge/1.20.1-47.1.0/forge-1.20.1-47.1.0-installer.jar"
	if url != want {
		t.Fatalf("got %s, want %s", url, want)
	}
}

func TestInstallerURL_NeoForge(t *testing.T) {
	c := NewVersionClient(NeoForge)
	url := c.InstallerURL("1.20.4", "20.4.191")
	want := "https://maven.neoforged.net/releases/net/neoforged/neoforge/20.4.191/neoforge-20.4.191-installer.jar"
	if url != want {
		t.Fatalf("got %s, want %s", url, want)
	}
}

const legacyInstallProfile = `{
	"install": {"path": "net.minecraftforge:forge:1.12.2-14.23.5.2860", "filePath": "forge-1.12.2-14.23.5.2860.jar"},
	"versionInfo": {
		"id": "1.12.2-forge1.12.2-14.23.5.2860",
		"mainClass": "net.minecraft.launchwrapper.Launch",
		"minecraftArguments": "--username ${auth_player_name}",
		"libraries": [
			{"name": "net.minecraftforge:forge:1.12.2-14.23.5.2860", "url": "https://files.minecraftforge.net/maven/", "clientreq": true},
			{"name": "org.ow2.asm:asm-all:5.2", "downloads": {"artifact": {"url": "https://libraries.minecraft.net/org/ow2/asm/asm-all/5.2/asm-all-5.2.jar", "path": "org/ow2/asm/asm-all/5.2/asm-all-5.2.jar"}}}
		]
	}
}`

func TestParseProfile_Legacy(t *testing.T) {
	archive := buildZip(t, map[string]string{"install_profile.json": legacyInstallProfile})
	jar, err := parseInstallerJar(archive)
	if err != nil {
		t.Fatal(err)
	}

	p, err := ParseProfile(jar, "1.12.2-forge-14.23.5.2860", "1.12.2")
	if err != nil {
		t.Fatal(err)
	}
	if !p.Legacy {
		t.Fatal("expected legacy profile")
	}
	if p.Descriptor.ID != "1.12.2-forge-14.23.5.2860" || p.Descriptor.InheritsFrom != "1.12.2" {
		t.Fatalf("unexpected descriptor: %+v", p.Descriptor)
	}
	if len(p.Libraries) != 2 {
		t.Fatalf("expected 2 libraries, got %d: %+v", len(p.Libraries), p.Libraries)
	}
	if p.Libraries[0].Name != "net.minecraftforge:forge:1.12.2-14.23.5.2860" || !p.Libraries[0].ClientReq {
		t.Fatalf("unexpected legacy library: %+v", p.Libraries[0])
	}
	if p.Libraries[1].ArtifactURL == "" {
		t.Fatalf("expected artifact url library: %+v", p.Libraries[1])
	}
}

const modernVersionJSON = `{
	"id": "1.20.1-forge-47.1.0",
	"mainClass": "cpw.mods.bootstraplauncher.BootstrapLauncher",
	"arguments": {"game": ["--launchTarget", "forgeclient"]}
}`

const modernInstallProfile = `{
	"path": "net.minecraftforge:forge:1.20.1-47.1.0:client",
	"libraries": [
		{"name": "net.minecraftforge:forge:1.20.1-47.1.0", "downloads": {"artifact": {"url": "", "path": "net/minecraftforge/forge/1.20.1-47.1.0/forge-1.20.1-47.1.0.jar"}}}
	],
	"data": {
		"MAPPINGS": {"client": "[de.oceanlabs.mcp:mcp_config:1.20.1]", "server": "[de.oceanlabs.mcp:mcp_config:1.20.1]"}
	},
	"processors": [
		{
			"jar": "net.minecraftforge:installertools:1.3.0:fatjar",
			"classpath": ["net.minecraftforge:forge:1.20.1-47.1.0"],
			"args": ["--task", "MCP_DATA", "--output", "{MAPPINGS}"],
			"outputs": {"{MAPPINGS}": "'da39a3ee5e6b4b0d3255bfef95601890afd80709'"}
		}
	]
}`

func TestParseProfile_Modern(t *testing.T) {
	archive := buildZip(t, map[string]string{
		"install_profile.json": modernInstallProfile,
		"version.json":         modernVersionJSON,
	})
	jar, err := parseInstallerJar(archive)
	if err != nil {
		t.Fatal(err)
	}

	p, err := ParseProfile(jar, "1.20.1-forge-47.1.0", "1.20.1")
	if err != nil {
		t.Fatal(err)
	}
	if p.Legacy {
		t.Fatal("expected modern profile")
	}
	if p.Descriptor.MainClass != "cpw.mods.bootstraplauncher.BootstrapLauncher" {
		t.Fatalf("unexpected descriptor: %+v", p.Descriptor)
	}
	if len(p.Libraries) != 1 {
		t.Fatalf("expected 1 library, got %+v", p.Libraries)
	}
	if len(p.Processors) != 1 {
		t.Fatalf("expected 1 processor, got %+v", p.Processors)
	}
	proc := p.Processors[0]
	if proc.Jar != "net.minecraftforge:installertools:1.3.0:fatjar" {
		t.Fatalf("unexpected processor jar: %s", proc.Jar)
	}
	if len(proc.Args) != 4 || proc.Args[3] != "{MAPPINGS}" {
		t.Fatalf("unexpected processor args: %+v", proc.Args)
	}
	if entry, ok := p.Data["MAPPINGS"]; !ok || entry.Client != "[de.oceanlabs.mcp:mcp_config:1.20.1]" {
		t.Fatalf("unexpected data entry: %+v", p.Data)
	}
}

func TestParseProfile_MissingInstallProfile(t *testing.T) {
	archive := buildZip(t, map[string]string{"readme.txt": "nothing here"})
	jar, err := parseInstallerJar(archive)
	if err != nil {
		t.Fatal(err)
	}
	_, err = ParseProfile(jar, "x", "1.20.1")
	if !pmcerr.Is(err, pmcerr.KindInstallProfileNotFound) {
		t.Fatalf("expected install_profile_not_found, got %v", err)
	}
}

func TestResolveLibraries_ThreeWayFallback(t *testing.T) {
	dir := t.TempDir()
	cctx := config.NewContext(dir, dir)
	if err := cctx.EnsureDirs(); err != nil {
		t.Fatal(err)
	}

	embeddedCoord := "net.minecraftforge:embedded:1.0"
	archive := buildZip(t, map[string]string{
		"maven/" + resources.MavenPath(embeddedCoord, ""): "embedded-jar-bytes",
	})
	jar, err := parseInstallerJar(archive)
	if err != nil {
		t.Fatal(err)
	}

	p := &Profile{
		Libraries: []profileLibrary{
			{Name: "org.ow2.asm:asm-all:5.2", ArtifactURL: "https://libraries.minecraft.net/org/ow2/asm/asm-all/5.2/asm-all-5.2.jar"},
			{Name: embeddedCoord},
			{Name: "net.minecraftforge:forge:1.12.2-14.23.5.2860", URL: "https://files.minecraftforge.net/maven/"},
		},
	}

	entries, err := ResolveLibraries(cctx, jar, p)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 fetch entries (direct url + legacy base url), got %d: %+v", len(entries), entries)
	}

	embeddedDest := filepath.Join(cctx.Libraries, resources.MavenPath(embeddedCoord, ""))
	data, err := os.ReadFile(embeddedDest)
	if err != nil {
		t.Fatalf("expected embedded library written to disk: %v", err)
	}
	if string(data) != "embedded-jar-bytes" {
		t.Fatalf("unexpected embedded library contents: %s", data)
	}
}

func writeFakeJava(t *testing.T, dir string, exitCode int) string {
	t.Helper()
	path := filepath.Join(dir, "fake-java.sh")
	script := "#!/bin/sh\nexit " + itoaTest(exitCode) + "\n"
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatal(err)
	}
	return path
}

func itoaTest(n int) string {
	if n == 0 {
		return "0"
	}
	return string(rune('0' + n))
}

func buildFakeProcessorJar(t *testing.T, mainClass string) []byte {
	t.Helper()
	manifest := "Manifest-Version: 1.0\nMain-Class: " + mainClass + "\n"
	return buildZip(t, map[string]string{"META-INF/MANIFEST.MF": manifest})
}

func TestRunProcessors_SuccessAndOutputVerification(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("fake java is a shell script")
	}

	dir := t.TempDir()
	cctx := config.NewContext(dir, dir)
	if err := cctx.EnsureDirs(); err != nil {
		t.Fatal(err)
	}

	coord := "net.minecraftforge:installertools:1.3.0:fatjar"
	jarPath := filepath.Join(cctx.Libraries, resources.MavenPath(coord, ""))
	if err := os.MkdirAll(filepath.Dir(jarPath), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(jarPath, buildFakeProcessorJar(t, "net.minecraftforge.installertools.Main"), 0644); err != nil {
		t.Fatal(err)
	}

	outPath := filepath.Join(dir, "out.bin")
	if err := os.WriteFile(outPath, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}
	sum := sha1.Sum([]byte("hello"))
	expected := hex.EncodeToString(sum[:])

	p := &Profile{
		Data: map[string]dataEntry{
			"OUT": {Client: "'" + outPath + "'", Server: "'" + outPath + "'"},
			"SHA": {Client: "'" + expected + "'", Server: "'" + expected + "'"},
		},
		Processors: []Processor{
			{Jar: coord, Args: []string{"--output", "{OUT}"}, Outputs: map[string]string{"{OUT}": "{SHA}"}},
		},
	}

	javaPath := writeFakeJava(t, dir, 0)
	d := events.NewDispatcher(nil)
	if err := RunProcessors(context.Background(), cctx, javaPath, p, cctx.VersionJarPath("1.20.1"), "client", d); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRunProcessors_NonZeroExitFails(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("fake java is a shell script")
	}

	dir := t.TempDir()
	cctx := config.NewContext(dir, dir)
	if err := cctx.EnsureDirs(); err != nil {
		t.Fatal(err)
	}

	coord := "net.minecraftforge:installertools:1.3.0:fatjar"
	jarPath := filepath.Join(cctx.Libraries, resources.MavenPath(coord, ""))
	if err := os.MkdirAll(filepath.Dir(jarPath), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(jarPath, buildFakeProcessorJar(t, "net.minecraftforge.installertools.Main"), 0644); err != nil {
		t.Fatal(err)
	}

	p := &Profile{
		Data: map[string]dataEntry{},
		Processors: []Processor{
			{Jar: coord},
		},
	}

	javaPath := writeFakeJava(t, dir, 1)
	d := events.NewDispatcher(nil)
	err := RunProcessors(context.Background(), cctx, javaPath, p, "", "client", d)
	if !pmcerr.Is(err, pmcerr.KindProcessorFailed) {
		t.Fatalf("expected processor_failed, got %v", err)
	}
}

func TestRunProcessors_SkipsWrongSide(t *testing.T) {
	dir := t.TempDir()
	cctx := config.NewContext(dir, dir)
	if err := cctx.EnsureDirs(); err != nil {
		t.Fatal(err)
	}

	p := &Profile{
		Data: map[string]dataEntry{},
		Processors: []Processor{
			{Jar: "does:not:exist", SidesOnly: []string{"server"}},
		},
	}

	d := events.NewDispatcher(nil)
	if err := RunProcessors(context.Background(), cctx, "java", p, "", "client", d); err != nil {
		t.Fatalf("expected server-only processor to be skipped on client side, got %v", err)
	}
}

func TestResolveLiteral_MavenCoordinate(t *testing.T) {
	dir := t.TempDir()
	cctx := config.NewContext(dir, dir)
	resolved := resolveLiteral(cctx, "[de.oceanlabs.mcp:mcp_config:1.20.1]")
	want := filepath.Join(cctx.Libraries, resources.MavenPath("de.oceanlabs.mcp:mcp_config:1.20.1", ""))
	if resolved != want {
		t.Fatalf("got %s, want %s", resolved, want)
	}
}

func TestResolveLiteral_StringLiteral(t *testing.T) {
	dir := t.TempDir()
	cctx := config.NewContext(dir, dir)
	if got := resolveLiteral(cctx, "'plain'"); got != "plain" {
		t.Fatalf("got %s", got)
	}
}

func TestInstallerURL_TrailingSlashNotDoubled(t *testing.T) {
	c := NewVersionClient(Forge)
	url := c.InstallerURL("1.16.5", "36.2.39")
	if !strings.HasSuffix(url, "-installer.jar") {
		t.Fatalf("unexpected installer url shape: %s", url)
	}
	if strings.Contains(strings.TrimPrefix(url, "https://"), "//") {
		t.Fatalf("installer url has a doubled slash: %s", url)
	}
}
