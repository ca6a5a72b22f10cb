package javaprovision

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/quasar/pmc/internal/config"
	"github.com/quasar/pmc/internal/events"
	"github.com/quasar/pmc/internal/fetch"
	"github.com/quasar/pmc/internal/metadata"
	"github.com/quasar/pmc/internal/pmcerr"
)

func testCtx(t *testing.T) *config.Context {
	t.Helper()
	dir := t.TempDir()
	ctx := config.NewContext(dir, dir)
	if err := ctx.EnsureDirs(); err != nil {
		t.Fatal(err)
	}
	return ctx
}

func TestResolve_StaticPolicyRequiresExistingPath(t *testing.T) {
	ctx := testCtx(t)
	_, err := Resolve(context.Background(), ctx, nil, Settings{Policy: PolicyStatic, StaticPath: filepath.Join(ctx.Main, "nope")}, fetch.New(1), events.NewDispatcher(nil))
	if !pmcerr.Is(err, pmcerr.KindJVMNotFound) {
		t.Fatalf("expected jvm_not_found, got %v", err)
	}
}

func TestResolve_StaticPolicyAcceptsExistingPath(t *testing.T) {
	ctx := testCtx(t)
	fakeJava := filepath.Join(ctx.Main, "java")
	if err := os.WriteFile(fakeJava, []byte("#!/bin/sh"), 0755); err != nil {
		t.Fatal(err)
	}

	path, err := Resolve(context.Background(), ctx, nil, Settings{Policy: PolicyStatic, StaticPath: fakeJava}, fetch.New(1), events.NewDispatcher(nil))
	if err != nil {
		t.Fatal(err)
	}
	if path != fakeJava {
		t.Fatalf("got %q, want %q", path, fakeJava)
	}
}

func fakeJavaScript(t *testing.T, dir, versionLine string) string {
	t.Helper()
	path := filepath.Join(dir, "java")
	script := "#!/bin/sh\necho '" + versionLine + "' 1>&2\n"
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestResolve_StaticPolicyIncompatibleMajorReportsCompatibleFalse(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("fake java script is a shell script")
	}
	ctx := testCtx(t)
	fakeJava := fakeJavaScript(t, ctx.Main, `openjdk version "8.0.0" 2023-10-17`)

	ch := make(chan events.Event, 8)
	req := &metadata.JavaVersionReq{MajorVersion: 21}
	path, err := Resolve(context.Background(), ctx, req, Settings{Policy: PolicyStatic, StaticPath: fakeJava}, fetch.New(1), events.NewDispatcher(ch))
	if err != nil {
		t.Fatalf("static policy should not fail on an incompatible major: %v", err)
	}
	if path != fakeJava {
		t.Fatalf("got %q, want %q", path, fakeJava)
	}

	var loaded *events.LoadedJVMData
	close(ch)
	for e := range ch {
		if e.Kind == events.KindLoadedJVM {
			data := e.Data.(events.LoadedJVMData)
			loaded = &data
		}
	}
	if loaded == nil {
		t.Fatal("expected a loaded_jvm event")
	}
	if loaded.Compatible {
		t.Fatal("expected compatible=false for a java 8 runtime against a major-21 requirement")
	}
}

func TestResolve_StaticPolicyCompatibleMajorReportsCompatibleTrue(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("fake java script is a shell script")
	}
	ctx := testCtx(t)
	fakeJava := fakeJavaScript(t, ctx.Main, `openjdk version "21.0.1" 2023-10-17`)

	ch := make(chan events.Event, 8)
	req := &metadata.JavaVersionReq{MajorVersion: 17}
	path, err := Resolve(context.Background(), ctx, req, Settings{Policy: PolicyStatic, StaticPath: fakeJava}, fetch.New(1), events.NewDispatcher(ch))
	if err != nil {
		t.Fatal(err)
	}
	if path != fakeJava {
		t.Fatalf("got %q, want %q", path, fakeJava)
	}

	close(ch)
	var loaded *events.LoadedJVMData
	for e := range ch {
		if e.Kind == events.KindLoadedJVM {
			data := e.Data.(events.LoadedJVMData)
			loaded = &data
		}
	}
	if loaded == nil || !loaded.Compatible {
		t.Fatalf("expected compatible=true, got %+v", loaded)
	}
}

func TestResolve_UnknownPolicyRejected(t *testing.T) {
	ctx := testCtx(t)
	_, err := Resolve(context.Background(), ctx, nil, Settings{Policy: "bogus"}, fetch.New(1), events.NewDispatcher(nil))
	if !pmcerr.Is(err, pmcerr.KindJVMNotFound) {
		t.Fatalf("expected jvm_not_found for unknown policy, got %v", err)
	}
}

func TestProvisionMojang_SkipsDownloadWhenAlreadyPresent(t *testing.T) {
	ctx := testCtx(t)
	destDir := filepath.Join(ctx.JVM, "jre-legacy")
	binDir := filepath.Join(destDir, "bin")
	if err := os.MkdirAll(binDir, 0755); err != nil {
		t.Fatal(err)
	}
	binName := "java"
	exePath := filepath.Join(binDir, binName)
	if err := os.WriteFile(exePath, []byte("#!/bin/sh"), 0755); err != nil {
		t.Fatal(err)
	}

	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	path, err := provisionMojang(context.Background(), ctx, "jre-legacy", fetch.New(1), events.NewDispatcher(nil))
	if err != nil {
		t.Fatal(err)
	}
	if path != exePath {
		t.Fatalf("got %q, want %q", path, exePath)
	}
	if called {
		t.Fatal("manifest server should not be contacted when the jvm is already present")
	}
}
