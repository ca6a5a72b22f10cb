package authdb

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/quasar/pmc/internal/pmcerr"
)

func TestOpen_MissingFileYieldsEmptyDB(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(filepath.Join(dir, "portablemc_auth.json"))
	if err != nil {
		t.Fatal(err)
	}
	if len(db.Sessions) != 0 || db.ActiveID != "" {
		t.Fatalf("expected empty db, got %+v", db)
	}
}

func TestPut_FirstSessionBecomesActive(t *testing.T) {
	dir := t.TempDir()
	db, _ := Open(filepath.Join(dir, "portablemc_auth.json"))

	db.Put(&Session{ID: "abc", Kind: KindMSA, Username: "steve"})
	if db.ActiveID != "abc" {
		t.Fatalf("expected abc active, got %s", db.ActiveID)
	}
	if db.Active().Username != "steve" {
		t.Fatalf("expected active session to resolve, got %+v", db.Active())
	}
}

func TestPut_ReplacesExistingByID(t *testing.T) {
	dir := t.TempDir()
	db, _ := Open(filepath.Join(dir, "portablemc_auth.json"))

	db.Put(&Session{ID: "abc", Username: "steve"})
	db.Put(&Session{ID: "abc", Username: "alex"})

	if len(db.Sessions) != 1 {
		t.Fatalf("expected 1 session after replace, got %d", len(db.Sessions))
	}
	if db.Sessions[0].Username != "alex" {
		t.Fatalf("expected replaced username, got %s", db.Sessions[0].Username)
	}
}

func TestSaveAndReopen_RoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "portablemc_auth.json")
	db, _ := Open(path)
	db.Put(&Session{ID: "abc", Kind: KindMSA, Username: "steve", AccessToken: "tok", ExpiresAt: time.Now().Add(time.Hour)})

	if err := db.Save(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatal("expected temp file removed after rename")
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if reopened.ActiveID != "abc" || len(reopened.Sessions) != 1 {
		t.Fatalf("unexpected reopened db: %+v", reopened)
	}
	if reopened.Sessions[0].AccessToken != "tok" {
		t.Fatalf("unexpected access token: %s", reopened.Sessions[0].AccessToken)
	}
}

func TestRemove_ClearsActiveWhenRemovingActiveSession(t *testing.T) {
	dir := t.TempDir()
	db, _ := Open(filepath.Join(dir, "portablemc_auth.json"))
	db.Put(&Session{ID: "abc"})

	db.Remove("abc")
	if db.ActiveID != "" {
		t.Fatalf("expected active id cleared, got %s", db.ActiveID)
	}
	if len(db.Sessions) != 0 {
		t.Fatalf("expected session removed, got %+v", db.Sessions)
	}
}

func TestSetActive_UnknownIDRejected(t *testing.T) {
	dir := t.TempDir()
	db, _ := Open(filepath.Join(dir, "portablemc_auth.json"))
	err := db.SetActive("nope")
	if !pmcerr.Is(err, pmcerr.KindAuthDBIO) {
		t.Fatalf("expected auth_db_io, got %v", err)
	}
}

func TestSession_Expired(t *testing.T) {
	msa := &Session{Kind: KindMSA, ExpiresAt: time.Now().Add(-time.Minute)}
	if !msa.Expired() {
		t.Fatal("expected expired msa session")
	}

	offline := &Session{Kind: KindOffline}
	if offline.Expired() {
		t.Fatal("offline sessions should never expire")
	}

	freshMSA := &Session{Kind: KindMSA, ExpiresAt: time.Now().Add(time.Hour)}
	if freshMSA.Expired() {
		t.Fatal("expected fresh msa session to not be expired")
	}
}

func TestOpen_CorruptedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "portablemc_auth.json")
	if err := os.WriteFile(path, []byte("not json"), 0644); err != nil {
		t.Fatal(err)
	}
	_, err := Open(path)
	if !pmcerr.Is(err, pmcerr.KindAuthDBCorrupted) {
		t.Fatalf("expected auth_db_corrupted, got %v", err)
	}
}
