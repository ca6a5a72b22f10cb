// Package authdb persists the on-disk session store named in spec.md
// §6's filesystem layout (<work>/portablemc_auth.json): a set of
// bearer-token-shaped sessions plus which one is active.
package authdb

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/quasar/pmc/internal/pmcerr"
)

// Kind distinguishes a Microsoft-authenticated session from an offline
// (cracked/no-auth) one.
type Kind string

const (
	KindMSA     Kind = "msa"
	KindOffline Kind = "offline"
)

// Session is one stored identity: a username and access token usable for
// auth_player_name and auth_access_token at assembly time without
// re-running the MSA flow on every launch. It has no separate uuid field.
type Session struct {
	ID               string    `json:"id"` // lookup key; msa.Login sets the profile uuid, pmc login replaces it with the given id
	Kind             Kind      `json:"kind"`
	Username         string    `json:"username"`
	AccessToken      string    `json:"accessToken"`
	ExpiresAt        time.Time `json:"expiresAt"`
	MSARefreshToken  string    `json:"msaRefreshToken,omitempty"`
}

// Expired reports whether the session's access token needs refreshing,
// with a 5-minute buffer so a launch started just before expiry doesn't
// fail mid-flight. Offline sessions never expire.
func (s *Session) Expired() bool {
	if s.Kind == KindOffline {
		return false
	}
	return time.Now().Add(5 * time.Minute).After(s.ExpiresAt)
}

// DB is the on-disk session store, one JSON document per work directory.
type DB struct {
	Sessions []*Session `json:"sessions"`
	ActiveID string     `json:"activeId"`
	path     string
}

// Open loads the store at path, returning an empty DB if it doesn't
// exist yet (first login on this work directory).
func Open(path string) (*DB, error) {
	db := &DB{path: path}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return db, nil
	}
	if err != nil {
		return nil, pmcerr.Wrap(pmcerr.KindAuthDBIO, err, "reading auth db: "+path)
	}

	if err := json.Unmarshal(data, db); err != nil {
		return nil, pmcerr.Wrap(pmcerr.KindAuthDBCorrupted, err, "parsing auth db: "+path)
	}
	db.path = path
	return db, nil
}

// Save write-then-renames the store so a reader never observes a
// half-written auth db.
func (db *DB) Save() error {
	if err := os.MkdirAll(filepath.Dir(db.path), 0755); err != nil {
		return pmcerr.Wrap(pmcerr.KindAuthDBWrite, err, "creating auth db directory")
	}
	data, err := json.MarshalIndent(db, "", "  ")
	if err != nil {
		return pmcerr.Wrap(pmcerr.KindAuthDBWrite, err, "encoding auth db")
	}
	tmp := db.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return pmcerr.Wrap(pmcerr.KindAuthDBWrite, err, "writing auth db")
	}
	if err := os.Rename(tmp, db.path); err != nil {
		return pmcerr.Wrap(pmcerr.KindAuthDBWrite, err, "renaming auth db")
	}
	return nil
}

// Put inserts or replaces a session by ID. The first session ever put
// into an empty store becomes active.
func (db *DB) Put(s *Session) {
	for i, existing := range db.Sessions {
		if existing.ID == s.ID {
			db.Sessions[i] = s
			return
		}
	}
	db.Sessions = append(db.Sessions, s)
	if db.ActiveID == "" {
		db.ActiveID = s.ID
	}
}

// Remove deletes a session by ID, clearing ActiveID if it was the
// active one.
func (db *DB) Remove(id string) {
	for i, s := range db.Sessions {
		if s.ID == id {
			db.Sessions = append(db.Sessions[:i], db.Sessions[i+1:]...)
			break
		}
	}
	if db.ActiveID == id {
		db.ActiveID = ""
	}
}

// Active returns the active session, or nil if there is none.
func (db *DB) Active() *Session {
	if db.ActiveID == "" {
		return nil
	}
	return db.Get(db.ActiveID)
}

// Get looks up a session by ID.
func (db *DB) Get(id string) *Session {
	for _, s := range db.Sessions {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// SetActive marks id as the active session; the id must already exist.
func (db *DB) SetActive(id string) error {
	if db.Get(id) == nil {
		return pmcerr.New(pmcerr.KindAuthDBIO, "session not found: "+id)
	}
	db.ActiveID = id
	return nil
}
