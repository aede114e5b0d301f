package seen

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
)

// schemaVersion stamps the state file so future format changes can detect
// and migrate (or discard) old files instead of misreading them.
const schemaVersion = 1

type fileFormat struct {
	Schema  int      `json:"schema"`
	Records []Record `json:"records"`
}

// Store reads and writes the seen-set file. It is the only component that
// touches the on-disk state; everything else works on in-memory Sets.
type Store struct {
	path string
	log  *slog.Logger
}

// NewStore creates a Store for the given state file path.
func NewStore(path string, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{path: path, log: log}
}

// Path returns the state file path.
func (st *Store) Path() string { return st.path }

// Load reads the seen-set. A missing file, unreadable file, corrupt JSON
// or unknown schema all yield an empty set with a log entry — at worst
// the next run re-delivers once, which is recoverable, while crashing on
// bad state is not.
func (st *Store) Load() Set {
	raw, err := os.ReadFile(st.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			st.log.Info("seen: no state file, starting fresh", "path", st.path)
		} else {
			st.log.Warn("seen: state file unreadable, starting fresh",
				"path", st.path, "error", err)
		}
		return NewSet()
	}

	var f fileFormat
	if err := json.Unmarshal(raw, &f); err != nil {
		st.log.Warn("seen: state file corrupt, starting fresh",
			"path", st.path, "error", err)
		return NewSet()
	}
	if f.Schema != schemaVersion {
		st.log.Warn("seen: unknown state schema, starting fresh",
			"path", st.path, "schema", f.Schema, "want", schemaVersion)
		return NewSet()
	}

	set := NewSet(f.Records...)
	st.log.Debug("seen: loaded state", "path", st.path, "records", set.Len())
	return set
}

// Save persists the set atomically: full marshal into a temp file next to
// the real one, then rename over it. Readers never observe a partial
// write. A failure here is a hard failure for the caller — persisting
// stale state silently would mean duplicate deliveries on every following
// run.
func (st *Store) Save(set Set) error {
	f := fileFormat{Schema: schemaVersion, Records: set.Records()}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("seen: marshal state: %w", err)
	}

	tmp := st.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("seen: write temp state: %w", err)
	}
	if err := os.Rename(tmp, st.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("seen: replace state: %w", err)
	}

	st.log.Debug("seen: saved state", "path", st.path, "records", set.Len())
	return nil
}
