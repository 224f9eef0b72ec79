package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const (
	// fileFormatVersion is bumped when the document layout changes.
	fileFormatVersion = 1

	profilesFileName = "profiles.json"
	appDirName       = "odin-progression"
)

// fileDocument is the on-disk layout of a FileStore.
type fileDocument struct {
	Version  int      `json:"version"`
	Seq      int64    `json:"seq"`
	Profiles []record `json:"profiles"`
}

// FileStore is a MemoryStore that writes every change to a single JSON
// document. It suits single-process deployments and local development.
type FileStore struct {
	*MemoryStore
	dir string
}

// NewFileStore opens the store in dir, loading any existing document. Pass
// an empty string to use the default XDG state path.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		dir = defaultDataDir()
	}
	fs := &FileStore{MemoryStore: NewMemoryStore(), dir: dir}
	if err := fs.load(); err != nil {
		return nil, err
	}
	fs.MemoryStore.persist = fs.write
	return fs, nil
}

// Path returns the full path to the profiles document.
func (f *FileStore) Path() string {
	return filepath.Join(f.dir, profilesFileName)
}

// Ping checks that the data directory exists or can be created.
func (f *FileStore) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(f.dir, 0o700); err != nil {
		return fmt.Errorf("data dir unavailable: %w", err)
	}
	return nil
}

func (f *FileStore) load() error {
	data, err := os.ReadFile(f.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading profiles: %w", err)
	}

	var doc fileDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parsing profiles: %w", err)
	}
	if doc.Version > fileFormatVersion {
		return fmt.Errorf("profiles file version %d is newer than supported %d", doc.Version, fileFormatVersion)
	}

	for i := range doc.Profiles {
		r := doc.Profiles[i]
		if r.Profile == nil {
			continue
		}
		f.records[r.Profile.Key().String()] = &r
		if r.Seq > f.seq {
			f.seq = r.Seq
		}
	}
	if doc.Seq > f.seq {
		f.seq = doc.Seq
	}
	return nil
}

// write replaces the document using a temp-file-then-rename so readers
// never observe a partial file.
func (f *FileStore) write(seq int64, records []record) error {
	if err := os.MkdirAll(f.dir, 0o700); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}

	data, err := json.MarshalIndent(fileDocument{
		Version:  fileFormatVersion,
		Seq:      seq,
		Profiles: records,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling profiles: %w", err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(f.dir, ".profiles-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, f.Path()); err != nil {
		return fmt.Errorf("renaming profiles file: %w", err)
	}
	committed = true
	return nil
}

// defaultDataDir returns ~/.local/state/odin-progression, respecting
// XDG_STATE_HOME if set.
func defaultDataDir() string {
	if base := os.Getenv("XDG_STATE_HOME"); base != "" {
		return filepath.Join(base, appDirName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return filepath.Join(home, ".local", "state", appDirName)
}
