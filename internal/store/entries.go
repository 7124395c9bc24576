package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/joshp123/unisenza-bridge/internal/hass"
)

const (
	SchemaVersion = 1
	blobName      = "config_entries"
)

var ErrStateNotFound = errors.New("config entry state not found")

// Document is the persisted config entry file.
type Document struct {
	SchemaVersion int                `json:"schema_version"`
	Entries       []hass.EntryRecord `json:"entries"`
}

// FileStore persists config entries to a local 0600 JSON file and mirrors the
// document to an optional BlobStore.
type FileStore struct {
	path   string
	blob   BlobStore
	logger *logrus.Logger

	mu sync.Mutex
}

func NewFileStore(path string, blob BlobStore, logger *logrus.Logger) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("entries path is required")
	}
	if !filepath.IsAbs(path) {
		return nil, fmt.Errorf("entries path must be absolute")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &FileStore{path: path, blob: blob, logger: logger}, nil
}

// LoadEntries reads the local file, falling back to the blob mirror and
// seeding the local file from it. A missing document yields no entries.
func (s *FileStore) LoadEntries(ctx context.Context) ([]hass.EntryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	local, localErr := LoadDocument(s.path)
	if localErr == nil {
		if err := checkStateFile(s.path); err != nil {
			return nil, err
		}
		s.persistBlob(ctx, local)
		return local.Entries, nil
	}
	if !errors.Is(localErr, ErrStateNotFound) {
		return nil, localErr
	}

	if s.blob == nil {
		return nil, nil
	}

	data, err := s.blob.Load(ctx, blobName)
	if errors.Is(err, ErrBlobNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load blob: %w", err)
	}
	doc, err := DecodeDocument(data)
	if err != nil {
		return nil, err
	}
	if err := WriteDocument(s.path, doc); err != nil {
		return nil, err
	}
	s.logger.WithField("entries", len(doc.Entries)).Info("restored config entries from blob mirror")
	return doc.Entries, nil
}

// SaveEntries writes the local file. Blob mirror failures are logged and
// tracked but do not fail the save.
func (s *FileStore) SaveEntries(ctx context.Context, records []hass.EntryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := Document{SchemaVersion: SchemaVersion, Entries: records}
	if err := WriteDocument(s.path, doc); err != nil {
		persistFailure.Inc()
		return fmt.Errorf("persist entries: %w", err)
	}
	persistSuccess.Inc()
	storedEntries.Set(float64(len(records)))
	s.persistBlob(ctx, doc)
	return nil
}

func (s *FileStore) persistBlob(ctx context.Context, doc Document) {
	if s.blob == nil {
		return
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err == nil {
		err = s.blob.Save(ctx, blobName, data)
	}
	if err != nil {
		remotePersistOK.Set(0)
		s.logger.WithError(err).Warn("mirror config entries")
		return
	}
	remotePersistOK.Set(1)
}

func LoadDocument(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Document{}, ErrStateNotFound
		}
		return Document{}, fmt.Errorf("read entries: %w", err)
	}
	return DecodeDocument(data)
}

func DecodeDocument(data []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("decode entries: %w", err)
	}
	if err := doc.Validate(); err != nil {
		return Document{}, err
	}
	return doc, nil
}

func (d Document) Validate() error {
	if d.SchemaVersion != SchemaVersion {
		return fmt.Errorf("unsupported schema_version: %d", d.SchemaVersion)
	}
	seen := make(map[string]bool, len(d.Entries))
	for _, entry := range d.Entries {
		if entry.EntryID == "" {
			return fmt.Errorf("entry missing entry_id")
		}
		if entry.Domain == "" {
			return fmt.Errorf("entry %s missing domain", entry.EntryID)
		}
		if seen[entry.EntryID] {
			return fmt.Errorf("duplicate entry_id: %s", entry.EntryID)
		}
		seen[entry.EntryID] = true
	}
	return nil
}

func WriteDocument(path string, doc Document) error {
	if doc.SchemaVersion == 0 {
		doc.SchemaVersion = SchemaVersion
	}
	if err := ensureParent(path); err != nil {
		return err
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal entries: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func ensureParent(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir state dir: %w", err)
	}
	return nil
}

// Entries are stored with plaintext credentials, so the file must stay
// private to the daemon user.
func checkStateFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.Mode().Perm() != 0o600 {
		return fmt.Errorf("state file %s must have 0600 permissions", path)
	}
	if stat, ok := info.Sys().(*syscall.Stat_t); ok {
		if int(stat.Uid) != os.Geteuid() {
			return fmt.Errorf("state file %s must be owned by uid %d", path, os.Geteuid())
		}
	}
	return nil
}
