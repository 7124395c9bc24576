package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshp123/unisenza-bridge/internal/hass"
)

type memoryBlob struct {
	objects map[string][]byte
	saveErr error
}

func newMemoryBlob() *memoryBlob {
	return &memoryBlob{objects: make(map[string][]byte)}
}

func (m *memoryBlob) Load(_ context.Context, name string) ([]byte, error) {
	data, ok := m.objects[name]
	if !ok {
		return nil, ErrBlobNotFound
	}
	return data, nil
}

func (m *memoryBlob) Save(_ context.Context, name string, data []byte) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.objects[name] = data
	return nil
}

func testLogger() (*logrus.Logger, *test.Hook) {
	return test.NewNullLogger()
}

func sampleRecords() []hass.EntryRecord {
	return []hass.EntryRecord{{
		EntryID: "entry-1",
		Domain:  "unisenza_plus",
		Title:   "Unisenza Plus",
		Source:  hass.SourceUser,
		Data:    map[string]any{"username": "user@example.com", "password": "secret"},
	}}
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "entries.json")
	logger, _ := testLogger()
	store, err := NewFileStore(path, nil, logger)
	require.NoError(t, err)

	records, err := store.LoadEntries(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)

	before := testutil.ToFloat64(persistSuccess)
	require.NoError(t, store.SaveEntries(context.Background(), sampleRecords()))
	assert.Equal(t, before+1, testutil.ToFloat64(persistSuccess))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	records, err = store.LoadEntries(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "entry-1", records[0].EntryID)
	assert.Equal(t, "secret", records[0].Data["password"])
}

func TestFileStoreRejectsLoosePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "entries.json")
	require.NoError(t, WriteDocument(path, Document{Entries: sampleRecords()}))
	require.NoError(t, os.Chmod(path, 0o644))

	logger, _ := testLogger()
	store, err := NewFileStore(path, nil, logger)
	require.NoError(t, err)

	_, err = store.LoadEntries(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "0600")
}

func TestFileStoreRestoresFromBlob(t *testing.T) {
	blob := newMemoryBlob()
	data, err := json.Marshal(Document{SchemaVersion: SchemaVersion, Entries: sampleRecords()})
	require.NoError(t, err)
	blob.objects[blobName] = data

	path := filepath.Join(t.TempDir(), "entries.json")
	logger, hook := testLogger()
	store, err := NewFileStore(path, blob, logger)
	require.NoError(t, err)

	records, err := store.LoadEntries(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)

	local, err := LoadDocument(path)
	require.NoError(t, err)
	assert.Len(t, local.Entries, 1)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "restored config entries from blob mirror", hook.LastEntry().Message)
}

func TestFileStoreMirrorFailureIsNotFatal(t *testing.T) {
	blob := newMemoryBlob()
	blob.saveErr = errors.New("bucket unavailable")

	path := filepath.Join(t.TempDir(), "entries.json")
	logger, hook := testLogger()
	store, err := NewFileStore(path, blob, logger)
	require.NoError(t, err)

	require.NoError(t, store.SaveEntries(context.Background(), sampleRecords()))
	assert.Equal(t, float64(0), testutil.ToFloat64(remotePersistOK))
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)

	blob.saveErr = nil
	require.NoError(t, store.SaveEntries(context.Background(), sampleRecords()))
	assert.Equal(t, float64(1), testutil.ToFloat64(remotePersistOK))
	assert.Contains(t, blob.objects, blobName)
}

func TestDocumentValidate(t *testing.T) {
	assert.Error(t, Document{SchemaVersion: 2}.Validate())
	assert.Error(t, Document{SchemaVersion: 1, Entries: []hass.EntryRecord{{Domain: "x"}}}.Validate())
	assert.Error(t, Document{SchemaVersion: 1, Entries: []hass.EntryRecord{{EntryID: "a"}}}.Validate())
	dup := []hass.EntryRecord{{EntryID: "a", Domain: "x"}, {EntryID: "a", Domain: "x"}}
	assert.Error(t, Document{SchemaVersion: 1, Entries: dup}.Validate())
	assert.NoError(t, Document{SchemaVersion: 1, Entries: sampleRecords()}.Validate())
}

func TestNewFileStoreRequiresAbsolutePath(t *testing.T) {
	_, err := NewFileStore("entries.json", nil, nil)
	assert.Error(t, err)
	_, err = NewFileStore("", nil, nil)
	assert.Error(t, err)
}

func TestParseEndpoint(t *testing.T) {
	host, secure, err := parseEndpoint("http://minio:9000")
	require.NoError(t, err)
	assert.Equal(t, "minio:9000", host)
	assert.False(t, secure)

	host, secure, err = parseEndpoint("s3.amazonaws.com")
	require.NoError(t, err)
	assert.Equal(t, "s3.amazonaws.com", host)
	assert.True(t, secure)

	_, _, err = parseEndpoint("https://")
	assert.Error(t, err)
}
