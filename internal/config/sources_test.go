package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validSourcesYAML = `
schemaVersion: 1
sources:
  - name: pagerduty-runbooks
    kind: knowledge
    type: confluence
    enabled: true
    config:
      baseUrl: https://example.atlassian.net
  - name: aws-prod
    kind: infra
    type: aws
    enabled: true
    config:
      region: us-east-1
`

func writeTempSourcesFile(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "sources.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadSourcesFileParsesValidFile(t *testing.T) {
	path := writeTempSourcesFile(t, validSourcesYAML)

	sf, err := LoadSourcesFile(path)
	require.NoError(t, err)
	require.Len(t, sf.Sources, 2)
	assert.Equal(t, "pagerduty-runbooks", sf.Sources[0].Name)
	assert.Equal(t, SourceKnowledge, sf.Sources[0].Kind)
	assert.Equal(t, "aws-prod", sf.Sources[1].Name)
	assert.Equal(t, SourceInfra, sf.Sources[1].Kind)
	assert.Equal(t, "us-east-1", sf.Sources[1].Config["region"])
}

func TestLoadSourcesFileRejectsBadSchemaVersion(t *testing.T) {
	path := writeTempSourcesFile(t, "schemaVersion: 2\nsources: []\n")

	_, err := LoadSourcesFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema version")
}

func TestLoadSourcesFileRejectsDuplicateNames(t *testing.T) {
	path := writeTempSourcesFile(t, `
schemaVersion: 1
sources:
  - name: dup
    kind: knowledge
    type: confluence
    enabled: true
  - name: dup
    kind: infra
    type: aws
    enabled: true
`)

	_, err := LoadSourcesFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestLoadSourcesFileRejectsUnknownKind(t *testing.T) {
	path := writeTempSourcesFile(t, `
schemaVersion: 1
sources:
  - name: weird
    kind: bogus
    type: x
    enabled: true
`)

	_, err := LoadSourcesFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown kind")
}

func TestLoadSourcesFileMissingFile(t *testing.T) {
	_, err := LoadSourcesFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestSourcesWatcherDeliversInitialLoadAndReload(t *testing.T) {
	path := writeTempSourcesFile(t, validSourcesYAML)

	received := make(chan *SourcesFile, 4)
	watcher, err := NewSourcesWatcher(SourcesWatcherConfig{
		FilePath:       path,
		DebounceMillis: 20,
	}, func(sf *SourcesFile) {
		received <- sf
	})
	require.NoError(t, err)
	defer watcher.Stop()

	require.NoError(t, watcher.Start())

	select {
	case sf := <-received:
		require.Len(t, sf.Sources, 2)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for initial load")
	}

	updated := `
schemaVersion: 1
sources:
  - name: pagerduty-runbooks
    kind: knowledge
    type: confluence
    enabled: false
`
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))

	select {
	case sf := <-received:
		require.Len(t, sf.Sources, 1)
		assert.False(t, sf.Sources[0].Enabled)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}

func TestSourcesWatcherKeepsLastGoodConfigOnBadReload(t *testing.T) {
	path := writeTempSourcesFile(t, validSourcesYAML)

	received := make(chan *SourcesFile, 4)
	watcher, err := NewSourcesWatcher(SourcesWatcherConfig{
		FilePath:       path,
		DebounceMillis: 20,
	}, func(sf *SourcesFile) {
		received <- sf
	})
	require.NoError(t, err)
	defer watcher.Stop()

	require.NoError(t, watcher.Start())
	<-received // initial load

	require.NoError(t, os.WriteFile(path, []byte("not: [valid"), 0o644))

	select {
	case <-received:
		t.Fatal("callback should not fire for an invalid reload")
	case <-time.After(500 * time.Millisecond):
		// expected: bad reload is swallowed, no callback delivered
	}
}
