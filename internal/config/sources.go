package config

import (
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/hashicorp/go-version"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/moolen/invagent/internal/logging"
)

// minSourcesSchemaVersion and maxSourcesSchemaVersion bound the sources
// file schema versions this build understands, expressed as versions so
// the comparison is a proper semver range check rather than a bare int
// equality test: [min, max).
const (
	minSourcesSchemaVersion = "1.0.0"
	maxSourcesSchemaVersion = "2.0.0"
)

// SourceKind identifies what a configured source feeds: knowledge lookups
// (runbooks, postmortems, on-call docs) or infrastructure discovery
// (cloud provider inventories, deploy metadata).
type SourceKind string

const (
	SourceKnowledge SourceKind = "knowledge"
	SourceInfra     SourceKind = "infra"
)

// SourceConfig describes one configured knowledge or infrastructure source
// instance, consumed by KnowledgeContextMgr / InfraContextMgr respectively.
type SourceConfig struct {
	Name    string                 `yaml:"name"`
	Kind    SourceKind             `yaml:"kind"`
	Type    string                 `yaml:"type"`
	Enabled bool                   `yaml:"enabled"`
	Config  map[string]interface{} `yaml:"config"`
}

// SourcesFile is the top-level shape of the YAML file listing every
// configured source instance.
type SourcesFile struct {
	SchemaVersion int            `yaml:"schemaVersion"`
	Sources       []SourceConfig `yaml:"sources"`
}

// validateSchemaVersion rejects a schemaVersion outside
// [minSourcesSchemaVersion, maxSourcesSchemaVersion).
func validateSchemaVersion(schemaVersion int) error {
	v, err := version.NewVersion(fmt.Sprintf("%d.0.0", schemaVersion))
	if err != nil {
		return fmt.Errorf("invalid sources schema version %d: %w", schemaVersion, err)
	}
	min := version.Must(version.NewVersion(minSourcesSchemaVersion))
	max := version.Must(version.NewVersion(maxSourcesSchemaVersion))
	if v.LessThan(min) || !v.LessThan(max) {
		return fmt.Errorf("unsupported sources schema version %d (supported range [%s, %s))", schemaVersion, minSourcesSchemaVersion, maxSourcesSchemaVersion)
	}
	return nil
}

// Validate checks schema version compatibility and name uniqueness.
func (f *SourcesFile) Validate() error {
	if err := validateSchemaVersion(f.SchemaVersion); err != nil {
		return err
	}
	seen := make(map[string]bool, len(f.Sources))
	for _, s := range f.Sources {
		if s.Name == "" {
			return fmt.Errorf("source entry missing name")
		}
		if seen[s.Name] {
			return fmt.Errorf("duplicate source name %q", s.Name)
		}
		seen[s.Name] = true
		switch s.Kind {
		case SourceKnowledge, SourceInfra:
		default:
			return fmt.Errorf("source %q has unknown kind %q", s.Name, s.Kind)
		}
	}
	return nil
}

// LoadSourcesFile reads and validates a sources YAML file.
func LoadSourcesFile(filePath string) (*SourcesFile, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(filePath), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("loading sources file %s: %w", filePath, err)
	}

	var sf SourcesFile
	if err := k.UnmarshalWithConf("", &sf, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return nil, fmt.Errorf("parsing sources file %s: %w", filePath, err)
	}
	if err := sf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid sources file %s: %w", filePath, err)
	}
	return &sf, nil
}

// SourcesReloadCallback is invoked with the newly loaded file whenever the
// watched sources file changes on disk.
type SourcesReloadCallback func(*SourcesFile)

// SourcesWatcherConfig configures a SourcesWatcher.
type SourcesWatcherConfig struct {
	FilePath       string
	DebounceMillis int
}

// SourcesWatcher watches a sources YAML file for changes and invokes a
// callback with the reloaded, validated contents. A bad edit (one that
// fails to parse or validate) is logged and ignored; the last-good
// configuration keeps serving until a valid file appears.
type SourcesWatcher struct {
	cfg      SourcesWatcherConfig
	callback SourcesReloadCallback
	watcher  *fsnotify.Watcher
	logger   *logging.Logger

	mu        sync.Mutex
	timer     *time.Timer
	stopCh    chan struct{}
	runningWg sync.WaitGroup
}

// NewSourcesWatcher constructs a watcher for cfg.FilePath. DebounceMillis
// defaults to 300ms when zero.
func NewSourcesWatcher(cfg SourcesWatcherConfig, callback SourcesReloadCallback) (*SourcesWatcher, error) {
	if cfg.DebounceMillis == 0 {
		cfg.DebounceMillis = 300
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	return &SourcesWatcher{
		cfg:      cfg,
		callback: callback,
		watcher:  w,
		logger:   logging.GetLogger("config.sources"),
		stopCh:   make(chan struct{}),
	}, nil
}

// Start begins watching the configured file. It loads and delivers the
// current contents once before watching for further changes.
func (w *SourcesWatcher) Start() error {
	sf, err := LoadSourcesFile(w.cfg.FilePath)
	if err != nil {
		return err
	}
	w.callback(sf)

	if err := w.watcher.Add(w.cfg.FilePath); err != nil {
		return fmt.Errorf("watching %s: %w", w.cfg.FilePath, err)
	}

	w.runningWg.Add(1)
	go w.loop()
	return nil
}

func (w *SourcesWatcher) loop() {
	defer w.runningWg.Done()
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				w.scheduleReload()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.ErrorWithErr("sources watcher error", err)
		case <-w.stopCh:
			return
		}
	}
}

func (w *SourcesWatcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(time.Duration(w.cfg.DebounceMillis)*time.Millisecond, w.reload)
}

func (w *SourcesWatcher) reload() {
	sf, err := LoadSourcesFile(w.cfg.FilePath)
	if err != nil {
		w.logger.ErrorWithErr("reload of sources file failed, keeping previous configuration", err)
		return
	}
	w.callback(sf)
}

// Stop stops watching and waits for the internal goroutine to exit.
func (w *SourcesWatcher) Stop() error {
	close(w.stopCh)
	err := w.watcher.Close()
	w.runningWg.Wait()
	return err
}
