package infra

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/moolen/invagent/internal/logging"
)

const snapshotCacheKey = "snapshot"

// Manager discovers and caches an infrastructure snapshot across a fixed
// set of regions and services.
type Manager struct {
	prober            Prober
	regions           []string
	services          []string
	maxConcurrency    int
	timeoutPerService time.Duration
	cacheTTL          time.Duration

	cache  *lru.Cache[string, *cacheEntry]
	group  singleflight.Group
	logger *logging.Logger
}

type cacheEntry struct {
	snapshot  *Snapshot
	expiresAt time.Time
}

// Config configures a new Manager.
type Config struct {
	Prober            Prober
	Regions           []string
	Services          []string
	MaxConcurrency    int
	TimeoutPerService time.Duration
	CacheTTL          time.Duration
}

// New creates a Manager. A single cache entry is kept (the whole snapshot),
// sized to one since there is exactly one key in play.
func New(cfg Config) (*Manager, error) {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 4
	}
	if cfg.TimeoutPerService <= 0 {
		cfg.TimeoutPerService = 10 * time.Second
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 2 * time.Minute
	}

	cache, err := lru.New[string, *cacheEntry](1)
	if err != nil {
		return nil, err
	}

	return &Manager{
		prober:            cfg.Prober,
		regions:           cfg.Regions,
		services:          cfg.Services,
		maxConcurrency:    cfg.MaxConcurrency,
		timeoutPerService: cfg.TimeoutPerService,
		cacheTTL:          cfg.CacheTTL,
		cache:             cache,
		logger:            logging.GetLogger("investigation.infra"),
	}, nil
}

// Discover returns the cached snapshot if still fresh, otherwise runs a
// fresh bounded-concurrency fan-out across regions x services. Concurrent
// callers while a discovery is in-flight all receive the same result
// (singleflight), never triggering duplicate fan-outs.
func (m *Manager) Discover(ctx context.Context, forceRefresh bool) (*Snapshot, error) {
	if !forceRefresh {
		if entry, ok := m.cache.Get(snapshotCacheKey); ok && time.Now().Before(entry.expiresAt) {
			return entry.snapshot, nil
		}
	}

	result, err, _ := m.group.Do(snapshotCacheKey, func() (interface{}, error) {
		return m.discoverLocked(ctx)
	})
	if err != nil {
		return nil, err
	}
	return result.(*Snapshot), nil
}

func (m *Manager) discoverLocked(ctx context.Context) (*Snapshot, error) {
	type pair struct{ region, service string }
	var pairs []pair
	for _, r := range m.regions {
		for _, s := range m.services {
			pairs = append(pairs, pair{r, s})
		}
	}

	entries := make([]Entry, len(pairs))
	sem := make(chan struct{}, m.maxConcurrency)
	g, gctx := errgroup.WithContext(ctx)

	var mu sync.Mutex
	for i, p := range pairs {
		i, p := i, p
		g.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()

			entry := m.probeOne(gctx, p.region, p.service)
			mu.Lock()
			entries[i] = entry
			mu.Unlock()
			return nil
		})
	}
	// No goroutine returns a non-nil error (probeOne always records
	// failures in Entry.Err), so Wait returns nil.
	if err := g.Wait(); err != nil {
		return nil, err
	}

	snapshot := &Snapshot{
		GeneratedAt:   time.Now().UTC(),
		Entries:       entries,
		OverallHealth: overallHealth(entries),
	}

	m.cache.Add(snapshotCacheKey, &cacheEntry{snapshot: snapshot, expiresAt: time.Now().Add(m.cacheTTL)})
	return snapshot, nil
}

func (m *Manager) probeOne(ctx context.Context, region, service string) Entry {
	ctx, cancel := context.WithTimeout(ctx, m.timeoutPerService)
	defer cancel()

	result, err := m.prober.Probe(ctx, region, service)
	if err != nil {
		m.logger.WarnWithFields("infra probe failed",
			logging.Field("region", region), logging.Field("service", service), logging.Field("error", err.Error()))
		return Entry{Region: region, Service: service, Health: HealthUnknown, Err: err.Error()}
	}
	return Entry{Region: region, Service: service, Probe: result, Health: deriveHealth(result)}
}

// deriveHealth applies fixed thresholds: critical if any critical-count or
// more than two active alarms; degraded if any unhealthy-count or at least
// one alarm; healthy otherwise.
func deriveHealth(r ProbeResult) Health {
	if r.CriticalCount > 0 || len(r.Alarms) > 2 {
		return HealthCritical
	}
	if r.UnhealthyCount > 0 || len(r.Alarms) >= 1 {
		return HealthDegraded
	}
	return HealthHealthy
}

func overallHealth(entries []Entry) Health {
	worst := HealthHealthy
	for _, e := range entries {
		if healthRank[e.Health] > healthRank[worst] {
			worst = e.Health
		}
	}
	return worst
}
