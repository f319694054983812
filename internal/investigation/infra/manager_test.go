package infra

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProber struct {
	calls  int32
	result map[string]ProbeResult
	err    map[string]error
	delay  time.Duration
}

func (f *fakeProber) Probe(ctx context.Context, region, service string) (ProbeResult, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ProbeResult{}, ctx.Err()
		}
	}
	key := region + "/" + service
	if err, ok := f.err[key]; ok {
		return ProbeResult{}, err
	}
	return f.result[key], nil
}

func TestDiscoverAggregatesAcrossRegionsAndServices(t *testing.T) {
	prober := &fakeProber{result: map[string]ProbeResult{
		"us-east-1/checkout": {RunningCount: 3},
		"us-west-2/checkout": {RunningCount: 2},
	}}
	m, err := New(Config{Prober: prober, Regions: []string{"us-east-1", "us-west-2"}, Services: []string{"checkout"}, MaxConcurrency: 2})
	require.NoError(t, err)

	snap, err := m.Discover(context.Background(), false)
	require.NoError(t, err)
	assert.Len(t, snap.Entries, 2)
	assert.Equal(t, HealthHealthy, snap.OverallHealth)
}

func TestDiscoverDerivesHealthThresholds(t *testing.T) {
	prober := &fakeProber{result: map[string]ProbeResult{
		"us-east-1/checkout": {CriticalCount: 1},
	}}
	m, err := New(Config{Prober: prober, Regions: []string{"us-east-1"}, Services: []string{"checkout"}})
	require.NoError(t, err)

	snap, err := m.Discover(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, HealthCritical, snap.Entries[0].Health)
	assert.Equal(t, HealthCritical, snap.OverallHealth)
}

func TestDiscoverDegradedOnSingleAlarm(t *testing.T) {
	prober := &fakeProber{result: map[string]ProbeResult{
		"us-east-1/checkout": {Alarms: []Alarm{{Name: "high-latency", Severity: AlarmWarning}}},
	}}
	m, err := New(Config{Prober: prober, Regions: []string{"us-east-1"}, Services: []string{"checkout"}})
	require.NoError(t, err)

	snap, err := m.Discover(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, HealthDegraded, snap.Entries[0].Health)
}

func TestDiscoverPerRegionFailureDoesNotAbortSnapshot(t *testing.T) {
	prober := &fakeProber{
		result: map[string]ProbeResult{"us-west-2/checkout": {RunningCount: 1}},
		err:    map[string]error{"us-east-1/checkout": assertErr("boom")},
	}
	m, err := New(Config{Prober: prober, Regions: []string{"us-east-1", "us-west-2"}, Services: []string{"checkout"}})
	require.NoError(t, err)

	snap, err := m.Discover(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, snap.Entries, 2)

	var failed, ok bool
	for _, e := range snap.Entries {
		if e.Region == "us-east-1" {
			failed = e.Err != ""
		}
		if e.Region == "us-west-2" {
			ok = e.Err == ""
		}
	}
	assert.True(t, failed)
	assert.True(t, ok)
}

func TestDiscoverCachesWithinTTL(t *testing.T) {
	prober := &fakeProber{result: map[string]ProbeResult{"us-east-1/checkout": {RunningCount: 1}}}
	m, err := New(Config{Prober: prober, Regions: []string{"us-east-1"}, Services: []string{"checkout"}, CacheTTL: time.Minute})
	require.NoError(t, err)

	_, err = m.Discover(context.Background(), false)
	require.NoError(t, err)
	_, err = m.Discover(context.Background(), false)
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&prober.calls))
}

func TestDiscoverForceRefreshIgnoresCache(t *testing.T) {
	prober := &fakeProber{result: map[string]ProbeResult{"us-east-1/checkout": {RunningCount: 1}}}
	m, err := New(Config{Prober: prober, Regions: []string{"us-east-1"}, Services: []string{"checkout"}, CacheTTL: time.Minute})
	require.NoError(t, err)

	_, err = m.Discover(context.Background(), false)
	require.NoError(t, err)
	_, err = m.Discover(context.Background(), true)
	require.NoError(t, err)

	assert.Equal(t, int32(2), atomic.LoadInt32(&prober.calls))
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
