package servicegraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildTestGraph(t *testing.T) *Graph {
	t.Helper()
	g := New()
	g.AddService(Service{ID: "checkout", Name: "Checkout"})
	g.AddService(Service{ID: "payments", Name: "Payments"})
	g.AddService(Service{ID: "db", Name: "Database"})
	_, err := g.AddDependency("checkout", "payments", "http", CriticalityCritical)
	require.NoError(t, err)
	_, err = g.AddDependency("payments", "db", "tcp", CriticalityDegraded)
	require.NoError(t, err)
	return g
}

func TestAddServiceAndLookupByIDAndName(t *testing.T) {
	g := buildTestGraph(t)
	s, err := g.GetByID("checkout")
	require.NoError(t, err)
	assert.Equal(t, "Checkout", s.Name)

	byName := g.GetByName("CHECKOUT")
	require.Len(t, byName, 1)
	assert.Equal(t, "checkout", byName[0].ID)
}

func TestRemoveServiceRemovesIncidentEdges(t *testing.T) {
	g := buildTestGraph(t)
	require.NoError(t, g.RemoveService("payments"))

	_, err := g.GetByID("payments")
	assert.Error(t, err)
	assert.Nil(t, g.FindPath("checkout", "db"))
}

func TestAddDependencyOverwritesExisting(t *testing.T) {
	g := buildTestGraph(t)
	edge, err := g.AddDependency("checkout", "payments", "grpc", CriticalityOptional)
	require.NoError(t, err)
	assert.Equal(t, CriticalityOptional, edge.Criticality)

	path := g.GetDownstreamImpact("checkout", 1)
	require.Len(t, path, 1)
	assert.Equal(t, CriticalityOptional, path[0].Criticality)
}

func TestFindPathBFS(t *testing.T) {
	g := buildTestGraph(t)
	path := g.FindPath("checkout", "db")
	assert.Equal(t, []string{"checkout", "payments", "db"}, path)
}

func TestFindPathUnreachableReturnsNil(t *testing.T) {
	g := buildTestGraph(t)
	assert.Nil(t, g.FindPath("db", "checkout"))
}

func TestGetUpstreamImpact(t *testing.T) {
	g := buildTestGraph(t)
	impact := g.GetUpstreamImpact("db", 5)
	require.Len(t, impact, 2)

	byID := map[string]ImpactPath{}
	for _, p := range impact {
		byID[p.ServiceID] = p
	}
	assert.Contains(t, byID, "payments")
	assert.Contains(t, byID, "checkout")
	assert.Equal(t, 2, byID["checkout"].Depth)
}

func TestGetDownstreamImpactMinCriticalityAlongPath(t *testing.T) {
	g := buildTestGraph(t)
	impact := g.GetDownstreamImpact("checkout", 5)

	byID := map[string]ImpactPath{}
	for _, p := range impact {
		byID[p.ServiceID] = p
	}
	// checkout->payments is critical, payments->db is degraded; the
	// weakest link on the path to db is degraded, not critical.
	assert.Equal(t, CriticalityDegraded, byID["db"].Criticality)
}

func TestGetDownstreamImpactCriticalDegradedCriticalPath(t *testing.T) {
	g := New()
	g.AddService(Service{ID: "a", Name: "A"})
	g.AddService(Service{ID: "b", Name: "B"})
	g.AddService(Service{ID: "c", Name: "C"})
	g.AddService(Service{ID: "d", Name: "D"})
	_, err := g.AddDependency("a", "b", "http", CriticalityCritical)
	require.NoError(t, err)
	_, err = g.AddDependency("b", "c", "http", CriticalityDegraded)
	require.NoError(t, err)
	_, err = g.AddDependency("c", "d", "http", CriticalityCritical)
	require.NoError(t, err)

	impact := g.GetDownstreamImpact("a", 5)
	byID := map[string]ImpactPath{}
	for _, p := range impact {
		byID[p.ServiceID] = p
	}
	d := byID["d"]
	assert.Equal(t, []string{"a", "b", "c", "d"}, d.Path)
	assert.Equal(t, 3, d.Depth)
	assert.Equal(t, CriticalityDegraded, d.Criticality)
}

func TestDetectCyclesFindsSimpleCycle(t *testing.T) {
	g := New()
	g.AddService(Service{ID: "a", Name: "A"})
	g.AddService(Service{ID: "b", Name: "B"})
	_, _ = g.AddDependency("a", "b", "http", CriticalityDegraded)
	_, _ = g.AddDependency("b", "a", "http", CriticalityDegraded)

	cycles := g.DetectCycles()
	assert.NotEmpty(t, cycles)
}

func TestDetectCyclesEmptyForDAG(t *testing.T) {
	g := buildTestGraph(t)
	assert.Empty(t, g.DetectCycles())
}

func TestToJSONFromJSONRoundTrip(t *testing.T) {
	g := buildTestGraph(t)
	data, err := g.ToJSON()
	require.NoError(t, err)

	g2 := New()
	require.NoError(t, g2.FromJSON(data))

	s, err := g2.GetByID("checkout")
	require.NoError(t, err)
	assert.Equal(t, "Checkout", s.Name)
	assert.Equal(t, []string{"checkout", "payments", "db"}, g2.FindPath("checkout", "db"))
}

func TestFilterByTeamAndTier(t *testing.T) {
	g := New()
	g.AddService(Service{ID: "a", Name: "A", Team: "payments-team", Tier: "tier1"})
	g.AddService(Service{ID: "b", Name: "B", Team: "platform-team", Tier: "tier2"})

	filtered := g.Filter("payments-team", "", "", "")
	require.Len(t, filtered, 1)
	assert.Equal(t, "a", filtered[0].ID)
}
