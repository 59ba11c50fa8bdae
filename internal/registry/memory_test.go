package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petrovoleh/solar-forecast/internal/forecast"
)

const seedJSON = `{
  "clusters": [
    {"id": "c1", "ownerId": "u1", "name": "roof",
     "inverter": {"id": "inv1", "efficiency": 90, "capacity": 10}}
  ],
  "panels": [
    {"id": "p2", "ownerId": "u1", "powerRating": 4000, "efficiency": 100,
     "location": {"lat": 49.8, "lon": 24.0, "city": "Lviv"}, "clusterId": "c1"},
    {"id": "p1", "ownerId": "u1", "powerRating": 400, "efficiency": 20,
     "location": {"lat": 50.45, "lon": 30.52}},
    {"id": "p3", "ownerId": "u1", "powerRating": 4000, "efficiency": 100,
     "location": {"lat": 50.0, "lon": 25.0}, "clusterId": "c1"}
  ]
}`

func writeSeed(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.json")
	require.NoError(t, os.WriteFile(path, []byte(seedJSON), 0o600))
	return path
}

func TestLoadSeedFile(t *testing.T) {
	r, err := LoadSeedFile(writeSeed(t))
	require.NoError(t, err)
	testRegistry(t, r)
}

func TestLoadSeedFile_Errors(t *testing.T) {
	_, err := LoadSeedFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o600))
	_, err = LoadSeedFile(path)
	assert.Error(t, err)

	r := NewMemoryRegistry()
	assert.Error(t, r.PutPanel(forecast.Panel{}))
	assert.Error(t, r.PutCluster(forecast.Cluster{}))
}

// testRegistry checks a registry loaded from seedJSON.
func testRegistry(t *testing.T, r forecast.Registry) {
	t.Helper()
	ctx := context.Background()

	p, err := r.Panel(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "u1", p.OwnerID)
	assert.Equal(t, 400.0, p.PowerRatingW)
	require.NotNil(t, p.Location)
	assert.Equal(t, 50.45, p.Location.Latitude)
	assert.Empty(t, p.ClusterID)

	c, err := r.Cluster(ctx, "c1")
	require.NoError(t, err)
	require.NotNil(t, c.Inverter)
	assert.InDelta(t, 0.9, c.Inverter.Factor(), 1e-12)

	members, err := r.ClusterPanels(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, "p2", members[0].ID)
	assert.Equal(t, "p3", members[1].ID)

	capacity, err := forecast.ClusterCapacityKWp(members, c.Inverter)
	require.NoError(t, err)
	assert.InDelta(t, 7.2, capacity, 1e-9)

	_, err = r.Panel(ctx, "nope")
	assert.ErrorIs(t, err, forecast.ErrNotFound)
	_, err = r.Cluster(ctx, "nope")
	assert.ErrorIs(t, err, forecast.ErrNotFound)

	none, err := r.ClusterPanels(ctx, "nope")
	require.NoError(t, err)
	assert.Empty(t, none)
}
