// Package registry provides read access to panels, clusters and inverters.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/petrovoleh/solar-forecast/internal/forecast"
)

// Seed is the JSON document accepted by LoadSeedFile.
type Seed struct {
	Panels   []forecast.Panel   `json:"panels"`
	Clusters []forecast.Cluster `json:"clusters"`
}

// MemoryRegistry is a concurrency-safe in-memory forecast.Registry.
// Cluster members are returned in the order their panels were added.
type MemoryRegistry struct {
	mu       sync.RWMutex
	panels   map[string]forecast.Panel
	order    []string
	clusters map[string]forecast.Cluster
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		panels:   make(map[string]forecast.Panel),
		clusters: make(map[string]forecast.Cluster),
	}
}

// ReadSeedFile parses the Seed document at path.
func ReadSeedFile(path string) (Seed, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Seed{}, fmt.Errorf("read registry seed: %w", err)
	}
	var seed Seed
	if err := json.Unmarshal(raw, &seed); err != nil {
		return Seed{}, fmt.Errorf("parse registry seed %s: %w", path, err)
	}
	return seed, nil
}

// LoadSeedFile reads a Seed document from path into a new registry.
func LoadSeedFile(path string) (*MemoryRegistry, error) {
	seed, err := ReadSeedFile(path)
	if err != nil {
		return nil, err
	}
	r := NewMemoryRegistry()
	if err := r.Load(seed); err != nil {
		return nil, err
	}
	return r, nil
}

// Load adds every cluster and panel of seed.
func (r *MemoryRegistry) Load(seed Seed) error {
	for _, c := range seed.Clusters {
		if err := r.PutCluster(c); err != nil {
			return err
		}
	}
	for _, p := range seed.Panels {
		if err := r.PutPanel(p); err != nil {
			return err
		}
	}
	return nil
}

func (r *MemoryRegistry) PutPanel(p forecast.Panel) error {
	if p.ID == "" {
		return fmt.Errorf("panel without id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.panels[p.ID]; !ok {
		r.order = append(r.order, p.ID)
	}
	r.panels[p.ID] = p
	return nil
}

func (r *MemoryRegistry) PutCluster(c forecast.Cluster) error {
	if c.ID == "" {
		return fmt.Errorf("cluster without id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clusters[c.ID] = c
	return nil
}

func (r *MemoryRegistry) Panel(_ context.Context, id string) (forecast.Panel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.panels[id]
	if !ok {
		return forecast.Panel{}, forecast.NewError(forecast.KindNotFound, "panel not found")
	}
	return p, nil
}

func (r *MemoryRegistry) Cluster(_ context.Context, id string) (forecast.Cluster, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clusters[id]
	if !ok {
		return forecast.Cluster{}, forecast.NewError(forecast.KindNotFound, "cluster not found")
	}
	return c, nil
}

func (r *MemoryRegistry) ClusterPanels(_ context.Context, clusterID string) ([]forecast.Panel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []forecast.Panel
	for _, id := range r.order {
		if p := r.panels[id]; p.ClusterID == clusterID {
			out = append(out, p)
		}
	}
	return out, nil
}
