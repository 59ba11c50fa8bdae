package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/petrovoleh/solar-forecast/internal/forecast"
)

type locationRow struct {
	ID        string `gorm:"primaryKey;size:64"`
	Latitude  float64
	Longitude float64
	City      string
	District  string
	Country   string
}

func (locationRow) TableName() string { return "locations" }

type inverterRow struct {
	ID           string `gorm:"primaryKey;size:64"`
	Name         string
	Manufacturer string
	Efficiency   *float64
	Capacity     float64
}

func (inverterRow) TableName() string { return "inverters" }

type clusterRow struct {
	ID         string `gorm:"primaryKey;size:64"`
	OwnerID    string `gorm:"size:64;index"`
	Name       string
	LocationID *string      `gorm:"size:64"`
	Location   *locationRow `gorm:"foreignKey:LocationID"`
	InverterID *string      `gorm:"size:64"`
	Inverter   *inverterRow `gorm:"foreignKey:InverterID"`
}

func (clusterRow) TableName() string { return "clusters" }

type panelRow struct {
	ID          string `gorm:"primaryKey;size:64"`
	OwnerID     string `gorm:"size:64;index"`
	Name        string
	PowerRating float64
	Efficiency  float64
	LocationID  *string      `gorm:"size:64"`
	Location    *locationRow `gorm:"foreignKey:LocationID"`
	ClusterID   *string      `gorm:"size:64;index"`
	CreatedAt   time.Time
}

func (panelRow) TableName() string { return "panels" }

// PostgresRegistry reads devices from the panels/clusters/inverters/locations tables.
type PostgresRegistry struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewPostgresRegistry(db *gorm.DB, log *zap.Logger) *PostgresRegistry {
	return &PostgresRegistry{db: db, log: log}
}

// Migrate creates the registry tables when they do not exist.
func (r *PostgresRegistry) Migrate(ctx context.Context) error {
	if err := r.db.WithContext(ctx).AutoMigrate(&locationRow{}, &inverterRow{}, &clusterRow{}, &panelRow{}); err != nil {
		return fmt.Errorf("migrate registry: %w", err)
	}
	return nil
}

// Import upserts a Seed into the tables, one location row per located device.
func (r *PostgresRegistry) Import(ctx context.Context, seed Seed) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Re-seeding must overwrite nested locations and inverters too.
		full := tx.Session(&gorm.Session{FullSaveAssociations: true})
		for _, c := range seed.Clusters {
			row := clusterRow{ID: c.ID, OwnerID: c.OwnerID, Name: c.Name}
			if c.Location != nil {
				row.Location = toLocationRow("cluster-"+c.ID, c.Location)
			}
			if c.Inverter != nil {
				row.Inverter = &inverterRow{
					ID:           c.Inverter.ID,
					Name:         c.Inverter.Name,
					Manufacturer: c.Inverter.Manufacturer,
					Efficiency:   c.Inverter.EfficiencyPct,
					Capacity:     c.Inverter.CapacityKW,
				}
			}
			if err := full.Save(&row).Error; err != nil {
				return fmt.Errorf("import cluster %s: %w", c.ID, err)
			}
		}
		for i, p := range seed.Panels {
			row := panelRow{
				ID:          p.ID,
				OwnerID:     p.OwnerID,
				Name:        p.Name,
				PowerRating: p.PowerRatingW,
				Efficiency:  p.EfficiencyPct,
				CreatedAt:   time.Unix(int64(i), 0).UTC(),
			}
			if p.ClusterID != "" {
				clusterID := p.ClusterID
				row.ClusterID = &clusterID
			}
			if p.Location != nil {
				row.Location = toLocationRow("panel-"+p.ID, p.Location)
			}
			if err := full.Save(&row).Error; err != nil {
				return fmt.Errorf("import panel %s: %w", p.ID, err)
			}
		}
		return nil
	})
}

func (r *PostgresRegistry) Panel(ctx context.Context, id string) (forecast.Panel, error) {
	var row panelRow
	err := r.db.WithContext(ctx).Preload("Location").First(&row, "id = ?", id).Error
	if err != nil {
		return forecast.Panel{}, r.lookupError("panel", id, err)
	}
	return row.toPanel(), nil
}

func (r *PostgresRegistry) Cluster(ctx context.Context, id string) (forecast.Cluster, error) {
	var row clusterRow
	err := r.db.WithContext(ctx).Preload("Location").Preload("Inverter").First(&row, "id = ?", id).Error
	if err != nil {
		return forecast.Cluster{}, r.lookupError("cluster", id, err)
	}
	c := forecast.Cluster{
		ID:       row.ID,
		OwnerID:  row.OwnerID,
		Name:     row.Name,
		Location: row.Location.toLocation(),
	}
	if row.Inverter != nil {
		c.Inverter = &forecast.Inverter{
			ID:            row.Inverter.ID,
			Name:          row.Inverter.Name,
			Manufacturer:  row.Inverter.Manufacturer,
			EfficiencyPct: row.Inverter.Efficiency,
			CapacityKW:    row.Inverter.Capacity,
		}
	}
	return c, nil
}

// ClusterPanels returns members oldest first, so the first one is stable.
func (r *PostgresRegistry) ClusterPanels(ctx context.Context, clusterID string) ([]forecast.Panel, error) {
	var rows []panelRow
	err := r.db.WithContext(ctx).Preload("Location").
		Where("cluster_id = ?", clusterID).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		r.log.Error("failed to list cluster panels", zap.String("cluster_id", clusterID), zap.Error(err))
		return nil, err
	}
	panels := make([]forecast.Panel, 0, len(rows))
	for _, row := range rows {
		panels = append(panels, row.toPanel())
	}
	return panels, nil
}

func (r *PostgresRegistry) lookupError(kind, id string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return forecast.NewError(forecast.KindNotFound, "%s not found", kind)
	}
	r.log.Error("registry lookup failed", zap.String("kind", kind), zap.String("device_id", id), zap.Error(err))
	return err
}

func (row panelRow) toPanel() forecast.Panel {
	p := forecast.Panel{
		ID:            row.ID,
		OwnerID:       row.OwnerID,
		Name:          row.Name,
		PowerRatingW:  row.PowerRating,
		EfficiencyPct: row.Efficiency,
		Location:      row.Location.toLocation(),
	}
	if row.ClusterID != nil {
		p.ClusterID = *row.ClusterID
	}
	return p
}

func (row *locationRow) toLocation() *forecast.Location {
	if row == nil {
		return nil
	}
	return &forecast.Location{
		Latitude:  row.Latitude,
		Longitude: row.Longitude,
		City:      row.City,
		District:  row.District,
		Country:   row.Country,
	}
}

func toLocationRow(id string, l *forecast.Location) *locationRow {
	return &locationRow{
		ID:        id,
		Latitude:  l.Latitude,
		Longitude: l.Longitude,
		City:      l.City,
		District:  l.District,
		Country:   l.Country,
	}
}
