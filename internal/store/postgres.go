package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/petrovoleh/solar-forecast/internal/common"
	"github.com/petrovoleh/solar-forecast/internal/forecast"
)

// OpenPostgres connects to PostgreSQL through GORM.
func OpenPostgres(url string, log *zap.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(url), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	log.Info("connected to PostgreSQL")
	return db, nil
}

// ClosePostgres releases the underlying pool.
func ClosePostgres(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// dailyTotalRow is the persisted shape of forecast.DailyEnergyTotal.
type dailyTotalRow struct {
	ID             string    `gorm:"type:uuid;primaryKey"`
	DeviceKind     string    `gorm:"size:16;not null;uniqueIndex:idx_daily_totals_device_date,priority:1"`
	DeviceID       string    `gorm:"size:64;not null;uniqueIndex:idx_daily_totals_device_date,priority:2"`
	Date           time.Time `gorm:"type:date;not null;uniqueIndex:idx_daily_totals_device_date,priority:3"`
	TotalEnergyKWh float64   `gorm:"column:total_energy_kwh;not null"`
	UpdatedAt      time.Time `gorm:"not null"`
}

func (dailyTotalRow) TableName() string { return "daily_energy_totals" }

// PostgresStore keeps daily totals in PostgreSQL with a unique (device, date) key.
type PostgresStore struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewPostgresStore(db *gorm.DB, log *zap.Logger) *PostgresStore {
	return &PostgresStore{db: db, log: log}
}

// Migrate creates or updates the daily_energy_totals table.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&dailyTotalRow{}); err != nil {
		return fmt.Errorf("migrate daily totals: %w", err)
	}
	return nil
}

func (s *PostgresStore) ReadRange(ctx context.Context, ref forecast.DeviceRef, from, to time.Time) ([]forecast.DailyEnergyTotal, error) {
	var rows []dailyTotalRow
	result := s.db.WithContext(ctx).
		Where("device_kind = ? AND device_id = ? AND date BETWEEN ? AND ?",
			string(ref.Kind), ref.ID, common.FormatDay(from), common.FormatDay(to)).
		Order("date ASC").
		Find(&rows)
	if result.Error != nil {
		s.log.Error("failed to read daily totals", zap.String("device", ref.Key()), zap.Error(result.Error))
		return nil, result.Error
	}

	totals := make([]forecast.DailyEnergyTotal, 0, len(rows))
	for _, r := range rows {
		totals = append(totals, forecast.DailyEnergyTotal{
			ID:             r.ID,
			DeviceKind:     forecast.DeviceKind(r.DeviceKind),
			DeviceID:       r.DeviceID,
			Date:           common.FormatDay(r.Date),
			TotalEnergyKWh: r.TotalEnergyKWh,
			UpdatedAt:      r.UpdatedAt,
		})
	}
	return totals, nil
}

func (s *PostgresStore) WriteOne(ctx context.Context, total forecast.DailyEnergyTotal) error {
	return s.WriteMany(ctx, []forecast.DailyEnergyTotal{total})
}

// WriteMany upserts on (device_kind, device_id, date); the last write wins.
func (s *PostgresStore) WriteMany(ctx context.Context, totals []forecast.DailyEnergyTotal) error {
	if len(totals) == 0 {
		return nil
	}
	now := time.Now().UTC()
	rows := make([]dailyTotalRow, 0, len(totals))
	// A repeated (device, date) in one batch keeps the last value; postgres
	// refuses to upsert the same row twice in one statement.
	index := make(map[string]int, len(totals))
	for _, t := range totals {
		day, err := common.ParseDay(t.Date)
		if err != nil {
			return fmt.Errorf("daily total for %s: %w", t.Ref().Key(), err)
		}
		id := t.ID
		if id == "" {
			id = uuid.NewString()
		}
		updated := t.UpdatedAt
		if updated.IsZero() {
			updated = now
		}
		row := dailyTotalRow{
			ID:             id,
			DeviceKind:     string(t.DeviceKind),
			DeviceID:       t.DeviceID,
			Date:           day,
			TotalEnergyKWh: t.TotalEnergyKWh,
			UpdatedAt:      updated,
		}
		key := t.Ref().Key() + "|" + common.FormatDay(day)
		if i, ok := index[key]; ok {
			row.ID = rows[i].ID
			rows[i] = row
			continue
		}
		index[key] = len(rows)
		rows = append(rows, row)
	}

	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "device_kind"}, {Name: "device_id"}, {Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{"total_energy_kwh", "updated_at"}),
	}).Create(&rows)
	if result.Error != nil {
		s.log.Error("failed to upsert daily totals", zap.Int("count", len(rows)), zap.Error(result.Error))
		return result.Error
	}
	return nil
}
