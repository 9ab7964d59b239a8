package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

var (
	// ErrNotFound is returned when a lookup matches no rows.
	ErrNotFound = errors.New("not found")
	// ErrUnsupportedDriver is returned by Open for unknown drivers.
	ErrUnsupportedDriver = errors.New("unsupported database driver")
)

// Filter selects persisted suspicious trades.
type Filter struct {
	MinScore float64
	Offset   int
	Limit    int
}

// Repository persists suspicious trades.
type Repository struct {
	db  *gorm.DB
	now func() time.Time
}

// Open connects to the database and migrates the schema.
func Open(driver, dsn string) (*Repository, error) {
	var dialector gorm.Dialector
	switch driver {
	case DriverSQLite, "":
		dialector = sqlite.Open(dsn)
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}

	if err := db.AutoMigrate(&SuspiciousTrade{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	slog.Info("store_opened", "driver", driver)
	return &Repository{db: db, now: time.Now}, nil
}

// Close releases the underlying connection pool.
func (r *Repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Upsert inserts a row unless one with the same market, trader and timestamp
// already exists. Returns false for a duplicate.
func (r *Repository) Upsert(ctx context.Context, row SuspiciousTrade) (bool, error) {
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = r.now().UTC()
	}

	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "market_id"},
				{Name: "trader_address"},
				{Name: "timestamp"},
			},
			DoNothing: true,
		}).
		Create(&row)
	if res.Error != nil {
		return false, fmt.Errorf("failed to upsert trade %s/%s: %w", row.MarketID, row.TraderAddress, res.Error)
	}

	return res.RowsAffected > 0, nil
}

// Query returns a page of rows scoring at least MinScore, newest first,
// along with the total number of matching rows.
func (r *Repository) Query(ctx context.Context, f Filter) ([]SuspiciousTrade, int64, error) {
	scoped := func() *gorm.DB {
		q := r.db.WithContext(ctx).Model(&SuspiciousTrade{})
		if f.MinScore > 0 {
			q = q.Where("suspicion_score >= ?", f.MinScore)
		}
		return q
	}

	var total int64
	if err := scoped().Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count trades: %w", err)
	}

	rows := []SuspiciousTrade{}
	q := scoped().Order("created_at DESC").Order("suspicion_score DESC").Offset(f.Offset)
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to query trades: %w", err)
	}

	return rows, total, nil
}

// All returns every persisted row.
func (r *Repository) All(ctx context.Context) ([]SuspiciousTrade, error) {
	rows := []SuspiciousTrade{}
	if err := r.db.WithContext(ctx).Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load trades: %w", err)
	}
	return rows, nil
}

// Get returns a single row by id.
func (r *Repository) Get(ctx context.Context, id string) (SuspiciousTrade, error) {
	var row SuspiciousTrade
	err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return SuspiciousTrade{}, fmt.Errorf("%w: trade %s", ErrNotFound, id)
	}
	if err != nil {
		return SuspiciousTrade{}, fmt.Errorf("failed to load trade %s: %w", id, err)
	}
	return row, nil
}

// UnresolvedMarketIDs lists the distinct markets that still have unresolved rows.
func (r *Repository) UnresolvedMarketIDs(ctx context.Context) ([]string, error) {
	ids := []string{}
	err := r.db.WithContext(ctx).
		Model(&SuspiciousTrade{}).
		Where("market_resolved = ?", false).
		Distinct().
		Order("market_id").
		Pluck("market_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list unresolved markets: %w", err)
	}
	return ids, nil
}

// MarkResolved records the winner for every unresolved row of a market and
// sets each row's profit using profitFn. Returns the number of rows updated.
func (r *Repository) MarkResolved(ctx context.Context, marketID, winner string, at time.Time, profitFn func(SuspiciousTrade) float64) (int, error) {
	updated := 0
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []SuspiciousTrade
		if err := tx.Where("market_id = ? AND market_resolved = ?", marketID, false).Find(&rows).Error; err != nil {
			return err
		}

		resolvedAt := at.UTC()
		for _, row := range rows {
			profit := profitFn(row)
			res := tx.Model(&SuspiciousTrade{}).
				Where("id = ?", row.ID).
				Updates(map[string]any{
					"market_resolved":        true,
					"market_resolved_at":     resolvedAt,
					"market_winning_outcome": winner,
					"profit_amount":          profit,
				})
			if res.Error != nil {
				return res.Error
			}
			updated += int(res.RowsAffected)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to resolve market %s: %w", marketID, err)
	}
	return updated, nil
}
