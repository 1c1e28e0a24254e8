// Package verscache persists detected AnalyzerVersion values across
// process restarts, keyed by binary path and mtime, so a 5s `--version`
// probe (spec §5) isn't repeated every time a CLI invocation creates a
// fresh WorkspaceSession.
//
// Grounded on the gorm+sqlite wiring in the register-extensions storage
// package: gorm.Open(sqlite.Open(path), ...) with a charmbracelet/log
// logger adapter.
package verscache

import (
	"time"

	gormLogger "gorm.io/gorm/logger"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/cxxbridge/cxxbridge/internal/analyzerversion"
	"github.com/cxxbridge/cxxbridge/internal/bridgeerr"
	"github.com/cxxbridge/cxxbridge/internal/logging"
)

// entry is the persisted row: one cached version detection per binary
// path + mtime pair. A binary upgrade (new mtime) is a cache miss, not a
// stale hit.
type entry struct {
	ID         uint `gorm:"primarykey"`
	BinaryPath string `gorm:"uniqueIndex:idx_binary_mtime"`
	MtimeUnix  int64  `gorm:"uniqueIndex:idx_binary_mtime"`
	Major      int
	Minor      int
	Patch      int
	Variant    string
	Date       string
	CachedAt   time.Time
}

// Cache wraps a gorm-backed sqlite store of detected analyzer versions.
type Cache struct {
	db *gorm.DB
}

// Open opens (creating if needed) the sqlite database at path and ensures
// its schema exists.
func Open(path string) (*Cache, error) {
	gormLog := gormLogger.New(adapter{logging.ForComponent("verscache")}, gormLogger.Config{
		SlowThreshold:             200 * time.Millisecond,
		IgnoreRecordNotFoundError: true,
		LogLevel:                  gormLogger.Warn,
	})

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, bridgeerr.Res("verscache-open", err)
	}
	if err := db.AutoMigrate(&entry{}); err != nil {
		return nil, bridgeerr.Res("verscache-migrate", err)
	}
	return &Cache{db: db}, nil
}

// Get returns the cached version for binaryPath at mtime, if present.
func (c *Cache) Get(binaryPath string, mtime time.Time) (analyzerversion.Version, bool) {
	var row entry
	tx := c.db.Where("binary_path = ? AND mtime_unix = ?", binaryPath, mtime.Unix()).First(&row)
	if tx.Error != nil {
		return analyzerversion.Version{}, false
	}
	return analyzerversion.Version{
		Major:   row.Major,
		Minor:   row.Minor,
		Patch:   row.Patch,
		Variant: row.Variant,
		Date:    row.Date,
	}, true
}

// Put records a freshly detected version for binaryPath at mtime.
func (c *Cache) Put(binaryPath string, mtime time.Time, v analyzerversion.Version) error {
	row := entry{
		BinaryPath: binaryPath,
		MtimeUnix:  mtime.Unix(),
		Major:      v.Major,
		Minor:      v.Minor,
		Patch:      v.Patch,
		Variant:    v.Variant,
		Date:       v.Date,
		CachedAt:   time.Now(),
	}
	tx := c.db.Where("binary_path = ? AND mtime_unix = ?", binaryPath, mtime.Unix()).
		Assign(row).
		FirstOrCreate(&entry{})
	if tx.Error != nil {
		return bridgeerr.Res("verscache-put", tx.Error)
	}
	return nil
}

// Close releases the underlying sqlite connection.
func (c *Cache) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
