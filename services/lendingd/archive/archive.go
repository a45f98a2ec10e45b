package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"lendledger/core/events"
	"lendledger/core/types"
)

// EventRecord is one committed ledger event.
type EventRecord struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Seq        uint64    `gorm:"uniqueIndex;not null"`
	Type       string    `gorm:"size:64;index"`
	LoanID     uint64    `gorm:"index"`
	Block      uint64    `gorm:"index"`
	Actor      string    `gorm:"size:96;index"`
	Attributes string    `gorm:"type:text"`
	CreatedAt  time.Time
}

// Attrs decodes the stored attribute map.
func (r EventRecord) Attrs() map[string]string {
	out := map[string]string{}
	_ = json.Unmarshal([]byte(r.Attributes), &out)
	return out
}

type attributed interface {
	Event() *types.Event
}

type loanScoped interface {
	Loan() uint64
}

// Archive persists committed events into a relational store so operators can
// query history without replaying the ledger.
type Archive struct {
	db     *gorm.DB
	logger *slog.Logger
	now    func() time.Time

	mu  sync.Mutex
	seq uint64
}

// Open connects to the archive database and migrates the schema. driver is
// either "sqlite" or "postgres".
func Open(driver, dsn string, log *slog.Logger) (*Archive, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("archive: unsupported driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("archive: open %s: %w", driver, err)
	}
	return New(db, log)
}

// New wraps an existing gorm handle.
func New(db *gorm.DB, log *slog.Logger) (*Archive, error) {
	if db == nil {
		return nil, errors.New("archive: nil database")
	}
	if log == nil {
		log = slog.Default()
	}
	if err := db.AutoMigrate(&EventRecord{}); err != nil {
		return nil, fmt.Errorf("archive: migrate: %w", err)
	}
	var last EventRecord
	err := db.Order("seq desc").Limit(1).Find(&last).Error
	if err != nil {
		return nil, fmt.Errorf("archive: load sequence: %w", err)
	}
	return &Archive{db: db, logger: log, now: time.Now, seq: last.Seq}, nil
}

// Record stores evs in one database transaction, preserving their order.
func (a *Archive) Record(ctx context.Context, evs []events.Event) error {
	if len(evs) == 0 {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	next := a.seq
	records := make([]EventRecord, 0, len(evs))
	for _, ev := range evs {
		if ev == nil {
			continue
		}
		next++
		records = append(records, a.toRecord(ev, next))
	}
	if len(records) == 0 {
		return nil
	}
	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&records).Error
	})
	if err != nil {
		return fmt.Errorf("archive: insert events: %w", err)
	}
	a.seq = next
	return nil
}

// Emit implements events.Emitter. Failures are logged; the ledger has already
// committed by the time events reach the archive.
func (a *Archive) Emit(ev events.Event) {
	if err := a.Record(context.Background(), []events.Event{ev}); err != nil {
		a.logger.Error("archive event", slog.String("type", ev.EventType()), slog.String("error", err.Error()))
	}
}

func (a *Archive) toRecord(ev events.Event, seq uint64) EventRecord {
	rec := EventRecord{
		ID:        uuid.New(),
		Seq:       seq,
		Type:      ev.EventType(),
		CreatedAt: a.now().UTC(),
	}
	if scoped, ok := ev.(loanScoped); ok {
		rec.LoanID = scoped.Loan()
	}
	if withAttrs, ok := ev.(attributed); ok {
		if payload := withAttrs.Event(); payload != nil {
			rec.Actor = payload.Attr("actor")
			if block, err := strconv.ParseUint(payload.Attr("block"), 10, 64); err == nil {
				rec.Block = block
			}
			if raw, err := json.Marshal(payload.Attributes); err == nil {
				rec.Attributes = string(raw)
			}
		}
	}
	if rec.Attributes == "" {
		rec.Attributes = "{}"
	}
	return rec
}

// ByLoan returns the events of one loan in commit order.
func (a *Archive) ByLoan(ctx context.Context, loanID uint64) ([]EventRecord, error) {
	var out []EventRecord
	err := a.db.WithContext(ctx).Where("loan_id = ?", loanID).Order("seq asc").Find(&out).Error
	return out, err
}

// Since returns up to limit events with a sequence above after.
func (a *Archive) Since(ctx context.Context, after uint64, limit int) ([]EventRecord, error) {
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}
	var out []EventRecord
	err := a.db.WithContext(ctx).Where("seq > ?", after).Order("seq asc").Limit(limit).Find(&out).Error
	return out, err
}

// CountByType reports how many events of each type were archived.
func (a *Archive) CountByType(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Type  string
		Total int64
	}
	err := a.db.WithContext(ctx).Model(&EventRecord{}).
		Select("type, count(*) as total").
		Group("type").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.Type] = row.Total
	}
	return out, nil
}

// Close releases the underlying connection pool.
func (a *Archive) Close() error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
