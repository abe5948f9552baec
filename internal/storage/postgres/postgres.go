// internal/storage/postgres/postgres.go
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/rovshanmuradov/launchpad/internal/storage"
	"github.com/rovshanmuradov/launchpad/internal/storage/models"
)

const migrationLockID = 4242

// gormLogger implements logger.Interface on top of zap.
type gormLogger struct {
	zapLogger     *zap.Logger
	logLevel      logger.LogLevel
	slowThreshold time.Duration
}

func newGormLogger(zapLogger *zap.Logger) logger.Interface {
	return &gormLogger{
		zapLogger:     zapLogger,
		logLevel:      logger.Warn,
		slowThreshold: 200 * time.Millisecond,
	}
}

func (l *gormLogger) LogMode(level logger.LogLevel) logger.Interface {
	newLogger := *l
	newLogger.logLevel = level
	return &newLogger
}

func (l *gormLogger) Info(_ context.Context, msg string, data ...interface{}) {
	if l.logLevel >= logger.Info {
		l.zapLogger.Sugar().Infof(msg, data...)
	}
}

func (l *gormLogger) Warn(_ context.Context, msg string, data ...interface{}) {
	if l.logLevel >= logger.Warn {
		l.zapLogger.Sugar().Warnf(msg, data...)
	}
}

func (l *gormLogger) Error(_ context.Context, msg string, data ...interface{}) {
	if l.logLevel >= logger.Error {
		l.zapLogger.Sugar().Errorf(msg, data...)
	}
}

func (l *gormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.logLevel <= logger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()

	fields := []zap.Field{
		zap.Duration("elapsed", elapsed),
		zap.String("sql", sql),
		zap.Int64("rows", rows),
	}

	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		l.zapLogger.Error("trace", append(fields, zap.Error(err))...)
	case elapsed > l.slowThreshold && l.logLevel >= logger.Warn:
		l.zapLogger.Warn("slow query", fields...)
	case l.logLevel >= logger.Info:
		l.zapLogger.Info("trace", fields...)
	}
}

// Options tunes the connection pool.
type Options struct {
	MaxOpenConns int
	MaxIdleConns int
}

// postgresStorage implements storage.Storage.
type postgresStorage struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewStorage opens a gorm connection to dsn.
func NewStorage(dsn string, opts Options, zapLogger *zap.Logger) (storage.Storage, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: newGormLogger(zapLogger.Named("gorm")),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		DisableForeignKeyConstraintWhenMigrating: true,
		SkipDefaultTransaction:                   true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	if opts.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	}
	sqlDB.SetConnMaxLifetime(time.Hour)

	return &postgresStorage{
		db:     db,
		logger: zapLogger,
	}, nil
}

// RunMigrations applies the schema under an advisory lock so that several
// instances starting together do not race.
func (p *postgresStorage) RunMigrations() error {
	var lockObtained bool
	err := p.db.Raw("SELECT pg_try_advisory_lock(?)", migrationLockID).Scan(&lockObtained).Error
	if err != nil {
		return fmt.Errorf("failed to acquire migration lock: %w", err)
	}
	if !lockObtained {
		return fmt.Errorf("another migration is in progress")
	}
	defer p.db.Exec("SELECT pg_advisory_unlock(?)", migrationLockID)

	err = p.db.AutoMigrate(
		&models.EventRecord{},
		&models.TradeRecord{},
		&models.LaunchRecord{},
	)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	p.logger.Info("Migrations applied")
	return nil
}

func (p *postgresStorage) SaveBatch(ctx context.Context, b storage.Batch) error {
	if b.Event == nil {
		return fmt.Errorf("batch without event record")
	}
	ignoreDup := clause.OnConflict{DoNothing: true}

	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(ignoreDup).Create(b.Event)
		if res.Error != nil {
			return fmt.Errorf("save event: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			// Already indexed.
			return nil
		}
		if b.Trade != nil {
			if err := tx.Clauses(ignoreDup).Create(b.Trade).Error; err != nil {
				return fmt.Errorf("save trade: %w", err)
			}
		}
		if b.Launch != nil {
			if err := tx.Clauses(ignoreDup).Create(b.Launch).Error; err != nil {
				return fmt.Errorf("save launch: %w", err)
			}
		}
		return nil
	})
}

func (p *postgresStorage) GetEvent(ctx context.Context, eventID string) (*models.EventRecord, error) {
	var rec models.EventRecord
	err := p.db.WithContext(ctx).Where("event_id = ?", eventID).First(&rec).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &rec, nil
}

func (p *postgresStorage) ListEvents(ctx context.Context, asset string, limit, offset int) ([]*models.EventRecord, error) {
	var recs []*models.EventRecord
	q := p.db.WithContext(ctx)
	if asset != "" {
		q = q.Where("asset = ?", asset)
	}
	err := q.Order("occurred_at asc, id asc").
		Limit(pageLimit(limit)).
		Offset(offset).
		Find(&recs).Error
	return recs, err
}

func (p *postgresStorage) ListTrades(ctx context.Context, f storage.TradeFilter) ([]*models.TradeRecord, error) {
	var recs []*models.TradeRecord
	q := p.db.WithContext(ctx)
	if f.Asset != "" {
		q = q.Where("asset = ?", f.Asset)
	}
	if f.Side != "" {
		q = q.Where("side = ?", f.Side)
	}
	if f.Trader != "" {
		q = q.Where("trader = ?", f.Trader)
	}
	if !f.From.IsZero() {
		q = q.Where("executed_at >= ?", f.From)
	}
	if !f.To.IsZero() {
		q = q.Where("executed_at <= ?", f.To)
	}
	err := q.Order("executed_at asc, id asc").
		Limit(pageLimit(f.Limit)).
		Offset(f.Offset).
		Find(&recs).Error
	return recs, err
}

func (p *postgresStorage) GetLaunch(ctx context.Context, asset string) (*models.LaunchRecord, error) {
	var rec models.LaunchRecord
	err := p.db.WithContext(ctx).Where("asset = ?", asset).First(&rec).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &rec, nil
}

func (p *postgresStorage) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return storage.ErrNotFound
	}
	return err
}

// pageLimit maps a non-positive limit to "no limit" (gorm uses -1).
func pageLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}
