package db

import (
	"errors"
	"fmt"
	"time"

	"profilesite/internal/config"
	"profilesite/internal/logger"
	"profilesite/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("record not found")

// Init 根据配置连接数据库并执行自动迁移
func Init(cfg *config.Config) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.DatabaseDriver {
	case "sqlite":
		dialector = sqlite.Open(cfg.DatabaseURL)
	default:
		dialector = postgres.Open(cfg.DatabaseURL)
	}

	gormLog := gormlogger.New(logger.GormWriter{Logger: logger.L}, gormlogger.Config{
		SlowThreshold:             500 * time.Millisecond,
		LogLevel:                  gormlogger.Warn,
		IgnoreRecordNotFoundError: true,
	})

	conn, err := gorm.Open(dialector, &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("Failed to connect to database: %w", err)
	}
	logger.L.Info().Str("driver", cfg.DatabaseDriver).Msg("Database connection established")

	if err := Migrate(conn); err != nil {
		return nil, err
	}
	logger.L.Info().Msg("Database migration completed")
	return conn, nil
}

// Migrate 自动迁移全部模型
func Migrate(conn *gorm.DB) error {
	if err := conn.AutoMigrate(
		&models.Post{},
		&models.Comment{},
	); err != nil {
		return fmt.Errorf("Failed to migrate database: %w", err)
	}
	return nil
}

// Close 关闭底层连接池
func Close(conn *gorm.DB) error {
	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
