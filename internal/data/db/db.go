package db

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/yungbote/tourforge-backend/internal/platform/envutil"
	"github.com/yungbote/tourforge-backend/internal/platform/logger"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Driver string
	// DSN overrides the host/port/user/password/name fields.
	DSN        string
	Host       string
	Port       string
	User       string
	Password   string
	Name       string
	SQLitePath string
}

func ConfigFromEnv(logg *logger.Logger) Config {
	return Config{
		Driver:     strings.ToLower(envutil.String("DB_DRIVER", DriverPostgres, logg)),
		DSN:        envutil.String("POSTGRES_DSN", "", logg),
		Host:       envutil.String("POSTGRES_HOST", "localhost", logg),
		Port:       envutil.String("POSTGRES_PORT", "5432", logg),
		User:       envutil.String("POSTGRES_USER", "postgres", logg),
		Password:   envutil.String("POSTGRES_PASSWORD", "", logg),
		Name:       envutil.String("POSTGRES_NAME", "tourforge", logg),
		SQLitePath: envutil.String("SQLITE_PATH", "tourforge.db", logg),
	}
}

func (c Config) PostgresDSN() string {
	if strings.TrimSpace(c.DSN) != "" {
		return c.DSN
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.Name,
	)
}

type Service struct {
	db     *gorm.DB
	driver string
	log    *logger.Logger
}

func NewService(cfg Config, logg *logger.Logger) (*Service, error) {
	serviceLog := logg.With("service", "DBService", "driver", cfg.Driver)

	gormLog := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             1 * time.Second,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	gcfg := &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLog,
	}

	var (
		db  *gorm.DB
		err error
	)
	switch cfg.Driver {
	case DriverSQLite:
		db, err = gorm.Open(sqlite.Open(cfg.SQLitePath), gcfg)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite %s: %w", cfg.SQLitePath, err)
		}
	case DriverPostgres, "":
		db, err = gorm.Open(postgres.Open(cfg.PostgresDSN()), gcfg)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.Driver)
	}

	serviceLog.Info("database connected")
	return &Service{db: db, driver: cfg.Driver, log: serviceLog}, nil
}

func (s *Service) DB() *gorm.DB { return s.db }

func (s *Service) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
