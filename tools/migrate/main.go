// Command migrate applies the embedded SQL migrations of one service.
//
//	migrate -service auth|booking|notification [up|down N|force V|version]
package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/md-rashed-zaman/apptbook/libs/config"
	"github.com/md-rashed-zaman/apptbook/libs/runtime"
	authmigrations "github.com/md-rashed-zaman/apptbook/services/auth-service/migrations"
	bookingmigrations "github.com/md-rashed-zaman/apptbook/services/booking-service/migrations"
	notificationmigrations "github.com/md-rashed-zaman/apptbook/services/notification-service/migrations"
)

var sources = map[string]fs.FS{
	"auth":         authmigrations.FS,
	"booking":      bookingmigrations.FS,
	"notification": notificationmigrations.FS,
}

func main() {
	logger := runtime.NewLogger("migrate")
	if err := run(os.Args[1:]); err != nil {
		logger.Error("migrate failed", "err", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if err := config.LoadDotEnv(); err != nil {
		return err
	}
	flags := flag.NewFlagSet("migrate", flag.ContinueOnError)
	service := flags.String("service", config.String("MIGRATE_SERVICE", "booking"), "auth, booking or notification")
	if err := flags.Parse(args); err != nil {
		return err
	}
	src, ok := sources[*service]
	if !ok {
		return fmt.Errorf("unknown service %q", *service)
	}
	databaseURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		return err
	}

	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer func() { _ = db.Close() }()
	if err := db.Ping(); err != nil {
		return fmt.Errorf("ping db: %w", err)
	}

	// Each service keeps its own version table so both can share a database.
	dbDriver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: *service + "_schema_migrations"})
	if err != nil {
		return fmt.Errorf("db driver: %w", err)
	}
	srcDriver, err := iofs.New(src, ".")
	if err != nil {
		return fmt.Errorf("source driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", srcDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	cmd := flags.Args()
	if len(cmd) == 0 {
		cmd = []string{"up"}
	}
	switch cmd[0] {
	case "up":
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("migrate up: %w", err)
		}
	case "down":
		steps := 1
		if len(cmd) > 1 {
			if steps, err = strconv.Atoi(cmd[1]); err != nil || steps <= 0 {
				return fmt.Errorf("invalid step count %q", cmd[1])
			}
		}
		if err := m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("migrate down: %w", err)
		}
	case "force":
		if len(cmd) < 2 {
			return errors.New("force needs a version")
		}
		version, err := strconv.Atoi(cmd[1])
		if err != nil {
			return fmt.Errorf("invalid version: %w", err)
		}
		if err := m.Force(version); err != nil {
			return fmt.Errorf("force version: %w", err)
		}
	case "version":
	default:
		return fmt.Errorf("unknown command %q", cmd[0])
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("read version: %w", err)
	}
	fmt.Printf("%s migrations at version %d (dirty=%t)\n", *service, version, dirty)
	return nil
}
