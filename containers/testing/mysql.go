package testing

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// MySQLConfig holds configuration for MySQL testcontainer setup.
type MySQLConfig struct {
	// Image is the Docker image to use (default: "mysql:8.4")
	Image string
	// Username is the MySQL application user (default: "multidb")
	Username string
	// Password is the MySQL application user password (default: "multidb")
	Password string
	// Database is the default database to create (default: "multidb")
	Database string
	// StartupTimeout is the maximum time to wait for MySQL to be ready (default: 90s)
	StartupTimeout time.Duration
}

// DefaultMySQLConfig returns the default MySQL configuration for testing.
func DefaultMySQLConfig() MySQLConfig {
	return MySQLConfig{
		Image:          "mysql:8.4",
		Username:       "multidb",
		Password:       "multidb",
		Database:       "multidb",
		StartupTimeout: 90 * time.Second,
	}
}

// SetupMySQL creates a MySQL container for integration testing of the MySQL
// dialect adapter. It mirrors SetupPostgres: a ready DSN plus a cleanup func.
//
// Container Configuration:
//   - Image: mysql:8.4
//   - Port: 3306/tcp
//   - Wait Strategy: "ready for connections" log line, twice (MySQL logs it
//     once before and once after the timezone/grant bootstrap phase)
func SetupMySQL(ctx context.Context, t *testing.T, config *MySQLConfig) (string, ContainerCleanup, error) {
	if config == nil {
		defaultConfig := DefaultMySQLConfig()
		config = &defaultConfig
	}

	req := testcontainers.ContainerRequest{
		Image:        config.Image,
		ExposedPorts: []string{"3306/tcp"},
		Env: map[string]string{
			"MYSQL_ROOT_PASSWORD": config.Password,
			"MYSQL_USER":          config.Username,
			"MYSQL_PASSWORD":      config.Password,
			"MYSQL_DATABASE":      config.Database,
		},
		WaitingFor: wait.ForLog("ready for connections").
			WithOccurrence(2).
			WithStartupTimeout(config.StartupTimeout),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return "", func() {}, fmt.Errorf("failed to start MySQL container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		return "", func() {}, fmt.Errorf("failed to get container host: %w", err)
	}

	port, err := container.MappedPort(ctx, "3306")
	if err != nil {
		_ = container.Terminate(ctx)
		return "", func() {}, fmt.Errorf("failed to get mapped port: %w", err)
	}

	// go-sql-driver/mysql DSN format: user:password@tcp(host:port)/dbname?param=value
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true",
		config.Username, config.Password, host, port.Port(), config.Database)

	cleanup := createCleanupFunc(ctx, container, "MySQL")

	return dsn, cleanup, nil
}
