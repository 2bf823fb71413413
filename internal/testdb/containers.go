package testdb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	_ "github.com/go-sql-driver/mysql"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// MySQLContainer is a throwaway MySQL instance for integration tests and
// local development.
type MySQLContainer struct {
	container testcontainers.Container
	Host      string
	Port      string
	Database  string
	User      string
	Password  string
}

// DockerAvailable reports whether a docker daemon is reachable, so callers
// can skip container-backed tests instead of failing them.
func DockerAvailable(ctx context.Context) bool {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return false
	}
	defer cli.Close()
	_, err = cli.Ping(ctx)
	return err == nil
}

// StartMySQL runs a MySQL container and waits until it accepts queries.
func StartMySQL(ctx context.Context, image string) (*MySQLContainer, error) {
	if image == "" {
		image = "mysql:8.4"
	}

	tcpPort, err := nat.NewPort("tcp", "3306")
	if err != nil {
		return nil, fmt.Errorf("failed to create DB port: %w", err)
	}

	mc := &MySQLContainer{
		Database: "pipeledger",
		User:     "pipeledger",
		Password: "pipeledger",
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        image,
			ExposedPorts: []string{string(tcpPort)},
			Env: map[string]string{
				"MYSQL_ROOT_PASSWORD": mc.Password,
				"MYSQL_DATABASE":      mc.Database,
				"MYSQL_USER":          mc.User,
				"MYSQL_PASSWORD":      mc.Password,
			},
			WaitingFor: wait.ForListeningPort(tcpPort).WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start database container: %w", err)
	}
	mc.container = container

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, err
	}
	mapped, err := container.MappedPort(ctx, tcpPort)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, err
	}
	mc.Host = host
	mc.Port = mapped.Port()

	if err := mc.waitReady(ctx); err != nil {
		_ = container.Terminate(ctx)
		return nil, err
	}
	return mc, nil
}

// DSN returns the go-sql-driver DSN for the container.
func (mc *MySQLContainer) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		mc.User, mc.Password, mc.Host, mc.Port, mc.Database)
}

// Terminate stops and removes the container.
func (mc *MySQLContainer) Terminate(ctx context.Context) error {
	if mc.container == nil {
		return nil
	}
	return mc.container.Terminate(ctx)
}

// waitReady pings until the server answers queries; the listening port
// opens before MySQL finishes its first-run initialization.
func (mc *MySQLContainer) waitReady(ctx context.Context) error {
	db, err := sql.Open("mysql", mc.DSN())
	if err != nil {
		return err
	}
	defer db.Close()

	deadline := time.Now().Add(60 * time.Second)
	for {
		if err = db.PingContext(ctx); err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("database not ready: %w", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
}
