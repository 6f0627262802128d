//go:build integration

package postgres

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
)

var testPool *pgxpool.Pool

// TestMain runs the integration suite against a throwaway postgres:14 container.
func TestMain(m *testing.M) {
	ctx := context.Background()
	dbName := "sync-test"
	dbUser := "user"
	dbPassword := "password"
	dbPort := "5432"

	// 1. Container
	cmd := exec.Command("docker", "run", "-d", "--rm",
		"--network", "host",
		"-e", fmt.Sprintf("POSTGRES_DB=%s", dbName),
		"-e", fmt.Sprintf("POSTGRES_USER=%s", dbUser),
		"-e", fmt.Sprintf("POSTGRES_PASSWORD=%s", dbPassword),
		"postgres:14",
	)
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		log.Fatalf("could not start postgres container: %v. Is Docker running?", err)
	}
	containerID := strings.TrimSpace(out.String())[:12]

	// 2. Wait until it accepts connections
	connStr := fmt.Sprintf("postgres://%s:%s@localhost:%s/%s?sslmode=disable", dbUser, dbPassword, dbPort, dbName)
	var err error
	const maxRetries = 15
	for i := 0; i < maxRetries; i++ {
		testPool, err = pgxpool.Connect(ctx, connStr)
		if err == nil {
			break
		}
		log.Printf("Waiting for database to be ready... (attempt %d/%d)", i+1, maxRetries)
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		exec.Command("docker", "stop", containerID).Run()
		log.Fatalf("Unable to connect to test database after multiple retries: %v\n", err)
	}

	// 3. Schema
	if err := EnsureSchema(ctx, testPool); err != nil {
		exec.Command("docker", "stop", containerID).Run()
		log.Fatalf("could not apply schema: %s", err)
	}
	log.Println("sync test database is ready")

	// 4. Run
	exitCode := m.Run()

	// 5. Stop the container before os.Exit skips deferred work
	testPool.Close()
	log.Println("Stopping test container...")
	if err := exec.Command("docker", "stop", containerID).Run(); err != nil {
		log.Printf("could not stop postgres container %s: %v", containerID, err)
	}

	os.Exit(exitCode)
}

func cleanup(t *testing.T) {
	t.Helper()
	_, err := testPool.Exec(context.Background(), `TRUNCATE sync_jobs, sync_logs RESTART IDENTITY`)
	if err != nil {
		t.Fatalf("Failed to clean up database: %v", err)
	}
}
