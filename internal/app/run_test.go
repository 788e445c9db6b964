package app

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func clearGatewayEnv(t *testing.T) {
	for _, key := range []string{"PORT", "DATABASE_URL", "BOOKSTACK_BASE_URL", "LEGACY_BASE_URL", "FLAG_BOOKS", "FLAG_PAGES", "FLAG_COMMENTS"} {
		t.Setenv(key, "")
	}
	t.Setenv("LOG_LEVEL", "error")
}

func TestRunFailsWithoutStorageForBooks(t *testing.T) {
	clearGatewayEnv(t)
	port := freePort(t)
	t.Setenv("PORT", fmt.Sprint(port))
	path := writeConfig(t, "legacyBaseUrl: http://localhost:8081\nflags:\n  books: true\n")

	var stderr bytes.Buffer
	code := run(context.Background(), []string{"-config", path}, &stderr)

	assert.Equal(t, 1, code)

	conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", port), 200*time.Millisecond)
	if err == nil {
		conn.Close()
	}
	assert.Error(t, err, "no listener may be bound after a failed startup")
}

func TestRunMigrateDownRequiresDatabase(t *testing.T) {
	clearGatewayEnv(t)
	path := writeConfig(t, "legacyBaseUrl: http://localhost:8081\nflags:\n  books: false\n")

	var stderr bytes.Buffer
	code := run(context.Background(), []string{"-config", path, "-migrate-down"}, &stderr)

	assert.Equal(t, 1, code)
}

func TestRunFailsOnMissingExplicitConfig(t *testing.T) {
	clearGatewayEnv(t)

	var stderr bytes.Buffer
	code := run(context.Background(), []string{"-config", filepath.Join(t.TempDir(), "absent.yaml")}, &stderr)

	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "Failed to load configuration")
}

func TestRunRejectsUnknownFlag(t *testing.T) {
	var stderr bytes.Buffer
	assert.Equal(t, 2, run(context.Background(), []string{"-nope"}, &stderr))
}

func TestRunShutsDownCleanly(t *testing.T) {
	clearGatewayEnv(t)
	port := freePort(t)
	t.Setenv("PORT", fmt.Sprint(port))
	path := writeConfig(t, "legacyBaseUrl: http://localhost:8081\nflags:\n  books: false\nshutdownTimeout: 2\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan int, 1)
	go func() {
		var stderr bytes.Buffer
		done <- run(ctx, []string{"-config", path}, &stderr)
	}()

	require.Eventually(t, func() bool {
		conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", port), 100*time.Millisecond)
		if err != nil {
			return false
		}
		conn.Close()
		return true
	}, 5*time.Second, 50*time.Millisecond)

	cancel()

	select {
	case code := <-done:
		assert.Equal(t, 0, code)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after cancellation")
	}
}
