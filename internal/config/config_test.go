package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "env: test\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "test", cfg.Env)
	assert.Equal(t, ":8080", cfg.HTTPServer.Address)
	assert.Equal(t, "canteenOrders", cfg.LocalStore.Key)
	assert.Equal(t, 2*time.Second, cfg.LocalStore.LockTimeout)
	assert.False(t, cfg.Postgres.Valid())
	assert.False(t, cfg.Orders.StrictTransitions)
}

func TestLoadExpandsVariablesAndOverrides(t *testing.T) {
	t.Setenv("TEST_DB_PASSWORD", "s3cret")
	t.Setenv("CANTEEN_HTTP_ADDRESS", ":9090")
	t.Setenv("CANTEEN_ORDERS_STRICT_TRANSITIONS", "true")

	path := writeConfig(t, `
http_server:
  address: ":8081"
  read_timeout: 3s
postgres:
  user: canteen
  password: ${TEST_DB_PASSWORD}
  host: db
  port: "5432"
  db_name: orders
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTPServer.Address)
	assert.Equal(t, 3*time.Second, cfg.HTTPServer.ReadTimeout)
	assert.Equal(t, "s3cret", cfg.Postgres.Password)
	assert.True(t, cfg.Orders.StrictTransitions)
	assert.True(t, cfg.Postgres.Valid())
	assert.Equal(t, "postgres://canteen:s3cret@db:5432/orders?sslmode=disable", cfg.Postgres.ConnString())
}

func TestConnStringPrefersURL(t *testing.T) {
	p := Postgres{URL: "postgres://u@h/db", Host: "ignored"}
	assert.Equal(t, "postgres://u@h/db", p.ConnString())
	assert.True(t, p.Valid())
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	cases := map[string]string{
		"kafka without brokers": "kafka:\n  enabled: true\n",
		"unknown platform":      "notifications:\n  platform: pager\n",
		"bad yaml":              "http_server: [",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
