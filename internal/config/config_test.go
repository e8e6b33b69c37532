package config

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/rongwang/groupbets-server/internal/repository"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, key := range []string{"SERVER_PORT", "STORE_DRIVER", "DB_NAME", "MONGO_DATABASE", "BCRYPT_COST", "RATE_LIMIT_RPS", "MONGO_SOCKET_TIMEOUT"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg := LoadConfig()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, DriverPostgres, cfg.Store.Driver)
	assert.Equal(t, "hackathon", cfg.Mongo.Database)
	assert.Equal(t, bcrypt.DefaultCost, cfg.Security.BcryptCost)
	assert.Equal(t, float64(0), cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 5*time.Second, cfg.Mongo.SocketTimeout)
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("STORE_DRIVER", DriverMongo)
	t.Setenv("MONGO_SOCKET_TIMEOUT", "750ms")
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	t.Setenv("BCRYPT_COST", "not-a-number")

	cfg := LoadConfig()

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, DriverMongo, cfg.Store.Driver)
	assert.Equal(t, 750*time.Millisecond, cfg.Mongo.SocketTimeout)
	assert.Equal(t, 2.5, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, bcrypt.DefaultCost, cfg.Security.BcryptCost)
}

func TestGetDSNCarriesTimeouts(t *testing.T) {
	db := DatabaseConfig{
		Host:             "db",
		Port:             5432,
		Username:         "u",
		Password:         "p",
		DBName:           "groupbets",
		SSLMode:          "disable",
		ConnectTimeout:   2 * time.Second,
		StatementTimeout: 5 * time.Second,
	}

	assert.Equal(t,
		"host=db port=5432 user=u password=p dbname=groupbets sslmode=disable connect_timeout=2 statement_timeout=5000",
		db.GetDSN())
}

func TestSetupRepositoryMemory(t *testing.T) {
	cfg := LoadConfig()
	cfg.Store.Driver = DriverMemory

	repo, err := SetupRepository(context.Background(), cfg)
	require.NoError(t, err)
	defer repo.Close()

	_, ok := repo.(*repository.MemoryRepository)
	assert.True(t, ok)
	assert.NoError(t, repo.Ping(context.Background()))
}

func TestSetupRepositoryUnknownDriver(t *testing.T) {
	cfg := LoadConfig()
	cfg.Store.Driver = "cassandra"

	_, err := SetupRepository(context.Background(), cfg)
	assert.Error(t, err)
}
