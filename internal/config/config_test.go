package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, ModeOffline, cfg.Mode)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, 8*time.Hour, cfg.TokenTTL)
	assert.Equal(t, 10*time.Second, cfg.LockTTL)
	assert.Equal(t, 5, cfg.DiagnosisOptionTotal)
	assert.Equal(t, 3, cfg.TreatmentOptionTotal)
	assert.Equal(t, 8, cfg.ExaminationOptionTotal)
	assert.True(t, cfg.EnableLocalAuth)
	assert.True(t, cfg.DevSecret())
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clinical.yaml")
	require.NoError(t, os.WriteFile(path, []byte("http_addr: \":9090\"\ndiagnosis_option_total: 4\nredis_addr: localhost:6379\n"), 0o600))

	t.Setenv("DIAGNOSIS_OPTION_TOTAL", "6")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("LOCK_TTL", "2s")

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, 6, cfg.DiagnosisOptionTotal, "env wins over file")
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.Equal(t, 2*time.Second, cfg.LockTTL)
}

func TestValidate(t *testing.T) {
	t.Setenv("MODE", "online")
	_, err := Load(viper.New(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth_hmac_secret must be changed")

	t.Setenv("AUTH_HMAC_SECRET", "prod-secret")
	t.Setenv("DB_DRIVER", "mysql")
	t.Setenv("TREATMENT_OPTION_TOTAL", "0")
	_, err = Load(viper.New(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db_driver")
	assert.Contains(t, err.Error(), "treatment_option_total")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(viper.New(), filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
