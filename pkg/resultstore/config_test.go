package resultstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfig_Validate_RequiresPassword(t *testing.T) {
	cfg := Config{MaxOpenConns: 5, MaxIdleConns: 2}
	assert.Error(t, cfg.Validate())
}

func TestConfig_Validate_RejectsIdleExceedingOpen(t *testing.T) {
	cfg := Config{Password: "secret", MaxOpenConns: 2, MaxIdleConns: 5}
	assert.Error(t, cfg.Validate())
}

func TestConfig_Validate_AcceptsWellFormedConfig(t *testing.T) {
	cfg := Config{
		Host:            "localhost",
		Port:            5432,
		User:            "contexttune",
		Password:        "secret",
		Database:        "contexttune",
		SSLMode:         "disable",
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 15 * time.Minute,
	}
	assert.NoError(t, cfg.Validate())
}
