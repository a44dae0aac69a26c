package env

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetEnvPrecedence(t *testing.T) {
	Env = map[string]string{"APP_ENV": "dev"}
	defer func() { Env = nil }()

	// Loaded dotenv values win over the process environment.
	t.Setenv("APP_ENV", "prod")
	assert.Equal(t, "dev", GetEnv("APP_ENV", "fallback"))
	assert.True(t, IsDev())

	// Process environment is the fallback for keys missing from the file.
	t.Setenv("DB_HOST", "db.internal")
	assert.Equal(t, "db.internal", GetEnv("DB_HOST", "localhost"))

	// Default applies when neither source has the key.
	assert.Equal(t, "4000", GetEnv("APP_PORT", "4000"))
}
