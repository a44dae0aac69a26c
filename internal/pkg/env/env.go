package env

import (
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Env holds the variables read from the dotenv file. The process environment
// acts as a fallback, so containerized deployments can run without a file.
var Env map[string]string

// Dotenv locations, in precedence order. `.env.local` lets developers
// override checked-in defaults; the parent paths cover binaries started from
// cmd/tradevault and cmd/migrate during development.
var envFiles = []string{
	".env.local",
	".env",
	"../../.env.local",
	"../../.env",
}

func GetEnv(key, def string) string {
	if val, ok := Env[key]; ok {
		return val
	}
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// SetupEnvFile loads the first dotenv file found. When none exists the app
// continues on process environment variables alone.
func SetupEnvFile() {
	for _, envFile := range envFiles {
		vars, err := godotenv.Read(envFile)
		if err != nil {
			continue
		}
		Env = vars
		return
	}

	log.Printf("no dotenv file found (looked for %s), using process environment only",
		strings.Join(envFiles, ", "))
	Env = map[string]string{}
}

func IsDev() bool {
	return GetEnv("APP_ENV", "prod") == "dev"
}
