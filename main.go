package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var jwtSecret []byte // loaded from env JWT_SECRET (fallback to dev default)

var logx *zap.SugaredLogger

func main() {
	// Auto-load ./.env if present before reading vars
	applyDotEnv(".env", false)
	initLogger()
	defer logx.Sync()

	conf := loadConfig()
	secret := conf.JWTSecret
	if secret == "" {
		secret = "dev-insecure-secret-change" // development fallback
	}
	jwtSecret = []byte(secret)

	// Support a lightweight migrate command: `./prism_app migrate`
	// It runs AutoMigrate and seeding then exits. Useful for CI or manual DB setup.
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		initDB(conf)
		fmt.Println("migration and seeding completed")
		return
	}

	initDB(conf)
	buildClients(conf)
	watchEnvFile(".env")

	r := gin.Default()

	setupRoutes(r)

	r.Run(":" + conf.Port)
}

func initLogger() {
	cfg := zap.NewDevelopmentConfig()
	if env := strings.ToLower(os.Getenv("APP_ENV")); env == "prod" || env == "production" {
		cfg = zap.NewProductionConfig()
	}
	zl, err := cfg.Build()
	if err != nil {
		// logger must exist before anything else can report
		panic(err)
	}
	logx = zl.Sugar()
}

// applyDotEnv loads key=value pairs from a local .env file into the
// environment. Lines starting with # are ignored. With overwrite=false,
// variables that are already set win (boot behavior); with overwrite=true
// the file wins (credential reload behavior).
func applyDotEnv(path string, overwrite bool) {
	if _, err := os.Stat(path); err != nil {
		return // no .env file
	}
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		// split on first '='
		if eq := strings.IndexByte(line, '='); eq > 0 {
			key := strings.TrimSpace(line[:eq])
			val := strings.TrimSpace(line[eq+1:])
			if _, exists := os.LookupEnv(key); exists && !overwrite {
				continue
			}
			_ = os.Setenv(key, val)
		}
	}
}
