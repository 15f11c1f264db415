package main

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dodo5517/Prism/pkg/aianalysis"
	"github.com/dodo5517/Prism/pkg/imagegen"
	"github.com/dodo5517/Prism/pkg/storage"
)

// Config is the explicit configuration for the server and the three remote
// clients. Built from the environment once at boot and again when .env
// changes, then handed to each client constructor.
type Config struct {
	Port      string
	DBDSN     string
	JWTSecret string

	GeminiAPIKey string

	CloudflareAccountID string
	CloudflareAPIToken  string

	SupabaseURL    string
	SupabaseKey    string
	SupabaseBucket string
}

func loadConfig() Config {
	conf := Config{
		Port:                os.Getenv("PORT"),
		DBDSN:               os.Getenv("DB_DSN"),
		JWTSecret:           os.Getenv("JWT_SECRET"),
		GeminiAPIKey:        os.Getenv("GEMINI_API_KEY"),
		CloudflareAccountID: os.Getenv("CLOUDFLARE_ACCOUNT_ID"),
		CloudflareAPIToken:  os.Getenv("CLOUDFLARE_API_TOKEN"),
		SupabaseURL:         os.Getenv("SUPABASE_URL"),
		SupabaseKey:         os.Getenv("SUPABASE_KEY"),
		SupabaseBucket:      os.Getenv("SUPABASE_BUCKET"),
	}
	if conf.Port == "" {
		conf.Port = "8080"
	}
	if conf.SupabaseBucket == "" {
		conf.SupabaseBucket = "diary-images"
	}
	return conf
}

// remoteClients bundles the three vendor clients so they can be swapped as
// a unit when credentials change.
type remoteClients struct {
	analyzer *aianalysis.Client
	images   *imagegen.Client
	store    *storage.Client
}

var (
	clientsMu sync.RWMutex
	remotes   remoteClients
)

// buildClients (re)constructs the vendor clients from a config snapshot.
func buildClients(conf Config) {
	built := remoteClients{
		analyzer: aianalysis.New(aianalysis.Config{APIKey: conf.GeminiAPIKey, Logger: logx}),
		images:   imagegen.New(imagegen.Config{AccountID: conf.CloudflareAccountID, APIToken: conf.CloudflareAPIToken, Logger: logx}),
		store:    storage.New(storage.Config{BaseURL: conf.SupabaseURL, ServiceKey: conf.SupabaseKey, Bucket: conf.SupabaseBucket, Logger: logx}),
	}
	clientsMu.Lock()
	remotes = built
	clientsMu.Unlock()
}

func getClients() remoteClients {
	clientsMu.RLock()
	defer clientsMu.RUnlock()
	return remotes
}

// watchEnvFile watches .env and rebuilds the remote clients when it changes,
// so rotated API credentials take effect without a restart. The containing
// directory is watched rather than the file itself: editors save atomically
// by renaming a temp file over the target, which would silently end a watch
// on the file's own path. Events are debounced because editors emit several
// writes per save.
func watchEnvFile(path string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		logx.Warnw("env watcher unavailable", "path", path, "err", err)
		return
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		logx.Warnw("env watcher unavailable", "err", err)
		return
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		logx.Warnw("env watcher could not add directory", "path", path, "err", err)
		return
	}
	logx.Infow("watching env file for credential changes", "path", path)

	go func() {
		defer w.Close()
		var pending time.Time
		ticker := time.NewTicker(250 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != abs {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					pending = time.Now()
				}
			case <-ticker.C:
				if pending.IsZero() || time.Since(pending) < 300*time.Millisecond {
					continue
				}
				pending = time.Time{}
				applyDotEnv(path, true)
				buildClients(loadConfig())
				logx.Infow("env file reloaded, remote clients rebuilt")
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logx.Warnw("env watcher error", "err", err)
			}
		}
	}()
}
