// Command trackerd starts the announce-tracker HTTP service described
// by spec.md §4.8, bound to a config-driven listen address. Grounded in
// the teacher's plain stdlib http.ListenAndServe shutdown shape and
// prxssh-rabbit/cmd/rabbit's flat cmd/<binary>/main.go layout.
package main

import (
	"flag"
	"net/http"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"gorent/config"
	"gorent/tracker"
)

func main() {
	configPath := flag.String("config", "trackerd.yaml", "path to the tracker YAML config")
	flag.Parse()

	cfg, err := config.LoadTracker(*configPath)
	if err != nil {
		logrus.WithError(err).Fatal("failed to load configuration")
	}

	log := newLogger(cfg.LogsDir)
	srv := tracker.NewServer(log, cfg.NumWant)

	log.WithField("addr", cfg.ListenAddr).Info("tracker listening")
	if err := http.ListenAndServe(cfg.ListenAddr, srv.Handler()); err != nil {
		log.WithError(err).Fatal("tracker server stopped")
	}
}

func newLogger(logsDir string) *logrus.Entry {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if logsDir != "" {
		if err := os.MkdirAll(logsDir, 0o755); err == nil {
			if f, err := os.OpenFile(filepath.Join(logsDir, "trackerd.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
				logger.SetOutput(f)
			}
		}
	}
	return logrus.NewEntry(logger)
}
