// Command gorent loads a client configuration, reads every .torrent file
// in its configured torrents directory, and downloads (and optionally
// seeds) each one. Grounded in the teacher's main.go control flow
// (open torrent, generate peer id, request peers, download), replaced
// with a config-driven directory scan and a Coordinator per torrent
// per SPEC_FULL.md's client-wide scope, and prxssh-rabbit/cmd/rabbit's
// flat cmd/<binary>/main.go layout.
package main

import (
	"context"
	"crypto/rand"
	"flag"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"gorent/config"
	"gorent/download"
	"gorent/metainfo"
	"gorent/seeder"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the client YAML config")
	flag.Parse()

	cfg, err := config.LoadClient(*configPath)
	if err != nil {
		logrus.WithError(err).Fatal("failed to load configuration")
	}

	log := newLogger(cfg.LogsDir)
	peerID := generatePeerID()

	torrentPaths, err := findTorrentFiles(cfg.TorrentsDir)
	if err != nil {
		log.WithError(err).Fatal("failed to scan torrents directory")
	}
	if len(torrentPaths) == 0 {
		log.WithField("dir", cfg.TorrentsDir).Warn("no .torrent files found")
	}

	listener := seeder.NewListener(peerID, log.WithField("component", "seeder"))
	seedDone := make(chan struct{})
	if cfg.Seed {
		go func() {
			defer close(seedDone)
			if err := listener.Serve(":" + strconv.Itoa(int(cfg.Port))); err != nil {
				log.WithError(err).Error("seeder listener stopped")
			}
		}()
	}

	var wg sync.WaitGroup
	for _, path := range torrentPaths {
		path := path
		desc, err := readTorrentFile(path)
		if err != nil {
			log.WithError(err).WithField("file", path).Error("skipping invalid torrent file")
			continue
		}

		entry := log.WithField("torrent", desc.Name)
		announce := download.NewAnnounceClient(peerID, cfg.Port)
		coord := download.NewCoordinator(desc, cfg.DownloadsDir, peerID, announce, entry)

		if cfg.Seed {
			listener.Register(coord)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := coord.Run(context.Background()); err != nil {
				entry.WithError(err).Error("download failed")
				return
			}
			entry.Info("download finished")
		}()
	}
	wg.Wait()

	if cfg.Seed {
		// keep serving finished torrents until the listener stops.
		<-seedDone
	}

	os.Exit(0)
}

func findTorrentFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".torrent") {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	return paths, nil
}

func readTorrentFile(path string) (*metainfo.Descriptor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return metainfo.Read(f)
}

// generatePeerID uses the Azureus-style "-GR0001-" prefix, as the
// teacher's generatePeerID does, but fills the remainder with real
// randomness instead of a hardcoded suffix.
func generatePeerID() [20]byte {
	var id [20]byte
	copy(id[:], "-GR0001-")
	rand.Read(id[8:])
	return id
}

func newLogger(logsDir string) *logrus.Entry {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if logsDir != "" {
		if err := os.MkdirAll(logsDir, 0o755); err == nil {
			if f, err := os.OpenFile(filepath.Join(logsDir, "gorent.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
				logger.SetOutput(f)
			}
		}
	}
	return logrus.NewEntry(logger)
}
