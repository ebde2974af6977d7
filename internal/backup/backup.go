// Package backup produces and restores ZIP archives of the database and
// configuration file.
package backup

import (
	"archive/zip"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/sublarr/sublarr/internal/config"
	"github.com/sublarr/sublarr/internal/errkind"
	"github.com/sublarr/sublarr/internal/events"
)

// Archive entry names; restore only ever extracts these.
const (
	entryDatabase = "sublarr.db"
	entryConfig   = "config.yaml"
	entryManifest = "manifest.json"
)

type manifest struct {
	Version   string    `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
}

// Info describes one created archive.
type Info struct {
	Path      string    `json:"path"`
	SizeBytes int64     `json:"sizeBytes"`
	CreatedAt time.Time `json:"createdAt"`
}

// Service creates archives from the live database.
type Service struct {
	db         *sql.DB
	dbPath     string
	configPath string
	bus        *events.Bus
	logger     zerolog.Logger
}

// NewService wires the backup service. configPath may be empty when the
// service runs on defaults and environment only.
func NewService(db *sql.DB, dbPath, configPath string, bus *events.Bus, logger zerolog.Logger) *Service {
	return &Service{
		db:         db,
		dbPath:     dbPath,
		configPath: configPath,
		bus:        bus,
		logger:     logger.With().Str("component", "backup").Logger(),
	}
}

// Create snapshots the live database with VACUUM INTO and zips it
// together with the config file and a manifest.
func (s *Service) Create(ctx context.Context, destDir string) (*Info, error) {
	if err := os.MkdirAll(destDir, 0o750); err != nil {
		return nil, errkind.Newf(errkind.Internal, "create backup dir: %w", err)
	}

	snapshot := filepath.Join(destDir, fmt.Sprintf(".snapshot-%d.db", time.Now().UnixNano()))
	defer os.Remove(snapshot)
	// VACUUM INTO writes a consistent copy without blocking readers.
	if _, err := s.db.ExecContext(ctx, `VACUUM INTO ?`, snapshot); err != nil {
		return nil, errkind.Newf(errkind.Internal, "snapshot database: %w", err)
	}

	created := time.Now().UTC()
	archivePath := filepath.Join(destDir, "sublarr-backup-"+created.Format("20060102-150405")+".zip")
	if err := s.write(archivePath, snapshot, created); err != nil {
		os.Remove(archivePath)
		return nil, err
	}

	stat, err := os.Stat(archivePath)
	if err != nil {
		return nil, errkind.Newf(errkind.Internal, "stat archive: %w", err)
	}
	info := &Info{Path: archivePath, SizeBytes: stat.Size(), CreatedAt: created}

	if s.bus != nil {
		_ = s.bus.Publish(events.BackupComplete, events.Payload{
			"path":       info.Path,
			"size_bytes": info.SizeBytes,
		})
	}
	s.logger.Info().Str("path", info.Path).Int64("bytes", info.SizeBytes).Msg("backup created")
	return info, nil
}

func (s *Service) write(archivePath, snapshot string, created time.Time) error {
	out, err := os.Create(archivePath)
	if err != nil {
		return errkind.Newf(errkind.Internal, "create archive: %w", err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)

	if err := addFile(zw, entryDatabase, snapshot); err != nil {
		return err
	}
	if s.configPath != "" {
		if _, err := os.Stat(s.configPath); err == nil {
			if err := addFile(zw, entryConfig, s.configPath); err != nil {
				return err
			}
		}
	}

	mw, err := zw.Create(entryManifest)
	if err != nil {
		return errkind.Newf(errkind.Internal, "write manifest: %w", err)
	}
	if err := json.NewEncoder(mw).Encode(manifest{Version: config.Version, CreatedAt: created}); err != nil {
		return errkind.Newf(errkind.Internal, "write manifest: %w", err)
	}

	if err := zw.Close(); err != nil {
		return errkind.Newf(errkind.Internal, "finalize archive: %w", err)
	}
	return out.Sync()
}

func addFile(zw *zip.Writer, name, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errkind.Newf(errkind.Internal, "open %s: %w", path, err)
	}
	defer f.Close()

	w, err := zw.Create(name)
	if err != nil {
		return errkind.Newf(errkind.Internal, "archive %s: %w", name, err)
	}
	if _, err := io.Copy(w, f); err != nil {
		return errkind.Newf(errkind.Internal, "archive %s: %w", name, err)
	}
	return nil
}

// Restore extracts an archive over the given database and config paths.
// The service must not be running; existing files are kept as .bak.
// Only the known entry names are extracted, so a crafted archive cannot
// write outside the two targets.
func Restore(archivePath, dbPath, configPath string) error {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return errkind.Newf(errkind.ContentInvalid, "open archive: %w", err)
	}
	defer zr.Close()

	entries := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		entries[f.Name] = f
	}
	dbEntry, ok := entries[entryDatabase]
	if !ok {
		return errkind.Newf(errkind.ContentInvalid, "archive has no %s entry", entryDatabase)
	}

	if err := extract(dbEntry, dbPath); err != nil {
		return err
	}
	if cfgEntry, ok := entries[entryConfig]; ok && configPath != "" {
		if err := extract(cfgEntry, configPath); err != nil {
			return err
		}
	}
	return nil
}

func extract(entry *zip.File, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return errkind.Newf(errkind.Internal, "create target dir: %w", err)
	}
	if _, err := os.Stat(dest); err == nil {
		if err := os.Rename(dest, dest+".bak"); err != nil {
			return errkind.Newf(errkind.Internal, "preserve existing %s: %w", dest, err)
		}
	}

	r, err := entry.Open()
	if err != nil {
		return errkind.Newf(errkind.ContentInvalid, "read %s: %w", entry.Name, err)
	}
	defer r.Close()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return errkind.Newf(errkind.Internal, "write %s: %w", dest, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, r); err != nil {
		return errkind.Newf(errkind.Internal, "write %s: %w", dest, err)
	}
	return out.Sync()
}
