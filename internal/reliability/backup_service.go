// Package reliability provides data directory backups and maintenance jobs.
package reliability

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/augur/internal/database"
)

const (
	archivePrefix   = "augur-backup-"
	archiveSuffix   = ".tar.gz"
	timestampLayout = "2006-01-02-150405"
	metadataFile    = "backup-metadata.json"

	// minBackupsToKeep survive rotation regardless of retention
	minBackupsToKeep = 3
)

// BackupMetadata describes the contents of one archive
type BackupMetadata struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Files     []FileMetadata `json:"files"`
}

// FileMetadata describes a single archived file
type FileMetadata struct {
	Filename  string `json:"filename"`
	SizeBytes int64  `json:"size_bytes"`
	Checksum  string `json:"checksum"`
}

// BackupInfo represents an archive stored in the bucket
type BackupInfo struct {
	Key       string    `json:"key"`
	Timestamp time.Time `json:"timestamp"`
	SizeBytes int64     `json:"size_bytes"`
}

// BackupService archives the data directory and ships it to an object store
type BackupService struct {
	store     ObjectStore
	dataDir   string
	prefix    string
	retention int
	files     []string
	databases []*database.DB
	log       zerolog.Logger
	now       func() time.Time
}

// NewBackupService creates a backup service. files are names relative to dataDir;
// missing files are skipped. databases are snapshotted with VACUUM INTO.
func NewBackupService(
	store ObjectStore,
	dataDir string,
	prefix string,
	retention int,
	files []string,
	databases []*database.DB,
	log zerolog.Logger,
) *BackupService {
	return &BackupService{
		store:     store,
		dataDir:   dataDir,
		prefix:    prefix,
		retention: retention,
		files:     files,
		databases: databases,
		log:       log.With().Str("service", "backup").Logger(),
		now:       time.Now,
	}
}

// CreateAndUpload builds an archive and uploads it
func (s *BackupService) CreateAndUpload(ctx context.Context) (BackupInfo, error) {
	s.log.Info().Msg("Starting backup")
	start := s.now()

	stagingDir, err := os.MkdirTemp(s.dataDir, "backup-staging-")
	if err != nil {
		return BackupInfo{}, fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(stagingDir)

	metadata := BackupMetadata{
		ID:        uuid.NewString(),
		Timestamp: start.UTC(),
	}

	staged := make([]string, 0, len(s.files)+len(s.databases)+1)

	for _, db := range s.databases {
		name := filepath.Base(db.Path())
		dst := filepath.Join(stagingDir, name)
		if _, err := db.Conn().ExecContext(ctx, "VACUUM INTO ?", dst); err != nil {
			return BackupInfo{}, fmt.Errorf("failed to snapshot %s: %w", db.Name(), err)
		}
		staged = append(staged, name)
	}

	for _, name := range s.files {
		src := filepath.Join(s.dataDir, name)
		if err := copyFile(src, filepath.Join(stagingDir, name)); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				s.log.Debug().Str("file", name).Msg("Skipping missing file")
				continue
			}
			return BackupInfo{}, fmt.Errorf("failed to stage %s: %w", name, err)
		}
		staged = append(staged, name)
	}

	for _, name := range staged {
		path := filepath.Join(stagingDir, name)
		info, err := os.Stat(path)
		if err != nil {
			return BackupInfo{}, fmt.Errorf("failed to stat %s: %w", name, err)
		}
		checksum, err := calculateChecksum(path)
		if err != nil {
			return BackupInfo{}, fmt.Errorf("failed to calculate checksum for %s: %w", name, err)
		}
		metadata.Files = append(metadata.Files, FileMetadata{
			Filename:  name,
			SizeBytes: info.Size(),
			Checksum:  checksum,
		})
	}

	if err := writeMetadata(filepath.Join(stagingDir, metadataFile), metadata); err != nil {
		return BackupInfo{}, fmt.Errorf("failed to write metadata: %w", err)
	}
	staged = append(staged, metadataFile)

	archiveName := archivePrefix + start.UTC().Format(timestampLayout) + archiveSuffix
	archivePath := filepath.Join(stagingDir, archiveName)
	if err := createArchive(archivePath, stagingDir, staged); err != nil {
		return BackupInfo{}, fmt.Errorf("failed to create archive: %w", err)
	}

	archiveInfo, err := os.Stat(archivePath)
	if err != nil {
		return BackupInfo{}, fmt.Errorf("failed to stat archive: %w", err)
	}

	archiveFile, err := os.Open(archivePath)
	if err != nil {
		return BackupInfo{}, fmt.Errorf("failed to open archive: %w", err)
	}
	defer archiveFile.Close()

	key := s.prefix + archiveName
	if err := s.store.Upload(ctx, key, archiveFile, archiveInfo.Size()); err != nil {
		return BackupInfo{}, err
	}

	s.log.Info().
		Str("key", key).
		Str("backup_id", metadata.ID).
		Int("files", len(metadata.Files)).
		Int64("size_bytes", archiveInfo.Size()).
		Dur("duration", s.now().Sub(start)).
		Msg("Backup completed")

	return BackupInfo{Key: key, Timestamp: metadata.Timestamp, SizeBytes: archiveInfo.Size()}, nil
}

// ListBackups returns stored archives, newest first
func (s *BackupService) ListBackups(ctx context.Context) ([]BackupInfo, error) {
	objects, err := s.store.List(ctx, s.prefix+archivePrefix)
	if err != nil {
		return nil, err
	}

	backups := make([]BackupInfo, 0, len(objects))
	for _, obj := range objects {
		name := strings.TrimPrefix(obj.Key, s.prefix)
		if !strings.HasPrefix(name, archivePrefix) || !strings.HasSuffix(name, archiveSuffix) {
			continue
		}
		stamp := strings.TrimSuffix(strings.TrimPrefix(name, archivePrefix), archiveSuffix)
		ts, err := time.Parse(timestampLayout, stamp)
		if err != nil {
			s.log.Warn().Str("key", obj.Key).Msg("Failed to parse timestamp from key")
			continue
		}
		backups = append(backups, BackupInfo{Key: obj.Key, Timestamp: ts, SizeBytes: obj.Size})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Timestamp.After(backups[j].Timestamp)
	})

	return backups, nil
}

// RotateOldBackups keeps the newest archives up to the retention count.
// A retention of 0 keeps everything.
func (s *BackupService) RotateOldBackups(ctx context.Context) (int, error) {
	if s.retention <= 0 {
		return 0, nil
	}

	backups, err := s.ListBackups(ctx)
	if err != nil {
		return 0, err
	}

	keep := s.retention
	if keep < minBackupsToKeep {
		keep = minBackupsToKeep
	}
	if len(backups) <= keep {
		return 0, nil
	}

	deleted := 0
	for _, b := range backups[keep:] {
		if err := s.store.Delete(ctx, b.Key); err != nil {
			s.log.Error().Err(err).Str("key", b.Key).Msg("Failed to delete old backup")
			continue
		}
		deleted++
	}

	s.log.Info().
		Int("deleted", deleted).
		Int("remaining", len(backups)-deleted).
		Msg("Backup rotation completed")

	return deleted, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

func calculateChecksum(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}

	return fmt.Sprintf("sha256:%x", hash.Sum(nil)), nil
}

func writeMetadata(path string, metadata BackupMetadata) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(metadata)
}

func createArchive(archivePath, sourceDir string, names []string) error {
	archiveFile, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}
	defer archiveFile.Close()

	gzipWriter := gzip.NewWriter(archiveFile)
	tarWriter := tar.NewWriter(gzipWriter)

	for _, name := range names {
		if err := addFileToArchive(tarWriter, filepath.Join(sourceDir, name), name); err != nil {
			return fmt.Errorf("failed to add %s to archive: %w", name, err)
		}
	}

	if err := tarWriter.Close(); err != nil {
		return err
	}
	return gzipWriter.Close()
}

func addFileToArchive(tarWriter *tar.Writer, path, nameInArchive string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}

	header := &tar.Header{
		Name:    nameInArchive,
		Size:    info.Size(),
		Mode:    int64(info.Mode()),
		ModTime: info.ModTime(),
	}
	if err := tarWriter.WriteHeader(header); err != nil {
		return err
	}

	_, err = io.Copy(tarWriter, file)
	return err
}
