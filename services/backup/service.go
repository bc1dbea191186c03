// Package backup snapshots the durable JSON state files into timestamped zip
// archives with a checksum manifest.
package backup

import (
	"archive/zip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// stateFiles are the files included in a backup, relative to the data dir.
var stateFiles = []string{
	"race_calendar.json",
	"users_data.json",
	"notify_history.json",
}

// maxBackups is the number of archives kept before the oldest are removed.
const maxBackups = 10

// Manifest describes the contents of one archive.
type Manifest struct {
	CreatedAt time.Time         `json:"createdAt"`
	Files     map[string]string `json:"files"` // filename -> sha256
}

// Info is the listing entry for one archive on disk.
type Info struct {
	Filename  string    `json:"filename"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"createdAt"`
}

// Service creates and lists state backups.
type Service struct {
	mu        sync.Mutex
	dataDir   string
	backupDir string
}

// NewService creates the backup service, ensuring the backup directory exists.
func NewService(dataDir, backupDir string) (*Service, error) {
	if err := os.MkdirAll(backupDir, 0o755); err != nil {
		return nil, fmt.Errorf("create backup directory: %w", err)
	}
	return &Service{dataDir: dataDir, backupDir: backupDir}, nil
}

// Create writes a new archive of the current state files and prunes old
// backups past the retention count. Missing state files are skipped, so a
// fresh installation can still back up what it has.
func (s *Service) Create() (*Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	filename := fmt.Sprintf("gridalert-backup-%s.zip", now.Format("20060102-150405"))
	path := filepath.Join(s.backupDir, filename)

	out, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create backup file: %w", err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	manifest := Manifest{CreatedAt: now, Files: make(map[string]string)}

	for _, name := range stateFiles {
		sum, err := s.addFile(zw, name)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			zw.Close()
			_ = os.Remove(path)
			return nil, fmt.Errorf("add %s: %w", name, err)
		}
		manifest.Files[name] = sum
	}

	if len(manifest.Files) == 0 {
		zw.Close()
		_ = os.Remove(path)
		return nil, fmt.Errorf("no state files to back up")
	}

	mw, err := zw.Create("manifest.json")
	if err != nil {
		zw.Close()
		_ = os.Remove(path)
		return nil, fmt.Errorf("create manifest: %w", err)
	}
	if err := json.NewEncoder(mw).Encode(manifest); err != nil {
		zw.Close()
		_ = os.Remove(path)
		return nil, fmt.Errorf("write manifest: %w", err)
	}
	if err := zw.Close(); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("finalize backup: %w", err)
	}

	stat, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat backup: %w", err)
	}

	s.pruneLocked()
	log.Printf("[backup] created %s (%d files, %d bytes)", filename, len(manifest.Files), stat.Size())

	return &Info{Filename: filename, Size: stat.Size(), CreatedAt: now}, nil
}

// addFile copies one state file into the archive and returns its sha256.
func (s *Service) addFile(zw *zip.Writer, name string) (string, error) {
	src, err := os.Open(filepath.Join(s.dataDir, name))
	if err != nil {
		return "", err
	}
	defer src.Close()

	w, err := zw.Create(name)
	if err != nil {
		return "", err
	}

	h := sha256.New()
	if _, err := io.Copy(io.MultiWriter(w, h), src); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// List returns all archives, newest first.
func (s *Service) List() ([]Info, error) {
	entries, err := os.ReadDir(s.backupDir)
	if err != nil {
		return nil, fmt.Errorf("read backup directory: %w", err)
	}

	var infos []Info
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".zip") {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		infos = append(infos, Info{
			Filename:  e.Name(),
			Size:      fi.Size(),
			CreatedAt: fi.ModTime().UTC(),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].CreatedAt.After(infos[j].CreatedAt) })
	return infos, nil
}

// pruneLocked removes archives beyond the retention count. Callers hold s.mu.
func (s *Service) pruneLocked() {
	infos, err := s.List()
	if err != nil {
		log.Printf("[backup] prune: %v", err)
		return
	}
	for _, old := range infos[min(len(infos), maxBackups):] {
		if err := os.Remove(filepath.Join(s.backupDir, old.Filename)); err != nil {
			log.Printf("[backup] remove %s: %v", old.Filename, err)
		}
	}
}
