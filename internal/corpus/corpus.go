// Package corpus is the flat-directory store for accepted training files:
// one subfolder per file type, each file paired with an optional .meta.json
// sidecar carrying detection results and the assigned subject. There is no
// index; listing is a directory scan.
package corpus

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/Elytride/AlterEcho/internal/convo"
	"github.com/Elytride/AlterEcho/internal/fingerprint"
	"github.com/Elytride/AlterEcho/internal/format"
)

// FileType selects a corpus subfolder.
type FileType string

const (
	TypeText  FileType = "text"
	TypeVoice FileType = "voice"
)

// ValidType reports whether s names a known corpus subfolder.
func ValidType(s string) bool {
	return s == string(TypeText) || s == string(TypeVoice)
}

const sidecarSuffix = ".meta.json"

// Sidecar is the metadata stored next to a corpus file. Fields override what
// a rescan of the file itself would detect — merged archive conversations
// keep their true origin ("Discord") even though the file on disk reads as an
// Instagram-format document.
type Sidecar struct {
	DetectedType format.Format `json:"detected_type,omitempty"`
	Participants []string      `json:"participants,omitempty"`
	OriginalName string        `json:"original_name,omitempty"`
	Subject      string        `json:"subject,omitempty"`
}

// Metadata describes one corpus file as the API reports it.
type Metadata struct {
	ID           string        `json:"id"`
	OriginalName string        `json:"original_name"`
	SavedAs      string        `json:"saved_as"`
	FileType     FileType      `json:"file_type"`
	DetectedType format.Format `json:"detected_type"`
	Participants []string      `json:"participants"`
	Subject      string        `json:"subject,omitempty"`
	Path         string        `json:"path"`
	Size         int64         `json:"size"`
}

// Store manages the corpus directory tree.
type Store struct {
	root   string
	logger *slog.Logger
}

// New creates the corpus store, making the per-type subfolders as needed.
func New(root string, logger *slog.Logger) (*Store, error) {
	for _, ft := range []FileType{TypeText, TypeVoice} {
		if err := os.MkdirAll(filepath.Join(root, string(ft)), 0o755); err != nil {
			return nil, fmt.Errorf("create corpus dir %s: %w", ft, err)
		}
	}
	return &Store{root: root, logger: logger}, nil
}

// Dir returns the directory for a file type.
func (s *Store) Dir(ft FileType) string {
	return filepath.Join(s.root, string(ft))
}

// FilePath returns where a file with the given id and extension lives.
func (s *Store) FilePath(ft FileType, id, ext string) string {
	return filepath.Join(s.Dir(ft), id+ext)
}

// SaveConversation writes a merged conversation as <id>.json plus its
// sidecar.
func (s *Store) SaveConversation(id string, c *convo.Conversation, meta Sidecar) (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("marshal conversation: %w", err)
	}
	path := s.FilePath(TypeText, id, ".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write conversation: %w", err)
	}
	if err := s.WriteSidecar(TypeText, id, meta); err != nil {
		return "", err
	}
	return path, nil
}

// WriteSidecar persists the sidecar for id, replacing any existing one.
func (s *Store) WriteSidecar(ft FileType, id string, meta Sidecar) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal sidecar: %w", err)
	}
	path := filepath.Join(s.Dir(ft), id+sidecarSuffix)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write sidecar: %w", err)
	}
	return nil
}

func (s *Store) readSidecar(ft FileType, id string) (Sidecar, bool) {
	data, err := os.ReadFile(filepath.Join(s.Dir(ft), id+sidecarSuffix))
	if err != nil {
		return Sidecar{}, false
	}
	var meta Sidecar
	if err := json.Unmarshal(data, &meta); err != nil {
		return Sidecar{}, false
	}
	return meta, true
}

// SetSubject assigns the training subject for a corpus file, creating or
// updating its sidecar. Returns os.ErrNotExist if no file has the id.
func (s *Store) SetSubject(ft FileType, id, subject string) error {
	if !s.exists(ft, id) {
		return os.ErrNotExist
	}
	meta, _ := s.readSidecar(ft, id)
	meta.Subject = subject
	return s.WriteSidecar(ft, id, meta)
}

// Delete removes the file with the given id and its sidecar. Returns
// os.ErrNotExist if no file matched.
func (s *Store) Delete(ft FileType, id string) error {
	deleted := false
	for _, e := range s.listEntries(ft) {
		if idOf(e.Name()) == id && !isSidecar(e.Name()) {
			if err := os.Remove(filepath.Join(s.Dir(ft), e.Name())); err != nil {
				return fmt.Errorf("delete %s: %w", e.Name(), err)
			}
			deleted = true
		}
	}
	_ = os.Remove(filepath.Join(s.Dir(ft), id+sidecarSuffix))
	if !deleted {
		return os.ErrNotExist
	}
	return nil
}

// List scans a corpus folder and returns metadata for every file, with
// sidecar values overriding rescanned ones. Files that cannot be described
// are skipped, not fatal.
func (s *Store) List(ft FileType) []Metadata {
	var out []Metadata
	for _, e := range s.listEntries(ft) {
		if isSidecar(e.Name()) {
			continue
		}
		md, err := s.describe(ft, e.Name())
		if err != nil {
			s.logger.Warn("skipping unscannable corpus file", "file", e.Name(), "error", err)
			continue
		}
		out = append(out, md)
	}
	return out
}

func (s *Store) describe(ft FileType, name string) (Metadata, error) {
	path := filepath.Join(s.Dir(ft), name)
	info, err := os.Stat(path)
	if err != nil {
		return Metadata{}, err
	}

	id := idOf(name)
	md := Metadata{
		ID:           id,
		OriginalName: name,
		SavedAs:      name,
		FileType:     ft,
		DetectedType: format.FormatUnknown,
		Path:         path,
		Size:         info.Size(),
	}

	if ft == TypeText {
		md.DetectedType = format.Classify(path)
		md.Participants, _ = format.Participants(path, md.DetectedType)
	}

	if meta, ok := s.readSidecar(ft, id); ok {
		md.Subject = meta.Subject
		if meta.DetectedType != "" {
			md.DetectedType = meta.DetectedType
		}
		if meta.Participants != nil {
			md.Participants = meta.Participants
		}
		if meta.OriginalName != "" {
			md.OriginalName = meta.OriginalName
		}
	}
	return md, nil
}

// Fingerprints computes the fingerprint set of every file in a folder, in
// directory listing order. Files yielding empty sets are omitted: they carry
// no dedup signal. Recomputed on every call; sets are never persisted apart
// from their source file.
func (s *Store) Fingerprints(ft FileType) []fingerprint.Candidate {
	var out []fingerprint.Candidate
	for _, e := range s.listEntries(ft) {
		if isSidecar(e.Name()) {
			continue
		}
		set := fingerprint.File(filepath.Join(s.Dir(ft), e.Name()))
		if len(set) == 0 {
			continue
		}
		out = append(out, fingerprint.Candidate{Name: e.Name(), Set: set})
	}
	return out
}

func (s *Store) listEntries(ft FileType) []os.DirEntry {
	entries, err := os.ReadDir(s.Dir(ft))
	if err != nil {
		return nil
	}
	var files []os.DirEntry
	for _, e := range entries {
		if !e.IsDir() {
			files = append(files, e)
		}
	}
	return files
}

func (s *Store) exists(ft FileType, id string) bool {
	for _, e := range s.listEntries(ft) {
		if idOf(e.Name()) == id && !isSidecar(e.Name()) {
			return true
		}
	}
	return false
}

func isSidecar(name string) bool {
	return strings.HasSuffix(name, sidecarSuffix)
}

// idOf strips the extension: corpus files are named <id><ext>.
func idOf(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}
