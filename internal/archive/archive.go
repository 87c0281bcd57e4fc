// Package archive handles vendor data-export zip files: extraction into a
// temp directory keyed by upload id, discovery of the conversation-bearing
// subtree, and merging of a selected conversation into the canonical schema.
package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Elytride/AlterEcho/internal/convo"
)

// Kind identifies which vendor's export layout an archive follows.
type Kind string

const (
	KindInstagram Kind = "instagram"
	KindDiscord   Kind = "discord"
)

// ConversationUnit is one discovered conversation inside an extracted
// archive, with enough preview data for a user to pick from. Transient: it
// only lives between enumeration and selection.
type ConversationUnit struct {
	FolderName   string   `json:"folder_name"`
	DisplayName  string   `json:"display_name"`
	Path         string   `json:"path"`
	Participants []string `json:"participants,omitempty"`
	MessageCount int      `json:"message_count"`
	ChannelID    string   `json:"channel_id,omitempty"`
}

// Adapter is the per-vendor capability: enumerate conversations in an
// extracted archive and merge one into a canonical record. Merge returns
// (nil, nil) when the unit has no message data.
type Adapter interface {
	Kind() Kind
	Enumerate(extractedDir string) []ConversationUnit
	Merge(unit ConversationUnit) (*convo.Conversation, error)
}

// AdapterFor returns the adapter for a kind, or nil for an unknown kind.
func AdapterFor(k Kind) Adapter {
	switch k {
	case KindInstagram:
		return InstagramAdapter{}
	case KindDiscord:
		return DiscordAdapter{}
	default:
		return nil
	}
}

// SniffZipKind inspects a zip's name list to decide which vendor produced it.
// Discord is checked first: its exports contain a messages/index.json, which
// an Instagram export never has. Returns "" when neither layout matches.
func SniffZipKind(zipPath string) (Kind, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return "", fmt.Errorf("open zip: %w", err)
	}
	defer r.Close()

	instagram := false
	for _, f := range r.File {
		name := strings.ToLower(f.Name)
		if strings.Contains(name, "messages/index.json") {
			return KindDiscord, nil
		}
		if strings.Contains(name, "inbox/") {
			instagram = true
		}
	}
	if instagram {
		return KindInstagram, nil
	}
	return "", nil
}

// Extractor unpacks archives into per-id directories under a temp root.
type Extractor struct {
	root string
}

// NewExtractor creates an extractor rooted at dir, creating it if needed.
func NewExtractor(dir string) (*Extractor, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create temp root: %w", err)
	}
	return &Extractor{root: dir}, nil
}

// ExtractZip unpacks the archive into <root>/<id>. Idempotent per id: any
// prior directory for the id is deleted first, so a re-extraction leaves only
// the new archive's contents. Ids must be unique per upload — two concurrent
// extractions sharing an id would race on the delete.
func (e *Extractor) ExtractZip(zipPath, id string) (string, error) {
	dest := filepath.Join(e.root, id)

	if err := os.RemoveAll(dest); err != nil {
		return "", fmt.Errorf("clean prior extraction: %w", err)
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return "", fmt.Errorf("create extraction dir: %w", err)
	}

	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return "", fmt.Errorf("open zip: %w", err)
	}
	defer r.Close()

	for _, f := range r.File {
		if err := extractFile(f, dest); err != nil {
			return "", fmt.Errorf("extract %s: %w", f.Name, err)
		}
	}
	return dest, nil
}

// Cleanup removes the extraction directory for an id. Idempotent; no-op if
// nothing was extracted or it was already cleaned.
func (e *Extractor) Cleanup(id string) error {
	return os.RemoveAll(filepath.Join(e.root, id))
}

func extractFile(f *zip.File, dest string) error {
	// Reject entries that would escape the extraction directory.
	target := filepath.Join(dest, filepath.Clean(f.Name))
	if !strings.HasPrefix(target, filepath.Clean(dest)+string(os.PathSeparator)) {
		return fmt.Errorf("illegal path %q", f.Name)
	}

	if f.FileInfo().IsDir() {
		return os.MkdirAll(target, 0o755)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, rc)
	return err
}

// PendingArchive links an uploaded archive to its extracted contents while
// the caller picks conversations. It must not outlive the extraction
// directory it references.
type PendingArchive struct {
	ID            string
	ZipPath       string
	ExtractedPath string
	OriginalName  string
	Kind          Kind
	Units         []ConversationUnit
}

// PendingStore tracks archives awaiting conversation selection. The pipeline
// takes this as a dependency so tests can supply their own; nothing in the
// package holds process-wide state.
type PendingStore interface {
	Put(p PendingArchive)
	Get(id string) (PendingArchive, bool)
	Delete(id string)
}

// MemoryPendingStore is the in-process PendingStore implementation.
type MemoryPendingStore struct {
	mu sync.Mutex
	m  map[string]PendingArchive
}

func NewMemoryPendingStore() *MemoryPendingStore {
	return &MemoryPendingStore{m: make(map[string]PendingArchive)}
}

func (s *MemoryPendingStore) Put(p PendingArchive) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[p.ID] = p
}

func (s *MemoryPendingStore) Get(id string) (PendingArchive, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.m[id]
	return p, ok
}

func (s *MemoryPendingStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, id)
}
