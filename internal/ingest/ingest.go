// Package ingest orchestrates the upload pipeline: classification,
// duplicate gating against the corpus and the in-flight batch, archive
// extraction and pending-selection bookkeeping, and final acceptance into
// the corpus store. The pipeline is synchronous; callers needing
// responsiveness run it off their interactive path.
package ingest

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/Elytride/AlterEcho/internal/archive"
	"github.com/Elytride/AlterEcho/internal/audit"
	"github.com/Elytride/AlterEcho/internal/convo"
	"github.com/Elytride/AlterEcho/internal/corpus"
	"github.com/Elytride/AlterEcho/internal/events"
	"github.com/Elytride/AlterEcho/internal/fingerprint"
	"github.com/Elytride/AlterEcho/internal/format"
)

// ErrArchiveNotFound is returned when a selection references an unknown or
// already-completed archive id.
var ErrArchiveNotFound = errors.New("archive not found")

// allowedTextExtensions are the upload extensions accepted into the text
// corpus. Voice files are opaque and unrestricted here.
var allowedTextExtensions = map[string]bool{
	".txt": true, ".json": true, ".zip": true, ".html": true,
}

// Rejection explains why a file or conversation was not accepted.
type Rejection struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// FileResult is the outcome for one uploaded file: exactly one of the three
// fields is set.
type FileResult struct {
	Accepted *corpus.Metadata
	Archive  *archive.PendingArchive
	Rejected *Rejection
}

// Batch carries duplicate-gate state across one multi-file upload: the
// corpus fingerprints snapshotted at batch start, plus the sets of files
// accepted earlier in this same batch. The second gate stops two
// near-identical files in one upload from both getting in.
type Batch struct {
	existing []fingerprint.Candidate
	accepted []fingerprint.Candidate
}

// Pipeline wires the ingestion stages together. Events and audit are
// optional (nil-safe); everything else is required.
type Pipeline struct {
	corpus    *corpus.Store
	extractor *archive.Extractor
	pending   archive.PendingStore
	events    *events.Publisher
	audit     *audit.Store
	logger    *slog.Logger
}

func New(cs *corpus.Store, ex *archive.Extractor, ps archive.PendingStore,
	ev *events.Publisher, au *audit.Store, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		corpus:    cs,
		extractor: ex,
		pending:   ps,
		events:    ev,
		audit:     au,
		logger:    logger,
	}
}

// NewFileID generates a 12-hex-character file identifier.
func NewFileID() string {
	u := uuid.New()
	return hex.EncodeToString(u[:6])
}

// NewBatch snapshots the current text-corpus fingerprints for one upload
// batch.
func (p *Pipeline) NewBatch() *Batch {
	return &Batch{existing: p.corpus.Fingerprints(corpus.TypeText)}
}

// IngestFile runs one already-saved upload through the pipeline. The file
// must live at path inside the corpus folder for ft; on rejection it is
// deleted again. Archives divert into the pending-selection flow.
func (p *Pipeline) IngestFile(ctx context.Context, b *Batch, ft corpus.FileType, fileID, originalName, path string) FileResult {
	ext := strings.ToLower(filepath.Ext(path))

	if ft == corpus.TypeText && !allowedTextExtensions[ext] {
		return p.reject(ctx, ft, fileID, originalName, path, "Invalid extension")
	}

	if ft == corpus.TypeText && ext == ".zip" {
		return p.ingestArchive(ctx, fileID, originalName, path)
	}

	if ft == corpus.TypeText {
		fps := fingerprint.File(path)

		if dup, match := fingerprint.CheckOverlap(fps, b.existing, fingerprint.DefaultThreshold); dup {
			return p.reject(ctx, ft, fileID, originalName, path, fmt.Sprintf("Duplicate of %s", match))
		}
		if dup, _ := fingerprint.CheckOverlap(fps, b.accepted, fingerprint.DefaultThreshold); dup {
			return p.reject(ctx, ft, fileID, originalName, path, "Duplicate of another file in this upload")
		}
		if len(fps) > 0 {
			b.accepted = append(b.accepted, fingerprint.Candidate{Name: originalName, Set: fps})
		}
	}

	detected := format.FormatUnknown
	var participants []string
	if ft == corpus.TypeText {
		detected = format.Classify(path)
		participants, _ = format.Participants(path, detected)
	}

	info, err := os.Stat(path)
	if err != nil {
		return p.reject(ctx, ft, fileID, originalName, path, "File vanished during processing")
	}

	md := corpus.Metadata{
		ID:           fileID,
		OriginalName: originalName,
		SavedAs:      filepath.Base(path),
		FileType:     ft,
		DetectedType: detected,
		Participants: participants,
		Path:         path,
		Size:         info.Size(),
	}

	p.recordVerdict(ctx, audit.Record{
		FileID:       fileID,
		OriginalName: originalName,
		FileType:     string(ft),
		DetectedType: string(detected),
		Verdict:      "accepted",
		Participants: participants,
	})
	p.events.FileAccepted(events.FileEvent{
		FileID:       fileID,
		OriginalName: originalName,
		FileType:     string(ft),
		DetectedType: string(detected),
	})

	p.logger.Info("file accepted", "id", fileID, "name", originalName, "type", detected)
	return FileResult{Accepted: &md}
}

// ingestArchive sniffs the zip kind, extracts it under the file id, and
// registers a pending archive for conversation selection. The zip itself
// stays on disk until selection completes or cleanup runs.
func (p *Pipeline) ingestArchive(ctx context.Context, fileID, originalName, path string) FileResult {
	kind, err := archive.SniffZipKind(path)
	if err != nil {
		return p.reject(ctx, corpus.TypeText, fileID, originalName, path, fmt.Sprintf("ZIP error: %v", err))
	}
	if kind == "" {
		return p.reject(ctx, corpus.TypeText, fileID, originalName, path, "Unrecognized archive layout")
	}

	extracted, err := p.extractor.ExtractZip(path, fileID)
	if err != nil {
		_ = p.extractor.Cleanup(fileID)
		return p.reject(ctx, corpus.TypeText, fileID, originalName, path, fmt.Sprintf("ZIP error: %v", err))
	}

	units := archive.AdapterFor(kind).Enumerate(extracted)

	pa := archive.PendingArchive{
		ID:            fileID,
		ZipPath:       path,
		ExtractedPath: extracted,
		OriginalName:  originalName,
		Kind:          kind,
		Units:         units,
	}
	p.pending.Put(pa)

	p.events.ArchivePending(events.ArchiveEvent{
		ArchiveID:     fileID,
		Kind:          string(kind),
		OriginalName:  originalName,
		Conversations: len(units),
	})
	p.logger.Info("archive pending selection", "id", fileID, "kind", kind, "conversations", len(units))
	return FileResult{Archive: &pa}
}

// SelectionResult reports the outcome of completing an archive selection.
type SelectionResult struct {
	Uploaded []corpus.Metadata `json:"uploaded"`
	Rejected []Rejection       `json:"rejected"`
}

// CompleteSelection merges the selected conversations of a pending archive
// into the corpus, running each merged record through the duplicate gate.
// Cleanup of the zip, the extraction directory, and the pending record is
// guaranteed even when every merge fails.
func (p *Pipeline) CompleteSelection(ctx context.Context, archiveID string, selectedFolders []string) (SelectionResult, error) {
	pa, ok := p.pending.Get(archiveID)
	if !ok {
		return SelectionResult{}, ErrArchiveNotFound
	}
	defer p.cleanupArchive(pa)

	adapter := archive.AdapterFor(pa.Kind)
	if adapter == nil {
		return SelectionResult{}, fmt.Errorf("no adapter for archive kind %q", pa.Kind)
	}

	selected := make(map[string]bool, len(selectedFolders))
	for _, f := range selectedFolders {
		selected[f] = true
	}

	sourceLabel := "Instagram"
	detected := format.FormatInstagram
	if pa.Kind == archive.KindDiscord {
		sourceLabel = "Discord"
		detected = format.FormatDiscord
	}

	var result SelectionResult
	existing := p.corpus.Fingerprints(corpus.TypeText)
	var acceptedSets []fingerprint.Candidate

	for _, unit := range pa.Units {
		if !selected[unit.FolderName] {
			continue
		}

		merged, err := adapter.Merge(unit)
		if err != nil || merged == nil {
			if err != nil {
				p.logger.Warn("merge failed", "archive", archiveID, "folder", unit.FolderName, "error", err)
			}
			result.Rejected = append(result.Rejected, Rejection{Name: unit.DisplayName, Reason: "Failed to merge"})
			continue
		}

		fps := fingerprint.FromMessages(merged.Messages, fingerprint.DefaultBoundary)
		if dup, match := fingerprint.CheckOverlap(fps, existing, fingerprint.DefaultThreshold); dup {
			result.Rejected = append(result.Rejected, Rejection{Name: unit.DisplayName, Reason: fmt.Sprintf("Duplicate of %s", match)})
			continue
		}
		if dup, _ := fingerprint.CheckOverlap(fps, acceptedSets, fingerprint.DefaultThreshold); dup {
			result.Rejected = append(result.Rejected, Rejection{Name: unit.DisplayName, Reason: "Duplicate of another selected conversation"})
			continue
		}

		fileID := NewFileID()
		participants := participantNames(merged)
		path, err := p.corpus.SaveConversation(fileID, merged, corpus.Sidecar{
			DetectedType: detected,
			Participants: participants,
			OriginalName: unit.DisplayName,
		})
		if err != nil {
			p.logger.Error("failed to persist merged conversation", "folder", unit.FolderName, "error", err)
			result.Rejected = append(result.Rejected, Rejection{Name: unit.DisplayName, Reason: "Failed to save"})
			continue
		}
		if len(fps) > 0 {
			acceptedSets = append(acceptedSets, fingerprint.Candidate{Name: unit.DisplayName, Set: fps})
		}

		info, _ := os.Stat(path)
		md := corpus.Metadata{
			ID:           fileID,
			OriginalName: fmt.Sprintf("%s (%s)", unit.DisplayName, sourceLabel),
			SavedAs:      filepath.Base(path),
			FileType:     corpus.TypeText,
			DetectedType: detected,
			Participants: participants,
			Path:         path,
		}
		if info != nil {
			md.Size = info.Size()
		}
		result.Uploaded = append(result.Uploaded, md)

		p.recordVerdict(ctx, audit.Record{
			FileID:       fileID,
			OriginalName: md.OriginalName,
			FileType:     string(corpus.TypeText),
			DetectedType: string(detected),
			Verdict:      "accepted",
			Participants: participants,
		})
		p.events.FileAccepted(events.FileEvent{
			FileID:       fileID,
			OriginalName: md.OriginalName,
			FileType:     string(corpus.TypeText),
			DetectedType: string(detected),
		})
	}

	p.events.ArchiveSelected(events.ArchiveEvent{
		ArchiveID:     archiveID,
		Kind:          string(pa.Kind),
		OriginalName:  pa.OriginalName,
		Conversations: len(result.Uploaded),
	})
	p.logger.Info("archive selection complete",
		"archive", archiveID,
		"accepted", len(result.Uploaded),
		"rejected", len(result.Rejected),
	)
	return result, nil
}

// Cleanup discards a pending archive without importing anything. Idempotent;
// unknown ids are a no-op.
func (p *Pipeline) Cleanup(archiveID string) {
	if pa, ok := p.pending.Get(archiveID); ok {
		p.cleanupArchive(pa)
		return
	}
	// The pending record may already be gone while the extraction lingers.
	_ = p.extractor.Cleanup(archiveID)
}

func (p *Pipeline) cleanupArchive(pa archive.PendingArchive) {
	if err := os.Remove(pa.ZipPath); err != nil && !os.IsNotExist(err) {
		p.logger.Warn("failed to remove archive zip", "path", pa.ZipPath, "error", err)
	}
	if err := p.extractor.Cleanup(pa.ID); err != nil {
		p.logger.Warn("failed to remove extraction dir", "archive", pa.ID, "error", err)
	}
	p.pending.Delete(pa.ID)
}

// reject removes the file and records the verdict.
func (p *Pipeline) reject(ctx context.Context, ft corpus.FileType, fileID, originalName, path, reason string) FileResult {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		p.logger.Warn("failed to remove rejected file", "path", path, "error", err)
	}

	p.recordVerdict(ctx, audit.Record{
		FileID:       fileID,
		OriginalName: originalName,
		FileType:     string(ft),
		Verdict:      "rejected",
		Reason:       reason,
	})
	p.events.FileRejected(events.FileEvent{
		FileID:       fileID,
		OriginalName: originalName,
		FileType:     string(ft),
		Reason:       reason,
	})

	p.logger.Info("file rejected", "name", originalName, "reason", reason)
	return FileResult{Rejected: &Rejection{Name: originalName, Reason: reason}}
}

func (p *Pipeline) recordVerdict(ctx context.Context, r audit.Record) {
	if err := p.audit.Write(ctx, r); err != nil {
		p.logger.Warn("audit write failed", "file", r.OriginalName, "error", err)
	}
}

func participantNames(c *convo.Conversation) []string {
	names := make([]string, 0, len(c.Participants))
	for _, p := range c.Participants {
		names = append(names, p.Name)
	}
	return names
}
