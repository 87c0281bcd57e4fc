package corpus

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/Elytride/AlterEcho/internal/convo"
	"github.com/Elytride/AlterEcho/internal/format"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir(), slog.Default())
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestSaveConversation_RoundTrip(t *testing.T) {
	s := newStore(t)

	c := &convo.Conversation{
		Participants:  []convo.Participant{{Name: "Ami"}, {Name: "Me"}},
		Messages:      []convo.Message{{SenderName: "Ami", Content: "hi", TimestampMS: 5}},
		HasSenderInfo: true,
	}
	path, err := s.SaveConversation("abc123", c, Sidecar{
		DetectedType: format.FormatDiscord,
		Participants: []string{"Ami", "Me"},
		OriginalName: "Ami (Discord)",
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("conversation file missing: %v", err)
	}

	files := s.List(TypeText)
	if len(files) != 1 {
		t.Fatalf("expected 1 file, got %d", len(files))
	}
	md := files[0]
	if md.ID != "abc123" {
		t.Errorf("id = %q", md.ID)
	}
	// The sidecar's detected type wins over the on-disk rescan, which would
	// read the merged file as Instagram.
	if md.DetectedType != format.FormatDiscord {
		t.Errorf("detected type = %q, want Discord from sidecar", md.DetectedType)
	}
	if md.OriginalName != "Ami (Discord)" {
		t.Errorf("original name = %q", md.OriginalName)
	}
	if want := []string{"Ami", "Me"}; !reflect.DeepEqual(md.Participants, want) {
		t.Errorf("participants = %v", md.Participants)
	}
}

func TestList_ScansWithoutSidecar(t *testing.T) {
	s := newStore(t)

	content := "25/10/2025, 12:33 cm - Ami: hello\n"
	if err := os.WriteFile(s.FilePath(TypeText, "raw1", ".txt"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	files := s.List(TypeText)
	if len(files) != 1 {
		t.Fatalf("expected 1 file, got %d", len(files))
	}
	if files[0].DetectedType != format.FormatWhatsApp {
		t.Errorf("detected type = %q, want WhatsApp", files[0].DetectedType)
	}
	if want := []string{"Ami"}; !reflect.DeepEqual(files[0].Participants, want) {
		t.Errorf("participants = %v", files[0].Participants)
	}
}

func TestList_SidecarsNeverListed(t *testing.T) {
	s := newStore(t)
	if err := s.WriteSidecar(TypeText, "ghost", Sidecar{Subject: "x"}); err != nil {
		t.Fatal(err)
	}
	if files := s.List(TypeText); len(files) != 0 {
		t.Errorf("sidecar leaked into listing: %+v", files)
	}
}

func TestSetSubject(t *testing.T) {
	s := newStore(t)
	if err := os.WriteFile(s.FilePath(TypeText, "f1", ".txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := s.SetSubject(TypeText, "f1", "Ami"); err != nil {
		t.Fatal(err)
	}
	files := s.List(TypeText)
	if files[0].Subject != "Ami" {
		t.Errorf("subject = %q", files[0].Subject)
	}

	if err := s.SetSubject(TypeText, "missing", "X"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected ErrNotExist, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	s := newStore(t)
	if err := os.WriteFile(s.FilePath(TypeText, "f1", ".txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := s.SetSubject(TypeText, "f1", "Ami"); err != nil {
		t.Fatal(err)
	}

	if err := s.Delete(TypeText, "f1"); err != nil {
		t.Fatal(err)
	}
	if len(s.List(TypeText)) != 0 {
		t.Error("file still listed after delete")
	}
	if _, err := os.Stat(filepath.Join(s.Dir(TypeText), "f1.meta.json")); !os.IsNotExist(err) {
		t.Error("sidecar survived delete")
	}

	if err := s.Delete(TypeText, "f1"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected ErrNotExist on double delete, got %v", err)
	}
}

func TestFingerprints_SkipsSidecarsAndUnparsable(t *testing.T) {
	s := newStore(t)

	if err := os.WriteFile(s.FilePath(TypeText, "chat", ".txt"),
		[]byte("25/10/2025, 12:33 cm - Ami: hello\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(s.FilePath(TypeText, "junk", ".txt"), []byte("no structure"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := s.WriteSidecar(TypeText, "chat", Sidecar{Subject: "Ami"}); err != nil {
		t.Fatal(err)
	}

	candidates := s.Fingerprints(TypeText)
	if len(candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(candidates))
	}
	if candidates[0].Name != "chat.txt" {
		t.Errorf("candidate = %q", candidates[0].Name)
	}
}

func TestValidType(t *testing.T) {
	if !ValidType("text") || !ValidType("voice") {
		t.Error("text and voice are valid")
	}
	if ValidType("video") || ValidType("") {
		t.Error("anything else is not")
	}
}
