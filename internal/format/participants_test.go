package format

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/Elytride/AlterEcho/internal/convo"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParticipants_Instagram(t *testing.T) {
	path := writeFile(t, "conv.json", `{
		"participants": [{"name": "Zoe"}, {"name": "Ami"}, {"name": "Ami"}],
		"messages": []
	}`)

	names, outcome := Participants(path, FormatInstagram)
	if outcome != convo.OutcomeOK {
		t.Fatalf("outcome = %v, want ok", outcome)
	}
	if want := []string{"Ami", "Zoe"}; !reflect.DeepEqual(names, want) {
		t.Errorf("names = %v, want %v", names, want)
	}
}

func TestParticipants_InstagramMalformed(t *testing.T) {
	path := writeFile(t, "conv.json", `{"participants": [{"name": "Zoe"`)

	names, outcome := Participants(path, FormatInstagram)
	if len(names) != 0 {
		t.Errorf("names = %v, want empty", names)
	}
	if outcome != convo.OutcomeUnreadable {
		t.Errorf("outcome = %v, want unreadable", outcome)
	}
}

func TestParticipants_WhatsApp(t *testing.T) {
	path := writeFile(t, "chat.txt", ""+
		"25/10/2025, 12:33 cm - Ami: are you coming?\n"+
		"25/10/2025, 12:34 cm - Jo Smith: yes, five minutes\n"+
		"this is a continuation line with no header\n"+
		"25/10/2025, 12:35 cm - Ami: ok\n"+
		"25/10/2025, 12:36 cm - Messages and calls are end-to-end encrypted\n")

	names, outcome := Participants(path, FormatWhatsApp)
	if outcome != convo.OutcomeOK {
		t.Fatalf("outcome = %v, want ok", outcome)
	}
	// The encryption notice has no colon after the sender slot, so only real
	// senders are captured.
	if want := []string{"Ami", "Jo Smith"}; !reflect.DeepEqual(names, want) {
		t.Errorf("names = %v, want %v", names, want)
	}
}

func TestParticipants_WhatsAppColonInName(t *testing.T) {
	// A sender containing ":" truncates at the first colon.
	path := writeFile(t, "chat.txt", "25/10/2025, 12:33 cm - Dr: Who: hello\n")

	names, _ := Participants(path, FormatWhatsApp)
	if want := []string{"Dr"}; !reflect.DeepEqual(names, want) {
		t.Errorf("names = %v, want %v", names, want)
	}
}

func TestParticipants_UnknownFormat(t *testing.T) {
	names, outcome := Participants("irrelevant", FormatUnknown)
	if len(names) != 0 || outcome != convo.OutcomeEmpty {
		t.Errorf("got %v/%v, want empty/empty", names, outcome)
	}
}

func TestParticipants_MissingFile(t *testing.T) {
	names, outcome := Participants(filepath.Join(t.TempDir(), "gone.txt"), FormatWhatsApp)
	if len(names) != 0 || outcome != convo.OutcomeUnreadable {
		t.Errorf("got %v/%v, want empty/unreadable", names, outcome)
	}
}
