package archive

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// discordFixture builds a Discord export tree under a temp dir and returns
// the extraction root.
func discordFixture(t *testing.T, index map[string]string, channels ...map[string]any) string {
	t.Helper()
	root := t.TempDir()
	messages := filepath.Join(root, "messages")
	writeJSON(t, filepath.Join(messages, "index.json"), index)
	for _, ch := range channels {
		folder := filepath.Join(messages, "c"+ch["id"].(string))
		writeJSON(t, filepath.Join(folder, "channel.json"),
			map[string]any{"id": ch["id"], "type": ch["type"]})
		if msgs, ok := ch["messages"]; ok {
			writeJSON(t, filepath.Join(folder, "messages.json"), msgs)
		}
	}
	return root
}

func dmMessage(id, username, contents, timestamp string) map[string]any {
	m := map[string]any{"Contents": contents, "Timestamp": timestamp}
	if username != "" {
		m["Author"] = map[string]any{"ID": id, "Username": username}
	}
	return m
}

func TestDiscordEnumerate_DMOnly(t *testing.T) {
	root := discordFixture(t,
		map[string]string{
			"100": "Direct Message with alice#0",
			"200": "general",
		},
		map[string]any{"id": "100", "type": "DM", "messages": []map[string]any{
			dmMessage("1", "alice", "hi", "2025-06-16 09:24:12"),
			dmMessage("2", "bob", "hey", "2025-06-16 09:25:00"),
		}},
		map[string]any{"id": "200", "type": "GUILD_TEXT", "messages": []map[string]any{
			dmMessage("1", "alice", "server talk", "2025-06-16 10:00:00"),
		}},
	)

	units := DiscordAdapter{}.Enumerate(root)
	if len(units) != 1 {
		t.Fatalf("expected exactly 1 DM unit, got %d", len(units))
	}
	u := units[0]
	if u.ChannelID != "100" || u.FolderName != "c100" {
		t.Errorf("unit = %+v", u)
	}
	if u.DisplayName != "alice#0" {
		t.Errorf("display name = %q, want prefix stripped", u.DisplayName)
	}
	if u.MessageCount != 2 {
		t.Errorf("message count = %d, want 2", u.MessageCount)
	}
}

func TestDiscordEnumerate_CapitalizedMessagesFolder(t *testing.T) {
	root := t.TempDir()
	messages := filepath.Join(root, "Messages")
	writeJSON(t, filepath.Join(messages, "index.json"), map[string]string{"1": "Direct Message with zoe#0"})
	writeJSON(t, filepath.Join(messages, "c1", "channel.json"), map[string]any{"id": "1", "type": "DM"})
	writeJSON(t, filepath.Join(messages, "c1", "messages.json"), []map[string]any{})

	units := DiscordAdapter{}.Enumerate(root)
	if len(units) != 1 {
		t.Fatalf("expected 1 unit, got %d", len(units))
	}
}

func TestDiscordEnumerate_NoMessagesFolder(t *testing.T) {
	if units := (DiscordAdapter{}).Enumerate(t.TempDir()); len(units) != 0 {
		t.Errorf("expected no units, got %d", len(units))
	}
}

func TestDiscordMerge_AuthorAttribution(t *testing.T) {
	root := discordFixture(t,
		map[string]string{"100": "Direct Message with alice#0"},
		map[string]any{"id": "100", "type": "DM", "messages": []map[string]any{
			dmMessage("1", "alice", "newest", "2025-06-16 09:30:00"),
			dmMessage("2", "bob", "oldest", "2025-06-16 09:00:00"),
			dmMessage("1", "alice", "", "2025-06-16 09:10:00"), // attachment-only, dropped
		}},
	)
	units := DiscordAdapter{}.Enumerate(root)

	c, err := DiscordAdapter{}.Merge(units[0])
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(c.Participants) != 2 {
		t.Fatalf("participants = %+v, want alice and bob", c.Participants)
	}
	if !c.HasSenderInfo {
		t.Error("expected sender info from Author fields")
	}
	if c.Warning != "" {
		t.Errorf("unexpected warning %q", c.Warning)
	}
	// Newest-first after the sort-then-reverse pass.
	if len(c.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(c.Messages))
	}
	if c.Messages[0].Content != "newest" || c.Messages[1].Content != "oldest" {
		t.Errorf("messages out of order: %+v", c.Messages)
	}
	if c.Messages[0].TimestampMS <= c.Messages[1].TimestampMS {
		t.Error("expected descending timestamps")
	}
}

func TestDiscordMerge_LegacyExportWithoutAuthors(t *testing.T) {
	root := discordFixture(t,
		map[string]string{"100": "Direct Message with alice#1234"},
		map[string]any{"id": "100", "type": "DM", "messages": []map[string]any{
			dmMessage("", "", "hello there", "2025-06-16 09:00:00"),
		}},
	)
	units := DiscordAdapter{}.Enumerate(root)

	c, err := DiscordAdapter{}.Merge(units[0])
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Index-derived participant with discriminator stripped, plus "Me".
	if len(c.Participants) != 2 || c.Participants[0].Name != "alice" || c.Participants[1].Name != "Me" {
		t.Errorf("participants = %+v", c.Participants)
	}
	if c.HasSenderInfo {
		t.Error("expected no sender info")
	}
	if !strings.Contains(c.Warning, "older format") {
		t.Errorf("expected data-quality warning, got %q", c.Warning)
	}
	if c.Messages[0].SenderName != "Discord_User" {
		t.Errorf("sender = %q, want placeholder", c.Messages[0].SenderName)
	}
}

func TestDiscordMerge_UnparsableTimestampDefaultsToEpoch(t *testing.T) {
	root := discordFixture(t,
		map[string]string{"100": "Direct Message with alice#0"},
		map[string]any{"id": "100", "type": "DM", "messages": []map[string]any{
			dmMessage("1", "alice", "when?", "yesterday-ish"),
		}},
	)
	units := DiscordAdapter{}.Enumerate(root)

	c, err := DiscordAdapter{}.Merge(units[0])
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Messages[0].TimestampMS != 0 {
		t.Errorf("timestamp_ms = %d, want 0", c.Messages[0].TimestampMS)
	}
}

func TestDiscordMerge_NumericIDsInJSON(t *testing.T) {
	// Some export vintages carry ids as JSON numbers.
	root := t.TempDir()
	messages := filepath.Join(root, "messages")
	writeJSON(t, filepath.Join(messages, "index.json"), map[string]string{"987654": "Direct Message with nia#0"})
	writeJSON(t, filepath.Join(messages, "c987654", "channel.json"), map[string]any{"id": 987654, "type": "DM"})
	writeJSON(t, filepath.Join(messages, "c987654", "messages.json"), []map[string]any{
		{"Contents": "hi", "Timestamp": "2025-06-16 09:00:00", "Author": map[string]any{"ID": 42, "Username": "nia"}},
	})

	units := DiscordAdapter{}.Enumerate(root)
	if len(units) != 1 || units[0].ChannelID != "987654" {
		t.Fatalf("units = %+v", units)
	}
	if units[0].DisplayName != "nia#0" {
		t.Errorf("display name = %q", units[0].DisplayName)
	}

	c, err := DiscordAdapter{}.Merge(units[0])
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Messages[0].SenderName != "nia" {
		t.Errorf("sender = %q", c.Messages[0].SenderName)
	}
}

func TestDiscordMerge_MissingMessagesFile(t *testing.T) {
	folder := filepath.Join(t.TempDir(), "c1")
	if err := os.MkdirAll(folder, 0o755); err != nil {
		t.Fatal(err)
	}
	c, err := DiscordAdapter{}.Merge(ConversationUnit{Path: folder, ChannelID: "1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c != nil {
		t.Error("expected nil conversation when messages.json is absent")
	}
}
