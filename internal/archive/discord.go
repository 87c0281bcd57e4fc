package archive

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Elytride/AlterEcho/internal/convo"
)

// DiscordAdapter handles Discord data exports: a messages directory of cNNN
// channel folders, each with a channel.json descriptor and a messages.json
// array, plus an index.json mapping channel ids to display names. Only DM
// channels are surfaced; server and group channels are out of scope.
type DiscordAdapter struct{}

func (DiscordAdapter) Kind() Kind { return KindDiscord }

const dmPrefix = "Direct Message with "

// discordTimeLayout is the fixed timestamp format in messages.json.
const discordTimeLayout = "2006-01-02 15:04:05"

type discordChannel struct {
	ID   json.RawMessage `json:"id"`
	Type string          `json:"type"`
}

type discordAuthor struct {
	ID       json.RawMessage `json:"ID"`
	Username string          `json:"Username"`
}

type discordMessage struct {
	Contents  string         `json:"Contents"`
	Timestamp string         `json:"Timestamp"`
	Author    *discordAuthor `json:"Author"`
}

// findMessagesPath locates the messages folder, tolerating the capitalized
// variant and one wrapping root folder.
func findMessagesPath(extractedDir string) string {
	for _, sub := range []string{"messages", "Messages"} {
		p := filepath.Join(extractedDir, sub)
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			return p
		}
	}
	entries, _ := os.ReadDir(extractedDir)
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		for _, sub := range []string{"messages", "Messages"} {
			p := filepath.Join(extractedDir, e.Name(), sub)
			if info, err := os.Stat(p); err == nil && info.IsDir() {
				return p
			}
		}
	}
	return ""
}

// loadIndex reads the index.json id → display name map. Missing or malformed
// index yields an empty map, not an error; display names degrade to ids.
func loadIndex(messagesPath string) map[string]string {
	data, err := os.ReadFile(filepath.Join(messagesPath, "index.json"))
	if err != nil {
		return map[string]string{}
	}
	index := make(map[string]string)
	if err := json.Unmarshal(data, &index); err != nil {
		return map[string]string{}
	}
	return index
}

// Enumerate lists DM channels with their index display names and message
// counts, most active first. Channels that fail to read are skipped.
func (a DiscordAdapter) Enumerate(extractedDir string) []ConversationUnit {
	messagesPath := findMessagesPath(extractedDir)
	if messagesPath == "" {
		return nil
	}
	index := loadIndex(messagesPath)

	var units []ConversationUnit
	entries, _ := os.ReadDir(messagesPath)
	for _, e := range entries {
		// Channel folders are named c<id>; anything else is index/bookkeeping.
		if !e.IsDir() || !strings.HasPrefix(e.Name(), "c") {
			continue
		}
		folder := filepath.Join(messagesPath, e.Name())

		ch, err := readChannel(filepath.Join(folder, "channel.json"))
		if err != nil || ch.Type != "DM" {
			continue
		}
		channelID := rawToString(ch.ID)
		if channelID == "" {
			channelID = strings.TrimPrefix(e.Name(), "c")
		}

		count := 0
		if msgs, err := readMessages(filepath.Join(folder, "messages.json")); err == nil {
			count = len(msgs)
		}

		display := index[channelID]
		if display == "" {
			display = "DM " + channelID
		}
		display = strings.TrimPrefix(display, dmPrefix)

		units = append(units, ConversationUnit{
			FolderName:   e.Name(),
			DisplayName:  display,
			Path:         folder,
			MessageCount: count,
			ChannelID:    channelID,
		})
	}

	sort.SliceStable(units, func(i, j int) bool {
		return units[i].MessageCount > units[j].MessageCount
	})
	return units
}

// Merge converts one channel's native message list into the canonical
// schema. Participant resolution prefers per-message author data, falls back
// to the index display name plus an implicit "Me", then to a placeholder.
// Messages end up newest-first to match the Instagram on-disk convention.
func (a DiscordAdapter) Merge(unit ConversationUnit) (*convo.Conversation, error) {
	msgsPath := filepath.Join(unit.Path, "messages.json")
	if _, err := os.Stat(msgsPath); err != nil {
		return nil, nil
	}
	msgs, err := readMessages(msgsPath)
	if err != nil {
		return nil, fmt.Errorf("read messages.json: %w", err)
	}

	participants := resolveParticipants(unit, msgs)

	var out []convo.Message
	hasSenderInfo := false
	for _, m := range msgs {
		// Attachment-only entries have empty contents; drop them.
		if m.Contents == "" {
			continue
		}

		var tsMS int64
		if t, err := time.Parse(discordTimeLayout, m.Timestamp); err == nil {
			tsMS = t.UTC().UnixMilli()
		}

		sender := senderName(m)
		if sender != "Unknown" && sender != "Discord_User" && sender != "" {
			hasSenderInfo = true
		}

		out = append(out, convo.Message{
			SenderName:  sender,
			Content:     m.Contents,
			TimestampMS: tsMS,
		})
	}

	convo.SortMessages(out)
	// Instagram exports store messages newest-first; downstream expects the
	// same of every merged record.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}

	c := &convo.Conversation{
		Participants:  participants,
		Messages:      out,
		HasSenderInfo: hasSenderInfo,
	}
	if !hasSenderInfo {
		c.Warning = "This Discord export uses an older format without sender information. " +
			"All messages will appear as 'Discord_User'. For proper AI training, " +
			"request a new data export from Discord which includes Author data."
	}
	return c, nil
}

// resolveParticipants builds the participant list. Priority: distinct
// usernames from message authors; else the channel's index display name
// (prefix and #discriminator stripped) plus "Me" for the exporting user;
// else a single placeholder.
func resolveParticipants(unit ConversationUnit, msgs []discordMessage) []convo.Participant {
	var participants []convo.Participant
	seen := make(map[string]bool)

	for _, m := range msgs {
		if m.Author == nil || m.Author.Username == "" || rawToString(m.Author.ID) == "" {
			continue
		}
		if !seen[m.Author.Username] {
			participants = append(participants, convo.Participant{Name: m.Author.Username})
			seen[m.Author.Username] = true
		}
	}

	if len(participants) == 0 {
		index := loadIndex(filepath.Dir(unit.Path))
		display := index[unit.ChannelID]
		if strings.HasPrefix(display, dmPrefix) {
			username := strings.TrimPrefix(display, dmPrefix)
			if i := strings.LastIndex(username, "#"); i >= 0 {
				username = username[:i]
			}
			if username != "" && !seen[username] {
				participants = append(participants, convo.Participant{Name: username})
				seen[username] = true
			}
			if !seen["Me"] {
				participants = append(participants, convo.Participant{Name: "Me"})
				seen["Me"] = true
			}
		}
	}

	if len(participants) == 0 {
		participants = []convo.Participant{{Name: "Discord_User"}}
	}
	return participants
}

func senderName(m discordMessage) string {
	if m.Author == nil {
		return "Discord_User"
	}
	if m.Author.Username != "" {
		return m.Author.Username
	}
	if id := rawToString(m.Author.ID); id != "" {
		return id
	}
	return "Unknown"
}

func readChannel(path string) (*discordChannel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var ch discordChannel
	if err := json.Unmarshal(data, &ch); err != nil {
		return nil, err
	}
	return &ch, nil
}

func readMessages(path string) ([]discordMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var msgs []discordMessage
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// rawToString renders a JSON scalar id as a string. Exports carry ids as
// either JSON strings or numbers depending on export vintage.
func rawToString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
