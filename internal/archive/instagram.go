package archive

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/Elytride/AlterEcho/internal/convo"
)

// InstagramAdapter handles Instagram data exports: an inbox directory of
// conversation folders, each holding numbered message_N.json files.
type InstagramAdapter struct{}

func (InstagramAdapter) Kind() Kind { return KindInstagram }

var messageFilePattern = regexp.MustCompile(`^message_(\d+)\.json$`)

// findInboxPath locates the inbox folder. Exports sometimes wrap everything
// in a root folder, so one nesting level down is tried as well.
func findInboxPath(extractedDir string) string {
	candidates := []string{
		filepath.Join(extractedDir, "your_instagram_activity", "messages", "inbox"),
	}
	entries, _ := os.ReadDir(extractedDir)
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		sub := filepath.Join(extractedDir, e.Name())
		candidates = append(candidates,
			filepath.Join(sub, "your_instagram_activity", "messages", "inbox"),
			filepath.Join(sub, "messages", "inbox"),
		)
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && info.IsDir() {
			return c
		}
	}
	return ""
}

// Enumerate lists conversation folders under the inbox, each with a preview
// built from its lowest-numbered message file. Folders that cannot be
// previewed are skipped, not errors. Results are sorted most-active first.
func (a InstagramAdapter) Enumerate(extractedDir string) []ConversationUnit {
	inbox := findInboxPath(extractedDir)
	if inbox == "" {
		return nil
	}

	var units []ConversationUnit
	entries, _ := os.ReadDir(inbox)
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		folder := filepath.Join(inbox, e.Name())
		files := numberedMessageFiles(folder)
		if len(files) == 0 {
			continue
		}

		unit, ok := instagramPreview(folder, files)
		if !ok {
			continue
		}
		unit.FolderName = e.Name()
		units = append(units, unit)
	}

	sort.SliceStable(units, func(i, j int) bool {
		return units[i].MessageCount > units[j].MessageCount
	})
	return units
}

// numberedMessageFiles returns message_N.json filenames in the folder, sorted
// by N descending. Highest number holds the oldest chunk in this export
// convention, so descending order is chronological read order.
func numberedMessageFiles(folder string) []string {
	entries, _ := os.ReadDir(folder)
	type numbered struct {
		name string
		n    int
	}
	var files []numbered
	for _, e := range entries {
		m := messageFilePattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		files = append(files, numbered{name: e.Name(), n: n})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].n > files[j].n })

	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.name
	}
	return names
}

// instagramPreview reads participants from message_1.json and sums message
// counts across every numbered file.
func instagramPreview(folder string, files []string) (ConversationUnit, bool) {
	first, err := readInstagramFile(filepath.Join(folder, "message_1.json"))
	if err != nil {
		return ConversationUnit{}, false
	}

	var participants []string
	for _, p := range first.Participants {
		participants = append(participants, repairMojibake(p.Name))
	}

	count := 0
	for _, name := range files {
		data, err := readInstagramFile(filepath.Join(folder, name))
		if err != nil {
			continue
		}
		count += len(data.Messages)
	}

	return ConversationUnit{
		DisplayName:  displayNameFor(participants),
		Path:         folder,
		Participants: participants,
		MessageCount: count,
	}, true
}

func displayNameFor(participants []string) string {
	name := strings.Join(participants[:min(2, len(participants))], ", ")
	if len(participants) > 2 {
		name += fmt.Sprintf(" +%d", len(participants)-2)
	}
	return name
}

// Merge reassembles one conversation from its numbered files: the
// participants-bearing file is the base record, every file's messages are
// concatenated, and the combined list is sorted ascending by timestamp.
// Returns (nil, nil) when the folder has no numbered files.
func (a InstagramAdapter) Merge(unit ConversationUnit) (*convo.Conversation, error) {
	files := numberedMessageFiles(unit.Path)
	if len(files) == 0 {
		return nil, nil
	}

	// message_1.json carries the participants block; fall back to the
	// lowest-numbered file present.
	baseName := "message_1.json"
	if _, err := os.Stat(filepath.Join(unit.Path, baseName)); err != nil {
		baseName = files[len(files)-1]
	}
	base, err := readInstagramFile(filepath.Join(unit.Path, baseName))
	if err != nil {
		return nil, fmt.Errorf("read base file %s: %w", baseName, err)
	}

	var all []convo.Message
	for _, name := range files {
		data, err := readInstagramFile(filepath.Join(unit.Path, name))
		if err != nil {
			// One bad chunk does not sink the conversation.
			continue
		}
		all = append(all, data.Messages...)
	}
	convo.SortMessages(all)

	return &convo.Conversation{
		Participants:  base.Participants,
		Messages:      all,
		HasSenderInfo: true,
	}, nil
}

func readInstagramFile(path string) (*convo.Conversation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c convo.Conversation
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// repairMojibake undoes the export's double-encoding artifact: UTF-8 bytes
// that were decoded as latin-1. Each rune is narrowed back to a byte and the
// result re-read as UTF-8; if either step fails the input is returned as-is.
func repairMojibake(s string) string {
	b := make([]byte, 0, len(s))
	for _, r := range s {
		if r > 0xFF {
			return s
		}
		b = append(b, byte(r))
	}
	if !utf8.Valid(b) {
		return s
	}
	return string(b)
}
