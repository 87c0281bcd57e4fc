package format

import (
	"bufio"
	"encoding/json"
	"os"
	"regexp"
	"sort"

	"github.com/Elytride/AlterEcho/internal/convo"
)

// waSenderPattern augments the header pattern with a capture group for the
// sender name: text between the final "- " separator and the next colon. A
// sender name containing ":" truncates at the first colon.
var waSenderPattern = regexp.MustCompile(`\d{1,2}/\d{1,2}/\d{2,4},\s\d{1,2}:\d{2}.*-\s(.*?):`)

// Participants extracts the sorted distinct participant names from a file of
// the given format. The returned outcome reports whether an empty list means
// "no participants in the data" or "file could not be read or parsed"; either
// way the list itself is safe to use as-is.
func Participants(path string, f Format) ([]string, convo.ParseOutcome) {
	switch f {
	case FormatInstagram:
		return instagramParticipants(path)
	case FormatWhatsApp:
		return whatsAppParticipants(path)
	default:
		return nil, convo.OutcomeEmpty
	}
}

// instagramParticipants parses the whole file as JSON and collects every
// name in the participants array. The full parse is unbounded on purpose:
// unlike classification, the complete participant list is needed here.
func instagramParticipants(path string) ([]string, convo.ParseOutcome) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, convo.OutcomeUnreadable
	}

	var doc struct {
		Participants []convo.Participant `json:"participants"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, convo.OutcomeUnreadable
	}

	seen := make(map[string]bool)
	for _, p := range doc.Participants {
		if p.Name != "" {
			seen[p.Name] = true
		}
	}
	return sortedNames(seen), outcomeFor(len(seen))
}

// whatsAppParticipants scans line by line, capturing the sender from each
// message header. Lines without a match (system messages, multi-line message
// continuations) are ignored.
func whatsAppParticipants(path string) ([]string, convo.ParseOutcome) {
	f, err := os.Open(path)
	if err != nil {
		return nil, convo.OutcomeUnreadable
	}
	defer f.Close()

	seen := make(map[string]bool)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if m := waSenderPattern.FindStringSubmatch(scanner.Text()); m != nil {
			seen[m[1]] = true
		}
	}
	if err := scanner.Err(); err != nil {
		return sortedNames(seen), convo.OutcomeUnreadable
	}
	return sortedNames(seen), outcomeFor(len(seen))
}

func sortedNames(seen map[string]bool) []string {
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func outcomeFor(n int) convo.ParseOutcome {
	if n == 0 {
		return convo.OutcomeEmpty
	}
	return convo.OutcomeOK
}
