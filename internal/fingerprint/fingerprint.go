// Package fingerprint derives boundary-sample content fingerprints from chat
// files and applies the set-overlap duplicate gate. The first and last N
// messages stand in for the whole conversation: cheap to compute, order
// sensitive, and robust to mid-conversation edits.
package fingerprint

import (
	"bufio"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"os"
	"regexp"

	"github.com/Elytride/AlterEcho/internal/convo"
	"github.com/Elytride/AlterEcho/internal/format"
)

// DefaultBoundary is the number of messages sampled from each end of a file.
const DefaultBoundary = 20

// DefaultThreshold is the overlap ratio at or above which two fingerprint
// sets are considered the same conversation.
const DefaultThreshold = 0.8

// Set is a collection of opaque 12-hex-character content tokens.
type Set map[string]struct{}

// Candidate pairs an existing corpus filename with its fingerprint set.
// Candidates are evaluated in slice order, which callers populate from the
// directory listing.
type Candidate struct {
	Name string
	Set  Set
}

// waMessagePattern captures sender and body from a WhatsApp message line.
var waMessagePattern = regexp.MustCompile(`(?i)^\d{1,2}/\d{1,2}/\d{2,4},\s\d{1,2}:\d{2}.*-\s(.*?):\s(.*)$`)

// token hashes one boundary message into its fingerprint form.
func token(sender, content string) string {
	sum := md5.Sum([]byte(sender + ":" + content))
	return fmt.Sprintf("%x", sum)[:12]
}

// FromMessages fingerprints an in-memory message list, sampling n from each
// boundary. Messages with empty content contribute nothing. With fewer than
// 2n messages the two samples overlap; set semantics dedupe the tokens.
func FromMessages(msgs []convo.Message, n int) Set {
	set := make(Set)
	for _, m := range boundary(msgs, n) {
		if m.Content != "" {
			set[token(m.SenderName, m.Content)] = struct{}{}
		}
	}
	return set
}

// File classifies and fingerprints a file with the default boundary size.
// Any parse failure yields an empty set: the file becomes invisible to
// deduplication rather than blocking ingestion (fail-open).
func File(path string) Set {
	return FileN(path, DefaultBoundary)
}

// FileN is File with an explicit boundary size.
func FileN(path string, n int) Set {
	switch format.Classify(path) {
	case format.FormatInstagram:
		return instagramFingerprints(path, n)
	case format.FormatWhatsApp:
		return whatsAppFingerprints(path, n)
	default:
		return Set{}
	}
}

func instagramFingerprints(path string, n int) Set {
	data, err := os.ReadFile(path)
	if err != nil {
		return Set{}
	}
	var doc struct {
		Messages []convo.Message `json:"messages"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return Set{}
	}
	return FromMessages(doc.Messages, n)
}

func whatsAppFingerprints(path string, n int) Set {
	f, err := os.Open(path)
	if err != nil {
		return Set{}
	}
	defer f.Close()

	var msgs []convo.Message
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if m := waMessagePattern.FindStringSubmatch(scanner.Text()); m != nil {
			msgs = append(msgs, convo.Message{SenderName: m[1], Content: m[2]})
		}
	}
	if scanner.Err() != nil {
		return Set{}
	}
	return FromMessages(msgs, n)
}

func boundary(msgs []convo.Message, n int) []convo.Message {
	if len(msgs) <= 2*n {
		return msgs
	}
	out := make([]convo.Message, 0, 2*n)
	out = append(out, msgs[:n]...)
	out = append(out, msgs[len(msgs)-n:]...)
	return out
}

// CheckOverlap reports whether the new set duplicates any candidate. The
// ratio is intersection over the smaller set, so a tiny candidate fully
// contained in the new set still trips the gate. First candidate at or above
// the threshold wins, not the best match; candidate order follows the corpus
// scan order.
func CheckOverlap(newSet Set, candidates []Candidate, threshold float64) (bool, string) {
	if len(newSet) == 0 {
		return false, ""
	}
	for _, c := range candidates {
		if len(c.Set) == 0 {
			continue
		}
		overlap := 0
		for tok := range newSet {
			if _, ok := c.Set[tok]; ok {
				overlap++
			}
		}
		minSize := min(len(newSet), len(c.Set))
		if float64(overlap)/float64(minSize) >= threshold {
			return true, c.Name
		}
	}
	return false, ""
}
