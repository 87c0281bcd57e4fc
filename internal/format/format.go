// Package format classifies chat-export files by sniffing a bounded byte
// prefix and extracts participant names per detected dialect.
package format

import (
	"bytes"
	"os"
	"regexp"
)

// Format tags a file with the export dialect it was detected as. Discord never
// comes out of Detect directly (Discord data arrives as zip archives and is
// normalized into the Instagram shape before it hits the corpus); the tag
// exists so sidecar metadata can record the true origin of a merged file.
type Format string

const (
	FormatWhatsApp  Format = "WhatsApp"
	FormatInstagram Format = "Instagram"
	FormatDiscord   Format = "Discord"
	FormatUnknown   Format = "NULL"
)

// maxSniffBytes bounds how much of a file classification reads. Uploads can be
// arbitrarily large; the dialect is decidable from the head.
const maxSniffBytes = 4096

// waHeaderPattern matches a WhatsApp export message header:
// "25/10/2025, 12:33 cm - ". Day/month one or two digits, year two or four,
// then time, arbitrary text, and the space-hyphen-space separator.
var waHeaderPattern = regexp.MustCompile(`\d{1,2}/\d{1,2}/\d{2,4},\s\d{1,2}:\d{2}.*-\s`)

// detectors is the classification table, evaluated in order with first match
// winning. JSON-likeness is checked before the WhatsApp pattern so a JSON
// export containing date-like substrings still classifies as Instagram.
var detectors = []struct {
	tag   Format
	match func(prefix []byte) bool
}{
	{FormatInstagram, looksLikeInstagram},
	{FormatWhatsApp, looksLikeWhatsApp},
}

// looksLikeInstagram sniffs for the Instagram JSON export structure. This is
// substring matching, not parsing: the prefix is usually a truncated JSON
// document and a parse failure must not abort classification.
func looksLikeInstagram(prefix []byte) bool {
	trimmed := bytes.TrimSpace(prefix)
	if len(trimmed) == 0 {
		return false
	}
	if trimmed[0] != '{' && trimmed[0] != '[' {
		return false
	}
	return bytes.Contains(prefix, []byte(`"participants":`)) &&
		bytes.Contains(prefix, []byte(`"messages":`))
}

func looksLikeWhatsApp(prefix []byte) bool {
	return waHeaderPattern.Match(prefix)
}

// Detect classifies a file prefix. Callers must pass at most the first
// maxSniffBytes of the file; passing more works but defeats the bounded-cost
// contract.
func Detect(prefix []byte) Format {
	for _, d := range detectors {
		if d.match(prefix) {
			return d.tag
		}
	}
	return FormatUnknown
}

// Classify reads the head of the file at path and detects its format. Any
// read error yields FormatUnknown: an unreadable upload is treated the same
// as an unrecognized one.
func Classify(path string) Format {
	f, err := os.Open(path)
	if err != nil {
		return FormatUnknown
	}
	defer f.Close()

	buf := make([]byte, maxSniffBytes)
	n, err := f.Read(buf)
	if n == 0 && err != nil {
		return FormatUnknown
	}
	return Detect(buf[:n])
}
