package events

import "testing"

func TestNilPublisherIsSafe(t *testing.T) {
	var p *Publisher

	p.FileAccepted(FileEvent{OriginalName: "chat.txt"})
	p.FileRejected(FileEvent{OriginalName: "chat.txt", Reason: "Invalid extension"})
	p.ArchivePending(ArchiveEvent{ArchiveID: "z1"})
	p.ArchiveSelected(ArchiveEvent{ArchiveID: "z1"})
	p.Close()
}
