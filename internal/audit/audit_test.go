package audit

import (
	"context"
	"testing"
)

func TestNilStoreIsSafe(t *testing.T) {
	var s *Store

	if err := s.Write(context.Background(), Record{FileID: "x"}); err != nil {
		t.Errorf("nil store Write: %v", err)
	}
	records, err := s.Recent(context.Background(), 10)
	if err != nil || records != nil {
		t.Errorf("nil store Recent: %v, %v", records, err)
	}
	s.Close()
}
