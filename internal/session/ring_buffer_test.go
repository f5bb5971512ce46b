package session

import (
	"fmt"
	"testing"
	"time"
)

func makeEntry(id int) HistoryEntry {
	return HistoryEntry{
		ID:        fmt.Sprintf("entry-%d", id),
		Command:   fmt.Sprintf("echo %d", id),
		Mode:      ModeSubprocess,
		Timestamp: time.Now().UTC(),
	}
}

func TestRingBuffer_EmptyRead(t *testing.T) {
	rb := NewRingBuffer(10)
	entries := rb.ReadAll()
	if len(entries) != 0 {
		t.Errorf("expected empty buffer, got %d entries", len(entries))
	}
	if rb.Len() != 0 {
		t.Errorf("expected len 0, got %d", rb.Len())
	}
}

func TestRingBuffer_PartialFill(t *testing.T) {
	rb := NewRingBuffer(10)
	for i := 0; i < 5; i++ {
		rb.Write(makeEntry(i))
	}

	entries := rb.ReadAll()
	if len(entries) != 5 {
		t.Fatalf("expected 5 entries, got %d", len(entries))
	}

	for i, e := range entries {
		expected := fmt.Sprintf("echo %d", i)
		if e.Command != expected {
			t.Errorf("entry %d: expected %s, got %s", i, expected, e.Command)
		}
	}
}

func TestRingBuffer_Overflow(t *testing.T) {
	rb := NewRingBuffer(5)
	for i := 0; i < 8; i++ {
		rb.Write(makeEntry(i))
	}

	entries := rb.ReadAll()
	if len(entries) != 5 {
		t.Fatalf("expected 5 entries, got %d", len(entries))
	}

	// Should have entries 3..7 (oldest dropped).
	for i, e := range entries {
		expected := fmt.Sprintf("echo %d", i+3)
		if e.Command != expected {
			t.Errorf("entry %d: expected %s, got %s", i, expected, e.Command)
		}
	}
}

func TestRingBuffer_ExactCapacity(t *testing.T) {
	rb := NewRingBuffer(3)
	for i := 0; i < 3; i++ {
		rb.Write(makeEntry(i))
	}

	entries := rb.ReadAll()
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if rb.Len() != 3 {
		t.Errorf("expected len 3, got %d", rb.Len())
	}
}

func TestRingBuffer_ZeroCapacity(t *testing.T) {
	rb := NewRingBuffer(0)
	rb.Write(makeEntry(1))
	rb.Write(makeEntry(2))

	entries := rb.ReadAll()
	if len(entries) != 1 || entries[0].Command != "echo 2" {
		t.Fatalf("expected only the latest entry, got %+v", entries)
	}
}
