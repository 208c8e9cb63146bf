package log

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestAppendAndReadSession(t *testing.T) {
	dir := filepath.Join(t.TempDir(), ".hivecouncil")
	logger, err := NewLogger(dir)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}

	events := []LogEvent{
		{Event: EventSessionStarted, SessionID: "a"},
		{Event: EventMemberFailed, SessionID: "a", MemberID: "m2", Provider: "openai", Error: "boom", ErrorKind: "timeout"},
		{Event: EventSessionStarted, SessionID: "b"},
		{Event: EventSessionCompleted, SessionID: "a"},
	}
	for _, e := range events {
		if err := logger.Append(e); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	got, err := logger.ReadSession("a")
	if err != nil {
		t.Fatalf("ReadSession: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("ReadSession returned %d events, want 3", len(got))
	}
	if got[0].Time.IsZero() {
		t.Error("Append did not stamp the event time")
	}
	if got[1].Event != EventMemberFailed || got[1].ErrorKind != "timeout" {
		t.Errorf("event = %+v, want member_failed with kind timeout", got[1])
	}
}

func TestReadSessionMissingFile(t *testing.T) {
	logger, err := NewLogger(t.TempDir())
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	events, err := logger.ReadSession("s")
	if err != nil {
		t.Fatalf("ReadSession: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("got %d events, want 0", len(events))
	}
}

func TestReadSessionRejectsCorruptLine(t *testing.T) {
	logger, _ := NewLogger(t.TempDir())
	if err := os.WriteFile(logger.Path(), []byte("{not json}\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := logger.ReadSession("s"); err == nil {
		t.Error("expected parse error for corrupt line")
	}
}

func TestConcurrentAppend(t *testing.T) {
	logger, _ := NewLogger(t.TempDir())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = logger.Append(LogEvent{Event: EventMemberResponded, SessionID: "s"})
		}()
	}
	wg.Wait()

	events, err := logger.ReadSession("s")
	if err != nil {
		t.Fatalf("ReadSession: %v", err)
	}
	if len(events) != 20 {
		t.Errorf("got %d events, want 20", len(events))
	}
}
