package runlog

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileSink appends one JSON object per event and syncs after each write, so
// a killed run leaves every emitted event on disk.
type FileSink struct {
	mu sync.Mutex
	f  *os.File
}

// OpenFile opens path for appending, creating it and its directory.
func OpenFile(path string) (*FileSink, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("runlog: mkdir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("runlog: open %s: %w", path, err)
	}
	return &FileSink{f: f}, nil
}

// Emit implements Sink.
func (s *FileSink) Emit(_ context.Context, e Event) error {
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("runlog: marshal: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.f.Write(line); err != nil {
		return fmt.Errorf("runlog: write: %w", err)
	}
	if err := s.f.Sync(); err != nil {
		return fmt.Errorf("runlog: sync: %w", err)
	}
	return nil
}

// Close closes the file.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}

// ReadFile loads every event from a run log. A torn final line, as left by a
// killed process, is ignored.
func ReadFile(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("runlog: open %s: %w", path, err)
	}
	defer f.Close()

	var events []Event
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4<<20)
	var pending error
	lineNo := 0
	for sc.Scan() {
		lineNo++
		if pending != nil {
			return nil, pending
		}
		if len(sc.Bytes()) == 0 {
			continue
		}
		var e Event
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			pending = fmt.Errorf("runlog: line %d: %w", lineNo, err)
			continue
		}
		events = append(events, e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("runlog: scan: %w", err)
	}
	return events, nil
}

// Outcome is the final state of one record in a run.
type Outcome struct {
	Index   int
	Key     string
	PointID string
	State   string
	Err     string
}

// Outcomes replays events of runID into per-record final states, in record
// order. An empty runID selects the last run in the log. Err holds the
// terminal failure only; errors of attempts that were later retried are
// dropped.
func Outcomes(events []Event, runID string) []Outcome {
	if runID == "" {
		for i := len(events) - 1; i >= 0; i-- {
			if events[i].Kind == KindRunStart {
				runID = events[i].RunID
				break
			}
		}
	}
	byIndex := make(map[int]*Outcome)
	var order []int
	for _, e := range events {
		if e.RunID != runID || e.Index == 0 {
			continue
		}
		o, ok := byIndex[e.Index]
		if !ok {
			o = &Outcome{Index: e.Index}
			byIndex[e.Index] = o
			order = append(order, e.Index)
		}
		if e.Key != "" {
			o.Key = e.Key
		}
		if e.PointID != "" {
			o.PointID = e.PointID
		}
		if e.State != "" {
			o.State = e.State
		}
		switch e.Kind {
		case KindEmbedFailed, KindWriteFailed:
			o.Err = e.Err
		case KindWritten:
			o.Err = ""
		}
	}
	out := make([]Outcome, len(order))
	for i, idx := range order {
		out[i] = *byIndex[idx]
	}
	return out
}
