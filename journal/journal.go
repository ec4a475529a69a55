// Package journal provides an append-only audit trail of lifecycle
// transitions. Entries are write-once JSON lines; the engine appends, the
// report command replays.
package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mohasinmudassar/Automated-AWS-Cost-Optimization-System/types"
)

// Sink is the audit-event consumer the engine writes to.
type Sink interface {
	Append(event types.AuditEvent) error
}

// Entry wraps one audit event with its journal sequence number.
type Entry struct {
	Sequence  int64            `json:"sequence"`
	WrittenAt time.Time        `json:"written_at"`
	Event     types.AuditEvent `json:"event"`
}

// Journal is an append-only file of audit entries.
type Journal struct {
	mu       sync.Mutex
	file     *os.File
	writer   *bufio.Writer
	sequence int64
	dir      string
}

// Open creates or opens a journal in the specified directory.
func Open(dir string) (*Journal, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	seq, err := lastSequence(dir)
	if err != nil {
		return nil, err
	}

	filename := fmt.Sprintf("costopt-%s.audit", time.Now().Format("20060102-150405"))
	path := filepath.Join(dir, filename)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644) // #nosec G304 -- path built from config dir
	if err != nil {
		return nil, fmt.Errorf("failed to open journal file: %w", err)
	}

	return &Journal{
		file:     file,
		writer:   bufio.NewWriter(file),
		sequence: seq,
		dir:      dir,
	}, nil
}

// Close flushes and closes the journal.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.writer.Flush(); err != nil {
		return err
	}
	return j.file.Close()
}

// Append records one audit event. Events are validated; a malformed event is
// a programming error upstream, not something to silently journal.
func (j *Journal) Append(event types.AuditEvent) error {
	if err := event.Validate(); err != nil {
		return fmt.Errorf("refusing to journal invalid event: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	j.sequence++
	entry := Entry{
		Sequence:  j.sequence,
		WrittenAt: time.Now(),
		Event:     event,
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}

	if _, err := j.writer.Write(line); err != nil {
		return fmt.Errorf("failed to write entry: %w", err)
	}
	if _, err := j.writer.WriteString("\n"); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	// Flush immediately for durability.
	if err := j.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}
	return j.file.Sync()
}

// lastSequence finds the highest sequence across existing journal files so
// numbering stays monotonic across restarts.
func lastSequence(dir string) (int64, error) {
	files, err := filepath.Glob(filepath.Join(dir, "costopt-*.audit"))
	if err != nil {
		return 0, fmt.Errorf("failed to list journal files: %w", err)
	}

	var last int64
	for _, file := range files {
		if err := replayFile(file, time.Time{}, func(e *Entry) error {
			if e.Sequence > last {
				last = e.Sequence
			}
			return nil
		}); err != nil {
			return 0, err
		}
	}
	return last, nil
}

// Replay invokes handler for every entry written after since, across all
// journal files in the directory.
func Replay(dir string, since time.Time, handler func(*Entry) error) error {
	files, err := filepath.Glob(filepath.Join(dir, "costopt-*.audit"))
	if err != nil {
		return fmt.Errorf("failed to list journal files: %w", err)
	}

	for _, file := range files {
		if err := replayFile(file, since, handler); err != nil {
			return err
		}
	}
	return nil
}

func replayFile(path string, since time.Time, handler func(*Entry) error) error {
	file, err := os.Open(path) // #nosec G304 -- path comes from our own glob
	if err != nil {
		return fmt.Errorf("failed to open journal file: %w", err)
	}
	defer func() { _ = file.Close() }()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var entry Entry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			return fmt.Errorf("failed to unmarshal entry: %w", err)
		}
		if entry.WrittenAt.After(since) {
			if err := handler(&entry); err != nil {
				return err
			}
		}
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		return err
	}
	return nil
}
