package session

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"vibeterm/internal/message"
)

// ErrLockTimeout reports that the session file lock could not be acquired
// before the deadline, usually because another process holds the session.
var ErrLockTimeout = errors.New("session lock timeout")

const lockTimeout = 5 * time.Second

// Record is one JSONL line of a session file. Each record is a full
// snapshot of one entry at write time; on replay the highest-seq record per
// entry id wins.
type Record struct {
	Seq       int64         `json:"seq"`
	Entry     message.Entry `json:"entry"`
	WrittenAt time.Time     `json:"written_at"`
}

func (r Record) GetSeq() int64 { return r.Seq }

// Log is the append-only store of one session. A Log is single-writer: the
// file-level lock serializes appends across processes and every append
// reassigns the sequence under that lock.
type Log struct {
	path string
	id   string
}

// Open prepares the log file for a session, creating the project directory
// as needed. The file itself is created lazily on first append.
func Open(base, projectPath, sessionID string) (*Log, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, errors.New("session id is required")
	}
	path := FilePath(base, projectPath, sessionID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	return &Log{path: path, id: sessionID}, nil
}

// OpenPath opens a log at an explicit file location.
func OpenPath(path string) (*Log, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("session path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	id := strings.TrimSuffix(filepath.Base(path), ".jsonl")
	return &Log{path: path, id: id}, nil
}

func (l *Log) ID() string   { return l.id }
func (l *Log) Path() string { return l.path }

// Append writes a snapshot record for the entry and returns its sequence.
func (l *Log) Append(e message.Entry) (int64, error) {
	if l == nil {
		return 0, errors.New("nil session log")
	}
	if e.ID == "" {
		return 0, errors.New("entry id is required")
	}
	rec := Record{Entry: e, WrittenAt: time.Now().UTC()}
	lockPath := l.path + ".lock"
	var seq int64
	err := withFileLock(lockPath, lockTimeout, func() error {
		last, err := lastSequence(l.path)
		if err != nil {
			return err
		}
		seq = last + 1
		rec.Seq = seq
		line, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = f.Write(append(line, '\n'))
		return err
	})
	if err != nil {
		return 0, err
	}
	return seq, nil
}

// Records reads every record with seq greater than afterSeq, in file order.
// Blank and malformed lines are skipped so a torn tail write cannot poison
// a replay.
func (l *Log) Records(afterSeq int64) ([]Record, error) {
	if l == nil {
		return nil, nil
	}
	file, err := os.Open(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	var out []Record
	scanner := bufio.NewScanner(file)
	buf := make([]byte, 0, 1024*64)
	scanner.Buffer(buf, 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			continue
		}
		if rec.Seq <= afterSeq || rec.Entry.ID == "" {
			continue
		}
		out = append(out, rec)
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return out, nil
}

// Replay rebuilds the conversation from the log. Entries appear in the
// order their first record was written; when several records exist for one
// entry id, the last one decides its text, status and output.
func (l *Log) Replay() (*message.Conversation, error) {
	records, err := l.Records(0)
	if err != nil {
		return nil, err
	}
	latest := make(map[string]Record, len(records))
	var order []string
	for _, rec := range records {
		if _, seen := latest[rec.Entry.ID]; !seen {
			order = append(order, rec.Entry.ID)
		}
		if prev, seen := latest[rec.Entry.ID]; !seen || rec.Seq > prev.Seq {
			latest[rec.Entry.ID] = rec
		}
	}
	conv := message.NewConversation()
	for _, id := range order {
		conv.Append(latest[id].Entry)
	}
	return conv, nil
}

func lastSequence(path string) (int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}
	defer file.Close()

	var last int64
	scanner := bufio.NewScanner(file)
	buf := make([]byte, 0, 1024*64)
	scanner.Buffer(buf, 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var node struct {
			Seq int64 `json:"seq"`
		}
		if err := json.Unmarshal([]byte(line), &node); err != nil {
			continue
		}
		if node.Seq > last {
			last = node.Seq
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, err
	}
	return last, nil
}

func withFileLock(lockPath string, timeout time.Duration, fn func() error) error {
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return err
	}
	start := time.Now().UTC()
	for {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			_ = f.Close()
			break
		}
		if !errors.Is(err, os.ErrExist) {
			return err
		}
		if timeout > 0 && time.Since(start) > timeout {
			return fmt.Errorf("%w: %s", ErrLockTimeout, lockPath)
		}
		time.Sleep(20 * time.Millisecond)
	}
	defer os.Remove(lockPath)
	return fn()
}
