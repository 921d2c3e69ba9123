package session

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const projectsDirName = "projects"

// DefaultBaseDir returns the per-user root for session storage.
func DefaultBaseDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".vibeterm"), nil
}

// CanonicalProjectPath flattens an absolute project directory into a single
// path component, so every project gets its own folder under the base dir.
// "/home/me/src/app" becomes "-home-me-src-app".
func CanonicalProjectPath(dir string) string {
	abs, err := filepath.Abs(strings.TrimSpace(dir))
	if err != nil {
		abs = strings.TrimSpace(dir)
	}
	abs = filepath.ToSlash(abs)
	return strings.ReplaceAll(abs, "/", "-")
}

// ProjectDir is where all session files for one project live.
func ProjectDir(base, projectPath string) string {
	return filepath.Join(base, projectsDirName, CanonicalProjectPath(projectPath))
}

// FilePath is the JSONL file for one session of one project.
func FilePath(base, projectPath, sessionID string) string {
	return filepath.Join(ProjectDir(base, projectPath), sessionID+".jsonl")
}

// NewSessionID returns a sortable session identifier, e.g.
// "chat-20250215-103055-9f2c1a".
func NewSessionID() string {
	return "chat-" + time.Now().UTC().Format("20060102-150405") + "-" + randomHex(3)
}

func randomHex(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return strings.Repeat("0", n*2)
	}
	return hex.EncodeToString(buf)
}

// Info describes a stored session file.
type Info struct {
	ID         string
	Path       string
	ModifiedAt time.Time
	Size       int64
}

// List returns the sessions recorded for a project, most recent first.
// A project with no sessions yet is not an error.
func List(base, projectPath string) ([]Info, error) {
	dir := ProjectDir(base, projectPath)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	out := make([]Info, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".jsonl") {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			continue
		}
		out = append(out, Info{
			ID:         strings.TrimSuffix(name, ".jsonl"),
			Path:       filepath.Join(dir, name),
			ModifiedAt: fi.ModTime(),
			Size:       fi.Size(),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ModifiedAt.After(out[j].ModifiedAt)
	})
	return out, nil
}

// Latest returns the most recently written session for a project.
func Latest(base, projectPath string) (Info, bool, error) {
	sessions, err := List(base, projectPath)
	if err != nil || len(sessions) == 0 {
		return Info{}, false, err
	}
	return sessions[0], true, nil
}
