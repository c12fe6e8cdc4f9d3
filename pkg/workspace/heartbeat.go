package workspace

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// HeartbeatChecklistName is the conventional checklist file that periodic
// check-in jobs read before deciding whether anything is worth reporting.
const HeartbeatChecklistName = "HEARTBEAT.md"

const defaultHeartbeatChecklist = `# Heartbeat checklist

Work through this list each time you are woken for a heartbeat check.
Reply with exactly HEARTBEAT_OK if nothing needs attention.

- Review any notes or reminders left in this workspace.
- Check for tasks that were promised for today.
- Flag anything that looks overdue or stuck.
`

// EnsureHeartbeatChecklist seeds the checklist file under root when missing
// and returns its path. An existing file is never touched.
func EnsureHeartbeatChecklist(root string) (string, error) {
	resolved, err := ResolveRoot(root)
	if err != nil {
		return "", err
	}

	path := filepath.Join(resolved, HeartbeatChecklistName)
	if _, err := os.Lstat(path); err == nil {
		return path, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", NormalizeIOError(err, "stat heartbeat checklist")
	}

	if err := os.WriteFile(path, []byte(defaultHeartbeatChecklist), 0o644); err != nil {
		return "", NormalizeIOError(err, "write heartbeat checklist")
	}

	return path, nil
}
