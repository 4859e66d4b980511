package recognition

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/DeGirum/face-recognition/internal/errors"
)

// lockFile marks a SQLite database as owned by this process. The embeddings
// database does not support writers in more than one process.
type lockFile struct {
	path string
}

func acquireLock(path string) (*lockFile, error) {
	for range 2 {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			_, werr := fmt.Fprintf(f, "%d\n", os.Getpid())
			cerr := f.Close()
			if werr != nil || cerr != nil {
				_ = os.Remove(path)
				return nil, dbError(errors.Join(werr, cerr), "write_lock")
			}
			return &lockFile{path: path}, nil
		}
		if !os.IsExist(err) {
			return nil, dbError(err, "create_lock")
		}

		pid, alive := lockOwner(path)
		if alive {
			return nil, errors.Newf("recognition database is in use by process %d (lock file %s)", pid, path).
				Component(componentName).
				Category(errors.CategoryState).
				Context("lock_file", path).
				Context("pid", pid).
				Build()
		}
		// stale lock from a process that is gone
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return nil, dbError(err, "remove_stale_lock")
		}
	}
	return nil, errors.Newf("could not acquire lock file %s", path).
		Component(componentName).
		Category(errors.CategoryState).
		Build()
}

// lockOwner reads the pid in a lock file and reports whether that process still runs.
func lockOwner(path string) (int, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	if pid == os.Getpid() {
		return pid, true
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return pid, false
	}
	if err := proc.Signal(syscall.Signal(0)); err != nil && errors.Is(err, os.ErrProcessDone) {
		return pid, false
	}
	return pid, true
}

func (l *lockFile) release() {
	if l == nil {
		return
	}
	_ = os.Remove(l.path)
}
