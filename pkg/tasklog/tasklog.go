// Package tasklog implements the per-task log sink spec §6 requires:
// init_logger/del_logger plus a LogMethod handed into children as the
// `log_method` capability. Grounded on original_source/cftool/dist/core.py's
// `_init_logger`, which creates `<logging_folder>/<task_name>/<timestamp>.log`.
package tasklog

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/parexec/core/pkg/task"
)

// Manager owns one *log.Logger per task name.
type Manager struct {
	folder string

	mu      sync.Mutex
	loggers map[string]*taskLogger
}

type taskLogger struct {
	file   *os.File
	logger *log.Logger
}

func NewManager(folder string) *Manager {
	return &Manager{folder: folder, loggers: make(map[string]*taskLogger)}
}

// InitLogger creates the per-task log file and returns its path, so the
// path can be handed to a re-exec'd child via its environment.
func (m *Manager) InitLogger(taskName string) (string, error) {
	dir := filepath.Join(m.folder, taskName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("tasklog: creating %s: %w", dir, err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%s.log", time.Now().Format("20060102-150405.000000")))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return "", fmt.Errorf("tasklog: opening %s: %w", path, err)
	}
	m.mu.Lock()
	m.loggers[taskName] = &taskLogger{file: f, logger: log.New(f, "", log.Ltime|log.Lmicroseconds)}
	m.mu.Unlock()
	return path, nil
}

// DelLogger closes and forgets the logger for taskName.
func (m *Manager) DelLogger(taskName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.loggers[taskName]; ok {
		l.file.Close()
		delete(m.loggers, taskName)
	}
}

// LogMethod returns a task.LogMethod bound to taskName's file. Nothing in
// this module calls it: the fallback path runs tasks with no log sink, and
// re-exec'd children use OpenFileLogMethod.
func (m *Manager) LogMethod(taskName string) task.LogMethod {
	return func(msg string, level task.Level) {
		m.mu.Lock()
		l, ok := m.loggers[taskName]
		m.mu.Unlock()
		if !ok {
			return
		}
		l.logger.Printf("[%s] %s", levelName(level), msg)
	}
}

// OpenFileLogMethod builds a task.LogMethod that appends directly to an
// already-created log file path, used inside the re-exec'd child process
// which has no Manager of its own — only the path the parent handed it.
func OpenFileLogMethod(path string) (task.LogMethod, func(), error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	logger := log.New(f, "", log.Ltime|log.Lmicroseconds)
	return func(msg string, level task.Level) {
			logger.Printf("[%s] %s", levelName(level), msg)
		}, func() {
			f.Close()
		}, nil
}

func levelName(l task.Level) string {
	switch l {
	case task.LevelDebug:
		return "DEBUG"
	case task.LevelWarn:
		return "WARN"
	case task.LevelError:
		return "ERROR"
	default:
		return "INFO"
	}
}
