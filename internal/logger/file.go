package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/harrison/gpfind/internal/models"
)

// LogFileName is the name of the rotating log file inside the log directory.
const LogFileName = "gpfind.log"

// Rotation limits for the log file.
const (
	maxLogSizeMB   = 20
	maxLogBackups  = 5
	maxLogAgeDays  = 30
	compressBackup = true
)

// FileLogger appends run records to <logDir>/gpfind.log, rotating the file
// through lumberjack. Each run starts with a header carrying its run ID so
// records of concurrent or consecutive runs can be told apart.
type FileLogger struct {
	out      *lumberjack.Logger
	path     string
	runID    string
	logLevel string
	mu       sync.Mutex
}

// NewFileLogger creates a FileLogger writing to logDir with the given level.
// An empty runID is replaced by a fresh UUID.
func NewFileLogger(logDir, logLevel, runID string) (*FileLogger, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	if runID == "" {
		runID = uuid.New().String()
	}

	path := filepath.Join(logDir, LogFileName)
	fl := &FileLogger{
		out: &lumberjack.Logger{
			Filename:   path,
			MaxSize:    maxLogSizeMB,
			MaxBackups: maxLogBackups,
			MaxAge:     maxLogAgeDays,
			Compress:   compressBackup,
		},
		path:     path,
		runID:    runID,
		logLevel: normalizeLogLevel(logLevel),
	}

	if err := fl.write(fmt.Sprintf("=== gpfind run %s started at %s ===\n", runID, time.Now().Format(time.RFC3339))); err != nil {
		fl.out.Close()
		return nil, fmt.Errorf("failed to write log header: %w", err)
	}
	return fl, nil
}

// Path returns the active log file path.
func (fl *FileLogger) Path() string {
	return fl.path
}

// RunID returns the identifier written in every record of this run.
func (fl *FileLogger) RunID() string {
	return fl.runID
}

func (fl *FileLogger) shouldLog(messageLevel string) bool {
	return logLevelToInt(messageLevel) >= logLevelToInt(fl.logLevel)
}

// LogTrace logs a trace-level message (most verbose).
func (fl *FileLogger) LogTrace(message string) {
	fl.logWithLevel("TRACE", message)
}

// LogDebug logs a debug-level message.
func (fl *FileLogger) LogDebug(message string) {
	fl.logWithLevel("DEBUG", message)
}

// LogInfo logs an info-level message.
func (fl *FileLogger) LogInfo(message string) {
	fl.logWithLevel("INFO", message)
}

// LogWarn logs a warning-level message.
func (fl *FileLogger) LogWarn(message string) {
	fl.logWithLevel("WARN", message)
}

// LogError logs an error-level message.
func (fl *FileLogger) LogError(message string) {
	fl.logWithLevel("ERROR", message)
}

// LogSubtreeError records a directory that could not be expanded.
func (fl *FileLogger) LogSubtreeError(path string, err error) {
	fl.logWithLevel("WARN", fmt.Sprintf("subtree %s failed: %v", path, err))
}

func (fl *FileLogger) logWithLevel(level string, message string) {
	if !fl.shouldLog(strings.ToLower(level)) {
		return
	}
	fl.write(fmt.Sprintf("%s [%s] [%s] %s\n", time.Now().Format(time.RFC3339), fl.shortID(), level, message))
}

// LogSummary writes the run summary and every failed subtree.
func (fl *FileLogger) LogSummary(summary models.RunSummary) {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("=== Traversal Summary (run %s) ===\n", fl.runID))
	sb.WriteString(fmt.Sprintf("Root: %s\n", summary.Root))
	sb.WriteString(fmt.Sprintf("Directories: %d\n", summary.Directories))
	sb.WriteString(fmt.Sprintf("Files: %d\n", summary.Files))
	sb.WriteString(fmt.Sprintf("Failed subtrees: %d\n", summary.Failed))
	for _, f := range summary.Failures {
		sb.WriteString(fmt.Sprintf("  - %s: %v\n", f.Path, f.Err))
	}
	sb.WriteString(fmt.Sprintf("Duration: %s\n", formatDuration(summary.Duration)))
	if summary.Cancelled {
		sb.WriteString("Status: cancelled\n")
	} else {
		sb.WriteString("Status: complete\n")
	}
	fl.write(sb.String())
}

// shortID returns the first block of the run ID.
func (fl *FileLogger) shortID() string {
	if i := strings.IndexByte(fl.runID, '-'); i > 0 {
		return fl.runID[:i]
	}
	return fl.runID
}

func (fl *FileLogger) write(message string) error {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	_, err := fl.out.Write([]byte(message))
	return err
}

// Close flushes and closes the log file.
func (fl *FileLogger) Close() error {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	if err := fl.out.Close(); err != nil {
		return fmt.Errorf("failed to close log file: %w", err)
	}
	return nil
}
