// Package debug provides verbose/quiet console output and the persistent
// export log.
package debug

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/steveyegge/bbs-exporter/internal/ui"
)

// LogFileName is the name of the export log inside the output directory.
const LogFileName = "bbs-exporter.log"

var (
	enabled     = os.Getenv("BBS_DEBUG") != ""
	verboseMode = false
	quietMode   = false
	logMutex    sync.Mutex
	logPath     string

	// consoleOut receives console-worthy log lines. Swapped in tests.
	consoleOut io.Writer = os.Stderr
)

// Severity is the level of a log entry.
type Severity string

// Log severities.
const (
	SeverityDebug Severity = "DEBUG"
	SeverityInfo  Severity = "INFO"
	SeverityWarn  Severity = "WARN"
	SeverityError Severity = "ERROR"
	SeverityFatal Severity = "FATAL"
)

func Enabled() bool {
	return enabled || verboseMode
}

// SetVerbose enables verbose/debug output
func SetVerbose(verbose bool) {
	verboseMode = verbose
}

// SetQuiet enables quiet mode (suppress non-essential output)
func SetQuiet(quiet bool) {
	quietMode = quiet
}

// IsQuiet returns true if quiet mode is enabled
func IsQuiet() bool {
	return quietMode
}

func Logf(format string, args ...interface{}) {
	if enabled || verboseMode {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}

// Printf records a diagnostic line in the export log at DEBUG and echoes
// it to the console in verbose mode.
func Printf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	Log(SeverityDebug, "", strings.TrimRight(msg, "\n"))
	if enabled || verboseMode {
		fmt.Fprint(console(), msg)
	}
}

// PrintNormal prints output unless quiet mode is enabled
// Use this for normal informational output that should be suppressed in quiet mode
func PrintNormal(format string, args ...interface{}) {
	if !quietMode {
		fmt.Printf(format, args...)
	}
}

// PrintlnNormal prints a line unless quiet mode is enabled
func PrintlnNormal(args ...interface{}) {
	if !quietMode {
		fmt.Println(args...)
	}
}

// SetLogFile directs the export log to dir/bbs-exporter.log. An empty dir
// disables the log file.
func SetLogFile(dir string) error {
	logMutex.Lock()
	defer logMutex.Unlock()

	if dir == "" {
		logPath = ""
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	logPath = filepath.Join(dir, LogFileName)
	return nil
}

// LogFile returns the current log file path, or "" when logging to a file
// is disabled.
func LogFile() string {
	logMutex.Lock()
	defer logMutex.Unlock()
	return logPath
}

// Log appends an entry to the export log.
// Format: TIMESTAMP|SEVERITY|URL|MESSAGE
func Log(severity Severity, url, message string) {
	if url == "" {
		url = "none"
	}
	timestamp := time.Now().UTC().Format(time.RFC3339)
	// Keep one entry per line; multi-line messages such as backtraces are
	// folded.
	message = strings.ReplaceAll(message, "\n", `\n`)
	entry := fmt.Sprintf("%s|%s|%s|%s\n", timestamp, severity, url, message)

	logMutex.Lock()
	defer logMutex.Unlock()

	if logPath == "" {
		return
	}

	file, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		// Silent fail - don't interrupt the export if logging fails
		return
	}
	defer file.Close()

	_, _ = file.WriteString(entry)
}

// LogWithURL records a message about the model at url. When show is set
// the message is also printed to the console, unless quiet mode is enabled.
//
// Console format: "<model>: <url> <message>"
func LogWithURL(severity Severity, model, url, message string, show bool) {
	Log(severity, url, model+": "+message)

	if !show || quietMode {
		return
	}

	line := fmt.Sprintf("%s: %s %s", model, url, message)
	switch severity {
	case SeverityWarn:
		line = ui.RenderWarnIcon() + " " + ui.RenderWarn(line)
	case SeverityError, SeverityFatal:
		line = ui.RenderFailIcon() + " " + ui.RenderFail(line)
	}
	fmt.Fprintln(console(), line)
}

// Warn logs a console-worthy warning about the model at url.
func Warn(model, url, message string) {
	LogWithURL(SeverityWarn, model, url, message, true)
}

// Info logs to the export log only.
func Info(model, url, message string) {
	LogWithURL(SeverityInfo, model, url, message, false)
}

// SetConsole directs console-worthy lines to w. A nil w restores stderr.
func SetConsole(w io.Writer) {
	logMutex.Lock()
	defer logMutex.Unlock()
	if w == nil {
		w = os.Stderr
	}
	consoleOut = w
}

func console() io.Writer {
	logMutex.Lock()
	defer logMutex.Unlock()
	return consoleOut
}

// Status logs a progress message and shows it on the console unless quiet
// mode is enabled.
func Status(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	Log(SeverityInfo, "", msg)
	if !quietMode {
		fmt.Fprintln(console(), msg)
	}
}

// Warnf logs a warning and shows it on the console unless quiet mode is
// enabled.
func Warnf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	Log(SeverityWarn, "", msg)
	if !quietMode {
		fmt.Fprintln(console(), ui.RenderWarnIcon()+" "+ui.RenderWarn(msg))
	}
}

// Errorf logs an error and always shows it on the console.
func Errorf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	Log(SeverityError, "", msg)
	fmt.Fprintln(console(), ui.RenderFailIcon()+" "+ui.RenderFail(msg))
}

// LogError records err in the export log without printing it. meta is
// appended as key/value context.
func LogError(err error, meta ...string) {
	if err == nil {
		return
	}
	var b strings.Builder
	b.WriteString(err.Error())
	for i := 0; i+1 < len(meta); i += 2 {
		fmt.Fprintf(&b, "\n%s:\n%s", meta[i], meta[i+1])
	}
	Log(SeverityError, "", b.String())
}
