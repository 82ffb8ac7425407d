package logger

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

var (
	User = &UserLogger{logger: base} // Clean progress lines for operators running the pipeline (stdout)
	Op   = &OpLogger{logger: base}   // Structured operational logs (stderr)
)

type UserLogger struct {
	logger *logrus.Logger
}

type OpLogger struct {
	logger *logrus.Logger
}

func (u *UserLogger) entry(marker string) *logrus.Entry {
	fields := logrus.Fields{"log_type": string(UserLog)}
	if marker != "" {
		fields["marker"] = marker
	}
	return u.logger.WithFields(fields)
}

func (u *UserLogger) Info(msg string) {
	u.entry("").Info(msg)
}

func (u *UserLogger) Infof(format string, args ...interface{}) {
	u.entry("").Infof(format, args...)
}

func (u *UserLogger) Error(msg string) {
	u.entry("❌").Error(msg)
}

func (u *UserLogger) Errorf(format string, args ...interface{}) {
	u.entry("❌").Errorf(format, args...)
}

func (u *UserLogger) Warn(msg string) {
	u.entry("⚠️").Warn(msg)
}

func (u *UserLogger) Warnf(format string, args ...interface{}) {
	u.entry("⚠️").Warnf(format, args...)
}

// Pipeline specific markers

func (u *UserLogger) Starting(msg string) {
	u.entry("🚀").Info(msg)
}

func (u *UserLogger) Startingf(format string, args ...interface{}) {
	u.entry("🚀").Infof(format, args...)
}

func (u *UserLogger) Successf(format string, args ...interface{}) {
	u.entry("✅").Infof(format, args...)
}

func (u *UserLogger) Stagef(format string, args ...interface{}) {
	u.entry("📥").Infof(format, args...)
}

func (u *UserLogger) Loadf(format string, args ...interface{}) {
	u.entry("🏗️").Infof(format, args...)
}

func (u *UserLogger) Checkf(format string, args ...interface{}) {
	u.entry("🔍").Infof(format, args...)
}

func (u *UserLogger) Retryf(format string, args ...interface{}) {
	u.entry("🔁").Warnf(format, args...)
}

func (u *UserLogger) Skipf(format string, args ...interface{}) {
	u.entry("⏭️").Warnf(format, args...)
}

// OpLogger methods carry no markers
func (o *OpLogger) entry() *logrus.Entry {
	return o.logger.WithField("log_type", string(OpLog))
}

func (o *OpLogger) Info(msg string) {
	o.entry().Info(msg)
}

func (o *OpLogger) Infof(format string, args ...interface{}) {
	o.entry().Infof(format, args...)
}

func (o *OpLogger) Error(msg string) {
	o.entry().Error(msg)
}

func (o *OpLogger) Warn(msg string) {
	o.entry().Warn(msg)
}

func (o *OpLogger) Warnf(format string, args ...interface{}) {
	o.entry().Warnf(format, args...)
}

func (o *OpLogger) Debug(msg string) {
	o.entry().Debug(msg)
}

func (o *OpLogger) Debugf(format string, args ...interface{}) {
	o.entry().Debugf(format, args...)
}

// WithFields attaches structured fields to an operational entry
func (o *OpLogger) WithFields(fields map[string]interface{}) *logrus.Entry {
	return o.entry().WithFields(fields)
}

// routingFields steer the Router and are never printed
var routingFields = map[string]bool{"log_type": true, "marker": true}

var levelColors = map[logrus.Level]string{
	logrus.ErrorLevel: "\033[31m",
	logrus.WarnLevel:  "\033[33m",
	logrus.InfoLevel:  "\033[36m",
	logrus.DebugLevel: "\033[37m",
}

// CLIFormatter writes one plain line per entry followed by sorted fields
type CLIFormatter struct {
	DisableTimestamp bool
	DisableLevel     bool
	DisableColors    bool
}

func (f *CLIFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var b bytes.Buffer

	if !f.DisableTimestamp {
		b.WriteString(entry.Time.Format("15:04:05.000"))
		b.WriteByte(' ')
	}

	if !f.DisableLevel {
		name := strings.ToUpper(entry.Level.String())
		if color, ok := levelColors[entry.Level]; ok && !f.DisableColors {
			name = color + name + "\033[0m"
		}
		b.WriteString(name)
		b.WriteString(": ")
	}

	b.WriteString(entry.Message)

	if !f.DisableLevel || !f.DisableTimestamp {
		keys := make([]string, 0, len(entry.Data))
		for k := range entry.Data {
			if !routingFields[k] {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%v", k, entry.Data[k])
		}
	}

	b.WriteByte('\n')
	return b.Bytes(), nil
}

// Setup configures level, format and output routing. LOG_MODE and LOG_FORMAT
// environment variables override the flags.
func Setup(verbose bool, jsonLogs bool, quiet bool) {
	SetupWithWriters(verbose, jsonLogs, quiet, os.Stdout, os.Stderr)
}

// SetupWithWriters is Setup with explicit user and operational writers
func SetupWithWriters(verbose, jsonLogs, quiet bool, userOut, opOut io.Writer) {
	switch os.Getenv("LOG_MODE") {
	case "quiet":
		quiet = true
		verbose = false
	case "verbose", "debug":
		verbose = true
		quiet = false
	}

	switch os.Getenv("LOG_FORMAT") {
	case "json":
		jsonLogs = true
	case "text":
		jsonLogs = false
	}

	level := logrus.InfoLevel
	switch {
	case quiet:
		level = logrus.ErrorLevel
	case verbose:
		level = logrus.DebugLevel
	}

	router := NewRouter(userOut, opOut)
	switch {
	case jsonLogs:
		router.SetFormatter(UserLog, &logrus.JSONFormatter{})
		router.SetFormatter(OpLog, &logrus.JSONFormatter{})
	case verbose:
		router.SetFormatter(OpLog, &logrus.TextFormatter{
			FullTimestamp: true,
			ForceColors:   isTerminal(opOut),
		})
	default:
		router.SetFormatter(OpLog, &CLIFormatter{
			DisableTimestamp: true,
			DisableColors:    !isTerminal(opOut),
		})
	}

	// Output is written by the router only
	base.ReplaceHooks(logrus.LevelHooks{})
	base.SetOutput(io.Discard)
	base.SetLevel(level)
	base.AddHook(router)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// TaskFields returns the standard field set for a task attempt
func TaskFields(runKey, taskID, kind string, attempt int) map[string]interface{} {
	return map[string]interface{}{
		"run_key": runKey,
		"task":    taskID,
		"kind":    kind,
		"attempt": attempt,
	}
}
