package logger

import (
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// LogType selects the stream an entry is written to
type LogType string

const (
	UserLog LogType = "user"
	OpLog   LogType = "op"
)

type stream struct {
	formatter logrus.Formatter
	writer    io.Writer
}

// Router is a logrus hook that writes user lines and operational lines to
// separate streams. Entries without a known log_type go to the op stream.
type Router struct {
	mu      sync.Mutex
	streams map[LogType]stream
}

// NewRouter routes user lines to user and operational lines to op
func NewRouter(user, op io.Writer) *Router {
	return &Router{streams: map[LogType]stream{
		UserLog: {formatter: &CLIFormatter{DisableTimestamp: true, DisableLevel: true}, writer: user},
		OpLog:   {formatter: &CLIFormatter{}, writer: op},
	}}
}

// SetFormatter replaces the formatter of one stream
func (r *Router) SetFormatter(t LogType, f logrus.Formatter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.streams[t]
	s.formatter = f
	r.streams[t] = s
}

// Levels implements logrus.Hook
func (r *Router) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire implements logrus.Hook
func (r *Router) Fire(entry *logrus.Entry) error {
	t := OpLog
	if lt, _ := entry.Data["log_type"].(string); LogType(lt) == UserLog {
		t = UserLog
		if marker, ok := entry.Data["marker"].(string); ok && marker != "" {
			entry.Message = marker + " " + entry.Message
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.streams[t]
	b, err := s.formatter.Format(entry)
	if err != nil {
		return err
	}
	_, err = s.writer.Write(b)
	return err
}

var base = newBase()

func newBase() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&CLIFormatter{DisableTimestamp: true, DisableLevel: true})
	return l
}

// Base returns the logrus logger behind User and Op
func Base() *logrus.Logger {
	return base
}
