// Package logger writes one JSON object per line with email addresses and
// credentials masked.
package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"
)

// Level represents the severity of a log entry.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "INFO"
	}
}

// ParseLevel maps a config string ("debug", "info", "warn", "error") to a
// Level. Unknown values fall back to INFO.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DEBUG
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	default:
		return INFO
	}
}

// Logger is a leveled JSON-lines writer.
type Logger struct {
	mu     sync.Mutex
	level  Level
	redact bool
	out    io.Writer
}

var std = &Logger{level: INFO, redact: true, out: os.Stderr}

// SetLevel sets the minimum level written.
func SetLevel(l Level) {
	std.mu.Lock()
	std.level = l
	std.mu.Unlock()
}

// SetRedactPII turns masking of emails and credentials on or off.
func SetRedactPII(on bool) {
	std.mu.Lock()
	std.redact = on
	std.mu.Unlock()
}

// SetOutput redirects the logger. A nil writer restores stderr.
func SetOutput(w io.Writer) {
	if w == nil {
		w = os.Stderr
	}
	std.mu.Lock()
	std.out = w
	std.mu.Unlock()
}

// Debug emits a DEBUG-level structured log entry.
func Debug(msg string, kv ...any) { std.write(DEBUG, msg, nil, kv) }

// Info emits an INFO-level structured log entry.
func Info(msg string, kv ...any) { std.write(INFO, msg, nil, kv) }

// Warn emits a WARN-level structured log entry.
func Warn(msg string, kv ...any) { std.write(WARN, msg, nil, kv) }

// Error emits an ERROR-level structured log entry.
func Error(msg string, kv ...any) { std.write(ERROR, msg, nil, kv) }

// Entry carries key-value pairs, typically the component name, onto every
// line it writes.
type Entry struct {
	kv []any
}

// With returns an Entry bound to kv.
func With(kv ...any) Entry {
	return Entry{kv: kv}
}

// With returns a copy of e with more pairs bound.
func (e Entry) With(kv ...any) Entry {
	return Entry{kv: append(append([]any{}, e.kv...), kv...)}
}

func (e Entry) Debug(msg string, kv ...any) { std.write(DEBUG, msg, e.kv, kv) }
func (e Entry) Info(msg string, kv ...any)  { std.write(INFO, msg, e.kv, kv) }
func (e Entry) Warn(msg string, kv ...any)  { std.write(WARN, msg, e.kv, kv) }
func (e Entry) Error(msg string, kv ...any) { std.write(ERROR, msg, e.kv, kv) }

func (l *Logger) write(level Level, msg string, bound, kv []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if level < l.level {
		return
	}

	line := map[string]any{
		"time":  time.Now().UTC().Format(time.RFC3339),
		"level": level.String(),
		"msg":   msg,
	}
	l.addPairs(line, bound)
	l.addPairs(line, kv)

	data, err := json.Marshal(line)
	if err != nil {
		data = []byte(fmt.Sprintf(`{"level":"ERROR","msg":"unencodable log line: %s"}`, err))
	}
	l.out.Write(append(data, '\n'))
}

// addPairs copies kv into line. Numbers and booleans keep their JSON type;
// anything else is rendered as a string and masked.
func (l *Logger) addPairs(line map[string]any, kv []any) {
	for i := 0; i+1 < len(kv); i += 2 {
		key := fmt.Sprint(kv[i])
		switch v := kv[i+1].(type) {
		case int, int32, int64, uint, uint32, uint64, float32, float64, bool:
			line[key] = v
		case error:
			line[key] = l.mask(key, v.Error())
		case nil:
			line[key] = nil
		default:
			line[key] = l.mask(key, fmt.Sprint(v))
		}
	}
}

var emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

func (l *Logger) mask(key, val string) string {
	if !l.redact {
		return val
	}
	k := strings.ToLower(key)
	switch {
	case strings.Contains(k, "secret"), strings.Contains(k, "token"), strings.Contains(k, "apikey"), k == "authorization":
		return RedactSecret(val)
	case strings.Contains(k, "email"), strings.Contains(k, "recipient"):
		return RedactEmail(val)
	}
	return emailPattern.ReplaceAllStringFunc(val, RedactEmail)
}
