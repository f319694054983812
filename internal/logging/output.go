package logging

import (
	"fmt"
	"os"
	"sort"
	"time"
)

const levelFatal = "FATAL"

// writeLog formats one log line and routes it to the right stream: DEBUG,
// INFO and WARN go to stdout, ERROR and FATAL go to stderr. Fields render
// in sorted key order so an operator grepping an investigation's log for
// session_id=... or hypothesis_id=... sees the same field layout on every
// line regardless of map iteration order.
func (l *Logger) writeLog(level, msg string, fields map[string]interface{}) {
	timestamp := fmt.Sprintf("[%s]", GetTimestamp())
	logMsg := fmt.Sprintf("%s [%s] %s: %s", timestamp, level, l.name, msg)

	if len(fields) > 0 {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		logMsg += " |"
		for _, k := range keys {
			logMsg += fmt.Sprintf(" %s=%v", k, fields[k])
		}
	}

	if level == strError || level == levelFatal {
		fmt.Fprintf(os.Stderr, "%s\n", logMsg)
	} else {
		fmt.Fprintf(os.Stdout, "%s\n", logMsg)
	}
}

// logf formats a message, merges in context and persistent fields, and
// writes it.
func (l *Logger) logf(level, msg string, args ...interface{}) {
	formattedMsg := fmt.Sprintf(msg, args...)
	mergedFields := mergeFields(extractContextFields(l.ctx), l.fields)
	l.writeLog(level, formattedMsg, mergedFields)
}

// GetTimestamp returns a formatted timestamp. LOG_TIMESTAMP overrides it
// for deterministic test output.
func GetTimestamp() string {
	if override := os.Getenv("LOG_TIMESTAMP"); override != "" {
		return override
	}
	return time.Now().Format(time.RFC3339)
}
