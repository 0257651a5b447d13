package obs

import (
	"log"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
)

var (
	loggerOnce sync.Once
	logger     *log.Logger
	minLevel   atomic.Int32
)

var levelRank = map[string]int32{"debug": 0, "info": 1, "warn": 2, "error": 3}

func init() { minLevel.Store(levelRank["info"]) }

// Logger returns the shared JSON-line logger.
func Logger() *log.Logger {
	loggerOnce.Do(func() {
		logger = log.New(os.Stdout, "", 0)
	})
	return logger
}

// SetLevel drops entries below level. Unknown levels are ignored and
// reported as false.
func SetLevel(level string) bool {
	rank, ok := levelRank[strings.ToLower(strings.TrimSpace(level))]
	if ok {
		minLevel.Store(rank)
	}
	return ok
}

// LogRequest writes entry as one JSON line. Request lines are never filtered.
func LogRequest(entry map[string]any) {
	data, err := json.Marshal(entry)
	if err != nil {
		Logger().Println(`{"ts":"error","level":"error","msg":"log marshal failed"}`)
		return
	}
	Logger().Println(string(data))
}

// Log emits a JSON line with the given level and message plus extra fields.
func Log(level, msg string, fields map[string]any) {
	if rank, ok := levelRank[level]; ok && rank < minLevel.Load() {
		return
	}
	entry := make(map[string]any, len(fields)+3)
	for k, v := range fields {
		entry[k] = v
	}
	entry["ts"] = time.Now().UTC().Format(time.RFC3339Nano)
	entry["level"] = level
	entry["msg"] = msg
	LogRequest(entry)
}

func Debug(msg string, fields map[string]any) { Log("debug", msg, fields) }
func Info(msg string, fields map[string]any)  { Log("info", msg, fields) }
func Warn(msg string, fields map[string]any)  { Log("warn", msg, fields) }
func Error(msg string, fields map[string]any) { Log("error", msg, fields) }
