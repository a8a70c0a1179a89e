package events

import (
	"encoding/json"
	"io"
	"os"
	"sort"
	"sync"

	"webvnc/internal/logger"
)

// LogSink writes each event as one structured log line.
func LogSink() Sink {
	return func(ev Event) error {
		keys := make([]string, 0, len(ev.Fields))
		for k := range ev.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		args := make([]any, 0, 2*len(keys))
		for _, k := range keys {
			args = append(args, k, ev.Fields[k])
		}
		logger.Info("event: "+ev.Name, args...)
		return nil
	}
}

// JSONLSink appends one JSON object per line to w.
func JSONLSink(w io.Writer) Sink {
	var mu sync.Mutex
	enc := json.NewEncoder(w)
	return func(ev Event) error {
		mu.Lock()
		defer mu.Unlock()
		return enc.Encode(ev)
	}
}

// OpenFileSink opens path for append and returns a JSONL sink over it.
func OpenFileSink(path string) (Sink, io.Closer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	return JSONLSink(f), f, nil
}
