package runner

import (
	"bytes"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// lineWriter re-emits each line written to it as a log event tagged with the plugin name.
type lineWriter struct {
	logger *zerolog.Logger
	plugin string
	buf    bytes.Buffer
	mu     sync.Mutex
}

func newLineWriter(logger *zerolog.Logger, plugin string) *lineWriter {
	return &lineWriter{logger: logger, plugin: plugin}
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf.Write(p)
	for {
		line, err := w.buf.ReadString('\n')
		if err != nil {
			// Partial line; keep it for the next write.
			w.buf.Reset()
			w.buf.WriteString(line)
			break
		}
		w.emit(line)
	}
	return len(p), nil
}

// Flush logs a trailing partial line.
func (w *lineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buf.Len() > 0 {
		w.emit(w.buf.String())
		w.buf.Reset()
	}
}

func (w *lineWriter) emit(line string) {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return
	}
	w.logger.Info().Str("plugin", w.plugin).Msg(line)
}
