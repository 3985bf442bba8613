// Package log writes compressed JSONL audit trails with hourly rotation.
package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

type JSONLZstdWriter struct {
	baseDir string
	prefix  string
	now     func() time.Time
	// onClose receives the path of each finished hourly file.
	onClose func(path string)

	mu      sync.Mutex
	curHour string
	curPath string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
		now:     time.Now,
	}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := w.now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *JSONLZstdWriter) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(w.baseDir, 0o755); err != nil {
		return err
	}
	path := w.pathForHour(hour)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 64*1024)
	w.curHour = hour
	w.curPath = path
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	closed := w.f != nil
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	if closed && w.onClose != nil {
		w.onClose(w.curPath)
	}
	w.w = nil
	w.curHour = ""
	w.curPath = ""
	return err1
}

func (w *JSONLZstdWriter) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

// TravelEntry is one route outcome: a teleport or a rejection.
type TravelEntry struct {
	Tick       uint64 `json:"tick"`
	Player     string `json:"player"`
	Portal     uint64 `json:"portal"`
	Accepted   bool   `json:"accepted"`
	Code       string `json:"code,omitempty"`
	Direction  string `json:"direction,omitempty"`
	From       string `json:"from,omitempty"`
	To         string `json:"to,omitempty"`
	Pos        [3]int `json:"pos,omitempty"`
	Reciprocal uint64 `json:"reciprocal,omitempty"`
}

// TravelLogger writes one JSONL entry per route outcome (compressed).
type TravelLogger struct{ w *JSONLZstdWriter }

func NewTravelLogger(dataDir string) *TravelLogger {
	return NewTravelLoggerWithHook(dataDir, nil)
}

// NewTravelLoggerWithHook calls onClose with each rotated-out file, e.g. to mirror it off-host.
func NewTravelLoggerWithHook(dataDir string, onClose func(path string)) *TravelLogger {
	w := NewJSONLZstdWriter(filepath.Join(dataDir, "travel"), "travel")
	w.onClose = onClose
	return &TravelLogger{w: w}
}

func (l *TravelLogger) WriteTravel(e TravelEntry) error { return l.w.Write(e) }
func (l *TravelLogger) Close() error                    { return l.w.Close() }

// ReadTravel decodes a complete travel log file.
func ReadTravel(path string) ([]TravelEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	var out []TravelEntry
	jd := json.NewDecoder(dec)
	for {
		var e TravelEntry
		if err := jd.Decode(&e); err != nil {
			if err == io.EOF {
				return out, nil
			}
			return out, err
		}
		out = append(out, e)
	}
}
