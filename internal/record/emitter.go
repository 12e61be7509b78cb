package record

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// SinkWriteError reports a persistence failure. It is fatal for the
// run: silent data loss is worse than stopping.
type SinkWriteError struct {
	Path string
	Err  error
}

func (e *SinkWriteError) Error() string {
	return fmt.Sprintf("failed to write corpus sink %s: %v", e.Path, e.Err)
}

func (e *SinkWriteError) Unwrap() error { return e.Err }

// Emitter serializes training records to a JSONL sink, one object per
// line. All writes funnel through a single goroutine so concurrent
// producers can never interleave record boundaries. Output goes to a
// temp file renamed into place on Close, the temp → rename pattern.
type Emitter struct {
	path     string
	tempPath string
	file     *os.File
	writer   *bufio.Writer
	enc      *json.Encoder

	records chan *TrainingRecord
	done    chan struct{}

	mu       sync.Mutex
	writeErr error
	written  int
}

// NewEmitter opens the sink and starts the writer goroutine.
func NewEmitter(path string) (*Emitter, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, &SinkWriteError{Path: path, Err: err}
		}
	}

	tempPath := path + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return nil, &SinkWriteError{Path: path, Err: err}
	}

	writer := bufio.NewWriter(file)
	enc := json.NewEncoder(writer)
	enc.SetEscapeHTML(false)

	e := &Emitter{
		path:     path,
		tempPath: tempPath,
		file:     file,
		writer:   writer,
		enc:      enc,
		records:  make(chan *TrainingRecord, 64),
		done:     make(chan struct{}),
	}
	go e.writeLoop()
	return e, nil
}

func (e *Emitter) writeLoop() {
	defer close(e.done)
	for rec := range e.records {
		if err := e.enc.Encode(rec); err != nil {
			e.mu.Lock()
			if e.writeErr == nil {
				e.writeErr = &SinkWriteError{Path: e.path, Err: err}
			}
			e.mu.Unlock()
			continue
		}
		e.mu.Lock()
		e.written++
		e.mu.Unlock()
	}
}

// Emit queues one record for writing. Safe for concurrent use. A
// previous write failure surfaces here so callers stop early.
func (e *Emitter) Emit(rec *TrainingRecord) error {
	e.mu.Lock()
	err := e.writeErr
	e.mu.Unlock()
	if err != nil {
		return err
	}
	e.records <- rec
	return nil
}

// Written reports how many records have been persisted so far.
func (e *Emitter) Written() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.written
}

// Close drains pending records, flushes, and renames the temp file to
// its final location. The sink only appears under its final name when
// every record made it to disk.
func (e *Emitter) Close() error {
	close(e.records)
	<-e.done

	if err := e.writer.Flush(); err != nil {
		e.file.Close()
		return &SinkWriteError{Path: e.path, Err: err}
	}
	if err := e.file.Sync(); err != nil {
		e.file.Close()
		return &SinkWriteError{Path: e.path, Err: err}
	}
	if err := e.file.Close(); err != nil {
		return &SinkWriteError{Path: e.path, Err: err}
	}

	e.mu.Lock()
	writeErr := e.writeErr
	e.mu.Unlock()
	if writeErr != nil {
		os.Remove(e.tempPath)
		return writeErr
	}

	if err := os.Rename(e.tempPath, e.path); err != nil {
		os.Remove(e.tempPath)
		return &SinkWriteError{Path: e.path, Err: err}
	}
	return nil
}
