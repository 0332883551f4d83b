package storage

import (
	"errors"
	"fmt"
	"sync"

	"github.com/bizmon/eventrelay/internal/channel"
	"github.com/bizmon/eventrelay/internal/wire"
)

// ChannelArchive keeps one JSONLWriter per channel, so a day's archive holds
// one file per channel.
type ChannelArchive struct {
	baseDir    string
	maxSizeMB  int
	bufferSize int

	mu      sync.Mutex
	writers map[channel.Channel]*JSONLWriter
	closed  bool
}

func NewChannelArchive(baseDir string, bufferSize, maxSizeMB int) *ChannelArchive {
	return &ChannelArchive{
		baseDir:    baseDir,
		maxSizeMB:  maxSizeMB,
		bufferSize: bufferSize,
		writers:    make(map[channel.Channel]*JSONLWriter),
	}
}

// Write archives an envelope under its channel's file.
func (a *ChannelArchive) Write(record any) error {
	env, ok := record.(wire.Envelope)
	if !ok {
		return fmt.Errorf("storage: unsupported record %T", record)
	}
	if !env.Type.Valid() {
		return fmt.Errorf("storage: envelope without channel")
	}
	w, err := a.writer(env.Type)
	if err != nil {
		return err
	}
	return w.Write(env)
}

func (a *ChannelArchive) writer(ch channel.Channel) (*JSONLWriter, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, ErrClosed
	}
	w, ok := a.writers[ch]
	if !ok {
		w = NewJSONLWriter(a.baseDir, ch.String(), a.bufferSize, a.maxSizeMB)
		a.writers[ch] = w
	}
	return w, nil
}

// Close flushes and closes every channel writer.
func (a *ChannelArchive) Close() error {
	a.mu.Lock()
	writers := a.writers
	a.writers = make(map[channel.Channel]*JSONLWriter)
	a.closed = true
	a.mu.Unlock()

	var errs []error
	for _, w := range writers {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
