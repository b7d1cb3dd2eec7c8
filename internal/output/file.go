package output

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/adhound/adhound/internal/types"
)

// FileNotifier appends each new listing to a per-user JSON lines file
// under the configured directory. Appending a line per listing keeps
// the files tail-able while workers run for days.
type FileNotifier struct {
	dir string
	mu  sync.Mutex
}

// NewFileNotifier returns a new FileNotifier
func NewFileNotifier(nc *NotifierConfig) (*FileNotifier, error) {
	if nc.Dir == "" {
		return nil, fmt.Errorf("file notifier needs a directory")
	}
	if err := os.MkdirAll(nc.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("error while creating notifier directory: %w", err)
	}
	return &FileNotifier{dir: nc.Dir}, nil
}

func (n *FileNotifier) Notify(ctx context.Context, user string, listing types.Listing) error {
	buffer := &bytes.Buffer{}
	encoder := json.NewEncoder(buffer)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(notification{User: user, Listing: listing}); err != nil {
		return fmt.Errorf("error while encoding listing %s: %w", listing.Link, err)
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	path := filepath.Join(n.dir, user+".jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("error while opening %s: %w", path, err)
	}
	defer f.Close()
	if _, err := f.Write(buffer.Bytes()); err != nil {
		return fmt.Errorf("error while writing to %s: %w", path, err)
	}
	return nil
}
