package output

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/adhound/adhound/internal/types"
)

// StdoutNotifier prints each new listing to stdout as indented JSON.
type StdoutNotifier struct {
	logger *slog.Logger
	mu     sync.Mutex
	out    io.Writer
}

// NewStdoutNotifier returns a new StdoutNotifier
func NewStdoutNotifier(nc *NotifierConfig) *StdoutNotifier {
	return &StdoutNotifier{
		logger: slog.With(slog.String("notifier", STDOUT_NOTIFIER_TYPE)),
		out:    os.Stdout,
	}
}

func (n *StdoutNotifier) Notify(ctx context.Context, user string, listing types.Listing) error {
	payload := notification{User: user, Listing: listing}
	// json.Marshal would escape &, < and > in listing links with
	// Unicode replacement runes.
	buffer := &bytes.Buffer{}
	encoder := json.NewEncoder(buffer)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(payload); err != nil {
		return fmt.Errorf("error while encoding listing %s: %w", listing.Link, err)
	}

	var indentBuffer bytes.Buffer
	if err := json.Indent(&indentBuffer, buffer.Bytes(), "", "  "); err != nil {
		return fmt.Errorf("error while indenting listing %s: %w", listing.Link, err)
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	_, err := fmt.Fprint(n.out, indentBuffer.String())
	return err
}

// notification is the JSON envelope shared by the stdout, file and
// webhook notifiers.
type notification struct {
	User    string        `json:"user"`
	Listing types.Listing `json:"listing"`
}
