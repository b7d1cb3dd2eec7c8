// Package output provides the interface and configuration for notifiers
package output

import (
	"context"
	"fmt"

	"github.com/adhound/adhound/internal/types"
)

// Notifier delivers a freshly discovered listing to one destination.
// Implementations must be safe for concurrent use since every worker
// shares the same notifier.
type Notifier interface {
	Notify(ctx context.Context, user string, listing types.Listing) error
}

// NotifierConfig defines the necessary parameters to make a new
// notifier which is responsible for delivering new listings to a
// specific destination, eg. stdout.
type NotifierConfig struct {
	Type     string `yaml:"type" env:"NOTIFIER_TYPE"`
	Uri      string `yaml:"uri" env:"NOTIFIER_URI"`
	User     string `yaml:"user" env:"NOTIFIER_USER"`
	Password string `yaml:"password" env:"NOTIFIER_PASSWORD"`
	Dir      string `yaml:"dir" env:"NOTIFIER_DIR"`
}

const (
	STDOUT_NOTIFIER_TYPE  = "stdout"
	FILE_NOTIFIER_TYPE    = "file"
	WEBHOOK_NOTIFIER_TYPE = "webhook"
)

// NewNotifier builds a notifier from its configuration. An empty type
// defaults to stdout.
func NewNotifier(nc *NotifierConfig) (Notifier, error) {
	switch nc.Type {
	case STDOUT_NOTIFIER_TYPE, "":
		return NewStdoutNotifier(nc), nil
	case FILE_NOTIFIER_TYPE:
		return NewFileNotifier(nc)
	case WEBHOOK_NOTIFIER_TYPE:
		return NewWebhookNotifier(nc)
	default:
		return nil, fmt.Errorf("notifier of type %s not implemented", nc.Type)
	}
}
