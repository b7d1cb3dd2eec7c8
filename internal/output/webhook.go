package output

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/adhound/adhound/internal/types"
)

// WebhookNotifier POSTs each new listing to a configured endpoint with
// optional basic auth. Delivery is best effort; a failed POST is
// reported to the caller and never retried here.
type WebhookNotifier struct {
	uri      string
	user     string
	password string
	client   *http.Client
}

// NewWebhookNotifier returns a new WebhookNotifier
func NewWebhookNotifier(nc *NotifierConfig) (*WebhookNotifier, error) {
	if nc.Uri == "" {
		return nil, fmt.Errorf("webhook notifier needs a uri")
	}
	return &WebhookNotifier{
		uri:      nc.Uri,
		user:     nc.User,
		password: nc.Password,
		client: &http.Client{
			Timeout: time.Second * 10,
		},
	}, nil
}

func (n *WebhookNotifier) Notify(ctx context.Context, user string, listing types.Listing) error {
	body, err := json.Marshal(notification{User: user, Listing: listing})
	if err != nil {
		return fmt.Errorf("error while encoding listing %s: %w", listing.Link, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.uri, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if n.user != "" {
		req.SetBasicAuth(n.user, n.password)
	}
	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("error while posting listing %s: %w", listing.Link, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned status code %d", resp.StatusCode)
	}
	return nil
}
