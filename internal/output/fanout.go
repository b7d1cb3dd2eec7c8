package output

import (
	"context"
	"errors"

	"github.com/adhound/adhound/internal/types"
)

// FanoutNotifier delivers each listing to every configured notifier
// and joins their errors. One failing destination never blocks the
// others.
type FanoutNotifier struct {
	notifiers []Notifier
}

// NewFanoutNotifier returns a new FanoutNotifier
func NewFanoutNotifier(notifiers ...Notifier) *FanoutNotifier {
	return &FanoutNotifier{notifiers: notifiers}
}

func (n *FanoutNotifier) Notify(ctx context.Context, user string, listing types.Listing) error {
	var errs []error
	for _, notifier := range n.notifiers {
		if err := notifier.Notify(ctx, user, listing); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
