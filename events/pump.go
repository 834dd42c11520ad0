// (c) 2019-2020, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package events

import "context"

// Pump drains sub until ctx is canceled, calling handle for each message.
// A handle error is not fatal to the pump — it's returned to onErr (if
// non-nil) so the caller can log/report it and keep processing, matching
// spec.md §7's "non-fatal errors are isolated to the failing task" rule.
func Pump[T any](ctx context.Context, sub *Subscription[T], handle func(context.Context, T) error, onErr func(error)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-sub.C():
			if !ok {
				return nil
			}
			if err := handle(ctx, msg); err != nil && onErr != nil {
				onErr(err)
			}
		}
	}
}
