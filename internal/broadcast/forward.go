package broadcast

import "context"

// Forward publishes a Changed hint for every user id received on changes
// until ctx is done. inProgress reports whether a flow is live for the user.
func Forward(ctx context.Context, changes <-chan string, bus Bus, inProgress func(userID string) bool) {
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-changes:
			bus.Publish(ctx, Changed(id, inProgress(id)))
		}
	}
}
