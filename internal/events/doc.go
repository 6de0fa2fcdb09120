// Package events is the outward event bus for terminal sessions.
//
// Every session owns a topic. The session's output pump is the only publisher of
// data events on it; the exit watcher publishes the final exit event. Listeners
// attach with Subscribe and detach with Subscription.Close.
//
// Delivery rules:
//   - Events of one session reach a listener in publish order, each exactly once.
//   - While a topic has no listener, events are retained in order. The next
//     listener to attach receives the retained backlog first, then live events.
//   - When the last listener detaches, its undelivered events go back to the
//     front of the retained backlog so a later listener sees no gap.
//   - Retention and listener queues are bounded. A full bound blocks the
//     publisher instead of dropping bytes.
//
// Example Usage:
//
//	hub := events.NewHub(events.DefaultConfig(), logger)
//	hub.Open(sessionID)
//
//	sub, err := hub.Subscribe(sessionID)
//	if err != nil {
//		return err
//	}
//	defer sub.Close()
//
//	for {
//		ev, err := sub.Next(ctx)
//		if err != nil {
//			return err
//		}
//		if ev.Type == events.TypeExit {
//			return nil
//		}
//		render(ev.Data)
//	}
package events
