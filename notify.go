package authgate

import "log"

// Named events the session monitor and expiry watcher publish. A generic
// notification surface renders them; this package only names them.
const (
	EventNameSessionExpired     = "session_expired"
	EventNameConnectionLost     = "connection_lost"
	EventNameConnectionRestored = "connection_restored"
)

// Notification is the short title/description pair shown to the user.
type Notification struct {
	Title       string
	Description string
}

// Notifier receives named user-facing events.
type Notifier interface {
	Notify(event string, n Notification)
}

// ConsoleNotifier is a development implementation that logs notifications.
type ConsoleNotifier struct{}

func (c *ConsoleNotifier) Notify(event string, n Notification) {
	log.Printf("\n=== NOTIFY: %s ===", event)
	log.Printf("%s - %s", n.Title, n.Description)
	log.Printf("==================\n")
}

// noopNotifier backs components constructed without a Notifier.
type noopNotifier struct{}

func (noopNotifier) Notify(string, Notification) {}
