// Package notify announces ringing alarms and collects the user's responses.
package notify

import (
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"alarm-manager/internal/domain"
)

// LogNotifier writes ringing alarms to the log and, optionally, a terminal.
// It has no way to receive actions; users answer through the CLI or HTTP API.
type LogNotifier struct {
	out io.Writer
	log *zap.Logger

	mu      sync.Mutex
	showing map[string]domain.Notification
}

var _ domain.Notifier = (*LogNotifier)(nil)

// NewLogNotifier creates a notifier. out may be nil.
func NewLogNotifier(out io.Writer, logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{out: out, log: logger, showing: make(map[string]domain.Notification)}
}

func (n *LogNotifier) Raise(note domain.Notification) error {
	n.mu.Lock()
	n.showing[note.AlarmID] = note
	n.mu.Unlock()

	n.log.Info("notification raised", zap.String("alarm_id", note.AlarmID), zap.String("label", note.Label))
	if n.out != nil {
		if _, err := fmt.Fprintf(n.out, "%s: %s [%s] (snooze or stop %s)\n", note.Title, note.Label, note.Time.Format("15:04"), note.AlarmID); err != nil {
			return fmt.Errorf("write notification: %w", err)
		}
	}
	return nil
}

// Dismiss is a no-op for alarms that are not showing.
func (n *LogNotifier) Dismiss(alarmID string) error {
	n.mu.Lock()
	_, ok := n.showing[alarmID]
	delete(n.showing, alarmID)
	n.mu.Unlock()

	if ok {
		n.log.Info("notification dismissed", zap.String("alarm_id", alarmID))
	}
	return nil
}

// Showing returns the IDs of alarms whose notification is up.
func (n *LogNotifier) Showing() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	ids := make([]string, 0, len(n.showing))
	for id := range n.showing {
		ids = append(ids, id)
	}
	return ids
}
