package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"alarm-manager/internal/domain"
)

// MQTTNotifier publishes ringing alarms to <prefix>/notifications/<id> and
// reads responses from <prefix>/actions/<id>.
type MQTTNotifier struct {
	broker Broker
	prefix string
	qos    byte
	log    *zap.Logger
}

var (
	_ domain.Notifier     = (*MQTTNotifier)(nil)
	_ domain.ActionSource = (*MQTTNotifier)(nil)
)

func NewMQTTNotifier(broker Broker, prefix string, qos byte, logger *zap.Logger) *MQTTNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MQTTNotifier{
		broker: broker,
		prefix: strings.TrimSuffix(prefix, "/"),
		qos:    qos,
		log:    logger,
	}
}

// notificationMessage is the retained payload of a raised notification.
type notificationMessage struct {
	AlarmID string   `json:"alarmId"`
	Title   string   `json:"title"`
	Label   string   `json:"label"`
	Time    string   `json:"time"`
	Actions []string `json:"actions"`
	Raised  string   `json:"raisedAt"`
}

func (n *MQTTNotifier) notificationTopic(id string) string {
	return n.prefix + "/notifications/" + id
}

func (n *MQTTNotifier) actionTopic() string {
	return n.prefix + "/actions/+"
}

func (n *MQTTNotifier) Raise(note domain.Notification) error {
	msg := notificationMessage{
		AlarmID: note.AlarmID,
		Title:   note.Title,
		Label:   note.Label,
		Time:    note.Time.Format(time.RFC3339),
		Raised:  time.Now().Format(time.RFC3339),
	}
	for _, a := range note.Actions {
		msg.Actions = append(msg.Actions, string(a))
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	return n.broker.Publish(n.notificationTopic(note.AlarmID), n.qos, true, payload)
}

// Dismiss clears the retained notification.
func (n *MQTTNotifier) Dismiss(alarmID string) error {
	return n.broker.Publish(n.notificationTopic(alarmID), n.qos, true, []byte{})
}

// Listen subscribes to the action topic. The subscription and the connection
// are released when ctx is done.
func (n *MQTTNotifier) Listen(ctx context.Context, handle domain.ActionHandler) error {
	topic := n.actionTopic()
	err := n.broker.Subscribe(topic, n.qos, func(topic string, payload []byte) error {
		action, err := n.parseAction(topic, payload)
		if err != nil {
			return err
		}
		n.log.Info("action received", zap.String("alarm_id", action.AlarmID), zap.String("action", string(action.Kind)))
		handle(action)
		return nil
	})
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		if err := n.broker.Unsubscribe(topic); err != nil {
			n.log.Debug("mqtt unsubscribe", zap.Error(err))
		}
		n.broker.Disconnect()
	}()
	return nil
}

// parseAction accepts a bare "snooze"/"stop" payload or {"action": "..."}.
func (n *MQTTNotifier) parseAction(topic string, payload []byte) (domain.Action, error) {
	id := topic[strings.LastIndex(topic, "/")+1:]
	if id == "" || !strings.HasPrefix(topic, n.prefix+"/actions/") {
		return domain.Action{}, fmt.Errorf("unexpected action topic %q", topic)
	}

	raw := strings.TrimSpace(string(payload))
	if strings.HasPrefix(raw, "{") {
		var body struct {
			Action string `json:"action"`
		}
		if err := json.Unmarshal([]byte(raw), &body); err != nil {
			return domain.Action{}, fmt.Errorf("decode action: %w", err)
		}
		raw = body.Action
	}

	kind, err := domain.ParseActionKind(strings.ToLower(raw))
	if err != nil {
		return domain.Action{}, err
	}
	return domain.Action{AlarmID: id, Kind: kind}, nil
}
