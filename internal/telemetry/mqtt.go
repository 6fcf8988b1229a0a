// Package telemetry forwards game server events to an MQTT broker.
package telemetry

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/gasbugs/AC/internal/config"
	"github.com/gasbugs/AC/internal/events"
	"github.com/gasbugs/AC/internal/util"
)

// Topic suffixes below the configured prefix.
const (
	TopicStatus  = "status"
	TopicSession = "session"
	TopicGame    = "game"
	TopicVote    = "vote"
	TopicLag     = "lag"
	TopicAdmin   = "admin"
	TopicCommand = "command"
)

// Commander executes broker commands on the game server.
type Commander interface {
	Say(ctx context.Context, text string) error
}

// MQTTHandler publishes events from the bus as JSON messages.
type MQTTHandler struct {
	cfg      config.MQTTConfig
	eventBus *events.EventBus
	client   mqtt.Client
	cmd      Commander
	logger   zerolog.Logger

	metadata map[string]interface{}
}

// NewMQTTHandler creates a handler for the broker in cfg. cmd may be nil,
// in which case the command topic is not subscribed.
func NewMQTTHandler(cfg config.MQTTConfig, gamePort int, eventBus *events.EventBus, cmd Commander) (*MQTTHandler, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("MQTT is disabled")
	}
	if strings.TrimSpace(cfg.Broker) == "" {
		return nil, fmt.Errorf("MQTT broker is not set")
	}

	sysInfo := util.GetSystemInfo()
	h := &MQTTHandler{
		cfg:      cfg,
		eventBus: eventBus,
		cmd:      cmd,
		logger:   util.ComponentLogger("mqtt"),
		metadata: map[string]interface{}{
			"hostname": sysInfo.Hostname,
			"os":       sysInfo.OS,
			"port":     gamePort,
		},
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	if cfg.ClientID != "" {
		opts.SetClientID(cfg.ClientID)
	} else {
		opts.SetClientID(fmt.Sprintf("acserver-%s-%d", sysInfo.Hostname, gamePort))
	}
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetCleanSession(true)
	if strings.HasPrefix(cfg.Broker, "ssl://") || strings.HasPrefix(cfg.Broker, "tls://") {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	opts.SetOnConnectHandler(func(client mqtt.Client) {
		h.logger.Info().Str("broker", cfg.Broker).Msg("mqtt connected")
		h.subscribeCommands()
	})
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		h.logger.Warn().Err(err).Msg("mqtt connection lost")
	})

	h.client = mqtt.NewClient(opts)
	return h, nil
}

// Start connects to the broker and publishes until ctx is cancelled.
func (h *MQTTHandler) Start(ctx context.Context) error {
	h.logger.Info().Str("broker", h.cfg.Broker).Msg("connecting to mqtt broker")

	token := h.client.Connect()
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("MQTT connect failed: %w", token.Error())
	}

	h.subscribeEvents()
	defer h.unsubscribeEvents()

	<-ctx.Done()

	h.publishSync(TopicAdmin, map[string]interface{}{"event": "shutdown"})
	h.client.Disconnect(5000)
	h.logger.Info().Msg("mqtt disconnected")
	return nil
}

var eventTopics = map[events.EventType]string{
	events.EventServerStatus:        TopicStatus,
	events.EventClientConnected:     TopicSession,
	events.EventClientAuthenticated: TopicSession,
	events.EventClientDisconnected:  TopicSession,
	events.EventRoleChanged:         TopicSession,
	events.EventFrag:                TopicGame,
	events.EventFlag:                TopicGame,
	events.EventArenaWin:            TopicGame,
	events.EventMapChanged:          TopicGame,
	events.EventGameFinished:        TopicGame,
	events.EventVoteCalled:          TopicVote,
	events.EventVoteResolved:        TopicVote,
	events.EventLagAlert:            TopicLag,
	events.EventDiskWarning:         TopicLag,
	events.EventBanAdded:            TopicAdmin,
	events.EventDemoRecorded:        TopicAdmin,
}

func (h *MQTTHandler) subscribeEvents() {
	for t := range eventTopics {
		h.eventBus.Subscribe(t, "mqtt", h.onEvent)
	}
}

func (h *MQTTHandler) unsubscribeEvents() {
	for t := range eventTopics {
		h.eventBus.Unsubscribe(t, "mqtt")
	}
}

func (h *MQTTHandler) onEvent(ctx context.Context, event events.Event) error {
	topic, ok := eventTopics[event.Type]
	if !ok {
		return nil
	}
	h.publish(topic, event.Type, event.Payload)
	return nil
}

// subscribeCommands listens on <prefix>/command/say for server messages.
func (h *MQTTHandler) subscribeCommands() {
	if h.cmd == nil {
		return
	}
	topic := h.topic(TopicCommand) + "/say"
	h.client.Subscribe(topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
		text := strings.TrimSpace(string(msg.Payload()))
		if text == "" {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := h.cmd.Say(ctx, text); err != nil {
			h.logger.Warn().Err(err).Msg("mqtt say command failed")
		}
	})
}

func (h *MQTTHandler) topic(suffix string) string {
	prefix := strings.TrimSuffix(h.cfg.TopicPrefix, "/")
	if prefix == "" {
		return suffix
	}
	return prefix + "/" + suffix
}

func (h *MQTTHandler) publish(suffix string, kind events.EventType, payload interface{}) {
	if !h.client.IsConnected() {
		return
	}
	data, err := json.Marshal(h.buildMessage(kind, payload, time.Now()))
	if err != nil {
		h.logger.Warn().Err(err).Str("topic", suffix).Msg("failed to marshal mqtt message")
		return
	}
	topic := h.topic(suffix)
	token := h.client.Publish(topic, 1, false, data)
	go func() {
		token.Wait()
		if token.Error() != nil {
			h.logger.Warn().Err(token.Error()).Str("topic", topic).Msg("mqtt publish failed")
		}
	}()
}

func (h *MQTTHandler) publishSync(suffix string, payload interface{}) {
	if !h.client.IsConnected() {
		return
	}
	data, err := json.Marshal(h.buildMessage(events.EventShutdown, payload, time.Now()))
	if err != nil {
		return
	}
	h.client.Publish(h.topic(suffix), 1, false, data).WaitTimeout(2 * time.Second)
}

// buildMessage wraps payload with the host metadata.
func (h *MQTTHandler) buildMessage(kind events.EventType, payload interface{}, now time.Time) map[string]interface{} {
	msg := make(map[string]interface{}, len(h.metadata)+3)
	for k, v := range h.metadata {
		msg[k] = v
	}
	msg["event"] = string(kind)
	msg["payload"] = payload
	msg["timestamp"] = now.UTC().Format(time.RFC3339)
	return msg
}
