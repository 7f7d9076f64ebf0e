package main

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/tpokki/wolf_exporter/smartset"
)

type MQTTConfig struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
}

// MQTTMirror publishes polled values as retained JSON messages under
// <prefix>/<system id>/<value id>.
type MQTTMirror struct {
	client mqtt.Client
	prefix string
}

type mirrorPayload struct {
	System    string `json:"system"`
	ValueId   int64  `json:"value_id"`
	Name      string `json:"name"`
	Tab       string `json:"tab"`
	Unit      string `json:"unit,omitempty"`
	Value     string `json:"value"`
	State     string `json:"state"`
	Timestamp int64  `json:"timestamp"`
}

func NewMQTTMirror(config MQTTConfig, logger log.Logger) (*MQTTMirror, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(config.Broker)
	opts.SetClientID(config.ClientID)
	opts.SetUsername(config.Username)
	opts.SetPassword(config.Password)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		level.Info(logger).Log("msg", "connected to mqtt broker", "broker", config.Broker)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		level.Warn(logger).Log("msg", "mqtt connection lost", "err", err)
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	return &MQTTMirror{client: client, prefix: config.TopicPrefix}, nil
}

func (m *MQTTMirror) Publish(system smartset.Device, parameter smartset.Parameter, value smartset.Value) error {
	topic, payload, err := mirrorMessage(m.prefix, system, parameter, value, time.Now())
	if err != nil {
		return err
	}
	token := m.client.Publish(topic, 0, true, payload)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to publish %s: %w", topic, token.Error())
	}
	return nil
}

func (m *MQTTMirror) Close() {
	m.client.Disconnect(250)
}

func mirrorMessage(prefix string, system smartset.Device, parameter smartset.Parameter, value smartset.Value, now time.Time) (string, []byte, error) {
	payload, err := json.Marshal(mirrorPayload{
		System:    system.Name,
		ValueId:   value.ValueId,
		Name:      parameter.Name,
		Tab:       parameter.Parent,
		Unit:      parameter.Unit(),
		Value:     value.Value,
		State:     value.State,
		Timestamp: now.Unix(),
	})
	if err != nil {
		return "", nil, fmt.Errorf("failed to marshal value %d: %w", value.ValueId, err)
	}
	return fmt.Sprintf("%s/%d/%d", prefix, system.Id, value.ValueId), payload, nil
}
