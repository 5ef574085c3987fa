// Package notify forwards station events to external consumers over MQTT.
package notify

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/voltgrid/stationd/core/events"
	"github.com/voltgrid/stationd/infra/logger"
	"github.com/voltgrid/stationd/internal/eventbus"
)

// Config defines the connection parameters for the Paho MQTT client.
type Config struct {
	Enabled     bool            `json:"enabled"`
	Broker      string          `json:"broker"`
	ClientID    string          `json:"client_id"`
	Username    string          `json:"username"`
	Password    string          `json:"password"`
	TopicPrefix string          `json:"topic_prefix"`
	UseTLS      bool            `json:"use_tls"`
	ClientCert  string          `json:"client_cert"`
	ClientKey   string          `json:"client_key"`
	CABundle    string          `json:"ca_bundle"`
	QoS         map[string]byte `json:"qos"`
	MaxRetries  int             `json:"max_retries"`
	BackoffMS   int             `json:"backoff_ms"`
	TLSConfig   *tls.Config     `json:"-"`
}

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// Forwarder publishes station events to per-kind MQTT topics. It implements
// eventbus.Observer and is subscribed next to the internal observers.
type Forwarder struct {
	cli        pahoClient
	prefix     string
	qos        map[string]byte
	log        logger.Logger
	maxRetries int
	backoff    time.Duration
}

// NewForwarder connects to the MQTT broker.
func NewForwarder(cfg Config) (*Forwarder, error) {
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}

	log := logger.New("mqtt_notifier")
	opts.OnConnect = func(paho.Client) {
		log.Infof("MQTT connected")
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}

	prefix := cfg.TopicPrefix
	if prefix == "" {
		prefix = "station"
	}
	f := &Forwarder{
		prefix:     prefix,
		qos:        cfg.QoS,
		log:        log,
		maxRetries: cfg.MaxRetries,
		backoff:    time.Duration(cfg.BackoffMS) * time.Millisecond,
	}
	if f.maxRetries <= 0 {
		f.maxRetries = 3
	}
	if f.backoff <= 0 {
		f.backoff = 100 * time.Millisecond
	}

	c := newMQTTClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	f.cli = c
	return f, nil
}

// NewClientOptions builds mqtt client options from Config.
func NewClientOptions(cfg Config) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	if cfg.UseTLS {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	return opts, nil
}

// LoadTLSConfig loads the TLS configuration from the file paths in the config.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	if c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "" {
		return nil, fmt.Errorf("tls config requires client_cert, client_key and ca_bundle")
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("load cert: %w", err)
	}
	caBytes, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read ca: %w", err)
	}
	pool := x509.NewCertPool()
	pool.AppendCertsFromPEM(caBytes)
	cfg := &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}
	return cfg, nil
}

// HandleEvent serializes the event and publishes it on its per-kind topic.
// Unknown event types are skipped.
func (f *Forwarder) HandleEvent(e eventbus.Event) error {
	kind, payload, err := encode(e)
	if err != nil {
		return err
	}
	if kind == "" {
		return nil
	}
	return f.publish(fmt.Sprintf("%s/events/%s", f.prefix, kind), kind, payload)
}

func encode(e eventbus.Event) (string, []byte, error) {
	var kind string
	var body any
	switch ev := e.(type) {
	case events.SlotAvailableEvent:
		kind = "slot_available"
		body = struct {
			SlotID string `json:"slot_id"`
		}{ev.SlotID}
	case events.SlotFaultedEvent:
		kind = "slot_faulted"
		body = struct {
			SlotID string `json:"slot_id"`
		}{ev.SlotID}
	case events.ChargingStartedEvent:
		kind = "charging_started"
		body = struct {
			VehicleID string `json:"vehicle_id"`
			SlotID    string `json:"slot_id"`
			Class     string `json:"class"`
			StartTime int64  `json:"start_time"`
		}{ev.VehicleID, ev.SlotID, ev.Class.String(), ev.StartTime.UnixMilli()}
	case events.ChargingCompleteEvent:
		kind = "charging_complete"
		body = struct {
			VehicleID       string  `json:"vehicle_id"`
			SlotID          string  `json:"slot_id"`
			DurationSeconds float64 `json:"duration_seconds"`
			EnergyKWh       float64 `json:"energy_kwh"`
		}{ev.VehicleID, ev.SlotID, ev.DurationSeconds, ev.EnergyKWh}
	case events.BillingFinalizedEvent:
		kind = "billing_finalized"
		body = struct {
			VehicleID string  `json:"vehicle_id"`
			InvoiceID string  `json:"invoice_id"`
			AmountDue float64 `json:"amount_due"`
		}{ev.VehicleID, ev.InvoiceID, ev.AmountDue}
	default:
		return "", nil, nil
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", nil, err
	}
	return kind, payload, nil
}

func (f *Forwarder) publish(topic, kind string, payload []byte) error {
	qos := byte(0)
	if q, ok := f.qos[kind]; ok {
		qos = q
	}
	var publishErr error
	for attempt := 0; attempt <= f.maxRetries; attempt++ {
		token := f.cli.Publish(topic, qos, false, payload)
		token.Wait()
		publishErr = token.Error()
		if publishErr == nil {
			return nil
		}
		f.log.Errorf("publish attempt %d to %s failed: %v", attempt+1, topic, publishErr)
		time.Sleep(f.backoff * time.Duration(1<<attempt))
	}
	return publishErr
}

// Disconnect gracefully closes the MQTT connection.
func (f *Forwarder) Disconnect() {
	if f.cli != nil && f.cli.IsConnected() {
		f.cli.Disconnect(250)
	}
}
