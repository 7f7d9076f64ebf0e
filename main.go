package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	kingpin "github.com/alecthomas/kingpin/v2"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/promlog"
	"github.com/prometheus/common/promlog/flag"
	"github.com/prometheus/common/version"
	"github.com/prometheus/exporter-toolkit/web"
	webflag "github.com/prometheus/exporter-toolkit/web/kingpinflag"

	"github.com/tpokki/wolf_exporter/smartset"
)

const (
	namespace = "wolf"
)

type wolfMetric string

const (
	parameterValue wolfMetric = "parameter_value"
	systemUp       wolfMetric = "up"
)

type metricInfo struct {
	Desc *prometheus.Desc
	Type prometheus.ValueType
}

type metrics map[wolfMetric]metricInfo

type Exporter struct {
	client   WolfAPI
	mirror   ValueMirror
	mutex    sync.Mutex
	metrics  metrics
	logger   log.Logger
	timeout  time.Duration
	interval time.Duration

	systemConfig *SystemConfig
}

type SystemConfig struct {
	lastUpdate time.Time
	systems    []*System
}

var (
	wolfMetrics = metrics{
		parameterValue: newMetric("parameter_value", "Current value of a heating system parameter", prometheus.GaugeValue,
			[]string{"system", "gateway", "tab", "parameter", "unit"}),
		systemUp: newMetric("up", "Whether the last poll of the system succeeded", prometheus.GaugeValue,
			[]string{"system", "gateway"}),
	}
)

func NewExporter(client WolfAPI, mirror ValueMirror, logger log.Logger, interval, timeout time.Duration) *Exporter {
	return &Exporter{
		client:       client,
		mirror:       mirror,
		metrics:      wolfMetrics,
		logger:       logger,
		timeout:      timeout,
		interval:     interval,
		systemConfig: &SystemConfig{},
	}
}

// Close releases the value mirror, if it holds a connection.
func (e *Exporter) Close() {
	if c, ok := e.mirror.(interface{ Close() }); ok {
		c.Close()
	}
}

func (e *Exporter) discover(ctx context.Context) {
	if !e.systemConfig.updateRequired(e.interval) {
		return
	}
	defer func() { e.systemConfig.lastUpdate = time.Now() }()

	devices, err := e.client.FetchSystemList(ctx)
	if err != nil {
		level.Error(e.logger).Log("msg", "failed to get systems, will try again later", "err", err)
		return
	}

	var systems []*System
	for _, d := range devices {
		parameters, err := e.client.FetchParameters(ctx, d.GatewayId, d.Id)
		if err != nil {
			level.Error(e.logger).Log("msg", "failed to get parameters for system", "system", d.Name, "err", err)
			continue
		}
		level.Info(e.logger).Log("msg", "updating system", "system", d.Name, "id", d.Id, "gateway", d.GatewayId, "parameters", len(parameters))
		systems = append(systems, newSystem(d, parameters))
	}
	e.systemConfig.systems = systems
}

func (sc *SystemConfig) updateRequired(interval time.Duration) bool {
	return sc.lastUpdate.IsZero() ||
		time.Since(sc.lastUpdate) > interval
}

func (e *Exporter) retrieveMetrics(ctx context.Context, ch chan<- prometheus.Metric) {
	for _, s := range e.systemConfig.systems {
		gateway := strconv.FormatInt(s.device.GatewayId, 10)
		up := e.metrics[systemUp]

		values, err := e.client.FetchValue(ctx, s.device.GatewayId, s.device.Id, s.parameters)
		if err != nil {
			var fetchErr *smartset.FetchError
			if errors.As(err, &fetchErr) && fetchErr.IsReadParameterError() {
				level.Warn(e.logger).Log("msg", "gateway could not read parameters", "system", s.device.Name)
			} else {
				level.Error(e.logger).Log("msg", "failed to get values for system", "system", s.device.Name, "err", err)
			}
			ch <- prometheus.MustNewConstMetric(up.Desc, up.Type, 0, s.device.Name, gateway)
			continue
		}
		ch <- prometheus.MustNewConstMetric(up.Desc, up.Type, 1, s.device.Name, gateway)
		level.Debug(e.logger).Log("msg", "wolf values received", "system", s.device.Name, "values", len(values))

		pv := e.metrics[parameterValue]
		for _, v := range values {
			p, ok := s.byValueId[v.ValueId]
			if !ok {
				continue
			}
			if e.mirror != nil {
				if err := e.mirror.Publish(s.device, p, v); err != nil {
					level.Error(e.logger).Log("msg", "failed to mirror value", "value_id", v.ValueId, "err", err)
				}
			}
			if value, ok := numericValue(v.Value); ok {
				ch <- prometheus.MustNewConstMetric(pv.Desc, pv.Type, value, s.device.Name, gateway, p.Parent, p.Name, p.Unit())
			}
		}
	}
}

// Collect fetches the values from the Wolf SmartSet portal and delivers
// them as Prometheus metrics. It implements prometheus.Collector.
func (e *Exporter) Collect(ch chan<- prometheus.Metric) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()

	e.discover(ctx)
	e.retrieveMetrics(ctx, ch)
}

// Describe describes all the metrics ever exported by the Wolf exporter. It
// implements prometheus.Collector.
func (e *Exporter) Describe(ch chan<- *prometheus.Desc) {
	for _, m := range e.metrics {
		ch <- m.Desc
	}
}

func main() {
	// credentials may come from a .env file next to the binary
	_ = godotenv.Load()

	var (
		webConfig = webflag.AddFlags(kingpin.CommandLine, ":9102")

		username  = kingpin.Flag("wolf.username", "Wolf SmartSet user name").Envar("WOLF_USERNAME").Required().String()
		password  = kingpin.Flag("wolf.password", "Wolf SmartSet password").Envar("WOLF_PASSWORD").Required().String()
		backend   = kingpin.Flag("wolf.backend", "Wolf SmartSet deployment: portal (web login) or legacy (password grant)").Default("portal").Enum("portal", "legacy")
		siteURL   = kingpin.Flag("wolf.url", "Wolf SmartSet site URL").Default("https://www.wolf-smartset.com").URL()
		interval  = kingpin.Flag("wolf.discovery-interval", "How often systems and parameter schemas are refreshed").Default("30m").Duration()
		timeout   = kingpin.Flag("wolf.timeout", "Time budget for one scrape").Default("30s").Duration()
		broker    = kingpin.Flag("mqtt.broker", "MQTT broker to mirror values to, e.g. tcp://localhost:1883 (disabled when empty)").Envar("MQTT_BROKER").String()
		mqttUser  = kingpin.Flag("mqtt.username", "MQTT user name").Envar("MQTT_USERNAME").String()
		mqttPass  = kingpin.Flag("mqtt.password", "MQTT password").Envar("MQTT_PASSWORD").String()
		mqttTopic = kingpin.Flag("mqtt.topic-prefix", "MQTT topic prefix").Default("wolf").String()
	)

	promlogConfig := &promlog.Config{}
	flag.AddFlags(kingpin.CommandLine, promlogConfig)
	kingpin.Version(version.Print("wolf_exporter"))
	kingpin.HelpFlag.Short('h')
	kingpin.Parse()
	logger := promlog.New(promlogConfig)

	b := smartset.Portal
	if *backend == "legacy" {
		b = smartset.Legacy
	}
	b = b.At((*siteURL).String())

	client := smartset.New(*username, *password, b,
		smartset.WithLogger(log.With(logger, "component", "smartset")))

	var mirror ValueMirror
	if *broker != "" {
		m, err := NewMQTTMirror(MQTTConfig{
			Broker:      *broker,
			ClientID:    "wolf_exporter",
			Username:    *mqttUser,
			Password:    *mqttPass,
			TopicPrefix: *mqttTopic,
		}, log.With(logger, "component", "mqtt"))
		if err != nil {
			level.Error(logger).Log("msg", "Error connecting to MQTT broker", "err", err)
			os.Exit(1)
		}
		mirror = m
	}

	exporter := NewExporter(client, mirror, logger, *interval, *timeout)

	prometheus.MustRegister(exporter)
	prometheus.MustRegister(version.NewCollector("wolf_exporter"))

	http.Handle("/metrics", promhttp.Handler())
	http.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>
             <head><title>Wolf SmartSet Exporter</title></head>
             <body>
             <h1>Wolf SmartSet Exporter</h1>
             <p><a href="/metrics">Metrics</a></p>
             </body>
             </html>`))
	})
	srv := &http.Server{}
	if err := web.ListenAndServe(srv, webConfig, logger); err != nil {
		level.Error(logger).Log("msg", "Error starting HTTP server", "err", err)
		exporter.Close()
		os.Exit(1)
	}
}

func newMetric(metricName string, docString string, t prometheus.ValueType, labelNames []string) metricInfo {
	return metricInfo{
		Desc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "cloud", metricName),
			docString,
			labelNames,
			nil,
		),
		Type: t,
	}
}
