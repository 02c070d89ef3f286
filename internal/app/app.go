package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/swncrew-core/internal/api"
	"github.com/nerrad567/swncrew-core/internal/device"
	"github.com/nerrad567/swncrew-core/internal/infrastructure/config"
	"github.com/nerrad567/swncrew-core/internal/infrastructure/database"
	"github.com/nerrad567/swncrew-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/swncrew-core/internal/infrastructure/logging"
	"github.com/nerrad567/swncrew-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/swncrew-core/internal/mission"
	"github.com/nerrad567/swncrew-core/internal/scheduler"
	"github.com/nerrad567/swncrew-core/internal/telemetry"
	"github.com/nerrad567/swncrew-core/migrations"
)

// hardwarePorts drives valves and flowmeters. Satisfied by
// *device.MQTTPorts and *device.MockPorts.
type hardwarePorts interface {
	scheduler.ValvePort
	scheduler.SetpointPort
	SetRecorder(device.Recorder)
	SetLogger(device.Logger)
}

// App holds every wired component.
type App struct {
	cfg *config.Config
	log *logging.Logger

	db       *database.DB
	mqtt     *mqtt.Client    // nil in mock mode
	influx   *influxdb.Client // nil when disabled
	registry *device.Registry

	Controller *scheduler.Controller
	Server     *api.Server

	closers []func()
}

// New builds the application from cfg. Nothing runs until Run is called;
// on error every connection opened so far is closed again.
func New(ctx context.Context, cfg *config.Config, log *logging.Logger, version string) (_ *App, err error) {
	a := &App{cfg: cfg, log: log}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if err = a.openDatabase(ctx); err != nil {
		return nil, err
	}
	if cfg.Hardware.Mode == config.HardwareModeMQTT {
		if err = a.connectMQTT(ctx); err != nil {
			return nil, err
		}
	}
	if err = a.connectInflux(ctx); err != nil {
		return nil, err
	}

	a.registry = device.NewRegistry(cfg.Hardware.ValveCount, cfg.Hardware.FlowmeterCount)
	a.registry.SetLogger(log)
	if err = a.registry.CheckFlowmeter(cfg.Mission.FlowSensorID); err != nil {
		return nil, fmt.Errorf("mission.flow_sensor_id: %w", err)
	}

	history := mission.NewSQLiteHistory(a.db.DB)
	sinks := []scheduler.TelemetrySink{history}

	var recorder device.Recorder
	if a.influx != nil {
		influxSink := telemetry.NewInfluxSink(a.influx, cfg.Rig.ID)
		recorder = influxSink
		sinks = append(sinks, influxSink)
	}
	if a.mqtt != nil {
		sinks = append(sinks, telemetry.NewEventPublisher(a.mqtt))
	}

	ports := a.buildPorts()
	ports.SetRecorder(recorder)
	ports.SetLogger(log)

	runner := scheduler.NewRunner(ports, ports, cfg.Mission.FlowSensorID,
		scheduler.WithCleanupTimeout(cfg.Mission.CleanupTimeout()),
		scheduler.WithRunnerLogger(log),
	)
	a.Controller = scheduler.NewController(runner, log, scheduler.Config{
		StartActive:     cfg.Mission.StartActive,
		MissionGap:      cfg.Mission.MissionGap(),
		SinkTimeout:     cfg.Mission.SinkTimeout(),
		DeliveryTimeout: cfg.Mission.DeliveryTimeout(),
	}, sinks...)

	if a.mqtt != nil {
		if err = a.subscribeMQTT(recorder); err != nil {
			return nil, err
		}
	}

	scheduler.RegisterMetrics(prometheus.DefaultRegisterer)
	api.RegisterMetrics(prometheus.DefaultRegisterer)

	a.Server, err = api.New(api.Deps{
		Config:       cfg.API,
		WS:           cfg.WebSocket,
		Logger:       log,
		Controller:   a.Controller,
		Registry:     a.registry,
		History:      history,
		HistoryLimit: cfg.Mission.HistoryLimit,
		Recorder:     recorder,
		Valves:       ports,
		Checks:       a.healthChecks(),
		Version:      version,
	})
	if err != nil {
		return nil, fmt.Errorf("creating API server: %w", err)
	}

	return a, nil
}

func (a *App) openDatabase(ctx context.Context) error {
	db, err := database.Open(ctx, database.Config{
		Path:        a.cfg.Database.Path,
		WALMode:     a.cfg.Database.WALMode,
		BusyTimeout: a.cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	a.db = db
	a.onClose("database", db.Close)
	a.log.Info("database connected", "path", a.cfg.Database.Path)

	if err := db.Migrate(ctx, migrations.FS); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	a.log.Info("database migrations complete")
	return nil
}

func (a *App) connectMQTT(ctx context.Context) error {
	client, err := mqtt.Connect(ctx, a.cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	a.mqtt = client
	a.onClose("MQTT", client.Close)

	client.SetLogger(a.log)
	client.SetOnConnect(func() {
		a.log.Info("MQTT reconnected")
	})
	client.SetOnDisconnect(func(err error) {
		a.log.Warn("MQTT disconnected", "error", err)
	})
	a.log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", a.cfg.MQTT.Broker.Host, a.cfg.MQTT.Broker.Port),
		"client_id", a.cfg.MQTT.Broker.ClientID,
	)
	return nil
}

func (a *App) connectInflux(ctx context.Context) error {
	client, err := influxdb.Connect(ctx, a.cfg.InfluxDB)
	if errors.Is(err, influxdb.ErrDisabled) {
		a.log.Info("InfluxDB disabled")
		return nil
	}
	if err != nil {
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	}
	a.influx = client
	a.onClose("InfluxDB", client.Close)

	client.SetOnError(func(err error) {
		a.log.Error("InfluxDB write error", "error", err)
	})
	a.log.Info("InfluxDB connected",
		"url", a.cfg.InfluxDB.URL,
		"org", a.cfg.InfluxDB.Org,
		"bucket", a.cfg.InfluxDB.Bucket,
	)
	return nil
}

func (a *App) buildPorts() hardwarePorts {
	if a.mqtt != nil {
		a.log.Info("hardware commands via MQTT bridge", "protocol", a.cfg.Hardware.Protocol)
		return device.NewMQTTPorts(a.mqtt, a.registry, a.cfg.Hardware.Protocol)
	}
	a.log.Warn("hardware in mock mode, no valves will move")
	return device.NewMockPorts(a.registry)
}

// subscribeMQTT feeds bridge state messages into the device catalogue and
// classifier results into the controller.
func (a *App) subscribeMQTT(recorder device.Recorder) error {
	qos := byte(a.cfg.MQTT.QoS)
	topics := mqtt.Topics{}

	ingester := device.NewStateIngester(a.registry)
	ingester.SetRecorder(recorder)
	ingester.SetLogger(a.log)
	if err := a.mqtt.Subscribe(topics.AllStates(a.cfg.Hardware.Protocol), qos, ingester.HandleState); err != nil {
		return fmt.Errorf("subscribing to device state: %w", err)
	}

	if err := a.mqtt.Subscribe(topics.ClassifierResult(), qos, a.handleClassifierResult); err != nil {
		return fmt.Errorf("subscribing to classifier results: %w", err)
	}
	return nil
}

// handleClassifierResult publishes a classification received over MQTT.
func (a *App) handleClassifierResult(_ string, payload []byte) error {
	var c mission.Classified
	if err := json.Unmarshal(payload, &c); err != nil {
		return fmt.Errorf("decoding classifier result: %w", err)
	}
	if c.Status == "" {
		c.Status = mission.StatusCompleted
	}
	return a.Controller.PostClassification(context.Background(), c)
}

func (a *App) healthChecks() map[string]api.HealthChecker {
	checks := map[string]api.HealthChecker{"database": a.db}
	if a.mqtt != nil {
		checks["mqtt"] = a.mqtt
	}
	if a.influx != nil {
		checks["influxdb"] = a.influx
	}
	return checks
}

// Run starts the controller and the API server and blocks until ctx is
// cancelled. The server stops accepting requests before the controller
// cancels its current mission and drains its sinks.
func (a *App) Run(ctx context.Context) error {
	serverStopped := make(chan struct{})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(serverStopped)
		if err := a.Server.Start(gctx); err != nil {
			return fmt.Errorf("starting API server: %w", err)
		}
		<-gctx.Done()
		return a.Server.Close()
	})

	g.Go(func() error {
		a.Controller.Start(gctx)
		a.log.Info("mission controller started", "active", a.Controller.Active())
		<-gctx.Done()
		<-serverStopped
		a.log.Info("stopping mission controller")
		a.Controller.Stop()
		return nil
	})

	a.log.Info("initialisation complete, waiting for shutdown signal")
	return g.Wait()
}

// Close releases connections in reverse order of acquisition. It is safe
// to call more than once.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *App) onClose(name string, closeFn func() error) {
	a.closers = append(a.closers, func() {
		a.log.Info("closing " + name)
		if err := closeFn(); err != nil {
			a.log.Error("error closing "+name, "error", err)
		}
	})
}
