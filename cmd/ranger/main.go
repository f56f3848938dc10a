package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"sonar-ranger/internal/config"
	"sonar-ranger/internal/database/influx"
	"sonar-ranger/internal/database/postgres"
	"sonar-ranger/internal/database/postgres/repositories"
	"sonar-ranger/internal/gpio"
	"sonar-ranger/internal/logger"
	"sonar-ranger/internal/metrics"
	"sonar-ranger/internal/models"
	"sonar-ranger/internal/mqtt"
	"sonar-ranger/internal/mqtt/handlers"
	"sonar-ranger/internal/sampler"
	"sonar-ranger/internal/server"
	"sonar-ranger/internal/sonar"
)

type Application struct {
	config *config.Config

	gpioBackend gpio.Backend
	sensors     []*sonar.RangeSensor
	samplers    []*sampler.Sampler

	postgresDB       *postgres.PostgresDB
	influxDB         *influx.InfluxDB
	sensorRepository *repositories.SensorRepository
	readingWriter    *influx.ReadingWriter

	mqttClient     *mqtt.Client
	topicManager   *mqtt.TopicManager
	publisher      *mqtt.Publisher
	commandHandler *handlers.CommandHandler

	metrics    *metrics.Metrics
	httpServer *server.Server

	wg           sync.WaitGroup
	shutdownChan chan os.Signal
	ctx          context.Context
	cancelFunc   context.CancelFunc
}

func main() {
	app := &Application{}

	if err := app.initialize(); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize application")
	}

	if err := app.run(); err != nil {
		log.Fatal().Err(err).Msg("Failed to run application")
	}
}

func (app *Application) initialize() error {
	var err error

	app.config, err = config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %v", err)
	}

	logger.NewLogger(app.config.Logger)
	log.Info().
		Str("component", "main").
		Str("version", app.config.Service.Version).
		Msg("Setting up service...")

	app.ctx, app.cancelFunc = context.WithCancel(context.Background())
	app.shutdownChan = make(chan os.Signal, 1)
	signal.Notify(app.shutdownChan, syscall.SIGINT, syscall.SIGTERM)

	app.metrics = metrics.New()

	if err := app.initializeHardware(); err != nil {
		return fmt.Errorf("error while initializing hardware: %w", err)
	}

	if err := app.initializeDatabases(); err != nil {
		return fmt.Errorf("error while initializing databases: %w", err)
	}

	if err := app.initializeMQTT(); err != nil {
		return fmt.Errorf("error while initializing MQTT: %w", err)
	}

	if err := app.registerSensors(); err != nil {
		return fmt.Errorf("error while registering sensors: %w", err)
	}

	if err := app.initializeSamplers(); err != nil {
		return fmt.Errorf("error while initializing samplers: %w", err)
	}

	if err := app.setupCommandHandlers(); err != nil {
		return fmt.Errorf("error while setting up command handlers: %w", err)
	}

	app.httpServer = server.New(
		app.config.HTTP,
		app.mqttClient,
		app.influxDB,
		app.metrics,
		logger.GetLogger("http-server"),
	)

	log.Info().Msg("Successfully initialized application")
	return nil
}

func (app *Application) initializeHardware() error {
	var err error

	app.gpioBackend, err = gpio.NewBackend(app.config.Sonar, logger.GetLogger("gpio"))
	if err != nil {
		return fmt.Errorf("could not create GPIO backend: %w", err)
	}

	for _, spec := range app.config.Sonar.Sensors {
		sensor, err := sonar.NewRangeSensor(sonar.Config{
			Name:        spec.Name,
			TriggerLine: spec.TriggerLine,
			EchoLine:    spec.EchoLine,
			MinRange:    spec.MinRange,
			MaxRange:    spec.MaxRange,
			FieldOfView: spec.FieldOfView,
		}, app.gpioBackend, sonar.SystemClock{})
		if err != nil {
			return fmt.Errorf("sensor %q: %w", spec.Name, err)
		}

		if err := sensor.InitHardware(); err != nil {
			return fmt.Errorf("sensor %q: %w", spec.Name, err)
		}

		app.sensors = append(app.sensors, sensor)

		log.Info().
			Str("component", "main").
			Str("sensor", sensor.Name()).
			Str("trigger", sensor.TriggerLine()).
			Str("echo", sensor.EchoLine()).
			Dur("max_wait", sensor.MaxWait()).
			Msg("Sensor initialized")
	}

	return nil
}

func (app *Application) initializeDatabases() error {
	var err error

	app.postgresDB, err = postgres.NewConnection(app.config.Postgres)
	if err != nil {
		return fmt.Errorf("could not connect to PostgreSQL: %w", err)
	}

	app.influxDB, err = influx.NewConnection(&app.config.InfluxDB)
	if err != nil {
		return fmt.Errorf("could not connect to InfluxDB: %w", err)
	}

	app.sensorRepository = repositories.NewSensorRepository(app.postgresDB.GetDB())
	app.readingWriter = influx.NewReadingWriter(
		app.influxDB.GetWriteAPI(),
		logger.GetLogger("reading-writer"),
	)

	log.Info().
		Str("component", "main").
		Str("host", app.config.Postgres.Host).
		Msg("Successfully initialized databases")
	return nil
}

func (app *Application) initializeMQTT() error {
	var err error

	app.topicManager = mqtt.NewTopicManager(app.config.MQTT.BaseTopic)

	app.mqttClient, err = mqtt.NewClient(&app.config.MQTT, logger.GetLogger("mqtt-client"))
	if err != nil {
		return fmt.Errorf("could not create MQTT client: %w", err)
	}

	connectCtx, cancel := context.WithTimeout(app.ctx, 30*time.Second)
	defer cancel()

	if err := app.mqttClient.Connect(connectCtx); err != nil {
		return fmt.Errorf("could not connect to MQTT broker: %w", err)
	}

	app.publisher = mqtt.NewPublisher(
		app.mqttClient,
		app.topicManager,
		app.config.Service.Name,
		logger.GetLogger("publisher"),
	)

	log.Info().
		Str("component", "main").
		Msg("Successfully initialized MQTT client")

	return nil
}

func (app *Application) registerSensors() error {
	registerCtx, cancel := context.WithTimeout(app.ctx, 10*time.Second)
	defer cancel()

	for _, sensor := range app.sensors {
		var fov *float64
		if rad, ok := sensor.FieldOfView(); ok {
			fov = &rad
		}

		entry := &models.SonarSensor{
			Name:           sensor.Name(),
			TriggerLine:    sensor.TriggerLine(),
			EchoLine:       sensor.EchoLine(),
			MinRangeM:      sensor.MinRange(),
			MaxRangeM:      sensor.MaxRange(),
			FieldOfViewRad: fov,
		}

		if err := app.sensorRepository.CreateOrUpdate(registerCtx, entry); err != nil {
			return fmt.Errorf("could not register sensor %q: %w", sensor.Name(), err)
		}
	}

	log.Info().
		Str("component", "main").
		Int("sensors", len(app.sensors)).
		Msg("Sensors registered")
	return nil
}

func (app *Application) initializeSamplers() error {
	for _, sensor := range app.sensors {
		s := sampler.New(
			sensor,
			app.config.Sampler.Interval,
			app.publisher,
			app.readingWriter,
			app.sensorRepository,
			app.metrics,
			logger.GetLogger("sampler"),
		)
		app.samplers = append(app.samplers, s)
	}

	return nil
}

func (app *Application) setupCommandHandlers() error {
	if !app.config.Sampler.CommandsEnabled {
		log.Info().Msg("Sampling commands disabled")
		return nil
	}

	app.commandHandler = handlers.NewCommandHandler(
		app.topicManager,
		logger.GetLogger("command-handler"),
	)
	for i, sensor := range app.sensors {
		app.commandHandler.Register(sensor.Name(), app.samplers[i])
	}

	commandTopic := app.topicManager.GetCommandSubTopic()
	if err := app.mqttClient.Subscribe(commandTopic, app.commandHandler.HandleMessage); err != nil {
		return fmt.Errorf("error subscribing to command topic: %w", err)
	}

	return nil
}

func (app *Application) run() error {
	for _, s := range app.samplers {
		app.wg.Add(1)
		go func(s *sampler.Sampler) {
			defer app.wg.Done()
			s.Run(app.ctx)
		}(s)
	}

	app.wg.Add(1)
	go app.runJanitor()

	app.httpServer.Start()

	select {
	case sig := <-app.shutdownChan:
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	case <-app.ctx.Done():
		log.Info().Msg("context cancelled, shutting down application")
	}

	return app.shutdown()
}

// runJanitor deactivates registry entries for sensors that stopped
// producing readings.
func (app *Application) runJanitor() {
	defer app.wg.Done()

	ticker := time.NewTicker(app.config.Service.JanitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-app.ctx.Done():
			return
		case <-ticker.C:
			janitorCtx, cancel := context.WithTimeout(app.ctx, 10*time.Second)
			err := app.sensorRepository.MarkInactiveSensors(
				janitorCtx, app.config.Service.SensorTimeoutDuration)
			cancel()
			if err != nil {
				log.Warn().Err(err).Msg("Could not mark inactive sensors")
			}
		}
	}
}

func (app *Application) shutdown() error {
	app.cancelFunc()
	app.wg.Wait()

	if app.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := app.httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Error shutting down HTTP server")
		}
		cancel()
	}

	if app.mqttClient != nil {
		app.mqttClient.Disconnect()
	}

	if app.influxDB != nil {
		app.influxDB.Close()
	}

	if app.postgresDB != nil {
		if err := app.postgresDB.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing PostgreSQL connection")
		}
	}

	for _, sensor := range app.sensors {
		if err := sensor.Close(); err != nil {
			log.Warn().Err(err).Str("sensor", sensor.Name()).Msg("Error releasing sensor lines")
		}
	}

	if app.gpioBackend != nil {
		if err := app.gpioBackend.Close(); err != nil {
			log.Warn().Err(err).Msg("Error closing GPIO backend")
		}
	}

	return nil
}
