package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lampd/internal/cloud"
	"github.com/dokzlo13/lampd/internal/config"
	"github.com/dokzlo13/lampd/internal/db"
	"github.com/dokzlo13/lampd/internal/device"
	"github.com/dokzlo13/lampd/internal/eventbus"
	"github.com/dokzlo13/lampd/internal/lampsync"
	"github.com/dokzlo13/lampd/internal/ledger"
	"github.com/dokzlo13/lampd/internal/preview"
	"github.com/dokzlo13/lampd/internal/script"
	"github.com/dokzlo13/lampd/internal/ticker"
	"github.com/dokzlo13/lampd/internal/ui"
)

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg *config.Config

	// Core infrastructure
	DB       *db.DB
	Ledger   *ledger.Ledger
	Recorder *LedgerRecorder
	Bus      *eventbus.Bus

	// Lamp endpoints
	Cloud      *cloud.Client
	HTTPDevice *device.HTTPNotifier
	MQTTDevice *device.MQTTNotifier

	// Sync and presentation
	Engine  *lampsync.Engine
	Script  *script.Runtime
	UI      *ui.Server
	Console *preview.Console

	wg sync.WaitGroup
}

// NewServices creates all services with proper dependency injection.
func NewServices(cfg *config.Config) (*Services, error) {
	s := &Services{cfg: cfg}

	if cfg.Ledger.Enabled {
		database, err := db.Open(cfg.Database.Path)
		if err != nil {
			return nil, err
		}
		s.DB = database
		s.Ledger = ledger.New(database.DB)
		s.Recorder = NewLedgerRecorder(s.Ledger)
	}

	s.Bus = eventbus.NewWithConfig(cfg.EventBus.GetWorkers(), cfg.EventBus.GetQueueSize())

	tokens := &cloud.ClientCredentials{
		TokenURL:     cfg.Cloud.TokenURL,
		ClientID:     cfg.Cloud.ClientID,
		ClientSecret: cfg.Cloud.ClientSecret,
		Audience:     cfg.Cloud.Audience,
	}
	httpClient := &http.Client{Timeout: cfg.Cloud.Timeout.Duration()}
	s.Cloud = cloud.NewClient(cfg.Cloud.APIURL, tokens, httpClient, cfg.Cloud.RateLimitRPS)

	notifier, err := s.newNotifier()
	if err != nil {
		s.Close()
		return nil, err
	}

	deps := lampsync.Deps{
		Cloud:     cloud.NewProperty(s.Cloud, cfg.Cloud.ThingID, cfg.Cloud.PropertyID, cfg.Cloud.DeviceID),
		Notifier:  notifier,
		Presenter: eventbus.NewPresenter(s.Bus),
		Ticker:    ticker.NewPausable(cfg.Sync.PollInterval.Duration()),
	}
	if s.Recorder != nil {
		deps.Recorder = s.Recorder
	}
	s.Engine = lampsync.New(deps)

	if cfg.Script != "" {
		s.Script = script.NewRuntime(s.Engine.UserEdit)
		if err := s.Script.LoadFile(cfg.Script); err != nil {
			s.Close()
			return nil, err
		}
	}

	if cfg.UI.Enabled {
		s.UI = ui.NewServer(ui.Deps{
			Host:           cfg.UI.Host,
			Port:           cfg.UI.Port,
			Engine:         s.Engine,
			CoalesceWindow: cfg.UI.CoalesceWindow.Duration(),
		})
	}

	if cfg.UI.Console {
		s.Console = preview.NewConsole(os.Stdout)
	}

	return s, nil
}

// newNotifier builds the device fan-out from the configured endpoints.
func (s *Services) newNotifier() (device.Notifier, error) {
	var notifiers device.Multi

	if s.cfg.Device.Address != "" {
		s.HTTPDevice = device.NewHTTPNotifier(s.cfg.Device.Address, s.cfg.Device.Timeout.Duration())
		notifiers = append(notifiers, s.HTTPDevice)
	}

	if s.cfg.MQTT.Enabled {
		mqttDevice, err := device.ConnectMQTT(device.MQTTOptions{
			Broker:      s.cfg.MQTT.Broker,
			ClientID:    s.cfg.MQTT.ClientID,
			Username:    s.cfg.MQTT.Username,
			Password:    s.cfg.MQTT.Password,
			TopicPrefix: s.cfg.MQTT.TopicPrefix,
			DeviceID:    s.cfg.Cloud.DeviceID,
		})
		if err != nil {
			return nil, err
		}
		s.MQTTDevice = mqttDevice
		notifiers = append(notifiers, s.MQTTDevice)
	}

	if len(notifiers) == 0 {
		log.Warn().Msg("No device endpoint configured, colors will only sync to the cloud")
		return device.Nop{}, nil
	}
	return notifiers, nil
}

// subscribe wires presentation subscribers to the bus.
func (s *Services) subscribe(ctx context.Context) {
	if s.UI != nil {
		s.Bus.SubscribeAll(s.UI.HandleEvent)
	}
	if s.Console != nil {
		s.Bus.SubscribeAll(func(e eventbus.Event) { s.Console.Show(e.Color) })
	}
	if s.Script != nil {
		s.Bus.Subscribe(eventbus.EventTypeColorInitialized, func(e eventbus.Event) { s.Script.OnInit(ctx, e.Color) })
		s.Bus.Subscribe(eventbus.EventTypeColorChanged, func(e eventbus.Event) { s.Script.OnChange(ctx, e.Color) })
	}
	s.Bus.SubscribeAll(func(e eventbus.Event) {
		log.Debug().Str("event_type", string(e.Type)).Str("color", e.Color.Hex()).Msg("Color presented")
	})
}

// Start starts all services in the correct order.
// The onFatalError callback is called when a service cannot keep running.
func (s *Services) Start(ctx context.Context, onFatalError func(error)) error {
	s.subscribe(ctx)

	if s.Script != nil {
		s.goRun(func() { s.Script.Run(ctx) })
	}

	if s.Recorder != nil {
		s.goRun(func() { s.Recorder.Run(ctx) })
		s.goRun(func() {
			runLedgerCleanup(ctx, s.Ledger,
				time.Duration(s.cfg.Ledger.RetentionDays)*24*time.Hour,
				s.cfg.Ledger.CleanupInterval.Duration())
		})
	}

	s.goRun(func() {
		if err := s.Engine.Run(ctx); err != nil {
			onFatalError(err)
		}
	})

	if s.UI != nil {
		s.goRun(func() {
			if err := s.UI.Run(ctx, s.cfg.ShutdownTimeout.Duration()); err != nil {
				onFatalError(err)
			}
		})
	}

	log.Info().
		Str("thing", s.cfg.Cloud.ThingID).
		Str("property", s.cfg.Cloud.PropertyID).
		Dur("poll_interval", s.cfg.Sync.PollInterval.Duration()).
		Msg("Services started")
	return nil
}

func (s *Services) goRun(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

// Stop waits for background services to exit, then releases resources.
// The context passed to Start must already be cancelled.
func (s *Services) Stop(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = errors.New("timed out waiting for services to stop")
		log.Warn().Err(err).Msg("Shutdown incomplete")
	}

	s.Bus.Close(ctx)
	s.Close()
	return err
}

// Close releases all resources.
func (s *Services) Close() {
	if s.Script != nil {
		s.Script.Close()
	}
	if s.Bus != nil {
		s.Bus.Close(context.Background())
	}
	if s.MQTTDevice != nil {
		s.MQTTDevice.Close()
	}
	if s.HTTPDevice != nil {
		s.HTTPDevice.Close()
	}
	if s.Cloud != nil {
		s.Cloud.Close()
	}
	if s.DB != nil {
		s.DB.Close()
	}
}
