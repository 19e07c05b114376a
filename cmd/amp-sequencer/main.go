// Command amp-sequencer drives the amplifier power relays from a push button
// and publishes power state changes to MQTT.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/sweeney/amp-sequencer/internal/config"
	"github.com/sweeney/amp-sequencer/internal/gpio"
	"github.com/sweeney/amp-sequencer/internal/logging"
	"github.com/sweeney/amp-sequencer/internal/mqtt"
	"github.com/sweeney/amp-sequencer/internal/scheduler"
	"github.com/sweeney/amp-sequencer/internal/sdnotify"
	"github.com/sweeney/amp-sequencer/internal/sequencer"
	"github.com/sweeney/amp-sequencer/internal/status"
	"github.com/sweeney/amp-sequencer/internal/tick"
	"github.com/sweeney/amp-sequencer/internal/web"
)

// queueSize bounds pending MQTT events; a power cycle produces about eight.
const queueSize = 64

type options struct {
	configPath string
	broker     string
	httpAddr   string
	logLevel   string
	printState bool
	set        map[string]bool // flags given on the command line
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "YAML config file (empty for built-in defaults)")
	flag.StringVar(&opts.broker, "broker", config.DefaultBroker, "MQTT broker address (empty to disable)")
	flag.StringVar(&opts.httpAddr, "http", config.DefaultHTTPAddr, "HTTP status address (empty to disable)")
	flag.StringVar(&opts.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.BoolVar(&opts.printState, "print-state", false, "Print the button state and exit")
	flag.Parse()

	opts.set = map[string]bool{}
	flag.Visit(func(f *flag.Flag) { opts.set[f.Name] = true })

	boot := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	cfg, err := loadConfig(opts)
	if err != nil {
		boot.Fatal().Err(err).Msg("config")
	}
	if err := run(cfg, opts.printState); err != nil {
		boot.Fatal().Err(err).Msg("fatal")
	}
}

// loadConfig reads the config file and applies command-line overrides.
// Flags only win when given explicitly.
func loadConfig(opts options) (config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if opts.set["broker"] {
		cfg.Broker = opts.broker
	}
	if opts.set["http"] {
		cfg.HTTPAddr = opts.httpAddr
	}
	if opts.set["log-level"] {
		cfg.Log.Level = opts.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func run(cfg config.Config, printState bool) error {
	log, err := logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}

	hw, err := gpio.NewRealIO(cfg.Lines, log)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer hw.Close()

	if printState {
		fmt.Printf("button: %s\n", buttonString(hw.ReadButton()))
		return nil
	}

	seq := sequencer.New(cfg.Sequencer, hw, sequencer.SleepDelayer{})
	seq.Reset()

	tracker := status.NewTracker(time.Now(), statusConfig(cfg))
	notifier := sdnotify.New(log)

	a := &app{
		seq:     seq,
		sched:   scheduler.New(),
		counter: &tick.Counter{},
		tracker: tracker,
		log:     log,
		now:     time.Now,
	}

	var publisher *mqtt.RealPublisher
	if cfg.Broker != "" {
		publisher = mqtt.NewRealPublisher(cfg.Broker, cfg.ClientID, log)
		a.conn = publisher
		a.queue = mqtt.NewQueue(publisher, queueSize, log)
	} else {
		log.Warn().Msg("mqtt disabled")
	}

	wd := notifier.WatchdogInterval()
	if wd > 0 {
		a.pinger = notifier
	}
	if err := a.register(cfg, wd); err != nil {
		return err
	}

	// Registration is closed from here on.
	src := tick.NewSource(a.counter, a.sched.ISR(), tick.Period)
	tickCtx, stopTicks := context.WithCancel(context.Background())
	defer stopTicks()
	go src.Run(tickCtx)

	queueCtx, stopQueue := context.WithCancel(context.Background())
	queueDone := make(chan struct{})
	if a.queue != nil {
		go func() {
			a.queue.Run(queueCtx)
			close(queueDone)
		}()
	} else {
		close(queueDone)
	}

	if cfg.HTTPAddr != "" {
		srv := web.New(cfg.HTTPAddr, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("http server error")
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			srv.Shutdown(ctx)
		}()
		log.Info().Str("addr", cfg.HTTPAddr).Msg("http status server listening")
	}

	a.publishSystem(mqtt.EventStartup, "", true)
	notifier.Ready()
	log.Info().
		Dur("step", cfg.StepPeriod).
		Uint32("live_resistor_steps", cfg.Sequencer.LiveResistorSteps).
		Uint32("precharge_steps", cfg.Sequencer.PrechargeSteps).
		Uint32("shutdown_blink_steps", cfg.Sequencer.ShutdownBlinkSteps).
		Str("broker", cfg.Broker).
		Dur("heartbeat", cfg.Heartbeat).
		Dur("watchdog", wd).
		Msg("started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	reason := a.runLoop(context.Background(), sigCh)

	notifier.Stopping()
	stopTicks()
	a.shutdown(reason)

	stopQueue()
	<-queueDone
	if publisher != nil {
		publisher.Close()
	}
	return nil
}

func statusConfig(cfg config.Config) status.Config {
	return status.Config{
		StepMs:             cfg.StepPeriod.Milliseconds(),
		LiveResistorSteps:  cfg.Sequencer.LiveResistorSteps,
		PrechargeSteps:     cfg.Sequencer.PrechargeSteps,
		ShutdownBlinkSteps: cfg.Sequencer.ShutdownBlinkSteps,
		SettleMs:           cfg.Sequencer.SettleDelay.Milliseconds(),
		HeartbeatMs:        cfg.Heartbeat.Milliseconds(),
		Broker:             cfg.Broker,
		HTTPPort:           cfg.HTTPAddr,
	}
}

func buttonString(raw bool) string {
	if raw {
		return "released"
	}
	return "pressed"
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	default:
		return "UNKNOWN"
	}
}
