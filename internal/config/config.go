// Package config loads the daemon configuration from a YAML file.
// Every field has a default, so an empty or missing file yields the
// reference board setup.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"time"

	yaml "go.yaml.in/yaml/v3"

	"github.com/sweeney/amp-sequencer/internal/gpio"
	"github.com/sweeney/amp-sequencer/internal/logging"
	"github.com/sweeney/amp-sequencer/internal/sequencer"
	"github.com/sweeney/amp-sequencer/internal/tick"
)

// Defaults.
const (
	DefaultStepPeriod = 100 * time.Millisecond
	DefaultBroker     = "tcp://192.168.1.200:1883"
	DefaultClientID   = "amp-sequencer"
	DefaultHeartbeat  = 15 * time.Minute
	DefaultHTTPAddr   = ":80"
)

// File is the on-disk layout. Durations are strings ("100ms", "15m").
type File struct {
	GPIO      GPIOFile      `yaml:"gpio"`
	Sequencer SequencerFile `yaml:"sequencer"`
	MQTT      MQTTFile      `yaml:"mqtt"`
	HTTP      *string       `yaml:"http"`
	Heartbeat string        `yaml:"heartbeat"`
	Log       LogFile       `yaml:"log"`
}

type GPIOFile struct {
	Chip             string `yaml:"chip"`
	Neutral          *int   `yaml:"neutral"`
	LiveResistor     *int   `yaml:"live_resistor"`
	Live             *int   `yaml:"live"`
	Speaker          *int   `yaml:"speaker"`
	LED              *int   `yaml:"led"`
	Button           *int   `yaml:"button"`
	SpeakerActiveLow *bool  `yaml:"speaker_active_low"`
}

type SequencerFile struct {
	StepPeriod         string `yaml:"step_period"`
	LiveResistorSteps  uint32 `yaml:"live_resistor_steps"`
	PrechargeSteps     uint32 `yaml:"precharge_steps"`
	ShutdownBlinkSteps uint32 `yaml:"shutdown_blink_steps"`
	SettleDelay        string `yaml:"settle_delay"`
}

type MQTTFile struct {
	Broker   *string `yaml:"broker"`
	ClientID string  `yaml:"client_id"`
}

type LogFile struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// maxTickDuration is the longest period that still fits a uint32 tick count.
const maxTickDuration = time.Duration(math.MaxUint32) * tick.Period

// Config is the resolved configuration.
type Config struct {
	Lines      gpio.Lines
	Sequencer  sequencer.Config
	StepPeriod time.Duration
	Broker     string // empty disables MQTT
	ClientID   string
	HTTPAddr   string // empty disables the status server
	Heartbeat  time.Duration
	Log        logging.Config
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Lines:      gpio.DefaultLines(),
		Sequencer:  sequencer.DefaultConfig(),
		StepPeriod: DefaultStepPeriod,
		Broker:     DefaultBroker,
		ClientID:   DefaultClientID,
		HTTPAddr:   DefaultHTTPAddr,
		Heartbeat:  DefaultHeartbeat,
		Log:        logging.Config{Level: "info", Format: "console"},
	}
}

// Load reads path. An empty path returns Default().
func Load(path string) (Config, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML, rejecting unknown keys, applies defaults and validates.
func Parse(data []byte) (Config, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("yaml decode: %w", err)
	}

	cfg, err := f.resolve()
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (f File) resolve() (Config, error) {
	cfg := Default()

	g := f.GPIO
	if g.Chip != "" {
		cfg.Lines.Chip = g.Chip
	}
	setInt(&cfg.Lines.Neutral, g.Neutral)
	setInt(&cfg.Lines.LiveResistor, g.LiveResistor)
	setInt(&cfg.Lines.Live, g.Live)
	setInt(&cfg.Lines.Speaker, g.Speaker)
	setInt(&cfg.Lines.LED, g.LED)
	setInt(&cfg.Lines.Button, g.Button)
	if g.SpeakerActiveLow != nil {
		cfg.Lines.SpeakerActiveLow = *g.SpeakerActiveLow
	}

	s := f.Sequencer
	var err error
	if cfg.StepPeriod, err = ParseDurationOrDefault("sequencer.step_period", s.StepPeriod, DefaultStepPeriod); err != nil {
		return Config{}, err
	}
	if s.LiveResistorSteps > 0 {
		cfg.Sequencer.LiveResistorSteps = s.LiveResistorSteps
	}
	if s.PrechargeSteps > 0 {
		cfg.Sequencer.PrechargeSteps = s.PrechargeSteps
	}
	if s.ShutdownBlinkSteps > 0 {
		cfg.Sequencer.ShutdownBlinkSteps = s.ShutdownBlinkSteps
	}
	if strings.TrimSpace(s.SettleDelay) != "" {
		if cfg.Sequencer.SettleDelay, err = ParseDurationField("sequencer.settle_delay", s.SettleDelay); err != nil {
			return Config{}, err
		}
	}

	if f.MQTT.Broker != nil {
		cfg.Broker = strings.TrimSpace(*f.MQTT.Broker)
	}
	if f.MQTT.ClientID != "" {
		cfg.ClientID = f.MQTT.ClientID
	}
	if f.HTTP != nil {
		cfg.HTTPAddr = strings.TrimSpace(*f.HTTP)
	}
	if strings.TrimSpace(f.Heartbeat) != "" {
		if cfg.Heartbeat, err = ParseDurationField("heartbeat", f.Heartbeat); err != nil {
			return Config{}, err
		}
	}

	if f.Log.Level != "" {
		cfg.Log.Level = f.Log.Level
	}
	if f.Log.Format != "" {
		cfg.Log.Format = f.Log.Format
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	var errs []error
	if err := c.Lines.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Sequencer.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("sequencer: %w", err))
	}
	if c.StepPeriod < 10*tick.Period || c.StepPeriod%tick.Period != 0 {
		errs = append(errs, fmt.Errorf("sequencer.step_period %v: must be a whole number of ms, at least 10ms", c.StepPeriod))
	}
	if c.StepPeriod > maxTickDuration {
		errs = append(errs, fmt.Errorf("sequencer.step_period %v: must be at most %v", c.StepPeriod, maxTickDuration))
	}
	if c.Sequencer.SettleDelay*2 > c.StepPeriod {
		errs = append(errs, fmt.Errorf("sequencer.settle_delay %v: must be at most half of step_period", c.Sequencer.SettleDelay))
	}
	if c.Heartbeat != 0 && c.Heartbeat < time.Second {
		errs = append(errs, fmt.Errorf("heartbeat %v: must be 0 (disabled) or at least 1s", c.Heartbeat))
	}
	if c.Heartbeat > maxTickDuration {
		errs = append(errs, fmt.Errorf("heartbeat %v: must be at most %v", c.Heartbeat, maxTickDuration))
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if _, err := logging.ParseFormat(c.Log.Format); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// StepTicks returns the sequencer period in scheduler ticks.
func (c Config) StepTicks() uint32 {
	return uint32(c.StepPeriod / tick.Period)
}

// HeartbeatTicks returns the heartbeat period in scheduler ticks (0 = disabled).
func (c Config) HeartbeatTicks() uint32 {
	return uint32(c.Heartbeat / tick.Period)
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}
