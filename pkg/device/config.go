// Package device assembles a vault host from configuration.
package device

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/robotalks/pinvault/pkg/display"
	"github.com/robotalks/pinvault/pkg/pin"
)

// LED display settings.
const (
	LEDNone  = "none"
	LEDLog   = "log"
	LEDSysfs = "sysfs:"
)

// Config provides the options to run a vault device.
type Config struct {
	// ID identifies the device in events, the machine ID by default.
	ID string
	// Listen is the stream URL operators connect to.
	// e.g. serial:///dev/ttyUSB0, tcp://:7070, ws://:8080/vault, stdio:
	Listen string
	// LED selects the display: none, log or sysfs:<name>.
	LED string
	// EventsURL is the MQTT broker to publish events to, none if empty.
	// e.g. mqtt://host:port/topic-prefix
	EventsURL string

	DigitMin int
	DigitMax int

	PulseOn  time.Duration
	PulseOff time.Duration
	PulseGap time.Duration

	// ConfigFile is a TOML file loaded by Load.
	ConfigFile string
}

var defaultConfig = Config{
	Listen:   "stdio:",
	LED:      LEDLog,
	DigitMin: int(pin.DefaultRange.Min),
	DigitMax: int(pin.DefaultRange.Max),
	PulseOn:  display.DefaultTiming.On,
	PulseOff: display.DefaultTiming.Off,
	PulseGap: display.DefaultTiming.Gap,
}

func init() {
	if err := defaultConfig.applyEnv(os.Getenv); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	if defaultConfig.ID == "" {
		defaultConfig.ID = DeviceID()
	}
}

func (c *Config) applyEnv(getenv func(string) string) error {
	strs := map[string]*string{
		"VAULT_ID":         &c.ID,
		"VAULT_LISTEN":     &c.Listen,
		"VAULT_LED":        &c.LED,
		"VAULT_EVENTS_URL": &c.EventsURL,
		"VAULT_CONFIG":     &c.ConfigFile,
	}
	for name, ptr := range strs {
		if val := getenv(name); val != "" {
			*ptr = val
		}
	}
	ints := map[string]*int{
		"VAULT_DIGIT_MIN": &c.DigitMin,
		"VAULT_DIGIT_MAX": &c.DigitMax,
	}
	for name, ptr := range ints {
		if val := getenv(name); val != "" {
			n, err := strconv.Atoi(val)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			*ptr = n
		}
	}
	durations := map[string]*time.Duration{
		"VAULT_PULSE_ON":  &c.PulseOn,
		"VAULT_PULSE_OFF": &c.PulseOff,
		"VAULT_PULSE_GAP": &c.PulseGap,
	}
	for name, ptr := range durations {
		if val := getenv(name); val != "" {
			d, err := time.ParseDuration(val)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			*ptr = d
		}
	}
	return nil
}

// flagOverrides copies an explicitly set flag from defaultConfig.
var flagOverrides = map[string]func(*Config){
	"id":        func(c *Config) { c.ID = defaultConfig.ID },
	"listen":    func(c *Config) { c.Listen = defaultConfig.Listen },
	"led":       func(c *Config) { c.LED = defaultConfig.LED },
	"events":    func(c *Config) { c.EventsURL = defaultConfig.EventsURL },
	"digit-min": func(c *Config) { c.DigitMin = defaultConfig.DigitMin },
	"digit-max": func(c *Config) { c.DigitMax = defaultConfig.DigitMax },
	"pulse-on":  func(c *Config) { c.PulseOn = defaultConfig.PulseOn },
	"pulse-off": func(c *Config) { c.PulseOff = defaultConfig.PulseOff },
	"pulse-gap": func(c *Config) { c.PulseGap = defaultConfig.PulseGap },
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.ID, "id", defaultConfig.ID, "Device ID")
	flag.StringVar(&defaultConfig.Listen, "listen", defaultConfig.Listen, "Stream URL to serve operators on")
	flag.StringVar(&defaultConfig.LED, "led", defaultConfig.LED, "PIN display: none, log or sysfs:<name>")
	flag.StringVar(&defaultConfig.EventsURL, "events", defaultConfig.EventsURL, "MQTT broker URL for events")
	flag.IntVar(&defaultConfig.DigitMin, "digit-min", defaultConfig.DigitMin, "Smallest PIN digit")
	flag.IntVar(&defaultConfig.DigitMax, "digit-max", defaultConfig.DigitMax, "Largest PIN digit")
	flag.DurationVar(&defaultConfig.PulseOn, "pulse-on", defaultConfig.PulseOn, "LED on time per pulse")
	flag.DurationVar(&defaultConfig.PulseOff, "pulse-off", defaultConfig.PulseOff, "LED off time per pulse")
	flag.DurationVar(&defaultConfig.PulseGap, "pulse-gap", defaultConfig.PulseGap, "Pause between digits")
	flag.StringVar(&defaultConfig.ConfigFile, "config", defaultConfig.ConfigFile, "TOML config file")
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// Load creates a Config from the defaults and env, then the file named by
// ConfigFile, then the command line flags which are set explicitly.
func Load() (*Config, error) {
	conf := NewConfig()
	if conf.ConfigFile == "" {
		return conf, nil
	}
	if err := conf.LoadFile(conf.ConfigFile); err != nil {
		return nil, err
	}
	flag.Visit(func(f *flag.Flag) {
		if override, ok := flagOverrides[f.Name]; ok {
			override(conf)
		}
	})
	return conf, nil
}

type fileConfig struct {
	ID        string `toml:"id"`
	Listen    string `toml:"listen"`
	LED       string `toml:"led"`
	EventsURL string `toml:"events_url"`
	DigitMin  int    `toml:"digit_min"`
	DigitMax  int    `toml:"digit_max"`
	PulseOn   string `toml:"pulse_on"`
	PulseOff  string `toml:"pulse_off"`
	PulseGap  string `toml:"pulse_gap"`
}

// LoadFile merges the keys defined in a TOML file.
func (c *Config) LoadFile(path string) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if keys := meta.Undecoded(); len(keys) > 0 {
		return fmt.Errorf("load config: unknown key %q", keys[0].String())
	}
	strs := map[string]struct{ dst, val *string }{
		"id":         {&c.ID, &raw.ID},
		"listen":     {&c.Listen, &raw.Listen},
		"led":        {&c.LED, &raw.LED},
		"events_url": {&c.EventsURL, &raw.EventsURL},
	}
	for key, f := range strs {
		if meta.IsDefined(key) {
			*f.dst = strings.TrimSpace(*f.val)
		}
	}
	if meta.IsDefined("digit_min") {
		c.DigitMin = raw.DigitMin
	}
	if meta.IsDefined("digit_max") {
		c.DigitMax = raw.DigitMax
	}
	durations := map[string]struct {
		dst *time.Duration
		val string
	}{
		"pulse_on":  {&c.PulseOn, raw.PulseOn},
		"pulse_off": {&c.PulseOff, raw.PulseOff},
		"pulse_gap": {&c.PulseGap, raw.PulseGap},
	}
	for key, f := range durations {
		if !meta.IsDefined(key) {
			continue
		}
		d, err := time.ParseDuration(strings.TrimSpace(f.val))
		if err != nil {
			return fmt.Errorf("parse %s: %w", key, err)
		}
		*f.dst = d
	}
	return nil
}

// Range returns the PIN digit range.
func (c *Config) Range() pin.Range {
	return pin.Range{Min: uint8(c.DigitMin), Max: uint8(c.DigitMax)}
}

// Timing returns the display timing.
func (c *Config) Timing() display.Timing {
	return display.Timing{On: c.PulseOn, Off: c.PulseOff, Gap: c.PulseGap}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen URL must be specified")
	}
	if c.DigitMin < 0 || c.DigitMax < 0 || c.DigitMin > 9 || c.DigitMax > 9 {
		return fmt.Errorf("digit range %d..%d: %w", c.DigitMin, c.DigitMax, pin.ErrInvalidRange)
	}
	if err := c.Range().Validate(); err != nil {
		return err
	}
	if c.PulseOn < 0 || c.PulseOff < 0 || c.PulseGap < 0 {
		return fmt.Errorf("pulse timings must not be negative")
	}
	switch {
	case c.LED == "", c.LED == LEDNone, c.LED == LEDLog:
	case strings.HasPrefix(c.LED, LEDSysfs) && len(c.LED) > len(LEDSysfs):
	default:
		return fmt.Errorf("unknown LED %q", c.LED)
	}
	return nil
}
