package coinsig

/*------------------------------------------------------------------
 *
 * Purpose:	Read the configuration file.
 *
 * Description:	YAML, all sections optional.  Durations may be given
 *		as plain milliseconds or with units ("1500", "1.5s").
 *
 *		audio:
 *		  sample_rate: 8000
 *		  amplitude: 50
 *		detector:
 *		  directions: rx
 *		  amount: 25          # cents, rounded up to a nickel
 *		  delay: 500
 *		  relaxed: false
 *		  single_frequency: false
 *		  flexible: false
 *		  redirect_rx: paid,s,1
 *		  redirect_tx: ""
 *		eis:
 *		  watch: tx
 *		  window: 2000
 *		  detect_mf: true
 *		  primer_as_wink: false
 *		  primer_hz: 2600
 *		signal:
 *		  style: eis
 *		  audible: true
 *		wink:
 *		  type: serial        # serial, gpio or none
 *		  device: /dev/ttyUSB0
 *		  line: RTS           # -RTS for inverted
 *		  chip: gpiochip0
 *		  offset: 17
 *		  invert: false
 *		log:
 *		  level: info
 *		  format: text
 *		  event_dir: /var/log/coinsig
 *		  event_file: ""
 *
 *---------------------------------------------------------------*/

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type AudioConfig struct {
	SampleRate int `yaml:"sample_rate"`
	Amplitude  int `yaml:"amplitude"` // 1..100
}

type DetectorConfig struct {
	Directions      string `yaml:"directions"`
	Amount          string `yaml:"amount"`
	Delay           string `yaml:"delay"`
	Relaxed         bool   `yaml:"relaxed"`
	SingleFrequency bool   `yaml:"single_frequency"`
	Flexible        bool   `yaml:"flexible"`
	RedirectRX      string `yaml:"redirect_rx"`
	RedirectTX      string `yaml:"redirect_tx"`
}

type EISConfig struct {
	Watch        string  `yaml:"watch"`
	Window       string  `yaml:"window"`
	DetectMF     bool    `yaml:"detect_mf"`
	PrimerAsWink bool    `yaml:"primer_as_wink"`
	PrimerHz     float64 `yaml:"primer_hz"`
}

type SignalConfig struct {
	Style   string `yaml:"style"`
	Audible bool   `yaml:"audible"`
}

type WinkConfig struct {
	Type   string `yaml:"type"`
	Device string `yaml:"device"`
	Line   string `yaml:"line"`
	Chip   string `yaml:"chip"`
	Offset int    `yaml:"offset"`
	Invert bool   `yaml:"invert"`
}

type LogConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	EventDir  string `yaml:"event_dir"`
	EventFile string `yaml:"event_file"`
}

type Config struct {
	Audio    AudioConfig    `yaml:"audio"`
	Detector DetectorConfig `yaml:"detector"`
	EIS      EISConfig      `yaml:"eis"`
	Signal   SignalConfig   `yaml:"signal"`
	Wink     WinkConfig     `yaml:"wink"`
	Log      LogConfig      `yaml:"log"`
}

// DefaultConfig is what an empty file gives.
func DefaultConfig() *Config {
	return &Config{
		Audio: AudioConfig{
			SampleRate: DEFAULT_SAMPLE_RATE,
			Amplitude:  DEFAULT_AMPLITUDE_PCT,
		},
		Detector: DetectorConfig{Directions: "rx"},
		EIS: EISConfig{
			Watch:    "tx",
			DetectMF: true,
			PrimerHz: PRIMER_TONE,
		},
		Signal: SignalConfig{Style: "eis", Audible: true},
		Wink:   WinkConfig{Type: "none", Line: "RTS"},
		Log:    LogConfig{Level: "info", Format: "text"},
	}
}

var config_search_locations = []string{
	"coinsig.yaml", // Current working directory
	"conf/coinsig.yaml",
	"/usr/local/etc/coinsig/coinsig.yaml",
	"/etc/coinsig/coinsig.yaml",
}

/*------------------------------------------------------------------
 *
 * Name:	LoadConfig
 *
 * Purpose:	Find and read the configuration file.
 *
 * Inputs:	path	- Explicit file, or empty to try the search list.
 *
 * Returns:	Defaults if path is empty and nothing is found.
 *
 *---------------------------------------------------------------*/

func LoadConfig(path string) (*Config, error) {
	if path != "" {
		return LoadConfigFile(path)
	}
	for _, location := range config_search_locations {
		var c, err = LoadConfigFile(location)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		return c, err
	}
	Logger().Debug("no configuration file found, using defaults", "searched", config_search_locations)
	return DefaultConfig(), nil
}

func LoadConfigFile(path string) (*Config, error) {
	var f, err = os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var c, parseErr = ParseConfig(f)
	if parseErr != nil {
		return nil, fmt.Errorf("%s: %w", path, parseErr)
	}
	Logger().Debug("read configuration", "file", path)
	return c, nil
}

// ParseConfig reads YAML over the defaults and validates the result.
func ParseConfig(r io.Reader) (*Config, error) {
	var data, err = io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var c = DefaultConfig()
	if len(bytes.TrimSpace(data)) > 0 {
		var dec = yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(c); err != nil {
			return nil, configError("parse config", err)
		}
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks every field that has a fixed syntax.
func (c *Config) Validate() error {
	if c.Audio.SampleRate <= 0 {
		return configError("config audio", fmt.Errorf("invalid sample_rate %d", c.Audio.SampleRate))
	}
	if c.Audio.Amplitude < 1 || c.Audio.Amplitude > 100 {
		return configError("config audio", fmt.Errorf("amplitude %d not in 1..100", c.Audio.Amplitude))
	}

	if _, err := c.DetectorOptions(Location{}); err != nil {
		return err
	}
	if _, err := c.EISOptions(); err != nil {
		return err
	}
	if _, err := c.SignalStyle(); err != nil {
		return err
	}

	switch strings.ToLower(c.Wink.Type) {
	case "", "none":
	case "serial":
		if c.Wink.Device == "" {
			return configError("config wink", errors.New("serial wink needs a device"))
		}
		if _, _, err := ParseSerialLine(c.Wink.Line); err != nil {
			return err
		}
	case "gpio":
		if c.Wink.Chip == "" || c.Wink.Offset < 0 {
			return configError("config wink", errors.New("gpio wink needs a chip and a line offset"))
		}
	default:
		return configError("config wink", fmt.Errorf("unknown wink type %q", c.Wink.Type))
	}

	if _, err := ParseLevel(c.Log.Level); err != nil {
		return configError("config log", err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "logfmt", "json":
	default:
		return configError("config log", fmt.Errorf("unknown log format %q", c.Log.Format))
	}
	if c.Log.EventDir != "" && c.Log.EventFile != "" {
		return configError("config log", errors.New("event_dir and event_file are mutually exclusive"))
	}
	return nil
}

// DetectorOptions converts the detector section.  Redirect targets
// are completed from current when a detector is attached.
func (c *Config) DetectorOptions(current Location) (DetectorOptions, error) {
	var opts = DetectorOptions{
		Relaxed:         c.Detector.Relaxed,
		SingleFrequency: c.Detector.SingleFrequency,
		Flexible:        c.Detector.Flexible,
		SampleRate:      c.Audio.SampleRate,
	}

	var dirs, ok = ParseDirectionMask(c.Detector.Directions)
	if !ok {
		return opts, configError("config detector", fmt.Errorf("invalid directions %q", c.Detector.Directions))
	}
	opts.Directions = dirs

	if c.Detector.Amount != "" {
		var cents, err = ParseCents(c.Detector.Amount)
		if err != nil {
			return opts, err
		}
		opts.RequiredNickels = CentsToNickels(cents)
	}

	if c.Detector.Delay != "" {
		var d, err = ParseMillis(c.Detector.Delay)
		if err != nil {
			return opts, err
		}
		opts.Grace = d
	}

	for _, r := range []struct {
		s   string
		dst **Location
	}{
		{c.Detector.RedirectRX, &opts.RedirectCallerWard},
		{c.Detector.RedirectTX, &opts.RedirectExchangeWard},
	} {
		if r.s == "" {
			continue
		}
		var loc, err = ParseLocation(r.s)
		if err != nil {
			return opts, err
		}
		*r.dst = &loc
	}

	if err := opts.validate(); err != nil {
		return opts, err
	}
	return opts, nil
}

func (c *Config) EISOptions() (EISOptions, error) {
	var opts = EISOptions{
		DetectMF:     c.EIS.DetectMF,
		PrimerAsWink: c.EIS.PrimerAsWink,
		PrimerHz:     c.EIS.PrimerHz,
		SampleRate:   c.Audio.SampleRate,
	}

	var dir, ok = ParseDirection(c.EIS.Watch)
	if !ok {
		return opts, configError("config eis", fmt.Errorf("invalid watch direction %q", c.EIS.Watch))
	}
	opts.Watched = dir

	if c.EIS.Window != "" {
		var w, err = ParseMillis(c.EIS.Window)
		if err != nil {
			return opts, err
		}
		opts.Window = w
	}
	if opts.PrimerHz < 0 || (opts.PrimerHz > 0 && opts.PrimerHz >= float64(c.Audio.SampleRate)/2) {
		return opts, configError("config eis", fmt.Errorf("invalid primer_hz %g", opts.PrimerHz))
	}
	return opts, nil
}

func (c *Config) SignalStyle() (SignalStyle, error) {
	return ParseSignalStyle(c.Signal.Style)
}

// OpenWinkLine opens the configured wink line, nil if there is none.
func (c *Config) OpenWinkLine() (WinkLine, error) {
	switch strings.ToLower(c.Wink.Type) {
	case "serial":
		var line, invert, err = ParseSerialLine(c.Wink.Line)
		if err != nil {
			return nil, err
		}
		var s, openErr = OpenSerialWinkLine(c.Wink.Device, line, invert != c.Wink.Invert)
		if openErr != nil {
			return nil, openErr
		}
		return s, nil
	case "gpio":
		var g, err = OpenGPIOWinkLine(c.Wink.Chip, c.Wink.Offset, c.Wink.Invert)
		if err != nil {
			return nil, err
		}
		return g, nil
	}
	return nil, nil
}

/*------------------------------------------------------------------
 *
 * Name:	ParseCents
 *
 * Purpose:	Parse an amount of money.
 *
 * Description:	A positive whole number of cents.  "25", "25c" and
 *		"$0.25" are all accepted.
 *
 *---------------------------------------------------------------*/

func ParseCents(s string) (int, error) {
	var t = strings.ToLower(strings.TrimSpace(s))

	if strings.HasPrefix(t, "$") {
		var v, err = strconv.ParseFloat(t[1:], 64)
		if err != nil || v <= 0 {
			return 0, configError("parse amount", fmt.Errorf("invalid amount %q", s))
		}
		var cents = int(v*100 + 0.5)
		if cents <= 0 {
			return 0, configError("parse amount", fmt.Errorf("invalid amount %q", s))
		}
		return cents, nil
	}

	t = strings.TrimSuffix(t, "c")
	var v, err = strconv.Atoi(t)
	if err != nil || v <= 0 {
		return 0, configError("parse amount", fmt.Errorf("invalid amount %q", s))
	}
	return v, nil
}

// ParseMillis accepts a non-negative number of milliseconds or a Go
// duration.
func ParseMillis(s string) (time.Duration, error) {
	var t = strings.TrimSpace(s)
	if v, err := strconv.Atoi(t); err == nil {
		if v < 0 {
			return 0, configError("parse duration", fmt.Errorf("negative duration %q", s))
		}
		return time.Duration(v) * time.Millisecond, nil
	}
	var d, err = time.ParseDuration(t)
	if err != nil || d < 0 {
		return 0, configError("parse duration", fmt.Errorf("invalid duration %q", s))
	}
	return d, nil
}
