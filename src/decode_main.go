package coinsig

/*------------------------------------------------------------------
 *
 * Purpose:	Decode coin control signaling from a recording.
 *
 * Inputs:	One or more .WAV files.  Each is played as the
 *		caller-ward audio of its own call.
 *
 * Outputs:	One line per event on stdout, optionally JSON, and
 *		optionally a CSV event log.
 *
 * Description:	The deposit detector and the EIS receiver are attached
 *		exactly as they would be on a live call.  A recording
 *		has no out-of-band wink, so the in-band priming tone
 *		stands in for it when EIS is enabled.
 *
 *		coinsig-decode deposit.wav
 *		coinsig-decode --amount 35 --wait deposit.wav
 *		coinsig-decode --eis --json collect.wav
 *
 *---------------------------------------------------------------*/

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lestrrat-go/strftime"
	"github.com/spf13/pflag"
)

func DecodeMain() {
	var ctx, stop = signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := decodeMain(ctx, os.Args[0], os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, pflag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "%s\n", err)
		}
		os.Exit(1)
	}
}

type decodeOptions struct {
	cfg       *Config
	eis       bool
	wait      bool
	timeout   time.Duration
	json      bool
	timestamp *strftime.Strftime
	eventLog  *EventLog
	stdout    io.Writer
	logger    *log.Logger
}

func decodeMain(ctx context.Context, prog string, args []string, stdout, stderr io.Writer) error {
	var flags = pflag.NewFlagSet(prog, pflag.ContinueOnError)
	flags.SetOutput(stderr)

	var configFile = flags.StringP("config", "c", "", "Configuration file.  Default: search the usual places.")
	var amount = flags.StringP("amount", "m", "", "Required amount in cents.")
	var delay = flags.String("delay", "", "Grace delay after the amount is reached, ms.")
	var relaxed = flags.Bool("relaxed", false, "Looser tone detection.")
	var single = flags.Bool("single-frequency", false, "Coin tones at 2200 Hz only.")
	var flexible = flags.Bool("flexible", false, "Count 3 or 4 beeps as a quarter.")
	var eis = flags.Bool("eis", false, "Also decode EIS dispositions.  The priming tone stands in for the wink.")
	var wait = flags.Bool("wait", false, "Block until --amount is deposited, as a dialplan wait would, and report the status.")
	var timeout = flags.String("timeout", "0", "Overall limit for --wait, ms.  0 for none.")
	var jsonOut = flags.BoolP("json", "j", false, "Print events as canonical JSON, one per line.")
	var timestampFormat = flags.StringP("timestamp-format", "T", "", "Precede each event with the time, strftime format.  e.g. \"%H:%M:%S\".")
	var logFile = flags.StringP("log-file", "L", "", "Append events to this CSV file.")
	var logDir = flags.StringP("log-dir", "l", "", "Daily CSV event files in this directory.")
	var logLevel = flags.String("log-level", "", "trace, debug, info, warn or error.")
	var logFormat = flags.String("log-format", "", "text, logfmt or json.")
	var showVersion = flags.BoolP("version", "v", false, "Print version and exit.")

	flags.Usage = func() {
		fmt.Fprintf(stderr, "%s - Decode coin control signaling from .WAV files.\n\n", prog)
		fmt.Fprintf(stderr, "Usage: %s [options] file.wav ...\n", prog)
		flags.PrintDefaults()
	}

	if err := flags.Parse(args); err != nil {
		return err
	}
	if *showVersion {
		printVersion(stdout, prog)
		return nil
	}
	if flags.NArg() == 0 {
		flags.Usage()
		return configError("coinsig-decode", errors.New("no input files"))
	}

	var cfg, err = LoadConfig(*configFile)
	if err != nil {
		return err
	}

	if *amount != "" {
		cfg.Detector.Amount = *amount
	}
	if *delay != "" {
		cfg.Detector.Delay = *delay
	}
	cfg.Detector.Relaxed = cfg.Detector.Relaxed || *relaxed
	cfg.Detector.SingleFrequency = cfg.Detector.SingleFrequency || *single
	cfg.Detector.Flexible = cfg.Detector.Flexible || *flexible
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	if *logFile != "" || *logDir != "" {
		cfg.Log.EventFile = *logFile
		cfg.Log.EventDir = *logDir
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	var level, _ = ParseLevel(cfg.Log.Level)
	var logger = NewLogger(stderr, level, cfg.Log.Format)
	SetLogger(logger)

	var o = decodeOptions{cfg: cfg, eis: *eis, wait: *wait, json: *jsonOut, stdout: stdout, logger: logger}

	if o.timeout, err = ParseMillis(*timeout); err != nil {
		return err
	}
	if o.wait && cfg.Detector.Amount == "" {
		return configError("coinsig-decode", errors.New("--wait needs --amount"))
	}

	if *timestampFormat != "" {
		if o.timestamp, err = strftime.New(*timestampFormat); err != nil {
			return configError("coinsig-decode", err)
		}
	}

	switch {
	case cfg.Log.EventFile != "":
		o.eventLog, err = OpenEventLog(false, cfg.Log.EventFile, "", logger)
	case cfg.Log.EventDir != "":
		o.eventLog, err = OpenEventLog(true, cfg.Log.EventDir, "", logger)
	}
	if err != nil {
		return err
	}
	if o.eventLog != nil {
		defer o.eventLog.Close()
	}

	for _, path := range flags.Args() {
		if err := decodeFile(ctx, path, &o); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}
	return nil
}

func decodeFile(ctx context.Context, path string, o *decodeOptions) error {
	var samples, rate, err = ReadWAV(path)
	if err != nil {
		return err
	}
	o.logger.Debug("decoding", "file", path, "rate", rate, "seconds", float64(len(samples))/float64(rate))

	o.cfg.Audio.SampleRate = rate
	var ch = NewPCMChannel(path, rate, samples, time.Now())

	if o.wait {
		return decodeWait(ctx, ch, o)
	}

	var queue = NewEventQueue()
	var reg = NewRegistry(queue, o.logger)

	var dopts, derr = o.cfg.DetectorOptions(ch.Location())
	if derr != nil {
		return derr
	}
	dopts.Logger = o.logger
	if err := reg.AttachDetector(ch, dopts); err != nil {
		return err
	}

	if o.eis {
		var eopts, err = o.cfg.EISOptions()
		if err != nil {
			return err
		}
		// The recording is the only audio there is.
		eopts.Watched = CallerWard
		eopts.PrimerAsWink = true
		if err := reg.ArmEIS(ch, eopts); err != nil {
			return err
		}
	}

	for {
		var f, err = ch.ReadFrame(ctx)
		if errors.Is(err, ErrHangup) {
			break
		}
		if err != nil {
			return err
		}
		reg.ProcessFrame(ch, CallerWard, &f)
		if err := o.emit(queue.Drain()); err != nil {
			return err
		}
	}

	fmt.Fprintf(o.stdout, "%s: %d cents\n", path, reg.ReadDeposit(ch, CallerWard))
	reg.Forget(ch)
	return nil
}

func decodeWait(ctx context.Context, ch *PCMChannel, o *decodeOptions) error {
	var dopts, err = o.cfg.DetectorOptions(ch.Location())
	if err != nil {
		return err
	}
	var cents, _ = ParseCents(o.cfg.Detector.Amount)

	var res, werr = WaitForDeposit(ctx, ch, WaitOptions{
		Cents:           cents,
		Timeout:         o.timeout,
		Grace:           dopts.Grace,
		Relaxed:         dopts.Relaxed,
		SingleFrequency: dopts.SingleFrequency,
		Flexible:        dopts.Flexible,
		SampleRate:      dopts.SampleRate,
		Logger:          o.logger,
	})
	fmt.Fprintf(o.stdout, "%s: %s %d cents\n", ch.Name(), res.Status, res.Cents)
	return werr
}

func (o *decodeOptions) emit(events []Event) error {
	for _, ev := range events {
		if o.eventLog != nil {
			o.eventLog.Publish(ev)
		}

		var prefix string
		if o.timestamp != nil {
			prefix = o.timestamp.FormatString(ev.At) + " "
		}

		if o.json {
			var b, err = ev.CanonicalJSON()
			if err != nil {
				return err
			}
			fmt.Fprintf(o.stdout, "%s%s\n", prefix, b)
			continue
		}

		switch ev.Type {
		case EventCoin:
			fmt.Fprintf(o.stdout, "%s%s %s beeps=%d credited=%d total=%d\n", prefix, ev.Type, ev.Direction, ev.RawHits, ev.Effective, ev.Cents)
		case EventThreshold:
			fmt.Fprintf(o.stdout, "%s%s %s total=%d\n", prefix, ev.Type, ev.Direction, ev.Cents)
		case EventDisposition:
			fmt.Fprintf(o.stdout, "%s%s %s\n", prefix, ev.Type, ev.Disposition)
		}
	}
	return nil
}
