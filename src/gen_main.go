package coinsig

/*------------------------------------------------------------------
 *
 * Purpose:	Generate coin control signals.
 *
 * Description:	Renders coin deposits, digits or a disposition signal
 *		to a .WAV file, or sends a disposition on the wink line
 *		from the configuration file.
 *
 *		coinsig-gen -o deposit.wav --coins 25,10,5
 *		coinsig-gen -o collect.wav --disposition collect --wink-tone 2600
 *		coinsig-gen --disposition return --style legacy --line
 *
 *---------------------------------------------------------------*/

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

func GenMain() {
	var ctx, stop = signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := genMain(ctx, os.Args[0], os.Args[1:], os.Stderr); err != nil {
		if !errors.Is(err, pflag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "%s\n", err)
		}
		os.Exit(1)
	}
}

func genMain(ctx context.Context, prog string, args []string, stderr io.Writer) error {
	var flags = pflag.NewFlagSet(prog, pflag.ContinueOnError)
	flags.SetOutput(stderr)

	var configFile = flags.StringP("config", "c", "", "Configuration file.  Default: search the usual places.")
	var outputFile = flags.StringP("output-file", "o", "", "Send output to .wav file.")
	var sampleRate = flags.IntP("audio-sample-rate", "r", 0, "Audio sample rate.  Default from configuration.")
	var amplitude = flags.IntP("amplitude", "a", 0, "Signal amplitude in range of 1 - 100%.  Default from configuration.")
	var coins = flags.String("coins", "", "Comma separated coins to deposit, in cents: 5, 10 or 25.")
	var single = flags.Bool("single-frequency", false, "Coin tones at 2200 Hz only.")
	var digits = flags.String("digits", "", "Digits to send.")
	var mode = flags.String("mode", "mf", "Digit signaling: mf or dtmf.")
	var disposition = flags.StringP("disposition", "d", "", "Disposition to signal: return, collect, ringback, released, attached, collectreleased.")
	var style = flags.StringP("style", "s", "", "Disposition signaling: eis or legacy.  Default from configuration.")
	var inaudible = flags.Bool("inaudible", false, "No in-band priming tone.")
	var winkTone = flags.Float64("wink-tone", 0, "Render winks in band at this frequency.  0 to leave them out.")
	var leading = flags.String("leading-silence", "100", "Silence before the signal, ms.")
	var line = flags.Bool("line", false, "Send the disposition on the configured wink line instead of to a file.")
	var logLevel = flags.String("log-level", "", "trace, debug, info, warn or error.")
	var showVersion = flags.BoolP("version", "v", false, "Print version and exit.")

	flags.Usage = func() {
		fmt.Fprintf(stderr, "%s - Generate coin control signals.\n\n", prog)
		fmt.Fprintf(stderr, "Usage: %s [options]\n", prog)
		flags.PrintDefaults()
	}

	if err := flags.Parse(args); err != nil {
		return err
	}
	if *showVersion {
		printVersion(stderr, prog)
		return nil
	}

	var cfg, err = LoadConfig(*configFile)
	if err != nil {
		return err
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	var level, _ = ParseLevel(cfg.Log.Level)
	var logger = NewLogger(stderr, level, cfg.Log.Format)
	SetLogger(logger)

	if *sampleRate > 0 {
		cfg.Audio.SampleRate = *sampleRate
	}
	if *amplitude > 0 {
		cfg.Audio.Amplitude = *amplitude
	}
	if *style != "" {
		cfg.Signal.Style = *style
	}
	if *inaudible {
		cfg.Signal.Audible = false
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	var sigStyle, _ = cfg.SignalStyle()
	var seq = &Sequencer{PrimerHz: cfg.EIS.PrimerHz, Logger: logger}

	if *line {
		if *disposition == "" {
			return configError("coinsig-gen", errors.New("--line needs --disposition"))
		}
		if sigStyle == StyleEIS {
			// The MF digit has nowhere to go; a bare wink would be misread.
			return configError("coinsig-gen", errors.New("--line has no audio output, use --style legacy"))
		}
		var wl, err = cfg.OpenWinkLine()
		if err != nil {
			return err
		}
		if wl == nil {
			return configError("coinsig-gen", errors.New("no wink line configured"))
		}
		var tx = &LineTransmitter{Line: wl, Logger: logger}
		defer tx.Close()
		return seq.SignalByName(ctx, tx, *disposition, sigStyle, cfg.Signal.Audible)
	}

	if *outputFile == "" {
		flags.Usage()
		return configError("coinsig-gen", errors.New("no output file"))
	}
	if *coins == "" && *digits == "" && *disposition == "" {
		return configError("coinsig-gen", errors.New("nothing to generate"))
	}

	var gen, genErr = NewToneGenerator(cfg.Audio.SampleRate, cfg.Audio.Amplitude)
	if genErr != nil {
		return genErr
	}

	var lead, leadErr = ParseMillis(*leading)
	if leadErr != nil {
		return leadErr
	}

	var out SampleBuffer
	out.Samples = append(out.Samples, gen.Silence(lead)...)

	if *coins != "" {
		for _, c := range strings.Split(*coins, ",") {
			var cents, err = strconv.Atoi(strings.TrimSpace(c))
			if err != nil {
				return configError("coinsig-gen", fmt.Errorf("invalid coin %q", c))
			}
			var s, cerr = gen.Coin(cents, *single)
			if cerr != nil {
				return cerr
			}
			out.Samples = append(out.Samples, s...)
		}
	}

	if *digits != "" {
		var m DetectMode
		switch strings.ToLower(*mode) {
		case "mf":
			m = DetectMF
		case "dtmf":
			m = DetectDTMF
		default:
			return configError("coinsig-gen", fmt.Errorf("unknown mode %q", *mode))
		}
		var s, derr = gen.Digits(m, strings.ToUpper(*digits))
		if derr != nil {
			return derr
		}
		out.Samples = append(out.Samples, s...)
	}

	if *disposition != "" {
		var tx = NewPCMTransmitter(gen, &out, logger)
		tx.WinkHz = *winkTone
		seq.Pacer = tx
		if err := seq.SignalByName(ctx, tx, *disposition, sigStyle, cfg.Signal.Audible); err != nil {
			return err
		}
		// Let the last tone end cleanly.
		out.Samples = append(out.Samples, gen.Silence(200 * time.Millisecond)...)
	}

	if err := WriteWAV(*outputFile, cfg.Audio.SampleRate, out.Samples); err != nil {
		return err
	}
	logger.Info("wrote audio", "file", *outputFile, "seconds", float64(len(out.Samples))/float64(cfg.Audio.SampleRate))
	return nil
}
