package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/carlosalbertobarbosajunior/voice-translator/internal/artifact"
	"github.com/carlosalbertobarbosajunior/voice-translator/internal/audio"
	"github.com/carlosalbertobarbosajunior/voice-translator/internal/config"
	"github.com/carlosalbertobarbosajunior/voice-translator/internal/device"
	"github.com/carlosalbertobarbosajunior/voice-translator/internal/logging"
	"github.com/carlosalbertobarbosajunior/voice-translator/internal/player"
	"github.com/carlosalbertobarbosajunior/voice-translator/internal/recorder"
	"github.com/carlosalbertobarbosajunior/voice-translator/internal/session"
	"github.com/carlosalbertobarbosajunior/voice-translator/internal/speech"
	"github.com/carlosalbertobarbosajunior/voice-translator/internal/translator"
)

const defaultOutput = "output_translated.wav"

type options struct {
	configPath    string
	envFile       string
	source        string
	target        string
	input         string
	output        string
	deviceQuery   string
	playbackQuery string
	duration      time.Duration
	durationSet   bool
	untilSilence  bool
	play          bool
	listDevices   bool
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options

	fs := flag.NewFlagSet("voicetranslator", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.configPath, "config", "", "Path to configuration file")
	fs.StringVar(&opts.envFile, "env-file", ".env", "Path to .env file")
	fs.StringVar(&opts.source, "source", "", "Source language (pt-BR or en), overrides the configuration")
	fs.StringVar(&opts.target, "target", "", "Target language (pt-BR or en), overrides the configuration")
	fs.StringVar(&opts.input, "input", "", "Translate this audio file instead of recording")
	fs.StringVar(&opts.output, "output", defaultOutput, "Where to write the translated WAV")
	fs.StringVar(&opts.deviceQuery, "device", "", "Capture device id or name fragment, used when recording")
	fs.StringVar(&opts.playbackQuery, "playback-device", "", "Playback device id or name fragment, used with -play")
	fs.DurationVar(&opts.duration, "record-duration", 5*time.Second, "Fixed recording length (recording.fixed_duration when unset)")
	fs.BoolVar(&opts.untilSilence, "record-until-silence", false, "Record until sustained silence")
	fs.BoolVar(&opts.play, "play", false, "Play the translation when done")
	fs.BoolVar(&opts.listDevices, "list-devices", false, "List audio devices and exit")

	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "record-duration" {
			opts.durationSet = true
		}
	})
	if opts.duration <= 0 {
		return opts, fmt.Errorf("record-duration must be positive, got %s", opts.duration)
	}
	if opts.output == "" {
		return opts, errors.New("output cannot be empty")
	}
	return opts, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := config.LoadEnvFile(opts.envFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if opts.source != "" {
		cfg.Translation.SourceLanguage = opts.source
	}
	if opts.target != "" {
		cfg.Translation.TargetLanguage = opts.target
	}
	if !opts.durationSet {
		opts.duration = cfg.Recording.GetFixedDuration()
	}

	logger, closeLog := logging.New(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, cfg, opts, logger, os.Stdout)
	stop()

	if err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "Error: interrupted")
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		closeLog()
		os.Exit(1)
	}
	closeLog()
}

func run(ctx context.Context, cfg *config.Config, opts options, logger *slog.Logger, stdout io.Writer) error {
	pair, err := translator.NewConfiguration(cfg.Translation.SourceLanguage, cfg.Translation.TargetLanguage)
	if err != nil {
		return err
	}

	codec := audio.NewCodec(cfg.Audio.SampleRate, audio.NewFFmpeg(cfg.Audio.FFmpegPath))

	// devices are only touched when a flag needs them
	var (
		mgr    *device.Manager
		opener recorder.CaptureOpener
		out    *player.Player
	)
	needDevices := opts.listDevices || opts.input == "" || opts.play
	if needDevices {
		backend, err := device.NewMalgoBackend(logger)
		if err != nil {
			return err
		}
		mgr = device.NewManager(backend, logger, nil)
		defer mgr.Close()
		opener = mgr

		playbackID := cfg.Playback.Device
		if opts.play && opts.playbackQuery != "" {
			if playbackID, err = mgr.ResolveDevice(device.Playback, opts.playbackQuery); err != nil {
				return err
			}
		}
		out = player.New(mgr, codec, player.Config{
			SampleRate:   cfg.Audio.SampleRate,
			DeviceID:     playbackID,
			PollInterval: cfg.Playback.GetPollIntervalDuration(),
		}, logger, nil)
	}

	if opts.listDevices {
		return listDevices(mgr, stdout)
	}

	factory, closeEngine, err := speech.NewFactory(cfg.SpeechOptions(), codec, logger, nil)
	if err != nil {
		return err
	}
	defer closeEngine()

	orch, err := translator.New(pair, factory, logger, nil)
	if err != nil {
		return err
	}

	store, err := artifact.NewStore(cfg.Storage.Dir, codec, logger, nil)
	if err != nil {
		return err
	}

	recCfg := recorder.Config{
		SampleRate:       cfg.Audio.SampleRate,
		ChunkSize:        cfg.Audio.ChunkSize,
		QueueSize:        cfg.Audio.QueueSize,
		DeviceID:         cfg.Recording.Device,
		StopTimeout:      cfg.Recording.GetStopTimeoutDuration(),
		MaxDuration:      cfg.Recording.GetMaxDuration(),
		SilenceThreshold: cfg.Recording.SilenceThreshold,
		SilenceChunks:    cfg.Recording.SilenceChunks,
	}
	switch {
	case opts.deviceQuery == "":
	case opts.input != "":
		logger.Warn("Ignoring capture device, translating input file",
			slog.String("device", opts.deviceQuery),
			slog.String("input", opts.input))
	default:
		id, err := mgr.ResolveDevice(device.Capture, opts.deviceQuery)
		if err != nil {
			return err
		}
		recCfg.DeviceID = id
	}

	ctrl := session.New(opener, recCfg, orch, store, out, logger, nil)
	defer ctrl.Close()

	pcm, err := acquire(ctx, ctrl, codec, opts, stdout)
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "Translating %s (%.1fs of audio)...\n", pair, pcm.Duration().Seconds())
	outcome, err := ctrl.Translate(ctx, pcm)
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "Original (%s): %s\n", pair.Source, outcome.SourceText)
	fmt.Fprintf(stdout, "Translated (%s): %s\n", pair.Target, outcome.TargetText)

	if err := codec.WriteFile(opts.output, outcome.Audio); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Saved translated audio to %s\n", opts.output)

	if opts.play {
		return play(ctx, ctrl, outcome.ArtifactID, stdout)
	}
	return nil
}

// acquire reads the input file or records from the microphone
func acquire(ctx context.Context, ctrl *session.Controller, codec *audio.Codec, opts options, stdout io.Writer) (audio.PCM, error) {
	if opts.input != "" {
		data, err := os.ReadFile(opts.input)
		if err != nil {
			return audio.PCM{}, fmt.Errorf("failed to read input %s: %w", opts.input, err)
		}
		if audio.IsWAV(data) {
			info, err := audio.GetWAVInfo(data)
			if err != nil {
				return audio.PCM{}, fmt.Errorf("failed to read input %s: %w", opts.input, err)
			}
			fmt.Fprintf(stdout, "Input: %d Hz, %d ch, %d-bit, %.1fs\n",
				info.SampleRate, info.Channels, info.BitsPerSample, info.Duration)
		}
		pcm, err := codec.Decode(ctx, data, strings.TrimPrefix(filepath.Ext(opts.input), "."))
		if err != nil {
			return audio.PCM{}, fmt.Errorf("failed to decode input %s: %w", opts.input, err)
		}
		return pcm, nil
	}

	rec := session.RecordOptions{
		MaxDuration:  opts.duration,
		UntilSilence: opts.untilSilence,
		OnProgress: func(elapsed time.Duration) {
			fmt.Fprintf(stdout, "\rRecording... %.1fs", elapsed.Seconds())
		},
	}
	if opts.untilSilence {
		// the configured cap applies instead of the fixed length
		rec.MaxDuration = 0
		fmt.Fprintln(stdout, "Recording until silence, speak now...")
	} else {
		fmt.Fprintf(stdout, "Recording for %s, speak now...\n", opts.duration)
	}

	pcm, err := ctrl.Record(ctx, rec)
	fmt.Fprintln(stdout)
	if err != nil {
		return audio.PCM{}, fmt.Errorf("recording failed: %w", err)
	}
	return pcm, nil
}

func play(ctx context.Context, ctrl *session.Controller, id string, stdout io.Writer) error {
	done := make(chan struct{})
	if err := ctrl.Play(id, func() { close(done) }); err != nil {
		return err
	}
	fmt.Fprintln(stdout, "Playing translation...")

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		ctrl.StopPlayback()
		return ctx.Err()
	}
}

func listDevices(mgr *device.Manager, stdout io.Writer) error {
	for _, kind := range []device.Kind{device.Capture, device.Playback} {
		devices, err := mgr.Devices(kind)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "%s devices:\n", kind)
		for _, d := range devices {
			marker := " "
			if d.Default {
				marker = "*"
			}
			fmt.Fprintf(stdout, " %s %s (%s)\n", marker, d.Name, d.ID)
		}
	}
	return nil
}
