// Command orrery-demo plays a continuous audio tour of a configured solar
// system roster. It renders every object through the spatial engine, sweeps
// the cues through the system audio device, and replays the sweep whenever
// the config file changes on disk.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/fsnotify/fsnotify"

	"github.com/cwbudde/algo-orrery/alert"
	"github.com/cwbudde/algo-orrery/orrery"
	"github.com/cwbudde/algo-orrery/playback"
)

func main() {
	configPath := flag.String("config", "orrery.yml", "Config file path (created with defaults when missing)")
	once := flag.Bool("once", false, "Play a single sweep and exit instead of watching the config")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	flag.Parse()

	if *verbose {
		log.SetLevel(log.DebugLevel)
	}

	if err := ensureConfigFile(*configPath); err != nil {
		log.Error("could not create default config", "path", *configPath, "error", err)
		os.Exit(1)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Error("could not load config", "error", err)
		os.Exit(1)
	}

	pcfg := playback.DefaultConfig()
	pcfg.SampleRate = cfg.SampleRate
	player, err := playback.NewPlayer(pcfg)
	if err != nil {
		log.Error("could not open audio device", "error", err)
		os.Exit(1)
	}
	defer func() { _ = player.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := runSweep(ctx, player, cfg); err != nil && ctx.Err() == nil {
		log.Error("sweep failed", "error", err)
		os.Exit(1)
	}
	if *once || ctx.Err() != nil {
		return
	}

	watchAndSweep(ctx, player, *configPath)
}

// runSweep renders the full roster under the configured policy and plays the
// cues in roster order. A fresh engine per sweep keeps a reloaded config from
// replaying timbres voiced under the previous one.
func runSweep(ctx context.Context, player *playback.Player, cfg demoConfig) error {
	params, err := cfg.engineParams()
	if err != nil {
		return err
	}
	engine, err := orrery.NewEngine(params)
	if err != nil {
		return err
	}
	policy, err := cfg.policy()
	if err != nil {
		return err
	}
	objects, err := cfg.objects()
	if err != nil {
		return err
	}

	log.Info("rendering roster",
		"objects", len(objects),
		"mode", policy.Mode,
		"complexity", policy.Complexity)

	cues, err := engine.RegenerateAll(objects, policy)
	if err != nil {
		return err
	}

	gap := time.Duration(cfg.SweepGapMs) * time.Millisecond
	for _, cue := range cues {
		log.Info("playing",
			"object", cue.ObjectID,
			"gain", fmt.Sprintf("%.3f", float64(cue.Sound.Gain)),
			"duration", cue.Sound.Duration().Round(time.Millisecond))
		if err := player.PlayAndWait(ctx, cue.Sound); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(gap):
		}
	}

	stats := engine.CacheStats()
	log.Info("timbre cache",
		"hits", humanize.Comma(int64(stats.Hits)),
		"misses", humanize.Comma(int64(stats.Misses)),
		"hit_rate", fmt.Sprintf("%.0f%%", stats.HitRate()*100),
		"entries", stats.Size,
		"resident", humanize.Bytes(uint64(stats.Size*params.CueFrames()*2*4)))

	if cfg.PlayWarnings {
		return playWarnings(ctx, player, cfg.SampleRate)
	}
	return nil
}

// playWarnings runs through the space-weather warning tones at the device
// sample rate.
func playWarnings(ctx context.Context, player *playback.Player, sampleRate int) error {
	acfg := alert.DefaultConfig()
	acfg.SampleRate = sampleRate

	for _, event := range alert.Events() {
		samples, err := alert.Generate(event, acfg)
		if err != nil {
			return err
		}
		log.Info("playing warning", "event", event)
		sound := &orrery.SoundBuffer{SampleRate: sampleRate, Data: samples, Gain: 1}
		if err := player.PlayAndWait(ctx, sound); err != nil {
			return err
		}
	}
	return nil
}

// watchAndSweep replays the sweep whenever the config file is rewritten. The
// parent directory is watched rather than the file itself so editors that
// replace the file on save keep triggering events.
func watchAndSweep(ctx context.Context, player *playback.Player, configPath string) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Error("error creating fsnotify watcher", "error", err)
		return
	}
	defer func() { _ = watcher.Close() }()

	dir := filepath.Dir(configPath)
	if err := watcher.Add(dir); err != nil {
		log.Error("error adding directory to fsnotify watcher", "dir", dir, "error", err)
		return
	}

	target, err := filepath.Abs(configPath)
	if err != nil {
		target = configPath
	}
	log.Info("watching config", "path", configPath)

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			name, err := filepath.Abs(event.Name)
			if err != nil {
				name = event.Name
			}
			if name != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			log.Debug("config changed", "file", event.Name, "event", event.Op)

			cfg, err := loadConfig(configPath)
			if err != nil {
				log.Warn("ignoring config change", "error", err)
				continue
			}
			if err := runSweep(ctx, player, cfg); err != nil && ctx.Err() == nil {
				log.Error("sweep failed", "error", err)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Debug("fsnotify error", "dir", dir, "error", err)
		}
	}
}
