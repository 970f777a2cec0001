// Command ptt-client is the unprivileged Proxy Client: it connects to
// ptt-proxyd's socket, negotiates the configured devices, and maps
// received target-key transitions onto an audio effect Sink (microphone
// mute toggle and optional cue playback). It also offers a read-only
// detection mode for discovering a new device's vendor:product:uid
// triple without grabbing anything.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	"github.com/GeorgeV220/PushToTalk/client"
	"github.com/GeorgeV220/PushToTalk/config"
	"github.com/GeorgeV220/PushToTalk/server"
	"github.com/GeorgeV220/PushToTalk/xdg"
)

// xdgConfigRelPath and xdgLogRelPath are the default, XDG-relative
// locations for this client's config file and its persistent log, used
// whenever the corresponding flag is left unset.
const (
	xdgConfigRelPath = "ptt-client/config.yaml"
	xdgLogRelPath    = "ptt-client/client.log"
)

func exitIf(logger *log.Logger, err error) {
	if err != nil {
		logger.Fatal(err)
	}
}

// resolveConfigPath returns explicit unchanged, or else the XDG
// config-home default, touching the file (and its parent directories)
// into existence if it is not there yet.
func resolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}

	file, err := xdg.ConfigFile(xdgConfigRelPath)
	if err != nil {
		return "", fmt.Errorf("resolveConfigPath: %w", err)
	}
	defer file.Close()

	return file.Name(), nil
}

// newLogger opens the XDG state-home log file and returns a Logger that
// writes to both it and stderr, plus a cleanup func to close the file. If
// the state file cannot be opened, it falls back to stderr alone.
func newLogger() (*log.Logger, func()) {
	file, err := xdg.StateFile(xdgLogRelPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ptt-client: state log unavailable, logging to stderr only: %v\n", err)
		return log.New(os.Stderr), func() {}
	}

	return log.New(io.MultiWriter(os.Stderr, file)), func() { file.Close() }
}

func main() {
	var (
		socketPath = pflag.StringP("socket", "s", server.DefaultSocketPath, "Unix-domain socket path to connect to.")
		configPath = pflag.StringP("config", "c", "", "Path to the device/audio YAML config file. Defaults to the XDG config-home location (e.g. ~/.config/ptt-client/config.yaml).")
		logLevel   = pflag.StringP("log-level", "l", "info", "Log level: debug, info, warn, error.")
		detect     = pflag.Bool("detect", false, "Detection mode: print the vendor:product:uid of the next key pressed on any device, then exit. Does not grab devices.")
		help       = pflag.BoolP("help", "h", false, "Display help text.")
	)

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s - push-to-talk client.\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		pflag.PrintDefaults()
	}

	pflag.Parse()

	if *help {
		pflag.Usage()
		os.Exit(0)
	}

	logger, closeLogger := newLogger()
	defer closeLogger()

	level, err := log.ParseLevel(*logLevel)
	exitIf(logger, err)

	logger.SetLevel(level)

	if *detect {
		exitIf(logger, runDetect(logger))
		return
	}

	resolvedConfigPath, err := resolveConfigPath(*configPath)
	exitIf(logger, err)

	cfg, err := config.Load(resolvedConfigPath)
	exitIf(logger, err)

	sessionConfigs, err := cfg.SessionConfigs()
	exitIf(logger, err)

	sink, closeSink, err := newSink(cfg.Audio)
	exitIf(logger, err)
	defer closeSink()

	c := &client.Client{
		SocketPath: *socketPath,
		Logger:     logger,
	}

	for _, sc := range sessionConfigs {
		c.AddDevice(sc.Identity.VendorID, sc.Identity.ProductID, uint32(sc.Identity.UID), int32(sc.TargetKey), sc.Exclusive)
	}

	c.SetCallback(func(key int32, pressed bool) {
		logger.Debug("key transition", "key", key, "pressed", pressed)

		// Push-to-talk: held means talking (unmuted), released means muted.
		if err := sink.SetMuted(!pressed); err != nil {
			logger.Warn("set muted failed", "err", err)
		}

		if !pressed || cfg.Audio.CueDir == "" {
			return
		}

		if err := sink.PlayCue("press"); err != nil {
			logger.Warn("play cue failed", "err", err)
		}
	})

	c.Start()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Info("connecting", "socket", c.SocketPath)

	<-ctx.Done()

	logger.Info("shutting down")
	c.Stop()
}
