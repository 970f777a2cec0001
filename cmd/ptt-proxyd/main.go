// Command ptt-proxyd is the privileged Input Proxy daemon: it listens on
// the Proxy Server's Unix-domain socket, serves one client connection at
// a time, and optionally nudges each connection's Proxy Manager retry
// loop on udev hot-plug events.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	"github.com/GeorgeV220/PushToTalk/proxy"
	"github.com/GeorgeV220/PushToTalk/server"
	"github.com/GeorgeV220/PushToTalk/udevwatch"
)

func exitIf(logger *log.Logger, err error) {
	if err != nil {
		logger.Fatal(err)
	}
}

// activeManager holds whichever Proxy Manager is currently live and
// relays Wake calls to it. A connection's Manager is swapped in when it
// starts serving and swapped out (to nil) when it stops, so a hot-plug
// event arriving between connections is simply dropped rather than
// crashing.
type activeManager struct {
	mu  sync.Mutex
	mgr *proxy.Manager
}

func (a *activeManager) set(mgr *proxy.Manager) {
	a.mu.Lock()
	a.mgr = mgr
	a.mu.Unlock()
}

func (a *activeManager) Wake() {
	a.mu.Lock()
	mgr := a.mgr
	a.mu.Unlock()

	if mgr != nil {
		mgr.Wake()
	}
}

func main() {
	var (
		socketPath = pflag.StringP("socket", "s", server.DefaultSocketPath, "Unix-domain socket path to listen on.")
		group      = pflag.StringP("group", "g", server.DefaultGroup, "Group that owns the socket.")
		logLevel   = pflag.StringP("log-level", "l", "info", "Log level: debug, info, warn, error.")
		noUdev     = pflag.Bool("no-udev-watch", false, "Disable the udev hot-plug notifier; rely on the fixed retry cadence only.")
		help       = pflag.BoolP("help", "h", false, "Display help text.")
	)

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s - privileged input-proxy daemon.\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		pflag.PrintDefaults()
	}

	pflag.Parse()

	if *help {
		pflag.Usage()
		os.Exit(0)
	}

	logger := log.Default()

	level, err := log.ParseLevel(*logLevel)
	exitIf(logger, err)

	logger.SetLevel(level)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	srv := &server.Server{
		SocketPath: *socketPath,
		Group:      *group,
		Logger:     logger,
	}

	if !*noUdev {
		active := &activeManager{}
		srv.OnManager = active.set

		watcher := udevwatch.New(active)
		watcher.Logger = logger

		go func() {
			if err := watcher.Run(ctx); err != nil {
				logger.Warn("udev watcher stopped", "err", err)
			}
		}()
	}

	logger.Info("listening", "socket", srv.SocketPath, "group", srv.Group)

	exitIf(logger, srv.ListenAndServe(ctx))
}
