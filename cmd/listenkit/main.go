// main is the listenkit daemon launcher
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/listenkit/listenkit/pkg/config"
	"github.com/listenkit/listenkit/pkg/server"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// version contains the build version number, populated during linking.
	version = "undefined"

	// date contains the build date, populated during linking.
	date = "undefined"
)

// forceExitAfter bounds the whole shutdown sequence, beyond the listener drain timeout.
const forceExitAfter = 15 * time.Second

func main() {
	help := flag.Bool("help", false, "Displays help on flags and env variables.")
	pidfile := flag.String("pidfile", "", "Write our PID into the specified file.")
	logfile := flag.String("logfile", "stderr", "Write out log into the specified file.")
	logjson := flag.Bool("logjson", false, "Logs are written in JSON format.")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: listenkit [options]")
		flag.PrintDefaults()
	}
	flag.Parse()
	if *help {
		flag.Usage()
		fmt.Fprintln(os.Stderr, "")
		config.Usage()
		return
	}

	config.Version = version
	config.BuildDate = date
	conf, err := config.Process()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}
	closeLog, err := openLog(conf.LogLevel, *logfile, *logjson)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Log error: %v\n", err)
		os.Exit(1)
	}

	err = run(conf, *pidfile)
	closeLog()
	if err != nil {
		os.Exit(1)
	}
}

// run starts the services and blocks until a signal or service failure, then drains running
// listener effects.
func run(conf *config.Root, pidfile string) error {
	startupLog := log.With().Str("phase", "startup").Logger()
	startupLog.Info().Str("version", config.Version).Str("buildDate", config.BuildDate).
		Msg("listenkit starting")

	if err := writePIDFile(pidfile); err != nil {
		startupLog.Error().Err(err).Str("path", pidfile).Msg("Failed to write pidfile")
		return err
	}
	defer removePIDFile(pidfile)

	svcs, err := server.Prod(conf)
	if err != nil {
		startupLog.Error().Err(err).Msg("Fatal error during startup")
		return err
	}

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()
	svcCtx, svcCancel := context.WithCancel(context.Background())
	defer svcCancel()
	svcs.Start(svcCtx, func() {
		startupLog.Info().Str("addr", conf.Web.Addr).Msg("listenkit ready")
	})

	shutdownLog := log.With().Str("phase", "shutdown").Logger()
	var failure error
	select {
	case <-sigCtx.Done():
		shutdownLog.Info().Msg("Received signal, shutting down")
	case failure = <-svcs.Notify():
		shutdownLog.Error().Err(failure).Msg("Shutting down due to service failure")
	}

	exitTimer := time.AfterFunc(forceExitAfter, func() {
		removePIDFile(pidfile)
		shutdownLog.Error().Msg("Clean shutdown took too long, forcing exit")
		os.Exit(0)
	})
	defer exitTimer.Stop()

	drainCtx, drainCancel := context.WithTimeout(context.Background(), conf.Listener.ShutdownTimeout)
	defer drainCancel()
	// Stop logs effects that outlive the drain timeout.
	_ = svcs.Stop(drainCtx)
	return failure
}

// openLog configures zerolog output, returns func to close logfile.
func openLog(level string, logfile string, json bool) (close func(), err error) {
	lvl, err := parseLevel(level)
	if err != nil {
		return nil, err
	}
	zerolog.SetGlobalLevel(lvl)

	w, color, close, err := logWriter(logfile)
	if err != nil {
		return nil, err
	}
	w = zerolog.SyncWriter(w)
	if json {
		log.Logger = log.Output(w)
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: w, NoColor: !color})
	}
	return close, nil
}

// parseLevel accepts the level names listed in the configuration usage, in any case.
func parseLevel(level string) (zerolog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel, nil
	case "info":
		return zerolog.InfoLevel, nil
	case "warn":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	}
	return zerolog.NoLevel, fmt.Errorf("log level %q not one of: debug, info, warn, error", level)
}

// logWriter opens the log destination; stderr and stdout are special names.
func logWriter(logfile string) (w io.Writer, color bool, close func(), err error) {
	color = runtime.GOOS != "windows"
	switch logfile {
	case "stderr":
		return os.Stderr, color, func() {}, nil
	case "stdout":
		return os.Stdout, color, func() {}, nil
	}

	logf, err := os.OpenFile(logfile, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o666)
	if err != nil {
		return nil, false, nil, err
	}
	bw := bufio.NewWriter(logf)
	return bw, false, func() {
		_ = bw.Flush()
		_ = logf.Close()
	}, nil
}

func writePIDFile(pidfile string) error {
	if pidfile == "" {
		return nil
	}
	return os.WriteFile(pidfile, fmt.Appendf(nil, "%v\n", os.Getpid()), 0o644)
}

// removePIDFile removes the PID file if created.
func removePIDFile(pidfile string) {
	if pidfile == "" {
		return
	}
	if err := os.Remove(pidfile); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Error().Str("phase", "shutdown").Err(err).Str("path", pidfile).
			Msg("Failed to remove pidfile")
	}
}
