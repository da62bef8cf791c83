package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
)

const (
	appConfigDirName = "gameproto-dashboard"
	dashboardDBName  = "dashboard.db"
	secretsFileName  = "secrets.json"
	defaultPort      = 17888
)

var logger = log.New(os.Stderr, "[protodash] ", log.LstdFlags)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		logger.Printf("error: %v", err)
		stop()
		os.Exit(1)
	}
}

func usage(fs *flag.FlagSet) func() {
	return func() {
		out := fs.Output()
		fmt.Fprintf(out, "protodash (Go %s): game prototype dashboard client\n\n", runtime.Version())
		fmt.Fprintln(out, "Usage: protodash [global flags] <command> [flags]")
		fmt.Fprintln(out, "\nCommands:")
		fmt.Fprintln(out, "  dashboard   fetch the dashboard snapshot")
		fmt.Fprintln(out, "  create      create a game prototype")
		fmt.Fprintln(out, "  update      patch a game prototype")
		fmt.Fprintln(out, "  emit        emit a score/lives/level event")
		fmt.Fprintln(out, "  watch       stream emitted events")
		fmt.Fprintln(out, "  serve       run the local reference server")
		fmt.Fprintln(out, "  login       store an API token for the endpoint")
		fmt.Fprintln(out, "  logout      remove the stored API token")
		fmt.Fprintln(out, "\nGlobal flags:")
		fs.PrintDefaults()
	}
}

func defaultDBPath() string {
	base := appDataDir()
	if err := os.MkdirAll(base, 0o755); err != nil {
		logger.Printf("appdata mkdir failed: %v; using working directory", err)
		return filepath.Join(".", dashboardDBName)
	}
	return filepath.Join(base, dashboardDBName)
}

// appDataDir returns an OS-appropriate writable directory.
func appDataDir() string {
	if d, err := os.UserConfigDir(); err == nil && d != "" {
		return filepath.Join(d, appConfigDirName)
	}
	if h, err := os.UserHomeDir(); err == nil && h != "" {
		return filepath.Join(h, "."+appConfigDirName)
	}
	return "."
}

func envInt(k string, def int) int {
	if s := os.Getenv(k); s != "" {
		var v int
		if _, err := fmt.Sscanf(s, "%d", &v); err == nil {
			return v
		}
	}
	return def
}

func envString(k, def string) string {
	if s := os.Getenv(k); s != "" {
		return s
	}
	return def
}
