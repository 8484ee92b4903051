package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alexkorol/last-closed-tabgroups/internal/config"
	"github.com/alexkorol/last-closed-tabgroups/internal/daemon"
	"github.com/alexkorol/last-closed-tabgroups/internal/ipc"
	"github.com/alexkorol/last-closed-tabgroups/internal/kv"
	"github.com/alexkorol/last-closed-tabgroups/internal/platform"
	"github.com/alexkorol/last-closed-tabgroups/internal/runtimepath"
	"github.com/alexkorol/last-closed-tabgroups/internal/session"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printMainUsage(os.Stdout)
		os.Exit(0)
	}

	switch os.Args[1] {
	case "daemon":
		os.Exit(runDaemon(os.Args[2:]))
	case "status":
		os.Exit(runStatus(os.Args[2:]))
	case "list":
		os.Exit(runList(os.Args[2:]))
	case "restore":
		os.Exit(runRestore(os.Args[2:]))
	case "pick":
		os.Exit(runPick(os.Args[2:]))
	case "clear":
		os.Exit(runClear(os.Args[2:]))
	case "close":
		os.Exit(runClose(os.Args[2:]))
	case "windows":
		os.Exit(runWindows(os.Args[2:]))
	case "displays":
		os.Exit(runDisplays(os.Args[2:]))
	case "config":
		os.Exit(runConfig(os.Args[2:]))
	case "mcp":
		os.Exit(runMCP(os.Args[2:]))
	case "version":
		fmt.Println(version)
		os.Exit(0)
	case "help", "-h", "--help":
		printMainUsage(os.Stdout)
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printMainUsage(os.Stderr)
		os.Exit(2)
	}
}

func printMainUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: lastclosed <command> [options]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  daemon              Start the lastclosed daemon (foreground)")
	fmt.Fprintln(w, "  status              Show daemon status")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  list                List saved windows")
	fmt.Fprintln(w, "  restore             Restore saved windows")
	fmt.Fprintln(w, "  pick                Choose saved windows to restore (--close: open windows to close)")
	fmt.Fprintln(w, "  clear               Discard the saved session")
	fmt.Fprintln(w, "  windows             List open browser windows")
	fmt.Fprintln(w, "  close               Save open windows and close them")
	fmt.Fprintln(w, "  displays            List displays left to right")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  config validate     Validate configuration")
	fmt.Fprintln(w, "  config print        Print configuration")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  mcp serve           Start MCP server (stdio transport)")
	fmt.Fprintln(w, "  version             Print the version")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Run 'lastclosed <command> --help' for command-specific options.")
}

func runDaemon(args []string) int {
	fs := flag.NewFlagSet("daemon", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: lastclosed daemon [--config PATH]")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Connect to the browser's DevTools endpoint, save the session when the")
		fmt.Fprintln(os.Stderr, "last window closes and restore it when the browser starts again.")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Flags:")
		fs.PrintDefaults()
	}
	configPath := fs.String("config", "", "Config file path (default: ~/.config/lastclosed/config.yaml)")
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "daemon takes no arguments")
		fs.Usage()
		return 2
	}

	path := *configPath
	if path == "" {
		var err error
		path, err = config.DefaultConfigPath()
		if err != nil {
			log.Fatalf("Failed to resolve config path: %v", err)
		}
	}
	res, err := config.LoadFromPath(path)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	cfg := res.Config
	log.Printf("Configuration loaded (devtools: %s, restore on startup: %v)", cfg.DevToolsURL, cfg.RestoreOnStartup)

	var level slog.LevelVar
	level.Set(cfg.SlogLevel())
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &level}))

	stateFile, err := cfg.ResolvedStateFile()
	if err != nil {
		log.Fatalf("Failed to resolve state file: %v", err)
	}
	log.Printf("Saved session stored in %s", stateFile)

	displays := platform.NewX11Displays()
	defer displays.Disconnect()

	d, err := daemon.New(daemon.Options{
		Config:     cfg,
		ConfigPath: path,
		Version:    version,
		Store:      session.NewStore(kv.NewFile(stateFile)),
		Displays:   displays,
		Logger:     logger,
		Level:      &level,
	})
	if err != nil {
		log.Fatalf("Failed to create daemon: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	socketPath, err := runtimepath.SocketPath()
	if err != nil {
		log.Fatalf("Failed to resolve IPC socket path: %v", err)
	}
	ipcServer, err := ipc.NewServer(socketPath, d)
	if err != nil {
		log.Fatalf("Failed to create IPC server: %v", err)
	}
	if err := ipcServer.Start(ctx); err != nil {
		log.Fatalf("Failed to start IPC server: %v", err)
	}
	defer ipcServer.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	go func() {
		for sig := range sigCh {
			switch sig {
			case syscall.SIGHUP:
				log.Println("Received SIGHUP, reloading config...")
				if err := d.Reload(); err != nil {
					log.Printf("Config reload failed: %v", err)
				}
			default:
				log.Println("Shutting down lastclosed daemon...")
				cancel()
				return
			}
		}
	}()

	log.Printf("lastclosed daemon %s started", version)
	if err := d.Run(ctx); err != nil {
		log.Printf("Daemon error: %v", err)
		return 1
	}
	return 0
}

func runStatus(args []string) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: lastclosed status")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Show daemon status via IPC.")
	}
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "status takes no arguments")
		fs.Usage()
		return 2
	}

	client := ipc.NewClient()
	status, err := client.GetStatus()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	printStatus(os.Stdout, status)
	return 0
}

func printStatus(w io.Writer, status *ipc.StatusData) {
	fmt.Fprintf(w, "daemon_running: %v\n", status.DaemonRunning)
	fmt.Fprintf(w, "connected:      %v\n", status.Connected)
	if status.Browser != "" {
		fmt.Fprintf(w, "browser:        %s\n", status.Browser)
	}
	fmt.Fprintf(w, "open_windows:   %d\n", status.OpenWindows)
	fmt.Fprintf(w, "restoring:      %v\n", status.Restoring)
	fmt.Fprintf(w, "saved_windows:  %d\n", status.SavedWindows)
	if status.SavedAt != nil {
		fmt.Fprintf(w, "saved_at:       %s\n", status.SavedAt.Local().Format("2006-01-02 15:04:05"))
	}
	fmt.Fprintf(w, "uptime_seconds: %d\n", status.UptimeSeconds)
}

func runDisplays(args []string) int {
	fs := flag.NewFlagSet("displays", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: lastclosed displays")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "List the displays the daemon sees, ordered left to right.")
	}
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 2
	}

	client := ipc.NewClient()
	data, err := client.GetDisplays()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	for i, d := range data.Displays {
		fmt.Printf("%d  %-12s %dx%d+%d+%d\n", i, d.ID, d.Bounds.Width, d.Bounds.Height, d.Bounds.Left, d.Bounds.Top)
	}
	return 0
}

func runConfig(args []string) int {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		fmt.Fprintln(os.Stderr, "Usage:")
		fmt.Fprintln(os.Stderr, "  lastclosed config validate [--path PATH]")
		fmt.Fprintln(os.Stderr, "  lastclosed config print [--path PATH] [--defaults]")
		return 2
	}

	switch args[0] {
	case "validate":
		fs := flag.NewFlagSet("validate", flag.ContinueOnError)
		fs.SetOutput(os.Stderr)
		path := fs.String("path", "", "Config file path (default: ~/.config/lastclosed/config.yaml)")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}

		res, err := loadConfig(*path)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		if res.File == "" {
			fmt.Println("config: ok (no file, using defaults)")
			return 0
		}
		fmt.Printf("config: ok (%s)\n", res.File)
		return 0

	case "print":
		fs := flag.NewFlagSet("print", flag.ContinueOnError)
		fs.SetOutput(os.Stderr)
		path := fs.String("path", "", "Config file path (default: ~/.config/lastclosed/config.yaml)")
		printDefaults := fs.Bool("defaults", false, "Print built-in defaults (no files)")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}

		cfg := config.DefaultConfig()
		if !*printDefaults {
			res, err := loadConfig(*path)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				return 1
			}
			cfg = res.Config
			if res.File != "" {
				fmt.Printf("# source: %s\n", res.File)
			}
		}
		if stateFile, err := cfg.ResolvedStateFile(); err == nil {
			fmt.Printf("# resolved_state_file: %s\n", stateFile)
		}
		data, err := cfg.Marshal()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		fmt.Print(string(data))
		return 0

	default:
		fmt.Fprintf(os.Stderr, "Unknown config subcommand: %s\n", args[0])
		return 2
	}
}

func loadConfig(path string) (*config.LoadResult, error) {
	if path == "" {
		var err error
		path, err = config.DefaultConfigPath()
		if err != nil {
			return nil, err
		}
	}
	return config.LoadFromPath(path)
}
