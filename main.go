package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/grego360/sense-hat-mqtt/config"
)

var (
	version       = flag.Bool("version", false, "Print version info")
	help          = flag.Bool("help", false, "Print help")
	configPath    = flag.String("config", "", "Path to the YAML configuration file")
	logLevel      = flag.String("log", "", "Log level (0=NONE, 1=ERROR, 2=WARN, 3=INFO, 4=DEBUG or the level name)")
	busBackend    = flag.String("bus", "mqtt", "Bus backend (mqtt or redis)")
	brokerHost    = flag.String("broker_host", "127.0.0.1", "Broker address")
	brokerPort    = flag.Int("broker_port", 1883, "Broker port")
	displayDriver = flag.String("display_driver", "sensehat", "Display driver (sensehat or virtual)")
)

const (
	ProjectName    = "sense-hat-mqtt"
	ProjectVersion = "1.0.0"
)

func printVersion() {
	fmt.Printf("%s v%s\n", ProjectName, ProjectVersion)
}

func printHelp() {
	printVersion()
	flag.PrintDefaults()
}

// applyFlags overrides cfg with the flags given on the command line. Flags
// left at their defaults do not mask values from the config file.
func applyFlags(cfg *config.Config) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "log":
			cfg.LogLevel = *logLevel
		case "bus":
			cfg.Bus.Backend = *busBackend
		case "broker_host":
			cfg.Bus.Host = *brokerHost
		case "broker_port":
			cfg.Bus.Port = *brokerPort
		case "display_driver":
			cfg.Display.Driver = *displayDriver
		}
	})
}

func main() {
	flag.Parse()

	if *version {
		printVersion()
		os.Exit(0)
	}

	if *help {
		printHelp()
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	applyFlags(cfg)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	level, err := ParseLogLevel(cfg.LogLevel)
	if err != nil {
		log.Fatalf("%v", err)
	}

	opts := &Options{
		LogLevel: level,
		Config:   cfg,
		Logger:   log.New(os.Stderr, "", log.LstdFlags),
	}

	app, err := NewAgentApp(opts)
	if err != nil {
		log.Fatalf("failed to create agent app: %v", err)
	}

	defer func() {
		if r := recover(); r != nil {
			app.Fault(fmt.Errorf("panic: %v", r))
			os.Exit(1)
		}
	}()

	if err := app.Start(); err != nil {
		app.Fault(err)
		os.Exit(1)
	}

	// Handle SIGINT and SIGTERM
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		app.log.Printf("Received %v, shutting down", sig)
		app.Destroy()
	case err := <-app.Faults():
		app.Fault(err)
		os.Exit(1)
	}
}
