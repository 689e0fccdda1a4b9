package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"chart-hub/src/client"
	"chart-hub/src/config"
	"chart-hub/src/logger"
)

// -----------------------------------------------------------------------------

// watch connects to a running hub and prints every view change.
// Commands on stdin: r (refresh), f (force refresh), h (hide), s (show), q (quit).
func main() {

	// Parse command line flags
	configPath := flag.String("config", "../../config/default.yaml", "path to config file (.yaml or .toml)")
	url := flag.String("url", "", "hub websocket URL, overrides client.url")
	category := flag.String("category", "", "only print charts in this category")
	flag.Parse()

	// Load config
	conf, err := config.NewConfig(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	appLogger := logger.NewLogger(conf, "Watch")

	opts := client.OptionsFromConfig(conf.MConfig)
	if *url != "" {
		opts.URL = *url
	}

	c := client.NewClient(opts, appLogger.Named("Client"))
	r := newRenderer(os.Stdout, *category)
	unsubscribe := c.Subscribe(r.render)
	defer unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// A failed first dial is retried by the client itself.
	if err := c.Connect(ctx); err != nil {
		appLogger.Warning("Initial connect failed: %v", err)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	commands := make(chan string)
	go readCommands(commands)

	for {
		select {
		case <-quit:
			c.Close()
			return
		case cmd, ok := <-commands:
			if !ok || cmd == "q" {
				c.Close()
				return
			}
			runCommand(c, cmd, appLogger)
		}
	}
}

// -----------------------------------------------------------------------------

func readCommands(out chan<- string) {
	defer close(out)
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		out <- strings.ToLower(strings.TrimSpace(scanner.Text()))
	}
}

func runCommand(c *client.Client, cmd string, appLogger *logger.Logger) {
	var err error
	switch cmd {
	case "":
		return
	case "r":
		err = c.Refresh(false)
	case "f":
		err = c.Refresh(true)
	case "h":
		c.SetVisible(false)
	case "s":
		c.SetVisible(true)
	default:
		appLogger.Warning("Unknown command %q (r, f, h, s, q)", cmd)
	}
	if err != nil {
		appLogger.Warning("%s: %v", cmd, err)
	}
}
