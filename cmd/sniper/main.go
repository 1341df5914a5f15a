package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/apmfree78/snipper-sub000/pkg/app"
	"github.com/apmfree78/snipper-sub000/pkg/app/sniper"
	"github.com/apmfree78/snipper-sub000/pkg/config"
)

var configPath = flag.String("config", "config.yaml", "Path to configuration file")

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	var runner app.Runner = sniper.NewServer(cfg)
	if err := runner.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Sniper stopped with error: %v\n", err)
		os.Exit(1)
	}
}
