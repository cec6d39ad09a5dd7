package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/docopt/docopt-go"

	"github.com/golang/glog"

	"github.com/joho/godotenv"

	"codecollab.dev/collab/hub"
)

const HubCtlVersion = "0.1.0"

func init() {
	flag.Set("logtostderr", "true")
	flag.Set("stderrthreshold", "INFO")
}

func main() {
	usage := `Collab hub control.

Usage:
    hubctl serve [--port=<port>]

Options:
    -h --help      Show this screen.
    --version      Show version.
    --port=<port>  Listen port. Defaults to the PORT env var, then 8002.`

	opts, err := docopt.ParseArgs(usage, os.Args[1:], HubCtlVersion)
	if err != nil {
		panic(err)
	}

	if serve_, _ := opts.Bool("serve"); serve_ {
		serve(opts)
	}
}

func serve(opts docopt.Opts) {
	if err := godotenv.Load(); err != nil {
		glog.V(1).Infof("no .env file\n")
	}

	port, _ := opts.String("--port")
	if port == "" {
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = "8002"
	}

	cancelCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := hub.NewHubWithDefaults(cancelCtx)
	defer h.Close()

	glog.Infof("collab hub listening on port %s\n", port)
	if err := h.Router().Run(fmt.Sprintf(":%s", port)); err != nil {
		glog.Errorf("serve error = %s\n", err)
		os.Exit(1)
	}
}
