package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "pubsub-publisher",
		Usage: "Publish ordered messages to a Google Cloud Pub/Sub topic",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config-dir",
				Aliases: []string{"c"},
				Usage:   "Directory containing publisher.yaml and publisher.<ENVIRONMENT>.yaml",
				EnvVars: []string{"PUBLISHER_CONFIG_DIR"},
				Value:   ".",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "publish",
				Usage:     "Publish messages given as arguments, or one per stdin line",
				ArgsUsage: "[message...]",
				Flags:     publishFlags(),
				Action:    publish,
			},
			{
				Name:   "relay",
				Usage:  "Relay pending outbox messages to the topic until interrupted",
				Action: relay,
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
