package main

import (
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"
)

func publishFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "ordering-key",
			Aliases: []string{"k"},
			Usage:   "Ordering key applied to every message",
		},
		&cli.StringSliceFlag{
			Name:    "attribute",
			Aliases: []string{"a"},
			Usage:   "Message attribute as key=value, may be repeated",
		},
	}
}

func parseAttributes(values []string) (map[string]string, error) {
	if len(values) == 0 {
		return nil, nil
	}
	attrs := make(map[string]string, len(values))
	for _, kv := range values {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid attribute %q, expected key=value", kv)
		}
		attrs[key] = value
	}
	return attrs, nil
}
