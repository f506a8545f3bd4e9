package main

import (
	"bufio"
	"context"
	"fmt"
	"os"

	"cloud.google.com/go/pubsub"
	"github.com/urfave/cli/v2"

	"github.com/zoff-tech/go-pubsub-publisher/pkg/future"
)

func publish(c *cli.Context) error {
	attrs, err := parseAttributes(c.StringSlice("attribute"))
	if err != nil {
		return err
	}
	payloads := c.Args().Slice()
	if len(payloads) == 0 {
		payloads, err = readLines(os.Stdin)
		if err != nil {
			return fmt.Errorf("failed to read stdin: %w", err)
		}
	}

	ctx := c.Context
	d, err := setup(ctx, c.String("config-dir"))
	if err != nil {
		return err
	}

	orderingKey := c.String("ordering-key")
	results := make([]*future.Future[string], 0, len(payloads))
	for _, payload := range payloads {
		msg := &pubsub.Message{Data: []byte(payload), OrderingKey: orderingKey}
		if len(attrs) > 0 {
			msg.Attributes = make(map[string]string, len(attrs))
			for k, v := range attrs {
				msg.Attributes[k] = v
			}
		}
		results = append(results, d.client.Publish(ctx, msg))
	}

	var failed int
	for i, result := range results {
		id, err := result.Await(ctx)
		if err != nil {
			failed++
			d.logger.Error().Err(err).Int("index", i).Msg("publish failed")
			continue
		}
		fmt.Fprintln(c.App.Writer, id)
	}

	if err := d.close(context.WithoutCancel(ctx)); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d messages failed to publish", failed, len(results))
	}
	return nil
}

func readLines(f *os.File) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, scanner.Err()
}
