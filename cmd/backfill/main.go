package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v3"

	"github.com/xhad/siphon/internal/models"
	"github.com/xhad/siphon/pkg/broker"
	"github.com/xhad/siphon/pkg/config"
	"github.com/xhad/siphon/pkg/store"
)

type options struct {
	configPath string
	limit      int
	dryRun     bool
}

func main() {
	var opts options

	flag.StringVar(&opts.configPath, "config", "", "Path to config file")
	flag.IntVar(&opts.limit, "limit", 100, "Maximum number of requests to requeue")
	flag.BoolVar(&opts.dryRun, "dry-run", false, "List incomplete requests without publishing")
	flag.Parse()

	if err := run(opts); err != nil {
		log.Fatal(err)
	}
}

func getProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionSetItsString("jobs"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
	)
}

func run(opts options) error {
	godotenv.Load()

	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	db, err := store.NewWithConfig(store.StoreConfig{ConnString: cfg.Database.URL})
	if err != nil {
		return fmt.Errorf("failed to initialize store: %v", err)
	}
	defer db.Close()

	requests, err := db.ListIncomplete(ctx, opts.limit)
	if err != nil {
		return err
	}
	if len(requests) == 0 {
		color.Green("Nothing to do, all extraction requests are completed")
		return nil
	}

	if opts.dryRun {
		color.Yellow("Would requeue %d incomplete requests:", len(requests))
		for _, req := range requests {
			fmt.Printf("  %s  %s  (created %s)\n", req.ID, req.URL, req.CreatedAt.Format(time.RFC3339))
		}
		return nil
	}

	client := broker.NewClientWithConfig(broker.ClientConfig{URL: cfg.AMQP.URL})
	defer client.Close()
	publisher := broker.NewPublisher(client, cfg.AMQP.Queue)

	bar := getProgressBar(len(requests), "Requeueing extraction jobs...")
	var failed int
	for _, req := range requests {
		if err := publisher.Publish(ctx, models.JobFromRequest(req)); err != nil {
			failed++
			color.Red("\nFailed to publish %s: %v", req.ID, err)
		}
		bar.Add(1)
	}
	bar.Finish()

	if failed > 0 {
		return fmt.Errorf("%d of %d requests failed to requeue", failed, len(requests))
	}
	color.Green("\n✓ Requeued %d extraction requests", len(requests))
	return nil
}
