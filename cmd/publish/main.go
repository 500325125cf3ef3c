package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/xhad/siphon/internal/models"
	"github.com/xhad/siphon/pkg/broker"
	"github.com/xhad/siphon/pkg/config"
	"github.com/xhad/siphon/pkg/store"
)

type options struct {
	configPath   string
	url          string
	session      string
	instructions string
}

func main() {
	opts := parseFlags()
	if opts.url == "" {
		fmt.Fprintln(os.Stderr, "usage: publish -url <page or folder URL> [-session id] [-instructions text]")
		os.Exit(2)
	}

	if err := run(opts); err != nil {
		log.Fatal(err)
	}
}

func parseFlags() options {
	var opts options

	flag.StringVar(&opts.configPath, "config", "", "Path to config file")
	flag.StringVar(&opts.url, "url", "", "URL to extract")
	flag.StringVar(&opts.session, "session", "", "User session id (random when empty)")
	flag.StringVar(&opts.instructions, "instructions", "", "Special instructions for the extraction")
	flag.Parse()

	return opts
}

func run(opts options) error {
	godotenv.Load()

	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := store.NewWithConfig(store.StoreConfig{ConnString: cfg.Database.URL})
	if err != nil {
		return fmt.Errorf("failed to initialize store: %v", err)
	}
	defer db.Close()

	session := opts.session
	if session == "" {
		session = uuid.NewString()
	}

	req := &models.ExtractionRequest{
		ID:                  uuid.NewString(),
		UserSessionID:       session,
		URL:                 opts.url,
		SpecialInstructions: opts.instructions,
	}
	if err := db.CreateRequest(ctx, req); err != nil {
		return err
	}

	client := broker.NewClientWithConfig(broker.ClientConfig{URL: cfg.AMQP.URL})
	defer client.Close()

	publisher := broker.NewPublisher(client, cfg.AMQP.Queue)
	if err := publisher.Publish(ctx, models.JobFromRequest(*req)); err != nil {
		color.Red("✗ %v", err)
		color.Yellow(notEnqueuedNotice(req.ID))
		return fmt.Errorf("request %s was not enqueued: %w", req.ID, err)
	}

	color.Green("✓ Queued extraction request %s", req.ID)
	color.Blue("  url: %s", req.URL)
	color.Blue("  session: %s", session)
	return nil
}

// notEnqueuedNotice tells the operator the request row exists but no
// job message reached the broker, and how to recover.
func notEnqueuedNotice(id string) string {
	return fmt.Sprintf("Request %s was created but stays incomplete; requeue it with the backfill command once the broker is reachable.", id)
}
