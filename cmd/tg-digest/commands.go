package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/blockedby/tg-digest/internal/config"
	"github.com/blockedby/tg-digest/internal/repository"
	"github.com/blockedby/tg-digest/internal/scheduler"
	"github.com/blockedby/tg-digest/internal/window"
	"gopkg.in/yaml.v3"
)

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func runOnce(parent context.Context, date string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signalContext(parent)
	defer stop()
	if timeout := cfg.RunTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	a, err := newApp(ctx, cfg, log, true)
	if err != nil {
		return err
	}
	defer a.Close()

	win := window.Yesterday(time.Now(), cfg.Location())
	if date != "" {
		if win, err = window.ForDate(date, cfg.Location()); err != nil {
			return err
		}
	}

	event, err := a.runner.RunWindow(ctx, win)
	if err != nil {
		log.Error().Err(err).Msg("run failed")
		return err
	}

	fmt.Printf("date: %s | topics: %d | messages: %d\n", event.DateLabel, event.Topics, event.Messages)
	for _, f := range event.Files {
		fmt.Printf("saved: %s\n", f)
	}
	for table, n := range event.Loaded {
		fmt.Printf("loaded: %d rows -> %s\n", n, table)
	}
	if a.repo != nil && len(event.Loaded) > 0 {
		if err := printDayStats(ctx, os.Stdout, a.repo, event.DateLabel); err != nil {
			log.Warn().Err(err).Msg("failed to read stored row counts")
		}
	}
	return nil
}

func runSchedule(parent context.Context) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signalContext(parent)
	defer stop()

	a, err := newApp(ctx, cfg, log, true)
	if err != nil {
		return err
	}
	defer a.Close()

	s := scheduler.New(cfg.Location(), cfg.RunTimeout(), log.Component("scheduler"))
	err = s.AddJob("digest", cfg.Schedule, func(ctx context.Context) error {
		_, err := a.runner.Run(ctx)
		return err
	})
	if err != nil {
		return err
	}

	s.Start()
	if next, ok := s.Next("digest"); ok {
		log.Info().Time("next_run", next).Str("zone", cfg.Location().String()).Msg("scheduler started")
	}

	<-ctx.Done()
	log.Info().Msg("received shutdown signal")

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	s.Stop(stopCtx)
	return nil
}

func runLoad(parent context.Context, date string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required for load")
	}

	ctx, stop := signalContext(parent)
	defer stop()

	a, err := newApp(ctx, cfg, log, false)
	if err != nil {
		return err
	}
	defer a.Close()

	win := window.Yesterday(time.Now(), cfg.Location())
	fileLabel, dateLabel := win.FileLabel(), win.DateLabel()
	if date != "" {
		if fileLabel, err = window.FileLabelFromDate(date); err != nil {
			return err
		}
		dateLabel = date
	}

	loaded, err := a.runner.Load(ctx, fileLabel)
	if err != nil {
		return err
	}
	if len(loaded) == 0 {
		fmt.Printf("no parquet files for %s in %s\n", fileLabel, cfg.OutDir)
	}
	for table, n := range loaded {
		fmt.Printf("loaded: %d rows -> %s\n", n, table)
	}
	if err := printDayStats(ctx, os.Stdout, a.repo, dateLabel); err != nil {
		log.Warn().Err(err).Msg("failed to read stored row counts")
	}
	return nil
}

// printDayStats writes the number of rows stored for dateLabel in each table.
func printDayStats(ctx context.Context, out io.Writer, repo *repository.Repository, dateLabel string) error {
	stats, err := repo.GetDayStats(ctx, dateLabel)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "stored %s: messages=%d member_count=%d report=%d\n",
		dateLabel, stats.Messages, stats.MemberCount, stats.Report)
	return nil
}

func runTopics(parent context.Context, chat string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	if chat != "" {
		cfg.TargetChat = chat
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signalContext(parent)
	defer stop()

	a, err := newApp(ctx, cfg, log, true)
	if err != nil {
		return err
	}
	defer a.Close()

	channel, err := a.client.ResolveChannel(ctx, cfg.TargetChat)
	if err != nil {
		return err
	}
	if !channel.IsForum {
		fmt.Printf("@%s is not a forum (no topics available)\n", channel.Username)
		return nil
	}

	topics, err := a.service.ListTopics(ctx, channel)
	if err != nil {
		return err
	}

	fmt.Printf("forum: %s (@%s)\n", channel.Title, channel.Username)
	fmt.Printf("found %d topics:\n\n", len(topics))
	for _, t := range topics {
		var flags []string
		if t.Pinned {
			flags = append(flags, "pinned")
		}
		if t.Closed {
			flags = append(flags, "closed")
		}
		line := fmt.Sprintf("  [%d] %s", t.ID, t.Title)
		if len(flags) > 0 {
			line += " (" + strings.Join(flags, ", ") + ")"
		}
		fmt.Println(line)
	}
	return nil
}

// runConfigCheck validates YAML files, or the effective configuration when
// no file is given.
func runConfigCheck(out io.Writer, paths []string) error {
	if len(paths) == 0 {
		cfg, err := config.LoadFile(cfgFile)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			fmt.Fprintf(out, "❌ configuration invalid: %v\n", err)
			return err
		}
		fmt.Fprintf(out, "✅ configuration valid (chat %s, zone %s, schedule %q)\n",
			cfg.TargetChat, cfg.Location(), cfg.Schedule)
		return nil
	}

	failed := 0
	for _, path := range paths {
		if err := checkConfigFile(path); err != nil {
			fmt.Fprintf(out, "❌ %s: %v\n", path, err)
			failed++
			continue
		}
		fmt.Fprintf(out, "✅ %s is valid\n", path)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d config files invalid", failed, len(paths))
	}
	return nil
}

func checkConfigFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}

	var cfg config.Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return fmt.Errorf("invalid YAML: %w", err)
	}
	return nil
}
