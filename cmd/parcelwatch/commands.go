package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"parcelwatch/internal/api"
	"parcelwatch/internal/arcgis"
	"parcelwatch/internal/bot"
	"parcelwatch/internal/catalog"
	"parcelwatch/internal/config"
	"parcelwatch/internal/detect"
	"parcelwatch/internal/geojson"
	"parcelwatch/internal/notify"
	"parcelwatch/internal/snapshot"
	"parcelwatch/internal/state"
	"parcelwatch/internal/telegram"
	"parcelwatch/internal/watchlist"
)

type app struct {
	cfg    *config.Config
	opts   options
	log    *slog.Logger
	stdout io.Writer

	// overridable in tests
	httpClient  *http.Client
	telegramURL string
}

func (a *app) run(ctx context.Context) error {
	switch a.opts.command {
	case "fetch":
		return a.fetch(ctx)
	case "detect":
		return a.detect(ctx)
	case "bot":
		return a.bot(ctx)
	case "serve":
		return a.serve(ctx)
	}
	return fmt.Errorf("%w: unknown command %q", errUsage, a.opts.command)
}

func (a *app) fetch(ctx context.Context) error {
	c := arcgis.New(arcgis.Config{
		BoundaryURL: a.cfg.GIS.BoundaryURL,
		ParcelURL:   a.cfg.GIS.ParcelURL,
		City:        a.cfg.GIS.City,
		ChunkSize:   a.cfg.GIS.ChunkSize,
		Pause:       time.Duration(a.cfg.GIS.PauseSeconds * float64(time.Second)),
	}, a.httpClient, a.log)

	ds, err := c.FetchCollection(ctx)
	if err != nil {
		return fmt.Errorf("fetch parcels: %w", err)
	}
	if err := state.WriteFileAtomic(a.cfg.Paths.Current, ds.Raw); err != nil {
		return fmt.Errorf("write %s: %w", a.cfg.Paths.Current, err)
	}
	fmt.Fprintf(a.stdout, "Wrote %d features to %s\n", len(ds.Collection.Features), a.cfg.Paths.Current)
	return nil
}

func (a *app) watchlist() (watchlist.Set, error) {
	w, err := watchlist.Load(a.cfg.Paths.Watchlist)
	if err != nil {
		return nil, err
	}
	return w.Merge(watchlist.New(a.cfg.Watchlist...)), nil
}

func (a *app) detect(ctx context.Context) error {
	current, err := geojson.Load(a.cfg.Paths.Current)
	if err != nil {
		if errors.Is(err, geojson.ErrMalformed) {
			return fmt.Errorf("%w: %w", detect.ErrMalformedDataset, err)
		}
		return fmt.Errorf("read current dataset: %w", err)
	}
	w, err := a.watchlist()
	if err != nil {
		return err
	}

	r := &detect.Runner{
		Store:       state.NewFileStore(a.cfg.Paths.Baseline),
		SummaryPath: a.cfg.Paths.Summary,
		Index:       snapshot.Options{KeyField: a.cfg.Index.KeyField, Fields: a.cfg.Index.Fields},
		Watchlist:   w,
		SampleSize:  a.cfg.SampleSize,
		Logger:      a.log,
	}
	s, err := r.Run(ctx, current)
	if err != nil {
		return err
	}

	text := notify.Format(s, a.cfg.Telegram.Title)
	fmt.Fprintln(a.stdout, text)
	if !a.opts.sendTelegram {
		return nil
	}
	n := &notify.Telegram{ChatID: a.cfg.Telegram.ChatID, Logger: a.log}
	if a.cfg.Telegram.Token != "" {
		n.Sender = a.telegram()
	}
	return n.Notify(ctx, text)
}

func (a *app) telegram() *telegram.Client {
	opts := []telegram.Option{telegram.WithLogger(a.log)}
	if a.telegramURL != "" {
		opts = append(opts, telegram.WithBaseURL(a.telegramURL))
	}
	if a.httpClient != nil {
		opts = append(opts, telegram.WithHTTPClient(a.httpClient))
	}
	return telegram.New(a.cfg.Telegram.Token, opts...)
}

func (a *app) catalog() *catalog.Files {
	return &catalog.Files{
		ParcelsPath:   a.cfg.Paths.Current,
		SummaryPath:   a.cfg.Paths.Summary,
		WatchlistPath: a.cfg.Paths.Watchlist,
		Inline:        watchlist.New(a.cfg.Watchlist...),
		KeyField:      a.cfg.Index.KeyField,
	}
}

func (a *app) newBot(src catalog.Source) *bot.Bot {
	return &bot.Bot{
		API:    a.telegram(),
		Source: src,
		Cursor: state.Cursor{Path: a.cfg.Paths.Offset},
		Logger: a.log,
	}
}

func (a *app) bot(ctx context.Context) error {
	if a.cfg.Telegram.Token == "" {
		return errors.New("TELEGRAM_BOT_TOKEN is required")
	}
	return a.newBot(a.catalog()).Run(ctx)
}

func (a *app) serve(ctx context.Context) error {
	src := a.catalog()
	srv := &http.Server{
		Addr:              a.cfg.Listen,
		Handler:           api.New(src, a.log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.log.Info("api: listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdown)
	})
	switch {
	case a.opts.noBot:
	case a.cfg.Telegram.Token == "":
		a.log.Warn("bot: TELEGRAM_BOT_TOKEN not set; serving API only")
	default:
		b := a.newBot(src)
		g.Go(func() error { return b.Run(gctx) })
	}
	return g.Wait()
}
