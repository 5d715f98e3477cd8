package commands

import (
	"context"
	"log/slog"

	"launchsync/internal/application"
	"launchsync/internal/archive"
	"launchsync/internal/bitable"
	"launchsync/internal/components/chrono"
	"launchsync/internal/components/telemetry"
	"launchsync/internal/launchtime"
	"launchsync/internal/notify"
	"launchsync/internal/scrapers/nextspaceflight"
	"launchsync/internal/syncer"
	"launchsync/lib/restyutil"
	libtelemetry "launchsync/lib/telemetry"
	"launchsync/lib/util/serviceutil"

	"github.com/go-resty/resty/v2"
)

var (
	config  application.Config
	closers []func() error
)

func loadGlobals() {
	cfg, err := application.LoadConfig(*configPath)
	if err != nil {
		serviceutil.Fatal("failed to read config", err)
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}

	closeLog, err := libtelemetry.InitSlog(*verbose, cfg.LogFile)
	if err != nil {
		serviceutil.Fatal("failed to open log file", err)
	}
	closers = append(closers, closeLog)
	config = cfg
}

func closeGlobals() {
	for i := len(closers) - 1; i >= 0; i-- {
		err := closers[i]()
		if err != nil {
			slog.Warn("failed to close", "err", err)
		}
	}
	closers = nil
}

func newClock() chrono.StandardImpl {
	clock, err := chrono.NewStandardImpl(config.TimeZone)
	if err != nil {
		serviceutil.Fatal("invalid time zone", err)
	}
	return clock
}

func newTel() telemetry.API {
	return telemetry.NewSlogAPI(slog.Default())
}

func instrumentHttp(client *resty.Client, tracerName string) {
	var output restyutil.InstrumentOutput
	if config.DumpHttp != "" {
		fs, err := restyutil.NewFilesystemOutput(config.DumpHttp)
		if err != nil {
			serviceutil.Fatal("failed to create http dump directory", err)
		}
		output = fs
	}
	restyutil.InstrumentClient(client, libtelemetry.Tracer(tracerName), output)
}

func newBitableClient(clock chrono.API, tel telemetry.API) *bitable.Client {
	err := config.Bitable.Validate()
	if err != nil {
		serviceutil.Fatal("bitable is not configured", err)
	}
	client := bitable.NewClient(
		config.Bitable.Credentials(),
		config.Bitable.Table(),
		bitable.ClientOptions{BaseURL: config.Bitable.BaseURL},
		clock,
		tel,
	)
	instrumentHttp(client.HTTP(), "launchsync/bitable")
	return client
}

func openArchive(ctx context.Context, clock chrono.API, tel telemetry.API) (archive.Archive, bool) {
	if config.Archive.File == "" && config.Archive.Url == "" {
		return archive.Archive{}, false
	}
	db, err := config.Archive.OpenDB()
	if err != nil {
		tel.ReportWarning("archive.open", err)
		return archive.Archive{}, false
	}
	closers = append(closers, db.Close)

	out, err := archive.New(ctx, db, clock, tel)
	if err != nil {
		tel.ReportWarning("archive.open", err)
		return archive.Archive{}, false
	}
	return out, true
}

// newService wires the service from the config, the bitable store is only
// created when withStore is set so fetching works without credentials.
func newService(ctx context.Context, clock chrono.API, tel telemetry.API, withStore bool) application.Service {
	fetcher, err := nextspaceflight.NewClient(config.Fetch.ClientOptions(), tel)
	if err != nil {
		serviceutil.Fatal("failed to create nextspaceflight client", err)
	}
	instrumentHttp(fetcher.HTTP(), "launchsync/nextspaceflight")

	extractor := nextspaceflight.NewExtractor(
		launchtime.NewNormalizer(clock.Location(), clock),
		clock,
		tel,
	)

	var store syncer.Store
	if withStore {
		store = bitable.NewStore(newBitableClient(clock, tel), tel)
	}

	options := []application.ServiceOption{
		application.WithDataDir(config.DataDir),
		application.WithPageSize(config.Bitable.PageSize),
	}
	history, ok := openArchive(ctx, clock, tel)
	if ok {
		options = append(options, application.WithHistory(history))
	}
	mailer := notify.NewMailer(config.Notify.Smtp, config.Notify.To)
	if mailer.Enabled() {
		options = append(options, application.WithNotifier(mailer))
	}

	return application.NewService(nextspaceflight.SourceName, fetcher, extractor, store, clock, tel, options...)
}

func executorOptions(delay *float64, preWriteCheck *bool, changed func(string) bool) syncer.ExecutorOptions {
	cfg := config.Execute
	if changed("delay") {
		seconds := *delay
		cfg.DelaySeconds = &seconds
	}
	if changed("pre-write-check") {
		cfg.PreWriteCheck = *preWriteCheck
	}
	return cfg.ExecutorOptions()
}
