package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/joho/godotenv"
	"github.com/umputun/go-flags"
	"gopkg.in/natefinch/lumberjack.v2"

	"jobtrack/app/jobs"
	"jobtrack/app/service"
	"jobtrack/app/store"
	"jobtrack/app/web"
)

var opts struct {
	Port int `short:"p" long:"port" env:"PORT" default:"3000" description:"listening port"`

	Store struct {
		URL     string        `long:"url" env:"URL" required:"true" description:"store endpoint URL"`
		Key     string        `long:"key" env:"KEY" required:"true" description:"store API key"`
		Table   string        `long:"table" env:"TABLE" default:"jobs" description:"store table name"`
		Timeout time.Duration `long:"timeout" env:"TIMEOUT" default:"10s" description:"store call timeout"`
	} `group:"store" namespace:"store" env-namespace:"STORE"`

	CleanupInterval time.Duration `long:"cleanup" env:"CLEANUP_INTERVAL" default:"1h" description:"expired jobs cleanup interval"`

	Log struct {
		Enabled         bool   `long:"enabled" env:"ENABLED" description:"enable file logging"`
		Filename        string `long:"file" env:"FILE" default:"jobtrack.log" description:"location of log file"`
		MaxSize         int    `long:"max-size" env:"MAX_SIZE" default:"100" description:"maximum size in megabytes before rotation"`
		MaxAge          int    `long:"max-age" env:"MAX_AGE" default:"0" description:"maximum days to retain old log files"`
		MaxBackups      int    `long:"max-backups" env:"MAX_BACKUPS" default:"7" description:"maximum number of old log files to retain"`
		EnabledCompress bool   `long:"enabled-compress" env:"ENABLED_COMPRESS" description:"enable gzip compression of rotated files"`
	} `group:"log" namespace:"log" env-namespace:"JOBTRACK_LOG"`

	Dbg bool `long:"dbg" env:"DEBUG" description:"debug mode"`
}

var revision = "unknown"

func main() {
	fmt.Printf("jobtrack %s\n", revision)

	// optional .env, env vars already set take precedence
	_ = godotenv.Load()

	if _, err := flags.Parse(&opts); err != nil {
		os.Exit(2)
	}
	setupLogs()

	defer func() {
		if x := recover(); x != nil {
			log.Printf("[WARN] run time panic:\n%v", x)
			panic(x)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	signals(cancel) // handle SIGQUIT and SIGTERM

	client := store.New(opts.Store.URL, opts.Store.Key, opts.Store.Table, opts.Store.Timeout)
	repo := &jobs.Repository{Store: client}

	cleaner := service.Cleaner{Purger: repo, Interval: opts.CleanupInterval}
	go cleaner.Do(ctx)

	srv, err := web.New(web.Config{Jobs: repo, Version: revision})
	if err != nil {
		log.Fatalf("[ERROR] failed to create web server, %v", err)
	}
	if err := srv.Run(ctx, fmt.Sprintf(":%d", opts.Port)); err != nil {
		log.Fatalf("[ERROR] web server terminated, %v", err)
	}
}

// setupLogs initializes logging and returns the active writer, stdout or a
// rotated log file
func setupLogs() io.Writer {
	logOpts := []log.Option{log.Msec, log.LevelBraces}
	if opts.Dbg {
		logOpts = append(logOpts, log.Debug, log.CallerFile, log.CallerFunc)
	}

	if !opts.Log.Enabled {
		log.Setup(append(logOpts, log.Out(os.Stdout))...)
		return os.Stdout
	}

	fileLogger := &lumberjack.Logger{
		Filename:   opts.Log.Filename,
		MaxSize:    opts.Log.MaxSize,
		MaxBackups: opts.Log.MaxBackups,
		MaxAge:     opts.Log.MaxAge,
		Compress:   opts.Log.EnabledCompress,
	}
	log.Setup(append(logOpts, log.Out(fileLogger))...)
	return fileLogger
}

func signals(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	go func() {
		stacktrace := make([]byte, 8192)
		for sig := range sigChan {
			if sig == syscall.SIGQUIT { // catch SIGQUIT and print stack traces
				length := runtime.Stack(stacktrace, true)
				fmt.Println(string(stacktrace[:length]))
				continue
			}
			cancel() // terminate on SIGINT and SIGTERM
		}
	}()
	signal.Notify(sigChan, syscall.SIGQUIT, syscall.SIGINT, syscall.SIGTERM)
}
