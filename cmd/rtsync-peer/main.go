package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	commoncfg "github.com/redwoodjs/sdk-sub000/core/config"
	"github.com/redwoodjs/sdk-sub000/core/logx"
	"github.com/redwoodjs/sdk-sub000/core/reconnect"
	"github.com/redwoodjs/sdk-sub000/core/secret"
	"github.com/redwoodjs/sdk-sub000/sdk/transport"
)

type peerConfig struct {
	ServerURL      string
	Key            string
	AppURL         string
	Cookie         string
	ReconnectDelay time.Duration
	Backoff        bool
	RejectPending  bool
	Call           string
	Args           string
	Once           bool
	LogLevel       string
}

func (c *peerConfig) bindFlags(fs *flag.FlagSet) {
	delay, err := time.ParseDuration(commoncfg.GetEnv("RTSYNC_RECONNECT_DELAY", "5s"))
	if err != nil {
		delay = reconnect.DefaultDelay
	}
	fs.StringVar(&c.ServerURL, "server", commoncfg.GetEnv("RTSYNC_SERVER", "ws://127.0.0.1:8080/__realtime"), "coordinator WebSocket URL")
	fs.StringVar(&c.Key, "key", commoncfg.GetEnv("RTSYNC_KEY", ""), "group key; empty uses the coordinator default")
	fs.StringVar(&c.AppURL, "url", commoncfg.GetEnv("RTSYNC_URL", "/"), "application URL pushes are rendered for")
	fs.StringVar(&c.Cookie, "cookie", commoncfg.GetEnv("RTSYNC_COOKIE", ""), "Cookie header forwarded to the render application")
	fs.DurationVar(&c.ReconnectDelay, "reconnect-delay", delay, "wait between reconnect attempts")
	fs.BoolVar(&c.Backoff, "backoff", false, "use stepped backoff instead of a fixed reconnect delay")
	fs.BoolVar(&c.RejectPending, "reject-pending", false, "fail outstanding calls when the connection drops")
	fs.StringVar(&c.Call, "call", "", "call this target once connected (\"-\" for the default target)")
	fs.StringVar(&c.Args, "args", "[]", "JSON array of call arguments")
	fs.BoolVar(&c.Once, "once", false, "exit after the call completes")
	fs.StringVar(&c.LogLevel, "log-level", commoncfg.GetEnv("LOG_LEVEL", "info"), "log verbosity (all, debug, info, warn, error, fatal, none)")
}

func (c *peerConfig) policy() reconnect.Policy {
	if c.Backoff {
		return reconnect.Backoff()
	}
	return reconnect.Fixed(c.ReconnectDelay)
}

func parseArgs(s string) ([]any, error) {
	if s == "" {
		return nil, nil
	}
	var args []any
	if err := json.Unmarshal([]byte(s), &args); err != nil {
		return nil, fmt.Errorf("--args must be a JSON array: %w", err)
	}
	return args, nil
}

func main() {
	var cfg peerConfig
	cfg.bindFlags(flag.CommandLine)
	flag.Parse()
	logx.Configure(cfg.LogLevel)

	args, err := parseArgs(cfg.Args)
	if err != nil {
		logx.Log.Fatal().Err(err).Msg("invalid arguments")
	}

	renderer := &transport.RawRenderer{OnInstall: func(view []byte) {
		logx.Log.Info().Int("bytes", len(view)).Msg("view installed")
		_, _ = os.Stdout.Write(append(view, '\n'))
	}}
	tr, err := transport.New(transport.Config{
		ServerURL:            cfg.ServerURL,
		Key:                  cfg.Key,
		AppURL:               cfg.AppURL,
		Cookie:               cfg.Cookie,
		Reconnect:            cfg.policy(),
		RejectPendingOnClose: cfg.RejectPending,
		OnStateChange: func(s transport.State) {
			logx.Log.Debug().Str("state", s.String()).Msg("transport state")
		},
	}, renderer)
	if err != nil {
		logx.Log.Fatal().Err(err).Msg("transport")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runErr := make(chan error, 1)
	go func() { runErr <- tr.Run(ctx) }()
	logx.Log.Info().Str("server", cfg.ServerURL).Str("key", cfg.Key).Str("url", cfg.AppURL).
		Str("cookie", secret.MaskCookie(cfg.Cookie)).Msg("peer starting")

	if cfg.Call != "" {
		var target *string
		if cfg.Call != "-" {
			target = &cfg.Call
		}
		res, err := tr.Invoke(ctx, target, args)
		if err != nil {
			logx.Log.Error().Err(err).Str("target", cfg.Call).Msg("call failed")
		} else {
			logx.Log.Info().Str("target", cfg.Call).Msg("call complete")
			if b, ok := res.([]byte); ok {
				_, _ = os.Stdout.Write(append(b, '\n'))
			}
		}
		if cfg.Once {
			tr.Close()
			<-runErr
			if err != nil {
				os.Exit(1)
			}
			return
		}
	}

	if err := <-runErr; err != nil && !errors.Is(err, context.Canceled) {
		logx.Log.Fatal().Err(err).Msg("peer exited")
	}
}
