package main

/*
* linkd serves the demo service over links
 */

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli"
	"go.uber.org/zap"

	"mini-link/codec"
	"mini-link/internal/demo"
	"mini-link/link"
	"mini-link/logging"
	"mini-link/middleware"
	"mini-link/registry"
	"mini-link/server"
	"mini-link/transport"
)

func main() {
	app := cli.NewApp()
	app.Name = "linkd"
	app.Usage = "serve the demo service over bidirectional links"
	app.Version = "0.1.0"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   "name",
			Value:  "linkd",
			Usage:  "Name used for links and announcements",
			EnvVar: "LINK_NAME",
		},
		cli.StringFlag{
			Name:   "addr, a",
			Value:  "127.0.0.1:29345",
			Usage:  "Address to listen on",
			EnvVar: "LINK_ADDR",
		},
		cli.StringFlag{
			Name:   "websocket",
			Usage:  "Serve websocket upgrades on this path instead of raw TCP",
			EnvVar: "LINK_WEBSOCKET",
		},
		cli.StringFlag{
			Name:   "codec",
			Value:  "json",
			Usage:  "Argument encoding, json or gob; both ends must agree",
			EnvVar: "LINK_CODEC",
		},
		cli.StringFlag{
			Name:   "log-level",
			Value:  "info",
			Usage:  "debug, info, warn or error",
			EnvVar: "LINK_LOG_LEVEL",
		},
		cli.BoolFlag{
			Name:   "loopback-only",
			Usage:  "Only accept peers on a loopback address",
			EnvVar: "LINK_LOOPBACK_ONLY",
		},
		cli.BoolFlag{
			Name:   "local-only",
			Usage:  "Only accept peers using an address of this host",
			EnvVar: "LINK_LOCAL_ONLY",
		},
		cli.IntFlag{
			Name:   "workers",
			Usage:  "Maximum requests served at once across all links, 0 for no limit",
			EnvVar: "LINK_WORKERS",
		},
		cli.DurationFlag{
			Name:   "call-timeout",
			Value:  link.DefaultCallTimeout,
			Usage:  "How long calls to peers wait for a response",
			EnvVar: "LINK_CALL_TIMEOUT",
		},
		cli.DurationFlag{
			Name:   "handler-timeout",
			Usage:  "Fail requests that run longer than this, 0 to disable",
			EnvVar: "LINK_HANDLER_TIMEOUT",
		},
		cli.Float64Flag{
			Name:   "rate",
			Usage:  "Requests per second allowed per link, 0 to disable",
			EnvVar: "LINK_RATE",
		},
		cli.IntFlag{
			Name:   "burst",
			Value:  10,
			Usage:  "Burst size for --rate",
			EnvVar: "LINK_BURST",
		},
		cli.StringFlag{
			Name:   "announce-dir",
			Usage:  "Announce the bound address as a file in this directory",
			EnvVar: "LINK_ANNOUNCE_DIR",
		},
		cli.StringSliceFlag{
			Name:   "etcd",
			Usage:  "Announce the bound address in etcd at these endpoints",
			EnvVar: "LINK_ETCD",
		},
	}
	app.Action = serveCommand

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "linkd:", err)
		os.Exit(1)
	}
}

func serveCommand(c *cli.Context) (err error) {
	logger, err := logging.New("linkd", c.String("log-level"))
	if err != nil {
		return err
	}
	defer logger.Sync()

	cdc, err := codec.ByName(c.String("codec"))
	if err != nil {
		return err
	}

	linkOpts := []link.Option{
		link.WithCodec(cdc),
		link.WithCallTimeout(c.Duration("call-timeout")),
		link.WithMiddleware(middleware.LoggingMiddleware(logger)),
	}
	if n := c.Int("workers"); n > 0 {
		linkOpts = append(linkOpts, link.WithExecutor(link.NewPool(int64(n))))
	}
	if r := c.Float64("rate"); r > 0 {
		linkOpts = append(linkOpts, link.WithMiddleware(middleware.RateLimitMiddleware(r, c.Int("burst"))))
	}
	if d := c.Duration("handler-timeout"); d > 0 {
		linkOpts = append(linkOpts, link.WithMiddleware(middleware.TimeOutMiddleware(d)))
	}

	srvOpts := []server.Option{
		server.WithLogger(logger),
		server.WithLinkOptions(linkOpts...),
	}
	switch {
	case c.Bool("loopback-only"):
		srvOpts = append(srvOpts, server.WithAdmission(server.LoopbackOnly))
	case c.Bool("local-only"):
		srvOpts = append(srvOpts, server.WithAdmission(server.LocalOnly))
	}

	if dir := c.String("announce-dir"); dir != "" {
		srvOpts = append(srvOpts, server.WithAnnouncer(registry.NewFileAnnouncer(dir), server.DefaultAnnounceInterval))
	} else if endpoints := c.StringSlice("etcd"); len(endpoints) > 0 {
		a, err := registry.NewEtcdAnnouncer(endpoints, 10, logger)
		if err != nil {
			return err
		}
		defer a.Close()
		srvOpts = append(srvOpts, server.WithAnnouncer(a, server.DefaultAnnounceInterval))
	}

	svr := server.New(c.String("name"), demo.Factory(logger), srvOpts...)
	if path := c.String("websocket"); path != "" {
		ln, err := transport.ListenWebSocket("tcp", c.String("addr"), path)
		if err != nil {
			return err
		}
		if err := svr.Start(ln); err != nil {
			ln.Close()
			return err
		}
	} else if err := svr.Listen("tcp", c.String("addr")); err != nil {
		return err
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	logger.Info("shutting down", zap.String("signal", s.String()), zap.Int("links", svr.Links()))

	stopped := make(chan error, 1)
	go func() { stopped <- svr.Stop() }()
	select {
	case err = <-stopped:
		return err
	case <-time.After(10 * time.Second):
		return fmt.Errorf("timeout waiting for the server to stop")
	}
}
