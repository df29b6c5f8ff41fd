package main

/*
* linkctl calls a running linkd
 */

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/urfave/cli"

	"mini-link/client"
	"mini-link/codec"
	"mini-link/internal/demo"
	"mini-link/link"
	"mini-link/logging"
	"mini-link/registry"
)

func main() {
	app := cli.NewApp()
	app.Name = "linkctl"
	app.Usage = "call the demo service of a running linkd"
	app.Version = "0.1.0"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   "addr, a",
			Value:  "127.0.0.1:29345",
			Usage:  "Address of linkd",
			EnvVar: "LINK_ADDR",
		},
		cli.StringFlag{
			Name:   "websocket",
			Usage:  "Connect to this ws:// url instead of --addr",
			EnvVar: "LINK_WEBSOCKET",
		},
		cli.DurationFlag{
			Name:   "call-timeout",
			Value:  30 * time.Second,
			Usage:  "How long to wait for each response",
			EnvVar: "LINK_CALL_TIMEOUT",
		},
		cli.StringFlag{
			Name:   "codec",
			Value:  "json",
			Usage:  "Argument encoding, json or gob; both ends must agree",
			EnvVar: "LINK_CODEC",
		},
		cli.StringFlag{
			Name:   "log-level",
			Value:  "warn",
			Usage:  "debug, info, warn or error",
			EnvVar: "LINK_LOG_LEVEL",
		},
	}
	app.Commands = []cli.Command{
		cli.Command{
			Name:      "echo",
			Usage:     "Send text and print what comes back",
			ArgsUsage: "TEXT",
			Action:    echoCommand,
		},
		cli.Command{
			Name:      "upper",
			Usage:     "Upper-case text remotely",
			ArgsUsage: "TEXT",
			Action:    upperCommand,
		},
		cli.Command{
			Name:      "fail",
			Usage:     "Ask the service to fail with a message",
			ArgsUsage: "MESSAGE",
			Action:    failCommand,
		},
		cli.Command{
			Name:      "sum",
			Usage:     "Add two integers remotely",
			ArgsUsage: "A B",
			Action:    sumCommand,
		},
		cli.Command{
			Name:      "checksum",
			Usage:     "Send a file as an opaque blob and print its SHA-256",
			ArgsUsage: "FILE",
			Action:    checksumCommand,
		},
		cli.Command{
			Name:      "notify",
			Usage:     "Send a one-way notification",
			ArgsUsage: "MESSAGE",
			Action:    notifyCommand,
		},
		cli.Command{
			Name:  "list",
			Usage: "Print announced servers",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:   "dir",
					Usage:  "Announcement directory",
					EnvVar: "LINK_ANNOUNCE_DIR",
				},
				cli.StringSliceFlag{
					Name:   "etcd",
					Usage:  "etcd endpoints",
					EnvVar: "LINK_ETCD",
				},
				cli.StringFlag{
					Name:  "name",
					Value: "linkd",
					Usage: "Server name to list",
				},
			},
			Action: listCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "linkctl:", err)
		os.Exit(1)
	}
}

// withRemote dials linkd, runs fn against the demo stub and closes the link.
func withRemote(c *cli.Context, fn func(ctx context.Context, r *demo.Remote) error) error {
	logger, err := logging.NewConsole("linkctl", c.GlobalString("log-level"))
	if err != nil {
		return err
	}
	defer logger.Sync()

	cdc, err := codec.ByName(c.GlobalString("codec"))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.GlobalDuration("call-timeout"))
	defer cancel()

	opts := []link.Option{
		link.WithName("linkctl"),
		link.WithCodec(cdc),
		link.WithLogger(logger),
		link.WithCallTimeout(c.GlobalDuration("call-timeout")),
	}
	var l *link.Link
	if url := c.GlobalString("websocket"); url != "" {
		l, err = client.DialWebSocket(ctx, url, nil, opts...)
	} else {
		l, err = client.Dial(ctx, "tcp", c.GlobalString("addr"), nil, opts...)
	}
	if err != nil {
		return err
	}
	defer l.Close()

	return fn(ctx, demo.NewRemote(l.Remote()))
}

func firstArg(c *cli.Context) (string, error) {
	if c.NArg() < 1 {
		return "", errors.New("missing argument, see --help")
	}
	return c.Args().First(), nil
}

func echoCommand(c *cli.Context) error {
	text, err := firstArg(c)
	if err != nil {
		return err
	}
	return withRemote(c, func(ctx context.Context, r *demo.Remote) error {
		out, err := r.Echo(ctx, text)
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	})
}

func upperCommand(c *cli.Context) error {
	text, err := firstArg(c)
	if err != nil {
		return err
	}
	return withRemote(c, func(ctx context.Context, r *demo.Remote) error {
		out, err := r.Upper(ctx, text)
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	})
}

func failCommand(c *cli.Context) error {
	msg, err := firstArg(c)
	if err != nil {
		return err
	}
	return withRemote(c, func(ctx context.Context, r *demo.Remote) error {
		_, err := r.Fail(ctx, msg)
		var re *link.RemoteError
		if errors.As(err, &re) {
			fmt.Println("remote failure:", re.Message)
			return nil
		}
		if err == nil {
			return errors.New("fail did not fail")
		}
		return err
	})
}

func sumCommand(c *cli.Context) error {
	if c.NArg() != 2 {
		return errors.New("sum takes exactly two integers")
	}
	a, err := strconv.ParseInt(c.Args().Get(0), 10, 64)
	if err != nil {
		return err
	}
	b, err := strconv.ParseInt(c.Args().Get(1), 10, 64)
	if err != nil {
		return err
	}
	return withRemote(c, func(ctx context.Context, r *demo.Remote) error {
		out, err := r.Sum(ctx, a, b)
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	})
}

func checksumCommand(c *cli.Context) error {
	path, err := firstArg(c)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return withRemote(c, func(ctx context.Context, r *demo.Remote) error {
		out, err := r.Checksum(ctx, data)
		if err != nil {
			return err
		}
		fmt.Printf("%s  %s\n", out, path)
		return nil
	})
}

func notifyCommand(c *cli.Context) error {
	msg, err := firstArg(c)
	if err != nil {
		return err
	}
	return withRemote(c, func(ctx context.Context, r *demo.Remote) error {
		return r.Notify(msg)
	})
}

func listCommand(c *cli.Context) error {
	var a registry.Announcer
	switch {
	case c.String("dir") != "":
		a = registry.NewFileAnnouncer(c.String("dir"))
	case len(c.StringSlice("etcd")) > 0:
		ea, err := registry.NewEtcdAnnouncer(c.StringSlice("etcd"), 10, nil)
		if err != nil {
			return err
		}
		defer ea.Close()
		a = ea
	default:
		return errors.New("list needs --dir or --etcd")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	eps, err := a.List(ctx, c.String("name"))
	if err != nil {
		return err
	}
	for _, ep := range eps {
		fmt.Printf("%s\t%s\n", ep.Name, ep.Addr)
	}
	return nil
}
