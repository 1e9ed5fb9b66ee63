package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/dkeye/Drop/internal/adapters/rtc"
	"github.com/dkeye/Drop/internal/client"
	"github.com/dkeye/Drop/internal/config"
	"github.com/dkeye/Drop/internal/domain"
	"github.com/dkeye/Drop/internal/transfer"
)

const usage = `usage: drop-peer start [flags]
       drop-peer join SESSION_ID [flags]
`

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	flags := pflag.NewFlagSet("drop-peer", pflag.ContinueOnError)
	flags.String("relay-url", "", "relay websocket url")
	flags.String("send", "", "file to offer once connected")
	flags.String("out-dir", "", "directory for received files")
	flags.Bool("yes", false, "accept incoming files without asking")
	flags.String("log-level", "", "log level")
	flags.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flags.PrintDefaults()
	}
	if err := flags.Parse(os.Args[1:]); err != nil {
		os.Exit(2)
	}

	args := flags.Args()
	if len(args) == 0 || (args[0] == "join" && len(args) != 2) || (args[0] != "join" && args[0] != "start") {
		flags.Usage()
		os.Exit(2)
	}

	cfg, err := config.LoadPeer(flags)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	config.ApplyLogLevel(cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var join domain.SessionID
	if args[0] == "join" {
		join = domain.SessionID(args[1])
	}
	if err := run(ctx, cfg, join); err != nil {
		log.Error().Err(err).Msg("drop-peer failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.PeerConfig, join domain.SessionID) error {
	var outbound *transfer.File
	if cfg.SendPath != "" {
		f, fh, err := transfer.OpenFile(cfg.SendPath)
		if err != nil {
			return err
		}
		defer fh.Close()
		outbound = &f
	}

	sig, err := client.Dial(ctx, cfg.RelayURL)
	if err != nil {
		return err
	}
	rcfg := rtc.Config{STUNURLs: cfg.STUNURLs, Channel: rtc.DefaultChannelOptions()}
	if cfg.SendTimeout > 0 {
		rcfg.Channel.SendTimeout = cfg.SendTimeout
	}
	peer := client.NewPeer(sig, rcfg)
	defer peer.Close()

	done := make(chan error, 1)
	finish := func(err error) {
		select {
		case done <- err:
		default:
		}
	}

	var ctl *transfer.Controller
	peer.OnChannel = func(ch *rtc.DataChannel) {
		ctl = transfer.NewController(ch, transfer.Events{
			OnRequest: func(req transfer.Request) {
				go decide(ctl, req, cfg.AutoAccept)
			},
			OnProgress: func(received, total uint64) {
				log.Debug().Uint64("received", received).Uint64("total", total).Msg("progress")
			},
			OnComplete: func(r transfer.Received) {
				path, err := save(cfg.OutDir, r)
				if err == nil {
					fmt.Printf("received %s (%d bytes)\n", path, len(r.Data))
				}
				finish(err)
			},
			OnSent: func(name string) {
				flushCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
				defer cancel()
				if err := ch.Flush(flushCtx); err != nil {
					finish(fmt.Errorf("flush: %w", err))
					return
				}
				fmt.Printf("sent %s\n", name)
				finish(nil)
			},
			OnRejected: func(name string) {
				fmt.Printf("peer declined %s\n", name)
				finish(nil)
			},
			OnFailed: finish,
		}, transfer.Options{StallTimeout: cfg.StallTimeout})
		ch.Bind(ctl)
	}

	runErr := make(chan error, 1)
	go func() { runErr <- peer.Run(ctx) }()

	if join == "" {
		if err := peer.StartSession(); err != nil {
			return err
		}
	} else if err := peer.JoinSession(join); err != nil {
		return err
	}

	select {
	case id := <-peer.Sessions():
		if join == "" {
			fmt.Printf("session %s\nshare it: drop-peer join %s\n", id, id)
		}
	case err := <-runErr:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-peer.Ready():
		log.Info().Msg("peer channel open")
	case err := <-runErr:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}

	if outbound != nil {
		if err := ctl.Select(*outbound); err != nil {
			return err
		}
		if err := ctl.RequestSend(); err != nil {
			return err
		}
	}

	select {
	case err := <-done:
		return err
	case err := <-runErr:
		if errors.Is(err, client.ErrPeerDisconnected) {
			select {
			case err := <-done:
				return err
			case <-time.After(time.Second):
			}
		}
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func decide(ctl *transfer.Controller, req transfer.Request, auto bool) {
	if auto {
		_ = ctl.Accept()
		return
	}
	fmt.Printf("accept %s (%d bytes)? [y/N] ", transfer.SafeName(req.Name), req.Size)
	line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	if strings.EqualFold(strings.TrimSpace(line), "y") {
		if err := ctl.Accept(); err != nil {
			log.Error().Err(err).Msg("accept")
		}
		return
	}
	if err := ctl.Reject(); err != nil {
		log.Error().Err(err).Msg("reject")
	}
}

func save(dir string, r transfer.Received) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}
	path := filepath.Join(dir, transfer.SafeName(r.Name))
	if err := os.WriteFile(path, r.Data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}
