package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/knadh/koanf/v2"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/bluetuith-org/btprofiles/avrcp"
	"github.com/bluetuith-org/btprofiles/config"
	"github.com/bluetuith-org/btprofiles/hfp"
	"github.com/bluetuith-org/btprofiles/shim"
)

// These values are set at compile-time.
var (
	Version  = ""
	Revision = ""
)

// Run runs the commandline application.
func Run() error {
	return newApp().Run(os.Args)
}

// newApp returns a new commandline application.
func newApp() *cli.App {
	cli.VersionPrinter = func(cCtx *cli.Context) {
		fmt.Fprintf(cCtx.App.Writer, "%s (%s)\n", Version, Revision)
	}

	return &cli.App{
		Name:                   "btprofiled",
		Usage:                  "Bluetooth HFP/AVRCP profile controller.",
		Version:                Version + " (" + Revision + ")",
		Description:            "A controller daemon for the Hands-Free and remote-control Bluetooth profiles.",
		Copyright:              "(c) bluetuith-org.",
		Compiled:               time.Now(),
		EnableBashCompletion:   true,
		UseShortOptionHandling: true,
		Suggest:                true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "shim.path",
				Aliases: []string{"p"},
				EnvVars: []string{"BTPROFILED_SHIM_PATH"},
				Usage:   "Specify a native helper executable to spawn.",
			},
			&cli.StringFlag{
				Name:    "shim.socket-path",
				Aliases: []string{"s"},
				EnvVars: []string{"BTPROFILED_SHIM_SOCKET"},
				Usage:   "Specify the unix socket the native helper serves on.",
			},
			&cli.IntFlag{
				Name:    "hfp.max-connections",
				Aliases: []string{"m"},
				EnvVars: []string{"BTPROFILED_HFP_MAX_CONNECTIONS"},
				Usage:   "Specify the maximum number of simultaneously connected hands-free devices.",
				Value:   1,
			},
			&cli.BoolFlag{
				Name:    "hfp.inband-ringing",
				Aliases: []string{"r"},
				EnvVars: []string{"BTPROFILED_HFP_INBAND_RINGING"},
				Usage:   "Send the local ringtone to the peer over the audio link while ringing.",
			},
			&cli.BoolFlag{
				Name:    "hfp.force-sco",
				EnvVars: []string{"BTPROFILED_HFP_FORCE_SCO"},
				Usage:   "Accept SCO audio connections regardless of call activity.",
			},
			&cli.BoolFlag{
				Name:    "hfp.audio-route-allowed",
				EnvVars: []string{"BTPROFILED_HFP_AUDIO_ROUTE_ALLOWED"},
				Usage:   "Permit routing call audio to hands-free devices.",
				Value:   true,
			},
			&cli.IntFlag{
				Name:    "avrcp.max-connections",
				EnvVars: []string{"BTPROFILED_AVRCP_MAX_CONNECTIONS"},
				Usage:   "Specify the maximum number of simultaneously connected remote-control devices.",
				Value:   1,
			},
			&cli.StringFlag{
				Name:    "avrcp.command-timeout",
				EnvVars: []string{"BTPROFILED_AVRCP_COMMAND_TIMEOUT"},
				Usage:   "Specify the remote-control browse command timeout. (For example, '5s')",
			},
			&cli.BoolFlag{
				Name:    "avrcp.volume-fixed",
				EnvVars: []string{"BTPROFILED_AVRCP_VOLUME_FIXED"},
				Usage:   "Mark the local volume as fixed; absolute volume commands are acknowledged but not applied.",
			},
			&cli.IntFlag{
				Name:    "avrcp.max-volume",
				EnvVars: []string{"BTPROFILED_AVRCP_MAX_VOLUME"},
				Usage:   "Specify the local mixer's volume index range.",
			},
			&cli.BoolFlag{
				Name:    "debug",
				Aliases: []string{"d"},
				EnvVars: []string{"BTPROFILED_DEBUG"},
				Usage:   "Log state machine transitions and helper traffic.",
			},
			&cli.BoolFlag{
				Name:    "generate",
				Aliases: []string{"g"},
				Usage:   "Generate configuration.",
				Action: func(cliCtx *cli.Context, _ bool) error {
					k := koanf.New(".")

					cliCtx.Command.Name = "global"

					conf := config.NewConfig()
					if err := conf.Load(k, cliCtx); err != nil {
						return err
					}

					return conf.GenerateAndSave(k)
				},
			},
		},
		Action: func(cliCtx *cli.Context) error {
			if cliCtx.Bool("generate") {
				return nil
			}

			// required for koanf to merge all global flags under the root namespace.
			cliCtx.Command.Name = "global"

			k, cfg := koanf.New("."), config.NewConfig()
			if err := cfg.Load(k, cliCtx); err != nil {
				return err
			}
			if err := cfg.ValidateValues(); err != nil {
				return err
			}

			return runDaemon(cliCtx, cfg)
		},
		ExitErrHandler: func(_ *cli.Context, err error) {
			if err == nil {
				return
			}

			printError(err)
		},
	}
}

// runDaemon wires the helper session to the profile services and
// blocks until the session ends or a termination signal arrives.
func runDaemon(cliCtx *cli.Context, cfg *config.Config) error {
	level := slog.LevelInfo
	if cliCtx.Bool("debug") {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if cfg.Values.Shim.Path == "" {
		printWarn("no helper executable configured, expecting a running helper on the socket")
	}

	session := shim.NewSession(cfg.Values.ShimConfig(), log)

	hfpService := hfp.NewService(session.Hfp(), session.Telephony(), cfg.Values.HfpConfig(), log)
	defer hfpService.Stop()

	avrcpService := avrcp.NewService(session.Avrcp(), session.Audio(cfg.Values.MaxVolume()), cfg.Values.AvrcpConfig(), log)
	defer avrcpService.Stop()

	if err := session.Start(hfpService, avrcpService); err != nil {
		return err
	}
	defer session.Stop()

	log.Info("profiles ready",
		"hfp_max_connections", cfg.Values.Hfp.MaxConnections,
		"inband_ringing", cfg.Values.Hfp.InbandRinging,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		defer stop()
		return session.Wait()
	})
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutting down")
		session.Stop()

		return nil
	})

	return group.Wait()
}
