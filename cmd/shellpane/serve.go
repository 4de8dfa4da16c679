package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/pslog"
	"pkt.systems/shellpane"
	"pkt.systems/shellpane/internal/appconfig"
	"pkt.systems/shellpane/sshserver"
)

func newServeCmd() *cobra.Command {
	var cfgPath string
	var addr string
	var noColor bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve terminal sessions over SSH",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.SSH.Addr = addr
			}
			serverCfg := toServerConfig(cfg)
			serverCfg.SSH.NoColor = noColor

			server, err := shellpane.New(serverCfg, shellpane.ServerDeps{Logger: logger}, shellpane.WithSSH())
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := server.Stop(stopCtx); err != nil {
					logger.Warn("server stop failed", "err", err)
				}
			}()
			if err := server.Start(ctx); err != nil {
				return err
			}
			return server.Wait()
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVar(&addr, "addr", "", "override ssh.addr")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "render without colors")
	return cmd
}

func toServerConfig(cfg appconfig.Config) shellpane.ServerConfig {
	return shellpane.ServerConfig{
		Session:    cfg.SessionConfig(),
		HistoryDir: cfg.HistoryDir(),
		SSH: sshserver.Config{
			Addr:               cfg.SSH.Addr,
			HostKeyPath:        cfg.SSH.HostKeyPath,
			AuthorizedKeysPath: cfg.SSH.AuthorizedKeysPath,
			TOTPSecret:         cfg.SSH.TOTPSecret,
		},
	}
}
