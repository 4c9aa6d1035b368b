package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/thywilljoshua/manuscript2book/internal/server"
	"github.com/thywilljoshua/manuscript2book/internal/sse"
)

func serveCmd(opts *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and progress stream",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.orch.Close()
			if addr == "" {
				addr = a.cfg.Server.Addr
			}

			manager := sse.NewManager(a.logger)
			go manager.Start(ctx)
			snapshots, unsubscribe := a.orch.Subscribe()
			defer unsubscribe()
			go manager.Relay(ctx, snapshots)

			events := sse.NewHandler(manager, func() sse.Event {
				return sse.NewRunEvent(a.orch.Snapshot())
			}, a.logger)

			srv := server.New(a.orch, events, server.Options{
				CORSOrigins:    a.cfg.Server.CORSOrigins,
				MaxUploadBytes: int64(a.cfg.Server.MaxUploadMB) << 20,
			}, a.logger)
			return srv.ListenAndServe(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config, :8080)")
	return cmd
}
