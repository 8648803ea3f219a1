package main

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/varoOP/seasondb/internal/app"
	"github.com/varoOP/seasondb/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the generated site, datasets and metrics for preview",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			srv := server.New(a.Logger(), a.Filesystem(), a.Paths().OutputDir, a.Partitions(), a)
			return srv.ListenAndServe(ctx, viper.GetString("serve_addr"))
		})
	},
}

func init() {
	serveCmd.Flags().String("addr", ":8080", "listen address")
	viper.BindPFlag("serve_addr", serveCmd.Flags().Lookup("addr"))
	rootCmd.AddCommand(serveCmd)
}
