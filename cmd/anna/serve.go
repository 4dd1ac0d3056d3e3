package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jxucoder/anna/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Serves Anna over HTTP:

  GET  /health          liveness
  GET  /api/stats       statistics
  POST /api/chat        {"conversation_id", "speaker", "message"}
  GET  /api/memories    ?q=&kind=&speaker=&conversation_id=&limit=
  GET  /metrics         Prometheus metrics`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return withApp(func(a *app) error {
			needsMentor, err := a.learner.NeedsMentor(ctx)
			if err != nil {
				return err
			}
			if needsMentor && a.mentor == nil {
				logger.Warn().Msg("bootstrap is not finished and no mentor key is set; replies need a local model")
			}
			srv := server.New(cfg, a.companion, a.memory, a.metrics, logger)
			return srv.Start(ctx)
		})
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
