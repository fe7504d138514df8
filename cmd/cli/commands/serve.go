package commands

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jakechorley/escort-dispatch/pkg/api"
	"github.com/jakechorley/escort-dispatch/pkg/core/services"
)

// ServeCmd creates the serve command
func ServeCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the JSON admin API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, _ := cmd.Flags().GetString("addr")
			if addr == "" {
				addr = app.Cfg.APIAddr
			}
			origins, _ := cmd.Flags().GetStringSlice("cors-origin")
			withEmail, _ := cmd.Flags().GetBool("email")

			var notifier services.Notifier
			if withEmail {
				n, err := app.Notifier()
				if err != nil {
					return err
				}
				notifier = n
			}

			handler := api.NewHandler(api.Deps{
				Store:      app.Database,
				Reconciler: app.Reconciler,
				Resolver:   app.Resolver,
				Detector:   app.Detector,
				Criteria:   app.Criteria,
				RequestIDs: app.RequestIDs,
				Notifier:   notifier,
				Gatherer:   app.Registry,
				Logger:     app.Logger,
				Now:        app.Now,
			})

			ctx, stop := signal.NotifyContext(app.Ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			app.Logger.Info("Starting admin API",
				zap.String("addr", addr),
				zap.String("backend", app.Cfg.Backend),
				zap.Bool("email", withEmail))
			return api.Serve(ctx, addr, api.NewRouter(handler, origins), app.Logger)
		},
	}

	cmd.Flags().String("addr", "", "Listen address (defaults to apiAddr from config)")
	cmd.Flags().StringSlice("cors-origin", nil, "Allowed CORS origins")
	cmd.Flags().Bool("email", false, "Allow ?notify on reconcile calls to email riders")

	return cmd
}

