package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/handlers"
	"github.com/mash/go-accesslog"
	"github.com/spf13/cobra"
)

func newServeCmd(flags *globalFlags) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the export http service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, flags, true)
			if err != nil {
				return err
			}
			defer a.Close()
			cfg := a.cfg.Server
			if listen != "" {
				cfg.Listen = listen
			}

			var f *os.File
			if cfg.AccessLog == "" {
				f = os.Stderr
			} else {
				f, err = os.OpenFile(cfg.AccessLog, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
				if err != nil {
					return err
				}
				defer f.Close()
			}
			l := alogger{handle: f}
			headersOk := handlers.AllowedHeaders([]string{"Origin", "X-Requested-With", "Content-Type", "Accept", "Access-Control-Request-Method", "Authorization"})
			originsOk := handlers.AllowedOrigins([]string{"*"})
			methodsOk := handlers.AllowedMethods([]string{"GET", "HEAD", "POST", "OPTIONS"})
			ignoreOptions := handlers.IgnoreOptions()

			handler := NewHandler(a.exp, a.logger)
			server := &http.Server{
				Handler: accesslog.NewLoggingHandler(handlers.CORS(
					originsOk,
					headersOk,
					methodsOk,
					ignoreOptions,
				)(handler.Router()), l),
				Addr:         cfg.Listen,
				WriteTimeout: 60 * time.Second,
				ReadTimeout:  15 * time.Second,
			}

			go func() {
				<-ctx.Done()
				a.logger.Infof("shutdown requested")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					a.logger.Errorf("error shutting down server: %v", err)
				}
			}()

			a.logger.Infof("zotvault service listening on %s", cfg.Listen)
			if cfg.TLS {
				err = server.ListenAndServeTLS(cfg.CertChain, cfg.PrivateKey)
			} else {
				err = server.ListenAndServe()
			}
			if err == http.ErrServerClosed {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address, overrides the config")
	return cmd
}
