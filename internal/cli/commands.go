package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/asad/accountd/internal/core"
	"github.com/asad/accountd/internal/httpx"
	"github.com/asad/accountd/internal/logging"
	"github.com/asad/accountd/internal/services/accounts"
)

const shutdownTimeout = 10 * time.Second

func newStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the accountd HTTP server",
		Long: `Start the edge server on the configured port.
Account data is served under /accounts/{userID}.`,
		RunE: runStart,
	}
}

// runStart initializes and starts the HTTP server, stopping on SIGINT or SIGTERM.
func runStart(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	a.logger.Info("starting accountd",
		logging.String("version", Version),
		logging.Int("edge_port", a.cfg.EdgePort),
		logging.String("store_backend", a.cfg.StoreBackend),
		logging.String("data_dir", a.cfg.DataDir),
		logging.String("log_level", a.cfg.LogLevel),
	)

	registry := core.NewRegistry()
	registry.Register(accounts.NewAccountService(a.manager, a.logger))

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.EdgePort),
		Handler:           httpx.NewEdgeRouter(a.cfg, registry, a.logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("listening on edge port",
			logging.String("address", server.Addr),
		)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

func newGetCmd() *cobra.Command {
	var name, email string

	cmd := &cobra.Command{
		Use:   "get <userID>",
		Short: "Print a user's account data, creating the default record if needed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			record, err := a.manager.GetRecord(cmd.Context(), accounts.Identity{ID: args[0], Name: name, Email: email})
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(record)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name used when creating the default record")
	cmd.Flags().StringVar(&email, "email", "", "email address used when creating the default record")
	return cmd
}

func newSetCmd() *cobra.Command {
	var rawJSON string

	cmd := &cobra.Command{
		Use:   "set <userID> [key=value...]",
		Short: "Replace a user's account data",
		Long: `Replace a user's account data with the given fields.
Fields are either key=value pairs or a JSON object passed with --json.
Fields not given are removed.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fields, err := parseFields(args[1:], rawJSON)
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}

			emitted := make(chan accounts.Event, 1)
			a.bus.Subscribe(accounts.EventUserUpdated, func(_ context.Context, e accounts.Event) {
				emitted <- e
			})

			updateErr := a.manager.UpdateRecord(cmd.Context(), accounts.Identity{ID: args[0]}, fields)
			// Close waits for the subscriber above.
			if err := a.Close(); err != nil && updateErr == nil {
				updateErr = err
			}
			if updateErr != nil {
				return updateErr
			}

			select {
			case e := <-emitted:
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", e.Name, e.ID, e.UserID)
			default:
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&rawJSON, "json", "", "account data as a JSON object")
	return cmd
}

// parseFields builds the replacement fields from key=value pairs or a JSON object.
func parseFields(pairs []string, rawJSON string) (accounts.Fields, error) {
	if rawJSON != "" {
		if len(pairs) > 0 {
			return nil, errors.New("use either key=value pairs or --json, not both")
		}
		fields, err := accounts.DecodeFields([]byte(rawJSON))
		if err != nil {
			return nil, fmt.Errorf("invalid --json: %w", err)
		}
		return fields, nil
	}

	fields := make(accounts.Fields, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid field %q, expected key=value", pair)
		}
		fields[key] = value
	}
	return fields, nil
}
