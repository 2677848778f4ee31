package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"intel_fetcher/internal/api"
	"intel_fetcher/internal/domain"
	"intel_fetcher/internal/service"
)

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and, when enabled, the trigger poller",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()

			srv := &http.Server{
				Addr:              a.cfg.HTTP.Addr,
				Handler:           api.NewServer(a.ingestor, a.poller, a.catalog, a.cfg.CronSecret, a.logger).Handler(),
				ReadHeaderTimeout: a.cfg.HTTP.ReadTimeout,
			}

			if a.cfg.Scheduler.Enabled {
				go func() {
					if err := a.poller.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
						a.logger.Error("poller error", "error", err)
					}
				}()
			}

			errCh := make(chan error, 1)
			go func() {
				a.logger.Info("http server listening", "addr", srv.Addr)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("http server: %w", err)
				}
				return nil
			case <-ctx.Done():
				a.logger.Info("received shutdown signal")
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
}

func newIngestCmd(configPath *string) *cobra.Command {
	var topicID int64

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Run one ingestion pass over the active topics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			req := service.RunRequest{Trigger: domain.TriggerCLI}
			if topicID > 0 {
				req.TopicID = &topicID
			}

			stats, err := a.ingestor.Run(cmd.Context(), req)
			if stats != nil {
				fmt.Fprintf(cmd.OutOrStdout(),
					"run %s: sources=%d fetched=%d processed=%d skipped=%d failed_sources=%d failed_items=%d duration=%s\n",
					stats.RunID, stats.Sources, stats.Fetched, stats.Processed, stats.Skipped,
					stats.FailedSources, stats.FailedItems, stats.Duration.Round(time.Millisecond),
				)
			}
			return err
		},
	}
	cmd.Flags().Int64Var(&topicID, "topic", 0, "restrict the run to one topic id")
	return cmd
}

func newCheckCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Print whether an ingestion run is due, without running it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			decision, err := a.checker.Check(cmd.Context())
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(decision)
		},
	}
}

func newTriggerCmd(configPath *string) *cobra.Command {
	var check bool

	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "Call the running server's cron endpoint",
		Long:  "Calls <base_url>/api/cron/update (or /check) with the cron secret. Intended for system cron.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if cfg.BaseURL == "" {
				return errors.New("base_url is not configured")
			}

			endpoint := "/api/cron/update"
			if check {
				endpoint = "/api/cron/check"
			}
			return callCron(cmd.Context(), cmd.OutOrStdout(), strings.TrimRight(cfg.BaseURL, "/")+endpoint, cfg.CronSecret, cfg.Ingest.MaxRunDuration)
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "ask the trigger policy first instead of forcing a run")
	return cmd
}

func callCron(ctx context.Context, out io.Writer, url, secret string, timeout time.Duration) error {
	client := &http.Client{Timeout: timeout + 30*time.Second}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if secret != "" {
		req.Header.Set("Authorization", "Bearer "+secret)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	fmt.Fprintln(out, strings.TrimSpace(string(body)))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
