package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// healthTimeout bounds each request so the command suits container health checks.
const healthTimeout = 5 * time.Second

func newHealthCmd(opts *globalOptions) *cobra.Command {
	var serverURL string
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check a running server's liveness and readiness",
		Long: `health checks /healthz and /readyz on a running reportd and exits non-zero
unless the server is ready. It needs no database access.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client := &http.Client{Timeout: healthTimeout}
			base := strings.TrimRight(serverURL, "/")

			var health map[string]any
			if _, err := getJSON(cmd.Context(), client, base+"/healthz", &health); err != nil {
				return fmt.Errorf("server unreachable: %w", err)
			}
			var ready map[string]any
			code, err := getJSON(cmd.Context(), client, base+"/readyz", &ready)
			if err != nil {
				ready = map[string]any{"status": "unknown", "error": err.Error()}
			}

			out := cmd.OutOrStdout()
			switch opts.output {
			case "json", "yaml":
				if err := printOutput(out, opts.output, map[string]any{"health": health, "readiness": ready}); err != nil {
					return err
				}
			default:
				status, _ := health["status"].(string)
				uptime, _ := health["uptime"].(string)
				readiness, _ := ready["status"].(string)
				if err := printTable(out, []string{"check", "status"}, [][]string{
					{"liveness", status},
					{"uptime", uptime},
					{"readiness", readiness},
				}); err != nil {
					return err
				}
			}

			if code != http.StatusOK {
				return fmt.Errorf("server not ready (status %d)", code)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "reportd base URL")
	return cmd
}

// getJSON decodes the body of a GET into v and returns the status code. Non-2xx
// responses still decode, since /readyz reports details with a 503.
func getJSON(ctx context.Context, client *http.Client, url string, v any) (int, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return resp.StatusCode, fmt.Errorf("decode %s: %w", url, err)
	}
	return resp.StatusCode, nil
}
