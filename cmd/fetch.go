package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/vzahanych/weather-timeline/internal/config"
	"github.com/vzahanych/weather-timeline/internal/gateway"
	"github.com/vzahanych/weather-timeline/internal/storage"
	"go.uber.org/zap"
)

type fetchOptions struct {
	apiKey string
	lat    float64
	lng    float64
}

func fetchCmd() *cobra.Command {
	opts := &fetchOptions{}

	cmd := &cobra.Command{
		Use:   "fetch [location]",
		Short: "Print the normalized 48-hour timeline for a location",
		Long: `Fetch the timeline for a free-text location, or for --lat/--lng, and print it as JSON.
The API key comes from --api-key, then weather.api_key, then the saved preference.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(cmd, args, opts)
		},
	}

	cmd.Flags().StringVar(&opts.apiKey, "api-key", "", "Visual Crossing API key")
	cmd.Flags().Float64Var(&opts.lat, "lat", 0, "latitude")
	cmd.Flags().Float64Var(&opts.lng, "lng", 0, "longitude")
	cmd.MarkFlagsRequiredTogether("lat", "lng")

	return cmd
}

func runFetch(cmd *cobra.Command, args []string, opts *fetchOptions) error {
	cfg := config.GetConfig()
	ctx := cmd.Context()

	byCoordinates := cmd.Flags().Changed("lat")
	if byCoordinates == (len(args) == 1) {
		return errors.New("pass either a location or --lat and --lng")
	}

	apiKey, err := resolveAPIKey(cmd, opts.apiKey, cfg)
	if err != nil {
		return err
	}

	gw := gateway.New(cfg.Weather, log, tele)

	var raw *gateway.RawResponse
	if byCoordinates {
		raw, err = gw.FetchByCoordinates(ctx, opts.lat, opts.lng, apiKey)
	} else {
		raw, err = gw.FetchByQuery(ctx, args[0], apiKey)
	}
	if err != nil {
		if gateway.IsQuotaExceeded(err) {
			log.Warn("Provider quota exhausted", zap.Error(err))
		}
		return err
	}

	out, err := json.MarshalIndent(gw.Normalize(raw), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode timeline: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}

func resolveAPIKey(cmd *cobra.Command, flagKey string, cfg *config.Config) (string, error) {
	if key := strings.TrimSpace(flagKey); key != "" {
		return key, nil
	}
	if key := strings.TrimSpace(cfg.Weather.APIKey); key != "" {
		return key, nil
	}

	store, err := storage.Open(cfg.Storage)
	if err != nil {
		return "", fmt.Errorf("failed to open storage: %w", err)
	}
	defer store.Close()

	key, _, err := store.Get(cmd.Context(), storage.KeyAPIKey)
	if err != nil {
		return "", fmt.Errorf("failed to read saved API key: %w", err)
	}
	if key == "" {
		return "", gateway.ErrMissingAPIKey
	}
	return key, nil
}
