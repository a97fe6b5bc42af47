package cli

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/openbasemap/tiledl"
)

var downloadFlags = []struct {
	name, usage string
}{
	{"service-name", "name of the tile service, used for logging and dedup keys"},
	{"url-template", "tile URL template, must contain {z}, {x}, {y}; {s} optional"},
	{"bbox", "bounding box as minLon,minLat,maxLon,maxLat"},
	{"min-zoom", "minimum zoom level"},
	{"max-zoom", "maximum zoom level"},
	{"crs", "coordinate reference system, e.g. EPSG:3857"},
	{"scheme", "tile scheme: xyz, tms, or wmts"},
	{"subdomains", "comma-separated {s} subdomain pool"},
	{"concurrency", "maximum simultaneous fetches, clamped to [1,6]"},
	{"rate-limit", "maximum tiles per second, 0 means unlimited"},
	{"retries", "retry attempts per tile after the first failure"},
	{"retry-base-delay-ms", "base delay for exponential backoff between retries"},
	{"capabilities-url", "OGC capabilities document URL, used to auto-pick CRS"},
}

func init() {
	downloadCmd := &cobra.Command{
		Use:   "download",
		Short: "Download every tile intersecting a bounding box",
		RunE:  runDownload,
	}

	downloadCmd.Flags().String("service-name", "", downloadFlags[0].usage)
	downloadCmd.Flags().String("url-template", "", downloadFlags[1].usage)
	downloadCmd.Flags().String("bbox", "", downloadFlags[2].usage)
	downloadCmd.Flags().Int("min-zoom", 0, downloadFlags[3].usage)
	downloadCmd.Flags().Int("max-zoom", 0, downloadFlags[4].usage)
	downloadCmd.Flags().String("crs", "", downloadFlags[5].usage)
	downloadCmd.Flags().String("scheme", "xyz", downloadFlags[6].usage)
	downloadCmd.Flags().String("subdomains", "", downloadFlags[7].usage)
	downloadCmd.Flags().Int("concurrency", 6, downloadFlags[8].usage)
	downloadCmd.Flags().Float64("rate-limit", 0, downloadFlags[9].usage)
	downloadCmd.Flags().Int("retries", 5, downloadFlags[10].usage)
	downloadCmd.Flags().Int("retry-base-delay-ms", 1000, downloadFlags[11].usage)
	downloadCmd.Flags().String("capabilities-url", "", downloadFlags[12].usage)

	for _, f := range downloadFlags {
		mustBind(f.name, downloadCmd.Flags().Lookup(f.name))
	}

	rootCmd.AddCommand(downloadCmd)
}

func runDownload(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bbox, err := parseBBox(viper.GetString("bbox"))
	if err != nil {
		return err
	}

	var subdomains []string
	if s := viper.GetString("subdomains"); s != "" {
		subdomains = strings.Split(s, ",")
	}

	config := tiledl.DownloadConfig{
		ServiceName:      viper.GetString("service-name"),
		URLTemplate:      viper.GetString("url-template"),
		BBox:             bbox,
		MinZoom:          viper.GetInt("min-zoom"),
		MaxZoom:          viper.GetInt("max-zoom"),
		CRS:              viper.GetString("crs"),
		TileScheme:       tiledl.TileScheme(viper.GetString("scheme")),
		Subdomains:       subdomains,
		Concurrency:      viper.GetInt("concurrency"),
		RateLimit:        viper.GetFloat64("rate-limit"),
		Retries:          viper.GetInt("retries"),
		RetryBaseDelayMs: viper.GetInt("retry-base-delay-ms"),
		CapabilitiesURL:  viper.GetString("capabilities-url"),
	}

	logger.Info("starting download", "service", config.ServiceName, "minZoom", config.MinZoom, "maxZoom", config.MaxZoom)

	handle, err := tiledl.DownloadTiles(ctx, config)
	if err != nil {
		logger.Error("config rejected", "error", err)
		return err
	}

	logger.Info("enumerated tiles", "total", handle.TotalTiles, "estimatedBytes", handle.EstimatedSize)

	bar := progressbar.Default(int64(handle.TotalTiles), fmt.Sprintf("downloading %s", config.ServiceName))

	return drainDownload(ctx, handle, bar)
}

func drainDownload(ctx context.Context, handle *tiledl.DownloadHandle, bar *progressbar.ProgressBar) error {
	tiles := handle.Tiles()
	for tiles != nil {
		select {
		case _, ok := <-tiles:
			if !ok {
				tiles = nil
				continue
			}
			_ = bar.Add(1)
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	result := <-handle.Stats()
	_ = bar.Finish()

	stats := result.Stats
	logger.Info("download finished",
		"successful", stats.Successful,
		"failed", stats.Failed,
		"successRatio", stats.SuccessRatio,
		"actualSize", stats.ActualSize,
		"elapsedMs", stats.ElapsedMs,
	)

	if result.Err != nil {
		logger.Error("download ended in failure", "error", result.Err)
		return result.Err
	}
	return nil
}

func parseBBox(s string) ([4]float64, error) {
	var bbox [4]float64
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return bbox, fmt.Errorf("cli: bbox must have 4 comma-separated values, got %q", s)
	}
	for i, p := range parts {
		var v float64
		if _, err := fmt.Sscanf(strings.TrimSpace(p), "%g", &v); err != nil {
			return bbox, fmt.Errorf("cli: bbox value %q is not a number: %w", p, err)
		}
		bbox[i] = v
	}
	return bbox, nil
}
