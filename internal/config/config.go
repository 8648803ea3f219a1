package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/varoOP/seasondb/internal/domain"
)

// SetDefaults registers the default value of every configuration key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("output_dir", "dist")
	v.SetDefault("data_dir", "")
	v.SetDefault("cache_file", "cloudinary_cache.json")
	v.SetDefault("database_dir", ".")
	v.SetDefault("overrides_file", "overrides.yaml")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")

	v.SetDefault("workers", runtime.NumCPU())
	v.SetDefault("max_retries", 3)
	v.SetDefault("download_timeout", 6*time.Second)
	v.SetDefault("upload_timeout", 30*time.Second)
	v.SetDefault("listing_timeout", 10*time.Second)
	v.SetDefault("batch_timeout", 10*time.Minute)

	v.SetDefault("quota_threshold", 90.0)
	v.SetDefault("max_evictions", 3)

	v.SetDefault("media_store", string(domain.MediaBackendCloudinary))
	v.SetDefault("media_folder", "anime_covers")
	v.SetDefault("cloudinary_cloud_name", "")
	v.SetDefault("cloudinary_api_key", "")
	v.SetDefault("cloudinary_api_secret", "")
	v.SetDefault("gcs_bucket", "")
	v.SetDefault("gcs_capacity_bytes", int64(0))

	v.SetDefault("source_base_url", "https://acgsecrets.hk/bangumi/")
	v.SetDefault("source_rps", 1.0)
	v.SetDefault("download_rps", 5.0)
	v.SetDefault("start_year", 2018)
	v.SetDefault("discord_webhook_url", "")
	v.SetDefault("pushgateway_url", "")
	v.SetDefault("serve_addr", ":8080")
}

// Load loads configuration from multiple sources:
// 1. Config file (config.yaml, optional)
// 2. Environment variables (SEASONDB_*)
func Load() (*domain.Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom builds the configuration from a specific viper instance.
func LoadFrom(v *viper.Viper) (*domain.Config, error) {
	SetDefaults(v)

	cfg := &domain.Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.MediaStore = domain.MediaBackend(strings.ToLower(string(cfg.MediaStore)))
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks required fields and limits.
func Validate(cfg *domain.Config) error {
	switch cfg.MediaStore {
	case domain.MediaBackendCloudinary:
		if cfg.CloudinaryCloudName == "" || cfg.CloudinaryAPIKey == "" || cfg.CloudinaryAPISecret == "" {
			return fmt.Errorf("cloudinary_cloud_name, cloudinary_api_key and cloudinary_api_secret are required for media_store cloudinary (set via config.yaml or SEASONDB_CLOUDINARY_* environment variables)")
		}
	case domain.MediaBackendGCS:
		if cfg.GCSBucket == "" {
			return fmt.Errorf("gcs_bucket is required for media_store gcs (set via config.yaml or SEASONDB_GCS_BUCKET environment variable)")
		}
		if cfg.GCSCapacityBytes <= 0 {
			return fmt.Errorf("gcs_capacity_bytes must be > 0 for media_store gcs")
		}
	case domain.MediaBackendNone:
	default:
		return fmt.Errorf("invalid media_store: %s (must be 'cloudinary', 'gcs', or 'none')", cfg.MediaStore)
	}

	if cfg.QuotaThreshold <= 0 || cfg.QuotaThreshold > 100 {
		return fmt.Errorf("quota_threshold must be in (0, 100], got %v", cfg.QuotaThreshold)
	}
	if cfg.MaxEvictions < 0 {
		return fmt.Errorf("max_evictions must be >= 0")
	}
	if cfg.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be >= 0")
	}
	if cfg.DownloadTimeout <= 0 || cfg.UploadTimeout <= 0 || cfg.ListingTimeout <= 0 {
		return fmt.Errorf("download_timeout, upload_timeout and listing_timeout must be > 0")
	}
	if cfg.BatchTimeout <= cfg.DownloadTimeout || cfg.BatchTimeout <= cfg.UploadTimeout {
		return fmt.Errorf("batch_timeout (%s) must be longer than download_timeout and upload_timeout", cfg.BatchTimeout)
	}
	if cfg.OutputDir == "" {
		return fmt.Errorf("output_dir is required")
	}
	if cfg.CacheFile == "" {
		return fmt.Errorf("cache_file is required")
	}
	if cfg.SourceBaseURL == "" {
		return fmt.Errorf("source_base_url is required")
	}

	return nil
}
