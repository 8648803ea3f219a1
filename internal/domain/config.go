package domain

import "time"

// MediaBackend selects the remote cover store
type MediaBackend string

const (
	MediaBackendCloudinary MediaBackend = "cloudinary"
	MediaBackendGCS        MediaBackend = "gcs"
	// MediaBackendNone keeps source URLs and skips quota checks
	MediaBackendNone MediaBackend = "none"
)

type Config struct {
	OutputDir     string `mapstructure:"output_dir"`
	DataDir       string `mapstructure:"data_dir"`
	CacheFile     string `mapstructure:"cache_file"`
	DatabaseDir   string `mapstructure:"database_dir"`
	OverridesFile string `mapstructure:"overrides_file"`
	LogLevel      string `mapstructure:"log_level"`
	LogFormat     string `mapstructure:"log_format"`

	Workers         int           `mapstructure:"workers"`
	MaxRetries      int           `mapstructure:"max_retries"`
	DownloadTimeout time.Duration `mapstructure:"download_timeout"`
	UploadTimeout   time.Duration `mapstructure:"upload_timeout"`
	ListingTimeout  time.Duration `mapstructure:"listing_timeout"`
	BatchTimeout    time.Duration `mapstructure:"batch_timeout"`

	QuotaThreshold float64 `mapstructure:"quota_threshold"`
	MaxEvictions   int     `mapstructure:"max_evictions"`

	MediaStore          MediaBackend `mapstructure:"media_store"`
	CloudinaryCloudName string       `mapstructure:"cloudinary_cloud_name"`
	CloudinaryAPIKey    string       `mapstructure:"cloudinary_api_key"`
	CloudinaryAPISecret string       `mapstructure:"cloudinary_api_secret"`
	MediaFolder         string       `mapstructure:"media_folder"`
	GCSBucket           string       `mapstructure:"gcs_bucket"`
	GCSCapacityBytes    int64        `mapstructure:"gcs_capacity_bytes"`

	SourceBaseURL string  `mapstructure:"source_base_url"`
	SourceRPS     float64 `mapstructure:"source_rps"`
	DownloadRPS   float64 `mapstructure:"download_rps"`
	StartYear     int     `mapstructure:"start_year"`

	DiscordWebhookURL string `mapstructure:"discord_webhook_url"`
	PushgatewayURL    string `mapstructure:"pushgateway_url"`
	ServeAddr         string `mapstructure:"serve_addr"`
}
