package config

type MainConfig struct {
	General   GeneralConfig   `yaml:"repo"`
	Datastore DatastoreConfig `yaml:"datastore"`
	Export    ExportConfig    `yaml:"export"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Sentry    SentryConfig    `yaml:"sentry"`
	Redis     RedisConfig     `yaml:"redis"`
}

func NewDefaultMainConfig() MainConfig {
	return MainConfig{
		General: GeneralConfig{
			LogDirectory: "logs",
			LogColors:    false,
			JsonLogs:     false,
			LogLevel:     "info",
		},
		Datastore: DatastoreConfig{
			Type:         "s3",
			Endpoint:     "s3.us-east-1.amazonaws.com",
			BucketName:   "your-bucket-name",
			Region:       "us-east-1",
			Ssl:          true,
			PathStyle:    false,
			StorageClass: "STANDARD",
		},
		Export:  NewDefaultExportConfig(),
		Metrics: MetricsConfig{
			Enabled:     false,
			BindAddress: "localhost",
			Port:        9000,
		},
		Sentry: SentryConfig{
			Enabled:     false,
			Dsn:         "not supplied",
			Environment: "",
			Debug:       false,
		},
		Redis: RedisConfig{
			Enabled: false,
			Shards:  []RedisShardConfig{},
		},
	}
}

func NewDefaultExportConfig() ExportConfig {
	return ExportConfig{
		DestinationPath:  "exports/",
		ContentType:      "application/zip",
		LargeThresholdGb: 5,
		Archive: ArchiveConfig{
			CompressionLevel: 6,
			BufferBytes:      4194304,  // 4mb
			MilestoneBytes:   52428800, // 50mb
		},
		Batch: BatchConfig{
			ChunkSize:    5,
			Concurrency:  1,
			PacingMillis: 100,
		},
		Timeouts: TimeoutConfig{
			MinimumSeconds: 60,
			StepSeconds:    60,
			StepBytes:      104857600, // 100mb
		},
		Upload: UploadConfig{
			PartSizeBytes: 20971520, // 20mb
			QueueSize:     4,
		},
		Memory: MemoryConfig{
			CeilingBytes:    536870912, // 512mb
			CooldownSeconds: 5,
			MonitorSeconds:  30,
		},
		Presign: PresignConfig{
			Enabled:            false,
			ExpirySeconds:      3600,
			CacheExpirySeconds: 1800,
		},
	}
}
