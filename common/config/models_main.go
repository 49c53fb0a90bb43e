package config

type GeneralConfig struct {
	LogDirectory string `yaml:"logDirectory"`
	LogColors    bool   `yaml:"logColors"`
	JsonLogs     bool   `yaml:"jsonLogs"`
	LogLevel     string `yaml:"logLevel"`
}

// DatastoreConfig describes the bucket exports are read from and written back to. Type is
// either "s3" (minio client) or "aws" (AWS SDK).
type DatastoreConfig struct {
	Type         string `yaml:"type"`
	Endpoint     string `yaml:"endpoint"`
	BucketName   string `yaml:"bucketName"`
	AccessKeyId  string `yaml:"accessKeyId"`
	AccessSecret string `yaml:"accessSecret"`
	Region       string `yaml:"region"`
	Ssl          bool   `yaml:"ssl"`
	PathStyle    bool   `yaml:"pathStyle"`
	StorageClass string `yaml:"storageClass"`
}

type ExportConfig struct {
	DestinationPath  string        `yaml:"destinationPath"`
	ContentType      string        `yaml:"contentType"`
	LargeThresholdGb float64       `yaml:"largeThresholdGb"`
	Archive          ArchiveConfig `yaml:"archive"`
	Batch            BatchConfig   `yaml:"batch"`
	Timeouts         TimeoutConfig `yaml:"timeouts"`
	Upload           UploadConfig  `yaml:"upload"`
	Memory           MemoryConfig  `yaml:"memory"`
	Presign          PresignConfig `yaml:"presign"`
}

type ArchiveConfig struct {
	CompressionLevel int   `yaml:"compressionLevel"`
	BufferBytes      int   `yaml:"bufferBytes"`
	MilestoneBytes   int64 `yaml:"milestoneBytes"`
}

type BatchConfig struct {
	ChunkSize    int `yaml:"chunkSize"`
	Concurrency  int `yaml:"concurrency"`
	PacingMillis int `yaml:"pacingMs"`
}

type TimeoutConfig struct {
	MinimumSeconds int   `yaml:"minimumSeconds"`
	StepSeconds    int   `yaml:"stepSeconds"`
	StepBytes      int64 `yaml:"stepBytes"`
}

type UploadConfig struct {
	PartSizeBytes int64 `yaml:"partSizeBytes"`
	QueueSize     int   `yaml:"queueSize"`
}

type MemoryConfig struct {
	CeilingBytes    uint64 `yaml:"ceilingBytes"`
	CooldownSeconds int    `yaml:"cooldownSeconds"`
	MonitorSeconds  int    `yaml:"monitorSeconds"`
}

type PresignConfig struct {
	Enabled            bool `yaml:"enabled"`
	ExpirySeconds      int  `yaml:"expirySeconds"`
	CacheExpirySeconds int  `yaml:"cacheExpirySeconds"`
}

type MetricsConfig struct {
	Enabled     bool   `yaml:"enabled"`
	BindAddress string `yaml:"bindAddress"`
	Port        int    `yaml:"port"`
}

type SentryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Dsn         string `yaml:"dsn"`
	Environment string `yaml:"environment"`
	Debug       bool   `yaml:"debug"`
}

type RedisConfig struct {
	Enabled           bool               `yaml:"enabled"`
	Shards            []RedisShardConfig `yaml:"shards,flow"`
	DbNum             int                `yaml:"databaseNumber"`
	Password          string             `yaml:"password"`
	DialTimeoutMillis int                `yaml:"dialTimeoutMs"`
}

type RedisShardConfig struct {
	Name    string `yaml:"name"`
	Address string `yaml:"addr"`
}
