package config

import (
	"fmt"
	"os"
	"path"
	"sort"
	"strconv"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

var Path = "s3-export.yaml"

var instance *MainConfig
var singletonLock = &sync.Once{}

func reloadConfig() (*MainConfig, error) {
	c := NewDefaultMainConfig()

	// Write a default config if the one given doesn't exist
	info, err := os.Stat(Path)
	exists := err == nil || !os.IsNotExist(err)
	if !exists {
		fmt.Println("Generating new configuration...")
		configBytes, err := yaml.Marshal(c)
		if err != nil {
			return nil, err
		}
		if err = os.WriteFile(Path, configBytes, 0644); err != nil {
			return nil, err
		}
	}

	// Get new info about the possible directory after creating
	info, err = os.Stat(Path)
	if err != nil {
		return nil, err
	}

	pathsOrdered := make([]string, 0)
	if info.IsDir() {
		logrus.Info("Config is a directory - loading all files over top of each other")

		files, err := os.ReadDir(Path)
		if err != nil {
			return nil, err
		}

		for _, f := range files {
			pathsOrdered = append(pathsOrdered, path.Join(Path, f.Name()))
		}

		sort.Strings(pathsOrdered)
	} else {
		pathsOrdered = append(pathsOrdered, Path)
	}

	for _, p := range pathsOrdered {
		logrus.Info("Loading config file: ", p)
		buffer, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		if err = yaml.Unmarshal(buffer, &c); err != nil {
			return nil, err
		}
	}

	if err = applyEnvironment(&c, os.LookupEnv); err != nil {
		return nil, err
	}

	return &c, nil
}

func Get() *MainConfig {
	if instance == nil {
		singletonLock.Do(func() {
			c, err := reloadConfig()
			if err != nil {
				logrus.Fatal(err)
			}
			instance = c
		})
	}
	return instance
}

// Load reads the configuration at the given path, replacing anything loaded before.
func Load(configPath string) (*MainConfig, error) {
	Path = configPath
	c, err := reloadConfig()
	if err != nil {
		return nil, err
	}
	instance = c
	return c, nil
}

type lookupFn func(key string) (string, bool)

// applyEnvironment layers the deployment's environment variables over the file configuration.
func applyEnvironment(c *MainConfig, lookup lookupFn) error {
	str := func(key string, target *string) {
		if val, ok := lookup(key); ok && val != "" {
			*target = val
		}
	}
	var err error
	boolean := func(key string, target *bool) {
		if val, ok := lookup(key); ok && val != "" && err == nil {
			*target, err = strconv.ParseBool(val)
		}
	}
	integer := func(key string, target *int) {
		if val, ok := lookup(key); ok && val != "" && err == nil {
			*target, err = strconv.Atoi(val)
		}
	}

	str("AWS_S3_REGION", &c.Datastore.Region)
	str("AWS_S3_BUCKET", &c.Datastore.BucketName)
	str("AWS_S3_ACCESS_KEY_ID", &c.Datastore.AccessKeyId)
	str("AWS_S3_SECRET_ACCESS_KEY", &c.Datastore.AccessSecret)
	str("AWS_S3_ENDPOINT", &c.Datastore.Endpoint)
	str("AWS_S3_EXPORT_DESTINATION_PATH", &c.Export.DestinationPath)
	boolean("AWS_S3_GENERATE_PRESIGNED_URL", &c.Export.Presign.Enabled)
	integer("AWS_S3_PRESIGNED_URL_EXPIRATION", &c.Export.Presign.ExpirySeconds)
	integer("EXPORT_CONCURRENCY", &c.Export.Batch.Concurrency)
	if val, ok := lookup("DOWNLOAD_THRESHOLD_IN_GB"); ok && val != "" && err == nil {
		c.Export.LargeThresholdGb, err = strconv.ParseFloat(val, 64)
	}

	host, hasHost := lookup("REDIS_HOST")
	if hasHost && host != "" {
		port, hasPort := lookup("REDIS_PORT")
		if !hasPort || port == "" {
			port = "6379"
		}
		c.Redis.Enabled = true
		c.Redis.Shards = []RedisShardConfig{{Name: "env", Address: host + ":" + port}}
	}
	str("REDIS_PASSWORD", &c.Redis.Password)
	integer("REDIS_CONNECTION_TIMEOUT", &c.Redis.DialTimeoutMillis)

	return err
}
