package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"
	"github.com/t2bot/s3-folder-export/common/config"
	"github.com/t2bot/s3-folder-export/common/logging"
	"github.com/t2bot/s3-folder-export/common/rcontext"
	"github.com/t2bot/s3-folder-export/common/runtime"
	"github.com/t2bot/s3-folder-export/common/version"
	"github.com/t2bot/s3-folder-export/metrics"
	"github.com/t2bot/s3-folder-export/progress"
	"github.com/t2bot/s3-folder-export/tasks/task_runner"
	"github.com/t2bot/s3-folder-export/types"
)

func main() {
	configPath := flag.String("config", "s3-export.yaml", "The path to the configuration")
	prefix := flag.String("prefix", "", "The folder (key prefix) to export")
	destination := flag.String("destination", "", "Where to write the archive. Defaults to the configured destination path")
	sizeOnly := flag.Bool("sizeOnly", false, "Only report the size and classification of the folder")
	linkOnly := flag.Bool("linkOnly", false, "Only print a download link for the folder's existing archive")
	versionFlag := flag.Bool("version", false, "Prints the version and exits")
	flag.Parse()

	if *versionFlag {
		version.Print(false)
		return // exit 0
	}
	if *prefix == "" {
		fmt.Println("A -prefix is required")
		flag.Usage()
		os.Exit(2)
	}

	// Override config path with config for Docker users
	configEnv := os.Getenv("EXPORT_CONFIG")
	if configEnv != "" {
		configPath = &configEnv
	}

	conf, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}
	if err = runtime.SetupSentry(conf.Sentry); err != nil {
		panic(err)
	}
	defer sentry.Flush(2 * time.Second)
	defer sentry.Recover()

	if err = logging.Setup(conf.General, "s3_export"); err != nil {
		panic(err)
	}

	// Set up a listener for SIGINT/SIGTERM to cancel the export
	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	go func() {
		if _, ok := <-stop; ok {
			logrus.Warn("Stop signal received, cancelling export")
			cancel()
		}
	}()
	defer signal.Stop(stop)

	logrus.Info("Starting up...")
	store, redis, err := runtime.RunStartupSequence(runCtx, conf)
	if err != nil {
		logrus.Fatal(err)
	}
	defer redis.Close()
	metrics.Init(conf.Metrics)
	defer metrics.Stop()

	ctx := rcontext.Initial().WithContext(runCtx).LogWithFields(logrus.Fields{"cli": "s3_export"})
	runner := task_runner.NewExportRunner(store, conf.Export, redis)

	if *linkOnly {
		// No listing needed: the link only depends on where the archive was written
		url, err := runner.Link(ctx, &types.ExportJob{SourcePrefix: *prefix, DestinationPath: *destination})
		if err != nil {
			logrus.Fatal(err)
		}
		printJson(map[string]string{"downloadUrl": url})
		return
	}

	job, err := runner.NewJob(ctx, *prefix, *destination)
	if err != nil {
		logrus.Fatal(err)
	}
	if *sizeOnly {
		printJson(job)
		return
	}

	sink := progress.SinkFunc(func(percent int) {
		ctx.Log.Infof("Progress: %d%%", percent)
	})
	result, err := runner.Run(ctx, job, sink)
	if err != nil {
		printJson(job)
		sentry.Flush(2 * time.Second)
		logrus.Fatal(err)
	}
	printJson(result)
}

func printJson(v interface{}) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		logrus.Error(err)
		return
	}
	fmt.Println(string(b))
}
