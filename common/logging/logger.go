package logging

import (
	"os"
	"path"
	"time"

	"github.com/lestrrat/go-file-rotatelogs"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	"github.com/t2bot/s3-folder-export/common/config"
)

const timestampFormat = "2006-01-02 15:04:05.000 Z07:00"
const retention = 14 * 24 * time.Hour

type utcFormatter struct {
	logrus.Formatter
}

func (f utcFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	entry.Time = entry.Time.UTC()
	return f.Formatter.Format(entry)
}

func newFormatter(conf config.GeneralConfig) logrus.Formatter {
	if conf.JsonLogs {
		return &utcFormatter{&logrus.JSONFormatter{
			TimestampFormat: timestampFormat,
		}}
	}
	return &utcFormatter{&logrus.TextFormatter{
		TimestampFormat:  timestampFormat,
		FullTimestamp:    true,
		ForceColors:      conf.LogColors,
		DisableColors:    !conf.LogColors,
		QuoteEmptyFields: true,
	}}
}

// Setup configures the global logger. Lines always go to stdout; when a log directory is set
// they are also written to <dir>/<name>.log, rotated daily.
func Setup(conf config.GeneralConfig, name string) error {
	level := conf.LogLevel
	if level == "" {
		level = "info"
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	logrus.SetLevel(lvl)

	formatter := newFormatter(conf)
	logrus.SetFormatter(formatter)
	logrus.SetOutput(os.Stdout)

	if conf.LogDirectory == "" || conf.LogDirectory == "-" {
		return nil
	}
	if err = os.MkdirAll(conf.LogDirectory, os.ModePerm); err != nil {
		return err
	}

	logFile := path.Join(conf.LogDirectory, name+".log")
	writer, err := rotatelogs.New(
		logFile+".%Y%m%d%H%M",
		rotatelogs.WithLinkName(logFile),
		rotatelogs.WithMaxAge(retention),
		rotatelogs.WithRotationTime(24*time.Hour),
	)
	if err != nil {
		return err
	}

	levels := lfshook.WriterMap{}
	for _, l := range logrus.AllLevels {
		if l != logrus.TraceLevel {
			levels[l] = writer
		}
	}
	logrus.AddHook(lfshook.NewHook(levels, formatter))

	return nil
}

// SendToDebugLogger routes library chatter (ants pools) to the debug level.
type SendToDebugLogger struct{}

func (*SendToDebugLogger) Printf(format string, v ...interface{}) {
	logrus.Debugf(format, v...)
}
