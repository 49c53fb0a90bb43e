package progress

import (
	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
)

// Observer is notified by the archive and upload stages as they make headway.
type Observer interface {
	ArchiveMilestone(bytesWritten int64)
	UploadProgress(percent int, bytesUploaded int64)
}

type LogObserver struct {
	Log *logrus.Entry
}

func (o *LogObserver) ArchiveMilestone(bytesWritten int64) {
	o.Log.Infof("Archive progress: %s written", humanize.IBytes(uint64(bytesWritten)))
}

func (o *LogObserver) UploadProgress(percent int, bytesUploaded int64) {
	o.Log.Infof("Upload progress: %d%% (%s)", percent, humanize.IBytes(uint64(bytesUploaded)))
}

type NopObserver struct{}

func (NopObserver) ArchiveMilestone(int64) {}
func (NopObserver) UploadProgress(int, int64) {}
