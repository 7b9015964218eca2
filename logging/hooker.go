package logging

import (
	"path/filepath"
	"time"

	rotatelogs "github.com/lestrrat/go-file-rotatelogs"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
)

// NewFileRotateHooker returns a logrus hook writing all levels to a
// time-rotated file under path.  age bounds retention in days; zero keeps
// seven days of logs.
func NewFileRotateHooker(path, filename string, age uint32) logrus.Hook {
	if len(path) == 0 {
		panic("Failed to parse logger folder:" + path + ".")
	}
	if !filepath.IsAbs(path) {
		path, _ = filepath.Abs(path)
	}

	if age == 0 {
		age = 7
	}

	filePath := filepath.Join(path, filename+"-%Y%m%d-%H.log")
	linkPath := filepath.Join(path, filename+".log")
	writer, err := rotatelogs.New(
		filePath,
		rotatelogs.WithLinkName(linkPath),
		rotatelogs.WithRotationTime(time.Hour),
		rotatelogs.WithMaxAge(time.Duration(age)*24*time.Hour),
	)
	if err != nil {
		panic("Failed to create rotate logs:" + err.Error())
	}

	hook := lfshook.NewHook(lfshook.WriterMap{
		logrus.TraceLevel: writer,
		logrus.DebugLevel: writer,
		logrus.InfoLevel:  writer,
		logrus.WarnLevel:  writer,
		logrus.ErrorLevel: writer,
		logrus.FatalLevel: writer,
		logrus.PanicLevel: writer,
	}, &logrus.TextFormatter{FullTimestamp: true})
	return hook
}
