package logger

import (
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestLogger(t *testing.T) {
	Convey("Given the Logger package", t, func() {
		Convey("New function", func() {
			Convey("When creating a logger with console output only", func() {
				logger, err := New(Options{Level: "info"})

				Convey("It should create a logger successfully", func() {
					So(err, ShouldBeNil)
					So(logger, ShouldNotBeNil)
					So(func() { logger.Infof("[%s] Starting backup...", "run") }, ShouldNotPanic)
				})
			})

			Convey("When creating a logger with JSON stdout", func() {
				logger, err := New(Options{Level: "info", Format: "json"})

				So(err, ShouldBeNil)
				So(func() { logger.Info("json line") }, ShouldNotPanic)
			})

			Convey("When the format is unknown", func() {
				logger, err := New(Options{Format: "xml"})

				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "unknown log format")
				So(logger, ShouldBeNil)
			})

			Convey("When creating a logger with a log file", func() {
				tempDir, err := os.MkdirTemp("", "logger_test")
				So(err, ShouldBeNil)
				defer os.RemoveAll(tempDir)

				logFile := filepath.Join(tempDir, "logs", "dumpgram.log")

				logger, err := New(Options{Level: "debug", File: logFile})

				Convey("It should write JSON lines into the file", func() {
					So(err, ShouldBeNil)

					logger.Debugf("[%s] Dump created", "shop")
					logger.Close()

					content, err := os.ReadFile(logFile)
					So(err, ShouldBeNil)
					So(string(content), ShouldContainSubstring, `"msg":"[shop] Dump created"`)
					So(string(content), ShouldContainSubstring, `"level":"DEBUG"`)
				})
			})

			Convey("When creating a logger with an invalid log level", func() {
				tempDir, err := os.MkdirTemp("", "logger_test")
				So(err, ShouldBeNil)
				defer os.RemoveAll(tempDir)

				logFile := filepath.Join(tempDir, "test.log")
				logger, err := New(Options{Level: "invalid", File: logFile})

				Convey("It should default to Info level", func() {
					So(err, ShouldBeNil)

					logger.Debug("hidden")
					logger.Info("shown")
					logger.Close()

					content, err := os.ReadFile(logFile)
					So(err, ShouldBeNil)
					So(string(content), ShouldContainSubstring, "shown")
					So(string(content), ShouldNotContainSubstring, "hidden")
				})
			})

			Convey("When the log directory cannot be created", func() {
				tempDir, err := os.MkdirTemp("", "logger_test")
				So(err, ShouldBeNil)
				defer os.RemoveAll(tempDir)

				blocker := filepath.Join(tempDir, "blocker")
				So(os.WriteFile(blocker, []byte("x"), 0644), ShouldBeNil)

				logger, err := New(Options{Level: "info", File: filepath.Join(blocker, "test.log")})

				Convey("It should return an error", func() {
					So(err, ShouldNotBeNil)
					So(err.Error(), ShouldContainSubstring, "failed to create log directory")
					So(logger, ShouldBeNil)
				})
			})
		})
	})
}
