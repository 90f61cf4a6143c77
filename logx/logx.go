package logx

import (
	"fmt"
	"io"
	"log"
	"os"
	"strconv"

	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	ColorReset  = "\033[0m"
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorBlue   = "\033[34m"
)

const (
	defaultMaxSizeMB  = 100
	defaultMaxAgeDays = 7
)

var logger = log.New(newSink(), "", log.Ldate|log.Ltime|log.Lmicroseconds)

// newSink writes to a rotated file when LOGFILE is set, stderr otherwise.
// The sender is usually embedded in another process, so stderr is the
// default and file rotation is opt-in.
func newSink() io.Writer {
	logFile := os.Getenv("LOGFILE")
	if logFile == "" {
		return os.Stderr
	}
	return &lumberjack.Logger{
		Filename: "./logs/" + logFile,
		MaxSize:  envInt("LOGFILE_MAX_SIZE_MB", defaultMaxSizeMB),  // megabytes
		MaxAge:   envInt("LOGFILE_MAX_AGE_DAYS", defaultMaxAgeDays), // days
	}
}

func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		panic("invalid value for " + name + ": " + err.Error())
	}
	return v
}

func Info(category string, content ...interface{}) {
	message := fmt.Sprint(content...)
	coloredCategory := fmt.Sprintf("%s[INFO][%s]%s", ColorGreen, category, ColorReset)
	logger.Printf("%s: %s", coloredCategory, message)
}

func Error(category string, content ...interface{}) {
	message := fmt.Sprint(content...)
	coloredCategory := fmt.Sprintf("%s[ERROR][%s]%s", ColorRed, category, ColorReset)
	logger.Printf("%s: %s", coloredCategory, message)
}

func Warn(category string, content ...interface{}) {
	message := fmt.Sprint(content...)
	coloredCategory := fmt.Sprintf("%s[WARN][%s]%s", ColorYellow, category, ColorReset)
	logger.Printf("%s: %s", coloredCategory, message)
}

func Debug(category string, content ...interface{}) {
	message := fmt.Sprint(content...)
	coloredCategory := fmt.Sprintf("%s[DEBUG][%s]%s", ColorBlue, category, ColorReset)
	logger.Printf("%s: %s", coloredCategory, message)
}

// Errorf logs an error message and returns a formatted error
func Errorf(format string, args ...interface{}) error {
	err := fmt.Errorf(format, args...)
	Error("ERROR", err.Error())
	return err
}
