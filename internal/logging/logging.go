package logging

import (
	"log"
	"os"
	"strings"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelError
)

var current = LevelInfo

// InitFromEnv sets the log level based on LOG_LEVEL (debug|info|error).
func InitFromEnv() {
	SetLevel(ParseLevel(os.Getenv("LOG_LEVEL")))
}

func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "error":
		return LevelError
	case "debug":
		return LevelDebug
	default:
		return LevelInfo
	}
}

func SetLevel(l Level) { current = l }

func Enabled(l Level) bool { return current <= l }

func Debugf(format string, args ...any) {
	if Enabled(LevelDebug) {
		log.Printf(format, args...)
	}
}

func Infof(format string, args ...any) {
	if Enabled(LevelInfo) {
		log.Printf(format, args...)
	}
}

func Errorf(format string, args ...any) {
	log.Printf(format, args...)
}

func Fatalf(format string, args ...any) {
	log.Fatalf(format, args...)
}
