package main

import (
	"log"

	"github.com/grego360/sense-hat-mqtt/bus"
	"github.com/grego360/sense-hat-mqtt/config"
)

type LogLevel int

const (
	LogLevelNone  LogLevel = 0
	LogLevelError LogLevel = 1
	LogLevelWarn  LogLevel = 2
	LogLevelInfo  LogLevel = 3
	LogLevelDebug LogLevel = 4
)

type Options struct {
	LogLevel LogLevel
	Config   *config.Config
	Logger   *log.Logger

	// Bus replaces the broker client built from Config.Bus when set.
	Bus bus.Client
}
