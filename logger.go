package main

import (
	"go.uber.org/zap"
)

// newLogger returns a production logger, or a development one for local runs.
func newLogger(appEnv string) *zap.Logger {
	var (
		l   *zap.Logger
		err error
	)
	if appEnv == "local" {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		panic(err)
	}
	return l
}
