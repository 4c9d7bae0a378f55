// Package gologger bridges go-logger loggers into the go-job logging
// contract so queue workers share the service log pipeline.
package gologger

import (
	job "github.com/goliatone/go-job"
	glog "github.com/goliatone/go-logger/glog"
)

// Resolve applies the precedence provider > logger > nop.
func Resolve(name string, provider glog.LoggerProvider, logger glog.Logger) (glog.LoggerProvider, glog.Logger) {
	return glog.Resolve(name, provider, logger)
}

func ToJobProvider(provider glog.LoggerProvider) job.LoggerProvider {
	if provider == nil {
		return nil
	}
	return job.GoLoggerProvider(provider)
}

func ToJobLogger(logger glog.Logger) job.Logger {
	if logger == nil {
		return nil
	}
	return job.GoLogger(logger)
}

// ResolveForJob resolves the glog pair and returns the go-job equivalents in
// one call, which is what queue wiring usually needs.
func ResolveForJob(name string, provider glog.LoggerProvider, logger glog.Logger) (glog.LoggerProvider, glog.Logger, job.LoggerProvider, job.Logger) {
	p, l := Resolve(name, provider, logger)
	return p, l, ToJobProvider(p), ToJobLogger(l)
}
