package main

import (
	"fmt"
	"os"
	"time"

	"github.com/mash/go-accesslog"
	"github.com/op/go-logging"
)

var _logformat = logging.MustStringFormatter(
	`%{time:2006-01-02T15:04:05.000} %{module}::%{shortfunc} > %{level:.5s} - %{message}`,
)

func CreateLogger(module string, logfile string, loglevel string) (log *logging.Logger, lf *os.File) {
	log = logging.MustGetLogger(module)
	var err error
	if logfile != "" {
		lf, err = os.OpenFile(logfile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			log.Errorf("Cannot open logfile %v: %v", logfile, err)
			lf = os.Stderr
		}
	} else {
		lf = os.Stderr
	}
	level, err := logging.LogLevel(loglevel)
	if err != nil {
		level = logging.WARNING
	}
	backend := logging.NewLogBackend(lf, "", 0)
	backendLeveled := logging.AddModuleLevel(logging.NewBackendFormatter(backend, _logformat))
	backendLeveled.SetLevel(level, "")
	logging.SetBackend(backendLeveled)
	return
}

type alogger struct {
	handle *os.File
}

func (l alogger) Log(record accesslog.LogRecord) {
	fmt.Fprintf(l.handle, "%s [%s] \"%s %s %s\" %d %d\n", record.Host, time.Now().Format(time.RFC3339), record.Method, record.Uri, record.Protocol, record.Status, record.Size)
}
