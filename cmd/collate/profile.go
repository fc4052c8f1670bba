package main

import (
	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

type profileLogger struct{}

func (profileLogger) Infof(format string, args ...interface{}) { logs.Debugf(format, args...) }
func (profileLogger) Debugf(format string, args ...interface{}) { logs.Debugf(format, args...) }
func (profileLogger) Errorf(format string, args ...interface{}) { logs.Errorf(format, args...) }

func startProfiler(addr, runID string) (func(), error) {
	profiler, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: "collator",
		ServerAddress:   addr,
		Tags: map[string]string{
			"run": runID,
		},
		Logger: profileLogger{},
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "start pyroscope")
	}
	return func() {
		_ = profiler.Stop()
	}, nil
}
