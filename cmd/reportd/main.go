// Package main provides reportd, the analysis report service: the HTTP API,
// the job workers, and operator commands for jobs and the knowledge base.
package main

import (
	"flag"

	"github.com/golang/glog"
)

func main() {
	// glog backs startup failures; everything else logs through slog.
	_ = flag.Set("logtostderr", "true")
	defer glog.Flush()

	root := newRootCmd()
	root.PersistentFlags().AddGoFlagSet(flag.CommandLine)
	if err := root.Execute(); err != nil {
		glog.Exitf("reportd: %v", err)
	}
}
