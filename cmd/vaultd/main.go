package main

//go-build: CGO_ENABLED=0

import (
	"flag"

	"github.com/golang/glog"

	"github.com/robotalks/pinvault/pkg/device"
	"github.com/robotalks/pinvault/pkg/framework"
)

func init() {
	device.SetupFlags()
}

func main() {
	flag.Parse()
	defer glog.Flush()

	conf, err := device.Load()
	if err != nil {
		glog.Fatalln(err)
	}
	server := conf.MustNewServer()
	runner := framework.NewRunner().HandleSignals()
	runner.Go(framework.NamedRun("device", server))
	if err := runner.Wait(); err != nil {
		glog.Fatalln(err)
	}
}
