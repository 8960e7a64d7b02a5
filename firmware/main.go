// Copyright 2026 The Armored RTT authors. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

//go:build tamago && riscv64

// The firmware is a TamaGo unikernel for the QEMU sifive_u machine which
// exposes its console on an RTT channel and records faults for post-mortem
// inspection, it must be compiled with:
//
//	GOOS=tamago GOARCH=riscv64 go build -tags linkprintk
package main

import (
	"flag"
	"log"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/coreos/go-semver/semver"
	"k8s.io/klog/v2"

	_ "github.com/usbarmory/tamago/board/qemu/sifive_u"

	"github.com/transparency-dev/armored-rtt/console"
	"github.com/transparency-dev/armored-rtt/fault"
)

// initialized at compile time (-ldflags -X)
var (
	Build    string
	Revision string
	Version  string

	// Fault selects a fault to be triggered after FaultAfter heartbeats
	// ("panic" or "exception"), for testing of the crash capture.
	Fault      string
	FaultAfter = "10"
)

const heartbeatInterval = 1 * time.Second

func init() {
	console.Init()

	// runtime errors have been reported through printk by the time the
	// runtime exits
	runtime.Exit = func(_ int32) {
		fault.Abort()
	}

	configureExceptionHandler()

	log.SetFlags(log.Ltime)
	log.SetOutput(console.Writer())

	klog.InitFlags(nil)
	flag.Set("logtostderr", "true")
	flag.Parse()
}

func parseVersion(s string) (*semver.Version, error) {
	return semver.NewVersion(strings.TrimPrefix(s, "v"))
}

func main() {
	defer fault.Recover()
	defer klog.Flush()

	klog.Infof("%s/%s (%s) • RTT console • %s %s",
		runtime.GOOS, runtime.GOARCH, runtime.Version(),
		Revision, Build)

	if v, err := parseVersion(Version); err != nil {
		klog.Warningf("invalid firmware version %q, %v", Version, err)
	} else {
		klog.Infof("firmware version %s", v)
	}

	after := 0

	if len(Fault) > 0 {
		after, _ = strconv.Atoi(FaultAfter)
		klog.Infof("%s scheduled after %d heartbeats", Fault, after)
	}

	for n := 1; ; n++ {
		time.Sleep(heartbeatInterval)
		console.Println("heartbeat", n)

		if n != after {
			continue
		}

		switch Fault {
		case "panic":
			var m map[string]int
			m["fault"] = n
		case "exception":
			illegal()
		default:
			klog.Warningf("unknown fault %q", Fault)
		}
	}
}
