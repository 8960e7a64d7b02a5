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

//go:build !tamago

// rttdump reads the RTT channel and the fault capture record of a target
// from its memory image, such as a RAM dump or the memory-backend-file of a
// QEMU sifive_u machine.
//
//	qemu-system-riscv64 -machine sifive_u -m 512M \
//	  -object memory-backend-file,id=ram,size=512M,mem-path=/dev/shm/ram,share=on \
//	  -machine memory-backend=ram -kernel firmware.elf ...
//
//	rttdump -elf firmware.elf -mem /dev/shm/ram -follow
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/cheggaaa/pb/v3"
	"k8s.io/klog/v2"

	"github.com/transparency-dev/armored-rtt/internal/config"
	"github.com/transparency-dev/armored-rtt/probe"
)

var (
	configFile = flag.String("config", "", "YAML configuration file, flags override its settings.")
	elfFile    = flag.String("elf", "", "Firmware ELF image used for symbol lookup.")
	memFile    = flag.String("mem", "", "Target memory image.")
	base       = flag.Uint64("base", config.DefaultBase, "Target address of the first memory image byte.")
	layout     = flag.String("layout", "", "Target layout (native, 32le, 64le), derived from the ELF image when empty.")
	cbAddr     = flag.Uint64("addr", 0, "Control block address, taken from the ELF image or scanned for when zero.")
	scan       = flag.Bool("scan", false, "Scan the memory image for the control block even when its address is known.")
	commit     = flag.Bool("commit", false, "Write the channel read offset back to the memory image.")
	follow     = flag.Bool("follow", false, "Keep polling the channel until interrupted.")
	interval   = flag.Duration("interval", config.DefaultInterval, "Channel polling interval.")
	listen     = flag.String("listen", "", "Address serving /metrics, /consolelog and /crashlog while following the channel.")
	crash      = flag.Bool("crash", false, "Print the fault capture record and a partial backtrace.")
	depth      = flag.Int("depth", probe.DefaultBacktraceDepth, "Number of stack words inspected for the backtrace.")
)

func init() {
	klog.InitFlags(nil)
}

// loadConfig returns the configuration file settings overridden by the flags
// set on the command line.
func loadConfig() (cfg *config.Config, err error) {
	cfg = config.Default()

	if *configFile != "" {
		if cfg, err = config.Load(*configFile); err != nil {
			return
		}
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "elf":
			cfg.ELF = *elfFile
		case "mem":
			cfg.Memory.File = *memFile
		case "base":
			cfg.Memory.Base = *base
		case "layout":
			cfg.Layout = *layout
		case "addr":
			cfg.ControlBlock = *cbAddr
		case "scan":
			if *scan {
				cfg.ControlBlock = 0
			}
		case "commit":
			cfg.Memory.Commit = *commit
		case "follow":
			cfg.Follow = *follow
		case "interval":
			cfg.Interval = *interval
		case "listen":
			cfg.Listen = *listen
		case "crash":
			cfg.Crash = *crash
		case "depth":
			cfg.Depth = *depth
		}
	})

	return cfg, cfg.Validate()
}

func main() {
	flag.Parse()
	defer klog.Flush()

	cfg, err := loadConfig()

	if err != nil {
		klog.Exitf("invalid configuration: %v", err)
	}

	img, err := probe.OpenImage(cfg.Memory.File, cfg.Memory.Base, cfg.Memory.Commit)

	if err != nil {
		klog.Exitf("could not open memory image: %v", err)
	}
	defer img.Close()

	var fw *probe.Firmware

	if cfg.ELF != "" {
		if fw, err = probe.LoadELF(cfg.ELF); err != nil {
			klog.Exitf("could not load firmware: %v", err)
		}
	}

	l := cfg.TargetLayout(fw)
	klog.V(1).Infof("target layout: %s, memory %#x-%#x", l, img.Base(), img.End())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if cfg.Crash {
		report, err := crashReport(img, fw, cfg, l)

		if err != nil {
			klog.Exitf("could not read fault record: %v", err)
		}

		fmt.Print(report)
	}

	cb, err := locate(ctx, img, fw, cfg, l)

	if err != nil {
		klog.Exitf("could not locate control block: %v", err)
	}

	for i, ch := range cb.Up {
		klog.V(1).Infof("up channel %d %q at %#x, size %d, write %d, read %d", i, ch.Name, ch.Start, ch.Size, ch.WriteOffset, ch.ReadOffset)
	}

	r, err := probe.NewReader(img, cb, 0)

	if err != nil {
		klog.Exitf("%v", err)
	}

	if !cfg.Follow {
		buf, err := r.Poll()

		if err != nil {
			klog.Exitf("could not read channel: %v", err)
		}

		os.Stdout.Write(buf)
		return
	}

	var out io.Writer = os.Stdout

	if cfg.Listen != "" {
		out = serve(ctx, cfg.Listen, out, func() (string, error) {
			return crashReport(img, fw, cfg, l)
		})
	}

	if err = r.Follow(ctx, cfg.Interval, out); err != nil && !errors.Is(err, context.Canceled) {
		klog.Exitf("could not follow channel: %v", err)
	}
}

func locate(ctx context.Context, img *probe.Image, fw *probe.Firmware, cfg *config.Config, l probe.Layout) (*probe.ControlBlock, error) {
	addr := cfg.ControlBlock

	if addr == 0 && fw != nil && !*scan {
		a, err := fw.Address(probe.ControlBlockSymbol)

		if err != nil {
			return nil, err
		}

		addr = a
	}

	if addr != 0 {
		return probe.Decode(img, addr, l)
	}

	start, end := img.Base(), img.End()

	if cfg.Scan.Start != 0 {
		start = cfg.Scan.Start
	}

	if cfg.Scan.End != 0 {
		end = cfg.Scan.End
	}

	klog.Infof("scanning %#x-%#x for control block", start, end)

	bar := pb.Full.Start64(int64(end - start))

	addr, err := probe.Scan(ctx, img, start, end, func(done uint64) {
		bar.SetCurrent(int64(done))
	})

	bar.Finish()

	if err != nil {
		return nil, err
	}

	klog.Infof("control block found at %#x", addr)

	return probe.Decode(img, addr, l)
}

var errNoFaultRecord = errors.New("fault record address unknown (no ELF)")

// crashReport returns the fault capture record and, when firmware symbols
// are available, a partial backtrace in textual format.
func crashReport(img *probe.Image, fw *probe.Firmware, cfg *config.Config, l probe.Layout) (string, error) {
	addr := cfg.FaultRecord

	if addr == 0 && fw == nil {
		return "", errNoFaultRecord
	}

	if addr == 0 {
		a, err := fw.Address(probe.FaultRecordSymbol)

		if err != nil {
			return "", err
		}

		addr = a
	}

	rec, err := probe.DecodeFault(img, addr, l.Order)

	if err != nil {
		return "", err
	}

	var buf strings.Builder

	buf.WriteString(rec.Print())
	buf.WriteString("\n")

	if !rec.Triggered || fw == nil {
		return buf.String(), nil
	}

	frames, err := probe.Backtrace(img, fw, rec, l, cfg.Depth)

	for _, f := range frames {
		fmt.Fprintf(&buf, "  %s\n", f)
	}

	if err != nil {
		klog.Warningf("incomplete backtrace: %v", err)
	}

	return buf.String(), nil
}
