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

// Package config implements the host tool configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/transparency-dev/armored-rtt/probe"
)

// Defaults
const (
	DefaultBase     = 0x80000000
	DefaultInterval = 100 * time.Millisecond
	MaxDepth        = 4096
)

// Target layouts
const (
	LayoutNative = "native"
	Layout32LE   = "32le"
	Layout64LE   = "64le"
)

// Memory describes the target memory image.
type Memory struct {
	// File is a RAM dump or a QEMU memory-backend-file.
	File string `yaml:"file"`
	// Base is the target address of the first file byte.
	Base uint64 `yaml:"base"`
	// Commit enables writing the channel read offset back to File.
	Commit bool `yaml:"commit"`
}

// Range is a target address range.
type Range struct {
	Start uint64 `yaml:"start"`
	End   uint64 `yaml:"end"`
}

// Config represents the rttdump configuration.
type Config struct {
	// ELF is the firmware image, optional.
	ELF    string `yaml:"elf"`
	Memory Memory `yaml:"memory"`
	// Layout overrides the target layout derived from ELF.
	Layout string `yaml:"layout"`

	// ControlBlock is the control block address, when zero it is taken
	// from ELF or scanned for within Scan.
	ControlBlock uint64 `yaml:"control_block"`
	// FaultRecord is the fault capture record address, when zero it is
	// taken from ELF.
	FaultRecord uint64 `yaml:"fault_record"`
	Scan        Range  `yaml:"scan"`

	Follow   bool          `yaml:"follow"`
	Interval time.Duration `yaml:"interval"`

	// Listen is the address of the HTTP endpoint serving metrics and logs
	// while following the channel, disabled when empty.
	Listen string `yaml:"listen"`

	Crash bool `yaml:"crash"`
	Depth int  `yaml:"depth"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Memory: Memory{
			Base: DefaultBase,
		},
		Interval: DefaultInterval,
		Depth:    probe.DefaultBacktraceDepth,
	}
}

// Load parses the YAML configuration at path over the default one, unknown
// fields are rejected.
func Load(path string) (*Config, error) {
	buf, err := os.ReadFile(path)

	if err != nil {
		return nil, err
	}

	return Parse(buf)
}

// Parse parses a YAML configuration over the default one.
func Parse(buf []byte) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(buf))
	dec.KnownFields(true)

	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("invalid configuration: %v", err)
	}

	return cfg, nil
}

// Validate checks the configuration consistency.
func (c *Config) Validate() error {
	if c.Memory.File == "" {
		return errors.New("missing memory file")
	}

	switch c.Layout {
	case "", LayoutNative, Layout32LE, Layout64LE:
	default:
		return fmt.Errorf("invalid layout %q", c.Layout)
	}

	if c.Scan.End != 0 && c.Scan.End <= c.Scan.Start {
		return fmt.Errorf("invalid scan range %#x-%#x", c.Scan.Start, c.Scan.End)
	}

	if c.Follow && c.Interval <= 0 {
		return fmt.Errorf("invalid interval %v", c.Interval)
	}

	if c.Listen != "" && !c.Follow {
		return errors.New("listen requires follow")
	}

	if c.Depth < 0 || c.Depth > MaxDepth {
		return fmt.Errorf("invalid backtrace depth %d", c.Depth)
	}

	if c.Crash && c.FaultRecord == 0 && c.ELF == "" {
		return errors.New("crash report requires either elf or fault_record")
	}

	return nil
}

// TargetLayout returns the target layout, fw may be nil.
func (c *Config) TargetLayout(fw *probe.Firmware) probe.Layout {
	switch c.Layout {
	case Layout32LE:
		return probe.Layout32LE
	case Layout64LE:
		return probe.Layout64LE
	case LayoutNative:
		return probe.NativeLayout()
	}

	if fw != nil {
		return fw.Layout
	}

	return probe.NativeLayout()
}
