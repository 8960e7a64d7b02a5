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

package main

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"regexp"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"k8s.io/klog/v2"
)

// consoleLogSize is the amount of recent channel output kept for /consolelog.
const consoleLogSize = 64 * 1024

var (
	doOnce sync.Once

	counterChannelBytes prom.Counter
	counterChannelReads prom.Counter
)

func initMetrics() {
	doOnce.Do(func() {
		counterChannelBytes = prom.NewCounter(prom.CounterOpts{
			Name: "rttdump_channel_bytes_total",
			Help: "Number of bytes drained from the RTT channel",
		})
		counterChannelReads = prom.NewCounter(prom.CounterOpts{
			Name: "rttdump_channel_reads_total",
			Help: "Number of non-empty channel polls",
		})

		prom.MustRegister(counterChannelBytes, counterChannelReads)

		// replace the default Go collector with one covering all runtime
		// metrics
		prom.Unregister(prom.NewGoCollector())
		prom.Register(collectors.NewGoCollector(collectors.WithGoCollectorRuntimeMetrics(collectors.GoRuntimeMetricsRule{Matcher: regexp.MustCompile("/.*")})))
	})
}

// consoleLog retains the most recent channel output.
type consoleLog struct {
	sync.Mutex

	buf  []byte
	size int
	out  io.Writer
}

func (c *consoleLog) Write(p []byte) (int, error) {
	c.Lock()
	c.buf = append(c.buf, p...)

	if n := len(c.buf) - c.size; n > 0 {
		c.buf = append(c.buf[:0], c.buf[n:]...)
	}
	c.Unlock()

	counterChannelBytes.Add(float64(len(p)))
	counterChannelReads.Inc()

	return c.out.Write(p)
}

func (c *consoleLog) ServeHTTP(res http.ResponseWriter, _ *http.Request) {
	c.Lock()
	defer c.Unlock()

	res.Header().Add("Content-Type", "text/plain")
	res.Write(c.buf)
}

type crashLogHandler func() (string, error)

func (fn crashLogHandler) ServeHTTP(res http.ResponseWriter, _ *http.Request) {
	report, err := fn()

	if err != nil {
		klog.Errorf("Failed to read fault record: %v", err)
		res.WriteHeader(http.StatusInternalServerError)
		return
	}

	res.Header().Add("Content-Type", "text/plain")
	res.Write([]byte(report))
}

// serve starts the HTTP endpoint on addr until the context is done, it
// returns a writer which forwards channel output to out while retaining it
// for /consolelog.
func serve(ctx context.Context, addr string, out io.Writer, crashLog func() (string, error)) io.Writer {
	initMetrics()

	log := &consoleLog{size: consoleLogSize, out: out}

	l, err := net.Listen("tcp", addr)

	if err != nil {
		klog.Errorf("Could not listen on %s, %v", addr, err)
		return log
	}

	srvMux := http.NewServeMux()
	srvMux.Handle("/metrics", promhttp.Handler())
	srvMux.Handle("/consolelog", log)
	srvMux.Handle("/crashlog", crashLogHandler(crashLog))

	srv := &http.Server{
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		Handler:      srvMux,
	}

	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	go func() {
		klog.Infof("serving on %s", l.Addr())

		if err := srv.Serve(l); !errors.Is(err, http.ErrServerClosed) {
			klog.Errorf("Error serving: %v", err)
		}
	}()

	return log
}
