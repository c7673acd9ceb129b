// Copyright 2021-2024 EMQ Technologies Co., Ltd.
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

package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lf-edge/streamalign/contract/api"
	"github.com/lf-edge/streamalign/internal/conf"
	"github.com/lf-edge/streamalign/internal/pkg/def"
	"github.com/lf-edge/streamalign/internal/topo/checkpoint"
	kctx "github.com/lf-edge/streamalign/internal/topo/context"
	"github.com/lf-edge/streamalign/internal/topo/source"
	"github.com/lf-edge/streamalign/pkg/tracer"
)

const (
	replayRuleId = "replay"
	replayOpId   = "aligner"
)

// printNotifier prints every outcome before handing it to the coordinator.
type printNotifier struct {
	out  io.Writer
	next checkpoint.Notifier
}

func (p *printNotifier) OnCheckpointReady(ctx api.StreamContext, meta checkpoint.CheckpointMeta) error {
	fmt.Fprintf(p.out, "checkpoint %d ready: timestamp=%d buffered=%d alignment=%s\n",
		meta.CheckpointId, meta.Timestamp, meta.BytesBufferedInAlignment, time.Duration(meta.AlignmentDurationNanos))
	return p.next.OnCheckpointReady(ctx, meta)
}

func (p *printNotifier) OnCheckpointAborted(ctx api.StreamContext, checkpointId int64) error {
	fmt.Fprintf(p.out, "checkpoint %d aborted\n", checkpointId)
	return p.next.OnCheckpointAborted(ctx, checkpointId)
}

func replayFile(out io.Writer, path string, qos def.Qos) error {
	s, err := source.LoadScenario(path)
	if err != nil {
		return err
	}
	return replay(out, s, qos)
}

// replay pulls the scenario through the handler of qos until the end of input and prints
// each delivered record. Checkpoints are acknowledged to a single task coordinator.
func replay(out io.Writer, s *source.Scenario, qos def.Qos) (err error) {
	if terr := tracer.InitTracer(); terr != nil {
		conf.Log.Warnf("tracer is not initialized: %v", terr)
	}
	defer func() {
		if serr := tracer.Shutdown(context.Background()); serr != nil {
			conf.Log.Warnf("tracer shutdown error: %v", serr)
		}
	}()

	src, err := s.Source()
	if err != nil {
		return err
	}
	ctx, cancel := kctx.Background().WithMeta(replayRuleId, replayOpId).WithCancel()
	defer cancel()

	h, err := checkpoint.NewBarrierHandler(ctx, qos, src, &conf.Config.Spill)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := h.Cleanup(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}()

	coordinator := checkpoint.NewCoordinator(ctx, replayRuleId, []string{replayOpId})
	coordinator.OnComplete(func(checkpointId int64) {
		conf.Log.Infof("checkpoint %d completed for rule %s", checkpointId, replayRuleId)
	})
	coordinator.Activate()
	h.RegisterNotifier(&printNotifier{
		out:  out,
		next: checkpoint.NewSignalNotifier(replayOpId, coordinator.Signal()),
	})

	fmt.Fprintf(out, "replaying %d channels with qos %s\n", src.NumChannels(), qos)
	delivered := 0
	for {
		r, ok, nerr := h.Next(ctx)
		if nerr != nil {
			coordinator.Deactivate()
			return nerr
		}
		if !ok {
			break
		}
		delivered++
		fmt.Fprintf(out, "%s\n", r)
	}
	coordinator.Deactivate()
	fmt.Fprintf(out, "delivered %d records, %d checkpoints completed, %d canceled, latest %d\n",
		delivered, coordinator.GetCompleteCount(), coordinator.GetCanceledCount(), coordinator.GetLatest())
	printTraces(out)
	return nil
}

// printTraces prints the recorded alignment spans of the run, oldest first.
func printTraces(out io.Writer) {
	ids, err := tracer.GetTraceIDListByRuleID(replayRuleId, 0)
	if err != nil {
		conf.Log.Warnf("no alignment trace: %v", err)
		return
	}
	for i := len(ids) - 1; i >= 0; i-- {
		span, err := tracer.GetSpanByTraceID(ids[i])
		if err != nil || span == nil {
			continue
		}
		b, err := span.ToBytes()
		if err != nil {
			conf.Log.Warnf("invalid trace %s: %v", ids[i], err)
			continue
		}
		fmt.Fprintf(out, "alignment trace %s\n", b)
	}
}

// serveMetrics exposes the prometheus registry when basic.prometheus is enabled. The returned
// function shuts the server down.
func serveMetrics() func() {
	if !conf.Config.Basic.Prometheus {
		return func() {}
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         fmt.Sprintf("0.0.0.0:%d", conf.Config.Basic.PrometheusPort),
		WriteTimeout: time.Second * 15,
		ReadTimeout:  time.Second * 15,
		IdleTimeout:  time.Second * 60,
		Handler:      mux,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			conf.Log.Errorf("Listen prometheus error: %v", err)
		}
	}()
	conf.Log.Infof("Serving prometheus metrics on port http://localhost:%d/metrics", conf.Config.Basic.PrometheusPort)
	return func() {
		if err := srv.Shutdown(context.TODO()); err != nil {
			conf.Log.Errorf("prometheus server shutdown error: %v", err)
		}
	}
}
