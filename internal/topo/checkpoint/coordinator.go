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

package checkpoint

import (
	"sync"

	"github.com/lf-edge/streamalign/contract/api"
	"github.com/lf-edge/streamalign/pkg/infra"
)

type pendingCheckpoint struct {
	checkpointId   int64
	notYetAckTasks map[string]bool
}

func newPendingCheckpoint(checkpointId int64, tasksToWaitFor []string) *pendingCheckpoint {
	nyat := make(map[string]bool, len(tasksToWaitFor))
	for _, name := range tasksToWaitFor {
		nyat[name] = true
	}
	return &pendingCheckpoint{checkpointId: checkpointId, notYetAckTasks: nyat}
}

func (c *pendingCheckpoint) ack(opId string) {
	delete(c.notYetAckTasks, opId)
}

func (c *pendingCheckpoint) isFullyAck() bool {
	return len(c.notYetAckTasks) == 0
}

type checkpointStore struct {
	maxNum      int
	checkpoints []int64
}

func (s *checkpointStore) add(c int64) {
	s.checkpoints = append(s.checkpoints, c)
	if len(s.checkpoints) > s.maxNum {
		s.checkpoints = s.checkpoints[1:]
	}
}

func (s *checkpointStore) getLatest() int64 {
	if len(s.checkpoints) > 0 {
		return s.checkpoints[len(s.checkpoints)-1]
	}
	return NoCheckpoint
}

// Coordinator collects the signals of the tasks of a rule. A checkpoint completes once every
// task acknowledged it and is canceled by the first decline.
type Coordinator struct {
	sync.Mutex
	tasksToWaitFor       []string
	pendingCheckpoints   map[int64]*pendingCheckpoint
	completedCheckpoints *checkpointStore
	canceledCheckpoints  map[int64]struct{}
	canceledCount        int
	completedCount       int
	ruleId               string
	signal               chan *Signal
	done                 chan struct{}
	ctx                  api.StreamContext
	onComplete           func(checkpointId int64)
}

func NewCoordinator(ctx api.StreamContext, ruleId string, tasks []string) *Coordinator {
	ctx.GetLogger().Infof("create new coordinator for rule %s", ruleId)
	return &Coordinator{
		tasksToWaitFor:      tasks,
		pendingCheckpoints:  make(map[int64]*pendingCheckpoint),
		canceledCheckpoints: make(map[int64]struct{}),
		completedCheckpoints: &checkpointStore{
			maxNum: 3,
		},
		ruleId: ruleId,
		signal: make(chan *Signal, 1024),
		done:   make(chan struct{}),
		ctx:    ctx,
	}
}

// Signal is the channel to hand to the SignalNotifier of each task.
func (c *Coordinator) Signal() chan<- *Signal {
	return c.signal
}

// OnComplete sets a callback invoked on the coordinator goroutine for each completed checkpoint.
func (c *Coordinator) OnComplete(f func(checkpointId int64)) {
	c.Lock()
	defer c.Unlock()
	c.onComplete = f
}

func (c *Coordinator) Activate() {
	logger := c.ctx.GetLogger()
	logger.Infof("start checkpoint coordinator for rule %s", c.ruleId)
	go func() {
		defer close(c.done)
		err := infra.SafeRun(func() error {
			for {
				select {
				case s := <-c.signal:
					switch s.Message {
					case STOP:
						logger.Debug("stop checkpoint coordinator")
						return nil
					case ACK:
						logger.Debugf("receive ack from %s for checkpoint %d", s.OpId, s.CheckpointId)
						c.ack(s)
					case DEC:
						logger.Debugf("receive dec from %s for checkpoint %d, cancel it", s.OpId, s.CheckpointId)
						c.cancel(s.CheckpointId)
					}
				case <-c.ctx.Done():
					logger.Info("cancelling coordinator....")
					return nil
				}
			}
		})
		if err != nil {
			logger.Error(err)
		}
	}()
}

// Deactivate stops the coordinator after all signals sent before are handled.
func (c *Coordinator) Deactivate() {
	c.signal <- &Signal{Message: STOP}
	<-c.done
}

func (c *Coordinator) ack(s *Signal) {
	c.Lock()
	if _, canceled := c.canceledCheckpoints[s.CheckpointId]; canceled {
		c.Unlock()
		return
	}
	cp, ok := c.pendingCheckpoints[s.CheckpointId]
	if !ok {
		if c.completedCheckpoints.getLatest() >= s.CheckpointId {
			c.Unlock()
			c.ctx.GetLogger().Debugf("receive ack from %s for outdated checkpoint %d", s.OpId, s.CheckpointId)
			return
		}
		cp = newPendingCheckpoint(s.CheckpointId, c.tasksToWaitFor)
		c.pendingCheckpoints[s.CheckpointId] = cp
	}
	cp.ack(s.OpId)
	if !cp.isFullyAck() {
		c.Unlock()
		return
	}
	c.completedCheckpoints.add(s.CheckpointId)
	c.completedCount++
	delete(c.pendingCheckpoints, s.CheckpointId)
	// older checkpoints are subsumed
	for cid := range c.pendingCheckpoints {
		if cid < s.CheckpointId {
			delete(c.pendingCheckpoints, cid)
		}
	}
	for cid := range c.canceledCheckpoints {
		if cid < s.CheckpointId {
			delete(c.canceledCheckpoints, cid)
		}
	}
	f := c.onComplete
	c.Unlock()
	c.ctx.GetLogger().Debugf("totally complete checkpoint %d", s.CheckpointId)
	if f != nil {
		f(s.CheckpointId)
	}
}

func (c *Coordinator) cancel(checkpointId int64) {
	c.Lock()
	defer c.Unlock()
	delete(c.pendingCheckpoints, checkpointId)
	if _, ok := c.canceledCheckpoints[checkpointId]; !ok {
		c.canceledCheckpoints[checkpointId] = struct{}{}
		c.canceledCount++
	}
}

func (c *Coordinator) GetCompleteCount() int {
	c.Lock()
	defer c.Unlock()
	return c.completedCount
}

func (c *Coordinator) GetCanceledCount() int {
	c.Lock()
	defer c.Unlock()
	return c.canceledCount
}

// GetLatest returns the latest completed checkpoint or NoCheckpoint.
func (c *Coordinator) GetLatest() int64 {
	c.Lock()
	defer c.Unlock()
	return c.completedCheckpoints.getLatest()
}
