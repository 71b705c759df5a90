package node

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type testControlMessage int

const (
	testRunning testControlMessage = iota
	testShutdown
)

func (testControlMessage) ShutdownMsg() testControlMessage {
	return testShutdown
}

type testProcessor struct {
	ticks *int32
}

func (p testProcessor) Start(finished *atomic.Bool) (chan<- testControlMessage, <-chan struct{}) {
	ctrl := NewControlChannel[testControlMessage]()
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer finished.Store(true)
		for {
			select {
			case msg := <-ctrl:
				if msg == testShutdown {
					return
				}
			default:
			}
			atomic.AddInt32(p.ticks, 1)
			time.Sleep(time.Millisecond)
		}
	}()
	return ctrl, done
}

func TestNodeStartShutdownAndJoin(t *testing.T) {
	var ticks int32
	n := Start[testControlMessage](testProcessor{ticks: &ticks})
	time.Sleep(5 * time.Millisecond)
	assert.False(t, n.IsFinished())
	n.Shutdown()
	assert.True(t, n.IsFinished())
}
