package console

import (
	"context"
	"encoding/json"

	log "github.com/cihub/seelog"
	"github.com/dustin/go-humanize"
	"go.uber.org/atomic"

	"github.com/sundy-li/offsetmon/protocol"
)

type Config struct {
	// MinLag hides partitions lagging less than this.
	MinLag int64 `json:"minLag"`
}

type ConsoleOutput struct {
	cfg     Config
	msgs    chan *protocol.GroupInfo
	stopped chan struct{}
	ctx     context.Context
	dropped atomic.Int64

	printf func(format string, params ...interface{})
}

func New(ctx context.Context, config []byte) (output *ConsoleOutput, err error) {
	output = &ConsoleOutput{
		ctx:     ctx,
		msgs:    make(chan *protocol.GroupInfo, 1000),
		stopped: make(chan struct{}),
		printf:  log.Infof,
	}
	if len(config) > 0 {
		if err = json.Unmarshal(config, &output.cfg); err != nil {
			return nil, err
		}
	}
	return
}

func (output *ConsoleOutput) Start() error {
	go func() {
		defer close(output.stopped)
		for {
			select {
			case msg, ok := <-output.msgs:
				if !ok {
					return
				}
				output.print(msg)
			case <-output.ctx.Done():
				return
			}
		}
	}()
	return nil
}

func (output *ConsoleOutput) print(msg *protocol.GroupInfo) {
	for _, rec := range msg.Offsets {
		if output.cfg.MinLag > 0 && rec.Lag() < output.cfg.MinLag {
			continue
		}
		output.printf("group=%s topic=%s partition=%d offset=%d logsize=%d lag=%s owner=%s",
			rec.Group, rec.Topic, rec.Partition, rec.CommittedOffset, rec.LogEndOffset,
			humanize.Comma(rec.Lag()), rec.Owner)
	}
}

// SaveMessage never blocks the reporter: a report arriving while the buffer
// is full is dropped.
func (output *ConsoleOutput) SaveMessage(msg *protocol.GroupInfo) {
	select {
	case output.msgs <- msg:
	case <-output.ctx.Done():
	default:
		n := output.dropped.Inc()
		log.Warnf("console output full, dropped report for group %s (%d dropped so far)", msg.Group, n)
	}
}

func (output *ConsoleOutput) Stop() error {
	close(output.msgs)
	<-output.stopped
	return nil
}
