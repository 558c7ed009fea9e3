package monitor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Shopify/sarama"
	"github.com/cenkalti/backoff/v4"
	log "github.com/cihub/seelog"
)

// CommitListener follows the internal offsets topic from its oldest retained
// record and applies every offset commit to the store.
type CommitListener struct {
	connect  func() (sarama.Consumer, error)
	consumer sarama.Consumer
	topic    string
	store    *Store
	filter   *Filter

	newBackOff func() backoff.BackOff
}

// NewCommitListener takes a consumer factory. It is retried with backoff
// until the brokers answer.
func NewCommitListener(connect func() (sarama.Consumer, error), topic string, store *Store, filter *Filter) *CommitListener {
	return &CommitListener{
		connect:  connect,
		topic:    topic,
		store:    store,
		filter:   filter,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.MaxInterval = time.Minute
			b.MaxElapsedTime = 0
			return b
		},
	}
}

func (l *CommitListener) Name() string {
	return "commit-listener"
}

// Run consumes every partition of the offsets topic until ctx is cancelled.
func (l *CommitListener) Run(ctx context.Context) {
	consumer, err := backoff.RetryNotifyWithData(l.connect, backoff.WithContext(l.newBackOff(), ctx),
		func(err error, wait time.Duration) {
			log.Warnf("kafka unavailable, retrying in %v: %v", wait, err)
		})
	if err != nil {
		return
	}
	l.consumer = consumer

	partitions, err := backoff.RetryNotifyWithData(func() ([]int32, error) {
		return l.consumer.Partitions(l.topic)
	}, backoff.WithContext(l.newBackOff(), ctx), func(err error, wait time.Duration) {
		log.Warnf("list partitions of %s failed, retrying in %v: %v", l.topic, wait, err)
	})
	if err != nil {
		return
	}
	log.Infof("following %d partitions of %s", len(partitions), l.topic)

	var wg sync.WaitGroup
	for _, partition := range partitions {
		wg.Add(1)
		go func(partition int32) {
			defer wg.Done()
			l.consumePartition(ctx, partition)
		}(partition)
	}
	wg.Wait()
}

func (l *CommitListener) consumePartition(ctx context.Context, partition int32) {
	offset := sarama.OffsetOldest
	for ctx.Err() == nil {
		var pc sarama.PartitionConsumer
		err := backoff.RetryNotify(func() error {
			var err error
			pc, err = l.consumer.ConsumePartition(l.topic, partition, offset)
			if errors.Is(err, sarama.ErrOffsetOutOfRange) {
				offset = sarama.OffsetOldest
			}
			return err
		}, backoff.WithContext(l.newBackOff(), ctx), func(err error, wait time.Duration) {
			log.Warnf("consume %s/%d failed, retrying in %v: %v", l.topic, partition, wait, err)
		})
		if err != nil {
			return
		}

		offset = l.follow(ctx, partition, pc, offset)
		if err := pc.Close(); err != nil {
			log.Warnf("close consumer of %s/%d: %v", l.topic, partition, err)
		}
	}
}

// follow handles records until the partition consumer stops or ctx is done,
// and returns the offset to resume from.
func (l *CommitListener) follow(ctx context.Context, partition int32, pc sarama.PartitionConsumer, next int64) int64 {
	errs := pc.Errors()
	for {
		select {
		case <-ctx.Done():
			return next
		case msg, ok := <-pc.Messages():
			if !ok {
				return next
			}
			l.handle(msg)
			next = msg.Offset + 1
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			log.Warnf("consumer error on %s/%d: %v", l.topic, partition, err)
		}
	}
}

func (l *CommitListener) handle(msg *sarama.ConsumerMessage) {
	commit, ok, err := DecodeCommit(msg.Key, msg.Value)
	if err != nil {
		log.Warnf("skip record %s/%d@%d: %v", msg.Topic, msg.Partition, msg.Offset, err)
		return
	}
	if !ok || !l.filter.Group(commit.Group) || !l.filter.Topic(commit.Topic) {
		return
	}
	if commit.Timestamp.UnixNano() <= 0 {
		commit.Timestamp = msg.Timestamp
	}
	l.store.Commit(commit)
}
