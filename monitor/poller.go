package monitor

import (
	"context"
	"sort"
	"time"

	"github.com/Shopify/sarama"
	log "github.com/cihub/seelog"
	"golang.org/x/sync/errgroup"
)

// LogEndPoller periodically reads the newest offset of every partition.
type LogEndPoller struct {
	coord        Coordinator
	brokers      *BrokerCache
	store        *Store
	filter       *Filter
	offsetsTopic string
	interval     time.Duration

	// OffsetRequest version: 1 from Kafka 0.10.1 on.
	requestVersion int16
}

func NewLogEndPoller(coord Coordinator, brokers *BrokerCache, store *Store, filter *Filter,
	offsetsTopic string, interval time.Duration, version sarama.KafkaVersion) *LogEndPoller {
	p := &LogEndPoller{
		coord:        coord,
		brokers:      brokers,
		store:        store,
		filter:       filter,
		offsetsTopic: offsetsTopic,
		interval:     interval,
	}
	if version.IsAtLeast(sarama.V0_10_1_0) {
		p.requestVersion = 1
	}
	return p
}

func (p *LogEndPoller) Name() string {
	return "log-end-poller"
}

func (p *LogEndPoller) Run(ctx context.Context) {
	tick(ctx, p.interval, p.Sweep)
}

// Sweep buckets one OffsetRequest per leader broker and sends them in
// parallel. A partition that cannot be read keeps its previous value.
func (p *LogEndPoller) Sweep() {
	var topics []string
	for _, topic := range p.coord.ListTopics() {
		if topic != p.offsetsTopic && p.filter.Topic(topic) {
			topics = append(topics, topic)
		}
	}
	sort.Strings(topics)

	requests := make(map[int32]*sarama.OffsetRequest)
	partitions := p.coord.PartitionsFor(topics)
	for _, topic := range topics {
		for _, partition := range partitions[topic] {
			leader, ok := p.coord.PartitionLeader(topic, partition)
			if !ok {
				log.Warnf("no leader for %s/%d, skipping", topic, partition)
				continue
			}
			if _, ok := requests[leader]; !ok {
				requests[leader] = &sarama.OffsetRequest{Version: p.requestVersion}
			}
			requests[leader].AddBlock(topic, partition, sarama.OffsetNewest, 1)
		}
	}

	var g errgroup.Group
	for brokerId, request := range requests {
		brokerId, request := brokerId, request
		g.Go(func() error {
			p.fetch(brokerId, request)
			return nil
		})
	}
	_ = g.Wait()
}

func (p *LogEndPoller) fetch(brokerId int32, request *sarama.OffsetRequest) {
	conn, err := p.brokers.Get(brokerId)
	if err != nil {
		log.Warnf("cannot reach broker %d: %v", brokerId, err)
		return
	}
	response, err := conn.GetAvailableOffsets(request)
	if err != nil {
		log.Errorf("cannot fetch offsets from broker %d: %v", brokerId, err)
		return
	}
	for topic, partitions := range response.Blocks {
		for partition, block := range partitions {
			if block.Err != sarama.ErrNoError {
				log.Warnf("error in OffsetResponse for %s/%d from broker %d: %s", topic, partition, brokerId, block.Err.Error())
				continue
			}
			offset := block.Offset
			if len(block.Offsets) > 0 {
				offset = block.Offsets[0]
			}
			p.store.SetLogEndOffset(topic, partition, offset)
		}
	}
}
