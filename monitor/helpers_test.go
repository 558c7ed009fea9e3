package monitor

import (
	"bytes"
	"encoding/binary"
	"sync"
	"time"

	"github.com/Shopify/sarama"

	"github.com/sundy-li/offsetmon/model"
)

// fakeCoordinator is an in-memory cluster. It implements ZookeeperCoordinator.
type fakeCoordinator struct {
	mu         sync.Mutex
	partitions map[string][]int32
	leaders    map[model.TopicPartition]int32
	brokers    map[int32]model.BrokerInfo
	groups     map[string][]string
	owners     map[string]map[model.TopicPartition]string
	offsets    map[model.GroupTopicPartition]model.CommittedOffset
}

func newFakeCoordinator() *fakeCoordinator {
	return &fakeCoordinator{
		partitions: map[string][]int32{},
		leaders:    map[model.TopicPartition]int32{},
		brokers:    map[int32]model.BrokerInfo{},
		groups:     map[string][]string{},
		owners:     map[string]map[model.TopicPartition]string{},
		offsets:    map[model.GroupTopicPartition]model.CommittedOffset{},
	}
}

func (f *fakeCoordinator) addTopic(topic string, leader int32, partitions ...int32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.partitions[topic] = partitions
	for _, p := range partitions {
		f.leaders[model.TopicPartition{Topic: topic, Partition: p}] = leader
	}
}

func (f *fakeCoordinator) addBroker(id int32, host string, port int32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.brokers[id] = model.BrokerInfo{ID: id, Host: host, Port: port}
}

func (f *fakeCoordinator) ListTopics() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	topics := make(map[string]struct{}, len(f.partitions))
	for t := range f.partitions {
		topics[t] = struct{}{}
	}
	return sortedKeys(topics)
}

func (f *fakeCoordinator) PartitionsFor(topics []string) map[string][]int32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	result := make(map[string][]int32, len(topics))
	for _, t := range topics {
		result[t] = append([]int32(nil), f.partitions[t]...)
	}
	return result
}

func (f *fakeCoordinator) ListBrokers() []model.BrokerInfo {
	f.mu.Lock()
	defer f.mu.Unlock()
	var brokers []model.BrokerInfo
	for id := int32(0); id < 100; id++ {
		if b, ok := f.brokers[id]; ok {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

func (f *fakeCoordinator) Broker(id int32) (model.BrokerInfo, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.brokers[id]
	return b, ok
}

func (f *fakeCoordinator) PartitionLeader(topic string, partition int32) (int32, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	leader, ok := f.leaders[model.TopicPartition{Topic: topic, Partition: partition}]
	return leader, ok
}

func (f *fakeCoordinator) ListGroups() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	groups := make(map[string]struct{}, len(f.groups))
	for g := range f.groups {
		groups[g] = struct{}{}
	}
	return sortedKeys(groups)
}

func (f *fakeCoordinator) TopicsForGroup(group string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.groups[group]
}

func (f *fakeCoordinator) PartitionOwners(group string) map[model.TopicPartition]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.owners[group]
}

func (f *fakeCoordinator) ConsumerOffset(group, topic string, partition int32) (model.CommittedOffset, time.Time, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.offsets[model.GroupTopicPartition{Group: group, Topic: topic, Partition: partition}]
	return c, c.Timestamp.Add(-time.Hour), ok
}

// fakeBroker answers every offset request with its canned offsets.
type fakeBroker struct {
	mu      sync.Mutex
	offsets map[string]map[int32]int64
	errs    map[string]map[int32]sarama.KError
	err     error
	calls   int
	closed  bool
}

func (b *fakeBroker) GetAvailableOffsets(*sarama.OffsetRequest) (*sarama.OffsetResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	if b.err != nil {
		return nil, b.err
	}
	resp := &sarama.OffsetResponse{Version: 1}
	for topic, partitions := range b.offsets {
		for partition, offset := range partitions {
			resp.AddTopicPartition(topic, partition, offset)
		}
	}
	for topic, partitions := range b.errs {
		for partition, kerr := range partitions {
			resp.AddTopicPartition(topic, partition, 0)
			resp.Blocks[topic][partition].Err = kerr
		}
	}
	return resp, nil
}

func (b *fakeBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func writeString(buf *bytes.Buffer, s string) {
	_ = binary.Write(buf, binary.BigEndian, int16(len(s)))
	buf.WriteString(s)
}

func commitKey(version int16, group, topic string, partition int32) []byte {
	buf := &bytes.Buffer{}
	_ = binary.Write(buf, binary.BigEndian, version)
	writeString(buf, group)
	writeString(buf, topic)
	_ = binary.Write(buf, binary.BigEndian, partition)
	return buf.Bytes()
}

func commitValue(version int16, offset int64, metadata string, commitMillis int64) []byte {
	buf := &bytes.Buffer{}
	_ = binary.Write(buf, binary.BigEndian, version)
	_ = binary.Write(buf, binary.BigEndian, offset)
	if version == 3 {
		_ = binary.Write(buf, binary.BigEndian, int32(7)) // leader epoch
	}
	writeString(buf, metadata)
	_ = binary.Write(buf, binary.BigEndian, commitMillis)
	if version == 1 {
		_ = binary.Write(buf, binary.BigEndian, commitMillis+86400000)
	}
	return buf.Bytes()
}

func commitAt(group, topic string, partition int32, offset int64, at time.Time) model.CommittedOffset {
	return model.CommittedOffset{Group: group, Topic: topic, Partition: partition, Offset: offset, Timestamp: at}
}
