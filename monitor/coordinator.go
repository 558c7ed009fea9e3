package monitor

import (
	"time"

	"github.com/sundy-li/offsetmon/model"
)

// Coordinator is the cluster metadata the collectors and the aggregator read.
// Implementations return empty results instead of errors.
type Coordinator interface {
	ListTopics() []string
	PartitionsFor(topics []string) map[string][]int32
	ListBrokers() []model.BrokerInfo
	Broker(id int32) (model.BrokerInfo, bool)
	PartitionLeader(topic string, partition int32) (int32, bool)
}

// ZookeeperCoordinator also exposes the group registry kept by
// ZooKeeper based consumers.
type ZookeeperCoordinator interface {
	Coordinator
	ListGroups() []string
	TopicsForGroup(group string) []string
	PartitionOwners(group string) map[model.TopicPartition]string
	ConsumerOffset(group, topic string, partition int32) (model.CommittedOffset, time.Time, bool)
}
