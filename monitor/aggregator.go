package monitor

import (
	"sort"

	"github.com/sundy-li/offsetmon/model"
	"github.com/sundy-li/offsetmon/protocol"
)

const (
	clusterNodeName      = "KafkaCluster"
	activeTopicsNodeName = "ActiveTopics"
)

// Aggregator answers read queries by joining the store tables. It never
// waits for the collectors: each call sees whatever is published when it runs.
type Aggregator struct {
	getter       OffsetGetter
	coord        Coordinator
	brokers      *BrokerCache
	offsetsTopic string
}

func NewAggregator(getter OffsetGetter, coord Coordinator, brokers *BrokerCache, offsetsTopic string) *Aggregator {
	return &Aggregator{getter: getter, coord: coord, brokers: brokers, offsetsTopic: offsetsTopic}
}

// GroupInfo lists the offsets of every partition of every topic the group
// has consumed, ordered by topic and partition.
func (a *Aggregator) GroupInfo(group string) protocol.GroupInfo {
	topics := sortedCopy(a.getter.TopicsForGroup(group))
	return a.groupInfo(group, topics, a.coord.PartitionsFor(topics))
}

func (a *Aggregator) groupInfo(group string, topics []string, partitions map[string][]int32) protocol.GroupInfo {
	info := protocol.GroupInfo{
		Group:   group,
		Brokers: a.brokers.Brokers(),
		Offsets: []model.OffsetRecord{},
	}
	for _, topic := range topics {
		ids := append([]int32(nil), partitions[topic]...)
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		for _, partition := range ids {
			if rec, ok := a.getter.ProcessPartition(group, topic, partition); ok {
				info.Offsets = append(info.Offsets, rec)
			}
		}
	}
	return info
}

// ClusterTopology has one child per live broker.
func (a *Aggregator) ClusterTopology() protocol.Node {
	brokers := a.coord.ListBrokers()
	root := protocol.Node{Name: clusterNodeName, Children: make([]protocol.Node, 0, len(brokers))}
	for _, b := range brokers {
		root.Children = append(root.Children, protocol.Node{Name: b.Addr()})
	}
	return root
}

// TopicDetails lists the active groups of topic.
func (a *Aggregator) TopicDetails(topic string) protocol.TopicDetails {
	groups := a.getter.ActiveTopicToGroups()[topic]
	if len(groups) == 0 {
		return protocol.NoActiveConsumersDetails()
	}
	details := protocol.TopicDetails{Consumers: make([]protocol.ConsumerDetail, 0, len(groups))}
	for _, g := range sortedCopy(groups) {
		details.Consumers = append(details.Consumers, protocol.ConsumerDetail{Name: g})
	}
	return details
}

// TopicAndConsumerDetails splits every group seen on topic into active and
// inactive ones. No group appears in both lists.
func (a *Aggregator) TopicAndConsumerDetails(topic string) protocol.TopicAndConsumersDetails {
	active := sortedCopy(a.getter.ActiveTopicToGroups()[topic])
	isActive := make(map[string]struct{}, len(active))
	for _, g := range active {
		isActive[g] = struct{}{}
	}
	var inactive []string
	for _, g := range sortedCopy(a.getter.TopicToGroups()[topic]) {
		if _, ok := isActive[g]; !ok {
			inactive = append(inactive, g)
		}
	}

	topics := []string{topic}
	partitions := a.coord.PartitionsFor(topics)
	details := protocol.TopicAndConsumersDetails{
		Active:   make([]protocol.GroupInfo, 0, len(active)),
		Inactive: make([]protocol.GroupInfo, 0, len(inactive)),
	}
	for _, g := range active {
		details.Active = append(details.Active, a.groupInfo(g, topics, partitions))
	}
	for _, g := range inactive {
		details.Inactive = append(details.Inactive, a.groupInfo(g, topics, partitions))
	}
	return details
}

// ActiveTopicsTree has one child per active topic, each with one child per active group.
func (a *Aggregator) ActiveTopicsTree() protocol.Node {
	active := a.getter.ActiveTopicToGroups()
	topics := make([]string, 0, len(active))
	for topic := range active {
		topics = append(topics, topic)
	}
	sort.Strings(topics)

	root := protocol.Node{Name: activeTopicsNodeName, Children: make([]protocol.Node, 0, len(topics))}
	for _, topic := range topics {
		node := protocol.Node{Name: topic}
		for _, g := range sortedCopy(active[topic]) {
			node.Children = append(node.Children, protocol.Node{Name: g})
		}
		root.Children = append(root.Children, node)
	}
	return root
}

// ListAllTopics returns the cluster's topics without the internal offsets topic.
func (a *Aggregator) ListAllTopics() []string {
	topics := make([]string, 0)
	for _, topic := range a.coord.ListTopics() {
		if topic != a.offsetsTopic {
			topics = append(topics, topic)
		}
	}
	sort.Strings(topics)
	return topics
}

func (a *Aggregator) ListAllGroups() []string {
	return sortedCopy(a.getter.Groups())
}

func sortedCopy(s []string) []string {
	out := append(make([]string, 0, len(s)), s...)
	sort.Strings(out)
	return out
}
