package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sundy-li/offsetmon/config"
	"github.com/sundy-li/offsetmon/model"
	"github.com/sundy-li/offsetmon/protocol"
)

type aggregatorFixture struct {
	coord   *fakeCoordinator
	store   *Store
	source  *fakeGroups
	brokers *BrokerCache
}

func newAggregatorFixture() *aggregatorFixture {
	f := &aggregatorFixture{
		coord:  newFakeCoordinator(),
		store:  NewStore(),
		source: &fakeGroups{topics: map[string][]string{}, assignments: map[string][]Assignment{}},
	}
	f.brokers = NewBrokerCache(f.coord.Broker, func(model.BrokerInfo) (BrokerConn, error) {
		return &fakeBroker{}, nil
	})
	return f
}

func (f *aggregatorFixture) refresh() *Aggregator {
	NewCatalogCollector(f.source, f.store, nil, time.Second).Refresh()
	return NewAggregator(f.store.View(), f.coord, f.brokers, config.DefaultOffsetsTopic)
}

func TestGroupInfoIsSortedAndComplete(t *testing.T) {
	f := newAggregatorFixture()
	f.coord.addBroker(1, "b1", 9092)
	f.coord.addTopic("payments", 1, 1, 0)
	f.coord.addTopic("orders", 1, 2, 0, 1)
	f.source.groups = []string{"billing"}
	f.source.topics["billing"] = []string{"payments", "orders"}
	f.source.assignments["billing"] = []Assignment{{Topic: "orders", Partition: 1, Owner: "billing-2"}}

	at := time.Unix(100, 0)
	f.store.Commit(commitAt("billing", "orders", 0, 5, at))
	f.store.Commit(commitAt("billing", "orders", 1, 8, at))
	f.store.Commit(commitAt("billing", "payments", 1, 3, at))
	f.store.SetLogEndOffset("orders", 0, 10)
	f.store.SetLogEndOffset("orders", 1, 8)
	f.store.SetLogEndOffset("orders", 2, 4)
	_, err := f.brokers.Get(1)
	require.NoError(t, err)

	agg := f.refresh()
	info := agg.GroupInfo("billing")

	assert.Equal(t, "billing", info.Group)
	assert.Equal(t, []model.BrokerInfo{{ID: 1, Host: "b1", Port: 9092}}, info.Brokers)

	type row struct {
		topic     string
		partition int32
		lag       int64
	}
	var rows []row
	for _, rec := range info.Offsets {
		rows = append(rows, row{rec.Topic, rec.Partition, rec.Lag()})
	}
	assert.Equal(t, []row{
		{"orders", 0, 5},
		{"orders", 1, 0},
		{"orders", 2, 4},
		{"payments", 1, -3},
	}, rows, "payments/0 was never observed")
	assert.Equal(t, "billing-2", info.Offsets[1].Owner)

	assert.Equal(t, info, agg.GroupInfo("billing"), "repeatable without intervening updates")
}

func TestGroupInfoUnknownGroup(t *testing.T) {
	info := newAggregatorFixture().refresh().GroupInfo("nobody")
	assert.Equal(t, "nobody", info.Group)
	assert.NotNil(t, info.Offsets)
	assert.Empty(t, info.Offsets)
}

func TestTopicDetailsWithoutActiveGroups(t *testing.T) {
	f := newAggregatorFixture()
	f.coord.addTopic("orders", 1, 0)
	f.source.groups = []string{"billing"}
	f.source.topics["billing"] = []string{"orders"}
	agg := f.refresh()

	for _, topic := range []string{"orders", "ghost"} {
		details := agg.TopicDetails(topic)
		assert.Equal(t, []protocol.ConsumerDetail{{Name: protocol.NoActiveConsumers}}, details.Consumers, topic)
		assert.False(t, details.HasActiveConsumers())
	}
}

func TestTopicDetailsActiveGroups(t *testing.T) {
	f := newAggregatorFixture()
	f.source.groups = []string{"b", "a"}
	f.source.assignments["b"] = []Assignment{{Topic: "orders", Partition: 0}}
	f.source.assignments["a"] = []Assignment{{Topic: "orders", Partition: 1}}

	details := f.refresh().TopicDetails("orders")
	assert.True(t, details.HasActiveConsumers())
	assert.Equal(t, []protocol.ConsumerDetail{{Name: "a"}, {Name: "b"}}, details.Consumers)
}

func TestTopicAndConsumerDetailsSplit(t *testing.T) {
	f := newAggregatorFixture()
	f.coord.addTopic("orders", 1, 0)
	f.source.groups = []string{"live", "idle", "other"}
	f.source.topics["live"] = []string{"orders"}
	f.source.topics["idle"] = []string{"orders"}
	f.source.topics["other"] = []string{"payments"}
	f.source.assignments["live"] = []Assignment{{Topic: "orders", Partition: 0, Owner: "live-1"}}
	f.store.Commit(commitAt("live", "orders", 0, 1, time.Unix(1, 0)))
	f.store.Commit(commitAt("idle", "orders", 0, 2, time.Unix(1, 0)))

	details := f.refresh().TopicAndConsumerDetails("orders")

	require.Len(t, details.Active, 1)
	require.Len(t, details.Inactive, 1)
	assert.Equal(t, "live", details.Active[0].Group)
	assert.Equal(t, "idle", details.Inactive[0].Group)
	require.Len(t, details.Inactive[0].Offsets, 1)
	assert.Equal(t, int64(2), details.Inactive[0].Offsets[0].CommittedOffset)
}

func TestTopicAndConsumerDetailsUnknownTopic(t *testing.T) {
	details := newAggregatorFixture().refresh().TopicAndConsumerDetails("ghost")
	assert.Empty(t, details.Active)
	assert.Empty(t, details.Inactive)
}

func TestTrees(t *testing.T) {
	f := newAggregatorFixture()
	f.coord.addBroker(2, "b2", 9093)
	f.coord.addBroker(1, "b1", 9092)
	f.source.groups = []string{"x", "y"}
	f.source.assignments["x"] = []Assignment{{Topic: "t2", Partition: 0}, {Topic: "t1", Partition: 0}}
	f.source.assignments["y"] = []Assignment{{Topic: "t1", Partition: 1}}
	agg := f.refresh()

	assert.Equal(t, protocol.Node{
		Name:     "KafkaCluster",
		Children: []protocol.Node{{Name: "b1:9092"}, {Name: "b2:9093"}},
	}, agg.ClusterTopology())

	assert.Equal(t, protocol.Node{
		Name: "ActiveTopics",
		Children: []protocol.Node{
			{Name: "t1", Children: []protocol.Node{{Name: "x"}, {Name: "y"}}},
			{Name: "t2", Children: []protocol.Node{{Name: "x"}}},
		},
	}, agg.ActiveTopicsTree())
}

func TestListings(t *testing.T) {
	f := newAggregatorFixture()
	f.coord.addTopic("payments", 1, 0)
	f.coord.addTopic(config.DefaultOffsetsTopic, 1, 0)
	f.coord.addTopic("orders", 1, 0)
	f.source.groups = []string{"z", "a"}
	f.source.topics["z"] = []string{"orders"}
	f.source.topics["a"] = []string{"orders"}
	agg := f.refresh()

	assert.Equal(t, []string{"orders", "payments"}, agg.ListAllTopics())
	assert.Equal(t, []string{"a", "z"}, agg.ListAllGroups())
}
