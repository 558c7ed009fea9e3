package monitor

import (
	"io"

	"github.com/Shopify/sarama"

	"github.com/sundy-li/offsetmon/config"
)

type backend struct {
	name       string
	store      *Store
	collectors []Collector
	closers    []io.Closer
}

func (b *backend) Name() string {
	return b.name
}

func (b *backend) Collectors() []Collector {
	return b.collectors
}

func (b *backend) Getter() OffsetGetter {
	return b.store.View()
}

func (b *backend) Close() error {
	var first error
	for _, c := range b.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// NewKafkaBackend tracks groups that commit to the internal offsets topic.
// Broker connections are opened by the collectors, so unreachable brokers
// delay collection instead of failing startup.
func NewKafkaBackend(cfg *config.Config, saramaConfig *sarama.Config, coord Coordinator,
	brokers *BrokerCache, store *Store, filter *Filter, open func() (*KafkaHandles, error)) Backend {
	conn := newKafkaConn(open)
	return &backend{
		name:  config.StorageKafka,
		store: store,
		collectors: []Collector{
			NewCatalogCollector(&adminGroups{admin: conn.Admin, store: store}, store, filter, cfg.CatalogInterval()),
			NewCommitListener(conn.Consumer, cfg.Kafka.OffsetsTopic, store, filter),
			NewLogEndPoller(coord, brokers, store, filter, cfg.Kafka.OffsetsTopic, cfg.LogEndInterval(), saramaConfig.Version),
		},
		closers: []io.Closer{conn},
	}
}

// NewZookeeperBackend tracks groups that keep their offsets in ZooKeeper.
func NewZookeeperBackend(cfg *config.Config, saramaConfig *sarama.Config, coord ZookeeperCoordinator,
	brokers *BrokerCache, store *Store, filter *Filter) Backend {
	return &backend{
		name:  config.StorageZookeeper,
		store: store,
		collectors: []Collector{
			NewCatalogCollector(zookeeperGroups{coord: coord}, store, filter, cfg.CatalogInterval()),
			NewZookeeperOffsetSweeper(coord, store, cfg.ZkOffsetsInterval()),
			NewLogEndPoller(coord, brokers, store, filter, cfg.Kafka.OffsetsTopic, cfg.LogEndInterval(), saramaConfig.Version),
		},
	}
}
