package monitor

import (
	"context"
	"time"
)

// ZookeeperOffsetSweeper copies offsets committed by ZooKeeper based
// consumers into the store, for every group in the current membership.
type ZookeeperOffsetSweeper struct {
	coord    ZookeeperCoordinator
	store    *Store
	interval time.Duration
}

func NewZookeeperOffsetSweeper(coord ZookeeperCoordinator, store *Store, interval time.Duration) *ZookeeperOffsetSweeper {
	return &ZookeeperOffsetSweeper{coord: coord, store: store, interval: interval}
}

func (z *ZookeeperOffsetSweeper) Name() string {
	return "zookeeper-offsets"
}

func (z *ZookeeperOffsetSweeper) Run(ctx context.Context) {
	tick(ctx, z.interval, z.Sweep)
}

func (z *ZookeeperOffsetSweeper) Sweep() {
	m := z.store.Membership()
	for _, group := range m.Groups() {
		topics := m.TopicsForGroup(group)
		partitions := z.coord.PartitionsFor(topics)
		for _, topic := range topics {
			for _, partition := range partitions[topic] {
				commit, created, ok := z.coord.ConsumerOffset(group, topic, partition)
				if !ok {
					continue
				}
				z.store.CommitAt(commit, created)
			}
		}
	}
}
