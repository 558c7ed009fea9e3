package monitor

import (
	"context"
	"sort"
	"time"

	log "github.com/cihub/seelog"
)

// GroupSource enumerates groups, the topics each has consumed and the
// partitions its live members currently own.
type GroupSource interface {
	ListGroups() ([]string, error)
	TopicsForGroup(group string) ([]string, error)
	// Assignments is empty for a group without live members.
	Assignments(group string) ([]Assignment, error)
}

// CatalogCollector rebuilds group/topic membership on every tick and
// publishes it as a new generation.
type CatalogCollector struct {
	source   GroupSource
	store    *Store
	filter   *Filter
	interval time.Duration

	generation int64
	now        func() time.Time
}

func NewCatalogCollector(source GroupSource, store *Store, filter *Filter, interval time.Duration) *CatalogCollector {
	return &CatalogCollector{
		source:   source,
		store:    store,
		filter:   filter,
		interval: interval,
		now:      time.Now,
	}
}

func (c *CatalogCollector) Name() string {
	return "catalog"
}

func (c *CatalogCollector) Run(ctx context.Context) {
	tick(ctx, c.interval, c.Refresh)
}

// Refresh builds a complete membership from the source. A group whose lookup
// fails is left out of this generation; a failed group listing keeps the
// previous generation.
func (c *CatalogCollector) Refresh() {
	groups, err := c.source.ListGroups()
	if err != nil {
		current := c.store.Membership()
		log.Warnf("list groups failed, keeping membership generation %d from %s: %v",
			current.Generation, current.RefreshedAt.Format(time.RFC3339), err)
		return
	}

	builder := newMembershipBuilder()
	skipped := 0
	for _, group := range groups {
		if !c.filter.Group(group) {
			continue
		}
		topics, err := c.source.TopicsForGroup(group)
		if err != nil {
			log.Warnf("topics for group %s failed: %v", group, err)
			skipped++
			continue
		}
		assignments, err := c.source.Assignments(group)
		if err != nil {
			log.Warnf("assignments for group %s failed: %v", group, err)
			skipped++
			continue
		}
		for _, topic := range topics {
			if c.filter.Topic(topic) {
				builder.addTopic(group, topic)
			}
		}
		for _, a := range assignments {
			if c.filter.Topic(a.Topic) {
				builder.addAssignment(group, a)
			}
		}
	}

	c.generation++
	m := builder.build(c.generation, c.now())
	c.store.PublishMembership(m)
	log.Debugf("membership generation %d at %s: %d groups, %d topics, %d active topics, %d skipped",
		m.Generation, m.RefreshedAt.Format(time.RFC3339), len(m.groupTopics), len(m.topicGroups), len(m.activeTopicGroups), skipped)
}

// zookeeperGroups reads groups registered by ZooKeeper based consumers.
type zookeeperGroups struct {
	coord ZookeeperCoordinator
}

func (z zookeeperGroups) ListGroups() ([]string, error) {
	return z.coord.ListGroups(), nil
}

func (z zookeeperGroups) TopicsForGroup(group string) ([]string, error) {
	return z.coord.TopicsForGroup(group), nil
}

func (z zookeeperGroups) Assignments(group string) ([]Assignment, error) {
	owners := z.coord.PartitionOwners(group)
	assignments := make([]Assignment, 0, len(owners))
	for tp, owner := range owners {
		assignments = append(assignments, Assignment{Topic: tp.Topic, Partition: tp.Partition, Owner: owner})
	}
	sortAssignments(assignments)
	return assignments, nil
}

func sortAssignments(assignments []Assignment) {
	sort.Slice(assignments, func(i, j int) bool {
		if assignments[i].Topic != assignments[j].Topic {
			return assignments[i].Topic < assignments[j].Topic
		}
		return assignments[i].Partition < assignments[j].Partition
	})
}

// tick runs fn immediately and then once per interval until ctx is done.
func tick(ctx context.Context, interval time.Duration, fn func()) {
	fn()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}
