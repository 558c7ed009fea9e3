package monitor

import (
	"context"

	"github.com/sundy-li/offsetmon/model"
)

// OffsetGetter is the read side of a storage backend.
type OffsetGetter interface {
	ProcessPartition(group, topic string, partition int32) (model.OffsetRecord, bool)
	Groups() []string
	TopicsForGroup(group string) []string
	TopicToGroups() map[string][]string
	ActiveTopicToGroups() map[string][]string
}

// Collector is a long-running task feeding the store. Run returns only
// once ctx is cancelled.
type Collector interface {
	Name() string
	Run(ctx context.Context)
}

// Backend selects which collectors populate the store.
type Backend interface {
	Name() string
	Collectors() []Collector
	Getter() OffsetGetter
	Close() error
}

// View answers OffsetGetter queries against one membership generation.
type View struct {
	store      *Store
	membership *Membership
}

func (v *View) ProcessPartition(group, topic string, partition int32) (model.OffsetRecord, bool) {
	rec, ok := v.store.Record(group, topic, partition)
	if !ok {
		return rec, false
	}
	if rec.Owner == "" {
		rec.Owner = v.membership.Owner(model.GroupTopicPartition{Group: group, Topic: topic, Partition: partition})
	}
	return rec, true
}

func (v *View) Groups() []string {
	return v.membership.Groups()
}

func (v *View) TopicsForGroup(group string) []string {
	return v.membership.TopicsForGroup(group)
}

func (v *View) TopicToGroups() map[string][]string {
	return v.membership.TopicToGroups()
}

func (v *View) ActiveTopicToGroups() map[string][]string {
	return v.membership.ActiveTopicToGroups()
}
