package monitor

import (
	"time"

	"github.com/sundy-li/offsetmon/model"
)

// Membership is one generation of the group/topic catalog. It is never
// mutated after it has been published.
type Membership struct {
	Generation  int64
	RefreshedAt time.Time

	groupTopics       map[string][]string
	topicGroups       map[string][]string
	activeTopicGroups map[string][]string
	owners            map[model.GroupTopicPartition]string
}

func emptyMembership() *Membership {
	return &Membership{
		groupTopics:       map[string][]string{},
		topicGroups:       map[string][]string{},
		activeTopicGroups: map[string][]string{},
		owners:            map[model.GroupTopicPartition]string{},
	}
}

func (m *Membership) Groups() []string {
	groups := make(map[string]struct{}, len(m.groupTopics))
	for g := range m.groupTopics {
		groups[g] = struct{}{}
	}
	return sortedKeys(groups)
}

func (m *Membership) TopicsForGroup(group string) []string {
	return m.groupTopics[group]
}

func (m *Membership) TopicToGroups() map[string][]string {
	return m.topicGroups
}

func (m *Membership) ActiveTopicToGroups() map[string][]string {
	return m.activeTopicGroups
}

func (m *Membership) Owner(key model.GroupTopicPartition) string {
	return m.owners[key]
}

// Assignment is a partition claimed by a live member of a group.
type Assignment struct {
	Topic     string
	Partition int32
	Owner     string
}

type membershipBuilder struct {
	groupTopics map[string]map[string]struct{}
	active      map[string]map[string]struct{}
	owners      map[model.GroupTopicPartition]string
}

func newMembershipBuilder() *membershipBuilder {
	return &membershipBuilder{
		groupTopics: make(map[string]map[string]struct{}),
		active:      make(map[string]map[string]struct{}),
		owners:      make(map[model.GroupTopicPartition]string),
	}
}

func addToSet(sets map[string]map[string]struct{}, key, value string) {
	if sets[key] == nil {
		sets[key] = make(map[string]struct{})
	}
	sets[key][value] = struct{}{}
}

func (b *membershipBuilder) addTopic(group, topic string) {
	addToSet(b.groupTopics, group, topic)
}

func (b *membershipBuilder) addAssignment(group string, a Assignment) {
	b.addTopic(group, a.Topic)
	addToSet(b.active, a.Topic, group)
	if a.Owner != "" {
		b.owners[model.GroupTopicPartition{Group: group, Topic: a.Topic, Partition: a.Partition}] = a.Owner
	}
}

func (b *membershipBuilder) build(generation int64, at time.Time) *Membership {
	m := emptyMembership()
	m.Generation = generation
	m.RefreshedAt = at

	topicGroups := make(map[string]map[string]struct{})
	for group, topics := range b.groupTopics {
		m.groupTopics[group] = sortedKeys(topics)
		for topic := range topics {
			addToSet(topicGroups, topic, group)
		}
	}
	for topic, groups := range topicGroups {
		m.topicGroups[topic] = sortedKeys(groups)
	}
	for topic, groups := range b.active {
		m.activeTopicGroups[topic] = sortedKeys(groups)
	}
	for k, v := range b.owners {
		m.owners[k] = v
	}
	return m
}
