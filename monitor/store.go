package monitor

import (
	"sort"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"
	"go.uber.org/atomic"

	"github.com/sundy-li/offsetmon/model"
)

type committedEntry struct {
	commit    model.CommittedOffset
	createdAt time.Time
}

type logEndEntry struct {
	offset     int64
	observedAt time.Time
}

// Store holds the tables the collectors write and the aggregator reads.
// Offset tables are sharded maps updated per key; membership is an immutable
// snapshot replaced as a whole.
type Store struct {
	//group/topic/partition => last commit
	committed cmap.ConcurrentMap[string, committedEntry]
	//topic/partition => newest offset
	logEnd cmap.ConcurrentMap[string, logEndEntry]

	membership atomic.Pointer[Membership]

	now func() time.Time
}

func NewStore() *Store {
	s := &Store{
		committed: cmap.New[committedEntry](),
		logEnd:    cmap.New[logEndEntry](),
		now:       time.Now,
	}
	s.membership.Store(emptyMembership())
	return s
}

func committedKey(group, topic string, partition int32) string {
	return model.GroupTopicPartition{Group: group, Topic: topic, Partition: partition}.String()
}

func logEndKey(topic string, partition int32) string {
	return model.TopicPartition{Topic: topic, Partition: partition}.String()
}

// Commit applies a commit, keeping the creation time of an existing record
// and using the commit timestamp for a new one. The last write wins even if
// it carries an older offset.
func (s *Store) Commit(c model.CommittedOffset) {
	s.CommitAt(c, c.Timestamp)
}

// CommitAt is Commit with an explicit creation time for new records.
func (s *Store) CommitAt(c model.CommittedOffset, created time.Time) {
	s.committed.Upsert(c.Key().String(), committedEntry{commit: c, createdAt: created},
		func(exist bool, inMap, fresh committedEntry) committedEntry {
			if exist {
				fresh.createdAt = inMap.createdAt
			}
			return fresh
		})
}

func (s *Store) SetLogEndOffset(topic string, partition int32, offset int64) {
	s.logEnd.Set(logEndKey(topic, partition), logEndEntry{offset: offset, observedAt: s.now()})
}

func (s *Store) LogEndOffset(topic string, partition int32) (int64, bool) {
	e, ok := s.logEnd.Get(logEndKey(topic, partition))
	return e.offset, ok
}

// Record joins both offset tables for one key. A side that was never
// observed reads as zero; a key with neither side is absent.
func (s *Store) Record(group, topic string, partition int32) (model.OffsetRecord, bool) {
	c, hasCommit := s.committed.Get(committedKey(group, topic, partition))
	le, hasLogEnd := s.logEnd.Get(logEndKey(topic, partition))
	if !hasCommit && !hasLogEnd {
		return model.OffsetRecord{}, false
	}

	rec := model.OffsetRecord{Group: group, Topic: topic, Partition: partition}
	if hasCommit {
		rec.CommittedOffset = c.commit.Offset
		rec.Owner = c.commit.Owner
		rec.CreatedAt = c.createdAt
		rec.ModifiedAt = c.commit.Timestamp
	} else {
		rec.CreatedAt = le.observedAt
		rec.ModifiedAt = le.observedAt
	}
	if hasLogEnd {
		rec.LogEndOffset = le.offset
	}
	return rec, true
}

// CommittedTopics maps every group seen in the commit table to its topics.
func (s *Store) CommittedTopics() map[string][]string {
	seen := make(map[string]map[string]struct{})
	for item := range s.committed.IterBuffered() {
		c := item.Val.commit
		if seen[c.Group] == nil {
			seen[c.Group] = make(map[string]struct{})
		}
		seen[c.Group][c.Topic] = struct{}{}
	}
	result := make(map[string][]string, len(seen))
	for group, topics := range seen {
		result[group] = sortedKeys(topics)
	}
	return result
}

// PublishMembership makes m visible to readers in one step.
func (s *Store) PublishMembership(m *Membership) {
	s.membership.Store(m)
}

func (s *Store) Membership() *Membership {
	return s.membership.Load()
}

// View pins the current membership generation for one read.
func (s *Store) View() *View {
	return &View{store: s, membership: s.Membership()}
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
