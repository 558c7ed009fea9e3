package model

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// OffsetRecord joins the committed offset of a group with the log-end offset
// of the same topic partition. Both sides are written independently.
type OffsetRecord struct {
	Group           string    `json:"group"`
	Topic           string    `json:"topic"`
	Partition       int32     `json:"partition"`
	CommittedOffset int64     `json:"offset"`
	LogEndOffset    int64     `json:"logSize"`
	Owner           string    `json:"owner,omitempty"`
	CreatedAt       time.Time `json:"creation"`
	ModifiedAt      time.Time `json:"modified"`
}

// Lag is not clamped: a negative value means the log-end offset was read
// before the latest commit and is stale.
func (r OffsetRecord) Lag() int64 {
	return r.LogEndOffset - r.CommittedOffset
}

type BrokerInfo struct {
	ID   int32  `json:"id"`
	Host string `json:"host"`
	Port int32  `json:"port"`
}

func (b BrokerInfo) Addr() string {
	return net.JoinHostPort(b.Host, strconv.Itoa(int(b.Port)))
}

type TopicPartition struct {
	Topic     string
	Partition int32
}

func (tp TopicPartition) String() string {
	return fmt.Sprintf("%s/%d", tp.Topic, tp.Partition)
}

type GroupTopicPartition struct {
	Group     string
	Topic     string
	Partition int32
}

func (k GroupTopicPartition) String() string {
	return fmt.Sprintf("%s/%s/%d", k.Group, k.Topic, k.Partition)
}

// CommittedOffset is one decoded offset commit.
type CommittedOffset struct {
	Group     string
	Topic     string
	Partition int32
	Offset    int64
	Owner     string
	Timestamp time.Time
}

func (c CommittedOffset) Key() GroupTopicPartition {
	return GroupTopicPartition{Group: c.Group, Topic: c.Topic, Partition: c.Partition}
}
