package protocol

import "github.com/sundy-li/offsetmon/model"

// NoActiveConsumers names the single placeholder consumer returned for a
// topic without any live group.
const NoActiveConsumers = "Unable to find Active Consumers"

type GroupInfo struct {
	Group   string               `json:"group"`
	Brokers []model.BrokerInfo   `json:"brokers"`
	Offsets []model.OffsetRecord `json:"offsets"`
}

// Node is a tree node for cluster and active-topic views.
type Node struct {
	Name     string `json:"name"`
	Children []Node `json:"children,omitempty"`
}

type ConsumerDetail struct {
	Name string `json:"name"`
}

type TopicDetails struct {
	Consumers []ConsumerDetail `json:"consumers"`
}

func NoActiveConsumersDetails() TopicDetails {
	return TopicDetails{Consumers: []ConsumerDetail{{Name: NoActiveConsumers}}}
}

func (d TopicDetails) HasActiveConsumers() bool {
	return !(len(d.Consumers) == 1 && d.Consumers[0].Name == NoActiveConsumers) && len(d.Consumers) > 0
}

type TopicAndConsumersDetails struct {
	Active   []GroupInfo `json:"active"`
	Inactive []GroupInfo `json:"inactive"`
}
