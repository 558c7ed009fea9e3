package zkutil

import (
	"errors"
	"net"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	log "github.com/cihub/seelog"
	"github.com/go-zookeeper/zk"
	"github.com/tidwall/gjson"

	"github.com/sundy-li/offsetmon/model"
)

const (
	BrokerIdsPath    = "/brokers/ids"
	BrokerTopicsPath = "/brokers/topics"
	ConsumersPath    = "/consumers"
)

// Conn is the part of *zk.Conn the handle reads through.
type Conn interface {
	Children(path string) ([]string, *zk.Stat, error)
	Get(path string) ([]byte, *zk.Stat, error)
	Close()
}

// Handle answers cluster metadata questions from ZooKeeper. Missing nodes
// read as empty results; any other failure is logged and also reads as empty.
type Handle struct {
	conn Conn
}

func NewHandle(conn Conn) *Handle {
	return &Handle{conn: conn}
}

type zkLogger struct{}

func (zkLogger) Printf(format string, args ...interface{}) {
	log.Debugf("zookeeper: "+format, args...)
}

// Connect opens a ZooKeeper session and waits up to connectTimeout for it to
// be established. A session that is not up in time is reported but the handle
// is still returned: the client keeps reconnecting in the background.
func Connect(hosts []string, sessionTimeout, connectTimeout time.Duration) (*Handle, error) {
	conn, events, err := zk.Connect(hosts, sessionTimeout, zk.WithLogger(zkLogger{}))
	if err != nil {
		return nil, err
	}

	timer := time.NewTimer(connectTimeout)
	defer timer.Stop()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return NewHandle(conn), nil
			}
			if ev.State == zk.StateHasSession {
				log.Infof("zookeeper session established with %s", ev.Server)
				go drainEvents(events)
				return NewHandle(conn), nil
			}
		case <-timer.C:
			log.Warnf("zookeeper session to %v not established after %v, continuing", hosts, connectTimeout)
			go drainEvents(events)
			return NewHandle(conn), nil
		}
	}
}

func drainEvents(events <-chan zk.Event) {
	for ev := range events {
		if ev.State == zk.StateExpired || ev.State == zk.StateDisconnected {
			log.Warnf("zookeeper session state %s", ev.State)
		}
	}
}

func (h *Handle) Close() {
	h.conn.Close()
}

// ListTopics returns every topic registered with the cluster, sorted.
func (h *Handle) ListTopics() []string {
	return h.children(BrokerTopicsPath)
}

// PartitionsFor reads the partition assignment of each topic. Topics without
// a registration map to an empty slice.
func (h *Handle) PartitionsFor(topics []string) map[string][]int32 {
	result := make(map[string][]int32, len(topics))
	for _, topic := range topics {
		data, ok := h.get(path.Join(BrokerTopicsPath, topic))
		if !ok {
			result[topic] = nil
			continue
		}
		var partitions []int32
		gjson.GetBytes(data, "partitions").ForEach(func(key, _ gjson.Result) bool {
			p, err := strconv.ParseInt(key.String(), 10, 32)
			if err != nil {
				log.Warnf("bad partition id %q for topic %s", key.String(), topic)
				return true
			}
			partitions = append(partitions, int32(p))
			return true
		})
		sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })
		result[topic] = partitions
	}
	return result
}

// ListBrokers returns the live brokers sorted by id.
func (h *Handle) ListBrokers() []model.BrokerInfo {
	ids := h.children(BrokerIdsPath)
	brokers := make([]model.BrokerInfo, 0, len(ids))
	for _, id := range ids {
		n, err := strconv.ParseInt(id, 10, 32)
		if err != nil {
			continue
		}
		if b, ok := h.Broker(int32(n)); ok {
			brokers = append(brokers, b)
		}
	}
	sort.Slice(brokers, func(i, j int) bool { return brokers[i].ID < brokers[j].ID })
	return brokers
}

// Broker reads the registration of a single broker.
func (h *Handle) Broker(id int32) (model.BrokerInfo, bool) {
	data, ok := h.get(path.Join(BrokerIdsPath, strconv.Itoa(int(id))))
	if !ok {
		return model.BrokerInfo{}, false
	}
	return parseBroker(id, data)
}

func parseBroker(id int32, data []byte) (model.BrokerInfo, bool) {
	info := model.BrokerInfo{ID: id}
	fields := gjson.GetManyBytes(data, "host", "port", "endpoints.0")
	info.Host = fields[0].String()
	info.Port = int32(fields[1].Int())
	if info.Host == "" && fields[2].Exists() {
		// listener form: PLAINTEXT://host:port
		endpoint := fields[2].String()
		if i := strings.Index(endpoint, "://"); i >= 0 {
			endpoint = endpoint[i+3:]
		}
		host, port, err := net.SplitHostPort(endpoint)
		if err != nil {
			log.Warnf("bad endpoint %q for broker %d", fields[2].String(), id)
			return info, false
		}
		p, _ := strconv.Atoi(port)
		info.Host, info.Port = host, int32(p)
	}
	return info, info.Host != ""
}

// PartitionLeader returns the broker id currently leading topic/partition.
func (h *Handle) PartitionLeader(topic string, partition int32) (int32, bool) {
	p := path.Join(BrokerTopicsPath, topic, "partitions", strconv.Itoa(int(partition)), "state")
	data, ok := h.get(p)
	if !ok {
		return -1, false
	}
	leader := gjson.GetBytes(data, "leader")
	if !leader.Exists() || leader.Int() < 0 {
		return -1, false
	}
	return int32(leader.Int()), true
}

// ListGroups returns the groups that ever registered in ZooKeeper.
func (h *Handle) ListGroups() []string {
	return h.children(ConsumersPath)
}

// TopicsForGroup returns the topics a group has committed offsets for.
func (h *Handle) TopicsForGroup(group string) []string {
	return h.children(path.Join(ConsumersPath, group, "offsets"))
}

// PartitionOwners returns the owner of every partition a group currently
// claims. A group without a live consumer registration owns nothing.
func (h *Handle) PartitionOwners(group string) map[model.TopicPartition]string {
	if len(h.children(path.Join(ConsumersPath, group, "ids"))) == 0 {
		return nil
	}
	owners := make(map[model.TopicPartition]string)
	ownersPath := path.Join(ConsumersPath, group, "owners")
	for _, topic := range h.children(ownersPath) {
		for _, p := range h.children(path.Join(ownersPath, topic)) {
			partition, err := strconv.ParseInt(p, 10, 32)
			if err != nil {
				continue
			}
			tp := model.TopicPartition{Topic: topic, Partition: int32(partition)}
			owners[tp] = h.PartitionOwner(group, topic, tp.Partition)
		}
	}
	return owners
}

// ConsumerOffset reads the offset a group committed for topic/partition
// together with the znode creation and modification times.
func (h *Handle) ConsumerOffset(group, topic string, partition int32) (model.CommittedOffset, time.Time, bool) {
	p := path.Join(ConsumersPath, group, "offsets", topic, strconv.Itoa(int(partition)))
	data, stat, err := h.conn.Get(p)
	if err != nil {
		h.logError(p, err)
		return model.CommittedOffset{}, time.Time{}, false
	}
	offset, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		log.Warnf("bad offset %q at %s", data, p)
		return model.CommittedOffset{}, time.Time{}, false
	}
	commit := model.CommittedOffset{
		Group:     group,
		Topic:     topic,
		Partition: partition,
		Offset:    offset,
		Owner:     h.PartitionOwner(group, topic, partition),
		Timestamp: time.Unix(0, stat.Mtime*int64(time.Millisecond)),
	}
	return commit, time.Unix(0, stat.Ctime*int64(time.Millisecond)), true
}

// PartitionOwner returns the consumer id owning topic/partition for group, or "".
func (h *Handle) PartitionOwner(group, topic string, partition int32) string {
	data, ok := h.get(path.Join(ConsumersPath, group, "owners", topic, strconv.Itoa(int(partition))))
	if !ok {
		return ""
	}
	return string(data)
}

func (h *Handle) children(p string) []string {
	children, _, err := h.conn.Children(p)
	if err != nil {
		h.logError(p, err)
		return nil
	}
	sort.Strings(children)
	return children
}

func (h *Handle) get(p string) ([]byte, bool) {
	data, _, err := h.conn.Get(p)
	if err != nil {
		h.logError(p, err)
		return nil, false
	}
	return data, true
}

func (h *Handle) logError(p string, err error) {
	if errors.Is(err, zk.ErrNoNode) {
		return
	}
	log.Warnf("zookeeper read %s failed: %v", p, err)
}
