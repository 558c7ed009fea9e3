package monitor

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/Shopify/sarama"
	log "github.com/cihub/seelog"
	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/sundy-li/offsetmon/model"
)

// BrokerConn is the slice of a broker connection the poller needs.
type BrokerConn interface {
	GetAvailableOffsets(request *sarama.OffsetRequest) (*sarama.OffsetResponse, error)
	Close() error
}

// Dialer creates a connection to one broker. It must not block on the network.
type Dialer func(info model.BrokerInfo) (BrokerConn, error)

// BrokerResolver looks up a broker registration by id.
type BrokerResolver func(id int32) (model.BrokerInfo, bool)

type brokerEntry struct {
	info model.BrokerInfo
	conn BrokerConn
}

// BrokerCache keeps at most one connection per broker id for the life of
// the process. Connections are created on first use.
type BrokerCache struct {
	conns   cmap.ConcurrentMap[string, *brokerEntry]
	resolve BrokerResolver
	dial    Dialer
}

func NewBrokerCache(resolve BrokerResolver, dial Dialer) *BrokerCache {
	return &BrokerCache{
		conns:   cmap.New[*brokerEntry](),
		resolve: resolve,
		dial:    dial,
	}
}

// Get returns the connection for brokerId, creating it if needed. Concurrent
// first calls for the same id share a single connection.
func (c *BrokerCache) Get(brokerId int32) (BrokerConn, error) {
	key := strconv.Itoa(int(brokerId))
	if e, ok := c.conns.Get(key); ok && e != nil {
		return e.conn, nil
	}

	info, ok := c.resolve(brokerId)
	if !ok {
		return nil, fmt.Errorf("broker %d is not registered", brokerId)
	}

	var dialErr error
	entry := c.conns.Upsert(key, nil, func(exist bool, inMap, _ *brokerEntry) *brokerEntry {
		if exist && inMap != nil {
			return inMap
		}
		conn, err := c.dial(info)
		if err != nil {
			dialErr = err
			return nil
		}
		log.Infof("opened connection to broker %d at %s", info.ID, info.Addr())
		return &brokerEntry{info: info, conn: conn}
	})
	if entry == nil {
		c.conns.RemoveCb(key, func(_ string, v *brokerEntry, exists bool) bool {
			return exists && v == nil
		})
		return nil, fmt.Errorf("connect broker %d at %s: %w", brokerId, info.Addr(), dialErr)
	}
	return entry.conn, nil
}

// Brokers lists the brokers with a cached connection, sorted by id.
func (c *BrokerCache) Brokers() []model.BrokerInfo {
	brokers := make([]model.BrokerInfo, 0, c.conns.Count())
	for item := range c.conns.IterBuffered() {
		if item.Val != nil {
			brokers = append(brokers, item.Val.info)
		}
	}
	sort.Slice(brokers, func(i, j int) bool { return brokers[i].ID < brokers[j].ID })
	return brokers
}

func (c *BrokerCache) Close() {
	for item := range c.conns.IterBuffered() {
		if item.Val == nil {
			continue
		}
		if err := item.Val.conn.Close(); err != nil {
			log.Warnf("close broker %d: %v", item.Val.info.ID, err)
		}
	}
}

// saramaBroker reopens its connection before a request if it was dropped.
type saramaBroker struct {
	broker *sarama.Broker
	config *sarama.Config
}

// SaramaDialer dials brokers with the given client config.
func SaramaDialer(config *sarama.Config) Dialer {
	return func(info model.BrokerInfo) (BrokerConn, error) {
		b := &saramaBroker{broker: sarama.NewBroker(info.Addr()), config: config}
		if err := b.broker.Open(config); err != nil {
			return nil, err
		}
		return b, nil
	}
}

func (b *saramaBroker) GetAvailableOffsets(request *sarama.OffsetRequest) (*sarama.OffsetResponse, error) {
	if ok, _ := b.broker.Connected(); !ok {
		if err := b.broker.Open(b.config); err != nil && err != sarama.ErrAlreadyConnected {
			return nil, err
		}
	}
	resp, err := b.broker.GetAvailableOffsets(request)
	if err != nil {
		_ = b.broker.Close()
	}
	return resp, err
}

func (b *saramaBroker) Close() error {
	if ok, _ := b.broker.Connected(); !ok {
		return nil
	}
	return b.broker.Close()
}
