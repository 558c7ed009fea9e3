package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/cihub/seelog"
	"go.uber.org/atomic"

	"github.com/sundy-li/offsetmon/config"
	"github.com/sundy-li/offsetmon/outputs"
	"github.com/sundy-li/offsetmon/zkutil"
)

// Engine owns the store and the collectors feeding it. The collectors are
// launched by the first call to Instance, never twice.
type Engine struct {
	store        *Store
	coord        Coordinator
	brokers      *BrokerCache
	backend      Backend
	offsetsTopic string

	started atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	outputs        []outputs.Output
	reportInterval time.Duration

	onStop []func()
}

func NewEngine(store *Store, coord Coordinator, brokers *BrokerCache, backend Backend, offsetsTopic string) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		store:        store,
		coord:        coord,
		brokers:      brokers,
		backend:      backend,
		offsetsTopic: offsetsTopic,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// New connects to ZooKeeper and the brokers and assembles the engine for
// the configured storage backend.
func New(cfg *config.Config) (*Engine, error) {
	filter, err := NewFilter(cfg.General.TopicFilter, cfg.General.GroupFilter)
	if err != nil {
		return nil, err
	}
	saramaConfig, err := NewSaramaConfig(cfg)
	if err != nil {
		return nil, err
	}
	handle, err := zkutil.Connect(cfg.ZookeeperHosts(), cfg.SessionTimeout(), cfg.ConnectionTimeout())
	if err != nil {
		return nil, fmt.Errorf("zookeeper: %w", err)
	}

	store := NewStore()
	brokers := NewBrokerCache(handle.Broker, SaramaDialer(saramaConfig))

	var backend Backend
	switch cfg.General.Storage {
	case config.StorageKafka:
		backend = NewKafkaBackend(cfg, saramaConfig, handle, brokers, store, filter,
			OpenKafka(cfg.KafkaBrokers(), saramaConfig))
	case config.StorageZookeeper:
		backend = NewZookeeperBackend(cfg, saramaConfig, handle, brokers, store, filter)
	default:
		handle.Close()
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownBackend, cfg.General.Storage)
	}

	e := NewEngine(store, handle, brokers, backend, cfg.Kafka.OffsetsTopic)
	e.onStop = append(e.onStop, handle.Close)
	return e, nil
}

// SetOutputs registers reporters fed with every group's offsets each
// interval. It must be called before the first Instance.
func (e *Engine) SetOutputs(outs []outputs.Output, interval time.Duration) {
	e.outputs = outs
	e.reportInterval = interval
}

// Instance returns a read facade over the shared store, starting the
// collectors on first use. A facade reads one membership generation, so
// callers take a new one per request.
func (e *Engine) Instance() *Aggregator {
	e.start()
	return NewAggregator(e.backend.Getter(), e.coord, e.brokers, e.offsetsTopic)
}

func (e *Engine) start() {
	if !e.started.CompareAndSwap(false, true) {
		return
	}
	log.Infof("starting %s backend", e.backend.Name())
	for _, c := range e.backend.Collectors() {
		e.wg.Add(1)
		go func(c Collector) {
			defer e.wg.Done()
			log.Infof("collector %s started", c.Name())
			c.Run(e.ctx)
			log.Infof("collector %s stopped", c.Name())
		}(c)
	}
	if len(e.outputs) > 0 && e.reportInterval > 0 {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			tick(e.ctx, e.reportInterval, e.report)
		}()
	}
}

func (e *Engine) report() {
	agg := e.Instance()
	for _, group := range agg.ListAllGroups() {
		info := agg.GroupInfo(group)
		for _, output := range e.outputs {
			output.SaveMessage(&info)
		}
	}
}

// Stop cancels the collectors, waits for them and releases connections.
func (e *Engine) Stop() {
	e.cancel()
	e.wg.Wait()
	for _, output := range e.outputs {
		if err := output.Stop(); err != nil {
			log.Warnf("stop output: %v", err)
		}
	}
	if err := e.backend.Close(); err != nil {
		log.Warnf("close %s backend: %v", e.backend.Name(), err)
	}
	e.brokers.Close()
	for _, fn := range e.onStop {
		fn()
	}
}
