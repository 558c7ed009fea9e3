package monitor

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/Shopify/sarama"
	log "github.com/cihub/seelog"

	"github.com/sundy-li/offsetmon/config"
)

// NewSaramaConfig builds the client config for the configured profile.
func NewSaramaConfig(cfg *config.Config) (*sarama.Config, error) {
	clientConfig := sarama.NewConfig()
	version, err := sarama.ParseKafkaVersion(cfg.Kafka.Version)
	if err != nil {
		return nil, fmt.Errorf("kafka version: %w", err)
	}
	clientConfig.Version = version

	profile := cfg.Profile()
	clientConfig.ClientID = profile.ClientId
	clientConfig.Net.TLS.Enable = profile.TLS
	if profile.TLSCertFilePath == "" || profile.TLSKeyFilePath == "" || profile.TLSCAFilePath == "" {
		clientConfig.Net.TLS.Config = &tls.Config{}
	} else {
		caCert, err := os.ReadFile(profile.TLSCAFilePath)
		if err != nil {
			return nil, err
		}
		cert, err := tls.LoadX509KeyPair(profile.TLSCertFilePath, profile.TLSKeyFilePath)
		if err != nil {
			return nil, err
		}
		caCertPool := x509.NewCertPool()
		caCertPool.AppendCertsFromPEM(caCert)
		clientConfig.Net.TLS.Config = &tls.Config{
			Certificates: []tls.Certificate{cert},
			RootCAs:      caCertPool,
		}
	}
	clientConfig.Net.TLS.Config.InsecureSkipVerify = profile.TLSNoVerify

	if cfg.Kafka.Sasl.Username != "" {
		clientConfig.Net.SASL.Enable = true
		clientConfig.Net.SASL.User = cfg.Kafka.Sasl.Username
		clientConfig.Net.SASL.Password = cfg.Kafka.Sasl.Password
	}

	timeout := cfg.RequestTimeout()
	clientConfig.Net.DialTimeout = timeout
	clientConfig.Net.ReadTimeout = timeout
	clientConfig.Net.WriteTimeout = timeout
	clientConfig.Admin.Timeout = timeout
	clientConfig.Consumer.Return.Errors = true
	clientConfig.Consumer.Offsets.Initial = sarama.OffsetOldest

	if err := clientConfig.Validate(); err != nil {
		return nil, err
	}
	return clientConfig, nil
}

// KafkaHandles are the broker-side clients the kafka backend needs.
type KafkaHandles struct {
	Consumer sarama.Consumer
	Admin    sarama.ClusterAdmin
}

// OpenKafka dials the brokers and builds a consumer and an admin sharing one client.
func OpenKafka(brokers []string, saramaConfig *sarama.Config) func() (*KafkaHandles, error) {
	return func() (*KafkaHandles, error) {
		client, err := sarama.NewClient(brokers, saramaConfig)
		if err != nil {
			return nil, fmt.Errorf("kafka client: %w", err)
		}
		consumer, err := sarama.NewConsumerFromClient(client)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("kafka consumer: %w", err)
		}
		admin, err := sarama.NewClusterAdminFromClient(client)
		if err != nil {
			consumer.Close()
			client.Close()
			return nil, fmt.Errorf("kafka admin: %w", err)
		}
		return &KafkaHandles{Consumer: consumer, Admin: admin}, nil
	}
}

var errKafkaClosed = errors.New("kafka connection closed")

// kafkaConn opens the kafka handles on first successful use. Until then
// every caller gets the dial error and retries on its own schedule.
type kafkaConn struct {
	open func() (*KafkaHandles, error)

	mu      sync.Mutex
	handles *KafkaHandles
	closed  bool
}

func newKafkaConn(open func() (*KafkaHandles, error)) *kafkaConn {
	return &kafkaConn{open: open}
}

func (k *kafkaConn) get() (*KafkaHandles, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return nil, errKafkaClosed
	}
	if k.handles != nil {
		return k.handles, nil
	}
	handles, err := k.open()
	if err != nil {
		return nil, err
	}
	log.Infof("connected to kafka brokers")
	k.handles = handles
	return handles, nil
}

func (k *kafkaConn) Consumer() (sarama.Consumer, error) {
	h, err := k.get()
	if err != nil {
		return nil, err
	}
	return h.Consumer, nil
}

func (k *kafkaConn) Admin() (sarama.ClusterAdmin, error) {
	h, err := k.get()
	if err != nil {
		return nil, err
	}
	return h.Admin, nil
}

// Close releases the handles if they were ever opened. The admin closes the shared client.
func (k *kafkaConn) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.closed = true
	if k.handles == nil {
		return nil
	}
	err := k.handles.Consumer.Close()
	if aerr := k.handles.Admin.Close(); err == nil {
		err = aerr
	}
	k.handles = nil
	return err
}

// adminGroups reads groups from the group coordinators, plus any group the
// commit listener has already seen. Listing fails while the brokers are
// unreachable, so the catalog keeps its previous generation.
type adminGroups struct {
	admin func() (sarama.ClusterAdmin, error)
	store *Store

	// admin client captured by ListGroups for the rest of the refresh
	current sarama.ClusterAdmin

	// commit table groups, captured once per refresh by ListGroups
	committed map[string][]string
}

func (a *adminGroups) ListGroups() ([]string, error) {
	admin, err := a.admin()
	if err != nil {
		return nil, err
	}
	a.current = admin
	groups, err := admin.ListConsumerGroups()
	if err != nil {
		return nil, err
	}
	a.committed = a.store.CommittedTopics()

	set := make(map[string]struct{}, len(groups)+len(a.committed))
	for group := range groups {
		set[group] = struct{}{}
	}
	for group := range a.committed {
		set[group] = struct{}{}
	}
	return sortedKeys(set), nil
}

func (a *adminGroups) TopicsForGroup(group string) ([]string, error) {
	set := make(map[string]struct{})
	for _, topic := range a.committed[group] {
		set[topic] = struct{}{}
	}

	resp, err := a.current.ListConsumerGroupOffsets(group, nil)
	if err != nil {
		return nil, err
	}
	if resp.Err != sarama.ErrNoError {
		return nil, resp.Err
	}
	for topic, blocks := range resp.Blocks {
		for _, block := range blocks {
			if block.Err == sarama.ErrNoError && block.Offset >= 0 {
				set[topic] = struct{}{}
				break
			}
		}
	}
	return sortedKeys(set), nil
}

func (a *adminGroups) Assignments(group string) ([]Assignment, error) {
	descriptions, err := a.current.DescribeConsumerGroups([]string{group})
	if err != nil {
		return nil, err
	}
	var assignments []Assignment
	for _, desc := range descriptions {
		if desc.Err != sarama.ErrNoError {
			return nil, desc.Err
		}
		for memberId, member := range desc.Members {
			assignment, err := member.GetMemberAssignment()
			if err != nil {
				log.Warnf("member %s of group %s has an unreadable assignment: %v", memberId, group, err)
				continue
			}
			if assignment == nil {
				continue
			}
			owner := member.ClientId + "_" + strings.TrimPrefix(member.ClientHost, "/")
			for topic, partitions := range assignment.Topics {
				for _, partition := range partitions {
					assignments = append(assignments, Assignment{Topic: topic, Partition: partition, Owner: owner})
				}
			}
		}
	}
	sortAssignments(assignments)
	return assignments, nil
}
