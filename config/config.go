package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	StorageKafka     = "kafka"
	StorageZookeeper = "zookeeper"

	DefaultOffsetsTopic = "__consumer_offsets"
)

var ErrUnknownBackend = errors.New("unknown storage backend")

type Config struct {
	General struct {
		ClientId       string `mapstructure:"clientId"`
		Logconfig      string `mapstructure:"logconfig"`
		Storage        string `mapstructure:"storage"`
		TopicFilter    string `mapstructure:"topicFilter"`
		GroupFilter    string `mapstructure:"groupFilter"`
		Listen         string `mapstructure:"listen"`
		ReportInterval int    `mapstructure:"reportInterval"`
	} `mapstructure:"general"`

	Zookeeper struct {
		Hosts             string `mapstructure:"hosts"`
		SessionTimeout    int    `mapstructure:"sessionTimeout"`
		ConnectionTimeout int    `mapstructure:"connectionTimeout"`
	} `mapstructure:"zookeeper"`

	Kafka struct {
		Brokers        string `mapstructure:"brokers"`
		Version        string `mapstructure:"version"`
		OffsetsTopic   string `mapstructure:"offsetsTopic"`
		ClientProfile  string `mapstructure:"clientProfile"`
		RequestTimeout int    `mapstructure:"requestTimeout"`
		Sasl           Sasl   `mapstructure:"sasl"`
	} `mapstructure:"kafka"`

	Intervals struct {
		Catalog   int `mapstructure:"catalog"`
		LogEnd    int `mapstructure:"logEnd"`
		ZkOffsets int `mapstructure:"zkOffsets"`
	} `mapstructure:"intervals"`

	ClientProfile map[string]*Profile `mapstructure:"clientProfile"`

	// Outputs holds the raw per-type reporter configs, keyed by output type.
	Outputs map[string]map[string]interface{} `mapstructure:"outputs"`
}

type Profile struct {
	ClientId        string `mapstructure:"clientId"`
	TLS             bool   `mapstructure:"tls"`
	TLSNoVerify     bool   `mapstructure:"tlsNoverify"`
	TLSCertFilePath string `mapstructure:"tlsCertfilepath"`
	TLSKeyFilePath  string `mapstructure:"tlsKeyfilepath"`
	TLSCAFilePath   string `mapstructure:"tlsCafilepath"`
}

type Sasl struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// ReadConfig loads the JSON config file at cfgFile, fills defaults and validates it.
func ReadConfig(cfgFile string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(cfgFile)
	v.SetConfigType("json")
	setDefaults(v)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", cfgFile, err)
	}
	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Init()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("general.clientId", "offsetmon")
	v.SetDefault("general.storage", StorageKafka)
	v.SetDefault("general.topicFilter", ".*")
	v.SetDefault("general.groupFilter", ".*")
	v.SetDefault("general.listen", ":8080")
	v.SetDefault("general.reportInterval", 0)

	v.SetDefault("zookeeper.sessionTimeout", 30)
	v.SetDefault("zookeeper.connectionTimeout", 30)

	v.SetDefault("kafka.version", "1.0.0")
	v.SetDefault("kafka.offsetsTopic", DefaultOffsetsTopic)
	v.SetDefault("kafka.clientProfile", "default")
	v.SetDefault("kafka.requestTimeout", 10)

	v.SetDefault("intervals.catalog", 60)
	v.SetDefault("intervals.logEnd", 10)
	v.SetDefault("intervals.zkOffsets", 10)
}

func (cfg *Config) Init() {
	if cfg.ClientProfile == nil {
		cfg.ClientProfile = make(map[string]*Profile)
	}
	if _, ok := cfg.ClientProfile["default"]; !ok {
		cfg.ClientProfile["default"] = &Profile{
			ClientId: cfg.General.ClientId,
			TLS:      false,
		}
	}
	for _, p := range cfg.ClientProfile {
		if p.ClientId == "" {
			p.ClientId = cfg.General.ClientId
		}
	}
	cfg.General.Storage = strings.ToLower(strings.TrimSpace(cfg.General.Storage))
}

// Validate reports configuration errors that must stop the process before it starts serving.
func (cfg *Config) Validate() error {
	switch cfg.General.Storage {
	case StorageKafka, StorageZookeeper:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.General.Storage)
	}
	if len(cfg.ZookeeperHosts()) == 0 {
		return errors.New("zookeeper.hosts is required")
	}
	if cfg.General.Storage == StorageKafka && len(cfg.KafkaBrokers()) == 0 {
		return errors.New("kafka.brokers is required for the kafka storage backend")
	}
	if cfg.Intervals.Catalog <= 0 || cfg.Intervals.LogEnd <= 0 || cfg.Intervals.ZkOffsets <= 0 {
		return errors.New("intervals must be positive")
	}
	if _, ok := cfg.ClientProfile[strings.ToLower(cfg.Kafka.ClientProfile)]; !ok {
		return fmt.Errorf("unknown client profile %q", cfg.Kafka.ClientProfile)
	}
	return nil
}

// Profile returns the TLS profile used for broker connections.
func (cfg *Config) Profile() *Profile {
	return cfg.ClientProfile[strings.ToLower(cfg.Kafka.ClientProfile)]
}

func (cfg *Config) ZookeeperHosts() []string {
	return splitList(cfg.Zookeeper.Hosts)
}

func (cfg *Config) KafkaBrokers() []string {
	return splitList(cfg.Kafka.Brokers)
}

func (cfg *Config) SessionTimeout() time.Duration {
	return seconds(cfg.Zookeeper.SessionTimeout)
}

func (cfg *Config) ConnectionTimeout() time.Duration {
	return seconds(cfg.Zookeeper.ConnectionTimeout)
}

func (cfg *Config) RequestTimeout() time.Duration {
	return seconds(cfg.Kafka.RequestTimeout)
}

func (cfg *Config) CatalogInterval() time.Duration {
	return seconds(cfg.Intervals.Catalog)
}

func (cfg *Config) LogEndInterval() time.Duration {
	return seconds(cfg.Intervals.LogEnd)
}

func (cfg *Config) ZkOffsetsInterval() time.Duration {
	return seconds(cfg.Intervals.ZkOffsets)
}

func (cfg *Config) ReportInterval() time.Duration {
	return seconds(cfg.General.ReportInterval)
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
