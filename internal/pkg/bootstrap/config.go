// internal/pkg/bootstrap/config.go
package bootstrap

import (
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"nexus-order/internal/pkg/logger"
)

// Config 是订单服务的全部配置，来源优先级：环境变量 > YAML 文件 > 默认值
type Config struct {
	App   AppConfig   `yaml:"app"`
	Infra InfraConfig `yaml:"infra"`
	Order OrderConfig `yaml:"order"`
}

type AppConfig struct {
	Name            string        `yaml:"name"`
	Port            int           `yaml:"port"`
	LogLevel        string        `yaml:"logLevel"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

type InfraConfig struct {
	MySQL     MySQLConfig     `yaml:"mysql"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Jaeger    JaegerConfig    `yaml:"jaeger"`
	Nacos     NacosConfig     `yaml:"nacos"`
	Zookeeper ZookeeperConfig `yaml:"zookeeper"`
}

type MySQLConfig struct {
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"maxOpenConns"`
	MaxIdleConns int    `yaml:"maxIdleConns"`
	AutoMigrate  bool   `yaml:"autoMigrate"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	Brokers         []string `yaml:"brokers"`
	GroupID         string   `yaml:"groupId"`
	DeadLetterTopic string   `yaml:"deadLetterTopic"`
}

type JaegerConfig struct {
	Endpoint string `yaml:"endpoint"`
}

type NacosConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServerAddrs string `yaml:"serverAddrs"`
	Namespace   string `yaml:"namespace"`
	Group       string `yaml:"group"`
}

type ZookeeperConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Servers        []string      `yaml:"servers"`
	SessionTimeout time.Duration `yaml:"sessionTimeout"`
	LockTimeout    time.Duration `yaml:"lockTimeout"`
}

type OrderConfig struct {
	StoreDriver  string        `yaml:"storeDriver"` // mysql | memory
	BusDriver    string        `yaml:"busDriver"`   // kafka | redis
	SnapshotTTL  time.Duration `yaml:"snapshotTTL"`
	UpdatePolicy string        `yaml:"updatePolicy"` // CEL 表达式，变量 current / proposed
}

var currentConfig atomic.Pointer[Config]

// DefaultConfig 返回本地开发可直接使用的默认配置
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:            "order-service",
			Port:            8080,
			LogLevel:        "info",
			ShutdownTimeout: 10 * time.Second,
		},
		Infra: InfraConfig{
			MySQL: MySQLConfig{
				DSN:          "root:root@tcp(localhost:3306)/orders",
				MaxOpenConns: 20,
				MaxIdleConns: 5,
				AutoMigrate:  true,
			},
			Redis: RedisConfig{Addr: "localhost:6379"},
			Kafka: KafkaConfig{
				Brokers:         []string{"localhost:9092"},
				GroupID:         "order-service-group",
				DeadLetterTopic: "order-service-dlt",
			},
			Nacos:     NacosConfig{ServerAddrs: "localhost:8848", Group: "DEFAULT_GROUP"},
			Zookeeper: ZookeeperConfig{Servers: []string{"localhost:2181"}, SessionTimeout: 5 * time.Second, LockTimeout: 30 * time.Second},
		},
		Order: OrderConfig{
			StoreDriver:  "mysql",
			BusDriver:    "kafka",
			SnapshotTTL:  10 * time.Minute,
			UpdatePolicy: "true",
		},
	}
}

// LoadConfig 依次应用默认值、YAML 文件（path 为空则跳过）和环境变量
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "read config file %s", path)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "parse config file %s", path)
		}
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 检查互相依赖的配置项
func (c *Config) Validate() error {
	switch c.Order.StoreDriver {
	case "mysql", "memory":
	default:
		return errors.Errorf("unsupported store driver %q", c.Order.StoreDriver)
	}
	switch c.Order.BusDriver {
	case "kafka":
		if len(c.Infra.Kafka.Brokers) == 0 {
			return errors.New("kafka bus requires at least one broker")
		}
	case "redis":
	default:
		return errors.Errorf("unsupported bus driver %q", c.Order.BusDriver)
	}
	if c.App.Port <= 0 {
		return errors.Errorf("invalid http port %d", c.App.Port)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	cfg.App.Name = getEnv("SERVICE_NAME", cfg.App.Name)
	cfg.App.LogLevel = getEnv("LOG_LEVEL", cfg.App.LogLevel)
	if v, ok := os.LookupEnv("HTTP_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(err, "invalid HTTP_PORT %q", v)
		}
		cfg.App.Port = port
	}

	cfg.Infra.MySQL.DSN = getEnv("MYSQL_DSN", cfg.Infra.MySQL.DSN)
	cfg.Infra.Redis.Addr = getEnv("REDIS_ADDR", cfg.Infra.Redis.Addr)
	cfg.Infra.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Infra.Redis.Password)
	if v, ok := os.LookupEnv("KAFKA_BROKERS"); ok {
		cfg.Infra.Kafka.Brokers = splitList(v)
	}
	cfg.Infra.Kafka.GroupID = getEnv("KAFKA_GROUP_ID", cfg.Infra.Kafka.GroupID)
	cfg.Infra.Jaeger.Endpoint = getEnv("JAEGER_ENDPOINT", cfg.Infra.Jaeger.Endpoint)

	if v, ok := os.LookupEnv("NACOS_SERVER_ADDRS"); ok {
		cfg.Infra.Nacos.ServerAddrs = v
		cfg.Infra.Nacos.Enabled = v != ""
	}
	cfg.Infra.Nacos.Namespace = getEnv("NACOS_NAMESPACE", cfg.Infra.Nacos.Namespace)
	cfg.Infra.Nacos.Group = getEnv("NACOS_GROUP", cfg.Infra.Nacos.Group)

	if v, ok := os.LookupEnv("ZK_SERVERS"); ok {
		cfg.Infra.Zookeeper.Servers = splitList(v)
		cfg.Infra.Zookeeper.Enabled = v != ""
	}

	cfg.Order.StoreDriver = getEnv("STORE_DRIVER", cfg.Order.StoreDriver)
	cfg.Order.BusDriver = getEnv("BUS_DRIVER", cfg.Order.BusDriver)
	cfg.Order.UpdatePolicy = getEnv("ORDER_UPDATE_POLICY", cfg.Order.UpdatePolicy)
	if v, ok := os.LookupEnv("SNAPSHOT_TTL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return errors.Wrapf(err, "invalid SNAPSHOT_TTL %q", v)
		}
		cfg.Order.SnapshotTTL = d
	}
	return nil
}

// Init 加载配置并保存为当前配置，失败时 panic
func Init() *Config {
	cfg, err := LoadConfig(os.Getenv("CONFIG_FILE"))
	if err != nil {
		panic(errors.Wrap(err, "load configuration"))
	}
	currentConfig.Store(cfg)
	logger.Init(cfg.App.Name, cfg.App.LogLevel)
	return cfg
}

// GetCurrentConfig 返回 Init 加载的配置；未初始化时返回默认配置
func GetCurrentConfig() *Config {
	if cfg := currentConfig.Load(); cfg != nil {
		return cfg
	}
	return DefaultConfig()
}

// getEnv 是一个内部辅助函数，从环境变量中读取配置。
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
