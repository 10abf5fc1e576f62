package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

type Config struct {
	Service   Service   `yaml:"service"`
	HTTP      HTTP      `yaml:"http"`
	Log       Log       `yaml:"log"`
	Telemetry Telemetry `yaml:"telemetry"`
	Ledger    Ledger    `yaml:"ledger"`
	SagaStore SagaStore `yaml:"saga_store"`
	Kafka     Kafka     `yaml:"kafka"`
	ZooKeeper ZooKeeper `yaml:"zookeeper"`
	Payment   Payment   `yaml:"payment"`
	Cart      Cart      `yaml:"cart"`
	Saga      Saga      `yaml:"saga"`
	Engine    Engine    `yaml:"engine"`
	Sweeper   Sweeper   `yaml:"sweeper"`
	Outbox    Outbox    `yaml:"outbox"`
}

type Service struct {
	Name       string `yaml:"name"`
	Env        string `yaml:"env"`
	Version    string `yaml:"version"`
	InstanceID string `yaml:"instance_id"`
}

type HTTP struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type Log struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

type Telemetry struct {
	Endpoint    string            `yaml:"endpoint"`
	Insecure    bool              `yaml:"insecure"`
	Headers     map[string]string `yaml:"headers"`
	SampleRatio float64           `yaml:"sample_ratio"`
}

type Ledger struct {
	Driver      string `yaml:"driver"`
	DatabaseURL string `yaml:"database_url"`
	MaxConns    int32  `yaml:"max_conns"`
	Migrate     bool   `yaml:"migrate"`
}

type SagaStore struct {
	Driver      string        `yaml:"driver"`
	RedisAddr   string        `yaml:"redis_addr"`
	RedisPass   string        `yaml:"redis_password"`
	RedisDB     int           `yaml:"redis_db"`
	FinishedTTL time.Duration `yaml:"finished_ttl"`
}

type Kafka struct {
	Brokers  []string `yaml:"brokers"`
	ClientID string   `yaml:"client_id"`
}

type ZooKeeper struct {
	Servers        []string      `yaml:"servers"`
	SessionTimeout time.Duration `yaml:"session_timeout"`
	LeaderPath     string        `yaml:"leader_path"`
}

type Payment struct {
	URL         string        `yaml:"url"`
	SuccessRate float64       `yaml:"success_rate"`
	Latency     time.Duration `yaml:"latency"`
}

type Cart struct {
	URL string `yaml:"url"`
}

type Saga struct {
	Hold             time.Duration `yaml:"hold"`
	InventoryTimeout time.Duration `yaml:"inventory_timeout"`
	PaymentTimeout   time.Duration `yaml:"payment_timeout"`
	CartTimeout      time.Duration `yaml:"cart_timeout"`
	Recover          bool          `yaml:"recover"`
	// RecoverAfter is the idle time after which another instance may take a
	// saga over. Zero derives it from the hold and the timeouts.
	RecoverAfter     time.Duration `yaml:"recover_after"`
	RecoverEvery     time.Duration `yaml:"recover_every"`
}

type Engine struct {
	ConflictRetries uint64        `yaml:"conflict_retries"`
	RetryInterval   time.Duration `yaml:"retry_interval"`
}

type Sweeper struct {
	Enabled        bool          `yaml:"enabled"`
	Interval       time.Duration `yaml:"interval"`
	BatchSize      int           `yaml:"batch_size"`
	Workers        int           `yaml:"workers"`
	PurgeRetention time.Duration `yaml:"purge_retention"`
	PurgeEvery     time.Duration `yaml:"purge_every"`
}

type Outbox struct {
	RelayInterval  time.Duration `yaml:"relay_interval"`
	RelayBatch     int           `yaml:"relay_batch"`
	BusQueue       int           `yaml:"bus_queue"`
	BusConcurrency int           `yaml:"bus_concurrency"`
	HandlerTimeout time.Duration `yaml:"handler_timeout"`
}

// Default is a single-process setup: memory stores, simulated payment, no
// external brokers.
func Default() Config {
	host, _ := os.Hostname()
	return Config{
		Service: Service{Name: "minishop-fulfillment", Env: "dev", Version: "0.1.0", InstanceID: host},
		HTTP:    HTTP{Addr: ":8080", ReadTimeout: 15 * time.Second, ShutdownTimeout: 10 * time.Second},
		Log:     Log{Level: "info"},
		Telemetry: Telemetry{
			Insecure:    true,
			SampleRatio: 1,
		},
		Ledger:    Ledger{Driver: DriverMemory, Migrate: true},
		SagaStore: SagaStore{Driver: DriverMemory, FinishedTTL: 7 * 24 * time.Hour},
		Kafka:     Kafka{ClientID: "minishop-fulfillment"},
		ZooKeeper: ZooKeeper{SessionTimeout: 10 * time.Second},
		Payment:   Payment{SuccessRate: 0.7},
		Saga: Saga{
			Hold:             30 * time.Minute,
			InventoryTimeout: 5 * time.Second,
			PaymentTimeout:   10 * time.Second,
			CartTimeout:      10 * time.Second,
			Recover:          true,
			RecoverEvery:     time.Minute,
		},
		Engine: Engine{ConflictRetries: 5, RetryInterval: 10 * time.Millisecond},
		Sweeper: Sweeper{
			Enabled:        true,
			Interval:       time.Minute,
			BatchSize:      100,
			Workers:        4,
			PurgeRetention: 30 * 24 * time.Hour,
			PurgeEvery:     24 * time.Hour,
		},
		Outbox: Outbox{
			RelayInterval:  time.Second,
			RelayBatch:     100,
			BusQueue:       1024,
			BusConcurrency: 8,
			HandlerTimeout: 30 * time.Second,
		},
	}
}

// Load applies, in order: defaults, the YAML file at path (if non-empty),
// then environment overrides. The result is validated.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

type lookupFunc func(string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	e := envReader{lookup: lookup}

	e.str("SERVICE_NAME", &c.Service.Name)
	e.str("ENV", &c.Service.Env)
	e.str("INSTANCE_ID", &c.Service.InstanceID)
	e.str("HTTP_ADDR", &c.HTTP.Addr)
	e.str("LOG_LEVEL", &c.Log.Level)
	e.str("LOG_FILE", &c.Log.File)

	e.str("OTEL_EXPORTER_OTLP_ENDPOINT", &c.Telemetry.Endpoint)
	e.boolean("OTEL_EXPORTER_OTLP_INSECURE", &c.Telemetry.Insecure)
	e.float("OTEL_SAMPLE_RATIO", &c.Telemetry.SampleRatio)
	if v, ok := lookup("OTEL_AUTH_HEADER"); ok && v != "" {
		if c.Telemetry.Headers == nil {
			c.Telemetry.Headers = map[string]string{}
		}
		c.Telemetry.Headers["Authorization"] = v
	}

	e.str("LEDGER_DRIVER", &c.Ledger.Driver)
	e.str("DATABASE_URL", &c.Ledger.DatabaseURL)
	e.boolean("DATABASE_MIGRATE", &c.Ledger.Migrate)

	e.str("SAGA_STORE_DRIVER", &c.SagaStore.Driver)
	e.str("REDIS_ADDR", &c.SagaStore.RedisAddr)
	e.str("REDIS_PASSWORD", &c.SagaStore.RedisPass)
	e.integer("REDIS_DB", &c.SagaStore.RedisDB)

	e.list("KAFKA_BROKERS", &c.Kafka.Brokers)
	e.list("ZK_SERVERS", &c.ZooKeeper.Servers)

	e.str("PAYMENT_SERVICE_URL", &c.Payment.URL)
	e.float("PAYMENT_SUCCESS_RATE", &c.Payment.SuccessRate)
	e.str("CART_SERVICE_URL", &c.Cart.URL)

	e.duration("RESERVATION_HOLD", &c.Saga.Hold)
	e.duration("PAYMENT_TIMEOUT", &c.Saga.PaymentTimeout)
	e.duration("SAGA_RECOVER_AFTER", &c.Saga.RecoverAfter)
	e.duration("SAGA_RECOVER_EVERY", &c.Saga.RecoverEvery)
	e.duration("SWEEP_INTERVAL", &c.Sweeper.Interval)
	e.boolean("SWEEPER_ENABLED", &c.Sweeper.Enabled)
	e.duration("OUTBOX_RELAY_INTERVAL", &c.Outbox.RelayInterval)

	return e.err()
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf("config: "+format, args...)) }

	if c.Service.Name == "" {
		add("service.name is required")
	}
	if c.HTTP.Addr == "" {
		add("http.addr is required")
	}
	switch c.Ledger.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Ledger.DatabaseURL == "" {
			add("ledger.database_url is required for the postgres driver")
		}
	default:
		add("ledger.driver %q is not one of memory, postgres", c.Ledger.Driver)
	}
	switch c.SagaStore.Driver {
	case DriverMemory:
	case DriverRedis:
		if c.SagaStore.RedisAddr == "" {
			add("saga_store.redis_addr is required for the redis driver")
		}
	default:
		add("saga_store.driver %q is not one of memory, redis", c.SagaStore.Driver)
	}
	if len(c.ZooKeeper.Servers) > 0 && c.Service.InstanceID == "" {
		add("service.instance_id is required for zookeeper leadership")
	}
	if c.Payment.SuccessRate < 0 || c.Payment.SuccessRate > 1 {
		add("payment.success_rate must be within [0, 1]")
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		add("telemetry.sample_ratio must be within [0, 1]")
	}
	for name, d := range map[string]time.Duration{
		"saga.hold":              c.Saga.Hold,
		"saga.inventory_timeout": c.Saga.InventoryTimeout,
		"saga.payment_timeout":   c.Saga.PaymentTimeout,
		"saga.cart_timeout":      c.Saga.CartTimeout,
		"saga.recover_every":     c.Saga.RecoverEvery,
		"sweeper.interval":       c.Sweeper.Interval,
		"outbox.relay_interval":  c.Outbox.RelayInterval,
	} {
		if d <= 0 {
			add("%s must be positive", name)
		}
	}
	return errors.Join(errs...)
}

type envReader struct {
	lookup lookupFunc
	errs   []error
}

func (e *envReader) get(key string) (string, bool) {
	v, ok := e.lookup(key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func (e *envReader) str(key string, dst *string) {
	if v, ok := e.get(key); ok {
		*dst = v
	}
}

func (e *envReader) list(key string, dst *[]string) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*dst = out
}

func (e *envReader) boolean(key string, dst *bool) {
	if v, ok := e.get(key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("config: %s: %w", key, err))
			return
		}
		*dst = b
	}
}

func (e *envReader) integer(key string, dst *int) {
	if v, ok := e.get(key); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("config: %s: %w", key, err))
			return
		}
		*dst = n
	}
}

func (e *envReader) float(key string, dst *float64) {
	if v, ok := e.get(key); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("config: %s: %w", key, err))
			return
		}
		*dst = f
	}
}

func (e *envReader) duration(key string, dst *time.Duration) {
	if v, ok := e.get(key); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("config: %s: %w", key, err))
			return
		}
		*dst = d
	}
}

func (e *envReader) err() error { return errors.Join(e.errs...) }
