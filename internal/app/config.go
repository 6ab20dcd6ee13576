package app

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/lifecycle"
)

const (
	// StorageDriverMemory хранит данные в памяти процесса.
	StorageDriverMemory = "memory"
	// StorageDriverPostgres хранит данные в PostgreSQL.
	StorageDriverPostgres = "postgres"
)

const envPrefix = "FULFILLMENT_"

// Config описывает настройки запуска сервиса.
type Config struct {
	HTTPAddr    string
	GRPCAddr    string
	MetricsAddr string

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool

	// KafkaBrokers: список брокеров через запятую. Если пусто, outbox не публикуется.
	// KafkaShipmentTopic: отдельный topic для OrderShipped и OrderDelivered (интеграции
	// с перевозчиками). Если пусто, эти события идут в KafkaTopic.
	KafkaBrokers       string
	KafkaTopic         string
	KafkaDLQTopic      string
	KafkaShipmentTopic string

	// RedisAddr включает push снимков корзины и избранного.
	RedisAddr string

	// CancelFrom: статусы, из которых разрешена отмена, через запятую.
	CancelFrom string
	BulkLimit  int

	// Catalog: товары для проверок корзины в формате "id:title:stock,...".
	Catalog string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration
	OutboxMaxPending   int

	// OutboxRetention: сколько хранить опубликованные события до удаления.
	OutboxRetention       time.Duration
	OutboxCleanupInterval time.Duration

	LogLevel string
}

// DefaultConfig возвращает настройки по умолчанию.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:              ":8080",
		GRPCAddr:              ":50051",
		MetricsAddr:           ":9090",
		StorageDriver:         StorageDriverMemory,
		PostgresAutoMigrate:   true,
		KafkaTopic:            "fulfillment.order.events",
		KafkaDLQTopic:         "fulfillment.dlq",
		BulkLimit:             8,
		OutboxPollInterval:    time.Second,
		OutboxBatchSize:       100,
		OutboxMaxAttempts:     3,
		OutboxRetryDelay:      50 * time.Millisecond,
		OutboxMaxPending:      1000,
		OutboxRetention:       24 * time.Hour,
		OutboxCleanupInterval: 10 * time.Minute,
		LogLevel:              "info",
	}
}

// LoadConfig читает .env (если файл есть) и переменные окружения FULFILLMENT_*.
// Переменные окружения процесса имеют приоритет над .env.
func LoadConfig(envFiles ...string) (Config, error) {
	for _, file := range envFiles {
		if file == "" {
			continue
		}
		if err := godotenv.Load(file); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", file, err)
		}
	}
	cfg := DefaultConfig()
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	get := func(key string) (string, bool) {
		v, ok := lookup(envPrefix + key)
		if !ok {
			return "", false
		}
		return strings.TrimSpace(v), true
	}

	strs := map[string]*string{
		"HTTP_ADDR":            &c.HTTPAddr,
		"GRPC_ADDR":            &c.GRPCAddr,
		"METRICS_ADDR":         &c.MetricsAddr,
		"STORAGE_DRIVER":       &c.StorageDriver,
		"POSTGRES_DSN":         &c.PostgresDSN,
		"KAFKA_BROKERS":        &c.KafkaBrokers,
		"KAFKA_TOPIC":          &c.KafkaTopic,
		"KAFKA_DLQ_TOPIC":      &c.KafkaDLQTopic,
		"KAFKA_SHIPMENT_TOPIC": &c.KafkaShipmentTopic,
		"REDIS_ADDR":           &c.RedisAddr,
		"CANCEL_FROM":          &c.CancelFrom,
		"CATALOG":              &c.Catalog,
		"LOG_LEVEL":            &c.LogLevel,
	}
	for key, dst := range strs {
		if v, ok := get(key); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"BULK_LIMIT":          &c.BulkLimit,
		"OUTBOX_BATCH_SIZE":   &c.OutboxBatchSize,
		"OUTBOX_MAX_ATTEMPTS": &c.OutboxMaxAttempts,
		"OUTBOX_MAX_PENDING":  &c.OutboxMaxPending,
	}
	for key, dst := range ints {
		if v, ok := get(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", envPrefix, key, err)
			}
			*dst = n
		}
	}

	durations := map[string]*time.Duration{
		"OUTBOX_POLL_INTERVAL":    &c.OutboxPollInterval,
		"OUTBOX_RETRY_DELAY":      &c.OutboxRetryDelay,
		"OUTBOX_RETENTION":        &c.OutboxRetention,
		"OUTBOX_CLEANUP_INTERVAL": &c.OutboxCleanupInterval,
	}
	for key, dst := range durations {
		if v, ok := get(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", envPrefix, key, err)
			}
			*dst = d
		}
	}

	if v, ok := get("POSTGRES_AUTO_MIGRATE"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sPOSTGRES_AUTO_MIGRATE: %w", envPrefix, err)
		}
		c.PostgresAutoMigrate = b
	}
	return nil
}

// Validate проверяет согласованность настроек.
func (c Config) Validate() error {
	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("postgres dsn is required for storage driver %q", c.StorageDriver)
		}
	default:
		return fmt.Errorf("unsupported storage driver %q", c.StorageDriver)
	}
	if _, err := lifecycle.ParseCancelPolicy(c.CancelFrom); err != nil {
		return err
	}
	if _, err := parseCatalog(c.Catalog); err != nil {
		return err
	}
	return nil
}

// Brokers возвращает список брокеров Kafka без пробелов и пустых элементов.
func (c Config) Brokers() []string {
	return splitList(c.KafkaBrokers)
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseCatalog разбирает "id:title:stock,...". Остаток по умолчанию 0.
func parseCatalog(raw string) ([]domain.Product, error) {
	var products []domain.Product
	for _, entry := range splitList(raw) {
		parts := strings.Split(entry, ":")
		if len(parts) > 3 || parts[0] == "" {
			return nil, fmt.Errorf("catalog entry %q: want id:title:stock", entry)
		}
		p := domain.Product{ID: parts[0]}
		if len(parts) > 1 {
			p.Title = parts[1]
		}
		if len(parts) > 2 {
			stock, err := strconv.Atoi(parts[2])
			if err != nil || stock < 0 {
				return nil, fmt.Errorf("catalog entry %q: invalid stock", entry)
			}
			p.Stock = stock
		}
		products = append(products, p)
	}
	return products, nil
}
