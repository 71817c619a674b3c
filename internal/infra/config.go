package infra

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"lob_go/internal/book"
	"lob_go/internal/domain"

	"gopkg.in/yaml.v3"
)

// Supported venues and broadcast drivers.
const (
	ExchangeUpbit  = "UPBIT"
	ExchangeBitget = "BITGET"

	DriverNone   = "none"
	DriverKafka  = "kafka"
	DriverSarama = "sarama"
)

// InstrumentConfig describes one tracked book.
type InstrumentConfig struct {
	Symbol      string `yaml:"symbol"`
	Exchange    string `yaml:"exchange"`
	VenueSymbol string `yaml:"venue_symbol"`
	PriceScale  int32  `yaml:"price_scale"`
	QtyScale    int32  `yaml:"qty_scale"`
	Depth       int    `yaml:"depth"`
}

// Config는 애플리케이션의 모든 설정을 담습니다.
// LoadConfig로 로드된 후에 환경 변수를 통해 민감 내용을 덮어씁니다.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Book struct {
		DefaultDepth int `yaml:"default_depth"`
	} `yaml:"book"`

	Instruments []InstrumentConfig `yaml:"instruments"`

	Feeds struct {
		Upbit struct {
			Enabled bool   `yaml:"enabled"`
			WSURL   string `yaml:"ws_url"`
		} `yaml:"upbit"`
		Bitget struct {
			Enabled  bool   `yaml:"enabled"`
			WSURL    string `yaml:"ws_url"`
			InstType string `yaml:"inst_type"` // SPOT, USDT-FUTURES
			RESTURL  string `yaml:"rest_url"`

			// DiscoverScales replaces configured scales with the venue's precision.
			DiscoverScales bool `yaml:"discover_scales"`
		} `yaml:"bitget"`
	} `yaml:"feeds"`

	Engine struct {
		InboxSize int `yaml:"inbox_size"`
	} `yaml:"engine"`

	WAL struct {
		Dir            string `yaml:"dir"`
		SegmentSizeMB  int    `yaml:"segment_size_mb"`
		SyncIntervalMS int    `yaml:"sync_interval_ms"`
	} `yaml:"wal"`

	Checkpoint struct {
		Dir   string `yaml:"dir"`
		Every uint64 `yaml:"every"`
	} `yaml:"checkpoint"`

	Broadcast struct {
		Driver          string   `yaml:"driver"`
		Brokers         []string `yaml:"brokers"`
		Topic           string   `yaml:"topic"`
		FlushIntervalMS int      `yaml:"flush_interval_ms"`
	} `yaml:"broadcast"`

	Metrics struct {
		Addr string `yaml:"addr"`
	} `yaml:"metrics"`

	Storage struct {
		DBPath string `yaml:"db_path"`
	} `yaml:"storage"`

	Logging struct {
		Level string `yaml:"level"`
		Dir   string `yaml:"dir"`
	} `yaml:"logging"`
}

// LoadConfig는 설정 파일을 읽고 파싱합니다.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", path, domain.ErrConfigNotFound)
		}
		return nil, err
	}
	return ParseConfig(data)
}

// ParseConfig parses YAML bytes, applies env overrides and defaults, then validates.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// 보안 우선 - 환경 변수 오버라이드 지원
	overrideWithEnv(&cfg)
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Book.DefaultDepth == 0 {
		c.Book.DefaultDepth = book.DefaultDepth
	}
	for i := range c.Instruments {
		if c.Instruments[i].Depth == 0 {
			c.Instruments[i].Depth = c.Book.DefaultDepth
		}
		c.Instruments[i].Exchange = strings.ToUpper(c.Instruments[i].Exchange)
	}
	if c.Feeds.Bitget.InstType == "" {
		c.Feeds.Bitget.InstType = "SPOT"
	}
	if c.Engine.InboxSize == 0 {
		c.Engine.InboxSize = 4096
	}
	if c.WAL.Dir == "" {
		c.WAL.Dir = "./wal_data"
	}
	if c.WAL.SegmentSizeMB == 0 {
		c.WAL.SegmentSizeMB = 64
	}
	if c.WAL.SyncIntervalMS == 0 {
		c.WAL.SyncIntervalMS = 100
	}
	if c.Checkpoint.Dir == "" {
		c.Checkpoint.Dir = "./checkpoints"
	}
	if c.Checkpoint.Every == 0 {
		c.Checkpoint.Every = 10_000
	}
	if c.Broadcast.Driver == "" {
		c.Broadcast.Driver = DriverNone
	}
	if c.Broadcast.Topic == "" {
		c.Broadcast.Topic = "lob.top_of_book"
	}
	if c.Broadcast.FlushIntervalMS == 0 {
		c.Broadcast.FlushIntervalMS = 50
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = "localhost:6060"
	}
	if c.Logging.Dir == "" {
		c.Logging.Dir = "logs"
	}
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	if len(c.Instruments) == 0 {
		return &domain.ConfigError{Field: "instruments", Err: errors.New("at least one instrument is required")}
	}

	seen := make(map[string]bool, len(c.Instruments))
	for _, in := range c.Instruments {
		field := "instruments." + in.Symbol
		if in.Symbol == "" || in.VenueSymbol == "" {
			return &domain.ConfigError{Field: "instruments", Err: errors.New("symbol and venue_symbol are required")}
		}
		if strings.ContainsRune(in.Symbol, '/') {
			return &domain.ConfigError{Field: field, Err: fmt.Errorf("'/' is reserved in symbols: %w", domain.ErrInvalidSymbol)}
		}
		if seen[in.Symbol] {
			return &domain.ConfigError{Field: field, Err: errors.New("duplicate symbol")}
		}
		seen[in.Symbol] = true
		if in.Exchange != ExchangeUpbit && in.Exchange != ExchangeBitget {
			return &domain.ConfigError{Field: field, Err: fmt.Errorf("unsupported exchange %q", in.Exchange)}
		}
		if in.PriceScale < 0 || in.PriceScale > 18 || in.QtyScale < 0 || in.QtyScale > 18 {
			return &domain.ConfigError{Field: field, Err: errors.New("scales must be within [0, 18]")}
		}
		if in.Depth < 1 || in.Depth > book.MaxDepth {
			return &domain.ConfigError{Field: field, Err: fmt.Errorf("depth must be within [1, %d]", book.MaxDepth)}
		}
	}

	if c.Feeds.Upbit.Enabled && !isWSURL(c.Feeds.Upbit.WSURL) {
		return &domain.ConfigError{Field: "feeds.upbit.ws_url", Err: fmt.Errorf("invalid WS URL: %s", c.Feeds.Upbit.WSURL)}
	}
	if c.Feeds.Bitget.Enabled && !isWSURL(c.Feeds.Bitget.WSURL) {
		return &domain.ConfigError{Field: "feeds.bitget.ws_url", Err: fmt.Errorf("invalid WS URL: %s", c.Feeds.Bitget.WSURL)}
	}

	switch c.Broadcast.Driver {
	case DriverNone:
	case DriverKafka, DriverSarama:
		if len(c.Broadcast.Brokers) == 0 {
			return &domain.ConfigError{Field: "broadcast.brokers", Err: errors.New("brokers required for kafka drivers")}
		}
	default:
		return &domain.ConfigError{Field: "broadcast.driver", Err: fmt.Errorf("unknown driver %q", c.Broadcast.Driver)}
	}

	if c.Engine.InboxSize < 0 || c.WAL.SegmentSizeMB < 0 || c.WAL.SyncIntervalMS < 0 {
		return &domain.ConfigError{Field: "engine", Err: errors.New("sizes and intervals must be positive")}
	}

	return nil
}

// InstrumentsFor returns the instruments routed to one exchange.
func (c *Config) InstrumentsFor(exchange string) []InstrumentConfig {
	var out []InstrumentConfig
	for _, in := range c.Instruments {
		if in.Exchange == exchange {
			out = append(out, in)
		}
	}
	return out
}

func (c *Config) WALSyncInterval() time.Duration {
	return time.Duration(c.WAL.SyncIntervalMS) * time.Millisecond
}

func (c *Config) BroadcastInterval() time.Duration {
	return time.Duration(c.Broadcast.FlushIntervalMS) * time.Millisecond
}

func (c *Config) WALSegmentSize() int64 {
	return int64(c.WAL.SegmentSizeMB) << 20
}

func isWSURL(s string) bool {
	return strings.HasPrefix(s, "ws://") || strings.HasPrefix(s, "wss://")
}

// overrideWithEnv는 환경 변수가 존재할 경우 설정 값을 덮어씁니다.
func overrideWithEnv(cfg *Config) {
	if dir := os.Getenv("LOB_WAL_DIR"); dir != "" {
		cfg.WAL.Dir = dir
	}
	if brokers := os.Getenv("LOB_KAFKA_BROKERS"); brokers != "" {
		cfg.Broadcast.Brokers = strings.Split(brokers, ",")
	}
	if level := os.Getenv("LOB_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
}
