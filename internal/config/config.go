package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

var singleConfig *Config = nil

type Config struct {
	Service *svcConfig
	Docgen  *docgenConfig
	Cache   *cacheConfig
	Stream  *streamConfig
}

type svcConfig struct {
	Address        string `envconfig:"CASEFLOW_ADDRESS" default:":8080"`
	MetricsAddress string `envconfig:"CASEFLOW_METRICS_ADDRESS" default:":8081"`
	BaseUrl        string `envconfig:"CASEFLOW_BASE_URL" default:"http://localhost:8080"`
	LogLevel       string `envconfig:"CASEFLOW_LOG_LEVEL" default:"info"`
	Kafka          kafkaConfig
}

type docgenConfig struct {
	ApiUrl         string        `envconfig:"CASEFLOW_DOCGEN_URL" default:"http://localhost:9090"`
	ApiToken       string        `envconfig:"CASEFLOW_DOCGEN_TOKEN" default:""`
	CallbackUrl    string        `envconfig:"CASEFLOW_DOCGEN_CALLBACK_URL" default:""`
	CallbackSeed   string        `envconfig:"CASEFLOW_DOCGEN_CALLBACK_SEED" default:""`
	AttemptTimeout time.Duration `envconfig:"CASEFLOW_DOCGEN_ATTEMPT_TIMEOUT" default:"60s"`
	MaxRetries     int           `envconfig:"CASEFLOW_DOCGEN_MAX_RETRIES" default:"3"`
	RetryBackoff   time.Duration `envconfig:"CASEFLOW_DOCGEN_RETRY_BACKOFF" default:"1s"`
	PollInterval   time.Duration `envconfig:"CASEFLOW_DOCGEN_POLL_INTERVAL" default:"2s"`
}

type cacheConfig struct {
	TTL           time.Duration `envconfig:"CASEFLOW_CACHE_TTL" default:"15m"`
	SweepInterval time.Duration `envconfig:"CASEFLOW_CACHE_SWEEP_INTERVAL" default:"1m"`
}

type streamConfig struct {
	HeartbeatInterval time.Duration `envconfig:"CASEFLOW_STREAM_HEARTBEAT_INTERVAL" default:"10s"`
	SilenceWindow     time.Duration `envconfig:"CASEFLOW_STREAM_SILENCE_WINDOW" default:"20s"`
	ReconnectAttempts int           `envconfig:"CASEFLOW_STREAM_RECONNECT_ATTEMPTS" default:"5"`
	ReconnectBackoff  time.Duration `envconfig:"CASEFLOW_STREAM_RECONNECT_BACKOFF" default:"1s"`
}

type kafkaConfig struct {
	Brokers  []string `envconfig:"CASEFLOW_KAFKA_BROKERS" default:""`
	Topic    string   `envconfig:"CASEFLOW_KAFKA_TOPIC" default:""`
	ClientID string   `envconfig:"CASEFLOW_KAFKA_CLIENT_ID" default:""`
}

func New() (*Config, error) {
	if singleConfig == nil {
		singleConfig = new(Config)
		if err := envconfig.Process("", singleConfig); err != nil {
			return nil, err
		}
	}
	return singleConfig, nil
}
