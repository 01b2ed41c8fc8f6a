package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"mailflow/pkg/mq"
)

type Config struct {
	MetadataDB    MySQL             `json:"metadata_db"`
	QueryDB       Elasticsearch     `json:"query_db"`
	EventStream   mq.ProducerConfig `json:"event_stream"`
	Brevo         Brevo             `json:"brevo"`
	SES           SES               `json:"ses"`
	SMTP          SMTP              `json:"smtp"`
	Tracking      Tracking          `json:"tracking"`
	Dispatcher    Dispatcher        `json:"dispatcher"`
	DefaultSender string            `json:"default_sender"`
}

type MySQL struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Database string `json:"database"`
}

func (mysql *MySQL) ToDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true", mysql.Username, mysql.Password, mysql.Host, mysql.Port, mysql.Database)
}

type Elasticsearch struct {
	Addr     []string `json:"addr"`
	Username string   `json:"username"`
	Password string   `json:"password"`
}

type Brevo struct {
	APIKey string `json:"api_key"`
}

type SES struct {
	Region          string `json:"region"`
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
}

type SMTP struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type Tracking struct {
	// BaseURL is the public origin tracking links are written against,
	// e.g. https://track.example.com
	BaseURL          string `json:"base_url"`
	FallbackRedirect string `json:"fallback_redirect"`
}

type Dispatcher struct {
	Concurrency      int    `json:"concurrency"`
	DefaultSendSpeed uint64 `json:"default_send_speed"` // messages per minute, 0 = unthrottled
	MaxRetries       int    `json:"max_retries"`
	PollIntervalSecs int    `json:"poll_interval_secs"`
}

func NewConfig() *Config {
	return &Config{
		MetadataDB: MySQL{
			Username: "",
			Password: "",
			Host:     "127.0.0.1",
			Port:     3306,
			Database: "mailflow_db",
		},
		QueryDB: Elasticsearch{
			Addr: []string{"http://127.0.0.1:9200"},
		},
		EventStream: mq.ProducerConfig{
			Brokers: []string{"127.0.0.1:9092"},
			Topics: map[uint32]string{
				uint32(mq.PayloadEmailEvent): "mailflow_email_events",
			},
		},
		SMTP: SMTP{
			Host: "127.0.0.1",
			Port: 25,
		},
		SES: SES{
			Region: "us-east-1",
		},
		Tracking: Tracking{
			BaseURL:          "http://127.0.0.1:9090",
			FallbackRedirect: "/",
		},
		Dispatcher: Dispatcher{
			Concurrency:      4,
			DefaultSendSpeed: 0,
			MaxRetries:       3,
			PollIntervalSecs: 30,
		},
		DefaultSender: "",
	}
}

func (c *Config) Load(ctx context.Context, path string) error {
	if path == "" {
		log.Ctx(ctx).Warn().Msgf("empty config file")
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Ctx(ctx).Warn().Msgf("config file does not exist, file path: %s", path)
			return nil
		}
		return err
	}
	defer func(f *os.File) {
		err := f.Close()
		if err != nil {
			log.Ctx(ctx).Error().Msgf("config file close failed, file path: %s", path)
		}
	}(f)

	p := json.NewDecoder(f)
	if err := p.Decode(&c); err != nil {
		return err
	}

	return nil
}
