package kafkaconsumer

import (
	"os"
	"strings"
	"time"
)

type Config struct {
	Enabled             bool
	Brokers             []string
	Topic               string
	GroupID             string
	SessionTimeout      time.Duration
	Heartbeat           time.Duration
	RebalanceTimeout    time.Duration
	InitialOffsetOldest bool
	DedupeSize          int
}

func FromEnv() Config {
	enabled := strings.ToLower(strings.TrimSpace(os.Getenv("INVALIDATION_ENABLED"))) == "true"
	brokers := strings.TrimSpace(os.Getenv("KAFKA_BROKERS"))
	if brokers == "" {
		brokers = "localhost:9092"
	}
	topic := strings.TrimSpace(os.Getenv("KAFKA_TOPIC"))
	if topic == "" {
		topic = "tile-invalidation"
	}
	group := strings.TrimSpace(os.Getenv("KAFKA_GROUP_ID"))
	if group == "" {
		group = "edit-recency-cache"
	}

	return Config{
		Enabled:             enabled,
		Brokers:             splitCSV(brokers),
		Topic:               topic,
		GroupID:             group,
		SessionTimeout:      30 * time.Second,
		Heartbeat:           3 * time.Second,
		RebalanceTimeout:    30 * time.Second,
		InitialOffsetOldest: false,
		DedupeSize:          8192,
	}
}

func splitCSV(s string) []string {
	var out []string
	for p := range strings.SplitSeq(s, ",") {
		if x := strings.TrimSpace(p); x != "" {
			out = append(out, x)
		}
	}
	return out
}
