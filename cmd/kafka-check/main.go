package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/segmentio/kafka-go"

	"catalog-harvester/internal/config"
)

func main() {
	configPath := flag.String("config", "", "config file (default is ./harvester.yaml)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	broker := cfg.Kafka.Broker

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := kafka.DialContext(ctx, "tcp", broker)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect to Kafka at %s: %v\n", broker, err)
		os.Exit(1)
	}
	defer conn.Close()

	partitions, err := conn.ReadPartitions()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read metadata: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("connected to Kafka at %s (%d partitions)\n", broker, len(partitions))

	missing := missingTopics(partitions, cfg.Kafka.JobsTopic, cfg.Kafka.BooksTopic, cfg.Kafka.DLQTopic)
	for _, topic := range missing {
		fmt.Printf("topic %s not found\n", topic)
	}
	if len(missing) > 0 {
		os.Exit(2)
	}
}

// missingTopics returns the wanted topics that have no partition in the metadata.
func missingTopics(partitions []kafka.Partition, wanted ...string) []string {
	present := make(map[string]bool, len(partitions))
	for _, p := range partitions {
		present[p.Topic] = true
	}

	var missing []string
	for _, topic := range wanted {
		if topic != "" && !present[topic] {
			missing = append(missing, topic)
		}
	}
	return missing
}
