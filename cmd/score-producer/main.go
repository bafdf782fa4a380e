package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/IBM/sarama"
)

// submissionEvent mirrors the gateway event shape the server consumes.
type submissionEvent struct {
	UserID      int64  `json:"user_id"`
	DisplayName string `json:"display_name"`
	Payload     string `json:"payload"`
}

var namePrefixes = []string{
	"Turbo", "Tapper", "Coin", "Blaze", "Ninja", "Dragon", "Wolf", "Hawk", "Viper",
	"Ghost", "Titan", "Frost", "Nova", "Raven", "Omega", "Alpha", "Bolt", "Dash",
	"Flash", "Luna", "Neon", "Orion", "Pulse", "Rebel", "Spark", "Ace", "Jade",
}

func displayName(idx int) string {
	prefix := namePrefixes[idx%len(namePrefixes)]
	return fmt.Sprintf("%s%d", prefix, idx/len(namePrefixes)+1)
}

func buildPayload(flaggedPct int) string {
	if rand.Intn(100) < flaggedPct {
		data, _ := json.Marshal(map[string]interface{}{
			"score":           rand.Intn(500_000),
			"flagged":         true,
			"suspiciousCount": rand.Intn(20) + 1,
		})
		return string(data)
	}
	data, _ := json.Marshal(map[string]interface{}{
		"score": rand.Intn(200_000) + 100,
	})
	return string(data)
}

func main() {
	// Command line flags
	brokers := flag.String("brokers", "localhost:9094", "Kafka brokers (comma-separated)")
	topic := flag.String("topic", "tapper-submissions", "Kafka topic")
	totalUsers := flag.Int("users", 1000, "Number of distinct users to simulate")
	updatesPerSecond := flag.Int("rate", 50, "Submissions per second")
	flaggedPct := flag.Int("flagged", 2, "Percent of submissions carrying an anti-cheat flag")
	duration := flag.Duration("duration", 0, "Duration to run (0 = forever)")
	flag.Parse()

	brokerList := strings.Split(*brokers, ",")

	fmt.Println("Turbo Tapper submission producer")
	fmt.Printf("  brokers: %s\n", *brokers)
	fmt.Printf("  topic:   %s\n", *topic)
	fmt.Printf("  users:   %d\n", *totalUsers)
	fmt.Printf("  rate:    %d/sec (%d%% flagged)\n", *updatesPerSecond, *flaggedPct)
	fmt.Println()

	// Configure Sarama producer
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Flush.Frequency = 100 * time.Millisecond
	config.Producer.Flush.Messages = 100
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true

	producer, err := sarama.NewAsyncProducer(brokerList, config)
	if err != nil {
		log.Fatalf("Failed to create producer: %v", err)
	}
	defer producer.Close()

	var successCount, errorCount int64
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for range producer.Successes() {
			atomic.AddInt64(&successCount, 1)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for err := range producer.Errors() {
			atomic.AddInt64(&errorCount, 1)
			log.Printf("Producer error: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})

	// Keying by user id keeps each user's submissions on one partition, so
	// the server sees them in order.
	sendEvent := func(userID int64, name, payload string) {
		event := submissionEvent{
			UserID:      userID,
			DisplayName: name,
			Payload:     payload,
		}
		data, err := json.Marshal(event)
		if err != nil {
			log.Printf("Failed to marshal event: %v", err)
			return
		}

		msg := &sarama.ProducerMessage{
			Topic: *topic,
			Key:   sarama.StringEncoder(strconv.FormatInt(userID, 10)),
			Value: sarama.ByteEncoder(data),
		}

		select {
		case producer.Input() <- msg:
		case <-done:
		}
	}

	shutdown := func() {
		close(done)
		producer.AsyncClose()
		wg.Wait()
		fmt.Printf("\nCompleted. Sent: %d, Errors: %d\n",
			atomic.LoadInt64(&successCount), atomic.LoadInt64(&errorCount))
	}

	interval := time.Second / time.Duration(*updatesPerSecond)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	statsTicker := time.NewTicker(5 * time.Second)
	defer statsTicker.Stop()

	var endTime time.Time
	if *duration > 0 {
		endTime = time.Now().Add(*duration)
	}

	fmt.Println("Producing submissions, press Ctrl+C to stop")

	var sentCount int64

	for {
		select {
		case <-sigChan:
			fmt.Println("\nShutting down...")
			shutdown()
			return

		case <-ticker.C:
			if *duration > 0 && time.Now().After(endTime) {
				fmt.Println("\nDuration reached, shutting down...")
				shutdown()
				return
			}

			idx := rand.Intn(*totalUsers)
			// User ids start above the Telegram test-account range.
			userID := int64(100_000 + idx)
			sendEvent(userID, displayName(idx), buildPayload(*flaggedPct))
			atomic.AddInt64(&sentCount, 1)

		case <-statsTicker.C:
			fmt.Printf("[%s] Produced: %d | Acked: %d | Errors: %d\n",
				time.Now().Format("15:04:05"),
				atomic.LoadInt64(&sentCount),
				atomic.LoadInt64(&successCount),
				atomic.LoadInt64(&errorCount),
			)
		}
	}
}
