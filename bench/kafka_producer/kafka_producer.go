package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	appkafka "example.com/timelinefeed/internal/broker"
	"example.com/timelinefeed/internal/models"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// Pushes synthetic post_created events straight to the activity topic to
// measure how fast the worker journals them.
func main() {
	var kafkaBroker, topic string
	var total, batchSize, numWorkers, authors int

	flag.StringVar(&kafkaBroker, "broker", "localhost:29092", "Kafka broker address")
	flag.StringVar(&topic, "topic", "timeline-activity", "activity topic")
	flag.IntVar(&total, "n", 100000, "total number of events to send")
	flag.IntVar(&batchSize, "batch", 100, "batch size for sending events")
	flag.IntVar(&numWorkers, "c", 4, "number of parallel goroutines")
	flag.IntVar(&authors, "authors", 1000, "number of distinct authors")
	flag.Parse()

	// Kafka writer with asynchronous sending enabled
	w := kafka.NewWriter(kafka.WriterConfig{
		Brokers: []string{kafkaBroker},
		Topic:   topic,
		Async:   true,
	})
	defer w.Close()

	start := time.Now()

	var successCount uint64
	var failCount uint64
	var postID int64

	// Channel for feeding event indexes to worker goroutines
	jobs := make(chan int, total)
	var wg sync.WaitGroup

	send := func(batch []kafka.Message) {
		if err := w.WriteMessages(context.Background(), batch...); err != nil {
			atomic.AddUint64(&failCount, uint64(len(batch)))
			fmt.Printf("write error: %v\n", err)
			return
		}
		atomic.AddUint64(&successCount, uint64(len(batch)))
	}

	// --- Start worker goroutines ---
	for wID := 0; wID < numWorkers; wID++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			batch := make([]kafka.Message, 0, batchSize)

			for range jobs {
				id, err := uuid.NewV7()
				if err != nil {
					atomic.AddUint64(&failCount, 1)
					continue
				}
				msg, err := appkafka.EncodeEvent(models.Event{
					ID:     id.String(),
					Kind:   models.PostCreated,
					UserID: models.UserID(rand.Intn(authors) + 1),
					PostID: models.PostID(atomic.AddInt64(&postID, 1)),
					At:     time.Now().UTC(),
				})
				if err != nil {
					atomic.AddUint64(&failCount, 1)
					fmt.Printf("encode error: %v\n", err)
					continue
				}
				batch = append(batch, msg)

				// Send batch if batch size reached
				if len(batch) >= batchSize {
					send(batch)
					batch = make([]kafka.Message, 0, batchSize)
				}
			}

			// Send any remaining events after finishing loop
			if len(batch) > 0 {
				send(batch)
			}
		}()
	}

	// Feed jobs channel with indexes
	for i := 0; i < total; i++ {
		jobs <- i
	}
	close(jobs)

	// Wait for all worker goroutines to finish
	wg.Wait()

	// --- Benchmark results ---
	elapsed := time.Since(start)
	fmt.Printf("Total events: %d\n", total)
	fmt.Printf("Successful: %d, Failed: %d\n", successCount, failCount)
	fmt.Printf("Elapsed time: %s\n", elapsed)
	fmt.Printf("Throughput: %.2f events/s\n", float64(successCount)/elapsed.Seconds())
}
