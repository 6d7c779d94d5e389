package writer

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	kafka "github.com/segmentio/kafka-go"

	appconfig "volspike/config"
	"volspike/logger"
	"volspike/models"
)

// KafkaPublisher forwards every emitted snapshot to a Kafka topic, keyed by
// emission timestamp so consumers can partition on time.
type KafkaPublisher struct {
	config    *appconfig.Config
	snapshots <-chan models.Snapshot
	writer    *kafka.Writer
	ctx       context.Context
	wg        *sync.WaitGroup
	mu        sync.RWMutex
	running   bool
	log       *logger.Log
}

func NewKafkaPublisher(cfg *appconfig.Config, snapshots <-chan models.Snapshot) (*KafkaPublisher, error) {
	if len(cfg.Storage.Kafka.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers not configured")
	}
	kp := &KafkaPublisher{
		config:    cfg,
		snapshots: snapshots,
		writer: &kafka.Writer{
			Addr:     kafka.TCP(cfg.Storage.Kafka.Brokers...),
			Topic:    cfg.Storage.Kafka.Topic,
			Balancer: &kafka.LeastBytes{},
		},
		wg:  &sync.WaitGroup{},
		log: logger.GetLogger(),
	}
	kp.log.WithComponent("kafka_writer").WithFields(logger.Fields{
		"brokers": cfg.Storage.Kafka.Brokers,
		"topic":   cfg.Storage.Kafka.Topic,
	}).Debug("kafka publisher initialized")
	return kp, nil
}

func (kp *KafkaPublisher) Start(ctx context.Context) error {
	kp.mu.Lock()
	if kp.running {
		kp.mu.Unlock()
		return fmt.Errorf("kafka publisher already running")
	}
	kp.running = true
	kp.ctx = ctx
	kp.mu.Unlock()

	kp.log.WithComponent("kafka_writer").Debug("starting kafka publisher")

	kp.wg.Add(1)
	go kp.run()

	return nil
}

func (kp *KafkaPublisher) run() {
	defer kp.wg.Done()

	for {
		select {
		case <-kp.ctx.Done():
			return
		case snap, ok := <-kp.snapshots:
			if !ok {
				return
			}
			data, err := json.Marshal(snap)
			if err != nil {
				kp.log.WithComponent("kafka_writer").WithError(err).Warn("failed to marshal snapshot")
				continue
			}
			msg := kafka.Message{
				Key:   []byte(strconv.FormatInt(snap.EmittedAt, 10)),
				Value: data,
			}
			if err := kp.writer.WriteMessages(kp.ctx, msg); err != nil {
				kp.log.WithComponent("kafka_writer").WithError(err).Warn("failed to publish snapshot")
			} else {
				logger.IncrementPublishWrite(len(data))
				kp.log.WithComponent("kafka_writer").WithFields(logger.Fields{
					"emitted_at": snap.EmittedAt,
					"rows":       len(snap.Rows),
				}).Debug("snapshot published to kafka")
			}
		}
	}
}

func (kp *KafkaPublisher) Stop() {
	kp.mu.Lock()
	kp.running = false
	kp.mu.Unlock()

	kp.log.WithComponent("kafka_writer").Debug("stopping kafka publisher")
	kp.writer.Close()
	kp.wg.Wait()
	kp.log.WithComponent("kafka_writer").Debug("kafka publisher stopped")
}
