package queue

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"ingest/internal/config"
	"ingest/internal/logger"
)

// NewClient builds the configured queue backend. awsCfg is only used for SQS.
func NewClient(ctx context.Context, cfg config.QueueConfig, awsCfg aws.Config, log logger.Logger) (Client, error) {
	switch cfg.Type {
	case config.QueueTypeSQS:
		return NewSQSQueue(ctx, sqs.NewFromConfig(awsCfg), cfg.SQS, log)
	case config.QueueTypeKafka:
		return NewKafkaQueue(cfg.Kafka, log), nil
	default:
		return nil, fmt.Errorf("unknown queue type: %s", cfg.Type)
	}
}
