package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"go.uber.org/zap"
)

const defaultPublishTimeout = 5 * time.Second

// Publisher is the subset of the SNS client used here
type Publisher interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSNotifier publishes notices to an SNS topic in the background
type SNSNotifier struct {
	client   Publisher
	topicARN string
	timeout  time.Duration
	logger   *zap.Logger
}

// NewSNSNotifier loads AWS credentials from the default chain
func NewSNSNotifier(ctx context.Context, region, topicARN string, logger *zap.Logger) (*SNSNotifier, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	return NewSNSNotifierWithClient(sns.NewFromConfig(cfg), topicARN, logger), nil
}

// NewSNSNotifierWithClient wires an existing publisher
func NewSNSNotifierWithClient(client Publisher, topicARN string, logger *zap.Logger) *SNSNotifier {
	return &SNSNotifier{
		client:   client,
		topicARN: topicARN,
		timeout:  defaultPublishTimeout,
		logger:   logger,
	}
}

func (n *SNSNotifier) TradeTransitioned(notice TransitionNotice) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		defer cancel()
		if err := n.publish(ctx, notice); err != nil {
			n.logger.Warn("Failed to publish trade notice",
				zap.Error(err),
				zap.String("trade_id", notice.TradeID),
				zap.String("to", notice.To))
		}
	}()
}

func (n *SNSNotifier) publish(ctx context.Context, notice TransitionNotice) error {
	body, err := json.Marshal(notice)
	if err != nil {
		return fmt.Errorf("failed to marshal notice: %w", err)
	}
	_, err = n.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(n.topicARN),
		Message:  aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"event_type": {
				DataType:    aws.String("String"),
				StringValue: aws.String("trade." + notice.To),
			},
		},
	})
	return err
}
