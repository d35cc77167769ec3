package notify

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/goliatone/go-payments/core"
)

// SNSPublisher is the part of *sns.Client the notifier needs.
type SNSPublisher interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type SNSNotifier struct {
	client   SNSPublisher
	topicARN string
}

// NewSNSNotifierFromEnv loads the default AWS credential chain.
func NewSNSNotifierFromEnv(ctx context.Context, topicARN string) (*SNSNotifier, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("notify: load aws config: %w", err)
	}
	return NewSNSNotifier(sns.NewFromConfig(cfg), topicARN)
}

func NewSNSNotifier(client SNSPublisher, topicARN string) (*SNSNotifier, error) {
	if client == nil {
		return nil, fmt.Errorf("notify: sns client is required")
	}
	topicARN = strings.TrimSpace(topicARN)
	if topicARN == "" {
		return nil, fmt.Errorf("notify: sns topic arn is required")
	}
	return &SNSNotifier{client: client, topicARN: topicARN}, nil
}

func (n *SNSNotifier) Name() string {
	return "sns"
}

func (n *SNSNotifier) Notify(ctx context.Context, event core.ResolutionEvent) error {
	data, err := encodeEvent(event)
	if err != nil {
		return fmt.Errorf("notify: encode sns event: %w", err)
	}
	input := &sns.PublishInput{
		TopicArn: aws.String(n.topicARN),
		Message:  aws.String(string(data)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"event_type": {
				DataType:    aws.String("String"),
				StringValue: aws.String(EventType(event)),
			},
			"intent_id": {
				DataType:    aws.String("Number"),
				StringValue: aws.String(strconv.FormatInt(event.IntentID, 10)),
			},
		},
	}
	if strings.HasSuffix(n.topicARN, ".fifo") {
		input.MessageGroupId = aws.String(strconv.FormatInt(event.IntentID, 10))
		input.MessageDeduplicationId = aws.String(event.EventID)
	}
	if _, err := n.client.Publish(ctx, input); err != nil {
		return fmt.Errorf("notify: publish sns event: %w", err)
	}
	return nil
}

var (
	_ core.Notifier      = (*SNSNotifier)(nil)
	_ core.NamedNotifier = (*SNSNotifier)(nil)
	_ SNSPublisher       = (*sns.Client)(nil)
)
