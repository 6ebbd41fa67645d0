package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingPublisher struct {
	inputs chan *sns.PublishInput
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	p.inputs <- params
	if p.err != nil {
		return nil, p.err
	}
	return &sns.PublishOutput{MessageId: aws.String("msg-1")}, nil
}

func TestSNSNotifierPublishesNotice(t *testing.T) {
	pub := &recordingPublisher{inputs: make(chan *sns.PublishInput, 1)}
	n := NewSNSNotifierWithClient(pub, "arn:aws:sns:eu-west-1:123456789012:trades", zap.NewNop())

	n.TradeTransitioned(TransitionNotice{TradeID: "t-1", From: "quoted", To: "contracted", ActorRole: "buyer"})

	select {
	case in := <-pub.inputs:
		assert.Equal(t, "arn:aws:sns:eu-west-1:123456789012:trades", aws.ToString(in.TopicArn))
		assert.Equal(t, "trade.contracted", aws.ToString(in.MessageAttributes["event_type"].StringValue))

		var got TransitionNotice
		require.NoError(t, json.Unmarshal([]byte(aws.ToString(in.Message)), &got))
		assert.Equal(t, "t-1", got.TradeID)
		assert.Equal(t, "quoted", got.From)
	case <-time.After(2 * time.Second):
		t.Fatal("notice was not published")
	}
}

func TestSNSNotifierSwallowsPublishErrors(t *testing.T) {
	pub := &recordingPublisher{inputs: make(chan *sns.PublishInput, 1), err: errors.New("throttled")}
	n := NewSNSNotifierWithClient(pub, "arn", zap.NewNop())

	assert.NotPanics(t, func() {
		n.TradeTransitioned(TransitionNotice{TradeID: "t-2", To: "closed"})
	})

	select {
	case <-pub.inputs:
	case <-time.After(2 * time.Second):
		t.Fatal("publish was not attempted")
	}
}
