package intake

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSQS struct {
	sent    []string
	deleted []string
	inbox   []sqstypes.Message
}

func (f *fakeSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.sent = append(f.sent, aws.ToString(in.MessageBody))
	return &sqs.SendMessageOutput{MessageId: aws.String("m1")}, nil
}

func (f *fakeSQS) ReceiveMessage(_ context.Context, _ *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	out := f.inbox
	f.inbox = nil
	return &sqs.ReceiveMessageOutput{Messages: out}, nil
}

func (f *fakeSQS) DeleteMessage(_ context.Context, in *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.deleted = append(f.deleted, aws.ToString(in.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

func TestSQSQueue_RoundTrip(t *testing.T) {
	client := &fakeSQS{inbox: []sqstypes.Message{{MessageId: aws.String("m1"), Body: aws.String("{}"), ReceiptHandle: aws.String("r1")}}}
	q := NewSQSQueue(client, "https://sqs.local/intake")
	ctx := context.Background()

	require.NoError(t, q.Send(ctx, "hello"))
	assert.Equal(t, []string{"hello"}, client.sent)

	msgs, err := q.Receive(ctx, 5, 1)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "r1", msgs[0].ReceiptHandle)

	require.NoError(t, q.Delete(ctx, "r1"))
	require.NoError(t, q.Delete(ctx, ""))
	assert.Equal(t, []string{"r1"}, client.deleted)
}

func TestMemoryQueue_ReceiveBatchAndTimeout(t *testing.T) {
	q := NewMemoryQueue(8)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, q.Send(ctx, "x"))
	}

	msgs, err := q.Receive(ctx, 2, 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)

	msgs, err = q.Receive(ctx, 2, 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)

	start := time.Now()
	msgs, err = q.Receive(ctx, 1, 1)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.GreaterOrEqual(t, time.Since(start), 900*time.Millisecond)
}

func TestPublisher_RejectsForeignEnvelope(t *testing.T) {
	q := NewMemoryQueue(1)
	p := NewPublisher(q, nil)
	err := p.Enqueue(context.Background(), []byte(`{"type":"nope"}`))
	assert.ErrorIs(t, err, ErrUnsupportedMessage)
}
