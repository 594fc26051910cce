package writebuffer

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockSQSFlushClient struct {
	mock.Mock
}

func (m *mockSQSFlushClient) ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sqs.ReceiveMessageOutput), args.Error(1)
}

func (m *mockSQSFlushClient) DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sqs.DeleteMessageOutput), args.Error(1)
}

func TestSQSFlushNotifier_TriggersOnMessage(t *testing.T) {
	client := new(mockSQSFlushClient)

	var calls int32
	first := true
	client.On("ReceiveMessage", mock.Anything, mock.Anything).Return(
		func(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) *sqs.ReceiveMessageOutput {
			if first {
				first = false
				return &sqs.ReceiveMessageOutput{Messages: []types.Message{
					{Body: aws.String("flush"), ReceiptHandle: aws.String("rh-1")},
				}}
			}
			return &sqs.ReceiveMessageOutput{}
		},
		func(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) error { return nil },
	)
	client.On("DeleteMessage", mock.Anything, mock.Anything).Return(&sqs.DeleteMessageOutput{}, nil)

	n := NewSQSFlushNotifier(client, "http://sqs.local/000/flush", nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, n.Listen(ctx, func() { atomic.AddInt32(&calls, 1) }))

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&calls) >= 1
	}, time.Second, 5*time.Millisecond)
}
