package writebuffer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	amqp "github.com/rabbitmq/amqp091-go"
)

// FlushNotifier listens for an external "flush now" signal and calls
// trigger whenever one arrives — the "or when a flush notifier fires"
// clause of spec §4.7, alongside the ticker and the local Flush call.
// Grounded on the teacher's queue.Client transports (rabbitmq.go,
// sqs.go): same dial/consume shape, repurposed here to carry a
// lightweight ping instead of an envelope body.
type FlushNotifier interface {
	Listen(ctx context.Context, trigger func()) error
	Close() error
}

// RabbitMQFlushNotifier consumes flush pings off a fanout exchange.
// Any producer publishing to the exchange (e.g. an operator tool after
// a bulk import) wakes the buffer's worker immediately instead of
// waiting for the next FlushInterval tick.
type RabbitMQFlushNotifier struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
	log   *slog.Logger
}

// NewRabbitMQFlushNotifier dials url and declares a durable fanout
// exchange plus an exclusive queue bound to it.
func NewRabbitMQFlushNotifier(url, exchange string, log *slog.Logger) (*RabbitMQFlushNotifier, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("writebuffer: dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("writebuffer: open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "fanout", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("writebuffer: declare flush exchange: %w", err)
	}
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("writebuffer: declare flush queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, "", exchange, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("writebuffer: bind flush queue: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &RabbitMQFlushNotifier{conn: conn, ch: ch, queue: q.Name, log: log.With("component", "writebuffer.flush_notifier", "transport", "rabbitmq")}, nil
}

// Listen starts a background consumer that invokes trigger for every
// ping received, until ctx is cancelled.
func (n *RabbitMQFlushNotifier) Listen(ctx context.Context, trigger func()) error {
	msgs, err := n.ch.Consume(n.queue, "", true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("writebuffer: consume flush queue: %w", err)
	}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-msgs:
				if !ok {
					return
				}
				trigger()
			}
		}
	}()
	return nil
}

// Close tears down the channel and connection.
func (n *RabbitMQFlushNotifier) Close() error {
	if n.ch != nil {
		_ = n.ch.Close()
	}
	if n.conn != nil {
		return n.conn.Close()
	}
	return nil
}

// sqsFlushClient is the subset of the SQS SDK client the notifier
// needs; narrowed to an interface the way the teacher's sqsClient
// interface in queue/sqs.go is, so tests can substitute a mock.
type sqsFlushClient interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// SQSFlushNotifier polls an SQS queue for flush pings, the alternate
// transport the teacher's gateway/operator select by config instead
// of RabbitMQ.
type SQSFlushNotifier struct {
	client   sqsFlushClient
	queueURL string
	log      *slog.Logger
}

// NewSQSFlushNotifier wraps an already-configured SQS client.
func NewSQSFlushNotifier(client sqsFlushClient, queueURL string, log *slog.Logger) *SQSFlushNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &SQSFlushNotifier{
		client:   client,
		queueURL: queueURL,
		log:      log.With("component", "writebuffer.flush_notifier", "transport", "sqs"),
	}
}

// Listen long-polls the queue in a background goroutine, invoking
// trigger once per message received and deleting it afterward.
func (n *SQSFlushNotifier) Listen(ctx context.Context, trigger func()) error {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			out, err := n.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
				QueueUrl:            aws.String(n.queueURL),
				MaxNumberOfMessages: 10,
				WaitTimeSeconds:     5,
			})
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				n.log.Warn("flush queue receive failed", "error", err)
				select {
				case <-ctx.Done():
					return
				case <-time.After(time.Second):
				}
				continue
			}
			for _, m := range out.Messages {
				trigger()
				if m.ReceiptHandle != nil {
					_, _ = n.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
						QueueUrl:      aws.String(n.queueURL),
						ReceiptHandle: m.ReceiptHandle,
					})
				}
			}
		}
	}()
	return nil
}

// Close is a no-op: the SDK client has no persistent connection to
// tear down.
func (n *SQSFlushNotifier) Close() error { return nil }
