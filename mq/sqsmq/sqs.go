package sqsmq

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/rotisserie/eris"
	"github.com/zlnvch/pixelverse/mq"
)

type sqsAPI interface {
	GetQueueUrl(ctx context.Context, params *sqs.GetQueueUrlInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error)
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

type SQSMessageQueue struct {
	client   sqsAPI
	queueURL string
	waitTime int32
}

func NewSQSMessageQueue(ctx context.Context, devMode bool, sqsEndpoint string, queueName string) (*SQSMessageQueue, error) {
	client, err := newSQSClient(ctx, devMode, sqsEndpoint)
	if err != nil {
		return nil, err
	}
	return newWithClient(ctx, client, queueName, 20)
}

func newWithClient(ctx context.Context, client sqsAPI, queueName string, waitTime int32) (*SQSMessageQueue, error) {
	queueURL, err := resolveQueueURL(ctx, client, queueName)
	if err != nil {
		return nil, eris.Wrapf(err, "queue '%s' not found in SQS", queueName)
	}
	return &SQSMessageQueue{client: client, queueURL: queueURL, waitTime: waitTime}, nil
}

func (sqsmq *SQSMessageQueue) Send(ctx context.Context, body string) (string, error) {
	return sendMessage(ctx, sqsmq, body)
}

func (sqsmq *SQSMessageQueue) Receive(ctx context.Context, maxMessages int32, visibilityTimeout int32) ([]*mq.Message, error) {
	return receiveMessages(ctx, sqsmq, maxMessages, visibilityTimeout)
}

func (sqsmq *SQSMessageQueue) Delete(ctx context.Context, msg *mq.Message) error {
	return deleteMessage(ctx, sqsmq, msg)
}
