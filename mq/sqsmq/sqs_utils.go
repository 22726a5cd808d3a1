package sqsmq

import (
	"context"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/rotisserie/eris"
	"github.com/zlnvch/pixelverse/mq"
)

// SQS caps a single receive at 10 messages
const maxReceiveBatch = 10

func newSQSClient(ctx context.Context, devMode bool, sqsEndpoint string) (*sqs.Client, error) {
	if devMode {
		// Dummy credentials for the local emulator
		cfg, err := config.LoadDefaultConfig(ctx,
			config.WithRegion("us-east-1"),
			config.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider("dummy", "dummy", ""),
			),
		)
		if err != nil {
			return nil, eris.Wrap(err, "load local aws config")
		}

		return sqs.NewFromConfig(cfg, func(o *sqs.Options) {
			o.BaseEndpoint = aws.String(sqsEndpoint)
		}), nil
	}

	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "load aws config")
	}

	return sqs.NewFromConfig(cfg), nil
}

func resolveQueueURL(ctx context.Context, client sqsAPI, queueName string) (string, error) {
	output, err := client.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{
		QueueName: aws.String(queueName),
	})
	if err != nil {
		return "", err
	}
	return aws.ToString(output.QueueUrl), nil
}

func sendMessage(ctx context.Context, sqsmq *SQSMessageQueue, body string) (string, error) {
	output, err := sqsmq.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(sqsmq.queueURL),
		MessageBody: aws.String(body),
	})
	if err != nil {
		return "", eris.Wrap(err, "SendMessage failed")
	}
	return aws.ToString(output.MessageId), nil
}

func receiveMessages(ctx context.Context, sqsmq *SQSMessageQueue, maxMessages int32, visibilityTimeout int32) ([]*mq.Message, error) {
	if maxMessages <= 0 || maxMessages > maxReceiveBatch {
		maxMessages = maxReceiveBatch
	}

	resp, err := sqsmq.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(sqsmq.queueURL),
		MaxNumberOfMessages: maxMessages,
		WaitTimeSeconds:     sqsmq.waitTime, // long polling
		VisibilityTimeout:   visibilityTimeout,
		MessageSystemAttributeNames: []types.MessageSystemAttributeName{
			types.MessageSystemAttributeNameApproximateReceiveCount,
		},
	})
	if err != nil {
		return nil, eris.Wrap(err, "ReceiveMessage failed")
	}

	messages := make([]*mq.Message, 0, len(resp.Messages))
	for _, msg := range resp.Messages {
		receiveCount := 1
		if raw, ok := msg.Attributes[string(types.MessageSystemAttributeNameApproximateReceiveCount)]; ok {
			if n, err := strconv.Atoi(raw); err == nil {
				receiveCount = n
			}
		}
		messages = append(messages, &mq.Message{
			Receipt:      aws.ToString(msg.ReceiptHandle),
			Body:         aws.ToString(msg.Body),
			ReceiveCount: receiveCount,
		})
	}
	return messages, nil
}

func deleteMessage(ctx context.Context, sqsmq *SQSMessageQueue, msg *mq.Message) error {
	_, err := sqsmq.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(sqsmq.queueURL),
		ReceiptHandle: aws.String(msg.Receipt),
	})
	if err != nil {
		return eris.Wrap(err, "DeleteMessage failed")
	}
	return nil
}
