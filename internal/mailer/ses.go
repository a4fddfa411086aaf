package mailer

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"
)

// SESMailer delivers reminder emails through AWS SES.
type SESMailer struct {
	client *ses.Client
	source string
	logger *zap.Logger
}

type SESConfig struct {
	Region    string
	FromEmail string
	FromName  string
}

func NewSESMailer(ctx context.Context, cfg SESConfig, logger *zap.Logger) (*SESMailer, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	source := cfg.FromEmail
	if cfg.FromName != "" {
		source = fmt.Sprintf("%s <%s>", cfg.FromName, cfg.FromEmail)
	}

	return &SESMailer{
		client: ses.NewFromConfig(awsCfg),
		source: source,
		logger: logger,
	}, nil
}

// Send delivers msg via SES. Tags are attached as SES message tags so the
// provider-side event stream can be reconciled back to a tracker slot.
func (m *SESMailer) Send(ctx context.Context, msg *Message) (string, error) {
	if msg.To == "" {
		return "", NewPermanent(errors.New("message missing recipient"))
	}

	var tags []types.MessageTag
	for name, value := range msg.Tags {
		tags = append(tags, types.MessageTag{
			Name:  aws.String(name),
			Value: aws.String(value),
		})
	}

	to := msg.To
	if msg.ToName != "" {
		to = fmt.Sprintf("%s <%s>", msg.ToName, msg.To)
	}

	input := &ses.SendEmailInput{
		Source: aws.String(m.source),
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data:    aws.String(msg.Subject),
				Charset: aws.String("UTF-8"),
			},
			Body: &types.Body{
				Html: &types.Content{
					Data:    aws.String(msg.HTMLBody),
					Charset: aws.String("UTF-8"),
				},
			},
		},
		Tags: tags,
	}

	result, err := m.client.SendEmail(ctx, input)
	if err != nil {
		return "", classifySESError(err)
	}

	m.logger.Info("email sent via SES",
		zap.String("to", msg.To),
		zap.String("message_id", aws.ToString(result.MessageId)),
		zap.Any("tags", msg.Tags),
	)

	return aws.ToString(result.MessageId), nil
}

// classifySESError maps SES API failures onto the transient/permanent
// split. Unknown errors default to transient so the next pass retries.
func classifySESError(err error) *SendError {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "MessageRejected", "MailFromDomainNotVerifiedException", "ConfigurationSetDoesNotExist", "AccountSendingPausedException":
			return NewPermanent(fmt.Errorf("ses send failed: %w", err))
		}
	}
	return NewTransient(fmt.Errorf("ses send failed: %w", err))
}
