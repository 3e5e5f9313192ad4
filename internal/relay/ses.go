package relay

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	sesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/OliverSchlueter/mail-transfer/internal/relayconfig"
)

// SendEmailAPI is the subset of the SES v2 client used by SESTransport.
type SendEmailAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// ClientFactory builds an SES client for one relay configuration snapshot.
type ClientFactory func(ctx context.Context, cfg relayconfig.Config) (SendEmailAPI, error)

// SESTransport relays mail through the AWS SES v2 API. AuthUser and
// AuthSecret of the relay configuration are used as the access key pair; if
// they are empty the default AWS credential chain applies.
type SESTransport struct {
	newClient ClientFactory
}

func NewSESTransport() *SESTransport {
	return &SESTransport{newClient: newSESClient}
}

func NewSESTransportWithClient(factory ClientFactory) *SESTransport {
	return &SESTransport{newClient: factory}
}

func newSESClient(ctx context.Context, cfg relayconfig.Config) (SendEmailAPI, error) {
	var opts []func(*awsconfig.LoadOptions) error

	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}

	if cfg.AuthUser != "" && cfg.AuthSecret != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AuthUser, cfg.AuthSecret, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return sesv2.NewFromConfig(awsCfg), nil
}

func (t *SESTransport) Send(ctx context.Context, cfg relayconfig.Config, msg Message) error {
	client, err := t.newClient(ctx, cfg)
	if err != nil {
		return err
	}

	if _, err := client.SendEmail(ctx, buildSESInput(msg)); err != nil {
		return fmt.Errorf("SES API request failed: %w", err)
	}

	return nil
}

func buildSESInput(msg Message) *sesv2.SendEmailInput {
	content := &types.Content{
		Data:    aws.String(msg.Body),
		Charset: aws.String("UTF-8"),
	}

	body := &types.Body{}
	if msg.HTML {
		body.Html = content
	} else {
		body.Text = content
	}

	return &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(msg.From),
		Destination: &types.Destination{
			ToAddresses: []string{msg.To},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{
					Data:    aws.String(msg.Subject),
					Charset: aws.String("UTF-8"),
				},
				Body: body,
			},
		},
	}
}
