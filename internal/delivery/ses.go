package delivery

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/phrazzld/taskpulse/internal/domain"
)

// SESAPI is the subset of the SES v2 client used here.
type SESAPI interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESSender delivers email notifications through Amazon SES.
type SESSender struct {
	client    SESAPI
	fromEmail string
}

// NewSESSender wraps an SES client.
func NewSESSender(client SESAPI, fromEmail string) (*SESSender, error) {
	if fromEmail == "" {
		return nil, errors.New("ses sender requires a from address")
	}
	return &SESSender{client: client, fromEmail: fromEmail}, nil
}

// NewSESSenderFromEnv loads AWS credentials the standard way and creates a
// sender for region.
func NewSESSenderFromEnv(ctx context.Context, region, fromEmail string) (*SESSender, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	return NewSESSender(sesv2.NewFromConfig(cfg), fromEmail)
}

func (s *SESSender) Send(ctx context.Context, n *domain.NotificationDelivery) (Receipt, error) {
	out, err := s.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.fromEmail),
		Destination: &types.Destination{
			ToAddresses: []string{n.Recipient},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(n.Subject)},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(n.Message)},
				},
			},
		},
	})
	if err != nil {
		return Receipt{}, fmt.Errorf("ses send failed: %w", err)
	}
	return Receipt{MessageID: aws.ToString(out.MessageId)}, nil
}
