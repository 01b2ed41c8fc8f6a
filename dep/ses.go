package dep

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"mailflow/config"
	"mailflow/entity"
	"mailflow/pkg/errutil"
)

type sesSender struct {
	client     *sesv2.Client
	configured bool
}

func NewSESSender(ctx context.Context, cfg config.SES) (EmailSender, error) {
	creds := credentials.NewStaticCredentialsProvider(
		cfg.AccessKeyID,
		cfg.SecretAccessKey,
		"",
	)

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(creds),
	)
	if err != nil {
		return nil, err
	}

	return &sesSender{
		client:     sesv2.NewFromConfig(awsCfg),
		configured: cfg.AccessKeyID != "" && cfg.SecretAccessKey != "",
	}, nil
}

func (s *sesSender) Type() entity.ProviderType {
	return entity.ProviderTypeSES
}

func (s *sesSender) IsConfigured() bool {
	return s.configured
}

func (s *sesSender) Send(ctx context.Context, req *SendRequest) (*SendResult, error) {
	from := req.FromEmail
	if req.FromName != "" {
		from = req.FromName + " <" + req.FromEmail + ">"
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(from),
		Destination: &types.Destination{
			ToAddresses: []string{req.ToEmail},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(req.Subject)},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(req.HtmlContent)},
					Text: &types.Content{Data: aws.String(req.TextContent)},
				},
			},
		},
	}
	if req.ReplyTo != "" {
		input.ReplyToAddresses = []string{req.ReplyTo}
	}

	output, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return nil, classifySESError(err)
	}

	var messageID string
	if output.MessageId != nil {
		messageID = *output.MessageId
	}

	return &SendResult{MessageID: messageID}, nil
}

func classifySESError(err error) error {
	var (
		tooMany       *types.TooManyRequestsException
		limitExceeded *types.LimitExceededException
		sendingPaused *types.SendingPausedException
		rejected      *types.MessageRejected
		notVerified   *types.MailFromDomainNotVerifiedException
		suspended     *types.AccountSuspendedException
		badRequest    *types.BadRequestException
		notFound      *types.NotFoundException
	)

	switch {
	case errors.As(err, &tooMany), errors.As(err, &limitExceeded), errors.As(err, &sendingPaused):
		return errutil.TransientProviderError(err)
	case errors.As(err, &rejected), errors.As(err, &notVerified),
		errors.As(err, &suspended), errors.As(err, &badRequest), errors.As(err, &notFound):
		return errutil.PermanentProviderError(err)
	default:
		// network and unknown API failures are worth a retry
		return errutil.TransientProviderError(err)
	}
}
