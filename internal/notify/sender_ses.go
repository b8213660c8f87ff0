// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package notify

import (
	"context"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

const charsetUTF8 = "UTF-8"

// SESAPI is the subset of the SES client used here.
type SESAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESConfig configures the SES client.
type SESConfig struct {
	Region string
	// AccessKey and SecretKey are optional; the default credential chain is
	// used when both are empty.
	AccessKey string
	SecretKey string
}

// NewSESClient builds an SES client. Retries are left to SESSender.
func NewSESClient(ctx context.Context, cfg SESConfig) (*ses.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithRetryer(func() aws.Retryer { return aws.NopRetryer{} }),
	}
	if cfg.AccessKey != "" || cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, oops.Code("SES_CONFIG_FAILED").With("region", cfg.Region).Wrap(err)
	}
	return ses.NewFromConfig(awsCfg), nil
}

// SESSender sends plain-text mail through Amazon SES. The from address must
// be verified with SES.
type SESSender struct {
	client   SESAPI
	from     string
	attempts uint64
	base     time.Duration
}

// NewSESSender creates an SESSender that tries each message up to attempts
// times.
func NewSESSender(client SESAPI, from string, attempts uint64) *SESSender {
	if attempts == 0 {
		attempts = 3
	}
	return &SESSender{client: client, from: from, attempts: attempts, base: 200 * time.Millisecond}
}

// Send delivers msg, retrying throttling and transport failures with
// exponential backoff.
func (s *SESSender) Send(ctx context.Context, msg Message) error {
	input := &ses.SendEmailInput{
		Source: aws.String(s.from),
		Destination: &types.Destination{
			ToAddresses: []string{msg.To},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String(charsetUTF8)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(msg.Body), Charset: aws.String(charsetUTF8)},
			},
		},
	}

	backoff := retry.WithMaxRetries(s.attempts-1, retry.WithCappedDuration(5*time.Second, retry.NewExponential(s.base)))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		_, err := s.client.SendEmail(ctx, input)
		if err == nil || permanent(err) {
			return err
		}
		return retry.RetryableError(err)
	})
	if err != nil {
		return oops.Code("SES_SEND_FAILED").
			With("template", msg.Template).
			With("permanent", permanent(err)).
			Wrap(err)
	}
	return nil
}

// permanent reports SES rejections that no retry can fix.
func permanent(err error) bool {
	var (
		rejected   *types.MessageRejected
		unverified *types.MailFromDomainNotVerifiedException
		paused     *types.AccountSendingPausedException
		noConfig   *types.ConfigurationSetDoesNotExistException
	)
	return errors.As(err, &rejected) ||
		errors.As(err, &unverified) ||
		errors.As(err, &paused) ||
		errors.As(err, &noConfig) ||
		errors.Is(err, context.Canceled)
}
