package notify

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/backoffice/server/internal/twofactor"
	"github.com/mrz1836/postmark"
)

var nowFunc = time.Now

// PostmarkConfig holds the credentials of the transactional mail account.
type PostmarkConfig struct {
	ServerToken  string
	AccountToken string
	From         string
	Issuer       string
}

// PostmarkSender mails verification codes through Postmark.
type PostmarkSender struct {
	client *postmark.Client
	cfg    PostmarkConfig
}

func NewPostmarkSender(cfg PostmarkConfig) (*PostmarkSender, error) {
	if cfg.ServerToken == "" {
		return nil, fmt.Errorf("%w: postmark server token is required", ErrInvalidConfig)
	}
	if cfg.AccountToken == "" {
		return nil, fmt.Errorf("%w: postmark account token is required", ErrInvalidConfig)
	}
	if !strings.Contains(cfg.From, "@") {
		return nil, fmt.Errorf("%w: sender address is required", ErrInvalidConfig)
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "Backoffice"
	}
	return &PostmarkSender{
		client: postmark.NewClient(cfg.ServerToken, cfg.AccountToken),
		cfg:    cfg,
	}, nil
}

func (s *PostmarkSender) Send(ctx context.Context, msg twofactor.Message) error {
	if msg.Destination == "" {
		return fmt.Errorf("%w: empty destination", ErrInvalidConfig)
	}
	email := buildCodeEmail(s.cfg, msg)
	resp, err := s.client.SendEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("postmark send: %w", err)
	}
	if resp.ErrorCode > 0 {
		return fmt.Errorf("postmark error: %d - %s", resp.ErrorCode, resp.Message)
	}
	return nil
}

func buildCodeEmail(cfg PostmarkConfig, msg twofactor.Message) postmark.Email {
	minutes := int(msg.ExpiresAt.Sub(nowFunc()).Round(time.Minute).Minutes())
	if minutes < 1 {
		minutes = 1
	}
	text := fmt.Sprintf("Your %s verification code is %s. It expires in %d minutes.", cfg.Issuer, msg.Code, minutes)
	return postmark.Email{
		From:     cfg.From,
		To:       msg.Destination,
		Subject:  fmt.Sprintf("%s verification code", cfg.Issuer),
		Tag:      "twofactor-code",
		TextBody: text,
		HTMLBody: "<p>" + html.EscapeString(text) + "</p>",
	}
}
