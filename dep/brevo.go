package dep

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	brevo "github.com/getbrevo/brevo-go/lib"

	"mailflow/config"
	"mailflow/entity"
	"mailflow/pkg/errutil"
)

var sendEmailUrl = "https://api.brevo.com/v3/smtp/email"

type brevoResp struct {
	MessageID string `json:"messageId"`
	Message   string `json:"message"`
	Code      string `json:"code"`
}

type brevoSender struct {
	apiKey string
	client *http.Client
}

func NewBrevoSender(cfg config.Brevo) EmailSender {
	return &brevoSender{
		apiKey: cfg.APIKey,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *brevoSender) Type() entity.ProviderType {
	return entity.ProviderTypeBrevo
}

func (s *brevoSender) IsConfigured() bool {
	return s.apiKey != ""
}

func (s *brevoSender) Send(ctx context.Context, req *SendRequest) (*SendResult, error) {
	body := brevo.SendSmtpEmail{
		Sender: &brevo.SendSmtpEmailSender{
			Email: req.FromEmail,
			Name:  req.FromName,
		},
		To: []brevo.SendSmtpEmailTo{
			{Email: req.ToEmail, Name: req.ToName},
		},
		Subject:     req.Subject,
		HtmlContent: req.HtmlContent,
		TextContent: req.TextContent,
		Tags:        []string{req.TrackingID},
	}
	if req.ReplyTo != "" {
		body.ReplyTo = &brevo.SendSmtpEmailReplyTo{Email: req.ReplyTo}
	}

	resp, err := s.postHttpRequest(ctx, sendEmailUrl, body)
	if err != nil {
		return nil, err
	}

	return &SendResult{MessageID: resp.MessageID}, nil
}

func (s *brevoSender) postHttpRequest(ctx context.Context, url string, body interface{}) (*brevoResp, error) {
	js, err := json.Marshal(body)
	if err != nil {
		return nil, errutil.PermanentProviderError(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(js))
	if err != nil {
		return nil, errutil.PermanentProviderError(err)
	}

	req.Header.Add("accept", "application/json")
	req.Header.Add("content-type", "application/json")
	req.Header.Add("api-key", s.apiKey)

	res, err := s.client.Do(req)
	if err != nil {
		return nil, errutil.TransientProviderError(err)
	}

	defer func() {
		_ = res.Body.Close()
	}()

	b, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, errutil.TransientProviderError(err)
	}

	resp := new(brevoResp)
	if err := json.Unmarshal(b, resp); err != nil {
		return nil, errutil.TransientProviderError(err)
	}

	if res.StatusCode >= http.StatusInternalServerError || res.StatusCode == http.StatusTooManyRequests {
		return nil, errutil.TransientProviderError(
			fmt.Errorf("brevo error: %s, code: %s, status: %d", resp.Message, resp.Code, res.StatusCode))
	}
	if res.StatusCode >= http.StatusBadRequest {
		return nil, errutil.PermanentProviderError(
			fmt.Errorf("brevo error: %s, code: %s, status: %d", resp.Message, resp.Code, res.StatusCode))
	}

	return resp, nil
}
