package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/go-resty/resty/v2"

	"github.com/your-org/crowdwatch/internal/config"
)

// Sender hands one text message to the messaging provider and returns the
// provider's message id.
type Sender interface {
	Send(ctx context.Context, to, body string) (string, error)
}

type twilioMessage struct {
	SID    string `json:"sid"`
	Status string `json:"status"`
}

type twilioError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

// TwilioProvider sends WhatsApp/SMS messages through the Twilio Messages API.
// Calls go through a circuit breaker so a failing provider is rejected fast;
// nothing is retried.
type TwilioProvider struct {
	client     *resty.Client
	accountSID string
	from       string
	breaker    circuitbreaker.CircuitBreaker[any]
}

func NewTwilioProvider(cfg config.RelayConfig) *TwilioProvider {
	timeout := cfg.ProviderTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	client := resty.New().
		SetBaseURL(cfg.ProviderBaseURL).
		SetTimeout(timeout).
		SetRetryCount(0).
		SetBasicAuth(cfg.AccountSID, cfg.AuthToken).
		SetHeader("Accept", "application/json")

	breaker := circuitbreaker.NewBuilder[any]().
		WithFailureThresholdRatio(5, 10).
		WithDelay(30 * time.Second).
		WithSuccessThreshold(1).
		OnStateChanged(func(e circuitbreaker.StateChangedEvent) {
			slog.Warn("messaging provider circuit breaker state change",
				"from_state", e.OldState,
				"to_state", e.NewState,
			)
		}).
		Build()

	return &TwilioProvider{
		client:     client,
		accountSID: cfg.AccountSID,
		from:       cfg.FromNumber,
		breaker:    breaker,
	}
}

func (p *TwilioProvider) Send(ctx context.Context, to, body string) (string, error) {
	res, err := failsafe.With(p.breaker).WithContext(ctx).Get(func() (any, error) {
		return p.send(ctx, to, body)
	})
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return "", &ProviderError{Message: "messaging provider unavailable (circuit open)", Err: err}
	}
	if err != nil {
		return "", err
	}
	return res.(string), nil
}

func (p *TwilioProvider) send(ctx context.Context, to, body string) (string, error) {
	var ok twilioMessage
	var fail twilioError

	resp, err := p.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"From": p.from,
			"To":   to,
			"Body": body,
		}).
		SetResult(&ok).
		SetError(&fail).
		Post(fmt.Sprintf("/2010-04-01/Accounts/%s/Messages.json", p.accountSID))
	if err != nil {
		return "", &ProviderError{Err: err}
	}
	if resp.IsError() {
		msg := fail.Message
		if msg == "" {
			msg = resp.String()
		}
		return "", &ProviderError{StatusCode: resp.StatusCode(), Code: fail.Code, Message: msg}
	}
	return ok.SID, nil
}
