package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// TwilioClient submits messages through the Twilio Messages API.
type TwilioClient struct {
	api messageCreator
}

func NewTwilioClient(accountSID, authToken string) (*TwilioClient, error) {
	if accountSID == "" || authToken == "" {
		return nil, errors.New("twilio account sid and auth token are required")
	}
	rc := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &TwilioClient{api: rc.Api}, nil
}

type twilioResult struct {
	sid string
	err error
}

// Submit returns when Twilio answers or ctx is done, whichever comes first. The SDK call
// itself is not cancellable, so an abandoned call may still complete in the background.
func (c *TwilioClient) Submit(ctx context.Context, to, from, body string) (string, error) {
	if from == "" {
		return "", errors.New("twilio sender number is not configured")
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(from)
	params.SetBody(body)

	done := make(chan twilioResult, 1)
	go func() {
		resp, err := c.api.CreateMessage(params)
		if err != nil {
			done <- twilioResult{err: err}
			return
		}
		if resp == nil || resp.Sid == nil || *resp.Sid == "" {
			done <- twilioResult{err: errors.New("twilio response missing message sid")}
			return
		}
		done <- twilioResult{sid: *resp.Sid}
	}()

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("twilio submit to %s: %w", to, ctx.Err())
	case r := <-done:
		if r.err != nil {
			return "", fmt.Errorf("twilio submit to %s: %w", to, r.err)
		}
		return r.sid, nil
	}
}
