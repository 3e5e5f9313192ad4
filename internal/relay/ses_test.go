package relay

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	sesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"

	"github.com/OliverSchlueter/mail-transfer/internal/relayconfig"
)

type mockSESClient struct {
	err       error
	callCount int
	lastInput *sesv2.SendEmailInput
}

func (m *mockSESClient) SendEmail(_ context.Context, params *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	m.callCount++
	m.lastInput = params
	if m.err != nil {
		return nil, m.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("test-message-id")}, nil
}

func TestSESTransportSend(t *testing.T) {
	mock := &mockSESClient{}
	var factoryCfg relayconfig.Config
	tr := NewSESTransportWithClient(func(_ context.Context, cfg relayconfig.Config) (SendEmailAPI, error) {
		factoryCfg = cfg
		return mock, nil
	})

	cfg := relayconfig.Config{Kind: relayconfig.KindSES, Region: "eu-central-1", AuthUser: "AKID", AuthSecret: "secret", Active: true}
	msg := Message{From: "alice@hosted.test", To: "bob@external.test", Subject: "Hi", Body: "Hello"}

	if err := tr.Send(context.Background(), cfg, msg); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if factoryCfg.Region != "eu-central-1" {
		t.Errorf("Expected client to be built for region eu-central-1, got %q", factoryCfg.Region)
	}
	if mock.callCount != 1 {
		t.Fatalf("Expected 1 call, got %d", mock.callCount)
	}

	in := mock.lastInput
	if got := *in.FromEmailAddress; got != "alice@hosted.test" {
		t.Errorf("Expected from alice@hosted.test, got %q", got)
	}
	if len(in.Destination.ToAddresses) != 1 || in.Destination.ToAddresses[0] != "bob@external.test" {
		t.Errorf("Expected destination [bob@external.test], got %v", in.Destination.ToAddresses)
	}
	if got := *in.Content.Simple.Subject.Data; got != "Hi" {
		t.Errorf("Expected subject Hi, got %q", got)
	}
	if in.Content.Simple.Body.Text == nil || *in.Content.Simple.Body.Text.Data != "Hello" {
		t.Errorf("Expected text body Hello")
	}
	if in.Content.Simple.Body.Html != nil {
		t.Errorf("Expected no HTML body")
	}
}

func TestSESTransportHTMLBody(t *testing.T) {
	mock := &mockSESClient{}
	tr := NewSESTransportWithClient(func(context.Context, relayconfig.Config) (SendEmailAPI, error) {
		return mock, nil
	})

	msg := Message{From: "alice@hosted.test", To: "bob@external.test", Subject: "Hi", Body: "<p>Hello</p>", HTML: true}
	if err := tr.Send(context.Background(), relayconfig.Config{}, msg); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	body := mock.lastInput.Content.Simple.Body
	if body.Html == nil || *body.Html.Data != "<p>Hello</p>" {
		t.Errorf("Expected HTML body")
	}
	if body.Text != nil {
		t.Errorf("Expected no text body")
	}
}

func TestSESTransportErrors(t *testing.T) {
	apiErr := errors.New("throttled")
	tr := NewSESTransportWithClient(func(context.Context, relayconfig.Config) (SendEmailAPI, error) {
		return &mockSESClient{err: apiErr}, nil
	})
	if err := tr.Send(context.Background(), relayconfig.Config{}, Message{}); !errors.Is(err, apiErr) {
		t.Errorf("Expected API error, got %v", err)
	}

	factoryErr := errors.New("no credentials")
	tr = NewSESTransportWithClient(func(context.Context, relayconfig.Config) (SendEmailAPI, error) {
		return nil, factoryErr
	})
	if err := tr.Send(context.Background(), relayconfig.Config{}, Message{}); !errors.Is(err, factoryErr) {
		t.Errorf("Expected factory error, got %v", err)
	}
}
