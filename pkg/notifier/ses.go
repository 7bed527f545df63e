package notifier

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// SESNotifier delivers notification events as email through Amazon SES.
type SESNotifier struct {
	client *sesv2.Client
	from   string
}

// NewSESNotifier builds a notifier from the ambient AWS configuration.
func NewSESNotifier(ctx context.Context, region, fromEmail string) (*SESNotifier, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("notifier.NewSESNotifier: %w", err)
	}
	return &SESNotifier{
		client: sesv2.NewFromConfig(cfg),
		from:   fromEmail,
	}, nil
}

func (n *SESNotifier) Notify(ctx context.Context, event Event) error {
	if event.Recipient.Email == "" {
		return fmt.Errorf("notifier: event %s has no recipient email", event.ID)
	}

	subject, body := renderEmail(event)

	_, err := n.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(n.from),
		Destination: &types.Destination{
			ToAddresses: []string{event.Recipient.Email},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(subject)},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(body)},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("notifier: SES send for order %s: %w", event.OrderNumber, err)
	}
	return nil
}

func renderEmail(event Event) (subject, body string) {
	switch event.Type {
	case EventOrderCreated:
		subject = fmt.Sprintf("Order %s placed", event.OrderNumber)
		body = fmt.Sprintf("Hi %s,\n\nYour order %s has been placed and is awaiting confirmation.\n", event.Recipient.Name, event.OrderNumber)
	case EventAssignmentCreated:
		agent := "a team member"
		if event.Agent != nil {
			agent = event.Agent.Name
		}
		subject = fmt.Sprintf("Order %s confirmed", event.OrderNumber)
		body = fmt.Sprintf("Hi %s,\n\nYour order %s has been assigned to %s.\n", event.Recipient.Name, event.OrderNumber, agent)
	case EventOTPIssued:
		subject = fmt.Sprintf("Delivery code for order %s", event.OrderNumber)
		body = fmt.Sprintf("Hi %s,\n\nYour delivery confirmation code for order %s is %s. Share it with the delivery agent on handoff.\n", event.Recipient.Name, event.OrderNumber, event.OTP)
	default:
		subject = fmt.Sprintf("Order %s update", event.OrderNumber)
		body = fmt.Sprintf("Hi %s,\n\nYour order %s is now %s.\n", event.Recipient.Name, event.OrderNumber, event.Status)
	}
	return subject, body
}
