package aws

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	sestypes "github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"github.com/mohasinmudassar/Automated-AWS-Cost-Optimization-System/providers"
	"github.com/mohasinmudassar/Automated-AWS-Cost-Optimization-System/types"
)

// SNSAPI is the slice of the SNS client the notifier uses.
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SESAPI is the slice of the SESv2 client the notifier uses.
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// NotifierConfig routes notices.
type NotifierConfig struct {
	// SummaryTopicARN receives operator pass summaries. Empty disables them.
	SummaryTopicARN string
	// Sender is the from-address for owner email.
	Sender string
	// OpsFallbackAddress receives notices whose owner is unknown or not
	// addressable by email.
	OpsFallbackAddress string
}

// Notifier delivers owner email via SES and operator summaries via SNS.
type Notifier struct {
	sns SNSAPI
	ses SESAPI
	cfg NotifierConfig
}

// NewNotifier creates a notifier in the given home region.
func NewNotifier(base awsv2.Config, region string, cfg NotifierConfig) *Notifier {
	return &Notifier{
		sns: snsFor(base, region),
		ses: sesFor(base, region),
		cfg: cfg,
	}
}

// NotifyOwner emails the resource owner. Unknown owners and owners without
// an email-shaped identity route to the operations fallback address.
func (n *Notifier) NotifyOwner(ctx context.Context, notice providers.Notification) error {
	recipient := n.recipient(notice.Owner)
	if recipient == "" {
		return fmt.Errorf("no recipient for resource %s and no ops fallback configured", notice.ResourceID)
	}

	subject, body := composeNotice(notice)

	_, err := n.ses.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: awsv2.String(n.cfg.Sender),
		Destination: &sestypes.Destination{
			ToAddresses: []string{recipient},
		},
		Content: &sestypes.EmailContent{
			Simple: &sestypes.Message{
				Subject: &sestypes.Content{Data: awsv2.String(subject)},
				Body: &sestypes.Body{
					Text: &sestypes.Content{Data: awsv2.String(body)},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to send notice for %s: %w", notice.ResourceID, err)
	}
	return nil
}

// PublishSummary publishes the operator digest of one pass to SNS. A missing
// topic ARN disables summaries silently.
func (n *Notifier) PublishSummary(ctx context.Context, summary providers.PassSummary) error {
	if n.cfg.SummaryTopicARN == "" {
		return nil
	}

	payload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to encode pass summary: %w", err)
	}

	_, err = n.sns.Publish(ctx, &sns.PublishInput{
		TopicArn: awsv2.String(n.cfg.SummaryTopicARN),
		Subject: awsv2.String(fmt.Sprintf("costopt pass summary: %s/%s",
			summary.Region, summary.ResourceType)),
		Message: awsv2.String(string(payload)),
	})
	if err != nil {
		return fmt.Errorf("failed to publish pass summary: %w", err)
	}
	return nil
}

func (n *Notifier) recipient(owner types.Owner) string {
	if owner.Unknown() || !strings.Contains(owner.Identity, "@") {
		return n.cfg.OpsFallbackAddress
	}
	return owner.Identity
}

func composeNotice(notice providers.Notification) (subject, body string) {
	var b strings.Builder

	switch notice.State {
	case types.StateFlagged:
		subject = fmt.Sprintf("[costopt] resource %s flagged as idle", notice.ResourceID)
		fmt.Fprintf(&b, "Your resource %s in %s has been flagged as idle.\n\nReason: %s\n",
			notice.ResourceID, notice.Region, notice.Reason)

	case types.StatePendingDeletion:
		subject = fmt.Sprintf("[costopt] resource %s scheduled for deletion", notice.ResourceID)
		fmt.Fprintf(&b, "Your resource %s in %s is scheduled for deletion.\n\nReason: %s\n",
			notice.ResourceID, notice.Region, notice.Reason)
		if notice.DeletionAt != nil {
			fmt.Fprintf(&b, "Deletion time: %s\n", notice.DeletionAt.UTC().Format("2006-01-02 15:04 UTC"))
		}

	case types.StateDeleted:
		subject = fmt.Sprintf("[costopt] resource %s deleted", notice.ResourceID)
		fmt.Fprintf(&b, "Your resource %s in %s has been deleted.\n\nReason: %s\n",
			notice.ResourceID, notice.Region, notice.Reason)

	default:
		subject = fmt.Sprintf("[costopt] resource %s: %s", notice.ResourceID, notice.State)
		fmt.Fprintf(&b, "Resource %s in %s: %s\n", notice.ResourceID, notice.Region, notice.Reason)
	}

	if notice.State == types.StateFlagged || notice.State == types.StatePendingDeletion {
		fmt.Fprintf(&b, "\nTo keep this resource, tag it with %s=true. The tag takes effect on the next scan and cancels any pending deletion.\n",
			types.TagExempt)
	}
	return subject, b.String()
}
