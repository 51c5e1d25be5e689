package aws

import (
	"context"
	"fmt"
	"log"

	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// Notifier publishes operator alerts to an SNS topic. Fired on upstream
// errors, provisioning failures, and sweep failures after retries exhausted.
type Notifier struct {
	SNS      SNSAPI
	TopicARN string
}

func NewNotifier(snsClient SNSAPI, topicARN string) *Notifier {
	return &Notifier{SNS: snsClient, TopicARN: topicARN}
}

// Notify publishes a subject/body pair. Best-effort: a dead notification
// channel must never fail the unit of work it reports on, so errors are
// logged and swallowed.
func (n *Notifier) Notify(ctx context.Context, subject, body string) {
	if n == nil || n.TopicARN == "" {
		log.Printf("[notify] %s: %s", subject, body)
		return
	}
	_, err := n.SNS.Publish(ctx, &sns.PublishInput{
		TopicArn: &n.TopicARN,
		Subject:  &subject,
		Message:  &body,
	})
	if err != nil {
		log.Printf("[notify] publish failed: %v (subject=%s)", err, subject)
	}
}

// NotifyAttemptFailure is the common alert shape: attempt identity plus the
// error that stopped it.
func (n *Notifier) NotifyAttemptFailure(ctx context.Context, kind, club, email string, err error) {
	subject := fmt.Sprintf("[intakeflow] %s for %s", kind, email)
	body := fmt.Sprintf("club=%s email=%s error=%v", club, email, err)
	n.Notify(ctx, subject, body)
}
