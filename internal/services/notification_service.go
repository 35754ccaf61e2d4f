package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/khayashi/engawa/internal/models"
	pkglogger "github.com/khayashi/engawa/pkg/logger"
)

// ResidentContact is the minimal directory entry needed to notify a resident.
type ResidentContact struct {
	Name  string
	Email string
}

// ResidentDirectory resolves user IDs to contact details
type ResidentDirectory interface {
	GetContacts(ctx context.Context, userIDs []string) (map[string]ResidentContact, error)
}

// SESMatchNotifier emails both residents of a new tea time match via AWS SES.
// Delivery is best effort; the matching run never depends on it.
type SESMatchNotifier struct {
	sesClient   *ses.Client
	directory   ResidentDirectory
	fromAddress string
	portalURL   string
	logger      *slog.Logger
}

// NewSESMatchNotifier creates a new SESMatchNotifier
func NewSESMatchNotifier(region, fromAddress, portalURL string, directory ResidentDirectory, logger *slog.Logger) (*SESMatchNotifier, error) {
	cfg, err := config.LoadDefaultConfig(context.Background(), config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &SESMatchNotifier{
		sesClient:   ses.NewFromConfig(cfg),
		directory:   directory,
		fromAddress: fromAddress,
		portalURL:   portalURL,
		logger:      logger,
	}, nil
}

// NotifyMatch sends one email to each resident of the pair, naming their
// partner and linking to the tea time page.
func (n *SESMatchNotifier) NotifyMatch(ctx context.Context, match models.TeaTimeMatch) error {
	contacts, err := n.directory.GetContacts(ctx, []string{match.User1ID, match.User2ID})
	if err != nil {
		return fmt.Errorf("failed to resolve match contacts: %w", err)
	}

	user1, ok1 := contacts[match.User1ID]
	user2, ok2 := contacts[match.User2ID]
	if !ok1 || !ok2 {
		return fmt.Errorf("match %s: contact missing for one or both residents", match.ID)
	}

	if err := n.sendMatchEmail(ctx, user1, user2); err != nil {
		return err
	}
	return n.sendMatchEmail(ctx, user2, user1)
}

func (n *SESMatchNotifier) sendMatchEmail(ctx context.Context, to, partner ResidentContact) error {
	teaTimeLink := n.portalURL + "/tea-time"

	htmlBody := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
    <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
        <h1>☕ You have a new tea time match!</h1>
        <p>Hi %s,</p>
        <p>This week you are paired with <strong>%s</strong> for tea time.
        Reach out and find a moment that works for both of you.</p>
        <p><a href="%s" style="display: inline-block; background-color: #0066cc; color: white; padding: 12px 24px; text-decoration: none; border-radius: 4px;">Open tea time</a></p>
        <p style="color: #666; font-size: 12px;">You receive this because tea time matching is enabled in your portal settings. You can opt out any time.</p>
    </div>
</body>
</html>
`, to.Name, partner.Name, teaTimeLink)

	textBody := fmt.Sprintf(`You have a new tea time match!

Hi %s,

This week you are paired with %s for tea time. Reach out and find a moment
that works for both of you.

%s

You receive this because tea time matching is enabled in your portal
settings. You can opt out any time.
`, to.Name, partner.Name, teaTimeLink)

	input := &ses.SendEmailInput{
		Source: aws.String(n.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{to.Email},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String("Your tea time match this week"),
			},
			Body: &types.Body{
				Html: &types.Content{Data: aws.String(htmlBody)},
				Text: &types.Content{Data: aws.String(textBody)},
			},
		},
	}

	result, err := n.sesClient.SendEmail(ctx, input)
	if err != nil {
		n.logger.Error("failed to send match notification via SES",
			slog.String("email", pkglogger.SanitizedEmail(to.Email)),
			slog.Any("error", err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	n.logger.Info("match notification sent",
		slog.String("email", pkglogger.SanitizedEmail(to.Email)),
		slog.String("message_id", *result.MessageId))

	return nil
}
