package gmailclient

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"google.golang.org/api/gmail/v1"

	"github.com/jakechorley/escort-dispatch/pkg/core/model"
	"github.com/jakechorley/escort-dispatch/pkg/core/services"
)

// EmailInterval is the minimum gap between two sends, to stay under Gmail rate limits
const EmailInterval = 3 * time.Second

var _ services.Notifier = (*Client)(nil)

// SendEmail sends a plain-text email, waiting out the send interval first
func (c *Client) SendEmail(ctx context.Context, to, subject, body string) error {
	c.sendMutex.Lock()
	defer c.sendMutex.Unlock()

	if !c.lastSendTime.IsZero() {
		if wait := c.interval - time.Since(c.lastSendTime); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}

	msg := &gmail.Message{Raw: encodeMessage(c.sender, to, subject, body)}
	if err := c.send(ctx, c.userID, msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	c.lastSendTime = time.Now()
	return nil
}

// Notify emails a rider; riders without an email address are reported as not sent
func (c *Client) Notify(ctx context.Context, rider model.Rider, message services.Message) services.NotifyResult {
	result := services.NotifyResult{RiderID: rider.ID, Channel: "email"}
	if rider.Email == "" {
		result.Err = fmt.Errorf("rider %s has no email address", rider.ID)
		return result
	}
	if err := c.SendEmail(ctx, rider.Email, message.Subject, message.Body); err != nil {
		result.Err = err
		return result
	}
	result.Sent = true
	return result
}

// encodeMessage builds an RFC 2822 message and base64url-encodes it for the Gmail API
func encodeMessage(from, to, subject, body string) string {
	var b strings.Builder
	if from != "" {
		fmt.Fprintf(&b, "From: %s\r\n", from)
	}
	fmt.Fprintf(&b, "To: %s\r\nSubject: %s\r\nContent-Type: text/plain; charset=\"UTF-8\"\r\n\r\n%s", to, subject, body)
	return base64.URLEncoding.EncodeToString([]byte(b.String()))
}
