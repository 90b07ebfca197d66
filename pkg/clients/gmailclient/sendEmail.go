package gmailclient

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"mime/multipart"
	"net/textproto"

	"go.uber.org/zap"
	"google.golang.org/api/gmail/v1"
)

// Attachment is an optional file sent alongside the body
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Email is one outgoing message
type Email struct {
	To         string
	Subject    string
	Body       string
	Attachment *Attachment
}

// SendEmail sends one message, waiting for the send limiter first
func (c *Client) SendEmail(ctx context.Context, email Email) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("failed waiting to send email: %w", err)
	}

	raw, err := buildMessage(c.from, email)
	if err != nil {
		return err
	}

	msg := &gmail.Message{Raw: base64.URLEncoding.EncodeToString(raw)}
	if _, err := c.service.Users.Messages.Send("me", msg).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	c.logger.Debug("Sent email", zap.String("to", email.To), zap.String("subject", email.Subject))
	return nil
}

// buildMessage renders an RFC 2822 message. Plain messages are a single
// text part; messages with an attachment become multipart/mixed.
func buildMessage(from string, email Email) ([]byte, error) {
	var buf bytes.Buffer

	if from != "" {
		fmt.Fprintf(&buf, "From: %s\r\n", from)
	}
	fmt.Fprintf(&buf, "To: %s\r\n", email.To)
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", email.Subject))
	buf.WriteString("MIME-Version: 1.0\r\n")

	if email.Attachment == nil {
		buf.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n\r\n")
		buf.WriteString(email.Body)
		return buf.Bytes(), nil
	}

	mw := multipart.NewWriter(&buf)
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", mw.Boundary())

	textPart, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"text/plain; charset=\"utf-8\""},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create text part: %w", err)
	}
	if _, err := textPart.Write([]byte(email.Body)); err != nil {
		return nil, fmt.Errorf("failed to write text part: %w", err)
	}

	contentType := email.Attachment.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	filePart, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {contentType},
		"Content-Disposition":       {fmt.Sprintf("attachment; filename=%q", email.Attachment.Filename)},
		"Content-Transfer-Encoding": {"base64"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create attachment part: %w", err)
	}
	if _, err := filePart.Write([]byte(base64.StdEncoding.EncodeToString(email.Attachment.Data))); err != nil {
		return nil, fmt.Errorf("failed to write attachment part: %w", err)
	}

	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart message: %w", err)
	}
	return buf.Bytes(), nil
}
