package mailer

import (
	"fmt"

	"github.com/skip2/go-qrcode"

	"parktickets/entity"
	"parktickets/gateway"
)

const qrImageSize = 256

// ComposeConfirmation builds the booking confirmation email: ticket
// details in the body and the gate QR code attached as a PNG.
func ComposeConfirmation(ticket entity.Ticket, isRetry bool) (gateway.EmailMessage, error) {
	qrContent := ticket.QRData
	if qrContent == "" {
		qrContent = ticket.TicketID
	}

	png, err := qrcode.Encode(qrContent, qrcode.Medium, qrImageSize)
	if err != nil {
		return gateway.EmailMessage{}, fmt.Errorf("could not encode QR code: %w", err)
	}

	subject := fmt.Sprintf("Your booking %s is confirmed", ticket.TicketID)
	if isRetry {
		subject = fmt.Sprintf("Your ticket %s", ticket.TicketID)
	}

	return gateway.EmailMessage{
		To:      ticket.Email,
		Subject: subject,
		HTML:    confirmationBody(ticket, isRetry),
		Attachments: []gateway.EmailAttachment{
			{
				Filename:    ticket.TicketID + ".png",
				ContentType: "image/png",
				Content:     png,
			},
		},
	}, nil
}

func confirmationBody(ticket entity.Ticket, isRetry bool) string {
	intro := "Thanks for your booking! Show the attached QR code at the entrance."
	if isRetry {
		intro = "Here is your ticket again. Show the attached QR code at the entrance."
	}

	admissions := fmt.Sprintf("%d", ticket.TotalAdmissions())
	if ticket.BundleName != "" {
		admissions = fmt.Sprintf("%d (includes bundle %q)", ticket.TotalAdmissions(), ticket.BundleName)
	}

	return fmt.Sprintf(`<html><body>
<p>Hi %s,</p>
<p>%s</p>
<table>
<tr><td>Ticket</td><td><strong>%s</strong></td></tr>
<tr><td>Date</td><td>%s</td></tr>
<tr><td>Time</td><td>%s &ndash; %s</td></tr>
<tr><td>Admissions</td><td>%s</td></tr>
<tr><td>Amount paid</td><td>%s</td></tr>
</table>
<p>See you soon!</p>
</body></html>`,
		ticket.Name,
		intro,
		ticket.TicketID,
		ticket.Date,
		ticket.StartTime, ticket.EndTime,
		admissions,
		ticket.Amount.StringFixed(2),
	)
}
