package telegram

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ErrNoRecipient is recorded when no chat id is configured.
var ErrNoRecipient = errors.New("no recipient chat id configured")

// Status is the terminal state of a delivery.
type Status int

const (
	// Failed means nothing reached the recipient.
	Failed Status = iota
	// Delivered means the report was accepted with HTML formatting.
	Delivered
	// DeliveredPlain means HTML was rejected and the plain-text retry
	// was accepted.
	DeliveredPlain
	// AlertSent means the report was empty and the canned alert went out.
	AlertSent
)

func (s Status) String() string {
	switch s {
	case Delivered:
		return "delivered"
	case DeliveredPlain:
		return "delivered-plain"
	case AlertSent:
		return "alert-sent"
	default:
		return "failed"
	}
}

// Outcome describes what happened to one report.
type Outcome struct {
	Status   Status
	Attempts int
	// Err is the transport error of the last attempt, if any.
	Err error
	// Description is the API's explanation of the last rejection.
	Description string
}

// Sent reports whether something reached the recipient.
func (o Outcome) Sent() bool {
	return o.Status != Failed
}

// EmptyReportAlert is the fixed text sent instead of an empty report.
func EmptyReportAlert(variant string) string {
	if variant == "" {
		variant = "dbrain"
	}
	return fmt.Sprintf("⚠️ %s report is empty: the agent returned no content.", variant)
}

// Deliverer sends reports to one recipient.
type Deliverer struct {
	sender  Sender
	chatID  string
	variant string
}

// NewDeliverer creates a deliverer for chatID. variant names the report in
// the empty-report alert.
func NewDeliverer(sender Sender, chatID, variant string) *Deliverer {
	return &Deliverer{sender: sender, chatID: chatID, variant: variant}
}

// ForVariant returns a copy of d that names variant in its alerts.
func (d *Deliverer) ForVariant(variant string) *Deliverer {
	cp := *d
	cp.variant = variant
	return &cp
}

// ChatID returns the recipient.
func (d *Deliverer) ChatID() string {
	return d.chatID
}

// Deliver sends text as HTML, retrying once as plain text when the API
// rejects it. Whitespace-only text is replaced by the empty-report alert.
// Deliver never returns an error; failures are described by the Outcome.
func (d *Deliverer) Deliver(ctx context.Context, text string) Outcome {
	if d.chatID == "" {
		return Outcome{Status: Failed, Err: ErrNoRecipient}
	}

	if strings.TrimSpace(text) == "" {
		resp, err := d.sender.SendMessage(ctx, d.chatID, EmptyReportAlert(d.variant), "")
		out := Outcome{Attempts: 1, Err: err}
		switch {
		case err != nil:
			out.Status = Failed
		case !resp.OK:
			out.Status = Failed
			out.Description = resp.Description
		default:
			out.Status = AlertSent
		}
		return out
	}

	resp, err := d.sender.SendMessage(ctx, d.chatID, text, ParseModeHTML)
	if err != nil {
		return Outcome{Status: Failed, Attempts: 1, Err: err}
	}
	if resp.OK {
		return Outcome{Status: Delivered, Attempts: 1}
	}

	// Formatting rejected: one plain retry of the same text.
	rejected := resp.Description
	resp, err = d.sender.SendMessage(ctx, d.chatID, text, "")
	if err != nil {
		return Outcome{Status: Failed, Attempts: 2, Err: err, Description: rejected}
	}
	if !resp.OK {
		return Outcome{Status: Failed, Attempts: 2, Description: resp.Description}
	}
	return Outcome{Status: DeliveredPlain, Attempts: 2, Description: rejected}
}

// Alert sends a plain-text operator alert.
func (d *Deliverer) Alert(ctx context.Context, text string) error {
	if d.chatID == "" {
		return ErrNoRecipient
	}
	resp, err := d.sender.SendMessage(ctx, d.chatID, text, "")
	if err != nil {
		return err
	}
	if !resp.OK {
		return errors.Errorf("telegram rejected alert: %s", resp.Description)
	}
	return nil
}
