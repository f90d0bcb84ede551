package telegram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const notOK = `{"ok":false,"error_code":400,"description":"Bad Request: can't parse entities"}`

func TestDeliverHTML(t *testing.T) {
	stub, client := newStub(t)
	d := NewDeliverer(client, "42", "morning")

	out := d.Deliver(context.Background(), "🌅 <b>Morning</b>")

	assert.Equal(t, Delivered, out.Status)
	assert.Equal(t, 1, out.Attempts)
	assert.True(t, out.Sent())
	calls := stub.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, ParseModeHTML, calls[0].ParseMode)
}

func TestDeliverRetriesPlainOnce(t *testing.T) {
	stub, client := newStub(t, notOK, `{"ok":true}`)
	d := NewDeliverer(client, "42", "morning")

	out := d.Deliver(context.Background(), "<b>unclosed")

	assert.Equal(t, DeliveredPlain, out.Status)
	assert.Equal(t, 2, out.Attempts)
	calls := stub.calls()
	require.Len(t, calls, 2)
	assert.Equal(t, ParseModeHTML, calls[0].ParseMode)
	assert.Empty(t, calls[1].ParseMode)
	assert.Equal(t, calls[0].Text, calls[1].Text)
}

func TestDeliverNeverRetriesTwice(t *testing.T) {
	stub, client := newStub(t, notOK)
	d := NewDeliverer(client, "42", "evening")

	out := d.Deliver(context.Background(), "<b>unclosed")

	assert.Equal(t, Failed, out.Status)
	assert.Equal(t, 2, out.Attempts)
	assert.Contains(t, out.Description, "can't parse entities")
	assert.NoError(t, out.Err)
	assert.Len(t, stub.calls(), 2)
}

func TestDeliverEmptySendsAlert(t *testing.T) {
	for _, text := range []string{"", "   ", "\n\t\n"} {
		stub, client := newStub(t)
		d := NewDeliverer(client, "42", "morning")

		out := d.Deliver(context.Background(), text)

		assert.Equal(t, AlertSent, out.Status)
		calls := stub.calls()
		require.Len(t, calls, 1)
		assert.Equal(t, EmptyReportAlert("morning"), calls[0].Text)
		assert.Empty(t, calls[0].ParseMode)
	}
}

func TestDeliverEmptyAlertRejected(t *testing.T) {
	stub, client := newStub(t, notOK)
	d := NewDeliverer(client, "42", "morning")

	out := d.Deliver(context.Background(), " ")

	assert.Equal(t, Failed, out.Status)
	assert.Len(t, stub.calls(), 1)
}

func TestDeliverNoRecipient(t *testing.T) {
	stub, client := newStub(t)
	d := NewDeliverer(client, "", "morning")

	out := d.Deliver(context.Background(), "report")

	assert.Equal(t, Failed, out.Status)
	assert.ErrorIs(t, out.Err, ErrNoRecipient)
	assert.Empty(t, stub.calls())
}

type failingSender struct{ calls int }

func (f *failingSender) SendMessage(context.Context, string, string, string) (*APIResponse, error) {
	f.calls++
	return nil, errors.New("connection refused")
}

func TestDeliverTransportErrorIsNotRetried(t *testing.T) {
	sender := &failingSender{}
	d := NewDeliverer(sender, "42", "morning")

	out := d.Deliver(context.Background(), "report")

	assert.Equal(t, Failed, out.Status)
	assert.Equal(t, 1, sender.calls)
	assert.EqualError(t, out.Err, "connection refused")
}

func TestDeliverUnreachableServer(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	d := NewDeliverer(NewClient("t", WithBaseURL(url)), "42", "morning")

	out := d.Deliver(context.Background(), "report")

	assert.Equal(t, Failed, out.Status)
	assert.Error(t, out.Err)
}

func TestAlert(t *testing.T) {
	stub, client := newStub(t)
	d := NewDeliverer(client, "42", "morning")

	require.NoError(t, d.Alert(context.Background(), "❌ boom"))
	calls := stub.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "❌ boom", calls[0].Text)
	assert.Empty(t, calls[0].ParseMode)

	_, client = newStub(t, notOK)
	assert.Error(t, NewDeliverer(client, "42", "morning").Alert(context.Background(), "x"))
	assert.ErrorIs(t, NewDeliverer(client, "", "").Alert(context.Background(), "x"), ErrNoRecipient)
}

func TestForVariant(t *testing.T) {
	d := NewDeliverer(&failingSender{}, "42", "")
	m := d.ForVariant("weekly")
	assert.Equal(t, "42", m.ChatID())
	assert.Equal(t, "weekly", m.variant)
	assert.Equal(t, "", d.variant)
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "delivered", Delivered.String())
	assert.Equal(t, "delivered-plain", DeliveredPlain.String())
	assert.Equal(t, "alert-sent", AlertSent.String())
	assert.Equal(t, "failed", Failed.String())
}
