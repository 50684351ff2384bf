// Package notify delivers best-effort email notifications for purchase
// and payment events. Delivery happens strictly after the database
// transaction has committed; a failed send is logged and never turns a
// committed operation into a reported failure.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/ganaxdar/autorifa/internal/model"
	"go.uber.org/zap"
)

// Mailer sends one email. Implementations are expected to be safe for
// concurrent use.
type Mailer interface {
	Send(ctx context.Context, to []string, subject, body string) error
}

// sendTimeout bounds each outbound delivery attempt.
const sendTimeout = 15 * time.Second

// Dispatcher fans purchase and resolution events out to the buyer and
// the configured admin addresses. Every notification is at-most-once:
// one attempt, failures logged at Warn.
type Dispatcher struct {
	mailer Mailer
	admins []string
	log    *zap.Logger
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(mailer Mailer, adminEmails []string, log *zap.Logger) *Dispatcher {
	return &Dispatcher{mailer: mailer, admins: adminEmails, log: log}
}

// PurchasePending notifies the buyer that the purchase was received and
// awaits payment verification, and tells the admins to review it.
func (d *Dispatcher) PurchasePending(raffle *model.Raffle, req model.PurchaseRequest, res *model.PurchaseResult) {
	buyerBody := fmt.Sprintf(
		"Hola %s,\n\nRecibimos tu compra de %d número(s) %s en la rifa %q por un total de %.2f %s.\n"+
			"Tus tickets quedan en verificación; te avisaremos cuando el pago sea confirmado.\n\nReferencia de pago: %s\n",
		req.Buyer.Name, len(req.TicketNumbers), joinNumbers(req.TicketNumbers),
		raffle.Title, res.TotalAmount, raffle.Currency, req.PaymentReference,
	)
	d.dispatch([]string{req.Buyer.Email}, "Compra recibida - "+raffle.Title, buyerBody)

	adminBody := fmt.Sprintf(
		"Nueva compra pendiente de verificación.\n\nRifa: %s\nNúmeros: %s\nComprador: %s <%s> %s\n"+
			"Método: %s\nReferencia: %s\nMonto: %.2f %s\n",
		raffle.Title, joinNumbers(req.TicketNumbers), req.Buyer.Name,
		req.Buyer.Email, req.Buyer.Phone, req.PaymentMethod,
		req.PaymentReference, res.TotalAmount, raffle.Currency,
	)
	d.dispatch(d.admins, "Nueva compra pendiente - "+raffle.Title, adminBody)
}

// PaymentConfirmed notifies the buyer that the payment was verified.
func (d *Dispatcher) PaymentConfirmed(raffle *model.Raffle, ticket *model.Ticket) {
	body := fmt.Sprintf(
		"Hola %s,\n\n¡Tu pago fue confirmado! El número %d en la rifa %q ya es tuyo.\n¡Mucha suerte!\n",
		ticket.BuyerName, ticket.TicketNumber, raffle.Title,
	)
	d.dispatch([]string{ticket.BuyerEmail}, "Pago confirmado - "+raffle.Title, body)
}

// PaymentRejected notifies the buyer that the payment could not be
// verified and the number was released.
func (d *Dispatcher) PaymentRejected(raffle *model.Raffle, ticket *model.Ticket) {
	body := fmt.Sprintf(
		"Hola %s,\n\nNo pudimos verificar tu pago del número %d en la rifa %q (referencia %s).\n"+
			"El número quedó disponible nuevamente. Si crees que es un error, contáctanos.\n",
		ticket.BuyerName, ticket.TicketNumber, raffle.Title, ticket.PaymentReference,
	)
	d.dispatch([]string{ticket.BuyerEmail}, "Pago rechazado - "+raffle.Title, body)
}

// WinnerAssigned congratulates the winner and informs the admins.
func (d *Dispatcher) WinnerAssigned(raffle *model.Raffle, winner *model.Winner) {
	if winner.Email != "" {
		body := fmt.Sprintf(
			"Hola %s,\n\n¡Felicidades! Tu número %d ganó la rifa %q.\nNos pondremos en contacto para coordinar la entrega del premio.\n",
			winner.Name, winner.TicketNumber, raffle.Title,
		)
		d.dispatch([]string{winner.Email}, "¡Ganaste! - "+raffle.Title, body)
	}
	adminBody := fmt.Sprintf(
		"Ganador asignado.\n\nRifa: %s\nNúmero: %d\nGanador: %s <%s> %s\n",
		raffle.Title, winner.TicketNumber, winner.Name, winner.Email, winner.Phone,
	)
	d.dispatch(d.admins, "Ganador asignado - "+raffle.Title, adminBody)
}

// dispatch sends in a background goroutine so callers return as soon as
// the database work is committed. The goroutine owns its own timeout
// context and logs its own failure.
func (d *Dispatcher) dispatch(to []string, subject, body string) {
	recipients := make([]string, 0, len(to))
	for _, addr := range to {
		if addr != "" {
			recipients = append(recipients, addr)
		}
	}
	if len(recipients) == 0 {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		if err := d.mailer.Send(ctx, recipients, subject, body); err != nil {
			d.log.Warn("notification delivery failed",
				zap.Strings("to", recipients),
				zap.String("subject", subject),
				zap.Error(err),
			)
			return
		}
		d.log.Debug("notification sent",
			zap.Strings("to", recipients),
			zap.String("subject", subject),
		)
	}()
}

func joinNumbers(nums []int) string {
	s := ""
	for i, n := range nums {
		if i > 0 {
			s += ", "
		}
		s += fmt.Sprintf("%d", n)
	}
	return s
}
