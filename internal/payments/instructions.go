package payments

import (
	"fmt"
)

// Instructions describe how to pay.
type Instructions struct {
	Method   string
	Number   string
	Name     string
	Amount   string
	Duration string
}

// Instructions renders the configured payment details.
func (s *Service) Instructions() Instructions {
	return Instructions{
		Method:   s.opts.Method,
		Number:   s.opts.Number,
		Name:     s.opts.Name,
		Amount:   fmt.Sprintf("KES %.0f", s.opts.Amount),
		Duration: fmt.Sprintf("%d days", s.opts.GrantDays),
	}
}

// Text is the message shown before a user sends their proof.
func (i Instructions) Text() string {
	account := "Number: " + i.Number + "\n"
	if i.Name != "" {
		account += "Name: " + i.Name + "\n"
	}
	return "💳 PAYMENT INSTRUCTIONS\n\n" +
		"Method: " + i.Method + "\n" +
		account +
		"Amount: " + i.Amount + "\n" +
		"Duration: " + i.Duration + "\n\n" +
		"Steps to complete payment:\n" +
		"1. Send " + i.Amount + " to the number above\n" +
		"2. Take a CLEAR screenshot of payment confirmation\n" +
		"3. Send the screenshot to this bot\n" +
		"4. Wait for admin approval (usually within 24 hours)\n\n" +
		"⚠️ Important Notes:\n" +
		"• Include your username in payment reference\n" +
		"• Screenshot must show transaction details\n" +
		"• Do not edit or crop the screenshot\n\n" +
		"Send your payment screenshot now:"
}
