// Package mail is the outbound delivery collaborator. Actual transport and
// templates live outside this repository; callers treat dispatch as
// fire-and-forget and never fail a business operation on a mail error.
package mail

import (
	"context"

	"sitecraft.dev/cms/internal/obs"
	"sitecraft.dev/cms/internal/user"
)

// Mailer dispatches the two notifications the auth core produces.
type Mailer interface {
	SendOTP(ctx context.Context, u *user.User, code string) error
	SendWelcome(ctx context.Context, u *user.User, tempPassword string) error
}

// LogMailer writes the would-be deliveries to the structured log. It stands
// in for the real delivery service in development and tests.
type LogMailer struct{}

func (LogMailer) SendOTP(_ context.Context, u *user.User, code string) error {
	obs.LogEvent(map[string]any{
		"event": "mail.otp",
		"email": u.Email,
		"code":  code,
	})
	return nil
}

func (LogMailer) SendWelcome(_ context.Context, u *user.User, _ string) error {
	obs.LogEvent(map[string]any{
		"event": "mail.welcome",
		"email": u.Email,
	})
	return nil
}
