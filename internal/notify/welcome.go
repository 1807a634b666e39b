package notify

import (
	"fmt"
	"strings"
)

// WelcomeSubject is the subject line of the account welcome email
const WelcomeSubject = "Your Volunteer Hub account is ready"

// WelcomeMessage renders the email sent to a newly provisioned team member with
// their temporary credential and the login link.
func WelcomeMessage(name, email, credential, loginURL string) Message {
	greeting := "Hello,"
	if n := strings.TrimSpace(name); n != "" {
		greeting = fmt.Sprintf("Hello %s,", n)
	}

	body := strings.Join([]string{
		greeting,
		"",
		"Your team application has been approved and an account has been created for you.",
		"",
		"  Email:              " + email,
		"  Temporary password: " + credential,
		"",
		"Sign in here and change your password after your first login:",
		"  " + loginURL,
		"",
		"Your team starts with orientation. We will be in touch with the schedule.",
		"",
		"Volunteer Hub",
	}, "\n")

	return Message{To: email, Subject: WelcomeSubject, Body: body}
}
