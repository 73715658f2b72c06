package notify

import (
	"fmt"
	"time"
)

const apptTimeLayout = "Monday, January 2 at 3:04 PM"

// Composer builds the tier-specific wording. The clinic name comes from
// configuration so one deployment can serve differently branded practices.
type Composer struct {
	ClinicName string
}

func (c Composer) Confirmation(patientName, doctorName string, start time.Time, duration time.Duration) Message {
	return Message{
		Kind:    KindConfirmation,
		Subject: fmt.Sprintf("Appointment confirmed - %s", c.ClinicName),
		Body: fmt.Sprintf(
			"Hi %s, your %d-minute appointment with %s at %s is confirmed for %s. Reply to this message if you need to make changes.",
			patientName, int(duration.Minutes()), doctorName, c.ClinicName, start.Format(apptTimeLayout),
		),
	}
}

func (c Composer) Reminder(kind Kind, patientName, doctorName string, start time.Time) Message {
	switch kind {
	case KindReminder7d:
		return Message{
			Kind:    kind,
			Subject: fmt.Sprintf("Upcoming appointment - %s", c.ClinicName),
			Body: fmt.Sprintf(
				"Hi %s, this is a reminder that your appointment with %s is coming up on %s. Please complete your intake forms before your visit.",
				patientName, doctorName, start.Format(apptTimeLayout),
			),
		}
	case KindReminder24h:
		return Message{
			Kind:    kind,
			Subject: fmt.Sprintf("Your appointment is tomorrow - %s", c.ClinicName),
			Body: fmt.Sprintf(
				"Hi %s, your appointment with %s is tomorrow, %s. Have your intake forms been filled out? Reply if you need to cancel or reschedule.",
				patientName, doctorName, start.Format(apptTimeLayout),
			),
		}
	case KindReminder2h:
		return Message{
			Kind:    kind,
			Subject: fmt.Sprintf("See you soon - %s", c.ClinicName),
			Body: fmt.Sprintf(
				"Hi %s, your appointment with %s starts at %s today. Please confirm you are still able to attend.",
				patientName, doctorName, start.Format("3:04 PM"),
			),
		}
	default:
		return Message{
			Kind:    kind,
			Subject: fmt.Sprintf("Appointment reminder - %s", c.ClinicName),
			Body: fmt.Sprintf(
				"Hi %s, you have an appointment with %s on %s.",
				patientName, doctorName, start.Format(apptTimeLayout),
			),
		}
	}
}
