package conversation

import (
	"strings"
	"time"
)

// Intake is one turn of structured input from the language-understanding
// collaborator. Every field is optional; a nil field means the turn did not
// mention it, which is different from mentioning an invalid value. Nothing
// here crosses into the core data model without validation.
type Intake struct {
	Name               *string `json:"name,omitempty"`
	DateOfBirth        *string `json:"date_of_birth,omitempty"`
	Contact            *string `json:"contact,omitempty"`
	RequestedSpecialty *string `json:"requested_specialty,omitempty"`
	RequestedDoctor    *string `json:"requested_doctor,omitempty"`
	RequestedLocation  *string `json:"requested_location,omitempty"`
	InsuranceCarrier   *string `json:"insurance_carrier,omitempty"`
	InsuranceMemberID  *string `json:"insurance_member_id,omitempty"`
	InsuranceGroupID   *string `json:"insurance_group_id,omitempty"`
	SlotChoice         *int    `json:"slot_choice,omitempty"` // 1-based index into the offered list
	Confirm            *bool   `json:"confirm,omitempty"`
	Cancel             *bool   `json:"cancel,omitempty"`
}

var dobLayouts = []string{"2006-01-02", "01/02/2006", "1/2/2006"}

// parseDOB accepts the date formats patients actually type. Returns the zero
// time when none match.
func parseDOB(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	for _, layout := range dobLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// splitName separates a full name into first and last. Middle names fold into
// the last name.
func splitName(full string) (first, last string, ok bool) {
	parts := strings.Fields(strings.TrimSpace(full))
	if len(parts) < 2 {
		return "", "", false
	}
	return parts[0], strings.Join(parts[1:], " "), true
}

func isEmail(s string) bool {
	return strings.Contains(s, "@")
}
