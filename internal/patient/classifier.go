package patient

import "time"

// Classification is the result of the new/returning determination. Duration is
// fixed at classification time and copied onto the appointment at booking.
type Classification struct {
	Category Category
	Duration time.Duration
}

// Classifier maps a patient-store lookup result to a category and appointment
// duration. The durations come from configuration, not business constants.
type Classifier struct {
	NewPatientDuration       time.Duration
	ReturningPatientDuration time.Duration
}

// Classify is a pure function of the lookup result: a nil match means the
// caller has no record and is classified as new.
func (c Classifier) Classify(match *Patient) Classification {
	if match == nil {
		return Classification{Category: CategoryNew, Duration: c.NewPatientDuration}
	}
	return Classification{Category: CategoryReturning, Duration: c.ReturningPatientDuration}
}
