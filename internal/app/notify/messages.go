package notify

import "fmt"

type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Result builds the notification shown after a store operation finished.
func Result(op Op, eventID string, err error) Notification {
	if err != nil {
		return Notification{
			EventID:  eventID,
			Message:  failureMessage(op),
			Severity: SeverityError,
			Kind:     KindResult,
		}
	}
	return Notification{
		EventID:  eventID,
		Message:  successMessage(op),
		Severity: SeveritySuccess,
		Kind:     KindResult,
	}
}

// LoadFailed is shown when the event list cannot be fetched.
func LoadFailed() Notification {
	return Notification{
		Message:  "Error loading events.",
		Severity: SeverityError,
		Kind:     KindResult,
	}
}

func successMessage(op Op) string {
	switch op {
	case OpCreate:
		return "Event added successfully!"
	case OpUpdate:
		return "Event updated successfully!"
	case OpDelete:
		return "Event deleted successfully!"
	default:
		return "Done."
	}
}

func failureMessage(op Op) string {
	switch op {
	case OpCreate:
		return "Error adding event."
	case OpUpdate:
		return "Error updating event."
	case OpDelete:
		return "Error deleting event."
	default:
		return "Something went wrong."
	}
}

func ReminderMessage(title string, daysRemaining int) string {
	return fmt.Sprintf("Reminder: %s is coming up in %d day(s).", title, daysRemaining)
}
