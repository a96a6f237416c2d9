package entity

// SlotKey identifies a time slot by date and time range. Dates are
// "YYYY-MM-DD", times are "HH:MM"; both come straight from the client and
// are matched verbatim against stored slots.
type SlotKey struct {
	Date      string `json:"date" db:"slot_date"`
	StartTime string `json:"start_time" db:"start_time"`
	EndTime   string `json:"end_time" db:"end_time"`
}

type TimeSlot struct {
	ID            string `json:"id" db:"slot_id"`
	Date          string `json:"date" db:"slot_date"`
	StartTime     string `json:"start_time" db:"start_time"`
	EndTime       string `json:"end_time" db:"end_time"`
	MaxAdmissions int    `json:"max_admissions" db:"max_admissions"`
}

func (s TimeSlot) Key() SlotKey {
	return SlotKey{Date: s.Date, StartTime: s.StartTime, EndTime: s.EndTime}
}
