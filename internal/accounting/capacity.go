// Package accounting holds the pure seat and tuition arithmetic shared by the
// services, the dashboard and the admin CLI. Nothing here touches storage.
package accounting

// Capacity describes seat usage for a class offering or a room.
type Capacity struct {
	Capacity     int  `json:"capacity"`
	Active       int  `json:"active"`
	Available    int  `json:"available"`
	OverEnrolled bool `json:"over_enrolled"`
	Excess       int  `json:"excess"`
}

// AvailableSeats returns capacity minus active enrollments, floored at zero.
func AvailableSeats(capacity, active int) int {
	if free := capacity - active; free > 0 {
		return free
	}
	return 0
}

// Availability reports seat usage, flagging over-enrollment with the number
// of learners beyond capacity.
func Availability(capacity, active int) Capacity {
	c := Capacity{
		Capacity:  capacity,
		Active:    active,
		Available: AvailableSeats(capacity, active),
	}
	if active > capacity {
		c.OverEnrolled = true
		c.Excess = active - capacity
	}
	return c
}
