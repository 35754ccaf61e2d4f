package integration

import (
	"fmt"
	"time"
)

// TestResident generates unique resident details using a timestamp
func TestResident(suffix string) (name, email string) {
	ts := time.Now().UnixNano()
	name = "Resident " + suffix
	email = fmt.Sprintf("resident-%d-%s@example.com", ts, suffix)
	return
}
