package remotezip

import (
	"fmt"
	"time"
)

// DOSTime is a modification time decoded from the packed MS-DOS date and
// time words used in ZIP headers. Seconds are not kept.
type DOSTime struct {
	Year   int
	Month  int
	Day    int
	Hour   int
	Minute int
}

// decodeDOSTime unpacks date (7 bit year since 1980, 4 bit month, 5 bit
// day) and time (5 bit hour, 6 bit minute, 5 bit seconds/2).
func decodeDOSTime(dosDate, dosTime uint16) DOSTime {
	return DOSTime{
		Year:   1980 + int(dosDate>>9)&0x7f,
		Month:  int(dosDate>>5) & 0x0f,
		Day:    int(dosDate) & 0x1f,
		Hour:   int(dosTime>>11) & 0x1f,
		Minute: int(dosTime>>5) & 0x3f,
	}
}

// String formats t as "2006-01-02 15:04".
func (t DOSTime) String() string {
	return fmt.Sprintf("%04d-%02d-%02d %02d:%02d", t.Year, t.Month, t.Day, t.Hour, t.Minute)
}

// Time returns t as a UTC time.Time. Out of range fields are normalized
// the way time.Date does it.
func (t DOSTime) Time() time.Time {
	return time.Date(t.Year, time.Month(t.Month), t.Day, t.Hour, t.Minute, 0, 0, time.UTC)
}
