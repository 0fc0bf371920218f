package cvc

import (
	"fmt"
	"time"
)

// ParseDate decodes a certificate date: six unpacked BCD digits YYMMDD, one
// digit per byte, in the years 2000 to 2099.
func ParseDate(b []byte) (time.Time, error) {
	if len(b) != 6 {
		return time.Time{}, fmt.Errorf("date must be 6 digits, got %d", len(b))
	}
	for i, d := range b {
		if d > 9 {
			return time.Time{}, fmt.Errorf("date digit %d is %02X", i, d)
		}
	}

	year := 2000 + int(b[0])*10 + int(b[1])
	month := time.Month(int(b[2])*10 + int(b[3]))
	day := int(b[4])*10 + int(b[5])

	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if t.Month() != month || t.Day() != day {
		return time.Time{}, fmt.Errorf("invalid date %d%d%d%d-%d%d", b[0], b[1], b[2], b[3], b[4], b[5])
	}
	return t, nil
}

// EncodeDate is the inverse of ParseDate.
func EncodeDate(t time.Time) []byte {
	t = t.UTC()
	yy, mm, dd := t.Year()%100, int(t.Month()), t.Day()
	return []byte{byte(yy / 10), byte(yy % 10), byte(mm / 10), byte(mm % 10), byte(dd / 10), byte(dd % 10)}
}
