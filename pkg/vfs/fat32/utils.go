package fat32

import "time"

// FAT timestamps pack a date as year-since-1980/month/day and a time as
// hour/minute/two-second units.

func timeToFAT(t time.Time) (date, tod uint16) {
	year := t.Year()
	if year < 1980 {
		year = 1980
	}
	if year > 2107 {
		year = 2107
	}
	date = uint16(year-1980)<<9 | uint16(t.Month())<<5 | uint16(t.Day())
	tod = uint16(t.Hour())<<11 | uint16(t.Minute())<<5 | uint16(t.Second()/2)
	return date, tod
}

func fatToTime(date, tod uint16) time.Time {
	year := int(date>>9) + 1980
	month := time.Month((date >> 5) & 0x0F)
	day := int(date & 0x1F)
	hour := int(tod >> 11)
	minute := int((tod >> 5) & 0x3F)
	second := int(tod&0x1F) * 2
	if month < time.January || month > time.December {
		month = time.January
	}
	if day == 0 {
		day = 1
	}
	return time.Date(year, month, day, hour, minute, second, 0, time.UTC)
}
