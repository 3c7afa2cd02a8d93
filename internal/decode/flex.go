package decode

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// DateKeyLayout is the format of every chart date key.
const DateKeyLayout = "2006-01-02"

// epochMillisThreshold separates epoch seconds from epoch milliseconds.
// 1e11 seconds is in the year 5138; 1e11 milliseconds is in 1973.
const epochMillisThreshold = 1e11

var dateLayouts = []string{
	DateKeyLayout,
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// FlexString unmarshals from both string and number JSON values.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler. Values that are neither
// strings nor numbers decode to "".
func (f *FlexString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*f = FlexString(n.String())
		return nil
	}
	*f = ""
	return nil
}

// FlexFloat unmarshals from numbers and numeric strings. Valid is false
// for null, missing or unparseable values.
type FlexFloat struct {
	Value float64
	Valid bool
}

// UnmarshalJSON implements json.Unmarshaler. It never fails.
func (f *FlexFloat) UnmarshalJSON(data []byte) error {
	*f = FlexFloat{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil
		}
		f.Value, f.Valid = ParseNumber(s)
		return nil
	}
	v, err := strconv.ParseFloat(string(data), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	f.Value, f.Valid = v, true
	return nil
}

// Ptr returns a pointer to the value, or nil when invalid.
func (f FlexFloat) Ptr() *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Value
	return &v
}

// ParseNumber parses a number leniently: currency symbols, percent signs,
// thousands separators and surrounding quotes are ignored. Empty values and
// placeholders such as "N/A" or "-" report false.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(strings.Trim(strings.TrimSpace(s), `"`))
	s = strings.NewReplacer("$", "", "€", "", "£", "", "%", "", ",", "", " ", "").Replace(s)
	switch strings.ToLower(s) {
	case "", "-", "n/a", "na", "null", "none":
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// ParseFlexDate reads a JSON date given as epoch seconds, epoch
// milliseconds, or an ISO-8601 string. It reports false for anything else.
func ParseFlexDate(raw json.RawMessage) (time.Time, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return time.Time{}, false
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}, false
		}
		return ParseDateString(s)
	}
	v, err := strconv.ParseFloat(string(raw), 64)
	if err != nil {
		return time.Time{}, false
	}
	return fromEpoch(v), true
}

// ParseDateString parses an ISO-8601 date or timestamp, or an epoch number
// written as a string.
func ParseDateString(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return fromEpoch(v), true
	}
	return time.Time{}, false
}

// DateKey formats t as a chart date key in UTC.
func DateKey(t time.Time) string {
	return t.UTC().Format(DateKeyLayout)
}

func fromEpoch(v float64) time.Time {
	if math.Abs(v) >= epochMillisThreshold {
		return time.UnixMilli(int64(v)).UTC()
	}
	return time.Unix(int64(v), 0).UTC()
}
