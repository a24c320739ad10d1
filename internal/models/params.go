// internal/models/params.go
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Known parameter names.
const (
	ParamClassID     = "class_id"
	ParamStudentID   = "student_id"
	ParamTeacherID   = "teacher_id"
	ParamParentID    = "parent_id"
	ParamSubjectID   = "subject_id"
	ParamDate        = "date"
	ParamStartDate   = "start_date"
	ParamEndDate     = "end_date"
	ParamRollNumber  = "roll_number"
	ParamStudentUSN  = "student_usn"
	ParamClassName   = "class_name"
	ParamSubjectName = "subject_name"
	ParamDesignation = "designation"
	ParamStudentName = "student_name"
	ParamTeacherName = "teacher_name"
	ParamPhone       = "phone"
	ParamListAll     = "list_all"
	ParamDateRef     = "date_ref"
)

// DateLayout is the wire format for date values.
const DateLayout = "2006-01-02"

// Date references produced by the extractor.
const (
	DateRefToday     = "today"
	DateRefTomorrow  = "tomorrow"
	DateRefYesterday = "yesterday"
	DateRefThisWeek  = "this_week"
	DateRefNextWeek  = "next_week"
	DateRefThisMonth = "this_month"
	DateRefRecent    = "recent"
)

var dateKeys = map[string]bool{ParamDate: true, ParamStartDate: true, ParamEndDate: true}

// Kind tags the variant held by a Value.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindString
	KindInt
	KindDate
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindDate:
		return "date"
	case KindBool:
		return "bool"
	}
	return "invalid"
}

// Value is a parameter value: exactly one of string, int, date or bool.
type Value struct {
	kind Kind
	str  string
	num  int64
	date time.Time
	flag bool
}

func StringValue(s string) Value { return Value{kind: KindString, str: s} }
func IntValue(n int64) Value     { return Value{kind: KindInt, num: n} }
func BoolValue(b bool) Value     { return Value{kind: KindBool, flag: b} }

// DateValue keeps only the calendar day of t, in t's location.
func DateValue(t time.Time) Value {
	return Value{kind: KindDate, date: Day(t)}
}

// Day truncates t to midnight in its own location.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func (v Value) Kind() Kind  { return v.kind }
func (v Value) Valid() bool { return v.kind != KindInvalid }

// Interface returns the underlying Go value (string, int64, time.Time or bool).
func (v Value) Interface() interface{} {
	switch v.kind {
	case KindString:
		return v.str
	case KindInt:
		return v.num
	case KindDate:
		return v.date
	case KindBool:
		return v.flag
	}
	return nil
}

func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindInt:
		return strconv.FormatInt(v.num, 10)
	case KindDate:
		return v.date.Format(DateLayout)
	case KindBool:
		return strconv.FormatBool(v.flag)
	}
	return ""
}

func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.str == o.str
	case KindInt:
		return v.num == o.num
	case KindDate:
		return v.date.Equal(o.date)
	case KindBool:
		return v.flag == o.flag
	}
	return true
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.str)
	case KindInt:
		return json.Marshal(v.num)
	case KindDate:
		return json.Marshal(v.date.Format(DateLayout))
	case KindBool:
		return json.Marshal(v.flag)
	}
	return []byte("null"), nil
}

// parseDate accepts YYYY-MM-DD and RFC 3339 timestamps.
func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return Day(t), true
	}
	return time.Time{}, false
}

// ValueFromAny converts a loosely typed value (decoded JSON, LLM output, CLI flags)
// into a Value. Date keys accept YYYY-MM-DD and RFC 3339 strings. Null becomes an
// empty string; arrays and objects are kept as their compact JSON text. Only
// values that cannot be encoded at all report false.
func ValueFromAny(key string, raw interface{}) (Value, bool) {
	switch x := raw.(type) {
	case nil:
		return StringValue(""), true
	case Value:
		return x, x.Valid()
	case string:
		if dateKeys[key] {
			if t, ok := parseDate(x); ok {
				return DateValue(t), true
			}
		}
		return StringValue(x), true
	case bool:
		return BoolValue(x), true
	case int:
		return IntValue(int64(x)), true
	case int32:
		return IntValue(int64(x)), true
	case int64:
		return IntValue(x), true
	case float64:
		if x == math.Trunc(x) && !math.IsInf(x, 0) && math.Abs(x) < 1<<53 {
			return IntValue(int64(x)), true
		}
		return StringValue(strconv.FormatFloat(x, 'f', -1, 64)), true
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return IntValue(n), true
		}
		if f, err := x.Float64(); err == nil {
			return ValueFromAny(key, f)
		}
		return StringValue(x.String()), true
	case time.Time:
		return DateValue(x), true
	case []interface{}, map[string]interface{}:
		b, err := json.Marshal(x)
		if err != nil {
			return Value{}, false
		}
		return StringValue(string(b)), true
	}
	return Value{}, false
}

// Params maps parameter names to values.
type Params map[string]Value

// ParamsFromMap converts a loosely typed mapping. Every key of a decoded JSON
// object survives; only values with no JSON encoding are dropped.
func ParamsFromMap(m map[string]interface{}) Params {
	out := make(Params, len(m))
	for k, raw := range m {
		if v, ok := ValueFromAny(k, raw); ok {
			out[k] = v
		}
	}
	return out
}

func (p *Params) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]interface{}
	if err := dec.Decode(&raw); err != nil {
		return fmt.Errorf("decode params: %w", err)
	}
	*p = ParamsFromMap(raw)
	return nil
}

func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

func (p Params) Has(key string) bool {
	_, ok := p[key]
	return ok
}

// Keys returns the parameter names in sorted order.
func (p Params) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (v Value) asInt() (int64, bool) {
	switch v.kind {
	case KindInt:
		return v.num, true
	case KindString:
		if n, err := strconv.ParseInt(strings.TrimSpace(v.str), 10, 64); err == nil {
			return n, true
		}
	}
	return 0, false
}

func (v Value) asDate() (time.Time, bool) {
	switch v.kind {
	case KindDate:
		return v.date, true
	case KindString:
		return parseDate(v.str)
	}
	return time.Time{}, false
}

// blank reports a value that carries no filter: invalid or an empty string.
func (v Value) blank() bool {
	return !v.Valid() || (v.kind == KindString && strings.TrimSpace(v.str) == "")
}

// IntArg returns the integer under key as a query argument. Numeric strings are
// accepted. def applies only when key is absent or blank; a supplied value that
// is not an integer is passed on as its text so it still constrains the query.
func (p Params) IntArg(key string, def int64) interface{} {
	v, ok := p[key]
	if !ok || v.blank() {
		return def
	}
	if n, ok := v.asInt(); ok {
		return n
	}
	return v.String()
}

// StringOr returns the value under key rendered as a string.
func (p Params) StringOr(key, def string) string {
	v, ok := p[key]
	if !ok || !v.Valid() {
		return def
	}
	return v.String()
}

// DateArg returns the date under key as a query argument. YYYY-MM-DD and
// RFC 3339 strings are accepted; defaults and unparsable values follow IntArg.
func (p Params) DateArg(key string, def time.Time) interface{} {
	v, ok := p[key]
	if !ok || v.blank() {
		return def
	}
	if t, ok := v.asDate(); ok {
		return t
	}
	return v.String()
}

// Flag reports a boolean parameter; missing or non-boolean values are false.
func (p Params) Flag(key string) bool {
	v, ok := p[key]
	if !ok {
		return false
	}
	switch v.kind {
	case KindBool:
		return v.flag
	case KindString:
		b, err := strconv.ParseBool(v.str)
		return err == nil && b
	case KindInt:
		return v.num != 0
	}
	return false
}

// Map renders the parameters as plain Go values, dates formatted as YYYY-MM-DD.
func (p Params) Map() map[string]interface{} {
	out := make(map[string]interface{}, len(p))
	for k, v := range p {
		if v.kind == KindDate {
			out[k] = v.String()
			continue
		}
		out[k] = v.Interface()
	}
	return out
}
