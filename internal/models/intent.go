// internal/models/intent.go
package models

// Intent is one of the closed set of query purposes the service can answer.
type Intent string

const (
	IntentTimetable        Intent = "get_timetable"
	IntentAttendance       Intent = "get_attendance"
	IntentStudentInfo      Intent = "get_student_info"
	IntentTeacherInfo      Intent = "get_teacher_info"
	IntentFeeStatus        Intent = "get_fee_status"
	IntentExamSchedule     Intent = "get_exam_schedule"
	IntentClassInfo        Intent = "get_class_info"
	IntentSubjectInfo      Intent = "get_subject_info"
	IntentMarks            Intent = "get_marks"
	IntentDiary            Intent = "get_diary"
	IntentCalendar         Intent = "get_calendar"
	IntentParentInfo       Intent = "get_parent_info"
	IntentCircular         Intent = "get_circular"
	IntentAttendanceStats  Intent = "get_attendance_stats"
	IntentFeeSummary       Intent = "get_fee_summary"
	IntentClassPerformance Intent = "get_class_performance"
	IntentUnknown          Intent = "unknown"
)

// IntentInfo pairs an intent with its human readable description.
type IntentInfo struct {
	Name        Intent `json:"name"`
	Description string `json:"description"`
}

// supportedIntents is ordered; listing endpoints and prompts rely on it.
var supportedIntents = []IntentInfo{
	{IntentTimetable, "Get class timetable/schedule"},
	{IntentAttendance, "Get attendance records"},
	{IntentStudentInfo, "Get student information (by name, roll number, class)"},
	{IntentTeacherInfo, "Get teacher information (by name, designation)"},
	{IntentFeeStatus, "Get fee payment status"},
	{IntentExamSchedule, "Get exam schedule"},
	{IntentClassInfo, "Get class information"},
	{IntentSubjectInfo, "Get subject information and who teaches it"},
	{IntentMarks, "Get student marks and test results"},
	{IntentDiary, "Get class diary and homework entries"},
	{IntentCalendar, "Get calendar events, holidays and meetings"},
	{IntentParentInfo, "Get parent/guardian contact information"},
	{IntentCircular, "Get circulars and announcements"},
	{IntentAttendanceStats, "Get attendance statistics for a class"},
	{IntentFeeSummary, "Get fee collection summary for a class"},
	{IntentClassPerformance, "Get class performance (average, highest, lowest marks)"},
}

// SupportedIntents returns every intent except unknown, in catalog order.
func SupportedIntents() []IntentInfo {
	out := make([]IntentInfo, len(supportedIntents))
	copy(out, supportedIntents)
	return out
}

// ParseIntent maps a name to a supported intent. Anything else is unknown.
func ParseIntent(name string) Intent {
	for _, info := range supportedIntents {
		if string(info.Name) == name {
			return info.Name
		}
	}
	return IntentUnknown
}

// IsSupported reports whether the intent is a real, answerable intent.
func (i Intent) IsSupported() bool {
	return i != IntentUnknown && ParseIntent(string(i)) == i
}

func (i Intent) String() string {
	return string(i)
}

// Description returns the catalog description, or an empty string for unknown.
func (i Intent) Description() string {
	for _, info := range supportedIntents {
		if info.Name == i {
			return info.Description
		}
	}
	return ""
}
