package intent

import (
	"regexp"

	"erp-nlquery/internal/models"
)

// rule is one intent with the patterns that select it.
type rule struct {
	intent   models.Intent
	patterns []*regexp.Regexp
}

func compileRule(intent models.Intent, patterns ...string) rule {
	r := rule{intent: intent}
	for _, p := range patterns {
		r.patterns = append(r.patterns, regexp.MustCompile(p))
	}
	return r
}

// rules is evaluated top to bottom and the first hit wins. Specific intents
// precede general ones whose patterns are lexical supersets of theirs
// ("fee.*summary" must be seen before "fee").
var rules = []rule{
	compileRule(models.IntentMarks,
		`marks?|grades?|scores?|result|marks.*student`,
		`show.*marks|get.*marks|check.*marks`,
		`what.*marks|how.*marks|marks.*for`,
		`test.*result|exam.*result`,
	),
	compileRule(models.IntentAttendanceStats,
		`attendance.*stat|attendance.*percent|attendance.*rate`,
		`attendance.*summary|attendance.*report`,
		`how.*many.*present|how.*many.*absent`,
		`calculate.*attendance|attendance.*this\s+month`,
	),
	compileRule(models.IntentClassPerformance,
		`class.*performance|average.*marks|class.*average`,
		`performance.*class|how.*class.*perform`,
		`highest.*marks|lowest.*marks`,
		`class.*result|performance.*stat`,
	),
	compileRule(models.IntentFeeSummary,
		`fee.*summary|fee.*total|fee.*collect`,
		`total.*fee|pending.*fee.*total`,
		`how.*much.*fee|fee.*stat`,
	),
	compileRule(models.IntentParentInfo,
		`parent|guardian|father|mother`,
		`parent.*info|parent.*contact|parent.*phone`,
		`guardian.*info|guardian.*contact`,
		`contact.*parent|phone.*parent`,
	),
	compileRule(models.IntentDiary,
		`diary|homework|assignment.*diary`,
		`what.*diary|show.*diary|check.*diary`,
		`what.*taught|what.*teacher.*write`,
		`diary.*entry|diary.*note`,
	),
	compileRule(models.IntentCalendar,
		`calendar|events?|upcoming|schedule.*event`,
		`what.*event|show.*event|list.*event`,
		`this\s+week|next\s+week|this\s+month`,
		`holiday|ptm|parent.*teacher.*meeting`,
	),
	compileRule(models.IntentCircular,
		`circular|announcement|notice|notification`,
		`show.*circular|get.*circular|list.*circular`,
		`what.*circular|recent.*circular`,
	),
	compileRule(models.IntentTimetable,
		`timetable|schedule|time\s*table|class\s*schedule`,
		`what.*class.*when|when.*class`,
		`show.*timetable|show.*schedule|get.*timetable`,
	),
	compileRule(models.IntentAttendance,
		`attendance|present|absent|attendance\s*report`,
		`who.*present|who.*absent`,
		`show.*attendance|check.*attendance|get.*attendance`,
	),
	compileRule(models.IntentFeeStatus,
		`fee|fees|payment|pending.*fee|fee.*status`,
		`how\s*much.*pay|outstanding.*fee`,
		`show.*fee|check.*fee|get.*fee`,
	),
	compileRule(models.IntentExamSchedule,
		`exam|test|examination|exam\s*schedule`,
		`when.*exam|exam.*date`,
		`show.*exam|get.*exam|check.*exam`,
	),
	compileRule(models.IntentStudentInfo,
		`student.*info|student.*detail|student.*record`,
		`phone.*student|contact.*student|email.*student`,
		`details.*student|get.*student|show.*student`,
		`roll\s*number|student\s+with`,
		`find.*student|search.*student`,
		`list.*student|all.*student`,
		`whose.*last\s*name|last\s*name.*is`,
		`first\s*name.*is|whose.*first\s*name`,
		`usn\s+for|what.*usn|which.*usn`,
	),
	compileRule(models.IntentTeacherInfo,
		`teacher.*info|teacher.*detail|teacher.*record`,
		`phone.*teacher|contact.*teacher|email.*teacher`,
		`find.*teacher|show.*teacher|get.*teacher`,
		`designation|who\s+has\s+designation`,
		`what.*designation|whats.*designation`,
	),
	compileRule(models.IntentClassInfo,
		`class.*info|class.*detail|class.*list`,
		`how\s*many.*student.*class`,
		`show.*class|get.*class|about.*class`,
	),
	compileRule(models.IntentSubjectInfo,
		`subject|course|syllabus`,
		`what.*subject|subject.*teach`,
		`who.*teach|teaches|teaching`,
		`show.*subject|get.*subject`,
	),
}

// RuleOrder returns the intents in evaluation order.
func RuleOrder() []models.Intent {
	out := make([]models.Intent, len(rules))
	for i, r := range rules {
		out[i] = r.intent
	}
	return out
}
