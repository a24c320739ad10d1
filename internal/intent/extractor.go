package intent

import (
	"regexp"

	"erp-nlquery/internal/models"
)

var (
	usnRe       = regexp.MustCompile(`(?i)usn\s+([A-Z0-9]+)`)
	rollRe      = regexp.MustCompile(`(?i)roll\s*number\s*(\d+)`)
	classRe     = regexp.MustCompile(`(?i)class\s+(\d+[A-Z]?)`)
	classUpRe   = regexp.MustCompile(`CLASS\s+(\d+)`)
	designRe    = regexp.MustCompile(`(?i)designation\s+(?:as|is|of)?\s*(\w+)`)
	studentRe   = regexp.MustCompile(`student\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+)?)`)
	forOfRe     = regexp.MustCompile(`(?:for|of)\s+(?:student\s+)?([A-Z][a-z]+(?:\s+[A-Z][a-z]+)?)`)
	lastNameRe  = regexp.MustCompile(`(?i)last\s*name\s+(?:is|of)?\s*([A-Za-z]+)`)
	firstNameRe = regexp.MustCompile(`(?i)first\s*name\s+(?:is|of)?\s*([A-Za-z]+)`)
	phoneRe     = regexp.MustCompile(`(?i)phone\s+(?:number\s+)?(\d{10})`)
	listAllRe   = regexp.MustCompile(`(?i)list\s+all|all\s+(?:student|teacher|class)`)
)

type subjectPattern struct {
	name string
	re   *regexp.Regexp
}

// subjects is checked in order; the first whole-word hit is kept.
var subjects = func() []subjectPattern {
	names := []string{"Mathematics", "Math", "Physics", "Chemistry", "English", "Computer Science", "Biology", "Science"}
	out := make([]subjectPattern, len(names))
	for i, n := range names {
		out[i] = subjectPattern{name: n, re: regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(n) + `\b`)}
	}
	return out
}()

type dateRefPattern struct {
	ref string
	re  *regexp.Regexp
}

// dateRefs is checked in order; only the first hit is recorded.
var dateRefs = []dateRefPattern{
	{models.DateRefToday, regexp.MustCompile(`(?i)today`)},
	{models.DateRefTomorrow, regexp.MustCompile(`(?i)tomorrow`)},
	{models.DateRefYesterday, regexp.MustCompile(`(?i)yesterday`)},
	{models.DateRefThisWeek, regexp.MustCompile(`(?i)this\s+week`)},
	{models.DateRefNextWeek, regexp.MustCompile(`(?i)next\s+week`)},
	{models.DateRefThisMonth, regexp.MustCompile(`(?i)this\s+month`)},
	{models.DateRefRecent, regexp.MustCompile(`(?i)recent`)},
}

// Extract pulls parameters out of the original-case question and merges the
// caller context over them. Context keys always survive unchanged.
func Extract(question string, hints models.Params) models.Params {
	params := extractText(question)
	for k, v := range hints {
		params[k] = v
	}
	return params
}

func extractText(q string) models.Params {
	params := models.Params{}

	setFirstGroup := func(re *regexp.Regexp, key string) bool {
		if m := re.FindStringSubmatch(q); m != nil {
			params[key] = models.StringValue(m[1])
			return true
		}
		return false
	}

	setFirstGroup(usnRe, models.ParamRollNumber)
	setFirstGroup(rollRe, models.ParamRollNumber)

	setFirstGroup(classRe, models.ParamClassName)
	if m := classUpRe.FindStringSubmatch(q); m != nil {
		params[models.ParamClassName] = models.StringValue("CLASS " + m[1])
	}

	for _, s := range subjects {
		if s.re.MatchString(q) {
			params[models.ParamSubjectName] = models.StringValue(s.name)
			break
		}
	}

	setFirstGroup(designRe, models.ParamDesignation)

	// Later passes overwrite earlier ones. A bare first or last name cannot be
	// attributed to a student or a teacher, so it fills both.
	setFirstGroup(studentRe, models.ParamStudentName)
	setFirstGroup(forOfRe, models.ParamStudentName)
	for _, re := range []*regexp.Regexp{lastNameRe, firstNameRe} {
		if m := re.FindStringSubmatch(q); m != nil {
			params[models.ParamStudentName] = models.StringValue(m[1])
			params[models.ParamTeacherName] = models.StringValue(m[1])
		}
	}

	setFirstGroup(phoneRe, models.ParamPhone)

	if listAllRe.MatchString(q) {
		params[models.ParamListAll] = models.BoolValue(true)
	}

	for _, d := range dateRefs {
		if d.re.MatchString(q) {
			params[models.ParamDateRef] = models.StringValue(d.ref)
			break
		}
	}

	return params
}
