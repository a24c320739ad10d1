// Package access holds the static role to intent permission matrix.
package access

import (
	"erp-nlquery/internal/common/logger"
	"erp-nlquery/internal/models"
)

var teacherIntents = []models.Intent{
	models.IntentTimetable,
	models.IntentAttendance,
	models.IntentStudentInfo,
	models.IntentExamSchedule,
	models.IntentClassInfo,
	models.IntentSubjectInfo,
	models.IntentMarks,
	models.IntentDiary,
	models.IntentCalendar,
	models.IntentParentInfo,
	models.IntentCircular,
	models.IntentAttendanceStats,
	models.IntentClassPerformance,
}

// grants is the role to intent table. principal and admin are absent: they
// receive every supported intent.
var grants = map[models.Role][]models.Intent{
	models.RoleStudent: {
		models.IntentTimetable,
		models.IntentExamSchedule,
		models.IntentFeeStatus,
		models.IntentMarks,
		models.IntentDiary,
		models.IntentCalendar,
		models.IntentCircular,
	},
	models.RoleTeacher: teacherIntents,
	models.RoleHOD: append(append([]models.Intent{}, teacherIntents...),
		models.IntentTeacherInfo,
		models.IntentFeeSummary,
	),
	models.RoleAccountant: {
		models.IntentStudentInfo,
		models.IntentFeeStatus,
		models.IntentClassInfo,
		models.IntentParentInfo,
		models.IntentFeeSummary,
	},
}

func hasFullAccess(r models.Role) bool {
	return r == models.RolePrincipal || r == models.RoleAdmin
}

// Matrix answers permission questions. It is read-only after construction.
type Matrix struct {
	logger logger.Logger
}

func NewMatrix(log logger.Logger) *Matrix {
	return &Matrix{logger: logger.Component(log, "access")}
}

// IsAuthorized is true when at least one of roles grants intent. Unknown role
// strings are skipped; unknown is never authorized.
func (m *Matrix) IsAuthorized(roles []string, intent models.Intent) bool {
	if !intent.IsSupported() {
		return false
	}
	return grantsAny(m.parseRoles(roles), intent)
}

// parseRoles keeps the recognised roles and logs each unknown one once.
func (m *Matrix) parseRoles(raw []string) []models.Role {
	out := make([]models.Role, 0, len(raw))
	for _, r := range raw {
		role, ok := models.ParseRole(r)
		if !ok {
			m.logger.Warn("unknown role", map[string]interface{}{"role": r})
			continue
		}
		out = append(out, role)
	}
	return out
}

func grantsAny(roles []models.Role, intent models.Intent) bool {
	for _, role := range roles {
		if Grants(role, intent) {
			return true
		}
	}
	return false
}

// Grants reports whether a single role may invoke intent.
func Grants(role models.Role, intent models.Intent) bool {
	if !intent.IsSupported() {
		return false
	}
	if hasFullAccess(role) {
		return true
	}
	for _, i := range grants[role] {
		if i == intent {
			return true
		}
	}
	return false
}

// Allowed lists the intents a role may invoke, in catalog order.
func Allowed(role models.Role) []models.Intent {
	var out []models.Intent
	for _, info := range models.SupportedIntents() {
		if Grants(role, info.Name) {
			out = append(out, info.Name)
		}
	}
	return out
}

// AllowedForRoles is the union of Allowed over roles, in catalog order.
func (m *Matrix) AllowedForRoles(roles []string) []models.Intent {
	parsed := m.parseRoles(roles)
	var out []models.Intent
	for _, info := range models.SupportedIntents() {
		if grantsAny(parsed, info.Name) {
			out = append(out, info.Name)
		}
	}
	return out
}
