package planner

import (
	"regexp"
	"strconv"

	"erp-nlquery/internal/models"
)

// defaultTemplates holds one read-only, parameterized query per intent.
// Placeholders are positional and filled only from the planner's tuple.
var defaultTemplates = map[models.Intent]string{
	models.IntentTimetable: `
		SELECT
			t.id, t.day_of_week, t.start_time, t.end_time,
			s.name AS subject_name,
			te.name AS teacher_name,
			c.name AS class_name
		FROM timetables t
		JOIN subjects s ON t.subject_id = s.id
		JOIN teachers te ON t.teacher_id = te.id
		JOIN classes c ON t.class_id = c.id
		WHERE t.class_id = $1
		ORDER BY t.day_of_week, t.start_time
		LIMIT $2`,

	models.IntentAttendance: `
		SELECT
			a.id, a.ymd AS date,
			ae.present,
			s.name AS student_name,
			s.usn AS roll_number,
			c.name AS class_name
		FROM attendance a
		JOIN attendance_entries ae ON a.id = ae.attendance_id
		JOIN students s ON ae.student_id = s.id
		JOIN classes c ON a.class_id = c.id
		WHERE a.class_id = $1 AND a.ymd = $2
		ORDER BY s.usn
		LIMIT $3`,

	models.IntentStudentInfo: `
		SELECT
			s.id, s.usn AS roll_number,
			s.name AS full_name,
			s.status,
			c.name AS class_name,
			sec.name AS section_name
		FROM students s
		JOIN classes c ON s.class_id = c.id
		JOIN sections sec ON s.section_id = sec.id
		WHERE (s.id = $1 OR s.usn = $2
		       OR s.name ILIKE $3
		       OR s.class_id = $4)
		LIMIT $5`,

	models.IntentTeacherInfo: `
		SELECT
			t.id,
			t.name AS full_name,
			t.email, t.phone
		FROM teachers t
		WHERE (t.id = $1 OR t.name ILIKE $2)
		LIMIT $3`,

	models.IntentFeeStatus: `
		SELECT
			i.id, i.total_amount AS amount, i.paid_amount, i.due_date, i.status,
			s.name AS student_name,
			s.usn AS roll_number,
			c.name AS class_name
		FROM invoices i
		JOIN students s ON i.student_id = s.id
		JOIN classes c ON s.class_id = c.id
		WHERE i.student_id = $1 OR s.class_id = $2
		ORDER BY i.due_date DESC
		LIMIT $3`,

	models.IntentExamSchedule: `
		SELECT
			t.id, t.name AS exam_name, t.date AS exam_date,
			s.name AS subject_name,
			c.name AS class_name
		FROM tests t
		JOIN subjects s ON t.subject_id = s.id
		JOIN classes c ON t.class_id = c.id
		WHERE t.class_id = $1
		ORDER BY t.date
		LIMIT $2`,

	models.IntentClassInfo: `
		SELECT
			c.id, c.name,
			COUNT(DISTINCT s.id) AS student_count
		FROM classes c
		LEFT JOIN students s ON c.id = s.class_id AND s.status = 'active'
		WHERE c.id = $1 OR c.name ILIKE $2
		GROUP BY c.id, c.name
		LIMIT $3`,

	models.IntentSubjectInfo: `
		SELECT
			s.id, s.name,
			t.name AS teacher_name,
			t.email AS teacher_email,
			t.phone AS teacher_phone
		FROM subjects s
		LEFT JOIN teaching_assignments ta ON s.id = ta.subject_id
		LEFT JOIN teachers t ON ta.teacher_id = t.id
		WHERE s.id = $1 OR s.name ILIKE $2
		LIMIT $3`,

	models.IntentMarks: `
		SELECT
			me.marks,
			s.name AS student_name,
			s.usn AS roll_number,
			sub.name AS subject_name,
			ms.max_marks,
			t.name AS test_name,
			ms.date_ymd AS test_date,
			c.name AS class_name
		FROM mark_entries me
		JOIN mark_sheets ms ON me.sheet_id = ms.id
		JOIN students s ON me.student_id = s.id
		JOIN subjects sub ON ms.subject_id = sub.id
		JOIN tests t ON ms.test_id = t.id
		JOIN classes c ON ms.class_id = c.id
		WHERE (s.id = $1 OR s.usn = $2 OR ms.class_id = $3)
		ORDER BY ms.date_ymd DESC
		LIMIT $4`,

	models.IntentDiary: `
		SELECT
			d.id, d.ymd AS date, d.note,
			d.attachments,
			c.name AS class_name,
			sec.name AS section_name,
			sub.name AS subject_name,
			t.name AS teacher_name
		FROM diaries d
		JOIN classes c ON d.class_id = c.id
		JOIN sections sec ON d.section_id = sec.id
		LEFT JOIN subjects sub ON d.subject_id = sub.id
		LEFT JOIN teachers t ON d.teacher_id = t.id
		WHERE (d.class_id = $1 OR d.ymd = $2)
		ORDER BY d.ymd DESC
		LIMIT $3`,

	models.IntentCalendar: `
		SELECT
			ce.id, ce.ymd AS date, ce.title, ce.tag, ce.color, ce.description
		FROM calendar_events ce
		WHERE ce.ymd >= $1 AND ce.ymd <= $2
		ORDER BY ce.ymd
		LIMIT $3`,

	models.IntentParentInfo: `
		SELECT
			p.id, p.name, p.phone, p.email,
			s.name AS student_name,
			s.usn AS student_usn,
			c.name AS class_name
		FROM parents p
		JOIN students s ON p.id = s.guardian_id
		JOIN classes c ON s.class_id = c.id
		WHERE (p.id = $1 OR p.phone = $2 OR s.id = $3 OR s.usn = $4 OR s.name ILIKE $5)
		LIMIT $6`,

	models.IntentCircular: `
		SELECT
			cir.id, cir.title, cir.body, cir.ymd AS date, cir.color,
			c.name AS class_name,
			sec.name AS section_name
		FROM circulars cir
		JOIN classes c ON cir.class_id = c.id
		JOIN sections sec ON cir.section_id = sec.id
		WHERE (cir.class_id = $1 OR cir.ymd = $2)
		ORDER BY cir.ymd DESC
		LIMIT $3`,

	models.IntentAttendanceStats: `
		SELECT
			c.name AS class_name,
			COUNT(DISTINCT ae.student_id) AS total_students,
			SUM(CASE WHEN ae.present THEN 1 ELSE 0 END) AS present_count,
			SUM(CASE WHEN NOT ae.present THEN 1 ELSE 0 END) AS absent_count,
			ROUND(SUM(CASE WHEN ae.present THEN 1 ELSE 0 END) * 100.0 / COUNT(*), 2) AS attendance_percentage
		FROM attendance a
		JOIN attendance_entries ae ON a.id = ae.attendance_id
		JOIN classes c ON a.class_id = c.id
		WHERE a.class_id = $1 AND a.ymd >= $2 AND a.ymd <= $3
		GROUP BY c.id, c.name
		LIMIT 1`,

	models.IntentFeeSummary: `
		SELECT
			c.name AS class_name,
			COUNT(DISTINCT i.student_id) AS total_students,
			SUM(i.total_amount) AS total_fees,
			SUM(i.paid_amount) AS total_paid,
			SUM(i.total_amount - i.paid_amount) AS total_pending,
			SUM(CASE WHEN i.status = 'paid' THEN 1 ELSE 0 END) AS paid_count,
			SUM(CASE WHEN i.status = 'pending' THEN 1 ELSE 0 END) AS pending_count
		FROM invoices i
		JOIN students s ON i.student_id = s.id
		JOIN classes c ON s.class_id = c.id
		WHERE c.id = $1 OR c.name ILIKE $2
		GROUP BY c.id, c.name
		LIMIT 1`,

	models.IntentClassPerformance: `
		SELECT
			c.name AS class_name,
			sub.name AS subject_name,
			COUNT(DISTINCT me.student_id) AS students_count,
			AVG(me.marks) AS average_marks,
			MAX(me.marks) AS highest_marks,
			MIN(me.marks) AS lowest_marks,
			ms.max_marks,
			t.name AS test_name
		FROM mark_entries me
		JOIN mark_sheets ms ON me.sheet_id = ms.id
		JOIN classes c ON ms.class_id = c.id
		JOIN subjects sub ON ms.subject_id = sub.id
		JOIN tests t ON ms.test_id = t.id
		WHERE ms.class_id = $1
		GROUP BY c.id, c.name, sub.id, sub.name, ms.id, ms.max_marks, ms.date_ymd, t.name
		ORDER BY ms.date_ymd DESC
		LIMIT $2`,
}

// DefaultTemplates returns a copy of the built-in template table.
func DefaultTemplates() map[models.Intent]string {
	out := make(map[models.Intent]string, len(defaultTemplates))
	for k, v := range defaultTemplates {
		out[k] = v
	}
	return out
}

var placeholderRe = regexp.MustCompile(`\$(\d+)`)

// Placeholders returns the highest positional placeholder index in a template.
func Placeholders(template string) int {
	highest := 0
	for _, m := range placeholderRe.FindAllStringSubmatch(template, -1) {
		if n, err := strconv.Atoi(m[1]); err == nil && n > highest {
			highest = n
		}
	}
	return highest
}
