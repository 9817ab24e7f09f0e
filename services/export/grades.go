package exportsvc

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"github.com/trezcool/chuo/core/academic"
)

const ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var gradeHeaders = []string{
	"Student Number", "Student", "Email", "Enrollment Status", "Assessment Type", "Assessment",
	"Score", "Max Score", "Percentage", "Weight", "Letter Grade", "Published", "Graded At",
}

// GradesFileName is the attachment name of the grades workbook of class.
func GradesFileName(class academic.Class) string {
	return fmt.Sprintf("grades_%s.xlsx", strings.ReplaceAll(class.ClassCode, " ", "_"))
}

// ClassGrades writes a workbook with one row per grade of the enrollments.
// Enrollments without grades get a single row holding the student columns.
func ClassGrades(enrollments []academic.Enrollment) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	//goland:noinspection GoUnhandledErrorResult
	defer f.Close()

	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	var err error
	for i, h := range gradeHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err = f.SetCellValue(sheet, cell, h); err != nil {
			return nil, errors.Wrap(err, "writing header")
		}
	}

	row := 2
	for _, e := range enrollments {
		student := []interface{}{"", "", "", string(e.Status)}
		if e.Student != nil {
			student = []interface{}{
				e.Student.Number,
				strings.TrimSpace(e.Student.FirstName + " " + e.Student.LastName),
				e.Student.Email,
				string(e.Status),
			}
		}
		if len(e.Grades) == 0 {
			if err = setRow(f, sheet, row, student); err != nil {
				return nil, err
			}
			row++
			continue
		}
		for _, g := range e.Grades {
			values := append(append([]interface{}{}, student...),
				g.AssessmentType,
				g.AssessmentName,
				g.Score,
				g.MaxScore,
				academic.Percentage(g.Score, g.MaxScore),
				g.Weight,
				g.LetterGrade,
				g.IsPublished,
				g.GradedAt.Format("2006-01-02 15:04"),
			)
			if err = setRow(f, sheet, row, values); err != nil {
				return nil, err
			}
			row++
		}
	}

	buf := new(bytes.Buffer)
	if err = f.Write(buf); err != nil {
		return nil, errors.Wrap(err, "writing workbook")
	}
	return buf, nil
}

func setRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, _ := excelize.CoordinatesToCellName(1, row)
	return errors.Wrapf(f.SetSheetRow(sheet, cell, &values), "writing row %d", row)
}
