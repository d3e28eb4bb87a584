package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/music-school-api/internal/accounting"
	"github.com/noah-isme/music-school-api/internal/models"
	appErrors "github.com/noah-isme/music-school-api/pkg/errors"
	"github.com/noah-isme/music-school-api/pkg/export"
)

const reportTimestampLayout = "20060102_150405"

type reportRepository interface {
	PaymentRows(ctx context.Context, filter models.ReportFilter) ([]models.PaymentReportRow, error)
	PaymentTotals(ctx context.Context, filter models.ReportFilter) ([]models.StatusTotal, error)
	AttendanceRows(ctx context.Context, filter models.ReportFilter) ([]models.AttendanceReportRow, error)
	AttendanceTotals(ctx context.Context, filter models.ReportFilter) (models.AttendanceTotals, error)
}

// ReportServiceConfig governs rendering.
type ReportServiceConfig struct {
	SchoolName    string
	DefaultFormat models.ReportFormat
	MaxRows       int
}

// ReportFile is a rendered report ready to download.
type ReportFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ReportService builds payment and attendance reports.
type ReportService struct {
	repo      reportRepository
	renderers map[models.ReportFormat]export.Renderer
	logger    *zap.Logger
	cfg       ReportServiceConfig
	now       func() time.Time
}

// NewReportService constructs the report service with CSV and PDF renderers.
func NewReportService(repo reportRepository, logger *zap.Logger, cfg ReportServiceConfig) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DefaultFormat == "" {
		cfg.DefaultFormat = models.ReportFormatPDF
	}
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = 5000
	}
	return &ReportService{
		repo: repo,
		renderers: map[models.ReportFormat]export.Renderer{
			models.ReportFormatCSV: export.NewCSVExporter(),
			models.ReportFormatPDF: export.NewPDFExporter(cfg.SchoolName),
		},
		logger: logger,
		cfg:    cfg,
		now:    time.Now,
	}
}

// Payments returns the payment projection with per-status and overall totals.
func (s *ReportService) Payments(ctx context.Context, filter models.ReportFilter, claims *models.JWTClaims) (*models.PaymentReport, error) {
	filter = s.scope(filter, claims)

	rows, err := s.repo.PaymentRows(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment report")
	}
	totals, err := s.repo.PaymentTotals(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment totals")
	}

	for i := range rows {
		rows[i].Outstanding = rowOutstanding(rows[i])
	}

	report := &models.PaymentReport{
		Rows:        rows,
		ByStatus:    totals,
		TotalAmount: decimal.Zero,
		Collected:   decimal.Zero,
		Outstanding: decimal.Zero,
	}
	if report.Rows == nil {
		report.Rows = []models.PaymentReportRow{}
	}
	if report.ByStatus == nil {
		report.ByStatus = []models.StatusTotal{}
	}
	for _, t := range totals {
		report.Count += t.Count
		report.TotalAmount = report.TotalAmount.Add(t.Amount)
		report.Collected = report.Collected.Add(t.Collected)
		report.Outstanding = report.Outstanding.Add(t.Outstanding)
	}
	return report, nil
}

// Attendance returns the attendance projection pivoted into a learner by
// date grid with totals.
func (s *ReportService) Attendance(ctx context.Context, filter models.ReportFilter, claims *models.JWTClaims) (*models.AttendanceReport, error) {
	filter = s.scope(filter, claims)
	if filter.Status != "" {
		filter.Status = strings.ToUpper(filter.Status)
		if !models.AttendanceStatus(filter.Status).Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, "invalid attendance status")
		}
	}

	rows, err := s.repo.AttendanceRows(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance report")
	}
	totals, err := s.repo.AttendanceTotals(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance totals")
	}

	report := buildAttendanceReport(rows)
	report.Truncated = totals.Total > len(rows)
	report.Totals = withPercentages(totals)
	if report.Truncated {
		s.logger.Warn("attendance report truncated",
			zap.Int("rows", len(rows)),
			zap.Int("total", totals.Total))
	}
	return report, nil
}

// RenderPayments renders the payment report in the requested format.
func (s *ReportService) RenderPayments(ctx context.Context, filter models.ReportFilter, format string, claims *models.JWTClaims) (*ReportFile, error) {
	renderer, err := s.renderer(format)
	if err != nil {
		return nil, err
	}
	report, err := s.Payments(ctx, filter, claims)
	if err != nil {
		return nil, err
	}

	headers := []string{"Date", "Student", "Username", "Course", "Class", "Teacher", "Amount", "Paid", "Outstanding", "Status"}
	data := export.Dataset{Headers: headers, Rows: make([]map[string]string, 0, len(report.Rows))}
	for _, row := range report.Rows {
		data.Rows = append(data.Rows, map[string]string{
			"Date":        row.CreatedAt.Format(dateLayout),
			"Student":     row.StudentName,
			"Username":    row.Username,
			"Course":      row.CourseName,
			"Class":       row.ClassCode,
			"Teacher":     deref(row.TeacherName),
			"Amount":      row.Amount.StringFixed(2),
			"Paid":        row.PaidSoFar.StringFixed(2),
			"Outstanding": row.Outstanding.StringFixed(2),
			"Status":      string(row.Status),
		})
	}
	totals := []export.Total{
		{Label: "Obligations", Value: fmt.Sprintf("%d", report.Count)},
		{Label: "Total amount", Value: report.TotalAmount.StringFixed(2)},
		{Label: "Collected", Value: report.Collected.StringFixed(2)},
		{Label: "Outstanding", Value: report.Outstanding.StringFixed(2)},
	}
	for _, t := range report.ByStatus {
		totals = append(totals, export.Total{Label: string(t.Status), Value: fmt.Sprintf("%d / %s", t.Count, t.Amount.StringFixed(2))})
	}

	doc := export.Document{Title: "Payments report", Subtitle: dateRangeLabel(filter), Data: data, Totals: totals}
	return s.render(renderer, doc, "payments_report")
}

// RenderAttendance renders the attendance grid in the requested format.
func (s *ReportService) RenderAttendance(ctx context.Context, filter models.ReportFilter, format string, claims *models.JWTClaims) (*ReportFile, error) {
	renderer, err := s.renderer(format)
	if err != nil {
		return nil, err
	}
	report, err := s.Attendance(ctx, filter, claims)
	if err != nil {
		return nil, err
	}

	headers := append([]string{"Student", "Course", "Class"}, report.Dates...)
	data := export.Dataset{Headers: headers, Rows: make([]map[string]string, 0, len(report.Grid))}
	for _, row := range report.Grid {
		record := map[string]string{
			"Student": row.StudentName,
			"Course":  row.CourseName,
			"Class":   row.ClassCode,
		}
		for date, status := range row.ByDate {
			record[date] = statusInitial(status)
		}
		data.Rows = append(data.Rows, record)
	}
	t := report.Totals
	totals := []export.Total{
		{Label: "Students", Value: fmt.Sprintf("%d", t.Students)},
		{Label: "Days", Value: fmt.Sprintf("%d", t.Days)},
		{Label: "Present", Value: fmt.Sprintf("%d", t.Present)},
		{Label: "Late", Value: fmt.Sprintf("%d", t.Late)},
		{Label: "Absent", Value: fmt.Sprintf("%d", t.Absent)},
		{Label: "Excused", Value: fmt.Sprintf("%d", t.Excused)},
		{Label: "Present %", Value: fmt.Sprintf("%.1f", t.PresentPercent)},
		{Label: "Absent + late %", Value: fmt.Sprintf("%.1f", t.AbsentPercent)},
	}
	if report.Truncated {
		totals = append(totals, export.Total{Label: "Rows shown", Value: fmt.Sprintf("%d of %d", len(report.Rows), t.Total)})
	}

	doc := export.Document{Title: "Attendance report", Subtitle: dateRangeLabel(filter), Data: data, Totals: totals}
	return s.render(renderer, doc, "attendance_report")
}

func (s *ReportService) renderer(format string) (export.Renderer, error) {
	f := models.ReportFormat(strings.ToLower(strings.TrimSpace(format)))
	if f == "" {
		f = s.cfg.DefaultFormat
	}
	renderer, ok := s.renderers[f]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported report format")
	}
	return renderer, nil
}

func (s *ReportService) render(renderer export.Renderer, doc export.Document, prefix string) (*ReportFile, error) {
	data, err := renderer.Render(doc)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render report")
	}
	filename := fmt.Sprintf("%s_%s.%s", prefix, s.now().Format(reportTimestampLayout), renderer.Extension())
	s.logger.Info("report rendered",
		zap.String("filename", filename),
		zap.Int("rows", len(doc.Data.Rows)),
		zap.Int("bytes", len(data)))
	return &ReportFile{Filename: filename, ContentType: renderer.ContentType(), Data: data}, nil
}

func (s *ReportService) scope(filter models.ReportFilter, claims *models.JWTClaims) models.ReportFilter {
	if claims != nil && claims.Role == models.RoleTeacher {
		filter.TeacherID = claims.UserID
	}
	if filter.Limit <= 0 || filter.Limit > s.cfg.MaxRows {
		filter.Limit = s.cfg.MaxRows
	}
	filter.Search = strings.TrimSpace(filter.Search)
	return filter
}

func rowOutstanding(row models.PaymentReportRow) decimal.Decimal {
	if row.Status == models.ObligationStatusCancelled {
		return decimal.Zero
	}
	return accounting.Settle(row.Amount, []decimal.Decimal{row.PaidSoFar}).Outstanding
}

func buildAttendanceReport(rows []models.AttendanceReportRow) *models.AttendanceReport {
	report := &models.AttendanceReport{
		Dates: []string{},
		Grid:  []models.AttendanceGridRow{},
		Rows:  rows,
	}
	if report.Rows == nil {
		report.Rows = []models.AttendanceReportRow{}
	}

	dates := make(map[string]struct{})
	students := make(map[string]struct{})
	index := make(map[string]int)
	for _, row := range rows {
		date := row.Date.Format(dateLayout)
		dates[date] = struct{}{}
		students[row.StudentID] = struct{}{}

		key := row.StudentID + "|" + row.ClassCode
		i, ok := index[key]
		if !ok {
			i = len(report.Grid)
			index[key] = i
			report.Grid = append(report.Grid, models.AttendanceGridRow{
				StudentID:   row.StudentID,
				StudentName: row.StudentName,
				CourseName:  row.CourseName,
				ClassCode:   row.ClassCode,
				RoomName:    row.RoomName,
				ByDate:      map[string]models.AttendanceStatus{},
			})
		}
		report.Grid[i].ByDate[date] = row.Status

		switch row.Status {
		case models.AttendanceStatusPresent:
			report.Totals.Present++
		case models.AttendanceStatusLate:
			report.Totals.Late++
		case models.AttendanceStatusAbsent:
			report.Totals.Absent++
		case models.AttendanceStatusExcused:
			report.Totals.Excused++
		}
	}

	for date := range dates {
		report.Dates = append(report.Dates, date)
	}
	sort.Strings(report.Dates)
	sort.SliceStable(report.Grid, func(i, j int) bool {
		if report.Grid[i].StudentName != report.Grid[j].StudentName {
			return report.Grid[i].StudentName < report.Grid[j].StudentName
		}
		return report.Grid[i].ClassCode < report.Grid[j].ClassCode
	})

	t := &report.Totals
	t.Total = len(rows)
	t.Students = len(students)
	t.Days = len(report.Dates)
	report.Totals = withPercentages(*t)
	return report
}

func withPercentages(t models.AttendanceTotals) models.AttendanceTotals {
	t.PresentPercent = percent(t.Present, t.Total)
	t.AbsentPercent = percent(t.Absent+t.Late, t.Total)
	return t
}

func percent(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(part)*1000/float64(total)) / 10
}

func statusInitial(status models.AttendanceStatus) string {
	if status == "" {
		return ""
	}
	return string(status)[:1]
}

func dateRangeLabel(filter models.ReportFilter) string {
	switch {
	case filter.DateFrom != nil && filter.DateTo != nil:
		return fmt.Sprintf("%s to %s", filter.DateFrom.Format(dateLayout), filter.DateTo.Format(dateLayout))
	case filter.DateFrom != nil:
		return "from " + filter.DateFrom.Format(dateLayout)
	case filter.DateTo != nil:
		return "until " + filter.DateTo.Format(dateLayout)
	}
	return "all dates"
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
