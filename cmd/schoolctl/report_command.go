package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/noah-isme/music-school-api/internal/models"
	"github.com/noah-isme/music-school-api/internal/repository"
	"github.com/noah-isme/music-school-api/internal/service"
	"github.com/noah-isme/music-school-api/pkg/storage"
)

const cliDateLayout = "2006-01-02"

type reportFlags struct {
	format    string
	from      string
	to        string
	classID   string
	courseID  string
	teacherID string
	status    string
	outDir    string
	prune     time.Duration
}

func newReportCommand(ctx *commandContext) *cobra.Command {
	var flags reportFlags

	cmd := &cobra.Command{
		Use:       "report payments|attendance",
		Short:     "Render a payments or attendance report to the report directory",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"payments", "attendance"},
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := flags.filter()
			if err != nil {
				return err
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			db, err := ctx.ensureDB()
			if err != nil {
				return err
			}

			dir := flags.outDir
			if dir == "" {
				dir = cfg.Reports.OutputDir
			}
			archive, err := storage.NewReportArchive(dir)
			if err != nil {
				return err
			}
			if flags.prune > 0 {
				removed, err := archive.Prune(flags.prune)
				if err != nil {
					return err
				}
				for _, name := range removed {
					ctx.log().Sugar().Infow("pruned report", "file", name)
				}
			}

			reports := service.NewReportService(repository.NewReportRepository(db), ctx.log(), service.ReportServiceConfig{
				SchoolName:    cfg.Reports.SchoolName,
				DefaultFormat: models.ReportFormat(cfg.Reports.DefaultFormat),
				MaxRows:       cfg.Reports.MaxRows,
			})

			var file *service.ReportFile
			switch args[0] {
			case "payments":
				file, err = reports.RenderPayments(cmd.Context(), filter, flags.format, nil)
			default:
				file, err = reports.RenderAttendance(cmd.Context(), filter, flags.format, nil)
			}
			if err != nil {
				return err
			}

			path, err := archive.Save(file.Filename, file.Data)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d bytes)\n", path, len(file.Data))
			return nil
		},
	}

	cmd.Flags().StringVar(&flags.format, "format", "", "pdf or csv (defaults to REPORTS_DEFAULT_FORMAT)")
	cmd.Flags().StringVar(&flags.from, "from", "", "First day, YYYY-MM-DD")
	cmd.Flags().StringVar(&flags.to, "to", "", "Last day, YYYY-MM-DD")
	cmd.Flags().StringVar(&flags.classID, "class", "", "Only this class offering")
	cmd.Flags().StringVar(&flags.courseID, "course", "", "Only this course")
	cmd.Flags().StringVar(&flags.teacherID, "teacher", "", "Only classes of this teacher")
	cmd.Flags().StringVar(&flags.status, "status", "", "Obligation or attendance status")
	cmd.Flags().StringVar(&flags.outDir, "out", "", "Output directory (defaults to REPORTS_OUTPUT_DIR)")
	cmd.Flags().DurationVar(&flags.prune, "prune", 0, "Delete reports older than this before writing, e.g. 720h")

	return cmd
}

func (f reportFlags) filter() (models.ReportFilter, error) {
	filter := models.ReportFilter{
		ClassID:   f.classID,
		CourseID:  f.courseID,
		TeacherID: f.teacherID,
		Status:    strings.ToUpper(strings.TrimSpace(f.status)),
	}
	var err error
	if filter.DateFrom, err = parseCLIDate("from", f.from); err != nil {
		return filter, err
	}
	if filter.DateTo, err = parseCLIDate("to", f.to); err != nil {
		return filter, err
	}
	if filter.DateFrom != nil && filter.DateTo != nil && filter.DateTo.Before(*filter.DateFrom) {
		return filter, fmt.Errorf("--to must not be before --from")
	}
	return filter, nil
}

func parseCLIDate(flag, raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(cliDateLayout, raw)
	if err != nil {
		return nil, fmt.Errorf("--%s must be YYYY-MM-DD", flag)
	}
	return &t, nil
}
