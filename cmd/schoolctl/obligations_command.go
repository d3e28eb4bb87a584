package main

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/noah-isme/music-school-api/internal/accounting"
	"github.com/noah-isme/music-school-api/internal/models"
	"github.com/noah-isme/music-school-api/internal/repository"
	"github.com/noah-isme/music-school-api/internal/service"
)

const obligationsPageSize = 100

func newObligationsCommand(ctx *commandContext) *cobra.Command {
	var status, studentID, classID string

	cmd := &cobra.Command{
		Use:   "obligations",
		Short: "List tuition obligations with paid and outstanding amounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filterStatus, err := parseObligationStatus(status)
			if err != nil {
				return err
			}
			db, err := ctx.ensureDB()
			if err != nil {
				return err
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			tuition := service.NewTuitionService(
				repository.NewTuitionRepository(db),
				nil,
				nil,
				nil,
				validator.New(),
				ctx.log(),
				service.TuitionConfig{AllowOverpayment: cfg.Settlement.AllowOverpayment},
			)

			filter := models.ObligationFilter{
				Status:    filterStatus,
				StudentID: studentID,
				ClassID:   classID,
				PageSize:  obligationsPageSize,
				SortBy:    "created_at",
			}
			var all []models.ObligationDetail
			for page := 1; ; page++ {
				filter.Page = page
				items, pagination, err := tuition.List(cmd.Context(), filter, nil)
				if err != nil {
					return err
				}
				all = append(all, items...)
				if len(items) < obligationsPageSize || len(all) >= pagination.TotalCount {
					break
				}
			}

			if len(all) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No obligations found")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderObligations(all))
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "pending", "PENDING, PAID, CANCELLED or ALL")
	cmd.Flags().StringVar(&studentID, "student", "", "Only obligations of this student")
	cmd.Flags().StringVar(&classID, "class", "", "Only obligations of this class offering")

	return cmd
}

func parseObligationStatus(raw string) (models.ObligationStatus, error) {
	switch s := models.ObligationStatus(strings.ToUpper(strings.TrimSpace(raw))); s {
	case "", "ALL":
		return "", nil
	case models.ObligationStatusPending, models.ObligationStatusPaid, models.ObligationStatusCancelled:
		return s, nil
	default:
		return "", fmt.Errorf("unknown status %q", raw)
	}
}

func renderObligations(items []models.ObligationDetail) string {
	headers := []string{"Student", "Class", "Course", "Amount", "Paid", "Outstanding", "Status"}
	aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft}
	rows := make([][]string, 0, len(items)+1)
	total, outstanding := decimal.Zero, decimal.Zero
	for _, item := range items {
		settlement := accounting.SettleWithStatus(string(item.Status), item.Amount, []decimal.Decimal{item.PaidSoFar})
		owed := settlement.Outstanding
		if item.Status == models.ObligationStatusCancelled {
			owed = decimal.Zero
		}
		total = total.Add(item.Amount)
		outstanding = outstanding.Add(owed)
		rows = append(rows, []string{
			item.StudentName,
			item.ClassCode,
			item.CourseName,
			item.Amount.StringFixed(2),
			item.PaidSoFar.StringFixed(2),
			owed.StringFixed(2),
			string(item.Status),
		})
	}
	rows = append(rows, []string{fmt.Sprintf("%d obligations", len(items)), "", "", total.StringFixed(2), "", outstanding.StringFixed(2), ""})
	return renderTable(headers, rows, aligns)
}
