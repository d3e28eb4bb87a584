package main

import (
	"fmt"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"

	"github.com/noah-isme/music-school-api/internal/models"
	"github.com/noah-isme/music-school-api/internal/repository"
	"github.com/noah-isme/music-school-api/internal/service"
)

func newAvailabilityCommand(ctx *commandContext) *cobra.Command {
	var classID, courseID string

	cmd := &cobra.Command{
		Use:   "availability",
		Short: "Show seat and room accounting for class offerings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := ctx.ensureDB()
			if err != nil {
				return err
			}
			classes := service.NewClassService(
				repository.NewClassRepository(db),
				repository.NewUserRepository(db),
				repository.NewCourseRepository(db),
				repository.NewRoomRepository(db),
				validator.New(),
				ctx.log(),
			)

			var items []models.ClassAvailability
			if classID != "" {
				one, err := classes.Availability(cmd.Context(), classID)
				if err != nil {
					return err
				}
				items = []models.ClassAvailability{*one}
			} else {
				items, err = classes.AvailabilityOverview(cmd.Context(), courseID)
				if err != nil {
					return err
				}
			}

			if len(items) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No class offerings found")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderAvailability(items))
			return nil
		},
	}

	cmd.Flags().StringVar(&classID, "class", "", "Only this class offering")
	cmd.Flags().StringVar(&courseID, "course", "", "Only offerings of this course")

	return cmd
}

func renderAvailability(items []models.ClassAvailability) string {
	headers := []string{"Class", "Seats", "Active", "Available", "Over", "Room", "Room Cap", "Room Free"}
	aligns := []columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight, alignLeft, alignRight, alignRight}
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		over := "-"
		if item.Seats.OverEnrolled {
			over = "+" + strconv.Itoa(item.Seats.Excess)
		}
		room, roomCap, roomFree := "-", "-", "-"
		if item.Room != nil {
			room = item.Room.RoomName
			roomCap = strconv.Itoa(item.Room.Capacity.Capacity)
			roomFree = strconv.Itoa(item.Room.Available)
			if item.Room.OverEnrolled {
				roomFree = "+" + strconv.Itoa(item.Room.Excess) + " over"
			}
		}
		rows = append(rows, []string{
			item.Code,
			strconv.Itoa(item.Seats.Capacity),
			strconv.Itoa(item.Seats.Active),
			strconv.Itoa(item.Seats.Available),
			over,
			room,
			roomCap,
			roomFree,
		})
	}
	return renderTable(headers, rows, aligns)
}
