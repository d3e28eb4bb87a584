package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CourseLevel is the difficulty tier of a course.
type CourseLevel string

const (
	CourseLevelBeginner     CourseLevel = "BEGINNER"
	CourseLevelIntermediate CourseLevel = "INTERMEDIATE"
	CourseLevelAdvanced     CourseLevel = "ADVANCED"
)

// Valid reports whether the level is supported.
func (l CourseLevel) Valid() bool {
	switch l {
	case CourseLevelBeginner, CourseLevelIntermediate, CourseLevelAdvanced:
		return true
	}
	return false
}

// Course is a catalogue entry offered in one or more classes.
type Course struct {
	ID          string          `db:"id" json:"id"`
	Name        string          `db:"name" json:"name"`
	Level       CourseLevel     `db:"level" json:"level"`
	Price       decimal.Decimal `db:"price" json:"price"`
	Description *string         `db:"description" json:"description,omitempty"`
	Instrument  string          `db:"instrument" json:"instrument"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}

// CourseFilter defines listing criteria for courses.
type CourseFilter struct {
	Level      CourseLevel
	Instrument string
	Search     string
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}

// CourseRequest is the create/update payload for courses.
type CourseRequest struct {
	Name        string           `json:"name" validate:"required,max=100"`
	Level       CourseLevel      `json:"level" validate:"omitempty,course_level"`
	Price       *decimal.Decimal `json:"price"`
	Description *string          `json:"description"`
	Instrument  string           `json:"instrument" validate:"max=100"`
}
