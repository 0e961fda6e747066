package models

import "time"

// ScheduleStatus is the lifecycle state of a scheduled session.
type ScheduleStatus string

const (
	ScheduleStatusPlanned   ScheduleStatus = "planned"
	ScheduleStatusCompleted ScheduleStatus = "completed"
	ScheduleStatusCancelled ScheduleStatus = "cancelled"
	ScheduleStatusMissed    ScheduleStatus = "missed"
)

// Valid reports whether s is a known status.
func (s ScheduleStatus) Valid() bool {
	switch s {
	case ScheduleStatusPlanned, ScheduleStatusCompleted, ScheduleStatusCancelled, ScheduleStatusMissed:
		return true
	}
	return false
}

// Schedule представляет запланированную тренировку клиента.
type Schedule struct {
	StartsAt time.Time      `json:"starts_at" yaml:"starts_at"`
	ID       string         `json:"id" yaml:"id"`
	MemberID string         `json:"member_id" yaml:"member_id"`
	Title    string         `json:"title" yaml:"title"`
	Notes    string         `json:"notes,omitempty" yaml:"notes,omitempty"`
	Status   ScheduleStatus `json:"status" yaml:"status"`
	Duration int            `json:"duration_minutes" yaml:"duration_minutes"`
}

// PlannedExercise is an exercise planned inside a schedule.
type PlannedExercise struct {
	ID         string  `json:"id" yaml:"id"`
	ScheduleID string  `json:"schedule_id" yaml:"schedule_id"`
	ExerciseID string  `json:"exercise_id" yaml:"exercise_id"`
	Name       string  `json:"name" yaml:"name"`
	Sets       int     `json:"sets" yaml:"sets"`
	Reps       int     `json:"reps" yaml:"reps"`
	Weight     float64 `json:"weight,omitempty" yaml:"weight,omitempty"`
	Order      int     `json:"order" yaml:"order"`
}

// SetLog is one performed set of a planned exercise.
type SetLog struct {
	LoggedAt          time.Time `json:"logged_at" yaml:"logged_at"`
	ID                string    `json:"id" yaml:"id"`
	PlannedExerciseID string    `json:"planned_exercise_id" yaml:"planned_exercise_id"`
	Reps              int       `json:"reps" yaml:"reps"`
	Weight            float64   `json:"weight,omitempty" yaml:"weight,omitempty"`
	RPE               float64   `json:"rpe,omitempty" yaml:"rpe,omitempty"` // rate of perceived exertion
}

// Exercise is an entry of the exercise library.
type Exercise struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	MuscleGroup string `json:"muscle_group,omitempty" yaml:"muscle_group,omitempty"`
	Equipment   string `json:"equipment,omitempty" yaml:"equipment,omitempty"`
}

// Member is a cached coaching client.
type Member struct {
	ID    string `json:"id" yaml:"id"`
	Name  string `json:"name" yaml:"name"`
	Email string `json:"email,omitempty" yaml:"email,omitempty"`
}
