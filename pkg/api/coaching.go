package api

import "time"

// Paths of the coaching resources.
const (
	PathSchedules = "/api/v1/schedules"
	PathExercises = "/api/v1/exercises"
)

// SchedulePath returns the url of one schedule.
func SchedulePath(id string) string {
	return PathSchedules + "/" + id
}

// ScheduleExercisesPath returns the collection of planned exercises of a schedule.
func ScheduleExercisesPath(scheduleID string) string {
	return SchedulePath(scheduleID) + "/exercises"
}

// PlannedExerciseSetsPath returns the collection of set logs of a planned exercise.
func PlannedExerciseSetsPath(plannedExerciseID string) string {
	return PathExercises + "/" + plannedExerciseID + "/sets"
}

// CreatedResponse is returned by every create endpoint.
type CreatedResponse struct {
	ID string `json:"id"`
}

// ScheduleRequest creates a schedule. ClientID is the locally minted id.
type ScheduleRequest struct {
	StartsAt time.Time `json:"starts_at"`
	ClientID string    `json:"client_id"`
	MemberID string    `json:"member_id"`
	Title    string    `json:"title"`
	Notes    string    `json:"notes,omitempty"`
	Duration int       `json:"duration_minutes"`
}

// ScheduleStatusRequest changes the status of a schedule.
type ScheduleStatusRequest struct {
	Status string `json:"status"`
}

// PlannedExerciseRequest adds an exercise to a schedule.
type PlannedExerciseRequest struct {
	ClientID   string  `json:"client_id"`
	ScheduleID string  `json:"schedule_id"`
	ExerciseID string  `json:"exercise_id"`
	Name       string  `json:"name"`
	Sets       int     `json:"sets"`
	Reps       int     `json:"reps"`
	Weight     float64 `json:"weight,omitempty"`
	Order      int     `json:"order"`
}

// SetLogRequest records a performed set.
type SetLogRequest struct {
	LoggedAt          time.Time `json:"logged_at"`
	ClientID          string    `json:"client_id"`
	PlannedExerciseID string    `json:"planned_exercise_id"`
	Reps              int       `json:"reps"`
	Weight            float64   `json:"weight,omitempty"`
	RPE               float64   `json:"rpe,omitempty"`
}
