package models

import (
	"math"
	"time"
)

type User struct {
	ID        int       `json:"id"`
	Username  string    `json:"username"`
	Password  string    `json:"password,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Sanitized returns a copy of the user with the credential cleared,
// safe to serialize in API responses.
func (u User) Sanitized() User {
	u.Password = ""
	return u
}

type Movie struct {
	ID          int       `json:"id"`
	TmdbID      int       `json:"tmdb_id"`
	Title       string    `json:"title"`
	Overview    string    `json:"overview"`
	PosterPath  string    `json:"poster_path"`
	VoteAverage float64   `json:"vote_average"`
	CreatedAt   time.Time `json:"created_at"`
}

// UserMovie records that a user has saved a catalog movie.
type UserMovie struct {
	UserID    int       `json:"user_id"`
	MovieID   int       `json:"movie_id"`
	CreatedAt time.Time `json:"created_at"`
}

type UserMood struct {
	ID        int       `json:"id"`
	UserID    int       `json:"user_id"`
	Mood      string    `json:"mood"`
	CreatedAt time.Time `json:"created_at"`
}

// DeletionLog is one append-only audit row, written whenever a UserMovie
// association is removed, whatever the cause.
type DeletionLog struct {
	ID        int       `json:"id"`
	UserID    int       `json:"user_id"`
	MovieID   int       `json:"movie_id"`
	DeletedAt time.Time `json:"deleted_at"`
}

// RoundVoteAverage rounds a rating to the single fractional digit the
// movies.vote_average column stores, so values compare cleanly after a
// write/read round trip.
func RoundVoteAverage(v float64) float64 {
	return math.Round(v*10) / 10
}
