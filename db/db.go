package db

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"golang.org/x/crypto/bcrypt"

	m "github.com/rcsullivanii/flick-finder/models"
)

// Sentinel errors the API layer translates into HTTP statuses.
var (
	ErrDuplicateUsername  = errors.New("username already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
	ErrMovieNotFound      = errors.New("movie not found")
	ErrDuplicateMovie     = errors.New("movie already exists")
	ErrMovieNotInList     = errors.New("movie not in user's list")
)

// DBService owns the database handle. Open it once, pass it around, and Close
// it when the process exits; no other package opens connections.
type DBService struct {
	conn *sql.DB
}

// Open connects to the database and verifies the connection. The driver name
// is a parameter so tests can run the same code against in-memory SQLite.
func Open(driver, dsn string) (*DBService, error) {
	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}
	return &DBService{conn: conn}, nil
}

func (s *DBService) Close() error {
	return s.conn.Close()
}

// isDuplicateKey reports whether err is a unique-constraint violation from
// either supported driver (MySQL 1062, SQLite UNIQUE message).
func isDuplicateKey(err error) bool {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func (s *DBService) InsertNewUser(user m.User) (m.User, error) {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(user.Password), bcrypt.DefaultCost)
	if err != nil {
		return m.User{}, err
	}

	now := time.Now().UTC()
	result, err := s.conn.Exec(`INSERT INTO users (username, password, created_at) VALUES (?, ?, ?)`,
		user.Username, string(hashedPassword), now)
	if isDuplicateKey(err) {
		return m.User{}, ErrDuplicateUsername
	}
	if err != nil {
		return m.User{}, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return m.User{}, err
	}
	user.ID = int(id)
	user.CreatedAt = now
	return user.Sanitized(), nil
}

// ValidateUser checks credentials. Unknown usernames and wrong passwords both
// come back as ErrInvalidCredentials so callers can't probe for accounts.
func (s *DBService) ValidateUser(username, password string) (m.User, error) {
	var user m.User
	err := s.conn.QueryRow(`SELECT id, username, password, created_at FROM users WHERE username = ?`, username).
		Scan(&user.ID, &user.Username, &user.Password, &user.CreatedAt)
	if err == sql.ErrNoRows {
		return m.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return m.User{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return m.User{}, ErrInvalidCredentials
	}
	return user.Sanitized(), nil
}

func (s *DBService) ListUsers() ([]m.User, error) {
	rows, err := s.conn.Query(`SELECT id, username, created_at FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []m.User
	for rows.Next() {
		var user m.User
		if err := rows.Scan(&user.ID, &user.Username, &user.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (s *DBService) GetUserByID(userID int) (m.User, error) {
	var user m.User
	err := s.conn.QueryRow(`SELECT id, username, created_at FROM users WHERE id = ?`, userID).
		Scan(&user.ID, &user.Username, &user.CreatedAt)
	if err == sql.ErrNoRows {
		return m.User{}, ErrUserNotFound
	}
	if err != nil {
		return m.User{}, err
	}
	return user, nil
}

func (s *DBService) UpdatePassword(userID int, newPassword string) error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	result, err := s.conn.Exec(`UPDATE users SET password = ? WHERE id = ?`, string(hashedPassword), userID)
	if err != nil {
		return err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// DeleteUser removes a user and everything hanging off them. The audit insert
// and the association deletes run in one transaction: a reader never sees a
// deleted association without its deletion_logs row.
func (s *DBService) DeleteUser(userID int) error {
	tx, err := s.conn.Begin()
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	_, err = tx.Exec(`INSERT INTO deletion_logs (user_id, movie_id, deleted_at)
		SELECT user_id, movie_id, ? FROM user_movies WHERE user_id = ?`, now, userID)
	if err != nil {
		tx.Rollback()
		return err
	}

	if _, err = tx.Exec(`DELETE FROM user_movies WHERE user_id = ?`, userID); err != nil {
		tx.Rollback()
		return err
	}
	if _, err = tx.Exec(`DELETE FROM user_moods WHERE user_id = ?`, userID); err != nil {
		tx.Rollback()
		return err
	}

	result, err := tx.Exec(`DELETE FROM users WHERE id = ?`, userID)
	if err != nil {
		tx.Rollback()
		return err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		tx.Rollback()
		return err
	}
	if rowsAffected == 0 {
		tx.Rollback()
		return ErrUserNotFound
	}

	return tx.Commit()
}

func (s *DBService) ListMovies() ([]m.Movie, error) {
	rows, err := s.conn.Query(`SELECT id, tmdb_id, title, overview, poster_path, vote_average, created_at
		FROM movies ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMovies(rows)
}

func scanMovies(rows *sql.Rows) ([]m.Movie, error) {
	var movies []m.Movie
	for rows.Next() {
		var movie m.Movie
		err := rows.Scan(&movie.ID, &movie.TmdbID, &movie.Title, &movie.Overview,
			&movie.PosterPath, &movie.VoteAverage, &movie.CreatedAt)
		if err != nil {
			return nil, err
		}
		movies = append(movies, movie)
	}
	return movies, rows.Err()
}

// InsertMovie adds a catalog entry outright. Duplicate tmdb_id is a conflict
// here; use UpsertMovieByTmdbID when "already there" should resolve instead.
func (s *DBService) InsertMovie(movie m.Movie) (m.Movie, error) {
	now := time.Now().UTC()
	result, err := s.conn.Exec(`INSERT INTO movies (tmdb_id, title, overview, poster_path, vote_average, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		movie.TmdbID, movie.Title, movie.Overview, movie.PosterPath, m.RoundVoteAverage(movie.VoteAverage), now)
	if isDuplicateKey(err) {
		return m.Movie{}, ErrDuplicateMovie
	}
	if err != nil {
		return m.Movie{}, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return m.Movie{}, err
	}
	movie.ID = int(id)
	movie.VoteAverage = m.RoundVoteAverage(movie.VoteAverage)
	movie.CreatedAt = now
	return movie, nil
}

// UpsertMovieByTmdbID resolves the external catalog id to the internal
// surrogate key, inserting the movie if it isn't in the catalog yet.
func (s *DBService) UpsertMovieByTmdbID(movie m.Movie) (int, error) {
	var id int
	err := s.conn.QueryRow(`SELECT id FROM movies WHERE tmdb_id = ?`, movie.TmdbID).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, err
	}

	inserted, err := s.InsertMovie(movie)
	if errors.Is(err, ErrDuplicateMovie) {
		// Lost a race with a concurrent insert; the row exists now.
		if err := s.conn.QueryRow(`SELECT id FROM movies WHERE tmdb_id = ?`, movie.TmdbID).Scan(&id); err != nil {
			return 0, err
		}
		return id, nil
	}
	if err != nil {
		return 0, err
	}
	return inserted.ID, nil
}

// AddMovieToUser saves a movie to a user's list, inserting the catalog row
// first when the movie is only known by its tmdb_id. Re-adding a movie the
// user already has is a no-op.
func (s *DBService) AddMovieToUser(userID int, movie m.Movie) error {
	var exists int
	err := s.conn.QueryRow(`SELECT 1 FROM users WHERE id = ?`, userID).Scan(&exists)
	if err == sql.ErrNoRows {
		return ErrUserNotFound
	}
	if err != nil {
		return err
	}

	movieID, err := s.UpsertMovieByTmdbID(movie)
	if err != nil {
		return err
	}

	err = s.conn.QueryRow(`SELECT 1 FROM user_movies WHERE user_id = ? AND movie_id = ?`, userID, movieID).Scan(&exists)
	if err == nil {
		return nil
	}
	if err != sql.ErrNoRows {
		return err
	}

	_, err = s.conn.Exec(`INSERT INTO user_movies (user_id, movie_id, created_at) VALUES (?, ?, ?)`,
		userID, movieID, time.Now().UTC())
	if isDuplicateKey(err) {
		return nil
	}
	return err
}

func (s *DBService) GetUserMovies(userID int) ([]m.Movie, error) {
	rows, err := s.conn.Query(`SELECT mv.id, mv.tmdb_id, mv.title, mv.overview, mv.poster_path, mv.vote_average, mv.created_at
		FROM user_movies um
		JOIN movies mv ON um.movie_id = mv.id
		WHERE um.user_id = ?
		ORDER BY mv.id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMovies(rows)
}

// RemoveMovieFromUser deletes one association. The deletion_logs insert and
// the delete are a single transaction; there is no way through this layer to
// drop an association without logging it.
func (s *DBService) RemoveMovieFromUser(userID, movieID int) error {
	tx, err := s.conn.Begin()
	if err != nil {
		return err
	}

	result, err := tx.Exec(`INSERT INTO deletion_logs (user_id, movie_id, deleted_at)
		SELECT user_id, movie_id, ? FROM user_movies WHERE user_id = ? AND movie_id = ?`,
		time.Now().UTC(), userID, movieID)
	if err != nil {
		tx.Rollback()
		return err
	}
	logged, err := result.RowsAffected()
	if err != nil {
		tx.Rollback()
		return err
	}
	if logged == 0 {
		tx.Rollback()
		return ErrMovieNotInList
	}

	if _, err := tx.Exec(`DELETE FROM user_movies WHERE user_id = ? AND movie_id = ?`, userID, movieID); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// DeleteMovie removes a catalog entry and cascades over its associations,
// logging each one.
func (s *DBService) DeleteMovie(movieID int) error {
	tx, err := s.conn.Begin()
	if err != nil {
		return err
	}

	_, err = tx.Exec(`INSERT INTO deletion_logs (user_id, movie_id, deleted_at)
		SELECT user_id, movie_id, ? FROM user_movies WHERE movie_id = ?`, time.Now().UTC(), movieID)
	if err != nil {
		tx.Rollback()
		return err
	}
	if _, err := tx.Exec(`DELETE FROM user_movies WHERE movie_id = ?`, movieID); err != nil {
		tx.Rollback()
		return err
	}

	result, err := tx.Exec(`DELETE FROM movies WHERE id = ?`, movieID)
	if err != nil {
		tx.Rollback()
		return err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		tx.Rollback()
		return err
	}
	if rowsAffected == 0 {
		tx.Rollback()
		return ErrMovieNotFound
	}
	return tx.Commit()
}

func (s *DBService) AddUserMood(userID int, mood string) (m.UserMood, error) {
	var exists int
	err := s.conn.QueryRow(`SELECT 1 FROM users WHERE id = ?`, userID).Scan(&exists)
	if err == sql.ErrNoRows {
		return m.UserMood{}, ErrUserNotFound
	}
	if err != nil {
		return m.UserMood{}, err
	}

	now := time.Now().UTC()
	result, err := s.conn.Exec(`INSERT INTO user_moods (user_id, mood, created_at) VALUES (?, ?, ?)`,
		userID, mood, now)
	if err != nil {
		return m.UserMood{}, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return m.UserMood{}, err
	}
	return m.UserMood{ID: int(id), UserID: userID, Mood: mood, CreatedAt: now}, nil
}

func (s *DBService) GetUserMoods(userID int) ([]m.UserMood, error) {
	rows, err := s.conn.Query(`SELECT id, user_id, mood, created_at FROM user_moods WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var moods []m.UserMood
	for rows.Next() {
		var mood m.UserMood
		if err := rows.Scan(&mood.ID, &mood.UserID, &mood.Mood, &mood.CreatedAt); err != nil {
			return nil, err
		}
		moods = append(moods, mood)
	}
	return moods, rows.Err()
}

// GetDeletionLogs returns the audit trail for one user, oldest first.
func (s *DBService) GetDeletionLogs(userID int) ([]m.DeletionLog, error) {
	rows, err := s.conn.Query(`SELECT id, user_id, movie_id, deleted_at FROM deletion_logs WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []m.DeletionLog
	for rows.Next() {
		var entry m.DeletionLog
		if err := rows.Scan(&entry.ID, &entry.UserID, &entry.MovieID, &entry.DeletedAt); err != nil {
			return nil, err
		}
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}
