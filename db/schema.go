package db

import (
	"database/sql"
	"fmt"

	m "github.com/rcsullivanii/flick-finder/models"
)

// EnsureDatabase creates the application database if it doesn't exist yet,
// connecting without a database selected. Callers pass the admin DSN from
// config.
func EnsureDatabase(driver, adminDSN, name string) error {
	conn, err := sql.Open(driver, adminDSN)
	if err != nil {
		return fmt.Errorf("failed to open admin connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.Exec(fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s`", name)); err != nil {
		return fmt.Errorf("failed to create database %s: %w", name, err)
	}
	return nil
}

// ProvisionSchema builds the schema the way the app expects it: users,
// user_moods and deletion_logs are created only if absent, while movies and
// user_movies are dropped and recreated every run. That makes it DESTRUCTIVE
// for the catalog and all saved lists. Test and harness use only.
//
// The FK cascades are a backstop; every deletion the application performs
// goes through the transactional delete-and-log methods in db.go.
func (s *DBService) ProvisionSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INT AUTO_INCREMENT PRIMARY KEY,
			username VARCHAR(255) NOT NULL UNIQUE,
			password VARCHAR(255) NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`DROP TABLE IF EXISTS user_movies`,
		`DROP TABLE IF EXISTS movies`,
		`CREATE TABLE movies (
			id INT AUTO_INCREMENT PRIMARY KEY,
			tmdb_id INT NOT NULL UNIQUE,
			title VARCHAR(255) NOT NULL,
			overview TEXT,
			poster_path VARCHAR(255),
			vote_average DECIMAL(3,1),
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE user_movies (
			user_id INT NOT NULL,
			movie_id INT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (user_id, movie_id),
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
			FOREIGN KEY (movie_id) REFERENCES movies(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS user_moods (
			id INT AUTO_INCREMENT PRIMARY KEY,
			user_id INT NOT NULL,
			mood VARCHAR(100) NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS deletion_logs (
			id INT AUTO_INCREMENT PRIMARY KEY,
			user_id INT NOT NULL,
			movie_id INT NOT NULL,
			deleted_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.conn.Exec(stmt); err != nil {
			return fmt.Errorf("provisioning failed: %w", err)
		}
	}
	return nil
}

// SeedMovies loads catalog entries, resolving by tmdb_id so reseeding an
// existing catalog doesn't conflict.
func (s *DBService) SeedMovies(movies []m.Movie) error {
	for _, movie := range movies {
		if _, err := s.UpsertMovieByTmdbID(movie); err != nil {
			return fmt.Errorf("failed to seed %q: %w", movie.Title, err)
		}
	}
	return nil
}

// ResetTestData clears associations and moods, deletes users whose username
// starts with prefix, and empties the catalog. Maintenance for test
// environments; it deliberately bypasses the deletion audit.
func (s *DBService) ResetTestData(prefix string) error {
	tx, err := s.conn.Begin()
	if err != nil {
		return err
	}
	stmts := []struct {
		query string
		args  []interface{}
	}{
		{`DELETE FROM user_movies`, nil},
		{`DELETE FROM user_moods`, nil},
		{`DELETE FROM users WHERE username LIKE ?`, []interface{}{prefix + "%"}},
		{`DELETE FROM movies`, nil},
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt.query, stmt.args...); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}
