package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"

	"github.com/rcsullivanii/flick-finder/db"
	m "github.com/rcsullivanii/flick-finder/models"
)

// DBService is the storage surface the handlers depend on. *db.DBService
// satisfies it; tests substitute a mock.
type DBService interface {
	InsertNewUser(user m.User) (m.User, error)
	ValidateUser(username, password string) (m.User, error)
	ListUsers() ([]m.User, error)
	GetUserByID(userID int) (m.User, error)
	UpdatePassword(userID int, newPassword string) error
	DeleteUser(userID int) error
	ListMovies() ([]m.Movie, error)
	AddMovieToUser(userID int, movie m.Movie) error
	GetUserMovies(userID int) ([]m.Movie, error)
	RemoveMovieFromUser(userID, movieID int) error
	AddUserMood(userID int, mood string) (m.UserMood, error)
	GetUserMoods(userID int) ([]m.UserMood, error)
}

type ConfigService interface {
	GetJWTSecret() string
	GetServerPort() string
	GetAllowedOrigins() []string
}

type API struct {
	DB     DBService
	Config ConfigService
}

var limiter = rate.NewLimiter(5, 10)

func rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests"})
			c.Abort()
			return
		}
		c.Next()
	}
}

func securityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Next()
	}
}

func (api *API) setupCORS() cors.Config {
	config := cors.DefaultConfig()
	config.AllowOrigins = api.Config.GetAllowedOrigins()
	config.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	config.AllowHeaders = []string{
		"Origin",
		"Content-Type",
		"Content-Length",
		"Accept-Encoding",
		"Authorization",
	}
	config.ExposeHeaders = []string{"Content-Length"}
	config.AllowCredentials = true
	config.MaxAge = 12 * time.Hour
	return config
}

func (api *API) setupRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(securityHeadersMiddleware())
	router.Use(rateLimitMiddleware())
	router.Use(cors.New(api.setupCORS()))

	api.setupPublicRoutes(router)
	api.setupProtectedRoutes(router)
	return router
}

func (api *API) setupPublicRoutes(router *gin.Engine) {
	router.POST("/users", api.handleCreateUser)
	router.POST("/login", api.handleLogin)
	router.GET("/users", api.handleListUsers)
	router.GET("/movies", api.handleListMovies)
}

// setupProtectedRoutes registers everything scoped to one user; the auth
// middleware requires a token and the handlers check it matches the path id.
func (api *API) setupProtectedRoutes(router *gin.Engine) {
	protected := router.Group("/user")
	protected.Use(api.authMiddleware())
	{
		protected.GET("/:id", api.handleGetUser)
		protected.DELETE("/:id", api.handleDeleteUser)
		protected.PUT("/:id/password", api.handleUpdatePassword)
		protected.POST("/:id/movies", api.handleAddUserMovie)
		protected.GET("/:id/movies", api.handleGetUserMovies)
		protected.DELETE("/:id/movies/:movieId", api.handleRemoveUserMovie)
		protected.POST("/:id/moods", api.handleAddUserMood)
		protected.GET("/:id/moods", api.handleGetUserMoods)
	}
}

// pathUserID parses the :id segment and enforces that the authenticated user
// only touches their own resources. Writes the error response itself.
func (api *API) pathUserID(c *gin.Context) (int, bool) {
	userID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return 0, false
	}
	if authenticated := c.GetInt("user_id"); authenticated != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "Access denied"})
		return 0, false
	}
	return userID, true
}

func (api *API) handleCreateUser(c *gin.Context) {
	var signupData struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&signupData); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Username and password are required"})
		return
	}

	user, err := api.DB.InsertNewUser(m.User{Username: signupData.Username, Password: signupData.Password})
	if errors.Is(err, db.ErrDuplicateUsername) {
		c.JSON(http.StatusConflict, gin.H{"error": "Username already exists"})
		return
	}
	if err != nil {
		log.Printf("Error creating user: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":       user.ID,
		"username": user.Username,
	})
}

func (api *API) handleLogin(c *gin.Context) {
	var loginData struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&loginData); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid login data"})
		return
	}

	user, err := api.DB.ValidateUser(loginData.Username, loginData.Password)
	if errors.Is(err, db.ErrInvalidCredentials) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}
	if err != nil {
		log.Printf("Error validating user: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	token, err := api.generateToken(user.ID)
	if err != nil {
		log.Printf("Error generating token: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not generate token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token": token,
		"user": gin.H{
			"id":       user.ID,
			"username": user.Username,
		},
	})
}

func (api *API) handleListUsers(c *gin.Context) {
	users, err := api.DB.ListUsers()
	if err != nil {
		log.Printf("Error listing users: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	if users == nil {
		users = []m.User{}
	}
	c.JSON(http.StatusOK, users)
}

func (api *API) handleListMovies(c *gin.Context) {
	movies, err := api.DB.ListMovies()
	if err != nil {
		log.Printf("Error listing movies: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	if movies == nil {
		movies = []m.Movie{}
	}
	c.JSON(http.StatusOK, movies)
}

func (api *API) handleGetUser(c *gin.Context) {
	userID, ok := api.pathUserID(c)
	if !ok {
		return
	}

	user, err := api.DB.GetUserByID(userID)
	if errors.Is(err, db.ErrUserNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	if err != nil {
		log.Printf("Error getting user: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	c.JSON(http.StatusOK, user)
}

func (api *API) handleDeleteUser(c *gin.Context) {
	userID, ok := api.pathUserID(c)
	if !ok {
		return
	}

	err := api.DB.DeleteUser(userID)
	if errors.Is(err, db.ErrUserNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	if err != nil {
		log.Printf("Error deleting user: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "User deleted successfully"})
}

func (api *API) handleUpdatePassword(c *gin.Context) {
	userID, ok := api.pathUserID(c)
	if !ok {
		return
	}

	var updateData struct {
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&updateData); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "New password is required"})
		return
	}

	err := api.DB.UpdatePassword(userID, updateData.Password)
	if errors.Is(err, db.ErrUserNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	if err != nil {
		log.Printf("Error updating password: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Password updated successfully"})
}

func (api *API) handleAddUserMovie(c *gin.Context) {
	userID, ok := api.pathUserID(c)
	if !ok {
		return
	}

	var movieData struct {
		TmdbID      int     `json:"tmdb_id" binding:"required"`
		Title       string  `json:"title" binding:"required"`
		Overview    string  `json:"overview"`
		PosterPath  string  `json:"poster_path"`
		VoteAverage float64 `json:"vote_average"`
	}
	if err := c.ShouldBindJSON(&movieData); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tmdb_id and title are required"})
		return
	}

	err := api.DB.AddMovieToUser(userID, m.Movie{
		TmdbID:      movieData.TmdbID,
		Title:       movieData.Title,
		Overview:    movieData.Overview,
		PosterPath:  movieData.PosterPath,
		VoteAverage: movieData.VoteAverage,
	})
	if errors.Is(err, db.ErrUserNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	if err != nil {
		log.Printf("Error adding movie to user: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Movie added to list"})
}

func (api *API) handleGetUserMovies(c *gin.Context) {
	userID, ok := api.pathUserID(c)
	if !ok {
		return
	}

	movies, err := api.DB.GetUserMovies(userID)
	if err != nil {
		log.Printf("Error getting user movies: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	if movies == nil {
		movies = []m.Movie{}
	}
	c.JSON(http.StatusOK, movies)
}

func (api *API) handleRemoveUserMovie(c *gin.Context) {
	userID, ok := api.pathUserID(c)
	if !ok {
		return
	}
	movieID, err := strconv.Atoi(c.Param("movieId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid movie ID"})
		return
	}

	err = api.DB.RemoveMovieFromUser(userID, movieID)
	if errors.Is(err, db.ErrMovieNotInList) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Movie not in user's list"})
		return
	}
	if err != nil {
		log.Printf("Error removing movie from user: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Movie removed from list"})
}

func (api *API) handleAddUserMood(c *gin.Context) {
	userID, ok := api.pathUserID(c)
	if !ok {
		return
	}

	var moodData struct {
		Mood string `json:"mood" binding:"required"`
	}
	if err := c.ShouldBindJSON(&moodData); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Mood is required"})
		return
	}

	mood, err := api.DB.AddUserMood(userID, moodData.Mood)
	if errors.Is(err, db.ErrUserNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	if err != nil {
		log.Printf("Error adding mood: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	c.JSON(http.StatusCreated, mood)
}

func (api *API) handleGetUserMoods(c *gin.Context) {
	userID, ok := api.pathUserID(c)
	if !ok {
		return
	}

	moods, err := api.DB.GetUserMoods(userID)
	if err != nil {
		log.Printf("Error getting moods: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	if moods == nil {
		moods = []m.UserMood{}
	}
	c.JSON(http.StatusOK, moods)
}

func (api *API) generateToken(userID int) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"exp":     time.Now().Add(24 * time.Hour).Unix(),
	})
	return token.SignedString([]byte(api.Config.GetJWTSecret()))
}

func (api *API) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			c.Abort()
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(api.Config.GetJWTSecret()), nil
		})
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			c.Abort()
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok || !token.Valid {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token claims"})
			c.Abort()
			return
		}
		userID, ok := claims["user_id"].(float64)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token claims"})
			c.Abort()
			return
		}
		c.Set("user_id", int(userID))
		c.Next()
	}
}

// ExposeAPI runs the HTTP server until SIGINT/SIGTERM, then drains it.
func ExposeAPI(dbService DBService, config ConfigService) {
	api := &API{DB: dbService, Config: config}
	router := api.setupRouter()

	srv := &http.Server{
		Addr:         ":" + config.GetServerPort(),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Printf("Listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to initialize server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}
	log.Println("Server exiting")
}
