package server

import (
	"bytes"
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/novelboard/internal/auth"
	"github.com/MarcoPoloResearchLab/novelboard/internal/catalog"
	"github.com/MarcoPoloResearchLab/novelboard/internal/classification"
	"github.com/MarcoPoloResearchLab/novelboard/internal/dashboard"
	"github.com/MarcoPoloResearchLab/novelboard/internal/ratings"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	sessionContextKey = "novelboard_session"
	queryDateLayout   = "2006-01-02"
	exportStampLayout = "20060102_1504"
	defaultLoginBurst = 5
)

var (
	errMissingTokenIssuer   = errors.New("token issuer dependency required")
	errMissingAuthenticator = errors.New("session authenticator dependency required")
	errMissingDashboard     = errors.New("dashboard service dependency required")
	errMissingSessions      = errors.New("session registry dependency required")
	errMissingPassword      = errors.New("shared password required")
)

// SessionTokenIssuer signs tokens for freshly opened sessions.
type SessionTokenIssuer interface {
	IssueSessionToken(ctx context.Context, identity auth.SessionIdentity) (string, int64, error)
}

// SessionAuthenticator validates the token attached to a request.
type SessionAuthenticator interface {
	ValidateRequest(r *http.Request) (auth.SessionClaims, error)
	CookieName() string
}

// DashboardService is the read and write surface the handlers call.
type DashboardService interface {
	Browse(ctx context.Context, session *dashboard.Session, query dashboard.Query) (dashboard.Page, error)
	Genres(ctx context.Context) ([]string, error)
	Detail(ctx context.Context, session *dashboard.Session, submissionID ratings.SubmissionID) (dashboard.Detail, error)
	SubmitRating(ctx context.Context, session *dashboard.Session, request dashboard.RatingRequest) (dashboard.PendingWrite, error)
	SubmitComment(ctx context.Context, session *dashboard.Session, submissionID ratings.SubmissionID, comment string) (dashboard.PendingWrite, error)
	Export(ctx context.Context) ([]dashboard.ExportRow, error)
}

// Dependencies wires the HTTP layer.
type Dependencies struct {
	Tokens             SessionTokenIssuer
	Authenticator      SessionAuthenticator
	Dashboard          DashboardService
	Sessions           *SessionRegistry
	Roster             ratings.Roster
	SharedPassword     string
	LoginRatePerMinute int
	AllowedOrigins     []string
	Clock              func() time.Time
	Logger             *zap.Logger
}

// NewHTTPHandler builds the gin router serving the dashboard API.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Tokens == nil {
		return nil, errMissingTokenIssuer
	}
	if deps.Authenticator == nil {
		return nil, errMissingAuthenticator
	}
	if deps.Dashboard == nil {
		return nil, errMissingDashboard
	}
	if deps.Sessions == nil {
		return nil, errMissingSessions
	}
	if deps.SharedPassword == "" {
		return nil, errMissingPassword
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(deps.AllowedOrigins))

	handler := &httpHandler{
		tokens:        deps.Tokens,
		authenticator: deps.Authenticator,
		dashboard:     deps.Dashboard,
		sessions:      deps.Sessions,
		roster:        deps.Roster,
		password:      []byte(deps.SharedPassword),
		loginLimiter:  newLoginLimiter(deps.LoginRatePerMinute),
		clock:         clock,
		logger:        logger,
	}

	router.GET("/healthz", handler.handleHealth)
	router.POST("/auth/login", handler.handleLogin)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.POST("/auth/logout", handler.handleLogout)
	protected.GET("/submissions", handler.handleBrowse)
	protected.GET("/submissions/:id", handler.handleDetail)
	protected.POST("/submissions/:id/rating", handler.handleRating)
	protected.POST("/submissions/:id/comment", handler.handleComment)
	protected.GET("/genres", handler.handleGenres)
	protected.GET("/export.csv", handler.handleExportCSV)
	protected.GET("/export.xlsx", handler.handleExportWorkbook)

	return router, nil
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 || containsWildcard(origins) {
		config.AllowOriginFunc = func(string) bool { return true }
	} else {
		config.AllowOrigins = origins
	}
	return cors.New(config)
}

func containsWildcard(origins []string) bool {
	for _, origin := range origins {
		if strings.TrimSpace(origin) == "*" {
			return true
		}
	}
	return false
}

func newLoginLimiter(perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := defaultLoginBurst
	if perMinute < burst {
		burst = perMinute
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), burst)
}

type httpHandler struct {
	tokens        SessionTokenIssuer
	authenticator SessionAuthenticator
	dashboard     DashboardService
	sessions      *SessionRegistry
	roster        ratings.Roster
	password      []byte
	loginLimiter  *rate.Limiter
	clock         func() time.Time
	logger        *zap.Logger
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type loginRequestPayload struct {
	ReviewerID string `json:"reviewer_id"`
	Password   string `json:"password"`
}

type loginResponsePayload struct {
	AccessToken string       `json:"access_token"`
	ExpiresIn   int64        `json:"expires_in"`
	TokenType   string       `json:"token_type"`
	ReviewerID  string       `json:"reviewer_id"`
	Role        ratings.Role `json:"role"`
	RoleLabel   string       `json:"role_label"`
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	if !h.loginLimiter.Allow() {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate_limited"})
		return
	}

	var request loginRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	reviewerID, err := ratings.NewReviewerID(request.ReviewerID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_reviewer_id"})
		return
	}

	role, known := h.roster.RoleOf(reviewerID)
	passwordMatches := subtle.ConstantTimeCompare([]byte(request.Password), h.password) == 1
	if !known || !passwordMatches {
		h.logger.Info("login rejected", zap.String("reviewer_id", reviewerID.String()), zap.Bool("known_reviewer", known))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	session := h.sessions.Open(reviewerID, role)
	token, expiresIn, err := h.tokens.IssueSessionToken(c.Request.Context(), auth.SessionIdentity{
		ReviewerID: reviewerID.String(),
		SessionID:  session.ID(),
		Role:       string(role),
	})
	if err != nil {
		h.sessions.Close(session.ID())
		h.logger.Error("failed to issue session token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}

	http.SetCookie(c.Writer, &http.Cookie{
		Name:     h.authenticator.CookieName(),
		Value:    token,
		Path:     "/",
		MaxAge:   int(expiresIn),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	c.JSON(http.StatusOK, loginResponsePayload{
		AccessToken: token,
		ExpiresIn:   expiresIn,
		TokenType:   "Bearer",
		ReviewerID:  reviewerID.String(),
		Role:        role,
		RoleLabel:   role.Label(),
	})
}

func (h *httpHandler) handleLogout(c *gin.Context) {
	session := currentSession(c)
	h.sessions.Close(session.ID())
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     h.authenticator.CookieName(),
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	claims, err := h.authenticator.ValidateRequest(c.Request)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) || errors.Is(err, auth.ErrExpiredSessionToken) || errors.Is(err, auth.ErrMissingSessionToken) {
			h.logger.Info("token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	reviewerID := ratings.ReviewerID(claims.ReviewerID)
	role, known := h.roster.RoleOf(reviewerID)
	if !known {
		h.logger.Warn("token for reviewer outside roster", zap.String("reviewer_id", claims.ReviewerID))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	session, ok := h.sessions.Resume(claims.SessionID, reviewerID, role)
	if !ok {
		h.logger.Warn("session bound to another reviewer", zap.String("session_id", claims.SessionID))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(sessionContextKey, session)
	c.Next()
}

func currentSession(c *gin.Context) *dashboard.Session {
	value, ok := c.Get(sessionContextKey)
	if !ok {
		return nil
	}
	session, _ := value.(*dashboard.Session)
	return session
}

func (h *httpHandler) handleBrowse(c *gin.Context) {
	query, err := parseQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	page, err := h.dashboard.Browse(c.Request.Context(), currentSession(c), query)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *httpHandler) handleGenres(c *gin.Context) {
	genres, err := h.dashboard.Genres(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"genres": genres})
}

func (h *httpHandler) handleDetail(c *gin.Context) {
	submissionID, ok := submissionParam(c)
	if !ok {
		return
	}
	detail, err := h.dashboard.Detail(c.Request.Context(), currentSession(c), submissionID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

type ratingRequestPayload struct {
	Rating  string  `json:"rating"`
	Comment *string `json:"comment"`
}

type commentRequestPayload struct {
	Comment *string `json:"comment"`
}

type writeResponsePayload struct {
	SubmissionID string              `json:"submission_id"`
	Rating       ratings.RatingValue `json:"rating"`
	Comment      string              `json:"comment"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

func newWriteResponse(write dashboard.PendingWrite) writeResponsePayload {
	return writeResponsePayload{
		SubmissionID: write.SubmissionID.String(),
		Rating:       write.Rating,
		Comment:      write.Comment,
		UpdatedAt:    write.UpdatedAt,
	}
}

func (h *httpHandler) handleRating(c *gin.Context) {
	submissionID, ok := submissionParam(c)
	if !ok {
		return
	}
	var request ratingRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	value, err := ratings.ParseRatingValue(request.Rating)
	if err != nil || value.IsEmpty() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_rating"})
		return
	}

	write, err := h.dashboard.SubmitRating(c.Request.Context(), currentSession(c), dashboard.RatingRequest{
		SubmissionID: submissionID,
		Rating:       value,
		Comment:      request.Comment,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newWriteResponse(write))
}

func (h *httpHandler) handleComment(c *gin.Context) {
	submissionID, ok := submissionParam(c)
	if !ok {
		return
	}
	var request commentRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || request.Comment == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	write, err := h.dashboard.SubmitComment(c.Request.Context(), currentSession(c), submissionID, *request.Comment)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newWriteResponse(write))
}

func (h *httpHandler) handleExportCSV(c *gin.Context) {
	h.export(c, "csv", "text/csv; charset=utf-8", dashboard.WriteCSV)
}

func (h *httpHandler) handleExportWorkbook(c *gin.Context) {
	h.export(c, "xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", dashboard.WriteWorkbook)
}

func (h *httpHandler) export(c *gin.Context, extension, contentType string, write func(w io.Writer, rows []dashboard.ExportRow) error) {
	rows, err := h.dashboard.Export(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	var buffer bytes.Buffer
	if err := write(&buffer, rows); err != nil {
		h.logger.Error("failed to render export", zap.String("format", extension), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "export_failed"})
		return
	}
	filename := fmt.Sprintf("classified_%s.%s", h.clock().In(dashboard.DisplayLocation).Format(exportStampLayout), extension)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, contentType, buffer.Bytes())
}

func submissionParam(c *gin.Context) (ratings.SubmissionID, bool) {
	submissionID, err := ratings.NewSubmissionID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_submission_id"})
		return "", false
	}
	return submissionID, true
}

type serviceErrorCoder interface {
	Code() string
}

func (h *httpHandler) respondError(c *gin.Context, err error) {
	status, label := classifyError(err)
	body := gin.H{"error": label}
	var coder serviceErrorCoder
	if errors.As(err, &coder) {
		body["code"] = coder.Code()
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Int("status", status), zap.Error(err))
	}
	c.JSON(status, body)
}

func classifyError(err error) (int, string) {
	var storeErr *ratings.StoreError
	switch {
	case errors.Is(err, ratings.ErrInvalidRating),
		errors.Is(err, ratings.ErrInvalidSubmissionID),
		errors.Is(err, ratings.ErrInvalidReviewerID):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, dashboard.ErrSubmissionNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, catalog.ErrCatalogUnavailable), errors.Is(err, catalog.ErrCatalogEmpty):
		return http.StatusServiceUnavailable, "catalog_unavailable"
	case errors.As(err, &storeErr):
		return http.StatusBadGateway, "store_unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

type queryError string

func (e queryError) Error() string {
	return string(e)
}

func parseQuery(c *gin.Context) (dashboard.Query, error) {
	query := dashboard.Query{
		Genre:     strings.TrimSpace(c.Query("genre")),
		Include:   c.Query("include"),
		Exclude:   c.Query("exclude"),
		SortKey:   dashboard.ParseSortKey(c.Query("sort")),
		Ascending: strings.EqualFold(c.Query("order"), "asc"),
	}

	var err error
	if query.Status, err = parseStatusParam(c.Query("status")); err != nil {
		return dashboard.Query{}, err
	}
	if query.Flag, err = parseStatusParam(c.Query("flag")); err != nil {
		return dashboard.Query{}, err
	}
	if query.MinScore, err = parseIntParam(c.Query("min_score")); err != nil {
		return dashboard.Query{}, err
	}
	if query.MaxScore, err = parseIntParam(c.Query("max_score")); err != nil {
		return dashboard.Query{}, err
	}
	page, err := parseIntParam(c.Query("page"))
	if err != nil {
		return dashboard.Query{}, err
	}
	pageSize, err := parseIntParam(c.Query("page_size"))
	if err != nil {
		return dashboard.Query{}, err
	}
	query.Page, query.PageSize = int(page), int(pageSize)

	ranges := []struct {
		from, to   string
		fromTarget **time.Time
		toTarget   **time.Time
	}{
		{"first_published_from", "first_published_to", &query.FirstPublishedFrom, &query.FirstPublishedTo},
		{"last_published_from", "last_published_to", &query.LastPublishedFrom, &query.LastPublishedTo},
		{"updated_from", "updated_to", &query.UpdatedFrom, &query.UpdatedTo},
	}
	for _, dateRange := range ranges {
		from, err := parseDayParam(c.Query(dateRange.from), false)
		if err != nil {
			return dashboard.Query{}, err
		}
		to, err := parseDayParam(c.Query(dateRange.to), true)
		if err != nil {
			return dashboard.Query{}, err
		}
		*dateRange.fromTarget, *dateRange.toTarget = from, to
	}
	return query, nil
}

func parseStatusParam(raw string) (*classification.Status, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	status, err := classification.ParseStatus(raw)
	if err != nil {
		return nil, queryError("invalid_status")
	}
	return &status, nil
}

func parseIntParam(raw string) (int64, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, nil
	}
	value, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil || value < 0 {
		return 0, queryError("invalid_number")
	}
	return value, nil
}

// Days are interpreted in the display zone; an upper bound covers the whole day.
func parseDayParam(raw string, endOfDay bool) (*time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, nil
	}
	day, err := time.ParseInLocation(queryDateLayout, trimmed, dashboard.DisplayLocation)
	if err != nil {
		return nil, queryError("invalid_date")
	}
	if endOfDay {
		day = day.Add(24*time.Hour - time.Nanosecond)
	}
	return &day, nil
}
