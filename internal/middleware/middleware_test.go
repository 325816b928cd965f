package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/portal-reports/internal/models"
	appErrors "github.com/noah-isme/portal-reports/pkg/errors"
)

type validatorStub struct {
	claims *models.JWTClaims
}

func (v validatorStub) ValidateToken(token string) (*models.JWTClaims, error) {
	if token != "good" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
	}
	return v.claims, nil
}

type observerStub struct {
	paths    []string
	statuses []int
}

func (o *observerStub) ObserveHTTPRequest(method, path string, status int, _ time.Duration) {
	o.paths = append(o.paths, method+" "+path)
	o.statuses = append(o.statuses, status)
}

func newRouter(role models.UserRole, obs *observerStub) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	if obs != nil {
		r.Use(Metrics(obs))
	}
	auth := validatorStub{claims: &models.JWTClaims{UserID: "u-1", Role: role}}
	r.GET("/schedules", JWT(auth), RequireRoles(models.RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func TestJWTAndRoles(t *testing.T) {
	cases := []struct {
		name   string
		role   models.UserRole
		header string
		status int
	}{
		{name: "missing header", role: models.RoleAdmin, status: http.StatusUnauthorized},
		{name: "wrong scheme", role: models.RoleAdmin, header: "Basic good", status: http.StatusUnauthorized},
		{name: "bad token", role: models.RoleAdmin, header: "Bearer bad", status: http.StatusUnauthorized},
		{name: "faculty forbidden", role: models.RoleFaculty, header: "Bearer good", status: http.StatusForbidden},
		{name: "admin allowed", role: models.RoleAdmin, header: "Bearer good", status: http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/schedules", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			newRouter(tc.role, nil).ServeHTTP(w, req)
			assert.Equal(t, tc.status, w.Code)
		})
	}
}

func TestMetricsRecordsRoutePattern(t *testing.T) {
	obs := &observerStub{}
	r := newRouter(models.RoleAdmin, obs)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/schedules", nil)
	req.Header.Set("Authorization", "Bearer good")
	r.ServeHTTP(w, req)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nowhere/123", nil))

	assert.Equal(t, []string{"GET /schedules", "GET unmatched"}, obs.paths)
	assert.Equal(t, []int{http.StatusOK, http.StatusNotFound}, obs.statuses)
}

func TestMetricsSkipsListedPaths(t *testing.T) {
	gin.SetMode(gin.TestMode)
	obs := &observerStub{}
	r := gin.New()
	r.Use(Metrics(obs, "/metrics"))
	r.GET("/metrics", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/metrics", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, []string{"GET /health"}, obs.paths)
}

func TestActorID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Empty(t, ActorID(c))
	assert.Nil(t, CurrentClaims(c))

	c.Set(ContextUserKey, &models.JWTClaims{UserID: "fac-7", Role: models.RoleFaculty})
	assert.Equal(t, "fac-7", ActorID(c))
	assert.Equal(t, models.RoleFaculty, CurrentClaims(c).Role)
}

func TestBearerToken(t *testing.T) {
	token, err := bearerToken("bearer  abc.def ")
	assert.NoError(t, err)
	assert.Equal(t, "abc.def", token)

	_, err = bearerToken("Bearer ")
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
}
