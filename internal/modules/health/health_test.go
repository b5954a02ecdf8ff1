package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgredis "github.com/emberfall-zone/core/internal/pkg/redis"
	"github.com/emberfall-zone/core/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestHealthReportsComponents(t *testing.T) {
	db := testutil.SetupTestDB(t)
	mr := miniredis.RunT(t)
	cache := pkgredis.Wrap(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))

	router := gin.New()
	NewHandler(db, cache, nil).RegisterRoutes(router.Group("/api/v1"), func(c *gin.Context) { c.Next() })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	data := body["data"].(map[string]interface{})
	assert.Equal(t, "ok", data["status"])
	assert.Equal(t, "up", data["database"])
	assert.Equal(t, "up", data["redis"])
	assert.NotEmpty(t, data["uptime"])
}

func TestHealthDegradedWithoutRedis(t *testing.T) {
	db := testutil.SetupTestDB(t)

	router := gin.New()
	NewHandler(db, nil, nil).RegisterRoutes(router.Group("/api/v1"), func(c *gin.Context) { c.Next() })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	data := body["data"].(map[string]interface{})
	assert.Equal(t, "ok", data["status"])
	assert.Equal(t, "down", data["redis"])
}
