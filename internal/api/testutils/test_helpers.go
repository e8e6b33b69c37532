package testutils

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rongwang/groupbets-server/internal/api"
	"github.com/rongwang/groupbets-server/internal/config"
	"github.com/rongwang/groupbets-server/internal/models"
	"github.com/rongwang/groupbets-server/internal/repository"
	"github.com/rongwang/groupbets-server/internal/service"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"golang.org/x/crypto/bcrypt"
)

// TestContext holds all dependencies for tests
type TestContext struct {
	Router     *gin.Engine
	Repository repository.Repository
	Service    service.Service
}

// SetupTestContext creates a new test context with initialized dependencies.
// TEST_STORE_DRIVER selects postgres or mongo instead of the in-memory store.
func SetupTestContext(t *testing.T) *TestContext {
	// Load configuration from environment
	cfg := config.LoadConfig()
	cfg.Store.Driver = os.Getenv("TEST_STORE_DRIVER")
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = config.DriverMemory
	}

	// Override with test-specific config
	if cfg.Database.TestDBName != "" {
		cfg.Database.DBName = cfg.Database.TestDBName
	} else {
		cfg.Database.DBName = "groupbets_test"
	}
	cfg.Mongo.Database = cfg.Mongo.Database + "_test"

	repo, err := config.SetupRepository(context.Background(), cfg)
	require.NoError(t, err, "Failed to set up test storage")
	cleanupTestStore(t, repo)

	// Create service
	svc := service.NewDefaultService(repo, bcrypt.MinCost)

	// Create API handler
	handler := api.NewHandler(svc)

	// Set up Gin router
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(gin.Recovery(), api.RequestID(), api.Metrics())

	// Set up routes
	handler.SetupRoutes(router)

	return &TestContext{
		Router:     router,
		Repository: repo,
		Service:    svc,
	}
}

// CleanupTestContext cleans up test resources
func CleanupTestContext(t *TestContext) {
	cleanupTestStore(nil, t.Repository)
	t.Repository.Close()
}

// cleanupTestStore removes every record from persistent test stores
func cleanupTestStore(t *testing.T, repo repository.Repository) {
	switch r := repo.(type) {
	case *repository.PostgresRepository:
		db := r.GetDB()
		for _, table := range []string{"bet_progress", "bets", "group_past_bets", "group_member_refs", "betting_groups", "user_group_refs", "users"} {
			if _, err := db.Exec("DELETE FROM " + table); err != nil && t != nil {
				t.Logf("Warning: Failed to clean %s: %v", table, err)
			}
		}
	case *repository.MongoRepository:
		for _, coll := range []string{repository.UsersCollection, repository.GroupsCollection, repository.BetsCollection} {
			if _, err := r.Database().Collection(coll).DeleteMany(context.Background(), bson.D{}); err != nil && t != nil {
				t.Logf("Warning: Failed to clean %s: %v", coll, err)
			}
		}
	}
}

// PerformRequest executes an HTTP request against the router
func PerformRequest(r http.Handler, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer

	switch b := body.(type) {
	case nil:
		reqBody = bytes.NewBuffer(nil)
	case string:
		reqBody = bytes.NewBufferString(b)
	default:
		jsonBody, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBody)
	}

	req, _ := http.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// DecodeResponse unmarshals the recorded body into out
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out), "body: %s", w.Body.String())
}

// CreateTestUser creates a user through the API and returns it
func CreateTestUser(t *testing.T, router http.Handler, username, email string) models.UserResponse {
	spending := 12.5
	w := PerformRequest(router, http.MethodPost, "/users", models.CreateUserRequest{
		ProfileURL:      "https://example.com/" + username + ".png",
		Username:        username,
		Email:           email,
		Password:        "testpassword",
		AverageSpending: &spending,
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code, "body: %s", w.Body.String())

	var user models.UserResponse
	DecodeResponse(t, w, &user)
	return user
}

// CreateTestGroup creates a group through the API and returns it
func CreateTestGroup(t *testing.T, router http.Handler, name string) models.GroupResponse {
	w := PerformRequest(router, http.MethodPost, "/groups", models.CreateGroupRequest{Name: name}, nil)
	require.Equal(t, http.StatusCreated, w.Code, "body: %s", w.Body.String())

	var group models.GroupResponse
	DecodeResponse(t, w, &group)
	return group
}

// CreateTestBet creates a planned bet in groupID and returns it
func CreateTestBet(t *testing.T, router http.Handler, groupID, title string) models.BetResponse {
	w := PerformRequest(router, http.MethodPost, "/bets", map[string]any{
		"group_id":   groupID,
		"title":      title,
		"start_date": "2025-01-01T00:00:00Z",
		"end_date":   "2025-02-01T00:00:00Z",
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code, "body: %s", w.Body.String())

	var bet models.BetResponse
	DecodeResponse(t, w, &bet)
	return bet
}
