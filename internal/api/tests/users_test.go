package api_test

import (
	"net/http"
	"strings"
	"testing"

	"github.com/rongwang/groupbets-server/internal/api/testutils"
	"github.com/rongwang/groupbets-server/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestCreateUser(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)

	spending := 42.0
	createReq := models.CreateUserRequest{
		ProfileURL:      "https://example.com/alice.png",
		Username:        "alice",
		Email:           "alice@example.com",
		Password:        "Password123",
		AverageSpending: &spending,
	}

	// Test case 1: Successful creation
	w := testutils.PerformRequest(testCtx.Router, http.MethodPost, "/users", createReq, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.NotContains(t, w.Body.String(), "password")

	var user models.UserResponse
	testutils.DecodeResponse(t, w, &user)
	assert.Len(t, user.ID, 24)
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, 42.0, user.AverageSpending)
	assert.NotNil(t, user.GroupIDs)
	assert.Empty(t, user.GroupIDs)

	// Test case 2: Duplicate email
	w = testutils.PerformRequest(testCtx.Router, http.MethodPost, "/users", createReq, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	var errResp models.ErrorResponse
	testutils.DecodeResponse(t, w, &errResp)
	assert.Equal(t, "DUPLICATE_EMAIL", errResp.Code)

	w = testutils.PerformRequest(testCtx.Router, http.MethodGet, "/users?email=alice@example.com", nil, nil)
	var users []models.UserResponse
	testutils.DecodeResponse(t, w, &users)
	assert.Len(t, users, 1)

	// Test case 3: Invalid request (missing required fields)
	w = testutils.PerformRequest(testCtx.Router, http.MethodPost, "/users", models.CreateUserRequest{
		Email: "bob@example.com",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Test case 4: Malformed email
	badEmail := createReq
	badEmail.Email = "not-an-email"
	w = testutils.PerformRequest(testCtx.Router, http.MethodPost, "/users", badEmail, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Test case 5: Malformed group id
	badGroup := createReq
	badGroup.Email = "carol@example.com"
	badGroup.GroupIDs = []string{"xyz"}
	w = testutils.PerformRequest(testCtx.Router, http.MethodPost, "/users", badGroup, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	testutils.DecodeResponse(t, w, &errResp)
	assert.Equal(t, "INVALID_ID", errResp.Code)

	// Test case 6: Password within 72 characters but over 72 bytes
	multibyte := createReq
	multibyte.Email = "dave@example.com"
	multibyte.Password = strings.Repeat("é", 40)
	w = testutils.PerformRequest(testCtx.Router, http.MethodPost, "/users", multibyte, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	testutils.DecodeResponse(t, w, &errResp)
	assert.Equal(t, "INVALID_REQUEST", errResp.Code)

	w = testutils.PerformRequest(testCtx.Router, http.MethodGet, "/users?email=dave@example.com", nil, nil)
	testutils.DecodeResponse(t, w, &users)
	assert.Empty(t, users)
}

func TestGetUser(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)

	created := testutils.CreateTestUser(t, testCtx.Router, "alice", "alice@example.com")

	w := testutils.PerformRequest(testCtx.Router, http.MethodGet, "/users/"+created.ID, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var user models.UserResponse
	testutils.DecodeResponse(t, w, &user)
	assert.Equal(t, created, user)

	// Unknown but well-formed id
	w = testutils.PerformRequest(testCtx.Router, http.MethodGet, "/users/"+primitive.NewObjectID().Hex(), nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Malformed ids never reach storage
	for _, id := range []string{"abc", strings.ToUpper(created.ID), created.ID + "0"} {
		w = testutils.PerformRequest(testCtx.Router, http.MethodGet, "/users/"+id, nil, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, id)
	}
}

func TestListUsersPagination(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)

	testutils.CreateTestUser(t, testCtx.Router, "first", "first@example.com")
	second := testutils.CreateTestUser(t, testCtx.Router, "second", "second@example.com")
	testutils.CreateTestUser(t, testCtx.Router, "third", "third@example.com")

	w := testutils.PerformRequest(testCtx.Router, http.MethodGet, "/users?limit=1&skip=1", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var users []models.UserResponse
	testutils.DecodeResponse(t, w, &users)
	require.Len(t, users, 1)
	assert.Equal(t, second.ID, users[0].ID)

	w = testutils.PerformRequest(testCtx.Router, http.MethodGet, "/users", nil, nil)
	testutils.DecodeResponse(t, w, &users)
	assert.Len(t, users, 3)

	w = testutils.PerformRequest(testCtx.Router, http.MethodGet, "/users?skip=5", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())

	for _, query := range []string{"limit=0", "limit=201", "skip=-1", "limit=abc"} {
		w = testutils.PerformRequest(testCtx.Router, http.MethodGet, "/users?"+query, nil, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, query)
	}
}

func TestUpdateUser(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)

	alice := testutils.CreateTestUser(t, testCtx.Router, "alice", "alice@example.com")
	testutils.CreateTestUser(t, testCtx.Router, "bob", "bob@example.com")

	// Test case 1: Only present fields change
	w := testutils.PerformRequest(testCtx.Router, http.MethodPatch, "/users/"+alice.ID, map[string]any{
		"username": "alice2",
	}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var user models.UserResponse
	testutils.DecodeResponse(t, w, &user)
	assert.Equal(t, "alice2", user.Username)
	assert.Equal(t, alice.Email, user.Email)
	assert.Equal(t, alice.ProfileURL, user.ProfileURL)

	// Test case 2: group_ids replaces the whole set
	g1, g2 := primitive.NewObjectID().Hex(), primitive.NewObjectID().Hex()
	w = testutils.PerformRequest(testCtx.Router, http.MethodPatch, "/users/"+alice.ID, map[string]any{
		"group_ids": []string{g1},
	}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = testutils.PerformRequest(testCtx.Router, http.MethodPatch, "/users/"+alice.ID, map[string]any{
		"group_ids": []string{g2, g2},
	}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	testutils.DecodeResponse(t, w, &user)
	assert.Equal(t, []string{g2}, user.GroupIDs)

	// Test case 3: Email taken by another user
	w = testutils.PerformRequest(testCtx.Router, http.MethodPatch, "/users/"+alice.ID, map[string]any{
		"email": "bob@example.com",
	}, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	// Test case 4: Multibyte password over 72 bytes
	w = testutils.PerformRequest(testCtx.Router, http.MethodPatch, "/users/"+alice.ID, map[string]any{
		"password": strings.Repeat("é", 40),
	}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	var errResp models.ErrorResponse
	testutils.DecodeResponse(t, w, &errResp)
	assert.Equal(t, "INVALID_REQUEST", errResp.Code)

	// Test case 5: Empty patch returns the current record
	w = testutils.PerformRequest(testCtx.Router, http.MethodPatch, "/users/"+alice.ID, map[string]any{}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	testutils.DecodeResponse(t, w, &user)
	assert.Equal(t, "alice2", user.Username)

	// Test case 6: Missing user
	w = testutils.PerformRequest(testCtx.Router, http.MethodPatch, "/users/"+primitive.NewObjectID().Hex(), map[string]any{
		"username": "ghost",
	}, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteUser(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)

	user := testutils.CreateTestUser(t, testCtx.Router, "alice", "alice@example.com")

	// Test case 1: Successfully delete the user
	w := testutils.PerformRequest(testCtx.Router, http.MethodDelete, "/users/"+user.ID, nil, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	// Test case 2: Delete again
	w = testutils.PerformRequest(testCtx.Router, http.MethodDelete, "/users/"+user.ID, nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Test case 3: The email is free again
	testutils.CreateTestUser(t, testCtx.Router, "alice", "alice@example.com")
}
