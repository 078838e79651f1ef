package rbac

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultPolicy(t *testing.T) {
	c := NewChecker(nil)
	assert.True(t, c.Has(RoleLearner, PermSessionPlay))
	assert.False(t, c.Has(RoleLearner, PermCaseImport))
	assert.True(t, c.Has(RoleInstructor, PermCaseImport), "case:* covers import")
	assert.True(t, c.Has(RoleAdmin, "anything:at-all"))
	assert.False(t, c.Has("student", PermCaseView))
	assert.True(t, c.Any(RoleLearner, PermCaseImport, PermCaseView))
	assert.True(t, ValidRole(RoleInstructor))
	assert.False(t, ValidRole("teacher"))
}

func TestRequire(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	h := Require(PermCaseImport)(ok)

	for role, want := range map[string]int{
		"":             http.StatusForbidden,
		RoleLearner:    http.StatusForbidden,
		RoleInstructor: http.StatusNoContent,
	} {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req = req.WithContext(WithRole(context.Background(), role))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, want, rec.Code, "role %q", role)
	}
}

func TestRequireAny(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	h := RequireAny(PermSessionAudit, PermCaseImport)(ok)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req.WithContext(WithRole(context.Background(), RoleLearner)))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"forbidden"`)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req.WithContext(WithRole(context.Background(), RoleInstructor)))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestCustomPolicy(t *testing.T) {
	c := NewChecker(map[string][]string{"auditor": {"session:audit", "case:v*"}})
	assert.True(t, c.Has("auditor", PermSessionAudit))
	assert.True(t, c.Has("auditor", PermCaseView))
	assert.False(t, c.Has("auditor", PermCaseImport))
	assert.False(t, c.Has(RoleAdmin, PermCaseView), "custom table replaces the default")
}
