package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/tracklane/trackd/internal/domain/user"
)

func TestActorExtractsIdentity(t *testing.T) {
	id := uuid.New()
	var got user.Actor
	h := Actor(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got = ActorFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Actor-ID", id.String())
	req.Header.Set("X-Actor-Role", "performer")
	h.ServeHTTP(httptest.NewRecorder(), req)

	if got.ID != id {
		t.Fatalf("expected actor id %s, got %s", id, got.ID)
	}
	if got.Role != user.RolePerformer {
		t.Fatalf("expected performer role, got %q", got.Role)
	}
}

func TestActorUnknownRoleStaysZero(t *testing.T) {
	var got user.Actor
	h := Actor(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got = ActorFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Actor-Role", "superuser")
	h.ServeHTTP(httptest.NewRecorder(), req)

	if got.Role != "" {
		t.Fatalf("expected empty role, got %q", got.Role)
	}
}

func TestTenantIDFallback(t *testing.T) {
	var got string
	h := TenantID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got = TenantIDFromContext(r.Context())
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if got != DefaultTenantID {
		t.Fatalf("expected default tenant, got %q", got)
	}
}
