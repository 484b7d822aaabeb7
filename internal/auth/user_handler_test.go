// user_handler_test.go

// unit tests for Register and the user CRUD handlers.
package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hieuhoangm38/Ecommerce/internal/store"
)

// withIDParam sets chi's {id} URL parameter on r.
func withIDParam(r *http.Request, id string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", id)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// --- Register ---

func TestRegister(t *testing.T) {
	valid := `{"username":"bob","email":"bob@example.com","password":"longenough","first_name":"Bob"}`

	t.Run("creates user with argon2id hash", func(t *testing.T) {
		h, f := newTestHandler(t)
		w := httptest.NewRecorder()
		h.Register(w, postJSON("/users/register", valid))

		if w.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
		}
		var resp struct {
			UserID int64 `json:"user_id"`
		}
		decodeBody(t, w, &resp)
		u, err := f.users.GetUserByID(context.Background(), resp.UserID)
		if err != nil {
			t.Fatalf("created user not found: %v", err)
		}
		if u.Username != "bob" || u.FirstName == nil || *u.FirstName != "Bob" {
			t.Errorf("unexpected user: %+v", u)
		}
		if !strings.HasPrefix(u.PasswordHash, "$argon2id$") {
			t.Errorf("expected argon2id hash, got %q", u.PasswordHash)
		}
		if ok, _ := VerifyPassword("longenough", u.PasswordHash); !ok {
			t.Error("stored hash should verify the registered password")
		}
	})

	t.Run("taken username is conflict", func(t *testing.T) {
		h, _ := newTestHandler(t)
		w := httptest.NewRecorder()
		h.Register(w, postJSON("/users/register", `{"username":"alice","email":"other@example.com","password":"longenough"}`))
		assertMessage(t, w, http.StatusConflict, "username or email already taken")
	})

	t.Run("validation failures", func(t *testing.T) {
		cases := map[string]struct{ body, msg string }{
			"short username": {`{"username":"ab","email":"x@example.com","password":"longenough"}`, "Username too short"},
			"bad email":      {`{"username":"carol","email":"nope","password":"longenough"}`, "Email too short"},
			"short password": {`{"username":"carol","email":"carol@example.com","password":"short"}`, "Password too short"},
			"bad json":       {`{`, "error decoding request body"},
		}
		for name, tc := range cases {
			t.Run(name, func(t *testing.T) {
				h, _ := newTestHandler(t)
				w := httptest.NewRecorder()
				h.Register(w, postJSON("/users/register", tc.body))
				assertMessage(t, w, http.StatusBadRequest, tc.msg)
			})
		}
	})

	t.Run("store failure", func(t *testing.T) {
		h, f := newTestHandler(t)
		f.users.CreateUserErr = errors.New("db down")
		w := httptest.NewRecorder()
		h.Register(w, postJSON("/users/register", valid))
		assertMessage(t, w, http.StatusInternalServerError, "internal server error")
	})

	t.Run("registered user can sign in", func(t *testing.T) {
		h, f := newTestHandler(t)
		w := httptest.NewRecorder()
		h.Register(w, postJSON("/users/register", valid))
		if w.Code != http.StatusCreated {
			t.Fatalf("register: %d", w.Code)
		}
		if _, err := f.c.Authenticate(context.Background(), "bob", "longenough"); err != nil {
			t.Errorf("Authenticate after register: %v", err)
		}
	})
}

// --- Read ---

func TestListUsers(t *testing.T) {
	h, f := newTestHandler(t)
	f.users.CreateUser(context.Background(), &store.User{Username: "bob", Email: "bob@example.com", PasswordHash: "x"})

	w := httptest.NewRecorder()
	h.ListUsers(w, withUser(httptest.NewRequest(http.MethodGet, "/users", nil), 42))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "password") {
		t.Error("password hash must never be serialized")
	}
	var users []struct {
		ID       int64  `json:"id"`
		Username string `json:"username"`
	}
	decodeBody(t, w, &users)
	if len(users) != 2 || users[0].Username != "alice" || users[1].Username != "bob" {
		t.Errorf("unexpected users: %+v", users)
	}
}

func TestGetUser(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		h, _ := newTestHandler(t)
		w := httptest.NewRecorder()
		h.GetUser(w, withIDParam(httptest.NewRequest(http.MethodGet, "/users/42", nil), "42"))
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
		var u struct {
			ID    int64  `json:"id"`
			Email string `json:"email"`
		}
		decodeBody(t, w, &u)
		if u.ID != 42 || u.Email != "alice@example.com" {
			t.Errorf("unexpected user: %+v", u)
		}
	})

	t.Run("not found", func(t *testing.T) {
		h, _ := newTestHandler(t)
		w := httptest.NewRecorder()
		h.GetUser(w, withIDParam(httptest.NewRequest(http.MethodGet, "/users/9", nil), "9"))
		assertMessage(t, w, http.StatusNotFound, "user not found")
	})

	t.Run("bad id", func(t *testing.T) {
		h, _ := newTestHandler(t)
		w := httptest.NewRecorder()
		h.GetUser(w, withIDParam(httptest.NewRequest(http.MethodGet, "/users/abc", nil), "abc"))
		assertMessage(t, w, http.StatusBadRequest, "invalid user id")
	})
}

// --- Update ---

func TestUpdateUser(t *testing.T) {
	put := func(id, body string) *http.Request {
		r := httptest.NewRequest(http.MethodPut, "/users/"+id, strings.NewReader(body))
		return withIDParam(r, id)
	}

	t.Run("updates own profile and rehashes password", func(t *testing.T) {
		h, f := newTestHandler(t)
		w := httptest.NewRecorder()
		h.UpdateUser(w, withUser(put("42", `{"last_name":"Smith","password":"brand-new-password"}`), 42))
		assertMessage(t, w, http.StatusOK, "user updated")

		u, _ := f.users.GetUserByID(context.Background(), 42)
		if u.LastName == nil || *u.LastName != "Smith" {
			t.Errorf("LastName = %v", u.LastName)
		}
		if u.Username != "alice" {
			t.Errorf("omitted field changed: username = %q", u.Username)
		}
		if ok, _ := VerifyPassword("brand-new-password", u.PasswordHash); !ok {
			t.Error("new password should verify")
		}
	})

	t.Run("other user is forbidden", func(t *testing.T) {
		h, _ := newTestHandler(t)
		w := httptest.NewRecorder()
		h.UpdateUser(w, withUser(put("42", `{"last_name":"X"}`), 7))
		assertMessage(t, w, http.StatusForbidden, "forbidden")
	})

	t.Run("taken username is conflict", func(t *testing.T) {
		h, f := newTestHandler(t)
		f.users.CreateUser(context.Background(), &store.User{Username: "bob", Email: "bob@example.com", PasswordHash: "x"})
		w := httptest.NewRecorder()
		h.UpdateUser(w, withUser(put("42", `{"username":"bob"}`), 42))
		assertMessage(t, w, http.StatusConflict, "username or email already taken")
	})

	t.Run("invalid email", func(t *testing.T) {
		h, _ := newTestHandler(t)
		w := httptest.NewRecorder()
		h.UpdateUser(w, withUser(put("42", `{"email":"not an email"}`), 42))
		assertMessage(t, w, http.StatusBadRequest, "Invalid email format")
	})
}

// --- Delete ---

func TestDeleteUser(t *testing.T) {
	del := func(id string) *http.Request {
		return withIDParam(httptest.NewRequest(http.MethodDelete, "/users/"+id, nil), id)
	}

	t.Run("deletes self and revokes credentials", func(t *testing.T) {
		h, f := newTestHandler(t)
		doVerify(t, h, doAuthenticate(t, h, f))

		w := httptest.NewRecorder()
		h.DeleteUser(w, withUser(del("42"), 42))
		assertMessage(t, w, http.StatusOK, "user deleted")

		ctx := context.Background()
		if _, err := f.users.GetUserByID(ctx, 42); !errors.Is(err, store.ErrUserNotFound) {
			t.Error("user should be gone")
		}
		if keys := f.cache.Keys(); len(keys) != 0 {
			t.Errorf("expected no cache keys left, got %v", keys)
		}
	})

	t.Run("other user is forbidden", func(t *testing.T) {
		h, _ := newTestHandler(t)
		w := httptest.NewRecorder()
		h.DeleteUser(w, withUser(del("42"), 7))
		assertMessage(t, w, http.StatusForbidden, "forbidden")
	})

	t.Run("store failure", func(t *testing.T) {
		h, f := newTestHandler(t)
		f.users.DeleteUserErr = errors.New("db down")
		w := httptest.NewRecorder()
		h.DeleteUser(w, withUser(del("42"), 42))
		assertMessage(t, w, http.StatusInternalServerError, "internal server error")
	})
}
