package main

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
)

//go:embed templates
var templatesFS embed.FS

const (
	cookieName  = "userbase_token"
	defaultPort = "3000"
	defaultAPI  = "http://localhost:8080"
	envWebPort  = "USERBASE_WEB_PORT"
	envAPIURL   = "USERBASE_API_URL"

	roleAdmin = "Admin"
)

func main() {
	port := getEnv(envWebPort, defaultPort)
	apiBase := getEnv(envAPIURL, defaultAPI)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	// Public
	r.Get("/login", loginForm)
	r.Post("/login", loginSubmit(apiBase))
	r.Get("/register", registerForm)
	r.Post("/register", registerSubmit(apiBase))
	r.Get("/logout", logout)

	// Protected: requireAuth decodes the cookie token locally (no signature
	// check) and sends expired or missing tokens back to login.
	r.Group(func(r chi.Router) {
		r.Use(requireAuth)
		r.Get("/", home)
	})

	// Admin-only pages additionally check the decoded roles claim.
	r.Group(func(r chi.Router) {
		r.Use(requireAuth)
		r.Use(requireRole(roleAdmin))
		r.Get("/users", usersList(apiBase))
		r.Get("/users/new", userCreateForm)
		r.Post("/users", userCreate(apiBase))
		r.Get("/users/{id}/delete", userDeleteConfirm(apiBase))
		r.Post("/users/{id}/delete", userDelete(apiBase))
	})

	// Editing a profile only needs a login; the API enforces the rest.
	r.Group(func(r chi.Router) {
		r.Use(requireAuth)
		r.Get("/users/{id}/edit", userEditForm(apiBase))
		r.Post("/users/{id}/edit", userUpdate(apiBase))
	})

	log.Printf("Web UI running on http://localhost:%s (API: %s)", port, apiBase)
	if err := http.ListenAndServe(":"+port, r); err != nil {
		log.Fatal(err)
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// ====== Local token decode (client-side access guard) ======

// tokenInfo is the locally decoded token payload. The web client never
// verifies the signature; it only reads claims and the expiry. The API is
// the authority, and a 401 from it purges the cookie.
type tokenInfo struct {
	UserID   string
	Username string
	Email    string
	Roles    []string
	Expires  time.Time
}

func (t *tokenInfo) hasRole(role string) bool {
	for _, r := range t.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func decodeToken(tokenStr string) (*tokenInfo, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, claims); err != nil {
		return nil, err
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil, errors.New("token has no expiry")
	}

	info := &tokenInfo{Expires: exp.Time}
	if sub, err := claims.GetSubject(); err == nil {
		info.UserID = sub
	}
	if s, ok := claims["username"].(string); ok {
		info.Username = s
	}
	if s, ok := claims["email"].(string); ok {
		info.Email = s
	}
	// The roles claim may be a list or a single string.
	switch roles := claims["roles"].(type) {
	case []interface{}:
		for _, r := range roles {
			if s, ok := r.(string); ok {
				info.Roles = append(info.Roles, s)
			}
		}
	case string:
		info.Roles = []string{roles}
	}
	return info, nil
}

// currentToken returns the decoded cookie token, or nil when it is missing,
// undecodable, or expired.
func currentToken(r *http.Request) *tokenInfo {
	c, err := r.Cookie(cookieName)
	if err != nil || c.Value == "" {
		return nil
	}
	info, err := decodeToken(c.Value)
	if err != nil {
		return nil
	}
	if !info.Expires.After(time.Now()) {
		return nil
	}
	return info
}

func requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if currentToken(r) == nil {
			http.Redirect(w, r, "/login?next="+url.QueryEscape(r.URL.Path), http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info := currentToken(r)
			if info == nil {
				http.Redirect(w, r, "/login?next="+url.QueryEscape(r.URL.Path), http.StatusFound)
				return
			}
			if !info.hasRole(role) {
				http.Redirect(w, r, "/", http.StatusFound)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clearAuthAndRedirectToLogin purges the token cookie and sends the user to
// login. Called whenever the API answers 401 — the only place a stale token
// is proactively removed.
func clearAuthAndRedirectToLogin(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{Name: cookieName, Value: "", Path: "/", MaxAge: -1})
	next := r.URL.Path
	if r.URL.RawQuery != "" {
		next += "?" + r.URL.RawQuery
	}
	http.Redirect(w, r, "/login?next="+url.QueryEscape(next), http.StatusFound)
}

// ====== Auth pages ======

func loginForm(w http.ResponseWriter, r *http.Request) {
	if currentToken(r) != nil {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	renderTemplate(w, "login.html", nil)
}

func loginSubmit(apiBase string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		username := strings.TrimSpace(r.FormValue("username"))
		password := r.FormValue("password")
		if username == "" || password == "" {
			renderTemplate(w, "login.html", map[string]string{"Error": "Username and password are required"})
			return
		}

		body, _ := json.Marshal(map[string]string{"username": username, "password": password})
		data, status, err := apiPost(apiBase, "/auth/login", "", body)
		if err != nil {
			renderTemplate(w, "login.html", map[string]string{"Error": "Cannot reach API: " + err.Error()})
			return
		}
		if status != http.StatusOK {
			var errResp struct{ Error string }
			_ = json.Unmarshal(data, &errResp)
			msg := errResp.Error
			if msg == "" {
				msg = string(data)
			}
			renderTemplate(w, "login.html", map[string]string{"Error": msg})
			return
		}

		var out struct {
			Token string `json:"token"`
		}
		if err := json.Unmarshal(data, &out); err != nil || out.Token == "" {
			renderTemplate(w, "login.html", map[string]string{"Error": "Invalid login response"})
			return
		}

		next := r.URL.Query().Get("next")
		if next == "" {
			next = "/"
		}

		http.SetCookie(w, &http.Cookie{
			Name:     cookieName,
			Value:    out.Token,
			Path:     "/",
			MaxAge:   24 * 3600,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
		http.Redirect(w, r, next, http.StatusFound)
	}
}

func registerForm(w http.ResponseWriter, r *http.Request) {
	renderTemplate(w, "register.html", nil)
}

func registerSubmit(apiBase string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		payload := map[string]string{
			"username":  strings.TrimSpace(r.FormValue("username")),
			"email":     strings.TrimSpace(r.FormValue("email")),
			"password":  r.FormValue("password"),
			"firstName": strings.TrimSpace(r.FormValue("first_name")),
			"lastName":  strings.TrimSpace(r.FormValue("last_name")),
		}
		if payload["username"] == "" || payload["email"] == "" || payload["password"] == "" {
			renderTemplate(w, "register.html", map[string]string{"Error": "Username, email and password are required"})
			return
		}

		body, _ := json.Marshal(payload)
		data, status, err := apiPost(apiBase, "/auth/register", "", body)
		if err != nil {
			renderTemplate(w, "register.html", map[string]string{"Error": "Cannot reach API: " + err.Error()})
			return
		}
		if status != http.StatusOK {
			var errResp struct{ Error string }
			_ = json.Unmarshal(data, &errResp)
			msg := errResp.Error
			if msg == "" {
				msg = string(data)
			}
			renderTemplate(w, "register.html", map[string]string{"Error": msg})
			return
		}

		http.Redirect(w, r, "/login", http.StatusFound)
	}
}

func logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{Name: cookieName, Value: "", Path: "/", MaxAge: -1})
	http.Redirect(w, r, "/login", http.StatusFound)
}

// ====== Pages ======

func home(w http.ResponseWriter, r *http.Request) {
	info := currentToken(r)
	renderTemplate(w, "home.html", map[string]interface{}{
		"Username": info.Username,
		"Email":    info.Email,
		"Roles":    strings.Join(info.Roles, ", "),
		"IsAdmin":  info.hasRole(roleAdmin),
		"UserID":   info.UserID,
	})
}

type userView struct {
	ID        int      `json:"id"`
	Username  string   `json:"username"`
	Email     string   `json:"email"`
	FirstName string   `json:"firstName"`
	LastName  string   `json:"lastName"`
	IsActive  bool     `json:"isActive"`
	Roles     []string `json:"roles"`
}

func usersList(apiBase string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, status, err := apiGet(apiBase, "/users", cookieToken(r))
		if err != nil {
			renderTemplate(w, "users.html", map[string]interface{}{"Error": err.Error()})
			return
		}
		if status == http.StatusUnauthorized {
			clearAuthAndRedirectToLogin(w, r)
			return
		}
		if status != http.StatusOK {
			renderTemplate(w, "users.html", map[string]interface{}{"Error": "API error: " + string(data)})
			return
		}

		var users []userView
		if err := json.Unmarshal(data, &users); err != nil {
			renderTemplate(w, "users.html", map[string]interface{}{"Error": "Invalid users response"})
			return
		}

		renderTemplate(w, "users.html", map[string]interface{}{"Users": users})
	}
}

func userCreateForm(w http.ResponseWriter, r *http.Request) {
	renderTemplate(w, "user_form.html", map[string]interface{}{
		"FormAction":  "/users",
		"SubmitLabel": "Create user",
		"IsCreate":    true,
	})
}

func userCreate(apiBase string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		formErr := func(msg string) {
			renderTemplate(w, "user_form.html", map[string]interface{}{
				"Error":       msg,
				"FormAction":  "/users",
				"SubmitLabel": "Create user",
				"IsCreate":    true,
			})
		}

		payload := userPayload(r, 0)
		if payload["username"] == "" || payload["email"] == "" || r.FormValue("password") == "" {
			formErr("Username, email and password are required")
			return
		}

		body, _ := json.Marshal(payload)
		data, status, err := apiPost(apiBase, "/users", cookieToken(r), body)
		if err != nil {
			formErr(err.Error())
			return
		}
		if status == http.StatusUnauthorized {
			clearAuthAndRedirectToLogin(w, r)
			return
		}
		if status != http.StatusCreated {
			var errResp struct{ Error string }
			_ = json.Unmarshal(data, &errResp)
			msg := errResp.Error
			if msg == "" {
				msg = string(data)
			}
			formErr("API: " + msg)
			return
		}

		http.Redirect(w, r, "/users", http.StatusFound)
	}
}

func userEditForm(apiBase string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		data, status, err := apiGet(apiBase, "/users/"+id, cookieToken(r))
		if err != nil {
			renderTemplate(w, "user_form.html", map[string]interface{}{"Error": err.Error()})
			return
		}
		if status == http.StatusUnauthorized {
			clearAuthAndRedirectToLogin(w, r)
			return
		}
		if status != http.StatusOK {
			renderTemplate(w, "user_form.html", map[string]interface{}{"Error": "API error: " + string(data)})
			return
		}

		var user userView
		if err := json.Unmarshal(data, &user); err != nil {
			renderTemplate(w, "user_form.html", map[string]interface{}{"Error": "Invalid user response"})
			return
		}

		renderTemplate(w, "user_form.html", map[string]interface{}{
			"User":        user,
			"Roles":       strings.Join(user.Roles, ","),
			"FormAction":  "/users/" + id + "/edit",
			"SubmitLabel": "Save changes",
		})
	}
}

func userUpdate(apiBase string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := r.ParseForm(); err != nil {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		formErr := func(msg string) {
			renderTemplate(w, "user_form.html", map[string]interface{}{
				"Error":       msg,
				"FormAction":  "/users/" + id + "/edit",
				"SubmitLabel": "Save changes",
			})
		}

		var idNum int
		if _, err := fmt.Sscanf(id, "%d", &idNum); err != nil {
			http.Error(w, "bad id", http.StatusBadRequest)
			return
		}

		payload := userPayload(r, idNum)
		if payload["username"] == "" || payload["email"] == "" {
			formErr("Username and email are required")
			return
		}

		body, _ := json.Marshal(payload)
		data, status, err := apiPut(apiBase, "/users/"+id, cookieToken(r), body)
		if err != nil {
			formErr(err.Error())
			return
		}
		if status == http.StatusUnauthorized {
			clearAuthAndRedirectToLogin(w, r)
			return
		}
		if status != http.StatusNoContent {
			var errResp struct{ Error string }
			_ = json.Unmarshal(data, &errResp)
			msg := errResp.Error
			if msg == "" {
				msg = string(data)
			}
			formErr("API: " + msg)
			return
		}

		http.Redirect(w, r, "/", http.StatusFound)
	}
}

func userDeleteConfirm(apiBase string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		data, status, err := apiGet(apiBase, "/users/"+id, cookieToken(r))
		if err != nil {
			renderTemplate(w, "user_delete_confirm.html", map[string]interface{}{"Error": err.Error(), "UserID": id})
			return
		}
		if status == http.StatusUnauthorized {
			clearAuthAndRedirectToLogin(w, r)
			return
		}
		if status != http.StatusOK {
			renderTemplate(w, "user_delete_confirm.html", map[string]interface{}{"Error": "User not found or API error", "UserID": id})
			return
		}

		var user userView
		if err := json.Unmarshal(data, &user); err != nil {
			renderTemplate(w, "user_delete_confirm.html", map[string]interface{}{"Error": "Invalid user response", "UserID": id})
			return
		}

		renderTemplate(w, "user_delete_confirm.html", map[string]interface{}{"User": user})
	}
}

func userDelete(apiBase string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		body, status, err := apiDelete(apiBase, "/users/"+id, cookieToken(r))
		if err != nil {
			renderTemplate(w, "user_delete_confirm.html", map[string]interface{}{"Error": err.Error(), "UserID": id})
			return
		}
		if status == http.StatusUnauthorized {
			clearAuthAndRedirectToLogin(w, r)
			return
		}
		if status == http.StatusNoContent {
			http.Redirect(w, r, "/users", http.StatusFound)
			return
		}

		msg := string(body)
		if len(msg) > 200 {
			msg = msg[:200] + "..."
		}
		renderTemplate(w, "user_delete_confirm.html", map[string]interface{}{
			"Error":  "Delete failed: " + msg,
			"UserID": id,
		})
	}
}

// userPayload builds the JSON body for create/update from the posted form.
func userPayload(r *http.Request, id int) map[string]interface{} {
	roles := []string{}
	for _, part := range strings.Split(r.FormValue("roles"), ",") {
		if role := strings.TrimSpace(part); role != "" {
			roles = append(roles, role)
		}
	}
	return map[string]interface{}{
		"id":        id,
		"username":  strings.TrimSpace(r.FormValue("username")),
		"email":     strings.TrimSpace(r.FormValue("email")),
		"password":  r.FormValue("password"),
		"firstName": strings.TrimSpace(r.FormValue("first_name")),
		"lastName":  strings.TrimSpace(r.FormValue("last_name")),
		"isActive":  r.FormValue("is_active") != "",
		"roles":     roles,
	}
}

// ====== API helpers ======

func cookieToken(r *http.Request) string {
	c, err := r.Cookie(cookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

func apiDo(method, apiBase, path, token string, body []byte) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		reader = strings.NewReader(string(body))
	}
	req, err := http.NewRequest(method, apiBase+path, reader)
	if err != nil {
		return nil, 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return data, resp.StatusCode, nil
}

func apiGet(apiBase, path, token string) ([]byte, int, error) {
	return apiDo("GET", apiBase, path, token, nil)
}

func apiPost(apiBase, path, token string, body []byte) ([]byte, int, error) {
	return apiDo("POST", apiBase, path, token, body)
}

func apiPut(apiBase, path, token string, body []byte) ([]byte, int, error) {
	return apiDo("PUT", apiBase, path, token, body)
}

func apiDelete(apiBase, path, token string) ([]byte, int, error) {
	return apiDo("DELETE", apiBase, path, token, nil)
}

func renderTemplate(w http.ResponseWriter, name string, data interface{}) {
	content, err := templatesFS.ReadFile("templates/" + name)
	if err != nil {
		http.Error(w, "template not found", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	// Login and register render standalone; everything else inside the layout.
	if name == "login.html" || name == "register.html" {
		t := template.Must(template.New(name).Parse(string(content)))
		_ = t.Execute(w, data)
		return
	}

	layout, _ := templatesFS.ReadFile("templates/layout.html")
	t := template.Must(template.New("layout").Parse(string(layout)))
	t = template.Must(t.Parse(string(content)))
	if err := t.ExecuteTemplate(w, "layout", data); err != nil {
		log.Printf("template execute: %v", err)
	}
}
