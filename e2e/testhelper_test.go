package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/afero"

	"github.com/QLi007/QLi007-ai-music-platform-v0.1/internal/auth"
	"github.com/QLi007/QLi007-ai-music-platform-v0.1/internal/client"
	"github.com/QLi007/QLi007-ai-music-platform-v0.1/internal/config"
	"github.com/QLi007/QLi007-ai-music-platform-v0.1/internal/database"
	"github.com/QLi007/QLi007-ai-music-platform-v0.1/internal/handler"
	"github.com/QLi007/QLi007-ai-music-platform-v0.1/internal/logger"
	"github.com/QLi007/QLi007-ai-music-platform-v0.1/internal/middleware"
	"github.com/QLi007/QLi007-ai-music-platform-v0.1/internal/repository"
	"github.com/QLi007/QLi007-ai-music-platform-v0.1/internal/server"
	"github.com/QLi007/QLi007-ai-music-platform-v0.1/internal/service"
	"github.com/QLi007/QLi007-ai-music-platform-v0.1/internal/storage"
	"github.com/QLi007/QLi007-ai-music-platform-v0.1/internal/validation"
)

const testJWTSecret = "test-secret-for-e2e"

// testApp holds all components needed for testing
type testApp struct {
	app   *fiber.App
	suno  *sunoFake
	files storage.Storage
	queue *recordingQueue
}

// sunoFake stands in for the Suno API. The first failGenerate calls to
// /generate answer 500.
type sunoFake struct {
	mu           sync.Mutex
	failGenerate int
	emptyID      bool
	failQuota    bool
	calls        int
	cookies      []string
}

func (f *sunoFake) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/generate":
		f.calls++
		f.cookies = append(f.cookies, r.Header.Get("Cookie"))
		if f.calls <= f.failGenerate {
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprint(w, `{"detail":"upstream busy"}`)
			return
		}
		if f.emptyID {
			fmt.Fprint(w, `{}`)
			return
		}
		fmt.Fprintf(w, `{"id":"gen-%d"}`, f.calls)
	case "/get":
		id := r.URL.Query().Get("ids")
		fmt.Fprintf(w, `[{"id":%q,"status":"complete","audio_url":"https://cdn.example.com/%s.mp3"}]`, id, id)
	case "/quota":
		if f.failQuota {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprint(w, `{"detail":"down"}`)
			return
		}
		fmt.Fprint(w, `{"credits_left":40,"monthly_limit":50,"monthly_usage":10,"period":"month"}`)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *sunoFake) generateCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type recordingQueue struct {
	mu  sync.Mutex
	ids []string
}

func (q *recordingQueue) EnqueueGeneration(ctx context.Context, recordID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ids = append(q.ids, recordID)
	return nil
}

func (q *recordingQueue) EnqueueSync(ctx context.Context, recordID string, poll int, delay time.Duration) error {
	return nil
}

// setupApp builds the same app as main.go on an in-memory database, an
// in-memory filesystem and a fake Suno server.
func setupApp(t *testing.T, opts ...func(*config.Config)) *testApp {
	t.Helper()

	log := logger.Discard()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.OpenSQLite(fmt.Sprintf("file:e2e_%s?mode=memory&cache=shared", name), log)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	suno := &sunoFake{}
	sunoServer := httptest.NewServer(suno)
	t.Cleanup(sunoServer.Close)

	cfg := &config.Config{
		Server: config.ServerConfig{Env: "test", BodyLimitMB: 10},
		Suno: config.SunoConfig{
			BaseURL:     sunoServer.URL,
			Cookie:      "session=e2e",
			Timeout:     5 * time.Second,
			MaxAttempts: 2,
		},
		Storage: config.StorageConfig{
			Backend:           "local",
			Location:          "/uploads",
			TempDir:           "/tmp",
			MaxFileSize:       64 * 1024,
			AllowedExtensions: []string{"mp3", "wav"},
			URLPrefix:         "/api/storage/download",
			MaxFilenameLength: 255,
		},
		// Use very high rate limits so tests don't get blocked
		RateLimit: config.RateLimitConfig{GeneratePerHour: 10000, UploadPerHour: 10000},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	files, err := storage.NewLocalStorage(afero.NewMemMapFs(), cfg.Storage.Location, cfg.Storage.TempDir,
		storage.NewPolicy(cfg.Storage))
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}

	records := repository.NewRecordRepository(db)
	users := repository.NewUserRepository(db)
	sunoClient := client.NewSunoClient(&cfg.Suno, log)

	queue := &recordingQueue{}
	generationService := service.NewGenerationService(records, users, sunoClient, files,
		service.RetryPolicyFromConfig(cfg.Suno), log)
	generationService.SetQueue(queue, service.SyncPolicy{})
	userService := service.NewUserService(users)

	validate := validation.New()
	authenticator := auth.NewAuthenticator(nil, testJWTSecret)

	app := server.NewApp(server.Deps{
		Config:      cfg,
		Log:         log,
		Music:       handler.NewMusicHandler(generationService, validate),
		Users:       handler.NewUserHandler(userService, generationService, validate),
		Storage:     handler.NewStorageHandler(files),
		Auth:        handler.NewAuthHandler(authenticator),
		APIAuth:     middleware.Authenticate(authenticator),
		RateLimiter: middleware.NewRateLimiter(nil),
		Health: func() fiber.Map {
			return fiber.Map{"database": true, "suno": sunoClient.IsConfigured(), "storage": "local"}
		},
	})

	return &testApp{app: app, suno: suno, files: files, queue: queue}
}

// generateToken creates a legacy HMAC JWT token for test requests.
func generateToken(t *testing.T) string {
	t.Helper()
	claims := auth.LegacyClaims{
		UserID: "test-user-123",
		Email:  "test@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "aimusic-api",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}
	return signed
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body string, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return app.Test(req, -1)
}

// doAuthRequest performs an authenticated request.
func doAuthRequest(t *testing.T, app *fiber.App, method, path, body string) *http.Response {
	t.Helper()
	token := generateToken(t)
	resp, err := doRequest(app, method, path, body, map[string]string{
		"Authorization": "Bearer " + token,
	})
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

// uploadFile posts content as a multipart "file" field.
func uploadFile(t *testing.T, app *fiber.App, filename string, content []byte) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	_, _ = part.Write(content)
	writer.Close()

	req, err := http.NewRequest(http.MethodPost, "/api/storage/upload", &buf)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+generateToken(t))

	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	return resp
}

// createUser registers an owner and returns its id.
func createUser(t *testing.T, app *fiber.App, username string) string {
	t.Helper()
	resp := doAuthRequest(t, app, http.MethodPost, "/api/users", fmt.Sprintf(`{"username":%q}`, username))
	assertStatus(t, resp, http.StatusCreated)
	body := parseJSON(t, resp)
	id, _ := body["id"].(string)
	if id == "" {
		t.Fatalf("expected user id in response, got %v", body)
	}
	return id
}

// submit posts a generation request for owner and returns the response.
func submit(t *testing.T, app *fiber.App, ownerID, query string) *http.Response {
	t.Helper()
	body := fmt.Sprintf(`{"prompt":"late night synthwave","style":"synthwave","duration":120,"ownerId":%q,"title":"Neon"}`, ownerID)
	return doAuthRequest(t, app, http.MethodPost, "/api/music/generate"+query, body)
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

// errorBody returns the "error" object of an error response.
func errorBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := parseJSON(t, resp)
	e, ok := body["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected error object, got %v", body)
	}
	return e
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

// assertErrorCode checks the status and the machine readable error code.
func assertErrorCode(t *testing.T, resp *http.Response, status int, code string) {
	t.Helper()
	assertStatus(t, resp, status)
	e := errorBody(t, resp)
	if e["code"] != code {
		t.Errorf("expected error code %s, got %v", code, e["code"])
	}
}
