package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/manash/image-gen/internal/apperr"
	"github.com/manash/image-gen/internal/provider"
	"github.com/manash/image-gen/pkg/models"
)

func testRequest(t *testing.T, alias string, mode models.Mode, inputs []string, params models.Params) *models.Request {
	t.Helper()
	model, err := models.DefaultRegistry().Resolve(alias)
	if err != nil {
		t.Fatal(err)
	}
	req, err := models.NewRequest("a red fox", mode, model, inputs, params)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	return req
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func TestNew(t *testing.T) {
	if _, err := New(&provider.Config{}); !errors.Is(err, provider.ErrAPIKeyRequired) {
		t.Errorf("New() without key error = %v, want ErrAPIKeyRequired", err)
	}

	p, err := New(&provider.Config{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if p.Name() != Name || p.Family() != models.FamilyOpenAI {
		t.Errorf("New() = %s/%s", p.Name(), p.Family())
	}
}

func TestProvider_Generate_Success(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/images/generations" {
			t.Errorf("path = %s, want /images/generations", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("wrong authorization header")
		}
		json.NewDecoder(r.Body).Decode(&got)

		writeJSON(w, http.StatusOK, map[string]any{
			"created": 1700000000,
			"data": []map[string]any{{
				"b64_json":       base64.StdEncoding.EncodeToString([]byte("fake image data")),
				"revised_prompt": "a red fox in snow",
			}},
		})
	}))
	defer server.Close()

	p, err := New(&provider.Config{APIKey: "test-key", BaseURL: server.URL})
	if err != nil {
		t.Fatal(err)
	}

	params := models.OpenAIParams{Size: "1024x1536", Background: models.BackgroundTransparent, Format: models.FormatWebP}
	req := testRequest(t, "gpt-image-1.5", models.ModeGenerate, nil, params)

	resp, err := p.Generate(context.Background(), req)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if len(resp.Images) != 1 || string(resp.Images[0].Data) != "fake image data" {
		t.Fatalf("Generate() images = %+v", resp.Images)
	}
	if resp.Images[0].MIMEType != "image/webp" {
		t.Errorf("MIMEType = %s, want image/webp", resp.Images[0].MIMEType)
	}
	if resp.RevisedPrompt != "a red fox in snow" {
		t.Errorf("RevisedPrompt = %q", resp.RevisedPrompt)
	}

	want := map[string]any{
		"model":         "gpt-image-1.5",
		"prompt":        "a red fox",
		"size":          "1024x1536",
		"quality":       "auto",
		"background":    "transparent",
		"output_format": "webp",
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("request %s = %v, want %v", k, got[k], v)
		}
	}
}

func TestProvider_Generate_Defaults(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		writeJSON(w, http.StatusOK, map[string]any{
			"data": []map[string]any{{"b64_json": base64.StdEncoding.EncodeToString([]byte("x"))}},
		})
	}))
	defer server.Close()

	p, _ := New(&provider.Config{APIKey: "k", BaseURL: server.URL})
	req := testRequest(t, "gpt-image-mini", models.ModeGenerate, nil, nil)

	if _, err := p.Generate(context.Background(), req); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got["size"] != "auto" || got["background"] != "auto" || got["output_format"] != "png" {
		t.Errorf("default request = %v", got)
	}
	if got["model"] != "gpt-image-1-mini" {
		t.Errorf("model = %v, want API id gpt-image-1-mini", got["model"])
	}
}

func TestProvider_Generate_Errors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		code     string
		wantKind apperr.Kind
	}{
		{"moderation", http.StatusBadRequest, "moderation_blocked", apperr.KindContentPolicy},
		{"unauthorized", http.StatusUnauthorized, "invalid_api_key", apperr.KindAPI},
		{"rate limited", http.StatusTooManyRequests, "rate_limit_exceeded", apperr.KindTransient},
		{"server error", http.StatusInternalServerError, "", apperr.KindTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tt.status, map[string]any{
					"error": map[string]any{"message": "nope", "type": "invalid_request_error", "code": tt.code},
				})
			}))
			defer server.Close()

			p, _ := New(&provider.Config{APIKey: "k", BaseURL: server.URL})
			_, err := p.Generate(context.Background(), testRequest(t, "gpt-image", models.ModeGenerate, nil, nil))
			if err == nil {
				t.Fatal("Generate() error = nil, want error")
			}

			var se *provider.StatusError
			if !errors.As(err, &se) {
				t.Fatalf("Generate() error = %T %v, want StatusError", err, err)
			}
			if se.StatusCode != tt.status {
				t.Errorf("StatusCode = %d, want %d", se.StatusCode, tt.status)
			}
			if got := provider.Classify(err); got != tt.wantKind {
				t.Errorf("Classify() = %v, want %v", got, tt.wantKind)
			}
		})
	}
}

func TestProvider_Generate_EmptyData(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"data": []any{}})
	}))
	defer server.Close()

	p, _ := New(&provider.Config{APIKey: "k", BaseURL: server.URL})
	_, err := p.Generate(context.Background(), testRequest(t, "gpt-image", models.ModeGenerate, nil, nil))
	if !errors.Is(err, provider.ErrNoImage) {
		t.Errorf("Generate() error = %v, want ErrNoImage", err)
	}
}

func TestProvider_Generate_WrongFamily(t *testing.T) {
	p, _ := New(&provider.Config{APIKey: "k"})
	req := testRequest(t, "gpt-image", models.ModeGenerate, nil, nil)
	req.Params = models.GeminiParams{AspectRatio: "1:1"}

	_, err := p.Generate(context.Background(), req)
	if !errors.Is(err, provider.ErrWrongFamily) {
		t.Errorf("Generate() error = %v, want ErrWrongFamily", err)
	}
}

func TestProvider_Edit_Success(t *testing.T) {
	src := filepath.Join(t.TempDir(), "cabin_001.png")
	if err := os.WriteFile(src, []byte("source png"), 0644); err != nil {
		t.Fatal(err)
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/images/edits" {
			t.Errorf("path = %s, want /images/edits", r.URL.Path)
		}
		if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			t.Errorf("Content-Type = %s, want multipart", r.Header.Get("Content-Type"))
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("ParseMultipartForm() error = %v", err)
		}
		if r.FormValue("model") != "gpt-image-1" || r.FormValue("prompt") != "a red fox" {
			t.Errorf("form = %v", r.MultipartForm.Value)
		}

		f, hdr, err := r.FormFile("image")
		if err != nil {
			t.Fatalf("FormFile(image) error = %v", err)
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		if !bytes.Equal(data, []byte("source png")) || hdr.Filename != "cabin_001.png" {
			t.Errorf("uploaded %s = %q", hdr.Filename, data)
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"data": []map[string]any{{"b64_json": base64.StdEncoding.EncodeToString([]byte("edited"))}},
		})
	}))
	defer server.Close()

	p, _ := New(&provider.Config{APIKey: "k", BaseURL: server.URL})
	req := testRequest(t, "gpt-image", models.ModeEdit, []string{src}, nil)

	resp, err := p.Edit(context.Background(), req)
	if err != nil {
		t.Fatalf("Edit() error = %v", err)
	}
	if string(resp.Images[0].Data) != "edited" {
		t.Errorf("Edit() data = %q", resp.Images[0].Data)
	}
}

func TestProvider_Edit_SendsImageParams(t *testing.T) {
	src := filepath.Join(t.TempDir(), "logo_001.png")
	if err := os.WriteFile(src, []byte("source png"), 0644); err != nil {
		t.Fatal(err)
	}

	var form map[string][]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("ParseMultipartForm() error = %v", err)
		}
		form = r.MultipartForm.Value
		writeJSON(w, http.StatusOK, map[string]any{
			"data": []map[string]any{{"b64_json": base64.StdEncoding.EncodeToString([]byte("edited"))}},
		})
	}))
	defer server.Close()

	p, _ := New(&provider.Config{APIKey: "k", BaseURL: server.URL})
	req := testRequest(t, "gpt-image-1.5", models.ModeEdit, []string{src}, models.OpenAIParams{
		Size:       "1536x1024",
		Quality:    "high",
		Background: models.BackgroundTransparent,
		Format:     models.FormatWebP,
	})

	resp, err := p.Edit(context.Background(), req)
	if err != nil {
		t.Fatalf("Edit() error = %v", err)
	}

	for field, want := range map[string]string{
		"size":          "1536x1024",
		"quality":       "high",
		"background":    "transparent",
		"output_format": "webp",
	} {
		if got := form[field]; len(got) != 1 || got[0] != want {
			t.Errorf("form %s = %v, want %s", field, got, want)
		}
	}
	if resp.Images[0].MIMEType != "image/webp" {
		t.Errorf("MIMEType = %s, want image/webp", resp.Images[0].MIMEType)
	}
}

func TestProvider_Edit_DefaultParams(t *testing.T) {
	src := filepath.Join(t.TempDir(), "cabin_001.png")
	if err := os.WriteFile(src, []byte("source png"), 0644); err != nil {
		t.Fatal(err)
	}

	var form map[string][]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("ParseMultipartForm() error = %v", err)
		}
		form = r.MultipartForm.Value
		writeJSON(w, http.StatusOK, map[string]any{
			"data": []map[string]any{{"b64_json": base64.StdEncoding.EncodeToString([]byte("edited"))}},
		})
	}))
	defer server.Close()

	p, _ := New(&provider.Config{APIKey: "k", BaseURL: server.URL})
	resp, err := p.Edit(context.Background(), testRequest(t, "gpt-image", models.ModeEdit, []string{src}, models.OpenAIParams{}))
	if err != nil {
		t.Fatalf("Edit() error = %v", err)
	}

	if got := form["background"]; len(got) != 1 || got[0] != models.BackgroundAuto {
		t.Errorf("form background = %v, want auto", got)
	}
	if got := form["output_format"]; len(got) != 1 || got[0] != "png" {
		t.Errorf("form output_format = %v, want png", got)
	}
	if resp.Images[0].MIMEType != "image/png" {
		t.Errorf("MIMEType = %s, want image/png", resp.Images[0].MIMEType)
	}
}

func TestProvider_Edit_MissingInput(t *testing.T) {
	p, _ := New(&provider.Config{APIKey: "k"})
	req := testRequest(t, "gpt-image", models.ModeGenerate, nil, nil)
	req.Mode = models.ModeEdit
	req.Inputs = []string{filepath.Join(t.TempDir(), "missing.png")}

	if _, err := p.Edit(context.Background(), req); err == nil {
		t.Fatal("Edit() error = nil, want error for missing input")
	}
}
