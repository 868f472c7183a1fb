package app_test

import (
	"context"
	"encoding/json"
	"strconv"
	"testing"

	"github.com/rs/zerolog"

	"github.com/iklobato/lightapi/adapters/idgen"
	"github.com/iklobato/lightapi/adapters/memory"
	"github.com/iklobato/lightapi/app"
	"github.com/iklobato/lightapi/domain/rest"
	"github.com/iklobato/lightapi/ports"
)

func registeredService(t *testing.T) *app.Service {
	t.Helper()
	s := newService(t)
	if err := s.Register(context.Background(), "/person", personDescriptor()); err != nil {
		t.Fatalf("register: %v", err)
	}
	return s
}

func dispatch(t *testing.T, s *app.Service, method, path string, body string) rest.Result {
	t.Helper()
	var raw []byte
	if body != "" {
		raw = []byte(body)
	}
	return s.Dispatch(context.Background(), rest.Request{Method: method, Path: path, Body: raw})
}

func record(t *testing.T, res rest.Result) map[string]any {
	t.Helper()
	raw, err := json.Marshal(res.Body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	var rec map[string]any
	if err := json.Unmarshal(raw, &rec); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	return rec
}

func TestDispatch_PersonScenario(t *testing.T) {
	s := registeredService(t)

	// POST -> 201 with generated key 1
	res := dispatch(t, s, "POST", "/person/", `{"name":"John Doe","email":"john@example.com","email_verified":true}`)
	if res.Status != 201 {
		t.Fatalf("create status = %d, want 201: %v", res.Status, res.Body)
	}
	created := record(t, res)
	if created["pk"] != float64(1) {
		t.Errorf("pk = %v, want 1", created["pk"])
	}

	// GET single -> 200, round-trips the created record
	res = dispatch(t, s, "GET", "/person/1", "")
	if res.Status != 200 {
		t.Fatalf("read status = %d", res.Status)
	}
	got := record(t, res)
	if got["name"] != "John Doe" || got["email"] != "john@example.com" || got["email_verified"] != true {
		t.Errorf("read record = %v", got)
	}

	// PUT omitting the defaultable field -> 200, field reset to default
	res = dispatch(t, s, "PUT", "/person/1", `{"name":"Jane Doe","email":"jane@example.com"}`)
	if res.Status != 200 {
		t.Fatalf("update status = %d, want 200: %v", res.Status, res.Body)
	}
	got = record(t, res)
	if got["name"] != "Jane Doe" || got["email_verified"] != false {
		t.Errorf("updated record = %v", got)
	}

	// PATCH changes only the named field
	res = dispatch(t, s, "PATCH", "/person/1", `{"email_verified": true}`)
	if res.Status != 200 {
		t.Fatalf("patch status = %d", res.Status)
	}
	got = record(t, res)
	if got["email_verified"] != true || got["name"] != "Jane Doe" {
		t.Errorf("patched record = %v", got)
	}

	// DELETE -> 204, then GET -> 404
	res = dispatch(t, s, "DELETE", "/person/1", "")
	if res.Status != 204 {
		t.Fatalf("delete status = %d", res.Status)
	}
	res = dispatch(t, s, "GET", "/person/1", "")
	if res.Status != 404 {
		t.Fatalf("read after delete status = %d, want 404", res.Status)
	}
}

func TestDispatch_RetrieveAll(t *testing.T) {
	s := registeredService(t)

	res := dispatch(t, s, "GET", "/person/", "")
	if res.Status != 200 {
		t.Fatalf("status = %d", res.Status)
	}
	raw, _ := json.Marshal(res.Body)
	if string(raw) != "[]" {
		t.Errorf("empty collection body = %s, want []", raw)
	}

	dispatch(t, s, "POST", "/person/", `{"name":"a","email":"a@x.com"}`)
	dispatch(t, s, "POST", "/person/", `{"name":"b","email":"b@x.com"}`)

	res = dispatch(t, s, "GET", "/person", "")
	var list []map[string]any
	raw, _ = json.Marshal(res.Body)
	if err := json.Unmarshal(raw, &list); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("list length = %d, want 2", len(list))
	}
	if list[0]["pk"] != float64(1) || list[1]["pk"] != float64(2) {
		t.Errorf("list order = %v", list)
	}
}

func TestDispatch_Errors(t *testing.T) {
	s := registeredService(t)
	dispatch(t, s, "POST", "/person/", `{"name":"a","email":"a@x.com"}`)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"unknown path", "GET", "/animal/", "", 404},
		{"missing record", "GET", "/person/999", "", 404},
		{"post to single form", "POST", "/person/1", `{"name":"x","email":"y"}`, 405},
		{"put to collection", "PUT", "/person/", `{"name":"x","email":"y"}`, 405},
		{"malformed body", "POST", "/person/", `{"name":`, 400},
		{"array body", "POST", "/person/", `[1,2]`, 400},
		{"missing required", "POST", "/person/", `{"name":"x"}`, 400},
		{"unknown field on patch", "PATCH", "/person/1", `{"nope":1}`, 400},
		{"patch missing record", "PATCH", "/person/999", `{"name":"x"}`, 404},
		{"non-numeric key", "GET", "/person/abc", "", 400},
		{"duplicate unique", "POST", "/person/", `{"name":"b","email":"a@x.com"}`, 409},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := dispatch(t, s, tt.method, tt.path, tt.body)
			if res.Status != tt.status {
				t.Errorf("status = %d, want %d (body %v)", res.Status, tt.status, res.Body)
			}
		})
	}
}

func TestDispatch_DeleteIdempotence(t *testing.T) {
	s := registeredService(t)
	dispatch(t, s, "POST", "/person/", `{"name":"a","email":"a@x.com"}`)

	if res := dispatch(t, s, "DELETE", "/person/1", ""); res.Status != 204 {
		t.Fatalf("first delete = %d", res.Status)
	}
	for i := 0; i < 3; i++ {
		if res := dispatch(t, s, "DELETE", "/person/1", ""); res.Status != 404 {
			t.Fatalf("repeat delete = %d, want 404", res.Status)
		}
	}
}

func TestDispatch_PatchNeverPartiallyApplies(t *testing.T) {
	s := registeredService(t)
	dispatch(t, s, "POST", "/person/", `{"name":"a","email":"a@x.com"}`)

	res := dispatch(t, s, "PATCH", "/person/1", `{"email_verified":true,"bogus":1}`)
	if res.Status != 400 {
		t.Fatalf("status = %d, want 400", res.Status)
	}
	got := record(t, dispatch(t, s, "GET", "/person/1", ""))
	if got["email_verified"] != false {
		t.Error("rejected patch must not apply any field")
	}
}

func TestDispatch_MethodNotAllowedHeader(t *testing.T) {
	s := newService(t)
	if err := s.RegisterHandler("/echo", app.HandlerSpec{Impl: echoHandler{}, MethodNames: []string{"get"}}); err != nil {
		t.Fatalf("register: %v", err)
	}
	res := dispatch(t, s, "DELETE", "/echo", "")
	if res.Status != 405 {
		t.Fatalf("status = %d, want 405", res.Status)
	}
	if allow := res.Headers.Get("Allow"); allow != "GET" {
		t.Errorf("Allow = %q, want GET", allow)
	}
}

func TestDispatch_Options(t *testing.T) {
	s := registeredService(t)
	res := dispatch(t, s, "OPTIONS", "/person/", "")
	if res.Status != 200 {
		t.Fatalf("status = %d", res.Status)
	}
	want := "POST, GET, PUT, PATCH, DELETE, OPTIONS, HEAD"
	if allow := res.Headers.Get("Allow"); allow != want {
		t.Errorf("Allow = %q, want %q", allow, want)
	}
	if res.Body != nil {
		t.Errorf("options body = %v, want empty", res.Body)
	}
}

func TestDispatch_HeadSuppressesBody(t *testing.T) {
	s := registeredService(t)
	dispatch(t, s, "POST", "/person/", `{"name":"a","email":"a@x.com"}`)

	get := dispatch(t, s, "GET", "/person/1", "")
	head := dispatch(t, s, "HEAD", "/person/1", "")
	if head.Status != 200 {
		t.Fatalf("head status = %d", head.Status)
	}
	if head.Body != nil {
		t.Error("head must carry no body")
	}
	raw, _ := json.Marshal(get.Body)
	wantLen := len(raw) + 1 // serializer appends a newline
	if got := head.Headers.Get("Content-Length"); got == "" {
		t.Error("head must preserve content length")
	} else if gotLen, _ := strconv.Atoi(got); gotLen != wantLen {
		t.Errorf("Content-Length = %s, want %d", got, wantLen)
	}

	// HEAD on the collection form executes RetrieveAll, body suppressed.
	head = dispatch(t, s, "HEAD", "/person/", "")
	if head.Status != 200 || head.Body != nil {
		t.Errorf("collection head: status=%d body=%v", head.Status, head.Body)
	}
}

func TestDispatch_AuthGate(t *testing.T) {
	storage := memory.New(idgen.NewSequential("id-"))
	s := app.NewService(app.Deps{
		Storage: storage,
		Logger:  zerolog.Nop(),
		Auth: ports.AuthenticatorFunc(func(_ context.Context, req rest.Request) (string, error) {
			if req.Headers["Authorization"] == "Bearer good" {
				return "alice", nil
			}
			return "", rest.ErrUnauthorized
		}),
	})
	ctx := context.Background()
	if err := s.Register(ctx, "/person", personDescriptor()); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := s.RegisterHandler("/public", app.HandlerSpec{Impl: echoHandler{}, AuthExempt: true}); err != nil {
		t.Fatalf("register handler: %v", err)
	}

	res := s.Dispatch(ctx, rest.Request{Method: "GET", Path: "/person/"})
	if res.Status != 401 {
		t.Errorf("unauthenticated status = %d, want 401", res.Status)
	}

	res = s.Dispatch(ctx, rest.Request{
		Method:  "GET",
		Path:    "/person/",
		Headers: map[string]string{"Authorization": "Bearer good"},
	})
	if res.Status != 200 {
		t.Errorf("authenticated status = %d, want 200", res.Status)
	}

	res = s.Dispatch(ctx, rest.Request{Method: "GET", Path: "/public"})
	if res.Status != 200 {
		t.Errorf("exempt route status = %d, want 200", res.Status)
	}
}

func TestDispatch_CustomHandler(t *testing.T) {
	s := newService(t)
	if err := s.RegisterHandler("/echo", app.HandlerSpec{Impl: echoHandler{}}); err != nil {
		t.Fatalf("register: %v", err)
	}

	res := dispatch(t, s, "GET", "/echo/xyz", "")
	if res.Status != 200 {
		t.Fatalf("status = %d", res.Status)
	}
	if got := record(t, res); got["key"] != "xyz" {
		t.Errorf("key = %v, want xyz (path parameter forwarded)", got["key"])
	}

	// Synthesized HEAD executes Get and suppresses the body.
	res = dispatch(t, s, "HEAD", "/echo", "")
	if res.Status != 200 || res.Body != nil {
		t.Errorf("head: status=%d body=%v", res.Status, res.Body)
	}
}
