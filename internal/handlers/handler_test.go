package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stoxy/stoxy/internal/audit"
	"github.com/stoxy/stoxy/internal/auth"
	"github.com/stoxy/stoxy/internal/hierarchy"
	"github.com/stoxy/stoxy/internal/metadata"
	"github.com/stoxy/stoxy/internal/resolver"
	"github.com/stoxy/stoxy/internal/storage"
)

// auditRecorder collects audit events.
type auditRecorder struct {
	mu     sync.Mutex
	events []audit.Event
}

func (a *auditRecorder) Log(_ context.Context, e audit.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, e)
}

func (a *auditRecorder) last() audit.Event {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.events) == 0 {
		return audit.Event{}
	}
	return a.events[len(a.events)-1]
}

type testEnv struct {
	h       *Handler
	tree    *hierarchy.Tree
	root    *hierarchy.Entity
	dataDir string
	audit   *auditRecorder
}

// newTestHandler creates a Handler backed by a SQLite hierarchy in a temp
// directory and a file backend rooted in another. The policy is open unless
// perms is given.
func newTestHandler(t *testing.T, perms ...auth.PermissionChecker) *testEnv {
	t.Helper()

	meta, err := metadata.NewSQLiteStore(t.TempDir() + "/test.db")
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { meta.Close() })

	tree := hierarchy.NewTree(meta)
	root, err := tree.Bootstrap(context.Background(), "admin")
	if err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}

	dataDir := t.TempDir()
	reg := storage.NewRegistry()
	reg.Register("file", storage.NewFileFactory([]string{dataDir}, 0))
	reg.Register("null", storage.NewDiscardFactory())

	var pc auth.PermissionChecker = auth.NewPolicy(nil, false, false)
	if len(perms) > 0 {
		pc = perms[0]
	}
	rec := &auditRecorder{}
	h := New(tree, resolver.New(tree, reg, dataDir), pc, rec, Config{ChunkSize: 4})
	return &testEnv{h: h, tree: tree, root: root, dataDir: dataDir, audit: rec}
}

type reqOpt func(r *http.Request)

func cdmi(r *http.Request) { r.Header.Set(VersionHeader, Version) }

func contentType(ct string) reqOpt {
	return func(r *http.Request) { r.Header.Set("Content-Type", ct) }
}

func as(p auth.Principal) reqOpt {
	return func(r *http.Request) { *r = *r.WithContext(auth.WithPrincipal(r.Context(), p)) }
}

func header(k, v string) reqOpt {
	return func(r *http.Request) { r.Header.Set(k, v) }
}

func (env *testEnv) do(method, target, body string, opts ...reqOpt) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for _, o := range opts {
		o(req)
	}
	rec := httptest.NewRecorder()
	switch method {
	case http.MethodGet:
		env.h.Get(rec, req)
	case http.MethodPut:
		env.h.Put(rec, req)
	case http.MethodDelete:
		env.h.Delete(rec, req)
	}
	return rec
}

func (env *testEnv) mustDo(t *testing.T, want int, method, target, body string, opts ...reqOpt) *httptest.ResponseRecorder {
	t.Helper()
	rec := env.do(method, target, body, opts...)
	if rec.Code != want {
		t.Fatalf("%s %s status = %d, want %d; body: %s", method, target, rec.Code, want, rec.Body.String())
	}
	return rec
}

func decodeDoc(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var doc map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("response is not a JSON object: %v; body: %s", err, rec.Body.String())
	}
	return doc
}

func (env *testEnv) createContainer(t *testing.T, path, body string) {
	t.Helper()
	env.mustDo(t, http.StatusCreated, http.MethodPut, path, body, cdmi, contentType(hierarchy.MediaTypeContainer))
}

func (env *testEnv) createObject(t *testing.T, path, value string) map[string]any {
	t.Helper()
	body, _ := json.Marshal(map[string]any{"mimetype": "text/plain", "value": value})
	rec := env.mustDo(t, http.StatusCreated, http.MethodPut, path, string(body), cdmi, contentType(hierarchy.MediaTypeObject))
	return decodeDoc(t, rec)
}

func TestCreateContainerThenGet(t *testing.T) {
	env := newTestHandler(t)

	rec := env.mustDo(t, http.StatusCreated, http.MethodPut, "/c", "", cdmi, contentType(hierarchy.MediaTypeContainer))
	if ct := rec.Header().Get("Content-Type"); ct != hierarchy.MediaTypeContainer {
		t.Errorf("PUT Content-Type = %q", ct)
	}

	rec = env.mustDo(t, http.StatusOK, http.MethodGet, "/c/", "", cdmi)
	doc := decodeDoc(t, rec)
	if doc["objectType"] != hierarchy.MediaTypeContainer {
		t.Errorf("objectType = %v", doc["objectType"])
	}
	if doc["objectName"] != "c" {
		t.Errorf("objectName = %v", doc["objectName"])
	}
	if doc["childrenrange"] != "0-0" {
		t.Errorf("childrenrange = %v", doc["childrenrange"])
	}
	if doc["parentURI"] != "/" || doc["parentID"] != env.root.ID {
		t.Errorf("parent = %v %v", doc["parentURI"], doc["parentID"])
	}
	if doc["completionStatus"] != "Complete" {
		t.Errorf("completionStatus = %v", doc["completionStatus"])
	}
}

func TestGetRootHasNoParent(t *testing.T) {
	env := newTestHandler(t)
	env.createContainer(t, "/a", "")
	env.createContainer(t, "/b", "")
	env.createObject(t, "/o", "x")

	doc := decodeDoc(t, env.mustDo(t, http.StatusOK, http.MethodGet, "/", "", cdmi))
	if _, ok := doc["parentURI"]; ok {
		t.Error("root document has parentURI")
	}
	if _, ok := doc["parentID"]; ok {
		t.Error("root document has parentID")
	}
	if doc["childrenrange"] != "0-2" {
		t.Errorf("childrenrange = %v", doc["childrenrange"])
	}
	kids, _ := doc["children"].([]any)
	if len(kids) != 3 || kids[0] != "a/" || kids[1] != "b/" || kids[2] != "o" {
		t.Errorf("children = %v", doc["children"])
	}
}

func TestDocumentFieldOrder(t *testing.T) {
	env := newTestHandler(t)
	env.createContainer(t, "/c", "")
	body := env.mustDo(t, http.StatusOK, http.MethodGet, "/c/", "", cdmi).Body.String()

	order := []string{"objectType", "objectID", "objectName", "parentURI", "parentID", "completionStatus", "metadata", "childrenrange", "children"}
	last := -1
	for _, k := range order {
		i := strings.Index(body, `"`+k+`"`)
		if i < 0 || i < last {
			t.Fatalf("field %q out of order in %s", k, body)
		}
		last = i
	}
}

func TestCreateObjectBase64RoundTrip(t *testing.T) {
	env := newTestHandler(t)
	raw := []byte{0, 1, 2, 250, 251, 252, 'x'}
	v := base64.StdEncoding.EncodeToString(raw)

	body, _ := json.Marshal(map[string]string{"valuetransferencoding": "base64", "value": v})
	rec := env.mustDo(t, http.StatusCreated, http.MethodPut, "/bin", string(body), cdmi, contentType(hierarchy.MediaTypeObject))
	created := decodeDoc(t, rec)
	if _, ok := created["value"]; ok {
		t.Error("PUT response must not echo value")
	}

	doc := decodeDoc(t, env.mustDo(t, http.StatusOK, http.MethodGet, "/bin", "", cdmi))
	if doc["valuetransferencoding"] != "base64" {
		t.Errorf("valuetransferencoding = %v", doc["valuetransferencoding"])
	}
	got, err := base64.StdEncoding.DecodeString(doc["value"].(string))
	if err != nil || string(got) != string(raw) {
		t.Errorf("value round trip = %v, %v", got, err)
	}
	if doc["objectID"] != created["objectID"] {
		t.Errorf("objectID changed: %v vs %v", doc["objectID"], created["objectID"])
	}
}

func TestAttributeFilter(t *testing.T) {
	env := newTestHandler(t)
	env.createContainer(t, "/c", "")
	env.createObject(t, "/c/o", "hello world")
	want := base64.StdEncoding.EncodeToString([]byte("hello world")[1:6])

	for _, q := range []string{"objectID;parentURI;value:1-6", "objectID;parentURI;value:6-1", "objectID=true&parentURI=true&value=6&value=1"} {
		t.Run(q, func(t *testing.T) {
			doc := decodeDoc(t, env.mustDo(t, http.StatusOK, http.MethodGet, "/c/o?"+q, "", cdmi))
			if len(doc) != 3 {
				t.Errorf("filtered doc has %d keys: %v", len(doc), doc)
			}
			if doc["parentURI"] != "/c/" {
				t.Errorf("parentURI = %v", doc["parentURI"])
			}
			if doc["value"] != want {
				t.Errorf("value = %v, want %v", doc["value"], want)
			}
		})
	}

	doc := decodeDoc(t, env.mustDo(t, http.StatusOK, http.MethodGet, "/c/o?nosuchfield;objectName", "", cdmi))
	if len(doc) != 1 || doc["objectName"] != "o" {
		t.Errorf("unknown keys should be ignored: %v", doc)
	}
}

func TestMetadataPrefixFilter(t *testing.T) {
	env := newTestHandler(t)
	env.createContainer(t, "/c", `{"metadata": {"color": "red", "colour": "blue", "size": "L"}}`)
	doc := decodeDoc(t, env.mustDo(t, http.StatusOK, http.MethodGet, "/c/?metadata:col", "", cdmi))
	md, _ := doc["metadata"].(map[string]any)
	if len(md) != 2 || md["color"] != "red" || md["colour"] != "blue" {
		t.Errorf("metadata = %v", md)
	}
}

func TestRawPutAndRangedGet(t *testing.T) {
	env := newTestHandler(t)
	content := "0123456789abcdefghij"
	env.mustDo(t, http.StatusCreated, http.MethodPut, "/raw.txt", content, contentType("text/plain"))

	rec := env.mustDo(t, http.StatusOK, http.MethodGet, "/raw.txt", "")
	if rec.Body.String() != content {
		t.Errorf("body = %q", rec.Body.String())
	}
	if rec.Header().Get("Content-Type") != "text/plain" {
		t.Errorf("Content-Type = %q", rec.Header().Get("Content-Type"))
	}

	for begin := 0; begin < len(content); begin++ {
		for end := begin + 1; end <= len(content); end++ {
			for _, form := range []string{"%d-%d", "bytes=%d-%d"} {
				rh := fmt.Sprintf(form, begin, end)
				rec := env.mustDo(t, http.StatusPartialContent, http.MethodGet, "/raw.txt", "", header("Range", rh))
				if got := rec.Body.String(); got != content[begin:end] {
					t.Fatalf("Range %s body = %q, want %q", rh, got, content[begin:end])
				}
			}
		}
	}

	rec = env.mustDo(t, http.StatusPartialContent, http.MethodGet, "/raw.txt", "", header("Range", "bytes=5-10"))
	if cr := rec.Header().Get("Content-Range"); cr != "bytes 5-9/20" {
		t.Errorf("Content-Range = %q", cr)
	}
	env.mustDo(t, http.StatusBadRequest, http.MethodGet, "/raw.txt", "", header("Range", "30-40"))

	doc := decodeDoc(t, env.mustDo(t, http.StatusOK, http.MethodGet, "/raw.txt?content_length;mimetype", "", cdmi))
	if doc["mimetype"] != "text/plain" {
		t.Errorf("mimetype = %v", doc["mimetype"])
	}
}

func TestPutErrors(t *testing.T) {
	env := newTestHandler(t)

	rec := env.mustDo(t, http.StatusBadRequest, http.MethodPut, "/x", "{}")
	if msg := decodeDoc(t, rec)["errorMessage"]; msg != "No Content-Type specified" {
		t.Errorf("errorMessage = %v", msg)
	}

	env.mustDo(t, http.StatusBadRequest, http.MethodPut, "/x", "[1, 2]", cdmi, contentType(hierarchy.MediaTypeObject))
	env.mustDo(t, http.StatusBadRequest, http.MethodPut, "/x", "not json", cdmi, contentType(hierarchy.MediaTypeObject))
	env.mustDo(t, http.StatusNotFound, http.MethodPut, "/missing/x", "{}", cdmi, contentType(hierarchy.MediaTypeObject))

	rec = env.mustDo(t, http.StatusBadRequest, http.MethodPut, "/x", `{"metadata": "nope", "valuetransferencoding": "rot13"}`, cdmi, contentType(hierarchy.MediaTypeObject))
	errs, _ := decodeDoc(t, rec)["errors"].(map[string]any)
	if errs["metadata"] == nil || errs["valuetransferencoding"] == nil {
		t.Errorf("errors = %v", errs)
	}
	env.mustDo(t, http.StatusNotFound, http.MethodGet, "/x", "", cdmi)

	env.mustDo(t, http.StatusBadRequest, http.MethodPut, "/c", `{"value": "x"}`, cdmi, contentType(hierarchy.MediaTypeContainer))
}

func TestPutExistingPathIsAudited(t *testing.T) {
	env := newTestHandler(t)
	env.createContainer(t, "/dup", "")
	if ev := env.audit.last(); ev.Failed || !strings.HasPrefix(ev.Message, "Created dup") || ev.Subject != "/dup" {
		t.Errorf("create audit event = %+v", ev)
	}

	env.mustDo(t, http.StatusBadRequest, http.MethodPut, "/dup", "", cdmi, contentType(hierarchy.MediaTypeObject))
	if ev := env.audit.last(); !ev.Failed || !strings.Contains(ev.Message, "via CDMI failed: BadRequest") {
		t.Errorf("failed update audit event = %+v", ev)
	}

	env.mustDo(t, http.StatusOK, http.MethodPut, "/dup", "", cdmi, contentType(hierarchy.MediaTypeContainer))
	if ev := env.audit.last(); ev.Failed || !strings.HasPrefix(ev.Message, "Updated dup") {
		t.Errorf("update audit event = %+v", ev)
	}
}

func TestConcurrentCreateSameName(t *testing.T) {
	env := newTestHandler(t)

	const n = 6
	codes := make([]int, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			codes[i] = env.do(http.MethodPut, "/same", "data", contentType("text/plain")).Code
		}(i)
	}
	wg.Wait()

	var created, conflicts, updated int
	for _, c := range codes {
		switch c {
		case http.StatusCreated:
			created++
		case http.StatusConflict:
			conflicts++
		case http.StatusNoContent, http.StatusOK:
			updated++
		default:
			t.Errorf("unexpected status %d", c)
		}
	}
	if created != 1 {
		t.Errorf("created = %d, want exactly 1 (conflicts %d, updates %d)", created, conflicts, updated)
	}
}

func TestUpdateAppliesOnlyGivenFields(t *testing.T) {
	env := newTestHandler(t)
	body := `{"mimetype": "text/plain", "metadata": {"k": "v"}, "value": "original"}`
	created := decodeDoc(t, env.mustDo(t, http.StatusCreated, http.MethodPut, "/o", body, cdmi, contentType(hierarchy.MediaTypeObject)))

	env.mustDo(t, http.StatusOK, http.MethodPut, "/o", `{"metadata": {"k2": "v2"}}`, cdmi, contentType(hierarchy.MediaTypeObject))

	doc := decodeDoc(t, env.mustDo(t, http.StatusOK, http.MethodGet, "/o", "", cdmi))
	if doc["objectID"] != created["objectID"] {
		t.Error("update changed objectID")
	}
	if doc["mimetype"] != "text/plain" {
		t.Errorf("mimetype = %v", doc["mimetype"])
	}
	md, _ := doc["metadata"].(map[string]any)
	if len(md) != 1 || md["k2"] != "v2" {
		t.Errorf("metadata = %v", md)
	}
	if doc["value"] != base64.StdEncoding.EncodeToString([]byte("original")) {
		t.Errorf("value = %v", doc["value"])
	}

	env.mustDo(t, http.StatusOK, http.MethodPut, "/o", `{"value": "replaced"}`, cdmi, contentType(hierarchy.MediaTypeObject))
	rec := env.mustDo(t, http.StatusOK, http.MethodGet, "/o", "")
	if rec.Body.String() != "replaced" {
		t.Errorf("content = %q", rec.Body.String())
	}

	env.mustDo(t, http.StatusBadRequest, http.MethodPut, "/o", "{}", cdmi, contentType(hierarchy.MediaTypeContainer))
}

func TestStoreFailureLeavesEntityAttached(t *testing.T) {
	env := newTestHandler(t)
	env.createContainer(t, "/remote", `{"metadata": {"backend": "nosuch"}}`)

	env.mustDo(t, http.StatusInternalServerError, http.MethodPut, "/remote/o", `{"value": "x"}`, cdmi, contentType(hierarchy.MediaTypeObject))
	ev := env.audit.last()
	if !ev.Failed || !strings.Contains(ev.Message, "failed: UnknownBackend") {
		t.Errorf("audit event = %+v", ev)
	}

	doc := decodeDoc(t, env.mustDo(t, http.StatusOK, http.MethodGet, "/remote/o?objectName", "", cdmi))
	if doc["objectName"] != "o" {
		t.Errorf("entity should stay attached: %v", doc)
	}
}

func TestDeleteContainer(t *testing.T) {
	env := newTestHandler(t)
	env.createContainer(t, "/c", "")
	env.createObject(t, "/c/o", "x")

	env.mustDo(t, http.StatusBadRequest, http.MethodDelete, "/c/", "")
	env.mustDo(t, http.StatusNoContent, http.MethodDelete, "/c/o", "")
	env.mustDo(t, http.StatusNoContent, http.MethodDelete, "/c/", "")
	env.mustDo(t, http.StatusNotFound, http.MethodGet, "/c/", "", cdmi)
	env.mustDo(t, http.StatusNotFound, http.MethodDelete, "/c/", "")
	env.mustDo(t, http.StatusBadRequest, http.MethodDelete, "/", "")
}

func TestDeleteObjectRemovesContent(t *testing.T) {
	env := newTestHandler(t)
	env.createObject(t, "/o", "content")

	obj, err := env.tree.Get(context.Background(), env.root, "o")
	if err != nil {
		t.Fatal(err)
	}
	store, err := env.h.resolver.Existing(obj)
	if err != nil {
		t.Fatal(err)
	}

	env.mustDo(t, http.StatusNoContent, http.MethodDelete, "/o", "")
	env.mustDo(t, http.StatusNotFound, http.MethodGet, "/o", "")
	if _, err := store.Load(context.Background(), ""); err == nil {
		t.Error("backend content should be gone")
	}
}

func TestForbiddenIsNotFound(t *testing.T) {
	pol := auth.NewPolicy([]string{"root"}, false, true)
	env := newTestHandler(t, pol)
	alice := as(auth.Principal{Name: "alice", Token: "a"})
	env.mustDo(t, http.StatusCreated, http.MethodPut, "/c", "", cdmi, alice, contentType(hierarchy.MediaTypeContainer))

	rec := env.mustDo(t, http.StatusNotFound, http.MethodGet, "/c/", "", cdmi)
	if msg := decodeDoc(t, rec)["errorMessage"]; msg != "Not found" {
		t.Errorf("errorMessage = %v", msg)
	}
	env.mustDo(t, http.StatusNotFound, http.MethodDelete, "/c/", "")
	env.mustDo(t, http.StatusNotFound, http.MethodDelete, "/c/", "", as(auth.Principal{Name: "bob", Token: "b"}))
	env.mustDo(t, http.StatusOK, http.MethodGet, "/c/", "", cdmi, alice)

	if ev := env.audit.last(); ev.Owner != "alice" || !ev.Failed {
		t.Errorf("audit event = %+v", ev)
	}
	env.mustDo(t, http.StatusNoContent, http.MethodDelete, "/c/", "", alice)
}

func TestObjectIDView(t *testing.T) {
	env := newTestHandler(t)
	env.createContainer(t, "/c", "")
	obj := env.createObject(t, "/c/o", "hi")
	id := obj["objectID"].(string)

	doc := decodeDoc(t, env.mustDo(t, http.StatusOK, http.MethodGet, "/"+ObjectIDSegment+"/", "", cdmi))
	kids, _ := doc["children"].([]any)
	if len(kids) != 3 {
		t.Errorf("index children = %v", kids)
	}
	if doc["childrenrange"] != "0-2" {
		t.Errorf("childrenrange = %v", doc["childrenrange"])
	}

	byID := decodeDoc(t, env.mustDo(t, http.StatusOK, http.MethodGet, "/"+ObjectIDSegment+"/"+id, "", cdmi))
	if byID["objectName"] != "o" || byID["parentURI"] != "/c/" {
		t.Errorf("lookup by ID = %v", byID)
	}
	rec := env.mustDo(t, http.StatusOK, http.MethodGet, "/"+ObjectIDSegment+"/"+id, "")
	if rec.Body.String() != "hi" {
		t.Errorf("raw lookup by ID = %q", rec.Body.String())
	}

	env.mustDo(t, http.StatusMethodNotAllowed, http.MethodDelete, "/"+ObjectIDSegment+"/"+id, "")
	env.mustDo(t, http.StatusMethodNotAllowed, http.MethodPut, "/"+ObjectIDSegment+"/x", "{}", contentType("text/plain"))
	env.mustDo(t, http.StatusNotFound, http.MethodGet, "/"+ObjectIDSegment+"/0123456789abcdef0123456789abcdef", "", cdmi)
}

// cancelOnRead cancels the request context on the first body read, the way a
// client hanging up mid-upload does.
type cancelOnRead struct {
	r      *strings.Reader
	cancel context.CancelFunc
}

func (c *cancelOnRead) Read(p []byte) (int, error) {
	c.cancel()
	return c.r.Read(p)
}

// writeTracker records whether the handler touched the response at all.
type writeTracker struct {
	*httptest.ResponseRecorder
	wrote bool
}

func (w *writeTracker) WriteHeader(code int) {
	w.wrote = true
	w.ResponseRecorder.WriteHeader(code)
}

func (w *writeTracker) Write(b []byte) (int, error) {
	w.wrote = true
	return w.ResponseRecorder.Write(b)
}

func (env *testEnv) putDisconnecting(path, body string, opts ...reqOpt) *writeTracker {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req := httptest.NewRequest(http.MethodPut, path, &cancelOnRead{r: strings.NewReader(body), cancel: cancel})
	req = req.WithContext(ctx)
	for _, o := range opts {
		o(req)
	}
	w := &writeTracker{ResponseRecorder: httptest.NewRecorder()}
	env.h.Put(w, req)
	return w
}

func TestDisconnectDuringPutStillPersists(t *testing.T) {
	env := newTestHandler(t)

	w := env.putDisconnecting("/hello.txt", "hello world", contentType("text/plain"))
	if w.wrote {
		t.Errorf("response written after disconnect: %d %q", w.Code, w.Body.String())
	}

	rec := env.mustDo(t, http.StatusOK, http.MethodGet, "/hello.txt", "")
	if rec.Body.String() != "hello world" {
		t.Errorf("body = %q", rec.Body.String())
	}
	doc := decodeDoc(t, env.mustDo(t, http.StatusOK, http.MethodGet, "/hello.txt?value", "", cdmi))
	if doc["value"] != base64.StdEncoding.EncodeToString([]byte("hello world")) {
		t.Errorf("value = %v", doc["value"])
	}
	if ev := env.audit.last(); ev.Failed || !strings.HasPrefix(ev.Message, "Created hello.txt") {
		t.Errorf("audit event = %+v", ev)
	}
}

func TestDisconnectBeforeAttachWritesNothing(t *testing.T) {
	env := newTestHandler(t)

	w := env.putDisconnecting("/c", "", contentType(hierarchy.MediaTypeContainer))
	if w.wrote {
		t.Errorf("error response written after disconnect: %d %q", w.Code, w.Body.String())
	}
	if ev := env.audit.last(); !ev.Failed {
		t.Errorf("audit event = %+v", ev)
	}
	env.mustDo(t, http.StatusNotFound, http.MethodGet, "/c/", "", cdmi)
}
