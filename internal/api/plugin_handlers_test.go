package api

import (
	"archive/zip"
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goatkit/prodmanager/internal/database"
	"github.com/goatkit/prodmanager/internal/middleware"
	"github.com/goatkit/prodmanager/internal/plugin"
	"github.com/goatkit/prodmanager/internal/plugin/loader"
	"github.com/goatkit/prodmanager/internal/repository"
	pkgplugin "github.com/goatkit/prodmanager/pkg/plugin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type shopExt struct {
	pkgplugin.Base
}

func (s *shopExt) PluginFields(ctx context.Context, productID int64) ([]pkgplugin.Field, error) {
	return []pkgplugin.Field{{Name: "sku", Label: "Shop SKU", Type: "text"}}, nil
}

func (s *shopExt) AddProduct(context.Context, pkgplugin.Product) error             { return nil }
func (s *shopExt) UpdateProduct(context.Context, pkgplugin.Product) error          { return nil }
func (s *shopExt) DeleteProduct(context.Context, int64) error                      { return nil }
func (s *shopExt) AddProductTag(context.Context, pkgplugin.Tag) error              { return nil }
func (s *shopExt) UpdateProductTag(context.Context, pkgplugin.Tag) error           { return nil }
func (s *shopExt) DeleteProductTag(context.Context, pkgplugin.Tag) error           { return nil }
func (s *shopExt) AddProductCategory(context.Context, pkgplugin.Category) error    { return nil }
func (s *shopExt) UpdateProductCategory(context.Context, pkgplugin.Category) error { return nil }
func (s *shopExt) DeleteProductCategory(context.Context, pkgplugin.Category) error { return nil }
func (s *shopExt) AddProductBrand(context.Context, pkgplugin.Brand) error          { return nil }
func (s *shopExt) UpdateProductBrand(context.Context, pkgplugin.Brand) error       { return nil }
func (s *shopExt) DeleteProductBrand(context.Context, pkgplugin.Brand) error       { return nil }

func newShop(host pkgplugin.HostAPI, m pkgplugin.Manifest) (pkgplugin.Extension, error) {
	return &shopExt{Base: pkgplugin.NewBase(host, m)}, nil
}

type testServer struct {
	router  *gin.Engine
	root    string
	tmp     string
	db      *sql.DB
	logs    *plugin.LogBuffer
	manager *plugin.Manager
}

func setupPluginTestRouter(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, "sqlite3", ":memory:", database.PoolConfig{MaxOpenConns: 1})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(ctx, db))

	root := filepath.Join(t.TempDir(), "plugins")
	require.NoError(t, os.MkdirAll(root, 0o755))
	tmp := filepath.Join(t.TempDir(), "tmp")

	logs := plugin.NewLogBuffer(50)
	host := plugin.NewProdHostAPI(plugin.WithDB(db), plugin.WithLogBuffer(logs))
	lookup := func(name string) (plugin.Factory, bool) {
		if name == "Shop" || name == "Feed" {
			return newShop, true
		}
		return nil, false
	}
	l := loader.NewLoader([]loader.Resolver{loader.NewFactoryResolver(lookup, loader.WithHost(host.For))})
	reg := plugin.NewRegistry(root, l, nil)
	links := repository.NewProductPluginRepository(db)

	mgr := plugin.NewManager(plugin.ManagerConfig{
		Registry: reg,
		Resolver: l,
		DB:       db,
		Links:    links,
		Logs:     logs,
	})
	h := NewHandler(HandlerConfig{
		Manager:    mgr,
		Dispatcher: plugin.NewDispatcher(reg, links, nil, logs),
		Installed:  repository.NewPluginRepository(db),
		Links:      links,
		Logs:       logs,
		TmpDir:     tmp,
	})

	rlCtx, cancel := context.WithCancel(ctx)
	t.Cleanup(cancel)
	r := NewRouter(h, RouterConfig{
		Limiter:        middleware.NewRateLimiter(rlCtx),
		UploadsPerHour: 1000,
		Metrics:        true,
	})
	return &testServer{router: r, root: root, tmp: tmp, db: db, logs: logs, manager: mgr}
}

func zipBytes(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, body := range files {
		fw, err := w.Create(name)
		require.NoError(t, err)
		_, err = io.WriteString(fw, body)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func shopManifest(sys, description string) string {
	return fmt.Sprintf("name: %s Plugin\nsystem_name: %s\nversion: 1.2.0\ndescription: %q\nauthor: Test Author\n", sys, sys, description)
}

func (s *testServer) upload(t *testing.T, filename, contentType string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="plugin"; filename="%s"`, filename))
	hdr.Set("Content-Type", contentType)
	part, err := mw.CreatePart(hdr)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/plugins", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

// assertTmpEmpty checks that no upload copy or upload directory is left.
func (s *testServer) assertTmpEmpty(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(s.tmp)
	if errors.Is(err, fs.ErrNotExist) {
		return
	}
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func (s *testServer) do(t *testing.T, method, path string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func errorsOf(t *testing.T, w *httptest.ResponseRecorder) []any {
	t.Helper()
	errs, ok := decode(t, w)["errors"].([]any)
	require.True(t, ok, "expected errors list, got %s", w.Body.String())
	return errs
}

func (s *testServer) installShop(t *testing.T) {
	t.Helper()
	w := s.upload(t, "Shop.zip", "application/x-zip-compressed",
		zipBytes(t, map[string]string{"Shop.yaml": shopManifest("Shop", "Syncs the <b>shop</b><script>alert(1)</script>")}))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestHandleUploadInstalls(t *testing.T) {
	s := setupPluginTestRouter(t)
	w := s.upload(t, "Shop.zip", "application/x-zip-compressed",
		zipBytes(t, map[string]string{"Shop.yaml": shopManifest("Shop", "Syncs the <b>shop</b><script>alert(1)</script>")}))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	p := decode(t, w)["plugin"].(map[string]any)
	assert.Equal(t, "Shop", p["system_name"])
	assert.Equal(t, "Syncs the shop", p["description"], "markup is stripped")
	assert.Equal(t, true, p["installed"])

	assert.DirExists(t, filepath.Join(s.root, "Shop"))
	s.assertTmpEmpty(t)

	w = s.do(t, http.MethodGet, "/api/v1/plugins", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode(t, w)["plugins"].([]any)
	require.Len(t, list, 1)
	assert.Equal(t, true, list[0].(map[string]any)["installed"])
}

func TestHandleUploadAcceptsApplicationZip(t *testing.T) {
	s := setupPluginTestRouter(t)
	w := s.upload(t, "Feed.zip", "application/zip",
		zipBytes(t, map[string]string{"Feed/Feed.yaml": shopManifest("Feed", "")}))
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestHandleUploadValidation(t *testing.T) {
	valid := func(t *testing.T) []byte {
		return zipBytes(t, map[string]string{"Shop.yaml": shopManifest("Shop", "")})
	}

	tests := []struct {
		name        string
		filename    string
		contentType string
		content     func(t *testing.T) []byte
		want        string
	}{
		{"wrong content type", "Shop.zip", "text/plain", valid, "The chosen file is not a valid zip file"},
		{"wrong extension", "Shop.rar", "application/x-zip-compressed", valid, "Invalid zip file extension"},
		{"not a zip", "Shop.zip", "application/x-zip-compressed",
			func(*testing.T) []byte { return []byte("just some text pretending") }, "The chosen file is not a valid zip file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := setupPluginTestRouter(t)
			w := s.upload(t, tt.filename, tt.contentType, tt.content(t))
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, []any{tt.want}, errorsOf(t, w))
			assert.NoDirExists(t, filepath.Join(s.root, "Shop"))
		})
	}
}

func TestHandleUploadNoFile(t *testing.T) {
	s := setupPluginTestRouter(t)
	w := s.do(t, http.MethodPost, "/api/v1/plugins", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, []any{"No file was uploaded"}, errorsOf(t, w))
}

func TestHandleUploadLifecycleErrors(t *testing.T) {
	tests := []struct {
		name    string
		archive string
		files   map[string]string
		status  int
	}{
		{"missing entry", "Shop.zip", map[string]string{"README.md": "hi"}, http.StatusUnprocessableEntity},
		{"mixed layout", "Shop.zip", map[string]string{"Shop/Shop.yaml": shopManifest("Shop", ""), "stray.txt": "x"}, http.StatusUnprocessableEntity},
		{"unregistered", "Ghost.zip", map[string]string{"Ghost.yaml": shopManifest("Ghost", "")}, http.StatusUnprocessableEntity},
		{"invalid name", "bad-name.zip", map[string]string{"x.yaml": "x"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := setupPluginTestRouter(t)
			w := s.upload(t, tt.archive, "application/zip", zipBytes(t, tt.files))
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Len(t, errorsOf(t, w), 1)
			s.assertTmpEmpty(t)

			entries, err := os.ReadDir(s.root)
			require.NoError(t, err)
			assert.Empty(t, entries)
		})
	}
}

func TestHandleUploadTwiceConflicts(t *testing.T) {
	s := setupPluginTestRouter(t)
	s.installShop(t)

	w := s.upload(t, "Shop.zip", "application/zip",
		zipBytes(t, map[string]string{"Shop.yaml": shopManifest("Shop", "")}))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, errorsOf(t, w)[0], "already installed")
}

func TestHandleGetAndConfig(t *testing.T) {
	s := setupPluginTestRouter(t)
	s.installShop(t)

	w := s.do(t, http.MethodGet, "/api/v1/plugins/shop", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "Shop", body["plugin"].(map[string]any)["system_name"])

	w = s.do(t, http.MethodPut, "/api/v1/plugins/Shop/config", strings.NewReader(`{"endpoint":"https://shop.example.com"}`))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, map[string]any{"endpoint": "https://shop.example.com"}, decode(t, w)["config"])

	w = s.do(t, http.MethodPut, "/api/v1/plugins/Shop/config", strings.NewReader(`[1,2]`))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/plugins/Nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Len(t, errorsOf(t, w), 1)
}

func TestHandleUninstall(t *testing.T) {
	s := setupPluginTestRouter(t)
	s.installShop(t)

	w := s.do(t, http.MethodPost, "/api/v1/products/7/plugins/Shop", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodDelete, "/api/v1/plugins/Shop", nil)
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())
	assert.NoDirExists(t, filepath.Join(s.root, "Shop"))

	w = s.do(t, http.MethodGet, "/api/v1/products/7/plugins", nil)
	assert.Equal(t, []any{}, decode(t, w)["plugins"])

	w = s.do(t, http.MethodDelete, "/api/v1/plugins/Shop", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestProductPluginEndpoints(t *testing.T) {
	s := setupPluginTestRouter(t)
	s.installShop(t)

	w := s.do(t, http.MethodPost, "/api/v1/products/7/plugins/shop", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Shop", decode(t, w)["plugin"], "links use the canonical system name")

	w = s.do(t, http.MethodPost, "/api/v1/products/7/plugins/Shop", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/products/7/plugins", nil)
	assert.Equal(t, []any{"Shop"}, decode(t, w)["plugins"])

	w = s.do(t, http.MethodGet, "/api/v1/products/7/plugin-fields", nil)
	require.Equal(t, http.StatusOK, w.Code)
	fields := decode(t, w)["fields"].(map[string]any)
	require.Contains(t, fields, "Shop")
	assert.Equal(t, "sku", fields["Shop"].([]any)[0].(map[string]any)["name"])

	w = s.do(t, http.MethodPost, "/api/v1/products/7/plugins/Ghost", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/products/abc/plugins", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodDelete, "/api/v1/products/7/plugins/Shop", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = s.do(t, http.MethodGet, "/api/v1/products/7/plugins", nil)
	assert.Equal(t, []any{}, decode(t, w)["plugins"])
}

func TestHandleLogsAndReload(t *testing.T) {
	s := setupPluginTestRouter(t)
	s.installShop(t)

	w := s.do(t, http.MethodGet, "/api/v1/plugins/logs?plugin=Shop", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.NotZero(t, body["count"])

	w = s.do(t, http.MethodDelete, "/api/v1/plugins/logs", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, 0, s.logs.Len())

	require.NoError(t, os.MkdirAll(filepath.Join(s.root, "Feed"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(s.root, "Feed", "Feed.yaml"), []byte(shopManifest("Feed", "")), 0o644))
	w = s.do(t, http.MethodPost, "/api/v1/plugins/reload", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), decode(t, w)["count"])
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		kind error
		want int
	}{
		{plugin.ErrInvalidName, http.StatusBadRequest},
		{plugin.ErrExtensionNotLoaded, http.StatusNotFound},
		{plugin.ErrAlreadyInstalled, http.StatusConflict},
		{plugin.ErrBadArchiveStructure, http.StatusUnprocessableEntity},
		{plugin.ErrEntryFileMissing, http.StatusUnprocessableEntity},
		{plugin.ErrEntryClassMissing, http.StatusUnprocessableEntity},
		{plugin.ErrNotAnExtension, http.StatusUnprocessableEntity},
		{plugin.ErrIncompatible, http.StatusUnprocessableEntity},
		{plugin.ErrExtractionFailed, http.StatusInternalServerError},
		{plugin.ErrInstallHookFailed, http.StatusInternalServerError},
		{plugin.ErrUninstallHookFailed, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(plugin.NewError("install", "Foo", tt.kind, nil)), tt.kind.Error())
	}
}

func TestHealthAndMetrics(t *testing.T) {
	s := setupPluginTestRouter(t)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/healthz", nil).Code)

	w := s.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestConcurrentUploadsOfOneArchive(t *testing.T) {
	s := setupPluginTestRouter(t)
	content := zipBytes(t, map[string]string{"Shop.yaml": shopManifest("Shop", "")})

	const n = 4
	codes := make([]int, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			codes[i] = s.upload(t, "Shop.zip", "application/zip", content).Code
		}()
	}
	wg.Wait()

	created, conflicts := 0, 0
	for _, code := range codes {
		switch code {
		case http.StatusCreated:
			created++
		case http.StatusConflict:
			conflicts++
		}
	}
	assert.Equal(t, 1, created, "codes: %v", codes)
	assert.Equal(t, n-1, conflicts, "codes: %v", codes)
	assert.FileExists(t, filepath.Join(s.root, "Shop", "Shop.yaml"))
	s.assertTmpEmpty(t)
}

func TestSaveUsesDistinctPaths(t *testing.T) {
	h := &Handler{tmpDir: t.TempDir()}

	a, err := h.save(strings.NewReader("first"), "Shop.zip")
	require.NoError(t, err)
	b, err := h.save(strings.NewReader("second"), "Shop.zip")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.Equal(t, "Shop.zip", filepath.Base(a))
	assert.Equal(t, "Shop.zip", filepath.Base(b))

	data, err := os.ReadFile(a)
	require.NoError(t, err)
	assert.Equal(t, "first", string(data))
}
