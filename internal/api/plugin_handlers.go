// Package api exposes the extension lifecycle over HTTP with gin.
package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/microcosm-cc/bluemonday"

	"github.com/goatkit/prodmanager/internal/models"
	"github.com/goatkit/prodmanager/internal/plugin"
)

// uploadField is the multipart field carrying the archive.
const uploadField = "plugin"

var allowedUploadTypes = []string{"application/x-zip-compressed", "application/zip"}

// InstalledLister reads the persisted installed-extensions table.
type InstalledLister interface {
	List(ctx context.Context) ([]models.InstalledPlugin, error)
}

// ProductLinks is the association store as seen by the HTTP layer.
type ProductLinks interface {
	Link(ctx context.Context, productID int64, systemName string) error
	Unlink(ctx context.Context, productID int64, systemName string) error
	ListSystemNamesFor(ctx context.Context, productID int64) ([]string, error)
}

// HandlerConfig holds the collaborators of Handler.
type HandlerConfig struct {
	Manager    *plugin.Manager
	Dispatcher *plugin.Dispatcher
	Installed  InstalledLister
	Links      ProductLinks
	Logs       *plugin.LogBuffer
	// TmpDir receives uploads before installation.
	TmpDir string
	// MaxUploadBytes caps the request body of an upload. Zero means 32 MiB.
	MaxUploadBytes int64
	Logger         *slog.Logger
}

// Handler serves the plugin and product-association endpoints.
type Handler struct {
	manager    *plugin.Manager
	registry   *plugin.Registry
	dispatcher *plugin.Dispatcher
	installed  InstalledLister
	links      ProductLinks
	logs       *plugin.LogBuffer
	tmpDir     string
	maxUpload  int64
	logger     *slog.Logger
	policy     *bluemonday.Policy
}

// NewHandler creates a handler.
func NewHandler(cfg HandlerConfig) *Handler {
	h := &Handler{
		manager:    cfg.Manager,
		registry:   cfg.Manager.Registry(),
		dispatcher: cfg.Dispatcher,
		installed:  cfg.Installed,
		links:      cfg.Links,
		logs:       cfg.Logs,
		tmpDir:     cfg.TmpDir,
		maxUpload:  cfg.MaxUploadBytes,
		logger:     cfg.Logger,
		policy:     bluemonday.StrictPolicy(),
	}
	if h.maxUpload <= 0 {
		h.maxUpload = 32 << 20
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	return h
}

// info builds the listing entry for ext. Contributor-supplied text is
// stripped of markup.
func (h *Handler) info(ext plugin.Extension, installed map[string]bool) models.PluginInfo {
	d := ext.Descriptor()
	return models.PluginInfo{
		Name:        h.policy.Sanitize(d.Name),
		SystemName:  d.SystemName,
		Description: h.policy.Sanitize(d.Description),
		Version:     h.policy.Sanitize(d.Version),
		Author:      h.policy.Sanitize(d.Authors.String()),
		Installed:   installed[d.SystemName],
	}
}

func (h *Handler) installedSet(ctx context.Context) map[string]bool {
	set := make(map[string]bool)
	if h.installed == nil {
		return set
	}
	rows, err := h.installed.List(ctx)
	if err != nil {
		h.logger.Warn("cannot read installed plugins", "error", err)
		return set
	}
	for _, r := range rows {
		set[r.SystemName] = true
	}
	return set
}

func (h *Handler) lookup(c *gin.Context) (plugin.Extension, bool) {
	name := c.Param("name")
	ext, ok := h.registry.Get(c.Request.Context(), name)
	if !ok {
		abortWithError(c, plugin.NewError("get", name, plugin.ErrExtensionNotLoaded, nil))
	}
	return ext, ok
}

// HandleList returns all loaded extensions.
// GET /api/v1/plugins
func (h *Handler) HandleList(c *gin.Context) {
	ctx := c.Request.Context()
	installed := h.installedSet(ctx)

	exts := h.registry.All(ctx)
	out := make([]models.PluginInfo, 0, len(exts))
	for _, ext := range exts {
		out = append(out, h.info(ext, installed))
	}
	c.JSON(http.StatusOK, gin.H{"plugins": out})
}

// HandleGet returns one extension with its settings form and settings.
// GET /api/v1/plugins/:name
func (h *Handler) HandleGet(c *gin.Context) {
	ext, ok := h.lookup(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	fields, err := ext.ConfigFields(ctx)
	if err != nil {
		abortWithErrors(c, http.StatusInternalServerError, err.Error())
		return
	}
	cfg, err := ext.Config(ctx)
	if err != nil {
		abortWithErrors(c, http.StatusInternalServerError, err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"plugin":        h.info(ext, h.installedSet(ctx)),
		"config_fields": fields,
		"config":        cfg,
	})
}

// HandleUpload installs an uploaded archive.
// POST /api/v1/plugins (multipart field "plugin")
func (h *Handler) HandleUpload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)

	file, header, err := c.Request.FormFile(uploadField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			abortWithErrors(c, http.StatusRequestEntityTooLarge, "The uploaded file is too large")
			return
		}
		abortWithErrors(c, http.StatusBadRequest, "No file was uploaded")
		return
	}
	defer file.Close()

	filename := filepath.Base(header.Filename)
	var errs []string
	if !slices.Contains(allowedUploadTypes, header.Header.Get("Content-Type")) {
		errs = append(errs, "The chosen file is not a valid zip file")
	} else if !strings.HasSuffix(filename, ".zip") {
		errs = append(errs, "Invalid zip file extension")
	} else if !sniffZip(file) {
		errs = append(errs, "The chosen file is not a valid zip file")
	}
	if len(errs) > 0 {
		abortWithErrors(c, http.StatusBadRequest, errs...)
		return
	}

	path, err := h.save(file, filename)
	if path != "" {
		defer os.RemoveAll(filepath.Dir(path))
	}
	if err != nil {
		h.logger.Error("cannot store upload", "name", filename, "error", err)
		abortWithErrors(c, http.StatusInternalServerError, "Something went wrong while processing your file. please try again")
		return
	}

	desc, err := h.manager.Install(c.Request.Context(), path)
	if err != nil {
		abortWithError(c, err)
		return
	}

	ext, _ := h.registry.Get(c.Request.Context(), desc.SystemName)
	c.JSON(http.StatusCreated, gin.H{"plugin": h.info(ext, map[string]bool{desc.SystemName: true})})
}

// sniffZip reports whether the content looks like a ZIP archive. Formats
// built on ZIP count too.
func sniffZip(r io.Reader) bool {
	mt, err := mimetype.DetectReader(r)
	if err != nil {
		return false
	}
	for ; mt != nil; mt = mt.Parent() {
		if mt.Is("application/zip") {
			return true
		}
	}
	return false
}

// save copies the upload to <tmpDir>/upload-*/<filename>. Every upload gets
// its own directory so that concurrent uploads of one name never share a
// file. The caller removes the directory; path is set whenever it exists.
func (h *Handler) save(src io.ReadSeeker, filename string) (path string, err error) {
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	if err := os.MkdirAll(h.tmpDir, 0o755); err != nil {
		return "", err
	}
	dir, err := os.MkdirTemp(h.tmpDir, "upload-*")
	if err != nil {
		return "", err
	}

	path = filepath.Join(dir, filename)
	dst, err := os.Create(path)
	if err != nil {
		return path, err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return path, err
	}
	return path, dst.Close()
}

// HandleUninstall removes an extension.
// DELETE /api/v1/plugins/:name
func (h *Handler) HandleUninstall(c *gin.Context) {
	if err := h.manager.Uninstall(c.Request.Context(), c.Param("name")); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// HandleUpdateConfig stores new settings for an extension.
// PUT /api/v1/plugins/:name/config
func (h *Handler) HandleUpdateConfig(c *gin.Context) {
	ext, ok := h.lookup(c)
	if !ok {
		return
	}

	var values map[string]string
	if err := c.ShouldBindJSON(&values); err != nil {
		abortWithErrors(c, http.StatusBadRequest, "Request body must be a JSON object of strings")
		return
	}

	ctx := c.Request.Context()
	if err := ext.UpdateConfig(ctx, values); err != nil {
		h.logs.Log(ext.Descriptor().SystemName, "error", "config update failed", map[string]any{"error": err.Error()})
		abortWithErrors(c, http.StatusInternalServerError, "Something went wrong while trying to update the plugin information")
		return
	}

	cfg, _ := ext.Config(ctx)
	c.JSON(http.StatusOK, gin.H{"config": cfg})
}

// HandleReload rediscovers the plugins directory.
// POST /api/v1/plugins/reload
func (h *Handler) HandleReload(c *gin.Context) {
	ctx := c.Request.Context()
	h.registry.Reload(ctx)
	c.JSON(http.StatusOK, gin.H{"count": len(h.registry.All(ctx))})
}

// HandleLogs returns buffered extension log entries, newest first.
// GET /api/v1/plugins/logs?plugin=name&level=warn&limit=100
func (h *Handler) HandleLogs(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit <= 0 {
		limit = 100
	}

	entries := h.logs.Entries(plugin.LogFilter{
		Plugin:   c.Query("plugin"),
		MinLevel: c.Query("level"),
		Limit:    limit,
	})
	c.JSON(http.StatusOK, gin.H{
		"logs":  entries,
		"count": len(entries),
		"total": h.logs.Len(),
	})
}

// HandleClearLogs empties the log buffer.
// DELETE /api/v1/plugins/logs
func (h *Handler) HandleClearLogs(c *gin.Context) {
	h.logs.Clear()
	c.Status(http.StatusNoContent)
}
