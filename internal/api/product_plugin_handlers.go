package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/goatkit/prodmanager/internal/plugin"
)

func productID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		abortWithErrors(c, http.StatusBadRequest, "Invalid product id")
		return 0, false
	}
	return id, true
}

// HandleProductPlugins lists the extensions linked to a product.
// GET /api/v1/products/:id/plugins
func (h *Handler) HandleProductPlugins(c *gin.Context) {
	id, ok := productID(c)
	if !ok {
		return
	}
	names, err := h.links.ListSystemNamesFor(c.Request.Context(), id)
	if err != nil {
		abortWithErrors(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"product_id": id, "plugins": names})
}

// HandleLinkProduct links a loaded extension to a product.
// POST /api/v1/products/:id/plugins/:name
func (h *Handler) HandleLinkProduct(c *gin.Context) {
	id, ok := productID(c)
	if !ok {
		return
	}
	ext, ok := h.lookup(c)
	if !ok {
		return
	}

	name := ext.Descriptor().SystemName
	if err := h.links.Link(c.Request.Context(), id, name); err != nil {
		abortWithErrors(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"product_id": id, "plugin": name})
}

// HandleUnlinkProduct removes a product association. Unlinking an
// extension that is no longer loaded is allowed.
// DELETE /api/v1/products/:id/plugins/:name
func (h *Handler) HandleUnlinkProduct(c *gin.Context) {
	id, ok := productID(c)
	if !ok {
		return
	}

	name := c.Param("name")
	if ext, found := h.registry.Get(c.Request.Context(), name); found {
		name = ext.Descriptor().SystemName
	}
	if err := h.links.Unlink(c.Request.Context(), id, name); err != nil {
		abortWithErrors(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.Status(http.StatusNoContent)
}

// HandleProductFields returns the form fields each linked extension adds to
// the product.
// GET /api/v1/products/:id/plugin-fields
func (h *Handler) HandleProductFields(c *gin.Context) {
	id, ok := productID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	exts, err := h.dispatcher.Linked(ctx, id)
	if err != nil {
		abortWithErrors(c, http.StatusInternalServerError, err.Error())
		return
	}

	out := make(map[string][]plugin.Field, len(exts))
	var errs []string
	for _, ext := range exts {
		name := ext.Descriptor().SystemName
		fields, err := ext.PluginFields(ctx, id)
		if err != nil {
			h.logs.Log(name, "error", "plugin fields failed", map[string]any{"error": err.Error(), "product_id": id})
			errs = append(errs, name+": "+err.Error())
			continue
		}
		out[name] = fields
	}

	body := gin.H{"product_id": id, "fields": out}
	if len(errs) > 0 {
		body["errors"] = errs
	}
	c.JSON(http.StatusOK, body)
}
