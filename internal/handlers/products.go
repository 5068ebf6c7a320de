package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/PratikDhanave/product-importer/internal/models"
	"github.com/PratikDhanave/product-importer/internal/store"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 100
)

// RegisterProductRoutes registers catalog CRUD. Every mutation queues the
// matching webhook event after it commits.
func RegisterProductRoutes(r gin.IRoutes, st ProductStore, events EventPublisher, log *logrus.Entry) {
	log = log.WithField("component", "products")

	r.GET("/api/products", func(c *gin.Context) {
		f, err := parseProductFilter(c)
		if err != nil {
			respondError(c, http.StatusBadRequest, err.Error(), nil)
			return
		}
		page, err := st.ListProducts(c.Request.Context(), f)
		if err != nil {
			respondError(c, http.StatusInternalServerError, "storage error", err)
			return
		}
		c.JSON(http.StatusOK, page)
	})

	r.GET("/api/products/:id", func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		p, err := st.GetProduct(c.Request.Context(), id)
		if err != nil {
			storeError(c, "Product not found", err)
			return
		}
		c.JSON(http.StatusOK, p)
	})

	r.POST("/api/products", func(c *gin.Context) {
		var req models.ProductCreateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "invalid JSON payload", err)
			return
		}
		in := models.ProductInput{
			SKU:         strings.TrimSpace(req.SKU),
			Name:        strings.TrimSpace(req.Name),
			Description: req.Description,
			Price:       *req.Price,
			Active:      req.Active == nil || *req.Active,
		}
		if msg := validateProduct(in); msg != "" {
			respondError(c, http.StatusBadRequest, msg, nil)
			return
		}

		ctx := c.Request.Context()
		taken, err := st.SKUExists(ctx, in.SKU, 0)
		if err != nil {
			respondError(c, http.StatusInternalServerError, "storage error", err)
			return
		}
		if taken {
			respondError(c, http.StatusBadRequest, duplicateSKU(in.SKU), nil)
			return
		}

		p, err := st.CreateProduct(ctx, in)
		if err != nil {
			if errors.Is(err, store.ErrDuplicateSKU) {
				respondError(c, http.StatusBadRequest, duplicateSKU(in.SKU), nil)
				return
			}
			respondError(c, http.StatusInternalServerError, "storage error", err)
			return
		}
		publish(c, events, log, models.EventProductCreated, p)
		c.JSON(http.StatusCreated, p)
	})

	r.PUT("/api/products/:id", func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		var req models.ProductUpdateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "invalid JSON payload", err)
			return
		}

		ctx := c.Request.Context()
		cur, err := st.GetProduct(ctx, id)
		if err != nil {
			storeError(c, "Product not found", err)
			return
		}

		in := models.ProductInput{
			SKU:         cur.SKU,
			Name:        cur.Name,
			Description: cur.Description,
			Price:       cur.Price,
			Active:      cur.Active,
		}
		if req.SKU != nil {
			in.SKU = strings.TrimSpace(*req.SKU)
		}
		if req.Name != nil {
			in.Name = strings.TrimSpace(*req.Name)
		}
		if req.Description != nil {
			in.Description = req.Description
		}
		if req.Price != nil {
			in.Price = *req.Price
		}
		if req.Active != nil {
			in.Active = *req.Active
		}
		if msg := validateProduct(in); msg != "" {
			respondError(c, http.StatusBadRequest, msg, nil)
			return
		}

		if !strings.EqualFold(in.SKU, cur.SKU) {
			taken, err := st.SKUExists(ctx, in.SKU, id)
			if err != nil {
				respondError(c, http.StatusInternalServerError, "storage error", err)
				return
			}
			if taken {
				respondError(c, http.StatusBadRequest, duplicateSKU(in.SKU), nil)
				return
			}
		}

		p, err := st.UpdateProduct(ctx, id, in)
		if err != nil {
			if errors.Is(err, store.ErrDuplicateSKU) {
				respondError(c, http.StatusBadRequest, duplicateSKU(in.SKU), nil)
				return
			}
			storeError(c, "Product not found", err)
			return
		}
		publish(c, events, log, models.EventProductUpdated, p)
		c.JSON(http.StatusOK, p)
	})

	r.DELETE("/api/products/:id", func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		p, err := st.DeleteProduct(c.Request.Context(), id)
		if err != nil {
			storeError(c, "Product not found", err)
			return
		}
		publish(c, events, log, models.EventProductDeleted, p)
		c.Status(http.StatusNoContent)
	})

	r.DELETE("/api/products", func(c *gin.Context) {
		n, err := st.DeleteAllProducts(c.Request.Context())
		if err != nil {
			respondError(c, http.StatusInternalServerError, "storage error", err)
			return
		}
		publish(c, events, log, models.EventProductsBulkDeleted, gin.H{"count": n})
		c.JSON(http.StatusOK, gin.H{
			"deleted": n,
			"message": fmt.Sprintf("Successfully deleted %d products", n),
		})
	})
}

func parseProductFilter(c *gin.Context) (models.ProductFilter, error) {
	f := models.ProductFilter{
		SKU:    strings.TrimSpace(c.Query("sku")),
		Name:   strings.TrimSpace(c.Query("name")),
		Search: strings.TrimSpace(c.Query("search")),
		Limit:  defaultPageLimit,
	}
	if v := c.Query("skip"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, errors.New("skip must be a non-negative integer")
		}
		f.Skip = n
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxPageLimit {
			return f, errors.Errorf("limit must be between 1 and %d", maxPageLimit)
		}
		f.Limit = n
	}
	if v := c.Query("active"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, errors.New("active must be a boolean")
		}
		f.Active = &b
	}
	return f, nil
}

func validateProduct(in models.ProductInput) string {
	switch {
	case in.SKU == "":
		return "sku must not be empty"
	case in.Name == "":
		return "name must not be empty"
	case in.Price.LessThan(decimal.Zero):
		return "price must be non-negative"
	}
	return ""
}

func duplicateSKU(sku string) string {
	return fmt.Sprintf("Product with SKU '%s' already exists", sku)
}
