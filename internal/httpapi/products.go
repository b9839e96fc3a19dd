package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/MarkoPoloResearchLab/vending/pkg/vending"
	"github.com/gin-gonic/gin"
)

func (handler *httpHandler) handleListProducts(ctx *gin.Context) {
	limit, ok := handler.queryLimit(ctx)
	if !ok {
		return
	}
	products, err := handler.service.Products(ctx.Request.Context(), limit)
	if err != nil {
		handler.respondError(ctx, "list_products", err)
		return
	}
	payloads := make([]productPayload, 0, len(products))
	for _, product := range products {
		payloads = append(payloads, newProductPayload(product))
	}
	respondOK(ctx, payloads, messageProductsRetrieved)
}

func (handler *httpHandler) handleGetProduct(ctx *gin.Context) {
	productID, ok := handler.productIDParam(ctx, ctx.Param("id"))
	if !ok {
		return
	}
	product, err := handler.service.Product(ctx.Request.Context(), productID)
	if err != nil {
		handler.respondError(ctx, "get_product", err)
		return
	}
	respondOK(ctx, newProductPayload(product), vending.MessageProductRetrieved)
}

func (handler *httpHandler) handleCreateProduct(ctx *gin.Context) {
	current, ok := handler.mustPrincipal(ctx)
	if !ok {
		return
	}
	var request productRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		respondFailure(ctx, http.StatusBadRequest, errInvalidPayload.Error())
		return
	}
	product, err := handler.service.CreateProduct(ctx.Request.Context(), current.UserID, toProductInput(request))
	if err != nil {
		handler.respondError(ctx, "create_product", err)
		return
	}
	respondOK(ctx, newProductPayload(product), vending.MessageProductAdded)
}

func (handler *httpHandler) handleUpdateProduct(ctx *gin.Context) {
	current, ok := handler.mustPrincipal(ctx)
	if !ok {
		return
	}
	productID, ok := handler.productIDParam(ctx, ctx.Param("id"))
	if !ok {
		return
	}
	var request productRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		respondFailure(ctx, http.StatusBadRequest, errInvalidPayload.Error())
		return
	}
	product, err := handler.service.UpdateProduct(ctx.Request.Context(), current.UserID, productID, toProductInput(request))
	if err != nil {
		handler.respondError(ctx, "update_product", err)
		return
	}
	respondOK(ctx, newProductPayload(product), vending.MessageProductUpdated)
}

func (handler *httpHandler) handleDeleteProduct(ctx *gin.Context) {
	current, ok := handler.mustPrincipal(ctx)
	if !ok {
		return
	}
	productID, ok := handler.productIDParam(ctx, ctx.Param("id"))
	if !ok {
		return
	}
	if err := handler.service.DeleteProduct(ctx.Request.Context(), current.UserID, productID); err != nil {
		handler.respondError(ctx, "delete_product", err)
		return
	}
	respondOK(ctx, nil, vending.MessageProductDeleted)
}

func (handler *httpHandler) handleBuy(ctx *gin.Context) {
	current, ok := handler.mustPrincipal(ctx)
	if !ok {
		return
	}
	productID, ok := handler.productIDParam(ctx, ctx.Query("id"))
	if !ok {
		return
	}
	count, err := strconv.Atoi(strings.TrimSpace(ctx.Query("productCount")))
	if err != nil {
		handler.respondError(ctx, "purchase", vending.NewFailure(vending.KindInvalidInput, vending.ErrInvalidQuantity, err))
		return
	}
	quantity, err := vending.NewQuantity(count)
	if err != nil {
		handler.respondError(ctx, "purchase", vending.NewFailure(vending.KindInvalidInput, vending.ErrInvalidQuantity, err))
		return
	}
	receipt, err := handler.service.Purchase(ctx.Request.Context(), current.UserID, productID, quantity)
	if err != nil {
		handler.respondError(ctx, "purchase", err)
		return
	}
	respondOK(ctx, newPurchasePayload(receipt), receipt.Message)
}

func (handler *httpHandler) productIDParam(ctx *gin.Context, raw string) (vending.ProductID, bool) {
	productID, err := vending.NewProductID(raw)
	if err != nil {
		handler.respondError(ctx, "product_id", vending.NewFailure(vending.KindInvalidInput, vending.ErrInvalidProductID, err))
		return vending.ProductID{}, false
	}
	return productID, true
}
