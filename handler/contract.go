package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Nachoram/plataforma-inmobiliaria-sub005/middleware"
	"github.com/Nachoram/plataforma-inmobiliaria-sub005/model"
	"github.com/Nachoram/plataforma-inmobiliaria-sub005/pkg/logger"
	"github.com/Nachoram/plataforma-inmobiliaria-sub005/service"
)

type ContractHandler struct {
	store    service.Store
	machine  *service.StateMachine
	orch     *service.Orchestrator
	exporter *service.ExportService
	now      func() time.Time
}

func NewContractHandler(store service.Store, machine *service.StateMachine, orch *service.Orchestrator,
	exporter *service.ExportService) *ContractHandler {
	return &ContractHandler{
		store:    store,
		machine:  machine,
		orch:     orch,
		exporter: exporter,
		now:      time.Now,
	}
}

// CreateContractRequest is the draft handed over by the surrounding
// application once a rental application is accepted.
type CreateContractRequest struct {
	ID             string          `json:"id"`
	Title          string          `json:"title" binding:"required"`
	Content        []model.Section `json:"content"`
	Parties        model.Parties   `json:"parties"`
	PropertyRef    string          `json:"property_ref"`
	ApplicationRef string          `json:"application_ref"`
}

// Create stores a new draft contract
func (h *ContractHandler) Create(c *gin.Context) {
	var req CreateContractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request")
		return
	}
	for i, s := range req.Content {
		if strings.TrimSpace(s.ID) == "" {
			badRequest(c, fmt.Sprintf("content[%d] has no id", i))
			return
		}
	}

	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = uuid.New().String()
	}
	now := h.now().UTC()
	contract := &model.Contract{
		ID:             id,
		Title:          strings.TrimSpace(req.Title),
		Status:         model.ContractDraft,
		Content:        req.Content,
		Parties:        req.Parties,
		PropertyRef:    req.PropertyRef,
		ApplicationRef: req.ApplicationRef,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := h.store.CreateContract(c.Request.Context(), contract); err != nil {
		respondError(c, err, nil)
		return
	}

	logger.Info(logger.WithContractID(c.Request.Context(), id), "contract created",
		"created_by", middleware.GetUsername(c),
		"sections", len(contract.Content),
	)
	c.JSON(http.StatusCreated, contract)
}

// List returns contracts, optionally filtered by ?status=a,b
func (h *ContractHandler) List(c *gin.Context) {
	var statuses []model.ContractStatus
	if raw := c.Query("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			st, err := model.ParseContractStatus(strings.TrimSpace(s))
			if err != nil {
				badRequest(c, err.Error())
				return
			}
			statuses = append(statuses, st)
		}
	}

	contracts, err := h.store.ListContracts(c.Request.Context(), statuses...)
	if err != nil {
		respondError(c, err, nil)
		return
	}

	// Content is left out of the list view
	result := make([]gin.H, len(contracts))
	for i, contract := range contracts {
		result[i] = gin.H{
			"id":         contract.ID,
			"title":      contract.Title,
			"status":     contract.Status,
			"created_at": contract.CreatedAt.Format(time.RFC3339),
			"updated_at": contract.UpdatedAt.Format(time.RFC3339),
		}
	}

	c.JSON(http.StatusOK, gin.H{"contracts": result})
}

// Get returns a single contract with its signature records
func (h *ContractHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()
	contract, err := h.store.GetContract(ctx, c.Param("id"))
	if err != nil {
		respondError(c, err, nil)
		return
	}
	records, err := h.store.ListSignatures(ctx, contract.ID)
	if err != nil {
		respondError(c, err, nil)
		return
	}

	c.JSON(http.StatusOK, gin.H{"contract": contract, "signatures": records})
}

// Approve moves a draft to approved
func (h *ContractHandler) Approve(c *gin.Context) {
	contract, err := h.machine.Approve(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, contract)
}

// Send dispatches signature requests. An optional JSON body overrides the
// stored parties.
func (h *ContractHandler) Send(c *gin.Context) {
	var parties *model.Parties
	if c.Request.ContentLength != 0 {
		var p model.Parties
		if err := c.ShouldBindJSON(&p); err != nil {
			badRequest(c, "Invalid parties")
			return
		}
		parties = &p
	}

	contract, report, err := h.machine.SendToSignature(c.Request.Context(), c.Param("id"), parties)
	if err != nil {
		var extra gin.H
		if report != nil {
			extra = gin.H{"report": report}
		}
		respondError(c, err, extra)
		return
	}
	c.JSON(http.StatusOK, gin.H{"contract": contract, "report": report})
}

// Cancel cancels the contract and voids outstanding signature requests
func (h *ContractHandler) Cancel(c *gin.Context) {
	contract, err := h.machine.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, contract)
}

// Poll checks outstanding requests with the provider
func (h *ContractHandler) Poll(c *gin.Context) {
	report, err := h.orch.Poll(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, report)
}

// Recompute re-derives the contract status from its signature records
func (h *ContractHandler) Recompute(c *gin.Context) {
	id := c.Param("id")
	status, err := h.orch.RecomputeStatus(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "status": status})
}

// Resend issues a fresh request for one signer
func (h *ContractHandler) Resend(c *gin.Context) {
	role, ok := parseRole(c)
	if !ok {
		return
	}
	rec, status, err := h.orch.Resend(c.Request.Context(), c.Param("id"), role)
	if err != nil {
		var extra gin.H
		if rec != nil {
			extra = gin.H{"signature": rec, "contract_status": status}
		}
		respondError(c, err, extra)
		return
	}
	c.JSON(http.StatusOK, gin.H{"signature": rec, "contract_status": status})
}

// Complete records a signature for one signer
func (h *ContractHandler) Complete(c *gin.Context) {
	role, ok := parseRole(c)
	if !ok {
		return
	}
	rec, status, err := h.orch.Complete(c.Request.Context(), c.Param("id"), role)
	if err != nil {
		var extra gin.H
		if rec != nil {
			extra = gin.H{"signature": rec, "contract_status": status}
		}
		respondError(c, err, extra)
		return
	}
	c.JSON(http.StatusOK, gin.H{"signature": rec, "contract_status": status})
}

// Export renders the contract to PDF. With ?store=1 the file is uploaded
// and a download link is returned instead.
func (h *ContractHandler) Export(c *gin.Context) {
	ctx := c.Request.Context()
	contract, err := h.store.GetContract(ctx, c.Param("id"))
	if err != nil {
		respondError(c, err, nil)
		return
	}

	store, _ := strconv.ParseBool(c.DefaultQuery("store", "false"))
	if store && !h.exporter.CanStore() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Artifact storage is not configured", "code": codeUnavailable})
		return
	}

	res, err := h.exporter.Export(ctx, contract)
	if err != nil {
		if errors.Is(err, ctx.Err()) {
			// Client went away; nothing useful can be written.
			c.Abort()
			return
		}
		respondError(c, err, nil)
		return
	}

	if store {
		artifact, err := h.exporter.Store(ctx, contract, res)
		if err != nil {
			respondError(c, err, nil)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"filename": res.Filename,
			"pages":    res.Layout.PageCount(),
			"artifact": artifact,
		})
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, res.Filename))
	c.Header("X-Page-Count", strconv.Itoa(res.Layout.PageCount()))
	c.Data(http.StatusOK, "application/pdf", res.PDF)
}

func parseRole(c *gin.Context) (model.SignerRole, bool) {
	role, err := model.ParseSignerRole(c.Param("role"))
	if err != nil {
		badRequest(c, err.Error())
		return "", false
	}
	return role, true
}
