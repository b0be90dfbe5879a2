package lead

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	leadService "github.com/autostream/agent/backend/internal/service/lead"
	"github.com/autostream/agent/backend/pkg/utils"
)

// Lister 提供已收集的线索
type Lister interface {
	List() []leadService.Captured
}

// Handler 线索查询的HTTP处理器
type Handler struct {
	leads Lister
}

func New(leads Lister) *Handler {
	return &Handler{leads: leads}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/leads", h.handleList)
}

func (h *Handler) handleList(w http.ResponseWriter, _ *http.Request) {
	leads := h.leads.List()
	if leads == nil {
		leads = []leadService.Captured{}
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"leads": leads,
		"count": len(leads),
	})
}
