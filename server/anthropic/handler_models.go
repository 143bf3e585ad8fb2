package anthropic

import (
	"net/http"
)

// handleModels lists the models offered to clients. Only profiles supporting
// both tools and image input are advertised.
func (h *Handler) handleModels(w http.ResponseWriter, r *http.Request) {
	result := ModelsResponse{
		Data: []Model{},
	}

	for _, p := range h.resolver.ListCapable() {
		result.Data = append(result.Data, Model{
			Type: "model",

			ID:          p.ID,
			DisplayName: p.ID,
		})
	}

	if len(result.Data) > 0 {
		result.FirstID = &result.Data[0].ID
		result.LastID = &result.Data[len(result.Data)-1].ID
	}

	writeJson(w, result)
}
