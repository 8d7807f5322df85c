package handler

import (
	"github.com/gin-gonic/gin"

	"gopherai-kbqa/internal/transport/http/response"
	"gopherai-kbqa/internal/vectorindex"
)

const indexType = "flat_inner_product"

type IndexSource interface {
	Current() *vectorindex.FlatIndex
}

type StatsHandler struct {
	index          IndexSource
	embeddingModel string
	dimension      int
}

func NewStatsHandler(index IndexSource, embeddingModel string, dimension int) *StatsHandler {
	return &StatsHandler{index: index, embeddingModel: embeddingModel, dimension: dimension}
}

func (h *StatsHandler) Stats(c *gin.Context) {
	total := 0
	dimension := h.dimension
	if ix := h.index.Current(); ix != nil {
		total = ix.Len()
		dimension = ix.Dimension()
	}
	response.OK(c, gin.H{
		"total_documents": total,
		"dimension":       dimension,
		"index_type":      indexType,
		"embedding_model": h.embeddingModel,
	})
}
