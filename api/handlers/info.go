package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/document-converter/internal/converter"
)

// Catalog lists the registered kinds.
type Catalog interface {
	Groups() map[converter.Group][]converter.Descriptor
}

// KindInfo describes one kind to clients.
type KindInfo struct {
	Name        string   `json:"name"`
	Formats     []string `json:"formats"`
	Output      string   `json:"output"`
	MultiOutput bool     `json:"multi_output,omitempty"`
}

type InfoHandler struct {
	catalog Catalog
}

func NewInfoHandler(catalog Catalog) *InfoHandler {
	return &InfoHandler{catalog: catalog}
}

// Info 返回支持的转换类型
func (h *InfoHandler) Info(c *gin.Context) {
	info := make(map[converter.Group]map[string]KindInfo)
	for group, descs := range h.catalog.Groups() {
		kinds := make(map[string]KindInfo, len(descs))
		for _, d := range descs {
			kinds[d.Kind.String()] = KindInfo{
				Name:        d.Name,
				Formats:     d.Extensions,
				Output:      d.OutputExt,
				MultiOutput: d.MultiOutput,
			}
		}
		info[group] = kinds
	}
	c.JSON(http.StatusOK, info)
}

func (h *InfoHandler) Health(c *gin.Context) {
	n := 0
	for _, descs := range h.catalog.Groups() {
		n += len(descs)
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"kinds":  n,
	})
}
