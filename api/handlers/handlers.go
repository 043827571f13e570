package handlers

import (
	"github.com/feichai0017/document-converter/internal/service/history"
	"github.com/feichai0017/document-converter/pkg/logger"
	"github.com/feichai0017/document-converter/pkg/storage"
)

type Handlers struct {
	Conversion *ConversionHandler
	Info       *InfoHandler
}

// Config carries what the handlers need besides the orchestrator.
type Config struct {
	Outputs        OutputArea
	Mirror         storage.Storage
	Recorder       history.Recorder
	MaxUploadBytes int64
}

func NewHandlers(
	orch Submitter,
	catalog Catalog,
	cfg Config,
	logger logger.Logger,
) *Handlers {
	return &Handlers{
		Conversion: NewConversionHandler(orch, cfg, logger),
		Info:       NewInfoHandler(catalog),
	}
}
