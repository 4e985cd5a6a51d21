package app

import (
	"log"
	"mime"

	"github.com/mpk-pharma/kanha/internal/items"
)

func init() {
	ensureMimeType(".xlsx", items.ExportContentType)
	ensureMimeType(".pdf", "application/pdf")
}

func ensureMimeType(ext, typ string) {
	if mime.TypeByExtension(ext) != "" {
		return
	}
	if err := mime.AddExtensionType(ext, typ); err != nil {
		log.Printf("app: failed to register MIME type for %s: %v", ext, err)
	}
}
