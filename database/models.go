package database

import (
	"time"

	"github.com/abiiranathan/pdfmark/annotation"
)

// A stored PDF with its bookmarks.
type Document struct {
	ID        uint32    `json:"id"`        // fnv-32 hash of the content.
	Name      string    `json:"name"`      // Original file name.
	PageCount int       `json:"pageCount"` // Number of pages, checked on import.
	Size      int64     `json:"size"`      // Size of Data in bytes.
	CreatedAt time.Time `json:"createdAt"`

	// Raw bytes. Only loaded by DB.Get.
	Data []byte `json:"-"`

	Bookmarks []annotation.Annotation `json:"bookmarks"`
}
