package conversion

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_.-]+`)

// SecureFilename reduces a client supplied name to a safe base name made of
// ASCII letters, digits, '_', '-' and '.', keeping the extension.
func SecureFilename(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	name = filepath.Base("/" + name)

	ext := strings.ToLower(filepath.Ext(name))
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	stem = unsafeChars.ReplaceAllString(strings.Join(strings.Fields(stem), "_"), "")
	stem = strings.Trim(stem, "._-")
	ext = unsafeChars.ReplaceAllString(ext, "")

	if stem == "" {
		stem = "file"
	}
	if ext == "." {
		ext = ""
	}
	return stem + ext
}

// InputName is "<YYYYMMDD_HHMMSS>_<8 hex>_<safe name>". The random part keeps
// names unique across concurrent uploads of the same file.
func InputName(now time.Time, original string) string {
	return fmt.Sprintf("%s_%s_%s",
		now.Format("20060102_150405"),
		uuid.New().String()[:8],
		SecureFilename(original),
	)
}

// OutputName is "<input stem>_converted<ext>".
func OutputName(inputName, ext string) string {
	return strings.TrimSuffix(inputName, filepath.Ext(inputName)) + "_converted" + ext
}
