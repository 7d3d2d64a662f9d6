package configs

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nexanet/configbot/internal/apperr"
)

// AllowedExtensions lists the config formats accepted on upload.
var AllowedExtensions = []string{"hc", "ehi", "ziv", "dark", "json"}

// Categories are the groupings offered in menus. The store accepts any category.
var Categories = []string{"Safaricom", "Airtel", "Telkom", "Other"}

// Extension returns the lower-cased extension of name without the dot. Names made
// only of leading dots and an extension, like ".hc", have no extension.
func Extension(name string) string {
	base := filepath.Base(strings.TrimSpace(name))
	ext := filepath.Ext(base)
	if strings.TrimLeft(strings.TrimSuffix(base, ext), ".") == "" {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(ext), ".")
}

// ValidateExtension rejects names whose extension is not an allowed config format.
func ValidateExtension(name string) error {
	ext := Extension(name)
	for _, allowed := range AllowedExtensions {
		if ext == allowed {
			return nil
		}
	}
	return fmt.Errorf("configs: extension %q not allowed (allowed: .%s): %w",
		ext, strings.Join(AllowedExtensions, ", ."), apperr.ErrInvalidInput)
}

// StorageName derives an unpredictable blob name that keeps the original extension
// but not the original name.
func StorageName(originalName string, uploaderID int64, now time.Time) string {
	h := sha256.New()
	h.Write([]byte(originalName))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatInt(uploaderID, 10)))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatInt(now.UnixNano(), 10)))
	h.Write([]byte{0})
	h.Write([]byte(uuid.NewString()))
	digest := hex.EncodeToString(h.Sum(nil))[:16]
	return "config_" + digest + "." + Extension(originalName) + ".enc"
}
