package app

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path"
	"strconv"
	"strings"

	"bizadmin-backend/internal/model"
)

const ArchiveFileName = "documents.zip"

// FileTypeForName maps the text after the last dot of an upload name to its
// stored file type. A name without a dot is taken whole, so "PDF" is a pdf.
func FileTypeForName(name string) (model.FileType, error) {
	name = strings.TrimSpace(name)
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	switch strings.ToLower(name) {
	case "pdf":
		return model.FileTypePDF, nil
	case "docx", "doc":
		return model.FileTypeDOCX, nil
	default:
		return "", ErrUnsupportedFileType
	}
}

// ContentTypeForName picks the response content type from the stored extension.
func ContentTypeForName(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".pdf":
		return "application/pdf"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".doc":
		return "application/msword"
	default:
		return "application/octet-stream"
	}
}

// OutputName is the attachment and archive entry name of a version:
// {title}_v{n}{ext}. The extension comes from the stored blob name and falls
// back to the file type. Path separators in the title are replaced so the
// name stays a single archive entry.
func OutputName(title string, version *model.DocumentVersion) string {
	ext := path.Ext(version.FileKey)
	if ext == "" {
		ext = path.Ext(version.FileName)
	}
	if ext == "" {
		ext = "." + string(version.FileType)
	}
	safeTitle := strings.NewReplacer("/", "_", "\\", "_").Replace(title)
	return fmt.Sprintf("%s_v%d%s", safeTitle, version.VersionNumber, ext)
}

// IdentityKey digests the exact (firm, title, category) triple. It is case
// sensitive regardless of the database collation.
func IdentityKey(firmID uint, title, category string) string {
	sum := sha256.Sum256([]byte(strconv.FormatUint(uint64(firmID), 10) + "\x00" + title + "\x00" + category))
	return hex.EncodeToString(sum[:])
}
