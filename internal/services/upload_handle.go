package services

import (
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/openfiscal/broker-backend/internal/types"
)

// UploadHandleIssuer hands out an opaque handle for where uploaded bytes
// will live. The broker stores only the handle; moving bytes is the
// transport layer's problem.
type UploadHandleIssuer interface {
	Issue(submissionID uuid.UUID, fileType types.FileType, filename string) (string, error)
}

type keyHandleIssuer struct {
	prefix string
}

// NewKeyHandleIssuer issues bucket-style object keys of the form
// {prefix}/{submission}/{file_type}/{nonce}_{filename}.
func NewKeyHandleIssuer(prefix string) UploadHandleIssuer {
	if prefix == "" {
		prefix = "submissions"
	}
	return &keyHandleIssuer{prefix: strings.Trim(prefix, "/")}
}

func (i *keyHandleIssuer) Issue(submissionID uuid.UUID, fileType types.FileType, filename string) (string, error) {
	if submissionID == uuid.Nil {
		return "", fmt.Errorf("missing submission id")
	}
	base := path.Base(strings.TrimSpace(filename))
	if base == "" || base == "." || base == "/" {
		return "", fmt.Errorf("invalid filename %q", filename)
	}
	nonce := uuid.New().String()[:8]
	return path.Join(i.prefix, submissionID.String(), string(fileType), nonce+"_"+base), nil
}
