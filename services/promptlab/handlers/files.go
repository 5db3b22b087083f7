// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.


package handlers

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/AleutianAI/PromptLab/services/promptlab/files"
	"github.com/gin-gonic/gin"
)

// UploadFile extracts the text of a multipart "file" field and returns it
// as an AttachedFile for the client to put on its candidate. Nothing is
// stored server-side.
func UploadFile(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		badRequest(c, fmt.Errorf("multipart field \"file\" is required: %w", err))
		return
	}
	if header.Size > files.MaxFileBytes {
		writeError(c, fmt.Errorf("%s: %w", header.Filename, files.ErrTooLarge))
		return
	}

	f, err := header.Open()
	if err != nil {
		writeError(c, fmt.Errorf("open upload: %w", err))
		return
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, files.MaxFileBytes+1))
	if err != nil {
		writeError(c, fmt.Errorf("read upload: %w", err))
		return
	}

	attached, err := files.Extract(header.Filename, data)
	if err != nil {
		writeError(c, err)
		return
	}
	slog.Info("file extracted", "name", attached.Name, "size", attached.Size, "mime", attached.MIMEType)
	c.JSON(http.StatusOK, attached)
}
