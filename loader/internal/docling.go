package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	ltypes "docchat/loader/types"
)

// DoclingClient converts documents to markdown through docling-serve.
type DoclingClient struct {
	baseURL string
	client  *http.Client
}

func NewDoclingClient(baseURL string) *DoclingClient {
	if baseURL == "" {
		baseURL = "http://localhost:5001"
	}
	return &DoclingClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
	}
}

// ConvertPDFToMD uploads the file and returns its markdown. With
// embedImages the pictures come back inline as base64 data URIs.
func (c *DoclingClient) ConvertPDFToMD(ctx context.Context, filePath string, embedImages bool) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("files", filepath.Base(filePath))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", err
	}

	imageMode := "placeholder"
	if embedImages {
		imageMode = "embedded"
	}
	fields := map[string]string{
		"to_formats":         "md",
		"image_export_mode":  imageMode,
		"do_table_structure": "true",
	}
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			return "", err
		}
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/convert/file", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("docling request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("docling error: status %d, body: %s", resp.StatusCode, string(body))
	}

	var d ltypes.DoclingResponse
	if err := json.Unmarshal(body, &d); err != nil {
		return "", fmt.Errorf("failed to decode docling response: %w", err)
	}
	if d.Status == "failure" {
		return "", fmt.Errorf("docling conversion failed: %s", strings.Join(d.Errors, "; "))
	}
	return d.Document.MdContent, nil
}
