package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/schema"
	"github.com/xhad/ayurchat/internal/logger"
)

const (
	DefaultPebbloName    = "Final"
	DefaultPebbloTimeout = 20 * time.Second

	pebbloLoaderPath = "/v1/loader/doc"
)

// PebbloConfig reports every load to a Pebblo daemon. Reporting is off when
// URL is empty.
type PebbloConfig struct {
	URL     string
	Name    string
	Owner   string
	Timeout time.Duration
}

type pebbloDoc struct {
	Doc        string `json:"doc"`
	SourcePath string `json:"source_path"`
	Page       int    `json:"page,omitempty"`
}

type pebbloLoaderDetails struct {
	Loader         string `json:"loader"`
	SourcePath     string `json:"source_path"`
	SourceType     string `json:"source_type"`
	SourcePathSize int64  `json:"source_path_size,omitempty"`
}

type pebbloLoad struct {
	Name          string              `json:"name"`
	Owner         string              `json:"owner"`
	LoadID        string              `json:"load_id"`
	LoaderDetails pebbloLoaderDetails `json:"loader_details"`
	Docs          []pebbloDoc         `json:"docs"`
	LoadingEnd    bool                `json:"loading_end"`
	SourceOwner   string              `json:"source_owner"`
}

// reportLoad posts the loaded pages to the daemon. A daemon that is down or
// rejects the report never fails the load.
func reportLoad(ctx context.Context, config PebbloConfig, path string, k kind, docs []schema.Document) {
	if config.URL == "" {
		return
	}
	if config.Name == "" {
		config.Name = DefaultPebbloName
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultPebbloTimeout
	}

	payload := pebbloLoad{
		Name:          config.Name,
		Owner:         config.Owner,
		LoadID:        uuid.New().String(),
		LoaderDetails: loaderDetails(path, k),
		Docs:          make([]pebbloDoc, 0, len(docs)),
		LoadingEnd:    true,
		SourceOwner:   config.Owner,
	}
	for i, doc := range docs {
		payload.Docs = append(payload.Docs, pebbloDoc{
			Doc:        doc.PageContent,
			SourcePath: path,
			Page:       i + 1,
		})
	}

	if err := postPebblo(ctx, config, payload); err != nil {
		logger.Warn("failed to report load to pebblo: %v", err)
		return
	}
	logger.Debug("reported %d pages from %s to pebblo", len(docs), path)
}

func loaderDetails(path string, k kind) pebbloLoaderDetails {
	details := pebbloLoaderDetails{SourcePath: path, SourceType: "file"}
	switch k {
	case kindURL:
		details.Loader, details.SourceType = "WebCrawler", "url"
	case kindPDF:
		details.Loader = "PDFLoader"
	default:
		details.Loader = "TextLoader"
	}
	if info, err := os.Stat(path); err == nil {
		details.SourcePathSize = info.Size()
	}
	return details
}

func postPebblo(ctx context.Context, config PebbloConfig, payload pebbloLoad) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, config.Timeout)
	defer cancel()

	url := strings.TrimRight(config.URL, "/") + pebbloLoaderPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("pebblo returned %s", resp.Status)
	}
	return nil
}
