package mapping

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/veranemoloko/fusionctl/internal/multipart"
)

const (
	// DataDogMetadataFile carries build_id, service_name and version.
	DataDogMetadataFile = "data_dog_metadata.json"

	DefaultDataDogIntakeURL = "https://sourcemap-intake.datadoghq.com/api/v2/srcmap"

	dataDogOrigin        = "dd-sdk-android-gradle-plugin"
	dataDogOriginVersion = "1.13.0"
)

type dataDogMetadata struct {
	BuildID     string `json:"build_id"`
	ServiceName string `json:"service_name"`
	Version     string `json:"version"`
}

type dataDogEvent struct {
	BuildID string `json:"build_id"`
	Service string `json:"service"`
	Type    string `json:"type"`
	Version string `json:"version"`
}

// DataDog uploads to the DataDog sourcemap intake. The credential is the
// DataDog API key.
type DataDog struct {
	IntakeURL  string
	HTTPClient *http.Client
}

// NewDataDog returns a DataDog uploader posting to intakeURL.
func NewDataDog(intakeURL string, httpClient *http.Client) *DataDog {
	if intakeURL == "" {
		intakeURL = DefaultDataDogIntakeURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &DataDog{IntakeURL: intakeURL, HTTPClient: httpClient}
}

func (d *DataDog) Name() string { return "datadog" }

func (d *DataDog) Upload(ctx context.Context, apiKey, dir string) (Result, error) {
	if err := requireFiles(dir, DataDogMetadataFile, MappingFile); err != nil {
		return ResultSkipped, err
	}

	raw, err := os.ReadFile(filepath.Join(dir, DataDogMetadataFile))
	if err != nil {
		return "", fmt.Errorf("read metadata: %w", err)
	}
	var meta dataDogMetadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return "", fmt.Errorf("parse %s: %w", DataDogMetadataFile, err)
	}

	event, err := json.Marshal(dataDogEvent{
		BuildID: meta.BuildID,
		Service: meta.ServiceName,
		Type:    "jvm_mapping_file",
		Version: meta.Version,
	})
	if err != nil {
		return "", err
	}

	enc := multipart.New("")
	defer enc.Close()

	if err := enc.AddFile("event", "event.json", "application/json; charset=utf-8", bytes.NewReader(event)); err != nil {
		return "", err
	}
	if err := enc.AddFilePath("jvm_mapping_file", filepath.Join(dir, MappingFile), "text/plain"); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.IntakeURL, enc.Reader())
	if err != nil {
		return "", err
	}
	req.Header.Set("dd-evp-origin", dataDogOrigin)
	req.Header.Set("dd-evp-origin-version", dataDogOriginVersion)
	req.Header.Set("dd-api-key", apiKey)
	req.Header.Set("Content-Type", enc.ContentType())

	resp, err := d.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("post mapping file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, body)
	}
	return ResultUploaded, nil
}
