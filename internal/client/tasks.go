package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/veranemoloko/fusionctl/internal/domain"
	errpkg "github.com/veranemoloko/fusionctl/internal/errors"
	"github.com/veranemoloko/fusionctl/internal/multipart"
)

// Field is an inline form field. Fields keep their order on the wire.
type Field struct {
	Name  string
	Value string
}

// Attachment is a file sent with an action.
type Attachment struct {
	Field       string
	Path        string
	ContentType string
}

// ActionRequest describes a submit-action call (fuse, sign, private_sign...).
type ActionRequest struct {
	Action       string
	ParentTaskID string
	AppID        string
	FusionSetID  string
	Overrides    map[string]any
	Fields       []Field
	Attachments  []Attachment
}

// StatusQuery selects whether progress messages are requested and from which
// cursor.
type StatusQuery struct {
	Messages bool
	LastDate string
}

type uploadResponse struct {
	ID string `json:"id"`
}

type taskResponse struct {
	TaskID string `json:"task_id"`
}

type releaseResponse struct {
	NewFusionSetID string `json:"new_fusion_set_id"`
}

// Upload sends the artifact at path and returns the app id the service assigned.
func (c *Client) Upload(ctx context.Context, path string) (string, error) {
	enc := multipart.New("")
	defer enc.Close()

	if err := enc.AddFilePath("file", path, "application/octet-stream"); err != nil {
		return "", err
	}

	req, captured, err := c.newMultipartRequest(ctx, c.buildURL("upload"), c.teamParams(), enc)
	if err != nil {
		return "", err
	}

	var out uploadResponse
	if err := c.doJSON(req, captured, &out); err != nil {
		return "", fmt.Errorf("upload %s: %w", path, err)
	}
	if out.ID == "" {
		return "", fmt.Errorf("upload %s: %w: response has no id", path, errpkg.ErrMalformedResponse)
	}

	c.logger.Info("upload request finished", "app_id", out.ID)
	return out.ID, nil
}

// SubmitAction posts an action to the tasks endpoint and returns the task id
// to poll. A chained action acknowledged without a task_id keeps the id of
// its parent task.
func (c *Client) SubmitAction(ctx context.Context, ar ActionRequest) (string, error) {
	return c.submit(ctx, c.buildURL("tasks"), ar)
}

// BuildToTest posts a fuse action to the build-to-test endpoint.
func (c *Client) BuildToTest(ctx context.Context, ar ActionRequest) (string, error) {
	return c.submit(ctx, c.buildURL("build-to-test"), ar)
}

func (c *Client) submit(ctx context.Context, endpoint string, ar ActionRequest) (string, error) {
	if ar.Action == "" {
		return "", fmt.Errorf("%w: action cannot be empty", errpkg.ErrInvalidInput)
	}

	enc := multipart.New("")
	defer enc.Close()

	if err := buildActionBody(enc, ar); err != nil {
		return "", err
	}

	req, captured, err := c.newMultipartRequest(ctx, endpoint, c.teamParams(), enc)
	if err != nil {
		return "", err
	}

	var out taskResponse
	if err := c.doJSON(req, captured, &out); err != nil {
		return "", fmt.Errorf("submit %s: %w", ar.Action, err)
	}
	if out.TaskID == "" {
		if ar.ParentTaskID == "" {
			return "", fmt.Errorf("submit %s: %w: response has no task_id", ar.Action, errpkg.ErrMalformedResponse)
		}
		// Chained actions run on the parent task.
		c.logger.Debug("action acknowledged without task_id", "action", ar.Action, "parent_task_id", ar.ParentTaskID)
		out.TaskID = ar.ParentTaskID
	}

	c.logger.Info("action submitted", "action", ar.Action, "task_id", out.TaskID, "parent_task_id", ar.ParentTaskID)
	return out.TaskID, nil
}

// buildActionBody writes the action fields into enc in a fixed order:
// action, overrides, parent_task_id, app_id, fusion_set_id, extra fields,
// then attachments.
func buildActionBody(enc *multipart.Encoder, ar ActionRequest) error {
	overrides := ar.Overrides
	if overrides == nil {
		overrides = map[string]any{}
	}
	encoded, err := json.Marshal(overrides)
	if err != nil {
		return fmt.Errorf("encode overrides: %w", err)
	}

	fields := []Field{
		{Name: "action", Value: ar.Action},
		{Name: "overrides", Value: string(encoded)},
	}
	if ar.ParentTaskID != "" {
		fields = append(fields, Field{Name: "parent_task_id", Value: ar.ParentTaskID})
	}
	if ar.AppID != "" {
		fields = append(fields, Field{Name: "app_id", Value: ar.AppID})
	}
	if ar.FusionSetID != "" {
		fields = append(fields, Field{Name: "fusion_set_id", Value: ar.FusionSetID})
	}
	fields = append(fields, ar.Fields...)

	for _, f := range fields {
		if err := enc.AddField(f.Name, f.Value); err != nil {
			return err
		}
	}

	// Attachments sharing a field go out as one list of file parts.
	var order []string
	grouped := make(map[string][]Attachment)
	for _, a := range ar.Attachments {
		if _, seen := grouped[a.Field]; !seen {
			order = append(order, a.Field)
		}
		grouped[a.Field] = append(grouped[a.Field], a)
	}
	for _, field := range order {
		group := grouped[field]
		contentType := group[0].ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		paths := make([]string, len(group))
		for i, a := range group {
			paths[i] = a.Path
		}
		if err := enc.AddFilePaths(field, paths, contentType); err != nil {
			return err
		}
	}
	return nil
}

// Status fetches the current status of a task.
func (c *Client) Status(ctx context.Context, taskID string, q StatusQuery) (*domain.StatusResponse, error) {
	params := c.teamParams()
	if q.Messages {
		params.Set("messages", "true")
		if q.LastDate != "" {
			params.Set("lastDate", q.LastDate)
		}
	}

	req, err := c.newRequest(ctx, http.MethodGet, c.buildURL("tasks", taskID, "status"), params, nil, jsonContentType)
	if err != nil {
		return nil, err
	}

	var out domain.StatusResponse
	if err := c.doJSON(req, nil, &out); err != nil {
		return nil, fmt.Errorf("status of task %s: %w", taskID, err)
	}
	return &out, nil
}

// OpenArtifact requests a task output (command is e.g. "output" or
// "certificate") and returns the validated, decompressed body stream. Nothing
// is returned for a rejected request, so callers only persist valid payloads.
func (c *Client) OpenArtifact(ctx context.Context, taskID, command, action string) (io.ReadCloser, error) {
	params := c.teamParams()
	if action != "" {
		params.Set("action", action)
	}

	req, err := c.newRequest(ctx, http.MethodGet, c.buildURL("tasks", taskID, command), params, nil, jsonContentType)
	if err != nil {
		return nil, err
	}

	body, err := c.do(req, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch %s of task %s: %w", command, taskID, err)
	}
	return body, nil
}

// ReleaseFusionSet releases fusionSetID to teamID and returns the id of the
// released copy.
func (c *Client) ReleaseFusionSet(ctx context.Context, fusionSetID, teamID string) (string, error) {
	if fusionSetID == "" || teamID == "" {
		return "", fmt.Errorf("%w: fusion set id and team id are required", errpkg.ErrInvalidInput)
	}

	params := url.Values{}
	params.Set("team_id", teamID)

	req, err := c.newRequest(ctx, http.MethodPost, c.buildURL("release_fs", fusionSetID), params, nil, "")
	if err != nil {
		return "", err
	}

	var out releaseResponse
	if err := c.doJSON(req, nil, &out); err != nil {
		return "", fmt.Errorf("release fusion set %s: %w", fusionSetID, err)
	}
	return out.NewFusionSetID, nil
}

func (c *Client) newMultipartRequest(ctx context.Context, endpoint string, params url.Values, enc *multipart.Encoder) (*http.Request, *captureWriter, error) {
	captured := newCaptureWriter()
	body := io.TeeReader(enc.Reader(), captured)

	req, err := c.newRequest(ctx, http.MethodPost, endpoint, params, body, enc.ContentType())
	if err != nil {
		return nil, nil, err
	}
	return req, captured, nil
}
