package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"strings"

	"golang.org/x/oauth2/endpoints"

	"github.com/oneclouds/oneclouds/internal/catalog"
	"github.com/oneclouds/oneclouds/internal/provider"
)

const (
	dropboxAPIBase     = "https://api.dropboxapi.com/2"
	dropboxContentBase = "https://content.dropboxapi.com/2"
	dropboxPageLimit   = 1000
)

func init() {
	provider.Register(provider.Dropbox, newDropbox)
}

// dropbox implements provider.Gateway against the Dropbox v2 RPC API.
// Listing is cursor-based: the first page comes from files/list_folder and
// every later page from files/list_folder/continue, so the page token is the
// Dropbox cursor verbatim.
type dropbox struct {
	cfg    provider.GatewayConfig
	holder *credentialHolder
	client *client
	logger *slog.Logger
}

func newDropbox(cfg provider.GatewayConfig) provider.Gateway {
	holder := &credentialHolder{creds: cfg.Credentials}

	return &dropbox{
		cfg:    cfg,
		holder: holder,
		client: newClient(provider.Dropbox, cfg, holder),
		logger: cfg.Logger,
	}
}

func (d *dropbox) Name() string { return provider.Dropbox }

func (d *dropbox) CurrentCredentials() provider.Credentials { return d.holder.get() }

func (d *dropbox) Refresh(ctx context.Context) (*provider.Credentials, error) {
	return refreshOAuth(ctx, d.cfg, endpoints.Dropbox, d.holder, provider.Dropbox)
}

// dropboxEntry is the wire shape of one list_folder entry.
type dropboxEntry struct {
	Tag            string `json:".tag"` // "file", "folder", or "deleted"
	ID             string `json:"id"`
	Name           string `json:"name"`
	PathDisplay    string `json:"path_display"`
	Size           int64  `json:"size"`
	ClientModified string `json:"client_modified"`
	ServerModified string `json:"server_modified"`
	ContentHash    string `json:"content_hash"`
}

type dropboxListResponse struct {
	Entries []dropboxEntry `json:"entries"`
	Cursor  string         `json:"cursor"`
	HasMore bool           `json:"has_more"`
}

func (d *dropbox) ListFiles(ctx context.Context, pageToken string) (*provider.Page, error) {
	var (
		endpoint string
		body     any
	)

	if pageToken == "" {
		endpoint = dropboxAPIBase + "/files/list_folder"
		body = map[string]any{
			"path":      "",
			"recursive": true,
			"limit":     dropboxPageLimit,
		}
	} else {
		endpoint = dropboxAPIBase + "/files/list_folder/continue"
		body = map[string]string{"cursor": pageToken}
	}

	var resp dropboxListResponse
	if err := d.client.postJSON(ctx, endpoint, body, &resp); err != nil {
		return nil, err
	}

	files := make([]provider.FileDescriptor, 0, len(resp.Entries))

	for i := range resp.Entries {
		e := &resp.Entries[i]

		// Deleted markers only appear on cursor resumption; the catalog
		// handles disappearance through the deactivation pass instead.
		if e.Tag == "deleted" {
			continue
		}

		if e.ID == "" {
			d.logger.Warn("skipping dropbox entry without id", slog.String("name", e.Name))
			continue
		}

		files = append(files, d.normalize(e))
	}

	next := ""
	if resp.HasMore {
		next = resp.Cursor
	}

	return &provider.Page{Files: files, NextPageToken: next}, nil
}

// normalize maps a Dropbox entry to the common descriptor shape. Dropbox
// reports no MIME type, so one is derived from the file extension.
func (d *dropbox) normalize(e *dropboxEntry) provider.FileDescriptor {
	desc := provider.FileDescriptor{
		ProviderFileID: e.ID,
		Name:           e.Name,
		Path:           e.PathDisplay,
		IsFolder:       e.Tag == "folder",
		ContentHash:    e.ContentHash,
	}

	if e.Tag == "file" {
		size := e.Size
		desc.Size = &size
		desc.MimeType = mimeFromName(e.Name)
		desc.CreatedAt = parseTimestamp(e.ClientModified)
		desc.ModifiedAt = parseTimestamp(e.ServerModified)
	}

	return desc
}

type dropboxSpaceUsage struct {
	Used       int64 `json:"used"`
	Allocation struct {
		Tag       string `json:".tag"`
		Allocated int64  `json:"allocated"`
	} `json:"allocation"`
}

func (d *dropbox) GetQuota(ctx context.Context) (*provider.Quota, error) {
	// get_space_usage takes a JSON null body.
	resp, err := d.client.do(ctx, &request{
		method:      http.MethodPost,
		url:         dropboxAPIBase + "/users/get_space_usage",
		body:        []byte("null"),
		contentType: "application/json",
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var usage dropboxSpaceUsage
	if err := json.NewDecoder(resp.Body).Decode(&usage); err != nil {
		return nil, &provider.CallError{
			Provider: provider.Dropbox,
			Message:  fmt.Sprintf("decoding space usage: %v", err),
			Err:      provider.ErrMalformed,
		}
	}

	return &provider.Quota{Total: usage.Allocation.Allocated, Used: usage.Used}, nil
}

func (d *dropbox) DeleteFile(ctx context.Context, providerFileID string) error {
	if d.cfg.Mode == string(catalog.ModeMetadata) {
		return fmt.Errorf("%s: delete %s: %w", provider.Dropbox, providerFileID, provider.ErrMetadataMode)
	}

	// delete_v2 accepts "id:..." identifiers in the path field.
	return d.client.postJSON(ctx, dropboxAPIBase+"/files/delete_v2",
		map[string]string{"path": providerFileID}, nil)
}

func (d *dropbox) UploadFile(ctx context.Context, up *provider.Upload) error {
	if d.cfg.Mode == string(catalog.ModeMetadata) {
		return fmt.Errorf("%s: upload %s: %w", provider.Dropbox, up.Name, provider.ErrMetadataMode)
	}

	content, err := io.ReadAll(up.Content)
	if err != nil {
		return fmt.Errorf("%s: reading upload content: %w", provider.Dropbox, err)
	}

	arg, err := json.Marshal(map[string]any{
		"path":       dropboxUploadPath(up),
		"mode":       "add",
		"autorename": true,
	})
	if err != nil {
		return fmt.Errorf("%s: encoding upload arg: %w", provider.Dropbox, err)
	}

	resp, err := d.client.do(ctx, &request{
		method:      http.MethodPost,
		url:         dropboxContentBase + "/files/upload",
		body:        content,
		contentType: "application/octet-stream",
		header:      http.Header{"Dropbox-API-Arg": {string(arg)}},
	})
	if err != nil {
		return err
	}
	resp.Body.Close()

	return nil
}

// dropboxUploadPath joins the target folder and name into an absolute
// Dropbox path.
func dropboxUploadPath(up *provider.Upload) string {
	folder := strings.TrimSuffix(up.FolderPath, "/")
	if folder == "" || !strings.HasPrefix(folder, "/") {
		folder = "/" + strings.TrimPrefix(folder, "/")
	}

	return path.Join(folder, up.Name)
}

// mimeFromName derives a MIME type from a file name extension.
func mimeFromName(name string) string {
	ext := strings.ToLower(path.Ext(name))
	if ext == "" {
		return ""
	}

	mt := mime.TypeByExtension(ext)
	if mt == "" {
		return ""
	}

	// Strip charset parameters; the catalog stores the bare type.
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}

	return mt
}
