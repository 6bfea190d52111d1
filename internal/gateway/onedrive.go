package gateway

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2/endpoints"

	"github.com/oneclouds/oneclouds/internal/catalog"
	"github.com/oneclouds/oneclouds/internal/provider"
)

const (
	graphBaseURL  = "https://graph.microsoft.com/v1.0"
	graphPageSize = 1000
)

func init() {
	provider.Register(provider.OneDrive, newOneDrive)
}

// oneDrive implements provider.Gateway against the Microsoft Graph drive
// API. Graph paginates with @odata.nextLink, a complete URL for the next
// page, which doubles as the page token unchanged.
type oneDrive struct {
	cfg    provider.GatewayConfig
	holder *credentialHolder
	client *client
	logger *slog.Logger
}

func newOneDrive(cfg provider.GatewayConfig) provider.Gateway {
	holder := &credentialHolder{creds: cfg.Credentials}

	return &oneDrive{
		cfg:    cfg,
		holder: holder,
		client: newClient(provider.OneDrive, cfg, holder),
		logger: cfg.Logger,
	}
}

func (o *oneDrive) Name() string { return provider.OneDrive }

func (o *oneDrive) CurrentCredentials() provider.Credentials { return o.holder.get() }

func (o *oneDrive) Refresh(ctx context.Context) (*provider.Credentials, error) {
	return refreshOAuth(ctx, o.cfg, endpoints.AzureAD("common"), o.holder, provider.OneDrive)
}

// graphItem is the wire shape of one drive item.
type graphItem struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Size int64  `json:"size"`
	File *struct {
		MimeType string `json:"mimeType"`
		Hashes   struct {
			QuickXorHash string `json:"quickXorHash"`
			Sha1Hash     string `json:"sha1Hash"`
		} `json:"hashes"`
	} `json:"file"`
	Folder           *struct{} `json:"folder"`
	CreatedDateTime  string    `json:"createdDateTime"`
	ModifiedDateTime string    `json:"lastModifiedDateTime"`
	WebURL           string    `json:"webUrl"`
	DownloadURL      string    `json:"@microsoft.graph.downloadUrl"`
	ParentReference  struct {
		Path string `json:"path"`
	} `json:"parentReference"`
}

type graphListResponse struct {
	Value    []graphItem `json:"value"`
	NextLink string      `json:"@odata.nextLink"`
}

func (o *oneDrive) ListFiles(ctx context.Context, pageToken string) (*provider.Page, error) {
	listURL := pageToken
	if listURL == "" {
		listURL = fmt.Sprintf("%s/me/drive/root/children?$top=%d", graphBaseURL, graphPageSize)
	}

	var resp graphListResponse
	if err := o.client.getJSON(ctx, listURL, &resp); err != nil {
		return nil, err
	}

	files := make([]provider.FileDescriptor, 0, len(resp.Value))

	for i := range resp.Value {
		item := &resp.Value[i]

		if item.ID == "" {
			o.logger.Warn("skipping drive item without id", slog.String("name", item.Name))
			continue
		}

		files = append(files, o.normalize(item))
	}

	return &provider.Page{Files: files, NextPageToken: resp.NextLink}, nil
}

// normalize maps a Graph drive item to the common descriptor shape.
// quickXorHash is preferred over sha1Hash; personal and business drives
// disagree on which one they populate.
func (o *oneDrive) normalize(item *graphItem) provider.FileDescriptor {
	desc := provider.FileDescriptor{
		ProviderFileID: item.ID,
		Name:           item.Name,
		Path:           graphItemPath(item),
		IsFolder:       item.Folder != nil,
		CreatedAt:      parseTimestamp(item.CreatedDateTime),
		ModifiedAt:     parseTimestamp(item.ModifiedDateTime),
		WebViewLink:    item.WebURL,
		DownloadLink:   item.DownloadURL,
	}

	if item.File != nil {
		size := item.Size
		desc.Size = &size
		desc.MimeType = item.File.MimeType

		desc.ContentHash = item.File.Hashes.QuickXorHash
		if desc.ContentHash == "" {
			desc.ContentHash = item.File.Hashes.Sha1Hash
		}
	}

	return desc
}

// graphItemPath reconstructs the item path from the parent reference, which
// Graph reports as "/drive/root:/some/folder".
func graphItemPath(item *graphItem) string {
	parent := item.ParentReference.Path
	if parent == "" {
		return ""
	}

	if i := strings.Index(parent, ":"); i >= 0 {
		parent = parent[i+1:]
	}

	return parent + "/" + item.Name
}

type graphDrive struct {
	Quota struct {
		Total int64 `json:"total"`
		Used  int64 `json:"used"`
	} `json:"quota"`
}

func (o *oneDrive) GetQuota(ctx context.Context) (*provider.Quota, error) {
	var drive graphDrive
	if err := o.client.getJSON(ctx, graphBaseURL+"/me/drive", &drive); err != nil {
		return nil, err
	}

	return &provider.Quota{Total: drive.Quota.Total, Used: drive.Quota.Used}, nil
}

func (o *oneDrive) DeleteFile(ctx context.Context, providerFileID string) error {
	if o.cfg.Mode == string(catalog.ModeMetadata) {
		return fmt.Errorf("%s: delete %s: %w", provider.OneDrive, providerFileID, provider.ErrMetadataMode)
	}

	resp, err := o.client.do(ctx, &request{
		method: http.MethodDelete,
		url:    graphBaseURL + "/me/drive/items/" + url.PathEscape(providerFileID),
	})
	if err != nil {
		return err
	}
	resp.Body.Close()

	return nil
}

func (o *oneDrive) UploadFile(ctx context.Context, up *provider.Upload) error {
	if o.cfg.Mode == string(catalog.ModeMetadata) {
		return fmt.Errorf("%s: upload %s: %w", provider.OneDrive, up.Name, provider.ErrMetadataMode)
	}

	content, err := io.ReadAll(up.Content)
	if err != nil {
		return fmt.Errorf("%s: reading upload content: %w", provider.OneDrive, err)
	}

	contentType := up.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	resp, err := o.client.do(ctx, &request{
		method:      http.MethodPut,
		url:         graphBaseURL + "/me/drive/root:/" + url.PathEscape(up.Name) + ":/content",
		body:        content,
		contentType: contentType,
	})
	if err != nil {
		return err
	}
	resp.Body.Close()

	return nil
}
