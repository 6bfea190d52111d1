package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"

	"bytes"
	"encoding/json"
	"io"

	"golang.org/x/oauth2/endpoints"

	"github.com/oneclouds/oneclouds/internal/catalog"
	"github.com/oneclouds/oneclouds/internal/provider"
)

const (
	driveBaseURL   = "https://www.googleapis.com/drive/v3"
	driveUploadURL = "https://www.googleapis.com/upload/drive/v3/files?uploadType=multipart"
	drivePageSize  = 1000

	driveFolderMime = "application/vnd.google-apps.folder"
)

// driveListFields requests only what reconciliation consumes. md5Checksum and
// webContentLink require full access; the API silently omits fields the token
// cannot see, so one field set serves both modes.
const driveListFields = "nextPageToken,files(id,name,parents,mimeType,size,createdTime,modifiedTime,webViewLink,thumbnailLink,md5Checksum,webContentLink)"

func init() {
	provider.Register(provider.GoogleDrive, newGoogleDrive)
}

// googleDrive implements provider.Gateway against the Drive v3 REST API.
type googleDrive struct {
	cfg    provider.GatewayConfig
	holder *credentialHolder
	client *client
	logger *slog.Logger
}

func newGoogleDrive(cfg provider.GatewayConfig) provider.Gateway {
	holder := &credentialHolder{creds: cfg.Credentials}

	return &googleDrive{
		cfg:    cfg,
		holder: holder,
		client: newClient(provider.GoogleDrive, cfg, holder),
		logger: cfg.Logger,
	}
}

func (g *googleDrive) Name() string { return provider.GoogleDrive }

func (g *googleDrive) CurrentCredentials() provider.Credentials { return g.holder.get() }

func (g *googleDrive) Refresh(ctx context.Context) (*provider.Credentials, error) {
	return refreshOAuth(ctx, g.cfg, endpoints.Google, g.holder, provider.GoogleDrive)
}

// driveFile is the wire shape of one Drive file resource.
type driveFile struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	MimeType       string `json:"mimeType"`
	Size           string `json:"size"` // Drive returns size as a decimal string
	CreatedTime    string `json:"createdTime"`
	ModifiedTime   string `json:"modifiedTime"`
	WebViewLink    string `json:"webViewLink"`
	ThumbnailLink  string `json:"thumbnailLink"`
	WebContentLink string `json:"webContentLink"`
	Md5Checksum    string `json:"md5Checksum"`
}

type driveListResponse struct {
	NextPageToken string      `json:"nextPageToken"`
	Files         []driveFile `json:"files"`
}

func (g *googleDrive) ListFiles(ctx context.Context, pageToken string) (*provider.Page, error) {
	params := url.Values{}
	params.Set("pageSize", strconv.Itoa(drivePageSize))
	params.Set("fields", driveListFields)
	params.Set("q", "trashed=false")

	if pageToken != "" {
		params.Set("pageToken", pageToken)
	}

	var resp driveListResponse
	if err := g.client.getJSON(ctx, driveBaseURL+"/files?"+params.Encode(), &resp); err != nil {
		return nil, err
	}

	// Non-nil even when the listing is empty: nil means "no listing at all".
	files := make([]provider.FileDescriptor, 0, len(resp.Files))

	for i := range resp.Files {
		f := &resp.Files[i]

		if f.ID == "" {
			g.logger.Warn("skipping drive file without id", slog.String("name", f.Name))
			continue
		}

		files = append(files, g.normalize(f))
	}

	return &provider.Page{Files: files, NextPageToken: resp.NextPageToken}, nil
}

// normalize maps a Drive resource to the common descriptor shape.
func (g *googleDrive) normalize(f *driveFile) provider.FileDescriptor {
	desc := provider.FileDescriptor{
		ProviderFileID: f.ID,
		Name:           f.Name,
		MimeType:       f.MimeType,
		IsFolder:       f.MimeType == driveFolderMime,
		CreatedAt:      parseTimestamp(f.CreatedTime),
		ModifiedAt:     parseTimestamp(f.ModifiedTime),
		ContentHash:    f.Md5Checksum,
		PreviewLink:    f.ThumbnailLink,
		DownloadLink:   f.WebContentLink,
		WebViewLink:    f.WebViewLink,
	}

	if f.Size != "" {
		if size, err := strconv.ParseInt(f.Size, 10, 64); err == nil {
			desc.Size = &size
		}
	}

	return desc
}

type driveAbout struct {
	StorageQuota struct {
		Limit string `json:"limit"`
		Usage string `json:"usage"`
	} `json:"storageQuota"`
}

func (g *googleDrive) GetQuota(ctx context.Context) (*provider.Quota, error) {
	var about driveAbout
	if err := g.client.getJSON(ctx, driveBaseURL+"/about?fields=storageQuota", &about); err != nil {
		return nil, err
	}

	total, err := strconv.ParseInt(about.StorageQuota.Limit, 10, 64)
	if err != nil {
		// Unlimited plans return no numeric limit.
		total = 0
	}

	used, err := strconv.ParseInt(about.StorageQuota.Usage, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%s: unparseable quota usage %q: %w", provider.GoogleDrive, about.StorageQuota.Usage, provider.ErrQuotaUnavailable)
	}

	return &provider.Quota{Total: total, Used: used}, nil
}

func (g *googleDrive) DeleteFile(ctx context.Context, providerFileID string) error {
	if g.cfg.Mode == string(catalog.ModeMetadata) {
		return fmt.Errorf("%s: delete %s: %w", provider.GoogleDrive, providerFileID, provider.ErrMetadataMode)
	}

	resp, err := g.client.do(ctx, &request{
		method: http.MethodDelete,
		url:    driveBaseURL + "/files/" + url.PathEscape(providerFileID),
	})
	if err != nil {
		return err
	}
	resp.Body.Close()

	return nil
}

func (g *googleDrive) UploadFile(ctx context.Context, up *provider.Upload) error {
	if g.cfg.Mode == string(catalog.ModeMetadata) {
		return fmt.Errorf("%s: upload %s: %w", provider.GoogleDrive, up.Name, provider.ErrMetadataMode)
	}

	body, contentType, err := driveMultipartBody(up)
	if err != nil {
		return err
	}

	resp, err := g.client.do(ctx, &request{
		method:      http.MethodPost,
		url:         driveUploadURL,
		body:        body,
		contentType: contentType,
	})
	if err != nil {
		return err
	}
	resp.Body.Close()

	return nil
}

// driveMultipartBody builds the two-part related upload payload: JSON
// metadata followed by the raw content.
func driveMultipartBody(up *provider.Upload) ([]byte, string, error) {
	meta := map[string]string{"name": up.Name}
	if up.MimeType != "" {
		meta["mimeType"] = up.MimeType
	}

	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, "", fmt.Errorf("%s: encoding upload metadata: %w", provider.GoogleDrive, err)
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	metaPart, err := w.CreatePart(textproto.MIMEHeader{"Content-Type": {"application/json; charset=UTF-8"}})
	if err != nil {
		return nil, "", fmt.Errorf("%s: building upload body: %w", provider.GoogleDrive, err)
	}

	if _, err := metaPart.Write(metaJSON); err != nil {
		return nil, "", fmt.Errorf("%s: building upload body: %w", provider.GoogleDrive, err)
	}

	contentHeader := textproto.MIMEHeader{}
	if up.MimeType != "" {
		contentHeader.Set("Content-Type", up.MimeType)
	}

	contentPart, err := w.CreatePart(contentHeader)
	if err != nil {
		return nil, "", fmt.Errorf("%s: building upload body: %w", provider.GoogleDrive, err)
	}

	if _, err := io.Copy(contentPart, up.Content); err != nil {
		return nil, "", fmt.Errorf("%s: reading upload content: %w", provider.GoogleDrive, err)
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("%s: building upload body: %w", provider.GoogleDrive, err)
	}

	return buf.Bytes(), "multipart/related; boundary=" + w.Boundary(), nil
}
