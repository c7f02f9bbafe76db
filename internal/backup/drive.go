package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

const driveSpace = "appDataFolder"

// DriveTarget stores backups in the application data folder of the
// operator's Google Drive.
type DriveTarget struct {
	svc *drive.Service
}

// DriveCredentials locate the OAuth client and token. Inline JSON wins
// over files.
type DriveCredentials struct {
	ClientFile string
	ClientJSON string
	TokenFile  string
	TokenJSON  string
}

func readSecret(inline, file, what string) ([]byte, error) {
	switch {
	case inline != "":
		return []byte(inline), nil
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read %s file: %w", what, err)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("missing %s (set the JSON or the file path)", what)
	}
}

// OAuthConfig builds the OAuth client configuration with the Drive
// app-data scope.
func OAuthConfig(clientJSON []byte) (*oauth2.Config, error) {
	cfg, err := google.ConfigFromJSON(clientJSON, drive.DriveAppdataScope)
	if err != nil {
		return nil, fmt.Errorf("oauth config: %w", err)
	}
	return cfg, nil
}

// OAuthConfig reads the OAuth client and builds its configuration with
// redirectURL set.
func (c DriveCredentials) OAuthConfig(redirectURL string) (*oauth2.Config, error) {
	clientJSON, err := readSecret(c.ClientJSON, c.ClientFile, "oauth client")
	if err != nil {
		return nil, err
	}
	cfg, err := OAuthConfig(clientJSON)
	if err != nil {
		return nil, err
	}
	cfg.RedirectURL = redirectURL
	return cfg, nil
}

// AuthURL is the consent page an operator opens to connect Drive.
func (c DriveCredentials) AuthURL(redirectURL string) (string, error) {
	cfg, err := c.OAuthConfig(redirectURL)
	if err != nil {
		return "", err
	}
	return cfg.AuthCodeURL("ispledger", oauth2.AccessTypeOffline, oauth2.ApprovalForce), nil
}

func NewDriveTarget(ctx context.Context, creds DriveCredentials) (*DriveTarget, error) {
	cfg, err := creds.OAuthConfig("")
	if err != nil {
		return nil, err
	}
	tokenJSON, err := readSecret(creds.TokenJSON, creds.TokenFile, "oauth token")
	if err != nil {
		return nil, err
	}
	var tok oauth2.Token
	if err := json.Unmarshal(tokenJSON, &tok); err != nil {
		return nil, fmt.Errorf("parse oauth token: %w", err)
	}
	svc, err := drive.NewService(ctx, option.WithHTTPClient(cfg.Client(ctx, &tok)))
	if err != nil {
		return nil, fmt.Errorf("drive service: %w", err)
	}
	return &DriveTarget{svc: svc}, nil
}

func (d *DriveTarget) Kind() Kind { return KindDrive }

func (d *DriveTarget) find(ctx context.Context, name string) (*drive.File, error) {
	res, err := d.svc.Files.List().
		Spaces(driveSpace).
		Q(fmt.Sprintf("name = '%s' and trashed = false", name)).
		Fields("files(id, name, size, modifiedTime)").
		PageSize(1).
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("drive list: %w", err)
	}
	if len(res.Files) == 0 {
		return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	return res.Files[0], nil
}

// Upload updates the existing file of that name or creates it.
func (d *DriveTarget) Upload(ctx context.Context, name string, body []byte) (Object, error) {
	existing, err := d.find(ctx, name)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return Object{}, err
	}
	media := bytes.NewReader(body)
	var f *drive.File
	if existing != nil {
		f, err = d.svc.Files.Update(existing.Id, &drive.File{}).
			Media(media).Fields("id, name, size, modifiedTime").Context(ctx).Do()
	} else {
		f, err = d.svc.Files.Create(&drive.File{Name: name, Parents: []string{driveSpace}, MimeType: "application/json"}).
			Media(media).Fields("id, name, size, modifiedTime").Context(ctx).Do()
	}
	if err != nil {
		return Object{}, fmt.Errorf("drive upload: %w", err)
	}
	return driveObject(f), nil
}

func (d *DriveTarget) Download(ctx context.Context, name string) ([]byte, error) {
	f, err := d.find(ctx, name)
	if err != nil {
		return nil, err
	}
	resp, err := d.svc.Files.Get(f.Id).Context(ctx).Download()
	if err != nil {
		return nil, fmt.Errorf("drive download: %w", err)
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

func (d *DriveTarget) List(ctx context.Context) ([]Object, error) {
	var out []Object
	err := d.svc.Files.List().
		Spaces(driveSpace).
		Fields("nextPageToken, files(id, name, size, modifiedTime)").
		OrderBy("modifiedTime desc").
		Pages(ctx, func(page *drive.FileList) error {
			for _, f := range page.Files {
				out = append(out, driveObject(f))
			}
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("drive list: %w", err)
	}
	return out, nil
}

func (d *DriveTarget) Delete(ctx context.Context, id string) error {
	if err := d.svc.Files.Delete(id).Context(ctx).Do(); err != nil {
		return fmt.Errorf("drive delete: %w", err)
	}
	return nil
}

func driveObject(f *drive.File) Object {
	modified, _ := time.Parse(time.RFC3339, f.ModifiedTime)
	return Object{ID: f.Id, Name: f.Name, Size: f.Size, ModifiedAt: modified}
}
