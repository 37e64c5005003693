package utils

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

const (
	StorageProviderLocal = "local"
	StorageProviderGCS   = "gcs"
)

func GetStorageProvider() string {
	provider := strings.TrimSpace(strings.ToLower(os.Getenv("STORAGE_PROVIDER")))
	if provider == "" {
		return StorageProviderLocal
	}
	return provider
}

func GetUploadsRoot() string {
	root := strings.TrimSpace(os.Getenv("UPLOADS_ROOT"))
	if root == "" {
		root = "uploads"
	}
	return root
}

// StorageName builds the persisted name for an upload:
// {timestamp}_{original_filename}. Second-resolution timestamps can collide
// for same-named files; content-hash dedup catches the byte-identical case.
func StorageName(originalName string) string {
	return fmt.Sprintf("%s_%s", time.Now().Format("20060102_150405"), filepath.Base(originalName))
}

// SaveUpload persists raw upload bytes under the uploads root (or the GCS
// bucket when STORAGE_PROVIDER=gcs) and returns the storage path.
func SaveUpload(ctx context.Context, storageName string, data []byte) (string, error) {
	if GetStorageProvider() == StorageProviderGCS {
		objectName := "uploads/" + storageName
		if err := UploadBytesToGCS(ctx, objectName, data, "application/octet-stream"); err != nil {
			return "", err
		}
		return objectName, nil
	}

	root := GetUploadsRoot()
	if err := os.MkdirAll(root, 0o755); err != nil {
		return "", err
	}
	storagePath := filepath.Join(root, storageName)
	if err := os.WriteFile(storagePath, data, 0o644); err != nil {
		return "", err
	}
	return storagePath, nil
}

// ReadUpload loads previously saved upload bytes back from whichever
// provider SaveUpload wrote them to.
func ReadUpload(ctx context.Context, storagePath string) ([]byte, error) {
	if GetStorageProvider() == StorageProviderGCS {
		return DownloadBytesFromGCS(ctx, storagePath)
	}
	return os.ReadFile(storagePath)
}

func getGoogleClient(ctx context.Context) (*storage.Client, error) {
	// Prefer ADC (service account / GOOGLE_APPLICATION_CREDENTIALS).
	// Explicit JSON can be provided via GCS_CREDENTIALS_JSON (e.g. locally).
	if credJSON := os.Getenv("GCS_CREDENTIALS_JSON"); strings.TrimSpace(credJSON) != "" {
		return storage.NewClient(ctx, option.WithCredentialsJSON([]byte(credJSON)))
	}
	return storage.NewClient(ctx)
}

func UploadBytesToGCS(ctx context.Context, objectName string, data []byte, contentType string) error {
	client, err := getGoogleClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	bucketName := os.Getenv("GCS_BUCKET")
	if bucketName == "" {
		return errors.New("GCS_BUCKET is required")
	}

	wc := client.Bucket(bucketName).Object(objectName).NewWriter(ctx)
	wc.ContentType = contentType

	if _, err := wc.Write(data); err != nil {
		return fmt.Errorf("failed to upload bytes to Google Cloud Storage: %v", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("failed to close writer: %v", err)
	}
	return nil
}

func DownloadBytesFromGCS(ctx context.Context, objectName string) ([]byte, error) {
	client, err := getGoogleClient(ctx)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	bucketName := os.Getenv("GCS_BUCKET")
	if bucketName == "" {
		return nil, errors.New("GCS_BUCKET is required")
	}

	rc, err := client.Bucket(bucketName).Object(objectName).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read object from Google Cloud Storage: %v", err)
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
